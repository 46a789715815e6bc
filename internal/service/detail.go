package service

import (
	"context"
	"sort"

	"FightScore/internal/model"
	"FightScore/internal/repository"
)

// MatchDetail 比赛详情视图：比赛、全部回合、当前回合与两类流水
type MatchDetail struct {
	Match          *model.Match          `json:"match"`
	Rounds         []*model.Round        `json:"rounds"`             // 按回合号升序
	CurrentRound   *model.Round          `json:"current_round_data"` // 已结束的比赛为 null
	ScoreEntries   []*model.ScoreEntry   `json:"score_entries"`      // 按时间升序
	PenaltyEntries []*model.PenaltyEntry `json:"penalty_entries"`    // 按时间升序
}

// BuildMatchDetail 组装详情视图，不含任何规则判断
func BuildMatchDetail(m *model.Match, rounds []*model.Round, scores []*model.ScoreEntry, penalties []*model.PenaltyEntry) *MatchDetail {
	d := &MatchDetail{
		Match:          m,
		Rounds:         append([]*model.Round{}, rounds...),
		ScoreEntries:   append([]*model.ScoreEntry{}, scores...),
		PenaltyEntries: append([]*model.PenaltyEntry{}, penalties...),
	}
	sort.SliceStable(d.Rounds, func(i, j int) bool {
		return d.Rounds[i].RoundNumber < d.Rounds[j].RoundNumber
	})
	sort.SliceStable(d.ScoreEntries, func(i, j int) bool {
		a, b := d.ScoreEntries[i], d.ScoreEntries[j]
		if a.Timestamp.Equal(b.Timestamp) {
			return a.ID < b.ID
		}
		return a.Timestamp.Before(b.Timestamp)
	})
	sort.SliceStable(d.PenaltyEntries, func(i, j int) bool {
		a, b := d.PenaltyEntries[i], d.PenaltyEntries[j]
		if a.Timestamp.Equal(b.Timestamp) {
			return a.ID < b.ID
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	if m.Status != model.MatchStatusCompleted {
		for _, r := range d.Rounds {
			if r.RoundNumber == m.CurrentRound {
				d.CurrentRound = r
				break
			}
		}
	}
	return d
}

// loadDetail 读取比赛详情，repo 可以是事务内的仓储
func loadDetail(ctx context.Context, repo repository.MatchRepository, m *model.Match) (*MatchDetail, error) {
	rounds, err := repo.GetRoundsForMatch(ctx, m.ID)
	if err != nil {
		return nil, lookupErr(err, "rounds of match %d", m.ID)
	}
	scores, err := repo.ListScoreEntries(ctx, m.ID)
	if err != nil {
		return nil, lookupErr(err, "score entries of match %d", m.ID)
	}
	penalties, err := repo.ListPenaltyEntries(ctx, m.ID)
	if err != nil {
		return nil, lookupErr(err, "penalty entries of match %d", m.ID)
	}
	return BuildMatchDetail(m, rounds, scores, penalties), nil
}
