package service

import (
	"fmt"
	"time"

	"FightScore/internal/model"
)

// 回合账本：把得分/犯规累加到回合与比赛的计数上，并生成对应流水。
// 这里的函数只改内存中的对象，落库由 MatchService 在同一事务内完成。

func checkLedgerOpen(m *model.Match, r *model.Round) error {
	if m.Status != model.MatchStatusOngoing {
		return invalidStatef("match %d is %s, not ongoing", m.ID, m.Status)
	}
	if r.Ended() {
		return invalidStatef("round %d of match %d has already ended", r.RoundNumber, m.ID)
	}
	return nil
}

func addRoundScore(r *model.Round, c model.Color, points int) {
	if c == model.ColorRed {
		r.RedScore += points
	} else {
		r.BlueScore += points
	}
}

func addMatchScore(m *model.Match, c model.Color, points int) {
	if c == model.ColorRed {
		m.RedTotalScore += points
	} else {
		m.BlueTotalScore += points
	}
}

// ApplyScore 记一次技术得分：回合分与比赛总分同时增加技术分值
func ApplyScore(m *model.Match, r *model.Round, color model.Color, technique model.Technique, now time.Time) (*model.ScoreEntry, error) {
	if !color.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown competitor color %q", color))
	}
	if !technique.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown score type %q", technique))
	}
	if err := checkLedgerOpen(m, r); err != nil {
		return nil, err
	}

	points := technique.Points()
	addRoundScore(r, color, points)
	addMatchScore(m, color, points)

	return &model.ScoreEntry{
		MatchID:         m.ID,
		RoundID:         r.ID,
		CompetitorColor: color,
		ScoreType:       technique,
		Points:          points,
		Timestamp:       now,
	}, nil
}

// ApplyPenalty 记一次犯规：犯规方计数 +1，对手回合分与比赛总分各 +1
func ApplyPenalty(m *model.Match, r *model.Round, offender model.Color, kind model.PenaltyType, now time.Time) (*model.PenaltyEntry, error) {
	if !offender.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown competitor color %q", offender))
	}
	if !kind.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown penalty type %q", kind))
	}
	if err := checkLedgerOpen(m, r); err != nil {
		return nil, err
	}

	if offender == model.ColorRed {
		r.RedPenalties++
	} else {
		r.BluePenalties++
	}
	beneficiary := offender.Opponent()
	addRoundScore(r, beneficiary, model.PenaltyPoints)
	addMatchScore(m, beneficiary, model.PenaltyPoints)

	return &model.PenaltyEntry{
		MatchID:         m.ID,
		RoundID:         r.ID,
		CompetitorColor: offender,
		PenaltyType:     kind,
		Timestamp:       now,
	}, nil
}

// DecideRoundWinner 回合胜方：
// 红方犯规满 5 次判蓝方胜，否则蓝方犯规满 5 次判红方胜（红方优先检查）；
// 都未满则比较回合分，相同无胜方
func DecideRoundWinner(r *model.Round) *model.Color {
	switch {
	case r.RedPenalties >= model.PenaltyDisqualifyLimit:
		return colorPtr(model.ColorBlue)
	case r.BluePenalties >= model.PenaltyDisqualifyLimit:
		return colorPtr(model.ColorRed)
	}
	return compareScores(r.RedScore, r.BlueScore)
}

// DecideMatchWinner 比赛胜方按总分比较，不按回合胜场
func DecideMatchWinner(m *model.Match) *model.Color {
	return compareScores(m.RedTotalScore, m.BlueTotalScore)
}

func compareScores(red, blue int) *model.Color {
	switch {
	case red > blue:
		return colorPtr(model.ColorRed)
	case blue > red:
		return colorPtr(model.ColorBlue)
	}
	return nil
}

func colorPtr(c model.Color) *model.Color { return &c }

// FinalizeRound 结束回合：判定胜方，写入结束时间与时长（未开始计时的回合时长为 0）
func FinalizeRound(r *model.Round, now time.Time) error {
	if r.Ended() {
		return invalidStatef("round %d has already ended", r.RoundNumber)
	}
	r.WinnerColor = DecideRoundWinner(r)
	ended := now
	r.EndedAt = &ended
	duration := 0
	if r.StartedAt != nil {
		duration = int(now.Sub(*r.StartedAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
	}
	r.DurationSeconds = &duration
	return nil
}

// Tally 由流水重新累计的分数与犯规数
type Tally struct {
	RedScore      int `json:"red_score"`
	BlueScore     int `json:"blue_score"`
	RedPenalties  int `json:"red_penalties"`
	BluePenalties int `json:"blue_penalties"`
}

func (t *Tally) addScore(c model.Color, points int) {
	if c == model.ColorRed {
		t.RedScore += points
	} else {
		t.BlueScore += points
	}
}

func (t *Tally) addPenalty(offender model.Color) {
	if offender == model.ColorRed {
		t.RedPenalties++
	} else {
		t.BluePenalties++
	}
	t.addScore(offender.Opponent(), model.PenaltyPoints)
}

// TallyEvents 从完整流水重算：按回合ID分组的结果与全场合计。
// 技术分取流水中记录的分值快照
func TallyEvents(scores []*model.ScoreEntry, penalties []*model.PenaltyEntry) (map[uint64]Tally, Tally) {
	byRound := make(map[uint64]Tally)
	var total Tally
	for _, e := range scores {
		t := byRound[e.RoundID]
		t.addScore(e.CompetitorColor, e.Points)
		byRound[e.RoundID] = t
		total.addScore(e.CompetitorColor, e.Points)
	}
	for _, e := range penalties {
		t := byRound[e.RoundID]
		t.addPenalty(e.CompetitorColor)
		byRound[e.RoundID] = t
		total.addPenalty(e.CompetitorColor)
	}
	return byRound, total
}

// SumRounds 各回合计数之和
func SumRounds(rounds []*model.Round) Tally {
	var t Tally
	for _, r := range rounds {
		t.RedScore += r.RedScore
		t.BlueScore += r.BlueScore
		t.RedPenalties += r.RedPenalties
		t.BluePenalties += r.BluePenalties
	}
	return t
}
