package service

import (
	"context"
	"fmt"

	"FightScore/internal/model"
	"FightScore/internal/repository"

	"github.com/sirupsen/logrus"
)

// RoundAudit 单个回合的存储值与流水重算值
type RoundAudit struct {
	RoundID     uint64 `json:"round_id"`
	RoundNumber int    `json:"round_number"`
	Stored      Tally  `json:"stored"`
	Recomputed  Tally  `json:"recomputed"`
	Consistent  bool   `json:"consistent"`
}

// AuditReport 一场比赛的比分一致性报告
type AuditReport struct {
	MatchID       uint64            `json:"match_id"`
	Status        model.MatchStatus `json:"status"`
	StoredRed     int               `json:"stored_red_total"`
	StoredBlue    int               `json:"stored_blue_total"`
	RoundSum      Tally             `json:"round_sum"`
	Recomputed    Tally             `json:"recomputed"`
	Rounds        []RoundAudit      `json:"rounds"`
	OrphanEntries int               `json:"orphan_entries"` // 指向不存在回合的流水条数
	Consistent    bool              `json:"consistent"`
}

// AuditService 由流水重算比分并与存储的计数比对，只读不改
type AuditService struct {
	repo   repository.MatchRepository
	logger *logrus.Logger
}

// NewAuditService 创建 AuditService
func NewAuditService(repo repository.MatchRepository, logger *logrus.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

// CheckMatch 检查单场比赛
func (s *AuditService) CheckMatch(ctx context.Context, matchID uint64) (*AuditReport, error) {
	var report *AuditReport
	err := s.repo.ReadSnapshot(ctx, func(tx repository.MatchRepository) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return lookupErr(err, "match %d", matchID)
		}
		detail, err := loadDetail(ctx, tx, m)
		if err != nil {
			return err
		}
		report = buildAuditReport(detail)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func buildAuditReport(d *MatchDetail) *AuditReport {
	byRound, total := TallyEvents(d.ScoreEntries, d.PenaltyEntries)
	report := &AuditReport{
		MatchID:    d.Match.ID,
		Status:     d.Match.Status,
		StoredRed:  d.Match.RedTotalScore,
		StoredBlue: d.Match.BlueTotalScore,
		RoundSum:   SumRounds(d.Rounds),
		Recomputed: total,
		Rounds:     make([]RoundAudit, 0, len(d.Rounds)),
		Consistent: true,
	}

	known := make(map[uint64]bool, len(d.Rounds))
	for _, r := range d.Rounds {
		known[r.ID] = true
		stored := Tally{
			RedScore:      r.RedScore,
			BlueScore:     r.BlueScore,
			RedPenalties:  r.RedPenalties,
			BluePenalties: r.BluePenalties,
		}
		ra := RoundAudit{
			RoundID:     r.ID,
			RoundNumber: r.RoundNumber,
			Stored:      stored,
			Recomputed:  byRound[r.ID],
			Consistent:  stored == byRound[r.ID],
		}
		if !ra.Consistent {
			report.Consistent = false
		}
		report.Rounds = append(report.Rounds, ra)
	}
	for _, e := range d.ScoreEntries {
		if !known[e.RoundID] {
			report.OrphanEntries++
		}
	}
	for _, e := range d.PenaltyEntries {
		if !known[e.RoundID] {
			report.OrphanEntries++
		}
	}

	if report.OrphanEntries > 0 ||
		report.RoundSum != total ||
		report.StoredRed != report.RoundSum.RedScore ||
		report.StoredBlue != report.RoundSum.BlueScore {
		report.Consistent = false
	}
	return report
}

// Run 巡检所有已开始的比赛，返回不一致的比赛数
func (s *AuditService) Run(ctx context.Context) (int, error) {
	matches, err := s.repo.ListMatchesByStatus(ctx,
		model.MatchStatusOngoing, model.MatchStatusPaused, model.MatchStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("list matches for audit: %w", err)
	}

	bad := 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return bad, err
		}
		report, err := s.CheckMatch(ctx, m.ID)
		if err != nil {
			s.logger.WithError(err).WithField("match_id", m.ID).Warn("比分巡检读取失败")
			continue
		}
		if report.Consistent {
			continue
		}
		bad++
		entry := s.logger.WithFields(logrus.Fields{
			"match_id":       report.MatchID,
			"stored_red":     report.StoredRed,
			"stored_blue":    report.StoredBlue,
			"round_sum_red":  report.RoundSum.RedScore,
			"round_sum_blue": report.RoundSum.BlueScore,
			"log_red":        report.Recomputed.RedScore,
			"log_blue":       report.Recomputed.BlueScore,
			"orphan_entries": report.OrphanEntries,
		})
		entry.Error("比分与流水不一致")
		for _, ra := range report.Rounds {
			if !ra.Consistent {
				s.logger.WithFields(logrus.Fields{
					"match_id":     report.MatchID,
					"round_id":     ra.RoundID,
					"round_number": ra.RoundNumber,
					"stored":       ra.Stored,
					"recomputed":   ra.Recomputed,
				}).Error("回合比分与流水不一致")
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"checked":      len(matches),
		"inconsistent": bad,
	}).Info("比分巡检完成")
	return bad, nil
}
