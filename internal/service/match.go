package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"FightScore/internal/config"
	"FightScore/internal/model"
	"FightScore/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	minTotalRounds   = 1
	maxTotalRounds   = 5
	minRoundDuration = 1
	maxRoundDuration = 10
)

// 操作记录中的命令名
const (
	CommandCreate        = "create_match"
	CommandUpdate        = "update_match"
	CommandStart         = "start_match"
	CommandPause         = "pause_match"
	CommandResume        = "resume_match"
	CommandStartRound    = "start_round"
	CommandRecordScore   = "record_score"
	CommandRecordPenalty = "record_penalty"
	CommandEndRound      = "end_round"
)

// MatchService 比赛状态机：校验状态、驱动回合账本、落库并返回最新详情
type MatchService struct {
	repo   repository.MatchRepository
	locker *KeyedLocker
	cfg    config.MatchConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewMatchService 创建 MatchService
func NewMatchService(repo repository.MatchRepository, cfg config.MatchConfig, logger *logrus.Logger) *MatchService {
	return &MatchService{
		repo:   repo,
		locker: NewKeyedLocker(),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CreateMatchRequest 创建比赛参数，轮数与时长缺省时取配置默认值
type CreateMatchRequest struct {
	WeightCategory        string   `json:"weight_category"`
	RedCompetitorName     string   `json:"red_competitor_name"`
	RedCompetitorCountry  string   `json:"red_competitor_country"`
	BlueCompetitorName    string   `json:"blue_competitor_name"`
	BlueCompetitorCountry string   `json:"blue_competitor_country"`
	TotalRounds           *int     `json:"total_rounds"`
	RoundDurationMinutes  *float64 `json:"round_duration_minutes"` // 先校验区间，再四舍五入到整分钟
}

// MatchPatch 部分更新，仅非 nil 字段生效
type MatchPatch struct {
	WeightCategory        *string  `json:"weight_category"`
	RedCompetitorName     *string  `json:"red_competitor_name"`
	RedCompetitorCountry  *string  `json:"red_competitor_country"`
	BlueCompetitorName    *string  `json:"blue_competitor_name"`
	BlueCompetitorCountry *string  `json:"blue_competitor_country"`
	TotalRounds           *int     `json:"total_rounds"`
	RoundDurationMinutes  *float64 `json:"round_duration_minutes"`
}

func validateTotalRounds(n int) error {
	if n < minTotalRounds || n > maxTotalRounds {
		return invalidStatef("total_rounds must be between %d and %d, got %d", minTotalRounds, maxTotalRounds, n)
	}
	return nil
}

func normalizeRoundDuration(minutes float64) (int, error) {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return 0, invalidStatef("round_duration_minutes must be a number")
	}
	if minutes < minRoundDuration || minutes > maxRoundDuration {
		return 0, invalidStatef("round_duration_minutes must be between %d and %d, got %v", minRoundDuration, maxRoundDuration, minutes)
	}
	return int(math.Round(minutes)), nil
}

func requireText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalidInput(fmt.Errorf("%s is required", field))
	}
	return v, nil
}

// apply 逐字段应用补丁，任何一项校验失败时 m 不会被修改
func (p MatchPatch) apply(m *model.Match) error {
	next := *m
	texts := []struct {
		field string
		src   *string
		dst   *string
	}{
		{"weight_category", p.WeightCategory, &next.WeightCategory},
		{"red_competitor_name", p.RedCompetitorName, &next.RedCompetitorName},
		{"red_competitor_country", p.RedCompetitorCountry, &next.RedCompetitorCountry},
		{"blue_competitor_name", p.BlueCompetitorName, &next.BlueCompetitorName},
		{"blue_competitor_country", p.BlueCompetitorCountry, &next.BlueCompetitorCountry},
	}
	for _, t := range texts {
		if t.src == nil {
			continue
		}
		v, err := requireText(t.field, *t.src)
		if err != nil {
			return err
		}
		*t.dst = v
	}

	if p.TotalRounds != nil || p.RoundDurationMinutes != nil {
		if m.Status == model.MatchStatusCompleted {
			return invalidStatef("match %d is completed, round settings can no longer change", m.ID)
		}
	}
	if p.TotalRounds != nil {
		if err := validateTotalRounds(*p.TotalRounds); err != nil {
			return err
		}
		if *p.TotalRounds < m.CurrentRound {
			return invalidStatef("total_rounds %d is below current round %d", *p.TotalRounds, m.CurrentRound)
		}
		next.TotalRounds = *p.TotalRounds
	}
	if p.RoundDurationMinutes != nil {
		n, err := normalizeRoundDuration(*p.RoundDurationMinutes)
		if err != nil {
			return err
		}
		next.RoundDurationMinutes = n
	}
	*m = next
	return nil
}

func commandRecord(matchID uint64, command string, payload interface{}) (*model.MatchCommand, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", command, err)
	}
	return &model.MatchCommand{
		MatchID: matchID,
		Command: command,
		Payload: datatypes.JSON(raw),
	}, nil
}

// CreateMatch 创建比赛，初始为 upcoming、比分为 0、当前回合为 1
func (s *MatchService) CreateMatch(ctx context.Context, req *CreateMatchRequest) (*model.Match, error) {
	m := &model.Match{
		MatchUUID:    uuid.NewString(),
		Status:       model.MatchStatusUpcoming,
		CurrentRound: 1,
	}
	var err error
	if m.WeightCategory, err = requireText("weight_category", req.WeightCategory); err != nil {
		return nil, err
	}
	if m.RedCompetitorName, err = requireText("red_competitor_name", req.RedCompetitorName); err != nil {
		return nil, err
	}
	if m.RedCompetitorCountry, err = requireText("red_competitor_country", req.RedCompetitorCountry); err != nil {
		return nil, err
	}
	if m.BlueCompetitorName, err = requireText("blue_competitor_name", req.BlueCompetitorName); err != nil {
		return nil, err
	}
	if m.BlueCompetitorCountry, err = requireText("blue_competitor_country", req.BlueCompetitorCountry); err != nil {
		return nil, err
	}

	m.TotalRounds = s.cfg.DefaultTotalRounds
	if req.TotalRounds != nil {
		m.TotalRounds = *req.TotalRounds
	}
	if err := validateTotalRounds(m.TotalRounds); err != nil {
		return nil, err
	}
	m.RoundDurationMinutes = s.cfg.DefaultRoundDurationMinutes
	if req.RoundDurationMinutes != nil {
		if m.RoundDurationMinutes, err = normalizeRoundDuration(*req.RoundDurationMinutes); err != nil {
			return nil, err
		}
	}

	err = s.repo.Transaction(ctx, func(tx repository.MatchRepository) error {
		if err := tx.CreateMatch(ctx, m); err != nil {
			return fmt.Errorf("create match: %w", err)
		}
		rec, err := commandRecord(m.ID, CommandCreate, req)
		if err != nil {
			return err
		}
		return tx.InsertCommand(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"match_id":     m.ID,
		"match_uuid":   m.MatchUUID,
		"total_rounds": m.TotalRounds,
	}).Info("比赛已创建")
	return m, nil
}

// ListMatches 全部比赛，最新创建的在前
func (s *MatchService) ListMatches(ctx context.Context) ([]*model.Match, error) {
	list, err := s.repo.ListMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	if list == nil {
		list = []*model.Match{}
	}
	return list, nil
}

// GetMatchDetail 比赛详情，在只读快照内读取
func (s *MatchService) GetMatchDetail(ctx context.Context, matchID uint64) (*MatchDetail, error) {
	var detail *MatchDetail
	err := s.repo.ReadSnapshot(ctx, func(tx repository.MatchRepository) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return lookupErr(err, "match %d", matchID)
		}
		detail, err = loadDetail(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListCommands 比赛的操作记录，按写入顺序
func (s *MatchService) ListCommands(ctx context.Context, matchID uint64) ([]*model.MatchCommand, error) {
	if _, err := s.repo.GetMatch(ctx, matchID); err != nil {
		return nil, lookupErr(err, "match %d", matchID)
	}
	list, err := s.repo.ListCommands(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list commands of match %d: %w", matchID, err)
	}
	if list == nil {
		list = []*model.MatchCommand{}
	}
	return list, nil
}

// ResolveMatchID ref 为数字时即比赛ID，否则按 match_uuid 查找
func (s *MatchService) ResolveMatchID(ctx context.Context, ref string) (uint64, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return id, nil
	}
	if _, err := uuid.Parse(ref); err != nil {
		return 0, invalidInput(fmt.Errorf("match reference %q is neither an id nor a uuid", ref))
	}
	m, err := s.repo.GetMatchByUUID(ctx, ref)
	if err != nil {
		return 0, lookupErr(err, "match %s", ref)
	}
	return m.ID, nil
}

// mutation 在已加锁的比赛上执行的变更，返回错误时整个事务回滚
type mutation func(tx repository.MatchRepository, m *model.Match, now time.Time) error

// mutate 单场比赛的写命令：进程内按比赛串行，事务内行锁，失败整体回滚
func (s *MatchService) mutate(ctx context.Context, matchID uint64, command string, payload interface{}, fn mutation) (*MatchDetail, error) {
	unlock := s.locker.Lock(matchID)
	defer unlock()

	var detail *MatchDetail
	err := s.repo.Transaction(ctx, func(tx repository.MatchRepository) error {
		m, err := tx.GetMatchForUpdate(ctx, matchID)
		if err != nil {
			return lookupErr(err, "match %d", matchID)
		}
		now := s.now()
		if err := fn(tx, m, now); err != nil {
			return err
		}
		if err := tx.UpdateMatch(ctx, m); err != nil {
			return fmt.Errorf("update match %d: %w", m.ID, err)
		}
		rec, err := commandRecord(m.ID, command, payload)
		if err != nil {
			return err
		}
		if err := tx.InsertCommand(ctx, rec); err != nil {
			return fmt.Errorf("insert %s command: %w", command, err)
		}
		detail, err = loadDetail(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"match_id":      detail.Match.ID,
		"command":       command,
		"status":        detail.Match.Status,
		"current_round": detail.Match.CurrentRound,
		"red_total":     detail.Match.RedTotalScore,
		"blue_total":    detail.Match.BlueTotalScore,
	}).Info("比赛命令已执行")
	return detail, nil
}

func requireStatus(m *model.Match, want model.MatchStatus, action string) error {
	if m.Status != want {
		return invalidTransitionf("cannot %s match %d: status is %s, want %s", action, m.ID, m.Status, want)
	}
	return nil
}

func currentRound(ctx context.Context, tx repository.MatchRepository, m *model.Match) (*model.Round, error) {
	r, err := tx.GetCurrentRound(ctx, m.ID, m.CurrentRound)
	if err != nil {
		return nil, lookupErr(err, "current round %d of match %d", m.CurrentRound, m.ID)
	}
	return r, nil
}

// UpdateMatch 部分更新比赛信息
func (s *MatchService) UpdateMatch(ctx context.Context, matchID uint64, patch MatchPatch) (*model.Match, error) {
	detail, err := s.mutate(ctx, matchID, CommandUpdate, patch, func(_ repository.MatchRepository, m *model.Match, _ time.Time) error {
		return patch.apply(m)
	})
	if err != nil {
		return nil, err
	}
	return detail.Match, nil
}

// StartMatch upcoming → ongoing，并创建第 1 回合（开始计时）
func (s *MatchService) StartMatch(ctx context.Context, matchID uint64) (*MatchDetail, error) {
	return s.mutate(ctx, matchID, CommandStart, nil, func(tx repository.MatchRepository, m *model.Match, now time.Time) error {
		if err := requireStatus(m, model.MatchStatusUpcoming, "start"); err != nil {
			return err
		}
		m.Status = model.MatchStatusOngoing
		m.CurrentRound = 1
		started := now
		if err := tx.InsertRound(ctx, &model.Round{MatchID: m.ID, RoundNumber: 1, StartedAt: &started}); err != nil {
			return fmt.Errorf("insert round 1: %w", err)
		}
		return nil
	})
}

// PauseMatch ongoing → paused，不改动回合数据
func (s *MatchService) PauseMatch(ctx context.Context, matchID uint64) (*MatchDetail, error) {
	return s.mutate(ctx, matchID, CommandPause, nil, func(_ repository.MatchRepository, m *model.Match, _ time.Time) error {
		if err := requireStatus(m, model.MatchStatusOngoing, "pause"); err != nil {
			return err
		}
		m.Status = model.MatchStatusPaused
		return nil
	})
}

// ResumeMatch paused → ongoing
func (s *MatchService) ResumeMatch(ctx context.Context, matchID uint64) (*MatchDetail, error) {
	return s.mutate(ctx, matchID, CommandResume, nil, func(_ repository.MatchRepository, m *model.Match, _ time.Time) error {
		if err := requireStatus(m, model.MatchStatusPaused, "resume"); err != nil {
			return err
		}
		m.Status = model.MatchStatusOngoing
		return nil
	})
}

// StartRound 为当前回合开始计时，用于第 2 回合起未自动计时的回合
func (s *MatchService) StartRound(ctx context.Context, matchID uint64) (*MatchDetail, error) {
	return s.mutate(ctx, matchID, CommandStartRound, nil, func(tx repository.MatchRepository, m *model.Match, now time.Time) error {
		if err := requireStatus(m, model.MatchStatusOngoing, "start a round of"); err != nil {
			return err
		}
		r, err := currentRound(ctx, tx, m)
		if err != nil {
			return err
		}
		if r.Ended() {
			return invalidStatef("round %d of match %d has already ended", r.RoundNumber, m.ID)
		}
		if r.StartedAt != nil {
			return invalidStatef("round %d of match %d timer already started", r.RoundNumber, m.ID)
		}
		started := now
		r.StartedAt = &started
		return tx.UpdateRound(ctx, r)
	})
}

type scorePayload struct {
	CompetitorColor model.Color       `json:"competitor_color"`
	ScoreType       model.Technique   `json:"score_type,omitempty"`
	PenaltyType     model.PenaltyType `json:"penalty_type,omitempty"`
}

// RecordScore 当前回合记一次技术得分
func (s *MatchService) RecordScore(ctx context.Context, matchID uint64, color model.Color, technique model.Technique) (*MatchDetail, error) {
	if !color.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown competitor color %q", color))
	}
	if !technique.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown score type %q", technique))
	}
	payload := scorePayload{CompetitorColor: color, ScoreType: technique}
	return s.mutate(ctx, matchID, CommandRecordScore, payload, func(tx repository.MatchRepository, m *model.Match, now time.Time) error {
		if err := requireStatus(m, model.MatchStatusOngoing, "score in"); err != nil {
			return err
		}
		r, err := currentRound(ctx, tx, m)
		if err != nil {
			return err
		}
		entry, err := ApplyScore(m, r, color, technique, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("update round %d: %w", r.RoundNumber, err)
		}
		if err := tx.InsertScoreEntry(ctx, entry); err != nil {
			return fmt.Errorf("insert score entry: %w", err)
		}
		return nil
	})
}

// RecordPenalty 当前回合记一次犯规，color 为犯规方
func (s *MatchService) RecordPenalty(ctx context.Context, matchID uint64, color model.Color, kind model.PenaltyType) (*MatchDetail, error) {
	if !color.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown competitor color %q", color))
	}
	if !kind.Valid() {
		return nil, invalidInput(fmt.Errorf("unknown penalty type %q", kind))
	}
	payload := scorePayload{CompetitorColor: color, PenaltyType: kind}
	return s.mutate(ctx, matchID, CommandRecordPenalty, payload, func(tx repository.MatchRepository, m *model.Match, now time.Time) error {
		if err := requireStatus(m, model.MatchStatusOngoing, "penalize in"); err != nil {
			return err
		}
		r, err := currentRound(ctx, tx, m)
		if err != nil {
			return err
		}
		entry, err := ApplyPenalty(m, r, color, kind, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("update round %d: %w", r.RoundNumber, err)
		}
		if err := tx.InsertPenaltyEntry(ctx, entry); err != nil {
			return fmt.Errorf("insert penalty entry: %w", err)
		}
		return nil
	})
}

// EndRound 结束当前回合；最后一回合结束时比赛完成并按总分判定胜方，否则进入下一回合
func (s *MatchService) EndRound(ctx context.Context, matchID uint64) (*MatchDetail, error) {
	return s.mutate(ctx, matchID, CommandEndRound, nil, func(tx repository.MatchRepository, m *model.Match, now time.Time) error {
		if err := requireStatus(m, model.MatchStatusOngoing, "end a round of"); err != nil {
			return err
		}
		r, err := currentRound(ctx, tx, m)
		if err != nil {
			return err
		}
		if err := FinalizeRound(r, now); err != nil {
			return err
		}
		if err := tx.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("update round %d: %w", r.RoundNumber, err)
		}

		if m.CurrentRound >= m.TotalRounds {
			m.Status = model.MatchStatusCompleted
			m.WinnerColor = DecideMatchWinner(m)
			return nil
		}

		m.CurrentRound++
		next := &model.Round{MatchID: m.ID, RoundNumber: m.CurrentRound}
		if s.cfg.AutoStartRounds {
			started := now
			next.StartedAt = &started
		}
		if err := tx.InsertRound(ctx, next); err != nil {
			return fmt.Errorf("insert round %d: %w", next.RoundNumber, err)
		}
		return nil
	})
}

