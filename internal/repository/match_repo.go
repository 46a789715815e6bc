package repository

import (
	"context"
	"database/sql"
	"errors"

	"FightScore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchRepository 比赛、回合与计分流水的持久化
type MatchRepository interface {
	// Transaction 在单个事务中执行 fn，fn 内只能使用传入的 tx
	Transaction(ctx context.Context, fn func(tx MatchRepository) error) error
	// ReadSnapshot 在只读快照中执行 fn，保证多表读取不会看到半完成的写入
	ReadSnapshot(ctx context.Context, fn func(tx MatchRepository) error) error

	CreateMatch(ctx context.Context, m *model.Match) error
	GetMatch(ctx context.Context, id uint64) (*model.Match, error)
	// GetMatchForUpdate 读取并锁定比赛行（SELECT ... FOR UPDATE），需在事务中调用
	GetMatchForUpdate(ctx context.Context, id uint64) (*model.Match, error)
	GetMatchByUUID(ctx context.Context, matchUUID string) (*model.Match, error)
	ListMatches(ctx context.Context) ([]*model.Match, error)
	ListMatchesByStatus(ctx context.Context, statuses ...model.MatchStatus) ([]*model.Match, error)
	UpdateMatch(ctx context.Context, m *model.Match) error

	GetRoundsForMatch(ctx context.Context, matchID uint64) ([]*model.Round, error)
	GetCurrentRound(ctx context.Context, matchID uint64, roundNumber int) (*model.Round, error)
	InsertRound(ctx context.Context, r *model.Round) error
	UpdateRound(ctx context.Context, r *model.Round) error

	InsertScoreEntry(ctx context.Context, e *model.ScoreEntry) error
	InsertPenaltyEntry(ctx context.Context, e *model.PenaltyEntry) error
	ListScoreEntries(ctx context.Context, matchID uint64) ([]*model.ScoreEntry, error)
	ListPenaltyEntries(ctx context.Context, matchID uint64) ([]*model.PenaltyEntry, error)

	InsertCommand(ctx context.Context, c *model.MatchCommand) error
	ListCommands(ctx context.Context, matchID uint64) ([]*model.MatchCommand, error)
}

// IsNotFound 记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// timestamp 为关键字，需由方言转义
var byTimestamp = clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}

type matchRepository struct {
	db *gorm.DB
}

// NewMatchRepository 创建比赛仓储
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) Transaction(ctx context.Context, fn func(tx MatchRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&matchRepository{db: tx})
	})
}

func (r *matchRepository) ReadSnapshot(ctx context.Context, fn func(tx MatchRepository) error) error {
	var opts *sql.TxOptions
	if r.db.Dialector.Name() == "postgres" {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&matchRepository{db: tx})
	}, opts)
}

func (r *matchRepository) CreateMatch(ctx context.Context, m *model.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *matchRepository) GetMatch(ctx context.Context, id uint64) (*model.Match, error) {
	var m model.Match
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepository) GetMatchForUpdate(ctx context.Context, id uint64) (*model.Match, error) {
	q := r.db.WithContext(ctx)
	// SQLite 不支持行锁，依赖库级写锁
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.Match
	if err := q.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepository) GetMatchByUUID(ctx context.Context, matchUUID string) (*model.Match, error) {
	var m model.Match
	if err := r.db.WithContext(ctx).Where("match_uuid = ?", matchUUID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepository) ListMatches(ctx context.Context) ([]*model.Match, error) {
	var list []*model.Match
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *matchRepository) ListMatchesByStatus(ctx context.Context, statuses ...model.MatchStatus) ([]*model.Match, error) {
	var list []*model.Match
	db := r.db.WithContext(ctx).Model(&model.Match{})
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		db = db.Where("status IN ?", values)
	}
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *matchRepository) UpdateMatch(ctx context.Context, m *model.Match) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *matchRepository) GetRoundsForMatch(ctx context.Context, matchID uint64) ([]*model.Round, error) {
	var list []*model.Round
	if err := r.db.WithContext(ctx).Where("match_id = ?", matchID).Order("round_number ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *matchRepository) GetCurrentRound(ctx context.Context, matchID uint64, roundNumber int) (*model.Round, error) {
	var round model.Round
	if err := r.db.WithContext(ctx).
		Where("match_id = ? AND round_number = ?", matchID, roundNumber).
		First(&round).Error; err != nil {
		return nil, err
	}
	return &round, nil
}

func (r *matchRepository) InsertRound(ctx context.Context, round *model.Round) error {
	return r.db.WithContext(ctx).Create(round).Error
}

func (r *matchRepository) UpdateRound(ctx context.Context, round *model.Round) error {
	return r.db.WithContext(ctx).Save(round).Error
}

func (r *matchRepository) InsertScoreEntry(ctx context.Context, e *model.ScoreEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *matchRepository) InsertPenaltyEntry(ctx context.Context, e *model.PenaltyEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *matchRepository) ListScoreEntries(ctx context.Context, matchID uint64) ([]*model.ScoreEntry, error) {
	var list []*model.ScoreEntry
	if err := r.db.WithContext(ctx).Where("match_id = ?", matchID).
		Order(byTimestamp).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *matchRepository) ListPenaltyEntries(ctx context.Context, matchID uint64) ([]*model.PenaltyEntry, error) {
	var list []*model.PenaltyEntry
	if err := r.db.WithContext(ctx).Where("match_id = ?", matchID).
		Order(byTimestamp).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *matchRepository) InsertCommand(ctx context.Context, c *model.MatchCommand) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *matchRepository) ListCommands(ctx context.Context, matchID uint64) ([]*model.MatchCommand, error) {
	var list []*model.MatchCommand
	if err := r.db.WithContext(ctx).Where("match_id = ?", matchID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
