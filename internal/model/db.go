package model

import (
	"time"

	"gorm.io/datatypes"
)

// Match 一场红蓝双方的比赛
// RedTotalScore/BlueTotalScore 为各回合得分之和，随每次计分增量更新
type Match struct {
	ID                    uint64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MatchUUID             string      `gorm:"column:match_uuid;type:varchar(64);uniqueIndex;not null" json:"match_uuid"`
	WeightCategory        string      `gorm:"column:weight_category;type:varchar(64);not null" json:"weight_category"`
	RedCompetitorName     string      `gorm:"column:red_competitor_name;type:varchar(128);not null" json:"red_competitor_name"`
	RedCompetitorCountry  string      `gorm:"column:red_competitor_country;type:varchar(64);not null" json:"red_competitor_country"`
	BlueCompetitorName    string      `gorm:"column:blue_competitor_name;type:varchar(128);not null" json:"blue_competitor_name"`
	BlueCompetitorCountry string      `gorm:"column:blue_competitor_country;type:varchar(64);not null" json:"blue_competitor_country"`
	Status                MatchStatus `gorm:"column:status;type:varchar(16);not null;default:upcoming" json:"status"`
	CurrentRound          int         `gorm:"column:current_round;not null;default:1" json:"current_round"`
	TotalRounds           int         `gorm:"column:total_rounds;not null;default:3" json:"total_rounds"`
	RoundDurationMinutes  int         `gorm:"column:round_duration_minutes;not null;default:2" json:"round_duration_minutes"`
	RedTotalScore         int         `gorm:"column:red_total_score;not null;default:0" json:"red_total_score"`
	BlueTotalScore        int         `gorm:"column:blue_total_score;not null;default:0" json:"blue_total_score"`
	WinnerColor           *Color      `gorm:"column:winner_color;type:varchar(8)" json:"winner_color"`
	CreatedAt             time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Round 比赛中的一个回合，(match_id, round_number) 唯一
type Round struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MatchID         uint64     `gorm:"column:match_id;not null;uniqueIndex:uq_match_round" json:"match_id"`
	RoundNumber     int        `gorm:"column:round_number;not null;uniqueIndex:uq_match_round" json:"round_number"`
	RedScore        int        `gorm:"column:red_score;not null;default:0" json:"red_score"`
	BlueScore       int        `gorm:"column:blue_score;not null;default:0" json:"blue_score"`
	RedPenalties    int        `gorm:"column:red_penalties;not null;default:0" json:"red_penalties"`
	BluePenalties   int        `gorm:"column:blue_penalties;not null;default:0" json:"blue_penalties"`
	WinnerColor     *Color     `gorm:"column:winner_color;type:varchar(8)" json:"winner_color"`
	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at"`
	EndedAt         *time.Time `gorm:"column:ended_at" json:"ended_at"`
	DurationSeconds *int       `gorm:"column:duration_seconds" json:"duration_seconds"`
}

// Ended 回合是否已结束
func (r *Round) Ended() bool { return r.EndedAt != nil }

// ScoreEntry 得分流水，写入后不可修改
type ScoreEntry struct {
	ID              uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MatchID         uint64    `gorm:"column:match_id;not null;index" json:"match_id"`
	RoundID         uint64    `gorm:"column:round_id;not null;index" json:"round_id"`
	CompetitorColor Color     `gorm:"column:competitor_color;type:varchar(8);not null" json:"competitor_color"`
	ScoreType       Technique `gorm:"column:score_type;type:varchar(32);not null" json:"score_type"`
	Points          int       `gorm:"column:points;not null" json:"points"` // 计分时的分值快照
	Timestamp       time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
}

// PenaltyEntry 犯规流水，CompetitorColor 为犯规方
type PenaltyEntry struct {
	ID              uint64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MatchID         uint64      `gorm:"column:match_id;not null;index" json:"match_id"`
	RoundID         uint64      `gorm:"column:round_id;not null;index" json:"round_id"`
	CompetitorColor Color       `gorm:"column:competitor_color;type:varchar(8);not null" json:"competitor_color"`
	PenaltyType     PenaltyType `gorm:"column:penalty_type;type:varchar(32);not null" json:"penalty_type"`
	Timestamp       time.Time   `gorm:"column:timestamp;not null" json:"timestamp"`
}

// MatchCommand 裁判操作记录，与对应命令在同一事务内写入
type MatchCommand struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	MatchID   uint64         `gorm:"column:match_id;not null;index" json:"match_id"`
	Command   string         `gorm:"column:command;type:varchar(32);not null" json:"command"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Match) TableName() string        { return "matches" }
func (Round) TableName() string        { return "rounds" }
func (ScoreEntry) TableName() string   { return "score_entries" }
func (PenaltyEntry) TableName() string { return "penalty_entries" }
func (MatchCommand) TableName() string { return "match_commands" }

// AllModels AutoMigrate 顺序
func AllModels() []interface{} {
	return []interface{}{
		&Match{},
		&Round{},
		&ScoreEntry{},
		&PenaltyEntry{},
		&MatchCommand{},
	}
}
