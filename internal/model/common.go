package model

import (
	"fmt"
	"strings"
)

// Color 选手方（红方/蓝方），是身份槽位而非真实颜色
type Color string

const (
	ColorRed  Color = "red"
	ColorBlue Color = "blue"
)

// Opponent 返回对手方
func (c Color) Opponent() Color {
	if c == ColorRed {
		return ColorBlue
	}
	return ColorRed
}

// Valid 是否为合法选手方
func (c Color) Valid() bool {
	return c == ColorRed || c == ColorBlue
}

// ParseColor 解析前端传入的选手方
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown competitor color %q", s)
	}
	return c, nil
}

// MatchStatus 比赛状态：upcoming → ongoing ⇄ paused → completed
type MatchStatus string

const (
	MatchStatusUpcoming  MatchStatus = "upcoming"
	MatchStatusOngoing   MatchStatus = "ongoing"
	MatchStatusPaused    MatchStatus = "paused"
	MatchStatusCompleted MatchStatus = "completed"
)

// PenaltyType 犯规类型，仅作描述，不参与计分
type PenaltyType string

const (
	PenaltyGrab        PenaltyType = "grab"
	PenaltyFallDown    PenaltyType = "fall_down"
	PenaltyOutOfBounds PenaltyType = "out_of_bounds"
)

// Valid 是否为已知犯规类型
func (p PenaltyType) Valid() bool {
	switch p {
	case PenaltyGrab, PenaltyFallDown, PenaltyOutOfBounds:
		return true
	}
	return false
}

// ParsePenaltyType 解析犯规类型
func ParsePenaltyType(s string) (PenaltyType, error) {
	p := PenaltyType(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown penalty type %q", s)
	}
	return p, nil
}
