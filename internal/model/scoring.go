package model

import (
	"fmt"
	"strings"
)

// Technique 得分技术动作
type Technique string

const (
	TechniquePunch           Technique = "punch"
	TechniqueBodyKick        Technique = "body_kick"
	TechniqueHeadKick        Technique = "head_kick"
	TechniqueTurningBodyKick Technique = "turning_body_kick"
	TechniqueTurningHeadKick Technique = "turning_head_kick"
)

// PenaltyPoints 每次犯规记给对手的分数，与犯规类型无关
const PenaltyPoints = 1

// PenaltyDisqualifyLimit 单回合犯规达到该次数即判负该回合
const PenaltyDisqualifyLimit = 5

var techniquePoints = map[Technique]int{
	TechniquePunch:           1,
	TechniqueBodyKick:        2,
	TechniqueHeadKick:        3,
	TechniqueTurningBodyKick: 4,
	TechniqueTurningHeadKick: 5,
}

// Points 技术动作对应分值。未知动作应在入参校验时拦截，这里直接 panic
func (t Technique) Points() int {
	p, ok := techniquePoints[t]
	if !ok {
		panic(fmt.Sprintf("model: no point value for technique %q", string(t)))
	}
	return p
}

// Valid 是否为已知技术动作
func (t Technique) Valid() bool {
	_, ok := techniquePoints[t]
	return ok
}

// ParseTechnique 解析技术动作
func ParseTechnique(s string) (Technique, error) {
	t := Technique(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown score type %q", s)
	}
	return t, nil
}

// techniques 按分值升序返回全部技术动作
func techniques() []Technique {
	return []Technique{
		TechniquePunch,
		TechniqueBodyKick,
		TechniqueHeadKick,
		TechniqueTurningBodyKick,
		TechniqueTurningHeadKick,
	}
}
