package service

import (
	"errors"
	"fmt"

	"FightScore/internal/repository"
)

// 业务规则错误，调用方用 errors.Is 判断，错误信息中带具体触发的规则
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidInput      = errors.New("invalid input")
)

func invalidTransitionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// lookupErr 将仓储的记录不存在转换为 ErrNotFound，其他错误原样包装
func lookupErr(err error, what string, args ...interface{}) error {
	subject := fmt.Sprintf(what, args...)
	if repository.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, subject)
	}
	return fmt.Errorf("load %s: %w", subject, err)
}
