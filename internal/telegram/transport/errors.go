package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrItem 单条消息级别的失败（消息失效、无权限、不存在），跳过即可
	ErrItem = errors.New("item failed")
	// ErrResolve 无法解析会话，整个任务失败
	ErrResolve = errors.New("cannot resolve conversation")
)

// CooldownError 平台限流信号，只作用于收到它的会话
type CooldownError struct {
	Session    string
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("session %s rate limited, retry after %s", e.Session, e.RetryAfter)
}

// AsCooldown 提取限流信号
func AsCooldown(err error) (*CooldownError, bool) {
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		return cooldown, true
	}
	return nil, false
}

// IsItemError 是否为可跳过的单条失败
func IsItemError(err error) bool {
	return errors.Is(err, ErrItem)
}
