package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
)

const (
	defaultCooldown       = 5 * time.Second
	maxNetworkBackoff     = 16 * time.Second
	cooldownJitterStep    = 200 * time.Millisecond
	cooldownJitterBuckets = 5
)

// mapBotError 将 Bot API 错误映射为传输层错误
// 限流 -> *CooldownError；消息级失败 -> ErrItem；其他原样返回（网络错误）
func mapBotError(session string, chatID int64, err error) error {
	if err == nil {
		return nil
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &CooldownError{
			Session:    session,
			RetryAfter: cooldownDelay(tooMany.RetryAfter, chatID),
		}
	}

	switch {
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorNotFound):
		return fmt.Errorf("%w: %v", ErrItem, err)
	}

	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return fmt.Errorf("%w: %v", ErrItem, err)
	}
	return err
}

// shouldRetryNetwork 是否为可在适配器内部重试的网络错误
func shouldRetryNetwork(err error) bool {
	if err == nil {
		return false
	}
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return false
	}
	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return false
	}
	switch {
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorUnauthorized),
		errors.Is(err, bot.ErrorNotFound):
		return false
	}
	return true
}

// migrateToChatID 群组升级为超级群后的新 ID
func migrateToChatID(err error) (int64, bool) {
	var migrate *bot.MigrateError
	if !errors.As(err, &migrate) || migrate.MigrateToChatID == 0 {
		return 0, false
	}
	return int64(migrate.MigrateToChatID), true
}

// cooldownDelay 平台给出的等待时间加上按会话错开的抖动，避免多个会话同时恢复
func cooldownDelay(retryAfterSeconds int, chatID int64) time.Duration {
	delay := time.Duration(retryAfterSeconds) * time.Second
	if delay <= 0 {
		delay = defaultCooldown
	}
	return delay + cooldownJitter(chatID)
}

func cooldownJitter(chatID int64) time.Duration {
	if chatID < 0 {
		chatID = -chatID
	}
	return time.Duration(chatID%cooldownJitterBuckets+1) * cooldownJitterStep
}

// networkBackoff 网络错误的指数退避：1s, 2s, 4s ... 上限 maxNetworkBackoff
func networkBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Second << (attempt - 1)
	if delay > maxNetworkBackoff || delay <= 0 {
		return maxNetworkBackoff
	}
	return delay
}
