package transport

import (
	"context"
	"time"
)

// RateLimiter 单会话令牌桶，控制主动请求频率
// 与平台限流信号互补：限流信号由调度器处理，这里只做客户端侧节流
type RateLimiter struct {
	tokens chan struct{}
	stopCh chan struct{}
}

// NewRateLimiter ratePerSecond <= 0 时返回 nil（不限速）
func NewRateLimiter(ratePerSecond int) *RateLimiter {
	if ratePerSecond <= 0 {
		return nil
	}
	limiter := &RateLimiter{
		tokens: make(chan struct{}, ratePerSecond),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < ratePerSecond; i++ {
		limiter.tokens <- struct{}{}
	}
	go limiter.refill(time.Second / time.Duration(ratePerSecond))
	return limiter
}

// Wait 获取一个令牌；nil 限速器直接返回
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopCh:
		return nil
	case <-r.tokens:
		return nil
	}
}

func (r *RateLimiter) refill(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			select {
			case r.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Close 停止补充令牌
func (r *RateLimiter) Close() {
	if r == nil {
		return
	}
	close(r.stopCh)
}
