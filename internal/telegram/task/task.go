// Package task 单任务互斥与协作式停止
package task

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy 已有任务在运行
var ErrBusy = errors.New("another task is running")

// Token 协作式停止令牌
// 工作协程在每条消息前检查 Stopped()；正在进行的平台调用不会被中断
type Token struct {
	ID        string
	Kind      string
	StartedAt time.Time

	once sync.Once
	done chan struct{}
}

// NewToken 创建独立令牌（不经过 Manager，便于测试与离线命令）
func NewToken(kind string) *Token {
	return &Token{
		ID:        uuid.New().String(),
		Kind:      kind,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Stop 请求停止，可重复调用
func (t *Token) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Stopped 是否已请求停止
func (t *Token) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done 停止信号
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Manager 同一时间只允许一个长任务（索引、分析、转发）
type Manager struct {
	mu      sync.Mutex
	current *Token
}

// NewManager 创建任务管理器
func NewManager() *Manager {
	return &Manager{}
}

// Begin 开始新任务，返回令牌与结束函数；已有任务时返回 ErrBusy
func (m *Manager) Begin(kind string) (*Token, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, nil, ErrBusy
	}
	token := NewToken(kind)
	m.current = token

	finish := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.current == token {
			m.current = nil
		}
	}
	return token, finish, nil
}

// Stop 请求当前任务停止，没有任务时返回 false
func (m *Manager) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return false
	}
	m.current.Stop()
	return true
}

// Current 当前任务，没有时返回 nil
func (m *Manager) Current() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
