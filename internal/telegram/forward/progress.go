package forward

import (
	"sync"
	"sync/atomic"
	"time"

	"mirror_bot/internal/telegram/progress"
)

// 会话状态
const (
	StateWaiting  = "waiting"
	StateRunning  = "running"
	StateCooldown = "cooldown"
	StatePause    = "pause"
	StateDone     = "done"
	StateStopped  = "stopped"
)

// sessionCounters 单会话共享计数器，由会话协程写入、汇报器读取
type sessionCounters struct {
	name      string
	assigned  int64
	sent      atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	cooldowns atomic.Int64
	state     atomic.Value // string
}

func (c *sessionCounters) setState(state string) {
	c.state.Store(state)
}

func (c *sessionCounters) line() progress.SessionLine {
	state, _ := c.state.Load().(string)
	return progress.SessionLine{
		Name:      c.name,
		Assigned:  c.assigned,
		Sent:      c.sent.Load(),
		Skipped:   c.skipped.Load(),
		Failed:    c.failed.Load(),
		Cooldowns: c.cooldowns.Load(),
		State:     state,
	}
}

// Progress 调度进度，实现 progress.Source
type Progress struct {
	title string

	mu       sync.RWMutex
	total    int64
	started  time.Time
	sessions []*sessionCounters

	preSkipped atomic.Int64
	finished   atomic.Bool
	stopped    atomic.Bool
}

// NewProgress 创建进度对象，Run 开始时填充会话信息
func NewProgress(title string) *Progress {
	return &Progress{title: title}
}

func (p *Progress) reset(total, preSkipped int, names []string, parts []int) []*sessionCounters {
	sessions := make([]*sessionCounters, len(names))
	for i, name := range names {
		sessions[i] = &sessionCounters{name: name, assigned: int64(parts[i])}
		sessions[i].setState(StateWaiting)
	}

	p.mu.Lock()
	p.total = int64(total)
	p.started = time.Now()
	p.sessions = sessions
	p.mu.Unlock()

	p.preSkipped.Store(int64(preSkipped))
	p.finished.Store(false)
	p.stopped.Store(false)
	return sessions
}

func (p *Progress) finish(stopped bool) {
	p.stopped.Store(stopped)
	p.finished.Store(true)
}

// Snapshot 汇总所有会话计数器
func (p *Progress) Snapshot() progress.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := progress.Snapshot{
		Title:    p.title,
		Total:    p.total,
		Skipped:  p.preSkipped.Load(),
		Finished: p.finished.Load(),
		Stopped:  p.stopped.Load(),
	}
	if !p.started.IsZero() {
		snap.Elapsed = time.Since(p.started)
	}
	for _, s := range p.sessions {
		line := s.line()
		snap.Sent += line.Sent
		snap.Skipped += line.Skipped
		snap.Failed += line.Failed
		snap.Sessions = append(snap.Sessions, line)
	}
	return snap
}
