// Package progress 周期性汇总共享计数器并推送状态视图
package progress

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/report"
)

// DefaultInterval 默认刷新间隔
const DefaultInterval = 5 * time.Second

// SessionLine 单个会话的进度
type SessionLine struct {
	Name      string
	Assigned  int64
	Sent      int64
	Skipped   int64
	Failed    int64
	Cooldowns int64
	State     string
}

// Snapshot 某一时刻的进度视图
type Snapshot struct {
	Title    string
	Total    int64
	Sent     int64
	Skipped  int64
	Failed   int64
	Sessions []SessionLine
	Elapsed  time.Duration
	Finished bool
	Stopped  bool
}

// Processed 已处理条目数
func (s Snapshot) Processed() int64 {
	return s.Sent + s.Skipped + s.Failed
}

// Source 进度来源（调度器计数器等）
type Source interface {
	Snapshot() Snapshot
}

// Sink 进度输出（状态消息编辑等）
type Sink interface {
	Update(ctx context.Context, text string, final bool) error
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(ctx context.Context, text string, final bool) error

// Update 调用函数本身
func (f SinkFunc) Update(ctx context.Context, text string, final bool) error {
	return f(ctx, text, final)
}

// Reporter 进度汇报器
type Reporter struct {
	source   Source
	sink     Sink
	interval time.Duration
	render   func(Snapshot) string
	last     string
}

// NewReporter 创建汇报器，interval <= 0 时使用 DefaultInterval
func NewReporter(source Source, sink Sink, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		source:   source,
		sink:     sink,
		interval: interval,
		render:   Render,
	}
}

// WithRender 替换渲染函数
func (r *Reporter) WithRender(render func(Snapshot) string) *Reporter {
	if render != nil {
		r.render = render
	}
	return r
}

// Run 周期推送进度，done 关闭后推送最终状态并返回
// 内容未变化时不推送（平台会拒绝内容相同的编辑）
func (r *Reporter) Run(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			r.publish(context.WithoutCancel(ctx), true)
			return
		case <-ticker.C:
			r.publish(ctx, false)
		}
	}
}

func (r *Reporter) publish(ctx context.Context, final bool) {
	text := r.render(r.source.Snapshot())
	if text == r.last && !final {
		return
	}
	if err := r.sink.Update(ctx, text, final); err != nil {
		logger.L().Warnf("Failed to publish progress: final=%v err=%v", final, err)
		return
	}
	r.last = text
}

// Render 将进度渲染为文本（总览 + 会话表格）
func Render(s Snapshot) string {
	var b strings.Builder

	status := "running"
	switch {
	case s.Stopped:
		status = "stopped"
	case s.Finished:
		status = "completed"
	}
	title := s.Title
	if title == "" {
		title = "Progress"
	}
	fmt.Fprintf(&b, "%s (%s)\n", title, status)
	fmt.Fprintf(&b, "Processed %d/%d | sent %d | skipped %d | failed %d",
		s.Processed(), s.Total, s.Sent, s.Skipped, s.Failed)
	if s.Elapsed > 0 {
		fmt.Fprintf(&b, " | %s", s.Elapsed.Truncate(time.Second))
	}

	if len(s.Sessions) > 0 {
		rows := make([][]string, 0, len(s.Sessions))
		for _, line := range s.Sessions {
			rows = append(rows, []string{
				line.Name,
				fmt.Sprintf("%d/%d", line.Sent+line.Skipped+line.Failed, line.Assigned),
				strconv.FormatInt(line.Sent, 10),
				strconv.FormatInt(line.Skipped, 10),
				strconv.FormatInt(line.Failed, 10),
				strconv.FormatInt(line.Cooldowns, 10),
				line.State,
			})
		}
		b.WriteString("\n")
		b.WriteString(report.Table(
			[]string{"Session", "Done", "Sent", "Skip", "Fail", "Wait", "State"},
			rows,
			report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignLeft,
		))
	}
	return b.String()
}
