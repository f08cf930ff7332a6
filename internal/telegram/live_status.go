package telegram

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/progress"

	botModels "github.com/go-telegram/bot/models"
)

// liveStatus 可编辑的进度消息，运行期间附带 STOP 按钮
type liveStatus struct {
	b         *Bot
	chatID    int64
	messageID int
}

var _ progress.Sink = (*liveStatus)(nil)

// Update 编辑进度消息；final 时移除按钮
func (s *liveStatus) Update(ctx context.Context, text string, final bool) error {
	var markup botModels.ReplyMarkup
	if !final {
		markup = stopKeyboard()
	}
	return s.b.editMessage(ctx, s.chatID, s.messageID, pre(text), markup)
}

// track 发送进度消息，在 run 执行期间周期刷新，结束后写入最终状态
// 进度消息发送失败不影响任务执行
func (b *Bot) track(ctx context.Context, chatID int64, source progress.Source, render func(progress.Snapshot) string, run func()) {
	if render == nil {
		render = progress.Render
	}

	messageID := b.sendMessageWithMarkup(ctx, chatID, pre(render(source.Snapshot())), stopKeyboard())
	done := make(chan struct{})
	var wg sync.WaitGroup
	if messageID != 0 {
		sink := &liveStatus{b: b, chatID: chatID, messageID: messageID}
		reporter := progress.NewReporter(source, sink, b.progressInterval).WithRender(render)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.Run(ctx, done)
		}()
	} else {
		logger.L().Warnf("Progress message unavailable, running without live status: chat_id=%d", chatID)
	}

	run()
	close(done)
	wg.Wait()
}

// scanCounter 扫描类任务的进度来源
type scanCounter struct {
	title    string
	started  time.Time
	count    atomic.Int64
	finished atomic.Bool
	stopped  atomic.Bool
}

func newScanCounter(title string) *scanCounter {
	return &scanCounter{title: title, started: time.Now()}
}

func (c *scanCounter) onStatus(count int) {
	c.count.Store(int64(count))
}

func (c *scanCounter) finish(stopped bool) {
	c.stopped.Store(stopped)
	c.finished.Store(true)
}

// Snapshot 已扫描条数记在 Sent
func (c *scanCounter) Snapshot() progress.Snapshot {
	return progress.Snapshot{
		Title:    c.title,
		Sent:     c.count.Load(),
		Elapsed:  time.Since(c.started),
		Finished: c.finished.Load(),
		Stopped:  c.stopped.Load(),
	}
}

func renderScan(s progress.Snapshot) string {
	status := "scanning"
	switch {
	case s.Stopped:
		status = "stopped"
	case s.Finished:
		status = "finished"
	}
	return fmt.Sprintf("%s (%s)\nScanned %d messages | %s", s.Title, status, s.Sent, s.Elapsed.Truncate(time.Second))
}
