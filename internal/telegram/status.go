package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// buildPingMessage 构建 /ping 命令的响应文本：各会话身份、运行时间、工作池与数据库
func (b *Bot) buildPingMessage(ctx context.Context) string {
	lines := []string{"🏓 Pong!"}

	if !b.startTime.IsZero() {
		uptime := time.Since(b.startTime)
		lines = append(lines, fmt.Sprintf("⏱ 运行时间: %s", formatDuration(uptime)))
	}

	if b.workerPool != nil {
		stats := b.workerPool.Stats()
		lines = append(lines, fmt.Sprintf("🛠 工作池: %d 个协程（忙 %d），队列 %d/%d",
			stats.Workers, stats.Busy, stats.QueueLength, stats.QueueCapacity))
	}

	if b.db != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := b.db.Client().Ping(dbCtx, nil); err != nil {
			lines = append(lines, fmt.Sprintf("🗄 数据库: ⚠️ %v", err))
		} else {
			lines = append(lines, "🗄 数据库: ✅ 正常")
		}
	}

	sessionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identities := b.operator.Identities(sessionCtx)
	lines = append(lines, fmt.Sprintf("🤖 会话: %d", len(identities)))
	for _, id := range identities {
		if id.Err != nil {
			lines = append(lines, fmt.Sprintf("  • %s: ⚠️ %v", id.Name, id.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("  • %s: ✅ %s", id.Name, id.Identity))
	}

	return strings.Join(lines, "\n")
}

var durationUnits = []struct {
	size  time.Duration
	label string
}{
	{24 * time.Hour, "天"},
	{time.Hour, "小时"},
	{time.Minute, "分钟"},
}

// formatDuration 按天/小时/分钟/秒输出，省略为 0 的单位
func formatDuration(d time.Duration) string {
	d = max(d, 0).Round(time.Second)

	parts := make([]string, 0, 4)
	for _, u := range durationUnits {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.label))
			d -= n * u.size
		}
	}
	if seconds := d / time.Second; seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d秒", seconds))
	}
	return strings.Join(parts, " ")
}
