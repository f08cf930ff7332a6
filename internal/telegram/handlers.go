package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/store"
	"mirror_bot/internal/telegram/forward"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/report"
	"mirror_bot/internal/telegram/scanner"
	"mirror_bot/internal/telegram/service"
	"mirror_bot/internal/telegram/task"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

var errTooManyRefs = errors.New("only one chat reference is allowed")

// registerHandlers 注册所有命令处理器（异步执行，仅 Owner）
func (b *Bot) registerHandlers() {
	commands := []struct {
		name    string
		handler bot.HandlerFunc
	}{
		{"start", b.handleStart},
		{"help", b.handleStart},
		{"ping", b.handlePing},
		{"index", b.handleIndex},
		{"index_target", b.handleIndexTarget},
		{"analyze", b.handleAnalyze},
		{"reconcile", b.handleReconcile},
		{"plan", b.handlePlan},
		{"confirm", b.handleConfirm},
		{"cancel", b.handleCancel},
		{"forward", b.handleForward},
		{"stop", b.handleStop},
		{"status", b.handleStatus},
		{"recall", b.handleRecall},
		{"compact_history", b.handleCompactHistory},
	}
	for _, c := range commands {
		b.bot.RegisterHandlerMatchFunc(matchCommand(c.name),
			b.asyncHandler(b.RequireOwner(c.handler)))
	}

	callbacks := []struct {
		data    string
		match   bot.MatchType
		handler bot.HandlerFunc
	}{
		{callbackStop, bot.MatchTypeExact, b.handleStopCallback},
		{callbackConfirm, bot.MatchTypeExact, b.handleConfirmCallback},
		{callbackCancel, bot.MatchTypeExact, b.handleCancelCallback},
		{callbackRecall, bot.MatchTypePrefix, b.handleRecallCallback},
		{callbackRecallConfirm, bot.MatchTypePrefix, b.handleRecallConfirmCallback},
		{callbackRecallCancel, bot.MatchTypeExact, b.handleRecallCancelCallback},
	}
	for _, c := range callbacks {
		b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, c.data, c.match,
			b.asyncHandler(b.RequireOwner(c.handler)))
	}

	// 频道消息同步执行，保证落库顺序
	b.bot.RegisterHandlerMatchFunc(isChannelUpdate, b.handleChannelUpdate)

	logger.L().Debug("All handlers registered with async execution")
}

const helpText = "👋 频道同步 Bot\n\n" +
	"/index [category] [chat] - 扫描源频道并保存分类索引\n" +
	"/index_target [category] [chat] - 扫描目标频道，重建去重缓存\n" +
	"/analyze [chat] - 生成整理计划（低画质、重复、说明文字）\n" +
	"/reconcile [chat] - 生成外部目录清理计划\n" +
	"/plan [category] [limit] [chat] - 生成转发计划\n" +
	"/confirm - 执行待确认的计划\n" +
	"/cancel - 丢弃待确认的计划\n" +
	"/forward [category] [limit] [chat] - 立即转发\n" +
	"/stop - 停止当前任务\n" +
	"/status [chat_id] - 查看状态，带频道 ID 时附加已记录消息统计\n" +
	"/recall &lt;task_id&gt; - 撤回某次转发\n" +
	"/compact_history - 整理转发日志\n" +
	"/ping - 检查所有会话\n\n" +
	"category: full | movie | series | bad"

// handleStart 处理 /start 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.sendMessage(ctx, update.Message.Chat.ID, helpText)
}

// handlePing 处理 /ping 命令
func (b *Bot) handlePing(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.sendMessage(ctx, update.Message.Chat.ID, b.buildPingMessage(ctx))
}

// handleIndex 处理 /index [category] [chat]
func (b *Bot) handleIndex(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	category, _, ref, err := taskArgs(commandArgs(update.Message.Text), models.CategoryFull)
	if err != nil {
		b.sendErrorMessage(ctx, chatID, "用法: /index [full|movie|series|bad] [chat]")
		return
	}
	if !b.ensureIdle(ctx, chatID) {
		return
	}

	counter := newScanCounter("Index " + string(category))
	var rep service.IndexReport
	b.track(ctx, chatID, counter, renderScan, func() {
		rep, err = b.operator.Index(ctx, ref, category, service.RunOptions{OnStatus: counter.onStatus})
		counter.finish(rep.Stopped || errors.Is(err, scanner.ErrStopped))
	})
	if err != nil {
		b.reportError(ctx, chatID, "索引失败", err)
		return
	}
	if rep.Stopped {
		b.sendMessage(ctx, chatID, fmt.Sprintf("⏹ 索引已停止，已扫描 %d 条，索引未保存", rep.Records))
		return
	}
	b.sendMessage(ctx, chatID, "📚 索引完成\n"+pre(rep.Table()))
}

// handleIndexTarget 处理 /index_target [category] [chat]
func (b *Bot) handleIndexTarget(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	category, _, ref, err := taskArgs(commandArgs(update.Message.Text), models.CategoryFull)
	if err != nil {
		b.sendErrorMessage(ctx, chatID, "用法: /index_target [full|movie|series|bad] [chat]")
		return
	}
	if !b.ensureIdle(ctx, chatID) {
		return
	}

	counter := newScanCounter("Target " + string(category))
	var rep service.TargetReport
	b.track(ctx, chatID, counter, renderScan, func() {
		rep, err = b.operator.IndexTarget(ctx, ref, category, service.RunOptions{OnStatus: counter.onStatus})
		counter.finish(errors.Is(err, scanner.ErrStopped))
	})
	if err != nil {
		b.reportError(ctx, chatID, "目标频道索引失败", err)
		return
	}
	b.sendMessage(ctx, chatID, "🎯 目标频道索引完成\n"+pre(targetTable(rep)))
}

// handleAnalyze 处理 /analyze [chat]
func (b *Bot) handleAnalyze(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.runStaging(ctx, update, "Analyze", b.operator.Analyze)
}

// handleReconcile 处理 /reconcile [chat]
func (b *Bot) handleReconcile(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.runStaging(ctx, update, "Reconcile", b.operator.Reconcile)
}

// runStaging 扫描源频道生成计划，完成后展示确认按钮
func (b *Bot) runStaging(ctx context.Context, update *botModels.Update, title string,
	fn func(ctx context.Context, ref string, opts service.RunOptions) (service.StagedPlan, error)) {
	chatID := update.Message.Chat.ID
	args := commandArgs(update.Message.Text)
	if len(args) > 1 {
		b.sendErrorMessage(ctx, chatID, fmt.Sprintf("用法: /%s [chat]", strings.ToLower(title)))
		return
	}
	ref := ""
	if len(args) == 1 {
		ref = args[0]
	}
	if !b.ensureIdle(ctx, chatID) {
		return
	}

	counter := newScanCounter(title)
	var staged service.StagedPlan
	var err error
	b.track(ctx, chatID, counter, renderScan, func() {
		staged, err = fn(ctx, ref, service.RunOptions{OnStatus: counter.onStatus})
		counter.finish(errors.Is(err, scanner.ErrStopped))
	})
	if err != nil {
		b.reportError(ctx, chatID, title+" 失败", err)
		return
	}
	b.sendPlan(ctx, chatID, title, staged)
}

// handlePlan 处理 /plan [category] [limit] [chat]
func (b *Bot) handlePlan(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	category, limit, ref, err := taskArgs(commandArgs(update.Message.Text), models.CategoryFull)
	if err != nil {
		b.sendErrorMessage(ctx, chatID, "用法: /plan [full|movie|series|bad] [limit] [chat]")
		return
	}

	staged, err := b.operator.PlanForward(ctx, category, ref, limit)
	if err != nil {
		b.reportError(ctx, chatID, "生成转发计划失败", err)
		return
	}
	b.sendPlan(ctx, chatID, "Forward plan", staged)
}

// handleConfirm 处理 /confirm
func (b *Bot) handleConfirm(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.runConfirm(ctx, update.Message.Chat.ID)
}

// handleCancel 处理 /cancel
func (b *Bot) handleCancel(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	if err := b.operator.Cancel(); err != nil {
		b.reportError(ctx, chatID, "取消失败", err)
		return
	}
	b.sendSuccessMessage(ctx, chatID, "待确认的操作已丢弃")
}

// handleForward 处理 /forward [category] [limit] [chat]
func (b *Bot) handleForward(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	category, limit, ref, err := taskArgs(commandArgs(update.Message.Text), models.CategoryFull)
	if err != nil {
		b.sendErrorMessage(ctx, chatID, "用法: /forward [full|movie|series|bad] [limit] [chat]")
		return
	}
	if !b.ensureIdle(ctx, chatID) {
		return
	}

	progress := forward.NewProgress("Forward " + string(category))
	var result forward.Result
	b.track(ctx, chatID, progress, nil, func() {
		result, err = b.operator.Forward(ctx, category, ref, limit, service.RunOptions{Progress: progress})
	})
	if err != nil {
		b.reportError(ctx, chatID, "转发失败", err)
		return
	}

	text := "📊 转发完成\n" + pre(result.Table())
	if result.Stopped {
		text = "⏹ 转发已停止\n" + pre(result.Table())
	}
	var markup botModels.ReplyMarkup
	if result.Sent > 0 {
		markup = singleButton("🗑️ 撤回本次转发", callbackRecall+result.TaskID)
	}
	b.reportToOwners(ctx, chatID, text, markup)
}

// handleStop 处理 /stop
func (b *Bot) handleStop(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	b.sendMessage(ctx, update.Message.Chat.ID, b.requestStop())
}

// handleStatus 处理 /status [chat_id]
func (b *Bot) handleStatus(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	st, err := b.operator.Status()
	if err != nil {
		b.reportError(ctx, chatID, "查询状态失败", err)
		return
	}
	text := "ℹ️ 状态\n" + pre(statusTable(st, time.Now()))

	if args := commandArgs(update.Message.Text); len(args) == 1 {
		channelID, err := strconv.ParseInt(args[0], 10, 64)
		switch {
		case err != nil:
			text += "\n⚠️ 频道 ID 必须是数字"
		case b.messages == nil:
			text += "\n⚠️ 未配置 MongoDB，没有频道消息记录"
		default:
			counts, err := b.messages.CountByType(ctx, channelID)
			if err != nil {
				logger.L().Warnf("Count recorded messages failed: chat_id=%d error=%v", channelID, err)
				text += "\n⚠️ 统计频道消息失败"
				break
			}
			text += fmt.Sprintf("\n📚 频道 %d 已记录消息\n", channelID) + pre(recordedTable(counts))
		}
	}
	b.sendMessage(ctx, chatID, text)
}

// handleRecall 处理 /recall <task_id>
func (b *Bot) handleRecall(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		b.sendErrorMessage(ctx, chatID, "用法: /recall <task_id>")
		return
	}
	b.runRecall(ctx, chatID, args[0])
}

// handleCompactHistory 处理 /compact_history
func (b *Bot) handleCompactHistory(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	chatID := update.Message.Chat.ID
	removed, err := b.operator.CompactHistory()
	if err != nil {
		b.reportError(ctx, chatID, "整理转发日志失败", err)
		return
	}
	b.sendSuccessMessage(ctx, chatID, fmt.Sprintf("转发日志已整理，移除重复行 %d 条", removed))
}

// runConfirm 执行暂存的计划
func (b *Bot) runConfirm(ctx context.Context, chatID int64) {
	if !b.ensureIdle(ctx, chatID) {
		return
	}

	progress := forward.NewProgress("Confirm")
	var rep service.ApplyReport
	var err error
	b.track(ctx, chatID, progress, nil, func() {
		rep, err = b.operator.Confirm(ctx, service.RunOptions{Progress: progress})
	})
	if err != nil {
		b.reportError(ctx, chatID, "执行失败", err)
		return
	}

	var text strings.Builder
	fmt.Fprintf(&text, "✅ 计划已执行\n批次: <code>%s</code>\n", rep.BatchID)
	if rep.CatalogDeleted > 0 {
		fmt.Fprintf(&text, "目录删除: %d 条\n", rep.CatalogDeleted)
	}
	if rep.Channel != nil {
		text.WriteString(pre(rep.Channel.Table()))
	}
	var markup botModels.ReplyMarkup
	if rep.Channel != nil && rep.Channel.Sent > 0 {
		markup = singleButton("🗑️ 撤回本次转发", callbackRecall+rep.Channel.TaskID)
	}
	b.reportToOwners(ctx, chatID, text.String(), markup)
}

// runRecall 撤回某次转发任务
func (b *Bot) runRecall(ctx context.Context, chatID int64, taskID string) {
	if !b.ensureIdle(ctx, chatID) {
		return
	}

	progress := forward.NewProgress("Recall")
	var rep service.RecallReport
	var err error
	b.track(ctx, chatID, progress, nil, func() {
		rep, err = b.operator.Recall(ctx, taskID, service.RunOptions{Progress: progress})
	})
	if err != nil {
		b.reportError(ctx, chatID, "撤回失败", err)
		return
	}
	b.sendMessage(ctx, chatID, fmt.Sprintf("🗑️ 撤回完成: %d 条记录\n%s", rep.Records, pre(rep.Result.Table())))
}

func (b *Bot) requestStop() string {
	if b.operator.Stop() {
		return "⏹ 已请求停止当前任务"
	}
	return "ℹ️ 当前没有运行中的任务"
}

// ensureIdle 已有任务运行时提示并返回 false（服务层仍会再次检查）
func (b *Bot) ensureIdle(ctx context.Context, chatID int64) bool {
	st, err := b.operator.Status()
	if err != nil || st.Task == nil {
		return true
	}
	b.sendErrorMessage(ctx, chatID, busyText(st.Task))
	return false
}

func busyText(t *task.Token) string {
	return fmt.Sprintf("已有任务在运行: %s (%s)，使用 /stop 停止", t.Kind, t.ID)
}

// sendPlan 展示计划摘要与确认按钮
func (b *Bot) sendPlan(ctx context.Context, chatID int64, title string, staged service.StagedPlan) {
	if staged.Plan.Empty() {
		b.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s: 无需任何操作\n%s", title, pre(staged.Plan.Summary.Table())))
		return
	}

	text := fmt.Sprintf("📝 %s: %s\n%s\n共 %d 项操作，批次 <code>%s</code>\n%s 前有效",
		title, staged.Chat.Label(),
		pre(staged.Plan.Summary.Table()),
		len(staged.Plan.Actions), staged.BatchID,
		staged.ExpiresAt.Format("2006-01-02 15:04:05"))
	b.sendMessageWithMarkup(ctx, chatID, text, confirmKeyboard())
}

// reportError 将错误转换为可读提示
func (b *Bot) reportError(ctx context.Context, chatID int64, title string, err error) {
	logger.L().Errorf("%s: %v", title, err)

	var scanErr *scanner.ScanError
	switch {
	case errors.Is(err, task.ErrBusy):
		b.sendErrorMessage(ctx, chatID, "已有任务在运行，使用 /stop 停止")
	case errors.Is(err, store.ErrNoPending):
		b.sendErrorMessage(ctx, chatID, "没有待确认的操作")
	case errors.Is(err, store.ErrPendingExpired):
		b.sendErrorMessage(ctx, chatID, "待确认的操作已过期，请重新生成计划")
	case errors.Is(err, scanner.ErrStopped):
		b.sendMessage(ctx, chatID, "⏹ "+title+": 任务已停止，结果未保存")
	case errors.As(err, &scanErr):
		b.sendErrorMessage(ctx, chatID, fmt.Sprintf("%s: 扫描 %d 条后出错: %v", title, scanErr.Count, scanErr.Err))
	default:
		b.sendErrorMessage(ctx, chatID, fmt.Sprintf("%s: %v", title, err))
	}
}

// reportToOwners 发送报告到发起会话，并抄送其他 Owner
func (b *Bot) reportToOwners(ctx context.Context, originChatID int64, text string, markup botModels.ReplyMarkup) {
	b.sendMessageWithMarkup(ctx, originChatID, text, markup)
	for ownerID := range b.ownerIDs {
		if ownerID == originChatID {
			continue
		}
		b.sendMessageWithMarkup(ctx, ownerID, text, markup)
	}
}

func targetTable(rep service.TargetReport) string {
	return report.KeyValue([][2]string{
		{"Chat", rep.Chat.Label()},
		{"Category", string(rep.Category)},
		{"Content IDs", strconv.Itoa(rep.ContentIDs)},
		{"Compound keys", strconv.Itoa(rep.CompoundKeys)},
		{"Cache content IDs", strconv.Itoa(rep.Cache.ContentIDs)},
		{"Cache compound keys", strconv.Itoa(rep.Cache.CompoundKeys)},
	})
}

func recordedTable(counts map[string]int64) string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	var total int64
	rows := make([][]string, 0, len(types)+1)
	for _, t := range types {
		total += counts[t]
		rows = append(rows, []string{t, strconv.FormatInt(counts[t], 10)})
	}
	rows = append(rows, []string{"total", strconv.FormatInt(total, 10)})
	return report.Table([]string{"Type", "Count"}, rows, report.AlignLeft, report.AlignRight)
}

func statusTable(st service.Status, now time.Time) string {
	running := "idle"
	if st.Task != nil {
		running = fmt.Sprintf("%s %s (%s)", st.Task.Kind, st.Task.ID, formatDuration(now.Sub(st.Task.StartedAt)))
	}
	pending := "none"
	if st.Pending > 0 {
		pending = fmt.Sprintf("%d actions, batch %s", st.Pending, st.PendingBatch)
		if !st.PendingExpires.IsZero() {
			if now.After(st.PendingExpires) {
				pending += ", expired"
			} else {
				pending += ", expires in " + formatDuration(st.PendingExpires.Sub(now))
			}
		}
	}
	return report.KeyValue([][2]string{
		{"Task", running},
		{"Pending", pending},
		{"Cache content IDs", strconv.Itoa(st.Cache.ContentIDs)},
		{"Cache compound keys", strconv.Itoa(st.Cache.CompoundKeys)},
		{"Cache in flight", strconv.Itoa(st.Cache.InFlight)},
		{"Sessions", strings.Join(st.Sessions, ", ")},
	})
}
