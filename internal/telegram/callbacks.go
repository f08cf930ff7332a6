package telegram

import (
	"context"
	"strings"

	"mirror_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// 回调数据
const (
	callbackStop          = "stop"
	callbackConfirm       = "confirm"
	callbackCancel        = "cancel"
	callbackRecall        = "recall:"
	callbackRecallConfirm = "recall_confirm:"
	callbackRecallCancel  = "recall_cancel"
	callbackNoop          = "noop"
)

func stopKeyboard() *botModels.InlineKeyboardMarkup {
	return singleButton("⏹ STOP", callbackStop)
}

func confirmKeyboard() *botModels.InlineKeyboardMarkup {
	return &botModels.InlineKeyboardMarkup{
		InlineKeyboard: [][]botModels.InlineKeyboardButton{
			{
				{Text: "✅ CONFIRM", CallbackData: callbackConfirm},
				{Text: "❌ CANCEL", CallbackData: callbackCancel},
			},
		},
	}
}

// callbackMessage 回调所在消息，消息不可访问时返回 false
func callbackMessage(query *botModels.CallbackQuery) (chatID int64, messageID int, ok bool) {
	if query.Message.Message == nil {
		return 0, 0, false
	}
	return query.Message.Message.Chat.ID, query.Message.Message.ID, true
}

// handleStopCallback 进度消息上的 STOP 按钮
func (b *Bot) handleStopCallback(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	query := update.CallbackQuery
	b.answerCallback(ctx, query.ID, b.requestStop(), false)
	logger.L().Infof("User %d pressed STOP", query.From.ID)
}

// handleConfirmCallback 计划消息上的 CONFIRM 按钮
func (b *Bot) handleConfirmCallback(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	query := update.CallbackQuery
	chatID, messageID, ok := callbackMessage(query)
	if !ok {
		b.answerCallback(ctx, query.ID, "消息已失效，请使用 /confirm", true)
		return
	}

	b.answerCallback(ctx, query.ID, "开始执行", false)
	b.clearButtons(ctx, chatID, messageID, "⏳ 已确认")
	logger.L().Infof("User %d confirmed pending plan", query.From.ID)
	b.runConfirm(ctx, chatID)
}

// handleCancelCallback 计划消息上的 CANCEL 按钮
func (b *Bot) handleCancelCallback(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	query := update.CallbackQuery
	if err := b.operator.Cancel(); err != nil {
		logger.L().Errorf("Failed to cancel pending actions: %v", err)
		b.answerCallback(ctx, query.ID, "❌ 取消失败", true)
		return
	}
	b.answerCallback(ctx, query.ID, "已丢弃", false)
	if chatID, messageID, ok := callbackMessage(query); ok {
		b.clearButtons(ctx, chatID, messageID, "操作已取消")
	}
}

// handleRecallCallback 处理撤回按钮点击（显示二次确认）
func (b *Bot) handleRecallCallback(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	query := update.CallbackQuery
	taskID := strings.TrimPrefix(query.Data, callbackRecall)

	keyboard := &botModels.InlineKeyboardMarkup{
		InlineKeyboard: [][]botModels.InlineKeyboardButton{
			{
				{Text: "✅ 确认撤回", CallbackData: callbackRecallConfirm + taskID},
				{Text: "❌ 取消", CallbackData: callbackRecallCancel},
			},
		},
	}

	b.answerCallback(ctx, query.ID, "⚠️ 确认撤回本次转发的所有消息？", true)

	if chatID, messageID, ok := callbackMessage(query); ok {
		_, err := b.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
			ChatID:      chatID,
			MessageID:   messageID,
			ReplyMarkup: keyboard,
		})
		if err != nil {
			logger.L().Errorf("Failed to edit message markup: %v", err)
		}
	}

	logger.L().Infof("User %d requested recall confirmation for task %s", query.From.ID, taskID)
}

// handleRecallConfirmCallback 处理确认撤回
func (b *Bot) handleRecallConfirmCallback(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	query := update.CallbackQuery
	taskID := strings.TrimPrefix(query.Data, callbackRecallConfirm)
	logger.L().Infof("User %d confirmed recall for task %s", query.From.ID, taskID)

	chatID, messageID, ok := callbackMessage(query)
	if !ok {
		b.answerCallback(ctx, query.ID, "消息已失效，请使用 /recall "+taskID, true)
		return
	}
	b.answerCallback(ctx, query.ID, "开始撤回", false)
	b.clearButtons(ctx, chatID, messageID, "🗑️ 撤回中")
	b.runRecall(ctx, chatID, taskID)
}

// handleRecallCancelCallback 处理取消撤回
func (b *Bot) handleRecallCancelCallback(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	query := update.CallbackQuery
	logger.L().Infof("User %d canceled recall", query.From.ID)

	b.answerCallback(ctx, query.ID, "操作已取消", false)
	if chatID, messageID, ok := callbackMessage(query); ok {
		b.clearButtons(ctx, chatID, messageID, "操作已取消")
	}
}
