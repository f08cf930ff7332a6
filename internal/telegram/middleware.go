package telegram

import (
	"context"

	"mirror_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// RequireOwner 中间件：仅允许 Owner 执行（命令与按钮回调）
func (b *Bot) RequireOwner(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		switch {
		case update.Message != nil:
			if update.Message.From == nil {
				return
			}
			if !b.isOwner(update.Message.From.ID) {
				logger.L().Warnf("Non-owner user %d attempted to use owner command", update.Message.From.ID)
				b.sendErrorMessage(ctx, update.Message.Chat.ID, "此命令仅限 Bot Owner 使用")
				return
			}
		case update.CallbackQuery != nil:
			if !b.isOwner(update.CallbackQuery.From.ID) {
				logger.L().Warnf("Non-owner user %d attempted to press %q", update.CallbackQuery.From.ID, update.CallbackQuery.Data)
				b.answerCallback(ctx, update.CallbackQuery.ID, "⚠️ 仅限 Bot Owner 操作", false)
				return
			}
		default:
			return
		}

		next(ctx, botInstance, update)
	}
}

func (b *Bot) isOwner(userID int64) bool {
	_, ok := b.ownerIDs[userID]
	return ok
}
