package telegram

import (
	"context"
	"html"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/models"
)

// messenger bot 客户端中用到的发送与编辑接口，*bot.Bot 实现
type messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*botModels.Message, error)
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*botModels.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// sendMessage 发送消息（统一错误处理，使用 HTML 格式）
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, replyTo ...int) {
	b.sendMessageWithMarkup(ctx, chatID, text, nil, replyTo...)
}

// sendMessageWithMarkup 发送带按钮的消息，返回消息 ID（失败时为 0）
func (b *Bot) sendMessageWithMarkup(ctx context.Context, chatID int64, text string, markup botModels.ReplyMarkup, replyTo ...int) int {
	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   botModels.ParseModeHTML,
		ReplyMarkup: markup,
	}

	if len(replyTo) > 0 && replyTo[0] > 0 {
		params.ReplyParameters = &botModels.ReplyParameters{
			MessageID: replyTo[0],
		}
	}

	msg, err := b.api.SendMessage(ctx, params)
	if err != nil {
		logger.L().Errorf("Failed to send message to chat %d: %v", chatID, err)
		return 0
	}
	return msg.ID
}

// sendErrorMessage 发送错误消息
func (b *Bot) sendErrorMessage(ctx context.Context, chatID int64, message string, replyTo ...int) {
	b.sendMessage(ctx, chatID, "❌ "+html.EscapeString(message), replyTo...)
}

// sendSuccessMessage 发送成功消息
func (b *Bot) sendSuccessMessage(ctx context.Context, chatID int64, message string, replyTo ...int) {
	b.sendMessage(ctx, chatID, "✅ "+message, replyTo...)
}

// editMessage 编辑消息文本，markup 为 nil 时移除按钮
func (b *Bot) editMessage(ctx context.Context, chatID int64, messageID int, text string, markup botModels.ReplyMarkup) error {
	_, err := b.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   botModels.ParseModeHTML,
		ReplyMarkup: markup,
	})
	return err
}

// clearButtons 替换按钮为单个不可用按钮
func (b *Bot) clearButtons(ctx context.Context, chatID int64, messageID int, label string) {
	_, err := b.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: singleButton(label, callbackNoop),
	})
	if err != nil {
		logger.L().Errorf("Failed to edit message markup: %v", err)
	}
}

// answerCallback 回应 callback query（显示顶部提示）
func (b *Bot) answerCallback(ctx context.Context, callbackQueryID, text string, alert bool) {
	_, err := b.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackQueryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		logger.L().Errorf("Failed to answer callback query: %v", err)
	}
}

// pre 等宽文本块（表格）
func pre(text string) string {
	return "<pre>" + html.EscapeString(text) + "</pre>"
}

func singleButton(text, data string) *botModels.InlineKeyboardMarkup {
	return &botModels.InlineKeyboardMarkup{
		InlineKeyboard: [][]botModels.InlineKeyboardButton{
			{{Text: text, CallbackData: data}},
		},
	}
}

// matchCommand 精确匹配命令名，兼容 /cmd@botname 形式
func matchCommand(name string) bot.MatchFunc {
	want := "/" + name
	return func(update *botModels.Update) bool {
		if update.Message == nil {
			return false
		}
		fields := strings.Fields(update.Message.Text)
		if len(fields) == 0 {
			return false
		}
		cmd, _, _ := strings.Cut(fields[0], "@")
		return strings.EqualFold(cmd, want)
	}
}

// commandArgs 命令参数（去掉命令本身）
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// taskArgs 解析 [category] [limit] [chat] 形式的参数，顺序不限
// 非负整数视为条数上限，可识别的分类名视为分类，其余视为频道引用
func taskArgs(args []string, defaultCategory models.Category) (category models.Category, limit int, ref string, err error) {
	category = defaultCategory
	for _, arg := range args {
		if n, convErr := strconv.Atoi(arg); convErr == nil && n >= 0 {
			limit = n
			continue
		}
		if parsed, parseErr := models.ParseCategory(strings.ToLower(arg)); parseErr == nil {
			category = parsed
			continue
		}
		if ref != "" {
			return "", 0, "", errTooManyRefs
		}
		ref = arg
	}
	return category, limit, ref, nil
}
