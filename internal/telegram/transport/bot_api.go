package transport

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/go-telegram/bot"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/models"
)

const (
	historyPageSize    = 200
	maxNetworkAttempts = 3
	deleteChunkSize    = 100 // deleteMessages 单次上限
)

// Mode 投递方式
type Mode string

const (
	ModeCopy    Mode = "copy"    // 复制，不带来源
	ModeForward Mode = "forward" // 转发，保留来源
)

// HistoryStore 已记录的频道消息
// Bot API 不提供历史消息拉取，bot 收到的频道消息会落库，历史遍历从这里读取
type HistoryStore interface {
	ListChannelMessages(ctx context.Context, chatID int64, beforeID int64, limit int) ([]*models.Message, error)
}

// BotAPI 基于 go-telegram/bot 的 Transport 实现
type BotAPI struct {
	name    string
	bot     *bot.Bot
	history HistoryStore
	mode    Mode
	limiter *RateLimiter
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ Transport = (*BotAPI)(nil)

// NewBotAPI 创建会话；history 为 nil 时无法遍历历史
func NewBotAPI(name string, b *bot.Bot, history HistoryStore, mode Mode, ratePerSecond int) *BotAPI {
	if mode != ModeForward {
		mode = ModeCopy
	}
	return &BotAPI{
		name:    name,
		bot:     b,
		history: history,
		mode:    mode,
		limiter: NewRateLimiter(ratePerSecond),
		sleep:   sleepContext,
	}
}

// Name 会话名称
func (t *BotAPI) Name() string { return t.name }

// Bot 底层客户端
func (t *BotAPI) Bot() *bot.Bot { return t.bot }

// Close 释放限速器
func (t *BotAPI) Close() { t.limiter.Close() }

// Identity 返回 bot 的用户名
func (t *BotAPI) Identity(ctx context.Context) (string, error) {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get me: %w", err)
	}
	if me.Username != "" {
		return fmt.Sprintf("%s (@%s)", me.FirstName, me.Username), nil
	}
	return me.FirstName, nil
}

// ResolveConversation 解析频道引用
func (t *BotAPI) ResolveConversation(ctx context.Context, ref string) (Chat, error) {
	chatID, err := ParseRef(ref)
	if err != nil {
		return Chat{}, err
	}
	chat, err := t.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return Chat{}, fmt.Errorf("%w: %s: %v", ErrResolve, ref, err)
	}
	return Chat{ID: chat.ID, Title: chat.Title, Username: chat.Username}, nil
}

// IterateHistory 从新到旧分页读取已记录的频道消息
func (t *BotAPI) IterateHistory(ctx context.Context, chat Chat) iter.Seq2[RawMessage, error] {
	return func(yield func(RawMessage, error) bool) {
		if t.history == nil {
			yield(RawMessage{}, fmt.Errorf("session %s has no history store", t.name))
			return
		}

		var before int64
		for {
			if err := ctx.Err(); err != nil {
				yield(RawMessage{}, err)
				return
			}
			page, err := t.history.ListChannelMessages(ctx, chat.ID, before, historyPageSize)
			if err != nil {
				yield(RawMessage{}, fmt.Errorf("failed to list channel messages: %w", err))
				return
			}
			for _, msg := range page {
				if !yield(toRawMessage(msg), nil) {
					return
				}
				before = msg.TelegramMessageID
			}
			if len(page) < historyPageSize {
				return
			}
		}
	}
}

// CopyOrForward 投递一条消息
// 网络错误在适配器内部退避重试；限流与消息级失败立即返回给调度器
func (t *BotAPI) CopyOrForward(ctx context.Context, dest, src int64, messageID int) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxNetworkAttempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter wait error: %w", err)
		}

		newID, err := t.deliver(ctx, dest, src, messageID)
		if err == nil {
			return newID, nil
		}
		if migrated, ok := migrateToChatID(err); ok && migrated != dest {
			logger.L().Warnf("Target chat migrated: session=%s from=%d to=%d", t.name, dest, migrated)
			dest = migrated
			continue
		}
		if !shouldRetryNetwork(err) {
			return 0, mapBotError(t.name, dest, err)
		}

		lastErr = err
		if attempt < maxNetworkAttempts {
			delay := networkBackoff(attempt)
			logger.L().Warnf("Delivery attempt failed: session=%s msg_id=%d attempt=%d retry_in=%s err=%v",
				t.name, messageID, attempt, delay, err)
			if err := t.sleep(ctx, delay); err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("%w: failed after %d attempts: %v", ErrItem, maxNetworkAttempts, lastErr)
}

func (t *BotAPI) deliver(ctx context.Context, dest, src int64, messageID int) (int, error) {
	if t.mode == ModeForward {
		msg, err := t.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
			ChatID:     dest,
			FromChatID: src,
			MessageID:  messageID,
		})
		if err != nil {
			return 0, err
		}
		return msg.ID, nil
	}

	msg, err := t.bot.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     dest,
		FromChatID: src,
		MessageID:  messageID,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// DeleteMessages 批量删除，按平台上限分块
func (t *BotAPI) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	for start := 0; start < len(messageIDs); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(messageIDs))
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait error: %w", err)
		}
		if _, err := t.bot.DeleteMessages(ctx, &bot.DeleteMessagesParams{
			ChatID:     chatID,
			MessageIDs: messageIDs[start:end],
		}); err != nil {
			return mapBotError(t.name, chatID, err)
		}
	}
	return nil
}

// EditCaption 修改媒体说明文字
func (t *BotAPI) EditCaption(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait error: %w", err)
	}
	_, err := t.bot.EditMessageCaption(ctx, &bot.EditMessageCaptionParams{
		ChatID:    chatID,
		MessageID: messageID,
		Caption:   text,
	})
	return mapBotError(t.name, chatID, err)
}

func toRawMessage(msg *models.Message) RawMessage {
	raw := RawMessage{
		ID:      int(msg.TelegramMessageID),
		ChatID:  msg.ChatID,
		Caption: msg.Caption,
		Date:    msg.SentAt,
	}
	if msg.IsMediaMessage() {
		raw.Media = &Media{
			ContentID: msg.MediaFileUniqueID,
			FileName:  msg.MediaFileName,
			FileSize:  msg.MediaFileSize,
			Kind:      msg.MessageType,
		}
	}
	return raw
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
