package service

import (
	"context"
	"time"
)

// MessageService 频道消息记录接口
// Bot API 不提供历史拉取，扫描依赖这里记录下来的频道消息
type MessageService interface {
	// RecordChannelPost 记录新的频道消息
	RecordChannelPost(ctx context.Context, msg *ChannelPostInfo) error

	// HandleEditedCaption 同步频道消息的说明文字修改
	HandleEditedCaption(ctx context.Context, telegramMessageID, chatID int64, caption string) error

	// ForgetMessages 移除已从频道删除的消息
	ForgetMessages(ctx context.Context, chatID int64, telegramMessageIDs []int) error

	// CountByType 统计频道已记录消息的类型分布
	CountByType(ctx context.Context, chatID int64) (map[string]int64, error)
}

// ChannelPostInfo 频道消息 DTO
type ChannelPostInfo struct {
	TelegramMessageID int64
	ChatID            int64
	MessageType       string
	Text              string
	Caption           string
	MediaFileID       string
	MediaFileUniqueID string
	MediaFileName     string
	MediaFileSize     int64
	MediaMimeType     string
	SentAt            time.Time
}
