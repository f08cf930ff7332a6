package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 消息类型常量
const (
	MessageTypeText     = "text"
	MessageTypePhoto    = "photo"
	MessageTypeVideo    = "video"
	MessageTypeDocument = "document"
	MessageTypeAudio    = "audio"
)

// Message 频道消息记录
// Bot API 无法拉取历史消息，所以 bot 收到的每条频道消息都会落库，扫描时从这里读取
type Message struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	TelegramMessageID int64              `bson:"telegram_message_id"` // Telegram 消息 ID
	ChatID            int64              `bson:"chat_id"`             // 所属频道 ID

	// 消息内容
	MessageType string `bson:"message_type"`      // 消息类型
	Text        string `bson:"text,omitempty"`    // 文本内容
	Caption     string `bson:"caption,omitempty"` // 媒体说明文字

	// 媒体信息
	MediaFileID       string `bson:"media_file_id,omitempty"`        // 文件 ID
	MediaFileUniqueID string `bson:"media_file_unique_id,omitempty"` // 文件唯一 ID（跨消息稳定）
	MediaFileName     string `bson:"media_file_name,omitempty"`      // 文件名
	MediaFileSize     int64  `bson:"media_file_size,omitempty"`      // 文件大小
	MediaMimeType     string `bson:"media_mime_type,omitempty"`      // MIME 类型

	// 时间信息
	SentAt    time.Time `bson:"sent_at"`    // 发送时间
	CreatedAt time.Time `bson:"created_at"` // 记录创建时间
	UpdatedAt time.Time `bson:"updated_at"` // 记录更新时间
}

// IsMediaMessage 是否为可转存的媒体消息（视频、文件、音频）
func (m *Message) IsMediaMessage() bool {
	switch m.MessageType {
	case MessageTypeVideo, MessageTypeDocument, MessageTypeAudio:
		return m.MediaFileUniqueID != ""
	default:
		return false
	}
}
