package telegram

import (
	"context"
	"time"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/service"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

func isChannelUpdate(update *botModels.Update) bool {
	return update.ChannelPost != nil || update.EditedChannelPost != nil
}

// handleChannelUpdate 记录频道新消息与说明文字修改
// 扫描只能读到这里记录下来的消息
func (b *Bot) handleChannelUpdate(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if b.messages == nil {
		return
	}

	switch {
	case update.ChannelPost != nil:
		post := update.ChannelPost
		if err := b.messages.RecordChannelPost(ctx, channelPostInfo(post)); err != nil {
			logger.L().Errorf("Failed to record channel post: chat_id=%d message_id=%d err=%v", post.Chat.ID, post.ID, err)
		}
	case update.EditedChannelPost != nil:
		post := update.EditedChannelPost
		if err := b.messages.HandleEditedCaption(ctx, int64(post.ID), post.Chat.ID, post.Caption); err != nil {
			logger.L().Errorf("Failed to record caption edit: chat_id=%d message_id=%d err=%v", post.Chat.ID, post.ID, err)
		}
	}
}

// channelPostInfo 提取频道消息的媒体信息
// 相册中的每条消息单独记录
func channelPostInfo(msg *botModels.Message) *service.ChannelPostInfo {
	info := &service.ChannelPostInfo{
		TelegramMessageID: int64(msg.ID),
		ChatID:            msg.Chat.ID,
		MessageType:       models.MessageTypeText,
		Text:              msg.Text,
		Caption:           msg.Caption,
		SentAt:            time.Unix(int64(msg.Date), 0),
	}

	switch {
	case msg.Video != nil:
		info.MessageType = models.MessageTypeVideo
		info.MediaFileID = msg.Video.FileID
		info.MediaFileUniqueID = msg.Video.FileUniqueID
		info.MediaFileName = msg.Video.FileName
		info.MediaFileSize = int64(msg.Video.FileSize)
		info.MediaMimeType = msg.Video.MimeType
	case msg.Document != nil:
		info.MessageType = models.MessageTypeDocument
		info.MediaFileID = msg.Document.FileID
		info.MediaFileUniqueID = msg.Document.FileUniqueID
		info.MediaFileName = msg.Document.FileName
		info.MediaFileSize = int64(msg.Document.FileSize)
		info.MediaMimeType = msg.Document.MimeType
	case msg.Audio != nil:
		info.MessageType = models.MessageTypeAudio
		info.MediaFileID = msg.Audio.FileID
		info.MediaFileUniqueID = msg.Audio.FileUniqueID
		info.MediaFileName = msg.Audio.FileName
		info.MediaFileSize = int64(msg.Audio.FileSize)
		info.MediaMimeType = msg.Audio.MimeType
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		info.MessageType = models.MessageTypePhoto
		info.MediaFileID = largest.FileID
		info.MediaFileUniqueID = largest.FileUniqueID
		info.MediaFileSize = int64(largest.FileSize)
	}
	return info
}
