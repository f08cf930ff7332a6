package service

import (
	"context"
	"fmt"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/repository"
)

// MessageServiceImpl 消息服务实现
type MessageServiceImpl struct {
	messageRepo repository.MessageRepository
}

// NewMessageService 创建消息服务
func NewMessageService(messageRepo repository.MessageRepository) MessageService {
	return &MessageServiceImpl{messageRepo: messageRepo}
}

// RecordChannelPost 记录频道消息
func (s *MessageServiceImpl) RecordChannelPost(ctx context.Context, msg *ChannelPostInfo) error {
	message := &models.Message{
		TelegramMessageID: msg.TelegramMessageID,
		ChatID:            msg.ChatID,
		MessageType:       msg.MessageType,
		Text:              msg.Text,
		Caption:           msg.Caption,
		MediaFileID:       msg.MediaFileID,
		MediaFileUniqueID: msg.MediaFileUniqueID,
		MediaFileName:     msg.MediaFileName,
		MediaFileSize:     msg.MediaFileSize,
		MediaMimeType:     msg.MediaMimeType,
		SentAt:            msg.SentAt,
	}

	if err := s.messageRepo.CreateMessage(ctx, message); err != nil {
		logger.L().Errorf("Failed to create channel post: chat_id=%d, message_id=%d, error=%v",
			msg.ChatID, msg.TelegramMessageID, err)
		return fmt.Errorf("failed to record channel post: %w", err)
	}

	logger.L().Debugf("Channel post recorded: chat_id=%d, message_id=%d, type=%s",
		msg.ChatID, msg.TelegramMessageID, msg.MessageType)
	return nil
}

// HandleEditedCaption 处理说明文字编辑
func (s *MessageServiceImpl) HandleEditedCaption(ctx context.Context, telegramMessageID, chatID int64, caption string) error {
	if err := s.messageRepo.UpdateCaption(ctx, telegramMessageID, chatID, caption); err != nil {
		logger.L().Errorf("Failed to update edited caption: chat_id=%d, message_id=%d, error=%v",
			chatID, telegramMessageID, err)
		return fmt.Errorf("failed to record caption edit: %w", err)
	}

	logger.L().Infof("Caption edit recorded: chat_id=%d, message_id=%d", chatID, telegramMessageID)
	return nil
}

// ForgetMessages 删除消息记录
func (s *MessageServiceImpl) ForgetMessages(ctx context.Context, chatID int64, telegramMessageIDs []int) error {
	deleted, err := s.messageRepo.DeleteMessages(ctx, chatID, telegramMessageIDs)
	if err != nil {
		return fmt.Errorf("failed to forget messages: %w", err)
	}

	logger.L().Infof("Messages forgotten: chat_id=%d, requested=%d, deleted=%d", chatID, len(telegramMessageIDs), deleted)
	return nil
}

// CountByType 统计频道已记录消息的类型分布
func (s *MessageServiceImpl) CountByType(ctx context.Context, chatID int64) (map[string]int64, error) {
	counts, err := s.messageRepo.CountMessagesByType(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to count recorded messages: %w", err)
	}
	return counts, nil
}
