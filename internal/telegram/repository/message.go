package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mirror_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMessageRepository 消息数据访问层（MongoDB 实现）
type MongoMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoMessageRepository 创建消息 Repository
func NewMongoMessageRepository(db *mongo.Database) *MongoMessageRepository {
	return &MongoMessageRepository{
		collection: db.Collection("channel_messages"),
	}
}

// messageKey 频道消息的唯一键
func messageKey(chatID, telegramMessageID int64) bson.M {
	return bson.M{"chat_id": chatID, "telegram_message_id": telegramMessageID}
}

// CreateMessage 创建消息记录
func (r *MongoMessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	now := time.Now()
	message.CreatedAt = now
	message.UpdatedAt = now

	// 同一频道消息重复推送时覆盖，created_at 保留首次写入时间
	filter := messageKey(message.ChatID, message.TelegramMessageID)

	setFields := bson.M{
		"message_type":         message.MessageType,
		"text":                 message.Text,
		"caption":              message.Caption,
		"media_file_id":        message.MediaFileID,
		"media_file_unique_id": message.MediaFileUniqueID,
		"media_file_name":      message.MediaFileName,
		"media_file_size":      message.MediaFileSize,
		"media_mime_type":      message.MediaMimeType,
		"sent_at":              message.SentAt,
		"updated_at":           message.UpdatedAt,
	}

	update := bson.M{
		"$set":         setFields,
		"$setOnInsert": bson.M{"created_at": message.CreatedAt},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByTelegramID 根据 Telegram 消息 ID 和聊天 ID 获取消息
func (r *MongoMessageRepository) GetByTelegramID(ctx context.Context, telegramMessageID, chatID int64) (*models.Message, error) {
	filter := messageKey(chatID, telegramMessageID)

	var message models.Message
	err := r.collection.FindOne(ctx, filter).Decode(&message)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message not found: message_id=%d, chat_id=%d", telegramMessageID, chatID)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// UpdateCaption 更新消息说明文字
func (r *MongoMessageRepository) UpdateCaption(ctx context.Context, telegramMessageID, chatID int64, caption string) error {
	filter := messageKey(chatID, telegramMessageID)
	update := bson.M{
		"$set": bson.M{
			"caption":    caption,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update caption: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("message not found: message_id=%d, chat_id=%d", telegramMessageID, chatID)
	}
	return nil
}

// DeleteMessages 删除消息记录
func (r *MongoMessageRepository) DeleteMessages(ctx context.Context, chatID int64, telegramMessageIDs []int) (int64, error) {
	if len(telegramMessageIDs) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(telegramMessageIDs))
	for i, id := range telegramMessageIDs {
		ids[i] = int64(id)
	}
	filter := bson.M{
		"chat_id":             chatID,
		"telegram_message_id": bson.M{"$in": ids},
	}

	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return result.DeletedCount, nil
}

// ListChannelMessages 从新到旧分页列出频道消息
func (r *MongoMessageRepository) ListChannelMessages(ctx context.Context, chatID int64, beforeID int64, limit int) ([]*models.Message, error) {
	filter := bson.M{"chat_id": chatID}
	if beforeID > 0 {
		filter["telegram_message_id"] = bson.M{"$lt": beforeID}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "telegram_message_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// CountMessagesByType 按类型统计消息数量
func (r *MongoMessageRepository) CountMessagesByType(ctx context.Context, chatID int64) (map[string]int64, error) {
	pipeline := []bson.M{
		{
			"$match": bson.M{"chat_id": chatID},
		},
		{
			"$group": bson.M{
				"_id":   "$message_type",
				"count": bson.M{"$sum": 1},
			},
		},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by type: %w", err)
	}
	defer cursor.Close(ctx)

	result := make(map[string]int64)
	for cursor.Next(ctx) {
		var doc struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode count result: %w", err)
		}
		result[doc.ID] = doc.Count
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return result, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "telegram_message_id", Value: -1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "media_file_unique_id", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
