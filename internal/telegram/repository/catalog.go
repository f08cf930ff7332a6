package repository

import (
	"context"
	"fmt"
	"time"

	"mirror_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// catalogDocument 目录文档：媒体记录 + 写入时间
type catalogDocument struct {
	models.MediaRecord `bson:",inline"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

type catalogRepository struct {
	collection *mongo.Collection
}

// NewCatalogRepository 创建媒体目录仓储实例
func NewCatalogRepository(db *mongo.Database) CatalogRepository {
	return &catalogRepository{
		collection: db.Collection("media_catalog"),
	}
}

// UpsertRecords 以 (chat_id, msg_id) 为键批量写入
func (r *catalogRepository) UpsertRecords(ctx context.Context, records []models.MediaRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now()
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, record := range records {
		filter := bson.M{"chat_id": record.ChatID, "msg_id": record.MessageID}
		doc := catalogDocument{MediaRecord: record, UpdatedAt: now}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(doc).
			SetUpsert(true))
	}

	result, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert catalog records: %w", err)
	}
	return result.UpsertedCount, nil
}

// ListByChat 按消息 ID 倒序列出（与扫描顺序一致）
func (r *catalogRepository) ListByChat(ctx context.Context, chatID int64) ([]models.MediaRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "msg_id", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []catalogDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode catalog records: %w", err)
	}

	records := make([]models.MediaRecord, len(docs))
	for i := range docs {
		records[i] = docs[i].MediaRecord
	}
	return records, nil
}

// DeleteByMessages 删除目录记录
func (r *catalogRepository) DeleteByMessages(ctx context.Context, chatID int64, messageIDs []int) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	filter := bson.M{
		"chat_id": chatID,
		"msg_id":  bson.M{"$in": messageIDs},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete catalog records: %w", err)
	}
	return result.DeletedCount, nil
}

// EnsureIndexes 确保索引存在
func (r *catalogRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "msg_id", Value: -1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "unique_id", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for media_catalog: %w", err)
	}
	return nil
}
