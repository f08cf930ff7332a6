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

// DefaultForwardRecordTTL 投递记录默认保留时长
const DefaultForwardRecordTTL = 7 * 24 * time.Hour

type forwardRecordRepository struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewForwardRecordRepository 创建转发记录仓储实例，ttl<=0 时使用默认值
func NewForwardRecordRepository(db *mongo.Database, ttl time.Duration) ForwardRecordRepository {
	if ttl <= 0 {
		ttl = DefaultForwardRecordTTL
	}
	return &forwardRecordRepository{
		collection: db.Collection("forward_records"),
		ttl:        ttl,
	}
}

// BulkCreateRecords 批量创建转发记录
// 无序写入，单条重复不影响其余记录
func (r *forwardRecordRepository) BulkCreateRecords(ctx context.Context, records []*models.ForwardRecord) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]interface{}, len(records))
	for i, record := range records {
		docs[i] = record
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to bulk create forward records: %w", err)
	}
	return nil
}

// GetSuccessRecordsByTaskID 根据任务ID查询所有成功的转发记录
func (r *forwardRecordRepository) GetSuccessRecordsByTaskID(ctx context.Context, taskID string) ([]*models.ForwardRecord, error) {
	filter := bson.M{
		"task_id": taskID,
		"status":  models.ForwardStatusSuccess,
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query forward records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.ForwardRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode forward records: %w", err)
	}
	return records, nil
}

// SummaryByTaskID 按状态聚合任务记录
func (r *forwardRecordRepository) SummaryByTaskID(ctx context.Context, taskID string) (*models.ForwardTaskSummary, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"task_id": taskID}},
		{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize forward records: %w", err)
	}
	defer cursor.Close(ctx)

	summary := &models.ForwardTaskSummary{TaskID: taskID}
	for cursor.Next(ctx) {
		var doc struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode summary result: %w", err)
		}
		switch doc.Status {
		case models.ForwardStatusSuccess:
			summary.Success = doc.Count
		case models.ForwardStatusFailed:
			summary.Failed = doc.Count
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return summary, nil
}

// DeleteRecordsByTaskID 删除转发记录（撤回后清理）
func (r *forwardRecordRepository) DeleteRecordsByTaskID(ctx context.Context, taskID string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"task_id": taskID}); err != nil {
		return fmt.Errorf("failed to delete forward records: %w", err)
	}
	return nil
}

// EnsureIndexes 确保索引存在
func (r *forwardRecordRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// task_id 索引（用于查询某任务的所有记录）
		{
			Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "status", Value: 1}},
		},
		// TTL 索引
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(r.ttl.Seconds())),
		},
		{
			Keys: bson.D{{Key: "content_id", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for forward_records: %w", err)
	}
	return nil
}
