package repository

import (
	"context"

	"mirror_bot/internal/telegram/models"
)

// MessageRepository 频道消息数据访问接口
type MessageRepository interface {
	// CreateMessage 记录频道消息（重复消息覆盖）
	CreateMessage(ctx context.Context, message *models.Message) error

	// GetByTelegramID 根据 Telegram 消息 ID 和频道 ID 获取消息
	GetByTelegramID(ctx context.Context, telegramMessageID, chatID int64) (*models.Message, error)

	// UpdateCaption 更新说明文字（频道消息编辑或本系统修改说明后）
	UpdateCaption(ctx context.Context, telegramMessageID, chatID int64, caption string) error

	// DeleteMessages 删除已从频道移除的消息记录
	DeleteMessages(ctx context.Context, chatID int64, telegramMessageIDs []int) (int64, error)

	// ListChannelMessages 按消息 ID 倒序分页，beforeID 为 0 时从最新开始
	ListChannelMessages(ctx context.Context, chatID int64, beforeID int64, limit int) ([]*models.Message, error)

	// CountMessagesByType 按类型统计消息数量
	CountMessagesByType(ctx context.Context, chatID int64) (map[string]int64, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// CatalogRepository 外部媒体目录（对账模式的比对对象）
type CatalogRepository interface {
	// UpsertRecords 写入或覆盖媒体记录，返回新增数量
	UpsertRecords(ctx context.Context, records []models.MediaRecord) (int64, error)

	// ListByChat 列出某频道的全部目录记录
	ListByChat(ctx context.Context, chatID int64) ([]models.MediaRecord, error)

	// DeleteByMessages 删除目录中的指定消息
	DeleteByMessages(ctx context.Context, chatID int64, messageIDs []int) (int64, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// ForwardRecordRepository 投递记录数据访问接口
type ForwardRecordRepository interface {
	// BulkCreateRecords 批量写入投递记录
	BulkCreateRecords(ctx context.Context, records []*models.ForwardRecord) error

	// GetSuccessRecordsByTaskID 查询任务的成功投递记录
	GetSuccessRecordsByTaskID(ctx context.Context, taskID string) ([]*models.ForwardRecord, error)

	// SummaryByTaskID 统计任务的成功与失败数量
	SummaryByTaskID(ctx context.Context, taskID string) (*models.ForwardTaskSummary, error)

	// DeleteRecordsByTaskID 删除任务的投递记录（撤回后清理）
	DeleteRecordsByTaskID(ctx context.Context, taskID string) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}
