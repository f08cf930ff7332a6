package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ForwardRecord 转发记录（每次成功投递一条，用于运行报告）
type ForwardRecord struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	TaskID             string             `bson:"task_id"`              // 任务ID (UUID)
	Session            string             `bson:"session"`              // 执行的会话名称
	SourceChatID       int64              `bson:"source_chat_id"`       // 源频道ID
	SourceMessageID    int64              `bson:"source_message_id"`    // 源频道消息ID
	TargetChatID       int64              `bson:"target_chat_id"`       // 目标频道ID
	ForwardedMessageID int64              `bson:"forwarded_message_id"` // 转发后的消息ID
	ContentID          string             `bson:"content_id"`           // 文件唯一ID
	Status             string             `bson:"status"`               // success/failed
	CreatedAt          time.Time          `bson:"created_at"`           // 创建时间（TTL索引）
}

const (
	ForwardStatusSuccess = "success"
	ForwardStatusFailed  = "failed"
)

// ForwardTaskSummary 单次任务的投递统计
type ForwardTaskSummary struct {
	TaskID  string
	Success int64
	Failed  int64
}
