package models

import "time"

// ActionType 待执行操作类型
type ActionType string

const (
	ActionForward     ActionType = "forward"
	ActionDelete      ActionType = "delete"
	ActionEditCaption ActionType = "edit_caption"
)

// ActionTarget 删除操作的作用对象
type ActionTarget string

const (
	TargetChannel ActionTarget = "channel" // 频道消息
	TargetCatalog ActionTarget = "catalog" // 外部目录库
)

// PendingAction 分析阶段生成、等待确认的操作
type PendingAction struct {
	BatchID      string       `json:"batch_id"`
	Type         ActionType   `json:"type"`
	Target       ActionTarget `json:"target,omitempty"`
	ChatID       int64        `json:"chat_id,omitempty"`
	MessageID    int          `json:"msg_id,omitempty"`
	TargetChatID int64        `json:"target_chat_id,omitempty"` // 仅 forward
	Text         string       `json:"text,omitempty"`           // 仅 edit_caption
	Record       *MediaRecord `json:"record,omitempty"`         // 仅 forward
	Reason       string       `json:"reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// NewForward 创建转发操作
func NewForward(record MediaRecord, targetChatID int64) PendingAction {
	return PendingAction{
		Type:         ActionForward,
		ChatID:       record.ChatID,
		MessageID:    record.MessageID,
		TargetChatID: targetChatID,
		Record:       &record,
	}
}

// NewDelete 创建删除操作
func NewDelete(target ActionTarget, chatID int64, messageID int, reason string) PendingAction {
	return PendingAction{
		Type:      ActionDelete,
		Target:    target,
		ChatID:    chatID,
		MessageID: messageID,
		Reason:    reason,
	}
}

// NewEditCaption 创建修改说明文字操作
func NewEditCaption(chatID int64, messageID int, text string) PendingAction {
	return PendingAction{
		Type:      ActionEditCaption,
		Target:    TargetChannel,
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
}

// Expired 是否已超过有效期
func (a *PendingAction) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// StampBatch 为一批操作写入批次 ID 与有效期
func StampBatch(actions []PendingAction, batchID string, now time.Time, ttl time.Duration) {
	for i := range actions {
		actions[i].BatchID = batchID
		actions[i].CreatedAt = now
		actions[i].ExpiresAt = now.Add(ttl)
	}
}
