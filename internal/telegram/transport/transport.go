// Package transport 消息平台传输层抽象
//
// 核心逻辑只依赖 Transport 接口；每个独立认证的会话对应一个 Transport 实例。
package transport

import (
	"context"
	"iter"
	"time"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks mirror_bot/internal/telegram/transport Transport

// Chat 已解析的会话（频道）
type Chat struct {
	ID       int64
	Title    string
	Username string
}

// Label 展示用名称
func (c Chat) Label() string {
	switch {
	case c.Username != "":
		return "@" + c.Username
	case c.Title != "":
		return c.Title
	default:
		return formatChatID(c.ID)
	}
}

// Media 消息携带的文件
type Media struct {
	ContentID string // 平台文件唯一 ID
	FileName  string
	FileSize  int64
	Kind      string // video / document / audio
}

// RawMessage 历史消息
type RawMessage struct {
	ID      int
	ChatID  int64
	Caption string
	Media   *Media // 无文件时为 nil
	Date    time.Time
}

// Transport 单个会话的平台能力
type Transport interface {
	// Name 会话名称（日志与进度展示）
	Name() string
	// Identity 会话身份描述，用于连通性检查
	Identity(ctx context.Context) (string, error)
	// ResolveConversation 解析 @username、t.me 链接或数字 ID
	ResolveConversation(ctx context.Context, ref string) (Chat, error)
	// IterateHistory 从新到旧遍历历史消息，序列不可重启
	IterateHistory(ctx context.Context, chat Chat) iter.Seq2[RawMessage, error]
	// CopyOrForward 复制或转发一条消息，返回目标频道中的新消息 ID
	CopyOrForward(ctx context.Context, dest, src int64, messageID int) (int, error)
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error
	EditCaption(ctx context.Context, chatID int64, messageID int, text string) error
}
