// Package store 本地文件持久化：索引快照、转发日志、待确认操作
package store

import (
	"errors"
	"time"

	"mirror_bot/internal/telegram/models"
)

var (
	// ErrIndexNotFound 指定分类尚未建立索引
	ErrIndexNotFound = errors.New("index not found")
	// ErrNoPending 没有待确认的操作
	ErrNoPending = errors.New("no pending actions")
	// ErrPendingExpired 待确认操作已过期（已被清除）
	ErrPendingExpired = errors.New("pending actions expired")
)

// Repository 本地持久化接口
// 文件格式是唯一的持久层，字段名需要跨版本保持稳定
type Repository interface {
	// 源频道索引
	SaveIndex(category models.Category, records []models.MediaRecord) error
	LoadIndex(category models.Category) ([]models.MediaRecord, error)

	// 目标频道去重索引
	SaveTarget(category models.Category, index models.DuplicateIndex) error
	LoadTargets() ([]models.DuplicateIndex, error)

	// 转发日志（追加写）
	AppendHistory(contentIDs ...string) error
	ReadHistory() ([]string, error)
	CompactHistory() (removed int, err error)

	// 待确认操作
	SavePending(actions []models.PendingAction) error
	LoadPending() ([]models.PendingAction, error)
	TakePending(now time.Time) ([]models.PendingAction, error)
	ClearPending() error
}
