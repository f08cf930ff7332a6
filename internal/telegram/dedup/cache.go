// Package dedup 目标频道去重缓存
//
// 缓存维护两个身份集合：文件唯一 ID 与 "文件名-大小" 复合键。
// 所有会话共享同一个 Cache，检查、占用与提交都在同一把锁内完成，
// 两个会话并发处理同一条记录时，最多只有一个能拿到发送权。
package dedup

import (
	"fmt"
	"sync"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/models"
)

// HistoryLog 已转发记录的持久化日志（追加写，一行一个唯一 ID）
type HistoryLog interface {
	AppendHistory(contentIDs ...string) error
	ReadHistory() ([]string, error)
}

// Stats 缓存规模
type Stats struct {
	ContentIDs   int
	CompoundKeys int
	InFlight     int
}

// Cache 去重缓存
type Cache struct {
	mu           sync.Mutex
	log          HistoryLog
	contentIDs   map[string]struct{}
	compoundKeys map[string]struct{}
	claimed      map[string]struct{} // 正在发送中的身份键
}

// NewCache 创建空缓存，log 可以为 nil（仅内存）
func NewCache(log HistoryLog) *Cache {
	return &Cache{
		log:          log,
		contentIDs:   make(map[string]struct{}),
		compoundKeys: make(map[string]struct{}),
		claimed:      make(map[string]struct{}),
	}
}

// Load 由目标索引快照与转发日志重建身份集合
// 每次运行前、目标频道重新索引后调用
func (c *Cache) Load(snapshots ...models.DuplicateIndex) error {
	var history []string
	if c.log != nil {
		var err error
		history, err = c.log.ReadHistory()
		if err != nil {
			return fmt.Errorf("failed to read forwarded history: %w", err)
		}
	}

	contentIDs := make(map[string]struct{}, len(history))
	compoundKeys := make(map[string]struct{})
	for _, id := range history {
		if id != "" {
			contentIDs[id] = struct{}{}
		}
	}
	for _, snapshot := range snapshots {
		for _, id := range snapshot.ContentIDs {
			if id != "" {
				contentIDs[id] = struct{}{}
			}
		}
		for _, key := range snapshot.CompoundKeys {
			if key != "" {
				compoundKeys[key] = struct{}{}
			}
		}
	}

	c.mu.Lock()
	c.contentIDs = contentIDs
	c.compoundKeys = compoundKeys
	c.mu.Unlock()

	logger.L().Infof("Dedup cache loaded: content_ids=%d compound_keys=%d history=%d",
		len(contentIDs), len(compoundKeys), len(history))
	return nil
}

// Contains 记录是否已存在于目标频道
func (c *Cache) Contains(record *models.MediaRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.containsLocked(record)
}

// Claim 原子地检查并占用记录的身份键
// 返回 ok=false 表示记录已在目标频道或正被其他会话发送；
// ok=true 时调用方必须在发送失败后调用 release，发送成功后调用 Commit
func (c *Cache) Claim(record *models.MediaRecord) (release func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.containsLocked(record) {
		return nil, false
	}
	keys := claimKeys(record)
	for _, key := range keys {
		if _, busy := c.claimed[key]; busy {
			return nil, false
		}
	}
	for _, key := range keys {
		c.claimed[key] = struct{}{}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.releaseLocked(keys)
			c.mu.Unlock()
		})
	}, true
}

// Commit 记录已成功送达：先追加持久化日志，再更新内存集合
// 幂等。日志写入失败时仍更新内存集合（消息已经发出），并返回错误由调用方终止任务
func (c *Cache) Commit(record *models.MediaRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.releaseLocked(claimKeys(record))

	var appendErr error
	if record.ContentID != "" {
		if _, exists := c.contentIDs[record.ContentID]; !exists && c.log != nil {
			if err := c.log.AppendHistory(record.ContentID); err != nil {
				appendErr = fmt.Errorf("failed to append forwarded history: %w", err)
			}
		}
		c.contentIDs[record.ContentID] = struct{}{}
	}
	if key := record.CompoundKey(); key != "" {
		c.compoundKeys[key] = struct{}{}
	}
	return appendErr
}

// Filter 过滤掉已存在于目标频道的记录，保持原有顺序
func (c *Cache) Filter(records []models.MediaRecord) (fresh []models.MediaRecord, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh = make([]models.MediaRecord, 0, len(records))
	for i := range records {
		if c.containsLocked(&records[i]) {
			skipped++
			continue
		}
		fresh = append(fresh, records[i])
	}
	return fresh, skipped
}

// Stats 返回当前缓存规模
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		ContentIDs:   len(c.contentIDs),
		CompoundKeys: len(c.compoundKeys),
		InFlight:     len(c.claimed),
	}
}

func (c *Cache) containsLocked(record *models.MediaRecord) bool {
	if record.ContentID != "" {
		if _, ok := c.contentIDs[record.ContentID]; ok {
			return true
		}
	}
	if key := record.CompoundKey(); key != "" {
		if _, ok := c.compoundKeys[key]; ok {
			return true
		}
	}
	return false
}

func (c *Cache) releaseLocked(keys []string) {
	for _, key := range keys {
		delete(c.claimed, key)
	}
}

// claimKeys 占用键；没有内容身份时退回到源消息 (chat, msg)，同一条源消息不会被并发发送两次
func claimKeys(record *models.MediaRecord) []string {
	keys := make([]string, 0, 2)
	if record.ContentID != "" {
		keys = append(keys, "id:"+record.ContentID)
	}
	if key := record.CompoundKey(); key != "" {
		keys = append(keys, "ck:"+key)
	}
	if len(keys) == 0 && record.MessageID != 0 {
		keys = append(keys, fmt.Sprintf("msg:%d:%d", record.ChatID, record.MessageID))
	}
	return keys
}
