// Package scanner 遍历频道历史，生成媒体记录与目标去重索引
package scanner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/classifier"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/task"
	"mirror_bot/internal/telegram/transport"
)

// DefaultStatusEvery 默认每扫描 1000 条消息回报一次进度
const DefaultStatusEvery = 1000

// ErrStopped 目标扫描被停止，不完整的索引不会返回
var ErrStopped = errors.New("scan stopped")

// StatusFunc 进度回调，参数为已处理的条目数
type StatusFunc func(count int)

// ScanError 遍历中途失败，已收集的记录仍然有效
type ScanError struct {
	Count int
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan aborted after %d records: %v", e.Count, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Result 扫描结果
type Result struct {
	Chat    transport.Chat
	Records []models.MediaRecord
	Scanned int // 遍历过的历史消息数（含不符合分类的）
	Stopped bool
}

// Scanner 频道扫描器
type Scanner struct {
	classifier  *classifier.Classifier
	statusEvery int
}

// New 创建扫描器
func New(c *classifier.Classifier, statusEvery int) *Scanner {
	if c == nil {
		c = classifier.New()
	}
	if statusEvery <= 0 {
		statusEvery = DefaultStatusEvery
	}
	return &Scanner{classifier: c, statusEvery: statusEvery}
}

// Records 惰性生成符合分类的媒体记录
// 序列有限且不可重启，重新遍历意味着从头扫描
func (s *Scanner) Records(ctx context.Context, tr transport.Transport, chat transport.Chat, category models.Category) iter.Seq2[models.MediaRecord, error] {
	return func(yield func(models.MediaRecord, error) bool) {
		for record, err := range s.messages(ctx, tr, chat, category) {
			if err != nil {
				yield(models.MediaRecord{}, err)
				return
			}
			if record == nil {
				continue
			}
			if !yield(*record, nil) {
				return
			}
		}
	}
}

// messages 逐条遍历历史消息；非媒体或不符合分类的消息产出 nil
func (s *Scanner) messages(ctx context.Context, tr transport.Transport, chat transport.Chat, category models.Category) iter.Seq2[*models.MediaRecord, error] {
	return func(yield func(*models.MediaRecord, error) bool) {
		for msg, err := range tr.IterateHistory(ctx, chat) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(s.toRecord(msg, chat, category), nil) {
				return
			}
		}
	}
}

func (s *Scanner) toRecord(msg transport.RawMessage, chat transport.Chat, category models.Category) *models.MediaRecord {
	if msg.Media == nil || msg.Media.ContentID == "" {
		return nil
	}
	result := s.classifier.Classify(msg.Media.FileName, msg.Caption)
	if !classifier.Accepts(category, result) {
		return nil
	}
	record := &models.MediaRecord{
		MessageID:   msg.ID,
		ChatID:      chat.ID,
		ContentID:   msg.Media.ContentID,
		DisplayName: msg.Media.FileName,
		ByteSize:    msg.Media.FileSize,
		Caption:     msg.Caption,
	}
	result.Apply(record)
	return record
}

// Scan 解析频道并收集记录
// 解析失败直接返回错误；遍历失败返回已收集的部分结果与 *ScanError
func (s *Scanner) Scan(ctx context.Context, tr transport.Transport, ref string, category models.Category, token *task.Token, onStatus StatusFunc) (Result, error) {
	chat, err := tr.ResolveConversation(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	logger.L().Infof("Scan started: session=%s chat=%s category=%s", tr.Name(), chat.Label(), category)
	result := Result{Chat: chat}
	for record, err := range s.messages(ctx, tr, chat, category) {
		if err != nil {
			logger.L().Errorf("Scan aborted: chat=%s scanned=%d found=%d err=%v", chat.Label(), result.Scanned, len(result.Records), err)
			return result, &ScanError{Count: len(result.Records), Err: err}
		}
		if token != nil && token.Stopped() {
			result.Stopped = true
			logger.L().Infof("Scan stopped: chat=%s scanned=%d found=%d", chat.Label(), result.Scanned, len(result.Records))
			return result, nil
		}

		result.Scanned++
		if record != nil {
			result.Records = append(result.Records, *record)
		}
		if onStatus != nil && result.Scanned%s.statusEvery == 0 {
			onStatus(result.Scanned)
		}
	}

	logger.L().Infof("Scan completed: chat=%s category=%s scanned=%d found=%d", chat.Label(), category, result.Scanned, len(result.Records))
	return result, nil
}

// ScanTarget 遍历目标频道，构建去重索引
func (s *Scanner) ScanTarget(ctx context.Context, tr transport.Transport, ref string, token *task.Token, onStatus StatusFunc) (models.DuplicateIndex, transport.Chat, error) {
	chat, err := tr.ResolveConversation(ctx, ref)
	if err != nil {
		return models.DuplicateIndex{}, transport.Chat{}, err
	}

	ids := make(map[string]struct{})
	keys := make(map[string]struct{})
	scanned := 0
	for msg, err := range tr.IterateHistory(ctx, chat) {
		if err != nil {
			return models.DuplicateIndex{}, chat, &ScanError{Count: len(ids), Err: err}
		}
		if token != nil && token.Stopped() {
			return models.DuplicateIndex{}, chat, ErrStopped
		}
		scanned++
		if msg.Media == nil {
			continue
		}
		if msg.Media.ContentID != "" {
			ids[msg.Media.ContentID] = struct{}{}
		}
		if key := models.CompoundKey(msg.Media.FileName, msg.Media.FileSize); key != "" {
			keys[key] = struct{}{}
		}
		if onStatus != nil && scanned%s.statusEvery == 0 {
			onStatus(scanned)
		}
	}

	index := models.DuplicateIndex{
		ContentIDs:   sortedKeys(ids),
		CompoundKeys: sortedKeys(keys),
	}
	logger.L().Infof("Target scan completed: chat=%s content_ids=%d compound_keys=%d",
		chat.Label(), len(index.ContentIDs), len(index.CompoundKeys))
	return index, chat, nil
}

// OrderForDelivery 投递顺序
// 剧集按 (剧名, 季, 集) 排序；其他分类按时间从旧到新（历史遍历是从新到旧）
func OrderForDelivery(records []models.MediaRecord, category models.Category) []models.MediaRecord {
	ordered := slices.Clone(records)
	if category == models.CategorySeries {
		sort.SliceStable(ordered, func(i, j int) bool {
			return episodeLess(ordered[i].Episode, ordered[j].Episode)
		})
		return ordered
	}
	slices.Reverse(ordered)
	return ordered
}

func episodeLess(a, b *models.EpisodeInfo) bool {
	if a == nil || b == nil {
		return a != nil && b == nil
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	if a.Season != b.Season {
		return a.Season < b.Season
	}
	return a.Episode < b.Episode
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
