package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/models"
)

const (
	historyFile = "db_forwarded_history.txt"
	pendingFile = "db_pending_actions.json"
	lockFile    = ".mirror_bot.lock"
)

// FileStore 基于数据目录的 Repository 实现
// 进程内用互斥锁串行，跨进程（bot 与 syncctl）用文件锁串行
type FileStore struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

var _ Repository = (*FileStore)(nil)

// NewFileStore 创建文件存储，目录不存在时自动创建
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
	}, nil
}

// Dir 数据目录
func (s *FileStore) Dir() string { return s.dir }

// IndexFile 源索引文件名
func IndexFile(category models.Category) string {
	if category == models.CategoryBad {
		return "db_bad_quality.json"
	}
	return fmt.Sprintf("db_%s_index.json", category)
}

// TargetFile 目标索引文件名
func TargetFile(category models.Category) string {
	return fmt.Sprintf("db_%s_target.json", category)
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// withLock 同时持有进程内锁与文件锁
func (s *FileStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock data dir: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			logger.L().Warnf("Failed to unlock data dir: dir=%s err=%v", s.dir, err)
		}
	}()
	return fn()
}

// SaveIndex 覆盖写入源索引
func (s *FileStore) SaveIndex(category models.Category, records []models.MediaRecord) error {
	if records == nil {
		records = []models.MediaRecord{}
	}
	return s.withLock(func() error {
		return writeJSON(s.path(IndexFile(category)), records)
	})
}

// LoadIndex 读取源索引
func (s *FileStore) LoadIndex(category models.Category) ([]models.MediaRecord, error) {
	var records []models.MediaRecord
	err := s.withLock(func() error {
		return readJSON(s.path(IndexFile(category)), &records)
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, category)
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveTarget 覆盖写入目标索引
func (s *FileStore) SaveTarget(category models.Category, index models.DuplicateIndex) error {
	if index.ContentIDs == nil {
		index.ContentIDs = []string{}
	}
	if index.CompoundKeys == nil {
		index.CompoundKeys = []string{}
	}
	return s.withLock(func() error {
		return writeJSON(s.path(TargetFile(category)), index)
	})
}

// LoadTargets 读取所有分类的目标索引，缺失的文件跳过
func (s *FileStore) LoadTargets() ([]models.DuplicateIndex, error) {
	var indexes []models.DuplicateIndex
	err := s.withLock(func() error {
		for _, category := range []models.Category{models.CategoryMovie, models.CategorySeries, models.CategoryFull, models.CategoryBad} {
			var index models.DuplicateIndex
			err := readJSON(s.path(TargetFile(category)), &index)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return err
			}
			indexes = append(indexes, index)
		}
		return nil
	})
	return indexes, err
}

// AppendHistory 追加转发日志，每个 ID 一行，写入后落盘
func (s *FileStore) AppendHistory(contentIDs ...string) error {
	if len(contentIDs) == 0 {
		return nil
	}
	return s.withLock(func() error {
		f, err := os.OpenFile(s.path(historyFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer f.Close()

		var b strings.Builder
		for _, id := range contentIDs {
			b.WriteString(id)
			b.WriteByte('\n')
		}
		if _, err := f.WriteString(b.String()); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync history: %w", err)
		}
		return nil
	})
}

// ReadHistory 读取转发日志，文件不存在时返回空
func (s *FileStore) ReadHistory() ([]string, error) {
	var ids []string
	err := s.withLock(func() error {
		var err error
		ids, err = s.readHistoryLocked()
		return err
	})
	return ids, err
}

func (s *FileStore) readHistoryLocked() ([]string, error) {
	f, err := os.Open(s.path(historyFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return ids, nil
}

// CompactHistory 去除日志中的重复行，保持首次出现顺序
func (s *FileStore) CompactHistory() (int, error) {
	removed := 0
	err := s.withLock(func() error {
		ids, err := s.readHistoryLocked()
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(ids))
		var b strings.Builder
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				removed++
				continue
			}
			seen[id] = struct{}{}
			b.WriteString(id)
			b.WriteByte('\n')
		}
		if removed == 0 {
			return nil
		}
		return writeFileAtomic(s.path(historyFile), []byte(b.String()), 0o644)
	})
	return removed, err
}

// SavePending 覆盖写入待确认操作
func (s *FileStore) SavePending(actions []models.PendingAction) error {
	if actions == nil {
		actions = []models.PendingAction{}
	}
	return s.withLock(func() error {
		return writeJSON(s.path(pendingFile), actions)
	})
}

// LoadPending 读取待确认操作（不清除）
func (s *FileStore) LoadPending() ([]models.PendingAction, error) {
	var actions []models.PendingAction
	err := s.withLock(func() error {
		var err error
		actions, err = s.loadPendingLocked()
		return err
	})
	return actions, err
}

// TakePending 原子地读取并清除待确认操作
// 同一批操作只能被取走一次；过期的批次被清除并返回 ErrPendingExpired
func (s *FileStore) TakePending(now time.Time) ([]models.PendingAction, error) {
	var actions []models.PendingAction
	err := s.withLock(func() error {
		loaded, err := s.loadPendingLocked()
		if err != nil {
			return err
		}
		if len(loaded) == 0 {
			return ErrNoPending
		}
		if err := s.removeLocked(pendingFile); err != nil {
			return err
		}
		for i := range loaded {
			if loaded[i].Expired(now) {
				return ErrPendingExpired
			}
		}
		actions = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// ClearPending 丢弃待确认操作
func (s *FileStore) ClearPending() error {
	return s.withLock(func() error {
		return s.removeLocked(pendingFile)
	})
}

func (s *FileStore) loadPendingLocked() ([]models.PendingAction, error) {
	var actions []models.PendingAction
	err := readJSON(s.path(pendingFile), &actions)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (s *FileStore) removeLocked(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// writeFileAtomic 临时文件写入、落盘后重命名
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
