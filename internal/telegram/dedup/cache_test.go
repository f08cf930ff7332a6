package dedup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirror_bot/internal/telegram/models"
)

type memoryLog struct {
	mu      sync.Mutex
	lines   []string
	failing bool
}

func (l *memoryLog) AppendHistory(ids ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return errors.New("disk full")
	}
	l.lines = append(l.lines, ids...)
	return nil
}

func (l *memoryLog) ReadHistory() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...), nil
}

func record(id, name string, size int64) *models.MediaRecord {
	return &models.MediaRecord{ContentID: id, DisplayName: name, ByteSize: size}
}

func TestLoadMergesSnapshotsAndHistory(t *testing.T) {
	log := &memoryLog{lines: []string{"h1", "h2", ""}}
	cache := NewCache(log)

	err := cache.Load(
		models.DuplicateIndex{ContentIDs: []string{"a"}, CompoundKeys: []string{"movie.mkv-100"}},
		models.DuplicateIndex{ContentIDs: []string{"b", "a"}},
	)
	require.NoError(t, err)

	assert.Equal(t, Stats{ContentIDs: 4, CompoundKeys: 1}, cache.Stats())
	assert.True(t, cache.Contains(record("h1", "", 0)))
	assert.True(t, cache.Contains(record("zzz", "movie.mkv", 100)))
	assert.False(t, cache.Contains(record("zzz", "movie.mkv", 101)))
}

func TestLoadReplacesPreviousState(t *testing.T) {
	cache := NewCache(nil)
	require.NoError(t, cache.Load(models.DuplicateIndex{ContentIDs: []string{"old"}}))
	require.NoError(t, cache.Load(models.DuplicateIndex{ContentIDs: []string{"new"}}))

	assert.False(t, cache.Contains(record("old", "", 0)))
	assert.True(t, cache.Contains(record("new", "", 0)))
}

func TestCommitAppendsOnce(t *testing.T) {
	log := &memoryLog{}
	cache := NewCache(log)
	r := record("id-1", "file.mkv", 42)

	require.NoError(t, cache.Commit(r))
	require.NoError(t, cache.Commit(r))

	assert.Equal(t, []string{"id-1"}, log.lines)
	assert.True(t, cache.Contains(record("", "file.mkv", 42)))
}

func TestCommitWithoutContentIDUsesCompoundKey(t *testing.T) {
	log := &memoryLog{}
	cache := NewCache(log)

	require.NoError(t, cache.Commit(record("", "file.mkv", 42)))
	assert.Empty(t, log.lines)
	assert.True(t, cache.Contains(record("other", "file.mkv", 42)))
}

func TestCommitLogFailureStillBlocksResend(t *testing.T) {
	cache := NewCache(&memoryLog{failing: true})
	r := record("id-1", "", 0)

	err := cache.Commit(r)
	require.Error(t, err)
	assert.True(t, cache.Contains(r))
}

func TestClaimReleasesOnFailure(t *testing.T) {
	cache := NewCache(nil)
	r := record("id-1", "file.mkv", 1)

	release, ok := cache.Claim(r)
	require.True(t, ok)

	_, again := cache.Claim(record("", "file.mkv", 1))
	assert.False(t, again, "compound key is reserved")
	assert.Equal(t, 2, cache.Stats().InFlight)

	release()
	release()
	assert.Equal(t, 0, cache.Stats().InFlight)

	_, ok = cache.Claim(r)
	assert.True(t, ok)
}

func TestClaimRejectsCommitted(t *testing.T) {
	cache := NewCache(nil)
	r := record("id-1", "", 0)

	release, ok := cache.Claim(r)
	require.True(t, ok)
	require.NoError(t, cache.Commit(r))
	release()

	_, ok = cache.Claim(r)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Stats().InFlight)
}

func TestClaimWithoutIdentityUsesSourceMessage(t *testing.T) {
	cache := NewCache(nil)
	bare := &models.MediaRecord{ChatID: -100, MessageID: 7}

	release, ok := cache.Claim(bare)
	require.True(t, ok)

	_, again := cache.Claim(&models.MediaRecord{ChatID: -100, MessageID: 7})
	assert.False(t, again, "same source message is reserved")

	_, other := cache.Claim(&models.MediaRecord{ChatID: -100, MessageID: 8})
	assert.True(t, other)
	assert.Equal(t, 2, cache.Stats().InFlight)

	release()
	_, ok = cache.Claim(bare)
	assert.True(t, ok)
}

func TestCommitWithoutIdentityReleasesClaim(t *testing.T) {
	cache := NewCache(nil)
	bare := &models.MediaRecord{ChatID: -100, MessageID: 7}

	_, ok := cache.Claim(bare)
	require.True(t, ok)
	require.NoError(t, cache.Commit(bare))
	assert.Equal(t, 0, cache.Stats().InFlight)
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	log := &memoryLog{}
	cache := NewCache(log)
	const workers = 32

	var (
		wg    sync.WaitGroup
		sends atomic.Int64
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r := record("shared", "shared.mkv", 7)
			release, ok := cache.Claim(r)
			if !ok {
				return
			}
			sends.Add(1)
			if err := cache.Commit(r); err != nil {
				release()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), sends.Load())
	assert.Equal(t, []string{"shared"}, log.lines)
}

func TestFilterKeepsOrder(t *testing.T) {
	cache := NewCache(nil)
	require.NoError(t, cache.Load(models.DuplicateIndex{ContentIDs: []string{"b"}}))

	fresh, skipped := cache.Filter([]models.MediaRecord{
		*record("a", "", 0), *record("b", "", 0), *record("c", "", 0),
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, fresh, 2)
	assert.Equal(t, "a", fresh[0].ContentID)
	assert.Equal(t, "c", fresh[1].ContentID)
}
