package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirror_bot/internal/store"
	"mirror_bot/internal/telegram/dedup"
	"mirror_bot/internal/telegram/forward"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/task"
	"mirror_bot/internal/telegram/transport"
)

var (
	sourceChat = transport.Chat{ID: -1001, Username: "source"}
	targetChat = transport.Chat{ID: -1002, Username: "target"}
)

type fakeTransport struct {
	name    string
	chats   map[string]transport.Chat
	history map[int64][]transport.RawMessage
	failAt  error

	mu        sync.Mutex
	delivered []int
	deleted   map[int64][]int
	edited    map[int]string
	nextID    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		name:    "primary",
		chats:   map[string]transport.Chat{"@source": sourceChat, "@target": targetChat},
		history: map[int64][]transport.RawMessage{},
		deleted: map[int64][]int{},
		edited:  map[int]string{},
		nextID:  5000,
	}
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Identity(context.Context) (string, error) { return "@mirror_bot", nil }

func (f *fakeTransport) ResolveConversation(_ context.Context, ref string) (transport.Chat, error) {
	chat, ok := f.chats[ref]
	if !ok {
		return transport.Chat{}, fmt.Errorf("%w: %s", transport.ErrResolve, ref)
	}
	return chat, nil
}

func (f *fakeTransport) IterateHistory(_ context.Context, chat transport.Chat) iter.Seq2[transport.RawMessage, error] {
	return func(yield func(transport.RawMessage, error) bool) {
		for _, msg := range f.history[chat.ID] {
			if !yield(msg, nil) {
				return
			}
		}
		if f.failAt != nil {
			yield(transport.RawMessage{}, f.failAt)
		}
	}
}

func (f *fakeTransport) CopyOrForward(_ context.Context, _, _ int64, messageID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, messageID)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) DeleteMessages(_ context.Context, chatID int64, ids []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[chatID] = append(f.deleted[chatID], ids...)
	return nil
}

func (f *fakeTransport) EditCaption(_ context.Context, _ int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited[messageID] = text
	return nil
}

type memoryCatalog struct {
	mu      sync.Mutex
	records map[int]models.MediaRecord
}

func (c *memoryCatalog) UpsertRecords(_ context.Context, records []models.MediaRecord) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var inserted int64
	for _, r := range records {
		if _, ok := c.records[r.MessageID]; !ok {
			inserted++
		}
		c.records[r.MessageID] = r
	}
	return inserted, nil
}

func (c *memoryCatalog) ListByChat(_ context.Context, chatID int64) ([]models.MediaRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.MediaRecord
	for _, r := range c.records {
		if r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *memoryCatalog) DeleteByMessages(_ context.Context, chatID int64, ids []int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if r, ok := c.records[id]; ok && r.ChatID == chatID {
			delete(c.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (c *memoryCatalog) EnsureIndexes(context.Context) error { return nil }

type memoryRecords struct {
	mu      sync.Mutex
	records []*models.ForwardRecord
}

func (r *memoryRecords) BulkCreateRecords(_ context.Context, records []*models.ForwardRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

func (r *memoryRecords) GetSuccessRecordsByTaskID(_ context.Context, taskID string) ([]*models.ForwardRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ForwardRecord
	for _, rec := range r.records {
		if rec.TaskID == taskID && rec.Status == models.ForwardStatusSuccess {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRecords) SummaryByTaskID(_ context.Context, taskID string) (*models.ForwardTaskSummary, error) {
	return &models.ForwardTaskSummary{TaskID: taskID}, nil
}

func (r *memoryRecords) DeleteRecordsByTaskID(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.TaskID != taskID {
			kept = append(kept, rec)
		}
	}
	r.records = kept
	return nil
}

func (r *memoryRecords) EnsureIndexes(context.Context) error { return nil }

type recordingMessages struct {
	mu        sync.Mutex
	forgotten []int
	captions  map[int64]string
}

func (m *recordingMessages) RecordChannelPost(context.Context, *ChannelPostInfo) error { return nil }

func (m *recordingMessages) HandleEditedCaption(_ context.Context, msgID, _ int64, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captions[msgID] = caption
	return nil
}

func (m *recordingMessages) ForgetMessages(_ context.Context, _ int64, ids []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgotten = append(m.forgotten, ids...)
	return nil
}

func (m *recordingMessages) CountByType(context.Context, int64) (map[string]int64, error) {
	return nil, nil
}

func media(id int, uid, name string, size int64) transport.RawMessage {
	return transport.RawMessage{
		ID:     id,
		ChatID: sourceChat.ID,
		Media:  &transport.Media{ContentID: uid, FileName: name, FileSize: size, Kind: models.MessageTypeDocument},
	}
}

// 从新到旧
func sourceHistory() []transport.RawMessage {
	return []transport.RawMessage{
		media(6, "u6", "Movie.2020.720p.mkv", 700),
		media(5, "u5", "Movie.2020.1080p.mkv", 900),
		media(4, "u4", "Show.S01E02.720p.mkv", 400),
		media(3, "u3", "Show.S01E01.720p.mkv", 300),
		media(2, "u2", "Other.Film.2019.HDCAM.mkv", 200),
		media(1, "u1", "Other.Film.2019.1080p.mkv", 100),
	}
}

type fixture struct {
	svc      *SyncService
	tr       *fakeTransport
	store    *store.FileStore
	cache    *dedup.Cache
	catalog  *memoryCatalog
	records  *memoryRecords
	messages *recordingMessages
	tasks    *task.Manager
}

func noSleep(context.Context, time.Duration, <-chan struct{}) error { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	tr := newFakeTransport()
	tr.history[sourceChat.ID] = sourceHistory()

	f := &fixture{
		tr:       tr,
		store:    fs,
		cache:    dedup.NewCache(fs),
		catalog:  &memoryCatalog{records: map[int]models.MediaRecord{}},
		records:  &memoryRecords{},
		messages: &recordingMessages{captions: map[int64]string{}},
		tasks:    task.NewManager(),
	}

	sessions := []transport.Transport{tr}
	dispatcher := forward.NewDispatcher(sessions, f.cache, f.records, forward.DefaultConfig()).WithSleep(noSleep)
	f.svc, err = NewSyncService(SyncDeps{
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Cache:      f.cache,
		Store:      fs,
		Catalog:    f.catalog,
		Records:    f.records,
		Messages:   f.messages,
		Tasks:      f.tasks,
	}, SyncConfig{SourceRef: "@source", TargetRef: "@target"})
	require.NoError(t, err)
	return f
}

func TestIndexSavesCategoryIndex(t *testing.T) {
	f := newFixture(t)

	var statuses []int
	rep, err := f.svc.Index(context.Background(), "", models.CategorySeries, RunOptions{OnStatus: func(n int) { statuses = append(statuses, n) }})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Records)
	assert.Equal(t, 2, rep.Classes[models.ClassEpisodic])
	assert.Equal(t, int64(2), rep.CatalogInserted)

	saved, err := f.store.LoadIndex(models.CategorySeries)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "u4", saved[0].ContentID)
	assert.NotNil(t, saved[0].Episode)
}

func TestIndexScanFailureDoesNotSave(t *testing.T) {
	f := newFixture(t)
	f.tr.failAt = errors.New("connection reset")

	rep, err := f.svc.Index(context.Background(), "@source", models.CategoryFull, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, 6, rep.Records, "partial count is reported")

	_, err = f.store.LoadIndex(models.CategoryFull)
	assert.ErrorIs(t, err, store.ErrIndexNotFound)
}

func TestIndexUnresolvableSource(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Index(context.Background(), "@missing", models.CategoryFull, RunOptions{})
	assert.ErrorIs(t, err, transport.ErrResolve)
}

func TestBusyWhileAnotherTaskRuns(t *testing.T) {
	f := newFixture(t)
	_, finish, err := f.tasks.Begin(TaskForward)
	require.NoError(t, err)
	defer finish()

	_, err = f.svc.Index(context.Background(), "", models.CategoryFull, RunOptions{})
	assert.ErrorIs(t, err, task.ErrBusy)
}

func TestPlanForwardThenConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tr.history[targetChat.ID] = []transport.RawMessage{
		{ID: 90, ChatID: targetChat.ID, Media: &transport.Media{ContentID: "u5", FileName: "Movie.2020.1080p.mkv", FileSize: 900}},
	}

	_, err := f.svc.Index(ctx, "", models.CategoryMovie, RunOptions{})
	require.NoError(t, err)
	target, err := f.svc.IndexTarget(ctx, "", models.CategoryMovie, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, target.ContentIDs)

	staged, err := f.svc.PlanForward(ctx, models.CategoryMovie, "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, staged.BatchID)
	assert.Equal(t, 3, staged.Plan.Summary.Forwards)
	assert.Equal(t, 1, staged.Plan.Summary.AlreadyPresent)

	pending, err := f.svc.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	rep, err := f.svc.Confirm(ctx, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, rep.Channel)
	assert.Equal(t, 3, rep.Channel.Sent)
	assert.Equal(t, []int{1, 2, 6}, f.tr.delivered, "oldest first")

	pending, err = f.svc.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "confirmed batch is consumed")
	history, err := f.store.ReadHistory()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2", "u6"}, history)

	again, err := f.svc.PlanForward(ctx, models.CategoryMovie, "", 0)
	require.NoError(t, err)
	assert.True(t, again.Plan.Empty())
}

func TestPlanForwardWithoutIndex(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlanForward(context.Background(), models.CategorySeries, "", 0)
	assert.ErrorIs(t, err, store.ErrIndexNotFound)
}

func TestConfirmWithoutPending(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Confirm(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, store.ErrNoPending)
}

func TestConfirmExpiredBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return base }

	_, err := f.svc.Index(ctx, "", models.CategoryMovie, RunOptions{})
	require.NoError(t, err)
	_, err = f.svc.PlanForward(ctx, models.CategoryMovie, "", 0)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return base.Add(DefaultPendingTTL + time.Minute) }
	_, err = f.svc.Confirm(ctx, RunOptions{})
	assert.ErrorIs(t, err, store.ErrPendingExpired)
	assert.Empty(t, f.tr.delivered)

	pending, err := f.svc.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "expired batch is cleared")
}

func TestCancelDiscardsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, "", RunOptions{})
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel())

	_, err = f.svc.Confirm(ctx, RunOptions{})
	assert.ErrorIs(t, err, store.ErrNoPending)
}

func TestAnalyzeThenConfirmDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staged, err := f.svc.Analyze(ctx, "", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, staged.Plan.Summary.LowQuality)
	assert.Equal(t, 1, staged.Plan.Summary.LowerTier)

	rep, err := f.svc.Confirm(ctx, RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, rep.Channel)
	assert.Equal(t, 2, rep.Channel.Sent)
	assert.ElementsMatch(t, []int{2, 6}, f.tr.deleted[sourceChat.ID])
	assert.ElementsMatch(t, []int{2, 6}, f.messages.forgotten)
}

func TestReconcileCleansCatalogOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Index(ctx, "", models.CategoryFull, RunOptions{})
	require.NoError(t, err)
	f.catalog.records[42] = models.MediaRecord{MessageID: 42, ChatID: sourceChat.ID, DisplayName: "gone.mkv"}

	staged, err := f.svc.Reconcile(ctx, "", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, staged.Plan.Summary.Missing)

	rep, err := f.svc.Confirm(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rep.CatalogDeleted)
	assert.Nil(t, rep.Channel)
	assert.Empty(t, f.tr.deleted)
	assert.NotContains(t, f.catalog.records, 42)
	assert.Len(t, f.catalog.records, 6)
}

func TestForwardThenRecall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Index(ctx, "", models.CategoryMovie, RunOptions{})
	require.NoError(t, err)

	res, err := f.svc.Forward(ctx, models.CategoryMovie, "", 2, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	require.Len(t, f.records.records, 2)

	rep, err := f.svc.Recall(ctx, res.TaskID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Records)
	assert.ElementsMatch(t, []int{5001, 5002}, f.tr.deleted[targetChat.ID])
	assert.Empty(t, f.records.records)
}

func TestStatusReportsPending(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Analyze(context.Background(), "", RunOptions{})
	require.NoError(t, err)

	st, err := f.svc.Status()
	require.NoError(t, err)
	assert.Nil(t, st.Task)
	assert.Equal(t, 2, st.Pending)
	assert.NotEmpty(t, st.PendingBatch)
	assert.Equal(t, []string{"primary"}, st.Sessions)
}

func TestIdentities(t *testing.T) {
	f := newFixture(t)

	ids := f.svc.Identities(context.Background())
	require.Len(t, ids, 1)
	assert.Equal(t, "primary", ids[0].Name)
	assert.Equal(t, "@mirror_bot", ids[0].Identity)
	assert.NoError(t, ids[0].Err)
}
