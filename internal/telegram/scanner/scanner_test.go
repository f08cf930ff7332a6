package scanner

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mirror_bot/internal/telegram/classifier"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/task"
	"mirror_bot/internal/telegram/transport"
	"mirror_bot/internal/telegram/transport/mocks"
)

var source = transport.Chat{ID: -1001, Username: "source"}

func history(msgs []transport.RawMessage, failAfter error) iter.Seq2[transport.RawMessage, error] {
	return func(yield func(transport.RawMessage, error) bool) {
		for _, msg := range msgs {
			if !yield(msg, nil) {
				return
			}
		}
		if failAfter != nil {
			yield(transport.RawMessage{}, failAfter)
		}
	}
}

func media(id int, uid, name string, size int64) transport.RawMessage {
	return transport.RawMessage{
		ID:     id,
		ChatID: source.ID,
		Media:  &transport.Media{ContentID: uid, FileName: name, FileSize: size, Kind: "document"},
	}
}

func sampleHistory() []transport.RawMessage {
	return []transport.RawMessage{
		media(5, "u5", "Show.S01E02.720p.mkv", 500),
		{ID: 4, ChatID: source.ID, Caption: "text only"},
		media(3, "u3", "Movie.2021.1080p.mkv", 300),
		media(2, "u2", "Movie.2020.HDCAM.mkv", 200),
		media(1, "u1", "Show.S01E01.720p.mkv", 100),
	}
}

func newMock(t *testing.T) *mocks.MockTransport {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Name().Return("boss").AnyTimes()
	return tr
}

func TestScanFiltersByCategory(t *testing.T) {
	tests := []struct {
		category models.Category
		want     []int
	}{
		{models.CategoryFull, []int{5, 3, 2, 1}},
		{models.CategoryMovie, []int{3, 2}},
		{models.CategorySeries, []int{5, 1}},
		{models.CategoryBad, []int{2}},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			tr := newMock(t)
			tr.EXPECT().ResolveConversation(gomock.Any(), "@source").Return(source, nil)
			tr.EXPECT().IterateHistory(gomock.Any(), source).Return(history(sampleHistory(), nil))

			result, err := New(classifier.New(), 0).Scan(context.Background(), tr, "@source", tt.category, nil, nil)
			require.NoError(t, err)

			var ids []int
			for _, r := range result.Records {
				ids = append(ids, r.MessageID)
				assert.Equal(t, source.ID, r.ChatID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestScanClassifiesRecords(t *testing.T) {
	tr := newMock(t)
	tr.EXPECT().ResolveConversation(gomock.Any(), gomock.Any()).Return(source, nil)
	tr.EXPECT().IterateHistory(gomock.Any(), source).Return(history(sampleHistory(), nil))

	result, err := New(nil, 0).Scan(context.Background(), tr, "@source", models.CategoryFull, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 4)

	show := result.Records[0]
	assert.Equal(t, models.ClassEpisodic, show.Classification)
	require.NotNil(t, show.Episode)
	assert.Equal(t, 2, show.Episode.Episode)

	assert.Equal(t, models.ClassMovie, result.Records[1].Classification)
	assert.Nil(t, result.Records[1].Episode)
	assert.Equal(t, models.ClassLowQuality, result.Records[2].Classification)
}

func TestScanPartialOnFailure(t *testing.T) {
	tr := newMock(t)
	failure := errors.New("connection lost")
	tr.EXPECT().ResolveConversation(gomock.Any(), gomock.Any()).Return(source, nil)
	tr.EXPECT().IterateHistory(gomock.Any(), source).Return(history(sampleHistory()[:3], failure))

	result, err := New(nil, 0).Scan(context.Background(), tr, "@source", models.CategoryFull, nil, nil)

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, 2, scanErr.Count)
	assert.ErrorIs(t, err, failure)
	assert.Len(t, result.Records, 2)
}

func TestScanResolveFailure(t *testing.T) {
	tr := newMock(t)
	tr.EXPECT().ResolveConversation(gomock.Any(), "@missing").Return(transport.Chat{}, transport.ErrResolve)

	_, err := New(nil, 0).Scan(context.Background(), tr, "@missing", models.CategoryFull, nil, nil)
	assert.ErrorIs(t, err, transport.ErrResolve)
}

func TestScanStatusCadenceAndStop(t *testing.T) {
	tr := newMock(t)
	tr.EXPECT().ResolveConversation(gomock.Any(), gomock.Any()).Return(source, nil)
	tr.EXPECT().IterateHistory(gomock.Any(), source).Return(history(sampleHistory(), nil))

	token := task.NewToken("index")
	var updates []int
	result, err := New(nil, 2).Scan(context.Background(), tr, "@source", models.CategoryFull, token, func(count int) {
		updates = append(updates, count)
		token.Stop()
	})
	require.NoError(t, err)
	assert.True(t, result.Stopped)
	assert.Equal(t, []int{2}, updates)
	assert.Equal(t, 2, result.Scanned)
	// 第二条是纯文本消息，只计入扫描数
	require.Len(t, result.Records, 1)
	assert.Equal(t, 5, result.Records[0].MessageID)
}

func TestScanStatusCountsSkippedMessages(t *testing.T) {
	tr := newMock(t)
	tr.EXPECT().ResolveConversation(gomock.Any(), gomock.Any()).Return(source, nil)
	tr.EXPECT().IterateHistory(gomock.Any(), source).Return(history(sampleHistory(), nil))

	var updates []int
	result, err := New(nil, 2).Scan(context.Background(), tr, "@source", models.CategorySeries, nil, func(count int) {
		updates = append(updates, count)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, updates)
	assert.Equal(t, 5, result.Scanned)
	assert.Len(t, result.Records, 2)
}

func TestRecordsSkipsNonMatchingMessages(t *testing.T) {
	tr := newMock(t)
	tr.EXPECT().IterateHistory(gomock.Any(), source).Return(history(sampleHistory(), nil))

	var ids []int
	for record, err := range New(nil, 0).Records(context.Background(), tr, source, models.CategoryMovie) {
		require.NoError(t, err)
		ids = append(ids, record.MessageID)
	}
	assert.Equal(t, []int{3, 2}, ids)
}

func TestScanTarget(t *testing.T) {
	tr := newMock(t)
	msgs := append(sampleHistory(), media(6, "u3", "Movie.2021.1080p.mkv", 300))
	tr.EXPECT().ResolveConversation(gomock.Any(), "@target").Return(source, nil)
	tr.EXPECT().IterateHistory(gomock.Any(), source).Return(history(msgs, nil))

	index, chat, err := New(nil, 0).ScanTarget(context.Background(), tr, "@target", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, source, chat)
	assert.Equal(t, []string{"u1", "u2", "u3", "u5"}, index.ContentIDs)
	assert.Contains(t, index.CompoundKeys, "Movie.2021.1080p.mkv-300")
	assert.Len(t, index.CompoundKeys, 4)
}

func TestOrderForDelivery(t *testing.T) {
	records := []models.MediaRecord{
		{MessageID: 3, Episode: &models.EpisodeInfo{Title: "b", Season: 1, Episode: 1}},
		{MessageID: 2, Episode: &models.EpisodeInfo{Title: "a", Season: 2, Episode: 1}},
		{MessageID: 1, Episode: &models.EpisodeInfo{Title: "a", Season: 1, Episode: 3}},
		{MessageID: 0},
	}

	movies := OrderForDelivery(records, models.CategoryMovie)
	assert.Equal(t, []int{0, 1, 2, 3}, messageIDs(movies))
	assert.Equal(t, 3, records[0].MessageID, "input must not be modified")

	series := OrderForDelivery(records, models.CategorySeries)
	assert.Equal(t, []int{1, 2, 3, 0}, messageIDs(series))
}

func messageIDs(records []models.MediaRecord) []int {
	ids := make([]int, len(records))
	for i, r := range records {
		ids[i] = r.MessageID
	}
	return ids
}
