package repository

import (
	"context"
	"strings"
	"testing"

	"mirror_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestCatalogRepositoryUpsertRecords(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &catalogRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 2},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{
				bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "a"}},
				bson.D{{Key: "index", Value: 1}, {Key: "_id", Value: "b"}},
			}},
		))

		inserted, err := repo.UpsertRecords(context.Background(), []models.MediaRecord{
			{MessageID: 1, ChatID: -100, ContentID: "u1", DisplayName: "a.mkv"},
			{MessageID: 2, ChatID: -100, ContentID: "u2", DisplayName: "b.mkv"},
		})
		if err != nil {
			t.Fatalf("UpsertRecords failed: %v", err)
		}
		if inserted != 2 {
			t.Fatalf("unexpected upserted count: got %d, want 2", inserted)
		}
	})

	mt.Run("empty input", func(mt *mtest.T) {
		repo := &catalogRepository{collection: mt.Coll}
		inserted, err := repo.UpsertRecords(context.Background(), nil)
		if err != nil || inserted != 0 {
			t.Fatalf("expected no-op, got %d, %v", inserted, err)
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := &catalogRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11000,
			Name:    "DuplicateKey",
			Message: "mock duplicate",
		}))

		_, err := repo.UpsertRecords(context.Background(), []models.MediaRecord{{MessageID: 1, ChatID: -100}})
		if err == nil || !strings.Contains(err.Error(), "failed to upsert catalog records") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestCatalogRepositoryListByChat(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &catalogRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			messageNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "msg_id", Value: 9},
				{Key: "chat_id", Value: int64(-100)},
				{Key: "unique_id", Value: "u9"},
				{Key: "name", Value: "Show.S01E02.mkv"},
				{Key: "classification", Value: string(models.ClassEpisodic)},
				{Key: "meta", Value: bson.D{
					{Key: "title", Value: "show"},
					{Key: "season", Value: 1},
					{Key: "episode", Value: 2},
				}},
			},
		))

		records, err := repo.ListByChat(context.Background(), -100)
		if err != nil {
			t.Fatalf("ListByChat failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("unexpected record count: %d", len(records))
		}
		r := records[0]
		if r.MessageID != 9 || r.ContentID != "u9" || r.Episode == nil || r.Episode.Episode != 2 {
			t.Fatalf("unexpected record: %+v", r)
		}
	})
}

func TestCatalogRepositoryDeleteByMessages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &catalogRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		deleted, err := repo.DeleteByMessages(context.Background(), -100, []int{1, 2, 3})
		if err != nil {
			t.Fatalf("DeleteByMessages failed: %v", err)
		}
		if deleted != 3 {
			t.Fatalf("unexpected deleted count: got %d, want 3", deleted)
		}
	})
}
