package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"mirror_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoMessageRepositoryCreateMessage(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		msg := &models.Message{
			TelegramMessageID: 1001,
			ChatID:            -2001,
			MessageType:       models.MessageTypeVideo,
			Caption:           "Movie.2021.1080p",
			MediaFileUniqueID: "uniq-1",
			MediaFileName:     "Movie.2021.1080p.mkv",
			MediaFileSize:     1 << 30,
			SentAt:            time.Now().UTC(),
		}

		if err := repo.CreateMessage(context.Background(), msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
		if msg.CreatedAt.IsZero() || msg.UpdatedAt.IsZero() {
			t.Fatalf("expected created_at and updated_at to be set")
		}
	})

	mt.Run("update error", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock write failure",
		}))

		err := repo.CreateMessage(context.Background(), &models.Message{
			TelegramMessageID: 1002,
			ChatID:            -2002,
			MessageType:       models.MessageTypeText,
			SentAt:            time.Now().UTC(),
		})
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to create message") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoMessageRepositoryGetByTelegramID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			messageNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "telegram_message_id", Value: int64(5001)},
				{Key: "chat_id", Value: int64(-6001)},
				{Key: "message_type", Value: models.MessageTypeDocument},
				{Key: "caption", Value: "saved"},
				{Key: "media_file_unique_id", Value: "uniq-5001"},
				{Key: "sent_at", Value: now},
			},
		))

		msg, err := repo.GetByTelegramID(context.Background(), 5001, -6001)
		if err != nil {
			t.Fatalf("GetByTelegramID failed: %v", err)
		}
		if msg.Caption != "saved" || !msg.IsMediaMessage() {
			t.Fatalf("unexpected message: %+v", msg)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, messageNamespace(mt), mtest.FirstBatch))

		_, err := repo.GetByTelegramID(context.Background(), 9999, -1)
		if err == nil || !strings.Contains(err.Error(), "message not found") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoMessageRepositoryUpdateCaption(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.UpdateCaption(context.Background(), 1, -100, "clean"); err != nil {
			t.Fatalf("UpdateCaption failed: %v", err)
		}
	})

	mt.Run("not matched", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.UpdateCaption(context.Background(), 1, -100, "clean")
		if err == nil || !strings.Contains(err.Error(), "message not found") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoMessageRepositoryDeleteMessages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		deleted, err := repo.DeleteMessages(context.Background(), -100, []int{3, 4})
		if err != nil {
			t.Fatalf("DeleteMessages failed: %v", err)
		}
		if deleted != 2 {
			t.Fatalf("unexpected deleted count: got %d, want 2", deleted)
		}
	})

	mt.Run("empty input", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}

		deleted, err := repo.DeleteMessages(context.Background(), -100, nil)
		if err != nil || deleted != 0 {
			t.Fatalf("expected no-op, got %d, %v", deleted, err)
		}
	})
}

func TestMongoMessageRepositoryListChannelMessages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		first := mtest.CreateCursorResponse(
			1,
			messageNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "telegram_message_id", Value: int64(30)},
				{Key: "chat_id", Value: int64(-100)},
				{Key: "message_type", Value: models.MessageTypeVideo},
			},
		)
		second := mtest.CreateCursorResponse(
			0,
			messageNamespace(mt),
			mtest.NextBatch,
			bson.D{
				{Key: "telegram_message_id", Value: int64(29)},
				{Key: "chat_id", Value: int64(-100)},
				{Key: "message_type", Value: models.MessageTypeText},
			},
		)
		mt.AddMockResponses(first, second)

		messages, err := repo.ListChannelMessages(context.Background(), -100, 31, 50)
		if err != nil {
			t.Fatalf("ListChannelMessages failed: %v", err)
		}
		if len(messages) != 2 {
			t.Fatalf("unexpected message count: got %d, want 2", len(messages))
		}
		if messages[0].TelegramMessageID != 30 || messages[1].TelegramMessageID != 29 {
			t.Fatalf("unexpected order: %d, %d", messages[0].TelegramMessageID, messages[1].TelegramMessageID)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find failure",
		}))

		_, err := repo.ListChannelMessages(context.Background(), -100, 0, 50)
		if err == nil || !strings.Contains(err.Error(), "failed to list messages") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoMessageRepositoryCountMessagesByType(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			messageNamespace(mt),
			mtest.FirstBatch,
			bson.D{{Key: "_id", Value: models.MessageTypeVideo}, {Key: "count", Value: int64(4)}},
			bson.D{{Key: "_id", Value: models.MessageTypeText}, {Key: "count", Value: int64(2)}},
		))

		counts, err := repo.CountMessagesByType(context.Background(), -100)
		if err != nil {
			t.Fatalf("CountMessagesByType failed: %v", err)
		}
		if counts[models.MessageTypeVideo] != 4 || counts[models.MessageTypeText] != 2 {
			t.Fatalf("unexpected counts: %v", counts)
		}
	})
}

func messageNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}
