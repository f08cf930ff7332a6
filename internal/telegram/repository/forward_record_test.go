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

func TestForwardRecordRepositoryBulkCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &forwardRecordRepository{collection: mt.Coll, ttl: time.Hour}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		err := repo.BulkCreateRecords(context.Background(), []*models.ForwardRecord{
			{TaskID: "t1", SourceMessageID: 1, Status: models.ForwardStatusSuccess, CreatedAt: time.Now()},
			{TaskID: "t1", SourceMessageID: 2, Status: models.ForwardStatusFailed, CreatedAt: time.Now()},
		})
		if err != nil {
			t.Fatalf("BulkCreateRecords failed: %v", err)
		}
	})

	mt.Run("empty input", func(mt *mtest.T) {
		repo := &forwardRecordRepository{collection: mt.Coll, ttl: time.Hour}
		if err := repo.BulkCreateRecords(context.Background(), nil); err != nil {
			t.Fatalf("expected no-op, got %v", err)
		}
	})

	mt.Run("insert error", func(mt *mtest.T) {
		repo := &forwardRecordRepository{collection: mt.Coll, ttl: time.Hour}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock write failure",
		}))

		err := repo.BulkCreateRecords(context.Background(), []*models.ForwardRecord{{TaskID: "t1"}})
		if err == nil || !strings.Contains(err.Error(), "failed to bulk create forward records") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestForwardRecordRepositoryGetSuccessRecords(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &forwardRecordRepository{collection: mt.Coll, ttl: time.Hour}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			messageNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "task_id", Value: "t1"},
				{Key: "target_chat_id", Value: int64(-200)},
				{Key: "forwarded_message_id", Value: int64(77)},
				{Key: "status", Value: models.ForwardStatusSuccess},
			},
		))

		records, err := repo.GetSuccessRecordsByTaskID(context.Background(), "t1")
		if err != nil {
			t.Fatalf("GetSuccessRecordsByTaskID failed: %v", err)
		}
		if len(records) != 1 || records[0].ForwardedMessageID != 77 || records[0].TargetChatID != -200 {
			t.Fatalf("unexpected records: %+v", records)
		}
	})
}

func TestForwardRecordRepositorySummary(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &forwardRecordRepository{collection: mt.Coll, ttl: time.Hour}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			messageNamespace(mt),
			mtest.FirstBatch,
			bson.D{{Key: "_id", Value: models.ForwardStatusSuccess}, {Key: "count", Value: int64(9)}},
			bson.D{{Key: "_id", Value: models.ForwardStatusFailed}, {Key: "count", Value: int64(1)}},
		))

		summary, err := repo.SummaryByTaskID(context.Background(), "t1")
		if err != nil {
			t.Fatalf("SummaryByTaskID failed: %v", err)
		}
		if summary.TaskID != "t1" || summary.Success != 9 || summary.Failed != 1 {
			t.Fatalf("unexpected summary: %+v", summary)
		}
	})
}

func TestForwardRecordRepositoryDeleteByTaskID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &forwardRecordRepository{collection: mt.Coll, ttl: time.Hour}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 5}))

		if err := repo.DeleteRecordsByTaskID(context.Background(), "t1"); err != nil {
			t.Fatalf("DeleteRecordsByTaskID failed: %v", err)
		}
	})
}
