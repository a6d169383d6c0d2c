package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/testutil"
)

func TestLogger_AppendsInOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	batch, items := db.MustBatch("user-1", model.ImportTypeReceipts, "a.jpg", "b.jpg")
	log := NewLogger(db.Storage, nil)
	ctx := context.Background()

	log.BatchCreated(ctx, batch)
	log.FileUploaded(ctx, &items[0])
	log.FileUploaded(ctx, &items[1])
	log.ItemCompleted(ctx, &items[0], 1500*time.Millisecond)
	log.ItemFailed(ctx, &items[1], "provider gemini: timeout", 30*time.Second)
	items[1].RetryCount = 1
	log.ItemRetried(ctx, &items[1])
	log.ItemDuplicate(ctx, &items[1], "doc-9", 200*time.Millisecond)

	events, err := log.List(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, events, 7)

	types := make([]model.ActivityType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	assert.Equal(t, []model.ActivityType{
		model.ActivityBatchCreated,
		model.ActivityFileUploaded,
		model.ActivityFileUploaded,
		model.ActivityItemCompleted,
		model.ActivityItemFailed,
		model.ActivityItemRetried,
		model.ActivityItemDuplicate,
	}, types)

	assert.Equal(t, "Import of 2 files started", events[0].Message)
	assert.Equal(t, int64(1500), events[3].DurationMs)
	assert.Contains(t, events[4].Message, "provider gemini: timeout")
	assert.Equal(t, "Retrying b.jpg (attempt 2)", events[5].Message)
	assert.Less(t, events[0].Seq, events[6].Seq)
}

type failingStore struct{}

func (failingStore) AppendActivity(context.Context, *model.ActivityEvent) error {
	return errors.New("disk full")
}

func (failingStore) ListActivity(context.Context, string) ([]model.ActivityEvent, error) {
	return nil, nil
}

func TestLogger_WriteFailuresAreSwallowed(t *testing.T) {
	log := NewLogger(failingStore{}, nil)
	assert.NotPanics(t, func() {
		log.BatchCreated(context.Background(), &model.ImportBatch{ID: "b"})
	})
}

func TestLogger_CancelledContextStillRecords(t *testing.T) {
	db := testutil.SetupTestDB(t)
	batch, _ := db.MustBatch("user-1", model.ImportTypeReceipts, "a.jpg")
	log := NewLogger(db.Storage, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log.BatchCancelled(ctx, batch)

	events, err := log.List(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Import cancelled with 1 file not yet processed", events[0].Message)
}

func TestTimeline(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := []model.ActivityEvent{
		{Type: model.ActivityBatchCreated, Message: "Import of 1 file started", CreatedAt: start},
		{Type: model.ActivityItemCompleted, ItemID: "i1", Message: "Processed a.jpg in 1.2s", CreatedAt: start.Add(1200 * time.Millisecond)},
		{Type: "unknown", Message: "?", CreatedAt: start.Add(2 * time.Minute)},
	}

	entries := Timeline(events)
	require.Len(t, entries, 3)
	assert.Equal(t, "▶", entries[0].Icon)
	assert.Empty(t, entries[0].Elapsed)
	assert.Equal(t, "✓", entries[1].Icon)
	assert.Equal(t, "+1.2s", entries[1].Elapsed)
	assert.Equal(t, "i1", entries[1].ItemID)
	assert.Equal(t, "·", entries[2].Icon)
	assert.Equal(t, "+2m0s", entries[2].Elapsed)

	text := Render(entries)
	assert.Contains(t, text, "✓ Processed a.jpg in 1.2s  (+1.2s)")
	assert.Nil(t, Timeline(nil))
}
