// Package activity records the append-only timeline of each import batch.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// Logger appends timeline events. Appending never fails the caller: a
// timeline write that errors is logged and dropped.
type Logger struct {
	store  service.ActivityStore
	logger *slog.Logger
}

// NewLogger creates an activity logger.
func NewLogger(store service.ActivityStore, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{store: store, logger: logger.With("component", "activity")}
}

// BatchCreated records a new batch.
func (l *Logger) BatchCreated(ctx context.Context, batch *model.ImportBatch) {
	l.append(ctx, &model.ActivityEvent{
		BatchID: batch.ID,
		Type:    model.ActivityBatchCreated,
		Message: fmt.Sprintf("Import of %d %s started", batch.TotalFiles, pluralFiles(batch.TotalFiles)),
	})
}

// FileUploaded records a file accepted into a batch.
func (l *Logger) FileUploaded(ctx context.Context, item *model.ImportBatchItem) {
	l.append(ctx, &model.ActivityEvent{
		BatchID:  item.BatchID,
		ItemID:   item.ID,
		FileName: item.FileName,
		Type:     model.ActivityFileUploaded,
		Message:  "Uploaded " + item.FileName,
	})
}

// ItemCompleted records a processed file and how long it took.
func (l *Logger) ItemCompleted(ctx context.Context, item *model.ImportBatchItem, took time.Duration) {
	l.append(ctx, &model.ActivityEvent{
		BatchID:    item.BatchID,
		ItemID:     item.ID,
		FileName:   item.FileName,
		Type:       model.ActivityItemCompleted,
		DurationMs: took.Milliseconds(),
		Message:    fmt.Sprintf("Processed %s in %s", item.FileName, took.Round(time.Millisecond)),
	})
}

// ItemDuplicate records a file recognized as already imported.
func (l *Logger) ItemDuplicate(ctx context.Context, item *model.ImportBatchItem, duplicateOf string, took time.Duration) {
	l.append(ctx, &model.ActivityEvent{
		BatchID:    item.BatchID,
		ItemID:     item.ID,
		FileName:   item.FileName,
		Type:       model.ActivityItemDuplicate,
		DurationMs: took.Milliseconds(),
		Message:    fmt.Sprintf("%s was already imported as document %s", item.FileName, duplicateOf),
	})
}

// ItemFailed records a failed file and the reason.
func (l *Logger) ItemFailed(ctx context.Context, item *model.ImportBatchItem, reason string, took time.Duration) {
	l.append(ctx, &model.ActivityEvent{
		BatchID:    item.BatchID,
		ItemID:     item.ID,
		FileName:   item.FileName,
		Type:       model.ActivityItemFailed,
		DurationMs: took.Milliseconds(),
		Message:    fmt.Sprintf("Failed to process %s: %s", item.FileName, reason),
	})
}

// ItemRetried records a failed file queued again.
func (l *Logger) ItemRetried(ctx context.Context, item *model.ImportBatchItem) {
	l.append(ctx, &model.ActivityEvent{
		BatchID:  item.BatchID,
		ItemID:   item.ID,
		FileName: item.FileName,
		Type:     model.ActivityItemRetried,
		Message:  fmt.Sprintf("Retrying %s (attempt %d)", item.FileName, item.RetryCount+1),
	})
}

// BatchCancelled records a user cancelling a batch.
func (l *Logger) BatchCancelled(ctx context.Context, batch *model.ImportBatch) {
	remaining := batch.TotalFiles - batch.Clamped().ProcessedFiles
	l.append(ctx, &model.ActivityEvent{
		BatchID: batch.ID,
		Type:    model.ActivityBatchCancelled,
		Message: fmt.Sprintf("Import cancelled with %d %s not yet processed", remaining, pluralFiles(remaining)),
	})
}

// List returns a batch's timeline, oldest first.
func (l *Logger) List(ctx context.Context, batchID string) ([]model.ActivityEvent, error) {
	return l.store.ListActivity(ctx, batchID)
}

func (l *Logger) append(ctx context.Context, event *model.ActivityEvent) {
	// A cancelled request still deserves its timeline entry.
	if err := l.store.AppendActivity(context.WithoutCancel(ctx), event); err != nil {
		l.logger.Warn("failed to append activity",
			"batch_id", event.BatchID,
			"item_id", event.ItemID,
			"type", event.Type,
			"error", err)
	}
}

func pluralFiles(n int) string {
	if n == 1 {
		return "file"
	}
	return "files"
}
