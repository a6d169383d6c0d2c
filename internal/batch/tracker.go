package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// File is one upload to add to a new batch.
type File struct {
	Name string
	URL  string
}

// Tracker owns the batch and item state machine. Every item transition
// recomputes the parent batch with Derive in the same store transaction.
type Tracker struct {
	store  service.BatchStore
	logger *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(store service.BatchStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger.With("component", "batch_tracker")}
}

// Create stores a pending batch with one pending item per file.
func (t *Tracker) Create(ctx context.Context, userID string, importType model.ImportType, defaults model.BatchDefaults, files []File) (*model.ImportBatch, []model.ImportBatchItem, error) {
	if userID == "" {
		return nil, nil, &common.AuthorizationError{Resource: "batch", Err: common.ErrUnauthenticated}
	}
	if !importType.Valid() {
		return nil, nil, common.NewValidationError("importType", fmt.Sprintf("must be receipts, bank_statements or mixed, got %q", importType))
	}
	if len(files) == 0 {
		return nil, nil, common.NewValidationError("files", "at least one file is required")
	}

	items := make([]model.ImportBatchItem, len(files))
	for i, f := range files {
		if strings.TrimSpace(f.URL) == "" {
			return nil, nil, common.NewValidationError(fmt.Sprintf("files[%d].url", i), "is required")
		}
		name := f.Name
		if name == "" {
			name = f.URL[strings.LastIndex(f.URL, "/")+1:]
		}
		items[i] = model.ImportBatchItem{FileName: name, FileURL: f.URL}
	}

	b := &model.ImportBatch{UserID: userID, ImportType: importType, Defaults: defaults}
	if err := t.store.CreateBatch(ctx, b, items); err != nil {
		return nil, nil, fmt.Errorf("failed to create batch: %w", err)
	}

	t.logger.Info("created import batch",
		"batch_id", b.ID,
		"user_id", userID,
		"import_type", importType,
		"total_files", len(items))
	return b, items, nil
}

// Get returns a batch owned by userID.
func (t *Tracker) Get(ctx context.Context, userID, batchID string) (*model.ImportBatch, error) {
	b, err := t.store.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewAuthorizationError("batch", batchID)
		}
		return nil, err
	}
	if userID == "" || b.UserID != userID {
		return nil, common.NewAuthorizationError("batch", batchID)
	}
	return b, nil
}

// List returns the user's most recent batches.
func (t *Tracker) List(ctx context.Context, userID string, limit int) ([]model.ImportBatch, error) {
	if userID == "" {
		return nil, &common.AuthorizationError{Resource: "batch", Err: common.ErrUnauthenticated}
	}
	return t.store.ListBatches(ctx, userID, limit)
}

// Items returns the items of a batch owned by userID in display order.
func (t *Tracker) Items(ctx context.Context, userID, batchID string) ([]model.ImportBatchItem, error) {
	if _, err := t.Get(ctx, userID, batchID); err != nil {
		return nil, err
	}
	return t.store.ListItems(ctx, batchID)
}

// Item returns an item and its batch after checking the batch belongs to userID.
func (t *Tracker) Item(ctx context.Context, userID, itemID string) (*model.ImportBatchItem, *model.ImportBatch, error) {
	item, err := t.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.NewAuthorizationError("batch item", itemID)
		}
		return nil, nil, err
	}
	b, err := t.Get(ctx, userID, item.BatchID)
	if err != nil {
		return nil, nil, common.NewAuthorizationError("batch item", itemID)
	}
	return item, b, nil
}

// Start moves a pending item to processing.
func (t *Tracker) Start(ctx context.Context, itemID string) (*model.ImportBatch, error) {
	return t.transition(ctx, itemID, service.ItemUpdate{
		From:   []model.ItemStatus{model.ItemStatusPending},
		Status: model.ItemStatusProcessing,
	})
}

// Complete marks a processing item completed with the document it produced.
func (t *Tracker) Complete(ctx context.Context, itemID, documentID string) (*model.ImportBatch, error) {
	return t.transition(ctx, itemID, service.ItemUpdate{
		From:       []model.ItemStatus{model.ItemStatusProcessing},
		Status:     model.ItemStatusCompleted,
		DocumentID: documentID,
	})
}

// MarkDuplicate marks a processing item as a duplicate of an earlier document.
func (t *Tracker) MarkDuplicate(ctx context.Context, itemID, documentID, duplicateOf string, matchType model.DuplicateMatchType) (*model.ImportBatch, error) {
	return t.transition(ctx, itemID, service.ItemUpdate{
		From:                  []model.ItemStatus{model.ItemStatusProcessing},
		Status:                model.ItemStatusDuplicate,
		DocumentID:            documentID,
		DuplicateOfDocumentID: duplicateOf,
		DuplicateMatchType:    matchType,
	})
}

// Fail marks a processing item failed with the captured error.
func (t *Tracker) Fail(ctx context.Context, itemID, documentID string, perr *common.ProcessingError) (*model.ImportBatch, error) {
	code := perr.Code
	if code == "" {
		code = model.ErrorCodeProcessing
	}
	return t.transition(ctx, itemID, service.ItemUpdate{
		From:         []model.ItemStatus{model.ItemStatusProcessing},
		Status:       model.ItemStatusFailed,
		DocumentID:   documentID,
		ErrorMessage: perr.Message,
		ErrorCode:    code,
	})
}

// Skip marks a pending item skipped, used when its batch was cancelled.
func (t *Tracker) Skip(ctx context.Context, itemID string) (*model.ImportBatch, error) {
	return t.transition(ctx, itemID, service.ItemUpdate{
		From:   []model.ItemStatus{model.ItemStatusPending},
		Status: model.ItemStatusSkipped,
	})
}

// ResetForRetry moves a failed item back to pending, clearing its error and
// counting the retry.
func (t *Tracker) ResetForRetry(ctx context.Context, itemID string) (*model.ImportBatch, error) {
	return t.transition(ctx, itemID, service.ItemUpdate{
		From:           []model.ItemStatus{model.ItemStatusFailed},
		Status:         model.ItemStatusPending,
		IncrementRetry: true,
	})
}

// Recompute re-derives a batch from its items.
func (t *Tracker) Recompute(ctx context.Context, batchID string) (*model.ImportBatch, error) {
	return t.store.RecomputeBatch(ctx, batchID, Derive)
}

// Cancel records the user's intent to stop the batch. Items already running
// finish normally; pending ones are skipped when their job comes up.
func (t *Tracker) Cancel(ctx context.Context, userID, batchID string) (*model.ImportBatch, error) {
	if _, err := t.Get(ctx, userID, batchID); err != nil {
		return nil, err
	}
	if err := t.store.SetBatchCancelled(ctx, batchID); err != nil {
		return nil, err
	}
	t.logger.Info("cancelled import batch", "batch_id", batchID, "user_id", userID)
	return t.store.GetBatch(ctx, batchID)
}

func (t *Tracker) transition(ctx context.Context, itemID string, update service.ItemUpdate) (*model.ImportBatch, error) {
	b, err := t.store.TransitionItem(ctx, itemID, update, Derive)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("item transitioned",
		"item_id", itemID,
		"batch_id", b.ID,
		"status", update.Status,
		"batch_status", b.Status,
		"processed", b.ProcessedFiles,
		"total", b.TotalFiles)
	return b, nil
}
