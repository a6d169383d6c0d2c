package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

const batchColumns = `id, user_id, import_type, status, total_files, processed_files, successful_files,
	failed_files, duplicate_files, currency, default_business_id, statement_type, source_format,
	date_from, date_to, created_at, started_at, completed_at`

const itemColumns = `id, batch_id, file_name, file_url, file_format, item_order, status, retry_count,
	document_id, duplicate_of_document_id, duplicate_match_type, error_message, error_code,
	created_at, updated_at`

func scanBatch(row interface{ Scan(...any) error }) (*model.ImportBatch, error) {
	var b model.ImportBatch
	var dateFrom, dateTo, startedAt, completedAt sql.NullTime
	if err := row.Scan(&b.ID, &b.UserID, &b.ImportType, &b.Status, &b.TotalFiles, &b.ProcessedFiles,
		&b.SuccessfulFiles, &b.FailedFiles, &b.DuplicateFiles, &b.Defaults.Currency,
		&b.Defaults.DefaultBusinessID, &b.Defaults.StatementType, &b.Defaults.SourceFormat,
		&dateFrom, &dateTo, &b.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	b.Defaults.DateFrom = timePtr(dateFrom)
	b.Defaults.DateTo = timePtr(dateTo)
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}

func scanItem(row interface{ Scan(...any) error }) (*model.ImportBatchItem, error) {
	var item model.ImportBatchItem
	if err := row.Scan(&item.ID, &item.BatchID, &item.FileName, &item.FileURL, &item.FileFormat,
		&item.Order, &item.Status, &item.RetryCount, &item.DocumentID, &item.DuplicateOfDocumentID,
		&item.DuplicateMatchType, &item.ErrorMessage, &item.ErrorCode, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateBatch stores a batch and its items atomically. Items are numbered in
// the order given and start pending.
func (s *SQLiteStorage) CreateBatch(ctx context.Context, batch *model.ImportBatch, items []model.ImportBatchItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBatch(batch, items); err != nil {
		return err
	}

	now := s.now()
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	batch.CreatedAt = now
	if batch.Status == "" {
		batch.Status = model.BatchStatusPending
	}
	batch.BatchCounters = model.BatchCounters{TotalFiles: len(items)}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO import_batches (`+batchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.ID, batch.UserID, batch.ImportType, batch.Status, batch.TotalFiles, 0, 0, 0, 0,
			batch.Defaults.Currency, batch.Defaults.DefaultBusinessID, batch.Defaults.StatementType,
			batch.Defaults.SourceFormat, nullTime(batch.Defaults.DateFrom), nullTime(batch.Defaults.DateTo),
			batch.CreatedAt, nullTime(batch.StartedAt), nullTime(batch.CompletedAt))
		if err != nil {
			return fmt.Errorf("failed to create import batch: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO import_batch_items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', '', '', '', '', ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare item statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range items {
			item := &items[i]
			if item.ID == "" {
				item.ID = uuid.New().String()
			}
			if item.FileFormat == "" {
				item.FileFormat = model.FileFormatFromName(item.FileName)
			}
			item.BatchID = batch.ID
			item.Order = i
			item.Status = model.ItemStatusPending
			item.CreatedAt = now
			item.UpdatedAt = now

			if _, err := stmt.ExecContext(ctx, item.ID, item.BatchID, item.FileName, item.FileURL,
				item.FileFormat, item.Order, item.Status, item.CreatedAt, item.UpdatedAt); err != nil {
				return fmt.Errorf("failed to create import item %q: %w", item.FileName, err)
			}
		}
		return nil
	})
}

// GetBatch returns a batch by id.
func (s *SQLiteStorage) GetBatch(ctx context.Context, id string) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getBatch(ctx, s.db, id)
}

func getBatch(ctx context.Context, q queryer, id string) (*model.ImportBatch, error) {
	b, err := scanBatch(q.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: import batch %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query import batch: %w", err)
	}
	return b, nil
}

// ListBatches returns the user's most recent batches.
func (s *SQLiteStorage) ListBatches(ctx context.Context, userID string, limit int) ([]model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM import_batches
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []model.ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import batches: %w", err)
	}
	return batches, nil
}

// GetItem returns a batch item by id.
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (*model.ImportBatchItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q queryer, id string) (*model.ImportBatchItem, error) {
	item, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM import_batch_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: import item %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query import item: %w", err)
	}
	return item, nil
}

// ListItems returns a batch's items in upload order.
func (s *SQLiteStorage) ListItems(ctx context.Context, batchID string) ([]model.ImportBatchItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listItems(ctx, s.db, batchID)
}

func listItems(ctx context.Context, q queryer, batchID string) ([]model.ImportBatchItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM import_batch_items
		WHERE batch_id = ?
		ORDER BY item_order, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query import items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ImportBatchItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import items: %w", err)
	}
	return items, nil
}

// TransitionItem moves an item to a new status and recomputes its batch
// from the full item set, all in one transaction.
func (s *SQLiteStorage) TransitionItem(ctx context.Context, itemID string, update service.ItemUpdate, derive service.DeriveFunc) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if derive == nil {
		return nil, fmt.Errorf("%w: derive", ErrNilParameter)
	}

	var batch *model.ImportBatch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		item, err := getItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if !slices.Contains(update.From, item.Status) {
			return fmt.Errorf("%w: item %s is %s, cannot move to %s",
				service.ErrInvalidTransition, itemID, item.Status, update.Status)
		}

		applyItemUpdate(item, update)
		item.UpdatedAt = s.now()

		_, err = tx.ExecContext(ctx, `
			UPDATE import_batch_items
			SET status = ?, retry_count = ?, document_id = ?, duplicate_of_document_id = ?,
				duplicate_match_type = ?, error_message = ?, error_code = ?, updated_at = ?
			WHERE id = ?`,
			item.Status, item.RetryCount, item.DocumentID, item.DuplicateOfDocumentID,
			item.DuplicateMatchType, item.ErrorMessage, item.ErrorCode, item.UpdatedAt, item.ID)
		if err != nil {
			return fmt.Errorf("failed to update import item: %w", err)
		}

		batch, err = s.recomputeTx(ctx, tx, item.BatchID, derive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// applyItemUpdate copies the outcome fields of update onto item. Moving back
// to pending clears the previous attempt's outcome.
func applyItemUpdate(item *model.ImportBatchItem, update service.ItemUpdate) {
	item.Status = update.Status
	if update.IncrementRetry {
		item.RetryCount++
	}

	switch update.Status {
	case model.ItemStatusPending:
		item.DocumentID = ""
		item.DuplicateOfDocumentID = ""
		item.DuplicateMatchType = ""
		item.ErrorMessage = ""
		item.ErrorCode = ""
	case model.ItemStatusProcessing:
		// keep the previous outcome until this attempt finishes
	default:
		if update.DocumentID != "" {
			item.DocumentID = update.DocumentID
		}
		item.DuplicateOfDocumentID = update.DuplicateOfDocumentID
		item.DuplicateMatchType = update.DuplicateMatchType
		item.ErrorMessage = update.ErrorMessage
		item.ErrorCode = update.ErrorCode
	}
}

// RecomputeBatch re-derives a batch from its items. Running it twice in a
// row yields the same batch.
func (s *SQLiteStorage) RecomputeBatch(ctx context.Context, batchID string, derive service.DeriveFunc) (*model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if derive == nil {
		return nil, fmt.Errorf("%w: derive", ErrNilParameter)
	}

	var batch *model.ImportBatch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		batch, err = s.recomputeTx(ctx, tx, batchID, derive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *SQLiteStorage) recomputeTx(ctx context.Context, tx *sql.Tx, batchID string, derive service.DeriveFunc) (*model.ImportBatch, error) {
	current, err := getBatch(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}
	items, err := listItems(ctx, tx, batchID)
	if err != nil {
		return nil, err
	}

	next := derive(*current, items, s.now())

	_, err = tx.ExecContext(ctx, `
		UPDATE import_batches
		SET status = ?, total_files = ?, processed_files = ?, successful_files = ?, failed_files = ?,
			duplicate_files = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		next.Status, next.TotalFiles, next.ProcessedFiles, next.SuccessfulFiles, next.FailedFiles,
		next.DuplicateFiles, nullTime(next.StartedAt), nullTime(next.CompletedAt), batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to update import batch: %w", err)
	}

	if next.Status != current.Status {
		s.logger.Debug("import batch status changed",
			"batch_id", batchID, "from", current.Status, "to", next.Status)
	}
	return &next, nil
}

// SetBatchCancelled records the intent to stop a batch. Only pending or
// processing batches can be cancelled.
func (s *SQLiteStorage) SetBatchCancelled(ctx context.Context, batchID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		batch, err := getBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != model.BatchStatusPending && batch.Status != model.BatchStatusProcessing {
			return fmt.Errorf("%w: batch %s is %s", service.ErrInvalidTransition, batchID, batch.Status)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE import_batches SET status = ? WHERE id = ?`,
			model.BatchStatusCancelled, batchID); err != nil {
			return fmt.Errorf("failed to cancel import batch: %w", err)
		}
		return nil
	})
}
