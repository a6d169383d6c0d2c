package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// AppendActivity adds an event to a batch's timeline.
func (s *SQLiteStorage) AppendActivity(ctx context.Context, event *model.ActivityEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("%w: activity event", ErrNilParameter)
	}
	if err := validateString(event.BatchID, "batchID"); err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, batch_id, item_id, type, file_name, message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.BatchID, event.ItemID, event.Type, event.FileName, event.Message,
		event.DurationMs, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get activity sequence: %w", err)
	}
	event.Seq = seq
	return nil
}

// ListActivity returns a batch's timeline in the order events were appended.
func (s *SQLiteStorage) ListActivity(ctx context.Context, batchID string) ([]model.ActivityEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, batch_id, item_id, type, file_name, message, duration_ms, created_at
		FROM activity_log
		WHERE batch_id = ?
		ORDER BY seq`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.ActivityEvent
	for rows.Next() {
		var e model.ActivityEvent
		if err := rows.Scan(&e.Seq, &e.ID, &e.BatchID, &e.ItemID, &e.Type, &e.FileName,
			&e.Message, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return events, nil
}
