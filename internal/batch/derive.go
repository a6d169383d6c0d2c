// Package batch tracks import batches and derives their status from items.
package batch

import (
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Derive recomputes a batch's counters and status from its full item set.
// It is a pure function: calling it again with the same items yields the
// same batch, which makes recomputation after every item update safe under
// duplicate or reordered updates.
//
// Status rules:
//   - cancelled is a user intent and is kept; counters still refresh.
//   - all items terminal with at least one completed or duplicate: completed.
//   - all items terminal with none completed or duplicate: failed.
//   - any item past pending, or started before: processing.
//   - otherwise pending.
func Derive(b model.ImportBatch, items []model.ImportBatchItem, now time.Time) model.ImportBatch {
	counters := model.BatchCounters{TotalFiles: len(items)}
	allTerminal := len(items) > 0
	started := false

	for _, item := range items {
		if item.Status != model.ItemStatusPending {
			started = true
		}
		if !item.Status.IsTerminal() {
			allTerminal = false
			continue
		}

		counters.ProcessedFiles++
		switch item.Status {
		case model.ItemStatusCompleted:
			counters.SuccessfulFiles++
		case model.ItemStatusFailed:
			counters.FailedFiles++
		case model.ItemStatusDuplicate:
			counters.DuplicateFiles++
		}
	}
	b.BatchCounters = counters.Clamped()

	// A batch that has started stays started, even when a retry sends its
	// only item back to pending.
	started = started || b.StartedAt != nil
	if started && b.StartedAt == nil {
		t := now
		b.StartedAt = &t
	}

	if b.Status == model.BatchStatusCancelled {
		return b
	}

	switch {
	case allTerminal && counters.SuccessfulFiles+counters.DuplicateFiles > 0:
		b.Status = model.BatchStatusCompleted
	case allTerminal:
		b.Status = model.BatchStatusFailed
	case started:
		b.Status = model.BatchStatusProcessing
	default:
		b.Status = model.BatchStatusPending
	}

	switch {
	case !b.Status.IsTerminal():
		// A retry reopens a finished batch.
		b.CompletedAt = nil
	case b.CompletedAt == nil:
		t := now
		b.CompletedAt = &t
	}

	return b
}
