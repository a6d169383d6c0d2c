package jobs

import (
	"context"
	"log/slog"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

// EnqueueResult reports the fate of one job.
type EnqueueResult struct {
	Err     error
	EventID string
	Success bool
}

// ItemError names the item a failed enqueue belonged to.
type ItemError struct {
	Err         error
	BatchItemID string
}

// BatchEnqueueResult summarizes enqueueing a whole batch.
type BatchEnqueueResult struct {
	Errors   []ItemError
	Enqueued int
	Failed   int
}

// Sender publishes one job per batch item.
type Sender struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewSender creates a Sender.
func NewSender(publisher Publisher, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{publisher: publisher, logger: logger.With("component", "queue_sender")}
}

// EnqueueBatchItem publishes a single job.
func (s *Sender) EnqueueBatchItem(ctx context.Context, job Payload) EnqueueResult {
	if job.BatchItemID == "" || job.BatchID == "" {
		return EnqueueResult{Err: common.NewValidationError("job", "batchId and batchItemId are required")}
	}

	eventID, err := s.publisher.Publish(ctx, job)
	if err != nil {
		s.logger.Warn("failed to enqueue item",
			"batch_id", job.BatchID,
			"item_id", job.BatchItemID,
			"error", err)
		return EnqueueResult{Err: err}
	}

	s.logger.Debug("enqueued item",
		"batch_id", job.BatchID,
		"item_id", job.BatchItemID,
		"event_id", eventID)
	return EnqueueResult{Success: true, EventID: eventID}
}

// EnqueueBatch publishes every job, continuing past failures.
func (s *Sender) EnqueueBatch(ctx context.Context, jobs []Payload) BatchEnqueueResult {
	var result BatchEnqueueResult
	for _, job := range jobs {
		r := s.EnqueueBatchItem(ctx, job)
		if r.Success {
			result.Enqueued++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, ItemError{BatchItemID: job.BatchItemID, Err: r.Err})
	}

	if result.Failed > 0 {
		s.logger.Warn("batch partially enqueued",
			"enqueued", result.Enqueued,
			"failed", result.Failed)
	}
	return result
}
