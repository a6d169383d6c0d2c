package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/batch"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/jobs"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// ErrNoPublisher is returned by operations that enqueue jobs when the
// processor was built without a publisher.
var ErrNoPublisher = errors.New("no job publisher configured")

// Submission is the result of creating and enqueueing a batch.
type Submission struct {
	Batch   *model.ImportBatch
	Items   []model.ImportBatchItem
	Enqueue jobs.BatchEnqueueResult
}

// Submit creates a batch for files and enqueues one job per item. Items
// that could not be enqueued stay pending and are picked up by Retry or
// RetryAllFailed; the batch itself is still returned.
func (p *Processor) Submit(ctx context.Context, userID string, importType model.ImportType, defaults model.BatchDefaults, files []batch.File) (*Submission, error) {
	if p.sender == nil {
		return nil, ErrNoPublisher
	}

	b, items, err := p.tracker.Create(ctx, userID, importType, defaults, files)
	if err != nil {
		return nil, err
	}

	p.activity.BatchCreated(ctx, b)
	payloads := make([]jobs.Payload, len(items))
	for i := range items {
		p.activity.FileUploaded(ctx, &items[i])
		payloads[i] = jobs.PayloadFor(b, &items[i])
	}

	enqueued := p.sender.EnqueueBatch(ctx, payloads)
	p.logger.Info("submitted import batch",
		"batch_id", b.ID,
		"user_id", userID,
		"enqueued", enqueued.Enqueued,
		"failed", enqueued.Failed)
	return &Submission{Batch: b, Items: items, Enqueue: enqueued}, nil
}

// Cancel stops a batch from starting further items.
func (p *Processor) Cancel(ctx context.Context, userID, batchID string) (*model.ImportBatch, error) {
	b, err := p.tracker.Cancel(ctx, userID, batchID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			return nil, common.NewValidationError("batch", "only pending or processing batches can be cancelled")
		}
		return nil, err
	}
	p.activity.BatchCancelled(ctx, b)
	return b, nil
}

// Retry enqueues one item again. A failed item is first moved back to
// pending; a pending item, such as one whose first enqueue failed, is
// enqueued as it is. A second delivery of a job is ignored once the item has
// started, so enqueueing a pending item twice is harmless.
func (p *Processor) Retry(ctx context.Context, userID, itemID string) (jobs.EnqueueResult, error) {
	if p.sender == nil {
		return jobs.EnqueueResult{}, ErrNoPublisher
	}
	item, b, err := p.tracker.Item(ctx, userID, itemID)
	if err != nil {
		return jobs.EnqueueResult{}, err
	}
	return p.retry(ctx, b, item)
}

func (p *Processor) retry(ctx context.Context, b *model.ImportBatch, item *model.ImportBatchItem) (jobs.EnqueueResult, error) {
	if b.Status == model.BatchStatusCancelled {
		return jobs.EnqueueResult{}, common.NewValidationError("batch", "is cancelled")
	}

	switch item.Status {
	case model.ItemStatusPending:
		p.logger.Info("re-enqueueing pending item", "batch_id", b.ID, "item_id", item.ID)
	case model.ItemStatusFailed:
		if _, err := p.tracker.ResetForRetry(ctx, item.ID); err != nil {
			if errors.Is(err, service.ErrInvalidTransition) {
				return jobs.EnqueueResult{}, common.NewValidationError("item", "is no longer failed")
			}
			return jobs.EnqueueResult{}, err
		}
		reset, err := p.store.GetItem(ctx, item.ID)
		if err != nil {
			return jobs.EnqueueResult{}, err
		}
		item = reset
		p.activity.ItemRetried(ctx, item)
	default:
		return jobs.EnqueueResult{}, common.NewValidationError("item",
			fmt.Sprintf("is %s, only failed or pending items can be retried", item.Status))
	}

	res := p.sender.EnqueueBatchItem(ctx, jobs.PayloadFor(b, item))
	if !res.Success {
		return res, res.Err
	}
	return res, nil
}

// RetryResult summarizes a retry of every unfinished item in a batch.
type RetryResult struct {
	Errors  []jobs.ItemError
	Retried int
	Failed  int
}

// RetryAllFailed retries each failed or pending item independently. One item
// failing to re-enqueue does not stop the others, and stays pending for the
// next retry.
func (p *Processor) RetryAllFailed(ctx context.Context, userID, batchID string) (RetryResult, error) {
	if p.sender == nil {
		return RetryResult{}, ErrNoPublisher
	}
	b, err := p.tracker.Get(ctx, userID, batchID)
	if err != nil {
		return RetryResult{}, err
	}
	if b.Status == model.BatchStatusCancelled {
		return RetryResult{}, common.NewValidationError("batch", "is cancelled")
	}
	items, err := p.store.ListItems(ctx, batchID)
	if err != nil {
		return RetryResult{}, err
	}

	var result RetryResult
	for i := range items {
		if s := items[i].Status; s != model.ItemStatusFailed && s != model.ItemStatusPending {
			continue
		}
		if _, err := p.retry(ctx, b, &items[i]); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, jobs.ItemError{BatchItemID: items[i].ID, Err: err})
			continue
		}
		result.Retried++
	}

	p.logger.Info("retried failed items",
		"batch_id", batchID,
		"retried", result.Retried,
		"failed", result.Failed)
	return result, nil
}
