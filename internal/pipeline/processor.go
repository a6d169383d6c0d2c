// Package pipeline runs one batch item from upload to categorized
// transactions, and exposes the batch operations users trigger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/activity"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/batch"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/duplicate"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/extract"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/jobs"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// Store is the record store the pipeline writes to.
type Store interface {
	service.BatchStore
	service.DocumentStore
	service.TransactionStore
	service.ActivityStore
}

// Extractor turns a fetched file into a receipt or statement lines.
type Extractor interface {
	Extract(ctx context.Context, file extract.File, hints extract.Hints) (*extract.Extraction, error)
}

// Fetcher downloads an item's file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Categorizer assigns categories to extracted transactions.
type Categorizer interface {
	CategorizeWithAI(ctx context.Context, in model.TransactionInput, scope categorize.Scope) (model.CategorizationResult, error)
}

// Processor runs the item pipeline and the batch operations around it.
type Processor struct {
	store       Store
	extractor   Extractor
	fetcher     Fetcher
	categorizer Categorizer
	tracker     *batch.Tracker
	detector    *duplicate.Detector
	activity    *activity.Logger
	publisher   jobs.Publisher
	sender      *jobs.Sender
	logger      *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithPublisher enables Submit and the retry operations by publishing jobs
// to publisher.
func WithPublisher(publisher jobs.Publisher) Option {
	return func(p *Processor) { p.publisher = publisher }
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, extractor Extractor, fetcher Fetcher, categorizer Categorizer, opts ...Option) *Processor {
	p := &Processor{
		store:       store,
		extractor:   extractor,
		fetcher:     fetcher,
		categorizer: categorizer,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tracker = batch.NewTracker(store, p.logger)
	p.detector = duplicate.NewDetector(store, p.logger)
	p.activity = activity.NewLogger(store, p.logger)
	if p.publisher != nil {
		p.sender = jobs.NewSender(p.publisher, p.logger)
	}
	p.logger = p.logger.With("component", "job_processor")
	return p
}

// Tracker exposes the batch state machine for read paths.
func (p *Processor) Tracker() *batch.Tracker {
	return p.tracker
}

// Activity exposes the batch timeline.
func (p *Processor) Activity() *activity.Logger {
	return p.activity
}

// ProcessBatchItem runs one job. Any failure is confined to the job's own
// item, which ends failed; the batch and its other items are unaffected.
func (p *Processor) ProcessBatchItem(ctx context.Context, job jobs.Payload) jobs.Result {
	result := jobs.Result{BatchItemID: job.BatchItemID}
	if job.BatchID == "" || job.BatchItemID == "" || job.UserID == "" {
		result.Error = common.ErrorMessage(common.NewValidationError("job", "batchId, batchItemId and userId are required"))
		return result
	}

	b, err := p.store.GetBatch(ctx, job.BatchID)
	if err != nil {
		result.Error = common.ErrorMessage(err)
		return result
	}
	if b.UserID != job.UserID {
		result.Error = common.ErrorMessage(common.NewAuthorizationError("batch", job.BatchID))
		return result
	}

	if b.Status == model.BatchStatusCancelled {
		if _, err := p.tracker.Skip(ctx, job.BatchItemID); err != nil && !errors.Is(err, service.ErrInvalidTransition) {
			result.Error = common.ErrorMessage(err)
			return result
		}
		p.logger.Info("skipped item of cancelled batch", "batch_id", job.BatchID, "item_id", job.BatchItemID)
		result.Skipped = true
		return result
	}

	// Step 1.
	if _, err := p.tracker.Start(ctx, job.BatchItemID); err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			// Another delivery of this job already took the item.
			p.logger.Info("item is not pending, ignoring job",
				"batch_id", job.BatchID,
				"item_id", job.BatchItemID,
				"event_id", job.EventID)
			result.Skipped = true
			return result
		}
		result.Error = common.ErrorMessage(err)
		return result
	}

	item, err := p.store.GetItem(ctx, job.BatchItemID)
	if err != nil {
		item = &model.ImportBatchItem{ID: job.BatchItemID, BatchID: job.BatchID, FileName: job.FileName}
	}

	start := time.Now()
	out, runErr := p.run(ctx, job)
	took := time.Since(start)

	// The item must reach a terminal state even if the job's context ended.
	finishCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		perr := asProcessingError(runErr)
		if out.documentID != "" {
			if err := p.store.MarkDocumentExcluded(finishCtx, out.documentID); err != nil {
				p.logger.Warn("failed to exclude document of failed item", "document_id", out.documentID, "error", err)
			}
		}
		if _, err := p.tracker.Fail(finishCtx, job.BatchItemID, out.documentID, perr); err != nil {
			common.LogError(err, "failed to mark item failed", common.Fields{"batch_id": job.BatchID, "item_id": job.BatchItemID})
		}
		p.activity.ItemFailed(finishCtx, item, perr.Message, took)
		common.LogError(runErr, "import item failed", common.Fields{
			"batch_id":    job.BatchID,
			"item_id":     job.BatchItemID,
			"file":        job.FileName,
			"retry_count": job.RetryCount,
			"duration_ms": took.Milliseconds(),
		})

		result.DocumentID = out.documentID
		result.Error = perr.Message
		result.ErrorCode = perr.Code
		return result
	}

	result.DocumentID = out.documentID
	if out.duplicate != nil {
		if _, err := p.tracker.MarkDuplicate(finishCtx, job.BatchItemID, out.documentID,
			out.duplicate.DocumentID, out.duplicate.MatchType); err != nil {
			result.Error = common.ErrorMessage(err)
			return result
		}
		p.activity.ItemDuplicate(finishCtx, item, out.duplicate.DocumentID, took)
		p.logger.Info("item is a duplicate",
			"batch_id", job.BatchID,
			"item_id", job.BatchItemID,
			"duplicate_of", out.duplicate.DocumentID,
			"match_type", out.duplicate.MatchType)

		result.Success = true
		result.IsDuplicate = true
		result.DuplicateOfDocumentID = out.duplicate.DocumentID
		return result
	}

	if _, err := p.tracker.Complete(finishCtx, job.BatchItemID, out.documentID); err != nil {
		result.Error = common.ErrorMessage(err)
		return result
	}
	p.activity.ItemCompleted(finishCtx, item, took)
	p.logger.Info("item completed",
		"batch_id", job.BatchID,
		"item_id", job.BatchItemID,
		"document_id", out.documentID,
		"transactions", out.saved,
		"duration_ms", took.Milliseconds())

	result.Success = true
	return result
}

type outcome struct {
	duplicate  *duplicate.Match
	documentID string
	saved      int
}

// run executes steps 2 to 5. A panic anywhere inside becomes an error.
func (p *Processor) run(ctx context.Context, job jobs.Payload) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.NewProcessingError(model.ErrorCodeProcessing, r)
		}
	}()

	// Step 2: extract and record the document.
	data, err := p.fetcher.Fetch(ctx, job.FileURL)
	if err != nil {
		return out, fmt.Errorf("fetch %s: %w", job.FileName, err)
	}

	format := job.FileFormat
	if format == "" {
		format = job.SourceFormat
	}
	if format == "" {
		format = model.FileFormatFromName(job.FileName)
	}
	hints := extract.Hints{
		ImportType:    job.ImportType,
		StatementType: job.StatementType,
		Currency:      job.Currency,
		DateFrom:      job.DateFrom,
		DateTo:        job.DateTo,
	}

	ex, err := p.extractor.Extract(ctx, extract.File{Name: job.FileName, Format: format, Data: data}, hints)
	if err != nil {
		return out, err
	}
	if ex == nil {
		return out, fmt.Errorf("extractor returned nothing for %s", job.FileName)
	}

	doc := &model.Document{
		UserID:       job.UserID,
		BatchItemID:  job.BatchItemID,
		Kind:         ex.Kind,
		FileName:     job.FileName,
		FileURL:      job.FileURL,
		ContentHash:  duplicate.HashContent(data),
		MerchantName: ex.MerchantName,
		Date:         ex.Date,
		Amount:       ex.Amount,
		Currency:     firstNonEmpty(ex.Currency, job.Currency),
		Confidence:   ex.Confidence,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return out, fmt.Errorf("save document: %w", err)
	}
	out.documentID = doc.ID

	// Step 3.
	match, err := p.detector.CheckDuplicate(ctx, doc)
	if err != nil {
		return out, err
	}

	// Step 4.
	if match != nil {
		if err := p.store.MarkDocumentExcluded(ctx, doc.ID); err != nil {
			return out, fmt.Errorf("exclude duplicate document: %w", err)
		}
		out.duplicate = match
		return out, nil
	}

	// Step 5.
	txns, err := p.transactions(ctx, job, doc, ex)
	if err != nil {
		return out, err
	}
	saved, err := p.store.SaveTransactions(ctx, txns)
	if err != nil {
		return out, fmt.Errorf("save transactions: %w", err)
	}
	out.saved = saved
	return out, nil
}

// transactions categorizes every transaction the extraction produced.
func (p *Processor) transactions(ctx context.Context, job jobs.Payload, doc *model.Document, ex *extract.Extraction) ([]model.Transaction, error) {
	var txns []model.Transaction
	if ex.Kind == model.DocumentKindReceipt {
		txType := ex.Type
		if !txType.Valid() {
			txType = model.TransactionTypeExpense
		}
		txns = append(txns, model.Transaction{
			Date:         ex.Date,
			Amount:       ex.Amount,
			MerchantName: ex.MerchantName,
			Description:  ex.Description,
			Type:         txType,
			Source:       model.SourceReceipt,
		})
	} else {
		for _, line := range ex.Lines {
			txns = append(txns, model.Transaction{
				Date:         line.Date,
				Amount:       line.Amount,
				MerchantName: line.MerchantName,
				Description:  line.Description,
				AccountID:    line.AccountID,
				Type:         line.Type,
				Source:       model.SourceBankStatement,
			})
		}
	}

	scope := categorize.Scope{UserID: job.UserID, StatementType: job.StatementType}
	for i := range txns {
		txn := &txns[i]
		txn.UserID = job.UserID
		txn.DocumentID = doc.ID
		txn.Currency = doc.Currency

		scope.TransactionType = txn.Type
		res, err := p.categorizer.CategorizeWithAI(ctx, txn.Input(), scope)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// Uncategorized transactions land in the review queue.
			p.logger.Warn("categorization failed, leaving uncategorized",
				"item_id", job.BatchItemID,
				"merchant", txn.MerchantName,
				"error", err)
			res = model.NoMatch()
		}

		txn.CategoryID = res.CategoryID
		txn.BusinessID = res.BusinessID
		if txn.BusinessID == "" {
			txn.BusinessID = job.DefaultBusinessID
		}
		p.logger.Debug("categorized transaction",
			"item_id", job.BatchItemID,
			"merchant", txn.MerchantName,
			"method", res.Method,
			"category", res.CategoryName,
			"confidence", res.Confidence)
	}
	return txns, nil
}

func asProcessingError(err error) *common.ProcessingError {
	var perr *common.ProcessingError
	if errors.As(err, &perr) {
		return perr
	}
	return common.NewProcessingError(model.ErrorCodeProcessing, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
