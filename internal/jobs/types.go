// Package jobs defines the import job contract and the sender that
// publishes one job per batch item.
package jobs

import (
	"context"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Payload is everything a worker needs to process one batch item.
type Payload struct {
	DateFrom          *time.Time       `json:"dateFrom,omitempty"`
	DateTo            *time.Time       `json:"dateTo,omitempty"`
	EventID           string           `json:"eventId,omitempty"`
	BatchID           string           `json:"batchId"`
	BatchItemID       string           `json:"batchItemId"`
	UserID            string           `json:"userId"`
	FileURL           string           `json:"fileUrl"`
	FileName          string           `json:"fileName"`
	FileFormat        string           `json:"fileFormat"`
	ImportType        model.ImportType `json:"importType"`
	SourceFormat      string           `json:"sourceFormat,omitempty"`
	StatementType     string           `json:"statementType,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	DefaultBusinessID string           `json:"defaultBusinessId,omitempty"`
	Order             int              `json:"order"`
	RetryCount        int              `json:"retryCount"`
}

// PayloadFor builds the job for one item of b, copying the batch defaults.
func PayloadFor(b *model.ImportBatch, item *model.ImportBatchItem) Payload {
	return Payload{
		BatchID:           b.ID,
		BatchItemID:       item.ID,
		UserID:            b.UserID,
		FileURL:           item.FileURL,
		FileName:          item.FileName,
		FileFormat:        item.FileFormat,
		ImportType:        b.ImportType,
		SourceFormat:      b.Defaults.SourceFormat,
		StatementType:     b.Defaults.StatementType,
		Currency:          b.Defaults.Currency,
		DefaultBusinessID: b.Defaults.DefaultBusinessID,
		DateFrom:          b.Defaults.DateFrom,
		DateTo:            b.Defaults.DateTo,
		Order:             item.Order,
		RetryCount:        item.RetryCount,
	}
}

// Result is the outcome of processing one payload.
type Result struct {
	BatchItemID           string `json:"batchItemId"`
	DocumentID            string `json:"documentId,omitempty"`
	DuplicateOfDocumentID string `json:"duplicateOfDocumentId,omitempty"`
	Error                 string `json:"error,omitempty"`
	ErrorCode             string `json:"errorCode,omitempty"`
	Success               bool   `json:"success"`
	IsDuplicate           bool   `json:"isDuplicate,omitempty"`
	// Skipped is set when the item was not processed, because its batch
	// was cancelled or another delivery already handled it.
	Skipped bool `json:"skipped,omitempty"`
}

// Handler processes one job. It reports failure through Result and never
// returns an error, so one bad file cannot stop a worker.
type Handler func(ctx context.Context, job Payload) Result

// Publisher delivers jobs to workers.
type Publisher interface {
	// Publish enqueues job and returns the event id it was given.
	Publish(ctx context.Context, job Payload) (eventID string, err error)
	Close() error
}

// Consumer runs a Handler over delivered jobs.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	// Stop stops taking jobs and waits for in-flight ones to finish.
	Stop(ctx context.Context) error
}
