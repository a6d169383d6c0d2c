// Package service defines the contracts between the core and its record store.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// ErrInvalidTransition is returned when an item update does not start from an allowed status.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// HistoryEntry is one previously categorized transaction used as precedent.
type HistoryEntry struct {
	Date         time.Time
	MerchantName string
	CategoryID   string
	CategoryName string
	BusinessID   string
}

// HistoryFilter narrows the categorized history a matcher looks at.
// An empty Merchant returns every merchant in the window.
type HistoryFilter struct {
	Since    time.Time
	Merchant string
}

// DocumentQuery selects prior documents of a user for duplicate detection.
// Documents belonging to the excluded batch item, earlier attempts included,
// and documents already excluded from totals never match. When
// ExcludeDocumentID names a stored document, only documents stored before it
// match.
type DocumentQuery struct {
	Date               time.Time
	UserID             string
	ContentHash        string
	MerchantName       string
	ExcludeDocumentID  string
	ExcludeBatchItemID string
}

// ItemUpdate describes one status transition of a batch item.
// The update is rejected with ErrInvalidTransition unless the item's
// current status is listed in From.
type ItemUpdate struct {
	From                  []model.ItemStatus
	Status                model.ItemStatus
	DocumentID            string
	DuplicateOfDocumentID string
	DuplicateMatchType    model.DuplicateMatchType
	ErrorMessage          string
	ErrorCode             string
	IncrementRetry        bool
}

// DeriveFunc recomputes a batch's status and counters from its full item set.
type DeriveFunc func(batch model.ImportBatch, items []model.ImportBatchItem, now time.Time) model.ImportBatch

// CategoryStore persists categories.
type CategoryStore interface {
	ListCategoriesForUser(ctx context.Context, userID string) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	// InsertOrGetCategory creates the category or returns the existing row with
	// the same (name, owner, transaction type). created reports which happened.
	InsertOrGetCategory(ctx context.Context, category model.Category) (cat *model.Category, created bool, err error)
	DeleteCategory(ctx context.Context, userID, id string) error
}

// RuleStore persists categorization rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.CategoryRule) error
	ListRulesForUser(ctx context.Context, userID string) ([]model.CategoryRule, error)
	FindRule(ctx context.Context, userID string, field model.RuleField, matchType model.MatchType, pattern string) (*model.CategoryRule, error)
	DeleteRule(ctx context.Context, userID, id string) error
}

// BusinessStore persists businesses.
type BusinessStore interface {
	CreateBusiness(ctx context.Context, business *model.Business) error
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	ListBusinesses(ctx context.Context, userID string) ([]model.Business, error)
	DeleteBusiness(ctx context.Context, userID, id string) error
}

// HistoryStore exposes a user's categorized history.
type HistoryStore interface {
	CategorizedHistory(ctx context.Context, userID string, filter HistoryFilter) ([]HistoryEntry, error)
}

// DocumentStore persists extracted documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	FindDocumentByHash(ctx context.Context, query DocumentQuery) (*model.Document, error)
	// FindFingerprintMatches returns documents, and documents backing imported
	// transactions, sharing merchant (case-insensitive) and date with the query.
	// Amounts are compared by the caller.
	FindFingerprintMatches(ctx context.Context, query DocumentQuery) ([]model.Document, error)
	MarkDocumentExcluded(ctx context.Context, id string) error
}

// TransactionStore persists categorized transactions.
type TransactionStore interface {
	// SaveTransactions inserts transactions, skipping any whose (user, hash) exists.
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (inserted int, err error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransactionCategory(ctx context.Context, id, categoryID, businessID string) error
}

// BatchStore persists import batches and their items.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *model.ImportBatch, items []model.ImportBatchItem) error
	GetBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	ListBatches(ctx context.Context, userID string, limit int) ([]model.ImportBatch, error)
	GetItem(ctx context.Context, id string) (*model.ImportBatchItem, error)
	ListItems(ctx context.Context, batchID string) ([]model.ImportBatchItem, error)
	// TransitionItem applies update and recomputes the parent batch with derive
	// in one transaction, returning the recomputed batch.
	TransitionItem(ctx context.Context, itemID string, update ItemUpdate, derive DeriveFunc) (*model.ImportBatch, error)
	RecomputeBatch(ctx context.Context, batchID string, derive DeriveFunc) (*model.ImportBatch, error)
	SetBatchCancelled(ctx context.Context, batchID string) error
}

// ActivityStore persists the append-only batch timeline.
type ActivityStore interface {
	AppendActivity(ctx context.Context, event *model.ActivityEvent) error
	ListActivity(ctx context.Context, batchID string) ([]model.ActivityEvent, error)
}

// Storage is the full record store used by the application.
type Storage interface {
	CategoryStore
	RuleStore
	BusinessStore
	HistoryStore
	DocumentStore
	TransactionStore
	BatchStore
	ActivityStore

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
