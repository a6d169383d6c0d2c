// Package ledger is the read model over categorized transactions: each row
// carries its category and business names, and totals leave out documents
// excluded from totals.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// UncategorizedLabel is shown for transactions awaiting review.
const UncategorizedLabel = "Uncategorized"

// Store is what the ledger reads.
type Store interface {
	ListTransactions(ctx context.Context, userID string, filter service.TransactionFilter) ([]model.Transaction, error)
	ListCategoriesForUser(ctx context.Context, userID string) ([]model.Category, error)
	ListBusinesses(ctx context.Context, userID string) ([]model.Business, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
}

// Entry is a transaction with its display names resolved.
type Entry struct {
	model.Transaction
	CategoryName string
	BusinessName string
	// Excluded is set when the backing document is excluded from totals.
	Excluded bool
}

// Filter narrows a ledger listing.
type Filter struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

// CategoryTotal sums one category.
type CategoryTotal struct {
	Name   string
	Type   model.TransactionType
	Amount decimal.Decimal
	Count  int
}

// BusinessTotal sums one business.
type BusinessTotal struct {
	Name     string
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Count    int
}

// Totals aggregates the entries that count toward totals.
type Totals struct {
	Income     decimal.Decimal
	Expenses   decimal.Decimal
	Net        decimal.Decimal
	Count      int
	Excluded   int
	ByCategory []CategoryTotal
	ByBusiness []BusinessTotal
}

// Report is a ledger listing with its totals.
type Report struct {
	Start   time.Time
	End     time.Time
	Entries []Entry
	Totals  Totals
}

// Service answers ledger queries.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger.With("component", "ledger")}
}

// List returns the user's transactions, newest first, with names resolved.
// A business id that no longer resolves, because the business was deleted,
// reads as Personal.
func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]Entry, error) {
	if userID == "" {
		return nil, &common.AuthorizationError{Resource: "ledger", Err: common.ErrUnauthenticated}
	}

	txns, err := s.store.ListTransactions(ctx, userID, service.TransactionFilter{
		StartDate: filter.Start,
		EndDate:   filter.End,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	categories, err := s.store.ListCategoriesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	businesses, err := s.store.ListBusinesses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}

	categoryNames := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryNames[c.ID] = c.Name
	}
	businessNames := make(map[string]string, len(businesses))
	for _, b := range businesses {
		businessNames[b.ID] = b.Name
	}

	excluded := make(map[string]bool)
	entries := make([]Entry, 0, len(txns))
	for _, txn := range txns {
		entry := Entry{
			Transaction:  txn,
			CategoryName: UncategorizedLabel,
			BusinessName: model.PersonalLabel,
		}
		if name, ok := categoryNames[txn.CategoryID]; ok {
			entry.CategoryName = name
		}
		if name, ok := businessNames[txn.BusinessID]; ok {
			entry.BusinessName = name
		}

		if txn.DocumentID != "" {
			ex, seen := excluded[txn.DocumentID]
			if !seen {
				ex, err = s.documentExcluded(ctx, txn.DocumentID)
				if err != nil {
					return nil, err
				}
				excluded[txn.DocumentID] = ex
			}
			entry.Excluded = ex
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) documentExcluded(ctx context.Context, id string) (bool, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		s.logger.Debug("transaction references a missing document", "document_id", id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load document: %w", err)
	}
	return doc.IsExcludedFromTotals, nil
}

// Report lists entries and totals them.
func (s *Service) Report(ctx context.Context, userID string, filter Filter) (*Report, error) {
	entries, err := s.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	report := &Report{Entries: entries, Totals: Total(entries)}
	if filter.Start != nil {
		report.Start = *filter.Start
	}
	if filter.End != nil {
		report.End = *filter.End
	}
	// Open ends take the span of the entries.
	for _, e := range entries {
		if filter.Start == nil && (report.Start.IsZero() || e.Date.Before(report.Start)) {
			report.Start = e.Date
		}
		if filter.End == nil && e.Date.After(report.End) {
			report.End = e.Date
		}
	}
	return report, nil
}

// Total sums entries. Excluded entries are counted but not summed.
func Total(entries []Entry) Totals {
	var totals Totals
	byCategory := make(map[string]*CategoryTotal)
	byBusiness := make(map[string]*BusinessTotal)

	for _, e := range entries {
		if e.Excluded {
			totals.Excluded++
			continue
		}
		totals.Count++

		key := e.CategoryName + "\x00" + string(e.Type)
		ct, ok := byCategory[key]
		if !ok {
			ct = &CategoryTotal{Name: e.CategoryName, Type: e.Type}
			byCategory[key] = ct
		}
		ct.Amount = ct.Amount.Add(e.Amount)
		ct.Count++

		bt, ok := byBusiness[e.BusinessName]
		if !ok {
			bt = &BusinessTotal{Name: e.BusinessName}
			byBusiness[e.BusinessName] = bt
		}
		bt.Count++

		if e.Type == model.TransactionTypeIncome {
			totals.Income = totals.Income.Add(e.Amount)
			bt.Income = bt.Income.Add(e.Amount)
		} else {
			totals.Expenses = totals.Expenses.Add(e.Amount)
			bt.Expenses = bt.Expenses.Add(e.Amount)
		}
	}
	totals.Net = totals.Income.Sub(totals.Expenses)

	for _, ct := range byCategory {
		totals.ByCategory = append(totals.ByCategory, *ct)
	}
	sort.Slice(totals.ByCategory, func(i, j int) bool {
		a, b := totals.ByCategory[i], totals.ByCategory[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Name < b.Name
	})

	for _, bt := range byBusiness {
		totals.ByBusiness = append(totals.ByBusiness, *bt)
	}
	sort.Slice(totals.ByBusiness, func(i, j int) bool {
		return totals.ByBusiness[i].Name < totals.ByBusiness[j].Name
	})
	return totals
}
