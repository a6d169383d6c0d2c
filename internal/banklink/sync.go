package banklink

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Line is one normalized bank transaction. Amount is signed: negative for
// money leaving the account.
type Line struct {
	Date         time.Time
	Amount       decimal.Decimal
	ExternalID   string
	AccountID    string
	MerchantName string
	Description  string
	Currency     string
	Pending      bool
}

// Provider emits normalized transactions for a date range.
type Provider interface {
	Name() string
	Transactions(ctx context.Context, start, end time.Time) ([]Line, error)
}

// Categorizer is the categorization path shared with file imports.
type Categorizer interface {
	CategorizeWithAI(ctx context.Context, in model.TransactionInput, scope categorize.Scope) (model.CategorizationResult, error)
}

// TransactionSaver stores transactions, skipping ones already present.
type TransactionSaver interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Fetched       int
	Pending       int
	Saved         int
	AlreadyKnown  int
	Categorized   int
	Uncategorized int
}

// Syncer books bank link transactions for a user.
type Syncer struct {
	provider    Provider
	categorizer Categorizer
	store       TransactionSaver
	logger      *slog.Logger
	currency    string
}

// NewSyncer creates a Syncer. currency applies to lines that carry none.
func NewSyncer(provider Provider, categorizer Categorizer, store TransactionSaver, currency string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		provider:    provider,
		categorizer: categorizer,
		store:       store,
		currency:    currency,
		logger:      logger.With("component", "bank_sync"),
	}
}

// Sync fetches transactions between start and end and stores the posted
// ones. Pending lines are left for a later sync, once they post.
func (s *Syncer) Sync(ctx context.Context, userID string, start, end time.Time) (SyncResult, error) {
	var result SyncResult
	if userID == "" {
		return result, &common.AuthorizationError{Resource: "bank link", Err: common.ErrUnauthenticated}
	}

	lines, err := s.provider.Transactions(ctx, start, end)
	if err != nil {
		return result, fmt.Errorf("failed to fetch from %s: %w", s.provider.Name(), err)
	}
	result.Fetched = len(lines)

	txns := make([]model.Transaction, 0, len(lines))
	for _, line := range lines {
		if line.Pending {
			result.Pending++
			continue
		}
		if line.Amount.IsZero() {
			continue
		}

		txn := toTransaction(userID, line, s.currency)
		res, err := s.categorizer.CategorizeWithAI(ctx, txn.Input(), categorize.Scope{
			UserID:          userID,
			TransactionType: txn.Type,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			s.logger.Warn("categorization failed, leaving uncategorized",
				"merchant", txn.MerchantName,
				"error", err)
			res = model.NoMatch()
		}
		txn.CategoryID = res.CategoryID
		txn.BusinessID = res.BusinessID
		if txn.CategoryID == "" {
			result.Uncategorized++
		} else {
			result.Categorized++
		}
		txns = append(txns, txn)
	}

	saved, err := s.store.SaveTransactions(ctx, txns)
	if err != nil {
		return result, fmt.Errorf("failed to save bank transactions: %w", err)
	}
	result.Saved = saved
	result.AlreadyKnown = len(txns) - saved

	s.logger.Info("bank link sync finished",
		"user_id", userID,
		"provider", s.provider.Name(),
		"fetched", result.Fetched,
		"pending", result.Pending,
		"saved", result.Saved,
		"already_known", result.AlreadyKnown)
	return result, nil
}

func toTransaction(userID string, line Line, fallbackCurrency string) model.Transaction {
	txType := model.TransactionTypeIncome
	if line.Amount.IsNegative() {
		txType = model.TransactionTypeExpense
	}
	currency := line.Currency
	if currency == "" {
		currency = fallbackCurrency
	}

	txn := model.Transaction{
		UserID:       userID,
		Date:         line.Date,
		Amount:       line.Amount.Abs(),
		MerchantName: line.MerchantName,
		Description:  line.Description,
		AccountID:    line.AccountID,
		Currency:     currency,
		Type:         txType,
		Source:       model.SourceBankLink,
	}
	if line.ExternalID != "" {
		// The provider id is stable across syncs, so it alone identifies the row.
		txn.Hash = fmt.Sprintf("%x", sha256.Sum256([]byte("banklink:"+line.ExternalID)))
	} else {
		txn.Hash = txn.GenerateHash()
	}
	return txn
}
