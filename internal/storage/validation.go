package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidRule        = errors.New("invalid category rule")
	ErrInvalidBusiness    = errors.New("invalid business")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidBatch       = errors.New("invalid import batch")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateCategory(cat *model.Category) error {
	if strings.TrimSpace(cat.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCategory)
	}
	if !cat.TransactionType.Valid() {
		return fmt.Errorf("%w: transaction type %q", ErrInvalidCategory, cat.TransactionType)
	}
	switch cat.Type {
	case model.CategoryTypeSystem:
		if cat.UserID != "" {
			return fmt.Errorf("%w: system category cannot have an owner", ErrInvalidCategory)
		}
	case model.CategoryTypeUser:
		if cat.UserID == "" {
			return fmt.Errorf("%w: user category needs an owner", ErrInvalidCategory)
		}
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidCategory, cat.Type)
	}
	return nil
}

func validateRule(rule *model.CategoryRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if rule.UserID == "" || rule.CategoryID == "" {
		return fmt.Errorf("%w: missing owner or category", ErrInvalidRule)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if _, err := model.ParseMatchType(string(rule.MatchType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if _, err := model.ParseRuleField(string(rule.Field)); err != nil || rule.Field == "" {
		return fmt.Errorf("%w: field %q", ErrInvalidRule, rule.Field)
	}
	return nil
}

func validateBusiness(b *model.Business) error {
	if b == nil {
		return fmt.Errorf("%w: business", ErrNilParameter)
	}
	if b.UserID == "" || strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: missing owner or name", ErrInvalidBusiness)
	}
	if b.Type != model.BusinessTypeBusiness && b.Type != model.BusinessTypeContract {
		return fmt.Errorf("%w: type %q", ErrInvalidBusiness, b.Type)
	}
	return nil
}

func validateDocument(doc *model.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document", ErrNilParameter)
	}
	if doc.UserID == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidDocument)
	}
	if doc.ContentHash == "" {
		return fmt.Errorf("%w: missing content hash", ErrInvalidDocument)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn.UserID == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if !txn.Type.Valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, txn.Type)
	}
	if txn.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidTransaction)
	}
	return nil
}

func validateBatch(batch *model.ImportBatch, items []model.ImportBatchItem) error {
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}
	if batch.UserID == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidBatch)
	}
	if !batch.ImportType.Valid() {
		return fmt.Errorf("%w: import type %q", ErrInvalidBatch, batch.ImportType)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: no files", ErrInvalidBatch)
	}
	for i, item := range items {
		if item.FileName == "" || item.FileURL == "" {
			return fmt.Errorf("%w: item %d missing file name or location", ErrInvalidBatch, i)
		}
	}
	return nil
}
