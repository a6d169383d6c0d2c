// Package testutil provides test databases and fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/storage"
)

// TestDB is a migrated in-memory database with seeding helpers.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. The system categories
// are seeded by the migrations; the database is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	coffee := db.MustCategory("user-1", "Coffee", model.TransactionTypeExpense)
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "failed to create test database")
	require.NoError(t, store.Migrate(context.Background()), "failed to run migrations")

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// MustCategory creates (or returns) a user category.
func (db *TestDB) MustCategory(userID, name string, txnType model.TransactionType) *model.Category {
	db.t.Helper()
	cat, _, err := db.Storage.InsertOrGetCategory(context.Background(), model.Category{
		Name:            name,
		Type:            model.CategoryTypeUser,
		TransactionType: txnType,
		UserID:          userID,
	})
	require.NoError(db.t, err)
	return cat
}

// MustSystemCategory returns a seeded system category by name.
func (db *TestDB) MustSystemCategory(name string) *model.Category {
	db.t.Helper()
	cats, err := db.Storage.ListCategoriesForUser(context.Background(), "fixture-reader")
	require.NoError(db.t, err)
	cat, ok := model.FindCategoryByName(cats, name)
	require.True(db.t, ok, "system category %q not seeded", name)
	return cat
}

// MustRule stores a rule for userID.
func (db *TestDB) MustRule(userID, categoryID string, field model.RuleField, matchType model.MatchType, pattern string) *model.CategoryRule {
	db.t.Helper()
	rule := &model.CategoryRule{
		UserID:     userID,
		CategoryID: categoryID,
		Field:      field,
		MatchType:  matchType,
		Pattern:    pattern,
	}
	require.NoError(db.t, db.Storage.CreateRule(context.Background(), rule))
	return rule
}

// MustBusiness stores a business for userID.
func (db *TestDB) MustBusiness(userID, name string) *model.Business {
	db.t.Helper()
	b := &model.Business{UserID: userID, Name: name}
	require.NoError(db.t, db.Storage.CreateBusiness(context.Background(), b))
	return b
}

// MustTransaction stores a categorized expense dated daysAgo days before now.
func (db *TestDB) MustTransaction(userID, merchant, amount, categoryID string, daysAgo int) *model.Transaction {
	db.t.Helper()
	txn := model.Transaction{
		UserID:       userID,
		Date:         time.Now().UTC().AddDate(0, 0, -daysAgo).Truncate(24 * time.Hour),
		Amount:       decimal.RequireFromString(amount),
		MerchantName: merchant,
		Source:       model.SourceManual,
		Type:         model.TransactionTypeExpense,
		CategoryID:   categoryID,
	}
	txns := []model.Transaction{txn}
	n, err := db.Storage.SaveTransactions(context.Background(), txns)
	require.NoError(db.t, err)
	require.Equal(db.t, 1, n, "transaction for %q already exists", merchant)
	return &txns[0]
}

// MustBatch creates a batch with one item per file name.
func (db *TestDB) MustBatch(userID string, importType model.ImportType, fileNames ...string) (*model.ImportBatch, []model.ImportBatchItem) {
	db.t.Helper()
	batch := &model.ImportBatch{UserID: userID, ImportType: importType}
	items := make([]model.ImportBatchItem, len(fileNames))
	for i, name := range fileNames {
		items[i] = model.ImportBatchItem{FileName: name, FileURL: "file:///tmp/" + name}
	}
	require.NoError(db.t, db.Storage.CreateBatch(context.Background(), batch, items))
	return batch, items
}
