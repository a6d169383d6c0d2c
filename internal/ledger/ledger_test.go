package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/testutil"
)

func TestService_List_DeletedBusinessReadsAsPersonal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	biz := db.MustBusiness("user-1", "Side Gig")
	txn := db.MustTransaction("user-1", "Staples", "42.00", "", 3)
	require.NoError(t, db.Storage.UpdateTransactionCategory(ctx, txn.ID, "", biz.ID))

	svc := NewService(db.Storage, nil)
	entries, err := svc.List(ctx, "user-1", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Side Gig", entries[0].BusinessName)

	require.NoError(t, db.Storage.DeleteBusiness(ctx, "user-1", biz.ID))

	entries, err = svc.List(ctx, "user-1", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, biz.ID, entries[0].BusinessID, "the reference is preserved")
	assert.Equal(t, model.PersonalLabel, entries[0].BusinessName)
	assert.Equal(t, UncategorizedLabel, entries[0].CategoryName)
}

func TestService_List_ResolvesNames(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	groceries := db.MustCategory("user-1", "Groceries", model.TransactionTypeExpense)
	db.MustTransaction("user-1", "Trader Joe's", "61.20", groceries.ID, 1)
	db.MustTransaction("user-1", "Mystery", "5.00", "", 2)
	db.MustTransaction("user-2", "Not Mine", "9.00", "", 1)

	entries, err := NewService(db.Storage, nil).List(ctx, "user-1", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Trader Joe's", entries[0].MerchantName, "newest first")
	assert.Equal(t, "Groceries", entries[0].CategoryName)
	assert.Equal(t, model.PersonalLabel, entries[0].BusinessName)
	assert.Equal(t, UncategorizedLabel, entries[1].CategoryName)
}

func TestService_Report_SkipsExcludedDocuments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	doc := &model.Document{UserID: "user-1", Kind: model.DocumentKindReceipt, FileName: "a.jpg", ContentHash: "h1"}
	require.NoError(t, db.Storage.CreateDocument(ctx, doc))
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	_, err := db.Storage.SaveTransactions(ctx, []model.Transaction{
		{UserID: "user-1", DocumentID: doc.ID, Date: day, Amount: decimal.RequireFromString("30"), MerchantName: "Cafe", Type: model.TransactionTypeExpense, Source: model.SourceReceipt},
		{UserID: "user-1", Date: day.AddDate(0, 0, 1), Amount: decimal.RequireFromString("100"), MerchantName: "Client", Type: model.TransactionTypeIncome, Source: model.SourceManual},
	})
	require.NoError(t, err)

	svc := NewService(db.Storage, nil)
	before, err := svc.Report(ctx, "user-1", Filter{})
	require.NoError(t, err)
	assert.True(t, before.Totals.Expenses.Equal(decimal.RequireFromString("30")))
	assert.True(t, before.Totals.Net.Equal(decimal.RequireFromString("70")))
	assert.Equal(t, day, before.Start)
	assert.Equal(t, day.AddDate(0, 0, 1), before.End)

	require.NoError(t, db.Storage.MarkDocumentExcluded(ctx, doc.ID))

	after, err := svc.Report(ctx, "user-1", Filter{})
	require.NoError(t, err)
	assert.Len(t, after.Entries, 2, "excluded entries stay listed")
	assert.True(t, after.Totals.Expenses.IsZero())
	assert.True(t, after.Totals.Income.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, 1, after.Totals.Count)
	assert.Equal(t, 1, after.Totals.Excluded)
}

func TestService_List_RequiresUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, err := NewService(db.Storage, nil).List(context.Background(), "", Filter{})
	var authErr *common.AuthorizationError
	assert.True(t, errors.As(err, &authErr))
}

func TestTotal(t *testing.T) {
	d := decimal.RequireFromString
	entries := []Entry{
		{Transaction: model.Transaction{Amount: d("10"), Type: model.TransactionTypeExpense}, CategoryName: "Coffee", BusinessName: "Personal"},
		{Transaction: model.Transaction{Amount: d("15"), Type: model.TransactionTypeExpense}, CategoryName: "Coffee", BusinessName: "Acme"},
		{Transaction: model.Transaction{Amount: d("40"), Type: model.TransactionTypeExpense}, CategoryName: "Travel", BusinessName: "Acme"},
		{Transaction: model.Transaction{Amount: d("500"), Type: model.TransactionTypeIncome}, CategoryName: "Consulting", BusinessName: "Acme"},
		{Transaction: model.Transaction{Amount: d("999"), Type: model.TransactionTypeExpense}, CategoryName: "Travel", BusinessName: "Acme", Excluded: true},
	}

	totals := Total(entries)
	assert.True(t, totals.Income.Equal(d("500")))
	assert.True(t, totals.Expenses.Equal(d("65")))
	assert.True(t, totals.Net.Equal(d("435")))
	assert.Equal(t, 4, totals.Count)
	assert.Equal(t, 1, totals.Excluded)

	require.Len(t, totals.ByCategory, 3)
	assert.Equal(t, "Consulting", totals.ByCategory[0].Name)
	assert.Equal(t, "Travel", totals.ByCategory[1].Name)
	assert.Equal(t, "Coffee", totals.ByCategory[2].Name)
	assert.Equal(t, 2, totals.ByCategory[2].Count)

	require.Len(t, totals.ByBusiness, 2)
	assert.Equal(t, "Acme", totals.ByBusiness[0].Name)
	assert.True(t, totals.ByBusiness[0].Expenses.Equal(d("55")))
	assert.True(t, totals.ByBusiness[0].Income.Equal(d("500")))
}
