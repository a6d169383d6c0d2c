package storage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// countingDerive is a minimal derivation used to observe what storage hands it.
func countingDerive(batch model.ImportBatch, items []model.ImportBatchItem, _ time.Time) model.ImportBatch {
	counters := model.BatchCounters{TotalFiles: len(items)}
	for _, item := range items {
		switch item.Status {
		case model.ItemStatusCompleted:
			counters.SuccessfulFiles++
			counters.ProcessedFiles++
		case model.ItemStatusFailed:
			counters.FailedFiles++
			counters.ProcessedFiles++
		case model.ItemStatusDuplicate:
			counters.DuplicateFiles++
			counters.ProcessedFiles++
		}
	}
	batch.BatchCounters = counters
	if counters.ProcessedFiles == counters.TotalFiles {
		batch.Status = model.BatchStatusCompleted
	} else {
		batch.Status = model.BatchStatusProcessing
	}
	return batch
}

func TestMigrate_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	cats, err := store.ListCategoriesForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, cats, len(systemCategories))
	for _, c := range cats {
		assert.True(t, c.IsSystem(), "%s should be a system category", c.Name)
	}
}

func TestInsertOrGetCategory(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first, created, err := store.InsertOrGetCategory(ctx, model.Category{
		Name: "Coffee Shops", TransactionType: model.TransactionTypeExpense, UserID: "user-1",
	})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.InsertOrGetCategory(ctx, model.Category{
		Name: "  coffee shops ", TransactionType: model.TransactionTypeExpense, UserID: "user-1",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Coffee Shops", again.Name)

	other, created, err := store.InsertOrGetCategory(ctx, model.Category{
		Name: "Coffee Shops", TransactionType: model.TransactionTypeExpense, UserID: "user-2",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	income, created, err := store.InsertOrGetCategory(ctx, model.Category{
		Name: "Coffee Shops", TransactionType: model.TransactionTypeIncome, UserID: "user-1",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, income.ID)
}

func TestInsertOrGetCategory_ConcurrentProposalsResolveToOneRow(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	createdCount := 0
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cat, created, err := store.InsertOrGetCategory(ctx, model.Category{
				Name: "Pet Supplies", TransactionType: model.TransactionTypeExpense, UserID: "user-1",
			})
			assert.NoError(t, err)
			if cat != nil {
				ids[i] = cat.ID
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	cats, err := store.ListCategoriesForUser(ctx, "user-1")
	require.NoError(t, err)
	matches := 0
	for _, c := range cats {
		if c.Name == "Pet Supplies" {
			matches++
		}
	}
	assert.Equal(t, 1, matches)
}

func TestInsertOrGetCategory_Validation(t *testing.T) {
	store := createTestStorage(t)

	_, _, err := store.InsertOrGetCategory(context.Background(), model.Category{
		Name: "", TransactionType: model.TransactionTypeExpense, UserID: "user-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestDeleteCategory(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	cat, _, err := store.InsertOrGetCategory(ctx, model.Category{
		Name: "Hobbies", TransactionType: model.TransactionTypeExpense, UserID: "user-1",
	})
	require.NoError(t, err)

	t.Run("system categories are protected", func(t *testing.T) {
		err := store.DeleteCategory(ctx, "user-1", "system:groceries")
		var authErr *common.AuthorizationError
		assert.True(t, errors.As(err, &authErr))
	})

	t.Run("other users cannot delete", func(t *testing.T) {
		err := store.DeleteCategory(ctx, "user-2", cat.ID)
		var authErr *common.AuthorizationError
		assert.True(t, errors.As(err, &authErr))
	})

	t.Run("categories in use are kept", func(t *testing.T) {
		used, _, err := store.InsertOrGetCategory(ctx, model.Category{
			Name: "Books", TransactionType: model.TransactionTypeExpense, UserID: "user-1",
		})
		require.NoError(t, err)
		_, err = store.SaveTransactions(ctx, []model.Transaction{{
			UserID: "user-1", Date: day("2026-03-01"), Amount: decimal.NewFromInt(12),
			MerchantName: "Bookshop", Type: model.TransactionTypeExpense, Source: model.SourceManual,
			CategoryID: used.ID,
		}})
		require.NoError(t, err)

		err = store.DeleteCategory(ctx, "user-1", used.ID)
		assert.ErrorIs(t, err, common.ErrInUse)
	})

	t.Run("owner deletes", func(t *testing.T) {
		require.NoError(t, store.DeleteCategory(ctx, "user-1", cat.ID))
		_, err := store.GetCategory(ctx, cat.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestRules_InsertionOrderAndOwnership(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	mine, _, err := store.InsertOrGetCategory(ctx, model.Category{
		Name: "Coffee", TransactionType: model.TransactionTypeExpense, UserID: "user-1",
	})
	require.NoError(t, err)

	patterns := []string{"starbucks", "peet", "blue bottle"}
	for _, p := range patterns {
		require.NoError(t, store.CreateRule(ctx, &model.CategoryRule{
			UserID: "user-1", CategoryID: mine.ID, Field: model.RuleFieldMerchantName,
			MatchType: model.MatchContains, Pattern: p,
		}))
	}

	rules, err := store.ListRulesForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for i, p := range patterns {
		assert.Equal(t, p, rules[i].Pattern)
	}
	assert.Less(t, rules[0].Seq, rules[1].Seq)

	found, err := store.FindRule(ctx, "user-1", model.RuleFieldMerchantName, model.MatchContains, "PEET")
	require.NoError(t, err)
	assert.Equal(t, rules[1].ID, found.ID)

	err = store.CreateRule(ctx, &model.CategoryRule{
		UserID: "user-2", CategoryID: mine.ID, Field: model.RuleFieldMerchantName,
		MatchType: model.MatchExact, Pattern: "x",
	})
	var authErr *common.AuthorizationError
	assert.True(t, errors.As(err, &authErr), "rule on another user's category must be rejected")

	require.NoError(t, store.CreateRule(ctx, &model.CategoryRule{
		UserID: "user-2", CategoryID: "system:dining", Field: model.RuleFieldDescription,
		MatchType: model.MatchRegex, Pattern: "^lunch",
	}), "system categories are usable by everyone")

	assert.True(t, errors.As(store.DeleteRule(ctx, "user-2", rules[0].ID), &authErr))
	require.NoError(t, store.DeleteRule(ctx, "user-1", rules[0].ID))
}

func TestSaveTransactions_SkipsExistingHashes(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	txns := []model.Transaction{
		{UserID: "user-1", Date: day("2026-02-01"), Amount: decimal.RequireFromString("4.50"),
			MerchantName: "Starbucks", Type: model.TransactionTypeExpense, Source: model.SourceBankStatement},
		{UserID: "user-1", Date: day("2026-02-02"), Amount: decimal.RequireFromString("60.00"),
			MerchantName: "Shell", Type: model.TransactionTypeExpense, Source: model.SourceBankStatement},
	}
	n, err := store.SaveTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	reimport := []model.Transaction{
		{UserID: "user-1", Date: day("2026-02-01"), Amount: decimal.RequireFromString("4.5"),
			MerchantName: "STARBUCKS", Type: model.TransactionTypeExpense, Source: model.SourceBankStatement},
		{UserID: "user-1", Date: day("2026-02-03"), Amount: decimal.RequireFromString("9.99"),
			MerchantName: "Netflix", Type: model.TransactionTypeExpense, Source: model.SourceBankStatement},
	}
	n, err = store.SaveTransactions(ctx, reimport)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := store.ListTransactions(ctx, "user-1", service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Netflix", all[0].MerchantName, "newest first")
	assert.True(t, all[2].Amount.Equal(decimal.RequireFromString("4.50")))
}

func TestSaveTransactions_RejectsNegativeAmounts(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.SaveTransactions(context.Background(), []model.Transaction{{
		UserID: "user-1", Date: day("2026-02-01"), Amount: decimal.NewFromInt(-5),
		Type: model.TransactionTypeExpense, Source: model.SourceManual,
	}})
	assert.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestCategorizedHistory(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.SaveTransactions(ctx, []model.Transaction{
		{UserID: "user-1", Date: day("2026-01-10"), Amount: decimal.NewFromInt(5), MerchantName: "Starbucks",
			Type: model.TransactionTypeExpense, Source: model.SourceManual, CategoryID: "system:dining"},
		{UserID: "user-1", Date: day("2025-06-01"), Amount: decimal.NewFromInt(6), MerchantName: "Starbucks",
			Type: model.TransactionTypeExpense, Source: model.SourceManual, CategoryID: "system:groceries"},
		{UserID: "user-1", Date: day("2026-01-11"), Amount: decimal.NewFromInt(7), MerchantName: "Uber",
			Type: model.TransactionTypeExpense, Source: model.SourceManual, CategoryID: "system:transportation"},
		{UserID: "user-1", Date: day("2026-01-12"), Amount: decimal.NewFromInt(8), MerchantName: "Starbucks",
			Type: model.TransactionTypeExpense, Source: model.SourceManual},
		{UserID: "user-2", Date: day("2026-01-12"), Amount: decimal.NewFromInt(8), MerchantName: "Starbucks",
			Type: model.TransactionTypeExpense, Source: model.SourceManual, CategoryID: "system:dining"},
	})
	require.NoError(t, err)

	entries, err := store.CategorizedHistory(ctx, "user-1", service.HistoryFilter{
		Since: day("2026-01-01"), Merchant: "starbucks",
	})
	require.NoError(t, err)
	require.Len(t, entries, 1, "uncategorized, old and other users' rows are excluded")
	assert.Equal(t, "Dining", entries[0].CategoryName)

	all, err := store.CategorizedHistory(ctx, "user-1", service.HistoryFilter{Since: day("2026-01-01")})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Uber", all[0].MerchantName)
}

func TestDeletedBusinessLeavesTransactionsIntact(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	biz := &model.Business{UserID: "user-1", Name: "Acme Consulting"}
	require.NoError(t, store.CreateBusiness(ctx, biz))

	txns := []model.Transaction{{
		UserID: "user-1", Date: day("2026-02-01"), Amount: decimal.NewFromInt(40), MerchantName: "Staples",
		Type: model.TransactionTypeExpense, Source: model.SourceManual,
		CategoryID: "system:office-supplies", BusinessID: biz.ID,
	}}
	_, err := store.SaveTransactions(ctx, txns)
	require.NoError(t, err)

	assert.True(t, errors.As(store.DeleteBusiness(ctx, "user-2", biz.ID), new(*common.AuthorizationError)))
	require.NoError(t, store.DeleteBusiness(ctx, "user-1", biz.ID))

	got, err := store.GetTransaction(ctx, txns[0].ID)
	require.NoError(t, err)
	assert.Equal(t, biz.ID, got.BusinessID)

	_, err = store.GetBusiness(ctx, biz.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDocuments_HashLookupExcludesSameItem(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	original := &model.Document{UserID: "user-1", BatchItemID: "item-a", Kind: model.DocumentKindReceipt,
		ContentHash: "abc", MerchantName: "Starbucks", Date: day("2026-02-01"),
		Amount: decimal.RequireFromString("5.75")}
	require.NoError(t, store.CreateDocument(ctx, original))

	retry := &model.Document{UserID: "user-1", BatchItemID: "item-a", Kind: model.DocumentKindReceipt,
		ContentHash: "abc"}
	require.NoError(t, store.CreateDocument(ctx, retry))

	_, err := store.FindDocumentByHash(ctx, service.DocumentQuery{
		UserID: "user-1", ContentHash: "abc", ExcludeDocumentID: retry.ID, ExcludeBatchItemID: "item-a",
	})
	assert.ErrorIs(t, err, common.ErrNotFound, "earlier attempts of the same item are not duplicates")

	found, err := store.FindDocumentByHash(ctx, service.DocumentQuery{
		UserID: "user-1", ContentHash: "abc", ExcludeBatchItemID: "item-b",
	})
	require.NoError(t, err)
	assert.Equal(t, original.ID, found.ID)

	_, err = store.FindDocumentByHash(ctx, service.DocumentQuery{UserID: "user-2", ContentHash: "abc"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.MarkDocumentExcluded(ctx, original.ID))
	require.NoError(t, store.MarkDocumentExcluded(ctx, retry.ID))
	_, err = store.FindDocumentByHash(ctx, service.DocumentQuery{UserID: "user-1", ContentHash: "abc"})
	assert.ErrorIs(t, err, common.ErrNotFound, "excluded documents never match")
}

func TestDocuments_OnlyEarlierDocumentsMatch(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	mk := func(item string) *model.Document {
		doc := &model.Document{UserID: "user-1", BatchItemID: item, Kind: model.DocumentKindReceipt,
			ContentHash: "same", MerchantName: "Cafe", Date: day("2026-02-01"),
			Amount: decimal.RequireFromString("4.50")}
		require.NoError(t, store.CreateDocument(ctx, doc))
		return doc
	}
	first, second := mk("item-a"), mk("item-b")

	query := func(doc *model.Document) service.DocumentQuery {
		return service.DocumentQuery{UserID: "user-1", ContentHash: "same", MerchantName: "Cafe",
			Date: day("2026-02-01"), ExcludeDocumentID: doc.ID, ExcludeBatchItemID: doc.BatchItemID}
	}

	_, err := store.FindDocumentByHash(ctx, query(first))
	assert.ErrorIs(t, err, common.ErrNotFound, "a later upload is never the original")
	matches, err := store.FindFingerprintMatches(ctx, query(first))
	require.NoError(t, err)
	assert.Empty(t, matches)

	found, err := store.FindDocumentByHash(ctx, query(second))
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	matches, err = store.FindFingerprintMatches(ctx, query(second))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, first.ID, matches[0].ID)
}

func TestDocuments_FingerprintMatches(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	doc := &model.Document{UserID: "user-1", BatchItemID: "item-a", Kind: model.DocumentKindReceipt,
		ContentHash: "h1", MerchantName: "Whole Foods", Date: day("2026-02-01"),
		Amount: decimal.RequireFromString("82.10")}
	require.NoError(t, store.CreateDocument(ctx, doc))

	matches, err := store.FindFingerprintMatches(ctx, service.DocumentQuery{
		UserID: "user-1", MerchantName: "WHOLE FOODS", Date: day("2026-02-01"), ExcludeBatchItemID: "item-b",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, doc.ID, matches[0].ID)
	assert.True(t, matches[0].Amount.Equal(decimal.RequireFromString("82.1")))

	matches, err = store.FindFingerprintMatches(ctx, service.DocumentQuery{
		UserID: "user-1", MerchantName: "Whole Foods", Date: day("2026-02-02"),
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTransitionItem(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	batch := &model.ImportBatch{UserID: "user-1", ImportType: model.ImportTypeReceipts}
	items := []model.ImportBatchItem{
		{FileName: "a.jpg", FileURL: "file:///a.jpg"},
		{FileName: "b.pdf", FileURL: "file:///b.pdf"},
	}
	require.NoError(t, store.CreateBatch(ctx, batch, items))
	assert.Equal(t, 2, batch.TotalFiles)
	assert.Equal(t, "jpg", items[0].FileFormat)

	got, err := store.TransitionItem(ctx, items[0].ID, service.ItemUpdate{
		From:   []model.ItemStatus{model.ItemStatusPending},
		Status: model.ItemStatusProcessing,
	}, countingDerive)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusProcessing, got.Status)

	_, err = store.TransitionItem(ctx, items[0].ID, service.ItemUpdate{
		From:   []model.ItemStatus{model.ItemStatusPending},
		Status: model.ItemStatusProcessing,
	}, countingDerive)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = store.TransitionItem(ctx, items[0].ID, service.ItemUpdate{
		From:         []model.ItemStatus{model.ItemStatusProcessing},
		Status:       model.ItemStatusFailed,
		ErrorMessage: "boom",
		ErrorCode:    model.ErrorCodeProcessing,
	}, countingDerive)
	require.NoError(t, err)

	got, err = store.TransitionItem(ctx, items[1].ID, service.ItemUpdate{
		From:   []model.ItemStatus{model.ItemStatusPending},
		Status: model.ItemStatusCompleted, DocumentID: "doc-1",
	}, countingDerive)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedFiles)

	stored, err := store.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, got.BatchCounters, stored.BatchCounters)

	// Retry clears the failed attempt's outcome.
	_, err = store.TransitionItem(ctx, items[0].ID, service.ItemUpdate{
		From:           []model.ItemStatus{model.ItemStatusFailed},
		Status:         model.ItemStatusPending,
		IncrementRetry: true,
	}, countingDerive)
	require.NoError(t, err)
	item, err := store.GetItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.RetryCount)
	assert.Empty(t, item.ErrorMessage)
	assert.Empty(t, item.ErrorCode)

	listed, err := store.ListItems(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "a.jpg", listed[0].FileName)
	assert.Equal(t, "doc-1", listed[1].DocumentID)
}

func TestRecomputeBatch_Idempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	batch := &model.ImportBatch{UserID: "user-1", ImportType: model.ImportTypeMixed}
	items := []model.ImportBatchItem{{FileName: "a.ofx", FileURL: "file:///a.ofx"}}
	require.NoError(t, store.CreateBatch(ctx, batch, items))
	_, err := store.TransitionItem(ctx, items[0].ID, service.ItemUpdate{
		From: []model.ItemStatus{model.ItemStatusPending}, Status: model.ItemStatusDuplicate,
		DuplicateOfDocumentID: "doc-0", DuplicateMatchType: model.DuplicateMatchExactImage,
	}, countingDerive)
	require.NoError(t, err)

	first, err := store.RecomputeBatch(ctx, batch.ID, countingDerive)
	require.NoError(t, err)
	second, err := store.RecomputeBatch(ctx, batch.ID, countingDerive)
	require.NoError(t, err)
	assert.Equal(t, first.BatchCounters, second.BatchCounters)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, second.DuplicateFiles)
}

func TestSetLogger_TagsStatusChanges(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	var buf bytes.Buffer
	store.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	batch := &model.ImportBatch{UserID: "user-1", ImportType: model.ImportTypeReceipts}
	items := []model.ImportBatchItem{{FileName: "a.jpg", FileURL: "file:///a.jpg"}}
	require.NoError(t, store.CreateBatch(ctx, batch, items))
	_, err := store.TransitionItem(ctx, items[0].ID, service.ItemUpdate{
		From: []model.ItemStatus{model.ItemStatusPending}, Status: model.ItemStatusProcessing,
	}, countingDerive)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "import batch status changed")
	assert.Contains(t, out, "component=storage")
	assert.Contains(t, out, "batch_id="+batch.ID)
}

func TestSetBatchCancelled(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	batch := &model.ImportBatch{UserID: "user-1", ImportType: model.ImportTypeReceipts}
	require.NoError(t, store.CreateBatch(ctx, batch, []model.ImportBatchItem{{FileName: "a.png", FileURL: "file:///a.png"}}))

	require.NoError(t, store.SetBatchCancelled(ctx, batch.ID))
	got, err := store.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCancelled, got.Status)

	assert.ErrorIs(t, store.SetBatchCancelled(ctx, batch.ID), service.ErrInvalidTransition)
	assert.ErrorIs(t, store.SetBatchCancelled(ctx, "missing"), common.ErrNotFound)
}

func TestCreateBatch_Validation(t *testing.T) {
	store := createTestStorage(t)

	err := store.CreateBatch(context.Background(), &model.ImportBatch{UserID: "user-1", ImportType: "zip"},
		[]model.ImportBatchItem{{FileName: "a", FileURL: "b"}})
	assert.ErrorIs(t, err, ErrInvalidBatch)

	err = store.CreateBatch(context.Background(), &model.ImportBatch{UserID: "user-1", ImportType: model.ImportTypeReceipts}, nil)
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestActivity_Ordered(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	types := []model.ActivityType{model.ActivityBatchCreated, model.ActivityFileUploaded, model.ActivityItemCompleted}
	for _, typ := range types {
		require.NoError(t, store.AppendActivity(ctx, &model.ActivityEvent{BatchID: "b1", Type: typ}))
	}
	require.NoError(t, store.AppendActivity(ctx, &model.ActivityEvent{BatchID: "b2", Type: model.ActivityBatchCreated}))

	events, err := store.ListActivity(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, typ := range types {
		assert.Equal(t, typ, events[i].Type)
	}
}
