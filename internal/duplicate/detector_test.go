package duplicate

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/testutil"
)

func receipt(userID, itemID string, content []byte, merchant, date, amount string) *model.Document {
	doc := &model.Document{
		UserID:       userID,
		BatchItemID:  itemID,
		Kind:         model.DocumentKindReceipt,
		FileName:     "receipt.jpg",
		ContentHash:  HashContent(content),
		MerchantName: merchant,
	}
	if date != "" {
		doc.Date, _ = time.Parse("2006-01-02", date)
	}
	if amount != "" {
		doc.Amount = decimal.RequireFromString(amount)
	}
	return doc
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("same bytes"))
	b, err := HashReader(bytes.NewReader([]byte("same bytes")))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashContent([]byte("other bytes")))
}

func TestCheckDuplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("exact content", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		prior := receipt("user-1", "item-a", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, prior))
		fresh := receipt("user-1", "item-b", []byte("jpeg"), "", "", "")
		fresh.FileName = "renamed.jpg"
		require.NoError(t, db.Storage.CreateDocument(ctx, fresh))

		match, err := NewDetector(db.Storage, nil).CheckDuplicate(ctx, fresh)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, prior.ID, match.DocumentID)
		assert.Equal(t, model.DuplicateMatchExactImage, match.MatchType)
		assert.InDelta(t, 1.0, match.Confidence, 0.0001)
	})

	t.Run("merchant date amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		prior := receipt("user-1", "item-a", []byte("scan 1"), "Blue Bottle", "2026-02-01", "6.5")
		require.NoError(t, db.Storage.CreateDocument(ctx, prior))
		fresh := receipt("user-1", "item-b", []byte("scan 2"), "BLUE BOTTLE", "2026-02-01", "6.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, fresh))

		match, err := NewDetector(db.Storage, nil).CheckDuplicate(ctx, fresh)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, prior.ID, match.DocumentID)
		assert.Equal(t, model.DuplicateMatchMerchantDateAmount, match.MatchType)
		assert.Less(t, match.Confidence, 1.0)
	})

	t.Run("different amount is new", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		require.NoError(t, db.Storage.CreateDocument(ctx, receipt("user-1", "item-a", []byte("scan 1"), "Blue Bottle", "2026-02-01", "6.50")))
		fresh := receipt("user-1", "item-b", []byte("scan 2"), "Blue Bottle", "2026-02-01", "7.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, fresh))

		match, err := NewDetector(db.Storage, nil).CheckDuplicate(ctx, fresh)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("other users never match", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		require.NoError(t, db.Storage.CreateDocument(ctx, receipt("user-2", "item-a", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")))
		fresh := receipt("user-1", "item-b", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, fresh))

		match, err := NewDetector(db.Storage, nil).CheckDuplicate(ctx, fresh)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("retry of the same item does not match itself", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		firstAttempt := receipt("user-1", "item-a", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, firstAttempt))
		retry := receipt("user-1", "item-a", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, retry))

		match, err := NewDetector(db.Storage, nil).CheckDuplicate(ctx, retry)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("excluded duplicates are not matched again", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		excluded := receipt("user-1", "item-a", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
		excluded.IsExcludedFromTotals = true
		require.NoError(t, db.Storage.CreateDocument(ctx, excluded))
		fresh := receipt("user-1", "item-b", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, fresh))

		match, err := NewDetector(db.Storage, nil).CheckDuplicate(ctx, fresh)
		require.NoError(t, err)
		assert.Nil(t, match)
	})

	t.Run("requires an owner", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		_, err := NewDetector(db.Storage, nil).CheckDuplicate(ctx, &model.Document{ContentHash: "x"})
		assert.Error(t, err)
	})
}

func TestCheckDuplicate_OnlyEarlierDocuments(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	detector := NewDetector(db.Storage, nil)

	// Both uploads are stored before either is checked, as happens when two
	// workers take items of the same batch at once.
	first := receipt("user-1", "item-a", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
	require.NoError(t, db.Storage.CreateDocument(ctx, first))
	second := receipt("user-1", "item-b", []byte("jpeg"), "Cafe", "2026-02-01", "4.50")
	require.NoError(t, db.Storage.CreateDocument(ctx, second))

	match, err := detector.CheckDuplicate(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, match, "the first upload has nothing before it")

	match, err = detector.CheckDuplicate(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, first.ID, match.DocumentID)
	assert.Equal(t, model.DuplicateMatchExactImage, match.MatchType)

	t.Run("fingerprint tier", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		detector := NewDetector(db.Storage, nil)
		first := receipt("user-1", "item-a", []byte("scan 1"), "Cafe", "2026-02-01", "4.50")
		require.NoError(t, db.Storage.CreateDocument(ctx, first))
		second := receipt("user-1", "item-b", []byte("scan 2"), "cafe", "2026-02-01", "4.5")
		require.NoError(t, db.Storage.CreateDocument(ctx, second))

		match, err := detector.CheckDuplicate(ctx, first)
		require.NoError(t, err)
		assert.Nil(t, match)

		match, err = detector.CheckDuplicate(ctx, second)
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, first.ID, match.DocumentID)
		assert.Equal(t, model.DuplicateMatchMerchantDateAmount, match.MatchType)
	})
}
