package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/testutil"
)

func TestCreateCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db.Storage, nil)
	ctx := context.Background()

	cat, created, err := svc.CreateCategory(ctx, "user-1", NewCategory{Name: " Coffee ", TransactionType: model.TransactionTypeExpense})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Coffee", cat.Name)
	assert.Equal(t, model.CategoryTypeUser, cat.Type)

	again, created, err := svc.CreateCategory(ctx, "user-1", NewCategory{Name: "coffee", TransactionType: model.TransactionTypeExpense})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cat.ID, again.ID)

	other, created, err := svc.CreateCategory(ctx, "user-2", NewCategory{Name: "Coffee", TransactionType: model.TransactionTypeExpense})
	require.NoError(t, err)
	assert.True(t, created, "names are scoped per owner")
	assert.NotEqual(t, cat.ID, other.ID)
}

func TestCreateCategory_Validation(t *testing.T) {
	svc := NewService(testutil.SetupTestDB(t).Storage, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    NewCategory
		field string
	}{
		{"blank name", NewCategory{Name: "  ", TransactionType: model.TransactionTypeExpense}, "name"},
		{"no type", NewCategory{Name: "Coffee"}, "transactionType"},
		{"bad scope", NewCategory{Name: "Coffee", TransactionType: model.TransactionTypeIncome, UsageScope: "global"}, "usageScope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateCategory(ctx, "user-1", tt.in)
			var validationErr *common.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}

	_, _, err := svc.CreateCategory(ctx, "", NewCategory{Name: "Coffee", TransactionType: model.TransactionTypeExpense})
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestCreateRule(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db.Storage, nil)
	ctx := context.Background()
	coffee := db.MustCategory("user-1", "Coffee", model.TransactionTypeExpense)
	foreign := db.MustCategory("user-2", "Tea", model.TransactionTypeExpense)
	groceries := db.MustSystemCategory("Groceries")

	rule, err := svc.CreateRule(ctx, "user-1", NewRule{CategoryID: coffee.ID, Pattern: "Starbucks"})
	require.NoError(t, err)
	assert.Equal(t, model.RuleFieldMerchantName, rule.Field)
	assert.Equal(t, model.MatchContains, rule.MatchType)

	_, err = svc.CreateRule(ctx, "user-1", NewRule{CategoryID: coffee.ID, Pattern: "starbucks", MatchType: "contains"})
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	_, err = svc.CreateRule(ctx, "user-1", NewRule{CategoryID: groceries.ID, Pattern: "^WHOLE ?FOODS", MatchType: "regex", Field: "description"})
	assert.NoError(t, err, "system categories are usable by everyone")

	_, err = svc.CreateRule(ctx, "user-1", NewRule{CategoryID: foreign.ID, Pattern: "tea"})
	var authErr *common.AuthorizationError
	assert.ErrorAs(t, err, &authErr)

	_, err = svc.CreateRule(ctx, "user-1", NewRule{CategoryID: "missing", Pattern: "tea"})
	assert.ErrorAs(t, err, &authErr)

	rules, err := svc.Rules(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, rule.ID, rules[0].ID)
}

func TestCreateRule_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db.Storage, nil)
	coffee := db.MustCategory("user-1", "Coffee", model.TransactionTypeExpense)

	tests := []struct {
		name  string
		in    NewRule
		field string
	}{
		{"no category", NewRule{Pattern: "x"}, "categoryId"},
		{"no pattern", NewRule{CategoryID: coffee.ID, Pattern: " "}, "pattern"},
		{"bad field", NewRule{CategoryID: coffee.ID, Pattern: "x", Field: "amount"}, "field"},
		{"bad match type", NewRule{CategoryID: coffee.ID, Pattern: "x", MatchType: "fuzzy"}, "matchType"},
		{"bad regex", NewRule{CategoryID: coffee.ID, Pattern: "(unclosed", MatchType: "regex"}, "pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRule(context.Background(), "user-1", tt.in)
			var validationErr *common.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestBusinesses(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db.Storage, nil)
	ctx := context.Background()

	b, err := svc.CreateBusiness(ctx, "user-1", NewBusiness{Name: "Side Gig"})
	require.NoError(t, err)
	assert.Equal(t, model.BusinessTypeBusiness, b.Type)

	_, err = svc.CreateBusiness(ctx, "user-1", NewBusiness{Name: "personal"})
	var validationErr *common.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateBusiness(ctx, "user-1", NewBusiness{Name: "Studio", Type: "nonprofit"})
	assert.ErrorAs(t, err, &validationErr)

	err = svc.DeleteBusiness(ctx, "user-2", b.ID)
	var authErr *common.AuthorizationError
	assert.ErrorAs(t, err, &authErr)

	require.NoError(t, svc.DeleteBusiness(ctx, "user-1", b.ID))
	list, err := svc.Businesses(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteCategory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db.Storage, nil)
	ctx := context.Background()
	coffee := db.MustCategory("user-1", "Coffee", model.TransactionTypeExpense)
	unused := db.MustCategory("user-1", "Unused", model.TransactionTypeExpense)
	db.MustTransaction("user-1", "Blue Bottle", "4.50", coffee.ID, 1)

	err := svc.DeleteCategory(ctx, "user-1", coffee.ID)
	assert.True(t, errors.Is(err, common.ErrInUse))

	err = svc.DeleteCategory(ctx, "user-1", db.MustSystemCategory("Groceries").ID)
	var authErr *common.AuthorizationError
	assert.ErrorAs(t, err, &authErr)

	require.NoError(t, svc.DeleteCategory(ctx, "user-1", unused.ID))
}
