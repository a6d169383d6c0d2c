package categorize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/testutil"
)

func TestMatchRule(t *testing.T) {
	tests := []struct {
		name      string
		field     model.RuleField
		matchType model.MatchType
		pattern   string
		merchant  string
		desc      string
		want      bool
	}{
		{name: "contains ignores case", matchType: model.MatchContains, pattern: "Starbucks", merchant: "STARBUCKS #12345", want: true},
		{name: "exact ignores case", matchType: model.MatchExact, pattern: "Starbucks", merchant: "starbucks", want: true},
		{name: "exact trims space", matchType: model.MatchExact, pattern: " Starbucks ", merchant: "starbucks  ", want: true},
		{name: "exact is not contains", matchType: model.MatchExact, pattern: "Starbucks", merchant: "STARBUCKS #12345", want: false},
		{name: "regex ignores case", matchType: model.MatchRegex, pattern: `^starbucks\s+#\d+$`, merchant: "STARBUCKS #12345", want: true},
		{name: "regex keeps upper-case escapes", matchType: model.MatchRegex, pattern: `^\D+$`, merchant: "AMAZON", want: true},
		{name: "regex upper-case escape rejects digits", matchType: model.MatchRegex, pattern: `^\D+$`, merchant: "AMAZON 42", want: false},
		{name: "malformed regex is no match", matchType: model.MatchRegex, pattern: `([unclosed`, merchant: "([unclosed", want: false},
		{name: "description field", field: model.RuleFieldDescription, matchType: model.MatchContains, pattern: "payroll", merchant: "ACME", desc: "ACME PAYROLL MAY", want: true},
		{name: "merchant field ignores description", matchType: model.MatchContains, pattern: "payroll", merchant: "ACME", desc: "ACME PAYROLL MAY", want: false},
		{name: "empty field", matchType: model.MatchContains, pattern: "x", merchant: "", want: false},
		{name: "empty pattern", matchType: model.MatchContains, pattern: "  ", merchant: "anything", want: false},
		{name: "unknown match type", matchType: model.MatchType("fuzzy"), pattern: "a", merchant: "a", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := tt.field
			if field == "" {
				field = model.RuleFieldMerchantName
			}
			rule := model.CategoryRule{Field: field, MatchType: tt.matchType, Pattern: tt.pattern}
			in := model.TransactionInput{MerchantName: tt.merchant, Description: tt.desc}
			assert.Equal(t, tt.want, MatchRule(rule, in))
		})
	}
}

func TestRuleMatcher_FirstRuleWins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	coffee := db.MustCategory("user-1", "Coffee", model.TransactionTypeExpense)
	dining := db.MustSystemCategory("Dining")

	db.MustRule("user-1", coffee.ID, model.RuleFieldMerchantName, model.MatchContains, "starbucks")
	db.MustRule("user-1", dining.ID, model.RuleFieldMerchantName, model.MatchContains, "star")

	matcher := NewRuleMatcher(db.Storage, db.Storage, nil)
	result, err := matcher.Categorize(ctx, model.TransactionInput{MerchantName: "STARBUCKS #12345"}, Scope{UserID: "user-1"})
	require.NoError(t, err)

	assert.Equal(t, model.MethodRule, result.Method)
	assert.Equal(t, coffee.ID, result.CategoryID)
	assert.Equal(t, "Coffee", result.CategoryName)
	assert.InDelta(t, 1.0, result.Confidence, 0.0001)
}

func TestRuleMatcher_MalformedRegexSkipped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	dining := db.MustSystemCategory("Dining")

	db.MustRule("user-1", dining.ID, model.RuleFieldMerchantName, model.MatchRegex, `(*bad`)
	db.MustRule("user-1", dining.ID, model.RuleFieldMerchantName, model.MatchRegex, `^blue bottle`)

	matcher := NewRuleMatcher(db.Storage, db.Storage, nil)

	var result model.CategorizationResult
	var err error
	require.NotPanics(t, func() {
		result, err = matcher.Categorize(ctx, model.TransactionInput{MerchantName: "Blue Bottle Coffee"}, Scope{UserID: "user-1"})
	})
	require.NoError(t, err)
	assert.Equal(t, dining.ID, result.CategoryID)

	result, err = matcher.Categorize(ctx, model.TransactionInput{MerchantName: "(*bad"}, Scope{UserID: "user-1"})
	require.NoError(t, err)
	assert.False(t, result.Matched())
}

func TestRuleMatcher_OnlyOwnRules(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dining := db.MustSystemCategory("Dining")
	db.MustRule("user-2", dining.ID, model.RuleFieldMerchantName, model.MatchContains, "starbucks")

	matcher := NewRuleMatcher(db.Storage, db.Storage, nil)
	result, err := matcher.Categorize(context.Background(), model.TransactionInput{MerchantName: "Starbucks"}, Scope{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, model.NoMatch(), result)
}
