package categorize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

var fastRetry = service.RetryOptions{MaxAttempts: 1, InitialDelay: time.Millisecond}

func testCategories() []model.Category {
	return []model.Category{
		{ID: "c-dining", Name: "Dining", TransactionType: model.TransactionTypeExpense, Type: model.CategoryTypeSystem},
		{ID: "c-loans", Name: "Loan Payments", TransactionType: model.TransactionTypeExpense, Type: model.CategoryTypeSystem},
		{ID: "c-salary", Name: "Salary", TransactionType: model.TransactionTypeIncome, Type: model.CategoryTypeSystem},
	}
}

func chainOf(clients ...llm.Client) *llm.Chain {
	return llm.NewChain(time.Second, fastRetry, nil, clients...)
}

func TestAiMatcher_ResolvesAnswer(t *testing.T) {
	client := llm.NewMockClient("primary", llm.MockReply{
		Text: `{"categoryName":"dining","confidence":0.92,"isNewCategory":false,"isBusinessExpense":true,"businessName":"acme consulting","reasoning":"coffee shop"}`,
	})
	matcher := NewAiMatcher(chainOf(client), nil)

	scope := Scope{
		UserID:              "user-1",
		AvailableCategories: testCategories(),
		UserBusinesses:      []model.Business{{ID: "b-1", Name: "Acme Consulting", Type: model.BusinessTypeBusiness}},
	}
	result, err := matcher.Categorize(context.Background(), model.TransactionInput{
		MerchantName: "Blue Bottle",
		Amount:       decimal.RequireFromString("6.50"),
		Type:         model.TransactionTypeExpense,
	}, scope)
	require.NoError(t, err)

	assert.Equal(t, model.MethodAI, result.Method)
	assert.Equal(t, "c-dining", result.CategoryID)
	assert.Equal(t, "Dining", result.CategoryName)
	assert.Equal(t, "b-1", result.BusinessID)
	assert.Equal(t, "Acme Consulting", result.BusinessName)
	assert.True(t, result.IsBusinessExpense)
	assert.InDelta(t, 0.92, result.Confidence, 0.0001)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].JSON)
	assert.Contains(t, calls[0].Prompt, "- Dining")
	assert.Contains(t, calls[0].Prompt, "Loan Payments")
	assert.NotContains(t, calls[0].Prompt, "Salary", "income categories must not be offered for an expense")
	assert.Contains(t, calls[0].Prompt, "Acme Consulting")
}

func TestAiMatcher_UnknownBusinessIsDropped(t *testing.T) {
	client := llm.NewMockClient("primary", llm.MockReply{
		Text: `{"categoryName":"Dining","confidence":0.8,"isNewCategory":false,"isBusinessExpense":true,"businessName":"Ghost LLC"}`,
	})
	matcher := NewAiMatcher(chainOf(client), nil)

	result, err := matcher.Categorize(context.Background(), model.TransactionInput{MerchantName: "Cafe"},
		Scope{UserID: "user-1", AvailableCategories: testCategories()})
	require.NoError(t, err)
	assert.Equal(t, "c-dining", result.CategoryID)
	assert.Empty(t, result.BusinessID)
	assert.False(t, result.IsBusinessExpense)
}

func TestAiMatcher_FallsBackOnInvalidAnswer(t *testing.T) {
	tests := []struct {
		name    string
		primary string
	}{
		{name: "unresolvable category", primary: `{"categoryName":"Pets","confidence":0.9,"isNewCategory":false,"isBusinessExpense":false}`},
		{name: "income category for expense", primary: `{"categoryName":"Salary","confidence":0.9,"isNewCategory":false,"isBusinessExpense":false}`},
		{name: "free text", primary: `Dining, probably.`},
		{name: "unknown field", primary: `{"categoryName":"Dining","confidence":0.9,"isNewCategory":false,"isBusinessExpense":false,"mood":"happy"}`},
		{name: "confidence out of range", primary: `{"categoryName":"Dining","confidence":7,"isNewCategory":false,"isBusinessExpense":false}`},
		{name: "missing category", primary: `{"confidence":0.9,"isNewCategory":false,"isBusinessExpense":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := llm.NewMockClient("primary", llm.MockReply{Text: tt.primary})
			secondary := llm.NewMockClient("secondary", llm.MockReply{
				Text: `{"categoryName":"Loan Payments","confidence":0.7,"isNewCategory":false,"isBusinessExpense":false}`,
			})
			matcher := NewAiMatcher(chainOf(primary, secondary), nil)

			result, err := matcher.Categorize(context.Background(),
				model.TransactionInput{MerchantName: "Affirm", Type: model.TransactionTypeExpense},
				Scope{UserID: "user-1", AvailableCategories: testCategories()})
			require.NoError(t, err)
			assert.Equal(t, "c-loans", result.CategoryID)
			assert.Len(t, secondary.Calls(), 1)
		})
	}
}

func TestAiMatcher_AllProvidersFail(t *testing.T) {
	matcher := NewAiMatcher(chainOf(
		llm.NewMockClient("primary", llm.MockReply{Err: errors.New("timeout")}),
		llm.NewMockClient("secondary", llm.MockReply{Text: "not json"}),
	), nil)

	result, err := matcher.Categorize(context.Background(), model.TransactionInput{MerchantName: "Cafe"},
		Scope{UserID: "user-1", AvailableCategories: testCategories()})
	require.Error(t, err)

	var providerErr *common.ProviderError
	assert.True(t, errors.As(err, &providerErr))
	assert.False(t, result.Matched())
}

func TestAiMatcher_NewCategoryProposal(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		wantID      string
		wantNew     bool
		wantSuggest string
	}{
		{
			name:        "genuinely new",
			answer:      `{"categoryName":"Pet Supplies","confidence":0.6,"isNewCategory":true,"isBusinessExpense":false}`,
			wantNew:     true,
			wantSuggest: "Pet Supplies",
		},
		{
			name:   "new name that already exists",
			answer: `{"categoryName":"DINING","confidence":0.6,"isNewCategory":true,"isBusinessExpense":false}`,
			wantID: "c-dining",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := NewAiMatcher(chainOf(llm.NewMockClient("p", llm.MockReply{Text: tt.answer})), nil)
			result, err := matcher.Categorize(context.Background(), model.TransactionInput{MerchantName: "Petco"},
				Scope{UserID: "user-1", AvailableCategories: testCategories()})
			require.NoError(t, err)
			assert.Equal(t, tt.wantNew, result.IsNewCategory)
			assert.Equal(t, tt.wantID, result.CategoryID)
			assert.Equal(t, tt.wantSuggest, result.SuggestedCategory)
		})
	}
}

func TestBuildPrompt_IncomeOffersIncomeCategories(t *testing.T) {
	in := model.TransactionInput{MerchantName: "ACME Payroll", Type: model.TransactionTypeIncome, Amount: decimal.NewFromInt(5000)}
	scope := Scope{AvailableCategories: testCategories(), StatementType: "checking", UserPreferences: "Treat ACME as salary"}

	prompt := buildPrompt(in, scope, scope.effectiveType(in), categoriesFor(scope.AvailableCategories, model.TransactionTypeIncome))
	assert.Contains(t, prompt, "Salary")
	assert.NotContains(t, prompt, "- Dining")
	assert.Contains(t, prompt, "Statement Type: checking")
	assert.Contains(t, prompt, "Treat ACME as salary")
	assert.Contains(t, prompt, "5000.00")
}
