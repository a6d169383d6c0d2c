package categorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Decoder is the part of an llm.Chain the AI matcher needs.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, req llm.Request, decode func(llm.Response) error) (llm.Response, error)
}

// ErrUnresolvedCategory is returned when the model names an existing
// category the user does not have.
var ErrUnresolvedCategory = errors.New("category not found among available categories")

// aiAnswer is the only shape accepted from the model.
type aiAnswer struct {
	CategoryName      string  `json:"categoryName"`
	BusinessName      string  `json:"businessName"`
	Reasoning         string  `json:"reasoning"`
	Confidence        float64 `json:"confidence"`
	IsNewCategory     bool    `json:"isNewCategory"`
	IsBusinessExpense bool    `json:"isBusinessExpense"`
}

func (a *aiAnswer) validate() error {
	if strings.TrimSpace(a.CategoryName) == "" {
		return fmt.Errorf("%w: categoryName is empty", llm.ErrMalformedResponse)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", llm.ErrMalformedResponse, a.Confidence)
	}
	return nil
}

// AiMatcher asks a language model when rules and history have nothing.
type AiMatcher struct {
	llm    Decoder
	logger *slog.Logger
}

// NewAiMatcher creates an AiMatcher over a provider chain.
func NewAiMatcher(decoder Decoder, logger *slog.Logger) *AiMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AiMatcher{llm: decoder, logger: logger.With("component", "ai_matcher")}
}

// Method returns model.MethodAI.
func (m *AiMatcher) Method() model.Method {
	return model.MethodAI
}

// Categorize returns the model's answer, validated and resolved against the
// scope. A provider answer that fails validation counts as that provider
// failing, so the chain moves on to the next one.
func (m *AiMatcher) Categorize(ctx context.Context, in model.TransactionInput, scope Scope) (model.CategorizationResult, error) {
	txnType := scope.effectiveType(in)
	categories := categoriesFor(scope.AvailableCategories, txnType)

	req := llm.Request{
		System:    systemPrompt,
		Prompt:    buildPrompt(in, scope, txnType, categories),
		JSON:      true,
		MaxTokens: 300,
	}

	var result model.CategorizationResult
	resp, err := m.llm.Decode(ctx, req, func(resp llm.Response) error {
		var answer aiAnswer
		if err := llm.DecodeStrict(resp.Text, &answer); err != nil {
			return err
		}
		if err := answer.validate(); err != nil {
			return err
		}
		resolved, err := resolveAnswer(answer, categories, scope.UserBusinesses)
		if err != nil {
			return err
		}
		result = resolved
		return nil
	})
	if err != nil {
		var providerErr *common.ProviderError
		if errors.As(err, &providerErr) {
			return model.NoMatch(), err
		}
		return model.NoMatch(), common.NewProviderError(m.llm.Name(), err)
	}

	m.logger.Debug("AI categorized transaction",
		"provider", resp.Provider,
		"merchant", in.MerchantName,
		"category", result.CategoryName,
		"new_category", result.IsNewCategory,
		"confidence", result.Confidence)
	return result, nil
}

// resolveAnswer maps names in the answer onto ids. An unknown business is
// dropped; an unknown existing category is an error.
func resolveAnswer(a aiAnswer, categories []model.Category, businesses []model.Business) (model.CategorizationResult, error) {
	result := model.CategorizationResult{
		CategoryName:      strings.TrimSpace(a.CategoryName),
		Confidence:        a.Confidence,
		Method:            model.MethodAI,
		IsNewCategory:     a.IsNewCategory,
		IsBusinessExpense: a.IsBusinessExpense,
	}

	if a.IsNewCategory {
		// A "new" name that already exists is just that category.
		if cat, ok := model.FindCategoryByName(categories, a.CategoryName); ok {
			result.IsNewCategory = false
			result.CategoryID = cat.ID
			result.CategoryName = cat.Name
		} else {
			result.SuggestedCategory = result.CategoryName
		}
	} else {
		cat, ok := model.FindCategoryByName(categories, a.CategoryName)
		if !ok {
			return model.NoMatch(), fmt.Errorf("%w: %q", ErrUnresolvedCategory, a.CategoryName)
		}
		result.CategoryID = cat.ID
		result.CategoryName = cat.Name
	}

	if a.IsBusinessExpense && a.BusinessName != "" {
		if b, ok := findBusinessByName(businesses, a.BusinessName); ok {
			result.BusinessID = b.ID
			result.BusinessName = b.Name
		}
	}
	if result.BusinessID == "" {
		result.IsBusinessExpense = false
	}

	return result, nil
}

func findBusinessByName(businesses []model.Business, name string) (*model.Business, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i := range businesses {
		if strings.ToLower(businesses[i].Name) == key {
			return &businesses[i], true
		}
	}
	return nil, false
}

const systemPrompt = "You are a bookkeeping assistant that categorizes financial transactions. Respond with a single JSON object and nothing else."

// buildPrompt creates the prompt for transaction categorization.
func buildPrompt(in model.TransactionInput, scope Scope, txnType model.TransactionType, categories []model.Category) string {
	var b strings.Builder

	b.WriteString("Categorize this financial transaction.\n\nTransaction Details:\n")
	fmt.Fprintf(&b, "Merchant: %s\n", in.MerchantName)
	if in.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", in.Description)
	}
	fmt.Fprintf(&b, "Amount: %s\n", in.Amount.StringFixed(2))
	if !in.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", in.Date.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Transaction Type: %s\n", txnType)
	if scope.StatementType != "" {
		fmt.Fprintf(&b, "Statement Type: %s\n", scope.StatementType)
	}

	fmt.Fprintf(&b, "\nExisting %s Categories:\n", txnType)
	for _, c := range categories {
		if c.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", c.Name)
		}
	}

	if len(scope.UserBusinesses) > 0 {
		b.WriteString("\nThe user's businesses:\n")
		for _, biz := range scope.UserBusinesses {
			if biz.Description != "" {
				fmt.Fprintf(&b, "- %s (%s): %s\n", biz.Name, biz.Type, biz.Description)
			} else {
				fmt.Fprintf(&b, "- %s (%s)\n", biz.Name, biz.Type)
			}
		}
	}

	if scope.UserPreferences != "" {
		fmt.Fprintf(&b, "\nUser preferences:\n%s\n", scope.UserPreferences)
	}

	fmt.Fprintf(&b, `
IMPORTANT GUIDELINES:
- Only choose %[1]s categories. Never assign an income category to an expense or an expense category to income.
- Loan, financing, credit line, installment and "buy now pay later" payments are financial services. Do not map them to the category of the product that was financed.
- Classify by what the merchant is, not by assumed intent.
- Only set isBusinessExpense when the transaction clearly belongs to one of the user's businesses, and then give that business's exact name.
- Suggest a new category only when none of the existing ones fits. Keep new names neutral and short.

Respond with exactly this JSON object:
{"categoryName": "<existing or new category name>", "confidence": <0.0-1.0>, "isNewCategory": <true|false>, "isBusinessExpense": <true|false>, "businessName": "<business name or empty>", "reasoning": "<one short sentence>"}
`, txnType)

	return b.String()
}
