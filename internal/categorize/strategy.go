// Package categorize decides which category and business a transaction
// belongs to, trying user rules, then history, then a language model.
package categorize

import (
	"context"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Strategy is one layer of the categorization pipeline. A strategy with no
// opinion returns model.NoMatch() and a nil error.
type Strategy interface {
	Method() model.Method
	Categorize(ctx context.Context, in model.TransactionInput, scope Scope) (model.CategorizationResult, error)
}

// Scope is what a strategy may know about the caller besides the transaction.
type Scope struct {
	UserID string
	// AvailableCategories are the categories the user may assign. The engine
	// loads them when empty.
	AvailableCategories []model.Category
	UserBusinesses      []model.Business
	UserPreferences     string
	StatementType       string
	TransactionType     model.TransactionType
}

// effectiveType is the direction categories must match.
func (s Scope) effectiveType(in model.TransactionInput) model.TransactionType {
	if s.TransactionType.Valid() {
		return s.TransactionType
	}
	if in.Type.Valid() {
		return in.Type
	}
	return model.TransactionTypeExpense
}

// categoriesFor returns the available categories of one transaction type.
func categoriesFor(cats []model.Category, t model.TransactionType) []model.Category {
	out := make([]model.Category, 0, len(cats))
	for _, c := range cats {
		if c.TransactionType == t {
			out = append(out, c)
		}
	}
	return out
}

func findCategoryByID(cats []model.Category, id string) (*model.Category, bool) {
	for i := range cats {
		if cats[i].ID == id {
			return &cats[i], true
		}
	}
	return nil, false
}
