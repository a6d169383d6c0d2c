package categorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// RuleMatcher applies the user's explicit rules. The first matching rule,
// in insertion order, wins.
type RuleMatcher struct {
	rules      service.RuleStore
	categories service.CategoryStore
	logger     *slog.Logger
}

// NewRuleMatcher creates a RuleMatcher.
func NewRuleMatcher(rules service.RuleStore, categories service.CategoryStore, logger *slog.Logger) *RuleMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleMatcher{rules: rules, categories: categories, logger: logger.With("component", "rule_matcher")}
}

// Method returns model.MethodRule.
func (m *RuleMatcher) Method() model.Method {
	return model.MethodRule
}

// Categorize returns the first rule match with confidence 1.0.
func (m *RuleMatcher) Categorize(ctx context.Context, in model.TransactionInput, scope Scope) (model.CategorizationResult, error) {
	rules, err := m.rules.ListRulesForUser(ctx, scope.UserID)
	if err != nil {
		return model.NoMatch(), fmt.Errorf("failed to load rules: %w", err)
	}

	for _, rule := range rules {
		if !MatchRule(rule, in) {
			continue
		}

		cat, err := m.resolveCategory(ctx, rule.CategoryID, scope)
		if errors.Is(err, common.ErrNotFound) {
			m.logger.Warn("rule points at missing category", "rule_id", rule.ID, "category_id", rule.CategoryID)
			continue
		}
		if err != nil {
			return model.NoMatch(), err
		}

		return model.CategorizationResult{
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Confidence:   1.0,
			Method:       model.MethodRule,
		}, nil
	}

	return model.NoMatch(), nil
}

func (m *RuleMatcher) resolveCategory(ctx context.Context, id string, scope Scope) (*model.Category, error) {
	if cat, ok := findCategoryByID(scope.AvailableCategories, id); ok {
		return cat, nil
	}
	return m.categories.GetCategory(ctx, id)
}

// MatchRule reports whether in satisfies rule. Comparisons ignore case and
// surrounding space. A malformed regex is a non-match.
func MatchRule(rule model.CategoryRule, in model.TransactionInput) bool {
	raw := in.Field(rule.Field)
	field := strings.ToLower(strings.TrimSpace(raw))
	pattern := strings.ToLower(strings.TrimSpace(rule.Pattern))
	if field == "" || pattern == "" {
		return false
	}

	switch rule.MatchType {
	case model.MatchExact:
		return field == pattern
	case model.MatchContains:
		return strings.Contains(field, pattern)
	case model.MatchRegex:
		// Lower-casing a pattern changes escapes such as \D, so fold case in the engine instead.
		ok, err := common.MatchRegexFold(rule.Pattern, raw)
		return err == nil && ok
	default:
		return false
	}
}
