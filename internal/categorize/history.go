package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// HistoryOptions tunes the precedent lookup.
type HistoryOptions struct {
	LookbackDays int
	// Fuzzy also counts merchants within MaxDistance edits of the input.
	Fuzzy       bool
	MaxDistance int
}

// DefaultHistoryOptions looks back 90 days with exact merchant matching.
func DefaultHistoryOptions() HistoryOptions {
	return HistoryOptions{LookbackDays: 90, MaxDistance: 2}
}

// HistoryMatcher reuses the user's own past decisions for the same merchant.
//
// Policy: among the user's categorized transactions for the merchant in the
// lookback window, the most frequent category wins, with confidence equal to
// its share of those transactions. Ties go to the category used most recently.
type HistoryMatcher struct {
	store  service.HistoryStore
	logger *slog.Logger
	now    func() time.Time
	opts   HistoryOptions
}

// NewHistoryMatcher creates a HistoryMatcher.
func NewHistoryMatcher(store service.HistoryStore, opts HistoryOptions, logger *slog.Logger) *HistoryMatcher {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultHistoryOptions().LookbackDays
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = DefaultHistoryOptions().MaxDistance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryMatcher{
		store:  store,
		opts:   opts,
		logger: logger.With("component", "history_matcher"),
		now:    time.Now,
	}
}

// Method returns model.MethodHistory.
func (m *HistoryMatcher) Method() model.Method {
	return model.MethodHistory
}

type tally struct {
	categoryID   string
	categoryName string
	businessID   string
	count        int
	firstSeen    int
}

// Categorize returns the dominant past category for the merchant.
func (m *HistoryMatcher) Categorize(ctx context.Context, in model.TransactionInput, scope Scope) (model.CategorizationResult, error) {
	merchant := normalizeMerchant(in.MerchantName)
	if merchant == "" {
		return model.NoMatch(), nil
	}

	filter := service.HistoryFilter{
		Since: m.now().UTC().AddDate(0, 0, -m.opts.LookbackDays),
	}
	if !m.opts.Fuzzy {
		filter.Merchant = in.MerchantName
	}

	entries, err := m.store.CategorizedHistory(ctx, scope.UserID, filter)
	if err != nil {
		return model.NoMatch(), fmt.Errorf("failed to load history: %w", err)
	}

	allowed := categoriesFor(scope.AvailableCategories, scope.effectiveType(in))
	tallies := map[string]*tally{}
	total := 0
	// entries are newest first, so firstSeen orders categories by recency.
	for i, e := range entries {
		if !m.sameMerchant(merchant, normalizeMerchant(e.MerchantName)) {
			continue
		}
		if len(scope.AvailableCategories) > 0 {
			if _, ok := findCategoryByID(allowed, e.CategoryID); !ok {
				continue
			}
		}
		total++
		t, ok := tallies[e.CategoryID]
		if !ok {
			t = &tally{categoryID: e.CategoryID, categoryName: e.CategoryName, businessID: e.BusinessID, firstSeen: i}
			tallies[e.CategoryID] = t
		}
		t.count++
	}

	var best *tally
	for _, t := range tallies {
		if best == nil || t.count > best.count || (t.count == best.count && t.firstSeen < best.firstSeen) {
			best = t
		}
	}
	if best == nil {
		return model.NoMatch(), nil
	}

	m.logger.Debug("history match",
		"merchant", in.MerchantName,
		"category", best.categoryName,
		"count", best.count,
		"total", total)

	return model.CategorizationResult{
		CategoryID:        best.categoryID,
		CategoryName:      best.categoryName,
		BusinessID:        best.businessID,
		IsBusinessExpense: best.businessID != "",
		Confidence:        float64(best.count) / float64(total),
		Method:            model.MethodHistory,
	}, nil
}

func (m *HistoryMatcher) sameMerchant(a, b string) bool {
	if a == b {
		return true
	}
	if !m.opts.Fuzzy || b == "" {
		return false
	}
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions) <= m.opts.MaxDistance
}

func normalizeMerchant(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
