package categorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// Store is the record store the engine reads and writes.
type Store interface {
	service.CategoryStore
	service.RuleStore
	service.BusinessStore
	service.HistoryStore
	service.TransactionStore
}

// Engine runs the strategies in priority order: rules, history, then AI.
// The first strategy with an opinion wins. A strategy that errors is logged
// and skipped, and when every strategy passes the result is NoMatch with a
// nil error, leaving the transaction for review.
type Engine struct {
	store      Store
	logger     *slog.Logger
	strategies []Strategy
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	ai      Decoder
	logger  *slog.Logger
	history HistoryOptions
}

// WithAI enables the AI strategy over decoder.
func WithAI(decoder Decoder) Option {
	return func(o *engineOptions) { o.ai = decoder }
}

// WithHistoryOptions overrides the history lookup settings.
func WithHistoryOptions(opts HistoryOptions) Option {
	return func(o *engineOptions) { o.history = opts }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// New creates an Engine with the standard strategy stack.
func New(store Store, opts ...Option) *Engine {
	o := engineOptions{history: DefaultHistoryOptions(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	strategies := []Strategy{
		NewRuleMatcher(store, store, o.logger),
		NewHistoryMatcher(store, o.history, o.logger),
	}
	if o.ai != nil {
		strategies = append(strategies, NewAiMatcher(o.ai, o.logger))
	}
	return NewWithStrategies(store, o.logger, strategies...)
}

// NewWithStrategies creates an Engine over an explicit strategy list.
func NewWithStrategies(store Store, logger *slog.Logger, strategies ...Strategy) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      store,
		strategies: strategies,
		logger:     logger.With("component", "categorization_engine"),
	}
}

// CategorizeWithAI returns the decision for one transaction.
//
// When the AI proposes a new category the engine creates it, or reuses the
// row a concurrent caller created, and returns its id. The engine never
// writes the transaction itself.
func (e *Engine) CategorizeWithAI(ctx context.Context, in model.TransactionInput, scope Scope) (model.CategorizationResult, error) {
	if scope.UserID == "" {
		return model.NoMatch(), &common.AuthorizationError{Resource: "categorization", Err: common.ErrUnauthenticated}
	}

	if err := e.loadScope(ctx, &scope); err != nil {
		return model.NoMatch(), err
	}

	for _, strategy := range e.strategies {
		start := time.Now()
		result, err := strategy.Categorize(ctx, in, scope)
		if err != nil {
			if ctx.Err() != nil {
				return model.NoMatch(), ctx.Err()
			}
			e.logger.Warn("categorization strategy failed, falling through",
				"method", strategy.Method(),
				"merchant", in.MerchantName,
				"error", err)
			continue
		}
		if !result.Matched() {
			continue
		}

		if result.IsNewCategory {
			result, err = e.createSuggestedCategory(ctx, scope, in, result)
			if err != nil {
				return model.NoMatch(), err
			}
		}

		e.logger.Info("transaction categorized",
			"user_id", scope.UserID,
			"merchant", in.MerchantName,
			"method", result.Method,
			"category", result.CategoryName,
			"confidence", result.Confidence,
			"duration_ms", time.Since(start).Milliseconds())
		return result, nil
	}

	e.logger.Info("transaction left uncategorized", "user_id", scope.UserID, "merchant", in.MerchantName)
	return model.NoMatch(), nil
}

func (e *Engine) loadScope(ctx context.Context, scope *Scope) error {
	if len(scope.AvailableCategories) == 0 {
		cats, err := e.store.ListCategoriesForUser(ctx, scope.UserID)
		if err != nil {
			return fmt.Errorf("failed to load categories: %w", err)
		}
		scope.AvailableCategories = cats
	}
	if scope.UserBusinesses == nil {
		businesses, err := e.store.ListBusinesses(ctx, scope.UserID)
		if err != nil {
			return fmt.Errorf("failed to load businesses: %w", err)
		}
		scope.UserBusinesses = businesses
	}
	return nil
}

func (e *Engine) createSuggestedCategory(ctx context.Context, scope Scope, in model.TransactionInput, result model.CategorizationResult) (model.CategorizationResult, error) {
	name := result.SuggestedCategory
	if name == "" {
		name = result.CategoryName
	}

	cat, created, err := e.store.InsertOrGetCategory(ctx, model.Category{
		Name:            name,
		Type:            model.CategoryTypeUser,
		TransactionType: scope.effectiveType(in),
		UserID:          scope.UserID,
	})
	if err != nil {
		return model.NoMatch(), fmt.Errorf("failed to create category %q: %w", name, err)
	}

	e.logger.Info("AI proposed category",
		"user_id", scope.UserID,
		"category", cat.Name,
		"created", created)

	result.CategoryID = cat.ID
	result.CategoryName = cat.Name
	return result, nil
}

// Decision is a user's manual categorization of a transaction.
type Decision struct {
	TransactionID string
	CategoryID    string
	BusinessID    string
	// ApplyToFuture records a merchant-exact rule so later imports match it.
	ApplyToFuture bool
}

// ApplyDecision stores a manual categorization and, when asked, turns it
// into a rule. Every referenced record must belong to userID.
func (e *Engine) ApplyDecision(ctx context.Context, userID string, d Decision) (*model.CategoryRule, error) {
	if userID == "" {
		return nil, &common.AuthorizationError{Resource: "categorization", Err: common.ErrUnauthenticated}
	}
	if d.TransactionID == "" {
		return nil, common.NewValidationError("transactionId", "is required")
	}
	if d.CategoryID == "" {
		return nil, common.NewValidationError("categoryId", "is required")
	}

	txn, err := e.store.GetTransaction(ctx, d.TransactionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewAuthorizationError("transaction", d.TransactionID)
		}
		return nil, err
	}
	if txn.UserID != userID {
		return nil, common.NewAuthorizationError("transaction", d.TransactionID)
	}

	cat, err := e.store.GetCategory(ctx, d.CategoryID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewAuthorizationError("category", d.CategoryID)
		}
		return nil, err
	}
	if !cat.UsableBy(userID) {
		return nil, common.NewAuthorizationError("category", d.CategoryID)
	}

	if d.BusinessID != "" {
		biz, err := e.store.GetBusiness(ctx, d.BusinessID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.NewAuthorizationError("business", d.BusinessID)
			}
			return nil, err
		}
		if biz.UserID != userID {
			return nil, common.NewAuthorizationError("business", d.BusinessID)
		}
	}

	if err := e.store.UpdateTransactionCategory(ctx, txn.ID, cat.ID, d.BusinessID); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	if !d.ApplyToFuture || strings.TrimSpace(txn.MerchantName) == "" {
		return nil, nil
	}
	return e.learnRule(ctx, userID, txn.MerchantName, cat)
}

// learnRule makes sure exactly one merchant-exact rule for merchant exists
// and that it points at cat.
func (e *Engine) learnRule(ctx context.Context, userID, merchant string, cat *model.Category) (*model.CategoryRule, error) {
	pattern := strings.TrimSpace(merchant)

	existing, err := e.store.FindRule(ctx, userID, model.RuleFieldMerchantName, model.MatchExact, pattern)
	switch {
	case err == nil && existing.CategoryID == cat.ID:
		return existing, nil
	case err == nil:
		if err := e.store.DeleteRule(ctx, userID, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to replace rule: %w", err)
		}
	case !errors.Is(err, common.ErrNotFound):
		return nil, fmt.Errorf("failed to look up rule: %w", err)
	}

	rule := &model.CategoryRule{
		UserID:     userID,
		CategoryID: cat.ID,
		Field:      model.RuleFieldMerchantName,
		MatchType:  model.MatchExact,
		Pattern:    pattern,
	}
	if err := e.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	e.logger.Info("learned rule from decision",
		"user_id", userID,
		"merchant", pattern,
		"category", cat.Name)
	return rule, nil
}
