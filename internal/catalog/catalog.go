// Package catalog manages the user-editable reference data categorization
// reads: categories, rules and businesses.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
)

// Store is the subset of the record store the catalog needs.
type Store interface {
	service.CategoryStore
	service.RuleStore
	service.BusinessStore
}

// Service validates and stores catalog changes for one user at a time.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger.With("component", "catalog")}
}

// NewCategory describes a category to create.
type NewCategory struct {
	Name            string
	Description     string
	TransactionType model.TransactionType
	UsageScope      model.UsageScope
}

// NewRule describes a rule to create.
type NewRule struct {
	CategoryID  string
	Field       string
	MatchType   string
	Pattern     string
	DisplayName string
}

// NewBusiness describes a business to create.
type NewBusiness struct {
	Name        string
	Type        model.BusinessType
	TaxID       string
	Address     string
	Description string
}

func requireUser(userID, resource string) error {
	if userID == "" {
		return &common.AuthorizationError{Resource: resource, Err: common.ErrUnauthenticated}
	}
	return nil
}

// Categories lists system categories and the user's own.
func (s *Service) Categories(ctx context.Context, userID string) ([]model.Category, error) {
	if err := requireUser(userID, "category"); err != nil {
		return nil, err
	}
	return s.store.ListCategoriesForUser(ctx, userID)
}

// CreateCategory creates a user category. A category with the same name
// and transaction type is returned instead of a second one; created
// reports which happened.
func (s *Service) CreateCategory(ctx context.Context, userID string, in NewCategory) (*model.Category, bool, error) {
	if err := requireUser(userID, "category"); err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, false, common.NewValidationError("name", "is required")
	}
	if !in.TransactionType.Valid() {
		return nil, false, common.NewValidationError("transactionType", "must be income or expense")
	}
	switch in.UsageScope {
	case "", model.UsageScopePersonal, model.UsageScopeBusiness, model.UsageScopeBoth:
	default:
		return nil, false, common.NewValidationError("usageScope", "must be personal, business or both")
	}

	cat, created, err := s.store.InsertOrGetCategory(ctx, model.Category{
		Name:            name,
		Description:     strings.TrimSpace(in.Description),
		Type:            model.CategoryTypeUser,
		TransactionType: in.TransactionType,
		UsageScope:      in.UsageScope,
		UserID:          userID,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create category: %w", err)
	}
	if created {
		s.logger.Info("category created", "user_id", userID, "category_id", cat.ID, "name", cat.Name)
	}
	return cat, created, nil
}

// DeleteCategory deletes one of the user's categories together with the
// rules pointing at it. Categories still used by transactions are kept.
func (s *Service) DeleteCategory(ctx context.Context, userID, id string) error {
	if err := requireUser(userID, "category"); err != nil {
		return err
	}
	return s.store.DeleteCategory(ctx, userID, id)
}

// Rules lists the user's rules in evaluation order.
func (s *Service) Rules(ctx context.Context, userID string) ([]model.CategoryRule, error) {
	if err := requireUser(userID, "rule"); err != nil {
		return nil, err
	}
	return s.store.ListRulesForUser(ctx, userID)
}

// CreateRule validates and stores a rule. Regex patterns must compile, and
// a rule identical to an existing one is rejected.
func (s *Service) CreateRule(ctx context.Context, userID string, in NewRule) (*model.CategoryRule, error) {
	if err := requireUser(userID, "rule"); err != nil {
		return nil, err
	}
	if in.CategoryID == "" {
		return nil, common.NewValidationError("categoryId", "is required")
	}
	pattern := strings.TrimSpace(in.Pattern)
	if pattern == "" {
		return nil, common.NewValidationError("pattern", "is required")
	}
	field, err := model.ParseRuleField(in.Field)
	if err != nil {
		return nil, common.NewValidationError("field", err.Error())
	}
	matchType := model.MatchContains
	if in.MatchType != "" {
		if matchType, err = model.ParseMatchType(in.MatchType); err != nil {
			return nil, common.NewValidationError("matchType", err.Error())
		}
	}
	if matchType == model.MatchRegex {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return nil, common.NewValidationError("pattern", "is not a valid regular expression")
		}
	}

	cat, err := s.store.GetCategory(ctx, in.CategoryID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewAuthorizationError("category", in.CategoryID)
		}
		return nil, err
	}
	if !cat.UsableBy(userID) {
		return nil, common.NewAuthorizationError("category", in.CategoryID)
	}

	if existing, err := s.store.FindRule(ctx, userID, field, matchType, pattern); err == nil {
		return nil, common.NewUserError(
			fmt.Sprintf("an identical rule already exists (%s)", existing.ID),
			common.ErrDuplicateEntry)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	rule := &model.CategoryRule{
		UserID:      userID,
		CategoryID:  cat.ID,
		Field:       field,
		MatchType:   matchType,
		Pattern:     pattern,
		DisplayName: strings.TrimSpace(in.DisplayName),
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	s.logger.Info("rule created",
		"user_id", userID,
		"rule_id", rule.ID,
		"match_type", matchType,
		"category_id", cat.ID)
	return rule, nil
}

// DeleteRule deletes one of the user's rules.
func (s *Service) DeleteRule(ctx context.Context, userID, id string) error {
	if err := requireUser(userID, "rule"); err != nil {
		return err
	}
	return s.store.DeleteRule(ctx, userID, id)
}

// Businesses lists the user's businesses.
func (s *Service) Businesses(ctx context.Context, userID string) ([]model.Business, error) {
	if err := requireUser(userID, "business"); err != nil {
		return nil, err
	}
	return s.store.ListBusinesses(ctx, userID)
}

// CreateBusiness stores a business owned by userID.
func (s *Service) CreateBusiness(ctx context.Context, userID string, in NewBusiness) (*model.Business, error) {
	if err := requireUser(userID, "business"); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, common.NewValidationError("name", "is required")
	}
	if strings.EqualFold(name, model.PersonalLabel) {
		return nil, common.NewValidationError("name", "is reserved")
	}
	switch in.Type {
	case "":
		in.Type = model.BusinessTypeBusiness
	case model.BusinessTypeBusiness, model.BusinessTypeContract:
	default:
		return nil, common.NewValidationError("type", "must be business or contract")
	}

	b := &model.Business{
		UserID:      userID,
		Name:        name,
		Type:        in.Type,
		TaxID:       strings.TrimSpace(in.TaxID),
		Address:     strings.TrimSpace(in.Address),
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.store.CreateBusiness(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create business: %w", err)
	}
	return b, nil
}

// DeleteBusiness deletes a business. Transactions keep their business id
// and read as Personal afterwards.
func (s *Service) DeleteBusiness(ctx context.Context, userID, id string) error {
	if err := requireUser(userID, "business"); err != nil {
		return err
	}
	return s.store.DeleteBusiness(ctx, userID, id)
}
