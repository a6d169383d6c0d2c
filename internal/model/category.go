package model

import (
	"strings"
	"time"
)

// CategoryType distinguishes shared system categories from user-owned ones.
type CategoryType string

const (
	// CategoryTypeSystem categories are seeded once and shared by every user.
	CategoryTypeSystem CategoryType = "system"
	// CategoryTypeUser categories are owned, and deletable, by their creator.
	CategoryTypeUser CategoryType = "user"
)

// TransactionType is the direction of money a category applies to.
type TransactionType string

const (
	// TransactionTypeIncome is money coming in.
	TransactionTypeIncome TransactionType = "income"
	// TransactionTypeExpense is money going out.
	TransactionTypeExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// UsageScope limits where a category is offered.
type UsageScope string

const (
	UsageScopePersonal UsageScope = "personal"
	UsageScopeBusiness UsageScope = "business"
	UsageScopeBoth     UsageScope = "both"
)

// Category is a spending or income bucket a transaction can be assigned to.
type Category struct {
	CreatedAt       time.Time
	ID              string
	Name            string
	Description     string
	Type            CategoryType
	TransactionType TransactionType
	UsageScope      UsageScope
	UserID          string // empty for system categories
}

// IsSystem reports whether the category is shared rather than user-owned.
func (c *Category) IsSystem() bool {
	return c.Type == CategoryTypeSystem
}

// UsableBy reports whether userID may assign transactions to this category.
func (c *Category) UsableBy(userID string) bool {
	return c.IsSystem() || c.UserID == userID
}

// FindCategoryByName returns the category whose name equals name, ignoring case.
func FindCategoryByName(categories []Category, name string) (*Category, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, false
	}
	for i := range categories {
		if strings.ToLower(categories[i].Name) == key {
			return &categories[i], true
		}
	}
	return nil, false
}
