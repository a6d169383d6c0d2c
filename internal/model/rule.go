package model

import (
	"fmt"
	"time"
)

// RuleField selects which transaction field a rule inspects.
type RuleField string

const (
	RuleFieldMerchantName RuleField = "merchantName"
	RuleFieldDescription  RuleField = "description"
)

// MatchType is the closed set of rule matching strategies.
type MatchType string

const (
	// MatchExact requires the whole field to equal the pattern.
	MatchExact MatchType = "exact"
	// MatchContains requires the pattern to appear anywhere in the field.
	MatchContains MatchType = "contains"
	// MatchRegex tests the field against the pattern as a regular expression.
	MatchRegex MatchType = "regex"
)

// ParseMatchType converts user input into a MatchType, rejecting unknown values.
func ParseMatchType(s string) (MatchType, error) {
	switch MatchType(s) {
	case MatchExact, MatchContains, MatchRegex:
		return MatchType(s), nil
	default:
		return "", fmt.Errorf("unknown match type %q", s)
	}
}

// ParseRuleField converts user input into a RuleField.
func ParseRuleField(s string) (RuleField, error) {
	switch RuleField(s) {
	case RuleFieldMerchantName, RuleFieldDescription:
		return RuleField(s), nil
	case "":
		return RuleFieldMerchantName, nil
	default:
		return "", fmt.Errorf("unknown rule field %q", s)
	}
}

// CategoryRule maps transactions whose field matches Pattern to CategoryID.
// Rules are evaluated in insertion order and the first match wins.
type CategoryRule struct {
	CreatedAt   time.Time
	ID          string
	UserID      string
	CategoryID  string
	Field       RuleField
	MatchType   MatchType
	Pattern     string
	DisplayName string
	Seq         int64
}
