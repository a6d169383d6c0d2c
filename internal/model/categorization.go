package model

// Method names the strategy that produced a categorization.
type Method string

const (
	MethodRule    Method = "rule"
	MethodHistory Method = "history"
	MethodAI      Method = "ai"
	MethodNone    Method = "none"
)

// CategorizationResult is the transient outcome of categorizing one transaction.
// It is logged but never stored; callers persist only CategoryID and BusinessID.
type CategorizationResult struct {
	CategoryID        string  `json:"categoryId,omitempty"`
	CategoryName      string  `json:"categoryName,omitempty"`
	Method            Method  `json:"method"`
	SuggestedCategory string  `json:"suggestedCategory,omitempty"`
	BusinessID        string  `json:"businessId,omitempty"`
	BusinessName      string  `json:"businessName,omitempty"`
	Confidence        float64 `json:"confidence"`
	IsNewCategory     bool    `json:"isNewCategory,omitempty"`
	IsBusinessExpense bool    `json:"isBusinessExpense,omitempty"`
}

// NoMatch is the result returned when a strategy has no opinion.
func NoMatch() CategorizationResult {
	return CategorizationResult{Method: MethodNone}
}

// Matched reports whether a strategy produced a decision.
func (r CategorizationResult) Matched() bool {
	return r.Method != "" && r.Method != MethodNone
}
