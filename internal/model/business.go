package model

import "time"

// PersonalLabel is shown for transactions with no resolvable business.
const PersonalLabel = "Personal"

// BusinessType describes how the user earns through the business.
type BusinessType string

const (
	BusinessTypeBusiness BusinessType = "business"
	BusinessTypeContract BusinessType = "contract"
)

// Business is a user-owned entity transactions can be attributed to.
// Deleting a business leaves referencing transactions with a dangling id.
type Business struct {
	CreatedAt   time.Time
	ID          string
	UserID      string
	Name        string
	Type        BusinessType
	TaxID       string
	Address     string
	Description string
}
