package api

import (
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

type batchResponse struct {
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ID          string     `json:"id"`
	ImportType  string     `json:"importType"`
	Status      string     `json:"status"`
	model.BatchCounters
	Progress float64 `json:"progress"`
}

func toBatch(b *model.ImportBatch) batchResponse {
	return batchResponse{
		CreatedAt:     b.CreatedAt,
		StartedAt:     b.StartedAt,
		CompletedAt:   b.CompletedAt,
		ID:            b.ID,
		ImportType:    string(b.ImportType),
		Status:        string(b.Status),
		BatchCounters: b.BatchCounters.Clamped(),
		Progress:      b.Progress(),
	}
}

type itemResponse struct {
	UpdatedAt             time.Time `json:"updatedAt"`
	ID                    string    `json:"id"`
	FileName              string    `json:"fileName"`
	FileFormat            string    `json:"fileFormat,omitempty"`
	Status                string    `json:"status"`
	DocumentID            string    `json:"documentId,omitempty"`
	DuplicateOfDocumentID string    `json:"duplicateOfDocumentId,omitempty"`
	DuplicateMatchType    string    `json:"duplicateMatchType,omitempty"`
	ErrorMessage          string    `json:"errorMessage,omitempty"`
	ErrorCode             string    `json:"errorCode,omitempty"`
	Order                 int       `json:"order"`
	RetryCount            int       `json:"retryCount"`
}

func toItems(items []model.ImportBatchItem) []itemResponse {
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = itemResponse{
			UpdatedAt:             it.UpdatedAt,
			ID:                    it.ID,
			FileName:              it.FileName,
			FileFormat:            it.FileFormat,
			Status:                string(it.Status),
			DocumentID:            it.DocumentID,
			DuplicateOfDocumentID: it.DuplicateOfDocumentID,
			DuplicateMatchType:    string(it.DuplicateMatchType),
			ErrorMessage:          it.ErrorMessage,
			ErrorCode:             it.ErrorCode,
			Order:                 it.Order,
			RetryCount:            it.RetryCount,
		}
	}
	return out
}

type categoryResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Type            string `json:"type"`
	TransactionType string `json:"transactionType"`
	UsageScope      string `json:"usageScope"`
}

func toCategory(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:              c.ID,
		Name:            c.Name,
		Description:     c.Description,
		Type:            string(c.Type),
		TransactionType: string(c.TransactionType),
		UsageScope:      string(c.UsageScope),
	}
}

type ruleResponse struct {
	ID          string `json:"id"`
	CategoryID  string `json:"categoryId"`
	Field       string `json:"field"`
	MatchType   string `json:"matchType"`
	Pattern     string `json:"pattern"`
	DisplayName string `json:"displayName,omitempty"`
}

func toRule(r *model.CategoryRule) ruleResponse {
	return ruleResponse{
		ID:          r.ID,
		CategoryID:  r.CategoryID,
		Field:       string(r.Field),
		MatchType:   string(r.MatchType),
		Pattern:     r.Pattern,
		DisplayName: r.DisplayName,
	}
}

type businessResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	TaxID       string `json:"taxId,omitempty"`
	Address     string `json:"address,omitempty"`
	Description string `json:"description,omitempty"`
}

func toBusiness(b *model.Business) businessResponse {
	return businessResponse{
		ID:          b.ID,
		Name:        b.Name,
		Type:        string(b.Type),
		TaxID:       b.TaxID,
		Address:     b.Address,
		Description: b.Description,
	}
}

type transactionResponse struct {
	Date         string `json:"date"`
	ID           string `json:"id"`
	MerchantName string `json:"merchantName"`
	Description  string `json:"description,omitempty"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Type         string `json:"type"`
	Source       string `json:"source"`
	CategoryID   string `json:"categoryId,omitempty"`
	CategoryName string `json:"categoryName"`
	BusinessID   string `json:"businessId,omitempty"`
	BusinessName string `json:"businessName"`
	Excluded     bool   `json:"excluded"`
}

type totalsResponse struct {
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Net      string `json:"net"`
	Count    int    `json:"count"`
	Excluded int    `json:"excluded"`
}

type ledgerResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Totals       totalsResponse        `json:"totals"`
}

func toLedger(r *ledger.Report) ledgerResponse {
	out := ledgerResponse{
		Transactions: make([]transactionResponse, len(r.Entries)),
		Totals: totalsResponse{
			Income:   r.Totals.Income.StringFixed(2),
			Expenses: r.Totals.Expenses.StringFixed(2),
			Net:      r.Totals.Net.StringFixed(2),
			Count:    r.Totals.Count,
			Excluded: r.Totals.Excluded,
		},
	}
	for i, e := range r.Entries {
		out.Transactions[i] = transactionResponse{
			Date:         e.Date.Format(dateLayout),
			ID:           e.ID,
			MerchantName: e.MerchantName,
			Description:  e.Description,
			Amount:       e.Amount.StringFixed(2),
			Currency:     e.Currency,
			Type:         string(e.Type),
			Source:       string(e.Source),
			CategoryID:   e.CategoryID,
			CategoryName: e.CategoryName,
			BusinessID:   e.BusinessID,
			BusinessName: e.BusinessName,
			Excluded:     e.Excluded,
		}
	}
	return out
}
