package model

import (
	"path/filepath"
	"strings"
	"time"
)

// ImportType declares what kind of files a batch holds.
type ImportType string

const (
	ImportTypeReceipts       ImportType = "receipts"
	ImportTypeBankStatements ImportType = "bank_statements"
	ImportTypeMixed          ImportType = "mixed"
)

// Valid reports whether t is a known import type.
func (t ImportType) Valid() bool {
	switch t {
	case ImportTypeReceipts, ImportTypeBankStatements, ImportTypeMixed:
		return true
	}
	return false
}

// BatchStatus is the derived lifecycle state of an ImportBatch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// IsTerminal reports whether no further item work changes the batch status.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ItemStatus is the lifecycle state of a single uploaded file.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
	ItemStatusDuplicate  ItemStatus = "duplicate"
	ItemStatusSkipped    ItemStatus = "skipped"
)

// IsTerminal reports whether the item finished its current lifecycle pass.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemStatusCompleted, ItemStatusFailed, ItemStatusDuplicate, ItemStatusSkipped:
		return true
	}
	return false
}

// DuplicateMatchType records how a duplicate was detected.
type DuplicateMatchType string

const (
	DuplicateMatchExactImage         DuplicateMatchType = "exact_image"
	DuplicateMatchMerchantDateAmount DuplicateMatchType = "merchant_date_amount"
	DuplicateMatchManual             DuplicateMatchType = "manual"
)

// ErrorCodeProcessing is stored on items whose pipeline failed.
const ErrorCodeProcessing = "PROCESSING_ERROR"

// BatchDefaults are per-batch hints copied into every job payload.
type BatchDefaults struct {
	Currency          string
	DefaultBusinessID string
	StatementType     string
	SourceFormat      string
	DateFrom          *time.Time
	DateTo            *time.Time
}

// BatchCounters are the aggregate item counts of a batch.
type BatchCounters struct {
	TotalFiles      int `json:"totalFiles"`
	ProcessedFiles  int `json:"processedFiles"`
	SuccessfulFiles int `json:"successfulFiles"`
	FailedFiles     int `json:"failedFiles"`
	DuplicateFiles  int `json:"duplicateFiles"`
}

// Clamped returns the counters with every count capped at TotalFiles.
func (c BatchCounters) Clamped() BatchCounters {
	clamp := func(n int) int {
		if n > c.TotalFiles {
			return c.TotalFiles
		}
		if n < 0 {
			return 0
		}
		return n
	}
	return BatchCounters{
		TotalFiles:      c.TotalFiles,
		ProcessedFiles:  clamp(c.ProcessedFiles),
		SuccessfulFiles: clamp(c.SuccessfulFiles),
		FailedFiles:     clamp(c.FailedFiles),
		DuplicateFiles:  clamp(c.DuplicateFiles),
	}
}

// Progress returns min(processed, total)/total in [0,1].
func (c BatchCounters) Progress() float64 {
	if c.TotalFiles <= 0 {
		return 0
	}
	return float64(c.Clamped().ProcessedFiles) / float64(c.TotalFiles)
}

// ImportBatch groups the files a user submitted together.
type ImportBatch struct {
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Defaults    BatchDefaults
	ID          string
	UserID      string
	ImportType  ImportType
	Status      BatchStatus
	BatchCounters
}

// ImportBatchItem is one uploaded file inside a batch.
type ImportBatchItem struct {
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ID                    string
	BatchID               string
	FileName              string
	FileURL               string
	FileFormat            string
	Status                ItemStatus
	DocumentID            string
	DuplicateOfDocumentID string
	DuplicateMatchType    DuplicateMatchType
	ErrorMessage          string
	ErrorCode             string
	Order                 int
	RetryCount            int
}

// FileFormatFromName returns the lower-case extension of name without the dot.
func FileFormatFromName(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
