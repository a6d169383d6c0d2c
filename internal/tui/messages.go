package tui

import (
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// batchLoadedMsg carries a fresh snapshot of the watched batch.
type batchLoadedMsg struct {
	batch *model.ImportBatch
	items []model.ImportBatchItem
}

// errMsg reports a failed load.
type errMsg struct {
	err error
}

// tickMsg triggers the next poll.
type tickMsg time.Time
