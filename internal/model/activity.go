package model

import "time"

// ActivityType enumerates events in a batch timeline.
type ActivityType string

const (
	ActivityBatchCreated   ActivityType = "batch_created"
	ActivityFileUploaded   ActivityType = "file_uploaded"
	ActivityItemCompleted  ActivityType = "item_completed"
	ActivityItemFailed     ActivityType = "item_failed"
	ActivityItemDuplicate  ActivityType = "item_duplicate"
	ActivityItemRetried    ActivityType = "item_retried"
	ActivityBatchCancelled ActivityType = "batch_cancelled"
)

// ActivityEvent is one append-only entry in a batch's timeline.
type ActivityEvent struct {
	CreatedAt  time.Time
	ID         string
	BatchID    string
	ItemID     string
	Type       ActivityType
	FileName   string
	Message    string
	DurationMs int64
	Seq        int64
}
