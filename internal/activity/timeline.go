package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// Entry is a display-ready timeline row.
type Entry struct {
	At      time.Time `json:"at"`
	Type    string    `json:"type"`
	Icon    string    `json:"icon"`
	Message string    `json:"message"`
	ItemID  string    `json:"itemId,omitempty"`
	Elapsed string    `json:"elapsed,omitempty"`
}

var icons = map[model.ActivityType]string{
	model.ActivityBatchCreated:   "▶",
	model.ActivityFileUploaded:   "↑",
	model.ActivityItemCompleted:  "✓",
	model.ActivityItemFailed:     "✗",
	model.ActivityItemDuplicate:  "≡",
	model.ActivityItemRetried:    "↻",
	model.ActivityBatchCancelled: "■",
}

// Timeline turns raw events into display rows, oldest first. Elapsed is
// measured from the first event.
func Timeline(events []model.ActivityEvent) []Entry {
	if len(events) == 0 {
		return nil
	}
	start := events[0].CreatedAt
	out := make([]Entry, 0, len(events))
	for _, e := range events {
		icon, ok := icons[e.Type]
		if !ok {
			icon = "·"
		}
		entry := Entry{
			At:      e.CreatedAt,
			Type:    string(e.Type),
			Icon:    icon,
			Message: e.Message,
			ItemID:  e.ItemID,
		}
		if d := e.CreatedAt.Sub(start); d > 0 {
			entry.Elapsed = "+" + formatElapsed(d)
		}
		out = append(out, entry)
	}
	return out
}

// Render formats a timeline as plain text, one row per line.
func Render(entries []Entry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s  %s %s", e.At.Local().Format("15:04:05"), e.Icon, e.Message)
		if e.Elapsed != "" {
			fmt.Fprintf(&sb, "  (%s)", e.Elapsed)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
