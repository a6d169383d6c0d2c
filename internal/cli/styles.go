// Package cli provides styled terminal output using lipgloss.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#7C83FD")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor indicates warnings or caution messages.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor indicates errors or failure messages.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// InfoColor indicates informational messages.
	InfoColor = lipgloss.Color("#95E1D3")
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ErrorColor)
	InfoStyle    = lipgloss.NewStyle().Foreground(InfoColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(SubtleColor)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// BoxStyle is used for bordered content boxes.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	// PromptStyle is used for user prompts.
	PromptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	LedgerIcon  = "📒"
	RobotIcon   = "🤖"
	ChartIcon   = "📊"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle formats a title with the ledger icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(LedgerIcon + " " + title)
}

// FormatPrompt formats a prompt message.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " → ")
}

// RenderBox renders content in a styled box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, boxTitle, content))
}

// BatchStatus colors a batch status.
func BatchStatus(status model.BatchStatus) string {
	switch status {
	case model.BatchStatusCompleted:
		return SuccessStyle.Render(string(status))
	case model.BatchStatusFailed:
		return ErrorStyle.Render(string(status))
	case model.BatchStatusCancelled:
		return SubtleStyle.Render(string(status))
	case model.BatchStatusProcessing:
		return InfoStyle.Render(string(status))
	default:
		return string(status)
	}
}

// ItemStatus colors an item status.
func ItemStatus(status model.ItemStatus) string {
	switch status {
	case model.ItemStatusCompleted:
		return SuccessStyle.Render(string(status))
	case model.ItemStatusFailed:
		return ErrorStyle.Render(string(status))
	case model.ItemStatusDuplicate:
		return WarningStyle.Render(string(status))
	case model.ItemStatusSkipped:
		return SubtleStyle.Render(string(status))
	case model.ItemStatusProcessing:
		return InfoStyle.Render(string(status))
	default:
		return string(status)
	}
}

// BatchSummary renders the counters of a batch in one box.
func BatchSummary(b *model.ImportBatch) string {
	c := b.BatchCounters.Clamped()
	content := fmt.Sprintf("Status:     %s\n", BatchStatus(b.Status)) +
		fmt.Sprintf("Type:       %s\n", b.ImportType) +
		fmt.Sprintf("Progress:   %d/%d (%.0f%%)\n", c.ProcessedFiles, c.TotalFiles, b.Progress()*100) +
		fmt.Sprintf("Successful: %s\n", SuccessStyle.Render(fmt.Sprint(c.SuccessfulFiles))) +
		fmt.Sprintf("Duplicates: %s\n", WarningStyle.Render(fmt.Sprint(c.DuplicateFiles))) +
		fmt.Sprintf("Failed:     %s", ErrorStyle.Render(fmt.Sprint(c.FailedFiles)))
	return RenderBox(ChartIcon+" Batch "+b.ID, content)
}

// TableHeader styles each column separately so tab stops survive for a
// tabwriter.
func TableHeader(columns ...string) string {
	styled := make([]string, len(columns))
	for i, c := range columns {
		styled[i] = TableHeaderStyle.Render(c)
	}
	return strings.Join(styled, "\t")
}
