package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
)

// ImportProgress draws a batch's processed count as a progress bar.
type ImportProgress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	shown  int
}

// NewImportProgress creates a bar for a batch of total files.
func NewImportProgress(writer io.Writer, total int) *ImportProgress {
	p := &ImportProgress{writer: writer}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing files...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// Update moves the bar to the batch's clamped processed count. The bar
// never moves backwards, even when a retry reopens an item.
func (p *ImportProgress) Update(b *model.ImportBatch) {
	processed := b.BatchCounters.Clamped().ProcessedFiles
	if processed <= p.shown {
		return
	}
	if err := p.bar.Set(processed); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
		return
	}
	p.shown = processed
}

// Finish completes the bar.
func (p *ImportProgress) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
