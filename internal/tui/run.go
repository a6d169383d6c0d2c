package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/tui/themes"
)

// Config holds the configuration of a batch watch.
type Config struct {
	Source    BatchSource
	Input     io.Reader
	Output    io.Writer
	Theme     themes.Theme
	UserID    string
	BatchID   string
	Interval  time.Duration
	ShowItems bool
}

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Watch renders the batch until it finishes or the user quits, and returns
// the last snapshot it saw.
func Watch(ctx context.Context, cfg Config) (*model.ImportBatch, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("batch source is required")
	}
	if cfg.BatchID == "" {
		return nil, fmt.Errorf("batch id is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Theme.Primary == "" {
		cfg.Theme = themes.Default
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.Input != nil {
		opts = append(opts, tea.WithInput(cfg.Input))
	}
	if cfg.Output != nil {
		opts = append(opts, tea.WithOutput(cfg.Output))
	}

	final, err := tea.NewProgram(newWatchModel(ctx, cfg), opts...).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("batch watcher failed: %w", err)
	}
	m, ok := final.(WatchModel)
	if !ok {
		return nil, ctx.Err()
	}
	if m.lastError != nil {
		return m.batch, m.lastError
	}
	return m.batch, ctx.Err()
}
