// Package tui renders a live view of an import batch while its files are
// processed.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/tui/themes"
)

// BatchSource loads the state of a batch. *batch.Tracker satisfies it.
type BatchSource interface {
	Get(ctx context.Context, userID, batchID string) (*model.ImportBatch, error)
	Items(ctx context.Context, userID, batchID string) ([]model.ImportBatchItem, error)
}

// KeyMap defines the watcher's keyboard shortcuts.
type KeyMap struct {
	Quit        key.Binding
	ToggleItems key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		ToggleItems: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "toggle files"),
		),
	}
}

// WatchModel polls a batch and renders its progress until the batch
// reaches a terminal status or the user quits.
type WatchModel struct {
	ctx       context.Context
	source    BatchSource
	lastError error
	batch     *model.ImportBatch
	theme     themes.Theme
	keymap    KeyMap
	userID    string
	batchID   string
	items     []model.ImportBatchItem
	spinner   spinner.Model
	bar       progress.Model
	interval  time.Duration
	width     int
	showItems bool
	quitting  bool
	done      bool
}

func newWatchModel(ctx context.Context, cfg Config) WatchModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(cfg.Theme.Primary)),
	)
	bar := progress.New(
		progress.WithGradient(string(cfg.Theme.Primary), string(cfg.Theme.Secondary)),
		progress.WithWidth(40),
	)
	return WatchModel{
		ctx:       ctx,
		source:    cfg.Source,
		theme:     cfg.Theme,
		keymap:    DefaultKeyMap(),
		userID:    cfg.UserID,
		batchID:   cfg.BatchID,
		interval:  cfg.Interval,
		spinner:   s,
		bar:       bar,
		showItems: cfg.ShowItems,
	}
}

// Init starts the spinner and the first load.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// Update handles messages and updates the model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.ToggleItems):
			m.showItems = !m.showItems
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, min(60, msg.Width-20))
		return m, nil

	case batchLoadedMsg:
		m.batch = msg.batch
		m.items = msg.items
		m.lastError = nil
		if m.batch.Status.IsTerminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tick()

	case errMsg:
		m.lastError = msg.err
		return m, tea.Quit

	case tickMsg:
		return m, m.load()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the batch.
func (m WatchModel) View() string {
	if m.lastError != nil {
		return m.theme.StatusError.Render("Error: "+m.lastError.Error()) + "\n"
	}
	if m.batch == nil {
		return m.spinner.View() + " Loading batch " + m.batchID + "...\n"
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render("Import batch " + m.batch.ID))
	b.WriteString("\n")

	status := m.statusStyle(m.batch.Status).Render(string(m.batch.Status))
	if !m.done {
		status = m.spinner.View() + " " + status
	}
	c := m.batch.BatchCounters.Clamped()
	fmt.Fprintf(&b, "%s  %s\n\n", status, m.theme.Subtitle.Render(string(m.batch.ImportType)))
	fmt.Fprintf(&b, "%s %d/%d\n\n", m.bar.ViewAs(m.batch.Progress()), c.ProcessedFiles, c.TotalFiles)
	fmt.Fprintf(&b, "%s  %s  %s\n",
		m.theme.StatusSuccess.Render(fmt.Sprintf("%d successful", c.SuccessfulFiles)),
		m.theme.StatusWarning.Render(fmt.Sprintf("%d duplicates", c.DuplicateFiles)),
		m.theme.StatusError.Render(fmt.Sprintf("%d failed", c.FailedFiles)),
	)

	if m.showItems && len(m.items) > 0 {
		b.WriteString("\n")
		for _, item := range m.items {
			fmt.Fprintf(&b, "  %s %s", m.itemStyle(item.Status).Render(itemIcon(item.Status)), item.FileName)
			if item.ErrorMessage != "" {
				fmt.Fprintf(&b, "  %s", m.theme.Subtitle.Render(item.ErrorMessage))
			}
			b.WriteString("\n")
		}
	}

	if !m.done {
		b.WriteString(m.theme.Help.Render(fmt.Sprintf("%s • %s", m.keymap.ToggleItems.Help().Desc, "q to quit")))
		b.WriteString("\n")
	}
	return b.String()
}

// Batch returns the last loaded snapshot.
func (m WatchModel) Batch() *model.ImportBatch {
	return m.batch
}

func (m WatchModel) load() tea.Cmd {
	return func() tea.Msg {
		b, err := m.source.Get(m.ctx, m.userID, m.batchID)
		if err != nil {
			return errMsg{err: err}
		}
		items, err := m.source.Items(m.ctx, m.userID, m.batchID)
		if err != nil {
			return errMsg{err: err}
		}
		return batchLoadedMsg{batch: b, items: items}
	}
}

func (m WatchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m WatchModel) statusStyle(s model.BatchStatus) lipgloss.Style {
	switch s {
	case model.BatchStatusCompleted:
		return m.theme.StatusSuccess
	case model.BatchStatusFailed:
		return m.theme.StatusError
	case model.BatchStatusProcessing:
		return m.theme.StatusInfo
	default:
		return m.theme.StatusPending
	}
}

func (m WatchModel) itemStyle(s model.ItemStatus) lipgloss.Style {
	switch s {
	case model.ItemStatusCompleted:
		return m.theme.StatusSuccess
	case model.ItemStatusFailed:
		return m.theme.StatusError
	case model.ItemStatusDuplicate:
		return m.theme.StatusWarning
	case model.ItemStatusProcessing:
		return m.theme.StatusInfo
	default:
		return m.theme.StatusPending
	}
}

func itemIcon(s model.ItemStatus) string {
	switch s {
	case model.ItemStatusCompleted:
		return "✓"
	case model.ItemStatusFailed:
		return "✗"
	case model.ItemStatusDuplicate:
		return "≡"
	case model.ItemStatusSkipped:
		return "–"
	case model.ItemStatusProcessing:
		return "…"
	default:
		return "·"
	}
}
