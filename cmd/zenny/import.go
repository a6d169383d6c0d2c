package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/batch"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/jobs/inmemory"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/pipeline"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/tui"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/tui/themes"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file-or-url>...",
		Short: "Import receipts or bank statements as one batch",
		Long: `Import files as a single batch and process them with local workers.

Files may be local paths, file://, gs:// or http(s) URLs. Bank statements are
read from OFX/QFX or PDF; receipts from PDF or images. Every transaction found
is categorized with your rules, your history and then the configured model.

Examples:
  zenny import ~/receipts/*.jpg
  zenny import --type bank_statements --from 2026-01-01 --to 2026-03-31 checking.qfx
  zenny import --type mixed --watch gs://my-bucket/scans/march.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("type", string(model.ImportTypeReceipts), "import type (receipts, bank_statements, mixed)")
	cmd.Flags().String("currency", "", "currency for amounts without one (default: import.currency)")
	cmd.Flags().String("business", "", "business id assigned to imported transactions")
	cmd.Flags().String("statement-type", "", "statement type hint (e.g. credit_card, checking)")
	cmd.Flags().String("from", "", "keep statement lines on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "keep statement lines on or before this date (YYYY-MM-DD)")
	cmd.Flags().Bool("watch", false, "show a live view of the batch")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	importType := model.ImportType(mustString(cmd, "type"))
	if !importType.Valid() {
		return fmt.Errorf("invalid --type %q: use receipts, bank_statements or mixed", importType)
	}
	from, err := parseDateFlag("from", mustString(cmd, "from"))
	if err != nil {
		return err
	}
	to, err := parseDateFlag("to", mustString(cmd, "to"))
	if err != nil {
		return err
	}
	if from != nil && to != nil && to.Before(*from) {
		return fmt.Errorf("--to cannot be before --from")
	}

	files, err := importFiles(args)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	defaults := model.BatchDefaults{
		Currency:          strings.ToUpper(mustString(cmd, "currency")),
		DefaultBusinessID: mustString(cmd, "business"),
		StatementType:     mustString(cmd, "statement-type"),
		DateFrom:          from,
		DateTo:            to,
	}
	if defaults.Currency == "" {
		defaults.Currency = a.cfg.Import.Currency
	}

	proc, queue, err := a.localWorkers(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	defer stopQueue(queue, a.logger)

	sub, err := proc.Submit(ctx, a.userID(), importType, defaults, files)
	if err != nil {
		return err
	}
	fmt.Println(cli.FormatInfo(fmt.Sprintf("Batch %s created with %d file(s)", sub.Batch.ID, len(sub.Items))))
	for _, e := range sub.Enqueue.Errors {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Could not queue item %s: %v (retry with `zenny batch retry %s`)", e.BatchItemID, e.Err, e.BatchItemID)))
	}

	watch, _ := cmd.Flags().GetBool("watch")
	return followBatch(ctx, a, proc, queue, sub.Batch.ID, watch)
}

// followBatch shows progress while local workers process the batch and
// prints the final summary.
func followBatch(ctx context.Context, a *app, proc *pipeline.Processor, queue *inmemory.Queue, batchID string, watch bool) error {
	tracker := proc.Tracker()

	if watch {
		if _, err := tui.Watch(ctx, tui.Config{
			Source:  tracker,
			Theme:   themes.Default,
			UserID:  a.userID(),
			BatchID: batchID,
		}); err != nil {
			return err
		}
	} else if err := pollProgress(ctx, tracker, a.userID(), batchID); err != nil {
		return err
	}

	if err := queue.Drain(ctx); err != nil {
		fmt.Println(cli.FormatWarning("Interrupted; unprocessed items stay pending and can be retried"))
		return nil
	}

	final, err := tracker.Get(context.WithoutCancel(ctx), a.userID(), batchID)
	if err != nil {
		return err
	}
	fmt.Println(cli.BatchSummary(final))
	return nil
}

func pollProgress(ctx context.Context, tracker *batch.Tracker, userID, batchID string) error {
	current, err := tracker.Get(ctx, userID, batchID)
	if err != nil {
		return err
	}
	bar := cli.NewImportProgress(os.Stdout, current.TotalFiles)
	defer bar.Finish()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for !current.Status.IsTerminal() {
		bar.Update(current)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if current, err = tracker.Get(ctx, userID, batchID); err != nil {
			return err
		}
	}
	bar.Update(current)
	return nil
}

// importFiles turns arguments into batch files. Local paths become absolute
// so workers resolve them regardless of their working directory.
func importFiles(args []string) ([]batch.File, error) {
	files := make([]batch.File, 0, len(args))
	for _, arg := range args {
		if u, err := url.Parse(arg); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
			files = append(files, batch.File{Name: filepath.Base(u.Path), URL: arg})
			continue
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", arg)
		}
		files = append(files, batch.File{Name: filepath.Base(abs), URL: abs})
	}
	return files, nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return strings.TrimSpace(v)
}
