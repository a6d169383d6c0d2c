package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/activity"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/tui"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/tui/themes"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Inspect and manage import batches",
		Long: `Inspect import batches and act on them.

A batch is completed once every file is processed, failed when any file
failed, and cancelled when you cancel it. Failed files can be retried one at a
time or all together; retrying reopens the batch.`,
	}

	cmd.AddCommand(batchListCmd())
	cmd.AddCommand(batchStatusCmd())
	cmd.AddCommand(batchWatchCmd())
	cmd.AddCommand(batchItemsCmd())
	cmd.AddCommand(batchActivityCmd())
	cmd.AddCommand(batchCancelCmd())
	cmd.AddCommand(batchRetryCmd())
	cmd.AddCommand(batchRetryFailedCmd())
	return cmd
}

func batchListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			batches, err := a.processor().Tracker().List(cmd.Context(), a.userID(), limit)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Println(cli.FormatInfo("No batches yet. Start one with `zenny import`."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, cli.TableHeader("ID", "CREATED", "TYPE", "STATUS", "PROGRESS"))
			for i := range batches {
				b := &batches[i]
				c := b.BatchCounters.Clamped()
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\n",
					b.ID, b.CreatedAt.Local().Format("2006-01-02 15:04"), b.ImportType, cli.BatchStatus(b.Status),
					c.ProcessedFiles, c.TotalFiles)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of batches")
	return cmd
}

func batchStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show the counters and progress of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.processor().Tracker().Get(cmd.Context(), a.userID(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(cli.BatchSummary(b))
			return nil
		},
	}
}

func batchWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <batch-id>",
		Short: "Follow a batch until it finishes",
		Long: `Follow a batch that another process (such as zenny serve) is working on.
Press i to show the files and q to stop watching; the batch keeps running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			theme, _ := cmd.Flags().GetString("theme")
			items, _ := cmd.Flags().GetBool("items")
			final, err := tui.Watch(cmd.Context(), tui.Config{
				Source:    a.processor().Tracker(),
				Theme:     themes.ByName(theme),
				UserID:    a.userID(),
				BatchID:   args[0],
				ShowItems: items,
			})
			if err != nil {
				return err
			}
			if final != nil && final.Status.IsTerminal() {
				fmt.Println(cli.BatchSummary(final))
			}
			return nil
		},
	}
	cmd.Flags().String("theme", "default", "color theme (default, catppuccin)")
	cmd.Flags().Bool("items", false, "start with the file list expanded")
	return cmd
}

func batchItemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "items <batch-id>",
		Short: "List the files of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.processor().Tracker().Items(cmd.Context(), a.userID(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, cli.TableHeader("#", "ITEM", "FILE", "STATUS", "RETRIES", "DETAIL"))
			for _, item := range items {
				detail := item.ErrorMessage
				if item.DuplicateOfDocumentID != "" {
					detail = fmt.Sprintf("duplicate of %s (%s)", item.DuplicateOfDocumentID, item.DuplicateMatchType)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
					item.Order+1, item.ID, item.FileName, cli.ItemStatus(item.Status), item.RetryCount, detail)
			}
			return w.Flush()
		},
	}
}

func batchActivityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity <batch-id>",
		Short: "Show the activity timeline of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			proc := a.processor()
			if _, err := proc.Tracker().Get(cmd.Context(), a.userID(), args[0]); err != nil {
				return err
			}
			events, err := proc.Activity().List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println(cli.FormatInfo("No activity recorded"))
				return nil
			}
			fmt.Print(activity.Render(activity.Timeline(events)))
			return nil
		},
	}
}

func batchCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Cancel a batch",
		Long: `Cancel a batch. Files already being processed finish; files still waiting
are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.processor().Cancel(cmd.Context(), a.userID(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Batch %s is %s", b.ID, b.Status)))
			return nil
		},
	}
}

func batchRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <item-id>",
		Short: "Retry a failed or unqueued file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			proc, queue, err := a.localWorkers(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}
			defer stopQueue(queue, a.logger)

			item, _, err := proc.Tracker().Item(ctx, a.userID(), args[0])
			if err != nil {
				return err
			}
			res, err := proc.Retry(ctx, a.userID(), args[0])
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("failed to queue retry: %w", res.Err)
			}
			fmt.Println(cli.FormatInfo(fmt.Sprintf("Retrying %s", item.FileName)))

			watch, _ := cmd.Flags().GetBool("watch")
			return followBatch(ctx, a, proc, queue, item.BatchID, watch)
		},
	}
	cmd.Flags().Bool("watch", false, "show a live view of the batch")
	return cmd
}

func batchRetryFailedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-failed <batch-id>",
		Short: "Retry every failed or unqueued file of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			proc, queue, err := a.localWorkers(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}
			defer stopQueue(queue, a.logger)

			res, err := proc.RetryAllFailed(ctx, a.userID(), args[0])
			if err != nil {
				return err
			}
			if res.Retried == 0 && res.Failed == 0 {
				fmt.Println(cli.FormatInfo("No failed or pending files to retry"))
				return nil
			}
			fmt.Println(cli.FormatInfo(fmt.Sprintf("Retrying %d file(s)", res.Retried)))
			if res.Failed > 0 {
				msgs := make([]string, 0, len(res.Errors))
				for _, e := range res.Errors {
					msgs = append(msgs, fmt.Sprintf("%s: %v", e.BatchItemID, e.Err))
				}
				fmt.Println(cli.FormatWarning(fmt.Sprintf("%d file(s) could not be retried: %s", res.Failed, strings.Join(msgs, "; "))))
			}

			watch, _ := cmd.Flags().GetBool("watch")
			return followBatch(ctx, a, proc, queue, args[0], watch)
		},
	}
	cmd.Flags().Bool("watch", false, "show a live view of the batch")
	return cmd
}
