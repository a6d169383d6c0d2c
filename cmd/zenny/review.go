package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Categorize the transactions nothing could categorize",
		Long: `Walk through uncategorized transactions and pick a category and business for
each. Answering yes to "Always use" creates a rule so the merchant is
categorized automatically next time.`,
		RunE: runReview,
	}
	cmd.Flags().String("from", "", "only transactions on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "only transactions on or before this date (YYYY-MM-DD)")
	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	start, err := parseDateFlag("from", mustString(cmd, "from"))
	if err != nil {
		return err
	}
	end, err := parseDateFlag("to", mustString(cmd, "to"))
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(os.Stdout, "Decisions made so far are saved.")
	ctx := interrupts.HandleInterrupts(cmd.Context())

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.ledger().List(ctx, a.userID(), ledger.Filter{Start: start, End: end})
	if err != nil {
		return err
	}
	var pending []ledger.Entry
	for _, e := range entries {
		if e.CategoryID == "" {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		fmt.Println(cli.FormatSuccess("Every transaction is categorized"))
		return nil
	}

	svc := a.catalog()
	categories, err := svc.Categories(ctx, a.userID())
	if err != nil {
		return err
	}
	businesses, err := svc.Businesses(ctx, a.userID())
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%d transaction(s) to review", len(pending))))
	reviewer := cli.NewReviewer(os.Stdin, os.Stdout, categories, businesses)
	reviewer.Start(len(pending))
	defer reviewer.Finish()

	for _, entry := range pending {
		decision, ok, err := reviewer.Review(ctx, entry)
		switch {
		case errors.Is(err, cli.ErrQuit), errors.Is(err, cli.ErrInputCancelled), errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if interrupts.WasInterrupted() {
				return nil
			}
			return err
		case !ok:
			continue
		}

		rule, err := a.engine.ApplyDecision(ctx, a.userID(), decision)
		if err != nil {
			return err
		}
		if rule != nil {
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Future %q transactions will be categorized automatically", rule.Pattern)))
		}
	}
	return nil
}
