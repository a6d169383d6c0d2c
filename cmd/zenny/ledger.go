package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ledger",
		Aliases: []string{"transactions"},
		Short:   "List transactions with their categories and totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseDateFlag("from", mustString(cmd, "from"))
			if err != nil {
				return err
			}
			end, err := parseDateFlag("to", mustString(cmd, "to"))
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.ledger().Report(cmd.Context(), a.userID(), ledger.Filter{Start: start, End: end, Limit: limit})
			if err != nil {
				return err
			}
			return printLedger(report)
		},
	}
	cmd.Flags().String("from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 0, "maximum number of transactions (0 for all)")
	return cmd
}

func printLedger(report *ledger.Report) error {
	if len(report.Entries) == 0 {
		fmt.Println(cli.FormatInfo("No transactions in range"))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, cli.TableHeader("DATE", "MERCHANT", "AMOUNT", "TYPE", "CATEGORY", "BUSINESS"))
	for _, e := range report.Entries {
		amount := e.Amount.StringFixed(2) + " " + e.Currency
		if e.Excluded {
			amount = cli.SubtleStyle.Render(amount + " (excluded)")
		}
		category := e.CategoryName
		if e.CategoryID == "" {
			category = cli.WarningStyle.Render(category)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Date.Format("2006-01-02"), e.MerchantName, amount, e.Type, category, e.BusinessName)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	t := report.Totals
	summary := fmt.Sprintf("Transactions: %d (%d excluded)\n", t.Count, t.Excluded) +
		fmt.Sprintf("Income:       %s\n", cli.SuccessStyle.Render(t.Income.StringFixed(2))) +
		fmt.Sprintf("Expenses:     %s\n", cli.ErrorStyle.Render(t.Expenses.StringFixed(2))) +
		fmt.Sprintf("Net:          %s", cli.BoldStyle.Render(t.Net.StringFixed(2)))
	fmt.Println()
	fmt.Println(cli.RenderBox(cli.ChartIcon+" Totals", summary))
	return nil
}
