package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/config"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/sheets"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger",
	}

	sheetsCmd := &cobra.Command{
		Use:   "sheets",
		Short: "Write the ledger and its totals to Google Sheets",
		Long: `Write transactions, category totals and business totals to a Google
spreadsheet. Authenticate once with 'zenny export sheets auth' or configure
sheets.service_account_path.`,
		RunE: runExportSheets,
	}
	sheetsCmd.Flags().String("from", "", "first date (YYYY-MM-DD, default: start of the current year)")
	sheetsCmd.Flags().String("to", "", "last date (YYYY-MM-DD, default: today)")

	sheetsCmd.AddCommand(&cobra.Command{
		Use:   "auth",
		Short: "Authorize zenny to write to your spreadsheets",
		RunE:  runSheetsAuth,
	})

	cmd.AddCommand(sheetsCmd)
	return cmd
}

func runExportSheets(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	now := time.Now()
	start, err := parseDateFlag("from", mustString(cmd, "from"))
	if err != nil {
		return err
	}
	if start == nil {
		first := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.Local)
		start = &first
	}
	end, err := parseDateFlag("to", mustString(cmd, "to"))
	if err != nil {
		return err
	}
	if end == nil {
		end = &now
	}

	sheetsCfg, err := config.LoadSheetsConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("google sheets is not configured (run `zenny export sheets auth`): %w", err)
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.ledger().Report(ctx, a.userID(), ledger.Filter{Start: start, End: end})
	if err != nil {
		return err
	}

	writer, err := sheets.NewWriter(ctx, *sheetsCfg, a.logger)
	if err != nil {
		return err
	}
	if err := writer.Write(ctx, report); err != nil {
		return err
	}
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Exported %d transaction(s) to Google Sheets", len(report.Entries))))
	return nil
}

func runSheetsAuth(cmd *cobra.Command, _ []string) error {
	oauthCfg := config.LoadSheetsOAuth(viper.GetViper())
	url, err := sheets.AuthURL(oauthCfg, "zenny")
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatInfo("Open this URL and approve access:"))
	fmt.Println(url)
	openBrowser(url)

	code, err := cli.NewLineReader(os.Stdin).Ask(cmd.Context(), os.Stdout, "Paste the authorization code")
	if err != nil {
		return err
	}
	if _, err := sheets.Exchange(cmd.Context(), oauthCfg, code); err != nil {
		return err
	}
	fmt.Println(cli.FormatSuccess("Saved Google Sheets credentials to " + oauthCfg.TokenFile))
	return nil
}
