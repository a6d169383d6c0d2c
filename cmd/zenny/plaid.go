package main

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/banklink"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/certs"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/config"
)

func plaidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Sync transactions from a bank linked through Plaid",
		Long: `Link a bank account through Plaid and sync its transactions. Synced
transactions are categorized exactly like imported ones.

Set plaid.client_id, plaid.secret and plaid.environment in the config. After
linking, store the printed access token as plaid.access_token.`,
	}
	cmd.AddCommand(plaidLinkCmd(), plaidSyncCmd(), plaidLinkTokenCmd(), plaidExchangeCmd())
	return cmd
}

func newPlaidClient(cfg *config.Config, a *app) (*banklink.PlaidClient, error) {
	return banklink.NewPlaidClient(banklink.Config{
		ClientID:    cfg.Plaid.ClientID,
		Secret:      cfg.Plaid.Secret,
		Environment: cfg.Plaid.Environment,
		AccessToken: cfg.Plaid.AccessToken,
	}, a.logger)
}

func plaidSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch, categorize and store recent bank transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := newPlaidClient(a.cfg, a)
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			end := time.Now()
			start := end.AddDate(0, 0, -days)

			syncer := banklink.NewSyncer(client, a.engine, a.store, a.cfg.Import.Currency, a.logger)
			res, err := syncer.Sync(ctx, a.userID(), start, end)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("Fetched:       %d\n", res.Fetched) +
				fmt.Sprintf("Pending:       %d\n", res.Pending) +
				fmt.Sprintf("Saved:         %s\n", cli.SuccessStyle.Render(fmt.Sprint(res.Saved))) +
				fmt.Sprintf("Already known: %d\n", res.AlreadyKnown) +
				fmt.Sprintf("Categorized:   %d\n", res.Categorized) +
				fmt.Sprintf("To review:     %s", cli.WarningStyle.Render(fmt.Sprint(res.Uncategorized)))
			fmt.Println(cli.RenderBox(cli.LedgerIcon+" Bank sync", summary))
			if res.Uncategorized > 0 {
				fmt.Println(cli.FormatInfo("Run `zenny review` to categorize the rest"))
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "number of days to sync")
	return cmd
}

func plaidLinkTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link-token",
		Short: "Create a Plaid Link token to connect a bank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := newPlaidClient(a.cfg, a)
			if err != nil {
				return err
			}
			token, err := client.CreateLinkToken(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func plaidExchangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchange <public-token>",
		Short: "Exchange a Link public token for an access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := newPlaidClient(a.cfg, a)
			if err != nil {
				return err
			}
			accessToken, itemID, err := client.ExchangePublicToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Linked item %s", itemID)))
			fmt.Println(cli.FormatInfo("Add this to your config as plaid.access_token:"))
			fmt.Println(accessToken)
			return nil
		},
	}
}

func plaidLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Connect a bank account in the browser",
		Long: `Open Plaid Link in your browser and connect a bank account.

In production, Plaid requires HTTPS even on localhost, so the page is served
with a self-signed certificate and your browser will warn about it once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := newPlaidClient(a.cfg, a)
			if err != nil {
				return err
			}
			linkToken, err := client.CreateLinkToken(ctx, a.userID())
			if err != nil {
				return err
			}

			var tlsConfig *tls.Config
			scheme := "http"
			if a.cfg.Plaid.Environment == "production" {
				dir, err := certs.DefaultDir()
				if err != nil {
					return err
				}
				if tlsConfig, err = certs.NewStore(dir).TLSConfig(); err != nil {
					return err
				}
				scheme = "https"
				fmt.Println(cli.FormatWarning("Your browser will warn about the self-signed certificate; proceed to localhost."))
			}

			addr, _ := cmd.Flags().GetString("addr")
			url := fmt.Sprintf("%s://localhost%s", scheme, addr)
			fmt.Println(cli.FormatInfo("Opening " + url))
			openBrowser(url)

			result, err := banklink.NewLinkServer(linkToken, client, a.logger).Serve(ctx, addr, tlsConfig)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Connected %s (%d account(s))", result.InstitutionName, len(result.Accounts))))
			fmt.Println(cli.FormatInfo("Add this to your config as plaid.access_token:"))
			fmt.Println(result.AccessToken)
			return nil
		},
	}
	cmd.Flags().String("addr", ":8080", "local address for the link page")
	return cmd
}

func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start() //nolint:gosec
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start() //nolint:gosec
	case "darwin":
		err = exec.Command("open", url).Start() //nolint:gosec
	}
	if err != nil {
		slog.Debug("Failed to open browser", "error", err)
	}
}
