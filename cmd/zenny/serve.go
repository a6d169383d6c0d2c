package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/api"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/identity"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the import workers",
		Long: `Start the HTTP API together with an in-process worker pool. Every uploaded
file becomes one job; workers fetch, extract, de-duplicate and categorize it.

The server shuts down gracefully on SIGINT or SIGTERM: in-flight requests and
jobs finish, queued jobs stay pending and can be retried.`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default: api.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireAuth(); err != nil {
		return err
	}
	issuer, err := identity.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	// Clients name files by URL; never let them point workers at this host's disk.
	a.restrictFetcher(a.cfg.API.FileSchemes)

	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	proc, queue, err := a.localWorkers(workerCtx)
	if err != nil {
		return err
	}

	server := api.New(api.Deps{
		Processor:   proc,
		Catalog:     a.catalog(),
		Ledger:      a.ledger(),
		Decider:     a.engine,
		Verifier:    issuer,
		FileSchemes: a.cfg.API.FileSchemes,
	}, a.logger)

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.API.Addr
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Listen(addr)
	}()

	select {
	case err := <-errChan:
		stopQueue(queue, a.logger)
		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("API shutdown failed", "error", err)
	}
	stopQueue(queue, a.logger)
	return nil
}
