package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/catalog"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/config"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/extract"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/jobs/inmemory"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/pipeline"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/service"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/storage"
)

// app holds everything a command needs. Commands build one with loadApp and
// release it with Close.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	chain   *llm.Chain
	engine  *categorize.Engine
	fetcher *extract.Fetcher
	logger  *slog.Logger
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the configured database and runs migrations.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := migrateWithBackup(ctx, store, cfg.Database.Path); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// autoBackupsKept bounds the snapshots taken before schema upgrades.
const autoBackupsKept = 5

// migrateWithBackup snapshots an existing database before upgrading its
// schema. Fresh and up-to-date databases are migrated without a snapshot.
func migrateWithBackup(ctx context.Context, store *storage.SQLiteStorage, dbPath string) error {
	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > 0 && current < storage.ExpectedSchemaVersion {
		b, err := store.AutoBackup(ctx, "migrate", autoBackupsKept)
		switch {
		case errors.Is(err, storage.ErrBackupInMemory):
			// nothing on disk to snapshot
		case err != nil:
			return fmt.Errorf("failed to back up database before migration: %w", err)
		default:
			slog.Info("Backed up database before migration", "backup", b.ID, "path", storage.BackupDir(dbPath))
		}
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// createLLMChain builds the provider chain. Without providers it returns an
// empty chain whose calls fail with a provider error.
func createLLMChain(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*llm.Chain, error) {
	chain, err := llm.NewChainFromConfig(ctx, cfg.LLM.Providers, cfg.LLM.Timeout, logger)
	if errors.Is(err, llm.ErrNoProviders) {
		logger.Warn("No LLM providers configured; AI categorization and document extraction are disabled")
		return llm.NewChain(cfg.LLM.Timeout, service.RetryOptions{MaxAttempts: 1}, logger), nil
	}
	return chain, err
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store.SetLogger(logger)
	chain, err := createLLMChain(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := []categorize.Option{
		categorize.WithLogger(logger),
		categorize.WithHistoryOptions(cfg.History),
	}
	if chain.Len() > 0 {
		opts = append(opts, categorize.WithAI(chain))
	}

	return &app{
		cfg:     cfg,
		store:   store,
		chain:   chain,
		engine:  categorize.New(store, opts...),
		fetcher: extract.NewFetcher(extract.WithMaxFileSize(cfg.Import.MaxFileSize)),
		logger:  logger,
	}, nil
}

func (a *app) Close() {
	a.chain.Close()
	if err := a.fetcher.Close(); err != nil {
		a.logger.Warn("Failed to close fetcher", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close database", "error", err)
	}
}

// restrictFetcher replaces the fetcher with one limited to schemes, falling
// back to extract.RemoteSchemes.
func (a *app) restrictFetcher(schemes []string) {
	if len(schemes) == 0 {
		schemes = extract.RemoteSchemes
	}
	if err := a.fetcher.Close(); err != nil {
		a.logger.Warn("Failed to close fetcher", "error", err)
	}
	a.fetcher = extract.NewFetcher(
		extract.WithMaxFileSize(a.cfg.Import.MaxFileSize),
		extract.WithSchemes(schemes...),
	)
}

func (a *app) userID() string {
	return a.cfg.User.ID
}

func (a *app) extractor() *extract.Router {
	return extract.NewRouter(
		extract.NewOFXExtractor(a.logger),
		extract.NewPDFStatementExtractor(a.chain, a.logger),
		extract.NewReceiptExtractor(a.chain, a.logger),
	)
}

func (a *app) catalog() *catalog.Service {
	return catalog.NewService(a.store, a.logger)
}

func (a *app) ledger() *ledger.Service {
	return ledger.NewService(a.store, a.logger)
}

// processor returns a processor without a publisher, for read paths.
func (a *app) processor() *pipeline.Processor {
	return pipeline.NewProcessor(a.store, a.extractor(), a.fetcher, a.engine, pipeline.WithLogger(a.logger))
}

// localWorkers runs the item pipeline in this process. The returned
// processor publishes onto the pool; stop drains and stops it.
func (a *app) localWorkers(ctx context.Context) (*pipeline.Processor, *inmemory.Queue, error) {
	queue := inmemory.NewQueue(a.cfg.Queue.Buffer, a.cfg.Queue.Workers, inmemory.WithLogger(a.logger))
	proc := pipeline.NewProcessor(a.store, a.extractor(), a.fetcher, a.engine,
		pipeline.WithLogger(a.logger),
		pipeline.WithPublisher(queue),
	)
	if err := queue.Start(ctx, proc.ProcessBatchItem); err != nil {
		return nil, nil, fmt.Errorf("failed to start workers: %w", err)
	}
	return proc, queue, nil
}

func stopQueue(queue *inmemory.Queue, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := queue.Stop(ctx); err != nil {
		logger.Warn("Failed to stop workers", "error", err)
	}
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: use YYYY-MM-DD", name, value)
	}
	return &t, nil
}
