// Package api serves the import pipeline and catalog over HTTP.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/catalog"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/identity"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/pipeline"
)

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	Verify(token string) (*identity.Claims, error)
}

// Decider applies manual categorizations.
type Decider interface {
	ApplyDecision(ctx context.Context, userID string, d categorize.Decision) (*model.CategoryRule, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Processor *pipeline.Processor
	Catalog   *catalog.Service
	Ledger    *ledger.Service
	Decider   Decider
	Verifier  TokenVerifier
	// FileSchemes are the URL schemes accepted for uploaded files. Empty
	// means extract.RemoteSchemes.
	FileSchemes []string
}

// Server is the HTTP API.
type Server struct {
	app    *fiber.App
	deps   Deps
	logger *slog.Logger
}

// New builds the Fiber app and registers every route.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger.With("component", "api")}
	s.app = fiber.New(fiber.Config{
		AppName:               "zenny",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             4 << 20,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("api listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Use(s.requestLogger)
	s.app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api", s.authenticate)

	batches := api.Group("/batches")
	batches.Post("/", s.createBatch)
	batches.Get("/", s.listBatches)
	batches.Get("/:id", s.getBatch)
	batches.Get("/:id/items", s.listItems)
	batches.Get("/:id/activity", s.batchActivity)
	batches.Post("/:id/cancel", s.cancelBatch)
	batches.Post("/:id/retry-failed", s.retryFailed)

	api.Post("/items/:id/retry", s.retryItem)

	api.Get("/categories", s.listCategories)
	api.Post("/categories", s.createCategory)
	api.Delete("/categories/:id", s.deleteCategory)

	api.Get("/rules", s.listRules)
	api.Post("/rules", s.createRule)
	api.Delete("/rules/:id", s.deleteRule)

	api.Get("/businesses", s.listBusinesses)
	api.Post("/businesses", s.createBusiness)
	api.Delete("/businesses/:id", s.deleteBusiness)

	api.Get("/transactions", s.listTransactions)
	api.Post("/transactions/:id/categorize", s.categorizeTransaction)
}
