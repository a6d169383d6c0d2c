package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/catalog"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/identity"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/jobs"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/model"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/pipeline"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/testutil"
)

const secret = "0123456789abcdef0123456789abcdef"

// recordingPublisher accepts jobs without running them.
type recordingPublisher struct {
	jobs []jobs.Payload
	mu   sync.Mutex
}

func (p *recordingPublisher) Publish(_ context.Context, job jobs.Payload) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return job.BatchItemID + "-event", nil
}

func (p *recordingPublisher) Close() error { return nil }

type harness struct {
	db        *testutil.TestDB
	server    *Server
	publisher *recordingPublisher
	processor *pipeline.Processor
	issuer    *identity.Issuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	issuer, err := identity.NewIssuer(secret, "zenny", time.Hour)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	engine := categorize.New(db.Storage)
	processor := pipeline.NewProcessor(db.Storage, nil, nil, engine, pipeline.WithPublisher(publisher))
	server := New(Deps{
		Processor: processor,
		Catalog:   catalog.NewService(db.Storage, nil),
		Ledger:    ledger.NewService(db.Storage, nil),
		Decider:   engine,
		Verifier:  issuer,
	}, nil)
	return &harness{db: db, server: server, publisher: publisher, processor: processor, issuer: issuer}
}

func (h *harness) do(t *testing.T, user, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if user != "" {
		token, err := h.issuer.Issue(user, user+"@example.com")
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := h.server.App().Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, "", http.MethodGet, "/api/health", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthentication(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, "", http.MethodGet, "/api/batches", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, err := h.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, "user-1", http.MethodGet, "/api/batches", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCreateBatch(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, "user-1", http.MethodPost, "/api/batches", map[string]any{
		"importType": "receipts",
		"currency":   "CAD",
		"dateFrom":   "2026-01-01",
		"files": []map[string]string{
			{"name": "a.jpg", "url": "https://uploads.example.com/u1/a.jpg"},
			{"url": "gs://bucket/b.pdf"},
		},
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode, body)
	assert.EqualValues(t, 2, body["enqueued"])

	b := body["batch"].(map[string]any)
	assert.Equal(t, "pending", b["status"])
	assert.EqualValues(t, 2, b["totalFiles"])
	assert.EqualValues(t, 0, b["progress"])

	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "b.pdf", items[1].(map[string]any)["fileName"])

	require.Len(t, h.publisher.jobs, 2)
	assert.Equal(t, "CAD", h.publisher.jobs[0].Currency)
	assert.Equal(t, "user-1", h.publisher.jobs[0].UserID)

	resp, body = h.do(t, "user-1", http.MethodGet, "/api/batches", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["batches"].([]any), 1)

	resp, body = h.do(t, "user-1", http.MethodGet, "/api/batches/"+b["id"].(string)+"/activity", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["activity"].([]any), 3, "batch created plus one upload per file")
}

func TestCreateBatch_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"bad import type", map[string]any{"importType": "photos", "files": []map[string]string{{"url": "gs://uploads/x.jpg"}}}, "importType"},
		{"no files", map[string]any{"importType": "receipts"}, "files"},
		{"bad date", map[string]any{"importType": "receipts", "dateTo": "01/02/2026", "files": []map[string]string{{"url": "gs://uploads/x.jpg"}}}, "dateTo"},
		{"inverted range", map[string]any{"importType": "mixed", "dateFrom": "2026-02-01", "dateTo": "2026-01-01", "files": []map[string]string{{"url": "gs://uploads/x.jpg"}}}, "dateTo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, "user-1", http.MethodPost, "/api/batches", tt.body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.field, body["field"])
		})
	}
	assert.Empty(t, h.publisher.jobs)
}

func TestCreateBatch_RejectsServerLocalFiles(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		files []map[string]string
		field string
	}{
		{"file url", []map[string]string{{"url": "file:///etc/passwd"}}, "files[0].url"},
		{"bare path", []map[string]string{{"url": "gs://uploads/ok.jpg"}, {"url": "/root/.config/zenny/config.yaml"}}, "files[1].url"},
		{"plain http", []map[string]string{{"url": "http://169.254.169.254/latest/meta-data"}}, "files[0].url"},
		{"unknown scheme", []map[string]string{{"url": "ftp://example.com/a.pdf"}}, "files[0].url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(t, "user-1", http.MethodPost, "/api/batches", map[string]any{
				"importType": "receipts",
				"files":      tt.files,
			})
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.field, body["field"])
		})
	}

	assert.Empty(t, h.publisher.jobs)
	batches, err := h.db.Storage.ListBatches(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, batches, "nothing is created for a rejected upload")
}

func TestBatchOwnership(t *testing.T) {
	h := newHarness(t)
	b, items := h.db.MustBatch("user-1", model.ImportTypeReceipts, "a.jpg")

	for _, path := range []string{
		"/api/batches/" + b.ID,
		"/api/batches/" + b.ID + "/items",
		"/api/batches/" + b.ID + "/activity",
	} {
		resp, _ := h.do(t, "user-2", http.MethodGet, path, nil)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, path)
	}

	resp, _ := h.do(t, "user-2", http.MethodPost, "/api/batches/"+b.ID+"/cancel", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp, _ = h.do(t, "user-2", http.MethodPost, "/api/items/"+items[0].ID+"/retry", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(t, "user-1", http.MethodGet, "/api/batches/missing", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "unknown ids look the same as foreign ones")
}

func TestCancelAndRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b, items := h.db.MustBatch("user-1", model.ImportTypeReceipts, "a.jpg", "b.jpg")
	tracker := h.processor.Tracker()

	_, err := tracker.Start(ctx, items[0].ID)
	require.NoError(t, err)
	_, err = tracker.Fail(ctx, items[0].ID, "", common.NewProcessingError(model.ErrorCodeProcessing, "unreadable"))
	require.NoError(t, err)
	_, err = tracker.Start(ctx, items[1].ID)
	require.NoError(t, err)
	_, err = tracker.Complete(ctx, items[1].ID, "")
	require.NoError(t, err)

	resp, body := h.do(t, "user-1", http.MethodPost, "/api/items/"+items[1].ID+"/retry", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "completed items do not retry")
	assert.Equal(t, "item", body["field"])

	resp, body = h.do(t, "user-1", http.MethodPost, "/api/batches/"+b.ID+"/retry-failed", nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.EqualValues(t, 1, body["retried"])
	require.Len(t, h.publisher.jobs, 1)
	assert.Equal(t, items[0].ID, h.publisher.jobs[0].BatchItemID)

	resp, body = h.do(t, "user-1", http.MethodPost, "/api/batches/"+b.ID+"/cancel", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])

	resp, _ = h.do(t, "user-1", http.MethodPost, "/api/batches/"+b.ID+"/cancel", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, "user-1", http.MethodGet, "/api/batches/"+b.ID+"/items", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	first := body["items"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 1, first["retryCount"])
}

func TestCatalogRoutes(t *testing.T) {
	h := newHarness(t)

	resp, cat := h.do(t, "user-1", http.MethodPost, "/api/categories", map[string]any{
		"name": "Coffee", "transactionType": "expense",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, cat)
	resp, again := h.do(t, "user-1", http.MethodPost, "/api/categories", map[string]any{
		"name": "coffee", "transactionType": "expense",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, cat["id"], again["id"])

	resp, rule := h.do(t, "user-1", http.MethodPost, "/api/rules", map[string]any{
		"categoryId": cat["id"], "pattern": "Blue Bottle",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, rule)
	assert.Equal(t, "contains", rule["matchType"])

	resp, body := h.do(t, "user-1", http.MethodPost, "/api/rules", map[string]any{
		"categoryId": cat["id"], "pattern": "blue bottle",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "identical rule")

	resp, _ = h.do(t, "user-2", http.MethodPost, "/api/rules", map[string]any{
		"categoryId": cat["id"], "pattern": "tea",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(t, "user-2", http.MethodDelete, "/api/rules/"+rule["id"].(string), nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp, _ = h.do(t, "user-1", http.MethodDelete, "/api/rules/"+rule["id"].(string), nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, biz := h.do(t, "user-1", http.MethodPost, "/api/businesses", map[string]any{"name": "Side Gig", "type": "contract"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "contract", biz["type"])

	resp, body = h.do(t, "user-1", http.MethodGet, "/api/businesses", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["businesses"].([]any), 1)

	resp, _ = h.do(t, "user-1", http.MethodDelete, "/api/categories/"+cat["id"].(string), nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestTransactions_CategorizeAndList(t *testing.T) {
	h := newHarness(t)
	coffee := h.db.MustCategory("user-1", "Coffee", model.TransactionTypeExpense)
	biz := h.db.MustBusiness("user-1", "Side Gig")
	txn := h.db.MustTransaction("user-1", "Blue Bottle", "4.50", "", 2)

	resp, body := h.do(t, "user-1", http.MethodPost, "/api/transactions/"+txn.ID+"/categorize", map[string]any{
		"categoryId": coffee.ID, "businessId": biz.ID, "applyToFuture": true,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	rule := body["rule"].(map[string]any)
	assert.Equal(t, "exact", rule["matchType"])
	assert.Equal(t, "Blue Bottle", rule["pattern"])

	resp, _ = h.do(t, "user-2", http.MethodPost, "/api/transactions/"+txn.ID+"/categorize", map[string]any{
		"categoryId": coffee.ID,
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	require.NoError(t, h.db.Storage.DeleteBusiness(context.Background(), "user-1", biz.ID))

	resp, body = h.do(t, "user-1", http.MethodGet, "/api/transactions", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	rows := body["transactions"].([]any)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "Coffee", row["categoryName"])
	assert.Equal(t, model.PersonalLabel, row["businessName"], "deleted businesses read as Personal")
	assert.Equal(t, "4.50", body["totals"].(map[string]any)["expenses"])

	resp, _ = h.do(t, "user-1", http.MethodGet, "/api/transactions?start=yesterday", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
