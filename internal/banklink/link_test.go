package banklink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	err   error
	calls []string
}

func (f *fakeExchanger) ExchangePublicToken(_ context.Context, publicToken string) (string, string, error) {
	f.calls = append(f.calls, publicToken)
	if f.err != nil {
		return "", "", f.err
	}
	return "access-" + publicToken, "item-1", nil
}

const exchangeBody = `{"public_token":"pub-1","metadata":{"institution":{"name":"First Bank"},"accounts":[{"name":"Checking"},{"name":"Savings"}]}}`

func postExchange(t *testing.T, s *LinkServer, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/exchange", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestLinkServer_Page(t *testing.T) {
	s := NewLinkServer("link-sandbox-123", &fakeExchanger{}, nil)

	resp, err := s.App().Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `"link-sandbox-123"`)
}

func TestLinkServer_Exchange(t *testing.T) {
	ex := &fakeExchanger{}
	s := NewLinkServer("tok", ex, nil)

	status, out := postExchange(t, s, exchangeBody)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["success"])

	select {
	case res := <-s.Results():
		assert.Equal(t, "access-pub-1", res.AccessToken)
		assert.Equal(t, "item-1", res.ItemID)
		assert.Equal(t, "First Bank", res.InstitutionName)
		assert.Equal(t, []string{"Checking", "Savings"}, res.Accounts)
	default:
		t.Fatal("no result delivered")
	}
	assert.Equal(t, []string{"pub-1"}, ex.calls)
}

func TestLinkServer_ExchangeErrors(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		s := NewLinkServer("tok", &fakeExchanger{}, nil)
		status, out := postExchange(t, s, `{"metadata":{}}`)
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, false, out["success"])
	})

	t.Run("provider failure", func(t *testing.T) {
		s := NewLinkServer("tok", &fakeExchanger{err: errors.New("plaid down")}, nil)
		status, out := postExchange(t, s, exchangeBody)
		assert.Equal(t, fiber.StatusBadGateway, status)
		assert.Equal(t, "failed to exchange token", out["error"])
	})

	t.Run("second connection", func(t *testing.T) {
		s := NewLinkServer("tok", &fakeExchanger{}, nil)
		status, _ := postExchange(t, s, exchangeBody)
		require.Equal(t, fiber.StatusOK, status)
		status, _ = postExchange(t, s, exchangeBody)
		assert.Equal(t, fiber.StatusConflict, status)
	})
}

func TestLinkServer_ServeStopsOnContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = NewLinkServer("tok", &fakeExchanger{}, nil).Serve(ctx, addr, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
