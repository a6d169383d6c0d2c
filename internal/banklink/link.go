package banklink

import (
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Exchanger trades a Plaid Link public token for an access token.
type Exchanger interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
}

// LinkResult is a completed bank connection.
type LinkResult struct {
	AccessToken     string
	ItemID          string
	InstitutionName string
	Accounts        []string
}

type exchangeRequest struct {
	PublicToken string `json:"public_token"`
	Metadata    struct {
		Institution struct {
			Name string `json:"name"`
		} `json:"institution"`
		Accounts []struct {
			Name string `json:"name"`
		} `json:"accounts"`
	} `json:"metadata"`
}

var linkPage = template.Must(template.New("link").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Connect your bank - zenny</title>
  <script src="https://cdn.plaid.com/link/v2/stable/link-initialize.js"></script>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
           display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; background: #f5f5f5; }
    .card { text-align: center; background: white; padding: 40px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
    button { background: #7c3aed; color: white; padding: 12px 24px; font-size: 16px; border: none; border-radius: 4px; cursor: pointer; }
    .error { color: #d32f2f; margin-top: 20px; }
    .success { color: #388e3c; margin-top: 20px; }
  </style>
</head>
<body>
  <div class="card">
    <h1>📒 Connect your bank</h1>
    <p>Your credentials go to Plaid, never to zenny.</p>
    <button id="link-button">Connect</button>
    <div id="message"></div>
  </div>
  <script>
  const show = (cls, text) => { document.getElementById('message').innerHTML = '<div class="' + cls + '">' + text + '</div>'; };
  const handler = Plaid.create({
    token: {{.}},
    onSuccess: (public_token, metadata) => {
      show('success', 'Finishing connection...');
      fetch('/exchange', {
        method: 'POST',
        headers: { 'Content-Type': 'application/json' },
        body: JSON.stringify({ public_token, metadata })
      })
      .then(r => r.json())
      .then(d => d.success ? show('success', 'Connected. You can close this tab.') : show('error', d.error || 'Connection failed'))
      .catch(e => show('error', 'Network error: ' + e));
    },
    onExit: (err) => { if (err != null) show('error', 'Connection canceled or failed.'); }
  });
  document.getElementById('link-button').onclick = () => handler.open();
  </script>
</body>
</html>`))

// LinkServer serves the Plaid Link page on localhost and waits for the
// browser to hand back a public token.
type LinkServer struct {
	app       *fiber.App
	exchanger Exchanger
	logger    *slog.Logger
	results   chan LinkResult
	linkToken string
}

// NewLinkServer creates a LinkServer for linkToken.
func NewLinkServer(linkToken string, exchanger Exchanger, logger *slog.Logger) *LinkServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LinkServer{
		exchanger: exchanger,
		linkToken: linkToken,
		results:   make(chan LinkResult, 1),
		logger:    logger.With("component", "bank_link"),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "zenny-link",
		DisableStartupMessage: true,
	})
	s.app.Get("/", s.page)
	s.app.Post("/exchange", s.exchange)
	return s
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *LinkServer) App() *fiber.App {
	return s.app
}

// Results delivers the first completed connection.
func (s *LinkServer) Results() <-chan LinkResult {
	return s.results
}

// Serve listens on addr, over TLS when tlsConfig is set, until a bank is
// connected or ctx ends.
func (s *LinkServer) Serve(ctx context.Context, addr string, tlsConfig *tls.Config) (LinkResult, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return LinkResult{}, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.app.Listener(ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Warn("link server shutdown failed", "error", err)
		}
	}()

	select {
	case res := <-s.results:
		return res, nil
	case err := <-serveErr:
		return LinkResult{}, fmt.Errorf("link server stopped: %w", err)
	case <-ctx.Done():
		return LinkResult{}, ctx.Err()
	}
}

func (s *LinkServer) page(c *fiber.Ctx) error {
	var sb strings.Builder
	if err := linkPage.Execute(&sb, s.linkToken); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.SendString(sb.String())
}

func (s *LinkServer) exchange(c *fiber.Ctx) error {
	var req exchangeRequest
	if err := c.BodyParser(&req); err != nil || req.PublicToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid request"})
	}

	accessToken, itemID, err := s.exchanger.ExchangePublicToken(c.UserContext(), req.PublicToken)
	if err != nil {
		s.logger.Error("token exchange failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "failed to exchange token"})
	}

	res := LinkResult{
		AccessToken:     accessToken,
		ItemID:          itemID,
		InstitutionName: req.Metadata.Institution.Name,
	}
	for _, a := range req.Metadata.Accounts {
		res.Accounts = append(res.Accounts, a.Name)
	}
	select {
	case s.results <- res:
	default:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "error": "a bank was already connected"})
	}
	return c.JSON(fiber.Map{"success": true})
}
