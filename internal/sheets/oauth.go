package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

// OutOfBandRedirect lets the user paste the authorization code back into
// the terminal instead of running a callback server.
const OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"

// OAuth2Config holds OAuth2 client credentials.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenFile is where an exchanged token is saved.
	TokenFile string
}

func (c OAuth2Config) oauth() (*oauth2.Config, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, fmt.Errorf("%w: sheets client id and secret are required", common.ErrMissingConfig)
	}
	redirect := c.RedirectURL
	if redirect == "" {
		redirect = OutOfBandRedirect
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirect,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}, nil
}

// AuthURL returns the consent page URL. Offline access is requested so the
// exchange yields a refresh token.
func AuthURL(config OAuth2Config, state string) (string, error) {
	oauthConfig, err := config.oauth()
	if err != nil {
		return "", err
	}
	return oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a token and saves it when a
// token file is configured.
func Exchange(ctx context.Context, config OAuth2Config, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, common.NewValidationError("code", "is required")
	}
	oauthConfig, err := config.oauth()
	if err != nil {
		return nil, err
	}
	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if config.TokenFile != "" {
		if err := SaveToken(config.TokenFile, token); err != nil {
			return token, err
		}
	}
	return token, nil
}

// LoadToken loads a token from file.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

// SaveToken writes token to path, readable only by the owner.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}
