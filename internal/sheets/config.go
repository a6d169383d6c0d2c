// Package sheets exports the ledger to Google Sheets.
package sheets

import (
	"fmt"
	"time"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

// DefaultSpreadsheetName is used when neither an id nor a name is configured.
const DefaultSpreadsheetName = "Zenny Ledger"

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	CurrencyPattern    string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:  DefaultSpreadsheetName,
		EnableFormatting: true,
		TimeZone:         "America/New_York",
		CurrencyPattern:  "$#,##0.00",
		BatchSize:        1000,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// HasOAuth reports whether OAuth2 refresh credentials are set.
func (c *Config) HasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// Validate requires exactly one authentication method and sane limits.
func (c *Config) Validate() error {
	hasServiceAccount := c.ServiceAccountPath != ""

	if !c.HasOAuth() && !hasServiceAccount {
		return fmt.Errorf("%w: no authentication method configured", common.ErrMissingConfig)
	}
	if c.HasOAuth() && hasServiceAccount {
		return fmt.Errorf("%w: multiple authentication methods configured; use either OAuth2 or service account", common.ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", common.ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", common.ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay cannot be negative", common.ErrInvalidConfig)
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("%w: unknown time zone %q", common.ErrInvalidConfig, c.TimeZone)
		}
	}
	if c.EnableFormatting && c.CurrencyPattern == "" {
		return fmt.Errorf("%w: currency pattern is required when formatting is enabled", common.ErrInvalidConfig)
	}
	return nil
}
