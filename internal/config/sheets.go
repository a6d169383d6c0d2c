package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/sheets"
)

// LoadSheetsConfig reads the sheets.* keys from v. Values missing there fall
// back to the GOOGLE_SHEETS_* environment variables shared with other
// Google tooling.
func LoadSheetsConfig(v *viper.Viper) (*sheets.Config, error) {
	config := sheets.DefaultConfig()

	config.ServiceAccountPath = ExpandPath(firstSet(v.GetString("sheets.service_account_path"), os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH")))
	config.ClientID = firstSet(v.GetString("sheets.client_id"), os.Getenv("GOOGLE_SHEETS_CLIENT_ID"))
	config.ClientSecret = firstSet(v.GetString("sheets.client_secret"), os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET"))
	config.RefreshToken = firstSet(v.GetString("sheets.refresh_token"), os.Getenv("GOOGLE_SHEETS_REFRESH_TOKEN"))
	config.SpreadsheetID = firstSet(v.GetString("sheets.spreadsheet_id"), os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
	config.SpreadsheetName = firstSet(v.GetString("sheets.spreadsheet_name"), os.Getenv("GOOGLE_SHEETS_SPREADSHEET_NAME"), config.SpreadsheetName)
	config.TimeZone = firstSet(v.GetString("sheets.time_zone"), config.TimeZone)
	config.CurrencyPattern = firstSet(v.GetString("sheets.currency_pattern"), config.CurrencyPattern)

	// A refresh token saved by "export sheets auth" stands in for a
	// configured one.
	if config.RefreshToken == "" && config.ServiceAccountPath == "" {
		if token, err := sheets.LoadToken(SheetsTokenFile(v)); err == nil {
			config.RefreshToken = token.RefreshToken
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadSheetsOAuth returns the client credentials used by the consent flow.
func LoadSheetsOAuth(v *viper.Viper) sheets.OAuth2Config {
	return sheets.OAuth2Config{
		ClientID:     firstSet(v.GetString("sheets.client_id"), os.Getenv("GOOGLE_SHEETS_CLIENT_ID")),
		ClientSecret: firstSet(v.GetString("sheets.client_secret"), os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")),
		RedirectURL:  v.GetString("sheets.redirect_url"),
		TokenFile:    SheetsTokenFile(v),
	}
}

// SheetsTokenFile is where an exchanged OAuth token is kept.
func SheetsTokenFile(v *viper.Viper) string {
	if path := v.GetString("sheets.token_file"); path != "" {
		return ExpandPath(path)
	}
	return filepath.Join(ExpandPath("~/.config/zenny"), "sheets-token.json")
}

func firstSet(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}
