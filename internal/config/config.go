// Package config provides configuration utilities for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/categorize"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
)

// EnvPrefix is the prefix of every environment override, e.g. ZENNY_DATABASE_PATH.
const EnvPrefix = "ZENNY"

// Config is the typed application configuration.
type Config struct {
	Logging  LoggingConfig
	User     UserConfig
	Database DatabaseConfig
	Queue    QueueConfig
	API      APIConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Plaid    PlaidConfig
	Import   ImportConfig
	History  categorize.HistoryOptions
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// UserConfig names the local user the CLI acts as.
type UserConfig struct {
	ID    string
	Email string
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string
}

// QueueConfig sizes the in-process worker pool.
type QueueConfig struct {
	Workers int
	Buffer  int
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr string
	// FileSchemes are the URL schemes API clients may name files with.
	FileSchemes []string
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// LLMConfig lists providers in fallback order.
type LLMConfig struct {
	Providers []llm.Config
	Timeout   time.Duration
}

// PlaidConfig holds bank link credentials.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string
	AccessToken string
}

// ImportConfig holds defaults applied to new batches.
type ImportConfig struct {
	Currency    string
	MaxFileSize int64
}

// providerConfig is the on-disk shape of one llm.providers entry.
type providerConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	RateLimit   int           `mapstructure:"rate_limit"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("user.id", "local")
	v.SetDefault("database.path", "~/.local/share/zenny/zenny.db")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.buffer", 256)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.file_schemes", []string{"gs", "https"})
	v.SetDefault("auth.issuer", "zenny")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("plaid.environment", "sandbox")
	v.SetDefault("import.currency", "USD")
	v.SetDefault("import.max_file_size", 25<<20)

	history := categorize.DefaultHistoryOptions()
	v.SetDefault("history.lookback_days", history.LookbackDays)
	v.SetDefault("history.fuzzy", history.Fuzzy)
	v.SetDefault("history.max_distance", history.MaxDistance)
}

// Init wires v to the config file and the ZENNY_ environment. A missing
// config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(ExpandPath(cfgFile))
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".config", "zenny"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// Load builds a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		User: UserConfig{
			ID:    v.GetString("user.id"),
			Email: v.GetString("user.email"),
		},
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Queue: QueueConfig{
			Workers: v.GetInt("queue.workers"),
			Buffer:  v.GetInt("queue.buffer"),
		},
		API: APIConfig{
			Addr:        v.GetString("api.addr"),
			FileSchemes: v.GetStringSlice("api.file_schemes"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		LLM: LLMConfig{Timeout: v.GetDuration("llm.timeout")},
		Plaid: PlaidConfig{
			ClientID:    v.GetString("plaid.client_id"),
			Secret:      v.GetString("plaid.secret"),
			Environment: v.GetString("plaid.environment"),
			AccessToken: v.GetString("plaid.access_token"),
		},
		Import: ImportConfig{
			Currency:    strings.ToUpper(v.GetString("import.currency")),
			MaxFileSize: v.GetInt64("import.max_file_size"),
		},
		History: categorize.HistoryOptions{
			LookbackDays: v.GetInt("history.lookback_days"),
			Fuzzy:        v.GetBool("history.fuzzy"),
			MaxDistance:  v.GetInt("history.max_distance"),
		},
	}

	var providers []providerConfig
	if err := v.UnmarshalKey("llm.providers", &providers); err != nil {
		return nil, fmt.Errorf("%w: llm.providers: %v", common.ErrInvalidConfig, err)
	}
	for _, p := range providers {
		cfg.LLM.Providers = append(cfg.LLM.Providers, llm.Config{
			Provider:    p.Provider,
			APIKey:      os.ExpandEnv(p.APIKey),
			Model:       p.Model,
			BaseURL:     p.BaseURL,
			MaxRetries:  p.MaxRetries,
			RetryDelay:  p.RetryDelay,
			CacheTTL:    p.CacheTTL,
			RateLimit:   p.RateLimit,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log format %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	if strings.TrimSpace(c.User.ID) == "" {
		return fmt.Errorf("%w: user.id is required", common.ErrInvalidConfig)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("%w: queue.workers must be positive", common.ErrInvalidConfig)
	}
	if c.Queue.Buffer < 0 {
		return fmt.Errorf("%w: queue.buffer cannot be negative", common.ErrInvalidConfig)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", common.ErrInvalidConfig)
	}
	if c.History.LookbackDays <= 0 {
		return fmt.Errorf("%w: history.lookback_days must be positive", common.ErrInvalidConfig)
	}
	for i, p := range c.LLM.Providers {
		if p.Provider == "" {
			return fmt.Errorf("%w: llm.providers[%d].provider is required", common.ErrInvalidConfig, i)
		}
	}
	return nil
}

// RequireAuth reports an error when the API cannot verify tokens.
func (c *Config) RequireAuth() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("%w: auth.jwt_secret must be at least 32 bytes", common.ErrInvalidConfig)
	}
	return nil
}
