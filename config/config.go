// Package config loads the trader configuration from YAML or JSON,
// with environment overrides for the credentials the venue needs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kbd172102/trading-dashboard/strategy"
)

// Config is the complete trader configuration.
type Config struct {
	Account  AccountConfig   `json:"account" yaml:"account"`
	Strategy strategy.Params `json:"strategy" yaml:"strategy"`
	Journal  JournalConfig   `json:"journal" yaml:"journal"`
	Venue    VenueConfig     `json:"venue" yaml:"venue"`
	Live     LiveConfig      `json:"live" yaml:"live"`
}

// AccountConfig identifies the trading account and its starting cash.
type AccountConfig struct {
	ID           string  `json:"id" yaml:"id"`
	StartingCash float64 `json:"starting_cash" yaml:"starting_cash"`
}

// JournalConfig selects the event store.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// VenueConfig holds the broker API settings. Secrets (password, TOTP
// secret, API key) come from the environment, never the file.
type VenueConfig struct {
	BaseURL       string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	FeedURL       string `json:"feed_url,omitempty" yaml:"feed_url,omitempty"`
	Exchange      string `json:"exchange" yaml:"exchange"`
	TradingSymbol string `json:"trading_symbol" yaml:"trading_symbol"`
	SymbolToken   string `json:"symbol_token" yaml:"symbol_token"`

	APIKey     string `json:"-" yaml:"-"`
	ClientCode string `json:"-" yaml:"-"`
	Password   string `json:"-" yaml:"-"`
	TOTPSecret string `json:"-" yaml:"-"`
}

// LiveConfig tunes the live pipeline.
type LiveConfig struct {
	Timezone      string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	CandleLockTTL string `json:"candle_lock_ttl,omitempty" yaml:"candle_lock_ttl,omitempty"`
	OrderLockTTL  string `json:"order_lock_ttl,omitempty" yaml:"order_lock_ttl,omitempty"`
	ReconcileSpec string `json:"reconcile_spec,omitempty" yaml:"reconcile_spec,omitempty"`
}

// Location resolves the configured timezone, defaulting to UTC.
func (l LiveConfig) Location() (*time.Location, error) {
	if l.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(l.Timezone)
}

func (l LiveConfig) lockTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// CandleTTL parses the candle-lock TTL; zero means the default.
func (l LiveConfig) CandleTTL() (time.Duration, error) { return l.lockTTL(l.CandleLockTTL) }

// OrderTTL parses the order-lock TTL; zero means the default.
func (l LiveConfig) OrderTTL() (time.Duration, error) { return l.lockTTL(l.OrderLockTTL) }

// LoadFromFile reads a YAML or JSON config, applies environment
// overrides, and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv pulls credentials and overrides from the environment.
// godotenv loads .env into the environment before this runs.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Venue.APIKey, "TRADER_API_KEY")
	set(&c.Venue.ClientCode, "TRADER_CLIENT_CODE")
	set(&c.Venue.Password, "TRADER_PASSWORD")
	set(&c.Venue.TOTPSecret, "TRADER_TOTP_SECRET")
	set(&c.Venue.BaseURL, "TRADER_BASE_URL")
	set(&c.Venue.FeedURL, "TRADER_FEED_URL")
	set(&c.Account.ID, "TRADER_ACCOUNT_ID")
}

// Validate checks the configuration for a runnable state. Venue
// credentials are only checked by the live command, not here, so
// backtests run without any broker setup.
func (c *Config) Validate() error {
	if c.Account.StartingCash <= 0 {
		return fmt.Errorf("account.starting_cash must be positive")
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	switch c.Journal.Type {
	case "", "csv":
		// trades_file optional: empty means stdout-only events
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite journal")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Live.ReconcileSpec != "" && !strings.HasPrefix(c.Live.ReconcileSpec, "@") &&
		len(strings.Fields(c.Live.ReconcileSpec)) != 5 {
		return fmt.Errorf("live.reconcile_spec must be a cron expression or @every duration")
	}
	if _, err := c.Live.Location(); err != nil {
		return fmt.Errorf("live.timezone: %w", err)
	}
	if _, err := c.Live.CandleTTL(); err != nil {
		return fmt.Errorf("live.candle_lock_ttl: %w", err)
	}
	if _, err := c.Live.OrderTTL(); err != nil {
		return fmt.Errorf("live.order_lock_ttl: %w", err)
	}
	return nil
}

// RequireVenue verifies the fields the live path needs.
func (c *Config) RequireVenue() error {
	switch {
	case c.Venue.APIKey == "":
		return fmt.Errorf("venue api key not set (TRADER_API_KEY)")
	case c.Venue.ClientCode == "":
		return fmt.Errorf("venue client code not set (TRADER_CLIENT_CODE)")
	case c.Venue.Password == "":
		return fmt.Errorf("venue password not set (TRADER_PASSWORD)")
	case c.Venue.SymbolToken == "":
		return fmt.Errorf("venue.symbol_token is required")
	case c.Venue.TradingSymbol == "":
		return fmt.Errorf("venue.trading_symbol is required")
	}
	return nil
}

// SaveToFile writes the config, format chosen by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Default returns a runnable configuration for the default instrument.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:           "sim-account",
			StartingCash: 100000,
		},
		Strategy: strategy.Defaults(),
		Journal: JournalConfig{
			Type: "csv",
		},
		Live: LiveConfig{
			ReconcileSpec: "@every 1m",
		},
	}
}
