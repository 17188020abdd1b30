package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider identifiers.
const (
	ProviderFMP      = "fmp"
	ProviderIntrinio = "intrinio"
	ProviderPolygon  = "polygon"
	ProviderTiingo   = "tiingo"
	ProviderYFinance = "yfinance"
)

// Store drivers.
const (
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// IntervalDaily is the only supported bar interval.
const IntervalDaily = "1d"

// Error reports an unusable configuration or ticker list. It is fatal for a run.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("config %s: %v", e.Field, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// Config holds all application configuration.
type Config struct {
	Provider struct {
		Name      string        `yaml:"name"`
		APIKey    string        `yaml:"api_key"`
		BaseURL   string        `yaml:"base_url"`
		Proxy     string        `yaml:"proxy"`
		CachePath string        `yaml:"cache_path"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit struct {
			Requests int           `yaml:"requests"`
			Window   time.Duration `yaml:"window"`
		} `yaml:"rate_limit"`
	} `yaml:"provider"`
	Tickers struct {
		Path   string `yaml:"path"`
		Column string `yaml:"column"`
	} `yaml:"tickers"`
	Store struct {
		Driver           string `yaml:"driver"`
		SQLitePath       string `yaml:"sqlite_path"`
		PostgresDSN      string `yaml:"postgres_dsn"`
		FirestoreProject string `yaml:"firestore_project"`
		CredentialsPath  string `yaml:"credentials_path"`
	} `yaml:"store"`
	Sync struct {
		BackfillDate string        `yaml:"backfill_date"`
		Interval     string        `yaml:"interval"`
		PrintSeries  *bool         `yaml:"print_series"`
		MaxAttempts  int           `yaml:"max_attempts"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"sync"`
	Schedule struct {
		Cron      string `yaml:"cron"`
		StateFile string `yaml:"state_file"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
// Variables from a .env file in the working directory are added to the environment first;
// variables already set take precedence. A missing config file or .env is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Field: ".env", Err: err}
	}
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, &Error{Field: "file", Err: err}
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Field: "file", Err: fmt.Errorf("parse %s: %w", path, err)}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Provider.Name, "DATA_PROVIDER")
	set(&c.Provider.APIKey, "PROVIDER_API_KEY")
	set(&c.Provider.Proxy, "HTTPS_PROXY")
	set(&c.Tickers.Path, "TICKER_SYMBOLS_LIST")
	set(&c.Tickers.Column, "TICKER_COLUMN")
	set(&c.Store.Driver, "STORE_DRIVER")
	set(&c.Store.SQLitePath, "SQLITE_PATH")
	set(&c.Store.PostgresDSN, "POSTGRES_DSN")
	set(&c.Store.FirestoreProject, "FIRESTORE_PROJECT")
	set(&c.Store.CredentialsPath, "FIRESTORE_SERVICE_ACCOUNT")
	set(&c.Sync.BackfillDate, "BACKFILL_DATE")
	set(&c.Schedule.Cron, "CRON_SYNC")
	set(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	set(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("SYNC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.MaxAttempts = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderYFinance
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Provider.RateLimit.Requests == 0 {
		c.Provider.RateLimit.Requests = 2
	}
	if c.Provider.RateLimit.Window == 0 {
		c.Provider.RateLimit.Window = 5 * time.Second
	}
	if c.Tickers.Path == "" {
		c.Tickers.Path = "data/test.csv"
	}
	if c.Tickers.Column == "" {
		c.Tickers.Column = "Symbol"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreSQLite
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "data/stock_history.db"
	}
	if c.Sync.BackfillDate == "" {
		c.Sync.BackfillDate = "2024-02-01"
	}
	if c.Sync.Interval == "" {
		c.Sync.Interval = IntervalDaily
	}
	if c.Sync.PrintSeries == nil {
		on := true
		c.Sync.PrintSeries = &on
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 1
	}
	if c.Sync.RetryBackoff == 0 {
		c.Sync.RetryBackoff = 2 * time.Second
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 0 22 * * 1-5"
	}
	if c.Schedule.StateFile == "" {
		c.Schedule.StateFile = "data/last_run.json"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderYFinance:
	case ProviderFMP, ProviderPolygon, ProviderTiingo:
		if c.Provider.APIKey == "" {
			return invalid("provider.api_key", "required for provider %q", c.Provider.Name)
		}
	case ProviderIntrinio:
		return invalid("provider.name", "provider %q has no adapter", c.Provider.Name)
	default:
		return invalid("provider.name", "unknown provider %q", c.Provider.Name)
	}
	if c.Provider.RateLimit.Requests < 0 || c.Provider.RateLimit.Window < 0 {
		return invalid("provider.rate_limit", "must not be negative")
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return invalid("store.sqlite_path", "required for sqlite")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return invalid("store.postgres_dsn", "required for postgres")
		}
	case StoreFirestore:
		if c.Store.CredentialsPath == "" && c.Store.FirestoreProject == "" {
			return invalid("store.credentials_path", "credentials path or project required for firestore")
		}
	case StoreMemory:
	default:
		return invalid("store.driver", "unknown driver %q", c.Store.Driver)
	}

	if _, err := time.Parse("2006-01-02", c.Sync.BackfillDate); err != nil {
		return invalid("sync.backfill_date", "%v", err)
	}
	if c.Sync.Interval != IntervalDaily {
		return invalid("sync.interval", "only %q is supported, got %q", IntervalDaily, c.Sync.Interval)
	}
	if c.Sync.MaxAttempts < 1 {
		return invalid("sync.max_attempts", "must be at least 1")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return invalid("telegram.chat_id", "required when bot_token is set")
	}
	return nil
}

// PrintSeries reports whether derived series are echoed to the console before persistence.
func (c *Config) PrintSeries() bool {
	return c.Sync.PrintSeries == nil || *c.Sync.PrintSeries
}
