package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries everything the pipeline and the API server need. It is
// constructed once in main and passed explicitly to constructors; there is no
// package-level state.
type Config struct {
	Env  string `mapstructure:"ENV"`
	Port string `mapstructure:"PORT"`

	// Roster ingestion
	RosterFiles []string `mapstructure:"ROSTER_FILES"`
	AliasFile   string   `mapstructure:"ALIAS_FILE"`

	// Messaging-platform contact API
	ContactsBaseURL  string        `mapstructure:"CONTACTS_BASE_URL"`
	ContactsAPIToken string        `mapstructure:"CONTACTS_API_TOKEN"`
	ContactsPageSize int           `mapstructure:"CONTACTS_PAGE_SIZE"`
	FetchTimeout     time.Duration `mapstructure:"FETCH_TIMEOUT"`
	FetchMaxRetries  int           `mapstructure:"FETCH_MAX_RETRIES"`
	FetchBackoff     time.Duration `mapstructure:"FETCH_BACKOFF"`

	// Consolidated output
	MasterFile string `mapstructure:"MASTER_FILE"`

	// Optional Postgres store (required for serve/migrate)
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Object-storage mirror
	BlobEndpoint  string `mapstructure:"BLOB_ENDPOINT"`
	BlobAccessKey string `mapstructure:"BLOB_ACCESS_KEY"`
	BlobSecretKey string `mapstructure:"BLOB_SECRET_KEY"`
	BlobBucket    string `mapstructure:"BLOB_BUCKET"`
	BlobObjectKey string `mapstructure:"BLOB_OBJECT_KEY"`
	BlobUseSSL    bool   `mapstructure:"BLOB_USE_SSL"`

	// Read-only API
	APIToken       string  `mapstructure:"API_TOKEN"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("CONTACTS_PAGE_SIZE", 100)
	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("FETCH_MAX_RETRIES", 3)
	v.SetDefault("FETCH_BACKOFF", "2s")
	v.SetDefault("MASTER_FILE", "data/master.json")
	v.SetDefault("BLOB_OBJECT_KEY", "master.json")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"ENV", "PORT",
		"ROSTER_FILES", "ALIAS_FILE",
		"CONTACTS_BASE_URL", "CONTACTS_API_TOKEN", "CONTACTS_PAGE_SIZE",
		"FETCH_TIMEOUT", "FETCH_MAX_RETRIES", "FETCH_BACKOFF",
		"MASTER_FILE",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"BLOB_ENDPOINT", "BLOB_ACCESS_KEY", "BLOB_SECRET_KEY",
		"BLOB_BUCKET", "BLOB_OBJECT_KEY", "BLOB_USE_SSL",
		"API_TOKEN", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated env value arrives as a single element.
	if len(cfg.RosterFiles) == 1 && strings.Contains(cfg.RosterFiles[0], ",") {
		cfg.RosterFiles = splitTrim(cfg.RosterFiles[0])
	}
	if cfg.RosterFiles == nil {
		if raw := v.GetString("ROSTER_FILES"); raw != "" {
			cfg.RosterFiles = splitTrim(raw)
		}
	}

	return cfg, nil
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ValidateRun checks the settings the batch pipeline needs before any work
// starts. Failing here is cheaper than failing after the roster is parsed.
func (c *Config) ValidateRun() error {
	if len(c.RosterFiles) == 0 {
		return fmt.Errorf("ROSTER_FILES is required (comma-separated paths)")
	}
	if c.ContactsBaseURL == "" {
		return fmt.Errorf("CONTACTS_BASE_URL is required")
	}
	if c.ContactsAPIToken == "" {
		return fmt.Errorf("CONTACTS_API_TOKEN is required")
	}
	if c.MasterFile == "" {
		return fmt.Errorf("MASTER_FILE is required")
	}
	if c.FetchMaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES must be >= 0, got %d", c.FetchMaxRetries)
	}
	return nil
}

// ValidateServe checks the settings the read-only API needs.
func (c *Config) ValidateServe() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for serve")
	}
	if !c.IsDev() && c.APIToken == "" {
		return fmt.Errorf("API_TOKEN is required outside development")
	}
	return nil
}

// ValidateSync checks the object-storage settings.
func (c *Config) ValidateSync() error {
	if c.BlobEndpoint == "" {
		return fmt.Errorf("BLOB_ENDPOINT is required for sync")
	}
	if c.BlobBucket == "" {
		return fmt.Errorf("BLOB_BUCKET is required for sync")
	}
	if c.BlobAccessKey == "" || c.BlobSecretKey == "" {
		return fmt.Errorf("BLOB_ACCESS_KEY and BLOB_SECRET_KEY are required for sync")
	}
	return nil
}
