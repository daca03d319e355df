// Package config loads filesense settings with priority:
// defaults -> TOML file -> .env -> FILESENSE_* environment -> CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// DefaultFile is read from the working directory when no path is given
const DefaultFile = "filesense.toml"

// envSearchDepth bounds the walk up the directory tree looking for .env
const envSearchDepth = 5

// Config represents the application configuration
type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Indexer     IndexerConfig     `toml:"indexer"`
	Enricher    EnricherConfig    `toml:"enricher"`
	Embedder    EmbedderConfig    `toml:"embedder"`
	Rerank      RerankConfig      `toml:"rerank"`
	Quota       QuotaConfig       `toml:"quota"`
	Search      SearchConfig      `toml:"search"`
	Server      ServerConfig      `toml:"server"`
	Logging     LoggingConfig     `toml:"logging"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
}

type StorageConfig struct {
	Path string `toml:"path" validate:"required"` // SQLite file, ":memory:" for a throwaway catalog
}

type IndexerConfig struct {
	Workers             int    `toml:"workers" validate:"gte=1,lte=50"`
	TaskTimeout         string `toml:"task_timeout" validate:"required,duration"` // Per-file enrichment timeout, e.g. "2m"
	MaxImageMB          int    `toml:"max_image_mb" validate:"gte=1"`
	MaxSnippetChars     int    `toml:"max_snippet_chars" validate:"gte=100"`
	MaxFiles            int    `toml:"max_files" validate:"gte=0"` // 0 = no limit
	IncludeHidden       bool   `toml:"include_hidden"`
	RequireSubscription bool   `toml:"require_subscription"`
}

type EnricherConfig struct {
	Provider      string `toml:"provider" validate:"oneof=claude gemini local none"`
	APIKey        string `toml:"api_key"`
	Model         string `toml:"model"`
	BaseURL       string `toml:"base_url" validate:"omitempty,url"`
	MaxTokens     int    `toml:"max_tokens" validate:"gte=0"`
	RatePerMinute int    `toml:"rate_per_minute" validate:"gte=0"` // 0 = unlimited
	RateBurst     int    `toml:"rate_burst" validate:"gte=0"`
}

type EmbedderConfig struct {
	Provider  string `toml:"provider" validate:"oneof=openai jina gemini local none"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	Endpoint  string `toml:"endpoint" validate:"omitempty,url"`
	CacheSize int    `toml:"cache_size" validate:"gte=0"`
}

type RerankConfig struct {
	Provider string `toml:"provider" validate:"oneof=claude lexical none"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url" validate:"omitempty,url"`
}

type QuotaConfig struct {
	Authority string `toml:"authority" validate:"oneof=unlimited static http"`
	Limit     int    `toml:"limit" validate:"gte=0"` // static only; 0 = unlimited
	URL       string `toml:"url" validate:"omitempty,url"`
	Token     string `toml:"token"`
}

type SearchConfig struct {
	KeywordWeight   float64 `toml:"keyword_weight" validate:"gt=0"`
	CacheSize       int     `toml:"cache_size" validate:"gte=1"`
	CacheTTL        string  `toml:"cache_ttl" validate:"required,duration"`
	DefaultLimit    int     `toml:"default_limit" validate:"gte=1,ltefield=MaxLimit"`
	MaxLimit        int     `toml:"max_limit" validate:"gte=1,lte=1000"`
	FuzzyCorrection bool    `toml:"fuzzy_correction"`
	SpellCorrection bool    `toml:"spell_correction"`
}

type ServerConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
}

type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

type MaintenanceConfig struct {
	Enabled         bool   `toml:"enabled"`
	CleanupSchedule string `toml:"cleanup_schedule" validate:"required_if=Enabled true,cron"` // cron spec, e.g. "@every 6h"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: defaultDBPath(),
		},
		Indexer: IndexerConfig{
			Workers:         8,
			TaskTimeout:     "2m",
			MaxImageMB:      20,
			MaxSnippetChars: 8000,
		},
		Enricher: EnricherConfig{
			Provider:  "local",
			MaxTokens: 1024,
		},
		Embedder: EmbedderConfig{
			Provider:  "local",
			CacheSize: 10000,
		},
		Rerank: RerankConfig{
			Provider: "none",
		},
		Quota: QuotaConfig{
			Authority: "unlimited",
		},
		Search: SearchConfig{
			KeywordWeight: 10,
			CacheSize:     1000,
			CacheTTL:      "5m",
			DefaultLimit:  20,
			MaxLimit:      100,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Maintenance: MaintenanceConfig{
			Enabled:         true,
			CleanupSchedule: "@every 6h",
		},
	}
}

// defaultDBPath places the catalog in the user config dir, or the working
// directory when that is unknown
func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "filesense.db"
	}
	return filepath.Join(dir, "filesense", "filesense.db")
}

// Load builds the configuration. An empty path reads DefaultFile when it
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	loadDotEnv()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile unmarshals a TOML file over the current values
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadDotEnv loads .env from the working directory or the nearest parent.
// Variables already set in the environment win.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < envSearchDepth; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		spec := fl.Field().String()
		if spec == "" {
			return true
		}
		_, err := cron.ParseStandard(spec)
		return err == nil
	})
	return v
}

// Validate checks every section. Call it again after applying CLI flags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Quota.Authority == "http" && c.Quota.URL == "" && c.Indexer.RequireSubscription {
		return fmt.Errorf("invalid config: quota.url is required for the http authority when a subscription is required")
	}
	return nil
}

// Timeout returns the parsed per-file enrichment timeout
func (c IndexerConfig) Timeout() time.Duration {
	d, _ := time.ParseDuration(c.TaskTimeout)
	return d
}

// MaxImageBytes returns the image size limit in bytes
func (c IndexerConfig) MaxImageBytes() int64 {
	return int64(c.MaxImageMB) << 20
}

// TTL returns the parsed query cache lifetime
func (c SearchConfig) TTL() time.Duration {
	d, _ := time.ParseDuration(c.CacheTTL)
	return d
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
