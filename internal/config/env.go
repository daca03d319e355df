package config

import (
	"os"
	"strings"

	"github.com/spf13/cast"
)

const envPrefix = "FILESENSE_"

// applyEnvOverrides applies FILESENSE_* variables, then fills empty API keys
// from the providers' conventional variables
func applyEnvOverrides(c *Config) {
	envString("STORAGE_PATH", &c.Storage.Path)

	envInt("INDEXER_WORKERS", &c.Indexer.Workers)
	envString("INDEXER_TASK_TIMEOUT", &c.Indexer.TaskTimeout)
	envInt("INDEXER_MAX_IMAGE_MB", &c.Indexer.MaxImageMB)
	envInt("INDEXER_MAX_FILES", &c.Indexer.MaxFiles)
	envBool("INDEXER_INCLUDE_HIDDEN", &c.Indexer.IncludeHidden)
	envBool("INDEXER_REQUIRE_SUBSCRIPTION", &c.Indexer.RequireSubscription)

	envString("ENRICHER_PROVIDER", &c.Enricher.Provider)
	envString("ENRICHER_API_KEY", &c.Enricher.APIKey)
	envString("ENRICHER_MODEL", &c.Enricher.Model)
	envString("ENRICHER_BASE_URL", &c.Enricher.BaseURL)
	envInt("ENRICHER_RATE_PER_MINUTE", &c.Enricher.RatePerMinute)

	envString("EMBEDDER_PROVIDER", &c.Embedder.Provider)
	envString("EMBEDDER_API_KEY", &c.Embedder.APIKey)
	envString("EMBEDDER_MODEL", &c.Embedder.Model)
	envString("EMBEDDER_ENDPOINT", &c.Embedder.Endpoint)

	envString("RERANK_PROVIDER", &c.Rerank.Provider)
	envString("RERANK_API_KEY", &c.Rerank.APIKey)
	envString("RERANK_MODEL", &c.Rerank.Model)

	envString("QUOTA_AUTHORITY", &c.Quota.Authority)
	envInt("QUOTA_LIMIT", &c.Quota.Limit)
	envString("QUOTA_URL", &c.Quota.URL)
	envString("QUOTA_TOKEN", &c.Quota.Token)

	envFloat("SEARCH_KEYWORD_WEIGHT", &c.Search.KeywordWeight)
	envString("SEARCH_CACHE_TTL", &c.Search.CacheTTL)
	envBool("SEARCH_FUZZY_CORRECTION", &c.Search.FuzzyCorrection)
	envBool("SEARCH_SPELL_CORRECTION", &c.Search.SpellCorrection)

	envString("SERVER_HOST", &c.Server.Host)
	envInt("SERVER_PORT", &c.Server.Port)

	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FORMAT", &c.Logging.Format)

	envBool("MAINTENANCE_ENABLED", &c.Maintenance.Enabled)
	envString("MAINTENANCE_CLEANUP_SCHEDULE", &c.Maintenance.CleanupSchedule)

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Enricher.Provider = strings.ToLower(c.Enricher.Provider)
	c.Embedder.Provider = strings.ToLower(c.Embedder.Provider)
	c.Rerank.Provider = strings.ToLower(c.Rerank.Provider)

	fillKey(&c.Enricher.APIKey, providerKeyVar(c.Enricher.Provider))
	fillKey(&c.Embedder.APIKey, providerKeyVar(c.Embedder.Provider))
	fillKey(&c.Rerank.APIKey, providerKeyVar(c.Rerank.Provider))
}

// providerKeyVar names the conventional API key variable of a provider
func providerKeyVar(provider string) string {
	switch provider {
	case "claude":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "jina":
		return "JINA_API_KEY"
	}
	return ""
}

func fillKey(dst *string, name string) {
	if *dst != "" || name == "" {
		return
	}
	*dst = os.Getenv(name)
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

// envInt ignores values that do not parse, keeping the previous setting
func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := cast.ToIntE(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if f, err := cast.ToFloat64E(strings.TrimSpace(v)); err == nil {
			*dst = f
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if b, err := cast.ToBoolE(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}
