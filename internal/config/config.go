// Package config provides centralized configuration loaded from environment
// variables and an optional sources.toml. Shared by cmd/scrape and cmd/api.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/scoracle-projections/internal/auth"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Output
	DataDir string

	// Browser
	Headless        bool
	ChromeURL       string // connect to a running Chrome instead of launching
	DownloadDirs    []string
	DiagnosticsDir  string
	NavigateTimeout time.Duration

	// Downloads
	DownloadPoll      time.Duration
	DownloadTimeout   time.Duration
	FreshnessWindow   time.Duration
	FetchRequestsPerM int

	// Publishing
	PublishEnabled bool
	RepoDir        string // working tree holding DataDir
	GitRemote      string
	GitBranch      string
	GitAuthorName  string
	GitAuthorEmail string

	// Sources
	SourcesFile string
	Enabled     []string

	// Run ledger (optional)
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	defaultDownloads := []string{"downloads"}
	if home != "" {
		defaultDownloads = append(defaultDownloads, home+"/Downloads")
	}

	cfg := &Config{
		DataDir: envOr("DATA_DIR", "data"),

		Headless:        envBool("HEADLESS", true),
		ChromeURL:       envOr("CHROME_URL", ""),
		DownloadDirs:    envList("DOWNLOAD_DIRS", defaultDownloads),
		DiagnosticsDir:  envOr("DIAGNOSTICS_DIR", "diagnostics"),
		NavigateTimeout: envDuration("NAVIGATE_TIMEOUT", 30*time.Second),

		DownloadPoll:      envDuration("DOWNLOAD_POLL", 500*time.Millisecond),
		DownloadTimeout:   envDuration("DOWNLOAD_TIMEOUT", 15*time.Second),
		FreshnessWindow:   envDuration("DOWNLOAD_FRESHNESS", 30*time.Second),
		FetchRequestsPerM: envInt("FETCH_REQUESTS_PER_MINUTE", 30),

		PublishEnabled: envBool("PUBLISH_ENABLED", true),
		RepoDir:        envOr("PUBLISH_REPO_DIR", "."),
		GitRemote:      envOr("GIT_REMOTE", ""),
		GitBranch:      envOr("GIT_BRANCH", ""),
		GitAuthorName:  envOr("GIT_AUTHOR_NAME", "projections-bot"),
		GitAuthorEmail: envOr("GIT_AUTHOR_EMAIL", "projections-bot@users.noreply.github.com"),

		SourcesFile: envOr("SOURCES_FILE", "sources.toml"),
		Enabled:     envList("SOURCES", nil),

		DatabaseURL:    envOr("DATABASE_URL", envOr("NEON_DATABASE_URL", "")),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 4),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:4321",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("DATA_DIR must not be empty")
	}
	if cfg.DownloadTimeout <= 0 || cfg.DownloadPoll <= 0 {
		return nil, fmt.Errorf("DOWNLOAD_TIMEOUT and DOWNLOAD_POLL must be positive")
	}
	return cfg, nil
}

// --------------------------------------------------------------------------
// Credentials
// --------------------------------------------------------------------------

// CredentialStore yields login credentials per source.
type CredentialStore interface {
	Credentials(sourceID string) (auth.Credentials, error)
}

// EnvCredentials reads {SOURCE}_USERNAME and {SOURCE}_PASSWORD. Missing
// variables yield empty credentials, not an error.
type EnvCredentials struct{}

func (EnvCredentials) Credentials(sourceID string) (auth.Credentials, error) {
	prefix := strings.ToUpper(sourceID)
	return auth.Credentials{
		Username: envOr(prefix+"_USERNAME", envOr(prefix+"_EMAIL", "")),
		Password: envOr(prefix+"_PASSWORD", ""),
	}, nil
}

// StaticCredentials is a fixed map, for tests and dry runs.
type StaticCredentials map[string]auth.Credentials

func (s StaticCredentials) Credentials(sourceID string) (auth.Credentials, error) {
	return s[sourceID], nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("15s") or bare seconds ("15").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
