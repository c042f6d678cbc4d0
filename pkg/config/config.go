package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	PostgresURL      string `mapstructure:"POSTGRES_URL"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Pipeline
	Workers         int           `mapstructure:"WORKERS"`
	RunTimeout      time.Duration `mapstructure:"RUN_TIMEOUT"`
	MaxCandidates   int           `mapstructure:"MAX_CANDIDATES"`
	QueryFreshness  time.Duration `mapstructure:"QUERY_FRESHNESS"`
	RecheckInterval time.Duration `mapstructure:"RECHECK_INTERVAL"`
	BlobThreshold   int64         `mapstructure:"BLOB_THRESHOLD_BYTES"`
	BlobDir         string        `mapstructure:"BLOB_DIR"`
	LockTTL         time.Duration `mapstructure:"LOCK_TTL"`
	Schedule        time.Duration `mapstructure:"SCHEDULE_INTERVAL"`

	// Quotas
	SearchRate     float64       `mapstructure:"SEARCH_RATE"`
	SearchBurst    int           `mapstructure:"SEARCH_BURST"`
	SearchMaxWait  time.Duration `mapstructure:"SEARCH_MAX_WAIT"`
	ArchiveRate    float64       `mapstructure:"ARCHIVE_RATE"`
	ArchiveBurst   int           `mapstructure:"ARCHIVE_BURST"`
	ArchiveMaxWait time.Duration `mapstructure:"ARCHIVE_MAX_WAIT"`
	FetchRate      float64       `mapstructure:"FETCH_RATE"`
	FetchBurst     int           `mapstructure:"FETCH_BURST"`
	FetchMaxWait   time.Duration `mapstructure:"FETCH_MAX_WAIT"`

	// Retry policy
	RetryMaxAttempts int           `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryBaseDelay   time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RetryMaxDelay    time.Duration `mapstructure:"RETRY_MAX_DELAY"`
	RetryMultiplier  float64       `mapstructure:"RETRY_MULTIPLIER"`
	RetryJitter      float64       `mapstructure:"RETRY_JITTER"`

	// Collaborators
	GoogleAPIKey     string        `mapstructure:"GOOGLE_API_KEY"`
	GoogleEngineID   string        `mapstructure:"GOOGLE_ENGINE_ID"`
	SearchEndpoint   string        `mapstructure:"SEARCH_ENDPOINT"`
	ResultsPerQuery  int           `mapstructure:"RESULTS_PER_QUERY"`
	WaybackBaseURL   string        `mapstructure:"WAYBACK_BASE_URL"`
	WaybackAccessKey string        `mapstructure:"WAYBACK_ACCESS_KEY"`
	WaybackSecretKey string        `mapstructure:"WAYBACK_SECRET_KEY"`
	FetchTimeout     time.Duration `mapstructure:"FETCH_TIMEOUT"`
	ProxyURLs        []string      `mapstructure:"PROXY_URLS"`
	HeadlessEnabled  bool          `mapstructure:"HEADLESS_ENABLED"`
	HeadlessPool     int           `mapstructure:"HEADLESS_POOL"`
	HeadlessTimeout  time.Duration `mapstructure:"HEADLESS_TIMEOUT"`
	OCRLanguage      string        `mapstructure:"OCR_LANGUAGE"`
	MinTextChars     int           `mapstructure:"MIN_TEXT_CHARS"`
	ToolTempDir      string        `mapstructure:"TOOL_TEMP_DIR"`
	AlertEventBus    string        `mapstructure:"ALERT_EVENT_BUS"`
	AlertSource      string        `mapstructure:"ALERT_SOURCE"`

	// Tracing
	ServiceName       string  `mapstructure:"SERVICE_NAME"`
	TracingExporter   string  `mapstructure:"TRACING_EXPORTER"`
	TracingEndpoint   string  `mapstructure:"TRACING_ENDPOINT"`
	TracingInsecure   bool    `mapstructure:"TRACING_INSECURE"`
	TracingSampleRate float64 `mapstructure:"TRACING_SAMPLE_RATE"`

	// Seed data
	LocationsCSV   string `mapstructure:"LOCATIONS_CSV"`
	DatapointsYAML string `mapstructure:"DATAPOINTS_YAML"`
}

var defaults = map[string]any{
	"SERVER_PORT":       "8080",
	"LOG_LEVEL":         "info",
	"POSTGRES_HOST":     "localhost",
	"POSTGRES_PORT":     "5432",
	"POSTGRES_USER":     "user",
	"POSTGRES_PASSWORD": "password",
	"POSTGRES_DB":       "legalcode",
	"REDIS_ADDR":        "localhost:6379",
	"REDIS_DB":          0,

	"WORKERS":              8,
	"RUN_TIMEOUT":          14 * 24 * time.Hour,
	"MAX_CANDIDATES":       3,
	"QUERY_FRESHNESS":      365 * 24 * time.Hour,
	"RECHECK_INTERVAL":     30 * 24 * time.Hour,
	"BLOB_THRESHOLD_BYTES": int64(1 << 20),
	"BLOB_DIR":             "./data/blobs",
	"LOCK_TTL":             10 * time.Minute,
	"SCHEDULE_INTERVAL":    time.Duration(0),

	"SEARCH_RATE":      1.0,
	"SEARCH_BURST":     1,
	"SEARCH_MAX_WAIT":  30 * time.Second,
	"ARCHIVE_RATE":     1.0,
	"ARCHIVE_BURST":    1,
	"ARCHIVE_MAX_WAIT": time.Minute,
	"FETCH_RATE":       1.0,
	"FETCH_BURST":      1,
	"FETCH_MAX_WAIT":   30 * time.Second,

	"RETRY_MAX_ATTEMPTS": 5,
	"RETRY_BASE_DELAY":   5 * time.Second,
	"RETRY_MAX_DELAY":    5 * time.Minute,
	"RETRY_MULTIPLIER":   2.0,
	"RETRY_JITTER":       0.2,

	"RESULTS_PER_QUERY": 10,
	"WAYBACK_BASE_URL":  "https://web.archive.org",
	"FETCH_TIMEOUT":     60 * time.Second,
	"HEADLESS_ENABLED":  false,
	"HEADLESS_POOL":     2,
	"HEADLESS_TIMEOUT":  45 * time.Second,
	"OCR_LANGUAGE":      "eng",
	"MIN_TEXT_CHARS":    200,
	"ALERT_SOURCE":      "legalcode.pipeline",

	"SERVICE_NAME":        "legalcode-service",
	"TRACING_EXPORTER":    "none",
	"TRACING_ENDPOINT":    "localhost:4317",
	"TRACING_INSECURE":    true,
	"TRACING_SAMPLE_RATE": 1.0,

	"LOCATIONS_CSV":   "./data/locations.csv",
	"DATAPOINTS_YAML": "./data/datapoints.yaml",
}

// Load reads configuration from an env file and the environment. An empty
// path means ".env"; a missing file is not an error so production can rely
// on environment variables alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	// AutomaticEnv only answers keys viper already knows about.
	for _, k := range []string{
		"POSTGRES_URL", "GOOGLE_API_KEY", "GOOGLE_ENGINE_ID", "SEARCH_ENDPOINT",
		"WAYBACK_ACCESS_KEY", "WAYBACK_SECRET_KEY", "PROXY_URLS", "TOOL_TEMP_DIR",
		"ALERT_EVENT_BUS", "REDIS_PASSWORD",
	} {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.ProxyURLs) == 1 && strings.Contains(cfg.ProxyURLs[0], ",") {
		cfg.ProxyURLs = strings.Split(cfg.ProxyURLs[0], ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	case c.MaxCandidates < 1:
		return fmt.Errorf("MAX_CANDIDATES must be at least 1, got %d", c.MaxCandidates)
	case c.QueryFreshness <= 0:
		return fmt.Errorf("QUERY_FRESHNESS must be positive")
	case c.BlobThreshold <= 0:
		return fmt.Errorf("BLOB_THRESHOLD_BYTES must be positive")
	case c.RetryMaxAttempts < 1:
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	case c.TracingExporter != "" && c.TracingExporter != "none" && c.TracingExporter != "otlp":
		return fmt.Errorf("TRACING_EXPORTER must be none or otlp, got %q", c.TracingExporter)
	}
	return nil
}

// PostgresDSN returns POSTGRES_URL or a DSN assembled from the discrete settings.
func (c *Config) PostgresDSN() string {
	if c.PostgresURL != "" {
		return c.PostgresURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}
