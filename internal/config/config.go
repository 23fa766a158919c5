package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverValkey   = "valkey"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds the hubcontext service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File       string `yaml:"file"`  // optional rotated log file
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // host:port of the OTLP/HTTP collector
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, postgres (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"` // postgres only
	MaxConns         int32    `yaml:"max_conns"`
	MinConns         int32    `yaml:"min_conns"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RetrievalConfig holds pipeline tuning and index settings.
type RetrievalConfig struct {
	DefaultThreshold    float64 `yaml:"default_threshold"`
	DefaultMatchCount   int     `yaml:"default_match_count"`
	MaxMatchCount       int     `yaml:"max_match_count"`
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	HubBoost            float64 `yaml:"hub_boost"`
	HubPrefilter        bool    `yaml:"hub_prefilter"`
	CacheTTLSec         int     `yaml:"cache_ttl_sec"`
	IndexName           string  `yaml:"index_name"`
	KeyPrefix           string  `yaml:"key_prefix"`
	HNSWM               int     `yaml:"hnsw_m"`
	HNSWEFConstruct     int     `yaml:"hnsw_ef_construction"`
	MetricsStreamMaxLen int64   `yaml:"metrics_stream_max_len"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey       string           `yaml:"api_key"`
	BaseURL      string           `yaml:"base_url"`
	Model        string           `yaml:"model"`
	Dimensions   int              `yaml:"dimensions"`
	Instruction  string           `yaml:"instruction"`
	RateLimitRPS float64          `yaml:"rate_limit_rps"` // 0 = unlimited
	Burst        int              `yaml:"burst"`
	Budget       BudgetConfig     `yaml:"budget"`
	Retry        RetryConfig      `yaml:"retry"`
	Cache        EmbedCacheConfig `yaml:"cache"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// RetryConfig holds the bounded retry policy for embedding calls.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMs int     `yaml:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms"`
	Jitter      float64 `yaml:"jitter"`
}

// EmbedCacheConfig holds the embedding vector cache settings.
type EmbedCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// CacheTTL returns the retrieval cache freshness window.
func (r RetrievalConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSec) * time.Second
}

// BaseDelay returns the initial retry delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// covers three embedding attempts plus backoff
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	c.applyDatabaseDefaults()
	c.applyEmbeddingDefaults()
	c.applyRetrievalDefaults()
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB <= 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups <= 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays <= 0 {
			c.Logging.MaxAgeDays = 30
		}
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "hubcontext"
	}
}

func (c *Config) applyDatabaseDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns < 0 {
		c.Database.MinConns = 0
	}
}

func (c *Config) applyEmbeddingDefaults() {
	e := &c.Embedding
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.Dimensions <= 0 {
		e.Dimensions = 1536
	}
	if e.Burst <= 0 {
		e.Burst = 1
	}
	if e.Retry.MaxAttempts <= 0 {
		e.Retry.MaxAttempts = 3
	}
	if e.Retry.BaseDelayMs <= 0 {
		e.Retry.BaseDelayMs = 1000
	}
	if e.Retry.MaxDelayMs <= 0 {
		e.Retry.MaxDelayMs = 10000
	}
	if e.Retry.Jitter <= 0 {
		e.Retry.Jitter = 0.1
	}
	if e.Cache.TTLSec <= 0 {
		e.Cache.TTLSec = 7 * 24 * 3600
	}
}

func (c *Config) applyRetrievalDefaults() {
	r := &c.Retrieval
	if r.DefaultThreshold <= 0 {
		r.DefaultThreshold = 0.7
	}
	if r.DefaultMatchCount <= 0 {
		r.DefaultMatchCount = 5
	}
	if r.MaxMatchCount <= 0 {
		r.MaxMatchCount = 50
	}
	if r.CandidateMultiplier <= 0 {
		r.CandidateMultiplier = 2
	}
	if r.HubBoost <= 0 {
		r.HubBoost = 1.2
	}
	if r.CacheTTLSec <= 0 {
		r.CacheTTLSec = 3600
	}
	if r.IndexName == "" {
		r.IndexName = "chunks"
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = "hubcontext:"
	}
	if r.HNSWM <= 0 {
		r.HNSWM = 16
	}
	if r.HNSWEFConstruct <= 0 {
		r.HNSWEFConstruct = 200
	}
	if r.MetricsStreamMaxLen <= 0 {
		r.MetricsStreamMaxLen = 100000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be valkey, redis or postgres, got %q", c.Database.Driver)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	if c.Embedding.RateLimitRPS < 0 {
		return fmt.Errorf("embedding.rate_limit_rps must not be negative")
	}
	if c.Embedding.Retry.Jitter >= 1 {
		return fmt.Errorf("embedding.retry.jitter must be below 1, got %v", c.Embedding.Retry.Jitter)
	}
	r := c.Retrieval
	if r.DefaultThreshold > 1 {
		return fmt.Errorf("retrieval.default_threshold must be between 0 and 1, got %v", r.DefaultThreshold)
	}
	if r.DefaultMatchCount > r.MaxMatchCount {
		return fmt.Errorf("retrieval.default_match_count (%d) exceeds max_match_count (%d)",
			r.DefaultMatchCount, r.MaxMatchCount)
	}
	if r.HubBoost < 1 {
		return fmt.Errorf("retrieval.hub_boost must be at least 1, got %v", r.HubBoost)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
