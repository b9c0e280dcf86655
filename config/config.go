// Package config loads orchestrator configuration the way the rest of
// the stack does: sensible defaults, overridable by an optional YAML
// file, overridable again by environment variables, overridable last
// by explicit functional options — so a caller embedding this module
// always wins over whatever the environment says.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docling-project/docling-task-orchestrator/corelog"
)

// EngineKind selects which orchestrator backend to run.
type EngineKind string

const (
	EngineLocal       EngineKind = "local"
	EngineDistributed EngineKind = "rq-like"
)

// Config holds every tunable named in the specification's
// "Configuration" section, plus the ambient logging/Redis settings
// every deployment needs regardless of engine choice.
type Config struct {
	Engine     EngineKind `yaml:"engine"`
	NumWorkers int        `yaml:"num_workers"`

	QueueMaxSize int `yaml:"queue_max_size"`

	ResultsTTL         time.Duration `yaml:"results_ttl"`
	FailureTTL         time.Duration `yaml:"failure_ttl"`
	SingleUseResults   bool          `yaml:"single_use_results"`
	ResultRemovalDelay time.Duration `yaml:"result_removal_delay"`

	SyncPollInterval time.Duration `yaml:"sync_poll_interval"`
	MaxSyncWait      time.Duration `yaml:"max_sync_wait"`

	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxAge        time.Duration `yaml:"max_age"`

	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`

	Logging LoggingConfig `yaml:"logging"`

	logger corelog.Logger
}

// LoggingConfig configures the ambient ProductionLogger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	DevMode  bool   `yaml:"dev_mode"`
}

// Option customizes a Config after defaults and environment/file
// loading have been applied.
type Option func(*Config) error

// Default returns the orchestrator's default configuration. TTLs
// default to 4 hours and failure_ttl mirrors results_ttl, matching
// the "all three expire together" guidance in the specification.
func Default() *Config {
	return &Config{
		Engine:             EngineLocal,
		NumWorkers:         5,
		QueueMaxSize:       0,
		ResultsTTL:         4 * time.Hour,
		FailureTTL:         4 * time.Hour,
		SingleUseResults:   false,
		ResultRemovalDelay: 0,
		SyncPollInterval:   500 * time.Millisecond,
		MaxSyncWait:        30 * time.Second,
		SweepInterval:      300 * time.Second,
		MaxAge:             3600 * time.Second,
		RedisURL:           "redis://localhost:6379/0",
		KeyPrefix:          "docling:tasks:",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// New builds a Config: defaults, then an optional YAML file, then
// environment variables, then opts in order.
func New(opts ...Option) (*Config, error) {
	cfg := Default()

	if path := os.Getenv("DOCLING_ORCHESTRATOR_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		format := corelog.FormatText
		if cfg.Logging.Format == "json" {
			format = corelog.FormatJSON
		}
		cfg.logger = corelog.NewProductionLogger(corelog.Config{
			Level:       cfg.Logging.Level,
			Format:      format,
			Output:      cfg.Logging.Output,
			ServiceName: "docling-task-orchestrator",
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile merges YAML config from path into cfg. Unset fields in the
// file leave the current value untouched.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// LoadFromEnv overlays environment variables on top of whatever is
// currently set. Unset or unparsable variables are left untouched.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("DOCLING_ENGINE"); v != "" {
		c.Engine = EngineKind(v)
	}
	if v := os.Getenv("DOCLING_NUM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NumWorkers = n
		}
	}
	if v := os.Getenv("DOCLING_QUEUE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueueMaxSize = n
		}
	}
	if v := os.Getenv("DOCLING_RESULTS_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ResultsTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("DOCLING_FAILURE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FailureTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("DOCLING_SINGLE_USE_RESULTS"); v != "" {
		c.SingleUseResults = v == "true" || v == "1"
	}
	if v := os.Getenv("DOCLING_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("DOCLING_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCLING_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// Validate rejects configurations that would make the orchestrator
// misbehave rather than simply underperform.
func (c *Config) Validate() error {
	if c.Engine != EngineLocal && c.Engine != EngineDistributed {
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.Engine == EngineLocal && c.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be >= 1 for the local engine")
	}
	if c.QueueMaxSize < 0 {
		return fmt.Errorf("queue_max_size must be >= 0")
	}
	if c.ResultsTTL <= 0 {
		return fmt.Errorf("results_ttl must be positive")
	}
	if c.MaxSyncWait <= 0 {
		return fmt.Errorf("max_sync_wait must be positive")
	}
	return nil
}

// Logger returns the configured logger, or a NoOpLogger if none was
// set (New always sets one; a bare Default() does not).
func (c *Config) Logger() corelog.Logger {
	if c.logger == nil {
		return corelog.NoOpLogger{}
	}
	return c.logger
}

// WithLogger overrides the logger used by everything built from this
// Config.
func WithLogger(logger corelog.Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// WithEngine overrides the selected engine backend.
func WithEngine(kind EngineKind) Option {
	return func(c *Config) error {
		c.Engine = kind
		return nil
	}
}

// WithRedisURL overrides the Redis connection string used by the
// distributed engine.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.RedisURL = url
		return nil
	}
}
