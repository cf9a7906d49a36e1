// Package config loads the lab's YAML configuration, applies defaults,
// validates, and honors environment overrides for secrets and DSNs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"indicator-lab/internal/domain"
)

// Config is the process-level configuration for cmd/lab.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr" default:":8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled" default:"true"`
		Namespace string `yaml:"namespace" default:"indicator_lab"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	} `yaml:"logging"`

	Exchange struct {
		BaseURL        string        `yaml:"base_url" default:"https://api.binance.com"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"10s"`
		RatePerSecond  float64       `yaml:"rate_per_second" default:"15" validate:"gt=0"`
	} `yaml:"exchange"`

	Storage struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
		UseMemory     bool   `yaml:"use_memory"`
	} `yaml:"storage"`

	// Run is the baseline run configuration; createRun requests overlay it.
	Run domain.RunConfig `yaml:"run"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, applies defaults, and
// validates the result. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(c.Run.Timeframes) == 0 {
		c.Run.Timeframes = []string{"1h", "4h"}
	}
	applyEnv(&c)

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := ValidateRunConfig(&c.Run); err != nil {
		return nil, fmt.Errorf("validate run config: %w", err)
	}

	return &c, nil
}

// applyEnv overrides DSNs and the exchange endpoint from the environment.
// Env vars win over the file so deployments can keep secrets out of YAML.
func applyEnv(c *Config) {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
}

// PrepareRunConfig fills zero-valued fields of a partial run config with
// defaults and validates the result. Used by createRun and the scan command
// so partial requests arrive at the orchestrator fully specified.
func PrepareRunConfig(cfg *domain.RunConfig) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("apply run defaults: %w", err)
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []string{"1h", "4h"}
	}
	return ValidateRunConfig(cfg)
}

// ValidateRunConfig checks a fully populated run config.
func ValidateRunConfig(cfg *domain.RunConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	p := cfg.Params
	if p.HorizonMin < 1 || p.HorizonMax < p.HorizonMin || p.HorizonStep < 1 {
		return fmt.Errorf("invalid horizon scan bounds: min=%d max=%d step=%d",
			p.HorizonMin, p.HorizonMax, p.HorizonStep)
	}
	if p.FeeRate < 0 || p.SignalThreshold < 0 {
		return fmt.Errorf("fee rate and signal threshold must be non-negative")
	}
	return nil
}
