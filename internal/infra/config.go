package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
// Values from the YAML file can be overridden by environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Engine struct {
		MaxConcurrent int `yaml:"max_concurrent"`
		MaxAttempts   int `yaml:"max_attempts"`
		BaseDelayMS   int `yaml:"base_delay_ms"`
		MaxDelayMS    int `yaml:"max_delay_ms"`
		InboxSize     int `yaml:"inbox_size"`
	} `yaml:"engine"`

	Dex struct {
		BasePrice        float64 `yaml:"base_price"`
		QuoteLatencyMS   int     `yaml:"quote_latency_ms"`
		ExecMinLatencyMS int     `yaml:"exec_min_latency_ms"`
		ExecMaxLatencyMS int     `yaml:"exec_max_latency_ms"`
		FailRate         float64 `yaml:"fail_rate"`
	} `yaml:"dex"`

	Journal struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"journal"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is present.
// The engine numbers mirror the simulated venue contract: ten concurrent
// lifecycles, three retries, one second base backoff.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "swap-go"
	cfg.App.Version = "dev"
	cfg.Server.Addr = ":3000"
	cfg.Engine.MaxConcurrent = 10
	cfg.Engine.MaxAttempts = 3
	cfg.Engine.BaseDelayMS = 1000
	cfg.Engine.MaxDelayMS = 60000
	cfg.Engine.InboxSize = 1024
	cfg.Dex.BasePrice = 10
	cfg.Dex.QuoteLatencyMS = 200
	cfg.Dex.ExecMinLatencyMS = 2000
	cfg.Dex.ExecMaxLatencyMS = 3000
	cfg.Dex.FailRate = 0
	cfg.Journal.Enabled = false
	cfg.Journal.Path = ""
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Engine.MaxConcurrent <= 0 {
		return fmt.Errorf("engine max_concurrent must be positive")
	}
	if c.Engine.MaxAttempts < 0 {
		return fmt.Errorf("engine max_attempts must not be negative")
	}
	if c.Engine.BaseDelayMS <= 0 {
		return fmt.Errorf("engine base_delay_ms must be positive")
	}
	if c.Engine.InboxSize <= 0 {
		return fmt.Errorf("engine inbox_size must be positive")
	}
	if c.Dex.BasePrice <= 0 {
		return fmt.Errorf("dex base_price must be positive")
	}
	if c.Dex.FailRate < 0 || c.Dex.FailRate > 1 {
		return fmt.Errorf("dex fail_rate must be within [0, 1]")
	}
	if c.Dex.ExecMaxLatencyMS < c.Dex.ExecMinLatencyMS {
		return fmt.Errorf("dex exec_max_latency_ms must not be below exec_min_latency_ms")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal path is required when journal is enabled")
	}
	return nil
}

// overrideWithEnv applies environment variables over file values.
// Environment always wins so deployments can retarget without editing files.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("SWAP_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("SWAP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv("SWAP_JOURNAL_PATH"); path != "" {
		cfg.Journal.Path = path
		cfg.Journal.Enabled = true
	}
}
