// Package config loads brightmatter configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/brightmatter/internal/cache"
	"github.com/rcliao/brightmatter/internal/embedding"
	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/veriscore"
)

// Config holds all application configuration.
type Config struct {
	DBPath     string           `yaml:"db_path"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
	Signal     SignalConfig     `yaml:"signal"`
	VeriScore  VeriScoreConfig  `yaml:"veriscore"`
	Memory     MemoryConfig     `yaml:"memory"`
	Session    SessionConfig    `yaml:"session"`
	Pruning    PruningConfig    `yaml:"pruning"`
	Cache      cache.Config     `yaml:"cache"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Cost       CostConfig       `yaml:"cost"`
}

type SignalConfig struct {
	Weights     model.SignalWeights `yaml:"weights"`
	HistorySize int                 `yaml:"history_size"`
}

type VeriScoreConfig struct {
	Weights     model.ScoreWeights `yaml:"weights"`
	DecayRate   float64            `yaml:"decay_rate"`
	HistorySize int                `yaml:"history_size"`
}

type MemoryConfig struct {
	CompressionThreshold int `yaml:"compression_threshold"`
	MaxChunks            int `yaml:"max_chunks"`
}

type SessionConfig struct {
	WindowMinutes     int     `yaml:"window_minutes"`
	MaxActiveContexts int     `yaml:"max_active_contexts"`
	SwitchThreshold   float64 `yaml:"switch_threshold"`
	CleanupSchedule   string  `yaml:"cleanup_schedule"`
}

// PruningConfig tunes relevance decay and when pruning runs.
type PruningConfig struct {
	model.DecayConfig `yaml:",inline"`
	Schedule          string                `yaml:"schedule"`
	Policies          []model.PruningPolicy `yaml:"policies,omitempty"`
}

// EnrichmentConfig selects the live language model and embedding provider.
// Disabled means every optimizer call takes the deterministic path.
type EnrichmentConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	MaxTokens        int    `yaml:"max_tokens"`
	embedding.Config `yaml:",inline"`
}

type CostConfig struct {
	Enabled      bool               `yaml:"enabled"`
	DailyBudgets map[string]float64 `yaml:"daily_budgets"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		DBPath:    defaultDBPath(),
		LogLevel:  "info",
		LogFormat: "text",
		Signal: SignalConfig{
			Weights:     model.DefaultSignalWeights(),
			HistorySize: 100,
		},
		VeriScore: VeriScoreConfig{
			Weights:     model.DefaultScoreWeights(),
			DecayRate:   veriscore.DefaultDecayRate,
			HistorySize: 100,
		},
		Memory: MemoryConfig{
			CompressionThreshold: 1000,
			MaxChunks:            10000,
		},
		Session: SessionConfig{
			WindowMinutes:     30,
			MaxActiveContexts: 5,
			SwitchThreshold:   0.3,
			CleanupSchedule:   "@every 10m",
		},
		Pruning: PruningConfig{
			DecayConfig: model.DefaultDecayConfig(),
			Schedule:    "0 3 * * *",
		},
		Cache: cache.Config{
			Backend:    "memory",
			Prefix:     "brightmatter",
			DefaultTTL: time.Hour,
		},
		Enrichment: EnrichmentConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 512,
			Config: embedding.Config{
				Provider: "hash",
				Timeout:  30 * time.Second,
			},
		},
		Cost: CostConfig{
			Enabled: true,
		},
	}
}

// Path returns the config file path from the environment or the default.
func Path() string {
	if path := os.Getenv("BRIGHTMATTER_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".brightmatter", "config.yaml")
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".brightmatter", "brightmatter.db")
}

// Load reads configuration from path over the defaults. A missing file
// yields the defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) error {
	if v := os.Getenv("BRIGHTMATTER_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BRIGHTMATTER_REDIS_ADDR"); v != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Enrichment.APIKey == "" {
		cfg.Enrichment.APIKey = v
	}
	if v := os.Getenv("BRIGHTMATTER_ENRICHMENT"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BRIGHTMATTER_ENRICHMENT: %w", err)
		}
		cfg.Enrichment.Enabled = on
	}
	if v := os.Getenv("BRIGHTMATTER_COST_TRACKING"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BRIGHTMATTER_COST_TRACKING: %w", err)
		}
		cfg.Cost.Enabled = on
	}
	return nil
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "text": true}
	validDecay      = map[model.DecayFunction]bool{
		model.DecayLinear:      true,
		model.DecayExponential: true,
		model.DecayLogarithmic: true,
	}
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}

	sw := c.Signal.Weights
	if err := checkWeights("signal.weights", sw.Engagement, sw.Viral, sw.Safety, sw.Quality); err != nil {
		return err
	}
	vw := c.VeriScore.Weights
	if err := checkWeights("veriscore.weights", vw.Engagement, vw.Consistency, vw.Growth, vw.Quality, vw.Authenticity, vw.Community); err != nil {
		return err
	}
	if c.VeriScore.DecayRate < 0 {
		return fmt.Errorf("veriscore.decay_rate must not be negative")
	}

	if c.Memory.CompressionThreshold <= 0 {
		return fmt.Errorf("memory.compression_threshold must be positive")
	}
	if c.Memory.MaxChunks <= 0 {
		return fmt.Errorf("memory.max_chunks must be positive")
	}

	if c.Session.WindowMinutes <= 0 {
		return fmt.Errorf("session.window_minutes must be positive")
	}
	if c.Session.SwitchThreshold < 0 || c.Session.SwitchThreshold > 1 {
		return fmt.Errorf("session.switch_threshold must be within [0,1]")
	}
	if err := checkSchedule("session.cleanup_schedule", c.Session.CleanupSchedule); err != nil {
		return err
	}

	if !validDecay[c.Pruning.DecayFunction] {
		return fmt.Errorf("pruning.decay_function must be linear, exponential or logarithmic, got %q", c.Pruning.DecayFunction)
	}
	if err := checkSchedule("pruning.schedule", c.Pruning.Schedule); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}

	if c.Enrichment.Enabled && c.Enrichment.Provider != "openai" {
		return fmt.Errorf("enrichment.provider %q is not supported", c.Enrichment.Provider)
	}
	for svc, b := range c.Cost.DailyBudgets {
		if b < 0 {
			return fmt.Errorf("cost.daily_budgets.%s must not be negative", svc)
		}
	}
	return nil
}

func checkWeights(name string, ws ...float64) error {
	var sum float64
	for _, w := range ws {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("%s must sum to a positive value", name)
	}
	return nil
}

func checkSchedule(name, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, spec, err)
	}
	return nil
}
