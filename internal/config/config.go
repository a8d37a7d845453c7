// Package config loads the engine's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ttsmith21/sheetmetal-engine/internal/classify"
	"github.com/ttsmith21/sheetmetal-engine/internal/convert"
	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/guard"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/thickness"
)

// Environment variables that override file settings.
const (
	EnvDBPath     = "SHEETMETAL_DB_PATH"
	EnvListenAddr = "SHEETMETAL_LISTEN_ADDR"
	EnvLogLevel   = "SHEETMETAL_LOG_LEVEL"
)

// DefaultRateLimit is the default number of conversions a client may start
// per minute over HTTP.
const DefaultRateLimit = 60

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath     string `json:"db_path"`
	ListenAddr string `json:"listen_addr"`
	// CacheSize bounds the HTTP classification cache, in entries.
	CacheSize int `json:"cache_size"`
	// MaxBodyBytes bounds part uploads to the HTTP API.
	MaxBodyBytes int64 `json:"max_body_bytes"`

	Log        logging.Config      `json:"log"`
	Classifier classify.Thresholds `json:"classifier"`
	Thickness  thickness.Config    `json:"thickness"`
	Convert    convert.Config      `json:"convert"`
	Guard      guard.GuardConfig   `json:"guard"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	cfg := &Config{
		DBPath:     "sheetmetal.db",
		Classifier: classify.DefaultThresholds(),
		Thickness:  thickness.DefaultConfig(),
		Convert:    convert.DefaultConfig(),
		Guard:      guard.GuardConfig{RateLimitPerMinute: DefaultRateLimit},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads a JSON config file, applies defaults and environment overrides,
// and validates. Sections missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{
		Classifier: classify.DefaultThresholds(),
		Thickness:  thickness.DefaultConfig(),
		Convert:    convert.DefaultConfig(),
		Guard:      guard.GuardConfig{RateLimitPerMinute: DefaultRateLimit},
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault loads path, or returns the defaults with environment
// overrides when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9810"
	}
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 32 << 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.CacheSize < 0 {
		problems = append(problems, "cache_size must not be negative")
	}
	if c.Guard.RateLimitPerMinute < 0 {
		problems = append(problems, "guard.rate_limit_per_minute must not be negative")
	}

	th := c.Classifier
	for name, v := range map[string]float64{
		"classifier.min_developable":        th.MinDevelopable,
		"classifier.primary_coverage":       th.PrimaryCoverage,
		"classifier.relaxed_developable":    th.RelaxedDevelopable,
		"classifier.relaxed_coverage":       th.RelaxedCoverage,
		"classifier.near_total_developable": th.NearTotalDevelopable,
		"classifier.near_total_coverage":    th.NearTotalCoverage,
		"classifier.stick_side_share":       th.StickSideShare,
		"classifier.stick_cap_share":        th.StickCapShare,
	} {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be within [0, 1]", name))
		}
	}
	if th.MaxThinRatio <= 0 {
		problems = append(problems, "classifier.max_thin_ratio must be positive")
	}
	if th.ShellMinRatio >= th.ShellMaxRatio {
		problems = append(problems, "classifier.shell_min_ratio must be below shell_max_ratio")
	}

	tc := c.Thickness
	if tc.MaxAttempts < 1 {
		problems = append(problems, "thickness.max_attempts must be at least 1")
	}
	if tc.CoarseBins < 2 || tc.FineBins < 2 {
		problems = append(problems, "thickness bins must be at least 2")
	}
	if tc.CoarseMin <= 0 || tc.CoarseMax <= tc.CoarseMin {
		problems = append(problems, "thickness coarse range must be positive and increasing")
	}
	if tc.RetryDelay < 0 {
		problems = append(problems, "thickness.retry_delay must not be negative")
	}

	cv := c.Convert
	if cv.MaxThickness <= 0 {
		problems = append(problems, "convert.max_thickness must be positive")
	}
	if cv.VolumeTolerance <= 0 || cv.VolumeTolerance >= 1 {
		problems = append(problems, "convert.volume_tolerance must be within (0, 1)")
	}
	if cv.ProbeVolumeTolerance <= 0 || cv.ProbeVolumeTolerance >= 1 {
		problems = append(problems, "convert.probe_volume_tolerance must be within (0, 1)")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
