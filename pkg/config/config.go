// Package config loads engine settings from a YAML file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/duynguyendang/mbe/internal/manager"
	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/interpret"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/multiplicity"
	"github.com/duynguyendang/mbe/pkg/store"
)

// Config is the file form of every tunable. Fields missing from the file
// keep their defaults.
type Config struct {
	// Seed fixes the sampling seed; 0 means time based.
	Seed int64 `yaml:"seed"`

	MaxMultiplicity  int `yaml:"max_multiplicity"`
	RollupBias       int `yaml:"rollup_bias"`
	SampleRetries    int `yaml:"sample_retries"`
	FixedPointBudget int `yaml:"fixed_point_budget"`
	CacheSize        int `yaml:"cache_size"`

	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	ModelDir string `yaml:"model_dir"`
	Port     string `yaml:"port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		MaxMultiplicity:  multiplicity.DefaultConfig().MaxMultiplicity,
		SampleRetries:    interpret.DefaultConfig().SampleRetries,
		FixedPointBudget: interpret.DefaultConfig().FixedPointBudget,
		CacheSize:        lpg.DefaultConfig().CacheSize,
		LogLevel:         "info",
		DataDir:          "./data",
		Port:             "8080",
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config: %v", errors.ErrInvalidInput, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"MBE_MAX_MULTIPLICITY", &c.MaxMultiplicity},
		{"MBE_ROLLUP_BIAS", &c.RollupBias},
	}
	for _, e := range ints {
		if v, ok := lookup(e.key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", errors.ErrInvalidInput, e.key, v)
			}
			*e.dst = n
		}
	}
	if v, ok := lookup("MBE_SEED"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: MBE_SEED=%q is not an integer", errors.ErrInvalidInput, v)
		}
		c.Seed = n
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"MBE_LOG_LEVEL", &c.LogLevel},
		{"MBE_DATA_DIR", &c.DataDir},
		{"MBE_MODEL_DIR", &c.ModelDir},
		{"PORT", &c.Port},
	}
	for _, e := range strs {
		if v, ok := lookup(e.key); ok && v != "" {
			*e.dst = v
		}
	}
	return nil
}

// Validate checks every section against its package rules.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Multiplicity().Validate(); err != nil {
		return err
	}
	if err := c.Interpret().Validate(); err != nil {
		return err
	}
	if err := c.Graphs().Validate(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Multiplicity() multiplicity.Config {
	cfg := multiplicity.DefaultConfig()
	cfg.MaxMultiplicity = c.MaxMultiplicity
	cfg.Bias = c.RollupBias
	return cfg
}

func (c *Config) Interpret() interpret.Config {
	cfg := interpret.DefaultConfig()
	cfg.SampleRetries = c.SampleRetries
	cfg.FixedPointBudget = c.FixedPointBudget
	return cfg
}

func (c *Config) Graphs() lpg.Config {
	cfg := lpg.DefaultConfig()
	cfg.CacheSize = c.CacheSize
	return cfg
}

// Store returns the snapshot store configuration rooted at DataDir.
func (c *Config) Store() *store.Config {
	return store.DefaultConfig(c.DataDir)
}

// Manager returns the options for a ModelManager.
func (c *Config) Manager() manager.Options {
	return manager.Options{Graphs: c.Graphs(), Multiplicity: c.Multiplicity()}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidInput, s)
}
