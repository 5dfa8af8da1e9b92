// Package config loads runtime defaults for refinements: built-in values,
// then an optional YAML file, then EASYDIFFRACTION_* environment variables.
// Settings in a job file override the result per job.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/easyscience/EasyDiffractionLib/internal/ir"
)

// EnvPrefix namespaces environment overrides, e.g. EASYDIFFRACTION_TOLERANCE.
const EnvPrefix = "EASYDIFFRACTION"

// Config holds the runtime settings.
type Config struct {
	MaxIterations   int          `mapstructure:"max_iterations"`
	Tolerance       float64      `mapstructure:"tolerance"`
	Patience        int          `mapstructure:"patience"`
	InitialDamping  float64      `mapstructure:"initial_damping"`
	SingularRetries int          `mapstructure:"singular_retries"`
	BoundMode       ir.BoundMode `mapstructure:"bound_mode"`
	Weighting       ir.Weighting `mapstructure:"weighting"`
	PeakCutoff      float64      `mapstructure:"peak_cutoff"`
	CacheCapacity   int          `mapstructure:"cache_capacity"`
	Workers         int          `mapstructure:"workers"`
	DBPath          string       `mapstructure:"db_path"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		MaxIterations:   100,
		Tolerance:       1e-8,
		Patience:        3,
		InitialDamping:  1e-3,
		SingularRetries: 5,
		BoundMode:       ir.BoundClamp,
		Weighting:       ir.WeightingUncertainty,
		PeakCutoff:      10,
		CacheCapacity:   256,
		Workers:         4,
		DBPath:          "easydiffraction.db",
	}
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	d := Defaults()
	v.SetDefault("max_iterations", d.MaxIterations)
	v.SetDefault("tolerance", d.Tolerance)
	v.SetDefault("patience", d.Patience)
	v.SetDefault("initial_damping", d.InitialDamping)
	v.SetDefault("singular_retries", d.SingularRetries)
	v.SetDefault("bound_mode", string(d.BoundMode))
	v.SetDefault("weighting", string(d.Weighting))
	v.SetDefault("peak_cutoff", d.PeakCutoff)
	v.SetDefault("cache_capacity", d.CacheCapacity)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("db_path", d.DBPath)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxIterations <= 0:
		return fmt.Errorf("config: max_iterations must be positive, got %d", c.MaxIterations)
	case !(c.Tolerance > 0):
		return fmt.Errorf("config: tolerance must be positive, got %g", c.Tolerance)
	case c.Patience <= 0:
		return fmt.Errorf("config: patience must be positive, got %d", c.Patience)
	case !(c.InitialDamping > 0):
		return fmt.Errorf("config: initial_damping must be positive, got %g", c.InitialDamping)
	case c.SingularRetries < 0:
		return fmt.Errorf("config: singular_retries must not be negative, got %d", c.SingularRetries)
	case c.PeakCutoff <= 0:
		return fmt.Errorf("config: peak_cutoff must be positive, got %g", c.PeakCutoff)
	case c.CacheCapacity <= 0:
		return fmt.Errorf("config: cache_capacity must be positive, got %d", c.CacheCapacity)
	case c.Workers <= 0:
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	switch c.BoundMode {
	case ir.BoundClamp, ir.BoundReflect:
	default:
		return fmt.Errorf("config: unknown bound_mode %q", c.BoundMode)
	}
	switch c.Weighting {
	case ir.WeightingUncertainty, ir.WeightingUniform:
	default:
		return fmt.Errorf("config: unknown weighting %q", c.Weighting)
	}
	return nil
}

// Merge overrides c with the non-zero settings of a job.
func (c Config) Merge(r ir.RefineSpec) Config {
	if r.MaxIterations > 0 {
		c.MaxIterations = r.MaxIterations
	}
	if r.Tolerance > 0 {
		c.Tolerance = r.Tolerance
	}
	if r.Patience > 0 {
		c.Patience = r.Patience
	}
	if r.BoundMode != "" {
		c.BoundMode = r.BoundMode
	}
	if r.Weighting != "" {
		c.Weighting = r.Weighting
	}
	return c
}
