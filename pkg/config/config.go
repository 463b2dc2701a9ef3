// Package config loads bookimg settings from defaults, an optional TOML file and
// BOOKIMG_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is read once at startup and treated as constant afterwards
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Image    ImageConfig    `mapstructure:"image"`
	Disk     DiskConfig     `mapstructure:"disk"`
	Prefetch PrefetchConfig `mapstructure:"prefetch"`
	Log      LogConfig      `mapstructure:"log"`

	// ConfigFile is the file the configuration was read from, if any
	ConfigFile string `mapstructure:"-"`
}

type CacheConfig struct {
	Directory string `mapstructure:"directory"`
}

type MemoryConfig struct {
	Fraction float64 `mapstructure:"fraction"`
}

type ImageConfig struct {
	MaxDimension int `mapstructure:"max_dimension"`
	MaxPixels    int `mapstructure:"max_pixels"`
}

type DiskConfig struct {
	MaxSizeMebibytes         int     `mapstructure:"max_size_mebibytes"`
	CleanupTrigger           float64 `mapstructure:"cleanup_trigger"`
	CleanupThreshold         float64 `mapstructure:"cleanup_threshold"`
	RecomputeIntervalSeconds int     `mapstructure:"recompute_interval_seconds"`
	RefreshAgeSeconds        int     `mapstructure:"refresh_age_seconds"`
}

// MaxSize returns the disk ceiling in bytes
func (d DiskConfig) MaxSize() int64 {
	return int64(d.MaxSizeMebibytes) << 20
}

func (d DiskConfig) RecomputeInterval() time.Duration {
	return time.Duration(d.RecomputeIntervalSeconds) * time.Second
}

func (d DiskConfig) RefreshAge() time.Duration {
	return time.Duration(d.RefreshAgeSeconds) * time.Second
}

type PrefetchConfig struct {
	Lookahead int `mapstructure:"lookahead"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Directory string `mapstructure:"directory"`
}

func setDefaultConfiguration(v *viper.Viper) {
	// [cache]
	v.SetDefault("cache.directory", defaultCacheDirectory())

	// [memory]
	v.SetDefault("memory.fraction", 0.125)

	// [image]
	v.SetDefault("image.max_dimension", 2048)
	v.SetDefault("image.max_pixels", 100_000_000)

	// [disk]
	v.SetDefault("disk.max_size_mebibytes", 256)
	v.SetDefault("disk.cleanup_trigger", 1.0)
	v.SetDefault("disk.cleanup_threshold", 0.8)
	v.SetDefault("disk.recompute_interval_seconds", 30)
	v.SetDefault("disk.refresh_age_seconds", 3600)

	// [prefetch]
	v.SetDefault("prefetch.lookahead", 2)

	// [log]
	v.SetDefault("log.level", "info")
	v.SetDefault("log.directory", os.TempDir())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaultConfiguration(v)

	v.SetConfigType("toml")
	v.SetEnvPrefix("BOOKIMG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. An explicit file must exist; without one the
// default location is used when present and defaults apply otherwise.
func Load(file string) (*Config, error) {
	v := newViper()

	if file != "" {
		v.SetConfigFile(file)
	} else if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to file unless it already exists
func WriteDefault(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return err
	}

	v := newViper()
	return v.SafeWriteConfigAs(file)
}

// Validate rejects values outside their usable range
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.Directory == "" {
		errs = append(errs, errors.New("cache.directory must not be empty"))
	}
	if c.Memory.Fraction <= 0 || c.Memory.Fraction > 1 {
		errs = append(errs, fmt.Errorf("memory.fraction must be in (0, 1], got %v", c.Memory.Fraction))
	}
	if c.Image.MaxDimension <= 0 {
		errs = append(errs, fmt.Errorf("image.max_dimension must be positive, got %d", c.Image.MaxDimension))
	}
	if c.Image.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("image.max_pixels must be positive, got %d", c.Image.MaxPixels))
	}
	if c.Disk.MaxSizeMebibytes <= 0 {
		errs = append(errs, fmt.Errorf("disk.max_size_mebibytes must be positive, got %d", c.Disk.MaxSizeMebibytes))
	}
	if c.Disk.CleanupTrigger <= 0 {
		errs = append(errs, fmt.Errorf("disk.cleanup_trigger must be positive, got %v", c.Disk.CleanupTrigger))
	}
	if c.Disk.CleanupThreshold <= 0 || c.Disk.CleanupThreshold > 1 {
		errs = append(errs, fmt.Errorf("disk.cleanup_threshold must be in (0, 1], got %v", c.Disk.CleanupThreshold))
	}
	if c.Disk.RecomputeIntervalSeconds < 0 || c.Disk.RefreshAgeSeconds < 0 {
		errs = append(errs, errors.New("disk intervals must not be negative"))
	}
	if c.Prefetch.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("prefetch.lookahead must not be negative, got %d", c.Prefetch.Lookahead))
	}
	return errors.Join(errs...)
}

// DefaultFile returns the default configuration file path
func DefaultFile() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// configDir returns $HOME/.config/bookimg
func configDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "bookimg"), nil
}

func defaultCacheDirectory() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "bookimg")
	}
	return filepath.Join(os.TempDir(), "bookimg-cache")
}
