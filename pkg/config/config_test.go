package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.125, cfg.Memory.Fraction)
	assert.Equal(t, 2048, cfg.Image.MaxDimension)
	assert.Equal(t, 100_000_000, cfg.Image.MaxPixels)
	assert.Equal(t, int64(256<<20), cfg.Disk.MaxSize())
	assert.Equal(t, 1.0, cfg.Disk.CleanupTrigger)
	assert.Equal(t, 0.8, cfg.Disk.CleanupThreshold)
	assert.Equal(t, 30*time.Second, cfg.Disk.RecomputeInterval())
	assert.Equal(t, time.Hour, cfg.Disk.RefreshAge())
	assert.Equal(t, 2, cfg.Prefetch.Lookahead)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Cache.Directory)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[cache]
directory = "/var/cache/books"

[image]
max_dimension = 1024

[disk]
max_size_mebibytes = 64
`), 0644))
	t.Setenv("BOOKIMG_PREFETCH_LOOKAHEAD", "5")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, file, cfg.ConfigFile)
	assert.Equal(t, "/var/cache/books", cfg.Cache.Directory)
	assert.Equal(t, 1024, cfg.Image.MaxDimension)
	assert.Equal(t, int64(64<<20), cfg.Disk.MaxSize())
	assert.Equal(t, 5, cfg.Prefetch.Lookahead)
	assert.Equal(t, 0.125, cfg.Memory.Fraction)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[memory]
fraction = 1.5
`), 0644))

	_, err := Load(file)
	assert.ErrorContains(t, err, "memory.fraction")
}

func TestWriteDefault(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bookimg", "config.toml")

	require.NoError(t, WriteDefault(file))
	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Image.MaxDimension)

	// never overwrites
	assert.Error(t, WriteDefault(file))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Cache:    CacheConfig{Directory: "/tmp/c"},
			Memory:   MemoryConfig{Fraction: 0.125},
			Image:    ImageConfig{MaxDimension: 2048, MaxPixels: 1000},
			Disk:     DiskConfig{MaxSizeMebibytes: 1, CleanupTrigger: 1, CleanupThreshold: 0.8},
			Prefetch: PrefetchConfig{Lookahead: 2},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty directory", func(c *Config) { c.Cache.Directory = "" }},
		{"zero fraction", func(c *Config) { c.Memory.Fraction = 0 }},
		{"zero dimension", func(c *Config) { c.Image.MaxDimension = 0 }},
		{"threshold above one", func(c *Config) { c.Disk.CleanupThreshold = 1.2 }},
		{"negative interval", func(c *Config) { c.Disk.RecomputeIntervalSeconds = -1 }},
		{"negative lookahead", func(c *Config) { c.Prefetch.Lookahead = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
