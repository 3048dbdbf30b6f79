package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/paramtree/internal/param/coordinator"
	"github.com/dshills/paramtree/internal/param/preset"
	"github.com/dshills/paramtree/internal/param/value"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "json", c.Logging.Format)
	assert.True(t, c.Coordinator.BatchEnabled)
	assert.Equal(t, 100*time.Millisecond, c.Coordinator.BatchTimeout)
	assert.Equal(t, 10, c.Coordinator.MaxBatchSize)
	assert.Equal(t, "mixed", c.Coordinator.Grouping)
	assert.Equal(t, BackendFile, c.Presets.Backend)
	assert.Equal(t, "toml", c.Presets.Format)
	assert.True(t, c.Integration.AutoSync)
	assert.False(t, c.Integration.WatchPresets)
	assert.NoError(t, c.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("PARAMTREE_CONFIG", "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "cfg.toml", `
[coordinator]
max_batch_size = 4
batch_timeout = "250ms"
grouping = "target"

[logging]
level = "debug"
`},
		{"yaml", "cfg.yaml", `
coordinator:
  max_batch_size: 4
  batch_timeout: 250ms
  grouping: target
logging:
  level: debug
`},
		{"json", "cfg.json", `{
  "coordinator": {"max_batch_size": 4, "batch_timeout": "250ms", "grouping": "target"},
  "logging": {"level": "debug"}
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, 4, c.Coordinator.MaxBatchSize)
			assert.Equal(t, 250*time.Millisecond, c.Coordinator.BatchTimeout)
			assert.Equal(t, "target", c.Coordinator.Grouping)
			assert.Equal(t, "debug", c.Logging.Level)
			// untouched keys keep defaults
			assert.Equal(t, "json", c.Logging.Format)
			assert.True(t, c.Coordinator.BatchEnabled)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "cfg.toml", "[integration]\nsync_interval = \"1s\"\nauto_sync = true\n")
	t.Setenv("PARAMTREE_INTEGRATION_SYNC_INTERVAL", "2s")
	t.Setenv("PARAMTREE_PRESETS_BACKEND", "memory")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.Integration.SyncInterval)
	assert.Equal(t, BackendMemory, c.Presets.Backend)
}

func TestLoad_ConfigEnvPath(t *testing.T) {
	path := writeFile(t, "cfg.yaml", "logging:\n  format: console\n")
	t.Setenv("PARAMTREE_CONFIG", path)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "console", c.Logging.Format)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "cfg.ini", "x=1"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Load(writeFile(t, "cfg.toml", "[coordinator\nmax_batch_size = "))
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Contains(t, pe.Path, "cfg.toml")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeFile(t, "cfg.toml", "[coordinator]\nmax_batch_size = 0\ngrouping = \"alphabetical\"\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "coordinator.max_batch_size")
		assert.Contains(t, err.Error(), "coordinator.grouping")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"timeout", func(c *Config) { c.Coordinator.BatchTimeout = 0 }, "coordinator.batch_timeout"},
		{"retention", func(c *Config) { c.Coordinator.Retention = -1 }, "coordinator.retention"},
		{"backend", func(c *Config) { c.Presets.Backend = "s3" }, "presets.backend"},
		{"dir", func(c *Config) { c.Presets.Dir = "" }, "presets.dir"},
		{"preset format", func(c *Config) { c.Presets.Format = "ini" }, "presets.format"},
		{"database", func(c *Config) { c.Presets.Backend = BackendSQLite; c.Presets.Database = "" }, "presets.database"},
		{"sync interval", func(c *Config) { c.Integration.SyncInterval = 0 }, "integration"},
		{"watch without files", func(c *Config) {
			c.Presets.Backend = BackendMemory
			c.Integration.WatchPresets = true
		}, "integration.watch_presets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)

			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.key, ve.Key)
		})
	}
}

func TestToCoordinator(t *testing.T) {
	c := Default().Coordinator
	c.Grouping = "priority"
	c.MaxBatchSize = 3

	cc, err := c.ToCoordinator()
	require.NoError(t, err)
	assert.Equal(t, coordinator.ByPriority, cc.Grouping)
	assert.Equal(t, 3, cc.MaxBatchSize)

	c.Grouping = "nope"
	_, err = c.ToCoordinator()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestToIntegration(t *testing.T) {
	c := Default().Integration
	c.Bidirectional = false
	c.SyncInterval = time.Second

	ic := c.ToIntegration()
	assert.False(t, ic.Bidirectional)
	assert.Equal(t, time.Second, ic.SyncInterval)
	assert.Equal(t, 3, ic.Retry.MaxAttempts)
	assert.NoError(t, ic.Validate())
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	roundTrip := func(t *testing.T, s preset.Store) {
		t.Helper()
		doc := preset.NewDocument("warm", time.Unix(0, 0).UTC())
		doc.Set("lighting", "main.intensity", value.Float(0.7))
		require.NoError(t, s.Save(ctx, doc))
		got, err := s.Load(ctx, "warm")
		require.NoError(t, err)
		assert.Equal(t, value.Float(0.7), got.Systems["lighting"]["main.intensity"])
	}

	t.Run("memory", func(t *testing.T) {
		s, closeFn, err := PresetsConfig{Backend: BackendMemory}.OpenStore(ctx, nil)
		require.NoError(t, err)
		defer closeFn()
		roundTrip(t, s)
	})

	t.Run("file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "presets")
		s, closeFn, err := PresetsConfig{Backend: BackendFile, Dir: dir, Format: "yaml"}.OpenStore(ctx, nil)
		require.NoError(t, err)
		defer closeFn()
		roundTrip(t, s)
		assert.FileExists(t, filepath.Join(dir, "warm.yaml"))
	})

	t.Run("sqlite", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "nested", "presets.db")
		s, closeFn, err := PresetsConfig{Backend: BackendSQLite, Database: db}.OpenStore(ctx, nil)
		require.NoError(t, err)
		roundTrip(t, s)
		require.NoError(t, closeFn())
		assert.FileExists(t, db)
	})

	t.Run("unknown", func(t *testing.T) {
		_, closeFn, err := PresetsConfig{Backend: "s3"}.OpenStore(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.NotNil(t, closeFn)
	})
}
