package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/paramtree/internal/integration"
	"github.com/dshills/paramtree/internal/param/coordinator"
	"github.com/dshills/paramtree/internal/param/preset"
)

// EnvPrefix prefixes environment overrides, e.g. PARAMTREE_LOGGING_LEVEL.
const EnvPrefix = "PARAMTREE"

// Config holds engine configuration.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Presets     PresetsConfig     `mapstructure:"presets"`
	Integration IntegrationConfig `mapstructure:"integration"`
}

// LoggingConfig selects the logger shape.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is "json" (production encoder) or "console" (development).
	Format string `mapstructure:"format"`
	// Output lists zap sink URLs; empty means stderr.
	Output []string `mapstructure:"output"`
}

// CoordinatorConfig mirrors coordinator.Config with text-friendly types.
type CoordinatorConfig struct {
	BatchEnabled bool          `mapstructure:"batch_enabled"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	Grouping     string        `mapstructure:"grouping"`
	Retention    int           `mapstructure:"retention"`
}

// PresetsConfig selects where presets are stored.
type PresetsConfig struct {
	// Backend is one of "file", "sqlite" or "memory".
	Backend string `mapstructure:"backend"`
	// Dir holds one file per preset for the file backend.
	Dir string `mapstructure:"dir"`
	// Format is the file codec: toml, yaml or json.
	Format string `mapstructure:"format"`
	// Database is the SQLite path for the sqlite backend.
	Database string `mapstructure:"database"`
}

// IntegrationConfig mirrors integration.Config.
type IntegrationConfig struct {
	AutoSync              bool          `mapstructure:"auto_sync"`
	SyncInterval          time.Duration `mapstructure:"sync_interval"`
	Bidirectional         bool          `mapstructure:"bidirectional"`
	SmartBatching         bool          `mapstructure:"smart_batching"`
	DependencyTracking    bool          `mapstructure:"dependency_tracking"`
	PerformanceMonitoring bool          `mapstructure:"performance_monitoring"`
	WatchPresets          bool          `mapstructure:"watch_presets"`
	WatchDebounce         time.Duration `mapstructure:"watch_debounce"`
}

// Preset storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "paramtree")
	}
	return ".paramtree"
}

func setDefaults(v *viper.Viper) {
	cd := coordinator.DefaultConfig()
	ic := integration.DefaultConfig()
	base := dataDir()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", []string{"stderr"})

	v.SetDefault("coordinator.batch_enabled", cd.BatchEnabled)
	v.SetDefault("coordinator.batch_timeout", cd.BatchTimeout)
	v.SetDefault("coordinator.max_batch_size", cd.MaxBatchSize)
	v.SetDefault("coordinator.grouping", cd.Grouping.String())
	v.SetDefault("coordinator.retention", cd.Retention)

	v.SetDefault("presets.backend", BackendFile)
	v.SetDefault("presets.dir", filepath.Join(base, "presets"))
	v.SetDefault("presets.format", "toml")
	v.SetDefault("presets.database", filepath.Join(base, "presets.db"))

	v.SetDefault("integration.auto_sync", ic.AutoSync)
	v.SetDefault("integration.sync_interval", ic.SyncInterval)
	v.SetDefault("integration.bidirectional", ic.Bidirectional)
	v.SetDefault("integration.smart_batching", ic.SmartBatching)
	v.SetDefault("integration.dependency_tracking", ic.DependencyTracking)
	v.SetDefault("integration.performance_monitoring", ic.PerformanceMonitoring)
	v.SetDefault("integration.watch_presets", ic.WatchPresets)
	v.SetDefault("integration.watch_debounce", ic.WatchDebounce)
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults always decode.
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration in order: defaults, then the file at path (or
// $PARAMTREE_CONFIG when path is empty), then PARAMTREE_* environment
// variables. A missing explicit file is an error; no file at all is not.
// The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		switch ext {
		case "toml", "yaml", "yml", "json":
		default:
			return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
		}
		v.SetConfigFile(path)
		v.SetConfigType(ext)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return Config{}, &ParseError{Path: path, Err: err}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, invalid("logging.level", "unknown level", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, invalid("logging.format", "must be json or console", c.Logging.Format))
	}

	if c.Coordinator.BatchTimeout <= 0 {
		errs = append(errs, invalid("coordinator.batch_timeout", "must be positive", c.Coordinator.BatchTimeout))
	}
	if c.Coordinator.MaxBatchSize < 1 {
		errs = append(errs, invalid("coordinator.max_batch_size", "must be at least 1", c.Coordinator.MaxBatchSize))
	}
	if _, err := coordinator.ParseGroupingStrategy(c.Coordinator.Grouping); err != nil {
		errs = append(errs, invalid("coordinator.grouping", "unknown strategy", c.Coordinator.Grouping))
	}
	if c.Coordinator.Retention < 0 {
		errs = append(errs, invalid("coordinator.retention", "must not be negative", c.Coordinator.Retention))
	}

	switch c.Presets.Backend {
	case BackendFile:
		if c.Presets.Dir == "" {
			errs = append(errs, invalid("presets.dir", "required for the file backend", c.Presets.Dir))
		}
		if _, err := preset.CodecFor(c.Presets.Format); err != nil {
			errs = append(errs, invalid("presets.format", "must be toml, yaml or json", c.Presets.Format))
		}
	case BackendSQLite:
		if c.Presets.Database == "" {
			errs = append(errs, invalid("presets.database", "required for the sqlite backend", c.Presets.Database))
		}
	case BackendMemory:
	default:
		errs = append(errs, invalid("presets.backend", "must be file, sqlite or memory", c.Presets.Backend))
	}

	if err := c.Integration.ToIntegration().Validate(); err != nil {
		errs = append(errs, invalid("integration", err.Error(), c.Integration))
	}
	if c.Integration.WatchPresets && c.Presets.Backend != BackendFile {
		errs = append(errs, invalid("integration.watch_presets", "requires the file preset backend", c.Presets.Backend))
	}

	return errors.Join(errs...)
}

// ToCoordinator converts the section into a coordinator.Config.
func (c CoordinatorConfig) ToCoordinator() (coordinator.Config, error) {
	g, err := coordinator.ParseGroupingStrategy(c.Grouping)
	if err != nil {
		return coordinator.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return coordinator.Config{
		BatchEnabled: c.BatchEnabled,
		BatchTimeout: c.BatchTimeout,
		MaxBatchSize: c.MaxBatchSize,
		Grouping:     g,
		Retention:    c.Retention,
	}, nil
}

// ToIntegration converts the section into an integration.Config. Retry and
// breaker settings keep their package defaults.
func (c IntegrationConfig) ToIntegration() integration.Config {
	ic := integration.DefaultConfig()
	ic.AutoSync = c.AutoSync
	ic.SyncInterval = c.SyncInterval
	ic.Bidirectional = c.Bidirectional
	ic.SmartBatching = c.SmartBatching
	ic.DependencyTracking = c.DependencyTracking
	ic.PerformanceMonitoring = c.PerformanceMonitoring
	ic.WatchPresets = c.WatchPresets
	ic.WatchDebounce = c.WatchDebounce
	return ic
}
