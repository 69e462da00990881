// Package config loads the uploadctl/engine configuration from a YAML file,
// environment variables, and defaults, mirroring this codebase's existing
// viper-backed configuration loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/uploadkit/engine/internal/bytesize"
	"github.com/uploadkit/engine/pkg/store"
	"github.com/uploadkit/engine/pkg/uploadmodel"
)

// Config is the top-level uploadctl/engine configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (UPLOADKIT_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Environment variables are only consulted when a configuration file is
// found, and only for keys that file sets; without a file, Load returns the
// defaults.
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Store        store.Config       `mapstructure:"store" yaml:"store"`
	Engine       EngineConfig       `mapstructure:"engine" yaml:"engine"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	StatusServer StatusServerConfig `mapstructure:"status_server" yaml:"status_server"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// EngineConfig configures the Session Engine's default Options (§6).
type EngineConfig struct {
	ChunkSize             bytesize.ByteSize       `mapstructure:"chunk_size" validate:"required" yaml:"chunk_size"`
	MaxConcurrentParts    int                     `mapstructure:"max_concurrent_parts" validate:"required,gt=0" yaml:"max_concurrent_parts"`
	MaxRetries            int                     `mapstructure:"max_retries" validate:"gte=0" yaml:"max_retries"`
	RetryDelay            time.Duration           `mapstructure:"retry_delay" validate:"required,gt=0" yaml:"retry_delay"`
	UseExponentialBackoff bool                    `mapstructure:"use_exponential_backoff" yaml:"use_exponential_backoff"`
	DefaultConstraints    uploadmodel.ConstraintSet `mapstructure:"default_constraints" yaml:"default_constraints"`
}

// MetricsConfig configures the progress metrics poller and /metrics endpoint.
type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// StatusServerConfig configures the local read-only status HTTP server.
type StatusServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true" yaml:"addr"`
}

// Load loads configuration from configPath (or the default search path if
// empty), environment variables, and defaults, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate enforces the `validate:"..."` struct tags declared on Config.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// ApplyDefaults fills in any zero-valued fields left after Load's
// unmarshal step.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	cfg.Store.ApplyDefaults()

	if cfg.Engine.ChunkSize == 0 {
		cfg.Engine.ChunkSize = bytesize.ByteSize(5 * bytesize.MiB)
	}
	if cfg.Engine.MaxConcurrentParts == 0 {
		cfg.Engine.MaxConcurrentParts = 3
	}
	if cfg.Engine.RetryDelay == 0 {
		cfg.Engine.RetryDelay = time.Second
	}
	if cfg.Engine.DefaultConstraints == (uploadmodel.ConstraintSet{}) {
		cfg.Engine.DefaultConstraints = uploadmodel.DefaultConstraintSet()
	}

	if cfg.Metrics.PollInterval == 0 {
		cfg.Metrics.PollInterval = 5 * time.Second
	}

	if cfg.StatusServer.Addr == "" {
		cfg.StatusServer.Addr = "127.0.0.1:9191"
	}
}

// DefaultConfig returns a Config with all defaults applied, suitable as a
// base for Load or for generating a sample config file.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Engine.MaxRetries = 3
	cfg.Engine.UseExponentialBackoff = true
	ApplyDefaults(cfg)
	return cfg
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("UPLOADKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "uploadkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "uploadkit")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
