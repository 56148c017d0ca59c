// Package config loads webbind configuration from YAML and the environment.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/webbind/errors"
)

// Config is the root configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Script   ScriptConfig   `mapstructure:"script" yaml:"script"`
	Health   HealthConfig   `mapstructure:"health" yaml:"health"`
	EventBus EventBusConfig `mapstructure:"eventbus" yaml:"eventbus"`
	Static   StaticConfig   `mapstructure:"static" yaml:"static"`
	Wasm     WasmConfig     `mapstructure:"wasm" yaml:"wasm"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs" yaml:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ScriptConfig controls the JavaScript runner.
type ScriptConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	ServeAddr string `mapstructure:"serve_addr" yaml:"serve_addr"`
	// TimeoutMs bounds a script run including its pending callbacks; 0 is
	// unbounded.
	TimeoutMs int64 `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// HealthConfig holds health check defaults.
type HealthConfig struct {
	TimeoutMs int64 `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// EventBusConfig holds event bus defaults.
type EventBusConfig struct {
	ContentType string `mapstructure:"content_type" yaml:"content_type"`
	TimeoutMs   int64  `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// StaticConfig holds static handler defaults.
type StaticConfig struct {
	WebRoot          string `mapstructure:"web_root" yaml:"web_root"`
	MaxAgeSeconds    int64  `mapstructure:"max_age_seconds" yaml:"max_age_seconds"`
	MaxCacheSize     int32  `mapstructure:"max_cache_size" yaml:"max_cache_size"`
	DirectoryListing bool   `mapstructure:"directory_listing" yaml:"directory_listing"`
	IncludeHidden    bool   `mapstructure:"include_hidden" yaml:"include_hidden"`
}

// WasmConfig holds WebAssembly guest limits.
type WasmConfig struct {
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages" yaml:"memory_limit_pages"`
	TimeoutMs        int64  `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/webbind.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Health:   HealthConfig{TimeoutMs: 1000},
		EventBus: EventBusConfig{ContentType: "application/json", TimeoutMs: 30000},
		Static: StaticConfig{
			WebRoot:       "webroot",
			MaxAgeSeconds: 86400,
			MaxCacheSize:  10000,
			IncludeHidden: true,
		},
		Wasm: WasmConfig{MemoryLimitPages: 256, TimeoutMs: 30000},
	}
}

// Load reads configuration from path, or from webbind.yaml in the usual
// places when path is empty. Environment variables use the WEBBIND prefix
// with "." and "-" replaced by "_", e.g. WEBBIND_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WEBBIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path == "" {
		path = os.Getenv("WEBBIND_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("webbind")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".webbind"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config")
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("script.path", cfg.Script.Path)
	v.SetDefault("script.serve_addr", cfg.Script.ServeAddr)
	v.SetDefault("script.timeout_ms", cfg.Script.TimeoutMs)
	v.SetDefault("health.timeout_ms", cfg.Health.TimeoutMs)
	v.SetDefault("eventbus.content_type", cfg.EventBus.ContentType)
	v.SetDefault("eventbus.timeout_ms", cfg.EventBus.TimeoutMs)
	v.SetDefault("static.web_root", cfg.Static.WebRoot)
	v.SetDefault("static.max_age_seconds", cfg.Static.MaxAgeSeconds)
	v.SetDefault("static.max_cache_size", cfg.Static.MaxCacheSize)
	v.SetDefault("static.directory_listing", cfg.Static.DirectoryListing)
	v.SetDefault("static.include_hidden", cfg.Static.IncludeHidden)
	v.SetDefault("wasm.memory_limit_pages", cfg.Wasm.MemoryLimitPages)
	v.SetDefault("wasm.timeout_ms", cfg.Wasm.TimeoutMs)
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.InvalidInput(errors.PhaseConfig, "invalid log.level: "+c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		return errors.InvalidInput(errors.PhaseConfig, "invalid log.format: "+c.Log.Format)
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if c.Health.TimeoutMs <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, "health.timeout_ms must be positive")
	}
	if c.EventBus.TimeoutMs <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, "eventbus.timeout_ms must be positive")
	}
	if c.Static.MaxCacheSize < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "static.max_cache_size must not be negative")
	}
	if c.Script.TimeoutMs < 0 || c.Wasm.TimeoutMs < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "timeouts must not be negative")
	}
	return nil
}

// Dump renders the configuration as YAML.
func Dump(c *Config) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindUnsupported, err, "encode config")
	}
	return out, nil
}
