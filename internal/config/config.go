// Package config loads and validates recipegrab configuration via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/forkbench/recipegrab/internal/cache"
	"github.com/forkbench/recipegrab/internal/diag"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Verbosity string       `mapstructure:"verbosity"`
	Debug     bool         `mapstructure:"debug"`
	DataDir   string       `mapstructure:"data_dir"`
	Fetch     FetchConfig  `mapstructure:"fetch"`
	Cache     CacheConfig  `mapstructure:"cache"`
	Output    OutputConfig `mapstructure:"output"`
}

// FetchConfig governs download behavior.
type FetchConfig struct {
	Connections    int     `mapstructure:"connections"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	MaxRetries     int     `mapstructure:"max_retries"`
	HostRPS        float64 `mapstructure:"host_rps"`
}

// CacheConfig selects how the recipe cache participates in a run.
type CacheConfig struct {
	Mode string `mapstructure:"mode"`
}

// OutputConfig controls where and how recipes are written.
type OutputConfig struct {
	Path     string `mapstructure:"path"`
	Markdown bool   `mapstructure:"markdown"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECIPEGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Output.Path == defaultOutputName {
		if p := readDefaultOutput(cfg.DataDir); p != "" {
			cfg.Output.Path = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

const defaultOutputName = "recipes.txt"

// defaultOutputFile stores a user-chosen default output path inside the
// data directory.
func defaultOutputFile(dataDir string) string {
	return filepath.Join(dataDir, "default_output")
}

func readDefaultOutput(dataDir string) string {
	data, err := os.ReadFile(defaultOutputFile(dataDir))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetDefaultOutput persists path as the output location used when no
// explicit --output is given.
func SetDefaultOutput(dataDir, path string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(defaultOutputFile(dataDir), []byte(path+"\n"), 0o644); err != nil {
		return fmt.Errorf("store default output: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("verbosity", "critical")
	v.SetDefault("debug", false)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("fetch.connections", 4)
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.user_agent", "recipegrab/0.4 (personal recipe archiver)")
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.host_rps", 2.0)
	v.SetDefault("cache.mode", string(cache.ModeDefault))
	v.SetDefault("output.path", defaultOutputName)
	v.SetDefault("output.markdown", false)
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".recipegrab"
	}
	return filepath.Join(base, "recipegrab")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := diag.ParseLevel(c.Verbosity); err != nil {
		return err
	}
	if c.Fetch.Connections <= 0 {
		return fmt.Errorf("fetch.connections must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if _, err := cache.ParseMode(c.Cache.Mode); err != nil {
		return err
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path must be set")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	return nil
}

// Threshold returns the terminal verbosity as a diagnostics level. Debug
// mode overrides verbosity entirely.
func (c Config) Threshold() diag.Level {
	if c.Debug {
		return diag.DebugLevel
	}
	level, err := diag.ParseLevel(c.Verbosity)
	if err != nil {
		return diag.CriticalLevel
	}
	return level
}

// FetchTimeout converts the timeout knob into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// LogPath is the location of the persisted diagnostics log.
func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "recipegrab.log")
}

// CachePath is the location of the SQLite recipe cache.
func (c Config) CachePath() string {
	return filepath.Join(c.DataDir, "recipes.sqlite3")
}

// ReportDir is where failure reports are written after a run.
func (c Config) ReportDir() string {
	return filepath.Join(c.DataDir, "reports")
}
