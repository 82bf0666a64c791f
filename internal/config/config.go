package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for all clawsync environment variables.
const EnvPrefix = "CLAWSYNC_"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CLAWSYNC_CONFIG"

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"/etc/clawsync/config.yaml",
	"/etc/clawsync/config.yml",
}

// Config holds all sidecar settings. Every field is optional except the
// transport credentials, which are mandatory for backup to be active;
// missing credentials disable backup for the run rather than failing it.
type Config struct {
	Bucket          string `koanf:"bucket"`
	AccessKey       string `koanf:"access_key"`
	SecretKey       string `koanf:"secret_key"`
	Endpoint        string `koanf:"endpoint"`
	Region          string `koanf:"region"`
	StateDir        string `koanf:"state_dir"`
	IntervalSeconds int    `koanf:"interval_seconds"`
	Prefix          string `koanf:"prefix"`
	Enabled         bool   `koanf:"enabled"`
	StagingDir      string `koanf:"staging_dir"`
	LogDir          string `koanf:"log_dir"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Region:          "us-east-1",
		StateDir:        "/data/.openclaw",
		IntervalSeconds: 300,
		Prefix:          "openclaw-state",
		Enabled:         true,
		StagingDir:      filepath.Join(os.TempDir(), "clawsync-sqlite"),
	}
}

// Load builds the configuration from three layers, later layers winning:
// struct defaults, an optional YAML config file, and CLAWSYNC_* environment
// variables (CLAWSYNC_ACCESS_KEY -> access_key, and so on).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(key string) string {
		if key == ConfigPathEnvVar {
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that no layer may break. Missing credentials
// are deliberately not an error here; see BackupActive.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive, got %d", c.IntervalSeconds)
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix must not be empty")
	}
	return nil
}

// BackupActive reports whether backup and restore should run at all: the
// feature is enabled and the transport credentials are present.
func (c *Config) BackupActive() bool {
	return c.Enabled && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// InactiveReason explains why BackupActive is false, for a startup log line.
func (c *Config) InactiveReason() string {
	switch {
	case !c.Enabled:
		return "backup disabled by configuration"
	case c.Bucket == "":
		return "no bucket configured"
	case c.AccessKey == "" || c.SecretKey == "":
		return "missing transport credentials"
	default:
		return ""
	}
}

// Interval returns the backup period as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
