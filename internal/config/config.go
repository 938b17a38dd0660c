// Package config loads client configuration with viper: defaults, then the
// YAML config file, then GT_* environment variables, then bound flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GT_REMOTE_DSN.
const EnvPrefix = "GT"

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type RemoteConfig struct {
	Driver string `mapstructure:"driver"` // postgres | memory
	DSN    string `mapstructure:"dsn"`
}

type ConnectivityConfig struct {
	Probe        string        `mapstructure:"probe"` // postgres | grpc | tcp | offline | online
	Addr         string        `mapstructure:"addr"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SyncConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	MaxRetries   int           `mapstructure:"max_retries"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type UserConfig struct {
	ID string `mapstructure:"id"`
}

// Config is the full client configuration.
type Config struct {
	Local        LocalConfig        `mapstructure:"local"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Log          LogConfig          `mapstructure:"log"`
	User         UserConfig         `mapstructure:"user"`
}

// Dir returns the configuration directory.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "growing-together")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "growing-together")
}

// SetDefaults registers every key with its default so env overrides apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("local.path", filepath.Join(Dir(), "cache.db"))
	v.SetDefault("remote.driver", "postgres")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("connectivity.probe", "postgres")
	v.SetDefault("connectivity.addr", "")
	v.SetDefault("connectivity.timeout", 3*time.Second)
	v.SetDefault("connectivity.poll_interval", 10*time.Second)
	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("sync.backoff_base", time.Second)
	v.SetDefault("sync.backoff_max", time.Minute)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.write_timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("user.id", "")
}

// Load reads configuration into a Config. file overrides the default
// location; a missing default file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks enumerations and required combinations.
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case "postgres":
		if c.Remote.DSN == "" {
			return errors.New("config: remote.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown remote.driver %q", c.Remote.Driver)
	}
	switch c.Connectivity.Probe {
	case "grpc", "tcp":
		if c.Connectivity.Addr == "" {
			return fmt.Errorf("config: connectivity.addr is required for the %s probe", c.Connectivity.Probe)
		}
	case "postgres":
		if c.Remote.Driver != "postgres" {
			return errors.New("config: the postgres probe needs the postgres driver")
		}
	case "offline", "online":
	default:
		return fmt.Errorf("config: unknown connectivity.probe %q", c.Connectivity.Probe)
	}
	if c.Connectivity.Timeout <= 0 || c.Connectivity.PollInterval <= 0 {
		return errors.New("config: connectivity durations must be positive")
	}
	if c.Sync.Interval <= 0 || c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax < c.Sync.BackoffBase {
		return errors.New("config: bad sync intervals")
	}
	if c.Sync.MaxRetries <= 0 {
		return errors.New("config: sync.max_retries must be positive")
	}
	if _, err := c.UserID(); err != nil {
		return err
	}
	return nil
}

// UserID parses user.id; empty yields uuid.Nil.
func (c *Config) UserID() (uuid.UUID, error) {
	if c.User.ID == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.FromString(c.User.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("config: user.id: %w", err)
	}
	return id, nil
}
