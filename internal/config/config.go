// Package config loads service configuration from an optional YAML file,
// PQL_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	Server struct {
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"` // WebSocket origin patterns
	} `mapstructure:"server"`

	Logging struct {
		Level string `mapstructure:"level"` // "debug", "info", "warn", "error"
	} `mapstructure:"logging"`

	Session struct {
		MaxAge          time.Duration `mapstructure:"max_age"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	} `mapstructure:"session"`

	EventBus struct {
		Buffer  int  `mapstructure:"buffer"`
		Verbose bool `mapstructure:"verbose"` // log every translation, not just failures
	} `mapstructure:"eventbus"`

	Catalog struct {
		Path string `mapstructure:"path"` // CUE file; empty means the built-in catalog
	} `mapstructure:"catalog"`

	Share struct {
		MaxBytes int `mapstructure:"max_bytes"`
	} `mapstructure:"share"`

	Shell struct {
		HistoryFile string `mapstructure:"history_file"`
	} `mapstructure:"shell"`
}

// ErrHelp is returned by Load when -h or --help was given.
var ErrHelp = pflag.ErrHelp

// Load reads configuration for the named program. args are the command
// line arguments without the program name.
func Load(name string, args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configFile := flags.String("config", "", "path to a YAML config file")
	flags.Int("port", 0, "HTTP listen port")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("catalog", "", "path to a CUE field catalog")
	flags.StringSlice("allowed-origins", nil, "WebSocket origin patterns")
	flags.Bool("verbose", false, "log every translation")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("pqlservice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if *configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("PQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"server.port":            "port",
		"logging.level":          "log-level",
		"catalog.path":           "catalog",
		"server.allowed_origins": "allowed-origins",
		"eventbus.verbose":       "verbose",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("logging.level", "warn")
	v.SetDefault("session.max_age", 24*time.Hour)
	v.SetDefault("session.idle_timeout", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", 5*time.Minute)
	v.SetDefault("eventbus.buffer", 256)
	v.SetDefault("eventbus.verbose", false)
	v.SetDefault("catalog.path", "")
	v.SetDefault("share.max_bytes", 64<<10)
	v.SetDefault("shell.history_file", ".pql_history")
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Session.MaxAge <= 0 || c.Session.IdleTimeout <= 0 || c.Session.CleanupInterval <= 0 {
		return errors.New("session durations must be positive")
	}
	if c.EventBus.Buffer < 1 {
		return fmt.Errorf("eventbus.buffer must be at least 1, got %d", c.EventBus.Buffer)
	}
	if c.Share.MaxBytes < 1 {
		return fmt.Errorf("share.max_bytes must be at least 1, got %d", c.Share.MaxBytes)
	}
	return nil
}
