// Package config loads this service's runtime configuration from flags,
// environment variables, and an optional config file, in that precedence
// order, replacing the teacher's raw flag.String/flag.Int calls with
// pflag+viper per spec §6.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of runtime knobs this service accepts.
type Config struct {
	BindAddress string `mapstructure:"bind_address"`
	ListenPort  int    `mapstructure:"listen_port"`

	// AllowedOrigin is the single Origin header value the WebSocket upgrader
	// accepts; "*" disables the check. It is safe to hot-reload (see
	// WatchAllowedOrigin).
	AllowedOrigin string `mapstructure:"allowed_origin"`

	MetricsPort int `mapstructure:"metrics_port"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// ConfigFile, if set, is read by viper in addition to flags/env.
	ConfigFile string `mapstructure:"-"`
}

const envPrefix = "MATCHSIGNAL"

// Load parses args (typically os.Args[1:]) and returns the resolved
// Config. Precedence is flag > env > config file > default, per spec §6.
func Load(args []string) (*Config, *viper.Viper, error) {
	fs := pflag.NewFlagSet("matchsignal", pflag.ContinueOnError)
	fs.String("bind_address", "0.0.0.0", "address to bind the HTTP/WebSocket listener")
	fs.Int("listen_port", 8080, "port to bind the HTTP/WebSocket listener")
	fs.String("allowed_origin", "*", "Origin header accepted by the WebSocket upgrader; '*' disables the check")
	fs.Int("metrics_port", 9090, "port to serve /metrics on (0 disables the metrics listener)")
	fs.String("log_level", "info", "log level: debug, info, warn, error")
	fs.String("log_format", "json", "log encoding: json or console")
	fs.String("config_file", "", "optional path to a YAML/TOML/JSON config file")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, err
	}

	if cf, _ := fs.GetString("config_file"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("config: reading %s: %w", cf, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.ConfigFile, _ = fs.GetString("config_file")

	return &cfg, v, nil
}

// WatchAllowedOrigin invokes onChange with the current allowed_origin value
// on every change event for the config file on disk, whether or not that
// value itself changed; it does nothing when no config file is in use.
// Only allowed_origin is safe to hot-swap — bind
// address and ports require a process restart to rebind a listener, so
// this is the one field spec §6 calls out for live reload.
func WatchAllowedOrigin(v *viper.Viper, onChange func(string)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		onChange(v.GetString("allowed_origin"))
	})
	v.WatchConfig()
}
