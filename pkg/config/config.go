// Package config loads ragchat settings from flags, environment variables and
// an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Slot backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	BackendURL     string
	RequestTimeout time.Duration
	StateDir       string
	StateBackend   string
	LogFile        string
	LogLevel       string
	Supabase       Supabase
	Askd           Askd
}

type Supabase struct {
	URL     string
	AnonKey string
}

// Enabled reports whether both project URL and anon key are configured.
// Without them the client runs in guest-only mode.
func (s Supabase) Enabled() bool {
	return s.URL != "" && s.AnonKey != ""
}

// Askd configures the local reference backend.
type Askd struct {
	Addr        string
	Model       string
	APIKey      string
	RequireAuth bool
}

var envBindings = map[string][]string{
	"backend_url":       {"RAGCHAT_BACKEND_URL"},
	"request_timeout":   {"RAGCHAT_REQUEST_TIMEOUT"},
	"state_dir":         {"RAGCHAT_STATE_DIR"},
	"state_backend":     {"RAGCHAT_STATE_BACKEND"},
	"log_file":          {"RAGCHAT_LOG_FILE"},
	"log_level":         {"LOG_LEVEL"},
	"supabase.url":      {"SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"},
	"supabase.anon_key": {"SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"},
	"askd.addr":         {"ASKD_ADDR"},
	"askd.model":        {"GEMINI_MODEL"},
	"askd.api_key":      {"GEMINI_API_KEY"},
	"askd.require_auth": {"ASKD_REQUIRE_AUTH"},
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("request_timeout", 60*time.Second)
	v.SetDefault("state_dir", defaultStateDir())
	v.SetDefault("state_backend", BackendJSONL)
	v.SetDefault("log_file", "ragchat.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("askd.addr", ":8000")
	v.SetDefault("askd.model", "models/gemini-2.0-flash")
	v.SetDefault("askd.require_auth", false)

	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
}

// ReadFile reads the YAML config file at path, or $HOME/.ragchat.yaml when
// path is empty. A missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".ragchat")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	slog.Debug("Using config file", "file", v.ConfigFileUsed())
	return nil
}

// Load builds and validates a Config from v. SetDefaults must have been
// called on v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BackendURL:     v.GetString("backend_url"),
		RequestTimeout: v.GetDuration("request_timeout"),
		StateDir:       v.GetString("state_dir"),
		StateBackend:   v.GetString("state_backend"),
		LogFile:        v.GetString("log_file"),
		LogLevel:       v.GetString("log_level"),
		Supabase: Supabase{
			URL:     v.GetString("supabase.url"),
			AnonKey: v.GetString("supabase.anon_key"),
		},
		Askd: Askd{
			Addr:        v.GetString("askd.addr"),
			Model:       v.GetString("askd.model"),
			APIKey:      v.GetString("askd.api_key"),
			RequireAuth: v.GetBool("askd.require_auth"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendJSONL, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown state_backend %q (want jsonl, sqlite or memory)", c.StateBackend)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("parse backend_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend_url %q must be an absolute http(s) URL", c.BackendURL)
	}
	return nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragchat"
	}
	return filepath.Join(home, ".ragchat")
}
