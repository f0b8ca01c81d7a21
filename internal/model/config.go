package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// FetchAllWindow is the tickets_last_updated_n_days_ago value that selects
// a single full export instead of continuous polling.
const FetchAllWindow = -1

// DefaultTimeSpentLabel is the ticket field title of the time tracking
// app's "total time spent" custom field.
const DefaultTimeSpentLabel = "Total time spent (sec)"

// Sink names accepted in the sinks list.
const (
	SinkStdout = "stdout"
	SinkStore  = "store"
	SinkRedis  = "redis"
	SinkIndex  = "index"
)

// APIConfig tunes the upstream REST client.
type APIConfig struct {
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	RetryCount int `mapstructure:"retry_count" yaml:"retry_count"`
}

// LogConfig controls log level and optional rotating file output.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// StoreConfig locates the local SQLite record store. An empty path
// disables the store.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr         string `mapstructure:"addr" yaml:"addr"`
	Password     string `mapstructure:"password" yaml:"password"`
	DB           int    `mapstructure:"db" yaml:"db"`
	StreamPrefix string `mapstructure:"stream_prefix" yaml:"stream_prefix"`
	MaxLen       int64  `mapstructure:"max_len" yaml:"max_len"`
}

// IndexConfig configures the search index sink.
type IndexConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Config is the top-level application configuration.
type Config struct {
	// Domain is the helpdesk subdomain ("acme"), host ("acme.zendesk.com")
	// or full base URL.
	Domain string `mapstructure:"domain" yaml:"domain"`

	// User is the agent email used for authentication.
	User string `mapstructure:"user" yaml:"user"`

	// Password and APIToken are mutually exclusive.
	Password string `mapstructure:"password" yaml:"password"`
	APIToken string `mapstructure:"api_token" yaml:"api_token"`

	Organizations bool `mapstructure:"organizations" yaml:"organizations"`
	Users         bool `mapstructure:"users" yaml:"users"`
	Tickets       bool `mapstructure:"tickets" yaml:"tickets"`
	Topics        bool `mapstructure:"topics" yaml:"topics"`
	Comments      bool `mapstructure:"comments" yaml:"comments"`

	AppendCommentsToTickets bool `mapstructure:"append_comments_to_tickets" yaml:"append_comments_to_tickets"`

	// TicketsLastUpdatedNDaysAgo is the incremental export look-back window.
	// FetchAllWindow (-1) exports everything once and exits.
	TicketsLastUpdatedNDaysAgo int `mapstructure:"tickets_last_updated_n_days_ago" yaml:"tickets_last_updated_n_days_ago"`

	// SleepBetweenRuns is the pause between cycles, in minutes.
	SleepBetweenRuns int `mapstructure:"sleep_between_runs" yaml:"sleep_between_runs"`

	// Schedule is an optional standard cron expression. When set it
	// replaces SleepBetweenRuns.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`

	TimeSpentLabel string `mapstructure:"time_spent_label" yaml:"time_spent_label"`

	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Sinks   []string      `mapstructure:"sinks" yaml:"sinks"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Index   IndexConfig   `mapstructure:"index" yaml:"index"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/helpdesk-sync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "helpdesk-sync", "config.yaml")
}

// setDefaults registers every key so that environment overrides resolve
// even when the file omits them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("domain", "")
	v.SetDefault("user", "")
	v.SetDefault("password", "")
	v.SetDefault("api_token", "")
	v.SetDefault("organizations", true)
	v.SetDefault("users", true)
	v.SetDefault("tickets", true)
	v.SetDefault("topics", true)
	v.SetDefault("comments", false)
	v.SetDefault("append_comments_to_tickets", false)
	v.SetDefault("tickets_last_updated_n_days_ago", 1)
	v.SetDefault("sleep_between_runs", 30)
	v.SetDefault("schedule", "")
	v.SetDefault("time_spent_label", DefaultTimeSpentLabel)
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("store.path", "")
	v.SetDefault("sinks", []string{SinkStdout})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream_prefix", "helpdesk:")
	v.SetDefault("index.url", "")
	v.SetDefault("index.user", "")
	v.SetDefault("index.password", "")
	v.SetDefault("index.prefix", "helpdesk-")
	v.SetDefault("metrics.addr", "")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// HELPDESK_SYNC_* environment variables override file values. A missing
// file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HELPDESK_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// HasCredential reports whether a password or API token is configured.
func (c *Config) HasCredential() bool {
	return c.Password != "" || c.APIToken != ""
}

// CredentialKey is the keyring entry that holds the API token for this
// domain and user.
func (c *Config) CredentialKey() string {
	return c.Domain + "/" + c.User
}

// Validate checks required keys and cross-key constraints.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Domain) == "" {
		problems = append(problems, "domain is required")
	}
	if strings.TrimSpace(c.User) == "" {
		problems = append(problems, "user is required")
	}
	switch {
	case c.Password != "" && c.APIToken != "":
		problems = append(problems, "set only one of password or api_token")
	case c.Password == "" && c.APIToken == "":
		problems = append(problems, "one of password or api_token is required")
	}
	if c.AppendCommentsToTickets && !c.Comments {
		problems = append(problems, "append_comments_to_tickets requires comments")
	}
	if c.TicketsLastUpdatedNDaysAgo < FetchAllWindow {
		problems = append(problems, "tickets_last_updated_n_days_ago must be -1 or >= 0")
	}
	if c.Schedule == "" && !c.FetchAll() && c.SleepBetweenRuns < 1 {
		problems = append(problems, "sleep_between_runs must be at least 1 minute")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			problems = append(problems, fmt.Sprintf("invalid schedule %q: %v", c.Schedule, err))
		}
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkStdout:
		case SinkStore:
			if c.Store.Path == "" {
				problems = append(problems, "store sink requires store.path")
			}
		case SinkRedis:
			if c.Redis.Addr == "" {
				problems = append(problems, "redis sink requires redis.addr")
			}
		case SinkIndex:
			if c.Index.URL == "" {
				problems = append(problems, "index sink requires index.url")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown sink %q", s))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// FetchAll reports whether the configuration selects a one-shot full export.
func (c *Config) FetchAll() bool {
	return c.TicketsLastUpdatedNDaysAgo == FetchAllWindow
}

// SleepInterval returns the pause between cycles.
func (c *Config) SleepInterval() time.Duration {
	return time.Duration(c.SleepBetweenRuns) * time.Minute
}

// BaseURL resolves Domain to the API root URL.
func (c *Config) BaseURL() string {
	d := strings.TrimRight(strings.TrimSpace(c.Domain), "/")
	switch {
	case strings.Contains(d, "://"):
		return d
	case strings.Contains(d, "."):
		return "https://" + d
	default:
		return "https://" + d + ".zendesk.com"
	}
}

// APITimeout returns the per-request timeout for the REST client.
func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.API.TimeoutSec) * time.Second
}
