package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// AppName names the xdg subdirectories and the environment prefix.
const AppName = "daymake"

// Config holds configuration for the daymake daemon.
type Config struct {
	JobsDir        string        `mapstructure:"jobs_dir"`        // Job definition directory
	LogDir         string        `mapstructure:"log_dir"`         // Per-job log files
	DBPath         string        `mapstructure:"db_path"`         // SQLite database path (":memory:" for testing)
	DaemonLog      string        `mapstructure:"daemon_log"`      // Optional file receiving a copy of the daemon log
	PollInterval   time.Duration `mapstructure:"poll_interval"`   // Scheduler tick cadence
	Timezone       string        `mapstructure:"timezone"`        // Zone of start_after times and default run dates
	Shell          string        `mapstructure:"shell"`           // Shell running job commands
	ListenAddr     string        `mapstructure:"listen_addr"`     // Diagnostics listener, empty disables it
	ReportSchedule string        `mapstructure:"report_schedule"` // Cron spec of the status summary, empty disables it
	LogLevel       string        `mapstructure:"log_level"`       // debug, info, warn, error
	LogFormat      string        `mapstructure:"log_format"`      // text, json
}

// Default returns sensible defaults rooted in the XDG base directories.
func Default() Config {
	return Config{
		JobsDir:        filepath.Join(xdg.ConfigHome, AppName, "jobs"),
		LogDir:         filepath.Join(xdg.StateHome, AppName, "logs"),
		DBPath:         filepath.Join(xdg.DataHome, AppName, AppName+".db"),
		PollInterval:   5 * time.Second,
		Timezone:       "UTC",
		Shell:          "/bin/sh",
		ReportSchedule: "@every 10m",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Loader reads configuration from defaults, an optional file and DAYMAKE_*
// environment variables, in increasing order of precedence.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit configuration file. It must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.configFile = path
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{v: viper.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Viper exposes the underlying instance so command flags can be bound to it.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (Config, error) {
	def := Default()
	v := l.v
	v.SetDefault("jobs_dir", def.JobsDir)
	v.SetDefault("log_dir", def.LogDir)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("daemon_log", def.DaemonLog)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("timezone", def.Timezone)
	v.SetDefault("shell", def.Shell)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("report_schedule", def.ReportSchedule)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", l.configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.JobsDir == "" {
		return errors.New("jobs_dir is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.ReportSchedule != "" {
		if _, err := cron.ParseStandard(c.ReportSchedule); err != nil {
			return fmt.Errorf("report_schedule %q: %w", c.ReportSchedule, err)
		}
	}
	return nil
}

// Location returns the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
