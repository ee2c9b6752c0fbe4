package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/daymake/internal/config"
	"github.com/me/daymake/internal/logging"
)

// Version is set at build time with -ldflags "-X github.com/me/daymake/internal/cli.Version=...".
var Version = "dev"

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagJobsDir   string
	flagDBPath    string
	flagLogDir    string

	cfg    config.Config
	logger *slog.Logger
)

// flagKeys maps command-line flags to configuration keys. A flag overrides
// the file and environment only when it is set.
var flagKeys = map[string]string{
	"log-level":  "log_level",
	"log-format": "log_format",
	"jobs-dir":   "jobs_dir",
	"db":         "db_path",
	"log-dir":    "log_dir",
	"listen":     "listen_addr",
}

// NewRootCmd creates the root cobra command for the daymake CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "daymake",
		Short: "daymake runs a catalog of shell jobs once per run date",
		Long: "daymake runs a catalog of named shell jobs once per run date, gating each job\n" +
			"on a start time and on the completion of the jobs it depends on.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(config.WithConfigFile(flagConfig))
			for name, key := range flagKeys {
				if f := cmd.Flags().Lookup(name); f != nil {
					if err := loader.Viper().BindPFlag(key, f); err != nil {
						return fmt.Errorf("bind flag %s: %w", name, err)
					}
				}
			}

			loaded, err := loader.Load()
			if err != nil {
				return err
			}
			if flagDebug {
				loaded.LogLevel = "debug"
			}
			cfg = loaded
			logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			if used := loader.ConfigFileUsed(); used != "" {
				logger.Debug("config loaded", "file", used)
			}
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default $XDG_CONFIG_HOME/daymake/config.yaml)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&flagJobsDir, "jobs-dir", "", "Job definition directory")
	pf.StringVar(&flagDBPath, "db", "", "SQLite database path")
	pf.StringVar(&flagLogDir, "log-dir", "", "Directory of per-job log files")

	root.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}
