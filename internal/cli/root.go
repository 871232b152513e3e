// Package cli implements the gibiertrace command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"gibiertrace/internal/config"
	"gibiertrace/internal/logging"
)

// RootOptions holds global flags and the configuration resolved for the
// running command.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	// Getenv overrides environment lookup (for testing). Defaults to os.Getenv.
	Getenv func(string) string

	config config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gibiertrace",
		Short:         "Chain-of-custody service for wild game carcasses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newBackupCommand(opts))
	cmd.AddCommand(newRestoreCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath, o.Getenv)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	o.config = cfg
	o.logger = logger
	return nil
}
