package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirenote/internal/config"
	"github.com/vovakirdan/wirenote/internal/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	DBPath     string
}

// NewRootCommand creates the root command. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	serve := NewServeCommand(opts)

	cmd := &cobra.Command{
		Use:   "wirenote",
		Short: "wirenote - direct messages with threads and notifications",
		Long: `A direct-messaging backend that keeps notifications and edit history
consistent with every message write, behind a rate limiter and an access window.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main reports the error
		RunE:          serve.RunE,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path override")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewUsersCommand(opts))

	return cmd
}

// loadConfig resolves configuration and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, *zerolog.Logger, error) {
	bootLevel := opts.LogLevel
	if bootLevel == "" {
		bootLevel = "info"
	}

	cfg, path, err := config.Load(log.New(bootLevel), opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.DBPath != "" {
		cfg.Database.Path = opts.DBPath
	}

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return &cfg, logger, nil
}
