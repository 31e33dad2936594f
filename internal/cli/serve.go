package cli

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirenote/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP and websocket server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Server.Addr).Msg("starting wirenote server")
			if err := application.Run(cmd.Context()); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address override")
	return cmd
}
