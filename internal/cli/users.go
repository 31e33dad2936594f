package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/service/users"
	"github.com/vovakirdan/wirenote/internal/store"
	"github.com/vovakirdan/wirenote/internal/store/sqlite"
)

// NewUsersCommand creates the users command group.
func NewUsersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUsersDeleteCommand(rootOpts), newUsersRoleCommand(rootOpts))
	return cmd
}

func newUsersDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "delete <user-id>",
		Short:        "Delete a user together with their messages and notifications",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			cfg, logger, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			st, err := sqlite.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			engine := core.NewEngine(logger, core.WithMaxThreadDepth(cfg.MaxThreadDepth))
			removed, stats, err := users.New(st, engine, nil, logger).DeleteAccount(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !removed {
				fmt.Fprintf(out, "user %d not found\n", userID)
				return nil
			}
			fmt.Fprintf(out, "deleted user %d: %d sent, %d received, %d notifications\n",
				userID, stats.SentMessages, stats.ReceivedMessages, stats.Notifications)
			return nil
		},
	}
}

func newUsersRoleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "role <user-id> <user|moderator|admin>",
		Short:        "Change a user's role",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			cfg, logger, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			st, err := sqlite.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			engine := core.NewEngine(logger, core.WithMaxThreadDepth(cfg.MaxThreadDepth))
			err = users.New(st, engine, nil, logger).SetRole(cmd.Context(), userID, args[1])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %d not found", userID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d role set to %s\n", userID, args[1])
			return nil
		},
	}
}
