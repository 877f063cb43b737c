package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AndreasThinks/nodeice-board/internal/engine"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Print board statistics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), rootOpts.Verbose)

			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore(st)

			x := engine.NewExecutor(st, engine.SystemClock{}, executorOptions(cfg))
			stats, err := x.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read stats", err)
			}

			text := fmt.Sprintf(
				"Active posts:   %d\nComments:       %d\nMessages:       %d\nUnique authors: %d\nSubscriptions:  %d",
				stats.ActivePosts,
				stats.TotalComments,
				stats.TotalMessages,
				stats.UniqueAuthors,
				stats.TotalSubscriptions,
			)
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(stats, text)
		},
	}
}
