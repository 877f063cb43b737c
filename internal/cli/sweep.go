package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AndreasThinks/nodeice-board/internal/engine"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions

	// Clock allows overriding the wall clock (for testing).
	Clock engine.Clock
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return newSweepCommand(&SweepOptions{RootOptions: rootOpts})
}

func newSweepCommand(opts *SweepOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired posts now",
		Long: `Delete every expired post together with its comments and
subscriptions. The daemon does this on its own schedule; this command is
for maintenance while it is stopped, and refuses to run while it holds
the board.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)

			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			lock, err := lockStore(cfg)
			if err != nil {
				return err
			}
			defer releaseLock(lock)

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore(st)

			clock := opts.Clock
			if clock == nil {
				clock = engine.SystemClock{}
			}
			x := engine.NewExecutor(st, clock, executorOptions(cfg))

			n, err := x.Sweep(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "sweep incomplete", err)
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(map[string]int{"expired": n}, fmt.Sprintf("Expired %d posts.", n))
		},
	}
}
