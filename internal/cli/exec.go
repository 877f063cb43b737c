package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/engine"
	"github.com/AndreasThinks/nodeice-board/internal/notify"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	As   string
	Name string

	// Clock allows overriding the wall clock (for testing).
	Clock engine.Clock
}

// ExecResult is the JSON payload of exec.
type ExecResult struct {
	Command       string         `json:"command"`
	Outcome       string         `json:"outcome"`
	Replies       []string       `json:"replies"`
	Notifications []Notification `json:"notifications"`
}

// Notification is a message that would have been sent to a subscriber.
type Notification struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	return newExecCommand(&ExecOptions{RootOptions: rootOpts})
}

func newExecCommand(opts *ExecOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <command line>",
		Short: "Execute one board command locally",
		Long: `Execute one board command against the database as if it had arrived
from a mesh node, and print the reply.

Notifications are printed instead of transmitted.

Example:
  nodeice exec --as '!a1b2c3d4' '!post Community garden meeting Saturday'
  nodeice exec --as '!a1b2c3d4' --format json '!list 3'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "node identifier of the sender (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name of the sender")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func runExec(opts *ExecOptions, line string, cmd *cobra.Command) error {
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

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	res, ok := x.Handle(cmd.Context(), opts.As, opts.Name, line)
	if !ok {
		_ = out.Error(string(board.ErrCodeUnknownCommand), "not a board command: commands start with !")
		return NewExitError(ExitCommandError, "not a board command")
	}

	data := ExecResult{
		Command:       res.Command,
		Outcome:       string(res.Outcome),
		Replies:       res.Replies,
		Notifications: []Notification{},
	}
	for _, ev := range res.Events {
		text := notify.Format(ev, cfg.Transport.MaxPayload)
		for _, to := range ev.Recipients {
			data.Notifications = append(data.Notifications, Notification{To: to, Text: text})
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(res.Replies, "\n"))
	for _, n := range data.Notifications {
		b.WriteString("\n[notify " + n.To + "] " + n.Text)
	}
	if err := out.Success(data, b.String()); err != nil {
		return err
	}

	if res.Outcome == engine.OutcomeFailed {
		return WrapExitError(ExitFailure, "command failed", res.Err)
	}
	return nil
}
