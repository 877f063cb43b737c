package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/config"
	"github.com/AndreasThinks/nodeice-board/internal/engine"
	"github.com/AndreasThinks/nodeice-board/internal/feed"
	"github.com/AndreasThinks/nodeice-board/internal/guard"
	"github.com/AndreasThinks/nodeice-board/internal/metrics"
	"github.com/AndreasThinks/nodeice-board/internal/notify"
	"github.com/AndreasThinks/nodeice-board/internal/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// FlowGenerator allows overriding the flow token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	FlowGenerator engine.FlowTokenGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the board daemon",
		Long: `Start the board daemon.

The daemon takes the instance lock (stopping any previous instance still
holding the database), connects to the radio bridge, and serves commands
until interrupted. Expired posts are swept at startup and on the
configured interval.

Example:
  nodeice run
  nodeice run --config /etc/nodeice/nodeice.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	lock, err := guard.Acquire(ctx, guard.Options{
		Path:           cfg.LockPath(),
		GracePeriod:    cfg.Guard.GracePeriod.Duration,
		OrphanPatterns: cfg.Guard.OrphanPatterns,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to acquire instance lock", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Error("error releasing instance lock", "error", err)
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	tr, err := transport.Open(ctx, transportConfig(cfg))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect transport", err)
	}
	defer tr.Close()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen for metrics", err)
		}
		go func() {
			if err := m.Serve(ctx, ln); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	bus := feed.New()
	defer bus.Close()
	watchFeed(ctx, bus)

	dispatcher := notify.New(tr,
		notify.WithWorkers(cfg.Notify.Workers),
		notify.WithObserver(m),
	)

	exec := engine.NewExecutor(st, engine.SystemClock{}, executorOptions(cfg))
	engineOpts := []engine.Option{
		engine.WithPublisher(bus),
		engine.WithObserver(m),
		engine.WithJobTimeout(cfg.ShutdownTimeout.Duration),
	}
	if opts.FlowGenerator != nil {
		engineOpts = append(engineOpts, engine.WithFlowGenerator(opts.FlowGenerator))
	}
	eng := engine.New(exec, tr, dispatcher, engineOpts...)

	if stats, err := eng.Stats(ctx); err == nil {
		m.StatsUpdated(stats)
		slog.Info("board loaded",
			"active_posts", stats.ActivePosts,
			"comments", stats.TotalComments,
			"subscriptions", stats.TotalSubscriptions,
		)
	}

	if cfg.Announce {
		if err := eng.Announce(ctx, onlineAnnouncement(cfg.Board)); err != nil {
			slog.Warn("online announcement failed", "error", err)
		}
	}

	var wg sync.WaitGroup
	var listenErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		listenErr = eng.Listen(ctx)
		// Without input there is nothing left to serve.
		cancel()
	}()
	go func() {
		defer wg.Done()
		eng.RunSweeper(ctx, cfg.Sweep.Interval.Duration)
	}()

	slog.Info("board online", "name", cfg.Board.Name, "transport", cfg.Transport.Kind)
	runErr := eng.Run(ctx)
	wg.Wait()

	shutdown(dispatcher, cfg)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}
	if listenErr != nil {
		return WrapExitError(ExitFailure, "transport failed", listenErr)
	}

	slog.Info("board stopped gracefully")
	return nil
}

// shutdown gives in-flight notifications until the shutdown timeout.
func shutdown(d *notify.Dispatcher, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		slog.Warn("notifications abandoned at shutdown", "error", err)
	}
}

// watchFeed logs committed events as they happen.
func watchFeed(ctx context.Context, bus *feed.Bus) {
	ch := make(chan board.Event, 32)
	if err := bus.Subscribe("log", ch); err != nil {
		slog.Warn("feed subscription failed", "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				slog.Info("board activity",
					"kind", ev.Kind,
					"post_id", ev.PostID,
					"author", ev.Author(),
					"summary", ev.Summary,
				)
			}
		}
	}()
}

func onlineAnnouncement(b config.BoardConfig) string {
	text := fmt.Sprintf("%s is now online! Send !help for available commands.", b.Name)
	if b.InfoURL != "" {
		text += " More info: " + b.InfoURL
	}
	return text
}
