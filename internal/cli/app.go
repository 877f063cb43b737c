package cli

import (
	"io"
	"log/slog"

	"github.com/AndreasThinks/nodeice-board/internal/config"
	"github.com/AndreasThinks/nodeice-board/internal/engine"
	"github.com/AndreasThinks/nodeice-board/internal/guard"
	"github.com/AndreasThinks/nodeice-board/internal/store"
	"github.com/AndreasThinks/nodeice-board/internal/transport"
)

// setupLogging installs a text handler on w. Verbose enables debug level.
func setupLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	slog.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database,
		store.WithRetry(cfg.Store.RetryAttempts, cfg.Store.RetryDelay.Duration),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// lockStore takes the instance lock for a command that writes to the
// store. It refuses to run beside a daemon instead of displacing it.
func lockStore(cfg *config.Config) (*guard.Lock, error) {
	lock, err := guard.TryAcquire(cfg.LockPath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "board is in use by another process (stop the daemon first)", err)
	}
	return lock, nil
}

func releaseLock(lock *guard.Lock) {
	if err := lock.Release(); err != nil {
		slog.Error("error releasing instance lock", "error", err)
	}
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func executorOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		BoardName:    cfg.Board.Name,
		InfoURL:      cfg.Board.InfoURL,
		Lifetime:     cfg.Posts.Lifetime.Duration,
		MaxPayload:   cfg.Transport.MaxPayload,
		ViewComments: cfg.Posts.ViewComments,
		Limits:       cfg.Limits(),
	}
}

func transportConfig(cfg *config.Config) transport.Config {
	return transport.Config{
		Kind:          cfg.Transport.Kind,
		Address:       cfg.Transport.Address,
		MaxPayload:    cfg.Transport.MaxPayload,
		MaxRetries:    cfg.Transport.ConnectRetries,
		RetryDelay:    cfg.Transport.RetryDelay.Duration,
		MaxRetryDelay: 30 * cfg.Transport.RetryDelay.Duration,
	}
}
