package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"
)

// Config selects and tunes the bridge link.
type Config struct {
	// Kind is "stdio", "tcp" or "unix".
	Kind    string
	Address string

	MaxPayload int

	// Connection attempts for tcp and unix, with exponential backoff
	// starting at RetryDelay and capped at MaxRetryDelay.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Open connects to the bridge described by cfg.
//
// Socket kinds retry with exponential backoff:
//   - Attempt 1: RetryDelay
//   - Attempt 2: 2 * RetryDelay
//   - Attempt 3: 4 * RetryDelay (capped at MaxRetryDelay)
func Open(ctx context.Context, cfg Config) (Transport, error) {
	switch cfg.Kind {
	case "", "stdio":
		slog.Info("transport connected", "kind", "stdio")
		return NewStream(os.Stdin, os.Stdout, nopCloser{}, cfg.MaxPayload), nil

	case "tcp", "unix":
		conn, err := dialWithRetry(ctx, cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("transport connected", "kind", cfg.Kind, "address", cfg.Address)
		return NewStream(conn, conn, conn, cfg.MaxPayload), nil

	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

func dialWithRetry(ctx context.Context, cfg Config) (net.Conn, error) {
	var d net.Dialer
	attempt := 0
	for {
		conn, err := d.DialContext(ctx, cfg.Kind, cfg.Address)
		if err == nil {
			return conn, nil
		}

		attempt++
		if attempt > cfg.MaxRetries {
			return nil, fmt.Errorf("dial %s %s: max retries exceeded (%d attempts): %w",
				cfg.Kind, cfg.Address, attempt, err)
		}

		delay := retryDelay(attempt, cfg.RetryDelay, cfg.MaxRetryDelay)
		slog.Warn("bridge not reachable, retrying",
			"kind", cfg.Kind,
			"address", cfg.Address,
			"attempt", attempt,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// retryDelay returns base * 2^(attempt-1), capped at limit.
func retryDelay(attempt int, base, limit time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}
	if limit > 0 {
		return min(delay, limit)
	}
	return delay
}

// nopCloser leaves the process's stdio open on Close.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

var _ io.Closer = nopCloser{}
