package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

// Tx is a store transaction. All contract operations are defined on Tx so
// that a command's reads, writes and recipient resolution share one snapshot.
type Tx struct {
	tx *sql.Tx
}

// Update runs fn in a read-write transaction.
//
// The transaction commits if fn returns nil and rolls back otherwise. Busy
// or locked errors retry the whole transaction with exponential backoff;
// fn must therefore be safe to run more than once. When retries are
// exhausted the returned error is a board.StoreUnavailable.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	return s.withRetry(ctx, "update", func() error {
		return s.runTx(ctx, fn)
	})
}

// View runs fn in a transaction that is always rolled back.
// Retries like Update.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	return s.withRetry(ctx, "view", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()
		return fn(&Tx{tx: tx})
	})
}

func (s *Store) runTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// withRetry retries op while it fails with a transient SQLite error.
//
// Backoff schedule with the default 50ms delay and 3 retries:
//   - Retry 1: 50ms
//   - Retry 2: 100ms
//   - Retry 3: 200ms
func (s *Store) withRetry(ctx context.Context, name string, op func() error) error {
	attempt := 0
	for {
		err := op()
		if err == nil || !isTransient(err) {
			return err
		}

		attempt++
		if attempt > s.opts.retryAttempts {
			slog.Error("store retries exhausted", "op", name, "attempts", attempt, "error", err)
			return board.StoreUnavailable(err)
		}

		delay := backoff(attempt, s.opts.retryDelay, s.opts.maxRetryDelay)
		slog.Warn("store busy, retrying",
			"op", name,
			"attempt", attempt,
			"max_retries", s.opts.retryAttempts,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return board.StoreUnavailable(errors.Join(err, ctx.Err()))
		}
	}
}

// backoff returns base * 2^(attempt-1), capped at limit.
func backoff(attempt int, base, limit time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return min(delay, limit)
}

// isTransient reports whether err is a SQLite busy or locked condition.
func isTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
