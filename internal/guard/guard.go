package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/AndreasThinks/nodeice-board/internal/board"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultMaxAttempts  = 3
)

// SignalFunc delivers sig to pid. Signal 0 probes for existence.
type SignalFunc func(pid int, sig syscall.Signal) error

// Options configures Acquire.
type Options struct {
	// Path is the lock file.
	Path string

	// GracePeriod is how long a signalled process gets to exit before
	// SIGKILL.
	GracePeriod time.Duration

	// PollInterval is how often liveness is checked while waiting.
	PollInterval time.Duration

	// MaxAttempts bounds lock attempts after displacing a holder.
	MaxAttempts int

	// OrphanPatterns are command-line substrings of helper processes to
	// stop before taking the lock.
	OrphanPatterns []string

	// ProcRoot is the proc filesystem mount. Default: /proc.
	ProcRoot string

	// Signal overrides unix.Kill.
	Signal SignalFunc
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.ProcRoot == "" {
		o.ProcRoot = "/proc"
	}
	if o.Signal == nil {
		o.Signal = unix.Kill
	}
}

// Lock is a held instance lock. It lasts until Release or process exit.
type Lock struct {
	file *os.File
	path string

	// Displaced lists the PIDs stopped to obtain the lock.
	Displaced []int
}

// Acquire stops orphaned helpers, then takes the instance lock, displacing
// a live holder if there is one. On success the lock file holds our PID.
//
// Displacing a previous instance is logged as a DuplicateInstance warning;
// it is not an error.
func Acquire(ctx context.Context, opts Options) (*Lock, error) {
	opts.setDefaults()

	lock := &Lock{path: opts.Path}

	if len(opts.OrphanPatterns) > 0 {
		orphans, err := findOrphans(opts.ProcRoot, opts.OrphanPatterns, os.Getpid(), os.Getppid())
		if err != nil {
			slog.Warn("orphan scan failed", "error", err)
		}
		for _, pid := range orphans {
			slog.Warn("stopping orphaned process", "pid", pid)
			if err := terminate(ctx, pid, opts); err != nil {
				return nil, err
			}
			lock.Displaced = append(lock.Displaced, pid)
		}
	}

	f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", opts.Path, err)
		}
		if attempt > opts.MaxAttempts {
			f.Close()
			return nil, fmt.Errorf("lock %s: still held after %d attempts", opts.Path, opts.MaxAttempts)
		}

		pid := readPID(f)
		if pid > 0 && pid != os.Getpid() {
			slog.Warn("previous instance holds the store, stopping it",
				"path", opts.Path,
				"error", board.DuplicateInstance(pid),
			)
			if err := terminate(ctx, pid, opts); err != nil {
				f.Close()
				return nil, err
			}
			lock.Displaced = append(lock.Displaced, pid)
			continue
		}

		// Holder unknown or not yet recorded; give it a moment.
		if err := sleep(ctx, opts.PollInterval); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := writePID(f, os.Getpid()); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, err
	}

	lock.file = f
	slog.Info("instance lock acquired", "path", opts.Path, "pid", os.Getpid())
	return lock, nil
}

// ErrHeld is returned by TryAcquire when another process holds the lock.
var ErrHeld = errors.New("instance lock held")

// TryAcquire takes the instance lock without stopping anyone. It is for
// short maintenance commands that must not run beside a daemon.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		pid := readPID(f)
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("lock %s: %w by pid %d", path, ErrHeld, pid)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	if err := writePID(f, os.Getpid()); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Release clears the PID and drops the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	var errs []error
	if err := f.Truncate(0); err != nil {
		errs = append(errs, fmt.Errorf("truncate lock file: %w", err))
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lock file: %w", err))
	}
	return errors.Join(errs...)
}

// terminate sends SIGTERM, waits up to the grace period, then SIGKILL.
func terminate(ctx context.Context, pid int, opts Options) error {
	if err := opts.Signal(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		slog.Warn("SIGTERM failed, escalating", "pid", pid, "error", err)
	} else if waitExit(ctx, pid, opts, opts.GracePeriod) {
		slog.Info("process exited after SIGTERM", "pid", pid)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Warn("process ignored SIGTERM, sending SIGKILL", "pid", pid, "grace_period", opts.GracePeriod)
	if err := opts.Signal(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	if !waitExit(ctx, pid, opts, max(opts.GracePeriod, time.Second)) {
		return fmt.Errorf("pid %d survived SIGKILL", pid)
	}
	return nil
}

// waitExit polls until pid is gone or timeout elapses.
func waitExit(ctx context.Context, pid int, opts Options, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !alive(pid, opts.Signal) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if sleep(ctx, opts.PollInterval) != nil {
			return false
		}
	}
}

func alive(pid int, signal SignalFunc) bool {
	err := signal(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readPID(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}

func writePID(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	return f.Sync()
}
