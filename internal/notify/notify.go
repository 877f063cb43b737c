// Package notify delivers event notifications to subscribers.
//
// The engine resolves recipients inside the mutating transaction and hands
// the event over; the Dispatcher only sends. Delivery is best effort: a
// failed send is logged and counted and never affects the stored content or
// the remaining recipients.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/transport"
)

const (
	// DefaultWorkers bounds concurrent sends.
	DefaultWorkers = 4

	// DefaultSendTimeout bounds one send.
	DefaultSendTimeout = 10 * time.Second

	authorMax = 16
)

// Observer counts delivery outcomes. Used for metrics.
type Observer interface {
	NotificationSent()
	NotificationFailed()
}

// Dispatcher sends notifications concurrently with a bounded worker count.
//
// Thread-safety: all methods are safe for concurrent use.
type Dispatcher struct {
	transport   transport.Transport
	observer    Observer
	sendTimeout time.Duration
	sem         chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the maximum number of concurrent sends.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = make(chan struct{}, n)
		}
	}
}

// WithObserver reports each delivery outcome to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithSendTimeout bounds each send.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.sendTimeout = timeout
	}
}

// New creates a Dispatcher sending over tr.
func New(tr transport.Transport, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		transport:   tr,
		sendTimeout: DefaultSendTimeout,
		sem:         make(chan struct{}, DefaultWorkers),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch schedules one message per recipient of ev and returns at once.
// Events arriving after Close are dropped with a warning.
func (d *Dispatcher) Dispatch(ev board.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		slog.Warn("dispatcher closed, dropping event", "kind", ev.Kind, "post_id", ev.PostID)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.fanOut(ev)
	}()
}

func (d *Dispatcher) fanOut(ev board.Event) {
	text := Format(ev, d.transport.MaxPayload())

	var wg sync.WaitGroup
	for _, to := range ev.Recipients {
		// Recipients exclude the author already; keep it that way.
		if to == ev.AuthorID {
			continue
		}

		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			slog.Warn("dispatch aborted", "kind", ev.Kind, "post_id", ev.PostID, "to", to)
			d.failed()
			continue
		}

		wg.Add(1)
		go func(to string) {
			defer wg.Done()
			defer func() { <-d.sem }()
			d.send(ev, to, text)
		}(to)
	}
	wg.Wait()
}

func (d *Dispatcher) send(ev board.Event, to, text string) {
	ctx, cancel := context.WithTimeout(d.ctx, d.sendTimeout)
	defer cancel()

	if err := d.transport.Send(ctx, to, text); err != nil {
		slog.Warn("notification not delivered",
			"kind", ev.Kind,
			"post_id", ev.PostID,
			"error", board.TransportSendFailure(to, err),
		)
		d.failed()
		return
	}

	slog.Debug("notification sent", "kind", ev.Kind, "post_id", ev.PostID, "to", to)
	if d.observer != nil {
		d.observer.NotificationSent()
	}
}

func (d *Dispatcher) failed() {
	if d.observer != nil {
		d.observer.NotificationFailed()
	}
}

// Wait blocks until every dispatched event has been fully handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops intake and waits for in-flight sends. If ctx ends first the
// remaining sends are cancelled and ctx's error is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Format renders the constant-shape notification for ev, at most
// maxPayload bytes. The body excerpt is what gets cut.
func Format(ev board.Event, maxPayload int) string {
	author := board.Truncate(ev.Author(), authorMax)

	var head string
	switch ev.Kind {
	case board.EventNewComment:
		head = fmt.Sprintf("New comment on #%d from %s: ", ev.PostID, author)
	default:
		head = fmt.Sprintf("New post #%d from %s: ", ev.PostID, author)
	}

	if len(head) >= maxPayload {
		return board.Truncate(head, maxPayload)
	}
	return head + board.Truncate(ev.Summary, maxPayload-len(head))
}
