package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/transport"
)

// DefaultJobTimeout bounds a single job, including the one still running
// when shutdown begins.
const DefaultJobTimeout = 10 * time.Second

// Notifier delivers committed events to their recipients. Dispatch must
// not block the caller on network sends.
type Notifier interface {
	Dispatch(ev board.Event)
}

// Publisher receives every committed event for display.
type Publisher interface {
	Publish(ev board.Event)
}

// Observer is told what the Run loop did. Used for metrics.
type Observer interface {
	CommandHandled(command string, outcome Outcome)
	ReplyFailed()
	SweepFinished(expired int, err error)
	StatsUpdated(st board.Stats)
}

// Engine is the single serialization point for store mutations.
//
// Inbound messages and sweep requests are queued and processed one at a
// time, in arrival order, by the Run goroutine. Replies go back over the
// transport; events go to the Notifier, which sends concurrently.
//
// Thread-safety model:
//   - Submit(), RequestSweep(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Listen(), RunSweeper(): one goroutine each
type Engine struct {
	exec      *Executor
	transport transport.Transport
	notifier  Notifier
	publisher Publisher
	observer  Observer
	flowGen   FlowTokenGenerator
	queue     *jobQueue

	jobTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sends every committed event to p as well.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithObserver reports loop activity to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithFlowGenerator overrides the UUIDv7 flow token generator.
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(e *Engine) {
		e.flowGen = g
	}
}

// WithJobTimeout bounds each job. Default: DefaultJobTimeout.
func WithJobTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.jobTimeout = d
	}
}

// New creates an Engine.
func New(exec *Executor, tr transport.Transport, n Notifier, opts ...Option) *Engine {
	e := &Engine{
		exec:       exec,
		transport:  tr,
		notifier:   n,
		flowGen:    UUIDv7Generator{},
		queue:      newJobQueue(),
		jobTimeout: DefaultJobTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit queues an inbound message.
// Returns false if the engine has stopped.
func (e *Engine) Submit(msg transport.Message) bool {
	return e.queue.Enqueue(Job{Kind: JobMessage, Message: msg})
}

// RequestSweep queues an expiration sweep.
// Returns false if the engine has stopped.
func (e *Engine) RequestSweep() bool {
	return e.queue.Enqueue(Job{Kind: JobSweep})
}

// Run processes queued jobs until ctx is cancelled or Stop is called.
//
// A job that is running when ctx is cancelled completes on a detached
// context bounded by the job timeout; jobs still queued are dropped.
// Job failures are logged and never stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		if err := ctx.Err(); err != nil {
			e.drop(e.queue.Close())
			slog.Info("engine stopping: context cancelled")
			return err
		}

		job, ok := e.queue.TryDequeue()
		if ok {
			e.process(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			e.drop(e.queue.Close())
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once it notices.
func (e *Engine) Stop() {
	e.drop(e.queue.Close())
}

func (e *Engine) drop(pending []Job) {
	if len(pending) > 0 {
		slog.Warn("dropping queued jobs at shutdown", "count", len(pending))
	}
}

// process runs one job to completion, even if ctx is cancelled meanwhile.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.jobTimeout)
	defer cancel()

	switch job.Kind {
	case JobMessage:
		e.handleMessage(jobCtx, job.Message)
	case JobSweep:
		e.sweep(jobCtx)
	default:
		slog.Error("unknown job kind", "kind", job.Kind)
	}
}

func (e *Engine) handleMessage(ctx context.Context, msg transport.Message) {
	log := slog.With("flow", e.flowGen.Generate(), "from", msg.From)

	res, ok := e.exec.Handle(ctx, msg.From, msg.FromName, msg.Text)
	if !ok {
		log.Debug("ignoring non-command message")
		return
	}

	switch res.Outcome {
	case OutcomeOK:
		log.Info("command handled", "command", res.Command, "events", len(res.Events))
	case OutcomeRejected:
		log.Info("command rejected", "command", res.Command, "reason", res.Err)
	default:
		log.Error("command failed", "command", res.Command, "error", res.Err)
	}

	for _, text := range res.Replies {
		if err := e.transport.Send(ctx, msg.From, text); err != nil {
			log.Warn("reply not delivered", "error", board.TransportSendFailure(msg.From, err))
			if e.observer != nil {
				e.observer.ReplyFailed()
			}
			break
		}
	}

	for _, ev := range res.Events {
		log.Debug("event committed",
			"kind", ev.Kind,
			"post_id", ev.PostID,
			"recipients", len(ev.Recipients),
		)
		if e.notifier != nil {
			e.notifier.Dispatch(ev)
		}
		if e.publisher != nil {
			e.publisher.Publish(ev)
		}
	}

	if e.observer != nil {
		e.observer.CommandHandled(res.Command, res.Outcome)
		if len(res.Events) > 0 || res.Command == "subscribe" || res.Command == "unsubscribe" {
			e.refreshStats(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	n, err := e.exec.Sweep(ctx)
	if err != nil {
		slog.Error("sweep incomplete", "expired", n, "error", err)
	} else {
		slog.Info("sweep finished", "expired", n)
	}

	if e.observer != nil {
		e.observer.SweepFinished(n, err)
		e.refreshStats(ctx)
	}
}

func (e *Engine) refreshStats(ctx context.Context) {
	st, err := e.exec.Stats(ctx)
	if err != nil {
		slog.Warn("stats refresh failed", "error", err)
		return
	}
	e.observer.StatsUpdated(st)
}

// Listen feeds inbound transport messages to the queue until ctx is
// cancelled or the transport ends. This is the only blocking read in the
// command path.
func (e *Engine) Listen(ctx context.Context) error {
	for {
		msg, err := e.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				slog.Info("transport input ended", "reason", err)
				return nil
			}
			return err
		}
		if !e.Submit(msg) {
			return nil
		}
	}
}

// RunSweeper requests a sweep immediately and then every interval until
// ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.RequestSweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.RequestSweep() {
				return
			}
		}
	}
}

// Announce broadcasts text to the whole mesh.
func (e *Engine) Announce(ctx context.Context, text string) error {
	return e.transport.Broadcast(ctx, board.Truncate(text, e.transport.MaxPayload()))
}

// Stats returns the current aggregate counts.
func (e *Engine) Stats(ctx context.Context) (board.Stats, error) {
	return e.exec.Stats(ctx)
}
