package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/command"
	"github.com/AndreasThinks/nodeice-board/internal/store"
)

// Outcome classifies how a command ended, for logs and metrics.
type Outcome string

const (
	// OutcomeOK means the command was applied.
	OutcomeOK Outcome = "ok"

	// OutcomeRejected means the input was invalid or referenced missing
	// content. Nothing was written.
	OutcomeRejected Outcome = "rejected"

	// OutcomeFailed means storage failed. Nothing was written.
	OutcomeFailed Outcome = "failed"
)

// Result is everything produced by one command.
type Result struct {
	// Command is the command name, or "" when the line did not parse.
	Command string
	Outcome Outcome

	// Replies go back to the sender in order. Each fits the payload budget.
	Replies []string

	// Events were committed together with the mutation that produced them.
	Events []board.Event

	// Err is the classified failure behind a non-OK outcome.
	Err error
}

// Options configures an Executor.
type Options struct {
	BoardName string

	// InfoURL, if set, closes the !help reply.
	InfoURL string

	// Lifetime is added to created_at to get expires_at.
	Lifetime time.Duration

	// MaxPayload is the byte budget of each reply.
	MaxPayload int

	// ViewComments is how many of the latest comments !view shows.
	ViewComments int

	Limits command.Limits
}

// Executor applies commands to the store.
//
// Each command runs in exactly one store transaction. Events and their
// recipient sets are computed inside the mutating transaction, so a
// committed mutation always has its events and a rolled back one has none.
//
// Thread-safety: Executor holds no mutable state. The engine calls it from
// the single Run goroutine to keep mutations serialized.
type Executor struct {
	store *store.Store
	clock Clock
	opts  Options
}

// NewExecutor creates an Executor.
func NewExecutor(s *store.Store, clock Clock, opts Options) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Executor{store: s, clock: clock, opts: opts}
}

// Handle parses and executes one inbound line.
// Returns false when the line is not addressed to the board.
func (x *Executor) Handle(ctx context.Context, sender, senderName, line string) (Result, bool) {
	cmd, err := command.Parse(line, x.opts.Limits)
	if err != nil {
		return x.reject(Result{}, err), true
	}
	if cmd == nil {
		return Result{}, false
	}
	return x.Execute(ctx, sender, senderName, cmd), true
}

// Execute applies cmd on behalf of sender.
func (x *Executor) Execute(ctx context.Context, sender, senderName string, cmd command.Command) Result {
	res := Result{Command: cmd.Name(), Outcome: OutcomeOK}

	// Timestamps are stored with millisecond precision.
	now := x.clock.Now().UTC().Truncate(time.Millisecond)

	var err error
	switch c := cmd.(type) {
	case command.Help:
		res.Replies = formatHelp(x.opts.BoardName, x.opts.InfoURL, x.opts.MaxPayload)

	case command.Post:
		err = x.post(ctx, &res, sender, senderName, c, now)

	case command.List:
		err = x.list(ctx, &res, c, now)

	case command.View:
		err = x.view(ctx, &res, c, now)

	case command.Comment:
		err = x.comment(ctx, &res, sender, senderName, c, now)

	case command.Subscribe:
		err = x.subscribe(ctx, &res, sender, c, now)

	case command.Unsubscribe:
		err = x.unsubscribe(ctx, &res, sender, c)

	case command.Subscriptions:
		err = x.subscriptions(ctx, &res, sender, now)

	default:
		err = fmt.Errorf("unhandled command type %T", cmd)
	}

	if err != nil {
		return x.reject(res, err)
	}
	return res
}

func (x *Executor) post(ctx context.Context, res *Result, sender, senderName string, c command.Post, now time.Time) error {
	var ev board.Event
	err := x.store.Update(ctx, func(tx *store.Tx) error {
		p, err := tx.CreatePost(ctx, board.Post{
			AuthorID:   sender,
			AuthorName: senderName,
			Body:       c.Body,
			CreatedAt:  now,
			ExpiresAt:  now.Add(x.opts.Lifetime),
		})
		if err != nil {
			return err
		}

		ev = board.Event{
			Kind:       board.EventNewPost,
			PostID:     p.ID,
			AuthorID:   sender,
			AuthorName: senderName,
			Summary:    board.Preview(p.Body, SummaryMax),
			CreatedAt:  now,
		}
		ev.Recipients, err = tx.ResolveRecipients(ctx, ev)
		return err
	})
	if err != nil {
		return err
	}

	res.Replies = []string{formatPostCreated(ev.PostID)}
	res.Events = []board.Event{ev}
	return nil
}

func (x *Executor) list(ctx context.Context, res *Result, c command.List, now time.Time) error {
	var posts []board.Post
	err := x.store.View(ctx, func(tx *store.Tx) error {
		var err error
		posts, err = tx.ListRecentPosts(ctx, now, c.Limit)
		return err
	})
	if err != nil {
		return err
	}

	res.Replies = []string{formatList(posts, now, x.opts.MaxPayload)}
	return nil
}

func (x *Executor) view(ctx context.Context, res *Result, c command.View, now time.Time) error {
	var (
		post     board.Post
		comments []board.Comment
		total    int
	)
	err := x.store.View(ctx, func(tx *store.Tx) error {
		var err error
		post, err = liveReadPost(ctx, tx, c.PostID, now)
		if err != nil {
			return err
		}
		if comments, err = tx.ListComments(ctx, c.PostID, x.opts.ViewComments); err != nil {
			return err
		}
		total, err = tx.CountComments(ctx, c.PostID)
		return err
	})
	if err != nil {
		return err
	}

	res.Replies = formatView(post, comments, total, now, x.opts.MaxPayload)
	return nil
}

func (x *Executor) comment(ctx context.Context, res *Result, sender, senderName string, c command.Comment, now time.Time) error {
	var ev board.Event
	err := x.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := liveReadPost(ctx, tx, c.PostID, now); err != nil {
			return err
		}

		cm, err := tx.CreateComment(ctx, board.Comment{
			PostID:     c.PostID,
			AuthorID:   sender,
			AuthorName: senderName,
			Body:       c.Body,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		ev = board.Event{
			Kind:       board.EventNewComment,
			PostID:     c.PostID,
			CommentID:  cm.ID,
			AuthorID:   sender,
			AuthorName: senderName,
			Summary:    board.Preview(cm.Body, SummaryMax),
			CreatedAt:  now,
		}
		ev.Recipients, err = tx.ResolveRecipients(ctx, ev)
		return err
	})
	if err != nil {
		return err
	}

	res.Replies = []string{formatCommentAdded(c.PostID)}
	res.Events = []board.Event{ev}
	return nil
}

func (x *Executor) subscribe(ctx context.Context, res *Result, sender string, c command.Subscribe, now time.Time) error {
	var created bool
	err := x.store.Update(ctx, func(tx *store.Tx) error {
		if !c.Scope.All() {
			if _, err := liveReadPost(ctx, tx, c.Scope.PostID(), now); err != nil {
				return err
			}
		}

		var err error
		created, err = tx.UpsertSubscription(ctx, board.Subscription{
			Subscriber: sender,
			Scope:      c.Scope,
			CreatedAt:  now,
		})
		return err
	})
	if err != nil {
		return err
	}

	res.Replies = []string{formatSubscribed(c.Scope, created)}
	return nil
}

func (x *Executor) unsubscribe(ctx context.Context, res *Result, sender string, c command.Unsubscribe) error {
	var removed bool
	err := x.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		removed, err = tx.DeleteSubscription(ctx, sender, c.Scope)
		return err
	})
	if err != nil {
		return err
	}

	res.Replies = []string{formatUnsubscribed(c.Scope, removed)}
	return nil
}

func (x *Executor) subscriptions(ctx context.Context, res *Result, sender string, now time.Time) error {
	var subs []board.Subscription
	err := x.store.View(ctx, func(tx *store.Tx) error {
		var err error
		subs, err = tx.ListSubscriptions(ctx, sender)
		return err
	})
	if err != nil {
		return err
	}

	res.Replies = formatSubscriptions(subs, now, x.opts.MaxPayload)
	return nil
}

// Sweep deletes every post expired at the current time.
func (x *Executor) Sweep(ctx context.Context) (int, error) {
	return x.store.DeleteExpired(ctx, x.clock.Now().UTC())
}

// Stats returns aggregate counts at the current time.
func (x *Executor) Stats(ctx context.Context) (board.Stats, error) {
	return x.store.Stats(ctx, x.clock.Now().UTC())
}

// reject fills res for a failed command. Errors that are not already
// classified are treated as storage failures.
func (x *Executor) reject(res Result, err error) Result {
	res.Events = nil
	res.Err = err
	res.Outcome = OutcomeRejected

	be, ok := board.AsError(err)
	if !ok || be.Code == board.ErrCodeStoreUnavailable {
		res.Outcome = OutcomeFailed
		if !ok {
			res.Err = board.StoreUnavailable(err)
		}
	}

	res.Replies = []string{formatError(res.Err, x.opts.MaxPayload)}
	return res
}

// liveReadPost returns the post if it exists and has not expired.
// Otherwise returns a board NotFound error.
func liveReadPost(ctx context.Context, tx *store.Tx, id int64, now time.Time) (board.Post, error) {
	p, err := tx.GetPost(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.Expired(now)) {
		return board.Post{}, board.NotFound(id)
	}
	return p, err
}
