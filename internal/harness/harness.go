package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/config"
	"github.com/AndreasThinks/nodeice-board/internal/engine"
	"github.com/AndreasThinks/nodeice-board/internal/notify"
	"github.com/AndreasThinks/nodeice-board/internal/store"
	"github.com/AndreasThinks/nodeice-board/internal/testutil"
)

// Epoch is the clock reading when every scenario starts.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Transcript records each send and sweep step in order.
	Transcript []Entry `json:"transcript"`

	// Errors describes every failed expectation.
	Errors []string `json:"errors,omitempty"`
}

// Entry is one recorded step.
type Entry struct {
	// At is the clock offset from Epoch.
	At time.Duration `json:"at"`

	From    string `json:"from,omitempty"`
	Name    string `json:"name,omitempty"`
	Text    string `json:"text,omitempty"`
	Ignored bool   `json:"ignored,omitempty"`
	Outcome string `json:"outcome,omitempty"`

	Replies       []string       `json:"replies,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`

	// Sweep marks sweep steps; Expired is the count they deleted.
	Sweep   bool `json:"sweep,omitempty"`
	Expired int  `json:"expired,omitempty"`
}

// Notification is a message the dispatcher would send to a subscriber.
type Notification struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func newResult() *Result {
	return &Result{Pass: true, Transcript: []Entry{}}
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Harness drives one executor over an in-memory store.
type Harness struct {
	store      *store.Store
	exec       *engine.Executor
	clock      *testutil.FakeClock
	maxPayload int
}

// Run executes a scenario from an empty board.
//
// Failed expectations are reported in Result.Errors. The returned error is
// reserved for problems running the scenario at all, such as storage
// failing outside a command.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	cfg := boardConfig(s.Board)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("board settings: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFakeClock(Epoch)
	h := &Harness{
		store: st,
		exec: engine.NewExecutor(st, clock, engine.Options{
			BoardName:    cfg.Board.Name,
			InfoURL:      cfg.Board.InfoURL,
			Lifetime:     cfg.Posts.Lifetime.Duration,
			MaxPayload:   cfg.Transport.MaxPayload,
			ViewComments: cfg.Posts.ViewComments,
			Limits:       cfg.Limits(),
		}),
		clock:      clock,
		maxPayload: cfg.Transport.MaxPayload,
	}

	result := newResult()
	for i, step := range s.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := h.evaluate(ctx, i, a, result); err != nil {
			return nil, fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return result, nil
}

func boardConfig(b BoardSettings) *config.Config {
	cfg := config.Default()
	if b.Name != "" {
		cfg.Board.Name = b.Name
	}
	if b.Lifetime.Duration > 0 {
		cfg.Posts.Lifetime = b.Lifetime
	}
	if b.MaxPayload > 0 {
		cfg.Transport.MaxPayload = b.MaxPayload
	}
	if b.ViewComments > 0 {
		cfg.Posts.ViewComments = b.ViewComments
	}
	return cfg
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Advance.Duration > 0:
		h.clock.Advance(step.Advance.Duration)
		return nil

	case step.Sweep:
		n, err := h.exec.Sweep(ctx)
		if err != nil {
			return err
		}
		result.Transcript = append(result.Transcript, Entry{At: h.offset(), Sweep: true, Expired: n})
		if step.Expect != nil && step.Expect.Expired != nil && *step.Expect.Expired != n {
			result.addError("steps[%d]: sweep expired %d posts, want %d", i, n, *step.Expect.Expired)
		}
		return nil
	}

	entry := Entry{At: h.offset(), From: step.From, Name: step.Name, Text: step.Send}
	res, ok := h.exec.Handle(ctx, step.From, step.Name, step.Send)
	if !ok {
		entry.Ignored = true
	} else {
		entry.Outcome = string(res.Outcome)
		entry.Replies = res.Replies
		entry.Notifications = h.notifications(res.Events)
	}
	result.Transcript = append(result.Transcript, entry)

	if step.Expect != nil {
		checkExpect(i, *step.Expect, entry, result)
	}
	return nil
}

func (h *Harness) offset() time.Duration {
	return h.clock.Now().Sub(Epoch)
}

// notifications renders events per recipient, ordered by recipient.
func (h *Harness) notifications(events []board.Event) []Notification {
	var out []Notification
	for _, ev := range events {
		text := notify.Format(ev, h.maxPayload)
		for _, to := range ev.Recipients {
			out = append(out, Notification{To: to, Text: text})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].To < out[b].To })
	return out
}

func checkExpect(i int, want Expect, got Entry, result *Result) {
	if want.Outcome != "" && want.Outcome != got.Outcome {
		result.addError("steps[%d]: outcome %q, want %q", i, got.Outcome, want.Outcome)
	}

	if want.Replies != nil && !slices.Equal(want.Replies, got.Replies) {
		result.addError("steps[%d]: replies %q, want %q", i, got.Replies, want.Replies)
	}

	if want.Notify != nil {
		sent := make(map[string]string, len(got.Notifications))
		for _, n := range got.Notifications {
			if prev, ok := sent[n.To]; ok {
				sent[n.To] = prev + "\n" + n.Text
			} else {
				sent[n.To] = n.Text
			}
		}
		for to, text := range want.Notify {
			if sent[to] != text {
				result.addError("steps[%d]: notification to %s %q, want %q", i, to, sent[to], text)
			}
		}
		for to := range sent {
			if _, ok := want.Notify[to]; !ok {
				result.addError("steps[%d]: unexpected notification to %s", i, to)
			}
		}
	}
}

var statFields = map[string]func(board.Stats) int{
	"active_posts":        func(s board.Stats) int { return s.ActivePosts },
	"total_comments":      func(s board.Stats) int { return s.TotalComments },
	"total_messages":      func(s board.Stats) int { return s.TotalMessages },
	"unique_authors":      func(s board.Stats) int { return s.UniqueAuthors },
	"total_subscriptions": func(s board.Stats) int { return s.TotalSubscriptions },
}

func (h *Harness) evaluate(ctx context.Context, i int, a Assertion, result *Result) error {
	switch a.Type {
	case AssertStats:
		stats, err := h.exec.Stats(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(a.Stats))
		for key := range a.Stats {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if got := statFields[key](stats); got != a.Stats[key] {
				result.addError("assertions[%d]: %s is %d, want %d", i, key, got, a.Stats[key])
			}
		}

	case AssertSubscriptions:
		var subs []board.Subscription
		err := h.store.View(ctx, func(tx *store.Tx) error {
			var err error
			subs, err = tx.ListSubscriptions(ctx, a.Node)
			return err
		})
		if err != nil {
			return err
		}
		got := make([]string, len(subs))
		for j, sub := range subs {
			got[j] = sub.Scope.String()
		}
		want := a.Subscriptions
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(got, want) {
			result.addError("assertions[%d]: %s subscriptions [%s], want [%s]",
				i, a.Node, strings.Join(got, " "), strings.Join(want, " "))
		}
	}
	return nil
}
