package engine

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/AndreasThinks/nodeice-board/internal/command"
	"github.com/AndreasThinks/nodeice-board/internal/store"
	"github.com/AndreasThinks/nodeice-board/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	lifetime = 7 * 24 * time.Hour

	alice = "!aaaa0001"
	bob   = "!bbbb0002"
	carol = "!cccc0003"
	dave  = "!dddd0004"
)

func testOptions() Options {
	return Options{
		BoardName:    "Nodeice Board",
		Lifetime:     lifetime,
		MaxPayload:   200,
		ViewComments: 5,
		Limits:       command.DefaultLimits(),
	}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestExecutor returns an executor over a fresh store and a fake clock at t0.
func newTestExecutor(t *testing.T) (*Executor, *testutil.FakeClock, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	clock := testutil.NewFakeClock(t0)
	return NewExecutor(s, clock, testOptions()), clock, s
}

// run handles line from sender and fails the test if it was ignored.
func run(t *testing.T, x *Executor, sender, line string) Result {
	t.Helper()
	res, ok := x.Handle(t.Context(), sender, "", line)
	require.True(t, ok, "line %q was ignored", line)
	return res
}

// runAs is run with a display name.
func runAs(t *testing.T, x *Executor, sender, name, line string) Result {
	t.Helper()
	res, ok := x.Handle(t.Context(), sender, name, line)
	require.True(t, ok, "line %q was ignored", line)
	return res
}

func goldenReplies(t *testing.T, name string, res Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(strings.Join(res.Replies, "\n---\n")+"\n"))
}
