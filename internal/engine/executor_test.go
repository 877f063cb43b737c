package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/command"
)

func TestHandle_IgnoresNonCommands(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	for _, line := range []string{"", "   ", "hello board", "post something"} {
		_, ok := x.Handle(t.Context(), alice, "", line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestExecute_Post(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	res := runAs(t, x, alice, "Alice", "!post Community garden meeting Saturday")
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "post", res.Command)
	assert.Equal(t, []string{"Post #1 created successfully!"}, res.Replies)

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, board.EventNewPost, ev.Kind)
	assert.Equal(t, int64(1), ev.PostID)
	assert.Equal(t, alice, ev.AuthorID)
	assert.Equal(t, "Alice", ev.Author())
	assert.Equal(t, "Community garden meeting Saturday", ev.Summary)
	assert.Equal(t, t0, ev.CreatedAt)
	assert.Empty(t, ev.Recipients)
}

func TestExecute_PostSetsExpiry(t *testing.T) {
	x, _, s := newTestExecutor(t)

	run(t, x, alice, "!post hello")

	p, err := s.GetPost(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, t0, p.CreatedAt)
	assert.Equal(t, t0.Add(lifetime), p.ExpiresAt)
}

func TestExecute_PostIDsIncrease(t *testing.T) {
	x, clock, _ := newTestExecutor(t)

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Minute)
		res := run(t, x, alice, fmt.Sprintf("!post note %d", i))
		assert.Equal(t, []string{fmt.Sprintf("Post #%d created successfully!", i)}, res.Replies)
	}
}

// A full week in the life of one post: subscribers are notified exactly
// once, the author never hears about their own activity, and after seven
// days the post and everything attached to it is gone.
func TestScenario_PostLifecycle(t *testing.T) {
	x, clock, _ := newTestExecutor(t)

	run(t, x, carol, "!subscribe all")
	run(t, x, dave, "!subscribe all")

	res := run(t, x, alice, "!post Lost dog near the old mill")
	require.Len(t, res.Events, 1)
	assert.Equal(t, []string{carol, dave}, res.Events[0].Recipients)

	clock.Advance(time.Hour)
	assert.Equal(t, []string{"Subscribed to post #1."}, run(t, x, bob, "!subscribe 1").Replies)
	assert.Equal(t, []string{"Subscribed to post #1."}, run(t, x, carol, "!subscribe 1").Replies)

	// Carol holds ALL and #1 but is notified once; Bob is the author.
	clock.Advance(time.Hour)
	res = run(t, x, bob, "!comment 1 Saw him by the bridge")
	assert.Equal(t, []string{"Comment added to post #1"}, res.Replies)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, board.EventNewComment, ev.Kind)
	assert.Equal(t, int64(1), ev.PostID)
	assert.Equal(t, []string{carol, dave}, ev.Recipients)

	// Alice comments on her own post: Bob (scoped), Carol and Dave hear.
	res = run(t, x, alice, "!comment 1 Found him, thanks!")
	require.Len(t, res.Events, 1)
	assert.Equal(t, []string{bob, carol, dave}, res.Events[0].Recipients)

	// One millisecond before expiry the post is still visible.
	clock.Set(t0.Add(lifetime - time.Millisecond))
	assert.Equal(t, OutcomeOK, run(t, x, dave, "!view 1").Outcome)

	// At expiry it is gone, even before the sweep runs.
	clock.Set(t0.Add(lifetime))
	for _, line := range []string{"!view 1", "!comment 1 late", "!subscribe 1"} {
		res := run(t, x, dave, line)
		assert.Equal(t, OutcomeRejected, res.Outcome, line)
		assert.Equal(t, []string{"Post #1 not found."}, res.Replies, line)
		assert.Empty(t, res.Events, line)
	}
	assert.Equal(t, []string{"No posts found."}, run(t, x, dave, "!list").Replies)

	n, err := x.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The sweep took Bob's scoped subscription with it; ALL survives.
	assert.Equal(t, []string{"You have no subscriptions."}, run(t, x, bob, "!subscriptions").Replies)
	assert.Equal(t, []string{"Your subscriptions:\n- all posts"}, run(t, x, carol, "!subscriptions").Replies)

	st, err := x.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, board.Stats{TotalSubscriptions: 2}, st)

	// Sweeping again is a no-op, and ids are not reused.
	n, err = x.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"Post #2 created successfully!"}, run(t, x, alice, "!post Back again").Replies)
}

func TestExecute_ListNewestFirst(t *testing.T) {
	x, clock, _ := newTestExecutor(t)

	for i := 1; i <= 5; i++ {
		run(t, x, alice, fmt.Sprintf("!post note %d", i))
		clock.Advance(time.Minute)
	}

	res := run(t, x, bob, "!list 3")
	require.Len(t, res.Replies, 1)
	assert.Equal(t,
		"Recent posts:\n"+
			"#5: note 5 (!aaaa0001, 1m ago)\n"+
			"#4: note 4 (!aaaa0001, 2m ago)\n"+
			"#3: note 3 (!aaaa0001, 3m ago)",
		res.Replies[0])
}

func TestExecute_ListFitsBudgetByDroppingOldest(t *testing.T) {
	x, clock, _ := newTestExecutor(t)

	for i := 1; i <= 20; i++ {
		run(t, x, alice, fmt.Sprintf("!post %d %s", i, strings.Repeat("word ", 20)))
		clock.Advance(time.Minute)
	}

	res := run(t, x, bob, "!list 20")
	require.Len(t, res.Replies, 1)
	reply := res.Replies[0]

	assert.LessOrEqual(t, len(reply), 200)
	assert.True(t, strings.HasPrefix(reply, "Recent posts:\n#20: "), reply)
	assert.NotContains(t, reply, "#1:")

	// Every kept entry has its id, a marked preview and its attribution.
	lines := strings.Split(reply, "\n")[1:]
	require.NotEmpty(t, lines)
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(line, fmt.Sprintf("#%d: ", 20-i)), line)
		assert.Contains(t, line, "...")
		assert.True(t, strings.HasSuffix(line, "ago)"), line)
	}
}

func TestExecute_ViewShowsLatestComments(t *testing.T) {
	x, clock, _ := newTestExecutor(t)

	run(t, x, alice, "!post Swap meet")
	for i := 1; i <= 7; i++ {
		clock.Advance(time.Minute)
		run(t, x, bob, fmt.Sprintf("!comment 1 c%d", i))
	}

	res := run(t, x, carol, "!view 1")
	require.Equal(t, OutcomeOK, res.Outcome)
	all := strings.Join(res.Replies, "\n")

	assert.Contains(t, all, "Comments (latest 5 of 7):")
	assert.NotContains(t, all, ": c2\n")
	assert.Contains(t, all, ": c3")
	assert.True(t, strings.HasSuffix(all, ": c7"), all)
	for _, r := range res.Replies {
		assert.LessOrEqual(t, len(r), 200)
	}
}

func TestExecute_ViewNoComments(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	run(t, x, alice, "!post Quiet post")
	res := run(t, x, bob, "!view 1")
	assert.Equal(t, []string{"Post #1 (!aaaa0001, just now): Quiet post\nNo comments yet."}, res.Replies)
}

func TestExecute_ViewMissing(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	res := run(t, x, bob, "!view 42")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.True(t, board.IsCode(res.Err, board.ErrCodeNotFound))
	assert.Equal(t, []string{"Post #42 not found."}, res.Replies)
}

func TestExecute_CommentMissingPostWritesNothing(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	res := run(t, x, bob, "!comment 9 hello")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Empty(t, res.Events)

	st, err := x.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalComments)
}

func TestExecute_SubscribeIsIdempotent(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	run(t, x, alice, "!post hi")

	tests := []struct {
		line string
		want string
	}{
		{"!subscribe all", "Subscribed to all new posts and comments."},
		{"!subscribe ALL", "You are already subscribed to all posts."},
		{"!subscribe 1", "Subscribed to post #1."},
		{"!subscribe 1", "You are already subscribed to post #1."},
		{"!unsubscribe 1", "Unsubscribed from post #1."},
		{"!unsubscribe 1", "You were not subscribed to post #1."},
		{"!unsubscribe all", "Unsubscribed from all posts."},
		{"!unsubscribe all", "You were not subscribed to all posts."},
		{"!unsubscribe 77", "You were not subscribed to post #77."},
	}

	for _, tt := range tests {
		res := run(t, x, bob, tt.line)
		assert.Equal(t, OutcomeOK, res.Outcome, tt.line)
		assert.Equal(t, []string{tt.want}, res.Replies, tt.line)
	}
}

func TestExecute_UnsubscribedNodeIsNotNotified(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	run(t, x, bob, "!subscribe all")
	run(t, x, bob, "!unsubscribe all")

	res := run(t, x, alice, "!post anyone?")
	require.Len(t, res.Events, 1)
	assert.Empty(t, res.Events[0].Recipients)
}

func TestExecute_ParseErrors(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	tests := []struct {
		line string
		code board.ErrorCode
		want string
	}{
		{"!frobnicate", board.ErrCodeUnknownCommand, "Unknown command !frobnicate. Send !help for available commands."},
		{"!LIST", board.ErrCodeUnknownCommand, "Unknown command !LIST. Send !help for available commands."},
		{"!post", board.ErrCodeMalformedArguments, "Missing arguments. Usage: !post <message>"},
		{"!view abc", board.ErrCodeMalformedArguments, `Invalid argument "abc". Usage: !view <post_id>`},
		{"!list -1", board.ErrCodeMalformedArguments, `Invalid argument "-1". Usage: !list [n]`},
		{"!post " + strings.Repeat("x", 161), board.ErrCodePayloadTooLarge, "Message too long (161 bytes, max 160). Please shorten it."},
	}

	for _, tt := range tests {
		res := run(t, x, alice, tt.line)
		assert.Equal(t, OutcomeRejected, res.Outcome, tt.line)
		assert.True(t, board.IsCode(res.Err, tt.code), "%s: %v", tt.line, res.Err)
		assert.Equal(t, []string{tt.want}, res.Replies, tt.line)
		assert.Empty(t, res.Events)
	}
}

func TestExecute_StoreFailure(t *testing.T) {
	x, _, s := newTestExecutor(t)
	require.NoError(t, s.Close())

	res := run(t, x, alice, "!post hello")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, board.IsCode(res.Err, board.ErrCodeStoreUnavailable))
	assert.Equal(t, []string{replyStoreUnavailable}, res.Replies)
	assert.Empty(t, res.Events)
}

type bogusCommand struct{ command.Help }

func (bogusCommand) Name() string { return "bogus" }

func TestExecute_UnhandledCommandType(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	res := x.Execute(context.Background(), alice, "", bogusCommand{})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, []string{replyStoreUnavailable}, res.Replies)
}

func TestExecute_RepliesFitPayload(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	long := strings.Repeat("é", 80)

	run(t, x, alice, "!post "+long)
	run(t, x, bob, "!comment 1 "+long)
	run(t, x, bob, "!subscribe 1")

	for _, line := range []string{"!help", "!list 20", "!view 1", "!subscriptions", "!" + strings.Repeat("z", 300)} {
		res := run(t, x, bob, line)
		require.NotEmpty(t, res.Replies, line)
		for _, r := range res.Replies {
			assert.LessOrEqual(t, len(r), 200, line)
		}
	}
}

func TestExecute_HelpEndsWithInfoURL(t *testing.T) {
	opts := testOptions()
	opts.InfoURL = "https://example.org/board"
	x, _, _ := newTestExecutor(t)
	x.opts = opts

	res := run(t, x, alice, "!help")
	require.NotEmpty(t, res.Replies)
	last := res.Replies[len(res.Replies)-1]
	assert.True(t, strings.HasSuffix(last, "\nMore info: https://example.org/board"), last)
}

func TestGolden_Help(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	goldenReplies(t, "help", run(t, x, alice, "!help"))
}

// seedBoard creates three posts and two comments between t0 and t0+3h.
func seedBoard(t *testing.T, x *Executor, clock interface{ Set(time.Time) }) {
	t.Helper()
	clock.Set(t0)
	runAs(t, x, alice, "Alice", "!post Community garden meeting Saturday at 10am, bring gloves")
	clock.Set(t0.Add(time.Hour))
	run(t, x, bob, "!post Lost dog near the old mill, answers to Biscuit")
	clock.Set(t0.Add(90 * time.Minute))
	run(t, x, bob, "!comment 1 I can bring extra gloves")
	clock.Set(t0.Add(2 * time.Hour))
	runAs(t, x, carol, "Carol", "!comment 1 Is there parking nearby?")
	clock.Set(t0.Add(150 * time.Minute))
	runAs(t, x, carol, "Carol", "!post Free firewood")
	clock.Set(t0.Add(3 * time.Hour))
}

func TestGolden_List(t *testing.T) {
	x, clock, _ := newTestExecutor(t)
	seedBoard(t, x, clock)
	goldenReplies(t, "list", run(t, x, dave, "!list"))
}

func TestGolden_View(t *testing.T) {
	x, clock, _ := newTestExecutor(t)
	seedBoard(t, x, clock)
	goldenReplies(t, "view", run(t, x, dave, "!view 1"))
}

func TestGolden_Subscriptions(t *testing.T) {
	x, clock, _ := newTestExecutor(t)
	seedBoard(t, x, clock)

	run(t, x, dave, "!subscribe all")
	run(t, x, dave, "!subscribe 2")
	run(t, x, dave, "!subscribe 1")
	goldenReplies(t, "subscriptions", run(t, x, dave, "!subscriptions"))
}
