package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreasThinks/nodeice-board/internal/config"
)

func durationOf(d time.Duration) config.Duration {
	return config.Duration{Duration: d}
}

func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestRunReportsMismatches(t *testing.T) {
	expired := 3
	s := &Scenario{
		Name:        "mismatch",
		Description: "Every expectation is wrong",
		Steps: []Step{
			{From: "!bbbb0002", Send: "!subscribe all"},
			{
				From: "!aaaa0001",
				Send: "!post Hello",
				Expect: &Expect{
					Outcome: "rejected",
					Replies: []string{"nope"},
					Notify:  map[string]string{"!cccc0003": "hi"},
				},
			},
			{Sweep: true, Expect: &Expect{Expired: &expired}},
		},
		Assertions: []Assertion{
			{Type: AssertStats, Stats: map[string]int{"active_posts": 2}},
			{Type: AssertSubscriptions, Node: "!bbbb0002"},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.ElementsMatch(t, []string{
		`steps[1]: outcome "ok", want "rejected"`,
		`steps[1]: replies ["Post #1 created successfully!"], want ["nope"]`,
		`steps[1]: notification to !cccc0003 "", want "hi"`,
		`steps[1]: unexpected notification to !bbbb0002`,
		`steps[2]: sweep expired 0 posts, want 3`,
		`assertions[0]: active_posts is 1, want 2`,
		`assertions[1]: !bbbb0002 subscriptions [all], want []`,
	}, result.Errors)
}

func TestRunUsesBoardSettings(t *testing.T) {
	s := &Scenario{
		Name:        "short_lifetime",
		Description: "Posts expire after an hour",
		Steps: []Step{
			{From: "!aaaa0001", Send: "!post Flash sale"},
			{Advance: durationOf(time.Hour)},
			{Sweep: true},
		},
	}
	s.Board.Lifetime = durationOf(time.Hour)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)
	require.Len(t, result.Transcript, 2)
	assert.True(t, result.Transcript[1].Sweep)
	assert.Equal(t, 1, result.Transcript[1].Expired)
	assert.Equal(t, time.Hour, result.Transcript[1].At)
}

func TestTranscript(t *testing.T) {
	result := &Result{Transcript: []Entry{
		{At: 0, From: "!aaaa0001", Text: "hello", Ignored: true},
		{
			At:      90 * time.Minute,
			From:    "!aaaa0001",
			Name:    "Alice",
			Text:    "!post Hi",
			Outcome: "ok",
			Replies: []string{"Post #1 created successfully!"},
			Notifications: []Notification{
				{To: "!bbbb0002", Text: "New post #1 from Alice: Hi"},
			},
		},
		{At: 2 * time.Hour, Sweep: true, Expired: 0},
	}}

	want := "# demo\n" +
		"[+0s] !aaaa0001 > hello\n" +
		"  ignored\n" +
		"[+1h30m0s] Alice (!aaaa0001) > !post Hi\n" +
		"  ok\n" +
		"  < Post #1 created successfully!\n" +
		"  ~ !bbbb0002: New post #1 from Alice: Hi\n" +
		"[+2h0m0s] sweep\n" +
		"  expired 0\n"
	assert.Equal(t, want, Transcript("demo", result))
}
