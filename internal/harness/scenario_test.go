package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: basic
description: "Parses every step kind"
board:
  lifetime: 48h
  view_comments: 2
steps:
  - from: "!aaaa0001"
    name: Alice
    send: "!post Hi"
    expect:
      outcome: ok
      replies: ["Post #1 created successfully!"]
      notify: {}
  - advance: 90m
  - sweep: true
    expect:
      expired: 0
assertions:
  - type: stats
    stats: { active_posts: 1 }
`))
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, 48*time.Hour, s.Board.Lifetime.Duration)
	assert.Equal(t, 2, s.Board.ViewComments)
	require.Len(t, s.Steps, 3)

	post := s.Steps[0]
	assert.Equal(t, "Alice", post.Name)
	require.NotNil(t, post.Expect)
	assert.Equal(t, []string{"Post #1 created successfully!"}, post.Expect.Replies)
	assert.NotNil(t, post.Expect.Notify)
	assert.Empty(t, post.Expect.Notify)

	assert.Equal(t, 90*time.Minute, s.Steps[1].Advance.Duration)

	require.NotNil(t, s.Steps[2].Expect.Expired)
	assert.Equal(t, 0, *s.Steps[2].Expect.Expired)

	require.Len(t, s.Assertions, 1)
	assert.Equal(t, map[string]int{"active_posts": 1}, s.Assertions[0].Stats)
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: y\nstep: []\n",
			wantErr: "field step not found",
		},
		{
			name:    "missing name",
			yaml:    "description: y\nsteps: [{sweep: true}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\nsteps: [{sweep: true}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: y\n",
			wantErr: "steps list is required",
		},
		{
			name:    "empty step",
			yaml:    "name: x\ndescription: y\nsteps: [{from: '!a'}]\n",
			wantErr: "steps[0]: exactly one of send, advance or sweep is required",
		},
		{
			name:    "two kinds",
			yaml:    "name: x\ndescription: y\nsteps: [{sweep: true, advance: 1h}]\n",
			wantErr: "exactly one of send, advance or sweep",
		},
		{
			name:    "send without sender",
			yaml:    "name: x\ndescription: y\nsteps: [{send: '!help'}]\n",
			wantErr: "from is required with send",
		},
		{
			name:    "advance with expect",
			yaml:    "name: x\ndescription: y\nsteps: [{advance: 1h, expect: {outcome: ok}}]\n",
			wantErr: "advance steps take no expect",
		},
		{
			name:    "sweep with replies",
			yaml:    "name: x\ndescription: y\nsteps: [{sweep: true, expect: {replies: []}}]\n",
			wantErr: "sweep steps only expect expired",
		},
		{
			name:    "expired on send",
			yaml:    "name: x\ndescription: y\nsteps: [{from: '!a', send: '!help', expect: {expired: 1}}]\n",
			wantErr: "expired only applies to sweep steps",
		},
		{
			name:    "bad duration",
			yaml:    "name: x\ndescription: y\nsteps: [{advance: soon}]\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown stat",
			yaml:    "name: x\ndescription: y\nsteps: [{sweep: true}]\nassertions: [{type: stats, stats: {posts: 1}}]\n",
			wantErr: `unknown stat "posts"`,
		},
		{
			name:    "subscriptions without node",
			yaml:    "name: x\ndescription: y\nsteps: [{sweep: true}]\nassertions: [{type: subscriptions}]\n",
			wantErr: "node is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: y\nsteps: [{sweep: true}]\nassertions: [{type: trace_order}]\n",
			wantErr: `unknown type "trace_order"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\ndescription: y\nsteps: [{sweep: true}]\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "x", s.Name)
	assert.True(t, s.Steps[0].Sweep)
}
