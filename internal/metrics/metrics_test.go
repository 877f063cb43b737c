package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/engine"
	"github.com/AndreasThinks/nodeice-board/internal/notify"
)

var (
	_ engine.Observer = (*Metrics)(nil)
	_ notify.Observer = (*Metrics)(nil)
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()

	m.CommandHandled("post", engine.OutcomeOK)
	m.CommandHandled("post", engine.OutcomeOK)
	m.CommandHandled("", engine.OutcomeRejected)
	m.ReplyFailed()
	m.NotificationSent()
	m.NotificationFailed()
	m.SweepFinished(3, nil)
	m.SweepFinished(1, errors.New("busy"))
	m.StatsUpdated(board.Stats{ActivePosts: 4, TotalComments: 9, UniqueAuthors: 2, TotalSubscriptions: 5})

	body := scrape(t, m.Handler())

	for _, line := range []string{
		`nodeice_commands_total{command="post",outcome="ok"} 2`,
		`nodeice_commands_total{command="invalid",outcome="rejected"} 1`,
		`nodeice_reply_failures_total 1`,
		`nodeice_notifications_sent_total 1`,
		`nodeice_notifications_failed_total 1`,
		`nodeice_sweep_runs_total{result="ok"} 1`,
		`nodeice_sweep_runs_total{result="error"} 1`,
		`nodeice_posts_expired_total 4`,
		`nodeice_active_posts 4`,
		`nodeice_comments 9`,
		`nodeice_unique_authors 2`,
		`nodeice_subscriptions 5`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestMetrics_PrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.ReplyFailed()

	assert.Contains(t, scrape(t, a.Handler()), "nodeice_reply_failures_total 1")
	assert.Contains(t, scrape(t, b.Handler()), "nodeice_reply_failures_total 0")
}

func TestMetrics_Serve(t *testing.T) {
	m := New()
	m.ActivePosts.Set(7)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "nodeice_active_posts 7")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
