// Package metrics exposes board activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AndreasThinks/nodeice-board/internal/board"
	"github.com/AndreasThinks/nodeice-board/internal/engine"
)

// Metrics holds the board's collectors on a private registry.
// It satisfies engine.Observer and notify.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Commands            *prometheus.CounterVec
	ReplyFailures       prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	SweepRuns           *prometheus.CounterVec
	PostsExpired        prometheus.Counter

	ActivePosts        prometheus.Gauge
	TotalComments      prometheus.Gauge
	UniqueAuthors      prometheus.Gauge
	TotalSubscriptions prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "nodeice_commands_total", Help: "Commands handled"},
			[]string{"command", "outcome"},
		),
		ReplyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "nodeice_reply_failures_total", Help: "Replies that could not be sent"},
		),
		NotificationsSent: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "nodeice_notifications_sent_total", Help: "Notifications delivered to the transport"},
		),
		NotificationsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "nodeice_notifications_failed_total", Help: "Notifications that failed to send"},
		),
		SweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "nodeice_sweep_runs_total", Help: "Expiration sweeps"},
			[]string{"result"},
		),
		PostsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "nodeice_posts_expired_total", Help: "Posts removed by the sweeper"},
		),
		ActivePosts: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "nodeice_active_posts", Help: "Posts that have not expired"},
		),
		TotalComments: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "nodeice_comments", Help: "Stored comments"},
		),
		UniqueAuthors: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "nodeice_unique_authors", Help: "Distinct authors of stored content"},
		),
		TotalSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "nodeice_subscriptions", Help: "Stored subscriptions"},
		),
	}

	m.registry.MustRegister(
		m.Commands,
		m.ReplyFailures,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.SweepRuns,
		m.PostsExpired,
		m.ActivePosts,
		m.TotalComments,
		m.UniqueAuthors,
		m.TotalSubscriptions,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CommandHandled counts one command by name and outcome.
func (m *Metrics) CommandHandled(command string, outcome engine.Outcome) {
	if command == "" {
		command = "invalid"
	}
	m.Commands.WithLabelValues(command, string(outcome)).Inc()
}

// ReplyFailed counts a reply the transport rejected.
func (m *Metrics) ReplyFailed() {
	m.ReplyFailures.Inc()
}

// SweepFinished counts a sweep and the posts it removed.
func (m *Metrics) SweepFinished(expired int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepRuns.WithLabelValues(result).Inc()
	m.PostsExpired.Add(float64(expired))
}

// StatsUpdated sets the content gauges.
func (m *Metrics) StatsUpdated(st board.Stats) {
	m.ActivePosts.Set(float64(st.ActivePosts))
	m.TotalComments.Set(float64(st.TotalComments))
	m.UniqueAuthors.Set(float64(st.UniqueAuthors))
	m.TotalSubscriptions.Set(float64(st.TotalSubscriptions))
}

// NotificationSent counts a delivered notification.
func (m *Metrics) NotificationSent() {
	m.NotificationsSent.Inc()
}

// NotificationFailed counts a notification that was not delivered.
func (m *Metrics) NotificationFailed() {
	m.NotificationsFailed.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on ln until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
