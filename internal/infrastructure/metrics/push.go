// Package metrics pushes per-run batch metrics to a Prometheus pushgateway.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"ArxivDigest/internal/ports"
)

const namespace = "arxiv_digest"

// PushRecorder collects run counters and pushes them once the run finishes.
// A nil *PushRecorder records nothing.
type PushRecorder struct {
	url      string
	job      string
	topic    string
	client   *http.Client
	logger   *slog.Logger
	registry *prometheus.Registry

	fetched     prometheus.Gauge
	scored      prometheus.Gauge
	dropped     prometheus.Gauge
	digest      prometheus.Gauge
	duration    prometheus.Gauge
	success     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

var _ ports.RunRecorder = (*PushRecorder)(nil)

// NewPushRecorder returns nil when url is empty.
func NewPushRecorder(url, job, topic string, log *slog.Logger) *PushRecorder {
	if url == "" {
		return nil
	}
	if job == "" {
		job = namespace
	}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	r := &PushRecorder{
		url:      url,
		job:      job,
		topic:    topic,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   log,
		registry: prometheus.NewRegistry(),

		fetched:     gauge("candidates_fetched", "Candidate papers returned by the source in the last run."),
		scored:      gauge("papers_scored", "Papers that received a valid relevance score in the last run."),
		dropped:     gauge("papers_dropped", "Papers dropped by the scorer in the last run."),
		digest:      gauge("digest_papers", "Papers included in the last digest."),
		duration:    gauge("run_duration_seconds", "Wall-clock duration of the last run."),
		success:     gauge("run_success", "1 if the last run produced and delivered a digest, 0 otherwise."),
		lastSuccess: gauge("last_success_timestamp_seconds", "Unix time of the last successful run."),
	}
	r.registry.MustRegister(r.fetched, r.scored, r.dropped, r.digest, r.duration, r.success, r.lastSuccess)
	return r
}

// WithHTTPClient swaps the transport.
func (r *PushRecorder) WithHTTPClient(client *http.Client) *PushRecorder {
	if r != nil && client != nil {
		r.client = client
	}
	return r
}

func (r *PushRecorder) Fetched(n int) {
	if r != nil {
		r.fetched.Set(float64(n))
	}
}

func (r *PushRecorder) Scored(n, dropped int) {
	if r != nil {
		r.scored.Set(float64(n))
		r.dropped.Set(float64(dropped))
	}
}

func (r *PushRecorder) Digest(n int) {
	if r != nil {
		r.digest.Set(float64(n))
	}
}

// Finish records the outcome and pushes. On failure the last-success gauge is
// left out so the gateway keeps the previous value.
func (r *PushRecorder) Finish(ctx context.Context, started time.Time, runErr error) {
	if r == nil {
		return
	}

	r.duration.Set(time.Since(started).Seconds())
	if runErr == nil {
		r.success.Set(1)
		r.lastSuccess.SetToCurrentTime()
	} else {
		r.success.Set(0)
		r.registry.Unregister(r.lastSuccess)
	}

	pusher := push.New(r.url, r.job).
		Gatherer(r.registry).
		Client(r.client)
	if r.topic != "" {
		pusher = pusher.Grouping("topic", r.topic)
	}

	if err := pusher.AddContext(ctx); err != nil && r.logger != nil {
		r.logger.Warn("metrics push failed", "url", r.url, "error", err)
	}
}
