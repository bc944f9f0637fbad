package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
	"ArxivDigest/internal/ranking"
	"ArxivDigest/internal/scoring"
)

const finishTimeout = 15 * time.Second

// PipelineDeps wires all driven adapters into the digest pipeline.
type PipelineDeps struct {
	Source       ports.PaperSource
	Scorer       *scoring.Scorer
	Renderer     ports.Renderer
	Sinks        []ports.Sink
	Recorder     ports.RunRecorder
	Logger       *slog.Logger
	LookbackDays int
	// NewRunID overrides the run identifier generator (uuid by default).
	NewRunID func() string
}

// Pipeline implements fetch, score, rank, render and deliver for one profile.
type Pipeline struct {
	source   ports.PaperSource
	scorer   *scoring.Scorer
	renderer ports.Renderer
	sinks    []ports.Sink
	recorder ports.RunRecorder
	logger   *slog.Logger
	lookback int
	newRunID func() string
}

// Report describes a finished run.
type Report struct {
	RunID     string
	Window    domain.Window
	Fetched   int
	Scored    int
	Dropped   int
	Digest    domain.Digest
	Document  domain.Document
	Delivered []string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	lookback := deps.LookbackDays
	if lookback < 1 {
		lookback = 1
	}
	newRunID := deps.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		source:   deps.Source,
		scorer:   deps.Scorer,
		renderer: deps.Renderer,
		sinks:    deps.Sinks,
		recorder: deps.Recorder,
		logger:   logger,
		lookback: lookback,
		newRunID: newRunID,
	}
}

// Run executes one batch. Either a complete digest (possibly empty) is rendered
// and handed to every sink, or the run fails before any sink is invoked.
// Sink failures do not stop other sinks and are reported as ErrDelivery.
func (p *Pipeline) Run(ctx context.Context, profile domain.Profile, now time.Time) (report Report, err error) {
	if p.source == nil || p.scorer == nil || p.renderer == nil {
		return Report{}, fmt.Errorf("%w: pipeline is missing source, scorer or renderer", domain.ErrConfiguration)
	}

	started := time.Now()
	report.RunID = p.newRunID()
	report.Window = domain.LookbackWindow(now, p.lookback)
	log := p.logger.With("run_id", report.RunID)

	if p.recorder != nil {
		defer func() {
			finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			defer cancel()
			p.recorder.Finish(finishCtx, started, err)
		}()
	}

	log.Info("run started", "topic", profile.Topic,
		"from", report.Window.Start.Format(time.DateOnly), "to", report.Window.End.Format(time.DateOnly))

	candidates, err := p.source.FetchWindow(ctx, profile, report.Window)
	if err != nil {
		return report, fmt.Errorf("fetch: %w", err)
	}
	report.Fetched = len(candidates)
	p.record(func(r ports.RunRecorder) { r.Fetched(len(candidates)) })
	log.Info("candidates fetched", "count", len(candidates))

	scored, stats, err := p.scorer.Score(ctx, profile, candidates)
	if err != nil {
		return report, fmt.Errorf("score: %w", err)
	}
	report.Scored, report.Dropped = stats.Scored, stats.Dropped
	p.record(func(r ports.RunRecorder) { r.Scored(stats.Scored, stats.Dropped) })

	digest := ranking.Build(profile, scored, domain.DigestMeta{
		RunID:       report.RunID,
		Topic:       profile.Topic,
		GeneratedAt: now,
		Window:      report.Window,
	})
	report.Digest = digest
	p.record(func(r ports.RunRecorder) { r.Digest(len(digest.Papers)) })
	log.Info("digest built", "papers", len(digest.Papers), "threshold", profile.Threshold)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("before render: %w", err)
	}

	doc, err := p.renderer.Render(digest)
	if err != nil {
		if !errors.Is(err, domain.ErrRender) {
			err = fmt.Errorf("%w: %w", domain.ErrRender, err)
		}
		return report, err
	}
	report.Document = doc

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("before delivery: %w", err)
	}

	var failures []error
	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, doc); err != nil {
			log.Error("delivery failed", "sink", sink.Name(), "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		report.Delivered = append(report.Delivered, sink.Name())
		log.Info("digest delivered", "sink", sink.Name())
	}
	if len(failures) > 0 {
		return report, fmt.Errorf("%w: %w", domain.ErrDelivery, errors.Join(failures...))
	}

	log.Info("run finished", "papers", len(digest.Papers), "duration", time.Since(started).Round(time.Millisecond))
	return report, nil
}

func (p *Pipeline) record(fn func(ports.RunRecorder)) {
	if p.recorder != nil {
		fn(p.recorder)
	}
}
