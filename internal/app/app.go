package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ArxivDigest/internal/config"
	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/infrastructure/delivery"
	"ArxivDigest/internal/infrastructure/llm"
	"ArxivDigest/internal/infrastructure/metrics"
	"ArxivDigest/internal/infrastructure/ml"
	"ArxivDigest/internal/infrastructure/parser"
	"ArxivDigest/internal/infrastructure/storage"
	"ArxivDigest/internal/infrastructure/telegram"
	"ArxivDigest/internal/logging"
	"ArxivDigest/internal/ports"
	"ArxivDigest/internal/render"
	"ArxivDigest/internal/scanner"
	"ArxivDigest/internal/scoring"
	"ArxivDigest/internal/usecase"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitSource        = 3
	ExitRender        = 4
	ExitDelivery      = 5
	ExitInterrupted   = 6
)

// Options are per-invocation overrides coming from the command line.
type Options struct {
	// OutputPath replaces output.path when set.
	OutputPath string
	// NoDeliver skips every sink; the rendered document is still returned.
	NoDeliver bool
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	cache    *storage.ListingCache
}

// New builds a runnable application. cfg must already be validated.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	httpClient := &http.Client{Timeout: cfg.Source.Timeout}

	atom := parser.NewAtomScanner(httpClient, cfg.Source.APIURL, baseLogger.With("component", "scanner.atom")).
		WithPageSize(cfg.Source.PageSize)
	listing := parser.NewArxivScanner(httpClient, cfg.Source.BaseURL, baseLogger.With("component", "scanner.arxiv")).
		WithPageSize(cfg.Source.PageSize).
		WithAbstractLookup(atom)

	registry := scanner.NewRegistry()
	registry.Register(listing)
	registry.Register(atom)

	a := &Application{cfg: cfg, logger: baseLogger}

	var cache ports.ListingCache
	if cfg.Source.CacheDSN != "" {
		c, err := storage.OpenListingCache(ctx, cfg.Source.CacheDSN)
		if err != nil {
			baseLogger.Warn("listing cache disabled", "error", err)
		} else {
			a.cache, cache = c, c
			a.pruneCache(ctx)
		}
	}

	source := parser.NewStrategySource(registry, cfg.Source.Kind, cache, baseLogger.With("component", "source"))

	judge, err := newJudge(cfg, baseLogger.With("component", "judge"))
	if err != nil {
		a.Close()
		return nil, err
	}

	scorer := scoring.New(judge, scoring.Options{
		Concurrency:       cfg.Scoring.Concurrency,
		RequestsPerMinute: cfg.Scoring.RequestsPerMinute,
		MaxAttempts:       cfg.Scoring.MaxAttempts,
		BatchSize:         cfg.Scoring.BatchSize,
		RequestTimeout:    cfg.Scoring.RequestTimeout,
		InitialBackoff:    cfg.Scoring.InitialBackoff,
		MaxBackoff:        cfg.Scoring.MaxBackoff,
	}, baseLogger.With("component", "scorer"))

	renderer, err := render.New(cfg.Run.Location())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrRender, err)
	}

	var sinks []ports.Sink
	if !opts.NoDeliver {
		sinks, err = newSinks(ctx, cfg, opts)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	deps := usecase.PipelineDeps{
		Source:       source,
		Scorer:       scorer,
		Renderer:     renderer,
		Sinks:        sinks,
		Logger:       baseLogger.With("component", "pipeline"),
		LookbackDays: cfg.LookbackDays,
	}
	if rec := metrics.NewPushRecorder(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, cfg.Topic, baseLogger.With("component", "metrics")); rec != nil {
		deps.Recorder = rec
	}

	a.pipeline = usecase.NewPipeline(deps)
	return a, nil
}

func newJudge(cfg config.Config, log *slog.Logger) (ports.Judge, error) {
	switch cfg.Scoring.Backend {
	case config.BackendChatGPT:
		return llm.NewChatGPTJudge(cfg.ChatGPT, log), nil
	case config.BackendML:
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey), nil
	default:
		return nil, domain.Configuration("unknown scoring backend %q", cfg.Scoring.Backend)
	}
}

func newSinks(ctx context.Context, cfg config.Config, opts Options) ([]ports.Sink, error) {
	path := cfg.Output.Path
	if opts.OutputPath != "" {
		path = opts.OutputPath
	}

	var sinks []ports.Sink
	if path != "" {
		sinks = append(sinks, delivery.NewFileSink(path))
	}

	n := cfg.Notifications
	if n.S3.Enabled() {
		s3Sink, err := delivery.NewS3Sink(ctx, n.S3)
		if err != nil {
			return nil, domain.Configuration("s3 sink: %v", err)
		}
		sinks = append(sinks, s3Sink)
	}
	if n.Email.Enabled() {
		sinks = append(sinks, delivery.NewSendGridSink(n.Email))
	}
	if n.Telegram.Enabled() {
		sinks = append(sinks, telegram.NewNotifier(n.Telegram.BotToken, n.Telegram.ChatID))
	}
	return sinks, nil
}

// pruneCache drops listing snapshots older than today; they are never read again.
func (a *Application) pruneCache(ctx context.Context) {
	n, err := a.cache.Prune(ctx, pruneCutoff(time.Now()))
	if err != nil {
		a.logger.Warn("listing cache prune failed", "error", err)
		return
	}
	if n > 0 {
		a.logger.Debug("listing cache pruned", "rows", n)
	}
}

// pruneCutoff is the start of the current UTC day, the unit cache rows are keyed by.
func pruneCutoff(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour)
}

// Run performs a single digest run bounded by run.timeout.
func (a *Application) Run(ctx context.Context) (usecase.Report, error) {
	if a.pipeline == nil {
		return usecase.Report{}, domain.Configuration("application is not initialised")
	}

	if a.cfg.Run.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Run.Timeout)
		defer cancel()
	}

	a.logger.Info("configuration loaded", a.cfg.Summary()...)

	now := time.Now().In(a.cfg.Run.Location())
	return a.pipeline.Run(ctx, a.cfg.Profile(), now)
}

// Close releases the listing cache.
func (a *Application) Close() {
	if a == nil || a.cache == nil {
		return
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("close listing cache", "error", err)
	}
	a.cache = nil
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, domain.ErrSourceUnavailable):
		return ExitSource
	case errors.Is(err, domain.ErrRender):
		return ExitRender
	case errors.Is(err, domain.ErrDelivery):
		return ExitDelivery
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
