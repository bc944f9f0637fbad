// Package scoring runs the relevance judge over the candidate set with bounded
// concurrency, throttling and per-attempt retry.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
)

// Options tunes the scorer. Zero values fall back to the defaults below.
type Options struct {
	Concurrency       int
	RequestsPerMinute int
	MaxAttempts       int
	BatchSize         int
	RequestTimeout    time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = time.Minute
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 2 * time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Stats summarises one scoring pass.
type Stats struct {
	Candidates int
	Scored     int
	Dropped    int
	Calls      int
	Retries    int
}

// Scorer fans candidate batches out to a Judge.
type Scorer struct {
	judge   ports.Judge
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New builds a scorer. A non-positive RequestsPerMinute disables throttling.
func New(judge ports.Judge, opts Options, log *slog.Logger) *Scorer {
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(opts.RequestsPerMinute) / 60)
	}

	return &Scorer{
		judge:   judge,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log,
	}
}

type batchResult struct {
	scored  []domain.ScoredPaper
	dropped int
}

// Score judges every paper and returns the ones that received a valid score, in
// input order. Per-paper failures are logged and dropped. The only error is the
// context's: a cancelled run yields no partial result.
func (s *Scorer) Score(ctx context.Context, profile domain.Profile, papers []domain.Paper) ([]domain.ScoredPaper, Stats, error) {
	stats := Stats{Candidates: len(papers)}
	if len(papers) == 0 {
		return nil, stats, nil
	}

	batches := chunk(papers, s.opts.BatchSize)
	results := make([]batchResult, len(batches))

	var calls, retries atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, batch := range batches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			verdicts, attempts, err := s.judgeWithRetry(gctx, profile, batch)
			calls.Add(int64(attempts))
			if attempts > 1 {
				retries.Add(int64(attempts - 1))
			}
			if err != nil && !errors.Is(err, domain.ErrScoring) {
				return err
			}
			results[i] = s.collect(batch, verdicts, err)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	scored := make([]domain.ScoredPaper, 0, len(papers))
	for _, r := range results {
		scored = append(scored, r.scored...)
		stats.Dropped += r.dropped
	}
	stats.Scored = len(scored)
	stats.Calls = int(calls.Load())
	stats.Retries = int(retries.Load())

	s.info("scoring finished", "candidates", stats.Candidates, "scored", stats.Scored,
		"dropped", stats.Dropped, "calls", stats.Calls, "retries", stats.Retries)
	return scored, stats, nil
}

// judgeWithRetry returns either verdicts, an ErrScoring failure for the batch,
// or the parent context's error. A wait longer than MaxBackoff, or one that would
// outlast ctx, drops the batch instead of sleeping.
func (s *Scorer) judgeWithRetry(ctx context.Context, profile domain.Profile, batch []domain.Paper) ([]domain.Verdict, int, error) {
	backoff := s.opts.InitialBackoff

	for attempt := 1; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, attempt - 1, ctxErr
			}
			return nil, attempt - 1, fmt.Errorf("%w: throttle: %w", domain.ErrScoring, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		verdicts, err := s.judge.Judge(attemptCtx, profile, batch)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return verdicts, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempt, ctxErr
		}
		if timedOut && !errors.Is(err, domain.ErrJudgeTransient) {
			err = domain.Transient(fmt.Errorf("no answer within %s: %w", s.opts.RequestTimeout, err), 0)
		}
		if !errors.Is(err, domain.ErrJudgeTransient) || attempt >= s.opts.MaxAttempts {
			return nil, attempt, fmt.Errorf("%w: attempt %d/%d: %w", domain.ErrScoring, attempt, s.opts.MaxAttempts, err)
		}

		delay := max(backoff, domain.RetryAfter(err))
		backoff = min(backoff*2, s.opts.MaxBackoff)
		if delay > s.opts.MaxBackoff || !fitsDeadline(ctx, delay) {
			return nil, attempt, fmt.Errorf("%w: attempt %d/%d: retry in %s is past the backoff budget: %w",
				domain.ErrScoring, attempt, s.opts.MaxAttempts, delay, err)
		}

		s.debug("retrying judge call", "attempt", attempt, "delay", delay, "batch", len(batch), "error", err)
		if err := sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}

// collect matches verdicts to the batch by canonical ID, range-checks scores and
// logs every paper it has to drop.
func (s *Scorer) collect(batch []domain.Paper, verdicts []domain.Verdict, failure error) batchResult {
	if failure != nil {
		for _, p := range batch {
			s.drop(p, failure)
		}
		return batchResult{dropped: len(batch)}
	}

	byID := make(map[string]domain.Verdict, len(verdicts))
	for _, v := range verdicts {
		key := domain.CanonicalID(v.PaperID)
		if _, dup := byID[key]; !dup {
			byID[key] = v
		}
	}
	// a lone verdict for a lone paper is accepted even if the model mangled the id
	if len(batch) == 1 && len(verdicts) == 1 {
		byID = map[string]domain.Verdict{domain.CanonicalID(batch[0].ID): verdicts[0]}
	}

	out := batchResult{scored: make([]domain.ScoredPaper, 0, len(batch))}
	for _, p := range batch {
		v, ok := byID[domain.CanonicalID(p.ID)]
		switch {
		case !ok:
			s.drop(p, fmt.Errorf("%w: %w", domain.ErrScoring, domain.Malformed("no verdict returned")))
			out.dropped++
		case v.Score < domain.MinScore || v.Score > domain.MaxScore:
			s.drop(p, fmt.Errorf("%w: %w", domain.ErrScoring, domain.Malformed("score %g outside %g-%g", v.Score, domain.MinScore, domain.MaxScore)))
			out.dropped++
		default:
			out.scored = append(out.scored, domain.ScoredPaper{Paper: p, Score: v.Score, Rationale: v.Rationale})
		}
	}
	return out
}

func chunk(papers []domain.Paper, size int) [][]domain.Paper {
	out := make([][]domain.Paper, 0, (len(papers)+size-1)/size)
	for i := 0; i < len(papers); i += size {
		out = append(out, papers[i:min(i+size, len(papers))])
	}
	return out
}

// fitsDeadline reports whether waiting d still leaves time before ctx expires.
func fitsDeadline(ctx context.Context, d time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) > d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scorer) drop(p domain.Paper, err error) {
	if s.logger != nil {
		s.logger.Warn("paper dropped", "paper_id", p.ID, "error", err)
	}
}

func (s *Scorer) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scorer) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
