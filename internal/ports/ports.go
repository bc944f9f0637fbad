package ports

import (
	"context"
	"time"

	"ArxivDigest/internal/domain"
)

// PaperSource pulls the candidate set for a window from the preprint repository.
// Any failure is reported as domain.ErrSourceUnavailable.
type PaperSource interface {
	FetchWindow(ctx context.Context, profile domain.Profile, window domain.Window) ([]domain.Paper, error)
}

// ListingCache stores raw listings keyed by scanner, category and day.
type ListingCache interface {
	Get(ctx context.Context, key string, day time.Time) ([]domain.Paper, bool, error)
	Put(ctx context.Context, key string, day time.Time, papers []domain.Paper) error
}

// Judge asks an external reasoning service to score papers against a profile.
// It returns one verdict per paper it could score. Errors wrap
// domain.ErrJudgeTransient or domain.ErrMalformedVerdict.
type Judge interface {
	Judge(ctx context.Context, profile domain.Profile, papers []domain.Paper) ([]domain.Verdict, error)
}

// Renderer turns a digest into a delivery-ready document.
type Renderer interface {
	Render(digest domain.Digest) (domain.Document, error)
}

// Sink accepts a finished document. Sinks own their retry policy.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, doc domain.Document) error
}

// RunRecorder collects per-run counters for batch metrics.
type RunRecorder interface {
	Fetched(n int)
	Scored(n, dropped int)
	Digest(n int)
	Finish(ctx context.Context, started time.Time, err error)
}
