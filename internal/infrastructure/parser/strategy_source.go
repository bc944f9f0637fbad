package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
	"ArxivDigest/internal/scanner"
	"ArxivDigest/internal/taxonomy"
)

// StrategySource implements PaperSource via a registered scanner strategy.
type StrategySource struct {
	registry *scanner.Registry
	kind     string
	cache    ports.ListingCache
	logger   *slog.Logger
}

var _ ports.PaperSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the configured source kind.
// cache may be nil.
func NewStrategySource(reg *scanner.Registry, kind string, cache ports.ListingCache, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		kind:     kind,
		cache:    cache,
		logger:   log,
	}
}

// FetchWindow runs the scanner for the profile's topic and returns the candidates
// published inside the window, deduplicated by ID (first seen wins) and restricted
// to the allow-list when category filtering is enabled.
func (s *StrategySource) FetchWindow(ctx context.Context, profile domain.Profile, window domain.Window) ([]domain.Paper, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: scanner registry is not configured", domain.ErrConfiguration)
	}

	topic, err := taxonomy.Lookup(profile.Topic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	strategy, err := s.registry.Resolve(s.kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	req := scanner.Request{Window: window, Archive: topic.Archive}
	if profile.FilterCategories {
		req.Categories = profile.Categories
	} else {
		req.Categories = topic.Codes()
		req.WholeArchive = true
	}

	s.debug("fetch window", "scanner", strategy.Name(), "listings", strings.Join(req.Listings(), ","),
		"from", window.Start.Format(time.DateOnly), "to", window.End.Format(time.DateOnly))

	papers, err := s.scan(ctx, strategy, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("scan %s: %w", strategy.Name(), ctxErr)
		}
		return nil, fmt.Errorf("%w: scan %s: %w", domain.ErrSourceUnavailable, strategy.Name(), err)
	}

	out := make([]domain.Paper, 0, len(papers))
	seen := make(map[string]struct{}, len(papers))
	for _, p := range papers {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		if profile.FilterCategories && !p.HasAnyCategory(profile.Categories) {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}

	s.debug("strategy source done", "scanned", len(papers), "candidates", len(out))
	return out, nil
}

func (s *StrategySource) scan(ctx context.Context, strategy scanner.Scanner, req scanner.Request) ([]domain.Paper, error) {
	if s.cache == nil {
		return strategy.Scan(ctx, req)
	}

	key := cacheKey(strategy.Name(), req)
	day := req.Window.End.UTC().Truncate(24 * time.Hour)

	cached, ok, err := s.cache.Get(ctx, key, day)
	switch {
	case err != nil:
		s.warn("listing cache read failed", "key", key, "error", err)
	case ok:
		s.debug("listing cache hit", "key", key, "papers", len(cached))
		return cached, nil
	}

	papers, err := strategy.Scan(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, key, day, papers); err != nil {
		s.warn("listing cache write failed", "key", key, "error", err)
	}
	return papers, nil
}

func cacheKey(name string, req scanner.Request) string {
	return fmt.Sprintf("%s|%s|%dd", name, strings.Join(req.Listings(), ","), req.Window.Days())
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
