package parser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/scanner"
)

type fakeScanner struct {
	papers []domain.Paper
	err    error
	calls  int
	last   scanner.Request
}

func (f *fakeScanner) Name() string { return "arxiv-list" }

func (f *fakeScanner) Scan(_ context.Context, req scanner.Request) ([]domain.Paper, error) {
	f.calls++
	f.last = req
	return f.papers, f.err
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]domain.Paper
}

func (m *memoryCache) Get(_ context.Context, key string, day time.Time) ([]domain.Paper, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	papers, ok := m.entries[key+day.Format(time.DateOnly)]
	return papers, ok, nil
}

func (m *memoryCache) Put(_ context.Context, key string, day time.Time, papers []domain.Paper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string][]domain.Paper{}
	}
	m.entries[key+day.Format(time.DateOnly)] = papers
	return nil
}

func newSource(sc scanner.Scanner, cache *memoryCache) *StrategySource {
	reg := scanner.NewRegistry()
	reg.Register(sc)
	if cache == nil {
		return NewStrategySource(reg, "arxiv-list", nil, nil)
	}
	return NewStrategySource(reg, "arxiv-list", cache, nil)
}

func testWindow() domain.Window {
	return domain.LookbackWindow(time.Date(2025, time.October, 9, 12, 0, 0, 0, time.UTC), 7)
}

func TestStrategySourceFiltersAndDeduplicates(t *testing.T) {
	t.Parallel()

	sc := &fakeScanner{papers: []domain.Paper{
		{ID: "1", Title: "first", Categories: []string{"cs.LG"}},
		{ID: "2", Title: "robotics only", Categories: []string{"cs.RO"}},
		{ID: "1", Title: "duplicate", Categories: []string{"cs.LG"}},
		{ID: "3", Title: "cross-listed", Categories: []string{"stat.ML", "cs.cl"}},
	}}

	profile := domain.Profile{
		Topic:            "Computer Science",
		Categories:       []string{"cs.LG", "cs.CL"},
		FilterCategories: true,
	}

	papers, err := newSource(sc, nil).FetchWindow(context.Background(), profile, testWindow())
	require.NoError(t, err)

	require.Len(t, papers, 2)
	assert.Equal(t, "first", papers[0].Title)
	assert.Equal(t, "3", papers[1].ID)
	assert.Equal(t, []string{"cs.LG", "cs.CL"}, sc.last.Listings())
}

func TestStrategySourceScansWholeArchiveWhenFilterDisabled(t *testing.T) {
	t.Parallel()

	sc := &fakeScanner{papers: []domain.Paper{
		{ID: "1", Categories: []string{"cs.RO"}},
		{ID: "2", Categories: []string{"math.CO"}},
	}}

	profile := domain.Profile{Topic: "Computer Science"}
	papers, err := newSource(sc, nil).FetchWindow(context.Background(), profile, testWindow())
	require.NoError(t, err)

	assert.Len(t, papers, 2)
	assert.True(t, sc.last.WholeArchive)
	assert.Equal(t, []string{"cs"}, sc.last.Listings())
	assert.Contains(t, sc.last.Categories, "cs.AI")
}

func TestStrategySourceUnavailable(t *testing.T) {
	t.Parallel()

	sc := &fakeScanner{err: errors.New("connection refused")}
	profile := domain.Profile{Topic: "Computer Science", Categories: []string{"cs.LG"}, FilterCategories: true}

	_, err := newSource(sc, nil).FetchWindow(context.Background(), profile, testWindow())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStrategySourceCancelledIsNotUnavailable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := &fakeScanner{err: context.Canceled}
	profile := domain.Profile{Topic: "Computer Science", Categories: []string{"cs.LG"}, FilterCategories: true}

	_, err := newSource(sc, nil).FetchWindow(ctx, profile, testWindow())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestStrategySourceConfigurationErrors(t *testing.T) {
	t.Parallel()

	sc := &fakeScanner{}
	_, err := newSource(sc, nil).FetchWindow(context.Background(), domain.Profile{Topic: "Physics"}, testWindow())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	reg := scanner.NewRegistry()
	_, err = NewStrategySource(reg, "arxiv-api", nil, nil).
		FetchWindow(context.Background(), domain.Profile{Topic: "Statistics"}, testWindow())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Zero(t, sc.calls)
}

func TestStrategySourceUsesListingCache(t *testing.T) {
	t.Parallel()

	sc := &fakeScanner{papers: []domain.Paper{{ID: "1", Categories: []string{"cs.LG"}}}}
	cache := &memoryCache{}
	src := newSource(sc, cache)
	profile := domain.Profile{Topic: "Computer Science", Categories: []string{"cs.LG"}, FilterCategories: true}

	first, err := src.FetchWindow(context.Background(), profile, testWindow())
	require.NoError(t, err)
	second, err := src.FetchWindow(context.Background(), profile, testWindow())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, sc.calls)
}
