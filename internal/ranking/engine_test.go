package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
)

func scoredPaper(id string, score float64, cats ...string) domain.ScoredPaper {
	return domain.ScoredPaper{
		Paper: domain.Paper{ID: id, Title: "paper " + id, Categories: cats},
		Score: score,
	}
}

func ids(d domain.Digest) []string {
	out := make([]string, 0, len(d.Papers))
	for _, p := range d.Papers {
		out = append(out, p.Paper.ID)
	}
	return out
}

var scenarioCandidates = []domain.ScoredPaper{
	scoredPaper("1", 7, "X"),
	scoredPaper("2", 3, "X"),
	scoredPaper("3", 8, "Y"),
}

func TestBuildFiltersByCategoryAndThreshold(t *testing.T) {
	t.Parallel()

	profile := domain.Profile{Categories: []string{"X"}, FilterCategories: true, Threshold: 5}
	digest := Build(profile, scenarioCandidates, domain.DigestMeta{Topic: "t"})

	assert.Equal(t, []string{"1"}, ids(digest))
	assert.Equal(t, "t", digest.Meta.Topic)
}

func TestBuildIgnoresCategoriesWhenFilterDisabled(t *testing.T) {
	t.Parallel()

	profile := domain.Profile{Categories: []string{"X"}, Threshold: 5}
	digest := Build(profile, scenarioCandidates, domain.DigestMeta{})

	assert.Equal(t, []string{"3", "1"}, ids(digest))
}

func TestBuildEmptyWhenEverythingBelowThreshold(t *testing.T) {
	t.Parallel()

	profile := domain.Profile{Threshold: 9}
	digest := Build(profile, scenarioCandidates, domain.DigestMeta{})

	assert.True(t, digest.Empty())
	assert.NotNil(t, digest.Papers)
}

func TestBuildThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	digest := Build(domain.Profile{Threshold: 7}, scenarioCandidates, domain.DigestMeta{})
	assert.Equal(t, []string{"3", "1"}, ids(digest))
}

func TestBuildTiesBreakByID(t *testing.T) {
	t.Parallel()

	in := []domain.ScoredPaper{
		scoredPaper("2501.3", 6),
		scoredPaper("2501.1", 6),
		scoredPaper("2501.9", 9.5),
		scoredPaper("2501.2", 6),
	}
	digest := Build(domain.Profile{}, in, domain.DigestMeta{})
	assert.Equal(t, []string{"2501.9", "2501.1", "2501.2", "2501.3"}, ids(digest))
}

func TestBuildDeduplicatesFirstSeenWins(t *testing.T) {
	t.Parallel()

	first := scoredPaper("a", 6)
	first.Rationale = "first"
	second := scoredPaper("a", 9)
	second.Rationale = "second"

	digest := Build(domain.Profile{}, []domain.ScoredPaper{first, scoredPaper("b", 7), second}, domain.DigestMeta{})
	require.Len(t, digest.Papers, 2)
	assert.Equal(t, []string{"b", "a"}, ids(digest))
	assert.Equal(t, "first", digest.Papers[1].Rationale)
}

func TestBuildIsIdempotent(t *testing.T) {
	t.Parallel()

	in := []domain.ScoredPaper{
		scoredPaper("c", 4, "X"), scoredPaper("a", 8, "X"), scoredPaper("b", 8, "X"), scoredPaper("d", 10, "Z"),
	}
	profile := domain.Profile{Categories: []string{"X"}, FilterCategories: true, Threshold: 4}
	meta := domain.DigestMeta{GeneratedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	once := Build(profile, in, meta)
	twice := Build(profile, once.Papers, meta)
	assert.Equal(t, once, twice)

	reversed := []domain.ScoredPaper{in[3], in[2], in[1], in[0]}
	assert.Equal(t, once, Build(profile, reversed, meta), "order depends on score and id only")
	assert.Equal(t, "c", in[0].Paper.ID, "input untouched")
}
