package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (namedScanner) Scan(context.Context, Request) ([]domain.Paper, error) { return nil, nil }

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(namedScanner("arxiv-list"))
	reg.Register(namedScanner("arxiv-api"))

	got, err := reg.Resolve("arxiv-api")
	require.NoError(t, err)
	assert.Equal(t, "arxiv-api", got.Name())
	assert.Equal(t, []string{"arxiv-api", "arxiv-list"}, reg.Names())

	_, err = reg.Resolve("oai-pmh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "have: arxiv-api, arxiv-list")
}

func TestRequestListings(t *testing.T) {
	t.Parallel()

	req := Request{Archive: "cs", Categories: []string{"cs.LG", "cs.CL"}}
	assert.Equal(t, []string{"cs.LG", "cs.CL"}, req.Listings())

	req.WholeArchive = true
	assert.Equal(t, []string{"cs"}, req.Listings())

	assert.Equal(t, []string{"math"}, Request{Archive: "math"}.Listings())
}
