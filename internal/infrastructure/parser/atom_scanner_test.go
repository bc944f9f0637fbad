package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/scanner"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <id>http://arxiv.org/api/query-id</id>
  <updated>2025-10-09T00:00:00-04:00</updated>
  <entry>
    <id>http://arxiv.org/abs/2510.00003v1</id>
    <updated>2025-10-08T17:59:59Z</updated>
    <published>2025-10-08T17:59:59Z</published>
    <title>Atom   Paper</title>
    <summary>  Some abstract
  text. </summary>
    <author><name>Grace Hopper</name></author>
    <author><name>Barbara Liskov</name></author>
    <link href="http://arxiv.org/abs/2510.00003v1" rel="alternate" type="text/html"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
    <category term="stat.ML" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2509.00042v2</id>
    <updated>2025-09-01T10:00:00Z</updated>
    <published>2025-09-01T10:00:00Z</published>
    <title>Stale Paper</title>
    <summary>old</summary>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

const atomErrorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <id>http://arxiv.org/api/query-id</id>
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_bogus</id>
    <title>Error</title>
    <summary>incorrect id format for bogus</summary>
  </entry>
</feed>`

func TestAtomScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "cat:cs.LG OR cat:stat.ML", q.Get("search_query"))
		assert.Equal(t, "submittedDate", q.Get("sortBy"))
		assert.Equal(t, "descending", q.Get("sortOrder"))
		assert.Equal(t, "0", q.Get("start"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	sc := NewAtomScanner(server.Client(), server.URL, nil).WithPageSize(10).WithPause(0)

	now := time.Date(2025, time.October, 9, 12, 0, 0, 0, time.UTC)
	papers, err := sc.Scan(context.Background(), scanner.Request{
		Window:     domain.LookbackWindow(now, 7),
		Archive:    "cs",
		Categories: []string{"cs.LG", "stat.ML"},
	})
	require.NoError(t, err)
	require.Len(t, papers, 1)

	p := papers[0]
	assert.Equal(t, "2510.00003v1", p.ID)
	assert.Equal(t, "Atom Paper", p.Title)
	assert.Equal(t, "Some abstract text.", p.Abstract)
	assert.Equal(t, []string{"Grace Hopper", "Barbara Liskov"}, p.Authors)
	assert.Equal(t, []string{"cs.LG", "stat.ML"}, p.Categories)
	assert.Equal(t, "http://arxiv.org/abs/2510.00003v1", p.URL)
	assert.Equal(t, "2025-10-08", p.PublishedAt.Format(time.DateOnly))
}

func TestAtomScannerQueriesArchiveWithoutCategories(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cat:quant-ph", categoryQuery(scanner.Request{Archive: "quant-ph"}))
	assert.Equal(t, "cat:cs.AI OR cat:cs.CL", categoryQuery(scanner.Request{
		Archive:      "cs",
		Categories:   []string{"cs.AI", " cs.CL "},
		WholeArchive: true,
	}))
}

func TestAtomScannerLookup(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2510.00003,2509.00042", r.URL.Query().Get("id_list"))
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer server.Close()

	sc := NewAtomScanner(server.Client(), server.URL, nil).WithPause(0)
	found, err := sc.Lookup(context.Background(), []string{"2510.00003", "2509.00042"})
	require.NoError(t, err)

	require.Contains(t, found, "2510.00003")
	require.Contains(t, found, "2509.00042")
	assert.Equal(t, "Some abstract text.", found["2510.00003"].Abstract)
	assert.Equal(t, "old", found["2509.00042"].Abstract)
}

func TestAtomScannerReportsAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(atomErrorFeed))
	}))
	defer server.Close()

	sc := NewAtomScanner(server.Client(), server.URL, nil).WithPause(0)
	_, err := sc.Lookup(context.Background(), []string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect id format")
}

func TestAtomScannerHonoursCancellationBetweenPages(t *testing.T) {
	t.Parallel()

	sc := NewAtomScanner(nil, "http://127.0.0.1:0", nil).WithPause(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, sc.wait(ctx), context.Canceled)
}
