package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/scanner"
)

const (
	defaultArxivAPIURL = "https://export.arxiv.org/api/query"
	lookupChunk        = 100
)

// AtomScanner queries the arXiv export API and parses its Atom feed.
type AtomScanner struct {
	client   *http.Client
	endpoint string
	pageSize int
	// pause spaces consecutive API calls; the export API asks for ~3s.
	pause  time.Duration
	logger *slog.Logger
}

var (
	_ scanner.Scanner = (*AtomScanner)(nil)
	_ AbstractLookup  = (*AtomScanner)(nil)
)

// NewAtomScanner builds an API scanner; pageSize defaults to 200.
func NewAtomScanner(client *http.Client, endpoint string, log *slog.Logger) *AtomScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if endpoint == "" {
		endpoint = defaultArxivAPIURL
	}
	return &AtomScanner{
		client:   client,
		endpoint: endpoint,
		pageSize: 200,
		pause:    3 * time.Second,
		logger:   log,
	}
}

// WithPageSize overrides max_results per request.
func (s *AtomScanner) WithPageSize(n int) *AtomScanner {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// WithPause overrides the delay between consecutive API calls.
func (s *AtomScanner) WithPause(d time.Duration) *AtomScanner {
	s.pause = d
	return s
}

// Name identifies the strategy inside the registry.
func (s *AtomScanner) Name() string {
	return "arxiv-api"
}

// Scan pages through newest-first results until entries fall before the window.
func (s *AtomScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	query := categoryQuery(req)
	if query == "" {
		return nil, fmt.Errorf("no categories requested")
	}

	var (
		results = make([]domain.Paper, 0)
		seen    = map[string]struct{}{}
	)

	for start := 0; ; start += s.pageSize {
		params := url.Values{}
		params.Set("search_query", query)
		params.Set("sortBy", "submittedDate")
		params.Set("sortOrder", "descending")
		params.Set("start", strconv.Itoa(start))
		params.Set("max_results", strconv.Itoa(s.pageSize))

		if start > 0 {
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
		}

		feed, err := s.fetchFeed(ctx, params)
		if err != nil {
			return nil, err
		}

		older := false
		for _, item := range feed.Items {
			paper := paperFromItem(item)
			if paper.ID == "" || paper.PublishedAt.IsZero() {
				continue
			}
			if paper.PublishedAt.Before(req.Window.Start) {
				older = true
				break
			}
			if !req.Window.Contains(paper.PublishedAt) {
				continue
			}
			if _, ok := seen[paper.ID]; ok {
				continue
			}
			seen[paper.ID] = struct{}{}
			results = append(results, paper)
		}

		s.debug("api page parsed", "start", start, "items", len(feed.Items), "kept", len(results))
		if older || len(feed.Items) < s.pageSize {
			break
		}
	}

	return results, nil
}

// Lookup fetches full metadata for the given IDs, keyed by version-less ID.
func (s *AtomScanner) Lookup(ctx context.Context, ids []string) (map[string]domain.Paper, error) {
	out := make(map[string]domain.Paper, len(ids))
	for i := 0; i < len(ids); i += lookupChunk {
		end := min(i+lookupChunk, len(ids))
		chunk := ids[i:end]

		if i > 0 {
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
		}

		params := url.Values{}
		params.Set("id_list", strings.Join(chunk, ","))
		params.Set("max_results", strconv.Itoa(len(chunk)))

		feed, err := s.fetchFeed(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, item := range feed.Items {
			paper := paperFromItem(item)
			if paper.ID == "" {
				continue
			}
			out[domain.CanonicalID(paper.ID)] = paper
		}
	}
	return out, nil
}

func (s *AtomScanner) fetchFeed(ctx context.Context, params url.Values) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv api returned %s", resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	// The API reports bad queries as a single entry titled "Error".
	if len(feed.Items) == 1 && strings.Contains(feed.Items[0].GUID, "/api/errors") {
		return nil, fmt.Errorf("arxiv api error: %s", clean(feed.Items[0].Description))
	}

	return feed, nil
}

func (s *AtomScanner) wait(ctx context.Context) error {
	if s.pause <= 0 {
		return nil
	}
	timer := time.NewTimer(s.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func categoryQuery(req scanner.Request) string {
	codes := req.Categories
	if len(codes) == 0 {
		codes = []string{req.Archive}
	}

	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			parts = append(parts, "cat:"+code)
		}
	}
	return strings.Join(parts, " OR ")
}

func paperFromItem(item *gofeed.Item) domain.Paper {
	if item == nil {
		return domain.Paper{}
	}

	id := item.GUID
	if idx := strings.LastIndex(id, "/abs/"); idx >= 0 {
		id = id[idx+len("/abs/"):]
	}

	var authors []string
	for _, person := range item.Authors {
		if person != nil && person.Name != "" {
			authors = append(authors, clean(person.Name))
		}
	}

	var published time.Time
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	link := item.Link
	if link == "" {
		link = item.GUID
	}

	return domain.Paper{
		ID:          id,
		Title:       clean(item.Title),
		Abstract:    clean(item.Description),
		Authors:     authors,
		URL:         link,
		Categories:  append([]string(nil), item.Categories...),
		PublishedAt: published,
	}
}

func (s *AtomScanner) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
