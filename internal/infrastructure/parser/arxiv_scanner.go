package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/scanner"
)

const (
	defaultArxivBaseURL = "https://arxiv.org"
	userAgent           = "ArxivDigest/1.0 (+https://arxiv.org/help/robots)"
)

var (
	dateExpr      = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)
	submittedExpr = regexp.MustCompile(`\(submitted ([^)]*)\)`)
	subjectExpr   = regexp.MustCompile(`\(([A-Za-z][A-Za-z\-]*(?:\.[A-Za-z\-]+)?)\)`)
	spaceExpr     = regexp.MustCompile(`\s+`)
)

// AbstractLookup fills in abstracts for IDs whose listing entry has none.
type AbstractLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]domain.Paper, error)
}

// ArxivScanner crawls listing pages and extracts the papers inside the requested window.
type ArxivScanner struct {
	client   *http.Client
	baseURL  string
	pageSize int
	lookup   AbstractLookup
	logger   *slog.Logger
}

var _ scanner.Scanner = (*ArxivScanner)(nil)

// NewArxivScanner wires an HTTP client; pageSize defaults to 500.
func NewArxivScanner(client *http.Client, baseURL string, log *slog.Logger) *ArxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultArxivBaseURL
	}
	return &ArxivScanner{
		client:   client,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		pageSize: 500,
		logger:   log,
	}
}

// WithPageSize overrides how many entries are requested per page.
func (a *ArxivScanner) WithPageSize(n int) *ArxivScanner {
	if n > 0 {
		a.pageSize = n
	}
	return a
}

// WithAbstractLookup enables abstract enrichment for listings that omit them (pastweek).
func (a *ArxivScanner) WithAbstractLookup(lookup AbstractLookup) *ArxivScanner {
	a.lookup = lookup
	return a
}

// Name identifies the strategy inside the registry.
func (a *ArxivScanner) Name() string {
	return "arxiv-list"
}

// Scan walks through each listing and returns every paper published inside the window.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	listings := req.Listings()
	if len(listings) == 0 || listings[0] == "" {
		return nil, fmt.Errorf("no listings requested")
	}

	page := "pastweek"
	if req.Window.Days() <= 1 {
		page = "new"
	}

	results := make([]domain.Paper, 0)
	seen := map[string]struct{}{}

	for _, code := range listings {
		skip := 0
		inListing := map[string]struct{}{}
		for {
			pageURL, err := buildPageURL(fmt.Sprintf("%s/list/%s/%s", a.baseURL, code, page), skip, a.pageSize)
			if err != nil {
				return nil, fmt.Errorf("listing %s: %w", code, err)
			}

			doc, err := a.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("listing %s: %w", code, err)
			}

			pagePapers, shouldContinue := a.extractPapers(doc, req.Window)
			fresh := 0
			for _, paper := range pagePapers {
				if _, ok := inListing[paper.ID]; !ok {
					inListing[paper.ID] = struct{}{}
					fresh++
				}
				if _, ok := seen[paper.ID]; ok {
					continue
				}
				seen[paper.ID] = struct{}{}
				results = append(results, paper)
			}

			a.debug("listing page parsed", "listing", code, "skip", skip, "papers", len(pagePapers), "fresh", fresh)
			if !shouldContinue {
				break
			}
			// a page that repeats what we already have means upstream ignored skip
			if fresh == 0 {
				a.debug("listing page added nothing, stopping", "listing", code, "skip", skip)
				break
			}
			skip += a.pageSize
		}
	}

	if err := a.enrichAbstracts(ctx, results); err != nil {
		return nil, err
	}

	return results, nil
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	if doc.Find("dt").Length() == 0 && doc.Find("h3").Length() == 0 && doc.Find("#dlpage").Length() == 0 {
		return nil, fmt.Errorf("parse document: no listing found at %s", pageURL)
	}

	return doc, nil
}

// extractPapers walks headings and entries in document order. Day headings
// date the entries below them; replacement sections are skipped.
func (a *ArxivScanner) extractPapers(doc *goquery.Document, window domain.Window) ([]domain.Paper, bool) {
	var (
		collected    []domain.Paper
		continueScan = true
		processed    int
		headingDay   time.Time
		replacements bool
	)

	doc.Find("h3, dt").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if goquery.NodeName(node) == "h3" {
			heading := node.Text()
			replacements = strings.Contains(strings.ToLower(heading), "replacement")
			headingDay = parseDay(heading)
			return true
		}

		processed++
		dd := node.Next()
		if goquery.NodeName(dd) != "dd" || replacements {
			return true
		}

		paper, err := parseEntry(node, dd, a.baseURL, headingDay, window.End)
		if err != nil {
			a.debug("skip entry", "error", err)
			return true
		}

		if paper.PublishedAt.Before(window.Start) {
			continueScan = false
			return false
		}
		if window.Contains(paper.PublishedAt) {
			collected = append(collected, paper)
		}
		return true
	})

	if processed < a.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func (a *ArxivScanner) enrichAbstracts(ctx context.Context, papers []domain.Paper) error {
	if a.lookup == nil {
		return nil
	}

	var missing []string
	for _, p := range papers {
		if p.Abstract == "" {
			missing = append(missing, p.ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	found, err := a.lookup.Lookup(ctx, missing)
	if err != nil {
		return fmt.Errorf("lookup abstracts: %w", err)
	}

	for i := range papers {
		if papers[i].Abstract != "" {
			continue
		}
		if full, ok := found[domain.CanonicalID(papers[i].ID)]; ok {
			papers[i].Abstract = full.Abstract
			if len(papers[i].Authors) == 0 {
				papers[i].Authors = full.Authors
			}
		}
	}
	a.debug("abstracts enriched", "requested", len(missing), "found", len(found))
	return nil
}

func parseEntry(dt, dd *goquery.Selection, baseURL string, headingDay, fallback time.Time) (domain.Paper, error) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	id := strings.TrimSpace(link.Text())
	href, _ := link.Attr("href")
	if id == "" && href != "" {
		id = href[strings.LastIndex(href, "/abs/")+len("/abs/"):]
	}
	id = strings.TrimPrefix(id, "arXiv:")
	if id == "" {
		return domain.Paper{}, fmt.Errorf("entry without identifier")
	}

	if href == "" {
		href = "/abs/" + id
	}
	if !strings.HasPrefix(href, "http") {
		href = baseURL + href
	}

	title := clean(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	if title == "" {
		return domain.Paper{}, fmt.Errorf("entry %s without title", id)
	}

	var authors []string
	dd.Find(".list-authors a").Each(func(_ int, s *goquery.Selection) {
		if name := clean(s.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	abstract := clean(dd.Find("p.mathjax").First().Text())
	abstract = strings.TrimSpace(strings.TrimPrefix(abstract, "Abstract:"))

	return domain.Paper{
		ID:          id,
		Title:       title,
		Abstract:    abstract,
		Authors:     authors,
		URL:         href,
		Categories:  parseSubjects(dd.Find(".list-subjects").First().Text()),
		PublishedAt: entryDate(dd, headingDay, fallback),
	}, nil
}

// entryDate prefers an explicit entry date, then the section heading, then
// a "(submitted ...)" comment, then the fallback.
func entryDate(dd *goquery.Selection, headingDay, fallback time.Time) time.Time {
	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}
	if day := parseDay(dateText); !day.IsZero() {
		return day
	}
	if !headingDay.IsZero() {
		return headingDay
	}
	if m := submittedExpr.FindStringSubmatch(dd.Find(".list-comments").First().Text()); m != nil {
		if day := parseDay(m[1]); !day.IsZero() {
			return day
		}
	}
	return fallback.UTC()
}

func parseDay(text string) time.Time {
	match := dateExpr.FindString(text)
	if match == "" {
		return time.Time{}
	}
	parsed, err := time.Parse("2 Jan 2006", match)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func parseSubjects(text string) []string {
	matches := subjectExpr.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func clean(text string) string {
	return strings.TrimSpace(spaceExpr.ReplaceAllString(text, " "))
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (a *ArxivScanner) debug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
