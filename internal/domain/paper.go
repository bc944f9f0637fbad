package domain

import (
	"regexp"
	"strings"
	"time"
)

const (
	// MinScore and MaxScore bound every relevance score accepted from a judge.
	MinScore = 0.0
	MaxScore = 10.0
)

// Paper is a candidate record fetched from the preprint source.
type Paper struct {
	ID          string
	Title       string
	Abstract    string
	Authors     []string
	URL         string
	Categories  []string
	PublishedAt time.Time
}

// HasAnyCategory reports whether the paper carries at least one of the given codes.
func (p Paper) HasAnyCategory(allowed []string) bool {
	for _, c := range p.Categories {
		for _, a := range allowed {
			if strings.EqualFold(c, a) {
				return true
			}
		}
	}
	return false
}

var versionSuffix = regexp.MustCompile(`v\d+$`)

// CanonicalID strips the "arXiv:" prefix and the version suffix so that
// identifiers from listings, the API and judges compare equal.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) >= 6 && strings.EqualFold(id[:6], "arxiv:") {
		id = id[6:]
	}
	return versionSuffix.ReplaceAllString(id, "")
}

// Profile is the subscriber's interest profile plus filtering parameters.
type Profile struct {
	Topic            string
	Preferences      string
	Guidance         string
	Categories       []string
	FilterCategories bool
	Threshold        float64
}

// InterestText renders the free-text part of the profile exactly as configured.
func (p Profile) InterestText() string {
	var b strings.Builder
	b.WriteString("Topic: ")
	b.WriteString(p.Topic)
	if p.Preferences != "" {
		b.WriteString("\nPreference hierarchy:\n")
		b.WriteString(p.Preferences)
	}
	if p.Guidance != "" {
		b.WriteString("\nInclusion and exclusion guidance:\n")
		b.WriteString(p.Guidance)
	}
	return b.String()
}

// Verdict is a judge's answer for a single paper.
type Verdict struct {
	PaperID   string
	Score     float64
	Rationale string
}

// ScoredPaper couples a candidate with the score it was assigned.
type ScoredPaper struct {
	Paper     Paper
	Score     float64
	Rationale string
}

// Window is the inclusive publication range [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// LookbackWindow returns the window covering the trailing days up to now.
func LookbackWindow(now time.Time, days int) Window {
	end := now.UTC()
	start := end.Truncate(24*time.Hour).AddDate(0, 0, -days)
	return Window{Start: start, End: end}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	if t.Before(w.Start) {
		return false
	}
	return !t.After(w.End)
}

// Days returns the number of calendar days the window spans.
func (w Window) Days() int {
	d := int(w.End.Sub(w.Start).Hours() / 24)
	if d < 1 {
		return 1
	}
	return d
}

// DigestMeta is the run metadata attached to a digest.
type DigestMeta struct {
	RunID       string
	Topic       string
	GeneratedAt time.Time
	Window      Window
}

// Digest is the ordered, filtered and deduplicated result of a run.
type Digest struct {
	Meta   DigestMeta
	Papers []ScoredPaper
}

// Empty reports whether no paper passed filtering.
func (d Digest) Empty() bool {
	return len(d.Papers) == 0
}

// Document is a rendered digest ready for delivery.
type Document struct {
	RunID       string
	Topic       string
	Subject     string
	HTML        []byte
	GeneratedAt time.Time
	Digest      Digest
}
