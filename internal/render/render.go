// Package render produces the HTML document for a digest.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
)

// SubjectLayout formats the generation date in the document and mail subject.
const SubjectLayout = "Personalized arXiv Digest, 02 Jan 2006"

//go:embed templates/digest.html
var templates embed.FS

// HTMLRenderer renders digests with html/template. Paper fields are plain text:
// a "<" in a title is a less-than sign and comes out escaped, never parsed.
type HTMLRenderer struct {
	tmpl     *template.Template
	location *time.Location
}

var _ ports.Renderer = (*HTMLRenderer)(nil)

// New parses the embedded template. Dates are shown in loc (UTC when nil).
func New(loc *time.Location) (*HTMLRenderer, error) {
	tmpl, err := template.ParseFS(templates, "templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("%w: parse template: %w", domain.ErrRender, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &HTMLRenderer{
		tmpl:     tmpl,
		location: loc,
	}, nil
}

type paperView struct {
	Rank       int
	ID         string
	Title      string
	URL        string
	Authors    string
	Categories string
	Score      string
	Rationale  string
	Abstract   string
}

type pageView struct {
	Subject     string
	Topic       string
	RunID       string
	From        string
	To          string
	GeneratedAt string
	Papers      []paperView
}

// Render produces the document. Papers keep the order they have in the digest.
func (r *HTMLRenderer) Render(digest domain.Digest) (domain.Document, error) {
	meta := digest.Meta
	generated := meta.GeneratedAt.In(r.location)
	subject := generated.Format(SubjectLayout)

	view := pageView{
		Subject:     subject,
		Topic:       text(meta.Topic),
		RunID:       meta.RunID,
		From:        meta.Window.Start.In(r.location).Format("02 Jan 2006"),
		To:          meta.Window.End.In(r.location).Format("02 Jan 2006"),
		GeneratedAt: generated.Format("02 Jan 2006 15:04 MST"),
		Papers:      make([]paperView, 0, len(digest.Papers)),
	}

	for i, sp := range digest.Papers {
		p := sp.Paper
		view.Papers = append(view.Papers, paperView{
			Rank:       i + 1,
			ID:         text(p.ID),
			Title:      text(p.Title),
			URL:        paperURL(p),
			Authors:    text(strings.Join(p.Authors, ", ")),
			Categories: text(strings.Join(p.Categories, ", ")),
			Score:      strconv.FormatFloat(sp.Score, 'f', 1, 64),
			Rationale:  text(sp.Rationale),
			Abstract:   text(p.Abstract),
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return domain.Document{}, fmt.Errorf("%w: execute template: %w", domain.ErrRender, err)
	}

	return domain.Document{
		RunID:       meta.RunID,
		Topic:       meta.Topic,
		Subject:     subject,
		HTML:        buf.Bytes(),
		GeneratedAt: meta.GeneratedAt,
		Digest:      digest,
	}, nil
}

// text normalises UTF-8 and whitespace. Escaping is left to the template.
func text(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return strings.Join(strings.Fields(s), " ")
}

func paperURL(p domain.Paper) string {
	if strings.HasPrefix(p.URL, "https://") || strings.HasPrefix(p.URL, "http://") {
		return p.URL
	}
	return "https://arxiv.org/abs/" + domain.CanonicalID(p.ID)
}
