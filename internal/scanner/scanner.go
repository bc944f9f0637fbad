package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ArxivDigest/internal/domain"
)

// Request carries all parameters required to execute a scan.
type Request struct {
	Window domain.Window
	// Archive is the top-level listing (cs, math, quant-ph, ...).
	Archive string
	// Categories are the category codes of interest. When WholeArchive is set they
	// enumerate the archive instead of restricting it.
	Categories   []string
	WholeArchive bool
}

// Listings returns the codes whose listing pages cover the request.
func (r Request) Listings() []string {
	if r.WholeArchive || len(r.Categories) == 0 {
		return []string{r.Archive}
	}
	return r.Categories
}

// Scanner captures a single source strategy (listing pages, Atom API, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Paper, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered (have: %s)", name, strings.Join(r.Names(), ", "))
}

// Names lists registered scanners.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
