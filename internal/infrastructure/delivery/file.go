// Package delivery holds the sinks that receive a rendered digest.
package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/ports"
)

// FileSink writes the document to a local path, replacing any previous digest.
type FileSink struct {
	path string
}

var _ ports.Sink = (*FileSink)(nil)

// NewFileSink targets path; parent directories are created on demand.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name identifies the sink in logs.
func (f *FileSink) Name() string { return "file" }

// Deliver writes to a temporary sibling and renames it into place so readers
// never observe a half-written digest.
func (f *FileSink) Deliver(ctx context.Context, doc domain.Document) error {
	if f.path == "" {
		return fmt.Errorf("file sink: empty output path")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.HTML); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write digest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close digest: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod digest: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename digest: %w", err)
	}
	return nil
}
