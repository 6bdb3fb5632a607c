// Package csvfile implements the append-only CSV audit table.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/crimson-sun/appendix/internal/model"
	"github.com/crimson-sun/appendix/internal/output"
	"github.com/crimson-sun/appendix/internal/schema"
)

// ErrHeaderMismatch is returned when an existing, non-empty audit file
// starts with a header different from the expected one.
var ErrHeaderMismatch = errors.New("audit header mismatch")

// Option configures a CSV Output.
type Option func(*Output)

// WithPerm sets the permission bits used when the file is created.
// Default: 0644.
func WithPerm(perm os.FileMode) Option {
	return func(o *Output) { o.perm = perm }
}

// Output appends one CSV row per audit record. Each Write opens the file,
// takes an exclusive advisory lock, writes the header if the file is empty,
// appends the row, syncs and closes. Writes from one process are also
// serialized by a mutex.
type Output struct {
	mu     sync.Mutex
	cat    *schema.Catalogue
	path   string
	header []string
	perm   os.FileMode
}

// New creates a CSV audit output for path. An existing non-empty file must
// already carry the expected header.
func New(path string, cat *schema.Catalogue, opts ...Option) (*Output, error) {
	o := &Output{
		cat:    cat,
		path:   path,
		header: output.Header(cat),
		perm:   0o644,
	}
	for _, opt := range opts {
		opt(o)
	}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return o, nil
	case err != nil:
		return nil, fmt.Errorf("csv output: open %s: %w", path, err)
	}
	defer f.Close()
	if err := o.checkHeader(f); err != nil {
		return nil, err
	}
	return o, nil
}

// Path returns the audit file path.
func (o *Output) Path() string { return o.path }

// Write appends rec as one row.
func (o *Output) Write(_ context.Context, rec model.AuditRecord) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return fmt.Errorf("csv output: create dir: %w", err)
	}
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, o.perm)
	if err != nil {
		return fmt.Errorf("csv output: open %s: %w", o.path, err)
	}
	defer f.Close()

	if err := lock(f); err != nil {
		return fmt.Errorf("csv output: lock %s: %w", o.path, err)
	}
	defer unlock(f)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("csv output: stat %s: %w", o.path, err)
	}
	if info.Size() == 0 {
		if err := w.Write(o.header); err != nil {
			return fmt.Errorf("csv output: encode header: %w", err)
		}
	} else if err := o.checkHeader(f); err != nil {
		return err
	}

	if err := w.Write(output.Row(o.cat, rec)); err != nil {
		return fmt.Errorf("csv output: encode row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv output: encode row: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("csv output: write %s: %w", o.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("csv output: sync %s: %w", o.path, err)
	}
	return nil
}

// Close is a no-op; the file is closed after every write.
func (o *Output) Close() error {
	return nil
}

// checkHeader reads the first CSV record of f, which must match the
// expected header. An empty file passes.
func (o *Output) checkHeader(f *os.File) error {
	r := csv.NewReader(io.NewSectionReader(f, 0, 1<<62))
	r.FieldsPerRecord = -1
	got, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("csv output: read header of %s: %w", o.path, err)
	}
	if !slices.Equal(got, o.header) {
		return fmt.Errorf("%w: %s has %d columns starting %q", ErrHeaderMismatch, o.path, len(got), first(got))
	}
	return nil
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// ReadAll returns the header and rows of an audit file. A missing file
// yields no rows.
func ReadAll(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csv output: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv output: read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}
