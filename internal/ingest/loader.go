// Package ingest reads tabular files into dataset snapshots and writes
// cleaned snapshots back out.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
)

// ErrUnsupported indicates a file format no loader accepts.
var ErrUnsupported = errors.New("unsupported dataset format")

// Options controls how files are read.
type Options struct {
	// Delimiter overrides CSV delimiter sniffing when non-zero.
	Delimiter    rune
	NumberFormat dataset.NumberFormat
	// Encoding names the source charset for text formats ("" or utf-8 means UTF-8).
	Encoding   string
	SheetName  string
	SheetIndex int // 1-based
	// Table selects the SQLite table, or the CSS selector of an HTML table.
	Table   string
	MaxRows int
}

// Table is a header plus raw rows as read by a loader, before types are inferred.
type Table struct {
	Header []string
	Rows   [][]dataset.Value
}

// Loader reads one file format.
type Loader interface {
	Name() string
	CanLoad(path string) bool
	Load(ctx context.Context, path string, opt Options) (*Table, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
	Register(jsonLoader{})
	Register(htmlLoader{})
	Register(sqliteLoader{})
}

// Result is a loaded dataset plus what the loader saw.
type Result struct {
	Snapshot  *dataset.Snapshot
	Source    string
	Format    string
	RowsRead  int
	Truncated bool
}

// Load selects a loader by extension, reads path and infers column types.
func Load(ctx context.Context, path string, opt Options) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	for _, l := range registry {
		if !l.CanLoad(path) {
			continue
		}
		tbl, err := l.Load(ctx, path, opt)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", l.Name(), err)
		}
		res := &Result{Source: filepath.Base(path), Format: l.Name(), RowsRead: len(tbl.Rows)}
		if opt.MaxRows > 0 && len(tbl.Rows) > opt.MaxRows {
			tbl.Rows = tbl.Rows[:opt.MaxRows]
			res.Truncated = true
		}
		snap, err := Build(tbl, opt.NumberFormat)
		if err != nil {
			return nil, err
		}
		res.Snapshot = snap
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Formats lists the registered loader names.
func Formats() []string {
	out := make([]string, len(registry))
	for i, l := range registry {
		out[i] = l.Name()
	}
	return out
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
