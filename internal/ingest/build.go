package ingest

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
)

// Build turns a raw table into a version-1 snapshot. Header names are
// NFC-normalised and made unique, short rows are padded with nulls and
// each column gets the type its cells mostly look like. Cells that do not
// read as that type are kept as they are so the mismatch stays visible.
func Build(tbl *Table, nf dataset.NumberFormat) (*dataset.Snapshot, error) {
	ncol := len(tbl.Header)
	for _, r := range tbl.Rows {
		if len(r) > ncol {
			ncol = len(r)
		}
	}
	if ncol == 0 {
		return nil, fmt.Errorf("build: %w", dataset.ErrEmptyDataset)
	}
	names := headerNames(tbl.Header, ncol)
	raw := make([]dataset.Column, ncol)
	for j := range raw {
		vals := make([]dataset.Value, len(tbl.Rows))
		for i, r := range tbl.Rows {
			if j < len(r) {
				vals[i] = normalizeCell(r[j])
			}
		}
		raw[j] = dataset.Column{Name: names[j], Values: vals}
	}
	if len(tbl.Rows) == 0 {
		for j := range raw {
			raw[j].Type = dataset.Text
		}
		return dataset.New(raw...)
	}
	staged, err := dataset.New(raw...)
	if err != nil {
		return nil, err
	}
	prof, err := profile.Run(staged, profile.Options{NumberFormat: nf})
	if err != nil {
		return nil, err
	}
	cols := make([]dataset.Column, ncol)
	for j, cp := range prof.Columns {
		typ := cp.Inferred
		if typ == "" {
			typ = dataset.Text
		}
		vals := make([]dataset.Value, len(raw[j].Values))
		for i, v := range raw[j].Values {
			if c, ok := dataset.Coerce(v, typ, nf); ok {
				vals[i] = c
			} else {
				vals[i] = v
			}
		}
		cols[j] = dataset.Column{Name: names[j], Type: typ, Values: vals}
	}
	return dataset.New(cols...)
}

func headerNames(header []string, ncol int) []string {
	out := make([]string, ncol)
	seen := make(map[string]bool, ncol)
	for j := 0; j < ncol; j++ {
		base := ""
		if j < len(header) {
			base = norm.NFC.String(strings.TrimSpace(header[j]))
		}
		if base == "" {
			base = fmt.Sprintf("column_%d", j+1)
		}
		name := base
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		seen[name] = true
		out[j] = name
	}
	return out
}

func normalizeCell(v dataset.Value) dataset.Value {
	if v.Kind() != dataset.KindString {
		return v
	}
	s := norm.NFC.String(strings.TrimSpace(v.Str()))
	if s == "" {
		return dataset.Null()
	}
	return dataset.String(s)
}

func textCell(s string) dataset.Value {
	if strings.TrimSpace(s) == "" {
		return dataset.Null()
	}
	return dataset.String(s)
}
