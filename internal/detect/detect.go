// Package detect turns column profiles into typed anomaly records.
package detect

import (
	"sort"
	"strings"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
)

// Kind identifies the class of data-quality issue.
type Kind string

const (
	MissingValues Kind = "missing-values"
	DuplicateRows Kind = "duplicate-rows"
	Outlier       Kind = "outlier"
	TypeMismatch  Kind = "type-mismatch"
)

// Kinds lists every anomaly kind in detection order.
var Kinds = []Kind{MissingValues, DuplicateRows, Outlier, TypeMismatch}

// Order returns the position of k in Kinds, used as a sort tie-breaker.
func (k Kind) Order() int {
	for i, x := range Kinds {
		if x == k {
			return i
		}
	}
	return len(Kinds)
}

// DatasetColumn is the Column value of dataset-level anomalies.
const DatasetColumn = "*"

// Anomaly is one detected issue. It is created by Detect and never mutated.
type Anomaly struct {
	Column string `json:"column"`
	// ColumnIndex is -1 for dataset-level anomalies.
	ColumnIndex int      `json:"column_index"`
	Kind        Kind     `json:"kind"`
	Affected    int      `json:"affected"`
	Total       int      `json:"total"`
	Evidence    Evidence `json:"evidence"`
}

// Evidence carries the facts that justify an anomaly.
type Evidence struct {
	// Outlier fences.
	Lower  *float64 `json:"lower,omitempty"`
	Upper  *float64 `json:"upper,omitempty"`
	Pinned bool     `json:"pinned,omitempty"`
	// Type mismatch classes.
	Dominant dataset.ColumnType         `json:"dominant,omitempty"`
	Classes  map[dataset.ColumnType]int `json:"classes,omitempty"`
	// Duplicate detection settings.
	IDColumn string `json:"id_column,omitempty"`
	Groups   int    `json:"groups,omitempty"`
	// Inferred type of the column at detection time.
	Inferred dataset.ColumnType `json:"inferred,omitempty"`
	// AllNull marks a missing-values anomaly covering every row.
	AllNull bool `json:"all_null,omitempty"`
}

// Ratio is Affected/Total, or 0 when Total is 0.
func (a Anomaly) Ratio() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Affected) / float64(a.Total)
}

// Options controls detection.
type Options struct {
	// IDColumn is excluded from row comparison when looking for duplicates.
	IDColumn string
}

// Detect scans every column of snap and returns anomalies ordered by
// column index (dataset-level first) then by kind.
func Detect(snap *dataset.Snapshot, prof *profile.Profile, opt Options) []Anomaly {
	var out []Anomaly
	rows := snap.NumRows()

	if dup, groups := DuplicateCount(snap, opt.IDColumn); dup > 0 {
		out = append(out, Anomaly{
			Column:      DatasetColumn,
			ColumnIndex: -1,
			Kind:        DuplicateRows,
			Affected:    dup,
			Total:       rows,
			Evidence:    Evidence{IDColumn: resolveID(snap, opt.IDColumn), Groups: groups},
		})
	}

	for _, c := range prof.Columns {
		if c.Nulls > 0 {
			out = append(out, Anomaly{
				Column: c.Name, ColumnIndex: c.Index, Kind: MissingValues,
				Affected: c.Nulls, Total: rows,
				Evidence: Evidence{Inferred: c.Inferred, AllNull: c.Nulls == rows},
			})
		}
		if c.Numeric != nil && c.Numeric.Outliers > 0 {
			lo, hi := c.Numeric.Lower, c.Numeric.Upper
			out = append(out, Anomaly{
				Column: c.Name, ColumnIndex: c.Index, Kind: Outlier,
				Affected: c.Numeric.Outliers, Total: rows,
				Evidence: Evidence{Lower: &lo, Upper: &hi, Pinned: c.Numeric.Pinned, Inferred: c.Inferred},
			})
		}
		if c.Mixed {
			classes := make(map[dataset.ColumnType]int, len(c.Classes))
			for k, v := range c.Classes {
				classes[k] = v
			}
			out = append(out, Anomaly{
				Column: c.Name, ColumnIndex: c.Index, Kind: TypeMismatch,
				Affected: c.NonNull - c.DominantCount, Total: rows,
				Evidence: Evidence{Dominant: c.Dominant, Classes: classes, Inferred: c.Inferred},
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ColumnIndex != out[j].ColumnIndex {
			return out[i].ColumnIndex < out[j].ColumnIndex
		}
		return out[i].Kind.Order() < out[j].Kind.Order()
	})
	return out
}

func resolveID(snap *dataset.Snapshot, id string) string {
	if id == "" || snap.Index(id) < 0 {
		return ""
	}
	return id
}

// DuplicateMask returns, for every row, whether an identical earlier row
// exists. The identifier column, when present in snap, is ignored.
func DuplicateMask(snap *dataset.Snapshot, idColumn string) []bool {
	seen := make(map[string]struct{}, snap.NumRows())
	dups := make([]bool, snap.NumRows())
	for r, k := range rowKeys(snap, idColumn) {
		if _, ok := seen[k]; ok {
			dups[r] = true
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}

// DuplicateCount returns how many rows repeat an earlier row and how many
// distinct rows have at least one repeat.
func DuplicateCount(snap *dataset.Snapshot, idColumn string) (dups, groups int) {
	counts := make(map[string]int)
	for _, k := range rowKeys(snap, idColumn) {
		counts[k]++
	}
	for _, n := range counts {
		if n > 1 {
			dups += n - 1
			groups++
		}
	}
	return dups, groups
}

func rowKeys(snap *dataset.Snapshot, idColumn string) []string {
	skip := -1
	if idColumn != "" {
		skip = snap.Index(idColumn)
	}
	keys := make([]string, snap.NumRows())
	var b strings.Builder
	for r := range keys {
		b.Reset()
		for c := 0; c < snap.NumCols(); c++ {
			if c == skip {
				continue
			}
			b.WriteString(snap.Cell(r, c).Key())
			b.WriteByte(0x1f)
		}
		keys[r] = b.String()
	}
	return keys
}
