// Package report renders session state as compact Markdown blocks.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
	"github.com/KaramelBytes/tidyloom-cli/internal/history"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
	"github.com/KaramelBytes/tidyloom-cli/internal/rank"
)

// Input is everything a full report can show. Nil or empty parts are skipped.
type Input struct {
	Source          string
	RowsRead        int
	Profile         *profile.Profile
	Anomalies       []detect.Anomaly
	Recommendations []rank.Recommendation
	Steps           []history.Step
	Summary         *pipeline.Summary
	Warnings        []string
}

// Markdown renders every section of in.
func Markdown(in Input) string {
	var b strings.Builder
	if in.Profile != nil {
		b.WriteString(Dataset(in.Source, in.Profile, in.RowsRead))
		b.WriteString("\n")
		b.WriteString(Schema(in.Profile))
	}
	if in.Anomalies != nil {
		b.WriteString("\n")
		b.WriteString(Anomalies(in.Anomalies))
	}
	if in.Recommendations != nil {
		b.WriteString("\n")
		b.WriteString(Recommendations(in.Recommendations))
	}
	if len(in.Steps) > 0 {
		b.WriteString("\n")
		b.WriteString(History(in.Steps))
	}
	if in.Summary != nil {
		b.WriteString("\n")
		b.WriteString(Summary(*in.Summary))
	}
	if len(in.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range in.Warnings {
			b.WriteString(fmt.Sprintf("- %s\n", w))
		}
	}
	return b.String()
}

// Dataset is the [DATASET SUMMARY] block.
func Dataset(source string, p *profile.Profile, rowsRead int) string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if source != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", source))
	}
	if rowsRead > p.Rows {
		b.WriteString(fmt.Sprintf("Rows: ~%d (processed %d)\n", rowsRead, p.Rows))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", p.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n", len(p.Columns)))
	b.WriteString(fmt.Sprintf("Version: %d\n", p.Version))
	return b.String()
}

// Schema is the [SCHEMA] block, one line per column.
func Schema(p *profile.Profile) string {
	var b strings.Builder
	b.WriteString("[SCHEMA]\n")
	for _, c := range p.Columns {
		missPct := 0.0
		if c.Rows > 0 {
			missPct = float64(c.Nulls) * 100.0 / float64(c.Rows)
		}
		kind := string(c.Inferred)
		if c.Declared != "" && c.Declared != c.Inferred {
			kind = fmt.Sprintf("%s (declared %s)", c.Inferred, c.Declared)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%, distinct %d)",
			safeName(c.Name), kind, c.NonNull, missPct, c.Distinct))
		if n := c.Numeric; n != nil {
			b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, std %.4g, median %.4g", n.Min, n.Max, n.Mean, n.Std, n.Median))
			b.WriteString(fmt.Sprintf("; fences [%.4g, %.4g]", n.Lower, n.Upper))
			if n.Pinned {
				b.WriteString(" pinned")
			}
			if n.Outliers > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d", n.Outliers))
			}
		} else if len(c.TopValues) > 0 {
			b.WriteString(" — top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
		}
		if c.Mixed {
			b.WriteString("; mixed: " + classList(c.Classes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Anomalies is the [ANOMALIES] block.
func Anomalies(anoms []detect.Anomaly) string {
	var b strings.Builder
	b.WriteString("[ANOMALIES]\n")
	if len(anoms) == 0 {
		b.WriteString("- none\n")
		return b.String()
	}
	for _, a := range anoms {
		b.WriteString(fmt.Sprintf("- %s %s: %d/%d (%.1f%%)", a.Kind, safeName(a.Column), a.Affected, a.Total, a.Ratio()*100))
		ev := a.Evidence
		switch a.Kind {
		case detect.Outlier:
			if ev.Lower != nil && ev.Upper != nil {
				b.WriteString(fmt.Sprintf(" outside [%.4g, %.4g]", *ev.Lower, *ev.Upper))
			}
		case detect.TypeMismatch:
			b.WriteString(fmt.Sprintf(" not %s; classes %s", ev.Dominant, classList(ev.Classes)))
		case detect.DuplicateRows:
			b.WriteString(fmt.Sprintf(" in %d groups", ev.Groups))
			if ev.IDColumn != "" {
				b.WriteString(fmt.Sprintf(", ignoring %s", ev.IDColumn))
			}
		case detect.MissingValues:
			if ev.AllNull {
				b.WriteString(" (column is empty)")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Recommendations is the [RECOMMENDATIONS] block in rank order.
func Recommendations(recs []rank.Recommendation) string {
	var b strings.Builder
	b.WriteString("[RECOMMENDATIONS]\n")
	if len(recs) == 0 {
		b.WriteString("- none, the dataset looks clean\n")
		return b.String()
	}
	for _, r := range recs {
		b.WriteString(fmt.Sprintf("%d. [%s %.2f] %s → %s", r.Rank, strings.ToUpper(string(r.Level)), r.Severity, r.ID, r.Fix))
		if len(r.Params) > 0 {
			b.WriteString(fmt.Sprintf(" (%s)", r.Params))
		}
		b.WriteString("\n")
		if r.Rationale != "" {
			b.WriteString(fmt.Sprintf("   %s\n", safeVal(r.Rationale)))
		}
		if len(r.Alternatives) > 0 {
			alts := make([]string, len(r.Alternatives))
			for i, k := range r.Alternatives {
				alts[i] = string(k)
			}
			b.WriteString(fmt.Sprintf("   alternatives: %s\n", strings.Join(alts, ", ")))
		}
	}
	return b.String()
}

// History is the [PROCESSING LOG] block.
func History(steps []history.Step) string {
	var b strings.Builder
	b.WriteString("[PROCESSING LOG]\n")
	for _, s := range steps {
		rowsBefore, rowsAfter, cells := 0, 0, 0
		for i, a := range s.Fixes {
			if i == 0 {
				rowsBefore = a.RowsBefore
			}
			rowsAfter = a.RowsAfter
			cells += a.CellsChanged
		}
		b.WriteString(fmt.Sprintf("%d. %s (v%d → v%d; rows %d → %d; cells changed %d)\n",
			s.Seq, safeVal(s.Description), s.InputVersion, s.OutputVersion, rowsBefore, rowsAfter, cells))
	}
	return b.String()
}

// Summary is the [SUMMARY] block.
func Summary(s pipeline.Summary) string {
	var b strings.Builder
	b.WriteString("[SUMMARY]\n")
	b.WriteString(fmt.Sprintf("Rows: %d, Columns: %d, Version: %d\n", s.Rows, s.Columns, s.Version))
	b.WriteString(fmt.Sprintf("Anomalies: %d (missing cells %d, duplicate rows %d, outliers %d in %d columns, type mismatches in %d columns)\n",
		s.Anomalies, s.MissingCells, s.DuplicateRows, s.OutlierValues, s.OutlierColumns, s.TypeMismatchColumns))
	b.WriteString(fmt.Sprintf("Steps applied: %d\n", s.Steps))
	b.WriteString(fmt.Sprintf("Estimated time saved: %s\n", humanMinutes(s.TimeSaved.Minutes())))
	return b.String()
}

// Preview renders the first n rows of snap as a Markdown table.
func Preview(snap *dataset.Snapshot, n int) string {
	var b strings.Builder
	names := snap.Names()
	for i := range names {
		names[i] = safeVal(names[i])
	}
	b.WriteString("| " + strings.Join(names, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(names)) + "\n")
	if n > snap.NumRows() {
		n = snap.NumRows()
	}
	cells := make([]string, snap.NumCols())
	for r := 0; r < n; r++ {
		for j := range cells {
			cells[j] = safeVal(snap.Cell(r, j).String())
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if snap.NumRows() > n {
		b.WriteString(fmt.Sprintf("… %d more rows\n", snap.NumRows()-n))
	}
	return b.String()
}

func classList(classes map[dataset.ColumnType]int) string {
	keys := make([]string, 0, len(classes))
	for k := range classes {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, classes[dataset.ColumnType(k)])
	}
	return strings.Join(parts, " ")
}

func humanMinutes(m float64) string {
	m = math.Round(m)
	if m < 60 {
		return fmt.Sprintf("%.0f min", m)
	}
	h := math.Floor(m / 60)
	return fmt.Sprintf("%.0fh %02.0fm", h, m-h*60)
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
