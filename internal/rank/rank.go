// Package rank scores anomalies and maps each to a default remediation.
package rank

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
)

// Weights are the per-kind base weights in [0,1].
type Weights map[detect.Kind]float64

// DefaultWeights rank duplicates highest, then missing values and type
// mismatches, then single-column outliers.
func DefaultWeights() Weights {
	return Weights{
		detect.DuplicateRows: 1.0,
		detect.MissingValues: 0.8,
		detect.TypeMismatch:  0.8,
		detect.Outlier:       0.5,
	}
}

// Options controls scoring and the default fix table.
type Options struct {
	Weights Weights
	// NumericImpute selects impute-mean (default) or impute-median for
	// numeric columns with missing values.
	NumericImpute fix.Kind
	// IDColumn is passed to dedupe recommendations.
	IDColumn string
}

// Level buckets a severity score.
type Level string

const (
	Low      Level = "low"
	Medium   Level = "medium"
	High     Level = "high"
	Critical Level = "critical"
)

// LevelFor maps a 0-100 severity to its level.
func LevelFor(severity float64) Level {
	switch {
	case severity >= 50:
		return Critical
	case severity >= 25:
		return High
	case severity >= 10:
		return Medium
	}
	return Low
}

// Recommendation is a ranked remediation for one anomaly.
type Recommendation struct {
	ID           string         `json:"id"`
	Anomaly      detect.Anomaly `json:"anomaly"`
	Fix          fix.Kind       `json:"fix"`
	Params       fix.Params     `json:"params,omitempty"`
	Alternatives []fix.Kind     `json:"alternatives,omitempty"`
	Rationale    string         `json:"rationale"`
	Severity     float64        `json:"severity"`
	Level        Level          `json:"level"`
	Rank         int            `json:"rank"`
}

// Spec returns the fix request for the default remediation.
func (r Recommendation) Spec() fix.Spec {
	col := r.Anomaly.Column
	if r.Fix.RowLevel() {
		col = ""
	}
	return fix.Spec{Column: col, Kind: r.Fix, Params: r.Params}
}

// ID builds the stable identifier of the recommendation for an anomaly.
func ID(a detect.Anomaly) string { return string(a.Kind) + ":" + a.Column }

// Severity is 100 * weight * affected/total, rounded to two decimals.
func Severity(a detect.Anomaly, w Weights) float64 {
	s := 100 * w[a.Kind] * a.Ratio()
	return math.Round(s*100) / 100
}

// Rank scores anomalies and returns recommendations by descending severity.
// Ties keep column order, then kind order.
func Rank(anoms []detect.Anomaly, opt Options) []Recommendation {
	w := opt.Weights
	if w == nil {
		w = DefaultWeights()
	}
	out := make([]Recommendation, 0, len(anoms))
	for _, a := range anoms {
		sev := Severity(a, w)
		kind, params, alts := defaultFix(a, opt)
		out = append(out, Recommendation{
			ID:           ID(a),
			Anomaly:      a,
			Fix:          kind,
			Params:       params,
			Alternatives: alts,
			Rationale:    rationale(a, kind),
			Severity:     sev,
			Level:        LevelFor(sev),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if out[i].Anomaly.ColumnIndex != out[j].Anomaly.ColumnIndex {
			return out[i].Anomaly.ColumnIndex < out[j].Anomaly.ColumnIndex
		}
		return out[i].Anomaly.Kind.Order() < out[j].Anomaly.Kind.Order()
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Find returns the recommendation with the given id.
func Find(recs []Recommendation, id string) (Recommendation, bool) {
	for _, r := range recs {
		if r.ID == id {
			return r, true
		}
	}
	return Recommendation{}, false
}

func defaultFix(a detect.Anomaly, opt Options) (fix.Kind, fix.Params, []fix.Kind) {
	switch a.Kind {
	case detect.DuplicateRows:
		var p fix.Params
		if a.Evidence.IDColumn != "" {
			p = p.With("id_column", a.Evidence.IDColumn)
		}
		return fix.Dedupe, p, nil
	case detect.Outlier:
		return fix.CapOutliers, nil, []fix.Kind{fix.DropRows, fix.ImputeMedian}
	case detect.TypeMismatch:
		return fix.CoerceOrDrop, nil, []fix.Kind{fix.DropColumn}
	case detect.MissingValues:
		if a.Evidence.AllNull {
			return fix.DropColumn, nil, []fix.Kind{fix.ImputeConstant}
		}
		if a.Evidence.Inferred == dataset.Numeric {
			k := fix.ImputeMean
			if opt.NumericImpute == fix.ImputeMedian {
				k = fix.ImputeMedian
			}
			return k, nil, without([]fix.Kind{fix.ImputeMean, fix.ImputeMedian, fix.ImputeMode, fix.ImputeConstant, fix.DropRows, fix.DropColumn}, k)
		}
		return fix.ImputeMode, nil, []fix.Kind{fix.ImputeConstant, fix.DropRows, fix.DropColumn}
	}
	return "", nil, nil
}

func without(ks []fix.Kind, k fix.Kind) []fix.Kind {
	out := ks[:0:0]
	for _, x := range ks {
		if x != k {
			out = append(out, x)
		}
	}
	return out
}

func rationale(a detect.Anomaly, k fix.Kind) string {
	pct := 100 * a.Ratio()
	switch a.Kind {
	case detect.DuplicateRows:
		return fmt.Sprintf("%d of %d rows (%.1f%%) repeat an earlier row; %s keeps the first occurrence", a.Affected, a.Total, pct, k)
	case detect.MissingValues:
		if k == fix.DropColumn {
			return fmt.Sprintf("column %q is entirely empty; %s removes it", a.Column, k)
		}
		return fmt.Sprintf("%d of %d values (%.1f%%) are missing in %q; %s fills them", a.Affected, a.Total, pct, a.Column, k)
	case detect.Outlier:
		lo, hi := 0.0, 0.0
		if a.Evidence.Lower != nil && a.Evidence.Upper != nil {
			lo, hi = *a.Evidence.Lower, *a.Evidence.Upper
		}
		return fmt.Sprintf("%d values in %q fall outside [%.4g, %.4g]; %s clamps them to the nearest bound", a.Affected, a.Column, lo, hi, k)
	case detect.TypeMismatch:
		return fmt.Sprintf("%d values in %q are not %s; %s converts the column and nulls what cannot be read", a.Affected, a.Column, a.Evidence.Dominant, k)
	}
	return string(k)
}
