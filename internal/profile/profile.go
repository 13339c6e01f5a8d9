// Package profile computes per-column statistics and type inference for a
// dataset snapshot. Profiling is a pure function of the snapshot.
package profile

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
)

// Options controls profiling behavior.
type Options struct {
	// IQRMultiplier scales the IQR when deriving outlier fences. Defaults to 1.5.
	IQRMultiplier float64
	// NumberFormat is used to read numeric-looking strings.
	NumberFormat dataset.NumberFormat
	// TopValues bounds the category list per column. Defaults to 5.
	TopValues int
}

// DefaultOptions returns the standard Tukey fences and a short top-values list.
func DefaultOptions() Options {
	return Options{IQRMultiplier: 1.5, TopValues: 5}
}

// Profile is the full per-column summary of one snapshot version.
type Profile struct {
	Version int             `json:"version"`
	Rows    int             `json:"rows"`
	Columns []ColumnProfile `json:"columns"`
}

// ColumnProfile captures inferred type and statistics per column.
type ColumnProfile struct {
	Name     string             `json:"name"`
	Index    int                `json:"index"`
	Declared dataset.ColumnType `json:"declared"`
	Inferred dataset.ColumnType `json:"inferred"`
	Rows     int                `json:"rows"`
	Nulls    int                `json:"nulls"`
	NonNull  int                `json:"non_null"`
	Distinct int                `json:"distinct"`
	// Classes counts non-null cells per type family.
	Classes map[dataset.ColumnType]int `json:"classes"`
	// Dominant is the most frequent type family; Mixed is set when more than
	// one family is present.
	Dominant      dataset.ColumnType `json:"dominant,omitempty"`
	DominantCount int                `json:"dominant_count"`
	Mixed         bool               `json:"mixed"`
	Numeric       *NumericStats      `json:"numeric,omitempty"`
	Mode          string             `json:"mode,omitempty"`
	TopValues     []CategoryCount    `json:"top_values,omitempty"`
}

// NumericStats holds distribution statistics for numeric columns.
type NumericStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	IQR    float64 `json:"iqr"`
	// Lower and Upper are the outlier fences. Pinned means they come from
	// the column metadata rather than the quartiles.
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	Pinned   bool    `json:"pinned,omitempty"`
	Outliers int     `json:"outliers"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Get returns the profile of the named column.
func (p *Profile) Get(name string) (ColumnProfile, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// ByName indexes the column profiles by column name.
func (p *Profile) ByName() map[string]ColumnProfile {
	out := make(map[string]ColumnProfile, len(p.Columns))
	for _, c := range p.Columns {
		out[c.Name] = c
	}
	return out
}

// Run profiles every column of snap.
func Run(snap *dataset.Snapshot, opt Options) (*Profile, error) {
	if snap.IsEmpty() {
		return nil, fmt.Errorf("profile: %w", dataset.ErrEmptyDataset)
	}
	if opt.IQRMultiplier <= 0 {
		opt.IQRMultiplier = 1.5
	}
	if opt.TopValues <= 0 {
		opt.TopValues = 5
	}
	p := &Profile{Version: snap.Version(), Rows: snap.NumRows(), Columns: make([]ColumnProfile, 0, snap.NumCols())}
	for i := 0; i < snap.NumCols(); i++ {
		p.Columns = append(p.Columns, profileColumn(i, snap.ColumnAt(i), opt))
	}
	return p, nil
}

func profileColumn(idx int, col dataset.Column, opt Options) ColumnProfile {
	cp := ColumnProfile{
		Name:     col.Name,
		Index:    idx,
		Declared: col.Type,
		Rows:     len(col.Values),
		Classes:  make(map[dataset.ColumnType]int),
	}
	cats := make(map[string]int)
	labels := make(map[string]string)
	firstSeen := make(map[string]int)
	maxLen := 0
	var nums []float64
	for r, v := range col.Values {
		if v.IsNull() {
			cp.Nulls++
			continue
		}
		cp.NonNull++
		k := v.Key()
		if _, ok := cats[k]; !ok {
			firstSeen[k] = r
			labels[k] = v.Text()
		}
		cats[k]++
		class := dataset.Class(v, opt.NumberFormat)
		cp.Classes[class]++
		if class == dataset.Numeric {
			if f, ok := AsFloat(v, opt.NumberFormat); ok {
				nums = append(nums, f)
			}
		}
		if class == dataset.Text && len(v.Text()) > maxLen {
			maxLen = len(v.Text())
		}
	}
	cp.Distinct = len(cats)

	present := 0
	for _, t := range []dataset.ColumnType{dataset.Numeric, dataset.Datetime, dataset.Boolean, dataset.Text} {
		n := cp.Classes[t]
		if n == 0 {
			continue
		}
		present++
		if n > cp.DominantCount {
			cp.Dominant = t
			cp.DominantCount = n
		}
	}
	cp.Mixed = present > 1

	switch {
	case cp.Dominant == "":
		cp.Inferred = col.Type
	case cp.Dominant == dataset.Text:
		switch {
		case col.Type.IsTextual():
			cp.Inferred = col.Type
		case maxLen <= 64 && float64(cp.Distinct) <= 0.5*float64(cp.NonNull):
			cp.Inferred = dataset.Categorical
		default:
			cp.Inferred = dataset.Text
		}
	default:
		cp.Inferred = cp.Dominant
	}

	if cp.Dominant == dataset.Numeric && len(nums) > 0 {
		cp.Numeric = numericStats(nums, col.Fences, opt.IQRMultiplier)
	}
	if cp.NonNull > 0 {
		tops := make([]CategoryCount, 0, len(cats))
		keys := make([]string, 0, len(cats))
		for k := range cats {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if cats[keys[i]] == cats[keys[j]] {
				return firstSeen[keys[i]] < firstSeen[keys[j]]
			}
			return cats[keys[i]] > cats[keys[j]]
		})
		cp.Mode = labels[keys[0]]
		for _, k := range keys {
			if len(tops) == opt.TopValues {
				break
			}
			tops = append(tops, CategoryCount{Value: labels[k], Count: cats[k]})
		}
		if cp.Numeric == nil || cp.Distinct < cp.NonNull {
			cp.TopValues = tops
		}
	}
	return cp
}

func numericStats(vals []float64, pinned *dataset.Fences, k float64) *NumericStats {
	s := &NumericStats{Count: len(vals), Min: math.Inf(1), Max: math.Inf(-1)}
	var mean, m2 float64
	for i, x := range vals {
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	s.Mean = mean
	if len(vals) > 1 {
		s.Std = math.Sqrt(m2 / float64(len(vals)-1))
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s.Median = Quantile(sorted, 0.5)
	s.Q1 = Quantile(sorted, 0.25)
	s.Q3 = Quantile(sorted, 0.75)
	s.IQR = s.Q3 - s.Q1
	if pinned != nil {
		s.Lower, s.Upper, s.Pinned = pinned.Lower, pinned.Upper, true
	} else {
		s.Lower, s.Upper = Fences(s.Q1, s.Q3, k)
	}
	for _, x := range vals {
		if x < s.Lower || x > s.Upper {
			s.Outliers++
		}
	}
	return s
}

// Fences returns [q1 - k*IQR, q3 + k*IQR].
func Fences(q1, q3, k float64) (lower, upper float64) {
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}

// Quantile interpolates linearly between the closest ranks at position
// q*(n-1) of an ascending slice.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// AsFloat reads a number cell or a numeric-looking string cell.
func AsFloat(v dataset.Value, nf dataset.NumberFormat) (float64, bool) {
	switch v.Kind() {
	case dataset.KindNumber:
		return v.Float()
	case dataset.KindString:
		return dataset.ParseNumber(v.Str(), nf)
	}
	return 0, false
}
