// Package fix implements the transforms that repair a snapshot. Every
// transform is pure: the input snapshot is never modified and the result is
// a new snapshot one version ahead.
package fix

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
)

// Options carries the settings transforms share with profiling.
type Options struct {
	NumberFormat dataset.NumberFormat
	// IQRMultiplier for cap-outliers when no bounds are pinned or given.
	IQRMultiplier float64
	// IDColumn is excluded from row comparison by dedupe unless the spec
	// sets id_column itself.
	IDColumn string
}

// Apply runs one transform against snap.
func Apply(snap *dataset.Snapshot, spec Spec, opt Options) (*dataset.Snapshot, Applied, error) {
	cols, applied, err := transform(snap, spec, opt)
	if err != nil {
		return nil, Applied{}, err
	}
	out, err := snap.Derive(cols)
	if err != nil {
		return nil, Applied{}, fmt.Errorf("%s: %w", spec.Kind, err)
	}
	return out, applied, nil
}

// ApplyAll runs specs in order against intermediate results and returns a
// single snapshot one version ahead of snap. Sub-fixes targeting a column
// that an earlier sub-fix dropped are recorded as skipped. On error nothing
// is returned and snap is untouched.
func ApplyAll(snap *dataset.Snapshot, specs []Spec, opt Options) (*dataset.Snapshot, []Applied, error) {
	cur := snap
	dropped := make(map[string]bool)
	applied := make([]Applied, 0, len(specs))
	for i, s := range specs {
		if k, err := ParseKind(string(s.Kind)); err == nil {
			s.Kind = k
		}
		if !s.Kind.RowLevel() && dropped[s.Column] {
			applied = append(applied, Applied{Column: s.Column, Kind: s.Kind, Params: s.Params,
				RowsBefore: cur.NumRows(), RowsAfter: cur.NumRows(), Skipped: true})
			continue
		}
		cols, a, err := transform(cur, s, opt)
		if err != nil {
			return nil, nil, fmt.Errorf("sub-fix %d (%s): %w", i+1, s, err)
		}
		next, err := cur.Derive(cols)
		if err != nil {
			return nil, nil, fmt.Errorf("sub-fix %d (%s): %w", i+1, s, err)
		}
		if s.Kind == DropColumn {
			dropped[s.Column] = true
		}
		applied = append(applied, a)
		cur = next
	}
	out, err := snap.Derive(cur.Columns())
	if err != nil {
		return nil, nil, err
	}
	return out, applied, nil
}

func transform(snap *dataset.Snapshot, spec Spec, opt Options) ([]dataset.Column, Applied, error) {
	if opt.IQRMultiplier <= 0 {
		opt.IQRMultiplier = 1.5
	}
	kind, err := ParseKind(string(spec.Kind))
	if err != nil {
		return nil, Applied{}, err
	}
	spec.Kind = kind
	a := Applied{Column: spec.Column, Kind: spec.Kind, Params: spec.Params, RowsBefore: snap.NumRows()}
	if spec.Kind == Dedupe {
		cols, err := dedupe(snap, spec, opt, &a)
		return cols, a, err
	}
	idx := snap.Index(spec.Column)
	if idx < 0 {
		return nil, Applied{}, &UnknownColumnError{Column: spec.Column}
	}
	cols := snap.Columns()
	col := cols[idx]
	switch spec.Kind {
	case ImputeMean, ImputeMedian, ImputeMode, ImputeConstant:
		cols[idx], err = impute(col, spec, opt, &a)
	case CapOutliers:
		cols[idx], err = capOutliers(col, spec, opt, &a)
	case CoerceOrDrop:
		cols[idx], err = coerce(col, spec, opt, &a)
	case DropRows:
		cols, err = dropNullRows(cols, idx, &a)
	case DropColumn:
		if len(cols) == 1 {
			return nil, Applied{}, fmt.Errorf("drop-column %q: %w", spec.Column, dataset.ErrEmptyDataset)
		}
		cols = append(cols[:idx:idx], cols[idx+1:]...)
	}
	if err != nil {
		return nil, Applied{}, err
	}
	if spec.Kind != DropRows {
		a.RowsAfter = snap.NumRows()
	}
	return cols, a, nil
}

func impute(col dataset.Column, spec Spec, opt Options, a *Applied) (dataset.Column, error) {
	var fill dataset.Value
	switch spec.Kind {
	case ImputeConstant:
		raw, ok := spec.Params.Get("value")
		if !ok {
			return col, &MissingParamError{Kind: spec.Kind, Param: "value"}
		}
		fill = dataset.ParseCell(raw, col.Type, opt.NumberFormat)
		if fill.IsNull() {
			return col, &MissingParamError{Kind: spec.Kind, Param: "value"}
		}
	case ImputeMode:
		v, ok := mode(col.Values)
		if !ok {
			return col, &EmptyColumnError{Column: col.Name, Kind: spec.Kind}
		}
		fill = v
	default:
		if col.NullCount() == len(col.Values) {
			return col, &EmptyColumnError{Column: col.Name, Kind: spec.Kind}
		}
		nums := numbers(col.Values, opt.NumberFormat)
		if len(nums) == 0 {
			return col, fmt.Errorf("%s %q: %w", spec.Kind, col.Name, ErrNotNumeric)
		}
		if spec.Kind == ImputeMean {
			fill = dataset.Number(mean(nums))
		} else {
			sort.Float64s(nums)
			fill = dataset.Number(profile.Quantile(nums, 0.5))
		}
	}
	out := col.Clone()
	for i, v := range out.Values {
		if v.IsNull() {
			out.Values[i] = fill
			a.CellsChanged++
		}
	}
	if a.CellsChanged > 0 {
		out.Fences = nil
	}
	a.Params = a.Params.With("value", fill.Text())
	return out, nil
}

func capOutliers(col dataset.Column, spec Spec, opt Options, a *Applied) (dataset.Column, error) {
	nums := numbers(col.Values, opt.NumberFormat)
	if len(nums) == 0 {
		if col.NullCount() == len(col.Values) {
			return col, &EmptyColumnError{Column: col.Name, Kind: spec.Kind}
		}
		return col, fmt.Errorf("%s %q: %w", spec.Kind, col.Name, ErrNotNumeric)
	}
	var bounds dataset.Fences
	lo, okLo := floatParam(spec.Params, "lower")
	hi, okHi := floatParam(spec.Params, "upper")
	switch {
	case okLo && okHi:
		bounds = dataset.Fences{Lower: lo, Upper: hi}
	case col.Fences != nil:
		bounds = *col.Fences
	default:
		k := opt.IQRMultiplier
		if v, ok := floatParam(spec.Params, "k"); ok && v > 0 {
			k = v
		}
		sort.Float64s(nums)
		bounds.Lower, bounds.Upper = profile.Fences(profile.Quantile(nums, 0.25), profile.Quantile(nums, 0.75), k)
	}
	out := col.Clone()
	for i, v := range out.Values {
		f, ok := profile.AsFloat(v, opt.NumberFormat)
		if !ok {
			continue
		}
		switch {
		case f < bounds.Lower:
			out.Values[i] = dataset.Number(bounds.Lower)
			a.CellsChanged++
		case f > bounds.Upper:
			out.Values[i] = dataset.Number(bounds.Upper)
			a.CellsChanged++
		}
	}
	out.Fences = &bounds
	a.Params = a.Params.With("lower", formatFloat(bounds.Lower)).With("upper", formatFloat(bounds.Upper))
	return out, nil
}

func coerce(col dataset.Column, spec Spec, opt Options, a *Applied) (dataset.Column, error) {
	var target dataset.ColumnType
	if raw, ok := spec.Params.Get("type"); ok {
		t, err := dataset.ParseColumnType(raw)
		if err != nil {
			return col, fmt.Errorf("%s: %w", spec.Kind, err)
		}
		target = t
	} else {
		t, ok := dominant(col.Values, opt.NumberFormat)
		if !ok {
			return col, &EmptyColumnError{Column: col.Name, Kind: spec.Kind}
		}
		target = t
		if t == dataset.Text && col.Type == dataset.Categorical {
			target = dataset.Categorical
		}
	}
	out := col.Clone()
	out.Type = target
	out.Fences = nil
	for i, v := range out.Values {
		nv, ok := dataset.Coerce(v, target, opt.NumberFormat)
		// Textual targets keep only cells that read as text.
		if !ok || (target.IsTextual() && !v.IsNull() && dataset.Class(v, opt.NumberFormat) != dataset.Text) {
			nv = dataset.Null()
		}
		if !nv.Equal(v) {
			a.CellsChanged++
		}
		out.Values[i] = nv
	}
	a.Params = a.Params.With("type", string(target))
	return out, nil
}

func dropNullRows(cols []dataset.Column, idx int, a *Applied) ([]dataset.Column, error) {
	keep := make([]bool, len(cols[idx].Values))
	n := 0
	for i, v := range cols[idx].Values {
		if !v.IsNull() {
			keep[i] = true
			n++
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("drop-rows %q would remove every row: %w", cols[idx].Name, dataset.ErrEmptyDataset)
	}
	a.RowsAfter = n
	return filterRows(cols, keep, n), nil
}

func dedupe(snap *dataset.Snapshot, spec Spec, opt Options, a *Applied) ([]dataset.Column, error) {
	id := opt.IDColumn
	if v, ok := spec.Params.Get("id_column"); ok {
		id = v
	}
	a.Column = detect.DatasetColumn
	if id != "" && snap.Index(id) >= 0 {
		a.Params = a.Params.With("id_column", id)
	}
	dups := detect.DuplicateMask(snap, id)
	keep := make([]bool, len(dups))
	n := 0
	for i, d := range dups {
		if !d {
			keep[i] = true
			n++
		}
	}
	a.RowsAfter = n
	return filterRows(snap.Columns(), keep, n), nil
}

func filterRows(cols []dataset.Column, keep []bool, n int) []dataset.Column {
	out := make([]dataset.Column, len(cols))
	for j, c := range cols {
		nc := dataset.Column{Name: c.Name, Type: c.Type, Values: make([]dataset.Value, 0, n)}
		// Pinned fences belong to the row set they were computed on.
		if n == len(c.Values) {
			nc.Fences = c.Fences
		}
		for i, v := range c.Values {
			if keep[i] {
				nc.Values = append(nc.Values, v)
			}
		}
		out[j] = nc
	}
	return out
}

func numbers(vals []dataset.Value, nf dataset.NumberFormat) []float64 {
	var out []float64
	for _, v := range vals {
		if f, ok := profile.AsFloat(v, nf); ok {
			out = append(out, f)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	var m float64
	for i, x := range xs {
		m += (x - m) / float64(i+1)
	}
	return m
}

// mode returns the most frequent non-null value; ties go to the value seen first.
func mode(vals []dataset.Value) (dataset.Value, bool) {
	counts := make(map[string]int)
	var order []dataset.Value
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		k := v.Key()
		if counts[k] == 0 {
			order = append(order, v)
		}
		counts[k]++
	}
	if len(order) == 0 {
		return dataset.Null(), false
	}
	best := order[0]
	for _, v := range order[1:] {
		if counts[v.Key()] > counts[best.Key()] {
			best = v
		}
	}
	return best, true
}

func dominant(vals []dataset.Value, nf dataset.NumberFormat) (dataset.ColumnType, bool) {
	counts := make(map[dataset.ColumnType]int)
	for _, v := range vals {
		if !v.IsNull() {
			counts[dataset.Class(v, nf)]++
		}
	}
	var best dataset.ColumnType
	n := 0
	for _, t := range []dataset.ColumnType{dataset.Numeric, dataset.Datetime, dataset.Boolean, dataset.Text} {
		if counts[t] > n {
			best, n = t, counts[t]
		}
	}
	return best, n > 0
}

func floatParam(p Params, key string) (float64, bool) {
	raw, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	return f, err == nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
