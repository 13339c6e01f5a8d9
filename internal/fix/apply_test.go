package fix_test

import (
	"errors"
	"testing"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
)

func numbers(vs ...float64) []dataset.Value {
	out := make([]dataset.Value, len(vs))
	for i, v := range vs {
		out[i] = dataset.Number(v)
	}
	return out
}

func mustSnap(t *testing.T, cols ...dataset.Column) *dataset.Snapshot {
	t.Helper()
	s, err := dataset.New(cols...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func ageSnapshot(t *testing.T) *dataset.Snapshot {
	age := numbers(30, 40, 0, 35, 45, 0, 42, 28, 0, 51)
	for _, i := range []int{2, 5, 8} {
		age[i] = dataset.Null()
	}
	return mustSnap(t, dataset.Column{Name: "age", Type: dataset.Numeric, Values: age})
}

func TestImputeMeanFillsOnlyNulls(t *testing.T) {
	in := ageSnapshot(t)
	out, a, err := fix.Apply(in, fix.Spec{Column: "age", Kind: fix.ImputeMean}, fix.Options{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := (30.0 + 40 + 35 + 45 + 42 + 28 + 51) / 7
	for _, i := range []int{2, 5, 8} {
		f, ok := out.Cell(i, 0).Float()
		if !ok || f < want-1e-9 || f > want+1e-9 {
			t.Fatalf("row %d = %v, want %v", i, out.Cell(i, 0), want)
		}
	}
	if col, _ := out.Column("age"); col.NullCount() != 0 {
		t.Fatalf("nulls remain after impute")
	}
	if !in.Cell(2, 0).IsNull() {
		t.Fatalf("input snapshot was mutated")
	}
	if out.Version() != in.Version()+1 || out.NumRows() != in.NumRows() {
		t.Fatalf("version %d rows %d", out.Version(), out.NumRows())
	}
	if a.CellsChanged != 3 {
		t.Fatalf("cells changed = %d", a.CellsChanged)
	}
	if _, ok := a.Params.Get("value"); !ok {
		t.Fatalf("resolved fill value not recorded: %v", a.Params)
	}
}

func TestImputeMedianAndMode(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "n", Type: dataset.Numeric, Values: []dataset.Value{dataset.Number(1), dataset.Null(), dataset.Number(3), dataset.Number(10)}},
		dataset.Column{Name: "c", Type: dataset.Categorical, Values: []dataset.Value{dataset.String("b"), dataset.String("a"), dataset.Null(), dataset.String("a")}},
	)
	out, _, err := fix.Apply(in, fix.Spec{Column: "n", Kind: fix.ImputeMedian}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := out.Cell(1, 0).Float(); f != 3 {
		t.Fatalf("median fill = %v, want 3", f)
	}
	out, _, err = fix.Apply(in, fix.Spec{Column: "c", Kind: fix.ImputeMode}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Cell(2, 1).Str(); got != "a" {
		t.Fatalf("mode fill = %q, want a", got)
	}
}

func TestImputeConstantNeedsValue(t *testing.T) {
	in := ageSnapshot(t)
	_, _, err := fix.Apply(in, fix.Spec{Column: "age", Kind: fix.ImputeConstant}, fix.Options{})
	var mp *fix.MissingParamError
	if !errors.As(err, &mp) || !errors.Is(err, fix.ErrMissingParam) {
		t.Fatalf("expected MissingParamError, got %v", err)
	}
	out, _, err := fix.Apply(in, fix.Spec{Column: "age", Kind: fix.ImputeConstant, Params: fix.Params{{Key: "value", Value: "0"}}}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if f, ok := out.Cell(5, 0).Float(); !ok || f != 0 {
		t.Fatalf("constant fill = %v", out.Cell(5, 0))
	}
}

func TestApplyErrorsLeaveInputUnchanged(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "a", Type: dataset.Numeric, Values: []dataset.Value{dataset.Null(), dataset.Null()}},
		dataset.Column{Name: "b", Type: dataset.Text, Values: []dataset.Value{dataset.String("x"), dataset.String("y")}},
	)
	cases := []struct {
		spec fix.Spec
		want error
	}{
		{fix.Spec{Column: "zzz", Kind: fix.ImputeMean}, fix.ErrUnknownColumn},
		{fix.Spec{Column: "a", Kind: "interpolate"}, fix.ErrUnsupportedFixKind},
		{fix.Spec{Column: "a", Kind: fix.ImputeMean}, fix.ErrEmptyColumn},
		{fix.Spec{Column: "a", Kind: fix.ImputeMode}, fix.ErrEmptyColumn},
		{fix.Spec{Column: "b", Kind: fix.ImputeMean}, fix.ErrNotNumeric},
		{fix.Spec{Column: "a", Kind: fix.DropRows}, dataset.ErrEmptyDataset},
	}
	for _, c := range cases {
		out, _, err := fix.Apply(in, c.spec, fix.Options{})
		if !errors.Is(err, c.want) {
			t.Errorf("%s: err = %v, want %v", c.spec, err, c.want)
		}
		if out != nil {
			t.Errorf("%s: snapshot returned on error", c.spec)
		}
	}
	var uc *fix.UnknownColumnError
	if _, _, err := fix.Apply(in, fix.Spec{Column: "zzz", Kind: fix.DropColumn}, fix.Options{}); !errors.As(err, &uc) || uc.Column != "zzz" {
		t.Fatalf("UnknownColumnError not surfaced: %v", err)
	}
	if in.Version() != 1 || !in.Cell(0, 0).IsNull() {
		t.Fatalf("input changed")
	}
}

func TestCapOutliersIsIdempotent(t *testing.T) {
	in := mustSnap(t, dataset.Column{Name: "x", Type: dataset.Numeric, Values: numbers(1, 2, 3, 4, 5, 100)})
	once, a, err := fix.Apply(in, fix.Spec{Column: "x", Kind: fix.CapOutliers}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := once.Cell(5, 0).Float(); f != 8.5 {
		t.Fatalf("capped value = %v, want 8.5", f)
	}
	if lo, _ := a.Params.Get("lower"); lo != "-1.5" {
		t.Fatalf("lower param = %q", lo)
	}
	twice, a2, err := fix.Apply(once, fix.Spec{Column: "x", Kind: fix.CapOutliers}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !once.Equal(twice) {
		t.Fatalf("second cap changed the snapshot")
	}
	if a2.CellsChanged != 0 {
		t.Fatalf("second cap changed %d cells", a2.CellsChanged)
	}
}

func TestRowCountInvariants(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "k", Type: dataset.Text, Values: []dataset.Value{dataset.String("a"), dataset.String("a"), dataset.String("b"), dataset.Null()}},
		dataset.Column{Name: "v", Type: dataset.Numeric, Values: []dataset.Value{dataset.Number(1), dataset.Number(1), dataset.Number(2), dataset.Number(900)}},
	)
	shrink := []fix.Spec{{Kind: fix.Dedupe}, {Column: "k", Kind: fix.DropRows}}
	for _, s := range shrink {
		out, _, err := fix.Apply(in, s, fix.Options{})
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if out.NumRows() >= in.NumRows() {
			t.Fatalf("%s: rows %d -> %d", s, in.NumRows(), out.NumRows())
		}
	}
	same := []fix.Spec{{Column: "k", Kind: fix.ImputeMode}, {Column: "v", Kind: fix.CapOutliers}, {Column: "v", Kind: fix.CoerceOrDrop}}
	for _, s := range same {
		out, _, err := fix.Apply(in, s, fix.Options{})
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if out.NumRows() != in.NumRows() {
			t.Fatalf("%s: rows %d -> %d", s, in.NumRows(), out.NumRows())
		}
	}
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "id", Type: dataset.Numeric, Values: numbers(1, 2, 3)},
		dataset.Column{Name: "name", Type: dataset.Text, Values: []dataset.Value{dataset.String("x"), dataset.String("y"), dataset.String("x")}},
	)
	out, a, err := fix.Apply(in, fix.Spec{Kind: fix.Dedupe}, fix.Options{IDColumn: "id"})
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 2 || a.RowsBefore-a.RowsAfter != 1 {
		t.Fatalf("rows = %d (%d -> %d)", out.NumRows(), a.RowsBefore, a.RowsAfter)
	}
	if f, _ := out.Cell(0, 0).Float(); f != 1 {
		t.Fatalf("first occurrence not kept: id=%v", out.Cell(0, 0))
	}
	if f, _ := out.Cell(1, 0).Float(); f != 2 {
		t.Fatalf("order not preserved: id=%v", out.Cell(1, 0))
	}
	if id, _ := a.Params.Get("id_column"); id != "id" {
		t.Fatalf("id_column param = %q", id)
	}
}

func TestCoerceOrDropNullsFailures(t *testing.T) {
	in := mustSnap(t, dataset.Column{Name: "m", Type: dataset.Text, Values: []dataset.Value{
		dataset.String("10"), dataset.String("12"), dataset.String("n/a"), dataset.String("15"),
	}})
	out, a, err := fix.Apply(in, fix.Spec{Column: "m", Kind: fix.CoerceOrDrop}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	col, _ := out.Column("m")
	if col.Type != dataset.Numeric || !col.Values[2].IsNull() {
		t.Fatalf("coerced column = %+v", col)
	}
	if f, _ := col.Values[0].Float(); f != 10 {
		t.Fatalf("value 0 = %v", col.Values[0])
	}
	if typ, _ := a.Params.Get("type"); typ != "numeric" {
		t.Fatalf("type param = %q", typ)
	}
}

func TestDropColumn(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "a", Type: dataset.Numeric, Values: numbers(1)},
		dataset.Column{Name: "b", Type: dataset.Numeric, Values: numbers(2)},
	)
	out, _, err := fix.Apply(in, fix.Spec{Column: "a", Kind: fix.DropColumn}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out.NumCols() != 1 || out.Index("a") != -1 || in.Index("a") != 0 {
		t.Fatalf("columns after drop = %v (input %v)", out.Names(), in.Names())
	}
	if _, _, err := fix.Apply(out, fix.Spec{Column: "b", Kind: fix.DropColumn}, fix.Options{}); !errors.Is(err, dataset.ErrEmptyDataset) {
		t.Fatalf("dropping the last column: %v", err)
	}
}

func TestApplyAllIsAtomic(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "a", Type: dataset.Numeric, Values: []dataset.Value{dataset.Number(1), dataset.Null(), dataset.Number(3)}},
		dataset.Column{Name: "b", Type: dataset.Numeric, Values: []dataset.Value{dataset.Null(), dataset.Null(), dataset.Null()}},
	)
	specs := []fix.Spec{
		{Column: "a", Kind: fix.ImputeMean},
		{Column: "b", Kind: fix.DropColumn},
		{Column: "b", Kind: fix.ImputeMean},
	}
	out, applied, err := fix.ApplyAll(in, specs, fix.Options{})
	if err != nil {
		t.Fatalf("ApplyAll: %v", err)
	}
	if out.Version() != in.Version()+1 {
		t.Fatalf("composite version = %d", out.Version())
	}
	if len(applied) != 3 || !applied[2].Skipped {
		t.Fatalf("applied = %+v", applied)
	}
	if out.NumCols() != 1 {
		t.Fatalf("columns = %v", out.Names())
	}

	bad := []fix.Spec{{Column: "a", Kind: fix.ImputeMean}, {Column: "b", Kind: fix.ImputeMean}}
	out, applied, err = fix.ApplyAll(in, bad, fix.Options{})
	if !errors.Is(err, fix.ErrEmptyColumn) || out != nil || applied != nil {
		t.Fatalf("expected whole composite rejected, got %v %v %v", out, applied, err)
	}
	if !in.Cell(1, 0).IsNull() {
		t.Fatalf("input mutated by failed composite")
	}
}

func TestParseParamsRoundTrip(t *testing.T) {
	p, err := fix.ParseParams("value=0; k=3")
	if err != nil {
		t.Fatal(err)
	}
	if p.String() != "value=0;k=3" {
		t.Fatalf("params = %q", p.String())
	}
	if _, err := fix.ParseParams("novalue"); err == nil {
		t.Fatalf("expected error for missing '='")
	}
}

func TestPinnedFencesFollowTheirRows(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "x", Type: dataset.Numeric, Values: numbers(1, 2, 3, 4, 4, 100)},
		dataset.Column{Name: "y", Type: dataset.Numeric, Values: []dataset.Value{dataset.Null(), dataset.Number(1), dataset.Number(1), dataset.Number(1), dataset.Number(1), dataset.Number(1)}},
	)
	capped, _, err := fix.Apply(in, fix.Spec{Column: "x", Kind: fix.CapOutliers}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if col, _ := capped.Column("x"); col.Fences == nil {
		t.Fatalf("cap did not pin fences")
	}
	pinned := capped
	tests := []fix.Spec{
		{Column: "y", Kind: fix.DropRows},
		{Kind: fix.Dedupe},
		{Column: "x", Kind: fix.CoerceOrDrop},
	}
	for _, s := range tests {
		out, _, err := fix.Apply(capped, s, fix.Options{})
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		if col, _ := out.Column("x"); col.Fences != nil {
			t.Fatalf("%s kept pinned fences %+v", s, *col.Fences)
		}
	}
	if col, _ := pinned.Column("x"); col.Fences == nil {
		t.Fatalf("input snapshot lost its fences")
	}
	kept, _, err := fix.Apply(pinned, fix.Spec{Column: "x", Kind: fix.DropRows}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if col, _ := kept.Column("x"); col.Fences == nil {
		t.Fatalf("drop-rows that removed nothing released the fences")
	}

	holes := mustSnap(t, dataset.Column{Name: "x", Type: dataset.Numeric, Values: []dataset.Value{
		dataset.Number(1), dataset.Number(2), dataset.Null(), dataset.Number(4), dataset.Number(5), dataset.Number(100),
	}})
	capped, _, err = fix.Apply(holes, fix.Spec{Column: "x", Kind: fix.CapOutliers}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	filled, _, err := fix.Apply(capped, fix.Spec{Column: "x", Kind: fix.ImputeMedian}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if col, _ := filled.Column("x"); col.Fences != nil {
		t.Fatalf("impute kept pinned fences")
	}
}

func TestCoerceTextualNullsOtherClasses(t *testing.T) {
	in := mustSnap(t, dataset.Column{Name: "color", Type: dataset.Categorical, Values: []dataset.Value{
		dataset.String("red"), dataset.String("blue"), dataset.String("green"), dataset.String("42"), dataset.String("red"),
	}})
	out, a, err := fix.Apply(in, fix.Spec{Column: "color", Kind: fix.CoerceOrDrop}, fix.Options{})
	if err != nil {
		t.Fatal(err)
	}
	col, _ := out.Column("color")
	if col.Type != dataset.Categorical || !col.Values[3].IsNull() {
		t.Fatalf("coerced column = %+v", col)
	}
	if col.Values[0].Str() != "red" || a.CellsChanged != 1 {
		t.Fatalf("text cells changed: %+v (%d changed)", col.Values, a.CellsChanged)
	}
	if typ, _ := a.Params.Get("type"); typ != "categorical" {
		t.Fatalf("type param = %q", typ)
	}
}

func TestApplyAllNormalizesKinds(t *testing.T) {
	in := mustSnap(t,
		dataset.Column{Name: "a", Type: dataset.Numeric, Values: []dataset.Value{dataset.Number(1), dataset.Null()}},
		dataset.Column{Name: "b", Type: dataset.Numeric, Values: numbers(2, 3)},
	)
	specs := []fix.Spec{
		{Column: "a", Kind: "DROP-COLUMN"},
		{Column: "a", Kind: "Impute-Mean"},
	}
	out, applied, err := fix.ApplyAll(in, specs, fix.Options{})
	if err != nil {
		t.Fatalf("ApplyAll: %v", err)
	}
	if len(applied) != 2 || !applied[1].Skipped || applied[1].Kind != fix.ImputeMean {
		t.Fatalf("applied = %+v", applied)
	}
	if out.Index("a") != -1 {
		t.Fatalf("columns = %v", out.Names())
	}
}
