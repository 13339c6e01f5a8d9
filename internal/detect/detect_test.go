package detect_test

import (
	"testing"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
)

func run(t *testing.T, opt detect.Options, cols ...dataset.Column) []detect.Anomaly {
	t.Helper()
	snap, err := dataset.New(cols...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := profile.Run(snap, profile.DefaultOptions())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return detect.Detect(snap, p, opt)
}

func numbers(vs ...float64) []dataset.Value {
	out := make([]dataset.Value, len(vs))
	for i, v := range vs {
		out[i] = dataset.Number(v)
	}
	return out
}

func strs(vs ...string) []dataset.Value {
	out := make([]dataset.Value, len(vs))
	for i, v := range vs {
		if v == "" {
			out[i] = dataset.Null()
			continue
		}
		out[i] = dataset.String(v)
	}
	return out
}

func TestDetectOutlierBounds(t *testing.T) {
	got := run(t, detect.Options{}, dataset.Column{Name: "x", Type: dataset.Numeric, Values: numbers(1, 2, 3, 4, 5, 100)})
	if len(got) != 1 {
		t.Fatalf("anomalies = %+v", got)
	}
	a := got[0]
	if a.Kind != detect.Outlier || a.Affected != 1 || a.Total != 6 {
		t.Fatalf("outlier record = %+v", a)
	}
	if a.Evidence.Lower == nil || *a.Evidence.Lower != -1.5 || *a.Evidence.Upper != 8.5 {
		t.Fatalf("bounds evidence = %+v", a.Evidence)
	}
}

func TestDetectMissingValues(t *testing.T) {
	age := numbers(30, 40, 0, 35, 45, 0, 42, 28, 0, 51)
	for _, i := range []int{2, 5, 8} {
		age[i] = dataset.Null()
	}
	got := run(t, detect.Options{}, dataset.Column{Name: "age", Type: dataset.Numeric, Values: age})
	var missing []detect.Anomaly
	for _, a := range got {
		if a.Kind == detect.MissingValues {
			missing = append(missing, a)
		}
	}
	if len(missing) != 1 || missing[0].Affected != 3 || missing[0].Column != "age" {
		t.Fatalf("missing-values records = %+v", missing)
	}
}

func TestDetectDuplicatesIgnoreIDColumn(t *testing.T) {
	id := dataset.Column{Name: "id", Type: dataset.Numeric, Values: numbers(1, 2, 3, 4)}
	name := dataset.Column{Name: "name", Type: dataset.Text, Values: strs("a", "b", "a", "a")}
	got := run(t, detect.Options{}, id, name)
	for _, a := range got {
		if a.Kind == detect.DuplicateRows {
			t.Fatalf("distinct ids must not be duplicates: %+v", a)
		}
	}
	got = run(t, detect.Options{IDColumn: "id"}, id, name)
	if len(got) == 0 || got[0].Kind != detect.DuplicateRows {
		t.Fatalf("expected dataset-level duplicate record first, got %+v", got)
	}
	d := got[0]
	if d.ColumnIndex != -1 || d.Column != detect.DatasetColumn || d.Affected != 2 || d.Evidence.Groups != 1 {
		t.Fatalf("duplicate record = %+v", d)
	}
	if d.Evidence.IDColumn != "id" {
		t.Fatalf("id column evidence = %q", d.Evidence.IDColumn)
	}
}

func TestDetectTypeMismatch(t *testing.T) {
	got := run(t, detect.Options{}, dataset.Column{Name: "m", Type: dataset.Text, Values: strs("10", "12", "n/a", "15")})
	var found bool
	for _, a := range got {
		if a.Kind == detect.TypeMismatch {
			found = true
			if a.Affected != 1 || a.Evidence.Dominant != dataset.Numeric {
				t.Fatalf("type-mismatch record = %+v", a)
			}
		}
	}
	if !found {
		t.Fatalf("no type-mismatch record in %+v", got)
	}
}

func TestDetectScansEveryColumnInOrder(t *testing.T) {
	a := dataset.Column{Name: "a", Type: dataset.Numeric, Values: numbers(1, 2, 3, 4, 5, 100)}
	b := dataset.Column{Name: "b", Type: dataset.Numeric, Values: numbers(10, 20, 30, 40, 50, -900)}
	b.Values[2] = dataset.Null()
	got := run(t, detect.Options{}, a, b)
	want := []struct {
		col  string
		kind detect.Kind
	}{
		{"a", detect.Outlier},
		{"b", detect.MissingValues},
		{"b", detect.Outlier},
	}
	if len(got) != len(want) {
		t.Fatalf("anomalies = %+v", got)
	}
	for i, w := range want {
		if got[i].Column != w.col || got[i].Kind != w.kind {
			t.Fatalf("anomaly %d = %s/%s, want %s/%s", i, got[i].Column, got[i].Kind, w.col, w.kind)
		}
	}
}

func TestDuplicateMaskMarksLaterOccurrences(t *testing.T) {
	snap, _ := dataset.New(dataset.Column{Name: "v", Type: dataset.Text, Values: strs("x", "y", "x", "x")})
	marks := detect.DuplicateMask(snap, "")
	want := []bool{false, false, true, true}
	for i := range want {
		if marks[i] != want[i] {
			t.Fatalf("marks = %v, want %v", marks, want)
		}
	}
}
