package dataset_test

import (
	"errors"
	"testing"
	"time"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
)

func TestNewValidatesColumns(t *testing.T) {
	_, err := dataset.New(
		dataset.Column{Name: "a", Type: dataset.Numeric, Values: []dataset.Value{dataset.Number(1), dataset.Number(2)}},
		dataset.Column{Name: "b", Type: dataset.Text, Values: []dataset.Value{dataset.String("x")}},
	)
	if !errors.Is(err, dataset.ErrRaggedColumns) {
		t.Fatalf("expected ErrRaggedColumns, got %v", err)
	}
	_, err = dataset.New(
		dataset.Column{Name: "a", Type: dataset.Numeric},
		dataset.Column{Name: "a", Type: dataset.Numeric},
	)
	if !errors.Is(err, dataset.ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
	_, err = dataset.New(dataset.Column{Name: " ", Type: dataset.Text})
	if !errors.Is(err, dataset.ErrUnnamedColumn) {
		t.Fatalf("expected ErrUnnamedColumn, got %v", err)
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	vals := []dataset.Value{dataset.Number(1), dataset.Null()}
	s, err := dataset.New(dataset.Column{Name: "a", Type: dataset.Numeric, Values: vals})
	if err != nil {
		t.Fatal(err)
	}
	vals[0] = dataset.Number(99)
	col, _ := s.Column("a")
	col.Values[1] = dataset.Number(5)
	if f, _ := s.Cell(0, 0).Float(); f != 1 {
		t.Fatalf("snapshot changed through constructor input: %v", s.Cell(0, 0))
	}
	if !s.Cell(1, 0).IsNull() {
		t.Fatalf("snapshot changed through accessor copy")
	}
	if s.Version() != 1 {
		t.Fatalf("version = %d, want 1", s.Version())
	}
	next, err := s.Derive([]dataset.Column{{Name: "a", Type: dataset.Numeric, Values: []dataset.Value{dataset.Number(1), dataset.Number(2)}}})
	if err != nil {
		t.Fatal(err)
	}
	if next.Version() != 2 {
		t.Fatalf("derived version = %d, want 2", next.Version())
	}
	if s.Equal(next) {
		t.Fatalf("different content reported equal")
	}
}

func TestEqualIgnoresVersion(t *testing.T) {
	col := dataset.Column{Name: "a", Type: dataset.Numeric, Values: []dataset.Value{dataset.Number(1)}}
	a, _ := dataset.New(col)
	b, _ := a.Derive([]dataset.Column{col.Clone()})
	if !a.Equal(b) {
		t.Fatalf("same content should be equal")
	}
	pinned := col.Clone()
	pinned.Fences = &dataset.Fences{Lower: 0, Upper: 2}
	c, _ := a.Derive([]dataset.Column{pinned})
	if a.Equal(c) {
		t.Fatalf("fences must take part in equality")
	}
}

func TestValueKeyAndEqual(t *testing.T) {
	if dataset.Number(34).Key() == dataset.String("34").Key() {
		t.Fatalf("number and string keys must differ")
	}
	if !dataset.Number(2.5).Equal(dataset.Number(2.5)) {
		t.Fatalf("equal numbers")
	}
	if dataset.Null().Equal(dataset.Number(0)) {
		t.Fatalf("null vs zero")
	}
	d := time.Date(2024, 8, 10, 0, 0, 0, 0, time.UTC)
	if got := dataset.Time(d).Text(); got != "2024-08-10" {
		t.Fatalf("date text = %q", got)
	}
	if got := dataset.Number(100).Text(); got != "100" {
		t.Fatalf("number text = %q", got)
	}
}

func TestParseNumberLocales(t *testing.T) {
	cases := []struct {
		in   string
		nf   dataset.NumberFormat
		want float64
		ok   bool
	}{
		{"12.5%", dataset.NumberFormat{}, 12.5, true},
		{"1.000,5", dataset.NumberFormat{}, 1000.5, true},
		{"1,000.5", dataset.NumberFormat{}, 1000.5, true},
		{"0,5", dataset.NumberFormat{Decimal: ','}, 0.5, true},
		{"1e3", dataset.NumberFormat{}, 1000, true},
		{"NaN", dataset.NumberFormat{}, 0, false},
		{"Infinity", dataset.NumberFormat{}, 0, false},
		{"abc", dataset.NumberFormat{}, 0, false},
		{"2024-08-10", dataset.NumberFormat{}, 0, false},
	}
	for _, c := range cases {
		got, ok := dataset.ParseNumber(c.in, c.nf)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ParseNumber(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestClassAndCoerce(t *testing.T) {
	nf := dataset.NumberFormat{}
	cases := []struct {
		v    dataset.Value
		want dataset.ColumnType
	}{
		{dataset.Number(1), dataset.Numeric},
		{dataset.String("42"), dataset.Numeric},
		{dataset.String("2024-01-02"), dataset.Datetime},
		{dataset.String("TRUE"), dataset.Boolean},
		{dataset.String("yes"), dataset.Text},
		{dataset.Null(), ""},
	}
	for _, c := range cases {
		if got := dataset.Class(c.v, nf); got != c.want {
			t.Errorf("Class(%v) = %q want %q", c.v, got, c.want)
		}
	}
	if _, ok := dataset.Coerce(dataset.String("abc"), dataset.Numeric, nf); ok {
		t.Fatalf("abc must not coerce to numeric")
	}
	v, ok := dataset.Coerce(dataset.Number(3), dataset.Text, nf)
	if !ok || v.Str() != "3" {
		t.Fatalf("number to text = %v,%v", v, ok)
	}
	v, ok = dataset.Coerce(dataset.Number(1), dataset.Boolean, nf)
	if !ok || !v.Boolean() {
		t.Fatalf("1 to boolean = %v,%v", v, ok)
	}
}
