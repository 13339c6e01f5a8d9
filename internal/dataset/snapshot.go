package dataset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRaggedColumns indicates columns of unequal length.
	ErrRaggedColumns = errors.New("columns have unequal row counts")
	// ErrDuplicateColumn indicates two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column name")
	// ErrUnnamedColumn indicates an empty column name.
	ErrUnnamedColumn = errors.New("column name is empty")
	// ErrEmptyDataset indicates a snapshot with zero columns or zero rows.
	ErrEmptyDataset = errors.New("dataset is empty")
)

// Fences are outlier bounds pinned on a column after its outliers were capped.
type Fences struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Column is one named, typed sequence of cells.
type Column struct {
	Name   string
	Type   ColumnType
	Values []Value
	// Fences, when set, replace the quartile-derived outlier bounds.
	Fences *Fences
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	out := Column{Name: c.Name, Type: c.Type, Values: make([]Value, len(c.Values))}
	copy(out.Values, c.Values)
	if c.Fences != nil {
		f := *c.Fences
		out.Fences = &f
	}
	return out
}

// NullCount returns how many cells are null.
func (c Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v.IsNull() {
			n++
		}
	}
	return n
}

// Snapshot is an immutable, versioned table. Every mutation goes through
// Derive, which returns a new snapshot one version ahead.
type Snapshot struct {
	version int
	rows    int
	cols    []Column
	index   map[string]int
}

// New validates and copies the columns into a version-1 snapshot.
func New(cols ...Column) (*Snapshot, error) {
	owned := make([]Column, len(cols))
	for i, c := range cols {
		owned[i] = c.Clone()
	}
	return build(1, owned)
}

func build(version int, cols []Column) (*Snapshot, error) {
	s := &Snapshot{version: version, cols: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		name := c.Name
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("column %d: %w", i, ErrUnnamedColumn)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		s.index[name] = i
		if i == 0 {
			s.rows = len(c.Values)
		} else if len(c.Values) != s.rows {
			return nil, fmt.Errorf("%w: %s has %d rows, expected %d", ErrRaggedColumns, name, len(c.Values), s.rows)
		}
	}
	return s, nil
}

// Derive builds the successor snapshot from cols. The caller hands over
// ownership: cols and their value slices must not be modified afterwards.
// Unchanged value slices may be shared with the parent.
func (s *Snapshot) Derive(cols []Column) (*Snapshot, error) {
	return build(s.version+1, cols)
}

func (s *Snapshot) Version() int { return s.version }
func (s *Snapshot) NumRows() int { return s.rows }
func (s *Snapshot) NumCols() int { return len(s.cols) }

// IsEmpty reports zero columns or zero rows.
func (s *Snapshot) IsEmpty() bool { return s == nil || len(s.cols) == 0 || s.rows == 0 }

// Names returns the column names in order.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column, or -1.
func (s *Snapshot) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Column returns a copy of the named column.
func (s *Snapshot) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.cols[i].Clone(), true
}

// ColumnAt returns a copy of the i-th column.
func (s *Snapshot) ColumnAt(i int) Column { return s.cols[i].Clone() }

// Columns returns shallow column headers that share value storage with the
// snapshot. Callers building a derived snapshot use it to reuse untouched
// columns; the value slices must be treated as read-only.
func (s *Snapshot) Columns() []Column {
	out := make([]Column, len(s.cols))
	copy(out, s.cols)
	return out
}

// Cell returns the value at (row, col).
func (s *Snapshot) Cell(row, col int) Value { return s.cols[col].Values[row] }

// Row returns a copy of row i across all columns.
func (s *Snapshot) Row(i int) []Value {
	out := make([]Value, len(s.cols))
	for j, c := range s.cols {
		out[j] = c.Values[i]
	}
	return out
}

// Equal compares content (names, types, fences, cells); versions are ignored.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.rows != o.rows || len(s.cols) != len(o.cols) {
		return false
	}
	for i := range s.cols {
		a, b := s.cols[i], o.cols[i]
		if a.Name != b.Name || a.Type != b.Type {
			return false
		}
		if (a.Fences == nil) != (b.Fences == nil) || (a.Fences != nil && *a.Fences != *b.Fences) {
			return false
		}
		for r := range a.Values {
			if !a.Values[r].Equal(b.Values[r]) {
				return false
			}
		}
	}
	return true
}
