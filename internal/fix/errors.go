package fix

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownColumn      = errors.New("unknown column")
	ErrUnsupportedFixKind = errors.New("unsupported fix kind")
	ErrEmptyColumn        = errors.New("column has no non-null values")
	ErrMissingParam       = errors.New("missing fix parameter")
	// ErrNotNumeric is returned when a numeric statistic is requested on a
	// column whose values cannot be read as numbers.
	ErrNotNumeric = errors.New("column has no numeric values")
)

// UnknownColumnError reports a fix that targets a column the snapshot lacks.
type UnknownColumnError struct{ Column string }

func (e *UnknownColumnError) Error() string { return fmt.Sprintf("unknown column %q", e.Column) }
func (e *UnknownColumnError) Is(target error) bool {
	return target == ErrUnknownColumn
}

// UnsupportedFixKindError reports a fix kind outside the supported set.
type UnsupportedFixKindError struct{ Kind string }

func (e *UnsupportedFixKindError) Error() string {
	return fmt.Sprintf("unsupported fix kind %q", e.Kind)
}
func (e *UnsupportedFixKindError) Is(target error) bool { return target == ErrUnsupportedFixKind }

// EmptyColumnError indicates a statistic was requested on an all-null column.
type EmptyColumnError struct {
	Column string
	Kind   Kind
}

func (e *EmptyColumnError) Error() string {
	return fmt.Sprintf("%s: column %q has no non-null values", e.Kind, e.Column)
}
func (e *EmptyColumnError) Is(target error) bool { return target == ErrEmptyColumn }

// MissingParamError indicates a required parameter was not supplied.
type MissingParamError struct {
	Kind  Kind
	Param string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("%s: missing parameter %q", e.Kind, e.Param)
}
func (e *MissingParamError) Is(target error) bool { return target == ErrMissingParam }
