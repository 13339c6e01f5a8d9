package dataset

import (
	"fmt"
	"strings"
)

// ColumnType is the declared (or inferred) semantic type of a column.
type ColumnType string

const (
	Numeric     ColumnType = "numeric"
	Categorical ColumnType = "categorical"
	Datetime    ColumnType = "datetime"
	Text        ColumnType = "text"
	Boolean     ColumnType = "boolean"
)

// ColumnTypes lists every supported type in inference precedence order.
var ColumnTypes = []ColumnType{Numeric, Datetime, Boolean, Categorical, Text}

// ParseColumnType accepts the canonical names plus a few common aliases.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "numeric", "number", "float", "int", "integer":
		return Numeric, nil
	case "categorical", "category":
		return Categorical, nil
	case "datetime", "date", "time", "timestamp":
		return Datetime, nil
	case "text", "string":
		return Text, nil
	case "boolean", "bool":
		return Boolean, nil
	}
	return "", fmt.Errorf("unknown column type: %q", s)
}

// IsTextual reports whether values of this type are stored as strings.
func (t ColumnType) IsTextual() bool { return t == Text || t == Categorical }

// Class buckets a non-null cell into the type family it looks like.
// Numeric-like strings count as numeric, date-like strings as datetime and
// "true"/"false" strings as boolean; any other string is text. Null cells
// return the empty type.
func Class(v Value, nf NumberFormat) ColumnType {
	switch v.Kind() {
	case KindNumber:
		return Numeric
	case KindTime:
		return Datetime
	case KindBool:
		return Boolean
	case KindString:
		s := strings.TrimSpace(v.Str())
		if _, ok := ParseNumber(s, nf); ok {
			return Numeric
		}
		if _, ok := ParseTime(s); ok {
			return Datetime
		}
		if _, ok := ParseBool(s); ok {
			return Boolean
		}
		return Text
	}
	return ""
}

// Coerce converts v to the target type. Textual targets never fail; the
// other targets fail (ok=false) when the cell cannot be read as that type.
// Null stays null.
func Coerce(v Value, to ColumnType, nf NumberFormat) (Value, bool) {
	if v.IsNull() {
		return v, true
	}
	switch to {
	case Numeric:
		switch v.Kind() {
		case KindNumber:
			return v, true
		case KindString:
			if f, ok := ParseNumber(v.Str(), nf); ok {
				return Number(f), true
			}
		}
	case Datetime:
		switch v.Kind() {
		case KindTime:
			return v, true
		case KindString:
			if t, ok := ParseTime(strings.TrimSpace(v.Str())); ok {
				return Time(t), true
			}
		}
	case Boolean:
		switch v.Kind() {
		case KindBool:
			return v, true
		case KindString:
			if b, ok := ParseBool(v.Str()); ok {
				return Bool(b), true
			}
		case KindNumber:
			f, _ := v.Float()
			if f == 0 || f == 1 {
				return Bool(f == 1), true
			}
		}
	case Text, Categorical:
		if v.Kind() == KindString {
			return v, true
		}
		return String(v.Text()), true
	}
	return Null(), false
}
