package dataset

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags the payload carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindTime
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single nullable table cell. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	t    time.Time
	b    bool
}

// Null returns the null cell.
func Null() Value { return Value{} }

// Number wraps a float64 cell.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String wraps a string cell.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Time wraps a timestamp cell.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Bool wraps a boolean cell.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) Str() string   { return v.str }
func (v Value) T() time.Time  { return v.t }
func (v Value) Boolean() bool { return v.b }

// Float returns the numeric payload; ok is false for non-number cells.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Text renders the cell the way it is written back to CSV.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	case KindTime:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format(time.RFC3339)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Key is a kind-qualified canonical form used for equality grouping
// (duplicate detection, mode counting).
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "\x00"
	case KindTime:
		return "t:" + v.t.UTC().Format(time.RFC3339Nano)
	default:
		return v.kind.String()[:1] + ":" + v.Text()
	}
}

// Equal reports whether two cells hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindTime:
		return v.t.Equal(o.t)
	case KindBool:
		return v.b == o.b
	}
	return false
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "<null>"
	}
	return v.Text()
}
