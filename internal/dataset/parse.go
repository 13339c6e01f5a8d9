package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// NumberFormat controls how numeric-looking strings are read.
// A zero separator means auto-detect per value.
type NumberFormat struct {
	Decimal   rune
	Thousands rune
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
}

// ParseTime tries the supported date/time layouts in order.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseBool accepts only true/false (any case); yes/no style tokens stay text.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ParseNumber reads a locale-formatted number. Percent signs and
// non-breaking spaces are stripped; with no explicit decimal separator the
// last of ',' or '.' decides.
func ParseNumber(s string, nf NumberFormat) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	if strings.Contains(raw, "%") {
		raw = strings.ReplaceAll(raw, "%", "")
	}
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	dec := nf.Decimal
	thou := nf.Thousands
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		if cpos >= 0 && dpos >= 0 {
			if cpos > dpos {
				dec = ','
				thou = '.'
			} else {
				dec = '.'
				thou = ','
			}
		} else if cpos >= 0 {
			dec = ','
		} else {
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseCell turns raw text into a cell of the given type. Empty text is
// null; text that does not read as the type is kept as a string cell so
// the mismatch stays visible to profiling.
func ParseCell(raw string, typ ColumnType, nf NumberFormat) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null()
	}
	if typ.IsTextual() {
		return String(s)
	}
	if v, ok := Coerce(String(s), typ, nf); ok {
		return v
	}
	return String(s)
}
