package fix

import (
	"fmt"
	"strings"
)

// Kind names a transform.
type Kind string

const (
	ImputeMean     Kind = "impute-mean"
	ImputeMedian   Kind = "impute-median"
	ImputeMode     Kind = "impute-mode"
	ImputeConstant Kind = "impute-constant"
	DropRows       Kind = "drop-rows"
	DropColumn     Kind = "drop-column"
	CapOutliers    Kind = "cap-outliers"
	Dedupe         Kind = "dedupe"
	CoerceOrDrop   Kind = "coerce-or-drop"
)

// Kinds lists every supported transform.
var Kinds = []Kind{ImputeMean, ImputeMedian, ImputeMode, ImputeConstant, DropRows, DropColumn, CapOutliers, Dedupe, CoerceOrDrop}

// ParseKind validates a fix kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, x := range Kinds {
		if x == k {
			return k, nil
		}
	}
	return "", &UnsupportedFixKindError{Kind: s}
}

// RowLevel reports transforms that act on whole rows and need no column.
func (k Kind) RowLevel() bool { return k == Dedupe }

// Param is one named fix parameter. Parameters keep insertion order so
// every encoding of a step is deterministic.
type Param struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Params is an ordered parameter list.
type Params []Param

// Get returns the value stored under key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// With returns a copy of p with key set to value, replacing an existing
// entry in place or appending a new one.
func (p Params) With(key, value string) Params {
	out := make(Params, 0, len(p)+1)
	found := false
	for _, kv := range p {
		if kv.Key == key {
			kv.Value = value
			found = true
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, Param{Key: key, Value: value})
	}
	return out
}

// String renders params as k=v;k=v, the form the CLI accepts.
func (p Params) String() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = kv.Key + "=" + kv.Value
	}
	return strings.Join(parts, ";")
}

// ParseParams reads the k=v;k=v form.
func ParseParams(s string) (Params, error) {
	var out Params
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", part)
		}
		out = out.With(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return out, nil
}

// Spec requests one transform. Column is ignored by row-level kinds.
type Spec struct {
	Column string `json:"column" yaml:"column"`
	Kind   Kind   `json:"fix" yaml:"fix"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

func (s Spec) String() string {
	out := string(s.Kind)
	if s.Column != "" && !s.Kind.RowLevel() {
		out += " " + s.Column
	}
	if len(s.Params) > 0 {
		out += " [" + s.Params.String() + "]"
	}
	return out
}

// Applied records what a transform did. Params include the values the
// transform resolved (fill value, bounds, target type) so it can be replayed.
type Applied struct {
	Column       string `json:"column" yaml:"column"`
	Kind         Kind   `json:"fix" yaml:"fix"`
	Params       Params `json:"params,omitempty" yaml:"params,omitempty"`
	RowsBefore   int    `json:"rows_before" yaml:"rows_before"`
	RowsAfter    int    `json:"rows_after" yaml:"rows_after"`
	CellsChanged int    `json:"cells_changed" yaml:"cells_changed"`
	// Skipped marks a fix-all sub-fix whose column an earlier sub-fix removed.
	Skipped bool `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Spec returns the request that reproduces this application.
func (a Applied) Spec() Spec { return Spec{Column: a.Column, Kind: a.Kind, Params: a.Params} }
