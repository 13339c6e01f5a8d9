package pipeline

import (
	"strings"

	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
)

type requestMode int

const (
	modeRecommendation requestMode = iota
	modeExplicit
	modeFixAll
	modeBatch
)

// Request selects what ApplyFix does. Build one with ByRecommendation,
// Explicit, FixAll or Batch.
type Request struct {
	mode  requestMode
	id    string
	spec  fix.Spec
	batch []fix.Spec
}

// ByRecommendation applies the default fix of an outstanding recommendation.
func ByRecommendation(id string) Request { return Request{mode: modeRecommendation, id: id} }

// Explicit applies a caller-chosen fix to a column.
func Explicit(column string, kind fix.Kind, params fix.Params) Request {
	return Request{mode: modeExplicit, spec: fix.Spec{Column: column, Kind: kind, Params: params}}
}

// FixAll applies every outstanding recommendation as one composite step.
func FixAll() Request { return Request{mode: modeFixAll} }

// Batch applies the given specs in order as one composite step.
func Batch(specs []fix.Spec) Request {
	return Request{mode: modeBatch, batch: append([]fix.Spec(nil), specs...)}
}

func (r Request) String() string {
	switch r.mode {
	case modeRecommendation:
		return "recommendation " + r.id
	case modeExplicit:
		return r.spec.String()
	case modeFixAll:
		return "fix-all"
	}
	parts := make([]string, len(r.batch))
	for i, s := range r.batch {
		parts[i] = s.String()
	}
	return "batch: " + strings.Join(parts, ", ")
}

func (r Request) label(specs []fix.Spec) string {
	switch {
	case r.mode == modeFixAll:
		return "fix-all"
	case r.mode == modeBatch:
		return "batch"
	case len(specs) == 1:
		return string(specs[0].Kind)
	}
	return "unknown"
}
