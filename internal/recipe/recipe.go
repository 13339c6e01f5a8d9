// Package recipe encodes a session's operation log so it can be stored and
// re-applied to another copy of the data.
package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alpkeskin/gotoon"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
	"github.com/KaramelBytes/tidyloom-cli/internal/history"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tidyloom-cli/internal/utils"
)

// FormatVersion is written into every recipe.
const FormatVersion = 1

// Format is a recipe encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOON Format = "toon"
)

// ErrDecodeUnsupported is returned when asked to decode a write-only format.
var ErrDecodeUnsupported = errors.New("format cannot be decoded")

// ParseFormat accepts json, yaml/yml and toon in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toon":
		return TOON, nil
	}
	return "", fmt.Errorf("unknown recipe format %q (want json, yaml or toon)", s)
}

// FormatFromPath picks the format from a file extension, falling back to def.
func FormatFromPath(path string, def Format) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return def
}

// Recipe is the exported operation log with a small header.
type Recipe struct {
	Version    int                  `json:"version" yaml:"version"`
	Source     string               `json:"source,omitempty" yaml:"source,omitempty"`
	Session    string               `json:"session,omitempty" yaml:"session,omitempty"`
	Operations []history.Descriptor `json:"operations" yaml:"operations"`
}

// FromSession captures the active steps of s.
func FromSession(s *pipeline.Session, source string) (*Recipe, error) {
	ops, err := s.Export()
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []history.Descriptor{}
	}
	return &Recipe{Version: FormatVersion, Source: source, Session: s.ID(), Operations: ops}, nil
}

// Encode renders r in the given format.
func Encode(r *Recipe, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return utils.PrettyJSON(r)
	case YAML:
		b, err := yaml.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal yaml: %w", err)
		}
		return b, nil
	case TOON:
		out, err := gotoon.Encode(r)
		if err != nil {
			return nil, fmt.Errorf("encode toon: %w", err)
		}
		return []byte(out), nil
	}
	return nil, fmt.Errorf("unknown recipe format %q", f)
}

// Decode parses and validates a JSON or YAML recipe.
func Decode(data []byte, f Format) (*Recipe, error) {
	var r Recipe
	switch f {
	case JSON:
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse json recipe: %w", err)
		}
	case YAML:
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse yaml recipe: %w", err)
		}
	case TOON:
		return nil, fmt.Errorf("%w: %s", ErrDecodeUnsupported, f)
	default:
		return nil, fmt.Errorf("unknown recipe format %q", f)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the version and normalises every fix kind.
func (r *Recipe) Validate() error {
	if r.Version != FormatVersion {
		return fmt.Errorf("unsupported recipe version %d", r.Version)
	}
	for i := range r.Operations {
		op := &r.Operations[i]
		k, err := fix.ParseKind(string(op.Fix))
		if err != nil {
			return fmt.Errorf("operation %d: %w", i+1, err)
		}
		op.Fix = k
		if op.Column == "" && !k.RowLevel() {
			return fmt.Errorf("operation %d: %w", i+1, &fix.MissingParamError{Kind: k, Param: "column"})
		}
	}
	return nil
}

// Groups splits the operations into steps: consecutive operations sharing
// a step number form one group.
func (r *Recipe) Groups() [][]history.Descriptor {
	var out [][]history.Descriptor
	for i, op := range r.Operations {
		if i > 0 && op.Step == r.Operations[i-1].Step {
			out[len(out)-1] = append(out[len(out)-1], op)
			continue
		}
		out = append(out, []history.Descriptor{op})
	}
	return out
}

// Replay applies r to the session's current snapshot, one step per group;
// multi-operation groups are applied as a single composite step. If a step
// fails the steps already replayed are undone; they stay on the redo tail.
func Replay(s *pipeline.Session, r *Recipe) ([]history.Step, error) {
	var steps []history.Step
	for _, g := range r.Groups() {
		var req pipeline.Request
		if len(g) == 1 {
			sp := g[0].Spec()
			req = pipeline.Explicit(sp.Column, sp.Kind, sp.Params)
		} else {
			specs := make([]fix.Spec, len(g))
			for i, d := range g {
				specs[i] = d.Spec()
			}
			req = pipeline.Batch(specs)
		}
		st, err := s.ApplyFix(req)
		if err != nil {
			errs := []error{fmt.Errorf("replay step %d: %w", g[0].Step, err)}
			for range steps {
				if _, uerr := s.Undo(); uerr != nil {
					errs = append(errs, fmt.Errorf("roll back: %w", uerr))
					break
				}
			}
			return nil, errors.Join(errs...)
		}
		steps = append(steps, st)
	}
	return steps, nil
}
