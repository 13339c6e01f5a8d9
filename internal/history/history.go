// Package history keeps the processing log of a session and its undo cursor.
package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrNoOutput      = errors.New("step has no output snapshot")
)

// Step is one recorded transformation. It is immutable once recorded.
type Step struct {
	ID            string        `json:"id" yaml:"id"`
	Seq           int           `json:"seq" yaml:"seq"`
	Description   string        `json:"description" yaml:"description"`
	InputVersion  int           `json:"input_version" yaml:"input_version"`
	OutputVersion int           `json:"output_version" yaml:"output_version"`
	Fixes         []fix.Applied `json:"fixes" yaml:"fixes"`
	Composite     bool          `json:"composite,omitempty" yaml:"composite,omitempty"`
	Timestamp     time.Time     `json:"timestamp" yaml:"timestamp"`

	output *dataset.Snapshot
}

// NewStep describes the transition from in to out.
func NewStep(in, out *dataset.Snapshot, fixes []fix.Applied, composite bool) Step {
	return Step{
		ID:            uuid.New().String(),
		Description:   describe(fixes, composite),
		InputVersion:  in.Version(),
		OutputVersion: out.Version(),
		Fixes:         append([]fix.Applied(nil), fixes...),
		Composite:     composite,
		Timestamp:     time.Now().UTC(),
		output:        out,
	}
}

// Output is the snapshot the step produced.
func (s Step) Output() *dataset.Snapshot { return s.output }

func describe(fixes []fix.Applied, composite bool) string {
	parts := make([]string, 0, len(fixes))
	for _, a := range fixes {
		if a.Skipped {
			continue
		}
		parts = append(parts, a.Spec().String())
	}
	if composite {
		return fmt.Sprintf("fix all (%d fixes): %s", len(parts), strings.Join(parts, ", "))
	}
	return strings.Join(parts, ", ")
}

// Manager is a linear undo stack over the processing log. Cursor c counts
// the active steps: log[0:c] is applied, log[c:] can be redone.
type Manager struct {
	origin *dataset.Snapshot
	log    []Step
	cursor int
}

// New starts an empty log over origin.
func New(origin *dataset.Snapshot) *Manager { return &Manager{origin: origin} }

// Apply discards any redo tail, appends step and makes it current.
func (m *Manager) Apply(step Step) (Step, error) {
	if step.output == nil {
		return Step{}, ErrNoOutput
	}
	m.log = append(m.log[:m.cursor:m.cursor], step)
	m.cursor = len(m.log)
	m.log[m.cursor-1].Seq = m.cursor
	return m.log[m.cursor-1], nil
}

// Undo steps back once and returns the now-current snapshot.
func (m *Manager) Undo() (*dataset.Snapshot, error) {
	if m.cursor == 0 {
		return nil, ErrNothingToUndo
	}
	m.cursor--
	return m.Current(), nil
}

// Redo re-activates the next step and returns its snapshot.
func (m *Manager) Redo() (*dataset.Snapshot, error) {
	if m.cursor == len(m.log) {
		return nil, ErrNothingToRedo
	}
	m.cursor++
	return m.Current(), nil
}

// Current returns the snapshot at the cursor.
func (m *Manager) Current() *dataset.Snapshot {
	if m.cursor == 0 {
		return m.origin
	}
	return m.log[m.cursor-1].output
}

func (m *Manager) Origin() *dataset.Snapshot { return m.origin }
func (m *Manager) Cursor() int                { return m.cursor }
func (m *Manager) Len() int                   { return len(m.log) }
func (m *Manager) CanUndo() bool              { return m.cursor > 0 }
func (m *Manager) CanRedo() bool              { return m.cursor < len(m.log) }

// Active returns a copy of the applied steps, log[0:cursor].
func (m *Manager) Active() []Step {
	return append([]Step(nil), m.log[:m.cursor]...)
}

// Descriptor is one replayable operation in application order.
type Descriptor struct {
	Step   int        `json:"step" yaml:"step"`
	StepID string     `json:"step_id" yaml:"step_id"`
	Column string     `json:"column" yaml:"column"`
	Fix    fix.Kind   `json:"fix" yaml:"fix"`
	Params fix.Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Spec returns the fix request the descriptor replays.
func (d Descriptor) Spec() fix.Spec {
	col := d.Column
	if d.Fix.RowLevel() {
		col = ""
	}
	return fix.Spec{Column: col, Kind: d.Fix, Params: d.Params}
}

// Export flattens the active steps into descriptors. Composite steps
// contribute one descriptor per executed sub-fix, all sharing the step number.
func (m *Manager) Export() []Descriptor {
	var out []Descriptor
	for _, s := range m.log[:m.cursor] {
		for _, a := range s.Fixes {
			if a.Skipped {
				continue
			}
			out = append(out, Descriptor{
				Step:   s.Seq,
				StepID: s.ID,
				Column: a.Column,
				Fix:    a.Kind,
				Params: append(fix.Params(nil), a.Params...),
			})
		}
	}
	return out
}
