// Package pipeline is the session façade over profiling, detection,
// ranking, fixing and history. A Session owns its state exclusively and
// every method is a critical section.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
	"github.com/KaramelBytes/tidyloom-cli/internal/history"
	"github.com/KaramelBytes/tidyloom-cli/internal/metrics"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
	"github.com/KaramelBytes/tidyloom-cli/internal/rank"
)

var (
	// ErrNoDataset is returned by every operation before Load.
	ErrNoDataset = errors.New("no dataset loaded")
	// ErrNothingToFix is returned by fix-all when no recommendation is outstanding.
	ErrNothingToFix = errors.New("no outstanding recommendations")
)

// UnknownRecommendationError reports a recommendation id that is not
// outstanding for the current snapshot.
type UnknownRecommendationError struct{ ID string }

func (e *UnknownRecommendationError) Error() string {
	return fmt.Sprintf("unknown recommendation %q", e.ID)
}

// Options configures a session.
type Options struct {
	Logger  *zap.Logger
	Metrics metrics.Backend
	Profile profile.Options
	Detect  detect.Options
	Rank    rank.Options
}

// Session holds one dataset's working state.
type Session struct {
	mu      sync.Mutex
	id      string
	opt     Options
	log     *zap.Logger
	metrics metrics.Backend
	hist    *history.Manager
	cache   *analysis
}

// analysis is everything derived from the snapshot at the cursor.
type analysis struct {
	profile   *profile.Profile
	anomalies []detect.Anomaly
	recs      []rank.Recommendation
}

// New creates an empty session.
func New(opt Options) *Session {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Metrics == nil {
		opt.Metrics = metrics.Nop{}
	}
	if opt.Profile.IQRMultiplier <= 0 {
		opt.Profile.IQRMultiplier = 1.5
	}
	if opt.Rank.IDColumn == "" {
		opt.Rank.IDColumn = opt.Detect.IDColumn
	}
	return &Session{opt: opt, log: opt.Logger.Named("pipeline"), metrics: opt.Metrics}
}

// ID identifies the current load; it changes on every Load.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Load replaces all session state with a fresh log over snap.
func (s *Session) Load(snap *dataset.Snapshot) error {
	if snap.IsEmpty() {
		return fmt.Errorf("load: %w", dataset.ErrEmptyDataset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.New().String()
	s.hist = history.New(snap)
	s.cache = nil
	s.log.Info("dataset loaded",
		zap.String("session", s.id),
		zap.Int("rows", snap.NumRows()),
		zap.Int("columns", snap.NumCols()))
	s.metrics.IncCounter(metrics.SessionLoads, 1, nil)
	s.metrics.ObserveHistogram(metrics.DatasetRows, float64(snap.NumRows()), nil)
	return nil
}

// Current returns the snapshot at the undo cursor.
func (s *Session) Current() (*dataset.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist == nil {
		return nil, ErrNoDataset
	}
	return s.hist.Current(), nil
}

// Profile returns the profile of the current snapshot.
func (s *Session) Profile() (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.analyze()
	if err != nil {
		return nil, err
	}
	return a.profile, nil
}

// Anomalies returns the anomalies of the current snapshot.
func (s *Session) Anomalies() ([]detect.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.analyze()
	if err != nil {
		return nil, err
	}
	return append([]detect.Anomaly(nil), a.anomalies...), nil
}

// Recommendations returns the ranked remediations for the current snapshot.
func (s *Session) Recommendations() ([]rank.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.analyze()
	if err != nil {
		return nil, err
	}
	return append([]rank.Recommendation(nil), a.recs...), nil
}

// analyze computes, or returns the cached, analysis of the current
// snapshot. Callers hold s.mu.
func (s *Session) analyze() (*analysis, error) {
	if s.hist == nil {
		return nil, ErrNoDataset
	}
	if s.cache != nil {
		return s.cache, nil
	}
	snap := s.hist.Current()
	prof, err := profile.Run(snap, s.opt.Profile)
	if err != nil {
		return nil, err
	}
	anoms := detect.Detect(snap, prof, s.opt.Detect)
	s.cache = &analysis{profile: prof, anomalies: anoms, recs: rank.Rank(anoms, s.opt.Rank)}
	for _, an := range anoms {
		s.metrics.IncCounter(metrics.AnomaliesFound, 1, metrics.Labels{"kind": string(an.Kind)})
	}
	s.log.Debug("snapshot analysed",
		zap.Int("version", snap.Version()),
		zap.Int("anomalies", len(anoms)))
	return s.cache, nil
}

func (s *Session) fixOptions() fix.Options {
	return fix.Options{
		NumberFormat:  s.opt.Profile.NumberFormat,
		IQRMultiplier: s.opt.Profile.IQRMultiplier,
		IDColumn:      s.opt.Detect.IDColumn,
	}
}

// ApplyFix runs the requested fix, records it as one step and moves the
// cursor to it. On error the snapshot and log are unchanged.
func (s *Session) ApplyFix(req Request) (history.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist == nil {
		return history.Step{}, ErrNoDataset
	}
	start := time.Now()
	cur := s.hist.Current()
	specs, composite, err := s.resolve(req)
	if err != nil {
		return history.Step{}, err
	}
	label := metrics.Labels{"fix": req.label(specs)}

	var (
		out     *dataset.Snapshot
		applied []fix.Applied
	)
	if composite {
		out, applied, err = fix.ApplyAll(cur, specs, s.fixOptions())
	} else {
		var a fix.Applied
		out, a, err = fix.Apply(cur, specs[0], s.fixOptions())
		applied = []fix.Applied{a}
	}
	if err != nil {
		s.metrics.IncCounter(metrics.FixesFailed, 1, label)
		s.log.Warn("fix rejected", zap.String("request", req.String()), zap.Error(err))
		return history.Step{}, err
	}
	step, err := s.hist.Apply(history.NewStep(cur, out, applied, composite))
	if err != nil {
		return history.Step{}, err
	}
	s.cache = nil

	cells := 0
	for _, a := range applied {
		cells += a.CellsChanged
	}
	s.metrics.IncCounter(metrics.FixesApplied, float64(len(applied)), label)
	s.metrics.IncCounter(metrics.CellsChanged, float64(cells), label)
	s.metrics.IncCounter(metrics.RowsRemoved, float64(cur.NumRows()-out.NumRows()), label)
	metrics.Since(s.metrics, metrics.FixDuration, start, label)
	s.log.Info("fix applied",
		zap.String("session", s.id),
		zap.Int("step", step.Seq),
		zap.String("description", step.Description),
		zap.Int("version", step.OutputVersion),
		zap.Int("rows", out.NumRows()))
	return step, nil
}

func (s *Session) resolve(req Request) ([]fix.Spec, bool, error) {
	switch req.mode {
	case modeExplicit:
		return []fix.Spec{req.spec}, false, nil
	case modeBatch:
		if len(req.batch) == 0 {
			return nil, false, ErrNothingToFix
		}
		return req.batch, true, nil
	}
	a, err := s.analyze()
	if err != nil {
		return nil, false, err
	}
	if req.mode == modeRecommendation {
		r, ok := rank.Find(a.recs, req.id)
		if !ok {
			return nil, false, &UnknownRecommendationError{ID: req.id}
		}
		return []fix.Spec{r.Spec()}, false, nil
	}
	if len(a.recs) == 0 {
		return nil, false, ErrNothingToFix
	}
	specs := make([]fix.Spec, len(a.recs))
	for i, r := range a.recs {
		specs[i] = r.Spec()
	}
	return specs, true, nil
}

// Undo steps the cursor back and returns the now-current snapshot.
func (s *Session) Undo() (*dataset.Snapshot, error) {
	return s.move("undo", func() (*dataset.Snapshot, error) { return s.hist.Undo() })
}

// Redo steps the cursor forward and returns the now-current snapshot.
func (s *Session) Redo() (*dataset.Snapshot, error) {
	return s.move("redo", func() (*dataset.Snapshot, error) { return s.hist.Redo() })
}

func (s *Session) move(dir string, fn func() (*dataset.Snapshot, error)) (*dataset.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist == nil {
		return nil, ErrNoDataset
	}
	snap, err := fn()
	if err != nil {
		return nil, err
	}
	s.cache = nil
	s.metrics.IncCounter(metrics.HistoryMoves, 1, metrics.Labels{"direction": dir})
	s.log.Info(dir,
		zap.String("session", s.id),
		zap.Int("cursor", s.hist.Cursor()),
		zap.Int("version", snap.Version()))
	return snap, nil
}

// Export returns the replayable descriptors of the active steps.
func (s *Session) Export() ([]history.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist == nil {
		return nil, ErrNoDataset
	}
	return s.hist.Export(), nil
}

// Log returns the active steps in application order.
func (s *Session) Log() []history.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist == nil {
		return nil
	}
	return s.hist.Active()
}

// StepCount is the number of active processing steps.
func (s *Session) StepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist == nil {
		return 0
	}
	return s.hist.Cursor()
}

// CanUndo and CanRedo report whether the cursor can move.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist != nil && s.hist.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hist != nil && s.hist.CanRedo()
}
