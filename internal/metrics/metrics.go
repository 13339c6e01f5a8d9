// Package metrics is the minimal instrumentation surface the cleaning
// pipeline depends on. Concrete backends live in subpackages.
package metrics

import "time"

// Metric names emitted by the pipeline.
const (
	SessionLoads   = "tidy_session_loads_total"
	FixesApplied   = "tidy_fixes_applied_total"
	FixesFailed    = "tidy_fixes_failed_total"
	HistoryMoves   = "tidy_history_moves_total"
	AnomaliesFound = "tidy_anomalies_total"
	RowsRemoved    = "tidy_rows_removed_total"
	CellsChanged   = "tidy_cells_changed_total"
	FixDuration    = "tidy_fix_duration_seconds"
	DatasetRows    = "tidy_dataset_rows"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives counters and histogram observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

// Since observes the seconds elapsed from start.
func Since(b Backend, name string, start time.Time, labels Labels) {
	b.ObserveHistogram(name, time.Since(start).Seconds(), labels)
}
