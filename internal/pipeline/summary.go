package pipeline

import (
	"time"

	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
)

// Manual and automated effort per column used for the time-saved estimate.
const (
	manualPerColumn    = 30 * time.Minute
	automatedPerColumn = 3 * time.Minute
)

// Summary is the headline view of the current snapshot.
type Summary struct {
	Version             int           `json:"version"`
	Rows                int           `json:"rows"`
	Columns             int           `json:"columns"`
	Anomalies           int           `json:"anomalies"`
	MissingCells        int           `json:"missing_cells"`
	DuplicateRows       int           `json:"duplicate_rows"`
	OutlierColumns      int           `json:"outlier_columns"`
	OutlierValues       int           `json:"outlier_values"`
	TypeMismatchColumns int           `json:"type_mismatch_columns"`
	Steps               int           `json:"steps"`
	TimeSaved           time.Duration `json:"time_saved"`
}

// Summary aggregates the anomalies of every column of the current snapshot.
func (s *Session) Summary() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.analyze()
	if err != nil {
		return Summary{}, err
	}
	snap := s.hist.Current()
	out := Summary{
		Version:   snap.Version(),
		Rows:      snap.NumRows(),
		Columns:   snap.NumCols(),
		Anomalies: len(a.anomalies),
		Steps:     s.hist.Cursor(),
		TimeSaved: time.Duration(snap.NumCols()) * (manualPerColumn - automatedPerColumn),
	}
	for _, an := range a.anomalies {
		switch an.Kind {
		case detect.MissingValues:
			out.MissingCells += an.Affected
		case detect.DuplicateRows:
			out.DuplicateRows += an.Affected
		case detect.Outlier:
			out.OutlierColumns++
			out.OutlierValues += an.Affected
		case detect.TypeMismatch:
			out.TypeMismatchColumns++
		}
	}
	return out, nil
}
