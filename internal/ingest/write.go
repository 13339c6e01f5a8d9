package ingest

import (
	"encoding/csv"
	"io"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
)

// WriteCSV writes snap as comma-separated text with a header row. Null
// cells are written empty.
func WriteCSV(w io.Writer, snap *dataset.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snap.Names()); err != nil {
		return err
	}
	rec := make([]string, snap.NumCols())
	for r := 0; r < snap.NumRows(); r++ {
		for j := range rec {
			rec[j] = snap.Cell(r, j).Text()
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
