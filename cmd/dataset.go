package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/tidyloom-cli/internal/config"
	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
	"github.com/KaramelBytes/tidyloom-cli/internal/ingest"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
	"github.com/KaramelBytes/tidyloom-cli/internal/rank"
)

// datasetFlags are the ingestion and detection flags shared by every
// command that opens a dataset.
type datasetFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	encoding   string
	sheetName  string
	sheetIndex int
	table      string
	idColumn   string
	maxRows    int
	iqr        float64
}

func (d *datasetFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&d.delimiter, "delimiter", "", "CSV delimiter: ','|';'|'tab'|'|' (sniffed if omitted)")
	fs.StringVar(&d.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	fs.StringVar(&d.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	fs.StringVar(&d.encoding, "encoding", "", "source charset, e.g. utf-8, latin1, cp1252")
	fs.StringVar(&d.sheetName, "sheet-name", "", "XLSX: sheet name to load (default: first sheet)")
	fs.IntVar(&d.sheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (ignored if --sheet-name is set)")
	fs.StringVar(&d.table, "table", "", "SQLite table name, or CSS selector of an HTML table")
	fs.StringVar(&d.idColumn, "id-column", "", "column ignored when comparing rows for duplicates")
	fs.IntVar(&d.maxRows, "max-rows", 0, "read at most N rows (0 = all)")
	fs.Float64Var(&d.iqr, "iqr", 0, "outlier fence multiplier k in [Q1-k*IQR, Q3+k*IQR]")
}

// overlay copies every flag the user actually set onto a copy of c.
func (d *datasetFlags) overlay(fs *pflag.FlagSet, c *cfgpkg.Global) (*cfgpkg.Global, error) {
	out := *c
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "decimal":
			out.DecimalSeparator, err = parseDecimal(d.decimal)
		case "thousands":
			out.ThousandsSeparator, err = parseThousands(d.thousands)
		case "encoding":
			out.Encoding = d.encoding
		case "id-column":
			out.IDColumn = d.idColumn
		case "max-rows":
			out.MaxRows = d.maxRows
		case "iqr":
			out.IQRMultiplier = d.iqr
		}
	})
	if err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *datasetFlags) ingestOptions(c *cfgpkg.Global) (ingest.Options, error) {
	delim, err := parseDelimiter(d.delimiter)
	if err != nil {
		return ingest.Options{}, err
	}
	return ingest.Options{
		Delimiter:    delim,
		NumberFormat: numberFormat(c),
		Encoding:     c.Encoding,
		SheetName:    d.sheetName,
		SheetIndex:   d.sheetIndex,
		Table:        d.table,
		MaxRows:      c.MaxRows,
	}, nil
}

func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "tab", "\\t", "\t":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %s (use ','|';'|'tab'|'|')", s)
}

func parseDecimal(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ",", "comma":
		return ",", nil
	case ".", "dot":
		return ".", nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", s)
}

func parseThousands(s string) (string, error) {
	switch strings.ToLower(s) {
	case ",":
		return ",", nil
	case ".":
		return ".", nil
	case "space", " ":
		return " ", nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", s)
}

func numberFormat(c *cfgpkg.Global) dataset.NumberFormat {
	return dataset.NumberFormat{
		Decimal:   cfgpkg.Rune(c.DecimalSeparator),
		Thousands: cfgpkg.Rune(c.ThousandsSeparator),
	}
}

// sessionOptions maps configuration onto the pipeline's knobs.
func sessionOptions(c *cfgpkg.Global) pipeline.Options {
	impute := fix.ImputeMean
	if c.NumericImpute == "median" {
		impute = fix.ImputeMedian
	}
	return pipeline.Options{
		Logger: zap.L(),
		Profile: profile.Options{
			IQRMultiplier: c.IQRMultiplier,
			NumberFormat:  numberFormat(c),
		},
		Detect: detect.Options{IDColumn: c.IDColumn},
		Rank: rank.Options{
			Weights: rank.Weights{
				detect.MissingValues: c.WeightMissing,
				detect.DuplicateRows: c.WeightDuplicates,
				detect.Outlier:       c.WeightOutliers,
				detect.TypeMismatch:  c.WeightTypeMismatch,
			},
			NumericImpute: impute,
			IDColumn:      c.IDColumn,
		},
	}
}

// workspace is an opened dataset with its session.
type workspace struct {
	cfg     *cfgpkg.Global
	source  *ingest.Result
	session *pipeline.Session
	close   func()
}

// warnings lists the notes a report should carry about how the data was read.
func (w *workspace) warnings() []string {
	if !w.source.Truncated {
		return nil
	}
	return []string{fmt.Sprintf("processed only %d/%d rows due to max_rows", w.source.Snapshot.NumRows(), w.source.RowsRead)}
}

// openWorkspace reads path with the command's flags and loads it into a new session.
func openWorkspace(cmd *cobra.Command, path string, d *datasetFlags) (*workspace, error) {
	base, err := ensureConfig()
	if err != nil {
		return nil, err
	}
	c, err := d.overlay(cmd.Flags(), base)
	if err != nil {
		return nil, err
	}
	opt, err := d.ingestOptions(c)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := ingest.Load(ctx, path, opt)
	if err != nil {
		return nil, err
	}
	zap.L().Named("ingest").Info("dataset read",
		zap.String("path", path),
		zap.String("format", res.Format),
		zap.Int("rows", res.Snapshot.NumRows()),
		zap.Int("columns", res.Snapshot.NumCols()))

	backend, closeMetrics := openMetrics(ctx, c)
	so := sessionOptions(c)
	so.Metrics = backend
	sess := pipeline.New(so)
	if err := sess.Load(res.Snapshot); err != nil {
		closeMetrics()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &workspace{cfg: c, source: res, session: sess, close: closeMetrics}, nil
}
