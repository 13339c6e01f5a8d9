package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/KaramelBytes/tidyloom-cli/internal/ingest"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tidyloom-cli/internal/recipe"
	"github.com/KaramelBytes/tidyloom-cli/internal/utils"
)

// sinkFlags select where a cleaned session is written.
type sinkFlags struct {
	output      string
	recipe      string
	format      string
	sqlite      string
	sqliteTable string
}

func (k *sinkFlags) register(fs *pflag.FlagSet, withRecipe bool) {
	fs.StringVarP(&k.output, "output", "o", "", "write the cleaned dataset as CSV")
	fs.StringVar(&k.sqlite, "sqlite", "", "write the cleaned dataset and its processing log to a SQLite file")
	fs.StringVar(&k.sqliteTable, "sqlite-table", "cleaned", "table name used with --sqlite")
	if withRecipe {
		fs.StringVar(&k.recipe, "recipe", "", "export the operation log as a replayable recipe")
		fs.StringVar(&k.format, "format", "", "recipe format: json|yaml|toon (default from extension, then config)")
	}
}

func (k *sinkFlags) empty() bool {
	return k.output == "" && k.recipe == "" && k.sqlite == ""
}

// recipeFormat resolves the encoding for path: explicit flag, file
// extension, then the configured default.
func recipeFormat(flag, path, def string) (recipe.Format, error) {
	if flag != "" {
		return recipe.ParseFormat(flag)
	}
	d, err := recipe.ParseFormat(def)
	if err != nil {
		return "", fmt.Errorf("export_format: %w", err)
	}
	return recipe.FormatFromPath(path, d), nil
}

// write sends the session's current snapshot and log to every selected sink.
func (k *sinkFlags) write(ctx context.Context, w io.Writer, ws *workspace) error {
	s := ws.session
	if k.output != "" {
		if err := saveCSV(s, k.output); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Wrote cleaned data to %s\n", k.output)
	}
	if k.recipe != "" {
		f, err := recipeFormat(k.format, k.recipe, ws.cfg.ExportFormat)
		if err != nil {
			return err
		}
		if err := saveRecipe(s, ws.source.Source, k.recipe, f); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Wrote %s recipe (%d steps) to %s\n", f, s.StepCount(), k.recipe)
	}
	if k.sqlite != "" {
		snap, err := s.Current()
		if err != nil {
			return err
		}
		if err := ingest.WriteSQLite(ctx, k.sqlite, k.sqliteTable, snap, s.Log()); err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Wrote table %s and %s%s to %s\n", k.sqliteTable, k.sqliteTable, ingest.LogTableSuffix, k.sqlite)
	}
	return nil
}

func saveCSV(s *pipeline.Session, path string) error {
	snap, err := s.Current()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := ingest.WriteCSV(&buf, snap); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func saveRecipe(s *pipeline.Session, source, path string, f recipe.Format) error {
	data, err := encodeRecipe(s, source, f)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, data)
}

func encodeRecipe(s *pipeline.Session, source string, f recipe.Format) ([]byte, error) {
	r, err := recipe.FromSession(s, source)
	if err != nil {
		return nil, err
	}
	data, err := recipe.Encode(r, f)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	return data, nil
}
