package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
	"github.com/KaramelBytes/tidyloom-cli/internal/history"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tidyloom-cli/internal/report"
)

var (
	cleanFixAll bool
	cleanFixes  []string
	cleanApply  []string
	cleanData   datasetFlags
	cleanSinks  sinkFlags
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Apply recommended or explicit fixes and write the cleaned dataset",
	Long: `Apply fixes in order: every --fix recommendation id, then every --apply
column:kind[:key=value;key=value] spec, then --fix-all for whatever is still
outstanding. Each one becomes a step of the processing log.

Examples:
  tidyloom clean sales.csv --fix-all -o sales.clean.csv --recipe sales.yaml
  tidyloom clean sales.csv --apply amount:impute-median --apply region:impute-constant:value=unknown
  tidyloom clean sales.csv --fix duplicate-rows:* --sqlite sales.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cleanFixAll && len(cleanFixes) == 0 && len(cleanApply) == 0 {
			return errors.New("nothing to do: pass --fix, --apply or --fix-all")
		}
		specs := make([]fix.Spec, 0, len(cleanApply))
		for _, a := range cleanApply {
			sp, err := parseApply(a)
			if err != nil {
				return err
			}
			specs = append(specs, sp)
		}

		ws, err := openWorkspace(cmd, args[0], &cleanData)
		if err != nil {
			return err
		}
		defer ws.close()
		s := ws.session
		out := cmd.OutOrStdout()

		for _, id := range cleanFixes {
			st, err := s.ApplyFix(pipeline.ByRecommendation(id))
			if err != nil {
				return fmt.Errorf("--fix %s: %w", id, err)
			}
			printStep(out, st)
		}
		for _, sp := range specs {
			st, err := s.ApplyFix(pipeline.Explicit(sp.Column, sp.Kind, sp.Params))
			if err != nil {
				return fmt.Errorf("--apply %s: %w", sp, err)
			}
			printStep(out, st)
		}
		if cleanFixAll {
			st, err := s.ApplyFix(pipeline.FixAll())
			switch {
			case errors.Is(err, pipeline.ErrNothingToFix):
				fmt.Fprintln(out, "✓ Nothing left to fix")
			case err != nil:
				return fmt.Errorf("--fix-all: %w", err)
			default:
				printStep(out, st)
			}
		}

		sum, err := s.Summary()
		if err != nil {
			return err
		}
		fmt.Fprint(out, "\n"+report.Summary(sum))

		if cleanSinks.empty() {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠ No --output, --recipe or --sqlite given; nothing was written")
			return nil
		}
		return cleanSinks.write(cmd.Context(), out, ws)
	},
}

// parseApply reads column:kind[:key=value;key=value]. Row-level kinds
// may leave the column empty, as in ":dedupe".
func parseApply(s string) (fix.Spec, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return fix.Spec{}, fmt.Errorf("invalid --apply %q (want column:kind[:key=value;...])", s)
	}
	kind, err := fix.ParseKind(parts[1])
	if err != nil {
		return fix.Spec{}, err
	}
	sp := fix.Spec{Column: strings.TrimSpace(parts[0]), Kind: kind}
	if len(parts) == 3 {
		if sp.Params, err = fix.ParseParams(parts[2]); err != nil {
			return fix.Spec{}, err
		}
	}
	if sp.Column == "" && !kind.RowLevel() {
		return fix.Spec{}, &fix.MissingParamError{Kind: kind, Param: "column"}
	}
	return sp, nil
}

func printStep(w io.Writer, st history.Step) {
	rows := ""
	if n := len(st.Fixes); n > 0 && st.Fixes[0].RowsBefore != st.Fixes[n-1].RowsAfter {
		rows = fmt.Sprintf(", rows %d → %d", st.Fixes[0].RowsBefore, st.Fixes[n-1].RowsAfter)
	}
	fmt.Fprintf(w, "✓ Step %d: %s (v%d → v%d%s)\n", st.Seq, st.Description, st.InputVersion, st.OutputVersion, rows)
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanFixAll, "fix-all", false, "apply every outstanding recommendation as one step")
	cleanCmd.Flags().StringArrayVar(&cleanFixes, "fix", nil, "apply a recommendation by id, e.g. missing-values:age (repeatable)")
	cleanCmd.Flags().StringArrayVar(&cleanApply, "apply", nil, "apply an explicit fix column:kind[:key=value;...] (repeatable)")
	cleanData.register(cleanCmd.Flags())
	cleanSinks.register(cleanCmd.Flags(), true)
}
