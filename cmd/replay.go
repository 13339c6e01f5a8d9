package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tidyloom-cli/internal/recipe"
	"github.com/KaramelBytes/tidyloom-cli/internal/report"
)

var (
	replayFormat string
	replayData   datasetFlags
	replaySinks  sinkFlags
)

var replayCmd = &cobra.Command{
	Use:   "replay <recipe> <file>",
	Short: "Re-apply an exported recipe to a dataset",
	Long: `Replay reads a JSON or YAML recipe written by 'clean --recipe' or the
shell's export command and applies its steps, in order, to a fresh load of
<file>. Steps that were applied together are replayed as one step. If any
step fails nothing is written.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read recipe: %w", err)
		}
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		f, err := recipeFormat(replayFormat, args[0], c.ExportFormat)
		if err != nil {
			return err
		}
		r, err := recipe.Decode(data, f)
		if err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}

		ws, err := openWorkspace(cmd, args[1], &replayData)
		if err != nil {
			return err
		}
		defer ws.close()
		out := cmd.OutOrStdout()

		if r.Source != "" && r.Source != ws.source.Source {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Recipe was recorded on %s, replaying on %s\n", r.Source, ws.source.Source)
		}
		steps, err := recipe.Replay(ws.session, r)
		if err != nil {
			return err
		}
		for _, st := range steps {
			printStep(out, st)
		}
		sum, err := ws.session.Summary()
		if err != nil {
			return err
		}
		fmt.Fprint(out, "\n"+report.Summary(sum))

		if replaySinks.empty() {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠ No --output or --sqlite given; nothing was written")
			return nil
		}
		return replaySinks.write(cmd.Context(), out, ws)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayFormat, "format", "", "recipe format: json|yaml (default from extension, then config)")
	replayData.register(replayCmd.Flags())
	replaySinks.register(replayCmd.Flags(), false)
}
