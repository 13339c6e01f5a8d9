package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tidyloom-cli/internal/detect"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tidyloom-cli/internal/profile"
	"github.com/KaramelBytes/tidyloom-cli/internal/rank"
	"github.com/KaramelBytes/tidyloom-cli/internal/report"
	"github.com/KaramelBytes/tidyloom-cli/internal/utils"
)

var (
	profOut     string
	profFormat  string
	profPreview int
	profData    datasetFlags
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile a dataset and list anomalies with ranked recommendations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd, args[0], &profData)
		if err != nil {
			return err
		}
		defer ws.close()
		s := ws.session

		prof, err := s.Profile()
		if err != nil {
			return err
		}
		anoms, err := s.Anomalies()
		if err != nil {
			return err
		}
		recs, err := s.Recommendations()
		if err != nil {
			return err
		}
		sum, err := s.Summary()
		if err != nil {
			return err
		}

		var out []byte
		switch strings.ToLower(profFormat) {
		case "", "md", "markdown":
			md := report.Markdown(report.Input{
				Source:          ws.source.Source,
				RowsRead:        ws.source.RowsRead,
				Profile:         prof,
				Anomalies:       anoms,
				Recommendations: recs,
				Summary:         &sum,
				Warnings:        ws.warnings(),
			})
			if profPreview > 0 {
				snap, _ := s.Current()
				md += "\n[PREVIEW]\n" + report.Preview(snap, profPreview)
			}
			out = []byte(md)
		case "json":
			out, err = utils.PrettyJSON(profileDoc{
				Source:          ws.source.Source,
				Profile:         prof,
				Anomalies:       anoms,
				Recommendations: recs,
				Summary:         sum,
				Warnings:        ws.warnings(),
			})
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported --format: %s (use md|json)", profFormat)
		}

		if profOut == "" {
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		}
		if err := utils.SafeWriteFile(profOut, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile to %s (%d anomalies, %d recommendations)\n", profOut, len(anoms), len(recs))
		return nil
	},
}

// profileDoc is the JSON shape of `profile --format json`.
type profileDoc struct {
	Source          string                `json:"source"`
	Profile         *profile.Profile      `json:"profile"`
	Anomalies       []detect.Anomaly      `json:"anomalies"`
	Recommendations []rank.Recommendation `json:"recommendations"`
	Summary         pipeline.Summary      `json:"summary"`
	Warnings        []string              `json:"warnings,omitempty"`
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVarP(&profOut, "output", "o", "", "write the report to a file instead of stdout")
	profileCmd.Flags().StringVar(&profFormat, "format", "md", "report format: md|json")
	profileCmd.Flags().IntVar(&profPreview, "preview", 0, "append the first N rows as a Markdown table")
	profData.register(profileCmd.Flags())
}
