package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
	"github.com/KaramelBytes/tidyloom-cli/internal/ingest"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
	"github.com/KaramelBytes/tidyloom-cli/internal/report"
	"github.com/KaramelBytes/tidyloom-cli/internal/utils"
)

var shellData datasetFlags

var shellCmd = &cobra.Command{
	Use:   "shell <file>",
	Short: "Open an interactive cleaning session on a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd, args[0], &shellData)
		if err != nil {
			return err
		}
		defer ws.close()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		sh := &shell{ctx: ctx, ws: ws, out: cmd.OutOrStdout()}
		fmt.Fprintf(sh.out, "✓ Loaded %s (%d rows, %d columns). Type 'help' for commands.\n",
			ws.source.Source, ws.source.Snapshot.NumRows(), ws.source.Snapshot.NumCols())
		return sh.run(cmd.InOrStdin())
	},
}

const shellHelp = `Commands:
  profile                      column profiles
  anomalies                    detected anomalies
  recs                         ranked recommendations
  fix <id>                     apply one recommendation
  fix-all                      apply every outstanding recommendation as one step
  apply <column> <kind> [k=v]  apply an explicit fix (use '*' as column for dedupe,
                               quote names with spaces: apply "unit price" ...)
  undo | redo                  move through the processing log
  history | steps              show the processing log / step count
  summary                      headline numbers
  preview [n]                  first n rows (default 10)
  export [path]                write the recipe (stdout if no path)
  save <path>                  write the current data (.csv, or .db/.sqlite)
  quit                         leave the shell
`

type shell struct {
	ctx context.Context
	ws  *workspace
	out io.Writer
}

// run reads commands until quit or EOF. Command errors are printed and the
// session continues.
func (sh *shell) run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(sh.out, "tidyloom[v%d]> ", sh.version())
		if !sc.Scan() {
			fmt.Fprintln(sh.out)
			return sc.Err()
		}
		quit, err := sh.exec(sc.Text())
		if err != nil {
			fmt.Fprintln(sh.out, "✗ Error:", err)
		}
		if quit {
			return nil
		}
	}
}

func (sh *shell) version() int {
	snap, err := sh.ws.session.Current()
	if err != nil {
		return 0
	}
	return snap.Version()
}

func (sh *shell) exec(line string) (bool, error) {
	fields, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(fields) == 0 {
		return false, nil
	}
	s := sh.ws.session
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
	case "profile":
		p, err := s.Profile()
		if err != nil {
			return false, err
		}
		fmt.Fprint(sh.out, report.Dataset(sh.ws.source.Source, p, sh.ws.source.RowsRead)+"\n"+report.Schema(p))
	case "anomalies":
		a, err := s.Anomalies()
		if err != nil {
			return false, err
		}
		fmt.Fprint(sh.out, report.Anomalies(a))
	case "recs", "recommendations":
		r, err := s.Recommendations()
		if err != nil {
			return false, err
		}
		fmt.Fprint(sh.out, report.Recommendations(r))
	case "fix":
		if len(args) != 1 {
			return false, errors.New("usage: fix <recommendation-id>")
		}
		return false, sh.apply(pipeline.ByRecommendation(args[0]))
	case "fix-all":
		err := sh.apply(pipeline.FixAll())
		if errors.Is(err, pipeline.ErrNothingToFix) {
			fmt.Fprintln(sh.out, "✓ Nothing left to fix")
			return false, nil
		}
		return false, err
	case "apply":
		if len(args) < 2 {
			return false, errors.New("usage: apply <column> <kind> [key=value ...]")
		}
		kind, err := fix.ParseKind(args[1])
		if err != nil {
			return false, err
		}
		params, err := fix.ParseParams(strings.Join(args[2:], ";"))
		if err != nil {
			return false, err
		}
		column := args[0]
		if column == "*" {
			column = ""
		}
		return false, sh.apply(pipeline.Explicit(column, kind, params))
	case "undo", "redo":
		move := s.Undo
		if cmd == "redo" {
			move = s.Redo
		}
		snap, err := move()
		if err != nil {
			return false, err
		}
		fmt.Fprintf(sh.out, "✓ %s: now at v%d (%d rows, %d steps applied)\n", cmd, snap.Version(), snap.NumRows(), s.StepCount())
	case "history", "log":
		steps := s.Log()
		if len(steps) == 0 {
			fmt.Fprintln(sh.out, "- no steps applied")
			return false, nil
		}
		fmt.Fprint(sh.out, report.History(steps))
	case "steps":
		fmt.Fprintf(sh.out, "%d steps applied (undo: %t, redo: %t)\n", s.StepCount(), s.CanUndo(), s.CanRedo())
	case "summary":
		sum, err := s.Summary()
		if err != nil {
			return false, err
		}
		fmt.Fprint(sh.out, report.Summary(sum))
	case "preview":
		n := 10
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return false, fmt.Errorf("preview: invalid row count %q", args[0])
			}
			n = v
		}
		snap, err := s.Current()
		if err != nil {
			return false, err
		}
		fmt.Fprint(sh.out, report.Preview(snap, n))
	case "export":
		return false, sh.export(args)
	case "save":
		if len(args) != 1 {
			return false, errors.New("usage: save <path>")
		}
		return false, sh.save(args[0])
	default:
		return false, fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
	return false, nil
}

// splitArgs splits a shell line on whitespace. Single or double quotes group
// words so column names containing spaces can be addressed.
func splitArgs(line string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inArg = r, true
		case unicode.IsSpace(r):
			if inArg {
				out = append(out, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inArg {
		out = append(out, cur.String())
	}
	return out, nil
}

func (sh *shell) apply(req pipeline.Request) error {
	st, err := sh.ws.session.ApplyFix(req)
	if err != nil {
		return err
	}
	printStep(sh.out, st)
	return nil
}

func (sh *shell) export(args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	f, err := recipeFormat("", path, sh.ws.cfg.ExportFormat)
	if err != nil {
		return err
	}
	data, err := encodeRecipe(sh.ws.session, sh.ws.source.Source, f)
	if err != nil {
		return err
	}
	if path == "" {
		_, err := sh.out.Write(data)
		return err
	}
	if err := utils.SafeWriteFile(path, data); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "✓ Wrote %s recipe (%d steps) to %s\n", f, sh.ws.session.StepCount(), path)
	return nil
}

func (sh *shell) save(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		snap, err := sh.ws.session.Current()
		if err != nil {
			return err
		}
		if err := ingest.WriteSQLite(sh.ctx, path, "cleaned", snap, sh.ws.session.Log()); err != nil {
			return err
		}
	default:
		if err := saveCSV(sh.ws.session, path); err != nil {
			return err
		}
	}
	fmt.Fprintf(sh.out, "✓ Saved v%d to %s\n", sh.version(), path)
	return nil
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellData.register(shellCmd.Flags())
}
