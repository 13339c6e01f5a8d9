package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cfgpkg "github.com/KaramelBytes/tidyloom-cli/internal/config"
	"github.com/KaramelBytes/tidyloom-cli/internal/fix"
	"github.com/KaramelBytes/tidyloom-cli/internal/ingest"
	"github.com/KaramelBytes/tidyloom-cli/internal/pipeline"
)

const messyCSV = "id,city,amount\n1,Oslo,10\n2,Oslo,12\n3,Lima,\n4,Lima,11\n5,Oslo,400\n5,Oslo,400\n"

// resetFlags puts every flag back to its default so invocations don't leak
// into each other.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd runs the root command with args and returns its stdout.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg = nil
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func TestCLI_ProfileWritesReport(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	data := writeFixture(t, home, "sales.csv", messyCSV)
	out := filepath.Join(home, "profile.md")

	stdout := runCmd(t, "profile", data, "-o", out, "--preview", "2")
	if !strings.Contains(stdout, "✓ Wrote profile to") {
		t.Fatalf("stdout = %q", stdout)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	md := string(b)
	for _, want := range []string{"[DATASET SUMMARY]", "File: sales.csv", "[SCHEMA]", "- amount: numeric", "missing-values amount: 1/6", "duplicate-rows *", "[RECOMMENDATIONS]", "[PREVIEW]", "… 4 more rows"} {
		if !strings.Contains(md, want) {
			t.Fatalf("report missing %q:\n%s", want, md)
		}
	}
}

func TestCLI_ProfileJSONAndMaxRows(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	data := writeFixture(t, home, "sales.csv", messyCSV)

	stdout := runCmd(t, "profile", data, "--format", "json", "--max-rows", "3")
	for _, want := range []string{`"source": "sales.csv"`, `"rows": 3`, "processed only 3/6 rows due to max_rows"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("json output missing %q:\n%s", want, stdout)
		}
	}
	if _, err := execCmd(t, "profile", data, "--format", "xml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestCLI_CleanThenReplayMatches(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	data := writeFixture(t, home, "sales.csv", messyCSV)
	cleaned := filepath.Join(home, "cleaned.csv")
	recipePath := filepath.Join(home, "ops.json")
	replayed := filepath.Join(home, "replayed.csv")

	stdout := runCmd(t, "clean", data, "--apply", "amount:impute-constant:value=0", "--fix-all", "-o", cleaned, "--recipe", recipePath)
	for _, want := range []string{"✓ Step 1: impute-constant amount", "✓ Step 2:", "[SUMMARY]", "Steps applied: 2", "✓ Wrote json recipe (2 steps)"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("clean output missing %q:\n%s", want, stdout)
		}
	}
	runCmd(t, "replay", recipePath, data, "-o", replayed)

	a, err := os.ReadFile(cleaned)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(replayed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("replay differs from clean:\n%s\nvs\n%s", a, b)
	}
	if strings.Contains(string(a), ",\n") {
		t.Fatalf("cleaned data still has missing cells:\n%s", a)
	}
}

func TestCLI_CleanWritesSQLite(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	data := writeFixture(t, home, "sales.csv", messyCSV)
	db := filepath.Join(home, "out.db")

	runCmd(t, "clean", data, "--fix", "duplicate-rows:*", "--sqlite", db, "--sqlite-table", "sales")

	res, err := ingest.Load(context.Background(), db, ingest.Options{Table: "sales"})
	if err != nil {
		t.Fatalf("load sqlite: %v", err)
	}
	if res.Snapshot.NumRows() != 5 {
		t.Fatalf("rows = %d, want 5 after dedupe", res.Snapshot.NumRows())
	}
	logRes, err := ingest.Load(context.Background(), db, ingest.Options{Table: "sales" + ingest.LogTableSuffix})
	if err != nil {
		t.Fatalf("load log table: %v", err)
	}
	if logRes.Snapshot.NumRows() != 1 {
		t.Fatalf("log rows = %d, want 1", logRes.Snapshot.NumRows())
	}
}

func TestCLI_CleanErrors(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	data := writeFixture(t, home, "sales.csv", messyCSV)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no action", []string{"clean", data}, "nothing to do"},
		{"bad apply", []string{"clean", data, "--apply", "amount"}, "invalid --apply"},
		{"bad kind", []string{"clean", data, "--apply", "amount:explode"}, "unsupported fix kind"},
		{"unknown rec", []string{"clean", data, "--fix", "outlier:city"}, "unknown recommendation"},
		{"unknown column", []string{"clean", data, "--apply", "nope:drop-column"}, "unknown column"},
		{"bad decimal", []string{"clean", data, "--fix-all", "--decimal", "x"}, "unsupported --decimal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execCmd(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if out := runCmd(t, "config", "set", "iqr_multiplier", "3"); !strings.Contains(out, "Saved config") {
		t.Fatalf("set output = %q", out)
	}
	out := runCmd(t, "config", "show")
	if !strings.Contains(out, "iqr_multiplier: 3\n") || !strings.Contains(out, "export_format: yaml\n") {
		t.Fatalf("show output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(home, ".tidyloom", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	if _, err := execCmd(t, "config", "set", "numeric_impute", "mode"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseApply(t *testing.T) {
	sp, err := parseApply("region:impute-constant:value=n/a;note=x")
	if err != nil {
		t.Fatalf("parseApply: %v", err)
	}
	if sp.Column != "region" || sp.Kind != fix.ImputeConstant || len(sp.Params) != 2 {
		t.Fatalf("spec = %+v", sp)
	}
	if v, _ := sp.Params.Get("value"); v != "n/a" {
		t.Fatalf("value = %q", v)
	}
	if sp, err := parseApply(":dedupe"); err != nil || sp.Kind != fix.Dedupe {
		t.Fatalf("row-level parse = %+v, %v", sp, err)
	}
	if _, err := parseApply(":impute-mean"); err == nil {
		t.Fatalf("expected missing column error")
	}
}

func TestDatasetFlagsOverlay(t *testing.T) {
	var d datasetFlags
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	d.register(fs)
	if err := fs.Parse([]string{"--decimal", "comma", "--thousands", "space", "--iqr", "3", "--delimiter", "tab"}); err != nil {
		t.Fatal(err)
	}
	base := &cfgpkg.Global{IQRMultiplier: 1.5, Encoding: "utf-8", DecimalSeparator: "."}
	got, err := d.overlay(fs, base)
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	if got.DecimalSeparator != "," || got.ThousandsSeparator != " " || got.IQRMultiplier != 3 {
		t.Fatalf("overlay = %+v", got)
	}
	if base.DecimalSeparator != "." {
		t.Fatalf("overlay mutated base config")
	}
	opt, err := d.ingestOptions(got)
	if err != nil {
		t.Fatal(err)
	}
	if opt.Delimiter != '\t' || opt.NumberFormat.Decimal != ',' || opt.NumberFormat.Thousands != ' ' {
		t.Fatalf("ingest options = %+v", opt)
	}
}

func TestShellSession(t *testing.T) {
	dir := t.TempDir()
	data := writeFixture(t, dir, "sales.csv", messyCSV)
	res, err := ingest.Load(context.Background(), data, ingest.Options{})
	if err != nil {
		t.Fatal(err)
	}
	s := pipeline.New(pipeline.Options{})
	if err := s.Load(res.Snapshot); err != nil {
		t.Fatal(err)
	}
	c := &cfgpkg.Global{ExportFormat: "yaml"}
	var out bytes.Buffer
	sh := &shell{ctx: context.Background(), ws: &workspace{cfg: c, source: res, session: s, close: func() {}}, out: &out}

	saved := filepath.Join(dir, "out.csv")
	script := strings.Join([]string{
		"recs",
		"apply amount impute-constant value=0",
		"fix-all",
		"undo",
		"redo",
		"steps",
		"history",
		"bogus",
		"undo",
		"undo",
		"undo",
		"redo",
		"export",
		"save " + saved,
		"quit",
		"summary",
	}, "\n")
	if err := sh.run(strings.NewReader(script)); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"[RECOMMENDATIONS]",
		"✓ Step 1: impute-constant amount",
		"✓ undo: now at v2",
		"2 steps applied (undo: true, redo: false)",
		"[PROCESSING LOG]",
		"✗ Error: unknown command \"bogus\"",
		"✗ Error: nothing to undo",
		"operations:",
		"✓ Saved v2 to",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("shell output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "[SUMMARY]") {
		t.Fatalf("commands after quit were executed")
	}
	b, err := os.ReadFile(saved)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "3,Lima,0\n") {
		t.Fatalf("saved csv = %q", b)
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"  recs  ", []string{"recs"}},
		{`apply "unit price" impute-constant value=0`, []string{"apply", "unit price", "impute-constant", "value=0"}},
		{`apply 'first name' impute-constant value="n a"`, []string{"apply", "first name", "impute-constant", "value=n a"}},
		{`save ""`, []string{"save", ""}},
	}
	for _, tc := range tests {
		got, err := splitArgs(tc.line)
		if err != nil {
			t.Fatalf("splitArgs(%q): %v", tc.line, err)
		}
		if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
			t.Fatalf("splitArgs(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}
	if _, err := splitArgs(`apply "unit price`); err == nil {
		t.Fatalf("expected unterminated quote error")
	}
}

func TestShellQuotedColumn(t *testing.T) {
	dir := t.TempDir()
	data := writeFixture(t, dir, "prices.csv", "id,unit price\n1,10\n2,\n3,12\n")
	res, err := ingest.Load(context.Background(), data, ingest.Options{})
	if err != nil {
		t.Fatal(err)
	}
	s := pipeline.New(pipeline.Options{})
	if err := s.Load(res.Snapshot); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	sh := &shell{ctx: context.Background(), ws: &workspace{cfg: &cfgpkg.Global{ExportFormat: "yaml"}, source: res, session: s, close: func() {}}, out: &out}
	if err := sh.run(strings.NewReader(`apply "unit price" impute-constant value=0` + "\nquit\n")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "✓ Step 1: impute-constant unit price") {
		t.Fatalf("shell output:\n%s", out.String())
	}
	cur, _ := s.Current()
	if v := cur.Cell(1, 1); v.IsNull() {
		t.Fatalf("unit price was not imputed")
	}
}
