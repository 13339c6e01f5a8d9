package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.IQRMultiplier != 1.5 || c.NumericImpute != "mean" || c.ExportFormat != "yaml" || c.MetricsFlushSec != 60 {
		t.Fatalf("defaults = %+v", c)
	}
	if c.WeightDuplicates != 1.0 || c.WeightOutliers != 0.5 {
		t.Fatalf("weights = %+v", c)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("iqr_multiplier: 3\nid_column: order_id\nlog_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TIDYLOOM_LOG_LEVEL", "debug")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.IQRMultiplier != 3 || c.IDColumn != "order_id" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.LogLevel != "debug" {
		t.Fatalf("env should win over file, got %q", c.LogLevel)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("HOME", t.TempDir())
	c, _ := Load("")
	if err := c.Set("iqr_multiplier", "2.5"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("metrics_backend", "datadog"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Save(c, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.IQRMultiplier != 2.5 || back.MetricsBackend != "datadog" {
		t.Fatalf("round trip = %+v", back)
	}
	if got, _ := back.Get("iqr_multiplier"); got != "2.5" {
		t.Fatalf("Get = %q", got)
	}
}

func TestSetRejectsBadValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, _ := Load("")
	tests := []struct{ key, val, want string }{
		{"nope", "1", "unknown config key"},
		{"iqr_multiplier", "abc", "iqr_multiplier"},
		{"iqr_multiplier", "0", "must be positive"},
		{"max_rows", "1.5", "max_rows"},
		{"metrics_backend", "statsd", "none or datadog"},
		{"weight_missing", "-1", "must not be negative"},
	}
	for _, tc := range tests {
		err := c.Set(tc.key, tc.val)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("Set(%s=%s) err = %v, want %q", tc.key, tc.val, err, tc.want)
		}
	}
	if c.IQRMultiplier != 1.5 || c.MetricsBackend != "none" {
		t.Fatalf("failed Set changed config: %+v", c)
	}
}

func TestRune(t *testing.T) {
	if Rune("") != 0 || Rune(",") != ',' || Rune("ü") != 'ü' {
		t.Fatalf("Rune mismatch")
	}
}
