package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/KaramelBytes/tidyloom-cli/internal/config"
	"github.com/KaramelBytes/tidyloom-cli/internal/metrics"
	"github.com/KaramelBytes/tidyloom-cli/internal/metrics/datadog"
)

var (
	// Global flags
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "tidyloom",
	Short: "TidyLoom CLI: profile messy tables, apply ranked fixes, replay them later",
	Long: `TidyLoom profiles a CSV/TSV, XLSX, JSON, HTML or SQLite table, detects missing
values, duplicate rows, outliers and type mismatches, ranks remediations by
severity and applies them with full undo/redo. Every session can be exported
as a recipe and replayed on the next delivery of the same data.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := ensureConfig()
		if err != nil {
			return err
		}
		logger, err := buildLogger(c.LogLevel, c.LogFormat, debug)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	err := rootCmd.Execute()
	_ = zap.L().Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tidyloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal here; commands that need config report it
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
}

func ensureConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

// buildLogger returns a development logger with --debug and a production
// logger at the configured level otherwise. Logs go to stderr so command
// output stays clean.
func buildLogger(level, format string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	switch format {
	case "", "console":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "json":
		zc.Encoding = "json"
	default:
		return nil, fmt.Errorf("log_format must be console or json, got %q", format)
	}
	return zc.Build()
}

// openMetrics returns the configured metrics backend and a func that
// flushes and stops it.
func openMetrics(ctx context.Context, c *cfgpkg.Global) (metrics.Backend, func()) {
	if c.MetricsBackend != "datadog" {
		return metrics.Nop{}, func() {}
	}
	b, err := datadog.NewBackend(ctx, datadog.Options{
		JobName:    c.MetricsJob,
		Tags:       datadog.ParseTagsCSV(c.MetricsTags),
		FlushEvery: time.Duration(c.MetricsFlushSec) * time.Second,
	})
	if err != nil {
		zap.L().Warn("metrics disabled", zap.Error(err))
		return metrics.Nop{}, func() {}
	}
	return b, func() {
		if err := b.Close(); err != nil {
			zap.L().Warn("metrics flush failed", zap.Error(err))
		}
	}
}
