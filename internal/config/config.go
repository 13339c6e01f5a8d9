package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "TIDYLOOM"

// Global configuration structure.
type Global struct {
	// Detection and fixing
	IDColumn      string  `mapstructure:"id_column" yaml:"id_column"`
	IQRMultiplier float64 `mapstructure:"iqr_multiplier" yaml:"iqr_multiplier"`
	NumericImpute string  `mapstructure:"numeric_impute" yaml:"numeric_impute"`

	// Ingestion
	MaxRows            int    `mapstructure:"max_rows" yaml:"max_rows"`
	DecimalSeparator   string `mapstructure:"decimal_separator" yaml:"decimal_separator"`
	ThousandsSeparator string `mapstructure:"thousands_separator" yaml:"thousands_separator"`
	Encoding           string `mapstructure:"encoding" yaml:"encoding"`

	ExportFormat string `mapstructure:"export_format" yaml:"export_format"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Severity weights per anomaly kind
	WeightMissing      float64 `mapstructure:"weight_missing" yaml:"weight_missing"`
	WeightDuplicates   float64 `mapstructure:"weight_duplicates" yaml:"weight_duplicates"`
	WeightOutliers     float64 `mapstructure:"weight_outliers" yaml:"weight_outliers"`
	WeightTypeMismatch float64 `mapstructure:"weight_type_mismatch" yaml:"weight_type_mismatch"`

	// Metrics backend: none or datadog
	MetricsBackend  string `mapstructure:"metrics_backend" yaml:"metrics_backend"`
	MetricsJob      string `mapstructure:"metrics_job" yaml:"metrics_job"`
	MetricsTags     string `mapstructure:"metrics_tags" yaml:"metrics_tags"`
	MetricsFlushSec int    `mapstructure:"metrics_flush_sec" yaml:"metrics_flush_sec"`
}

var defaults = map[string]any{
	"id_column":            "",
	"iqr_multiplier":       1.5,
	"numeric_impute":       "mean",
	"max_rows":             0,
	"decimal_separator":    "",
	"thousands_separator":  "",
	"encoding":             "utf-8",
	"export_format":        "yaml",
	"log_level":            "warn",
	"log_format":           "console",
	"weight_missing":       0.8,
	"weight_duplicates":    1.0,
	"weight_outliers":      0.5,
	"weight_type_mismatch": 0.8,
	"metrics_backend":      "none",
	"metrics_job":          "tidyloom",
	"metrics_tags":         "",
	"metrics_flush_sec":    60,
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dir is the per-user configuration directory, ~/.tidyloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tidyloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tidyloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values no component can use.
func (c *Global) Validate() error {
	if c.IQRMultiplier <= 0 {
		return fmt.Errorf("iqr_multiplier must be positive, got %v", c.IQRMultiplier)
	}
	for _, w := range []struct {
		key string
		val float64
	}{
		{"weight_missing", c.WeightMissing},
		{"weight_duplicates", c.WeightDuplicates},
		{"weight_outliers", c.WeightOutliers},
		{"weight_type_mismatch", c.WeightTypeMismatch},
	} {
		if w.val < 0 {
			return fmt.Errorf("%s must not be negative, got %v", w.key, w.val)
		}
	}
	switch c.NumericImpute {
	case "", "mean", "median":
	default:
		return fmt.Errorf("numeric_impute must be mean or median, got %q", c.NumericImpute)
	}
	switch c.MetricsBackend {
	case "", "none", "datadog":
	default:
		return fmt.Errorf("metrics_backend must be none or datadog, got %q", c.MetricsBackend)
	}
	if len([]rune(c.DecimalSeparator)) > 1 || len([]rune(c.ThousandsSeparator)) > 1 {
		return fmt.Errorf("separators must be a single character")
	}
	return nil
}

// Get returns the value of key formatted for display.
func (c *Global) Get(key string) (string, error) {
	m, err := c.asMap()
	if err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	if v == nil {
		return "", nil
	}
	return fmt.Sprint(v), nil
}

// Set parses value for key and stores it.
func (c *Global) Set(key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	var parsed any = value
	switch defaults[key].(type) {
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed = f
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed = n
	}
	m, err := c.asMap()
	if err != nil {
		return err
	}
	m[key] = parsed
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	next := *c
	if err := yaml.Unmarshal(b, &next); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *Global) asMap() (map[string]any, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Rune returns the first rune of s, or 0 when s is empty.
func Rune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
