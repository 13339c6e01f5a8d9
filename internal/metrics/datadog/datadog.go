// Package datadog implements a Datadog backend for the metrics package.
//
// Metrics are buffered in memory, submitted on a ticker and flushed one
// final time on Close, so an interactive shell session produces a time
// series while a one-shot clean command still delivers its tail.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/KaramelBytes/tidyloom-cli/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "tidyloom".
	JobName string
	// Tags are extra Datadog tags such as "env:prod".
	Tags []string
	// FlushEvery defaults to 60 seconds.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags  []string
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu        sync.Mutex
	counters  map[string]float64
	gauges    map[string]float64
	durations map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend builds a backend on the official client. Credentials come from
// DD_API_KEY / DD_SITE through dd.NewDefaultContext; network errors surface
// on Flush.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "tidyloom"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}
	for _, tag := range opts.Tags {
		if tag == "" || strings.ContainsAny(tag, ", \t") {
			return nil, wrapInitErr(fmt.Errorf("invalid tag %q", tag))
		}
	}
	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		durations:  make(map[string][]float64),
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and flushes what is left. Safe to call twice.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		err = b.Flush()
	})
	return err
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	var k string
	switch name {
	case metrics.SessionLoads:
		k = seriesKey("tidyloom.session.loads", "format:"+orUnknown(labels["format"]))
	case metrics.FixesApplied:
		k = seriesKey("tidyloom.fixes.applied", "fix:"+orUnknown(labels["fix"]))
	case metrics.FixesFailed:
		k = seriesKey("tidyloom.fixes.failed", "fix:"+orUnknown(labels["fix"]))
	case metrics.HistoryMoves:
		k = seriesKey("tidyloom.history.moves", "direction:"+orUnknown(labels["direction"]))
	case metrics.AnomaliesFound:
		k = seriesKey("tidyloom.anomalies.total", "kind:"+orUnknown(labels["kind"]))
	case metrics.RowsRemoved:
		k = seriesKey("tidyloom.rows.removed", "fix:"+orUnknown(labels["fix"]))
	case metrics.CellsChanged:
		k = seriesKey("tidyloom.cells.changed", "fix:"+orUnknown(labels["fix"]))
	default:
		return
	}
	b.mu.Lock()
	b.counters[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend. DatasetRows is reported as a
// gauge holding the last observation.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch name {
	case metrics.FixDuration:
		k := seriesKey("tidyloom.fix.duration_seconds", "fix:"+orUnknown(labels["fix"]))
		b.durations[k] = append(b.durations[k], value)
	case metrics.DatasetRows:
		b.gauges[seriesKey("tidyloom.dataset.rows")] = value
	}
}

type snapshot struct {
	counters  map[string]float64
	gauges    map[string]float64
	durations map[string][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counters) == 0 && len(s.gauges) == 0 && len(s.durations) == 0
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := snapshot{counters: b.counters, gauges: b.gauges, durations: b.durations}
	b.counters = make(map[string]float64)
	b.gauges = make(map[string]float64)
	b.durations = make(map[string][]float64)
	return s
}

// Flush submits buffered metrics and resets the buffers, even when the
// submission fails.
func (b *Backend) Flush() error {
	s := b.snapshotAndReset()
	if s.isEmpty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.buildSeries(s, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries is pure; series are sorted by metric name and tags so payloads
// are stable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+len(s.gauges)+6*len(s.durations))
	for _, k := range sortedKeys(s.counters) {
		metric, tags := splitSeriesKey(k)
		series = append(series, point(metric, datadogV2.METRICINTAKETYPE_COUNT, s.counters[k], withTags(b.baseTags, tags...), nowUnix))
	}
	for _, k := range sortedKeys(s.gauges) {
		metric, tags := splitSeriesKey(k)
		series = append(series, point(metric, datadogV2.METRICINTAKETYPE_GAUGE, s.gauges[k], withTags(b.baseTags, tags...), nowUnix))
	}
	keys := make([]string, 0, len(s.durations))
	for k := range s.durations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		samples := s.durations[k]
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		metric, tags := splitSeriesKey(k)
		all := withTags(b.baseTags, tags...)
		for _, q := range []struct {
			suffix string
			p      float64
		}{{"p50", 0.50}, {"p90", 0.90}, {"p95", 0.95}, {"p99", 0.99}} {
			series = append(series, point(metric+"."+q.suffix, datadogV2.METRICINTAKETYPE_GAUGE, percentileNearestRank(cp, q.p), all, nowUnix))
		}
		series = append(series, point(metric+".max", datadogV2.METRICINTAKETYPE_GAUGE, cp[len(cp)-1], all, nowUnix))
		series = append(series, point(metric+".samples", datadogV2.METRICINTAKETYPE_GAUGE, float64(len(cp)), all, nowUnix))
	}
	return series
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func seriesKey(metric string, tags ...string) string {
	return strings.Join(append([]string{metric}, tags...), "\x00")
}

func splitSeriesKey(k string) (string, []string) {
	parts := strings.Split(k, "\x00")
	return parts[0], parts[1:]
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	return append(out, extras...)
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
