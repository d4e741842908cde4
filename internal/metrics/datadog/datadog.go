// Package datadog implements a Datadog backend for the internal/metrics package.
//
// NOTE ABOUT FLUSHING:
// A load over a large log tree can run for a long time. Submitting only once at
// process exit would give dashboards a single spike, so we:
//   - buffer metrics in-memory (lock-protected)
//   - periodically Flush() on a ticker (default: once per minute)
//   - Flush() one final time on Close()
//
// Concurrency model:
//   - pipeline code can call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// If the process is killed with SIGKILL/OOM, Close() won't run.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"sparkify/internal/metrics"
)

// seriesNames maps pipeline metric names onto Datadog metric names. Metrics
// not listed here are ignored.
var seriesNames = map[string]string{
	metrics.FilesTotal:          "sparkify.files.total",
	metrics.RecordsTotal:        "sparkify.records.total",
	metrics.RowsTotal:           "sparkify.rows.total",
	metrics.FileDurationSeconds: "sparkify.file.duration_seconds",
}

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "sparkify_etl".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:etl"}).
	Tags []string

	// FlushEvery controls how often we submit buffered metrics to Datadog.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi that Flush needs.
// Tests substitute a fake so no HTTP is done.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// seriesKey identifies one buffered series: a metric name plus its label tags.
type seriesKey struct {
	name string
	tags string // sorted "k:v" joined by ","
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu      sync.Mutex
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
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

// NewBackend constructs a Datadog backend using the official client, which
// reads DD_API_KEY and DD_SITE from the environment.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "sparkify_etl".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Network errors surface from Flush, not from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "sparkify_etl"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
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
		counts:     make(map[seriesKey]float64),
		samples:    make(map[seriesKey][]float64),
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

// Close stops the background flush loop and performs one final Flush().
// Calling Close more than once panics.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	if _, ok := seriesNames[name]; !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[seriesKey{name: name, tags: labelTags(labels)}] += delta
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	if _, ok := seriesNames[name]; !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	k := seriesKey{name: name, tags: labelTags(labels)}
	b.samples[k] = append(b.samples[k], value)
}

type snapshot struct {
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counts: b.counts, samples: b.samples}
	b.counts = make(map[seriesKey]float64)
	b.samples = make(map[seriesKey][]float64)
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.counts) == 0 && len(s.samples) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Buffers are reset even if submission fails; delivery is at most once.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure: counters become COUNT series and each histogram
// becomes a fixed set of percentile gauges.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counts)+6*len(s.samples))

	for k, v := range s.counts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, splitTags(k.tags)...)
		series = append(series, countSeries(seriesNames[k.name], v, tags, nowUnix))
	}

	for k, samples := range s.samples {
		tags := withTags(b.baseTags, splitTags(k.tags)...)
		addPercentiles(&series, tags, seriesNames[k.name], samples, nowUnix)
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. It sorts a copy
// of samples and does nothing when samples is empty.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// labelTags renders labels as sorted "k:v" pairs so equal label sets share a
// series key regardless of map order.
func labelTags(labels metrics.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		if v == "" {
			v = "unknown"
		}
		pairs = append(pairs, k+":"+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
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
var _ metrics.Flusher = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:etl".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
