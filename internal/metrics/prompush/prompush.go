// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. A batch load is short-lived, so nothing scrapes
// it; metrics accumulate in a private registry and are pushed on Flush.
package prompush

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sparkify/internal/metrics"
)

var help = map[string]string{
	metrics.FilesTotal:          "Source files processed, by pass and status.",
	metrics.RecordsTotal:        "Source records seen, by pass and kind.",
	metrics.RowsTotal:           "Destination rows affected, by table.",
	metrics.FileDurationSeconds: "Wall time spent per source file.",
}

// Backend buffers metrics in a prometheus.Registry.
type Backend struct {
	url      string
	job      string
	grouping map[string]string

	reg *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	hists    map[string]*prometheus.HistogramVec
	keys     map[string][]string
}

// NewBackend returns a backend that pushes to the gateway at url under job.
func NewBackend(job, url string) (*Backend, error) {
	url = strings.TrimSpace(url)
	job = strings.TrimSpace(job)
	if url == "" {
		return nil, errors.New("pushgateway url is required")
	}
	if job == "" {
		return nil, errors.New("pushgateway job is required")
	}
	return &Backend{
		url:      url,
		job:      job,
		grouping: map[string]string{},
		reg:      prometheus.NewRegistry(),
		counters: map[string]*prometheus.CounterVec{},
		hists:    map[string]*prometheus.HistogramVec{},
		keys:     map[string][]string{},
	}, nil
}

// Grouping adds a grouping label to every push, e.g. the run id.
func (b *Backend) Grouping(key, value string) *Backend {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key != "" && value != "" {
		b.grouping[key] = value
	}
	return b
}

// labelKeys returns the label names first used with name. Later calls with a
// different label set are folded onto those names; missing values are empty.
func (b *Backend) labelKeys(name string, labels metrics.Labels) []string {
	if ks, ok := b.keys[name]; ok {
		return ks
	}
	ks := make([]string, 0, len(labels))
	for k := range labels {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	b.keys[name] = ks
	return ks
}

func values(keys []string, labels metrics.Labels) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = labels[k]
	}
	return out
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := b.labelKeys(name, labels)
	cv, ok := b.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpFor(name)}, keys)
		if err := b.reg.Register(cv); err != nil {
			return
		}
		b.counters[name] = cv
	}
	cv.WithLabelValues(values(keys, labels)...).Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := b.labelKeys(name, labels)
	hv, ok := b.hists[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpFor(name),
			Buckets: prometheus.DefBuckets,
		}, keys)
		if err := b.reg.Register(hv); err != nil {
			return
		}
		b.hists[name] = hv
	}
	hv.WithLabelValues(values(keys, labels)...).Observe(value)
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

// Flush pushes the registry, replacing earlier pushes for the same grouping.
// Counters are cumulative, so repeated flushes are safe.
func (b *Backend) Flush() error {
	return b.FlushContext(context.Background())
}

func (b *Backend) FlushContext(ctx context.Context) error {
	p := push.New(b.url, b.job).Gatherer(b.reg)
	for k, v := range b.grouping {
		p = p.Grouping(k, v)
	}
	return p.PushContext(ctx)
}

var _ metrics.Backend = (*Backend)(nil)
var _ metrics.Flusher = (*Backend)(nil)
