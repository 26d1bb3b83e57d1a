// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// A collect run is a batch job: there is nothing long-lived to scrape, so
// the backend keeps a private registry and pushes it to the gateway on Flush.
package prompush

import (
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"recipes/internal/metrics"
)

// Backend implements metrics.Backend by pushing a private registry.
type Backend struct {
	pusher *push.Pusher

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewBackend registers every metrics.Def on a fresh registry and targets
// the gateway at gatewayURL under job.
//
// Errors:
//   - job or gatewayURL is empty.
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("prompush: empty job name")
	}
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: empty gateway url")
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	b := &Backend{
		pusher:     push.New(gatewayURL, job).Gatherer(reg),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	for _, d := range metrics.Defs() {
		switch d.Kind {
		case metrics.Counter:
			b.counters[d.Name] = factory.NewCounterVec(
				prometheus.CounterOpts{Name: d.Name, Help: d.Help}, d.Keys)
		case metrics.Histogram:
			b.histograms[d.Name] = factory.NewHistogramVec(
				prometheus.HistogramOpts{Name: d.Name, Help: d.Help, Buckets: prometheus.DefBuckets}, d.Keys)
		}
	}
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names and non-positive
// deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	vec, ok := b.counters[name]
	if !ok {
		return
	}
	def, _ := metrics.Lookup(name)
	vec.WithLabelValues(def.Values(labels)...).Add(delta)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	vec, ok := b.histograms[name]
	if !ok {
		return
	}
	def, _ := metrics.Lookup(name)
	vec.WithLabelValues(def.Values(labels)...).Observe(value)
}

// Flush replaces the job's metric group on the gateway with the current
// registry contents. Counters are cumulative for the process lifetime.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
