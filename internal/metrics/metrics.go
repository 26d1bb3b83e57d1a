// Package metrics is the process-wide metrics facade used by the scraper and
// the ingestion pipeline.
//
// Core code calls IncCounter and ObserveHistogram with one of the metric names
// below. A concrete Backend (Datadog, Prometheus Pushgateway) is installed once
// at startup with SetBackend; until then every call is a no-op.
package metrics

import (
	"sync"
)

// Metric names emitted by the scraper.
const (
	// PagesTotal counts recipe pages by source and status: "ok", "failed", "filtered".
	PagesTotal = "recipes_pages_total"
	// SavedTotal counts persisted recipes per source.
	SavedTotal = "recipes_saved_total"
	// ErrorsTotal counts recoverable errors by source and stage: "discover", "fetch", "persist", "ingredients".
	ErrorsTotal = "recipes_errors_total"
	// HTTPRequestsTotal counts fetches by HTTP status ("error" for transport failures).
	HTTPRequestsTotal = "recipes_http_requests_total"
	// FetchDurationSeconds observes fetch latency by HTTP status.
	FetchDurationSeconds = "recipes_fetch_duration_seconds"
	// SourceDurationSeconds observes one source's full pipeline run by source and outcome.
	SourceDurationSeconds = "recipes_source_duration_seconds"
)

// Kind distinguishes counters from histograms.
type Kind int

const (
	Counter Kind = iota
	Histogram
)

// Def describes one metric: its name, kind and the label keys backends
// should keep. Labels outside Keys are dropped; missing ones become "unknown".
type Def struct {
	Name string
	Help string
	Kind Kind
	Keys []string
}

var defs = []Def{
	{Name: PagesTotal, Kind: Counter, Keys: []string{"source", "status"}, Help: "Recipe pages processed."},
	{Name: SavedTotal, Kind: Counter, Keys: []string{"source"}, Help: "Recipes persisted."},
	{Name: ErrorsTotal, Kind: Counter, Keys: []string{"source", "stage"}, Help: "Recoverable pipeline errors."},
	{Name: HTTPRequestsTotal, Kind: Counter, Keys: []string{"status"}, Help: "HTTP fetches by status."},
	{Name: FetchDurationSeconds, Kind: Histogram, Keys: []string{"status"}, Help: "HTTP fetch latency."},
	{Name: SourceDurationSeconds, Kind: Histogram, Keys: []string{"source", "outcome"}, Help: "Per-source pipeline duration."},
}

// Defs returns the known metric definitions.
func Defs() []Def {
	out := make([]Def, len(defs))
	copy(out, defs)
	return out
}

// Lookup returns the definition for name.
func Lookup(name string) (Def, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return Def{}, false
}

// Values projects labels onto d.Keys in order.
func (d Def) Values(labels Labels) []string {
	out := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		v := labels[k]
		if v == "" {
			v = "unknown"
		}
		out[i] = v
	}
	return out
}

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric updates. Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process backend. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample for the named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered metrics out of the installed backend.
func Flush() error {
	return current().Flush()
}
