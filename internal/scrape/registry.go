package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"recipes/internal/extracthtml"
	"recipes/internal/logger"
	"recipes/internal/rules"
	"recipes/internal/storage"
)

// ErrUnknownSource is returned by Collect for a name no module declares.
var ErrUnknownSource = errors.New("unknown source")

// FetcherFactory builds the fetcher a source's pipeline uses.
type FetcherFactory func(opts rules.FetchOptions) extracthtml.Fetcher

// Registry runs pipelines for a fixed list of source modules.
//
// A module is only crawled by CollectAll when a stored source carries its
// name: registering a module in code is not enough to activate it.
type Registry struct {
	modules    []rules.Source
	store      storage.Store
	newFetcher FetcherFactory
	log        logger.Logger
	opts       Options
}

// NewRegistry returns a Registry over modules. Later modules with a
// duplicate name are ignored.
func NewRegistry(modules []rules.Source, st storage.Store, newFetcher FetcherFactory, log logger.Logger, opts Options) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	seen := make(map[string]bool, len(modules))
	uniq := make([]rules.Source, 0, len(modules))
	for _, m := range modules {
		if seen[m.Name] {
			log.Warn("duplicate source module ignored", logger.String("source", m.Name))
			continue
		}
		seen[m.Name] = true
		uniq = append(uniq, m)
	}
	return &Registry{modules: uniq, store: st, newFetcher: newFetcher, log: log, opts: opts}
}

// Modules returns the registered module names in declaration order.
func (r *Registry) Modules() []string {
	out := make([]string, len(r.modules))
	for i, m := range r.modules {
		out[i] = m.Name
	}
	return out
}

// Lookup returns the module declared under name.
func (r *Registry) Lookup(name string) (rules.Source, bool) {
	for _, m := range r.modules {
		if m.Name == name {
			return m, true
		}
	}
	return rules.Source{}, false
}

// Register whitelists the module called name by storing its source row.
func (r *Registry) Register(ctx context.Context, name string) (storage.Source, error) {
	m, ok := r.Lookup(name)
	if !ok {
		return storage.Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	if _, err := rules.Resolve(m); err != nil {
		return storage.Source{}, err
	}
	return r.store.UpsertSource(ctx, m.Name, m.URL)
}

// CollectAll runs one pipeline per whitelisted module, all concurrently.
// Modules without a stored source of the same name are skipped silently.
//
// Per-source failures are reported in the returned Result map (keyed by
// source name) and never affect other sources.
//
// Errors:
//   - listing stored sources failed; nothing ran.
func (r *Registry) CollectAll(ctx context.Context) (map[string]Result, error) {
	stored, err := r.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	whitelist := make(map[string]bool, len(stored))
	for _, s := range stored {
		whitelist[s.Name] = true
	}

	var active []rules.Source
	for _, m := range r.modules {
		if !whitelist[m.Name] {
			r.log.Debug("source module not registered, skipping", logger.String("source", m.Name))
			continue
		}
		active = append(active, m)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(active))
	)
	var g errgroup.Group
	for _, m := range active {
		m := m
		g.Go(func() error {
			res := r.run(ctx, m)
			mu.Lock()
			results[m.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Collect runs the pipeline for one module whether or not it is whitelisted.
func (r *Registry) Collect(ctx context.Context, name string) (Result, error) {
	m, ok := r.Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return r.run(ctx, m), nil
}

// run builds and runs one Updater. A panic inside the pipeline is contained
// to this source.
func (r *Registry) run(ctx context.Context, m rules.Source) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Source: m.Name, Outcome: OutcomeFailed, Err: fmt.Errorf("pipeline panic: %v", p)}
			r.log.Error("source pipeline panicked", logger.String("source", m.Name), logger.Any("panic", p))
		}
	}()

	u, err := NewUpdater(m, r.store, r.newFetcher(m.Fetch), r.log, r.opts)
	if err != nil {
		r.log.Error("source rules invalid", logger.String("source", m.Name), logger.Error(err))
		return Result{Source: m.Name, Outcome: OutcomeFailed, Err: err}
	}
	return u.Run(ctx)
}

// SortedNames returns the keys of a CollectAll result in order.
func SortedNames(results map[string]Result) []string {
	return sortedKeys(results)
}
