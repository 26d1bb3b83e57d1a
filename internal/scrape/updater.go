package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recipes/internal/extracthtml"
	"recipes/internal/logger"
	"recipes/internal/metrics"
	"recipes/internal/rules"
	"recipes/internal/storage"
)

// Defaults for Options.
const (
	DefaultIngredientWorkers = 3
	DefaultSlugMaxProbes     = 1000
	DefaultCategoryCode      = "OTHER"
)

// ErrDiscovery wraps a failed link discovery. The run ends Skipped.
var ErrDiscovery = errors.New("link discovery failed")

// Options tune an Updater. Zero values take the defaults above.
type Options struct {
	// IngredientWorkers caps in-flight ingredient writes per recipe.
	IngredientWorkers int
	// SlugMaxProbes caps slug collision probing per recipe.
	SlugMaxProbes int
	// DefaultCategory replaces an empty category code from discovery.
	DefaultCategory string
	// DryRun collects records without touching storage. Records are
	// returned in Result.Records instead of being saved.
	DryRun bool
}

func (o *Options) setDefaults() {
	if o.IngredientWorkers <= 0 {
		o.IngredientWorkers = DefaultIngredientWorkers
	}
	if o.SlugMaxProbes <= 0 {
		o.SlugMaxProbes = DefaultSlugMaxProbes
	}
	if o.DefaultCategory == "" {
		o.DefaultCategory = DefaultCategoryCode
	}
}

// Updater runs the ingestion pipeline for one source:
// init, discover, dedup, fetch+parse, filter, persist.
//
// An Updater is single-use and not safe for concurrent use; the Registry
// creates one per source per run.
type Updater struct {
	rs    rules.RuleSet
	store storage.Store
	fetch extracthtml.Fetcher
	log   logger.Logger
	opts  Options

	source storage.Source
	state  State
	result Result
}

// NewUpdater resolves src and returns an Updater for it.
//
// Errors:
//   - *rules.ConfigError when src does not resolve. Nothing is fetched or stored.
func NewUpdater(src rules.Source, st storage.Store, f extracthtml.Fetcher, log logger.Logger, opts Options) (*Updater, error) {
	rs, err := rules.Resolve(src)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	opts.setDefaults()

	return &Updater{
		rs:    rs,
		store: st,
		fetch: f,
		log: log.With(
			logger.String("source", rs.Name),
			logger.String("run_id", uuid.NewString()),
		),
		opts:   opts,
		result: Result{Source: rs.Name},
	}, nil
}

// RuleSet returns the resolved rules.
func (u *Updater) RuleSet() rules.RuleSet { return u.rs }

// State returns the furthest step reached so far.
func (u *Updater) State() State { return u.state }

// Init registers the source in storage (insert or rename by URL).
// In dry-run mode it only records the declared identity.
func (u *Updater) Init(ctx context.Context) error {
	if u.opts.DryRun {
		u.source = storage.Source{Name: u.rs.Name, URL: storage.NormalizeSourceURL(u.rs.URL)}
		return nil
	}
	src, err := u.store.UpsertSource(ctx, u.rs.Name, u.rs.URL)
	if err != nil {
		return fmt.Errorf("register source %s: %w", u.rs.Name, err)
	}
	u.source = src
	return nil
}

// Collect discovers links, drops known URLs, fetches and parses the rest one
// page at a time and keeps the records with a non-empty title.
//
// Errors:
//   - ErrDiscovery (wrapped) when link discovery fails. Page-level failures
//     are logged and counted, never returned.
func (u *Updater) Collect(ctx context.Context) ([]extracthtml.RawRecipe, error) {
	links, err := extracthtml.DiscoverLinks(ctx, u.fetch, u.rs.Links)
	if err != nil {
		u.errorMetric("discover")
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	u.state = StateLinksDiscovered
	u.result.Discovered = len(links)
	u.log.Info("links discovered", logger.Int("links", len(links)))

	urls := u.dedup(ctx, links)

	records := make([]extracthtml.RawRecipe, 0, len(urls))
	for i, link := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u.log.Debug("fetching recipe page",
			logger.Int("n", i+1), logger.Int("of", len(urls)), logger.String("url", link))

		rec, err := extracthtml.ParsePage(ctx, u.fetch, u.rs.Parsing, link, links[link])
		if err != nil {
			u.result.PagesFailed++
			u.pageMetric("failed")
			u.errorMetric("fetch")
			u.log.Warn("recipe page failed", logger.String("url", link), logger.Error(err))
			continue
		}
		records = append(records, rec)
	}
	u.state = StatePagesFetched

	kept := records[:0]
	for _, rec := range records {
		if !rec.HasTitle() {
			u.pageMetric("filtered")
			u.log.Debug("recipe without title dropped", logger.String("url", rec.URL))
			continue
		}
		u.pageMetric("ok")
		kept = append(kept, rec)
	}
	u.state = StateFiltered
	return kept, nil
}

// dedup returns the discovered URLs not stored yet, in sorted order.
// Lookups run one at a time. A failed lookup drops the URL for this run.
func (u *Updater) dedup(ctx context.Context, links map[string]string) []string {
	all := sortedKeys(links)
	if u.opts.DryRun {
		return all
	}

	out := make([]string, 0, len(all))
	for _, link := range all {
		_, err := u.store.FindRecipeByURL(ctx, link)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			out = append(out, link)
		case err == nil:
			u.result.Duplicates++
		default:
			u.errorMetric("dedup")
			u.log.Warn("recipe lookup failed", logger.String("url", link), logger.Error(err))
		}
	}
	return out
}

// Save persists records one after another and returns the tally.
// A failing record is counted in ExcNumber and never stops the others.
func (u *Updater) Save(ctx context.Context, records []extracthtml.RawRecipe) Tally {
	t := Tally{RecipesCollected: len(records)}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			break
		}
		saved, err := u.saveRecipe(ctx, rec)
		if saved {
			t.RecipesSaved++
			metrics.IncCounter(metrics.SavedTotal, 1, metrics.Labels{"source": u.rs.Name})
		}
		if err != nil {
			t.ExcNumber++
			u.log.Warn("recipe not fully saved", logger.String("url", rec.URL), logger.Bool("saved", saved), logger.Error(err))
		}
	}
	u.state = StatePersisted
	return t
}

// Run executes the whole pipeline and never returns an error: everything is
// reported through the Result.
func (u *Updater) Run(ctx context.Context) Result {
	start := time.Now()
	defer func() {
		u.result.State = u.state
		u.result.Duration = time.Since(start)
		metrics.ObserveHistogram(metrics.SourceDurationSeconds, u.result.Duration.Seconds(),
			metrics.Labels{"source": u.rs.Name, "outcome": string(u.result.Outcome)})
	}()

	if u.rs.Disabled {
		u.state = StateSkipped
		u.result.Outcome = OutcomeDisabled
		u.log.Info("source disabled")
		return u.result
	}

	if err := u.Init(ctx); err != nil {
		u.result.Outcome = OutcomeFailed
		u.result.Err = err
		u.log.Error("source init failed", logger.Error(err))
		return u.result
	}

	records, err := u.Collect(ctx)
	if err != nil {
		u.state = StateSkipped
		u.result.Outcome = OutcomeSkipped
		u.result.Err = err
		u.log.Warn("source skipped", logger.Error(err))
		return u.result
	}

	if u.opts.DryRun {
		u.result.Records = records
		u.result.Tally = Tally{RecipesCollected: len(records)}
	} else {
		u.result.Tally = u.Save(ctx, records)
	}

	u.state = StateDone
	u.result.Outcome = OutcomeCompleted
	u.log.Info("source finished",
		logger.Int("recipes_collected", u.result.Tally.RecipesCollected),
		logger.Int("recipes_saved", u.result.Tally.RecipesSaved),
		logger.Int("exc_number", u.result.Tally.ExcNumber),
		logger.Int("pages_failed", u.result.PagesFailed),
	)
	return u.result
}

func (u *Updater) pageMetric(status string) {
	metrics.IncCounter(metrics.PagesTotal, 1, metrics.Labels{"source": u.rs.Name, "status": status})
}

func (u *Updater) errorMetric(stage string) {
	metrics.IncCounter(metrics.ErrorsTotal, 1, metrics.Labels{"source": u.rs.Name, "stage": stage})
}
