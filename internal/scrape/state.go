// Package scrape runs the ingestion pipeline: one Updater per recipe source
// and a Registry that fans out over every whitelisted source.
package scrape

import (
	"encoding/json"
	"time"

	"recipes/internal/extracthtml"
)

// State is the furthest pipeline step a source run reached.
type State int

const (
	StateInit State = iota
	StateLinksDiscovered
	StatePagesFetched
	StateFiltered
	StatePersisted
	StateDone
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLinksDiscovered:
		return "links_discovered"
	case StatePagesFetched:
		return "pages_fetched"
	case StateFiltered:
		return "filtered"
	case StatePersisted:
		return "persisted"
	case StateDone:
		return "done"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome summarizes how a source run ended.
type Outcome string

const (
	// OutcomeCompleted: the run reached Done. Individual pages or records may still have failed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSkipped: link discovery failed; nothing was fetched or saved.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDisabled: the source is declared disabled.
	OutcomeDisabled Outcome = "disabled"
	// OutcomeFailed: configuration or source registration failed.
	OutcomeFailed Outcome = "failed"
)

// Tally holds the per-run counters.
//
// RecipesCollected counts records that passed the title filter, RecipesSaved
// the ones inserted, and ExcNumber the records (or ingredient lists) that
// failed to persist.
type Tally struct {
	RecipesCollected int `json:"recipes_collected"`
	RecipesSaved     int `json:"recipes_saved"`
	ExcNumber        int `json:"exc_number"`
}

// Result is the report of one source run.
type Result struct {
	Source  string  `json:"source"`
	Outcome Outcome `json:"outcome"`
	State   State   `json:"-"`
	Tally   Tally   `json:"tally"`

	Discovered  int `json:"discovered"`
	Duplicates  int `json:"duplicates"`
	PagesFailed int `json:"pages_failed"`

	Duration time.Duration `json:"-"`
	Err      error         `json:"-"`

	// Records holds the collected records in dry-run mode only.
	Records []extracthtml.RawRecipe `json:"records,omitempty"`
}

// MarshalJSON adds the state name, a duration string and the error text.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		State    string `json:"state"`
		Duration string `json:"duration"`
		Error    string `json:"error,omitempty"`
	}{
		plain:    plain(r),
		State:    r.State.String(),
		Duration: r.Duration.Round(time.Millisecond).String(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
