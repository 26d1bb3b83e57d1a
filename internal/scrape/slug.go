package scrape

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gosimple/slug"
)

// ErrSlugExhausted is returned when every probed slug variant is taken.
var ErrSlugExhausted = errors.New("no free slug")

// fallbackSlug is used for titles that transliterate to nothing.
const fallbackSlug = "recipe"

// slugExister is the part of storage.Store slug probing needs.
type slugExister interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// Slugify transliterates title to a lowercase URL-safe slug.
func Slugify(title string) string {
	s := slug.Make(title)
	if s == "" {
		return fallbackSlug
	}
	return s
}

// UniqueSlug probes base, base-1, base-2, ... and returns the first one not
// stored yet. At most maxProbes candidates are tried.
func UniqueSlug(ctx context.Context, st slugExister, base string, maxProbes int) (string, error) {
	if maxProbes < 1 {
		maxProbes = 1
	}
	for i := 0; i < maxProbes; i++ {
		candidate := base
		if i > 0 {
			candidate = base + "-" + strconv.Itoa(i)
		}
		taken, err := st.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q after %d probes", ErrSlugExhausted, base, maxProbes)
}
