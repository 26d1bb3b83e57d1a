package scrape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"recipes/internal/extracthtml"
	"recipes/internal/logger"
	"recipes/internal/storage"
)

// ErrUnknownCategory is returned when a record's category code is not stored.
var ErrUnknownCategory = errors.New("unknown category code")

// saveRecipe inserts rec and its ingredient items.
//
// saved is true once the recipe row exists. A non-nil error with saved=true
// means some ingredient items were not written.
func (u *Updater) saveRecipe(ctx context.Context, rec extracthtml.RawRecipe) (saved bool, err error) {
	code := rec.Category
	if code == "" {
		code = u.opts.DefaultCategory
	}
	categoryID, err := u.store.FindCategoryByCode(ctx, code)
	if err != nil {
		u.errorMetric("persist")
		if errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("%w: %q", ErrUnknownCategory, code)
		}
		return false, fmt.Errorf("category %q: %w", code, err)
	}

	slug, err := UniqueSlug(ctx, u.store, Slugify(*rec.Title), u.opts.SlugMaxProbes)
	if err != nil {
		u.errorMetric("persist")
		return false, err
	}

	row := storage.NewRecipe{
		Title:       *rec.Title,
		Slug:        slug,
		URL:         rec.URL,
		Description: rec.Text,
		PrepTime:    rec.PrepTime,
		PubDate:     rec.PubDate,
		SourceID:    u.source.ID,
		CategoryID:  categoryID,
	}
	if rec.MainImage != nil {
		img := AbsoluteImageURL(u.source.URL, *rec.MainImage)
		row.MainImage = &img
	}

	recipeID, err := u.store.InsertRecipe(ctx, row)
	if err != nil {
		u.errorMetric("persist")
		return false, err
	}
	u.log.Debug("recipe saved", logger.String("slug", slug), logger.Int64("id", recipeID))

	if err := u.saveIngredients(ctx, recipeID, rec.Ingredients); err != nil {
		u.errorMetric("ingredients")
		return true, err
	}
	return true, nil
}

// AbsoluteImageURL joins a root-relative image path ("/img/x.jpg") to the
// source URL. Anything else, including protocol-relative "//cdn/..." URLs,
// is returned unchanged.
func AbsoluteImageURL(sourceURL, img string) string {
	if !strings.HasPrefix(img, "/") || strings.HasPrefix(img, "//") {
		return img
	}
	return strings.TrimSuffix(sourceURL, "/") + img
}

// saveIngredients writes one ingredient item per entry with at most
// opts.IngredientWorkers writes in flight. After the first failure no new
// writes start; writes already running finish. The first error is returned.
func (u *Updater) saveIngredients(ctx context.Context, recipeID int64, ingredients map[string]string) error {
	if len(ingredients) == 0 {
		return nil
	}
	sem := semaphore.NewWeighted(int64(u.opts.IngredientWorkers))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for _, name := range sortedKeys(ingredients) {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		if failed() {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(name, qty string) {
			defer wg.Done()
			defer sem.Release(1)
			if err := u.saveIngredientItem(ctx, recipeID, name, qty); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("ingredient %q: %w", name, err)
				}
				mu.Unlock()
			}
		}(name, ingredients[name])
	}
	wg.Wait()
	return firstErr
}

// saveIngredientItem looks the ingredient up by exact name, creates it if
// missing and links it to the recipe.
func (u *Updater) saveIngredientItem(ctx context.Context, recipeID int64, name, qty string) error {
	id, err := u.store.FindIngredientByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		id, err = u.store.CreateIngredient(ctx, name)
	}
	if err != nil {
		return err
	}
	return u.store.InsertIngredientItem(ctx, recipeID, id, qty)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
