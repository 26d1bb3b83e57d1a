package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"recipes/internal/extracthtml"
	"recipes/internal/storage"
)

// memStore is an in-memory storage.Store that counts in-flight ingredient
// item writes.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	sources     map[string]storage.Source // by url
	recipes     map[string]storage.NewRecipe
	recipeIDs   map[string]int64
	slugs       map[string]bool
	categories  map[string]int64
	ingredients map[string]int64
	items       map[int64][]string

	itemDelay      time.Duration
	failIngredient string
	failInsertURL  string
	listErr        error

	inflight    atomic.Int32
	maxInflight atomic.Int32
	itemCalls   atomic.Int32
}

func newMemStore() *memStore {
	s := &memStore{
		sources:     map[string]storage.Source{},
		recipes:     map[string]storage.NewRecipe{},
		recipeIDs:   map[string]int64{},
		slugs:       map[string]bool{},
		categories:  map[string]int64{},
		ingredients: map[string]int64{},
		items:       map[int64][]string{},
	}
	_ = s.SeedCategories(context.Background(), storage.DefaultCategories())
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) FindSourceByURL(_ context.Context, url string) (storage.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[storage.NormalizeSourceURL(url)]
	if !ok {
		return storage.Source{}, storage.ErrNotFound
	}
	return src, nil
}

func (s *memStore) UpsertSource(_ context.Context, name, url string) (storage.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url = storage.NormalizeSourceURL(url)
	src, ok := s.sources[url]
	if !ok {
		src = storage.Source{ID: s.id(), URL: url}
	}
	src.Name = name
	s.sources[url] = src
	return src, nil
}

func (s *memStore) ListSources(context.Context) ([]storage.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]storage.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	return out, nil
}

func (s *memStore) FindRecipeByURL(_ context.Context, url string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.recipeIDs[url]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return id, nil
}

func (s *memStore) FindCategoryByCode(_ context.Context, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.categories[code]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return id, nil
}

func (s *memStore) FindIngredientByName(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ingredients[name]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return id, nil
}

func (s *memStore) CreateIngredient(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.failIngredient {
		return 0, errors.New("ingredient write refused")
	}
	if id, ok := s.ingredients[name]; ok {
		return id, nil
	}
	id := s.id()
	s.ingredients[name] = id
	return id, nil
}

func (s *memStore) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slugs[slug], nil
}

func (s *memStore) InsertRecipe(_ context.Context, r storage.NewRecipe) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.URL == s.failInsertURL {
		return 0, errors.New("insert refused")
	}
	if _, dup := s.recipeIDs[r.URL]; dup {
		return 0, fmt.Errorf("duplicate url %s", r.URL)
	}
	if s.slugs[r.Slug] {
		return 0, fmt.Errorf("duplicate slug %s", r.Slug)
	}
	id := s.id()
	s.recipes[r.URL] = r
	s.recipeIDs[r.URL] = id
	s.slugs[r.Slug] = true
	return id, nil
}

func (s *memStore) InsertIngredientItem(_ context.Context, recipeID, ingredientID int64, qty string) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	s.itemCalls.Add(1)
	for {
		max := s.maxInflight.Load()
		if n <= max || s.maxInflight.CompareAndSwap(max, n) {
			break
		}
	}
	if s.itemDelay > 0 {
		time.Sleep(s.itemDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[recipeID] = append(s.items[recipeID], fmt.Sprintf("%d:%s", ingredientID, qty))
	return nil
}

func (s *memStore) EnsureSchema(context.Context) error { return nil }

func (s *memStore) SeedCategories(_ context.Context, cats []storage.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cats {
		if _, ok := s.categories[c.Code]; !ok {
			s.categories[c.Code] = s.id()
		}
	}
	return nil
}

func (s *memStore) Close() {}

func (s *memStore) recipe(url string) (storage.NewRecipe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipes[url]
	return r, ok
}

func (s *memStore) itemCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[s.recipeIDs[url]])
}

// pageFetcher serves canned HTML by URL. Unknown URLs return a 404 StatusError.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *pageFetcher) Fetch(_ context.Context, req extracthtml.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	html, ok := f.pages[req.URL]
	if !ok {
		return "", &extracthtml.StatusError{URL: req.URL, StatusCode: 404, Body: "not found"}
	}
	return html, nil
}

func (f *pageFetcher) fetched(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == url {
			return true
		}
	}
	return false
}

var _ storage.Store = (*memStore)(nil)
