// Package storage is the persistence boundary of the ingestion pipeline.
//
// Backends (postgres, sqlite, mssql) register themselves under a kind from
// init(); callers pick one at runtime with Open. Every Store method is a
// single statement against a shared connection pool and is safe for
// concurrent use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by Find* lookups that match no row.
var ErrNotFound = errors.New("not found")

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend ("postgres", "sqlite", "mssql").
//   - DSN is passed through to the backend driver unchanged.
type Config struct {
	Kind string
	DSN  string
}

// Source is a stored recipe website.
type Source struct {
	ID   int64
	Name string
	URL  string
}

// Category is a recipe category addressed by a stable code.
type Category struct {
	Code string
	Name string
}

// NewRecipe is a recipe ready to insert. Nil pointers are stored as NULL.
type NewRecipe struct {
	Title       string
	Slug        string
	URL         string
	Description *string
	PrepTime    *time.Duration
	MainImage   *string
	PubDate     *time.Time
	SourceID    int64
	CategoryID  int64
}

// Store is the persistence contract of the pipeline.
type Store interface {
	// FindSourceByURL returns ErrNotFound when no source has url.
	FindSourceByURL(ctx context.Context, url string) (Source, error)
	// UpsertSource inserts a source or renames the one with the same URL.
	// A trailing "/" on url is dropped before matching.
	UpsertSource(ctx context.Context, name, url string) (Source, error)
	// ListSources returns every stored source ordered by id.
	ListSources(ctx context.Context) ([]Source, error)

	// FindRecipeByURL returns the recipe id or ErrNotFound.
	FindRecipeByURL(ctx context.Context, url string) (int64, error)
	// FindCategoryByCode returns the category id or ErrNotFound.
	FindCategoryByCode(ctx context.Context, code string) (int64, error)
	// FindIngredientByName returns the ingredient id or ErrNotFound. Names match exactly.
	FindIngredientByName(ctx context.Context, name string) (int64, error)
	// CreateIngredient inserts an ingredient and returns its id. Creating a
	// name that already exists returns the existing id.
	CreateIngredient(ctx context.Context, name string) (int64, error)
	// SlugExists reports whether a recipe already uses slug.
	SlugExists(ctx context.Context, slug string) (bool, error)
	// InsertRecipe inserts a recipe and returns its id.
	InsertRecipe(ctx context.Context, r NewRecipe) (int64, error)
	// InsertIngredientItem links an ingredient to a recipe with a free-form quantity.
	InsertIngredientItem(ctx context.Context, recipeID, ingredientID int64, qty string) error

	// EnsureSchema creates missing tables and indexes.
	EnsureSchema(ctx context.Context) error
	// SeedCategories inserts categories whose code is not stored yet.
	SeedCategories(ctx context.Context, categories []Category) error

	// Close releases the connection pool. Call once.
	Close()
}

// DefaultCategories are the categories every source's feed pages refer to.
func DefaultCategories() []Category {
	return []Category{
		{Code: "SOUPS", Name: "Soups"},
		{Code: "MAIN", Name: "Main"},
		{Code: "SALADS", Name: "Salads"},
		{Code: "DESSERTS", Name: "Desserts"},
		{Code: "OTHER", Name: "Other"},
	}
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register makes a backend available under kind. Call it from init().
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f func(ctx context.Context, cfg Config) (Store, error)) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs the Store registered under cfg.Kind.
//
// Errors:
//   - cfg.Kind is empty or not registered.
//   - whatever the backend factory returns (bad DSN, unreachable server).
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, errors.New("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
