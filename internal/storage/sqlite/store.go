package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"recipes/internal/storage"
)

// Store implements storage.Store for SQLite.
//
// Differences from Postgres:
//   - pub_date is TEXT in "YYYY-MM-DD" form; SQLite has no DATE type.
//   - The pool is capped at one connection. ":memory:" databases are per
//     connection, and SQLite serializes writers anyway.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN and enables foreign keys.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS source (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		url  TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS category (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ingredient (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS recipe (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		title             TEXT NOT NULL,
		slug              TEXT NOT NULL UNIQUE,
		url               TEXT NOT NULL UNIQUE,
		description       TEXT,
		prep_time_seconds INTEGER,
		main_image        TEXT,
		pub_date          TEXT,
		source_id         INTEGER NOT NULL REFERENCES source(id),
		category_id       INTEGER NOT NULL REFERENCES category(id)
	)`,
	`CREATE TABLE IF NOT EXISTS ingredient_item (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		recipe_id     INTEGER NOT NULL REFERENCES recipe(id) ON DELETE CASCADE,
		ingredient_id INTEGER NOT NULL REFERENCES ingredient(id),
		qty           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS ingredient_item_recipe_idx ON ingredient_item(recipe_id)`,
}

// EnsureSchema creates the recipe tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *Store) SeedCategories(ctx context.Context, categories []storage.Category) error {
	for _, c := range categories {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO category (name, code) VALUES (?, ?)`, c.Name, c.Code); err != nil {
			return fmt.Errorf("seed category %s: %w", c.Code, err)
		}
	}
	return nil
}

func (s *Store) FindSourceByURL(ctx context.Context, url string) (storage.Source, error) {
	var src storage.Source
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url FROM source WHERE url = ?`, storage.NormalizeSourceURL(url),
	).Scan(&src.ID, &src.Name, &src.URL)
	if err != nil {
		return storage.Source{}, notFound(err)
	}
	return src, nil
}

func (s *Store) UpsertSource(ctx context.Context, name, url string) (storage.Source, error) {
	var src storage.Source
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO source (name, url) VALUES (?, ?)
		ON CONFLICT(url) DO UPDATE SET name = excluded.name
		RETURNING id, name, url`,
		name, storage.NormalizeSourceURL(url),
	).Scan(&src.ID, &src.Name, &src.URL)
	if err != nil {
		return storage.Source{}, fmt.Errorf("upsert source %s: %w", url, err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]storage.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, url FROM source ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Source
	for rows.Next() {
		var src storage.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.URL); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *Store) FindRecipeByURL(ctx context.Context, url string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM recipe WHERE url = ?`, url)
}

func (s *Store) FindCategoryByCode(ctx context.Context, code string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM category WHERE code = ?`, code)
}

func (s *Store) FindIngredientByName(ctx context.Context, name string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM ingredient WHERE name = ?`, name)
}

// CreateIngredient relies on the UNIQUE(name) constraint so concurrent
// writers of the same name converge on one row.
func (s *Store) CreateIngredient(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ingredient (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create ingredient %q: %w", name, err)
	}
	return id, nil
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM recipe WHERE slug = ?`, slug).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) InsertRecipe(ctx context.Context, r storage.NewRecipe) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recipe (title, slug, url, description, prep_time_seconds, main_image, pub_date, source_id, category_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Title, r.Slug, r.URL,
		storage.NullString(r.Description),
		storage.NullSeconds(r.PrepTime),
		storage.NullString(r.MainImage),
		storage.NullDate(r.PubDate),
		r.SourceID, r.CategoryID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert recipe %s: %w", r.URL, err)
	}
	return res.LastInsertId()
}

func (s *Store) InsertIngredientItem(ctx context.Context, recipeID, ingredientID int64, qty string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingredient_item (recipe_id, ingredient_id, qty) VALUES (?, ?, ?)`,
		recipeID, ingredientID, qty)
	return err
}

func (s *Store) queryID(ctx context.Context, q string, arg any) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, q, arg).Scan(&id); err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

var _ storage.Store = (*Store)(nil)

