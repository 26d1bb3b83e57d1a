package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recipes/internal/storage"
)

/*
Store implements storage.Store for Postgres.

It provides:
  - Source upsert keyed on the normalized URL
  - Get-or-create ingredients via ON CONFLICT (name)
  - Native DATE storage for pub_date

Schema matches the SQLite and MSSQL backends column for column.
*/
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pool for cfg.DSN and checks connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS source (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		url  TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS category (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS ingredient (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS recipe (
		id                BIGSERIAL PRIMARY KEY,
		title             TEXT NOT NULL,
		slug              TEXT NOT NULL UNIQUE,
		url               TEXT NOT NULL UNIQUE,
		description       TEXT,
		prep_time_seconds BIGINT,
		main_image        TEXT,
		pub_date          DATE,
		source_id         BIGINT NOT NULL REFERENCES source(id),
		category_id       BIGINT NOT NULL REFERENCES category(id)
	)`,
	`CREATE TABLE IF NOT EXISTS ingredient_item (
		id            BIGSERIAL PRIMARY KEY,
		recipe_id     BIGINT NOT NULL REFERENCES recipe(id) ON DELETE CASCADE,
		ingredient_id BIGINT NOT NULL REFERENCES ingredient(id),
		qty           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS ingredient_item_recipe_idx ON ingredient_item(recipe_id)`,
}

// EnsureSchema runs the DDL in a single transaction.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) SeedCategories(ctx context.Context, categories []storage.Category) error {
	batch := &pgx.Batch{}
	for _, c := range categories {
		batch.Queue(`INSERT INTO category (name, code) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`, c.Name, c.Code)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *Store) FindSourceByURL(ctx context.Context, url string) (storage.Source, error) {
	var src storage.Source
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, url FROM source WHERE url = $1`, storage.NormalizeSourceURL(url),
	).Scan(&src.ID, &src.Name, &src.URL)
	if err != nil {
		return storage.Source{}, notFound(err)
	}
	return src, nil
}

func (s *Store) UpsertSource(ctx context.Context, name, url string) (storage.Source, error) {
	var src storage.Source
	err := s.pool.QueryRow(ctx, `
		INSERT INTO source (name, url) VALUES ($1, $2)
		ON CONFLICT (url) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, url`,
		name, storage.NormalizeSourceURL(url),
	).Scan(&src.ID, &src.Name, &src.URL)
	if err != nil {
		return storage.Source{}, fmt.Errorf("upsert source %s: %w", url, err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]storage.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, url FROM source ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Source, error) {
		var src storage.Source
		err := row.Scan(&src.ID, &src.Name, &src.URL)
		return src, err
	})
}

func (s *Store) FindRecipeByURL(ctx context.Context, url string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM recipe WHERE url = $1`, url)
}

func (s *Store) FindCategoryByCode(ctx context.Context, code string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM category WHERE code = $1`, code)
}

func (s *Store) FindIngredientByName(ctx context.Context, name string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM ingredient WHERE name = $1`, name)
}

func (s *Store) CreateIngredient(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingredient (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create ingredient %q: %w", name, err)
	}
	return id, nil
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recipe WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

func (s *Store) InsertRecipe(ctx context.Context, r storage.NewRecipe) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, insertRecipeSQL,
		r.Title, r.Slug, r.URL,
		storage.NullString(r.Description),
		storage.NullSeconds(r.PrepTime),
		storage.NullString(r.MainImage),
		pubDateArg(r),
		r.SourceID, r.CategoryID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert recipe %s: %w", r.URL, err)
	}
	return id, nil
}

const insertRecipeSQL = `
	INSERT INTO recipe (title, slug, url, description, prep_time_seconds, main_image, pub_date, source_id, category_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id`

// pubDateArg passes the date as a DATE-compatible value; pgx encodes
// time.Time for DATE columns using only the calendar date.
func pubDateArg(r storage.NewRecipe) any {
	if r.PubDate == nil {
		return nil
	}
	return *r.PubDate
}

func (s *Store) InsertIngredientItem(ctx context.Context, recipeID, ingredientID int64, qty string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingredient_item (recipe_id, ingredient_id, qty) VALUES ($1, $2, $3)`,
		recipeID, ingredientID, qty)
	return err
}

func (s *Store) queryID(ctx context.Context, q string, arg any) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, q, arg).Scan(&id); err != nil {
		return 0, notFound(err)
	}
	return id, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

var _ storage.Store = (*Store)(nil)
