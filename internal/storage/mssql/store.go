package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"

	"recipes/internal/storage"
)

// Store implements storage.Store for Microsoft SQL Server.
//
// Upserts use MERGE ... WITH (HOLDLOCK) so concurrent writers of the same
// source URL or ingredient name serialize on the key range instead of racing
// into a UNIQUE violation. MERGE ... OUTPUT returns the affected id for both
// the insert and the update branch.
//
// Unique text columns are NVARCHAR with bounded length so they fit the
// nonclustered index key limit.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New opens a "sqlserver" connection pool and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(16)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newStore(db), nil
}

func newStore(db *sql.DB) *Store { return &Store{db: db} }

// Close releases database resources held by this store.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

var schema = []string{
	`IF OBJECT_ID(N'dbo.source', N'U') IS NULL
	CREATE TABLE dbo.source (
		id   BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(400) NOT NULL,
		url  NVARCHAR(850) NOT NULL UNIQUE
	)`,
	`IF OBJECT_ID(N'dbo.category', N'U') IS NULL
	CREATE TABLE dbo.category (
		id   BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(400) NOT NULL,
		code NVARCHAR(100) NOT NULL UNIQUE
	)`,
	`IF OBJECT_ID(N'dbo.ingredient', N'U') IS NULL
	CREATE TABLE dbo.ingredient (
		id   BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(450) NOT NULL UNIQUE
	)`,
	`IF OBJECT_ID(N'dbo.recipe', N'U') IS NULL
	CREATE TABLE dbo.recipe (
		id                BIGINT IDENTITY(1,1) PRIMARY KEY,
		title             NVARCHAR(1000) NOT NULL,
		slug              NVARCHAR(450) NOT NULL UNIQUE,
		url               NVARCHAR(850) NOT NULL UNIQUE,
		description       NVARCHAR(MAX) NULL,
		prep_time_seconds BIGINT NULL,
		main_image        NVARCHAR(2000) NULL,
		pub_date          DATE NULL,
		source_id         BIGINT NOT NULL REFERENCES dbo.source(id),
		category_id       BIGINT NOT NULL REFERENCES dbo.category(id)
	)`,
	`IF OBJECT_ID(N'dbo.ingredient_item', N'U') IS NULL
	CREATE TABLE dbo.ingredient_item (
		id            BIGINT IDENTITY(1,1) PRIMARY KEY,
		recipe_id     BIGINT NOT NULL REFERENCES dbo.recipe(id) ON DELETE CASCADE,
		ingredient_id BIGINT NOT NULL REFERENCES dbo.ingredient(id),
		qty           NVARCHAR(400) NOT NULL DEFAULT N''
	)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mssql schema: %w", err)
		}
	}
	return nil
}

func (s *Store) SeedCategories(ctx context.Context, categories []storage.Category) error {
	for _, c := range categories {
		_, err := s.db.ExecContext(ctx, `
			IF NOT EXISTS (SELECT 1 FROM dbo.category WHERE code = @p2)
				INSERT INTO dbo.category (name, code) VALUES (@p1, @p2)`,
			c.Name, c.Code)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", c.Code, err)
		}
	}
	return nil
}

func (s *Store) FindSourceByURL(ctx context.Context, url string) (storage.Source, error) {
	var src storage.Source
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url FROM dbo.source WHERE url = @p1`, storage.NormalizeSourceURL(url),
	).Scan(&src.ID, &src.Name, &src.URL)
	if err != nil {
		return storage.Source{}, notFound(err)
	}
	return src, nil
}

const upsertSourceSQL = `
	MERGE dbo.source WITH (HOLDLOCK) AS t
	USING (SELECT @p1 AS name, @p2 AS url) AS s
	ON t.url = s.url
	WHEN MATCHED THEN UPDATE SET name = s.name
	WHEN NOT MATCHED THEN INSERT (name, url) VALUES (s.name, s.url)
	OUTPUT inserted.id, inserted.name, inserted.url;`

func (s *Store) UpsertSource(ctx context.Context, name, url string) (storage.Source, error) {
	var src storage.Source
	err := s.db.QueryRowContext(ctx, upsertSourceSQL, name, storage.NormalizeSourceURL(url)).
		Scan(&src.ID, &src.Name, &src.URL)
	if err != nil {
		return storage.Source{}, fmt.Errorf("upsert source %s: %w", url, err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]storage.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, url FROM dbo.source ORDER BY id`)
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
	return s.queryID(ctx, `SELECT id FROM dbo.recipe WHERE url = @p1`, url)
}

func (s *Store) FindCategoryByCode(ctx context.Context, code string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM dbo.category WHERE code = @p1`, code)
}

func (s *Store) FindIngredientByName(ctx context.Context, name string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM dbo.ingredient WHERE name = @p1`, name)
}

const createIngredientSQL = `
	MERGE dbo.ingredient WITH (HOLDLOCK) AS t
	USING (SELECT @p1 AS name) AS s
	ON t.name = s.name
	WHEN MATCHED THEN UPDATE SET name = s.name
	WHEN NOT MATCHED THEN INSERT (name) VALUES (s.name)
	OUTPUT inserted.id;`

func (s *Store) CreateIngredient(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, createIngredientSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("create ingredient %q: %w", name, err)
	}
	return id, nil
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM dbo.recipe WHERE slug = @p1`, slug).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const insertRecipeSQL = `
	INSERT INTO dbo.recipe (title, slug, url, description, prep_time_seconds, main_image, pub_date, source_id, category_id)
	OUTPUT inserted.id
	VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9)`

func (s *Store) InsertRecipe(ctx context.Context, r storage.NewRecipe) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, insertRecipeSQL,
		r.Title, r.Slug, r.URL,
		storage.NullString(r.Description),
		storage.NullSeconds(r.PrepTime),
		storage.NullString(r.MainImage),
		storage.NullDate(r.PubDate),
		r.SourceID, r.CategoryID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert recipe %s: %w", r.URL, err)
	}
	return id, nil
}

func (s *Store) InsertIngredientItem(ctx context.Context, recipeID, ingredientID int64, qty string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dbo.ingredient_item (recipe_id, ingredient_id, qty) VALUES (@p1, @p2, @p3)`,
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
