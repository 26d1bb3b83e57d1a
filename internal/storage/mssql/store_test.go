package mssql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"recipes/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		_ = db.Close()
	})
	return newStore(db), mock
}

func TestStore_UpsertSourceMergesOnNormalizedURL(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("MERGE dbo.source WITH (HOLDLOCK)")).
		WithArgs("Eda", "https://eda.ru").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "url"}).AddRow(7, "Eda", "https://eda.ru"))

	src, err := st.UpsertSource(context.Background(), "Eda", "https://eda.ru/")
	if err != nil {
		t.Fatalf("UpsertSource() error = %v", err)
	}
	if src.ID != 7 || src.URL != "https://eda.ru" {
		t.Fatalf("got %+v", src)
	}
}

func TestStore_FindCategoryMissing(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM dbo.category").
		WithArgs("BREAKFAST").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := st.FindCategoryByCode(context.Background(), "BREAKFAST")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_InsertRecipeBindsNulls(t *testing.T) {
	st, mock := newMockStore(t)

	prep := 45 * time.Minute
	pub := time.Date(2021, 12, 31, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO dbo.recipe")).
		WithArgs("Щи", "shchi", "https://eda.ru/shchi", nil, int64(2700), nil, "2021-12-31", int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))

	id, err := st.InsertRecipe(context.Background(), storage.NewRecipe{
		Title:      "Щи",
		Slug:       "shchi",
		URL:        "https://eda.ru/shchi",
		PrepTime:   &prep,
		PubDate:    &pub,
		SourceID:   1,
		CategoryID: 2,
	})
	if err != nil {
		t.Fatalf("InsertRecipe() error = %v", err)
	}
	if id != 99 {
		t.Fatalf("id = %d", id)
	}
}

func TestStore_CreateIngredientReturnsMergedID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("MERGE dbo.ingredient WITH (HOLDLOCK)")).
		WithArgs("Лук").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	id, err := st.CreateIngredient(context.Background(), "Лук")
	if err != nil || id != 3 {
		t.Fatalf("CreateIngredient() = %d, %v", id, err)
	}
}

func TestStore_SlugExists(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(1) FROM dbo.recipe")).
		WithArgs("plov").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	ok, err := st.SlugExists(context.Background(), "plov")
	if err != nil || !ok {
		t.Fatalf("SlugExists() = %v, %v", ok, err)
	}
}

func TestStore_SeedCategoriesInsertsEachMissingCode(t *testing.T) {
	st, mock := newMockStore(t)

	cats := storage.DefaultCategories()
	for _, c := range cats {
		mock.ExpectExec(regexp.QuoteMeta("IF NOT EXISTS (SELECT 1 FROM dbo.category")).
			WithArgs(c.Name, c.Code).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	if err := st.SeedCategories(context.Background(), cats); err != nil {
		t.Fatalf("SeedCategories() error = %v", err)
	}
}

func TestStore_EnsureSchemaStopsOnError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("IF OBJECT_ID(N'dbo.source'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("IF OBJECT_ID(N'dbo.category'")).WillReturnError(errors.New("permission denied"))

	if err := st.EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
