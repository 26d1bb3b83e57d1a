package postgres

import "recipes/internal/storage"

func init() {
	// registers the recipe store factory
	storage.Register("postgres", New)
}
