// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "recipes/internal/storage/mssql"
	_ "recipes/internal/storage/postgres"
	_ "recipes/internal/storage/sqlite"
)
