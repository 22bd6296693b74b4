// Package sqlite exposes the SQLite helpers attic uses internally so that
// library users can open a database with the same pragmas and create the
// tables of a schema.
package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/attic/internal/database"
	"github.com/mesh-intelligence/attic/internal/sqlite"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// Open opens the SQLite database at path with foreign keys enforced, WAL
// journaling and a single writer connection. Missing parent directories
// are created.
//
// Example:
//
//	db, err := sqlite.Open(".attic/attic.db")
//	if err != nil { ... }
//	defer db.Close()
//	err = sqlite.CreateSchema(ctx, db, schema)
//	archiver := attic.New(schema, db)
func Open(path string) (*sqlx.DB, error) {
	return database.Open(types.DatabaseConfig{Driver: types.DriverSQLite, DSN: path})
}

// CreateSchema creates the tables and indexes of every entity type in s,
// skipping those that already exist.
func CreateSchema(ctx context.Context, db *sqlx.DB, s *types.Schema) error {
	return sqlite.CreateSchema(ctx, db, s)
}
