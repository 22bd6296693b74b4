package attic

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/attic/internal/database"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// Open validates cfg, opens every configured database and returns an
// Archiver over them. opts are applied after the configured settings. The
// caller must Close the Archiver.
func Open(cfg types.Config, opts ...Option) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schema, err := types.NewSchema(cfg.Schema...)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	dbs, err := database.OpenAll(cfg.Databases)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithRouter(cfg.Router),
		WithUnarchiveWindow(cfg.Window()),
	}
	for alias, db := range dbs {
		base = append(base, WithDatabase(alias, db))
	}
	a := New(schema, nil, append(base, opts...)...)
	a.owned = dbs
	return a, nil
}

// Close closes the databases Open opened. It is a no-op for Archivers
// built with New.
func (a *Archiver) Close() error {
	return database.CloseAll(a.owned)
}

// DB returns the pool registered under alias.
func (a *Archiver) DB(alias string) (*sqlx.DB, error) {
	return a.db(alias)
}
