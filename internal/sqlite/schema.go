// Package sqlite bootstraps SQLite tables for a registered schema. It is
// used by the CLI's init command and by tests; production deployments are
// expected to manage their own migrations.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// ArchiveColumnType is the declared type of archive columns. modernc
// sqlite scans DATETIME columns back into time.Time.
const ArchiveColumnType = "DATETIME"

// TableDDL returns the CREATE TABLE statement for e. Foreign keys are
// declared deferred so the order in which a plan touches rows within one
// transaction does not matter; on-delete policies are applied by the
// collector, never by the database.
func TableDDL(s *types.Schema, e *types.EntityType) (string, error) {
	var cols []string
	cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", e.Key(), e.KeySQLType()))
	if e.IsArchiveAware() {
		cols = append(cols, fmt.Sprintf("%s %s", e.ArchiveField, ArchiveColumnType))
	}
	for _, c := range e.Columns {
		cols = append(cols, fmt.Sprintf("%s %s", c.Name, c.Type))
	}

	var fks []string
	for _, r := range e.Relations {
		parent, ok := s.Entity(r.References)
		if !ok {
			return "", fmt.Errorf("%w: %s.%s references %q", types.ErrUnknownEntity, e.Name, r.Column, r.References)
		}
		if r.Column != e.Key() {
			def := fmt.Sprintf("%s %s", r.Column, parent.KeySQLType())
			if r.OnDelete == types.SetDefault && r.Default != nil {
				def += fmt.Sprintf(" DEFAULT %s", literal(r.Default))
			}
			cols = append(cols, def)
		}
		fks = append(fks, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s) DEFERRABLE INITIALLY DEFERRED",
			r.Column, parent.Name, parent.Key()))
	}

	body := append(cols, fks...)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", e.Name, strings.Join(body, ",\n    ")), nil
}

// IndexDDL returns CREATE INDEX statements for e's foreign key columns and
// archive column.
func IndexDDL(e *types.EntityType) []string {
	var stmts []string
	for _, r := range e.Relations {
		if r.Column == e.Key() {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
			e.Name, r.Column, e.Name, r.Column))
	}
	if e.IsArchiveAware() {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
			e.Name, e.ArchiveField, e.Name, e.ArchiveField))
	}
	return stmts
}

// CreateSchema creates every table of s that does not exist yet, in one
// transaction.
func CreateSchema(ctx context.Context, db *sqlx.DB, s *types.Schema) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range s.Entities() {
		ddl, err := TableDDL(s, e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", e.Name, err)
		}
		for _, idx := range IndexDDL(e) {
			if _, err := tx.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("create index on %s: %w", e.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", x)
	}
}
