package attic

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/attic/internal/collector"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// View selects rows by archive state.
type View string

// Views. The zero View is ViewActive.
const (
	ViewActive   View = "active"
	ViewAll      View = "all"
	ViewArchived View = "archived"
)

// ParseView maps a state filter name to a View. "non" and "non-archived"
// select active rows, "arc" and "archived" select archived rows, and an
// empty name or "all" applies no filter.
func ParseView(name string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return ViewAll, nil
	case "non", "non-archived", "active":
		return ViewActive, nil
	case "arc", "archived":
		return ViewArchived, nil
	}
	return "", fmt.Errorf("%w: %q", types.ErrUnknownView, name)
}

func (a *Archiver) viewQuery(entity string, view View) (*collector.Query, error) {
	e, ok := a.schema.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownEntity, entity)
	}
	q := collector.NewQuery(e)
	switch view {
	case ViewActive, "":
		if e.IsArchiveAware() {
			q = q.IsNull(e.ArchiveField)
		}
	case ViewAll:
	case ViewArchived:
		if !e.IsArchiveAware() {
			return nil, &types.PreconditionError{Entity: e.Name, Err: types.ErrNotArchiveAware}
		}
		q = q.Where(e.ArchiveField + " IS NOT NULL")
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownView, view)
	}
	return q, nil
}

func (a *Archiver) reader(entity string, opts []CallOption) (sqlx.ExtContext, error) {
	call := a.resolve(entity, opts)
	if call.tx != nil {
		return call.tx, nil
	}
	return a.db(call.using)
}

// Select scans every column of the rows of entity in view into dest, a
// pointer to a slice, ordered by primary key.
func (a *Archiver) Select(ctx context.Context, dest any, entity string, view View, opts ...CallOption) error {
	q, err := a.viewQuery(entity, view)
	if err != nil {
		return err
	}
	ext, err := a.reader(entity, opts)
	if err != nil {
		return err
	}
	query, args, err := q.SelectSQL("*")
	if err != nil {
		return err
	}
	query += " ORDER BY " + q.Entity.Key()
	if err := sqlx.SelectContext(ctx, ext, dest, ext.Rebind(query), args...); err != nil {
		return &types.StorageExecutionError{Op: "select", Entity: entity, Err: err}
	}
	return nil
}

// Count returns the number of rows of entity in view.
func (a *Archiver) Count(ctx context.Context, entity string, view View, opts ...CallOption) (int64, error) {
	q, err := a.viewQuery(entity, view)
	if err != nil {
		return 0, err
	}
	ext, err := a.reader(entity, opts)
	if err != nil {
		return 0, err
	}
	query, args, err := q.CountSQL()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := sqlx.GetContext(ctx, ext, &n, ext.Rebind(query), args...); err != nil {
		return 0, &types.StorageExecutionError{Op: "count", Entity: entity, Err: err}
	}
	return n, nil
}

// List returns key and archive state of the rows of entity in view,
// ordered by primary key.
func (a *Archiver) List(ctx context.Context, entity string, view View, opts ...CallOption) ([]*types.Ref, error) {
	q, err := a.viewQuery(entity, view)
	if err != nil {
		return nil, err
	}
	ext, err := a.reader(entity, opts)
	if err != nil {
		return nil, err
	}
	return a.refs(ctx, ext, q)
}

// Get loads the archive state of one row. It returns types.ErrNotFound
// when no row has the key.
func (a *Archiver) Get(ctx context.Context, entity string, key any, opts ...CallOption) (*types.Ref, error) {
	q, err := a.viewQuery(entity, ViewAll)
	if err != nil {
		return nil, err
	}
	ext, err := a.reader(entity, opts)
	if err != nil {
		return nil, err
	}
	refs, err := a.refs(ctx, ext, q.Where(q.Entity.Key()+" = ?", key))
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("get %s %v: %w", entity, key, types.ErrNotFound)
	}
	return refs[0], nil
}

func (a *Archiver) refs(ctx context.Context, ext sqlx.ExtContext, q *collector.Query) ([]*types.Ref, error) {
	e := q.Entity
	columns := []string{e.Key()}
	if e.IsArchiveAware() {
		columns = append(columns, e.ArchiveField)
	}
	query, args, err := q.SelectSQL(columns...)
	if err != nil {
		return nil, err
	}
	query += " ORDER BY " + e.Key()

	rows, err := ext.QueryxContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return nil, &types.StorageExecutionError{Op: "select", Entity: e.Name, Err: err}
	}
	defer rows.Close()

	refs := []*types.Ref{}
	for rows.Next() {
		var key, raw any
		dest := []any{&key}
		if e.IsArchiveAware() {
			dest = append(dest, &raw)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &types.StorageExecutionError{Op: "select", Entity: e.Name, Err: err}
		}
		if b, ok := key.([]byte); ok {
			key = string(b)
		}
		stamp, err := collector.ParseStamp(raw)
		if err != nil {
			return nil, err
		}
		refs = append(refs, &types.Ref{Entity: e.Name, Key: key, ArchivedAt: stamp})
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageExecutionError{Op: "select", Entity: e.Name, Err: err}
	}
	return refs, nil
}
