// Package collector walks the foreign-key graph below a set of root rows
// and produces the plan a cascading delete would execute, honoring each
// relation's on-delete policy. It also executes plans.
//
// A Collector is built per operation around the transaction that operation
// runs in. It holds no state beyond the plan under construction.
package collector

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// DefaultBatchSize bounds the number of keys bound into one IN list.
const DefaultBatchSize = 500

// Collector builds and executes plans against one connection or
// transaction.
type Collector struct {
	ext       sqlx.ExtContext
	schema    *types.Schema
	logger    *zap.Logger
	batchSize int
	plan      *Plan
}

// New returns a Collector issuing statements through ext, which is usually
// a *sqlx.Tx.
func New(ext sqlx.ExtContext, schema *types.Schema, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		ext:       ext,
		schema:    schema,
		logger:    logger,
		batchSize: DefaultBatchSize,
	}
}

// WithBatchSize overrides DefaultBatchSize.
func (c *Collector) WithBatchSize(n int) *Collector {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

// Collect builds the cascading-delete plan rooted at roots. When
// keepParents is true, rows that roots extend through a parent link are
// left out of the plan.
func (c *Collector) Collect(ctx context.Context, roots []types.Record, keepParents bool) (*Plan, error) {
	c.plan = NewPlan()

	type group struct {
		entity    *types.EntityType
		instances []Instance
	}
	var groups []*group
	byName := make(map[string]*group)
	for _, rec := range roots {
		e, ok := c.schema.Entity(rec.EntityType())
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrUnknownEntity, rec.EntityType())
		}
		inst := Instance{Key: normalizeKey(rec.PrimaryKey())}
		if a, ok := rec.(types.Archivable); ok {
			inst.ArchivedAt = a.ArchiveStamp()
		}
		g, ok := byName[e.Name]
		if !ok {
			g = &group{entity: e}
			byName[e.Name] = g
			groups = append(groups, g)
		}
		g.instances = append(g.instances, inst)
	}

	for _, g := range groups {
		if err := c.collect(ctx, g.entity, g.instances, true, keepParents); err != nil {
			return nil, err
		}
	}
	c.plan.Sort()

	plan := c.plan
	c.plan = nil
	c.logger.Debug("collected plan",
		zap.Int("entities", len(plan.order)),
		zap.Int("field_updates", len(plan.FieldUpdates)),
		zap.Int("fast_deletes", len(plan.FastDeletes)))
	return plan, nil
}

func (c *Collector) collect(ctx context.Context, e *types.EntityType, instances []Instance, collectRelated, keepParents bool) error {
	added := c.plan.Add(e, instances...)
	if len(added) == 0 {
		return nil
	}
	keys := keysOf(added)

	if !keepParents {
		for _, link := range e.ParentLinks() {
			parent, _ := c.schema.Entity(link.References)
			parentKeys, err := c.columnValues(ctx, e, link.Column, keys)
			if err != nil {
				return err
			}
			parents, err := c.loadIn(ctx, parent, parent.Key(), parentKeys)
			if err != nil {
				return err
			}
			c.plan.dependsOn(e.Name, parent.Name)
			// Parents are removed with their extension, but what else
			// references them is not traversed from here.
			if err := c.collect(ctx, parent, parents, false, keepParents); err != nil {
				return err
			}
		}
	}

	if !collectRelated {
		return nil
	}

	for _, dep := range c.schema.Dependents(e.Name) {
		r := dep.Relation
		if r.OnDelete == types.DoNothing {
			continue
		}

		if r.OnDelete == types.Cascade && c.canFastDelete(dep.Entity) {
			for _, chunk := range chunkKeys(keys, c.batchSize) {
				c.plan.AddFastDelete(NewQuery(dep.Entity).In(r.Column, chunk))
			}
			continue
		}

		related, err := c.loadIn(ctx, dep.Entity, r.Column, keys)
		if err != nil {
			return err
		}
		if len(related) == 0 {
			continue
		}

		switch r.OnDelete {
		case types.Cascade:
			c.plan.dependsOn(dep.Entity.Name, e.Name)
			if err := c.collect(ctx, dep.Entity, related, true, keepParents); err != nil {
				return err
			}
		case types.SetNull:
			c.plan.AddFieldUpdate(dep.Entity, r.Column, nil, related)
		case types.SetDefault:
			c.plan.AddFieldUpdate(dep.Entity, r.Column, r.Default, related)
		case types.Restrict:
			return &types.RestrictedError{Entity: dep.Entity.Name, Relation: r, Keys: keysOf(related)}
		}
	}
	return nil
}

// canFastDelete reports whether rows of e can be removed with a single
// filtered DELETE: nothing references them with an active policy and they
// extend no parent row.
func (c *Collector) canFastDelete(e *types.EntityType) bool {
	return !c.schema.HasActiveDependents(e.Name) && len(e.ParentLinks()) == 0
}

// loadIn loads the rows of e whose column is one of keys.
func (c *Collector) loadIn(ctx context.Context, e *types.EntityType, column string, keys []any) ([]Instance, error) {
	var out []Instance
	for _, chunk := range chunkKeys(keys, c.batchSize) {
		rows, err := c.load(ctx, NewQuery(e).In(column, chunk))
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// load reads key and archive timestamp of the rows q selects.
func (c *Collector) load(ctx context.Context, q *Query) ([]Instance, error) {
	if q.IsNone() {
		return nil, nil
	}
	e := q.Entity
	columns := []string{e.Key()}
	if e.IsArchiveAware() {
		columns = append(columns, e.ArchiveField)
	}
	query, args, err := q.SelectSQL(columns...)
	if err != nil {
		return nil, err
	}

	rows, err := c.ext.QueryxContext(ctx, c.ext.Rebind(query), args...)
	if err != nil {
		return nil, &types.StorageExecutionError{Op: "collect", Entity: e.Name, Err: err}
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var key any
		var st stamp
		dest := []any{&key}
		if e.IsArchiveAware() {
			dest = append(dest, &st)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &types.StorageExecutionError{Op: "collect", Entity: e.Name, Err: err}
		}
		out = append(out, Instance{Key: normalizeKey(key), ArchivedAt: st.t})
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageExecutionError{Op: "collect", Entity: e.Name, Err: err}
	}
	return out, nil
}

// columnValues returns the non-null values of column for the rows of e
// with the given primary keys.
func (c *Collector) columnValues(ctx context.Context, e *types.EntityType, column string, keys []any) ([]any, error) {
	var out []any
	for _, chunk := range chunkKeys(keys, c.batchSize) {
		query, args, err := NewQuery(e).In(e.Key(), chunk).SelectSQL(column)
		if err != nil {
			return nil, err
		}
		rows, err := c.ext.QueryxContext(ctx, c.ext.Rebind(query), args...)
		if err != nil {
			return nil, &types.StorageExecutionError{Op: "collect", Entity: e.Name, Err: err}
		}
		for rows.Next() {
			var v any
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, &types.StorageExecutionError{Op: "collect", Entity: e.Name, Err: err}
			}
			if v != nil {
				out = append(out, normalizeKey(v))
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, &types.StorageExecutionError{Op: "collect", Entity: e.Name, Err: err}
		}
	}
	return out, nil
}

func chunkKeys(keys []any, size int) [][]any {
	if len(keys) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([][]any, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}
