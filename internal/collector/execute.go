package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// Execute runs plan: bulk deletes first, then field updates, then
// instance deletes in dependency order. The first failing statement stops
// execution and is returned as a *types.StorageExecutionError; rolling
// back is the caller's job. Only entity types with affected rows appear
// in the summary.
func (c *Collector) Execute(ctx context.Context, plan *Plan) (types.Summary, error) {
	sum := types.NewSummary()
	if plan.Empty() {
		return sum, nil
	}

	for _, q := range plan.FastDeletes {
		if q.IsNone() {
			continue
		}
		query, args, err := q.DeleteSQL()
		if err != nil {
			return sum, err
		}
		n, err := c.exec(ctx, "fast delete", q.Entity.Name, query, args)
		if err != nil {
			return sum, err
		}
		if n > 0 {
			sum.AddDeleted(q.Entity.Name, n)
		}
	}

	for _, fu := range plan.FieldUpdates {
		queries := []*Query{fu.Query}
		if fu.Query == nil {
			queries = queries[:0]
			for _, chunk := range chunkKeys(fu.Keys(), c.batchSize) {
				queries = append(queries, NewQuery(fu.Entity).In(fu.Entity.Key(), chunk))
			}
		}
		for _, q := range queries {
			if q.IsNone() {
				continue
			}
			query, args, err := q.UpdateSQL(fu.Column, fu.Value)
			if err != nil {
				return sum, err
			}
			n, err := c.exec(ctx, "update", fu.Entity.Name, query, args)
			if err != nil {
				return sum, err
			}
			if n > 0 {
				sum.AddUpdated(fu.Entity.Name, n)
			}
		}
	}

	for _, e := range plan.Entities() {
		for _, chunk := range chunkKeys(keysOf(plan.Instances(e.Name)), c.batchSize) {
			query, args, err := NewQuery(e).In(e.Key(), chunk).DeleteSQL()
			if err != nil {
				return sum, err
			}
			n, err := c.exec(ctx, "delete", e.Name, query, args)
			if err != nil {
				return sum, err
			}
			if n > 0 {
				sum.AddDeleted(e.Name, n)
			}
		}
	}

	return sum, nil
}

func (c *Collector) exec(ctx context.Context, op, entity, query string, args []any) (int64, error) {
	res, err := c.ext.ExecContext(ctx, c.ext.Rebind(query), args...)
	if err != nil {
		return 0, &types.StorageExecutionError{Op: op, Entity: entity, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &types.StorageExecutionError{Op: op, Entity: entity, Err: err}
	}
	c.logger.Debug("plan statement",
		zap.String("op", op),
		zap.String("entity", entity),
		zap.Int64("rows", n))
	return n, nil
}
