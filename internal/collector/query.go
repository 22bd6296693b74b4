package collector

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// Query selects rows of one entity type by a conjunction of predicates.
// Queries are values: Where and None return modified copies, so a query
// held by a plan is never changed behind its back.
type Query struct {
	Entity *types.EntityType
	conds  []cond
	none   bool
}

type cond struct {
	expr string
	args []any
}

// NewQuery returns a query selecting every row of e.
func NewQuery(e *types.EntityType) *Query {
	return &Query{Entity: e}
}

// Where narrows the query by a predicate using ? placeholders. Slice
// arguments expand for IN (?) as with sqlx.In.
func (q *Query) Where(expr string, args ...any) *Query {
	c := q.clone()
	c.conds = append(c.conds, cond{expr: expr, args: args})
	return c
}

// In narrows the query to rows whose column is one of keys. An empty key
// list selects nothing.
func (q *Query) In(column string, keys []any) *Query {
	if len(keys) == 0 {
		return q.None()
	}
	return q.Where(column+" IN (?)", keys)
}

// IsNull narrows the query to rows where column is NULL.
func (q *Query) IsNull(column string) *Query {
	return q.Where(column + " IS NULL")
}

// Between narrows the query to rows where column lies in [lo, hi]. On
// sqlite, time bounds are compared as text, so only stamps stored in the
// driver's own UTC layout (the one Archive writes) compare correctly.
func (q *Query) Between(column string, lo, hi any) *Query {
	return q.Where(column+" >= ? AND "+column+" <= ?", lo, hi)
}

// None returns a query that selects nothing and is skipped on execution.
func (q *Query) None() *Query {
	c := q.clone()
	c.none = true
	return c
}

// IsNone reports whether the query selects nothing.
func (q *Query) IsNone() bool {
	return q.none
}

func (q *Query) clone() *Query {
	c := *q
	c.conds = append([]cond(nil), q.conds...)
	return &c
}

// where renders the WHERE clause (without the keyword) with ? placeholders
// and slice arguments expanded.
func (q *Query) where() (string, []any, error) {
	if len(q.conds) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(q.conds))
	var args []any
	for _, c := range q.conds {
		parts = append(parts, "("+c.expr+")")
		args = append(args, c.args...)
	}
	clause, expanded, err := sqlx.In(strings.Join(parts, " AND "), args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand %s query: %w", q.Entity.Name, err)
	}
	return clause, expanded, nil
}

// SelectSQL renders a SELECT of columns.
func (q *Query) SelectSQL(columns ...string) (string, []any, error) {
	where, args, err := q.where()
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), q.Entity.Name, where), args, nil
}

// CountSQL renders a SELECT COUNT(*).
func (q *Query) CountSQL() (string, []any, error) {
	return q.SelectSQL("COUNT(*)")
}

// DeleteSQL renders a DELETE of the selected rows.
func (q *Query) DeleteSQL() (string, []any, error) {
	where, args, err := q.where()
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", q.Entity.Name, where), args, nil
}

// UpdateSQL renders an UPDATE setting column to value on the selected rows.
func (q *Query) UpdateSQL(column string, value any) (string, []any, error) {
	where, args, err := q.where()
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s", q.Entity.Name, column, where)
	return query, append([]any{value}, args...), nil
}

// String renders the query for logs.
func (q *Query) String() string {
	if q.none {
		return q.Entity.Name + ": none"
	}
	where, _, err := q.where()
	if err != nil {
		return q.Entity.Name + ": " + err.Error()
	}
	return q.Entity.Name + ": " + where
}
