package collector

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// Instance is a collected row: its key and, for archive-aware types, its
// archive timestamp at collection time.
type Instance struct {
	Key        any
	ArchivedAt *time.Time
}

// FieldUpdate sets Column to Value on either an explicit instance set or
// the rows selected by Query. Exactly one of Instances and Query is used.
type FieldUpdate struct {
	Entity    *types.EntityType
	Column    string
	Value     any
	Instances []Instance
	Query     *Query
}

// Keys returns the keys of the instance set.
func (fu FieldUpdate) Keys() []any {
	return keysOf(fu.Instances)
}

type bucket struct {
	entity    *types.EntityType
	instances []Instance
	seen      map[string]bool
}

// Plan is the output of a collection: rows to delete per entity type,
// field updates, and bulk deletes. A plan belongs to the call that built
// it; it is mutated by the rewriter, executed once, and dropped.
type Plan struct {
	order        []string
	data         map[string]*bucket
	children     map[string]map[string]bool
	FieldUpdates []FieldUpdate
	FastDeletes  []*Query
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{
		data:     make(map[string]*bucket),
		children: make(map[string]map[string]bool),
	}
}

// Add schedules instances of e for deletion and returns the ones not
// already in the plan.
func (p *Plan) Add(e *types.EntityType, instances ...Instance) []Instance {
	b, ok := p.data[e.Name]
	if !ok {
		b = &bucket{entity: e, seen: make(map[string]bool)}
		p.data[e.Name] = b
		p.order = append(p.order, e.Name)
	}
	var added []Instance
	for _, inst := range instances {
		k := keyString(inst.Key)
		if b.seen[k] {
			continue
		}
		b.seen[k] = true
		b.instances = append(b.instances, inst)
		added = append(added, inst)
	}
	return added
}

// Entities returns the entity types scheduled for deletion, in execution
// order once Sort has run.
func (p *Plan) Entities() []*types.EntityType {
	out := make([]*types.EntityType, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.data[name].entity)
	}
	return out
}

// Instances returns the instances of the named entity scheduled for
// deletion.
func (p *Plan) Instances(name string) []Instance {
	b, ok := p.data[name]
	if !ok {
		return nil
	}
	return append([]Instance(nil), b.instances...)
}

// Has reports whether the named entity has a delete entry.
func (p *Plan) Has(name string) bool {
	_, ok := p.data[name]
	return ok
}

// Remove drops the named entity from the delete set.
func (p *Plan) Remove(name string) {
	if !p.Has(name) {
		return
	}
	delete(p.data, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i:i], p.order[i+1:]...)
			break
		}
	}
}

// AddFieldUpdate schedules column = value for instances of e. Empty
// instance sets are dropped.
func (p *Plan) AddFieldUpdate(e *types.EntityType, column string, value any, instances []Instance) {
	if len(instances) == 0 {
		return
	}
	p.FieldUpdates = append(p.FieldUpdates, FieldUpdate{
		Entity:    e,
		Column:    column,
		Value:     value,
		Instances: append([]Instance(nil), instances...),
	})
}

// AddQueryUpdate schedules column = value for the rows q selects.
func (p *Plan) AddQueryUpdate(q *Query, column string, value any) {
	if q.IsNone() {
		return
	}
	p.FieldUpdates = append(p.FieldUpdates, FieldUpdate{
		Entity: q.Entity,
		Column: column,
		Value:  value,
		Query:  q,
	})
}

// AddFastDelete schedules a bulk delete of the rows q selects.
func (p *Plan) AddFastDelete(q *Query) {
	p.FastDeletes = append(p.FastDeletes, q)
}

// Empty reports whether executing the plan would issue no statement.
func (p *Plan) Empty() bool {
	for _, b := range p.data {
		if len(b.instances) > 0 {
			return false
		}
	}
	for _, q := range p.FastDeletes {
		if !q.IsNone() {
			return false
		}
	}
	return len(p.FieldUpdates) == 0
}

// dependsOn records that rows of child must be deleted before rows of
// parent.
func (p *Plan) dependsOn(child, parent string) {
	if child == parent {
		return
	}
	if p.children[parent] == nil {
		p.children[parent] = make(map[string]bool)
	}
	p.children[parent][child] = true
}

// Sort orders the delete set so every entity comes after the entities
// that reference it. Entities caught in a cycle keep collection order.
func (p *Plan) Sort() {
	done := make(map[string]bool, len(p.order))
	sorted := make([]string, 0, len(p.order))
	remaining := append([]string(nil), p.order...)

	for len(remaining) > 0 {
		var next []string
		for _, name := range remaining {
			if p.ready(name, done) {
				sorted = append(sorted, name)
				done[name] = true
			} else {
				next = append(next, name)
			}
		}
		if len(next) == len(remaining) {
			sorted = append(sorted, next...)
			break
		}
		remaining = next
	}
	p.order = sorted
}

func (p *Plan) ready(name string, done map[string]bool) bool {
	for child := range p.children[name] {
		if _, inPlan := p.data[child]; inPlan && !done[child] {
			return false
		}
	}
	return true
}

func keysOf(instances []Instance) []any {
	keys := make([]any, len(instances))
	for i, inst := range instances {
		keys[i] = inst.Key
	}
	return keys
}

func keyString(k any) string {
	return fmt.Sprintf("%T:%v", normalizeKey(k), normalizeKey(k))
}

// normalizeKey folds the integer and byte-slice key types drivers and
// callers use interchangeably onto int64 and string.
func normalizeKey(k any) any {
	switch v := k.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case uint:
		return int64(v)
	case []byte:
		return string(v)
	case *int64:
		if v == nil {
			return nil
		}
		return *v
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case uuid.UUID:
		return v.String()
	default:
		return k
	}
}
