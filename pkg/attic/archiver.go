package attic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/attic/internal/cascade"
	"github.com/mesh-intelligence/attic/internal/collector"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// Archiver runs archive, unarchive and purge operations against the
// databases it was built with. It is immutable after New and safe for
// concurrent use.
type Archiver struct {
	schema    *types.Schema
	dbs       map[string]*sqlx.DB
	router    map[string]string
	observers []types.Observer
	logger    *zap.Logger
	clock     func() time.Time
	rewriter  cascade.Rewriter
	batchSize int

	owned map[string]*sqlx.DB
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithDatabase registers db under alias.
func WithDatabase(alias string, db *sqlx.DB) Option {
	return func(a *Archiver) { a.dbs[alias] = db }
}

// WithRouter maps entity names to database aliases. Unrouted entities use
// the default alias.
func WithRouter(router map[string]string) Option {
	return func(a *Archiver) {
		for entity, alias := range router {
			a.router[entity] = alias
		}
	}
}

// WithObserver appends an observer. Observers are notified in the order
// they were added.
func WithObserver(o types.Observer) Option {
	return func(a *Archiver) { a.observers = append(a.observers, o) }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock replaces time.Now as the source of archive stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		if now != nil {
			a.clock = now
		}
	}
}

// WithUnarchiveWindow sets how far a dependent's stamp may be from the
// root's and still be restored by Unarchive.
func WithUnarchiveWindow(d time.Duration) Option {
	return func(a *Archiver) { a.rewriter.Window = d }
}

// WithBatchSize bounds the number of keys per IN list.
func WithBatchSize(n int) Option {
	return func(a *Archiver) { a.batchSize = n }
}

// New returns an Archiver for schema. db, when not nil, is registered as
// the default alias.
func New(schema *types.Schema, db *sqlx.DB, opts ...Option) *Archiver {
	a := &Archiver{
		schema: schema,
		dbs:    make(map[string]*sqlx.DB),
		router: make(map[string]string),
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	if db != nil {
		a.dbs[types.DefaultAlias] = db
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Schema returns the schema the Archiver was built with.
func (a *Archiver) Schema() *types.Schema { return a.schema }

// now returns the clock reading in UTC, truncated to microseconds so a
// stamp survives a round trip through every supported driver unchanged.
func (a *Archiver) now() time.Time {
	return a.clock().UTC().Truncate(time.Microsecond)
}

// CallOption adjusts a single operation.
type CallOption func(*callOptions)

type callOptions struct {
	using       string
	keepParents bool
	tx          *sqlx.Tx
}

// Using runs the operation against the named database alias instead of
// the routed one.
func Using(alias string) CallOption {
	return func(o *callOptions) { o.using = alias }
}

// KeepParents leaves rows the root extends through a parent link alone.
func KeepParents() CallOption {
	return func(o *callOptions) { o.keepParents = true }
}

// InTx runs the operation inside tx. The caller commits or rolls back;
// after-* observers are notified once the operation's statements succeed,
// before the caller commits.
func InTx(tx *sqlx.Tx) CallOption {
	return func(o *callOptions) { o.tx = tx }
}

func (a *Archiver) resolve(entity string, opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.using == "" {
		o.using = a.route(entity)
	}
	return o
}

// route picks the alias for entity: the router's choice, else "default",
// else the only registered alias.
func (a *Archiver) route(entity string) string {
	if alias, ok := a.router[entity]; ok {
		return alias
	}
	return types.DefaultDatabaseAlias(a.dbs)
}

func (a *Archiver) notify(ctx context.Context, ev types.Event) {
	for _, o := range a.observers {
		o.Notify(ctx, ev)
	}
}

func newOperationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (a *Archiver) newCollector(ext sqlx.ExtContext) *collector.Collector {
	return collector.New(ext, a.schema, a.logger).WithBatchSize(a.batchSize)
}
