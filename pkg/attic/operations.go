package attic

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/attic/internal/collector"
	"github.com/mesh-intelligence/attic/internal/metrics"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// Operation names used in logs and metrics.
const (
	opArchive   = "archive"
	opUnarchive = "unarchive"
	opPurge     = "purge"
)

// Archive stamps rec and every archive-aware row its cascade reaches with
// the current time. Rows of other entity types are deleted, nulled or
// defaulted as their relations dictate. Archiving a record that is already
// archived does nothing.
func (a *Archiver) Archive(ctx context.Context, rec types.Record, opts ...CallOption) (types.Summary, error) {
	started := time.Now()
	e, arch, err := a.archivable(rec)
	if err != nil {
		metrics.Observe(opArchive, entityLabel(rec), metrics.OutcomeInvalid, started)
		return types.Summary{}, err
	}
	if arch.ArchiveStamp() != nil {
		a.logger.Debug("record already archived",
			zap.String("entity", e.Name), zap.Any("key", rec.PrimaryKey()))
		metrics.Observe(opArchive, e.Name, metrics.OutcomeNoop, started)
		return types.NewSummary(), nil
	}

	call := a.resolve(e.Name, opts)
	if err := a.target(e, rec, call); err != nil {
		metrics.Observe(opArchive, e.Name, metrics.OutcomeInvalid, started)
		return types.Summary{}, err
	}
	ev := types.Event{
		Kind:        types.EventBeforeArchive,
		Record:      rec,
		Using:       call.using,
		OperationID: newOperationID(),
		At:          a.now(),
	}
	a.notify(ctx, ev)

	sum, err := a.run(ctx, call, rec, func(p *collector.Plan) {
		a.rewriter.ForArchive(p, ev.At)
	})
	if err != nil {
		a.fail(opArchive, e.Name, ev.OperationID, started, err)
		return types.Summary{}, err
	}

	stamp := ev.At
	arch.SetArchiveStamp(&stamp)

	ev.Kind = types.EventAfterArchive
	ev.Summary = &sum
	a.notify(ctx, ev)
	a.succeed(opArchive, e.Name, ev, started)
	return sum, nil
}

// Unarchive clears the stamp of rec and of every row its cascade reaches
// whose stamp lies within the unarchive window of rec's stamp. Nothing is
// deleted and no relation policy runs.
func (a *Archiver) Unarchive(ctx context.Context, rec types.Record, opts ...CallOption) (types.Summary, error) {
	started := time.Now()
	e, arch, err := a.archivable(rec)
	if err == nil && arch.ArchiveStamp() == nil {
		err = &types.PreconditionError{Entity: e.Name, Key: rec.PrimaryKey(), Err: types.ErrNotArchived}
	}
	if err != nil {
		metrics.Observe(opUnarchive, entityLabel(rec), metrics.OutcomeInvalid, started)
		return types.Summary{}, err
	}

	ref := arch.ArchiveStamp().UTC()
	call := a.resolve(e.Name, opts)
	if err := a.target(e, rec, call); err != nil {
		metrics.Observe(opUnarchive, e.Name, metrics.OutcomeInvalid, started)
		return types.Summary{}, err
	}
	ev := types.Event{
		Kind:        types.EventAfterUnarchive,
		Record:      rec,
		Using:       call.using,
		OperationID: newOperationID(),
		At:          a.now(),
	}

	sum, err := a.run(ctx, call, rec, func(p *collector.Plan) {
		a.rewriter.ForUnarchive(p, ref, ev.At)
	})
	if err != nil {
		a.fail(opUnarchive, e.Name, ev.OperationID, started, err)
		return types.Summary{}, err
	}

	arch.SetArchiveStamp(nil)

	ev.Summary = &sum
	a.notify(ctx, ev)
	a.succeed(opUnarchive, e.Name, ev, started)
	return sum, nil
}

// ForceDelete physically removes rec and runs every relation policy as
// collected, archive-aware or not.
func (a *Archiver) ForceDelete(ctx context.Context, rec types.Record, opts ...CallOption) (types.Summary, error) {
	started := time.Now()
	e, err := a.lookup(rec)
	if err != nil {
		metrics.Observe(opPurge, entityLabel(rec), metrics.OutcomeInvalid, started)
		return types.Summary{}, err
	}

	call := a.resolve(e.Name, opts)
	if err := a.target(e, rec, call); err != nil {
		metrics.Observe(opPurge, e.Name, metrics.OutcomeInvalid, started)
		return types.Summary{}, err
	}
	ev := types.Event{
		Kind:        types.EventAfterPurge,
		Record:      rec,
		Using:       call.using,
		OperationID: newOperationID(),
		At:          a.now(),
	}

	sum, err := a.run(ctx, call, rec, nil)
	if err != nil {
		a.fail(opPurge, e.Name, ev.OperationID, started, err)
		return types.Summary{}, err
	}

	ev.Summary = &sum
	a.notify(ctx, ev)
	a.succeed(opPurge, e.Name, ev, started)
	return sum, nil
}

// lookup checks that rec is persisted and of a registered entity type.
func (a *Archiver) lookup(rec types.Record) (*types.EntityType, error) {
	if rec == nil {
		return nil, &types.PreconditionError{Err: types.ErrNoIdentity}
	}
	if !types.HasIdentity(rec) {
		return nil, &types.PreconditionError{Entity: rec.EntityType(), Err: types.ErrNoIdentity}
	}
	e, ok := a.schema.Entity(rec.EntityType())
	if !ok {
		return nil, &types.PreconditionError{Entity: rec.EntityType(), Key: rec.PrimaryKey(), Err: types.ErrUnknownEntity}
	}
	return e, nil
}

// archivable is lookup plus the checks that rec's entity type is
// archive-aware and that rec carries its archive stamp.
func (a *Archiver) archivable(rec types.Record) (*types.EntityType, types.Archivable, error) {
	e, err := a.lookup(rec)
	if err != nil {
		return nil, nil, err
	}
	arch, ok := rec.(types.Archivable)
	if !ok || !e.IsArchiveAware() {
		return nil, nil, &types.PreconditionError{Entity: e.Name, Key: rec.PrimaryKey(), Err: types.ErrNotArchiveAware}
	}
	return e, arch, nil
}

// target checks that the operation has a database to run on. A caller's
// transaction always qualifies.
func (a *Archiver) target(e *types.EntityType, rec types.Record, call callOptions) error {
	if call.tx != nil {
		return nil
	}
	if _, err := a.db(call.using); err != nil {
		return &types.PreconditionError{Entity: e.Name, Key: rec.PrimaryKey(), Err: err}
	}
	return nil
}

// run collects the plan rooted at rec, lets rewrite adjust it, and
// executes it in the caller's transaction or in one of its own.
func (a *Archiver) run(ctx context.Context, call callOptions, rec types.Record, rewrite func(*collector.Plan)) (types.Summary, error) {
	if call.tx != nil {
		return a.apply(ctx, call.tx, call, rec, rewrite)
	}

	db, err := a.db(call.using)
	if err != nil {
		return types.Summary{}, err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return types.Summary{}, &types.StorageExecutionError{Op: "begin", Err: err}
	}

	sum, err := a.apply(ctx, tx, call, rec, rewrite)
	if err != nil {
		_ = tx.Rollback()
		return types.Summary{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Summary{}, &types.StorageExecutionError{Op: "commit", Err: err}
	}
	return sum, nil
}

func (a *Archiver) apply(ctx context.Context, ext sqlx.ExtContext, call callOptions, rec types.Record, rewrite func(*collector.Plan)) (types.Summary, error) {
	c := a.newCollector(ext)
	plan, err := c.Collect(ctx, []types.Record{rec}, call.keepParents)
	if err != nil {
		return types.Summary{}, err
	}
	if rewrite != nil {
		rewrite(plan)
	}
	return c.Execute(ctx, plan)
}

func (a *Archiver) db(alias string) (*sqlx.DB, error) {
	db, ok := a.dbs[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrNoDatabase, alias)
	}
	return db, nil
}

func (a *Archiver) succeed(op, entity string, ev types.Event, started time.Time) {
	a.logger.Info(op+" complete",
		zap.String("entity", entity),
		zap.Any("key", ev.Record.PrimaryKey()),
		zap.String("using", ev.Using),
		zap.String("operation_id", ev.OperationID),
		zap.Int64("rows", ev.Summary.Total()),
		zap.Duration("elapsed", time.Since(started)))
	metrics.ObserveSummary(op, *ev.Summary)
	metrics.Observe(op, entity, metrics.OutcomeOK, started)
}

func (a *Archiver) fail(op, entity, operationID string, started time.Time, err error) {
	a.logger.Error(op+" failed",
		zap.String("entity", entity),
		zap.String("operation_id", operationID),
		zap.Error(err))
	metrics.Observe(op, entity, metrics.OutcomeError, started)
}

func entityLabel(rec types.Record) string {
	if rec == nil {
		return ""
	}
	return rec.EntityType()
}
