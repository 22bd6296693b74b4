package types

import (
	"context"
	"time"
)

// EventKind names a notification emitted around an archive operation.
type EventKind string

const (
	EventBeforeArchive  EventKind = "before_archive"
	EventAfterArchive   EventKind = "after_archive"
	EventAfterUnarchive EventKind = "after_unarchive"
	EventAfterPurge     EventKind = "after_purge"
)

// Event is delivered to observers. Summary is nil for EventBeforeArchive.
type Event struct {
	Kind        EventKind
	Record      Record
	Using       string
	OperationID string
	At          time.Time
	Summary     *Summary
}

// Observer receives events synchronously, in registration order, on the
// goroutine that performed the operation.
type Observer interface {
	Notify(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Notify calls f.
func (f ObserverFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }
