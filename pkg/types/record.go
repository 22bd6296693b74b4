package types

import (
	"time"

	"github.com/google/uuid"
)

// Record is a row of a registered entity type.
type Record interface {
	// EntityType returns the registered entity type name.
	EntityType() string

	// PrimaryKey returns the persisted identity, or a zero value for a
	// record that has not been saved.
	PrimaryKey() any
}

// Archivable is a Record of an archive-aware entity type.
type Archivable interface {
	Record

	// ArchiveStamp returns the archive timestamp, nil when active.
	ArchiveStamp() *time.Time

	// SetArchiveStamp replaces the in-memory archive timestamp.
	SetArchiveStamp(t *time.Time)
}

// ArchiveMixin is embedded in structs mapping archive-aware tables. The
// db tag matches the conventional archived_at column; entity types that
// use another column name still work through the Archivable methods.
type ArchiveMixin struct {
	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`
}

// ArchiveStamp implements Archivable.
func (m *ArchiveMixin) ArchiveStamp() *time.Time { return m.ArchivedAt }

// SetArchiveStamp implements Archivable.
func (m *ArchiveMixin) SetArchiveStamp(t *time.Time) { m.ArchivedAt = t }

// IsArchived reports whether the archive timestamp is set.
func (m *ArchiveMixin) IsArchived() bool { return m.ArchivedAt != nil }

// Ref is a generic Archivable addressed by entity name and key. It is what
// Archiver.Get returns and what the CLI operates on.
type Ref struct {
	Entity     string     `json:"entity"`
	Key        any        `json:"key"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// NewRef returns an active Ref.
func NewRef(entity string, key any) *Ref {
	return &Ref{Entity: entity, Key: key}
}

func (r *Ref) EntityType() string           { return r.Entity }
func (r *Ref) PrimaryKey() any              { return r.Key }
func (r *Ref) ArchiveStamp() *time.Time     { return r.ArchivedAt }
func (r *Ref) SetArchiveStamp(t *time.Time) { r.ArchivedAt = t }

// HasIdentity reports whether rec carries a persisted primary key.
func HasIdentity(rec Record) bool {
	if rec == nil {
		return false
	}
	switch k := rec.PrimaryKey().(type) {
	case nil:
		return false
	case string:
		return k != ""
	case []byte:
		return len(k) > 0
	case int:
		return k != 0
	case int32:
		return k != 0
	case int64:
		return k != 0
	case uint:
		return k != 0
	case uint32:
		return k != 0
	case uint64:
		return k != 0
	case uuid.UUID:
		return k != uuid.Nil
	case *int64:
		return k != nil && *k != 0
	case *string:
		return k != nil && *k != ""
	case interface{ IsZero() bool }:
		return !k.IsZero()
	default:
		return true
	}
}
