package types

import (
	"fmt"
	"sort"
)

// OnDelete is the policy applied to a dependent row when the row it
// references is removed.
type OnDelete string

// On-delete policies recognized by the collector.
const (
	Cascade    OnDelete = "cascade"
	SetNull    OnDelete = "set_null"
	SetDefault OnDelete = "set_default"
	Restrict   OnDelete = "restrict"
	DoNothing  OnDelete = "do_nothing"
)

// DefaultPrimaryKey and DefaultKeyType apply when an EntityType leaves
// PrimaryKey or KeyType empty.
const (
	DefaultPrimaryKey = "id"
	DefaultKeyType    = "INTEGER"
)

// Relation is a foreign key held by a dependent entity type.
type Relation struct {
	Column     string   `mapstructure:"column" yaml:"column" validate:"required,identifier"`
	References string   `mapstructure:"references" yaml:"references" validate:"required,identifier"`
	OnDelete   OnDelete `mapstructure:"on_delete" yaml:"on_delete" validate:"required,oneof=cascade set_null set_default restrict do_nothing"`

	// Default is written to Column by the set_default policy.
	Default any `mapstructure:"default" yaml:"default,omitempty"`

	// ParentLink marks the dependent row as an extension of the referenced
	// row. Collecting a dependent also collects its parent row unless the
	// caller asks to keep parents.
	ParentLink bool `mapstructure:"parent_link" yaml:"parent_link,omitempty"`
}

// Column is an additional column used when generating DDL.
type Column struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required,identifier"`
	Type string `mapstructure:"type" yaml:"type" validate:"required"`
}

// EntityType describes one table of the relational model.
type EntityType struct {
	Name         string     `mapstructure:"name" yaml:"name" validate:"required,identifier"`
	PrimaryKey   string     `mapstructure:"primary_key" yaml:"primary_key,omitempty" validate:"omitempty,identifier"`
	KeyType      string     `mapstructure:"key_type" yaml:"key_type,omitempty"`
	ArchiveField string     `mapstructure:"archive_field" yaml:"archive_field,omitempty" validate:"omitempty,identifier"`
	Columns      []Column   `mapstructure:"columns" yaml:"columns,omitempty" validate:"dive"`
	Relations    []Relation `mapstructure:"relations" yaml:"relations,omitempty" validate:"dive"`
}

// IsArchiveAware reports whether rows of this type are archived instead of
// deleted.
func (e *EntityType) IsArchiveAware() bool {
	return e.ArchiveField != ""
}

// Key returns the primary key column.
func (e *EntityType) Key() string {
	if e.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return e.PrimaryKey
}

// KeySQLType returns the SQL type of the primary key column.
func (e *EntityType) KeySQLType() string {
	if e.KeyType == "" {
		return DefaultKeyType
	}
	return e.KeyType
}

// ParentLinks returns the relations that point at rows this type extends.
func (e *EntityType) ParentLinks() []Relation {
	var links []Relation
	for _, r := range e.Relations {
		if r.ParentLink {
			links = append(links, r)
		}
	}
	return links
}

// Dependent is an incoming edge: Entity holds Relation, which references
// the entity the edge was looked up for.
type Dependent struct {
	Entity   *EntityType
	Relation Relation
}

// Schema is the static registry of entity types. A Schema is built once at
// startup and is read-only afterwards, so it may be shared between
// goroutines.
type Schema struct {
	entities   map[string]*EntityType
	order      []string
	dependents map[string][]Dependent
}

// NewSchema registers defs in order and checks that every relation resolves.
func NewSchema(defs ...EntityType) (*Schema, error) {
	s := &Schema{
		entities:   make(map[string]*EntityType),
		dependents: make(map[string][]Dependent),
	}
	for _, def := range defs {
		if err := s.Register(def); err != nil {
			return nil, err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. Intended for package-level
// schema declarations and tests.
func MustSchema(defs ...EntityType) *Schema {
	s, err := NewSchema(defs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Register adds an entity type. Relations may reference types that are
// registered later; call Validate once registration is complete.
func (s *Schema) Register(def EntityType) error {
	if s.entities == nil {
		s.entities = make(map[string]*EntityType)
		s.dependents = make(map[string][]Dependent)
	}
	if err := validate.Struct(def); err != nil {
		return fmt.Errorf("%w: entity %q: %s", ErrInvalidSchema, def.Name, err)
	}
	if _, exists := s.entities[def.Name]; exists {
		return fmt.Errorf("%w: entity %q", ErrDuplicateEntity, def.Name)
	}

	e := def
	e.Columns = append([]Column(nil), def.Columns...)
	e.Relations = append([]Relation(nil), def.Relations...)
	s.entities[e.Name] = &e
	s.order = append(s.order, e.Name)
	for _, r := range e.Relations {
		s.dependents[r.References] = append(s.dependents[r.References], Dependent{Entity: &e, Relation: r})
	}
	return nil
}

// Validate checks that every relation references a registered entity and
// that the archive field does not collide with the primary key.
func (s *Schema) Validate() error {
	for _, name := range s.order {
		e := s.entities[name]
		if e.ArchiveField != "" && e.ArchiveField == e.Key() {
			return fmt.Errorf("%w: entity %q archives into its primary key", ErrInvalidSchema, name)
		}
		for _, r := range e.Relations {
			if _, ok := s.entities[r.References]; !ok {
				return fmt.Errorf("%w: %s.%s references %q", ErrUnknownEntity, name, r.Column, r.References)
			}
			if r.ParentLink && r.OnDelete != Cascade {
				return fmt.Errorf("%w: parent link %s.%s must cascade", ErrInvalidSchema, name, r.Column)
			}
		}
	}
	return nil
}

// Entity returns the registered entity type with the given name.
func (s *Schema) Entity(name string) (*EntityType, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// Entities returns all entity types in registration order.
func (s *Schema) Entities() []*EntityType {
	out := make([]*EntityType, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entities[name])
	}
	return out
}

// Dependents returns the edges whose relation references name, ordered by
// dependent entity name and column for deterministic traversal.
func (s *Schema) Dependents(name string) []Dependent {
	deps := append([]Dependent(nil), s.dependents[name]...)
	sort.SliceStable(deps, func(i, j int) bool {
		if deps[i].Entity.Name != deps[j].Entity.Name {
			return deps[i].Entity.Name < deps[j].Entity.Name
		}
		return deps[i].Relation.Column < deps[j].Relation.Column
	})
	return deps
}

// HasActiveDependents reports whether any relation referencing name carries
// a policy other than do_nothing.
func (s *Schema) HasActiveDependents(name string) bool {
	for _, d := range s.dependents[name] {
		if d.Relation.OnDelete != DoNothing {
			return true
		}
	}
	return false
}
