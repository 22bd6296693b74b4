// Package types defines the schema registry, the archive-aware record
// contract, events, configuration, and standard error types for attic.
//
// Entity types are registered statically in a Schema. An entity type is
// archive-aware when it declares an ArchiveField; the collector and the
// cascade rewriter consult that declaration and nothing else.
package types
