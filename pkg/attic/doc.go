// Package attic archives relational records instead of deleting them.
//
// An Archiver collects the rows a cascading delete of a record would
// reach, rewrites that plan so rows of archive-aware entity types are
// stamped with an archive time instead of removed, and executes the result
// in one transaction. Unarchive reverses an archive by clearing stamps that
// lie within a window of the root record's stamp.
//
//	schema := types.MustSchema(
//	    types.EntityType{Name: "author", ArchiveField: "archived_at"},
//	    types.EntityType{Name: "book", ArchiveField: "archived_at", Relations: []types.Relation{
//	        {Column: "author_id", References: "author", OnDelete: types.Cascade},
//	    }},
//	)
//	a := attic.New(schema, db, attic.WithLogger(log))
//	sum, err := a.Archive(ctx, types.NewRef("author", 1))
package attic

// Version is the release version of attic.
const Version = "0.1.0"
