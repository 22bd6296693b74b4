package collector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/attic/internal/database"
	"github.com/mesh-intelligence/attic/internal/sqlite"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// libraryTypes: author <- book (cascade) <- review (cascade, leaf),
// author <- note (set_null), author <- tag (set_default 99).
func libraryTypes() []types.EntityType {
	return []types.EntityType{
		{Name: "author", ArchiveField: "archived_at", Columns: []types.Column{{Name: "name", Type: "TEXT"}}},
		{Name: "book", ArchiveField: "archived_at", Relations: []types.Relation{
			{Column: "author_id", References: "author", OnDelete: types.Cascade},
		}},
		{Name: "review", Relations: []types.Relation{
			{Column: "book_id", References: "book", OnDelete: types.Cascade},
		}},
		{Name: "note", Relations: []types.Relation{
			{Column: "author_id", References: "author", OnDelete: types.SetNull},
		}},
		{Name: "tag", Relations: []types.Relation{
			{Column: "author_id", References: "author", OnDelete: types.SetDefault, Default: 99},
		}},
	}
}

func setupDB(t *testing.T, schema *types.Schema) *sqlx.DB {
	t.Helper()
	db, err := database.Open(types.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "attic.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.CreateSchema(context.Background(), db, schema))
	return db
}

func seedLibrary(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, stmt := range []string{
		`INSERT INTO author (id, name) VALUES (1, 'ursula'), (2, 'iain'), (99, 'anonymous')`,
		`INSERT INTO book (id, author_id) VALUES (10, 1), (11, 1), (20, 2)`,
		`INSERT INTO review (id, book_id) VALUES (100, 10), (101, 10), (102, 11), (200, 20)`,
		`INSERT INTO note (id, author_id) VALUES (1000, 1), (2000, 2)`,
		`INSERT INTO tag (id, author_id) VALUES (5000, 1)`,
	} {
		db.MustExec(stmt)
	}
}

func count(t *testing.T, db *sqlx.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, query, args...))
	return n
}

func TestCollectCascade(t *testing.T) {
	schema := types.MustSchema(libraryTypes()...)
	db := setupDB(t, schema)
	seedLibrary(t, db)

	plan, err := New(db, schema, nil).Collect(context.Background(), []types.Record{types.NewRef("author", 1)}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"book", "author"}, names(plan.Entities()))
	assert.Equal(t, []any{int64(10), int64(11)}, keysOf(plan.Instances("book")))
	assert.Equal(t, []any{int64(1)}, keysOf(plan.Instances("author")))

	require.Len(t, plan.FastDeletes, 1)
	assert.Equal(t, "review", plan.FastDeletes[0].Entity.Name)

	require.Len(t, plan.FieldUpdates, 2)
	byEntity := map[string]FieldUpdate{}
	for _, fu := range plan.FieldUpdates {
		byEntity[fu.Entity.Name] = fu
	}
	assert.Nil(t, byEntity["note"].Value)
	assert.Equal(t, []any{int64(1000)}, byEntity["note"].Keys())
	assert.Equal(t, 99, byEntity["tag"].Value)
	assert.Equal(t, []any{int64(5000)}, byEntity["tag"].Keys())
}

func TestCollectLoadsArchiveStamps(t *testing.T) {
	schema := types.MustSchema(libraryTypes()...)
	db := setupDB(t, schema)
	seedLibrary(t, db)

	stamped := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	db.MustExec(`UPDATE book SET archived_at = ? WHERE id = 11`, stamped)

	plan, err := New(db, schema, nil).Collect(context.Background(), []types.Record{types.NewRef("author", 1)}, false)
	require.NoError(t, err)

	books := plan.Instances("book")
	require.Len(t, books, 2)
	assert.Nil(t, books[0].ArchivedAt)
	require.NotNil(t, books[1].ArchivedAt)
	assert.True(t, stamped.Equal(*books[1].ArchivedAt))
}

func TestExecuteDeletesInOrder(t *testing.T) {
	schema := types.MustSchema(libraryTypes()...)
	db := setupDB(t, schema)
	seedLibrary(t, db)
	ctx := context.Background()

	tx, err := db.Beginx()
	require.NoError(t, err)
	c := New(tx, schema, nil)
	plan, err := c.Collect(ctx, []types.Record{types.NewRef("author", 1)}, false)
	require.NoError(t, err)
	sum, err := c.Execute(ctx, plan)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, map[string]int64{"review": 3, "book": 2, "author": 1}, sum.Deleted)
	assert.Equal(t, map[string]int64{"note": 1, "tag": 1}, sum.Updated)
	assert.EqualValues(t, 8, sum.Total())

	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM author`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM book`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM review`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM note WHERE id = 1000 AND author_id IS NULL`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM tag WHERE author_id = 99`))
}

func TestExecuteCountsOnlyTouchedEntities(t *testing.T) {
	schema := types.MustSchema(libraryTypes()...)
	db := setupDB(t, schema)
	seedLibrary(t, db)
	ctx := context.Background()
	c := New(db, schema, nil)

	plan, err := c.Collect(ctx, []types.Record{types.NewRef("author", 99)}, false)
	require.NoError(t, err)
	sum, err := c.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"author": 1}, sum.Deleted)
	assert.Empty(t, sum.Updated)

	review, _ := schema.Entity("review")
	plan = NewPlan()
	plan.AddFastDelete(NewQuery(review).In("book_id", []any{int64(999)}))
	sum, err = c.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Empty(t, sum.Deleted)
	assert.Zero(t, sum.Total())

	sum, err = c.Execute(ctx, NewPlan())
	require.NoError(t, err)
	assert.Zero(t, sum.Total())
}

func TestExecuteBatchesKeys(t *testing.T) {
	schema := types.MustSchema(libraryTypes()...)
	db := setupDB(t, schema)
	seedLibrary(t, db)
	ctx := context.Background()

	c := New(db, schema, nil).WithBatchSize(1)
	plan, err := c.Collect(ctx, []types.Record{types.NewRef("author", 1)}, false)
	require.NoError(t, err)
	assert.Len(t, plan.FastDeletes, 2)

	sum, err := c.Execute(ctx, plan)
	require.NoError(t, err)
	assert.EqualValues(t, 3, sum.Deleted["review"])
	assert.EqualValues(t, 2, sum.Deleted["book"])
}

func TestCollectRestrict(t *testing.T) {
	schema := types.MustSchema(
		types.EntityType{Name: "shelf"},
		types.EntityType{Name: "loan", Relations: []types.Relation{
			{Column: "shelf_id", References: "shelf", OnDelete: types.Restrict},
		}},
	)
	db := setupDB(t, schema)
	db.MustExec(`INSERT INTO shelf (id) VALUES (1), (2)`)
	db.MustExec(`INSERT INTO loan (id, shelf_id) VALUES (7, 1)`)

	_, err := New(db, schema, nil).Collect(context.Background(), []types.Record{types.NewRef("shelf", 1)}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRestricted)
	var restricted *types.RestrictedError
	require.True(t, errors.As(err, &restricted))
	assert.Equal(t, "loan", restricted.Entity)
	assert.Equal(t, []any{int64(7)}, restricted.Keys)

	plan, err := New(db, schema, nil).Collect(context.Background(), []types.Record{types.NewRef("shelf", 2)}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"shelf"}, names(plan.Entities()))
}

func TestCollectDoNothingIgnored(t *testing.T) {
	schema := types.MustSchema(
		types.EntityType{Name: "shelf"},
		types.EntityType{Name: "label", Relations: []types.Relation{
			{Column: "shelf_id", References: "shelf", OnDelete: types.DoNothing},
		}},
	)
	db := setupDB(t, schema)
	db.MustExec(`INSERT INTO shelf (id) VALUES (1)`)

	plan, err := New(db, schema, nil).Collect(context.Background(), []types.Record{types.NewRef("shelf", 1)}, false)
	require.NoError(t, err)
	assert.Empty(t, plan.FastDeletes)
	assert.Empty(t, plan.FieldUpdates)
}

func inheritanceSchema() *types.Schema {
	return types.MustSchema(
		types.EntityType{Name: "place", ArchiveField: "archived_at"},
		types.EntityType{Name: "restaurant", PrimaryKey: "place_id", ArchiveField: "archived_at", Relations: []types.Relation{
			{Column: "place_id", References: "place", OnDelete: types.Cascade, ParentLink: true},
		}},
		types.EntityType{Name: "visit", Relations: []types.Relation{
			{Column: "place_id", References: "place", OnDelete: types.Cascade},
		}},
	)
}

func TestCollectParentLinks(t *testing.T) {
	schema := inheritanceSchema()
	db := setupDB(t, schema)
	db.MustExec(`INSERT INTO place (id) VALUES (1)`)
	db.MustExec(`INSERT INTO restaurant (place_id) VALUES (1)`)
	db.MustExec(`INSERT INTO visit (id, place_id) VALUES (3, 1)`)
	root := []types.Record{types.NewRef("restaurant", 1)}

	plan, err := New(db, schema, nil).Collect(context.Background(), root, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"restaurant", "place"}, names(plan.Entities()))
	// The parent's own dependents are not traversed from the child.
	assert.Empty(t, plan.FastDeletes)

	plan, err = New(db, schema, nil).Collect(context.Background(), root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"restaurant"}, names(plan.Entities()))
}

func TestCollectUnknownEntity(t *testing.T) {
	schema := types.MustSchema(libraryTypes()...)
	_, err := New(nil, schema, nil).Collect(context.Background(), []types.Record{types.NewRef("ghost", 1)}, false)
	assert.ErrorIs(t, err, types.ErrUnknownEntity)
}

func TestCollectStorageError(t *testing.T) {
	schema := types.MustSchema(libraryTypes()...)
	db := setupDB(t, schema)
	db.MustExec(`DROP TABLE note`)

	_, err := New(db, schema, nil).Collect(context.Background(), []types.Record{types.NewRef("author", 1)}, false)
	var storageErr *types.StorageExecutionError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "collect", storageErr.Op)
	assert.Equal(t, "note", storageErr.Entity)
}

func TestChunkKeys(t *testing.T) {
	assert.Nil(t, chunkKeys(nil, 2))
	assert.Equal(t, [][]any{{1, 2}, {3}}, chunkKeys([]any{1, 2, 3}, 2))
	assert.Equal(t, [][]any{{1, 2, 3}}, chunkKeys([]any{1, 2, 3}, 0))
}
