package attic

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/attic/internal/sqlite"
	"github.com/mesh-intelligence/attic/pkg/types"
)

func TestParseView(t *testing.T) {
	tests := []struct {
		in      string
		want    View
		wantErr bool
	}{
		{"", ViewAll, false},
		{"all", ViewAll, false},
		{"non", ViewActive, false},
		{"non-archived", ViewActive, false},
		{"Active", ViewActive, false},
		{"arc", ViewArchived, false},
		{" archived ", ViewArchived, false},
		{"deleted", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseView(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrUnknownView)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewsOnPlainEntity(t *testing.T) {
	f := setup(t)
	f.seedBlog(t)
	ctx := context.Background()

	n, err := f.archiver.Count(ctx, "attachment", ViewActive)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.archiver.Count(ctx, "attachment", ViewArchived)
	assert.ErrorIs(t, err, types.ErrNotArchiveAware)

	_, err = f.archiver.Count(ctx, "ghost", ViewAll)
	assert.ErrorIs(t, err, types.ErrUnknownEntity)

	_, err = f.archiver.Count(ctx, "post", View("recent"))
	assert.ErrorIs(t, err, types.ErrUnknownView)
}

func TestListAndGet(t *testing.T) {
	f := setup(t)
	f.seedBlog(t)
	ctx := context.Background()

	_, err := f.archiver.Archive(ctx, types.NewRef("comment", int64(11)))
	require.NoError(t, err)

	refs, err := f.archiver.List(ctx, "comment", ViewAll)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, int64(10), refs[0].Key)
	assert.Nil(t, refs[0].ArchivedAt)
	assert.Equal(t, int64(11), refs[1].Key)
	require.NotNil(t, refs[1].ArchivedAt)

	archived, err := f.archiver.List(ctx, "comment", ViewArchived)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, int64(11), archived[0].Key)

	empty, err := f.archiver.List(ctx, "reply", ViewArchived)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.archiver.Get(ctx, "comment", int64(99))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestOpenFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := types.Config{
		Databases: map[string]types.DatabaseConfig{
			types.DefaultAlias: {Driver: types.DriverSQLite, DSN: filepath.Join(dir, "attic.db")},
		},
		Schema: blogTypes(),
	}
	a, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	db, err := a.DB(types.DefaultAlias)
	require.NoError(t, err)
	require.NoError(t, sqlite.CreateSchema(context.Background(), db, a.Schema()))
	_, err = db.Exec(`INSERT INTO post (id, title) VALUES (1, 'hello')`)
	require.NoError(t, err)

	_, err = a.Archive(context.Background(), types.NewRef("post", int64(1)))
	require.NoError(t, err)
	n, err := a.Count(context.Background(), "post", ViewArchived)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(types.Config{})
	assert.ErrorIs(t, err, types.ErrNoDatabases)

	_, err = Open(types.Config{
		Databases: map[string]types.DatabaseConfig{
			types.DefaultAlias: {Driver: types.DriverSQLite, DSN: filepath.Join(t.TempDir(), "a.db")},
		},
		Schema: []types.EntityType{{Name: "book", Relations: []types.Relation{
			{Column: "author_id", References: "author", OnDelete: types.Cascade},
		}}},
	})
	assert.ErrorIs(t, err, types.ErrUnknownEntity)
}
