package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/attic/internal/database"
	"github.com/mesh-intelligence/attic/internal/paths"
	"github.com/mesh-intelligence/attic/pkg/types"
)

const blogConfig = `log:
  level: error
databases:
  default:
    driver: sqlite
    dsn: %s
unarchive_window: 90s
schema:
  - name: post
    archive_field: archived_at
    columns:
      - name: title
        type: TEXT
  - name: comment
    archive_field: archived_at
    relations:
      - column: post_id
        references: post
        on_delete: cascade
`

type env struct {
	configDir string
	dataDir   string
	dbPath    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		configDir: filepath.Join(dir, "config"),
		dataDir:   filepath.Join(dir, "data"),
	}
	e.dbPath = paths.DatabaseFile(e.dataDir)
	return e
}

func (e *env) writeConfig(t *testing.T) {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.configDir, 0o755))
	cfg := fmt.Sprintf(blogConfig, e.dbPath)
	require.NoError(t, os.WriteFile(paths.ConfigFile(e.configDir), []byte(cfg), 0o644))
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *env) exec(t *testing.T, stmts ...string) {
	t.Helper()
	db, err := database.Open(types.DatabaseConfig{DSN: e.dbPath})
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func (e *env) count(t *testing.T, query string) int {
	t.Helper()
	db, err := database.Open(types.DatabaseConfig{DSN: e.dbPath})
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.Get(&n, query))
	return n
}

func TestVersion(t *testing.T) {
	out, err := newEnv(t).run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "attic v")
	assert.Contains(t, out, modulePath)
}

func TestInitWritesDefaultConfig(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "attic initialized")

	data, err := os.ReadFile(paths.ConfigFile(e.configDir))
	require.NoError(t, err)
	assert.Contains(t, string(data), "databases:")
	assert.Contains(t, string(data), e.dbPath)
	assert.FileExists(t, e.dbPath)

	// A second init leaves the config alone.
	_, err = e.run(t, "init")
	require.NoError(t, err)
	again, err := os.ReadFile(paths.ConfigFile(e.configDir))
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestArchiveLifecycle(t *testing.T) {
	e := newEnv(t)
	e.writeConfig(t)
	_, err := e.run(t, "init")
	require.NoError(t, err)
	e.exec(t,
		`INSERT INTO post (id, title) VALUES (1, 'hello'), (2, 'world')`,
		`INSERT INTO comment (id, post_id) VALUES (10, 1), (11, 1)`,
	)

	out, err := e.run(t, "archive", "post", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "archive post 1: 3 row(s)")
	assert.Contains(t, out, "updated comment: 2")

	out, err = e.run(t, "list", "comment", "--state", "arc")
	require.NoError(t, err)
	assert.Contains(t, out, "10\t")
	assert.Contains(t, out, "11\t")

	out, err = e.run(t, "list", "post", "--state", "non")
	require.NoError(t, err)
	assert.Equal(t, "2\t-\n", out)

	out, err = e.run(t, "--json", "unarchive", "post", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"operation": "unarchive"`)
	assert.Equal(t, 0, e.count(t, `SELECT COUNT(*) FROM comment WHERE archived_at IS NOT NULL`))

	_, err = e.run(t, "unarchive", "post", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotArchived)
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = e.run(t, "purge", "post", "1")
	require.NoError(t, err)
	assert.Equal(t, 0, e.count(t, `SELECT COUNT(*) FROM comment`))
	assert.Equal(t, 1, e.count(t, `SELECT COUNT(*) FROM post`))
}

func TestCommandErrors(t *testing.T) {
	e := newEnv(t)
	e.writeConfig(t)
	_, err := e.run(t, "init")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown entity", []string{"archive", "ghost", "1"}, types.ErrUnknownEntity},
		{"missing row", []string{"archive", "post", "42"}, types.ErrNotFound},
		{"bad key", []string{"archive", "post", "abc"}, errUsage},
		{"bad state", []string{"list", "post", "--state", "gone"}, types.ErrUnknownView},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.run(t, tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, exitUserError, exitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitSuccess, exitCode(nil))
	assert.Equal(t, exitSysError, exitCode(errors.New("disk full")))
	assert.Equal(t, exitUserError, exitCode(&types.PreconditionError{Entity: "post", Err: types.ErrNoIdentity}))
}
