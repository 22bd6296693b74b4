// Package integration runs the attic binary end to end against throwaway
// sqlite databases.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/mesh-intelligence/attic/internal/database"
	"github.com/mesh-intelligence/attic/pkg/types"
)

var (
	// atticBin is the path to the built attic binary.
	atticBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot finds the project root by walking up and looking for go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// SetAtticBin sets the path to the attic binary (called from TestMain).
func SetAtticBin(path string) {
	atticBin = path
}

// SetBuildErr sets the build error (called from TestMain).
func SetBuildErr(err error) {
	buildErr = err
}

// TestEnv provides an isolated test environment with its own config
// directory, data directory and sqlite database.
type TestEnv struct {
	t       *testing.T
	TempDir string
	Config  string
	DataDir string
	DBPath  string
}

// NewTestEnv creates a new isolated test environment whose config.yaml
// declares schema (a YAML list of entity types).
func NewTestEnv(t *testing.T, schema string) *TestEnv {
	t.Helper()

	if buildErr != nil {
		t.Fatalf("failed to build attic: %v", buildErr)
	}
	if atticBin == "" {
		t.Fatal("attic binary not built (atticBin is empty)")
	}

	tempDir := t.TempDir()
	env := &TestEnv{
		t:       t,
		TempDir: tempDir,
		Config:  filepath.Join(tempDir, "config"),
		DataDir: filepath.Join(tempDir, "data"),
	}
	env.DBPath = filepath.Join(env.DataDir, "attic.db")

	if err := os.MkdirAll(env.Config, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	content := fmt.Sprintf("log:\n  level: error\ndatabases:\n  default:\n    driver: sqlite\n    dsn: %s\nschema:\n%s", env.DBPath, schema)
	if err := os.WriteFile(filepath.Join(env.Config, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return env
}

// CmdResult holds the result of an attic command execution.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunAttic executes the attic CLI with the given arguments.
func (e *TestEnv) RunAttic(args ...string) CmdResult {
	e.t.Helper()

	allArgs := append([]string{"--config-dir", e.Config, "--data-dir", e.DataDir}, args...)
	cmd := exec.Command(atticBin, allArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			e.t.Fatalf("failed to run attic: %v", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRunAttic executes the attic CLI and fails the test if it returns non-zero.
func (e *TestEnv) MustRunAttic(args ...string) CmdResult {
	e.t.Helper()
	result := e.RunAttic(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("attic %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, result.ExitCode, result.Stdout, result.Stderr)
	}
	return result
}

// Exec runs SQL statements against the environment's database.
func (e *TestEnv) Exec(stmts ...string) {
	e.t.Helper()
	db, err := database.Open(types.DatabaseConfig{DSN: e.DBPath})
	if err != nil {
		e.t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			e.t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

// Count runs a COUNT query against the environment's database.
func (e *TestEnv) Count(query string) int {
	e.t.Helper()
	db, err := database.Open(types.DatabaseConfig{DSN: e.DBPath})
	if err != nil {
		e.t.Fatalf("open database: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.Get(&n, query); err != nil {
		e.t.Fatalf("query %q: %v", query, err)
	}
	return n
}

// ParseJSON parses JSON output into the target type.
func ParseJSON[T any](t *testing.T, jsonStr string) T {
	t.Helper()
	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", jsonStr, err)
	}
	return result
}

// Summary mirrors the JSON printed by archive, unarchive and purge.
type Summary struct {
	Operation  string           `json:"operation"`
	Entity     string           `json:"entity"`
	Key        any              `json:"key"`
	ArchivedAt *string          `json:"archived_at"`
	Deleted    map[string]int64 `json:"deleted"`
	Updated    map[string]int64 `json:"updated"`
}

// Row mirrors one element of list --json output.
type Row struct {
	Entity     string  `json:"entity"`
	Key        any     `json:"key"`
	ArchivedAt *string `json:"archived_at"`
}
