package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// The workspace keeps all questboard state under a .questboard directory
// next to the user's files, holding the database and nothing else.
const (
	workspaceDir = ".questboard"
	dbFileName   = "questboard.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .questboard directory if missing and returns
// its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, dbFileName)
}

func dsn(workspace string) string {
	// Foreign keys are enforced on every connection; busy_timeout keeps
	// concurrent CLI and server access from failing fast on a locked file.
	return fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", Path(workspace))
}

// Open ensures the workspace exists and opens its SQLite database.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", dsn(cfg.Workspace))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return conn, nil
}
