// Package testutil holds helpers shared by package tests.
package testutil

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Ryan-Har/authgate/database"
	_ "github.com/mattn/go-sqlite3"
)

// NoopLogger returns a logger that discards everything.
func NoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewSqliteDB opens a migrated sqlite database in a per-test temp directory.
// A single connection is used so concurrent writers queue instead of failing with SQLITE_BUSY.
func NewSqliteDB(t testing.TB) *sql.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.RunSqliteMigrations(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
