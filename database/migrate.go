package database

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// RunSqliteMigrations applies all pending SQL schema migrations to the provided SQLite database.
//
// Migrations are read from the embedded filesystem path "migrations/sqlite".
// If no new migrations are found it returns nil.
//
// Typical usage:
//
//	err := RunSqliteMigrations(db)
//	if err != nil {
//	    log.Fatalf("migration failed: %v", err)
//	}
func RunSqliteMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	return run(sqliteMigrations, "migrations/sqlite", "sqlite3", driver)
}

// RunPostgresMigrations applies all pending SQL schema migrations to the provided Postgres database.
// The sessions table is not part of the postgres schema, sessions for a postgres
// deployment live in memory, redis or badger.
func RunPostgresMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	return run(postgresMigrations, "migrations/postgres", "postgres", driver)
}

func run(fsys embed.FS, path, dbName string, driver database.Driver) error {
	source, err := iofs.New(fsys, path)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
