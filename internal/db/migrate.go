// Package db provides database schema migration management.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/evoria/adminsync/internal/errors"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered schema history. Append only; never edit an
// applied entry.
var migrations = []Migration{
	{
		Version:     1,
		Description: "request queue",
		SQL: `
		CREATE TABLE IF NOT EXISTS request_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			method TEXT NOT NULL CHECK(method IN ('POST','PUT','PATCH','DELETE')),
			url TEXT NOT NULL CHECK(length(url) > 0),
			headers TEXT,
			body TEXT,
			idempotency_key TEXT NOT NULL,
			ts INTEGER NOT NULL CHECK(ts > 0)
		);`,
	},
	{
		Version:     2,
		Description: "dead letters",
		SQL: `
		CREATE TABLE IF NOT EXISTS dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			body TEXT,
			status_code INTEGER NOT NULL,
			queued_at INTEGER NOT NULL,
			failed_at INTEGER NOT NULL
		);`,
	},
}

// Migrate applies all pending migrations to the connection.
func Migrate(conn *sql.DB) error {
	if err := initialize(conn); err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to create schema_migrations", err)
	}

	current, err := currentVersion(conn)
	if err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to read schema version", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return errors.Wrap(errors.ErrMigration,
				fmt.Sprintf("migration %d (%s) failed", m.Version, m.Description), err)
		}
	}

	return nil
}

// initialize creates the schema_migrations table if it doesn't exist.
func initialize(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0)
	);`
	_, err := conn.Exec(query)
	return err
}

// currentVersion returns the current schema version.
func currentVersion(conn *sql.DB) (int, error) {
	var version int
	err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// apply runs one migration inside a transaction.
func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().Unix(), m.Description,
	); err != nil {
		return err
	}

	return tx.Commit()
}
