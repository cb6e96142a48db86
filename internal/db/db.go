// Package db provides database connection management for the durable
// queue storage.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/evoria/adminsync/internal/errors"
)

// handleState tracks the lifecycle of the shared sqlite handle.
type handleState int

const (
	stateClosed handleState = iota
	stateOpening
	stateOpen
)

// DB is the process-wide sqlite handle. It is a singleton by contract:
// every caller shares one open connection, a caller arriving while the
// handle is being opened waits for that open instead of racing a second
// one, and an externally closed handle is lazily reopened by the next
// Handle call.
//
// There is deliberately no in-memory fallback: if sqlite is unavailable,
// operations fail loudly, because a "durable" queue that silently
// degrades to memory loses its one guarantee on restart.
type DB struct {
	mu    sync.Mutex
	state handleState
	conn  *sql.DB
	path  string
}

// New creates a DB for the given data directory. The underlying
// connection is opened lazily by the first Handle call.
func New(dataDir string) *DB {
	return &DB{
		state: stateClosed,
		path:  filepath.Join(dataDir, "adminsync.db"),
	}
}

// Handle returns the open sqlite connection, opening it if necessary.
func (d *DB) Handle() (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateOpen {
		return d.conn, nil
	}

	d.state = stateOpening
	conn, err := open(d.path)
	if err != nil {
		d.state = stateClosed
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to open queue database", err)
	}

	d.state = stateOpen
	d.conn = conn
	return d.conn, nil
}

// Invalidate marks the handle closed so the next Handle call reopens it.
// Called when the underlying connection was closed externally or
// superseded.
func (d *DB) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.state = stateClosed
}

// Close closes the handle. The DB remains usable; Handle reopens.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.conn != nil {
		err = d.conn.Close()
		d.conn = nil
	}
	d.state = stateClosed
	return err
}

// open opens the sqlite file with WAL mode and foreign keys enabled.
func open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}
