package store

import (
	"github.com/evoria/adminsync/internal/db"
	"github.com/evoria/adminsync/internal/errors"
	"github.com/evoria/adminsync/internal/models"
)

// DeadLetterStore persists requests that failed permanently. Its
// lifecycle is independent from the live queue: entries are only ever
// added by the processor and removed by explicit operator action.
type DeadLetterStore struct {
	db *db.DB
}

// NewDeadLetterStore creates a DeadLetterStore over the shared handle.
func NewDeadLetterStore(database *db.DB) *DeadLetterStore {
	return &DeadLetterStore{db: database}
}

// Add quarantines a failed request with its provenance.
func (s *DeadLetterStore) Add(item *models.DeadLetterItem) error {
	conn, err := s.db.Handle()
	if err != nil {
		return err
	}

	res, err := conn.Exec(`
	INSERT INTO dead_letters (method, url, body, status_code, queued_at, failed_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		item.Method, item.URL, nullableJSON(item.Body),
		item.StatusCode, item.QueuedAt, item.FailedAt)
	if err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, "failed to persist dead letter", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		item.ID = id
	}
	return nil
}

// GetAll returns every dead letter, oldest first.
func (s *DeadLetterStore) GetAll() ([]*models.DeadLetterItem, error) {
	conn, err := s.db.Handle()
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(`
	SELECT id, method, url, body, status_code, queued_at, failed_at
	FROM dead_letters ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to list dead letters", err)
	}
	defer rows.Close()

	var items []*models.DeadLetterItem
	for rows.Next() {
		var item models.DeadLetterItem
		var body []byte
		if err := rows.Scan(&item.ID, &item.Method, &item.URL, &body,
			&item.StatusCode, &item.QueuedAt, &item.FailedAt); err != nil {
			return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to scan dead letter", err)
		}
		item.Body = body
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to read dead letters", err)
	}

	return items, nil
}

// Clear discards all dead letters. Operator action only.
func (s *DeadLetterStore) Clear() error {
	conn, err := s.db.Handle()
	if err != nil {
		return err
	}

	if _, err := conn.Exec("DELETE FROM dead_letters"); err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, "failed to clear dead letters", err)
	}
	return nil
}

// Count returns the number of dead letters.
func (s *DeadLetterStore) Count() (int, error) {
	conn, err := s.db.Handle()
	if err != nil {
		return 0, err
	}

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM dead_letters").Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrStorageUnavailable, "failed to count dead letters", err)
	}
	return n, nil
}
