// Package store provides the persistent stores the sync core writes
// through: the durable request queue and the dead-letter list. Both
// survive process restarts; neither owns any retry or ordering policy.
package store

import (
	"github.com/evoria/adminsync/internal/db"
	"github.com/evoria/adminsync/internal/errors"
	"github.com/evoria/adminsync/internal/models"
)

// QueueStore persists pending requests. Records are keyed by an
// auto-incrementing id assigned at insert time, which is also the
// replay order.
type QueueStore struct {
	db *db.DB
}

// NewQueueStore creates a QueueStore over the shared handle.
func NewQueueStore(database *db.DB) *QueueStore {
	return &QueueStore{db: database}
}

// Add persists an item and returns its assigned id.
func (s *QueueStore) Add(item *models.QueueItem) (int64, error) {
	conn, err := s.db.Handle()
	if err != nil {
		return 0, err
	}

	res, err := conn.Exec(`
	INSERT INTO request_queue (method, url, headers, body, idempotency_key, ts)
	VALUES (?, ?, ?, ?, ?, ?)`,
		item.Method, item.URL, nullableJSON(item.Headers), nullableJSON(item.Body),
		item.IdempotencyKey, item.TS)
	if err != nil {
		return 0, errors.Wrap(errors.ErrStorageUnavailable, "failed to persist queue item", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(errors.ErrStorageUnavailable, "failed to read assigned id", err)
	}
	item.ID = id
	return id, nil
}

// GetAll returns every queued item in insertion order.
func (s *QueueStore) GetAll() ([]*models.QueueItem, error) {
	conn, err := s.db.Handle()
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(`
	SELECT id, method, url, headers, body, idempotency_key, ts
	FROM request_queue ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to list queue items", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		var headers, body []byte
		if err := rows.Scan(&item.ID, &item.Method, &item.URL, &headers, &body,
			&item.IdempotencyKey, &item.TS); err != nil {
			return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to scan queue item", err)
		}
		item.Headers = headers
		item.Body = body
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "failed to read queue items", err)
	}

	return items, nil
}

// Remove deletes a single item by id.
func (s *QueueStore) Remove(id int64) error {
	conn, err := s.db.Handle()
	if err != nil {
		return err
	}

	res, err := conn.Exec("DELETE FROM request_queue WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, "failed to remove queue item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrItemNotFound, "queue item not found")
	}
	return nil
}

// Clear removes all queued items.
func (s *QueueStore) Clear() error {
	conn, err := s.db.Handle()
	if err != nil {
		return err
	}

	if _, err := conn.Exec("DELETE FROM request_queue"); err != nil {
		return errors.Wrap(errors.ErrStorageUnavailable, "failed to clear queue", err)
	}
	return nil
}

// Count returns the number of queued items.
func (s *QueueStore) Count() (int, error) {
	conn, err := s.db.Handle()
	if err != nil {
		return 0, err
	}

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM request_queue").Scan(&n); err != nil {
		return 0, errors.Wrap(errors.ErrStorageUnavailable, "failed to count queue items", err)
	}
	return n, nil
}

// nullableJSON maps empty JSON columns to NULL instead of "".
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
