// Package models provides data model definitions for the adminsync core.
package models

import (
	"encoding/json"
	"time"
)

// QueueItem represents a pending mutating request awaiting delivery.
// Items are stored in insertion order and replayed strictly FIFO by ID.
type QueueItem struct {
	ID             int64           `db:"id" json:"id"`
	Method         string          `db:"method" json:"method"` // POST, PUT, PATCH, DELETE
	URL            string          `db:"url" json:"url"`
	Headers        json.RawMessage `db:"headers" json:"headers,omitempty"` // authorization excluded, added at send time
	Body           json.RawMessage `db:"body" json:"body,omitempty"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key"`
	TS             int64           `db:"ts" json:"ts"` // enqueue time, unix milliseconds
}

// TableName returns the table name for QueueItem.
func (QueueItem) TableName() string {
	return "request_queue"
}

// Time returns the enqueue timestamp as time.Time.
func (q *QueueItem) Time() time.Time {
	return time.UnixMilli(q.TS)
}

// HeaderMap decodes the stored headers into a map. A nil or empty
// Headers column yields an empty, non-nil map.
func (q *QueueItem) HeaderMap() (map[string]string, error) {
	headers := make(map[string]string)
	if len(q.Headers) == 0 {
		return headers, nil
	}
	if err := json.Unmarshal(q.Headers, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}
