// Package models provides data model definitions for the adminsync core.
package models

import (
	"encoding/json"
	"time"
)

// DeadLetterItem represents a request whose delivery permanently failed.
// It is terminal: the core never retries it; only an operator can clear it.
type DeadLetterItem struct {
	ID         int64           `db:"id" json:"id"`
	Method     string          `db:"method" json:"method"`
	URL        string          `db:"url" json:"url"`
	Body       json.RawMessage `db:"body" json:"body,omitempty"`
	StatusCode int             `db:"status_code" json:"status_code"` // the HTTP status that caused quarantine
	QueuedAt   int64           `db:"queued_at" json:"queued_at"`     // original enqueue time, unix milliseconds
	FailedAt   int64           `db:"failed_at" json:"failed_at"`     // permanent-failure time, unix milliseconds
}

// TableName returns the table name for DeadLetterItem.
func (DeadLetterItem) TableName() string {
	return "dead_letters"
}

// QueuedTime returns QueuedAt as time.Time.
func (d *DeadLetterItem) QueuedTime() time.Time {
	return time.UnixMilli(d.QueuedAt)
}

// FailedTime returns FailedAt as time.Time.
func (d *DeadLetterItem) FailedTime() time.Time {
	return time.UnixMilli(d.FailedAt)
}
