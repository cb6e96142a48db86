// Package queue implements the durable request queue: deferred mutating
// requests are persisted across restarts, replayed strictly in order,
// and quarantined when they can never succeed as written.
package queue

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/evoria/adminsync/internal/errors"
	"github.com/evoria/adminsync/internal/events"
	"github.com/evoria/adminsync/internal/logging"
	"github.com/evoria/adminsync/internal/models"
	"github.com/evoria/adminsync/internal/store"
	"github.com/evoria/adminsync/internal/uuid"
)

// RequestDescriptor describes a mutating request to defer. Headers must
// not include authorization; the current credential is attached at send
// time so a queued item always replays with a live token.
type RequestDescriptor struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    json.RawMessage
}

// Manager wraps the durable store with duplicate suppression and
// change notifications.
type Manager struct {
	store       *store.QueueStore
	bus         events.Bus
	dedupWindow time.Duration

	// now is swapped in tests to control the dedup window.
	now func() time.Time
}

// NewManager creates a queue manager. dedupWindow is the span within
// which structurally identical requests are silently dropped.
func NewManager(qs *store.QueueStore, bus events.Bus, dedupWindow time.Duration) *Manager {
	return &Manager{
		store:       qs,
		bus:         bus,
		dedupWindow: dedupWindow,
		now:         time.Now,
	}
}

// Enqueue persists a request for later delivery. A descriptor matching
// the method, url, and body of an entry enqueued within the dedup
// window is a duplicate and is skipped silently: rapid double-submits
// from repeated user actions must not produce two writes.
func (m *Manager) Enqueue(desc RequestDescriptor) error {
	if !isMutating(desc.Method) {
		return errors.New(errors.ErrInvalid, "only mutating methods can be queued")
	}

	existing, err := m.store.GetAll()
	if err != nil {
		return err
	}

	now := m.now()
	for _, item := range existing {
		if m.isDuplicate(item, desc, now) {
			logging.Debug("Duplicate request suppressed", map[string]interface{}{
				"method": desc.Method,
				"url":    desc.URL,
			})
			return nil
		}
	}

	headers, err := encodeHeaders(desc.Headers)
	if err != nil {
		return errors.Wrap(errors.ErrInvalid, "failed to encode headers", err)
	}

	item := &models.QueueItem{
		Method:         desc.Method,
		URL:            desc.URL,
		Headers:        headers,
		Body:           desc.Body,
		IdempotencyKey: uuid.New(),
		TS:             now.UnixMilli(),
	}

	if _, err := m.store.Add(item); err != nil {
		return err
	}

	logging.Info("Request queued", map[string]interface{}{
		"id":     item.ID,
		"method": item.Method,
		"url":    item.URL,
	})
	m.notifyChanged()
	return nil
}

// List returns all queued items in replay order.
func (m *Manager) List() ([]*models.QueueItem, error) {
	return m.store.GetAll()
}

// RemoveItem deletes a single queued item.
func (m *Manager) RemoveItem(id int64) error {
	if err := m.store.Remove(id); err != nil {
		return err
	}
	m.notifyChanged()
	return nil
}

// ClearAll discards every queued item.
func (m *Manager) ClearAll() error {
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.notifyChanged()
	return nil
}

// Pending returns the number of queued items.
func (m *Manager) Pending() (int, error) {
	return m.store.Count()
}

// isDuplicate reports whether item matches desc within the dedup window.
func (m *Manager) isDuplicate(item *models.QueueItem, desc RequestDescriptor, now time.Time) bool {
	if item.Method != desc.Method || item.URL != desc.URL {
		return false
	}
	if now.Sub(item.Time()) > m.dedupWindow {
		return false
	}
	return jsonEqual(item.Body, desc.Body)
}

// notifyChanged publishes the queue-changed signal; observers (a UI
// badge, the daemon log) pick it up, the core does not wait for them.
func (m *Manager) notifyChanged() {
	if m.bus == nil {
		return
	}
	pending, err := m.store.Count()
	if err != nil {
		pending = -1
	}
	m.bus.Publish(events.TopicQueueChanged, map[string]interface{}{
		"pending": pending,
	})
}

// jsonEqual compares two JSON payloads structurally, so key order and
// whitespace differences do not defeat dedup.
func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	var va, vb interface{}
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// encodeHeaders serializes headers, dropping authorization: credentials
// are never persisted with the item.
func encodeHeaders(headers map[string]string) (json.RawMessage, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	clean := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "Authorization") {
			continue
		}
		clean[k] = v
	}
	if len(clean) == 0 {
		return nil, nil
	}
	return json.Marshal(clean)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
