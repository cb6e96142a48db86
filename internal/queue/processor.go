package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/evoria/adminsync/internal/auth"
	"github.com/evoria/adminsync/internal/errors"
	"github.com/evoria/adminsync/internal/events"
	"github.com/evoria/adminsync/internal/logging"
	"github.com/evoria/adminsync/internal/models"
	"github.com/evoria/adminsync/internal/store"
)

// StateFn reports the current connection state. Drain is a no-op
// unless it returns online.
type StateFn func() models.ConnectionState

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Replayed     int
	DeadLettered int
	Remaining    int
}

// Processor drains the queue sequentially against the live network.
// One item at a time, in insertion order: the serialization is what
// gives the FIFO guarantee and keeps a replay burst from hammering the
// backend.
type Processor struct {
	store       *store.QueueStore
	deadLetters *store.DeadLetterStore
	creds       auth.CredentialProvider
	bus         events.Bus
	client      *http.Client
	state       StateFn

	drainPause  time.Duration
	sendTimeout time.Duration

	mu       sync.Mutex
	draining bool
}

// NewProcessor creates a drain processor. state may be nil, in which
// case drains are never gated (tests, manual triggers).
func NewProcessor(qs *store.QueueStore, dls *store.DeadLetterStore, creds auth.CredentialProvider,
	bus events.Bus, state StateFn, drainPause, sendTimeout time.Duration) *Processor {
	return &Processor{
		store:       qs,
		deadLetters: dls,
		creds:       creds,
		bus:         bus,
		client:      &http.Client{},
		state:       state,
		drainPause:  drainPause,
		sendTimeout: sendTimeout,
	}
}

// SetState installs the connection-state gate after construction, which
// breaks the monitor/processor wiring cycle.
func (p *Processor) SetState(state StateFn) {
	p.state = state
}

// Drain replays queued items in insertion order, one at a time.
//
// Per item: success removes it; a 4xx quarantines it to the dead-letter
// store and continues; a 5xx or network failure leaves it in place and
// aborts the remaining pass entirely. The abort is deliberate: skipping
// a failed item and continuing would reorder delivery, and the next
// online transition retries the whole remaining batch from the top.
//
// Delivery is at-least-once. A crash between a successful send and the
// removal replays the same descriptor again; downstream endpoints see
// the item's idempotency key on every attempt.
func (p *Processor) Drain(ctx context.Context) (*DrainResult, error) {
	if p.state != nil && p.state() != models.StateOnline {
		logging.Debug("Drain skipped, not online", nil)
		return &DrainResult{}, nil
	}

	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return &DrainResult{}, nil
	}
	p.draining = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.draining = false
		p.mu.Unlock()
	}()

	items, err := p.store.GetAll()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &DrainResult{}, nil
	}

	logging.Info("Draining request queue", map[string]interface{}{"pending": len(items)})

	result := &DrainResult{Remaining: len(items)}
	for _, item := range items {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		status, err := p.send(ctx, item)
		switch {
		case err != nil:
			// Thrown network failure: transient, keep the item and stop.
			logging.Warn("Replay failed, aborting drain pass", map[string]interface{}{
				"id":    item.ID,
				"url":   item.URL,
				"error": err.Error(),
			})
			return result, errors.Wrap(errors.ErrSendTransient, "queue replay failed", err)

		case status >= 200 && status < 300:
			if err := p.store.Remove(item.ID); err != nil {
				return result, err
			}
			result.Replayed++
			result.Remaining--
			p.notifyChanged()

			// Brief pause between items so a burst replay does not
			// overwhelm the backend.
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(p.drainPause):
			}

		case status >= 400 && status < 500:
			// Permanently unsendable as written: quarantine and move on.
			if err := p.quarantine(item, status); err != nil {
				return result, err
			}
			result.DeadLettered++
			result.Remaining--
			p.notifyChanged()

		default:
			// 5xx: transient server-side failure. Leave the item and
			// abort so ordering is preserved for the next pass.
			logging.Warn("Server error during replay, aborting drain pass", map[string]interface{}{
				"id":     item.ID,
				"url":    item.URL,
				"status": status,
			})
			return result, errors.New(errors.ErrSendTransient,
				fmt.Sprintf("server returned %d", status))
		}
	}

	logging.Info("Drain pass completed", map[string]interface{}{
		"replayed":      result.Replayed,
		"dead_lettered": result.DeadLettered,
	})
	return result, nil
}

// send builds and performs the outgoing request. The credential is
// re-read here, not at enqueue time, so a queued item always uses the
// current token.
func (p *Processor) send(ctx context.Context, item *models.QueueItem) (int, error) {
	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	var body io.Reader
	if len(item.Body) > 0 {
		body = bytes.NewReader(item.Body)
	}

	req, err := http.NewRequestWithContext(sendCtx, item.Method, item.URL, body)
	if err != nil {
		return 0, err
	}

	headers, err := item.HeaderMap()
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(item.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if item.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", item.IdempotencyKey)
	}
	if token := p.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return resp.StatusCode, nil
}

// quarantine moves an item to the dead-letter store with its provenance
// and announces the permanent failure.
func (p *Processor) quarantine(item *models.QueueItem, status int) error {
	dead := &models.DeadLetterItem{
		Method:     item.Method,
		URL:        item.URL,
		Body:       item.Body,
		StatusCode: status,
		QueuedAt:   item.TS,
		FailedAt:   time.Now().UnixMilli(),
	}
	if err := p.deadLetters.Add(dead); err != nil {
		return err
	}
	if err := p.store.Remove(item.ID); err != nil {
		return err
	}

	logging.Warn("Request moved to dead letters", map[string]interface{}{
		"method": item.Method,
		"url":    item.URL,
		"status": status,
	})
	if p.bus != nil {
		p.bus.Publish(events.TopicQueueItemFailed, map[string]interface{}{
			"method":      item.Method,
			"url":         item.URL,
			"status_code": status,
			"queued_at":   item.TS,
		})
	}
	return nil
}

// notifyChanged mirrors Manager.notifyChanged for drain-side mutations.
func (p *Processor) notifyChanged() {
	if p.bus == nil {
		return
	}
	pending, err := p.store.Count()
	if err != nil {
		pending = -1
	}
	p.bus.Publish(events.TopicQueueChanged, map[string]interface{}{
		"pending": pending,
	})
}
