// Package realtime maintains the single live push connection to the
// backend and dispatches typed messages to the cache reconciler. The
// connection survives failures through capped exponential backoff and
// carries an application-level heartbeat independent of the transport
// keepalive.
package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evoria/adminsync/internal/auth"
	"github.com/evoria/adminsync/internal/errors"
	"github.com/evoria/adminsync/internal/events"
	"github.com/evoria/adminsync/internal/logging"
	"github.com/evoria/adminsync/internal/models"
	"github.com/evoria/adminsync/internal/uuid"
)

// CloseAuthRejected is the application close code the server uses to
// reject a stale or invalid credential. It is terminal for the
// connection attempt: no reconnect until a fresh credential arrives.
const CloseAuthRejected = 4401

// MessageHandler consumes dispatched push messages. Satisfied by
// *cache.Reconciler.
type MessageHandler interface {
	HandleMessage(msg *models.RealtimeMessage)
}

// Channel owns the websocket connection lifecycle: connect, heartbeat,
// dispatch, reconnect with backoff, and credential rotation.
type Channel struct {
	baseURL string
	creds   auth.CredentialProvider
	handler MessageHandler
	bus     events.Bus
	dialer  *websocket.Dialer

	heartbeatInterval time.Duration
	backoffBase       time.Duration
	backoffCap        time.Duration
	settleDelay       time.Duration

	mu             sync.Mutex
	conn           *websocket.Conn
	writeMu        sync.Mutex
	connected      bool
	attempts       int // consecutive failed attempts, reset on open
	connCount      int // successful opens, diagnostics only
	generation     int // bumped by every Connect, stale reconnects abort
	authRejected   bool
	reconnectTimer *time.Timer
	stopped        bool
	unsubscribe    func()
	wg             sync.WaitGroup
}

// NewChannel creates a channel for the given websocket base URL. The
// current credential is appended as a path segment at dial time.
func NewChannel(baseURL string, creds auth.CredentialProvider, handler MessageHandler, bus events.Bus,
	heartbeatInterval, backoffBase, backoffCap, settleDelay time.Duration) *Channel {
	return &Channel{
		baseURL:           strings.TrimRight(baseURL, "/"),
		creds:             creds,
		handler:           handler,
		bus:               bus,
		dialer:            websocket.DefaultDialer,
		heartbeatInterval: heartbeatInterval,
		backoffBase:       backoffBase,
		backoffCap:        backoffCap,
		settleDelay:       settleDelay,
	}
}

// Start connects (if a credential is present) and watches for
// credential changes, which force a reconnect after a short settle
// delay so login and logout propagate to the push channel.
func (c *Channel) Start() {
	if c.bus != nil {
		c.unsubscribe = c.bus.Subscribe(events.TopicCredentialChanged,
			func(string, map[string]interface{}) {
				time.AfterFunc(c.settleDelay, c.Reconnect)
			})
	}
	c.Connect()
}

// Stop tears the channel down for good.
func (c *Channel) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

// Connect opens the socket. Without a credential the channel stays
// idle. A Connect supersedes any pending reconnect timer and any
// previous socket.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.generation++
	gen := c.generation
	old := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	token := c.creds.Token()
	if token == "" {
		logging.Debug("Realtime channel idle, no credential", nil)
		return
	}

	url := c.baseURL + "/" + token
	conn, _, err := c.dialer.Dial(url, nil)
	if err != nil {
		logging.Warn("Realtime connect failed", map[string]interface{}{
			"error": err.Error(),
		})
		c.scheduleReconnect(gen)
		return
	}

	c.mu.Lock()
	if c.stopped || gen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connected = true
	c.attempts = 0 // reset only on a successful open
	c.connCount++
	c.authRejected = false
	count := c.connCount
	c.mu.Unlock()

	logging.Info("Realtime channel connected", map[string]interface{}{
		"connection": count,
		"client_id":  uuid.New(),
	})

	done := make(chan struct{})
	c.wg.Add(2)
	go c.readLoop(conn, gen, done)
	go c.heartbeatLoop(conn, done)
}

// Reconnect forces a fresh connection with the current credential,
// used after login/logout. A cleared auth rejection gets another
// chance because the credential changed.
func (c *Channel) Reconnect() {
	c.mu.Lock()
	c.authRejected = false
	c.attempts = 0
	c.mu.Unlock()
	c.Connect()
}

// Send writes a message if the socket is currently open; otherwise it
// is a silent no-op, matching the fire-and-forget contract.
func (c *Channel) Send(v interface{}) {
	c.mu.Lock()
	conn := c.conn
	open := c.connected
	c.mu.Unlock()

	if !open || conn == nil {
		logging.Debug("Realtime send dropped, channel not open", nil)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		logging.Warn("Realtime send failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// IsConnected reports whether the socket is currently open.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ConnectionCount returns how many times the channel has successfully
// opened this session. Diagnostics only.
func (c *Channel) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connCount
}

// Attempts returns the current consecutive reconnect attempt counter.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// readLoop parses and dispatches inbound frames until the socket dies,
// then decides whether to reconnect.
func (c *Channel) readLoop(conn *websocket.Conn, gen int, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onClosed(gen, err)
			return
		}

		var msg models.RealtimeMessage
		if jsonErr := json.Unmarshal(data, &msg); jsonErr != nil || msg.Type == "" {
			// One malformed frame is dropped and logged; it does not
			// close the connection.
			logging.ErrorWithCode("Dropping malformed realtime frame",
				string(errors.ErrRealtimeParseFailed), jsonErr, nil)
			continue
		}

		switch msg.Type {
		case models.MessageHeartbeatAck:
			logging.Debug("Heartbeat acknowledged", nil)
		case models.MessageConnectionAck:
			logging.Debug("Realtime connection acknowledged", map[string]interface{}{
				"user_id": msg.UserID,
			})
		default:
			if c.handler != nil {
				c.handler.HandleMessage(&msg)
			}
		}
	}
}

// heartbeatLoop sends an application-level ping on a fixed interval. A
// responding heartbeat-ack confirms liveness beyond the transport's own
// keepalive.
func (c *Channel) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteJSON(models.Ping{Type: "ping"})
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// onClosed handles a dead socket: terminal on auth rejection, backoff
// reconnect otherwise.
func (c *Channel) onClosed(gen int, err error) {
	c.mu.Lock()
	if c.stopped || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	if isAuthRejection(err) {
		c.mu.Lock()
		c.authRejected = true
		c.mu.Unlock()
		logging.ErrorWithCode("Realtime credential rejected, not reconnecting",
			string(errors.ErrRealtimeAuthRejected), err, nil)
		return
	}

	logging.Warn("Realtime channel closed", map[string]interface{}{
		"error": err.Error(),
	})
	c.scheduleReconnect(gen)
}

// scheduleReconnect arms the backoff timer for the next attempt.
func (c *Channel) scheduleReconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.authRejected || gen != c.generation {
		return
	}

	delay := BackoffDelay(c.backoffBase, c.backoffCap, c.attempts)
	c.attempts++

	logging.Info("Realtime reconnect scheduled", map[string]interface{}{
		"attempt":  c.attempts,
		"delay_ms": delay.Milliseconds(),
	})
	c.reconnectTimer = time.AfterFunc(delay, c.Connect)
}

// BackoffDelay returns min(base * 2^attempt, cap).
func BackoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return cap
	}
	delay := base << uint(attempt)
	if delay > cap || delay <= 0 {
		return cap
	}
	return delay
}

// isAuthRejection reports whether the close error means the server
// rejected the credential.
func isAuthRejection(err error) bool {
	return websocket.IsCloseError(err, CloseAuthRejected, websocket.ClosePolicyViolation)
}
