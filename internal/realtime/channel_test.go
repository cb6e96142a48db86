package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoria/adminsync/internal/auth"
	"github.com/evoria/adminsync/internal/models"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	cap := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{6, 30 * time.Second},
		{40, 30 * time.Second}, // shift overflow guard
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(base, cap, tt.attempt),
			"attempt %d", tt.attempt)
	}
}

// recordingHandler collects dispatched messages.
type recordingHandler struct {
	mu   sync.Mutex
	msgs []*models.RealtimeMessage
}

func (h *recordingHandler) HandleMessage(msg *models.RealtimeMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *recordingHandler) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = m.Type
	}
	return out
}

// pushServer is a websocket endpoint that hands each upgraded
// connection to a script function.
type pushServer struct {
	*httptest.Server
	mu    sync.Mutex
	paths []string
}

func newPushServer(t *testing.T, script func(conn *websocket.Conn)) *pushServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ps := &pushServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.paths = append(ps.paths, r.URL.Path)
		ps.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		script(conn)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http")
}

func (ps *pushServer) dialedPaths() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]string{}, ps.paths...)
}

// holdOpen keeps a server-side connection alive until the client closes.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newTestChannel(url string, token string, handler MessageHandler) *Channel {
	creds := auth.NewStaticProvider(token, nil)
	return NewChannel(url, creds, handler, nil,
		time.Hour, 10*time.Millisecond, 50*time.Millisecond, time.Millisecond)
}

func TestConnectAppendsCredentialToPath(t *testing.T) {
	srv := newPushServer(t, holdOpen)

	ch := newTestChannel(srv.wsURL(), "secret-token", nil)
	defer ch.Stop()
	ch.Start()

	require.True(t, ch.IsConnected())
	require.Equal(t, []string{"/secret-token"}, srv.dialedPaths())
	assert.Equal(t, 1, ch.ConnectionCount())
}

func TestIdleWithoutCredential(t *testing.T) {
	srv := newPushServer(t, holdOpen)

	ch := newTestChannel(srv.wsURL(), "", nil)
	defer ch.Stop()
	ch.Start()

	assert.False(t, ch.IsConnected())
	assert.Empty(t, srv.dialedPaths(), "no dial without a credential")
}

func TestDispatchesEntityMessages(t *testing.T) {
	srv := newPushServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(models.RealtimeMessage{Type: models.MessageConnectionAck, UserID: "u1"})
		conn.WriteJSON(models.RealtimeMessage{Type: models.MessageHeartbeatAck})
		conn.WriteJSON(models.RealtimeMessage{Type: models.MessageProductUpdated})
		conn.WriteJSON(models.RealtimeMessage{Type: models.MessageOrderCreated})
		holdOpen(conn)
	})

	handler := &recordingHandler{}
	ch := newTestChannel(srv.wsURL(), "tok", handler)
	defer ch.Stop()
	ch.Start()

	// Acks are consumed internally; only entity messages reach the handler.
	require.Eventually(t, func() bool {
		return len(handler.types()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{models.MessageProductUpdated, models.MessageOrderCreated}, handler.types())
}

func TestMalformedFrameDoesNotCloseConnection(t *testing.T) {
	srv := newPushServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`)) // missing type
		conn.WriteJSON(models.RealtimeMessage{Type: models.MessageClientDeleted})
		holdOpen(conn)
	})

	handler := &recordingHandler{}
	ch := newTestChannel(srv.wsURL(), "tok", handler)
	defer ch.Stop()
	ch.Start()

	require.Eventually(t, func() bool {
		return len(handler.types()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{models.MessageClientDeleted}, handler.types())
	assert.True(t, ch.IsConnected(), "bad frames are dropped, not fatal")
	assert.Equal(t, 1, ch.ConnectionCount())
}

func TestReconnectsAfterServerDrop(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	srv := newPushServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()
		if first {
			conn.Close() // abrupt drop, no close handshake
			return
		}
		holdOpen(conn)
	})

	ch := newTestChannel(srv.wsURL(), "tok", nil)
	defer ch.Stop()
	ch.Start()

	require.Eventually(t, func() bool {
		return ch.ConnectionCount() == 2 && ch.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, ch.Attempts(), "attempt counter resets on a successful open")
}

func TestAuthRejectionStopsReconnecting(t *testing.T) {
	srv := newPushServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseAuthRejected, "credential rejected"),
			time.Now().Add(time.Second))
		conn.Close()
	})

	ch := newTestChannel(srv.wsURL(), "expired", nil)
	defer ch.Stop()
	ch.Start()

	require.Eventually(t, func() bool {
		return !ch.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)

	// Backoff here is tens of milliseconds; if the rejection were not
	// terminal the channel would have redialed several times by now.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []string{"/expired"}, srv.dialedPaths())
}

func TestReconnectClearsAuthRejection(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	srv := newPushServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()
		if first {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseAuthRejected, "credential rejected"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}
		holdOpen(conn)
	})

	ch := newTestChannel(srv.wsURL(), "tok", nil)
	defer ch.Stop()
	ch.Start()

	require.Eventually(t, func() bool {
		return !ch.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)

	// A fresh credential gives the channel another chance.
	ch.Reconnect()
	require.Eventually(t, func() bool {
		return ch.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, ch.ConnectionCount())
}

func TestHeartbeatPing(t *testing.T) {
	pings := make(chan models.Ping, 4)
	srv := newPushServer(t, func(conn *websocket.Conn) {
		for {
			var p models.Ping
			if err := conn.ReadJSON(&p); err != nil {
				return
			}
			pings <- p
		}
	})

	creds := auth.NewStaticProvider("tok", nil)
	ch := NewChannel(srv.wsURL(), creds, nil, nil,
		20*time.Millisecond, 10*time.Millisecond, 50*time.Millisecond, time.Millisecond)
	defer ch.Stop()
	ch.Start()

	select {
	case p := <-pings:
		assert.Equal(t, "ping", p.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat ping received")
	}
}

func TestSendWhenClosedIsNoOp(t *testing.T) {
	ch := newTestChannel("ws://127.0.0.1:1", "", nil)
	defer ch.Stop()

	// Must not panic or block.
	ch.Send(models.Ping{Type: "ping"})
	assert.False(t, ch.IsConnected())
}
