// End-to-end tests wiring the full sync core together: durable queue,
// connection monitor, drain processor, cache, and realtime channel
// against live httptest backends.
package integration

import (
	"context"
	"encoding/json"
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
	"github.com/evoria/adminsync/internal/cache"
	"github.com/evoria/adminsync/internal/db"
	"github.com/evoria/adminsync/internal/events"
	"github.com/evoria/adminsync/internal/models"
	"github.com/evoria/adminsync/internal/netmon"
	"github.com/evoria/adminsync/internal/queue"
	"github.com/evoria/adminsync/internal/realtime"
	"github.com/evoria/adminsync/internal/store"
)

// backend simulates the API server: a health endpoint that can be
// toggled down, and a write endpoint recording replayed requests.
type backend struct {
	*httptest.Server
	mu       sync.Mutex
	healthy  bool
	received []string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{healthy: true}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if r.URL.Path == "/health" {
			if b.healthy {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			return
		}
		b.received = append(b.received, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) setHealthy(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = v
}

func (b *backend) requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.received...)
}

// core bundles a fully wired sync stack over a temp database.
type core struct {
	bus       *events.MemoryBus
	database  *db.DB
	queueSt   *store.QueueStore
	manager   *queue.Manager
	processor *queue.Processor
	monitor   *netmon.Monitor
	cache     *cache.Store
}

func newCore(t *testing.T, dataDir string, api *backend) *core {
	t.Helper()

	bus := events.NewMemoryBus()
	database := db.New(dataDir)
	t.Cleanup(func() { database.Close() })

	queueSt := store.NewQueueStore(database)
	deadSt := store.NewDeadLetterStore(database)
	creds := auth.NewStaticProvider("integration-token", bus)
	manager := queue.NewManager(queueSt, bus, 5*time.Second)

	monitor := netmon.NewMonitor(bus, api.URL+"/health",
		time.Hour, 2*time.Second, 3*time.Second)
	t.Cleanup(monitor.Stop)

	processor := queue.NewProcessor(queueSt, deadSt, creds, bus,
		monitor.State, time.Millisecond, 5*time.Second)

	cacheStore := cache.NewStore()
	monitor.SetHooks(processor, cacheStore)

	return &core{
		bus:       bus,
		database:  database,
		queueSt:   queueSt,
		manager:   manager,
		processor: processor,
		monitor:   monitor,
		cache:     cacheStore,
	}
}

func (c *core) enqueue(t *testing.T, method, url string) {
	t.Helper()
	err := c.manager.Enqueue(queue.RequestDescriptor{
		Method: method,
		URL:    url,
		Body:   json.RawMessage(`{"name": "` + url + `"}`),
	})
	require.NoError(t, err)
}

// TestOfflineWritesReplayOnReconnect walks the core offline-first loop:
// writes queue while the backend is down, the platform online event
// triggers a drain in FIFO order, and cached reads go stale afterwards.
func TestOfflineWritesReplayOnReconnect(t *testing.T) {
	api := newBackend(t)
	api.setHealthy(false)

	c := newCore(t, t.TempDir(), api)
	c.cache.Replace("products", []cache.Entity{{"id": "p1", "stock": 5}})

	c.monitor.Start(context.Background())
	require.Equal(t, models.StateReconnecting, c.monitor.State())

	c.enqueue(t, "POST", api.URL+"/products")
	c.enqueue(t, "PUT", api.URL+"/products/p1")
	c.enqueue(t, "DELETE", api.URL+"/products/p2")

	pending, err := c.manager.Pending()
	require.NoError(t, err)
	require.Equal(t, 3, pending)
	require.Empty(t, api.requests(), "nothing may leave the machine while unreachable")

	// Backend comes back and the platform announces connectivity.
	api.setHealthy(true)
	c.bus.Publish(events.TopicNetworkOnline, nil)

	require.Eventually(t, func() bool {
		n, err := c.manager.Pending()
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{
		"POST /products",
		"PUT /products/p1",
		"DELETE /products/p2",
	}, api.requests(), "replay must preserve enqueue order")

	assert.True(t, c.cache.IsStale("products"),
		"cached reads refresh after the queued writes land")
}

// TestQueueSurvivesRestart closes the stack and rebuilds it over the
// same data directory; the pending queue must come back intact.
func TestQueueSurvivesRestart(t *testing.T) {
	api := newBackend(t)
	api.setHealthy(false)
	dataDir := t.TempDir()

	c1 := newCore(t, dataDir, api)
	c1.enqueue(t, "POST", api.URL+"/orders")
	c1.enqueue(t, "PATCH", api.URL+"/orders/o1")
	require.NoError(t, c1.database.Close())

	// Simulated restart: a fresh stack over the same directory.
	c2 := newCore(t, dataDir, api)
	items, err := c2.manager.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, api.URL+"/orders", items[0].URL)

	api.setHealthy(true)
	c2.monitor.Start(context.Background())

	require.Eventually(t, func() bool {
		n, err := c2.manager.Pending()
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, api.requests(), 2)
}

// TestRealtimePushReconcilesCache runs a live websocket end to end: the
// server pushes a partial product update and the cache merges it.
func TestRealtimePushReconcilesCache(t *testing.T) {
	upgrader := websocket.Upgrader{}
	push := make(chan models.RealtimeMessage, 4)
	wsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(models.RealtimeMessage{Type: models.MessageConnectionAck, UserID: "u1"})
		for msg := range push {
			if conn.WriteJSON(msg) != nil {
				return
			}
		}
	}))
	defer wsServer.Close()
	defer close(push)

	cacheStore := cache.NewStore()
	cacheStore.Replace("products", []cache.Entity{
		{"id": "7", "name": "Widget", "stock": float64(10)},
	})

	creds := auth.NewStaticProvider("integration-token", nil)
	reconciler := cache.NewReconciler(cacheStore)
	wsURL := "ws" + strings.TrimPrefix(wsServer.URL, "http")
	channel := realtime.NewChannel(wsURL, creds, reconciler, nil,
		time.Hour, 10*time.Millisecond, 50*time.Millisecond, time.Millisecond)
	defer channel.Stop()
	channel.Start()
	require.True(t, channel.IsConnected())

	push <- models.RealtimeMessage{
		Type: models.MessageProductUpdated,
		Data: json.RawMessage(`{"id": 7, "stock": 3}`),
	}

	require.Eventually(t, func() bool {
		e := cacheStore.GetEntity("products", "7")
		return e != nil && e["stock"] == float64(3)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Widget", cacheStore.GetEntity("products", "7")["name"])
}
