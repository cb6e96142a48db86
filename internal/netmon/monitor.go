// Package netmon implements the connection monitor: a three-state
// reachability machine driven by platform connectivity events and a
// periodic application-level health probe.
//
// "reconnecting" is deliberately distinct from "offline": the platform
// reports a network, but the backend is not answering. Only a platform
// offline event moves the machine to offline.
package netmon

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/evoria/adminsync/internal/events"
	"github.com/evoria/adminsync/internal/logging"
	"github.com/evoria/adminsync/internal/models"
	"github.com/evoria/adminsync/internal/queue"
)

// Drainer replays the durable queue. Satisfied by *queue.Processor.
type Drainer interface {
	Drain(ctx context.Context) (*queue.DrainResult, error)
}

// Invalidator refreshes cached read views. Satisfied by *cache.Store.
type Invalidator interface {
	InvalidateAll()
}

// Monitor owns the connection state machine. State changes come from
// exactly two sources: network.online/network.offline bus events and
// the periodic health probe.
type Monitor struct {
	bus       events.Bus
	healthURL string
	client    *http.Client

	probeInterval  time.Duration
	probeTimeout   time.Duration
	bannerAutoHide time.Duration

	drainer     Drainer
	invalidator Invalidator

	mu            sync.RWMutex
	state         models.ConnectionState
	networkUp     bool // what the platform last reported
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
	unsubscribers []func()
}

// NewMonitor creates a monitor. The state starts as offline and is
// recomputed from a fresh probe when Start runs; connection state is
// never persisted.
func NewMonitor(bus events.Bus, healthURL string, probeInterval, probeTimeout, bannerAutoHide time.Duration) *Monitor {
	return &Monitor{
		bus:            bus,
		healthURL:      healthURL,
		client:         &http.Client{},
		probeInterval:  probeInterval,
		probeTimeout:   probeTimeout,
		bannerAutoHide: bannerAutoHide,
		state:          models.StateOffline,
		networkUp:      true, // platform presumed connected until told otherwise
		stopCh:         make(chan struct{}),
	}
}

// SetHooks installs the drain and cache-invalidation hooks run on every
// transition into online. Called once at wiring time; the setter breaks
// the monitor/processor construction cycle.
func (m *Monitor) SetHooks(d Drainer, inv Invalidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainer = d
	m.invalidator = inv
}

// State returns the current connection state.
func (m *Monitor) State() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Start subscribes to connectivity events, runs an immediate probe, and
// begins the periodic probe loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.unsubscribers = append(m.unsubscribers,
		m.bus.Subscribe(events.TopicNetworkOnline, func(string, map[string]interface{}) {
			m.handleNetworkUp(ctx)
		}),
		m.bus.Subscribe(events.TopicNetworkOffline, func(string, map[string]interface{}) {
			m.handleNetworkDown()
		}),
	)

	m.Probe(ctx)

	m.wg.Add(1)
	go m.probeLoop(ctx)

	logging.Info("Connection monitor started", map[string]interface{}{
		"health_url": m.healthURL,
	})
}

// Stop ends the probe loop and detaches from the bus.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	for _, unsub := range m.unsubscribers {
		unsub()
	}
	m.unsubscribers = nil
}

// Probe runs one health check and applies the resulting transition.
// Exposed so a manual "check now" action can bypass the interval.
func (m *Monitor) Probe(ctx context.Context) {
	m.mu.RLock()
	networkUp := m.networkUp
	m.mu.RUnlock()

	if !networkUp {
		// No network per the platform; the probe cannot add information.
		return
	}

	if m.probeOnce(ctx) {
		m.transition(ctx, models.StateOnline)
	} else {
		// Network up, server unreachable or slow.
		m.transition(ctx, models.StateReconnecting)
	}
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// probeOnce performs a single bounded liveness request. Success is any
// 2xx within the timeout; the request is aborted if it hangs.
func (m *Monitor) probeOnce(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// handleNetworkUp processes a platform online event: the event alone is
// enough to go online, and an immediate probe then confirms or demotes
// to reconnecting without waiting for the next tick.
func (m *Monitor) handleNetworkUp(ctx context.Context) {
	m.mu.Lock()
	m.networkUp = true
	m.mu.Unlock()

	m.transition(ctx, models.StateOnline)
	go m.Probe(ctx)
}

// handleNetworkDown processes a platform offline event. This moves to
// offline regardless of what the probe last said.
func (m *Monitor) handleNetworkDown() {
	m.mu.Lock()
	m.networkUp = false
	m.mu.Unlock()

	m.transition(context.Background(), models.StateOffline)
}

// transition applies a state change. On any transition into online from
// offline or reconnecting it drains the queue first and invalidates
// cached reads second, so queued writes land before reads refresh and
// the user never sees a flash of stale state.
func (m *Monitor) transition(ctx context.Context, next models.ConnectionState) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	drainer := m.drainer
	invalidator := m.invalidator
	m.mu.Unlock()

	logging.Info("Connection state changed", map[string]interface{}{
		"from": string(prev),
		"to":   string(next),
	})

	if next == models.StateOnline {
		if drainer != nil {
			if _, err := drainer.Drain(ctx); err != nil {
				logging.Warn("Drain on reconnect did not complete", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
		if invalidator != nil {
			invalidator.InvalidateAll()
		}
	}

	m.publishState(next)
}

// publishState announces the transition. The online banner is
// transient (auto-hides); offline and reconnecting banners persist.
func (m *Monitor) publishState(state models.ConnectionState) {
	payload := map[string]interface{}{
		"state":     string(state),
		"transient": state == models.StateOnline,
	}
	if state == models.StateOnline {
		payload["auto_hide_ms"] = m.bannerAutoHide.Milliseconds()
	}
	m.bus.Publish(events.TopicConnectionState, payload)
}
