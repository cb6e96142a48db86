// Package auth defines the credential port the sync core depends on.
// The embedding application's auth module is the sole source of truth
// for the current credential; the core re-reads it at every send and
// every realtime (re)connect, never at enqueue time.
package auth

import (
	"sync"

	"github.com/evoria/adminsync/internal/events"
)

// CredentialProvider exposes the current bearer credential. Token must
// be cheap and synchronous: it is called once per replayed request.
// An empty token means "not logged in".
type CredentialProvider interface {
	Token() string
}

// StaticProvider holds a credential settable at runtime. Setting a new
// value publishes a credential-changed event so the realtime channel
// can force a reconnect.
type StaticProvider struct {
	mu    sync.RWMutex
	token string
	bus   events.Bus
}

// NewStaticProvider creates a provider with an initial token. bus may
// be nil if no one needs change notifications.
func NewStaticProvider(token string, bus events.Bus) *StaticProvider {
	return &StaticProvider{token: token, bus: bus}
}

// Token returns the current credential.
func (p *StaticProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// SetToken replaces the credential (login sets it, logout clears it).
func (p *StaticProvider) SetToken(token string) {
	p.mu.Lock()
	changed := p.token != token
	p.token = token
	p.mu.Unlock()

	if changed && p.bus != nil {
		p.bus.Publish(events.TopicCredentialChanged, map[string]interface{}{
			"present": token != "",
		})
	}
}
