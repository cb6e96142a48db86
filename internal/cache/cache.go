// Package cache holds the in-memory view-model collections (clients,
// products, orders, ...) keyed by entity id. All three writers — fetch
// results, optimistic local mutations, and realtime reconciliation —
// go through the same keyed upsert/remove primitives, so the cached
// shapes never diverge.
package cache

import (
	"fmt"
	"strconv"
	"sync"
)

// Port is the narrow interface reconciliation depends on; injected so
// the reconciler is decoupled from this implementation.
type Port interface {
	Upsert(collection, id string, fields map[string]interface{})
	Remove(collection, id string)
	Invalidate(collection string)
}

// Entity is a cached record. The id is duplicated inside the fields,
// matching the wire shape.
type Entity map[string]interface{}

// collection keeps entities in arrival order for stable list rendering.
type collection struct {
	order    []string
	entities map[string]Entity
	stale    bool
}

// Store is the session-lifetime entity cache. Mutations are cheap,
// synchronous, and never touch the network.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection

	// onInvalidate, when set, is told which collection went stale so
	// the read layer can schedule a refetch.
	onInvalidate func(collection string)
}

// NewStore creates an empty cache.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]*collection),
	}
}

// OnInvalidate registers the refetch hook. The cache itself never
// fetches; it only reports staleness.
func (s *Store) OnInvalidate(fn func(collection string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvalidate = fn
}

// Replace installs a full fetch result for a collection, clearing any
// stale flag.
func (s *Store) Replace(name string, entities []Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := &collection{entities: make(map[string]Entity, len(entities))}
	for _, e := range entities {
		id := IDKey(e["id"])
		if id == "" {
			continue
		}
		if _, ok := col.entities[id]; !ok {
			col.order = append(col.order, id)
		}
		col.entities[id] = e
	}
	s.collections[name] = col
}

// Upsert merges the given fields into the entity, creating it if
// absent. Only fields present in the update are touched; everything
// else the cache already knows stays as is.
func (s *Store) Upsert(name, id string, fields map[string]interface{}) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[name]
	if col == nil {
		col = &collection{entities: make(map[string]Entity)}
		s.collections[name] = col
	}

	entity, ok := col.entities[id]
	if !ok {
		entity = make(Entity, len(fields))
		col.order = append(col.order, id)
		col.entities[id] = entity
	}
	for k, v := range fields {
		entity[k] = v
	}
}

// Remove deletes an entity by id. Removing an unknown id is a no-op.
func (s *Store) Remove(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[name]
	if col == nil {
		return
	}
	if _, ok := col.entities[id]; !ok {
		return
	}
	delete(col.entities, id)
	for i, oid := range col.order {
		if oid == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
}

// Invalidate drops a collection and marks it stale. Used for pushed
// creations, where guessing the shape of a brand-new record with
// derived fields is riskier than refetching.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	s.collections[name] = &collection{
		entities: make(map[string]Entity),
		stale:    true,
	}
	hook := s.onInvalidate
	s.mu.Unlock()

	if hook != nil {
		hook(name)
	}
}

// InvalidateAll marks every known collection stale. Run by the
// connection monitor after a reconnect drain.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.Invalidate(name)
	}
}

// Get returns a snapshot of a collection in insertion order.
func (s *Store) Get(name string) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[name]
	if col == nil {
		return nil
	}
	out := make([]Entity, 0, len(col.order))
	for _, id := range col.order {
		entity := make(Entity, len(col.entities[id]))
		for k, v := range col.entities[id] {
			entity[k] = v
		}
		out = append(out, entity)
	}
	return out
}

// GetEntity returns a copy of a single entity, or nil if unknown.
func (s *Store) GetEntity(name, id string) Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[name]
	if col == nil {
		return nil
	}
	src, ok := col.entities[id]
	if !ok {
		return nil
	}
	entity := make(Entity, len(src))
	for k, v := range src {
		entity[k] = v
	}
	return entity
}

// IsStale reports whether a collection was invalidated and awaits a
// refetch.
func (s *Store) IsStale(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[name]
	return col != nil && col.stale
}

// IDKey normalizes an entity id from decoded JSON, where numbers arrive
// as float64, into a stable map key.
func IDKey(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}
