package cache

import (
	"encoding/json"

	"github.com/evoria/adminsync/internal/logging"
	"github.com/evoria/adminsync/internal/models"
)

// Action is what a message type does to its collection.
type Action int

const (
	// ActionInvalidate drops the collection for a refetch (creations).
	ActionInvalidate Action = iota
	// ActionUpsert merges the pushed fields into the entity by id
	// (updates and state changes).
	ActionUpsert
	// ActionRemove deletes the entity by id.
	ActionRemove
)

// Route maps a message type to a collection mutation.
type Route struct {
	Collection string
	Action     Action
}

// Reconciler applies inbound push messages to the cache. It is a pure,
// synchronous mutation given an already-parsed message: it never blocks
// on the network, and a concurrent queue replay for the same entity is
// commutative with it for non-conflicting fields.
type Reconciler struct {
	cache  Port
	routes map[string]Route
}

// NewReconciler creates a reconciler with the standard admin-app routes.
func NewReconciler(cache Port) *Reconciler {
	r := &Reconciler{
		cache:  cache,
		routes: make(map[string]Route),
	}

	for msgType, collection := range map[string]string{
		models.MessageClientCreated:  "clients",
		models.MessageProductCreated: "products",
		models.MessageOrderCreated:   "orders",
		models.MessageOfferCreated:   "offers",
	} {
		r.Register(msgType, Route{Collection: collection, Action: ActionInvalidate})
	}
	for msgType, collection := range map[string]string{
		models.MessageClientUpdated:     "clients",
		models.MessageProductUpdated:    "products",
		models.MessageOrderUpdated:      "orders",
		models.MessageOrderStateChanged: "orders",
		models.MessageOfferUpdated:      "offers",
		models.MessageUserUpdated:       "users",
	} {
		r.Register(msgType, Route{Collection: collection, Action: ActionUpsert})
	}
	for msgType, collection := range map[string]string{
		models.MessageClientDeleted:  "clients",
		models.MessageProductDeleted: "products",
		models.MessageOrderDeleted:   "orders",
		models.MessageOfferDeleted:   "offers",
	} {
		r.Register(msgType, Route{Collection: collection, Action: ActionRemove})
	}

	return r
}

// Register adds or replaces the route for a message type.
func (r *Reconciler) Register(msgType string, route Route) {
	r.routes[msgType] = route
}

// HandleMessage applies one push message. Unknown types are ignored,
// not errors: the server may ship new message kinds before the client
// learns them.
func (r *Reconciler) HandleMessage(msg *models.RealtimeMessage) {
	route, ok := r.routes[msg.Type]
	if !ok {
		logging.Debug("Ignoring unknown realtime message type", map[string]interface{}{
			"type": msg.Type,
		})
		return
	}

	switch route.Action {
	case ActionInvalidate:
		r.cache.Invalidate(route.Collection)

	case ActionUpsert:
		fields, id := decodePayload(msg)
		if id == "" {
			logging.Warn("Realtime update without entity id dropped", map[string]interface{}{
				"type": msg.Type,
			})
			return
		}
		r.cache.Upsert(route.Collection, id, fields)

	case ActionRemove:
		_, id := decodePayload(msg)
		if id == "" {
			logging.Warn("Realtime delete without entity id dropped", map[string]interface{}{
				"type": msg.Type,
			})
			return
		}
		r.cache.Remove(route.Collection, id)
	}
}

// decodePayload parses the message data into fields and extracts the
// entity id.
func decodePayload(msg *models.RealtimeMessage) (map[string]interface{}, string) {
	fields := make(map[string]interface{})
	if len(msg.Data) == 0 {
		return fields, ""
	}
	if err := json.Unmarshal(msg.Data, &fields); err != nil {
		logging.Warn("Malformed realtime payload dropped", map[string]interface{}{
			"type":  msg.Type,
			"error": err.Error(),
		})
		return fields, ""
	}
	return fields, IDKey(fields["id"])
}
