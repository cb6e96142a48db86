// Package models provides data model definitions for the adminsync core.
package models

import "encoding/json"

// Realtime message types pushed by the server. Unknown types are
// ignored by the dispatcher, not treated as errors.
const (
	MessageConnectionAck = "connection-ack"
	MessageHeartbeatAck  = "heartbeat-ack"

	MessageClientCreated = "client-created"
	MessageClientUpdated = "client-updated"
	MessageClientDeleted = "client-deleted"

	MessageProductCreated = "product-created"
	MessageProductUpdated = "product-updated"
	MessageProductDeleted = "product-deleted"

	MessageOrderCreated      = "order-created"
	MessageOrderUpdated      = "order-updated"
	MessageOrderDeleted      = "order-deleted"
	MessageOrderStateChanged = "order-state-changed"

	MessageOfferCreated = "offer-created"
	MessageOfferUpdated = "offer-updated"
	MessageOfferDeleted = "offer-deleted"

	MessageUserUpdated = "user-updated"
)

// RealtimeMessage is the envelope for every frame on the realtime channel.
type RealtimeMessage struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	UserID string          `json:"user_id,omitempty"`
}

// Ping is the only client-to-server frame besides nothing at all.
type Ping struct {
	Type string `json:"type"` // always "ping"
}
