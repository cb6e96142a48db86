// Package models provides data model definitions for the adminsync core.
package models

// ConnectionState represents application-level reachability.
type ConnectionState string

const (
	// StateOnline means the network is up and the backend answers the health probe.
	StateOnline ConnectionState = "online"

	// StateOffline means the platform reports no connectivity.
	StateOffline ConnectionState = "offline"

	// StateReconnecting means the platform reports connectivity but the
	// application-level health probe is failing. Network up, server down or slow.
	StateReconnecting ConnectionState = "reconnecting"
)
