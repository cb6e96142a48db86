package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoria/adminsync/internal/models"
)

func pushMsg(msgType string, data string) *models.RealtimeMessage {
	return &models.RealtimeMessage{
		Type: msgType,
		Data: json.RawMessage(data),
	}
}

func TestReconcilerUpsertMergesPushedFields(t *testing.T) {
	s := NewStore()
	s.Replace("products", []Entity{
		{"id": "7", "name": "Widget", "stock": float64(10)},
	})

	r := NewReconciler(s)
	r.HandleMessage(pushMsg(models.MessageProductUpdated, `{"id": 7, "stock": 3}`))

	got := s.GetEntity("products", "7")
	require.NotNil(t, got)
	assert.Equal(t, float64(3), got["stock"])
	assert.Equal(t, "Widget", got["name"])
}

func TestReconcilerStateChangeRoutesToOrders(t *testing.T) {
	s := NewStore()
	s.Replace("orders", []Entity{
		{"id": "o1", "state": "pending", "total": float64(99)},
	})

	r := NewReconciler(s)
	r.HandleMessage(pushMsg(models.MessageOrderStateChanged, `{"id": "o1", "state": "shipped"}`))

	got := s.GetEntity("orders", "o1")
	require.NotNil(t, got)
	assert.Equal(t, "shipped", got["state"])
	assert.Equal(t, float64(99), got["total"])
}

func TestReconcilerDeleteRemovesEntity(t *testing.T) {
	s := NewStore()
	s.Replace("clients", []Entity{{"id": "c1"}, {"id": "c2"}})

	r := NewReconciler(s)
	r.HandleMessage(pushMsg(models.MessageClientDeleted, `{"id": "c1"}`))

	assert.Nil(t, s.GetEntity("clients", "c1"))
	assert.NotNil(t, s.GetEntity("clients", "c2"))
}

func TestReconcilerCreateInvalidatesCollection(t *testing.T) {
	s := NewStore()
	s.Replace("offers", []Entity{{"id": "f1"}})

	r := NewReconciler(s)
	r.HandleMessage(pushMsg(models.MessageOfferCreated, `{"id": "f2", "discount": 10}`))

	// Creations refetch rather than guess derived fields.
	assert.True(t, s.IsStale("offers"))
	assert.Empty(t, s.Get("offers"))
}

func TestReconcilerIgnoresUnknownTypes(t *testing.T) {
	s := NewStore()
	s.Replace("products", []Entity{{"id": "p1"}})

	r := NewReconciler(s)
	r.HandleMessage(pushMsg("shipment-scheduled", `{"id": "p1"}`))

	assert.False(t, s.IsStale("products"))
	assert.Len(t, s.Get("products"), 1)
}

func TestReconcilerDropsUpdatesWithoutID(t *testing.T) {
	s := NewStore()
	s.Replace("products", []Entity{{"id": "p1", "stock": float64(5)}})

	r := NewReconciler(s)
	r.HandleMessage(pushMsg(models.MessageProductUpdated, `{"stock": 0}`))
	r.HandleMessage(pushMsg(models.MessageProductDeleted, `{}`))
	r.HandleMessage(&models.RealtimeMessage{Type: models.MessageProductUpdated})

	got := s.GetEntity("products", "p1")
	require.NotNil(t, got)
	assert.Equal(t, float64(5), got["stock"])
}

func TestReconcilerCustomRoute(t *testing.T) {
	s := NewStore()
	r := NewReconciler(s)
	r.Register("warehouse-updated", Route{Collection: "warehouses", Action: ActionUpsert})

	r.HandleMessage(pushMsg("warehouse-updated", `{"id": "w1", "city": "Lyon"}`))

	got := s.GetEntity("warehouses", "w1")
	require.NotNil(t, got)
	assert.Equal(t, "Lyon", got["city"])
}
