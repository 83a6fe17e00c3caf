package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherRoutesByTarget(t *testing.T) {
	d := NewDispatcher()

	var updated, created []Payload
	d.OnConversationUpdated(func(p Payload) { updated = append(updated, p) })
	d.OnConversationCreated(func(p Payload) { created = append(created, p) })

	d.dispatch("conversationUpdated", Payload{"id": 1})
	d.dispatch("conversationCreated", Payload{"id": 2})
	d.dispatch("pong", Payload{})
	d.dispatch("somethingElse", Payload{"id": 3})

	assert.Len(t, updated, 1)
	assert.Len(t, created, 1)
	assert.Equal(t, 1, updated[0]["id"])
	assert.Equal(t, 2, created[0]["id"])
}

func TestDispatcherPanicDoesNotStopOtherHandlers(t *testing.T) {
	d := NewDispatcher()

	var survived bool
	d.OnConversationUpdated(func(Payload) { panic("boom") })
	d.OnConversationUpdated(func(Payload) { survived = true })

	assert.NotPanics(t, func() {
		d.dispatch("conversationUpdated", Payload{})
	})
	assert.True(t, survived)
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher()

	count := 0
	off := d.OnConversationCreated(func(Payload) { count++ })

	d.dispatch("conversationCreated", Payload{})
	off()
	d.dispatch("conversationCreated", Payload{})

	assert.Equal(t, 1, count)
}
