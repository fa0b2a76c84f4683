package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inbound(name domain.EventType, payload string) domain.InboundEvent {
	return domain.InboundEvent{Name: name, Payload: json.RawMessage(payload), ReceivedAt: time.Now()}
}

func TestSubscriptionRegistry_Dispatch(t *testing.T) {
	t.Run("new-message is decoded once and shared", func(t *testing.T) {
		registry := services.NewSubscriptionRegistry(nil)

		var got []*domain.MessageRecord
		registry.Messages().Subscribe(func(m *domain.MessageRecord) { got = append(got, m) })
		registry.Messages().Subscribe(func(m *domain.MessageRecord) { got = append(got, m) })

		err := registry.Dispatch(inbound(domain.EventNewMessage,
			`{"id":"m1","ticketId":"T1","content":"hello","timestamp":"2024-01-02T03:04:05Z"}`))

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Same(t, got[0], got[1])
		assert.Equal(t, "m1", got[0].ID)
		assert.Equal(t, "T1", got[0].TicketID)
		assert.Equal(t, "hello", got[0].Content)
	})

	t.Run("ticket-updated is decoded", func(t *testing.T) {
		registry := services.NewSubscriptionRegistry(nil)

		var got *domain.TicketUpdate
		registry.TicketUpdates().Subscribe(func(u *domain.TicketUpdate) { got = u })

		err := registry.Dispatch(inbound(domain.EventTicketUpdated,
			`{"ticketId":"T1","message":{"content":"hi","timestamp":"2024-01-02T03:04:05Z"}}`))

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "T1", got.TicketID)
		assert.Equal(t, "hi", got.Message.Content)
	})

	t.Run("new-ticket keeps the payload opaque", func(t *testing.T) {
		registry := services.NewSubscriptionRegistry(nil)

		var got *domain.NewTicket
		registry.Tickets().Subscribe(func(nt *domain.NewTicket) { got = nt })

		require.NoError(t, registry.Dispatch(inbound(domain.EventNewTicket, `{"id":42,"title":"Printer"}`)))
		require.NotNil(t, got)
		assert.Equal(t, "42", got.ID())
		assert.JSONEq(t, `{"id":42,"title":"Printer"}`, string(got.Raw))
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		registry := services.NewSubscriptionRegistry(nil)

		called := false
		registry.Messages().Subscribe(func(*domain.MessageRecord) { called = true })

		err := registry.Dispatch(inbound(domain.EventNewMessage, `{"id":`))

		assert.ErrorIs(t, err, apperrors.ErrMalformedPayload)
		assert.False(t, called)
	})

	t.Run("unknown events only reach the raw topic", func(t *testing.T) {
		registry := services.NewSubscriptionRegistry(nil)

		var raw []domain.EventType
		registry.Raw().Subscribe(func(ev domain.InboundEvent) { raw = append(raw, ev.Name) })

		err := registry.Dispatch(inbound("typing", `{}`))
		require.NoError(t, registry.Dispatch(inbound(domain.EventNewTicket, `{}`)))

		assert.ErrorIs(t, err, apperrors.ErrUnsupportedEvent)
		assert.Equal(t, []domain.EventType{"typing", domain.EventNewTicket}, raw)
	})
}

func TestSubscriptionRegistry_Clear(t *testing.T) {
	registry := services.NewSubscriptionRegistry(nil)

	registry.Messages().Subscribe(func(*domain.MessageRecord) {})
	registry.Tickets().Subscribe(func(*domain.NewTicket) {})
	registry.TicketUpdates().Subscribe(func(*domain.TicketUpdate) {})
	registry.State().Subscribe(func(domain.StateChange) {})
	require.Equal(t, 4, registry.Len())

	registry.Clear()

	assert.Equal(t, 0, registry.Len())
}
