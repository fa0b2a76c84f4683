package services

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// SubscriptionRegistry decouples the transport from its consumers. It holds
// one typed topic per event class.
//
// Subscriptions survive automatic reconnects untouched. Clear, which an
// explicit Disconnect calls, drops every subscription; consumers subscribe
// again after the next Connect.
type SubscriptionRegistry struct {
	messages      *Topic[*domain.MessageRecord]
	tickets       *Topic[*domain.NewTicket]
	ticketUpdates *Topic[*domain.TicketUpdate]
	state         *Topic[domain.StateChange]
	raw           *Topic[domain.InboundEvent]
	logger        *slog.Logger
}

// NewSubscriptionRegistry creates a registry with empty topics.
func NewSubscriptionRegistry(logger *slog.Logger) *SubscriptionRegistry {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "subscription_registry")

	return &SubscriptionRegistry{
		messages:      NewTopic[*domain.MessageRecord](string(domain.EventNewMessage), logger),
		tickets:       NewTopic[*domain.NewTicket](string(domain.EventNewTicket), logger),
		ticketUpdates: NewTopic[*domain.TicketUpdate](string(domain.EventTicketUpdated), logger),
		state:         NewTopic[domain.StateChange]("connection-state", logger),
		raw:           NewTopic[domain.InboundEvent]("raw", logger),
		logger:        logger,
	}
}

// Messages is the new-message topic.
func (r *SubscriptionRegistry) Messages() *Topic[*domain.MessageRecord] { return r.messages }

// Tickets is the new-ticket topic.
func (r *SubscriptionRegistry) Tickets() *Topic[*domain.NewTicket] { return r.tickets }

// TicketUpdates is the ticket-updated topic.
func (r *SubscriptionRegistry) TicketUpdates() *Topic[*domain.TicketUpdate] { return r.ticketUpdates }

// State carries connect, disconnect and reconnect_failed as state changes.
func (r *SubscriptionRegistry) State() *Topic[domain.StateChange] { return r.state }

// Raw receives every inbound push event before it is decoded.
func (r *SubscriptionRegistry) Raw() *Topic[domain.InboundEvent] { return r.raw }

// Dispatch decodes an inbound event once and publishes the same value to
// every subscriber of its class. Unknown classes only reach the raw topic.
func (r *SubscriptionRegistry) Dispatch(ev domain.InboundEvent) error {
	r.raw.Publish(ev)

	switch ev.Name {
	case domain.EventNewMessage:
		var msg domain.MessageRecord
		if err := decodePayload(ev, &msg); err != nil {
			return r.dropped(ev, err)
		}
		r.messages.Publish(&msg)

	case domain.EventNewTicket:
		r.tickets.Publish(&domain.NewTicket{Raw: append(json.RawMessage(nil), ev.Payload...)})

	case domain.EventTicketUpdated:
		var update domain.TicketUpdate
		if err := decodePayload(ev, &update); err != nil {
			return r.dropped(ev, err)
		}
		r.ticketUpdates.Publish(&update)

	default:
		r.logger.Debug("no typed topic for event", "event", ev.Name)
		return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedEvent, ev.Name)
	}
	return nil
}

// PublishState forwards a connection state change to the state topic.
func (r *SubscriptionRegistry) PublishState(change domain.StateChange) {
	r.state.Publish(change)
}

// Clear removes every subscription from every topic.
func (r *SubscriptionRegistry) Clear() {
	r.messages.Clear()
	r.tickets.Clear()
	r.ticketUpdates.Clear()
	r.state.Clear()
	r.raw.Clear()
}

// Len returns the total number of subscriptions.
func (r *SubscriptionRegistry) Len() int {
	return r.messages.Len() + r.tickets.Len() + r.ticketUpdates.Len() + r.state.Len() + r.raw.Len()
}

func (r *SubscriptionRegistry) dropped(ev domain.InboundEvent, err error) error {
	r.logger.Warn("dropping malformed event", "event", ev.Name, "error", err)
	return err
}

func decodePayload(ev domain.InboundEvent, v any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", apperrors.ErrMalformedPayload, ev.Name)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrMalformedPayload, ev.Name, err)
	}
	return nil
}
