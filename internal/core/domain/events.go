package domain

import (
	"encoding/json"
	"time"
)

// EventType names a signal exchanged with the messaging backend.
type EventType string

// Inbound signals.
const (
	EventConnect         EventType = "connect"
	EventDisconnect      EventType = "disconnect"
	EventReconnectFailed EventType = "reconnect_failed"
	EventNewMessage      EventType = "new-message"
	EventNewTicket       EventType = "new-ticket"
	EventTicketUpdated   EventType = "ticket-updated"
)

// Outbound signals.
const (
	EventJoinUserRoom    EventType = "join-user-room"
	EventJoinTicketRoom  EventType = "join-ticket-room"
	EventLeaveTicketRoom EventType = "leave-ticket-room"
)

// PushEvents lists the inbound classes carrying data from the backend.
var PushEvents = []EventType{EventNewMessage, EventNewTicket, EventTicketUpdated}

// InboundEvent is a server-pushed event exactly as the transport delivered it.
type InboundEvent struct {
	Name       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"-"`
}

// TicketUpdate is the payload of a ticket-updated event.
type TicketUpdate struct {
	TicketID string      `json:"ticketId"`
	Message  LastMessage `json:"message"`
}

// NewTicket is the opaque payload of a new-ticket event.
type NewTicket struct {
	Raw json.RawMessage
}

// ID extracts the ticket id from the payload when one is present.
func (t *NewTicket) ID() string {
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(t.Raw, &head); err != nil || len(head.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(head.ID, &s); err == nil {
		return s
	}
	return string(head.ID)
}
