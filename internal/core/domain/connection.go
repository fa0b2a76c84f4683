package domain

// ConnectionState represents the lifecycle of the realtime connection.
type ConnectionState int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the first dial of a Connect call is in flight.
	StateConnecting

	// StateConnected means the transport is up and the user room was joined.
	StateConnected

	// StateReconnecting means the connection was lost and the backoff loop is running.
	StateReconnecting

	// StateFailed means the reconnection bound was reached. Only a fresh
	// Connect leaves this state.
	StateFailed
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive reports whether a supervisor is running for this state.
func (s ConnectionState) IsActive() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}

// StateChange is published on every connection state transition.
type StateChange struct {
	Previous ConnectionState
	Current  ConnectionState
	// Attempt is the reconnection attempt counter at the time of the change.
	Attempt int
	// Err is the cause of the transition, if any.
	Err error
}

// Room names a server-side grouping of push events.
type Room string

// UserRoom returns the room that carries every event for a user.
func UserRoom(userID string) Room {
	return Room("user:" + userID)
}

// TicketRoom returns the room that carries the events of one conversation.
func TicketRoom(ticketID string) Room {
	return Room("ticket:" + ticketID)
}

// Signal maps a transition to the lifecycle signal consumers observe. It
// returns "" for transitions that carry no signal.
func (c StateChange) Signal() EventType {
	switch c.Current {
	case StateConnected:
		return EventConnect
	case StateReconnecting:
		if c.Previous == StateConnected {
			return EventDisconnect
		}
	case StateDisconnected:
		if c.Previous == StateConnected {
			return EventDisconnect
		}
	case StateFailed:
		return EventReconnectFailed
	}
	return ""
}

// ConnectionStatus summarises the realtime layer for status reporting.
type ConnectionStatus struct {
	State        string        `json:"state"`
	Connected    bool          `json:"connected"`
	Attempt      int           `json:"attempt"`
	UserID       string        `json:"userId,omitempty"`
	Rooms        []string      `json:"rooms"`
	Memberships  []Room        `json:"memberships"`
	OpenTicketID string        `json:"openTicketId,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	Stats        StatsSnapshot `json:"stats"`
}
