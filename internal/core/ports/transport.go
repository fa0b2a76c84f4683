package ports

import (
	"context"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// DialParams carries everything a transport needs to open one connection.
type DialParams struct {
	URL string
	// Path is the server endpoint path, used by transports that separate it from URL.
	Path    string
	Token   string
	UserID  string
	Timeout time.Duration
}

// Transport opens authenticated push connections.
type Transport interface {
	// Dial opens a connection and completes the authentication handshake.
	// A handshake exceeding params.Timeout fails with ErrConnectionTimeout;
	// a credential refused by the server fails with ErrAuthRejected.
	Dial(ctx context.Context, params DialParams) (TransportConn, error)
}

// TransportConn is one live connection. Emit is safe for concurrent use.
type TransportConn interface {
	// Emit sends an outbound signal without waiting for delivery.
	Emit(ctx context.Context, event domain.EventType, payload any) error

	// Events delivers inbound events in arrival order. The channel is closed
	// when the connection is lost or closed; Err then reports why.
	Events() <-chan domain.InboundEvent

	// Err returns the reason the Events channel was closed, nil for a local Close.
	Err() error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// AckEmitter is implemented by connections whose protocol acknowledges emits.
type AckEmitter interface {
	EmitWithAck(ctx context.Context, event domain.EventType, payload any) error
}
