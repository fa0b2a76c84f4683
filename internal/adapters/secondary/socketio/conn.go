package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
)

// emitter is the part of *socket.Socket a Conn writes through.
type emitter interface {
	Emit(ev string, args ...any) error
}

// Conn adapts one Socket.IO socket to ports.TransportConn.
type Conn struct {
	sock   *socket.Socket
	out    emitter
	logger *slog.Logger

	events    chan domain.InboundEvent
	done      chan struct{}
	closeOnce sync.Once

	// mu guards closed and err; deliver holds the read lock while sending.
	mu     sync.RWMutex
	closed bool
	err    error
}

var (
	_ ports.TransportConn = (*Conn)(nil)
	_ ports.AckEmitter    = (*Conn)(nil)
)

func newConn(sock *socket.Socket, logger *slog.Logger) *Conn {
	c := &Conn{
		sock:   sock,
		logger: logger,
		events: make(chan domain.InboundEvent, 256),
		done:   make(chan struct{}),
	}
	if sock != nil {
		c.out = sock
	}
	return c
}

// Emit sends an outbound signal without waiting for an acknowledgement.
func (c *Conn) Emit(_ context.Context, event domain.EventType, payload any) error {
	if c.isDone() {
		return apperrors.ErrTransportClosed
	}
	if err := c.out.Emit(string(event), payload); err != nil {
		return apperrors.NewTransportError(string(event), err)
	}
	return nil
}

// EmitWithAck sends an outbound signal and waits for the server to
// acknowledge it. An acknowledgement carrying an error field fails.
func (c *Conn) EmitWithAck(ctx context.Context, event domain.EventType, payload any) error {
	if c.isDone() {
		return apperrors.ErrTransportClosed
	}

	acked := make(chan error, 1)
	err := c.out.Emit(string(event), payload, func(args []any, err error) {
		if err == nil {
			err = ackError(args)
		}
		acked <- err
	})
	if err != nil {
		return apperrors.NewTransportError(string(event), err)
	}

	select {
	case err := <-acked:
		if err != nil {
			return apperrors.NewTransportError(string(event), err)
		}
		return nil
	case <-c.done:
		return apperrors.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events delivers push events in arrival order.
func (c *Conn) Events() <-chan domain.InboundEvent {
	return c.events
}

// Err returns the disconnect reason; nil after a local Close.
func (c *Conn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close disconnects the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.shutdown(nil)
	if c.sock != nil {
		c.sock.Disconnect()
	}
	return nil
}

func (c *Conn) fail(err error) {
	c.shutdown(err)
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		c.err = err
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
}

func (c *Conn) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// deliver re-encodes the first event argument and queues it.
func (c *Conn) deliver(name domain.EventType, args []any) {
	payload, err := encodeArg(args)
	if err != nil {
		c.logger.Warn("dropping undecodable event", "event", name, "error", err)
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.events <- domain.InboundEvent{Name: name, Payload: payload, ReceivedAt: time.Now()}:
	case <-c.done:
	}
}

func encodeArg(args []any) (json.RawMessage, error) {
	if len(args) == 0 || args[0] == nil {
		return json.RawMessage("null"), nil
	}
	switch v := args[0].(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		if json.Valid(v) {
			return json.RawMessage(v), nil
		}
	}
	return json.Marshal(args[0])
}

func ackError(args []any) error {
	if len(args) == 0 {
		return nil
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil
	}
	switch v := m["error"].(type) {
	case nil:
		return nil
	case string:
		return errors.New(v)
	default:
		b, _ := json.Marshal(v)
		return errors.New(string(b))
	}
}
