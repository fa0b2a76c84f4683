package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// Emitted is one outbound signal recorded by a FakeConn.
type Emitted struct {
	Event   domain.EventType
	Payload any
}

// FakeTransport is an in-memory ports.Transport. Dials succeed unless a
// failure was queued with FailNext or set with FailAlways.
type FakeTransport struct {
	// WithAck makes dialed connections implement ports.AckEmitter.
	WithAck bool

	mu       sync.Mutex
	queued   []error
	failures error
	dials    []ports.DialParams
	conns    []*FakeConn
	dialed   chan *FakeConn
}

var _ ports.Transport = (*FakeTransport)(nil)

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{dialed: make(chan *FakeConn, 64)}
}

// FailNext queues errors returned by the next dials, in order.
func (t *FakeTransport) FailNext(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued = append(t.queued, errs...)
}

// FailAlways makes every dial fail with err until it is called with nil.
func (t *FakeTransport) FailAlways(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = err
}

func (t *FakeTransport) Dial(ctx context.Context, params ports.DialParams) (ports.TransportConn, error) {
	t.mu.Lock()
	t.dials = append(t.dials, params)
	if len(t.queued) > 0 {
		err := t.queued[0]
		t.queued = t.queued[1:]
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
	} else if t.failures != nil {
		err := t.failures
		t.mu.Unlock()
		return nil, err
	}

	conn := NewFakeConn()
	t.conns = append(t.conns, conn)
	withAck := t.WithAck
	t.mu.Unlock()

	select {
	case t.dialed <- conn:
	default:
	}

	if withAck {
		return &FakeAckConn{FakeConn: conn}, nil
	}
	return conn, nil
}

// Dials returns the parameters of every dial so far.
func (t *FakeTransport) Dials() []ports.DialParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ports.DialParams, len(t.dials))
	copy(out, t.dials)
	return out
}

// DialCount returns the number of dials so far.
func (t *FakeTransport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dials)
}

// LastConn returns the most recently dialed connection, or nil.
func (t *FakeTransport) LastConn() *FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// NextConn waits for the next successful dial.
func (t *FakeTransport) NextConn(timeout time.Duration) *FakeConn {
	select {
	case conn := <-t.dialed:
		return conn
	case <-time.After(timeout):
		return nil
	}
}

// FakeConn is an in-memory ports.TransportConn.
type FakeConn struct {
	events chan domain.InboundEvent

	mu      sync.Mutex
	emitted []Emitted
	closed  bool
	err     error
}

var _ ports.TransportConn = (*FakeConn)(nil)

func NewFakeConn() *FakeConn {
	return &FakeConn{events: make(chan domain.InboundEvent, 64)}
}

func (c *FakeConn) Emit(_ context.Context, event domain.EventType, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.ErrTransportClosed
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: payload})
	return nil
}

func (c *FakeConn) Events() <-chan domain.InboundEvent {
	return c.events
}

func (c *FakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *FakeConn) Close() error {
	c.shutdown(nil)
	return nil
}

// Drop simulates the server side losing the connection.
func (c *FakeConn) Drop(err error) {
	if err == nil {
		err = apperrors.ErrTransportClosed
	}
	c.shutdown(err)
}

func (c *FakeConn) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.events)
}

// Push delivers an inbound event. payload is JSON encoded unless it already
// is a json.RawMessage.
func (c *FakeConn) Push(name domain.EventType, payload any) error {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.ErrTransportClosed
	}
	c.events <- domain.InboundEvent{Name: name, Payload: raw, ReceivedAt: time.Now()}
	return nil
}

// Emitted returns every outbound signal in emit order.
func (c *FakeConn) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Emitted, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// Payloads returns the payloads emitted for event, in emit order.
func (c *FakeConn) Payloads(event domain.EventType) []any {
	var out []any
	for _, e := range c.Emitted() {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Closed reports whether Close or Drop was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakeAckConn is a FakeConn whose emits are acknowledged with AckErr.
type FakeAckConn struct {
	*FakeConn
	AckErr error
}

var _ ports.AckEmitter = (*FakeAckConn)(nil)

func (c *FakeAckConn) EmitWithAck(ctx context.Context, event domain.EventType, payload any) error {
	if err := c.Emit(ctx, event, payload); err != nil {
		return err
	}
	return c.AckErr
}
