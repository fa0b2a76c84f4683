package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// Conn is a middleman between the websocket connection and the connection
// manager.
type Conn struct {
	ws *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Inbound events, closed by the read pump.
	events chan domain.InboundEvent

	// done is closed once the connection is torn down.
	done      chan struct{}
	closeOnce sync.Once

	// closing asks the write pump to flush queued frames and send the close
	// frame. flushed is closed when the write pump exits.
	closing     chan struct{}
	closingOnce sync.Once
	flushed     chan struct{}

	// mu protects err
	mu  sync.Mutex
	err error

	pingPeriod time.Duration
	pongWait   time.Duration
	logger     *slog.Logger
}

var _ ports.TransportConn = (*Conn)(nil)

func newConn(ws *websocket.Conn, pingPeriod, pongWait time.Duration, logger *slog.Logger) *Conn {
	return &Conn{
		ws:         ws,
		send:       make(chan []byte, 64),
		events:     make(chan domain.InboundEvent, 256),
		done:       make(chan struct{}),
		closing:    make(chan struct{}),
		flushed:    make(chan struct{}),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
		logger:     logger,
	}
}

// Emit queues an outbound signal for the write pump.
func (c *Conn) Emit(ctx context.Context, event domain.EventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(envelope{Type: string(event), Payload: raw})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return apperrors.ErrTransportClosed
	case <-c.closing:
		return apperrors.ErrTransportClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return apperrors.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events delivers inbound frames in arrival order.
func (c *Conn) Events() <-chan domain.InboundEvent {
	return c.events
}

// Err returns the reason the connection ended; nil after a local Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close writes every queued frame, sends a close frame and tears the
// connection down.
func (c *Conn) Close() error {
	c.closingOnce.Do(func() { close(c.closing) })

	timer := time.NewTimer(writeWait)
	select {
	case <-c.flushed:
	case <-timer.C:
		c.logger.Debug("write pump did not flush before close")
	}
	timer.Stop()

	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	return nil
}

// fail records err as the reason the connection ended unless it was already
// closed. Errors raised after a local Close are not recorded.
func (c *Conn) fail(err error) {
	select {
	case <-c.closing:
		err = nil
	default:
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump pumps frames from the websocket connection to the events channel.
// This method runs in its own goroutine.
func (c *Conn) readPump() {
	defer close(c.events)

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.fail(apperrors.NewTransportError("read", err))
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(readError(err))
			return
		}

		var frame envelope
		if err := json.Unmarshal(message, &frame); err != nil || frame.Type == "" {
			c.logger.Warn("dropping malformed frame", "error", err, "size", len(message))
			continue
		}

		select {
		case c.events <- domain.InboundEvent{
			Name:       domain.EventType(frame.Type),
			Payload:    frame.Payload,
			ReceivedAt: time.Now(),
		}:
		case <-c.done:
			return
		}
	}
}

// writePump pumps queued frames to the websocket connection and keeps it
// alive with pings. This method runs in its own goroutine.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.flushed)
	}()

	for {
		select {
		case <-c.done:
			return

		case <-c.closing:
			c.flush()
			return

		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.fail(apperrors.NewTransportError("write", err))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.fail(apperrors.NewTransportError("write", err))
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.fail(apperrors.NewTransportError("ping", err))
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(apperrors.NewTransportError("ping", err))
				return
			}
		}
	}
}

// flush writes the frames still queued and then the close frame.
func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("failed to flush frame", "error", err)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("failed to flush frame", "error", err)
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("failed to send close message", "error", err)
			}
			return
		}
	}
}

// writeFrame writes directly, before the pumps start.
func (c *Conn) writeFrame(frame envelope) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(frame)
}

func readError(err error) error {
	if websocket.IsCloseError(err, CloseAuthRejected, websocket.ClosePolicyViolation) {
		return apperrors.NewTransportError("read", fmt.Errorf("%w: %w", apperrors.ErrAuthRejected, err))
	}
	return apperrors.NewTransportError("read", fmt.Errorf("%w: %w", apperrors.ErrTransportClosed, err))
}
