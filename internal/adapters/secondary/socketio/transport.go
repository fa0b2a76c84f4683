// Package socketio implements the realtime transport over Socket.IO, where
// the backend emits each push event under its own event name.
package socketio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// Transport dials a Socket.IO endpoint. The library's own reconnection is
// disabled; the connection manager owns retries.
type Transport struct {
	logger *slog.Logger
}

var _ ports.Transport = (*Transport)(nil)

func NewTransport(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Transport{logger: logger.With("component", "socketio_transport")}
}

// Dial connects and waits for the server to accept the handshake auth. The
// token travels both in the auth payload and as a bearer header.
func (t *Transport) Dial(ctx context.Context, params ports.DialParams) (ports.TransportConn, error) {
	opts := socket.DefaultOptions()
	opts.SetAutoConnect(false)
	if params.Path != "" {
		opts.SetPath(params.Path)
	}
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetReconnection(false)
	if params.Timeout > 0 {
		opts.SetTimeout(params.Timeout)
	}
	opts.SetAuth(map[string]any{
		"token":  params.Token,
		"userId": params.UserID,
	})
	header := http.Header{}
	header.Set("Authorization", "Bearer "+params.Token)
	opts.SetExtraHeaders(header)

	sock, err := socket.Connect(params.URL, opts)
	if err != nil {
		return nil, apperrors.NewTransportError("dial", err)
	}

	conn := newConn(sock, t.logger)
	ready := make(chan error, 1)
	signal := func(err error) {
		select {
		case ready <- err:
		default:
		}
	}

	sock.On(types.EventName("connect"), func(...any) {
		signal(nil)
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		signal(connectError(args))
	})
	sock.On(types.EventName("disconnect"), func(args ...any) {
		conn.fail(disconnectError(args))
	})
	for _, name := range domain.PushEvents {
		name := name
		sock.On(types.EventName(name), func(args ...any) {
			conn.deliver(name, args)
		})
	}

	// Handlers are in place before the handshake starts.
	sock.Connect()

	var timeout <-chan time.Time
	if params.Timeout > 0 {
		timer := time.NewTimer(params.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-ready:
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	case <-timeout:
		_ = conn.Close()
		return nil, apperrors.NewTimeoutError("dial", context.DeadlineExceeded)
	case <-ctx.Done():
		_ = conn.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("dial", ctx.Err())
		}
		return nil, ctx.Err()
	}

	t.logger.Debug("socket.io connected", "socket_id", string(sock.Id()))
	return conn, nil
}

// connectError classifies a connect_error. Middleware rejections that name
// the credential become auth rejections.
func connectError(args []any) error {
	msg := describeArg(args)
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "auth") || strings.Contains(lower, "token") || strings.Contains(lower, "unauthorized") {
		return apperrors.NewTransportError("dial", fmt.Errorf("%w: %s", apperrors.ErrAuthRejected, msg))
	}
	return apperrors.NewTransportError("dial", errors.New(msg))
}

func disconnectError(args []any) error {
	return apperrors.NewTransportError("read", fmt.Errorf("%w: %s", apperrors.ErrTransportClosed, describeArg(args)))
}

func describeArg(args []any) string {
	if len(args) == 0 || args[0] == nil {
		return "unknown reason"
	}
	switch v := args[0].(type) {
	case string:
		return v
	case error:
		return v.Error()
	case map[string]any:
		if m, ok := v["message"].(string); ok {
			return m
		}
	}
	return fmt.Sprintf("%v", args[0])
}
