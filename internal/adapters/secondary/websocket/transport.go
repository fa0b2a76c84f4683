package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Default time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// authEvent is the first frame sent after the upgrade.
	authEvent = "auth"

	// CloseAuthRejected is the close code a server uses to refuse a credential.
	CloseAuthRejected = 4401
)

// envelope is the JSON frame exchanged in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Transport dials the realtime endpoint over a plain WebSocket.
type Transport struct {
	pongWait   time.Duration
	pingPeriod time.Duration
	logger     *slog.Logger
}

var _ ports.Transport = (*Transport)(nil)

// NewTransport creates a WebSocket transport. pingInterval must be less than
// pongWait; zero values fall back to 60s and 90% of pongWait.
func NewTransport(pingInterval, pongWait time.Duration, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = logging.Discard()
	}
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	if pingInterval <= 0 || pingInterval >= pongWait {
		pingInterval = (pongWait * 9) / 10
	}
	return &Transport{
		pongWait:   pongWait,
		pingPeriod: pingInterval,
		logger:     logger.With("component", "websocket_transport"),
	}
}

// Dial upgrades the connection, presenting the token both as a bearer header
// and as the first frame.
func (t *Transport) Dial(ctx context.Context, params ports.DialParams) (ports.TransportConn, error) {
	endpoint, err := Endpoint(params.URL, params.Path)
	if err != nil {
		return nil, apperrors.NewTransportError("dial", err)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: params.Timeout,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+params.Token)

	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, classifyDialError(resp, err)
	}

	conn := newConn(ws, t.pingPeriod, t.pongWait, t.logger)

	token, _ := json.Marshal(map[string]string{"token": params.Token})
	if err := conn.writeFrame(envelope{Type: authEvent, Payload: token}); err != nil {
		_ = ws.Close()
		return nil, apperrors.NewTransportError("auth", err)
	}

	go conn.writePump()
	go conn.readPump()

	return conn, nil
}

// Endpoint joins base and path and maps http schemes to their ws equivalents.
func Endpoint(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid realtime url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}

	if path != "" {
		u.Path = "/" + strings.TrimPrefix(path, "/")
	}
	return u.String(), nil
}

func classifyDialError(resp *http.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.NewTransportError("dial",
				fmt.Errorf("%w: status %d", apperrors.ErrAuthRejected, resp.StatusCode))
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewTimeoutError("dial", err)
	}

	return apperrors.NewTransportError("dial", err)
}
