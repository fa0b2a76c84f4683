package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

const (
	// DefaultHandshakeTimeout bounds a single dial including authentication.
	DefaultHandshakeTimeout = 20 * time.Second
	// DefaultBaseDelay is the first reconnection delay.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps the reconnection delay.
	DefaultMaxDelay = 5 * time.Second
	// DefaultMaxReconnectAttempts bounds consecutive reconnection attempts.
	DefaultMaxReconnectAttempts = 5

	// leaveTimeout bounds the best-effort leave emits during Disconnect.
	leaveTimeout = 2 * time.Second
)

// ConnectConfig describes the connection a ConnectionManager maintains.
type ConnectConfig struct {
	URL  string
	Path string
	// UserID selects the user room. When empty it is resolved from the token.
	UserID           string
	HandshakeTimeout time.Duration
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	// MaxReconnectAttempts of -1 retries forever.
	MaxReconnectAttempts int
}

// DefaultConnectConfig returns the connection parameters for url.
func DefaultConnectConfig(url string) ConnectConfig {
	return ConnectConfig{
		URL:                  url,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		BaseDelay:            DefaultBaseDelay,
		MaxDelay:             DefaultMaxDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}

// Validate checks the config and fills unset durations with defaults.
func (c *ConnectConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", apperrors.ErrInvalidConfig)
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("%w: max delay %s is below base delay %s", apperrors.ErrInvalidConfig, c.MaxDelay, c.BaseDelay)
	}
	if c.MaxReconnectAttempts < -1 {
		return fmt.Errorf("%w: max reconnect attempts must be -1 or more", apperrors.ErrInvalidConfig)
	}
	return nil
}

func (c ConnectConfig) backoff() Backoff {
	return Backoff{Base: c.BaseDelay, Max: c.MaxDelay, MaxAttempts: c.MaxReconnectAttempts}
}

// ConnectionManager owns one logical push connection. It authenticates,
// reconnects with exponential backoff, tracks room membership and forwards
// every inbound event verbatim to the registry. It knows nothing about
// tickets.
type ConnectionManager struct {
	transport ports.Transport
	tokens    ports.TokenProvider
	resolver  ports.UserResolver
	registry  *SubscriptionRegistry
	logger    *slog.Logger

	// mu protects everything below
	mu      sync.Mutex
	cfg     ConnectConfig
	backoff Backoff
	state   domain.ConnectionState
	attempt int
	userID  string
	connID  string
	conn    ports.TransportConn
	rooms   map[string]struct{}
	cancel  context.CancelFunc
	gen     uint64
	waiters []chan error
}

// NewConnectionManager creates a disconnected manager. resolver may be nil
// when every ConnectConfig carries a UserID.
func NewConnectionManager(
	transport ports.Transport,
	tokens ports.TokenProvider,
	resolver ports.UserResolver,
	registry *SubscriptionRegistry,
	logger *slog.Logger,
) *ConnectionManager {
	if logger == nil {
		logger = logging.Discard()
	}
	if registry == nil {
		registry = NewSubscriptionRegistry(logger)
	}
	return &ConnectionManager{
		transport: transport,
		tokens:    tokens,
		resolver:  resolver,
		registry:  registry,
		logger:    logger.With("component", "connection_manager"),
		state:     domain.StateDisconnected,
		rooms:     make(map[string]struct{}),
	}
}

// Registry returns the registry inbound events are dispatched to.
func (m *ConnectionManager) Registry() *SubscriptionRegistry {
	return m.registry
}

// Connect establishes the connection. It returns nil once connected, the
// exhaustion error when every attempt failed, or ctx's error when ctx ends
// first. In the last case the manager keeps retrying in the background.
func (m *ConnectionManager) Connect(ctx context.Context, cfg ConnectConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	switch {
	case m.state == domain.StateConnected:
		m.mu.Unlock()
		return nil
	case m.state.IsActive():
		wait := m.addWaiterLocked()
		m.mu.Unlock()
		return m.await(ctx, wait)
	}
	m.mu.Unlock()

	token, err := m.tokens.GetToken(ctx, false)
	if err != nil || token == "" {
		m.logger.Warn("no credential available, not connecting", "error", err)
		return apperrors.NewAuthenticationError(err)
	}

	userID := cfg.UserID
	if userID == "" && m.resolver != nil {
		userID, err = m.resolver.ResolveUserID(token)
		if err != nil {
			return apperrors.NewAuthenticationError(err)
		}
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidConfig)
	}

	m.mu.Lock()
	// Another Connect may have won the race while the token was fetched.
	if m.state == domain.StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.state.IsActive() {
		wait := m.addWaiterLocked()
		m.mu.Unlock()
		return m.await(ctx, wait)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.gen++
	gen := m.gen
	m.cfg = cfg
	m.backoff = cfg.backoff()
	m.userID = userID
	connID := uuid.NewString()
	m.connID = connID
	m.cancel = cancel
	m.attempt = 0
	prev := m.state
	m.state = domain.StateConnecting
	wait := m.addWaiterLocked()
	logger := m.logger.With("connection_id", connID)
	m.mu.Unlock()

	logger.Info("connecting", "url", cfg.URL, "user_id", userID)
	m.publish(domain.StateChange{Previous: prev, Current: domain.StateConnecting})

	go m.supervise(logging.WithConnectionID(runCtx, connID), gen, token, logger)

	return m.await(ctx, wait)
}

// Disconnect leaves every ticket room, tears the transport down, stops
// reconnecting and clears every registry subscription. Safe to call
// repeatedly.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	prev := m.state
	conn := m.conn
	rooms := m.sortedRoomsLocked()
	clear(m.rooms)
	m.conn = nil
	m.state = domain.StateDisconnected
	m.attempt = 0
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.notifyLocked(apperrors.ErrNotConnected)
	m.mu.Unlock()

	if conn != nil {
		if prev == domain.StateConnected {
			ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
			for _, room := range rooms {
				if err := conn.Emit(ctx, domain.EventLeaveTicketRoom, room); err != nil {
					m.logger.Warn("failed to leave ticket room", "ticket_id", room, "error", err)
				}
			}
			cancel()
		}
		if err := conn.Close(); err != nil {
			m.logger.Warn("failed to close transport", "error", err)
		}
	}

	if prev != domain.StateDisconnected {
		m.logger.Info("disconnected", "rooms_left", len(rooms))
		m.publish(domain.StateChange{Previous: prev, Current: domain.StateDisconnected})
	}
	m.registry.Clear()
}

// JoinTicketRoom subscribes to a ticket's room. It returns false and does
// nothing unless connected.
func (m *ConnectionManager) JoinTicketRoom(ctx context.Context, ticketID string) bool {
	conn, ok := m.recordRoom(ticketID)
	if !ok {
		return false
	}
	if err := conn.Emit(ctx, domain.EventJoinTicketRoom, ticketID); err != nil {
		m.logger.Warn("failed to join ticket room", "ticket_id", ticketID, "error", err)
	}
	return true
}

// JoinTicketRoomAck joins a ticket room and waits for the server to
// acknowledge it when the transport supports acknowledgements. Otherwise it
// returns as soon as the join was sent.
func (m *ConnectionManager) JoinTicketRoomAck(ctx context.Context, ticketID string) error {
	conn, ok := m.recordRoom(ticketID)
	if !ok {
		return apperrors.ErrRoomOperationIgnored
	}
	if acker, ok := conn.(ports.AckEmitter); ok {
		return acker.EmitWithAck(ctx, domain.EventJoinTicketRoom, ticketID)
	}
	return conn.Emit(ctx, domain.EventJoinTicketRoom, ticketID)
}

// LeaveTicketRoom unsubscribes from a ticket's room. It only emits while
// connected; while reconnecting the room is forgotten so it is not re-joined.
func (m *ConnectionManager) LeaveTicketRoom(ctx context.Context, ticketID string) bool {
	m.mu.Lock()
	if m.state == domain.StateReconnecting {
		delete(m.rooms, ticketID)
	}
	if m.state != domain.StateConnected || m.conn == nil || ticketID == "" {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug("ignoring leave while not connected", "ticket_id", ticketID, "state", state.String())
		return false
	}
	delete(m.rooms, ticketID)
	conn := m.conn
	m.mu.Unlock()

	if err := conn.Emit(ctx, domain.EventLeaveTicketRoom, ticketID); err != nil {
		m.logger.Warn("failed to leave ticket room", "ticket_id", ticketID, "error", err)
	}
	return true
}

func (m *ConnectionManager) recordRoom(ticketID string) (ports.TransportConn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateConnected || m.conn == nil || ticketID == "" {
		m.logger.Debug("ignoring join while not connected", "ticket_id", ticketID, "state", m.state.String())
		return nil, false
	}
	m.rooms[ticketID] = struct{}{}
	return m.conn, true
}

// State returns the current connection state.
func (m *ConnectionManager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is up.
func (m *ConnectionManager) IsConnected() bool {
	return m.State() == domain.StateConnected
}

// Attempt returns the number of consecutive failed attempts since the last
// successful connect.
func (m *ConnectionManager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Rooms returns the joined ticket rooms in sorted order.
func (m *ConnectionManager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedRoomsLocked()
}

// Memberships returns every room currently joined: the user room while
// connected, followed by the ticket rooms.
func (m *ConnectionManager) Memberships() []domain.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]domain.Room, 0, len(m.rooms)+1)
	if m.state == domain.StateConnected && m.userID != "" {
		rooms = append(rooms, domain.UserRoom(m.userID))
	}
	for _, id := range m.sortedRoomsLocked() {
		rooms = append(rooms, domain.TicketRoom(id))
	}
	return rooms
}

// UserID returns the user whose room is joined on every connect.
func (m *ConnectionManager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// ConnectionID identifies the current Connect generation in logs.
func (m *ConnectionManager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

func (m *ConnectionManager) sortedRoomsLocked() []string {
	rooms := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		rooms = append(rooms, id)
	}
	slices.Sort(rooms)
	return rooms
}

// supervise runs one Connect generation until it is cancelled or exhausted.
// It is the only goroutine that dispatches inbound events.
func (m *ConnectionManager) supervise(ctx context.Context, gen uint64, token string, logger *slog.Logger) {
	defer logger.Debug("supervisor stopped")

	var err error
	for {
		lost := false
		if token != "" {
			lost, err = m.session(ctx, gen, token, logger)
		}
		if ctx.Err() != nil {
			return
		}

		delay, ok := m.scheduleRetry(gen, err, !lost, logger)
		if !ok {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		token, err = m.freshToken(ctx, errors.Is(err, apperrors.ErrAuthRejected))
		if err != nil {
			logger.Warn("credential refresh failed", "error", err)
		}
	}
}

func (m *ConnectionManager) freshToken(ctx context.Context, force bool) (string, error) {
	token, err := m.tokens.GetToken(ctx, force)
	if err != nil || token == "" {
		return "", apperrors.NewAuthenticationError(err)
	}
	return token, nil
}

// session dials once and pumps inbound events until the connection is lost.
// lost is true when the dial succeeded and a live connection dropped.
func (m *ConnectionManager) session(ctx context.Context, gen uint64, token string, logger *slog.Logger) (lost bool, err error) {
	m.mu.Lock()
	cfg := m.cfg
	userID := m.userID
	attempt := m.attempt
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	conn, err := m.transport.Dial(dialCtx, ports.DialParams{
		URL:     cfg.URL,
		Path:    cfg.Path,
		Token:   token,
		UserID:  userID,
		Timeout: cfg.HandshakeTimeout,
	})
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut && ctx.Err() == nil && !errors.Is(err, apperrors.ErrConnectionTimeout) {
			err = apperrors.NewTimeoutError("dial", err)
		}
		logger.Warn("dial failed", "attempt", attempt, "error", err)
		return false, err
	}

	rooms, ok := m.attach(ctx, gen, conn)
	if !ok {
		_ = conn.Close()
		return false, apperrors.ErrTransportClosed
	}

	if err := conn.Emit(ctx, domain.EventJoinUserRoom, userID); err != nil {
		logger.Warn("failed to join user room", "user_id", userID, "error", err)
	}
	for _, room := range rooms {
		if err := conn.Emit(ctx, domain.EventJoinTicketRoom, room); err != nil {
			logger.Warn("failed to re-join ticket room", "ticket_id", room, "error", err)
		}
	}

	prev, ok := m.markConnected(ctx, gen)
	if !ok {
		return false, apperrors.ErrTransportClosed
	}
	logger.Info("connected", "user_room", domain.UserRoom(userID), "rooms", len(rooms))
	m.publish(domain.StateChange{Previous: prev, Current: domain.StateConnected})
	m.release(nil)

	err = m.pump(ctx, conn)
	if ctx.Err() != nil {
		// Disconnect owns the connection now.
		return false, err
	}

	_ = conn.Close()
	logger.Warn("connection lost", "error", err)
	m.markLost(gen, err)
	return true, err
}

// attach installs conn as the live connection and returns the ticket rooms
// to re-join.
func (m *ConnectionManager) attach(ctx context.Context, gen uint64, conn ports.TransportConn) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil || gen != m.gen {
		return nil, false
	}
	m.conn = conn
	return m.sortedRoomsLocked(), true
}

func (m *ConnectionManager) markConnected(ctx context.Context, gen uint64) (domain.ConnectionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil || gen != m.gen {
		return m.state, false
	}
	prev := m.state
	m.state = domain.StateConnected
	m.attempt = 0
	return prev, true
}

func (m *ConnectionManager) markLost(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state != domain.StateConnected {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = domain.StateReconnecting
	attempt := m.attempt
	m.mu.Unlock()

	m.publish(domain.StateChange{
		Previous: domain.StateConnected,
		Current:  domain.StateReconnecting,
		Attempt:  attempt,
		Err:      cause,
	})
}

// scheduleRetry returns the delay before the next dial. A failed dial counts
// as an attempt; the loss of a live connection does not. It returns false
// once the bound is reached and the manager has moved to Failed.
func (m *ConnectionManager) scheduleRetry(gen uint64, cause error, counted bool, logger *slog.Logger) (time.Duration, bool) {
	m.mu.Lock()
	if gen != m.gen || !m.state.IsActive() {
		m.mu.Unlock()
		return 0, false
	}

	if counted {
		m.attempt++
	}
	attempts := m.attempt
	prev := m.state

	if m.backoff.Exhausted(attempts) {
		failure := apperrors.NewReconnectExhaustedError(attempts, cause)
		m.state = domain.StateFailed
		m.conn = nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.mu.Unlock()

		logger.Error("giving up reconnecting", "attempts", attempts, "error", cause)
		m.publish(domain.StateChange{Previous: prev, Current: domain.StateFailed, Attempt: attempts, Err: failure})
		m.release(failure)
		return 0, false
	}

	delay := m.backoff.Delay(max(attempts-1, 0))
	changed := prev != domain.StateReconnecting
	m.state = domain.StateReconnecting
	m.mu.Unlock()

	logger.Info("reconnecting", "attempt", attempts, "delay", delay)
	if changed {
		m.publish(domain.StateChange{Previous: prev, Current: domain.StateReconnecting, Attempt: attempts, Err: cause})
	}
	return delay, true
}

func (m *ConnectionManager) pump(ctx context.Context, conn ports.TransportConn) error {
	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := conn.Err(); err != nil {
					return err
				}
				return apperrors.ErrTransportClosed
			}
			if ev.ReceivedAt.IsZero() {
				ev.ReceivedAt = time.Now()
			}
			_ = m.registry.Dispatch(ev)
		}
	}
}

func (m *ConnectionManager) publish(change domain.StateChange) {
	if signal := change.Signal(); signal != "" {
		m.logger.Debug("lifecycle signal", "signal", signal, "from", change.Previous.String(), "to", change.Current.String())
	}
	m.registry.PublishState(change)
}

func (m *ConnectionManager) addWaiterLocked() <-chan error {
	ch := make(chan error, 1)
	m.waiters = append(m.waiters, ch)
	return ch
}

func (m *ConnectionManager) release(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyLocked(err)
}

func (m *ConnectionManager) notifyLocked(err error) {
	for _, ch := range m.waiters {
		ch <- err
	}
	m.waiters = nil
}

func (m *ConnectionManager) await(ctx context.Context, wait <-chan error) error {
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
