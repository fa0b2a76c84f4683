package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// RealtimeService is the interface UI consumers use. It wires the
// connection manager to the synchronizer and the stats counters.
type RealtimeService struct {
	manager *ConnectionManager
	sync    *TicketSynchronizer
	stats   *StatsAggregator
	logger  *slog.Logger

	mu       sync.Mutex
	attached bool
}

var _ ports.RealtimeView = (*RealtimeService)(nil)

// NewRealtimeService creates a new realtime service.
func NewRealtimeService(
	manager *ConnectionManager,
	synchronizer *TicketSynchronizer,
	stats *StatsAggregator,
	logger *slog.Logger,
) *RealtimeService {
	if logger == nil {
		logger = logging.Discard()
	}
	if synchronizer == nil {
		synchronizer = NewTicketSynchronizer(nil, logger)
	}
	if stats == nil {
		stats = NewStatsAggregator()
	}
	return &RealtimeService{
		manager: manager,
		sync:    synchronizer,
		stats:   stats,
		logger:  logger.With("component", "realtime_service"),
	}
}

// Connect attaches the internal consumers and connects.
func (s *RealtimeService) Connect(ctx context.Context, cfg ConnectConfig) error {
	s.attach()
	return s.manager.Connect(ctx, cfg)
}

// Disconnect tears the connection down. Every subscription made through the
// Subscribe methods is dropped and the counters are reset.
func (s *RealtimeService) Disconnect() {
	s.manager.Disconnect()

	s.mu.Lock()
	s.attached = false
	s.mu.Unlock()

	s.stats.Reset()
	s.sync.Reset()
}

func (s *RealtimeService) attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return
	}

	registry := s.manager.Registry()
	registry.Messages().Subscribe(func(msg *domain.MessageRecord) {
		if s.sync.AppendMessage(msg) {
			s.stats.RecordMessage()
		}
	})
	registry.Tickets().Subscribe(func(t *domain.NewTicket) {
		s.stats.RecordTicket()
		s.logger.Debug("new ticket", "ticket_id", t.ID())
	})
	registry.TicketUpdates().Subscribe(func(u *domain.TicketUpdate) {
		s.sync.ApplyTicketUpdate(u)
	})
	s.attached = true
}

// ConnectTicketRoom opens a ticket and joins its room.
func (s *RealtimeService) ConnectTicketRoom(ctx context.Context, ticketID string) bool {
	s.sync.OpenTicket(ticketID)
	return s.manager.JoinTicketRoom(ctx, ticketID)
}

// DesubscribeTicketRoom closes a ticket and leaves its room.
func (s *RealtimeService) DesubscribeTicketRoom(ctx context.Context, ticketID string) bool {
	s.sync.CloseTicket(ticketID)
	return s.manager.LeaveTicketRoom(ctx, ticketID)
}

// SubscribeToMessages registers fn for every accepted new message.
func (s *RealtimeService) SubscribeToMessages(fn func(*domain.MessageRecord)) func() {
	return s.manager.Registry().Messages().Subscribe(fn)
}

// SubscribeToTickets registers fn for every new ticket.
func (s *RealtimeService) SubscribeToTickets(fn func(*domain.NewTicket)) func() {
	return s.manager.Registry().Tickets().Subscribe(fn)
}

// SubscribeToTicketUpdates registers fn for every ticket-updated event.
func (s *RealtimeService) SubscribeToTicketUpdates(fn func(*domain.TicketUpdate)) func() {
	return s.manager.Registry().TicketUpdates().Subscribe(fn)
}

// SubscribeToState registers fn for connection state changes.
func (s *RealtimeService) SubscribeToState(fn func(domain.StateChange)) func() {
	return s.manager.Registry().State().Subscribe(fn)
}

// SubscribeToTicketList registers fn for every republished ticket list.
// List subscriptions belong to the synchronizer and survive Disconnect.
func (s *RealtimeService) SubscribeToTicketList(fn func([]domain.TicketViewRecord)) func() {
	return s.sync.SubscribeList(fn)
}

// IsConnected reports whether the push connection is up.
func (s *RealtimeService) IsConnected() bool {
	return s.manager.IsConnected()
}

// State returns the connection state.
func (s *RealtimeService) State() domain.ConnectionState {
	return s.manager.State()
}

// Messages returns the retained message feed in arrival order.
func (s *RealtimeService) Messages() []domain.MessageRecord {
	return s.sync.Messages()
}

// Stats returns the dashboard counters.
func (s *RealtimeService) Stats() domain.StatsSnapshot {
	return s.stats.Snapshot()
}

// Tickets returns the ordered ticket view.
func (s *RealtimeService) Tickets() []domain.TicketViewRecord {
	return s.sync.Tickets()
}

// Status summarises the connection and the view.
func (s *RealtimeService) Status() domain.ConnectionStatus {
	state := s.manager.State()
	return domain.ConnectionStatus{
		State:        state.String(),
		Connected:    state == domain.StateConnected,
		Attempt:      s.manager.Attempt(),
		UserID:       s.manager.UserID(),
		Rooms:        s.manager.Rooms(),
		Memberships:  s.manager.Memberships(),
		OpenTicketID: s.sync.OpenTicketID(),
		UnreadCount:  s.sync.UnreadCount(),
		Stats:        s.stats.Snapshot(),
	}
}

// Synchronizer exposes the ticket view for loaders.
func (s *RealtimeService) Synchronizer() *TicketSynchronizer {
	return s.sync
}
