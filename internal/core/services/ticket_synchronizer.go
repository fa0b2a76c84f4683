package services

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

const (
	storeTimeout = 2 * time.Second
	// restoreMessageIDs is how many remembered message ids Restore reloads.
	restoreMessageIDs = 500
)

// TicketSynchronizer merges push events into the independently fetched
// ticket list. The view is kept sorted by last message time, newest first,
// with no duplicate ids.
type TicketSynchronizer struct {
	store  ports.ReadStateStore
	logger *slog.Logger
	list   *Topic[[]domain.TicketViewRecord]

	// mu protects everything below
	mu         sync.Mutex
	view       []domain.TicketViewRecord
	pagination domain.Pagination
	overlay    map[string]domain.LastMessage
	unread     map[string]bool
	openID     string
	messages   []domain.MessageRecord
	seen       map[string]struct{}
}

// NewTicketSynchronizer creates an empty synchronizer. A nil store keeps
// read state in memory only.
func NewTicketSynchronizer(store ports.ReadStateStore, logger *slog.Logger) *TicketSynchronizer {
	if logger == nil {
		logger = logging.Discard()
	}
	if store == nil {
		store = NewMemoryReadStateStore()
	}
	logger = logger.With("component", "ticket_synchronizer")
	return &TicketSynchronizer{
		store:   store,
		logger:  logger,
		list:    NewTopic[[]domain.TicketViewRecord]("ticket-list", logger),
		overlay: make(map[string]domain.LastMessage),
		unread:  make(map[string]bool),
		seen:    make(map[string]struct{}),
	}
}

// Restore reloads unread markers and recently seen message ids.
func (s *TicketSynchronizer) Restore(ctx context.Context) error {
	unread, err := s.store.ListUnread(ctx)
	if err != nil {
		return err
	}
	seen, err := s.store.RecentMessageIDs(ctx, restoreMessageIDs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, id := range unread {
		s.unread[id] = true
	}
	for _, id := range seen {
		s.seen[id] = struct{}{}
	}
	for i := range s.view {
		s.view[i].Unread = s.unread[s.view[i].ID]
	}
	s.mu.Unlock()

	s.logger.Info("read state restored", "unread", len(unread), "seen_messages", len(seen))
	return nil
}

// ApplyTicketUpdate moves a ticket to its new position after a
// ticket-updated event. Tickets missing from the view are ignored.
func (s *TicketSynchronizer) ApplyTicketUpdate(update *domain.TicketUpdate) bool {
	if update == nil || update.TicketID == "" {
		return false
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.view, func(t domain.TicketViewRecord) bool { return t.ID == update.TicketID })
	if idx < 0 {
		s.mu.Unlock()
		s.logger.Debug("update for ticket outside the view", "ticket_id", update.TicketID)
		return false
	}

	msg := update.Message
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	rec := s.view[idx]
	rec.ApplyMessage(msg)
	s.overlay[rec.ID] = msg

	markUnread := rec.ID != s.openID && !s.unread[rec.ID]
	if rec.ID != s.openID {
		s.unread[rec.ID] = true
		rec.Unread = true
	}

	// Updated in place so equal timestamps keep their relative order.
	s.view[idx] = rec
	sortByRecency(s.view)
	snapshot := slices.Clone(s.view)
	s.mu.Unlock()

	if markUnread {
		s.persistUnread(rec.ID, true)
	}
	s.list.Publish(snapshot)
	return true
}

// ApplyPage makes page the new baseline. Push updates newer than the fetched
// values are re-applied to tickets still present; the rest are dropped.
func (s *TicketSynchronizer) ApplyPage(page *domain.TicketPage) {
	if page == nil {
		return
	}

	view := make([]domain.TicketViewRecord, 0, len(page.Data))
	present := make(map[string]struct{}, len(page.Data))
	for _, rec := range page.Data {
		if rec.ID == "" {
			continue
		}
		if _, dup := present[rec.ID]; dup {
			continue
		}
		present[rec.ID] = struct{}{}
		view = append(view, rec)
	}

	s.mu.Lock()
	for i := range view {
		rec := &view[i]
		if rec.LastMessageAt.IsZero() {
			rec.LastMessageAt = rec.LastMessage.Timestamp
		}
		if msg, ok := s.overlay[rec.ID]; ok {
			if msg.Timestamp.After(rec.LastMessageAt) {
				rec.ApplyMessage(msg)
			} else {
				delete(s.overlay, rec.ID)
			}
		}
		rec.Unread = s.unread[rec.ID]
	}
	for id := range s.overlay {
		if _, ok := present[id]; !ok {
			delete(s.overlay, id)
		}
	}
	sortByRecency(view)
	s.view = view
	s.pagination = page.Pagination
	snapshot := slices.Clone(view)
	s.mu.Unlock()

	s.list.Publish(snapshot)
}

// Invalidate drops the baseline ahead of a search or filter change. Unread
// markers are kept.
func (s *TicketSynchronizer) Invalidate() {
	s.mu.Lock()
	s.view = nil
	s.pagination = domain.Pagination{}
	clear(s.overlay)
	s.mu.Unlock()

	s.list.Publish([]domain.TicketViewRecord{})
}

// OpenTicket marks id as the ticket being viewed and clears its unread marker.
func (s *TicketSynchronizer) OpenTicket(id string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	s.openID = id
	wasUnread := s.unread[id]
	delete(s.unread, id)
	changed := false
	for i := range s.view {
		if s.view[i].ID == id && s.view[i].Unread {
			s.view[i].Unread = false
			changed = true
		}
	}
	snapshot := slices.Clone(s.view)
	s.mu.Unlock()

	if wasUnread {
		s.persistUnread(id, false)
	}
	if changed {
		s.list.Publish(snapshot)
	}
}

// CloseTicket clears the open ticket when it is id.
func (s *TicketSynchronizer) CloseTicket(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || s.openID == id {
		s.openID = ""
	}
}

// OpenTicketID returns the ticket being viewed, if any.
func (s *TicketSynchronizer) OpenTicketID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openID
}

// AppendMessage adds msg to the message list unless its id was already seen.
func (s *TicketSynchronizer) AppendMessage(msg *domain.MessageRecord) bool {
	if msg == nil || msg.ID == "" {
		return false
	}

	s.mu.Lock()
	if _, ok := s.seen[msg.ID]; ok {
		s.mu.Unlock()
		s.logger.Debug("duplicate message dropped", "message_id", msg.ID)
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, *msg)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if _, err := s.store.RememberMessage(ctx, msg.ID, msg.TicketID); err != nil {
		s.logger.Warn("failed to remember message", "message_id", msg.ID, "error", err)
	}
	return true
}

// Tickets returns a copy of the current view.
func (s *TicketSynchronizer) Tickets() []domain.TicketViewRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.view)
}

// Pagination returns the window of the current baseline.
func (s *TicketSynchronizer) Pagination() domain.Pagination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagination
}

// Messages returns a copy of the accepted messages in arrival order.
func (s *TicketSynchronizer) Messages() []domain.MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// UnreadCount returns how many tickets are marked unread.
func (s *TicketSynchronizer) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unread)
}

// SubscribeList registers fn for every republished list.
func (s *TicketSynchronizer) SubscribeList(fn func([]domain.TicketViewRecord)) func() {
	return s.list.Subscribe(fn)
}

// Reset drops the accepted messages. Seen ids and read state are kept.
func (s *TicketSynchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.openID = ""
}

func (s *TicketSynchronizer) persistUnread(id string, unread bool) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.SetUnread(ctx, id, unread); err != nil {
		s.logger.Warn("failed to persist unread marker", "ticket_id", id, "unread", unread, "error", err)
	}
}

func sortByRecency(view []domain.TicketViewRecord) {
	slices.SortStableFunc(view, func(a, b domain.TicketViewRecord) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})
}
