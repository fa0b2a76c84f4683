package services

import (
	"context"
	"sort"
	"sync"

	"github.com/lorrc/service-desk-realtime/internal/core/ports"
)

// MemoryReadStateStore keeps read state for the lifetime of the process.
type MemoryReadStateStore struct {
	mu     sync.Mutex
	unread map[string]struct{}
	seen   map[string]uint64
	seq    uint64
}

var _ ports.ReadStateStore = (*MemoryReadStateStore)(nil)

// NewMemoryReadStateStore creates an empty store.
func NewMemoryReadStateStore() *MemoryReadStateStore {
	return &MemoryReadStateStore{
		unread: make(map[string]struct{}),
		seen:   make(map[string]uint64),
	}
}

func (s *MemoryReadStateStore) SetUnread(_ context.Context, ticketID string, unread bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unread {
		s.unread[ticketID] = struct{}{}
	} else {
		delete(s.unread, ticketID)
	}
	return nil
}

func (s *MemoryReadStateStore) ListUnread(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.unread))
	for id := range s.unread {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryReadStateStore) RememberMessage(_ context.Context, messageID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[messageID]; ok {
		return false, nil
	}
	s.seq++
	s.seen[messageID] = s.seq
	return true, nil
}

func (s *MemoryReadStateStore) RecentMessageIDs(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.seen[ids[i]] > s.seen[ids[j]] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
