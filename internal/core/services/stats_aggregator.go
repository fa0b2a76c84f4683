package services

import (
	"sync/atomic"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// StatsAggregator derives counters from the event stream.
type StatsAggregator struct {
	activeTickets atomic.Int64
	totalMessages atomic.Int64
}

// NewStatsAggregator creates zeroed counters.
func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{}
}

// RecordTicket counts a new-ticket event.
func (s *StatsAggregator) RecordTicket() {
	s.activeTickets.Add(1)
}

// RecordMessage counts an accepted message.
func (s *StatsAggregator) RecordMessage() {
	s.totalMessages.Add(1)
}

// Snapshot returns the current counter values.
func (s *StatsAggregator) Snapshot() domain.StatsSnapshot {
	return domain.StatsSnapshot{
		ActiveTickets: s.activeTickets.Load(),
		TotalMessages: s.totalMessages.Load(),
	}
}

// Reset zeroes every counter.
func (s *StatsAggregator) Reset() {
	s.activeTickets.Store(0)
	s.totalMessages.Store(0)
}
