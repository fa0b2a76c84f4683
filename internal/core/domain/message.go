package domain

import "time"

// MessageRecord is a single message from the global feed. ID is the
// deduplication key.
type MessageRecord struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticketId"`
	Content    string    `json:"content"`
	SenderID   string    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatsSnapshot holds the counters derived from the event stream.
type StatsSnapshot struct {
	ActiveTickets int64 `json:"activeTickets"`
	TotalMessages int64 `json:"totalMessages"`
}
