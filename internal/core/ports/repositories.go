package ports

import "context"

// ReadStateStore persists the per-ticket unread markers and the ids of
// messages already delivered, so both survive a process restart.
type ReadStateStore interface {
	// SetUnread records the unread marker of a ticket.
	SetUnread(ctx context.Context, ticketID string, unread bool) error

	// ListUnread returns the ids of every ticket currently marked unread.
	ListUnread(ctx context.Context) ([]string, error)

	// RememberMessage records a message id. It returns false when the id
	// was already known.
	RememberMessage(ctx context.Context, messageID, ticketID string) (bool, error)

	// RecentMessageIDs returns up to limit of the most recently remembered ids.
	RecentMessageIDs(ctx context.Context, limit int) ([]string, error)
}
