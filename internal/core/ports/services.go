package ports

import (
	"context"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// TokenProvider supplies the short-lived bearer credential. An empty token
// with a nil error means no credential is available.
type TokenProvider interface {
	GetToken(ctx context.Context, forceRefresh bool) (string, error)
}

// TicketFetcher is the paginated ticket API.
type TicketFetcher interface {
	ListTickets(ctx context.Context, query domain.TicketQuery) (*domain.TicketPage, error)
}

// Subscribable is a typed event source. The returned function removes
// exactly the registered callback and may be called more than once.
type Subscribable[T any] interface {
	Subscribe(fn func(T)) (unsubscribe func())
}

// UserResolver derives the user id from a credential when none is configured.
type UserResolver interface {
	ResolveUserID(token string) (string, error)
}

// RealtimeView is the read and room-control surface of the realtime layer
// consumed by presentation adapters.
type RealtimeView interface {
	Status() domain.ConnectionStatus
	IsConnected() bool
	Tickets() []domain.TicketViewRecord
	Messages() []domain.MessageRecord
	Stats() domain.StatsSnapshot
	ConnectTicketRoom(ctx context.Context, ticketID string) bool
	DesubscribeTicketRoom(ctx context.Context, ticketID string) bool
}

// TicketListLoader drives the paginated fetch of the ticket list.
type TicketListLoader interface {
	LoadPage(ctx context.Context, page int) (*domain.TicketPage, error)
	NextPage(ctx context.Context) (*domain.TicketPage, error)
	SetSearch(ctx context.Context, search string) (*domain.TicketPage, error)
	SetStatusFilter(ctx context.Context, status domain.TicketStatus) (*domain.TicketPage, error)
	Refresh(ctx context.Context) (*domain.TicketPage, error)
}
