package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// DefaultPageSize is used when the loader is created without a page size.
const DefaultPageSize = 20

// TicketLoader fetches pages of the ticket list and feeds them to the
// synchronizer. A response that arrives after a newer request was issued is
// discarded.
type TicketLoader struct {
	fetcher ports.TicketFetcher
	sync    *TicketSynchronizer
	logger  *slog.Logger

	mu    sync.Mutex
	query domain.TicketQuery
	seq   uint64
}

var _ ports.TicketListLoader = (*TicketLoader)(nil)

// NewTicketLoader creates a loader positioned before the first page.
func NewTicketLoader(fetcher ports.TicketFetcher, synchronizer *TicketSynchronizer, pageSize int, logger *slog.Logger) *TicketLoader {
	if logger == nil {
		logger = logging.Discard()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &TicketLoader{
		fetcher: fetcher,
		sync:    synchronizer,
		logger:  logger.With("component", "ticket_loader"),
		query:   domain.TicketQuery{Page: 1, Limit: pageSize},
	}
}

// LoadPage fetches page with the current search and filter.
func (l *TicketLoader) LoadPage(ctx context.Context, page int) (*domain.TicketPage, error) {
	l.mu.Lock()
	q := l.query
	q.Page = page
	l.mu.Unlock()
	return l.load(ctx, q)
}

// NextPage fetches the page after the current baseline.
func (l *TicketLoader) NextPage(ctx context.Context) (*domain.TicketPage, error) {
	p := l.sync.Pagination()
	if p.Limit > 0 && !p.HasMore() {
		return nil, domain.ErrNoMorePages
	}

	l.mu.Lock()
	q := l.query
	q.Page++
	l.mu.Unlock()
	return l.load(ctx, q)
}

// SetSearch changes the search text and reloads from the first page.
func (l *TicketLoader) SetSearch(ctx context.Context, search string) (*domain.TicketPage, error) {
	l.mu.Lock()
	l.query.Search = strings.TrimSpace(search)
	l.query.Page = 1
	q := l.query
	l.mu.Unlock()

	l.sync.Invalidate()
	return l.load(ctx, q)
}

// SetStatusFilter changes the status filter and reloads from the first page.
// An empty status removes the filter.
func (l *TicketLoader) SetStatusFilter(ctx context.Context, status domain.TicketStatus) (*domain.TicketPage, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidStatus, status)
	}

	l.mu.Lock()
	l.query.Status = status
	l.query.Page = 1
	q := l.query
	l.mu.Unlock()

	l.sync.Invalidate()
	return l.load(ctx, q)
}

// Refresh reloads the current page.
func (l *TicketLoader) Refresh(ctx context.Context) (*domain.TicketPage, error) {
	l.mu.Lock()
	q := l.query
	l.mu.Unlock()
	return l.load(ctx, q)
}

// Query returns the query of the current baseline.
func (l *TicketLoader) Query() domain.TicketQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

func (l *TicketLoader) load(ctx context.Context, q domain.TicketQuery) (*domain.TicketPage, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	page, err := l.fetcher.ListTickets(ctx, q)
	if err != nil {
		l.logger.Warn("failed to fetch tickets", "page", q.Page, "search", q.Search, "status", q.Status, "error", err)
		return nil, err
	}

	l.mu.Lock()
	if seq != l.seq {
		l.mu.Unlock()
		l.logger.Debug("discarding stale page", "page", q.Page)
		return page, nil
	}
	l.query = q
	l.mu.Unlock()

	l.sync.ApplyPage(page)
	return page, nil
}
