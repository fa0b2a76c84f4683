package mocks

import (
	"context"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockTokenProvider is a mock implementation of ports.TokenProvider
type MockTokenProvider struct {
	mock.Mock
}

func NewMockTokenProvider() *MockTokenProvider {
	return &MockTokenProvider{}
}

func (m *MockTokenProvider) GetToken(ctx context.Context, forceRefresh bool) (string, error) {
	args := m.Called(ctx, forceRefresh)
	return args.String(0), args.Error(1)
}

// MockUserResolver is a mock implementation of ports.UserResolver
type MockUserResolver struct {
	mock.Mock
}

func NewMockUserResolver() *MockUserResolver {
	return &MockUserResolver{}
}

func (m *MockUserResolver) ResolveUserID(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

// MockTicketFetcher is a mock implementation of ports.TicketFetcher
type MockTicketFetcher struct {
	mock.Mock
}

func NewMockTicketFetcher() *MockTicketFetcher {
	return &MockTicketFetcher{}
}

func (m *MockTicketFetcher) ListTickets(ctx context.Context, query domain.TicketQuery) (*domain.TicketPage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketPage), args.Error(1)
}

// MockReadStateStore is a mock implementation of ports.ReadStateStore
type MockReadStateStore struct {
	mock.Mock
}

func NewMockReadStateStore() *MockReadStateStore {
	return &MockReadStateStore{}
}

func (m *MockReadStateStore) SetUnread(ctx context.Context, ticketID string, unread bool) error {
	args := m.Called(ctx, ticketID, unread)
	return args.Error(0)
}

func (m *MockReadStateStore) ListUnread(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockReadStateStore) RememberMessage(ctx context.Context, messageID, ticketID string) (bool, error) {
	args := m.Called(ctx, messageID, ticketID)
	return args.Bool(0), args.Error(1)
}

func (m *MockReadStateStore) RecentMessageIDs(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockRealtimeView is a mock implementation of ports.RealtimeView
type MockRealtimeView struct {
	mock.Mock
}

func NewMockRealtimeView() *MockRealtimeView {
	return &MockRealtimeView{}
}

func (m *MockRealtimeView) Status() domain.ConnectionStatus {
	args := m.Called()
	return args.Get(0).(domain.ConnectionStatus)
}

func (m *MockRealtimeView) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockRealtimeView) Tickets() []domain.TicketViewRecord {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.TicketViewRecord)
}

func (m *MockRealtimeView) Messages() []domain.MessageRecord {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.MessageRecord)
}

func (m *MockRealtimeView) Stats() domain.StatsSnapshot {
	args := m.Called()
	return args.Get(0).(domain.StatsSnapshot)
}

func (m *MockRealtimeView) ConnectTicketRoom(ctx context.Context, ticketID string) bool {
	args := m.Called(ctx, ticketID)
	return args.Bool(0)
}

func (m *MockRealtimeView) DesubscribeTicketRoom(ctx context.Context, ticketID string) bool {
	args := m.Called(ctx, ticketID)
	return args.Bool(0)
}

// MockTicketListLoader is a mock implementation of ports.TicketListLoader
type MockTicketListLoader struct {
	mock.Mock
}

func NewMockTicketListLoader() *MockTicketListLoader {
	return &MockTicketListLoader{}
}

func (m *MockTicketListLoader) page(args mock.Arguments) (*domain.TicketPage, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketPage), args.Error(1)
}

func (m *MockTicketListLoader) LoadPage(ctx context.Context, page int) (*domain.TicketPage, error) {
	return m.page(m.Called(ctx, page))
}

func (m *MockTicketListLoader) NextPage(ctx context.Context) (*domain.TicketPage, error) {
	return m.page(m.Called(ctx))
}

func (m *MockTicketListLoader) SetSearch(ctx context.Context, search string) (*domain.TicketPage, error) {
	return m.page(m.Called(ctx, search))
}

func (m *MockTicketListLoader) SetStatusFilter(ctx context.Context, status domain.TicketStatus) (*domain.TicketPage, error) {
	return m.page(m.Called(ctx, status))
}

func (m *MockTicketListLoader) Refresh(ctx context.Context) (*domain.TicketPage, error) {
	return m.page(m.Called(ctx))
}

var (
	_ ports.TokenProvider    = (*MockTokenProvider)(nil)
	_ ports.UserResolver     = (*MockUserResolver)(nil)
	_ ports.TicketFetcher    = (*MockTicketFetcher)(nil)
	_ ports.ReadStateStore   = (*MockReadStateStore)(nil)
	_ ports.RealtimeView     = (*MockRealtimeView)(nil)
	_ ports.TicketListLoader = (*MockTicketListLoader)(nil)
)
