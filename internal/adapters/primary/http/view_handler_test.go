package http

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/mocks"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

func newViewRouter(view *mocks.MockRealtimeView, loader *mocks.MockTicketListLoader) chi.Router {
	logger := logging.Discard()
	h := NewViewHandler(view, loader, NewErrorHandler(logger), logger)

	r := chi.NewRouter()
	r.Route("/api/v1", h.RegisterRoutes)
	return r
}

func serve(r stdhttp.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func sampleTickets() []domain.TicketViewRecord {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []domain.TicketViewRecord{
		{ID: "T2", Title: "Printer", Status: domain.StatusOpen, LastMessageAt: now, Unread: true},
		{ID: "T1", Title: "VPN", Status: domain.StatusOpen, LastMessageAt: now.Add(-time.Hour)},
	}
}

func TestViewHandler_State(t *testing.T) {
	view := new(mocks.MockRealtimeView)
	loader := new(mocks.MockTicketListLoader)
	view.On("Status").Return(domain.ConnectionStatus{
		State:     "connected",
		Connected: true,
		UserID:    "u1",
		Rooms:     []string{"user:u1"},
	})

	rec := serve(newViewRouter(view, loader), stdhttp.MethodGet, "/api/v1/state")

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	var body domain.ConnectionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Connected)
	assert.Equal(t, "connected", body.State)
	assert.Equal(t, []string{"user:u1"}, body.Rooms)
}

func TestViewHandler_Messages(t *testing.T) {
	t.Run("empty feed is an empty list", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		view.On("Messages").Return(nil)

		rec := serve(newViewRouter(view, new(mocks.MockTicketListLoader)), stdhttp.MethodGet, "/api/v1/messages")

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":[],"count":0}`, rec.Body.String())
	})

	t.Run("returns feed in order", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		view.On("Messages").Return([]domain.MessageRecord{
			{ID: "m1", TicketID: "T1", Content: "hi"},
			{ID: "m2", TicketID: "T2", Content: "hello"},
		})

		rec := serve(newViewRouter(view, new(mocks.MockTicketListLoader)), stdhttp.MethodGet, "/api/v1/messages")

		var body ListResponse[domain.MessageRecord]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 2)
		assert.Equal(t, "m1", body.Data[0].ID)
		assert.Equal(t, 2, body.Count)
	})
}

func TestViewHandler_Stats(t *testing.T) {
	view := new(mocks.MockRealtimeView)
	view.On("Stats").Return(domain.StatsSnapshot{ActiveTickets: 3, TotalMessages: 7})

	rec := serve(newViewRouter(view, new(mocks.MockTicketListLoader)), stdhttp.MethodGet, "/api/v1/stats")

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"activeTickets":3,"totalMessages":7}`, rec.Body.String())
}

func TestViewHandler_ListTickets(t *testing.T) {
	t.Run("without parameters returns the current view", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		loader := new(mocks.MockTicketListLoader)
		view.On("Tickets").Return(sampleTickets())

		rec := serve(newViewRouter(view, loader), stdhttp.MethodGet, "/api/v1/tickets")

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		var body TicketListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "T2", body.Data[0].ID)
		assert.Nil(t, body.Pagination)
		loader.AssertNotCalled(t, "LoadPage", mock.Anything, mock.Anything)
	})

	t.Run("status filter triggers a fetch", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		loader := new(mocks.MockTicketListLoader)
		loader.On("SetStatusFilter", mock.Anything, domain.StatusOpen).Return(&domain.TicketPage{
			Data:       sampleTickets(),
			Pagination: domain.Pagination{Page: 1, Limit: 2, Total: 5},
		}, nil).Once()
		view.On("Tickets").Return(sampleTickets())

		rec := serve(newViewRouter(view, loader), stdhttp.MethodGet, "/api/v1/tickets?status=open&page=1")

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		var body TicketListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotNil(t, body.Pagination)
		assert.Equal(t, int64(5), body.Pagination.Total)
		require.NotNil(t, body.HasMore)
		assert.True(t, *body.HasMore)
		// page=1 was already served by the filter fetch
		loader.AssertNotCalled(t, "LoadPage", mock.Anything, mock.Anything)
		loader.AssertExpectations(t)
	})

	t.Run("page and search", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		loader := new(mocks.MockTicketListLoader)
		loader.On("SetSearch", mock.Anything, "vpn").Return(&domain.TicketPage{
			Pagination: domain.Pagination{Page: 1, Limit: 2, Total: 6},
		}, nil).Once()
		loader.On("LoadPage", mock.Anything, 3).Return(&domain.TicketPage{
			Pagination: domain.Pagination{Page: 3, Limit: 2, Total: 6},
		}, nil).Once()
		view.On("Tickets").Return(nil)

		rec := serve(newViewRouter(view, loader), stdhttp.MethodGet, "/api/v1/tickets?search=+vpn+&page=3")

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		var body TicketListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Empty(t, body.Data)
		assert.NotNil(t, body.Data)
		require.NotNil(t, body.HasMore)
		assert.False(t, *body.HasMore)
		loader.AssertExpectations(t)
	})

	t.Run("invalid parameters are rejected before any fetch", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		loader := new(mocks.MockTicketListLoader)

		rec := serve(newViewRouter(view, loader), stdhttp.MethodGet, "/api/v1/tickets?status=PENDING&page=0")

		require.Equal(t, stdhttp.StatusBadRequest, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "VALIDATION_ERROR", body.Code)
		assert.Contains(t, body.Details, "status")
		assert.Contains(t, body.Details, "page")
		loader.AssertExpectations(t)
	})

	t.Run("upstream failure maps to bad gateway", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		loader := new(mocks.MockTicketListLoader)
		loader.On("LoadPage", mock.Anything, 2).
			Return(nil, apperrors.NewFetchError(503, "maintenance")).Once()

		rec := serve(newViewRouter(view, loader), stdhttp.MethodGet, "/api/v1/tickets?page=2")

		assert.Equal(t, stdhttp.StatusBadGateway, rec.Code)
		view.AssertNotCalled(t, "Tickets")
	})
}

func TestViewHandler_NextPage(t *testing.T) {
	t.Run("no more pages", func(t *testing.T) {
		loader := new(mocks.MockTicketListLoader)
		loader.On("NextPage", mock.Anything).Return(nil, domain.ErrNoMorePages).Once()

		rec := serve(newViewRouter(new(mocks.MockRealtimeView), loader), stdhttp.MethodPost, "/api/v1/tickets/next")

		require.Equal(t, stdhttp.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "NO_MORE_PAGES")
	})

	t.Run("returns the merged view", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		loader := new(mocks.MockTicketListLoader)
		loader.On("NextPage", mock.Anything).Return(&domain.TicketPage{
			Pagination: domain.Pagination{Page: 2, Limit: 1, Total: 2},
		}, nil).Once()
		view.On("Tickets").Return(sampleTickets())

		rec := serve(newViewRouter(view, loader), stdhttp.MethodPost, "/api/v1/tickets/next")

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		var body TicketListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Pagination.Page)
		assert.Equal(t, 2, body.Count)
	})
}

func TestViewHandler_Refresh(t *testing.T) {
	loader := new(mocks.MockTicketListLoader)
	loader.On("Refresh", mock.Anything).Return(nil, apperrors.ErrRateLimited).Once()

	rec := serve(newViewRouter(new(mocks.MockRealtimeView), loader), stdhttp.MethodPost, "/api/v1/tickets/refresh")

	assert.Equal(t, stdhttp.StatusTooManyRequests, rec.Code)
	loader.AssertExpectations(t)
}

func TestViewHandler_TicketRoom(t *testing.T) {
	t.Run("open joins the room", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		view.On("ConnectTicketRoom", mock.Anything, "T1").Return(true).Once()

		rec := serve(newViewRouter(view, new(mocks.MockTicketListLoader)), stdhttp.MethodPost, "/api/v1/tickets/T1/open")

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ticketId":"T1","joined":true}`, rec.Body.String())
		view.AssertExpectations(t)
	})

	t.Run("open while disconnected still succeeds", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		view.On("ConnectTicketRoom", mock.Anything, "T1").Return(false).Once()

		rec := serve(newViewRouter(view, new(mocks.MockTicketListLoader)), stdhttp.MethodPost, "/api/v1/tickets/T1/open")

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ticketId":"T1","joined":false}`, rec.Body.String())
	})

	t.Run("close leaves the room", func(t *testing.T) {
		view := new(mocks.MockRealtimeView)
		view.On("DesubscribeTicketRoom", mock.Anything, "T1").Return(true).Once()

		rec := serve(newViewRouter(view, new(mocks.MockTicketListLoader)), stdhttp.MethodDelete, "/api/v1/tickets/T1/open")

		assert.Equal(t, stdhttp.StatusNoContent, rec.Code)
		view.AssertExpectations(t)
	})
}
