package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/rest"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const pageBody = `{
	"data": [
		{"id": "T1", "title": "Printer on fire", "status": "OPEN",
		 "lastMessage": {"content": "help", "timestamp": "2026-03-01T12:00:00Z"}},
		{"id": "T2", "title": "VPN", "createdAt": "2026-02-01T08:00:00Z"}
	],
	"pagination": {"page": 2, "limit": 2, "total": 5}
}`

func TestClient_ListTickets(t *testing.T) {
	ctx := context.Background()

	t.Run("sends query and bearer token", func(t *testing.T) {
		var got *http.Request
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Clone(context.Background())
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(pageBody))
		}))
		defer srv.Close()

		tokens := new(mocks.MockTokenProvider)
		tokens.On("GetToken", mock.Anything, false).Return("tok", nil)

		client := rest.NewClient(srv.URL+"/api/", tokens, rest.Options{}, nil)
		page, err := client.ListTickets(ctx, domain.TicketQuery{
			Page:   2,
			Limit:  2,
			Search: "printer fire",
			Status: domain.StatusOpen,
		})

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "/api/tickets", got.URL.Path)
		assert.Equal(t, "2", got.URL.Query().Get("page"))
		assert.Equal(t, "2", got.URL.Query().Get("limit"))
		assert.Equal(t, "printer fire", got.URL.Query().Get("search"))
		assert.Equal(t, "OPEN", got.URL.Query().Get("status"))
		assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))

		require.Len(t, page.Data, 2)
		assert.Equal(t, domain.Pagination{Page: 2, Limit: 2, Total: 5}, page.Pagination)
		assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), page.Data[0].LastMessageAt.UTC())
		assert.Equal(t, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), page.Data[1].LastMessageAt.UTC())
		tokens.AssertExpectations(t)
	})

	t.Run("empty data decodes to an empty slice", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data": null, "pagination": {"page": 1, "limit": 20, "total": 0}}`))
		}))
		defer srv.Close()

		tokens := new(mocks.MockTokenProvider)
		tokens.On("GetToken", mock.Anything, false).Return("tok", nil)

		page, err := rest.NewClient(srv.URL, tokens, rest.Options{}, nil).ListTickets(ctx, domain.TicketQuery{Page: 1})

		require.NoError(t, err)
		assert.NotNil(t, page.Data)
		assert.Empty(t, page.Data)
	})

	t.Run("401 is retried once with a refreshed token", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "token expired"})
				return
			}
			_, _ = w.Write([]byte(pageBody))
		}))
		defer srv.Close()

		tokens := new(mocks.MockTokenProvider)
		tokens.On("GetToken", mock.Anything, false).Return("stale", nil).Once()
		tokens.On("GetToken", mock.Anything, true).Return("fresh", nil).Once()

		page, err := rest.NewClient(srv.URL, tokens, rest.Options{}, nil).ListTickets(ctx, domain.TicketQuery{Page: 1})

		require.NoError(t, err)
		assert.Len(t, page.Data, 2)
		assert.Equal(t, int32(2), calls.Load())
		tokens.AssertExpectations(t)
	})

	t.Run("error status becomes a fetch error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "upstream down"})
		}))
		defer srv.Close()

		tokens := new(mocks.MockTokenProvider)
		tokens.On("GetToken", mock.Anything, false).Return("tok", nil)

		_, err := rest.NewClient(srv.URL, tokens, rest.Options{}, nil).ListTickets(ctx, domain.TicketQuery{Page: 1})

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
		assert.Equal(t, "FETCH_FAILED", apperrors.Code(err))
		assert.Contains(t, err.Error(), "upstream down")
	})

	t.Run("no credential", func(t *testing.T) {
		tokens := new(mocks.MockTokenProvider)
		tokens.On("GetToken", mock.Anything, false).Return("", nil)

		_, err := rest.NewClient("http://unused.invalid", tokens, rest.Options{}, nil).ListTickets(ctx, domain.TicketQuery{Page: 1})

		assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	})

	t.Run("invalid page is rejected before any request", func(t *testing.T) {
		tokens := new(mocks.MockTokenProvider)

		_, err := rest.NewClient("http://unused.invalid", tokens, rest.Options{}, nil).ListTickets(ctx, domain.TicketQuery{Page: 0})

		assert.ErrorIs(t, err, domain.ErrInvalidPage)
		tokens.AssertNotCalled(t, "GetToken", mock.Anything, mock.Anything)
	})
}

func TestClient_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageBody))
	}))
	defer srv.Close()

	tokens := new(mocks.MockTokenProvider)
	tokens.On("GetToken", mock.Anything, false).Return("tok", nil)

	client := rest.NewClient(srv.URL, tokens, rest.Options{RateLimitRPS: 0.1, RateLimitBurst: 1}, nil)

	_, err := client.ListTickets(context.Background(), domain.TicketQuery{Page: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.ListTickets(ctx, domain.TicketQuery{Page: 1})

	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
}
