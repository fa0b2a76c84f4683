package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of an error response is kept for the message.
const maxErrorBody = 4 << 10

// Client is the paginated ticket API client.
type Client struct {
	baseURL    string
	tokens     ports.TokenProvider
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ ports.TicketFetcher = (*Client)(nil)

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	HTTPClient     *http.Client
}

// NewClient creates a ticket API client.
// baseURL is the API root, e.g. "https://desk.example.com/api".
func NewClient(baseURL string, tokens ports.TokenProvider, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RateLimitBurst < 1 {
		opts.RateLimitBurst = 1
	}

	limit := rate.Inf
	if opts.RateLimitRPS > 0 {
		limit = rate.Limit(opts.RateLimitRPS)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, opts.RateLimitBurst),
		logger:     logger.With("component", "ticket_api"),
	}
}

// errorResponse is the error body of the ticket API.
type errorResponse struct {
	Error string `json:"error"`
}

// ListTickets fetches one page. A 401 is retried once with a refreshed token.
func (c *Client) ListTickets(ctx context.Context, query domain.TicketQuery) (*domain.TicketPage, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	page, status, err := c.listOnce(ctx, query, false)
	if status == http.StatusUnauthorized {
		c.logger.Info("ticket api rejected the token, refreshing")
		page, _, err = c.listOnce(ctx, query, true)
	}
	if err != nil {
		return nil, err
	}

	normalize(page)
	return page, nil
}

func (c *Client) listOnce(ctx context.Context, query domain.TicketQuery, forceRefresh bool) (*domain.TicketPage, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", apperrors.ErrRateLimited, err)
	}

	token, err := c.tokens.GetToken(ctx, forceRefresh)
	if err != nil || token == "" {
		return nil, 0, apperrors.NewAuthenticationError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ticketsURL(query), http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", apperrors.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("ticket page fetched",
		"page", query.Page,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.StatusCode, apperrors.NewFetchError(resp.StatusCode, errorMessage(body, resp.Status))
	}

	var page domain.TicketPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: decode response: %w", apperrors.ErrFetchFailed, err)
	}
	return &page, resp.StatusCode, nil
}

func (c *Client) ticketsURL(query domain.TicketQuery) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(query.Page))
	if query.Limit > 0 {
		v.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Search != "" {
		v.Set("search", query.Search)
	}
	if query.Status != "" {
		v.Set("status", string(query.Status))
	}
	return c.baseURL + "/tickets?" + v.Encode()
}

func errorMessage(body []byte, fallback string) string {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return fallback
}

// normalize fills the recency key from the preview or the creation time when
// the server omits it.
func normalize(page *domain.TicketPage) {
	if page.Data == nil {
		page.Data = []domain.TicketViewRecord{}
	}
	for i := range page.Data {
		t := &page.Data[i]
		if !t.LastMessageAt.IsZero() {
			continue
		}
		if !t.LastMessage.Timestamp.IsZero() {
			t.LastMessageAt = t.LastMessage.Timestamp
		} else {
			t.LastMessageAt = t.CreatedAt
		}
	}
}
