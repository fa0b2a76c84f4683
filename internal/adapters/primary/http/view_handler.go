package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/service-desk-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/core/ports"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// TicketListResponse is the ticket list as the view renders it. Pagination
// is present when the request triggered a fetch.
type TicketListResponse struct {
	Data       []domain.TicketViewRecord `json:"data"`
	Count      int                       `json:"count"`
	Pagination *domain.Pagination        `json:"pagination,omitempty"`
	HasMore    *bool                     `json:"hasMore,omitempty"`
}

// RoomResponse reports the outcome of a ticket room operation.
type RoomResponse struct {
	TicketID string `json:"ticketId"`
	Joined   bool   `json:"joined"`
}

// ViewHandler exposes the synchronized view state over HTTP.
type ViewHandler struct {
	view         ports.RealtimeView
	loader       ports.TicketListLoader
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewViewHandler(
	view ports.RealtimeView,
	loader ports.TicketListLoader,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *ViewHandler {
	return &ViewHandler{
		view:         view,
		loader:       loader,
		errorHandler: errorHandler,
		logger:       logger.With("component", "view_handler"),
	}
}

// RegisterRoutes mounts the view routes on r.
func (h *ViewHandler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.HandleState)
	r.Get("/stats", h.HandleStats)
	r.Get("/messages", h.HandleMessages)

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.HandleListTickets)
		r.Post("/refresh", h.HandleRefresh)
		r.Post("/next", h.HandleNextPage)
		r.Post("/{id}/open", h.HandleOpenTicket)
		r.Delete("/{id}/open", h.HandleCloseTicket)
	})
}

// HandleState returns the connection status summary.
func (h *ViewHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.view.Status())
}

func (h *ViewHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.view.Stats())
}

// HandleMessages returns the global message feed, oldest first.
func (h *ViewHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	WriteList(w, h.view.Messages())
}

// HandleListTickets returns the current ticket list. Any of status, search
// or page triggers a fetch first; status and search reset to page 1.
func (h *ViewHandler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	params, err := validation.ParseTicketListParams(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if params.Empty() {
		h.writeTickets(w, nil)
		return
	}

	ctx := r.Context()
	var page *domain.TicketPage
	if params.Status != nil {
		page, err = h.loader.SetStatusFilter(ctx, *params.Status)
		if HandleError(w, r, err, h.errorHandler) {
			return
		}
	}
	if params.Search != nil {
		page, err = h.loader.SetSearch(ctx, *params.Search)
		if HandleError(w, r, err, h.errorHandler) {
			return
		}
	}
	if params.Page != nil && (page == nil || page.Pagination.Page != *params.Page) {
		page, err = h.loader.LoadPage(ctx, *params.Page)
		if HandleError(w, r, err, h.errorHandler) {
			return
		}
	}

	h.writeTickets(w, page)
}

// HandleRefresh refetches the current query.
func (h *ViewHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	page, err := h.loader.Refresh(r.Context())
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	h.writeTickets(w, page)
}

// HandleNextPage fetches the page after the current one.
func (h *ViewHandler) HandleNextPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.loader.NextPage(r.Context())
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	h.writeTickets(w, page)
}

// HandleOpenTicket marks the ticket open and joins its room.
func (h *ViewHandler) HandleOpenTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "id")
	if HandleError(w, r, validation.TicketID(ticketID), h.errorHandler) {
		return
	}

	ctx := logging.WithTicketID(r.Context(), ticketID)
	joined := h.view.ConnectTicketRoom(ctx, ticketID)
	logging.LoggerFromContext(ctx, h.logger).Debug("ticket opened", "joined", joined)

	WriteJSON(w, http.StatusOK, RoomResponse{TicketID: ticketID, Joined: joined})
}

// HandleCloseTicket leaves the ticket room.
func (h *ViewHandler) HandleCloseTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "id")
	if HandleError(w, r, validation.TicketID(ticketID), h.errorHandler) {
		return
	}

	ctx := logging.WithTicketID(r.Context(), ticketID)
	left := h.view.DesubscribeTicketRoom(ctx, ticketID)
	logging.LoggerFromContext(ctx, h.logger).Debug("ticket closed", "left", left)

	w.WriteHeader(http.StatusNoContent)
}

func (h *ViewHandler) writeTickets(w http.ResponseWriter, page *domain.TicketPage) {
	tickets := h.view.Tickets()
	if tickets == nil {
		tickets = []domain.TicketViewRecord{}
	}

	resp := TicketListResponse{
		Data:  tickets,
		Count: len(tickets),
	}
	if page != nil {
		pagination := page.Pagination
		hasMore := pagination.HasMore()
		resp.Pagination = &pagination
		resp.HasMore = &hasMore
	}
	WriteJSON(w, http.StatusOK, resp)
}
