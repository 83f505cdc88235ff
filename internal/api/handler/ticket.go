package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
)

// TicketHandler exposes the lifecycle tickets of the team queue.
type TicketHandler struct {
	tickets storage.TicketSystem
	queueID string
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(tickets storage.TicketSystem, queueID string) *TicketHandler {
	return &TicketHandler{tickets: tickets, queueID: queueID}
}

// TicketDetail is a ticket with its narrative.
type TicketDetail struct {
	*domain.Ticket
	Messages []*domain.TicketMessage `json:"messages"`
}

// List handles GET /tickets.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit and offset must be non-negative integers")
		return
	}

	result, err := h.tickets.ListTickets(r.Context(), h.queueID, page)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Get handles GET /tickets/{id}.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ticket, err := h.tickets.GetTicket(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	if ticket.QueueID != h.queueID {
		handleError(w, domain.ErrNotFound)
		return
	}

	messages, err := h.tickets.ListMessages(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, TicketDetail{Ticket: ticket, Messages: messages})
}
