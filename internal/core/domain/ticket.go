package domain

import (
	"errors"
	"time"
)

var (
	ErrTicketIDRequired = errors.New("ticket id is required")
	ErrInvalidPage      = errors.New("page must be at least 1")
	ErrInvalidStatus    = errors.New("invalid ticket status")
	ErrNoMorePages      = errors.New("no more pages")
)

// TicketStatus is the workflow state reported by the ticket API.
type TicketStatus string

const (
	StatusOpen       TicketStatus = "OPEN"
	StatusInProgress TicketStatus = "IN_PROGRESS"
	StatusClosed     TicketStatus = "CLOSED"
)

// IsValid checks if the status is a known value.
func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// LastMessage is the preview of the most recent message of a ticket.
type LastMessage struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketViewRecord is the row the list view renders. ID is the identity key.
type TicketViewRecord struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	ClientName    string       `json:"clientName,omitempty"`
	Status        TicketStatus `json:"status,omitempty"`
	Priority      string       `json:"priority,omitempty"`
	AssigneeName  string       `json:"assigneeName,omitempty"`
	LastMessage   LastMessage  `json:"lastMessage"`
	LastMessageAt time.Time    `json:"lastMessageAt"`
	Unread        bool         `json:"unread"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// ApplyMessage replaces the last message preview with msg.
func (t *TicketViewRecord) ApplyMessage(msg LastMessage) {
	t.LastMessage = msg
	t.LastMessageAt = msg.Timestamp
}

// Pagination describes the server-side window a page belongs to.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// TotalPages returns the number of pages for the current limit.
func (p Pagination) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

// HasMore reports whether a page after the current one exists.
func (p Pagination) HasMore() bool {
	return p.Page < p.TotalPages()
}

// TicketPage is one response of the paginated ticket API.
type TicketPage struct {
	Data       []TicketViewRecord `json:"data"`
	Pagination Pagination         `json:"pagination"`
}

// TicketQuery selects a page of tickets.
type TicketQuery struct {
	Page   int
	Limit  int
	Search string
	Status TicketStatus
}

// Validate checks the query before it is sent.
func (q TicketQuery) Validate() error {
	if q.Page < 1 {
		return ErrInvalidPage
	}
	return nil
}
