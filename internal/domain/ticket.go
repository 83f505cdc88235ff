package domain

import "time"

// TicketFields are the answered fields of a collaborator access ticket.
// All values are plain strings; ExpirationDate is YYYY-MM-DD.
type TicketFields struct {
	ExpirationDate string `json:"expiration_date"`
	GithubHandle   string `json:"github_handle"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
}

// Ticket is a view of a lifecycle ticket owned by the ticket system.
type Ticket struct {
	ID        string       `json:"id"`
	QueueID   string       `json:"queue_id"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Owner     string       `json:"owner,omitempty"`
	Tags      []string     `json:"tags"`
	Fields    TicketFields `json:"fields"`
	Permalink string       `json:"permalink"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// HasTag reports whether tag is currently applied to the ticket.
func (t *Ticket) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// NewTicket is the request body for creating a ticket.
type NewTicket struct {
	QueueID string       `json:"queue_id"`
	Title   string       `json:"title"`
	Body    string       `json:"body"`
	Owner   string       `json:"owner,omitempty"`
	Fields  TicketFields `json:"fields"`
}

// TicketMessage is a narrative entry posted to a ticket.
type TicketMessage struct {
	ID        string    `json:"id" db:"id"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Page selects a window of a ticket listing.
type Page struct {
	Limit  int
	Offset int
}

// TicketPage is one page of a ticket listing plus the queue total.
type TicketPage struct {
	Tickets []*Ticket `json:"tickets"`
	Total   int       `json:"total"`
}

// ExpirationRecord pairs a tracked handle with its expiration date.
// Only used transiently by the sweep.
type ExpirationRecord struct {
	TicketID       string
	GithubHandle   string
	ExpirationDate string
}
