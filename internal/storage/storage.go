package storage

import (
	"context"
	"time"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// TicketSystem is the lifecycle ticket store. Tickets are scoped to a
// team queue; tags are an unordered set per ticket.
type TicketSystem interface {
	// SearchTickets does a case-insensitive free-text search over the
	// tickets in one queue. Matches are candidates only.
	SearchTickets(ctx context.Context, queueID, query string) ([]*domain.Ticket, error)
	CreateTicket(ctx context.Context, ticket *domain.NewTicket) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	// ListTickets returns one page of a queue, oldest first.
	ListTickets(ctx context.Context, queueID string, page domain.Page) (*domain.TicketPage, error)

	PostMessage(ctx context.Context, ticketID, body string) (*domain.TicketMessage, error)
	ListMessages(ctx context.Context, ticketID string) ([]*domain.TicketMessage, error)

	// AddTags adds tags already present without error.
	AddTags(ctx context.Context, ticketID string, tags []string) error
	// RemoveTag returns domain.ErrNotFound when the tag is not applied.
	RemoveTag(ctx context.Context, ticketID, tag string) error
	// UpdateFields overwrites the non-empty values of fields.
	UpdateFields(ctx context.Context, ticketID string, fields domain.TicketFields) error
}

// EventQueue is the durable ingress queue with lease and acknowledge
// semantics. A received message is invisible until its visibility timeout
// elapses; Delete acknowledges it for good.
type EventQueue interface {
	// Enqueue returns domain.ErrAlreadyExists for a delivery ID seen before.
	Enqueue(ctx context.Context, msg *domain.QueueMessage) error
	// Receive leases the oldest visible message. It returns
	// domain.ErrNotFound when nothing is visible.
	Receive(ctx context.Context, visibility time.Duration) (*domain.QueueMessage, error)
	Delete(ctx context.Context, receipt string) error
	DeadLetter(ctx context.Context, receipt, reason string) error
	QueueStats(ctx context.Context) (*domain.QueueStats, error)
}

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	TicketSystem
	EventQueue

	// Close closes the storage connection.
	Close() error
}
