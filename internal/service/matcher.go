package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// TicketSearcher is the read side of the ticket system used for matching.
type TicketSearcher interface {
	SearchTickets(ctx context.Context, queueID, query string) ([]*domain.Ticket, error)
}

// Matcher finds the lifecycle ticket tracking a GitHub handle.
type Matcher struct {
	tickets TicketSearcher
	queueID string
}

// NewMatcher creates a Matcher scoped to one ticket queue.
func NewMatcher(tickets TicketSearcher, queueID string) *Matcher {
	return &Matcher{tickets: tickets, queueID: queueID}
}

// FindBySubject returns the ticket whose github handle field equals handle,
// ignoring case as GitHub logins do. Free-text hits on other tickets (a
// handle that is a substring of another, or one mentioned in a body) are
// discarded. When several tickets match, the oldest wins. It returns
// domain.ErrNotFound when no ticket tracks handle.
func (m *Matcher) FindBySubject(ctx context.Context, handle string) (*domain.Ticket, error) {
	candidates, err := m.tickets.SearchTickets(ctx, m.queueID, handle)
	if err != nil {
		return nil, fmt.Errorf("searching tickets for %s: %w", handle, err)
	}

	var match *domain.Ticket
	for _, t := range candidates {
		if !strings.EqualFold(t.Fields.GithubHandle, handle) {
			continue
		}
		if match == nil || t.CreatedAt.Before(match.CreatedAt) {
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: no ticket for %s in queue %s", domain.ErrNotFound, handle, m.queueID)
	}
	return match, nil
}
