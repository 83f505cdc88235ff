package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	tickets    map[string]*domain.Ticket          // key: id
	messages   map[string][]*domain.TicketMessage // key: ticket id
	queue      map[string]*domain.QueueMessage    // key: id
	deliveries map[string]string                  // delivery id -> message id
}

var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		now:        time.Now,
		tickets:    make(map[string]*domain.Ticket),
		messages:   make(map[string][]*domain.TicketMessage),
		queue:      make(map[string]*domain.QueueMessage),
		deliveries: make(map[string]string),
	}
}

// SetClock overrides the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Close() error { return nil }

func copyTicket(t *domain.Ticket) *domain.Ticket {
	cp := *t
	cp.Tags = slices.Clone(t.Tags)
	if cp.Tags == nil {
		cp.Tags = []string{}
	}
	return &cp
}

// sortedTickets returns the tickets of a queue oldest first. Caller holds mu.
func (s *Store) sortedTickets(queueID string) []*domain.Ticket {
	var out []*domain.Ticket
	for _, t := range s.tickets {
		if t.QueueID == queueID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ============================================
// Tickets
// ============================================

func (s *Store) CreateTicket(ctx context.Context, t *domain.NewTicket) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	ticket := &domain.Ticket{
		ID:        uuid.New().String(),
		QueueID:   t.QueueID,
		Title:     t.Title,
		Body:      t.Body,
		Owner:     t.Owner,
		Tags:      []string{},
		Fields:    t.Fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ticket.Permalink = "/tickets/" + ticket.ID
	s.tickets[ticket.ID] = ticket
	return copyTicket(ticket), nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyTicket(t), nil
}

func (s *Store) SearchTickets(ctx context.Context, queueID, query string) ([]*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []*domain.Ticket
	for _, t := range s.sortedTickets(queueID) {
		haystack := []string{t.Title, t.Body, t.Fields.GithubHandle, t.Fields.Email, t.Fields.FullName}
		for _, field := range haystack {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, copyTicket(t))
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListTickets(ctx context.Context, queueID string, page domain.Page) (*domain.TicketPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedTickets(queueID)
	result := &domain.TicketPage{Tickets: []*domain.Ticket{}, Total: len(all)}
	if page.Offset >= len(all) {
		return result, nil
	}
	end := len(all)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	for _, t := range all[page.Offset:end] {
		result.Tickets = append(result.Tickets, copyTicket(t))
	}
	return result, nil
}

func (s *Store) UpdateFields(ctx context.Context, ticketID string, fields domain.TicketFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return domain.ErrNotFound
	}
	if fields.ExpirationDate != "" {
		t.Fields.ExpirationDate = fields.ExpirationDate
	}
	if fields.GithubHandle != "" {
		t.Fields.GithubHandle = fields.GithubHandle
	}
	if fields.Email != "" {
		t.Fields.Email = fields.Email
	}
	if fields.FullName != "" {
		t.Fields.FullName = fields.FullName
	}
	t.UpdatedAt = s.now().UTC()
	return nil
}

// ============================================
// Tags
// ============================================

func (s *Store) AddTags(ctx context.Context, ticketID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, tag := range tags {
		if !slices.Contains(t.Tags, tag) {
			t.Tags = append(t.Tags, tag)
		}
	}
	return nil
}

func (s *Store) RemoveTag(ctx context.Context, ticketID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return domain.ErrNotFound
	}
	idx := slices.Index(t.Tags, tag)
	if idx < 0 {
		return domain.ErrNotFound
	}
	t.Tags = slices.Delete(t.Tags, idx, idx+1)
	return nil
}

// ============================================
// Messages
// ============================================

func (s *Store) PostMessage(ctx context.Context, ticketID, body string) (*domain.TicketMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[ticketID]; !ok {
		return nil, domain.ErrNotFound
	}
	msg := &domain.TicketMessage{
		ID:        uuid.New().String(),
		TicketID:  ticketID,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	s.messages[ticketID] = append(s.messages[ticketID], msg)
	cp := *msg
	return &cp, nil
}

func (s *Store) ListMessages(ctx context.Context, ticketID string) ([]*domain.TicketMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TicketMessage, 0, len(s.messages[ticketID]))
	for _, m := range s.messages[ticketID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// ============================================
// Event queue
// ============================================

func (s *Store) Enqueue(ctx context.Context, msg *domain.QueueMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.deliveries[msg.DeliveryID]; dup {
		return domain.ErrAlreadyExists
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now().UTC()
	}
	if msg.VisibleAt.IsZero() {
		msg.VisibleAt = msg.ReceivedAt
	}
	cp := *msg
	cp.Receipt = ""
	cp.ReceiveCount = 0
	cp.DeadLetter = false
	s.queue[cp.ID] = &cp
	s.deliveries[cp.DeliveryID] = cp.ID
	return nil
}

func (s *Store) Receive(ctx context.Context, visibility time.Duration) (*domain.QueueMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var next *domain.QueueMessage
	for _, m := range s.queue {
		if m.DeadLetter || m.VisibleAt.After(now) {
			continue
		}
		if next == nil || m.VisibleAt.Before(next.VisibleAt) ||
			(m.VisibleAt.Equal(next.VisibleAt) && m.ReceivedAt.Before(next.ReceivedAt)) {
			next = m
		}
	}
	if next == nil {
		return nil, domain.ErrNotFound
	}
	next.Receipt = uuid.New().String()
	next.VisibleAt = now.Add(visibility)
	next.ReceiveCount++
	cp := *next
	return &cp, nil
}

// byReceipt finds the message currently leased under receipt. Caller holds mu.
func (s *Store) byReceipt(receipt string) *domain.QueueMessage {
	if receipt == "" {
		return nil
	}
	for _, m := range s.queue {
		if m.Receipt == receipt {
			return m
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, receipt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.byReceipt(receipt)
	if m == nil {
		return domain.ErrNotFound
	}
	delete(s.queue, m.ID)
	delete(s.deliveries, m.DeliveryID)
	return nil
}

func (s *Store) DeadLetter(ctx context.Context, receipt, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.byReceipt(receipt)
	if m == nil {
		return domain.ErrNotFound
	}
	m.DeadLetter = true
	m.LastError = reason
	return nil
}

func (s *Store) QueueStats(ctx context.Context) (*domain.QueueStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	var stats domain.QueueStats
	for _, m := range s.queue {
		switch {
		case m.DeadLetter:
			stats.DeadLetter++
		case m.VisibleAt.After(now):
			stats.InFlight++
		default:
			stats.Visible++
		}
	}
	return &stats, nil
}
