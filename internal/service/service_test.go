package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/alert"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/membership"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage/memory"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/tagging"
)

const (
	testQueue = "security-queue"
	granted   = "access-granted"
	removed   = "access-removed"
)

var testVocabulary = tagging.Vocabulary{Granted: granted, Removed: removed}

// recordingTickets counts ticket system calls and injects failures by
// operation name.
type recordingTickets struct {
	storage.TicketSystem

	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newRecordingTickets() (*recordingTickets, *memory.Store) {
	store := memory.New()
	// Strictly increasing timestamps keep listing order equal to insertion order.
	var clockMu sync.Mutex
	tick := mustTime("2024-01-01T00:00:00Z")
	store.SetClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	})
	return &recordingTickets{TicketSystem: store, fail: map[string]error{}}, store
}

func (r *recordingTickets) record(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
	return r.fail[op]
}

func (r *recordingTickets) failOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

func (r *recordingTickets) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (r *recordingTickets) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingTickets) SearchTickets(ctx context.Context, queueID, query string) ([]*domain.Ticket, error) {
	if err := r.record("search"); err != nil {
		return nil, err
	}
	return r.TicketSystem.SearchTickets(ctx, queueID, query)
}

func (r *recordingTickets) CreateTicket(ctx context.Context, t *domain.NewTicket) (*domain.Ticket, error) {
	if err := r.record("create"); err != nil {
		return nil, err
	}
	return r.TicketSystem.CreateTicket(ctx, t)
}

func (r *recordingTickets) ListTickets(ctx context.Context, queueID string, page domain.Page) (*domain.TicketPage, error) {
	if err := r.record("list"); err != nil {
		return nil, err
	}
	return r.TicketSystem.ListTickets(ctx, queueID, page)
}

func (r *recordingTickets) PostMessage(ctx context.Context, ticketID, body string) (*domain.TicketMessage, error) {
	if err := r.record("post_message"); err != nil {
		return nil, err
	}
	return r.TicketSystem.PostMessage(ctx, ticketID, body)
}

func (r *recordingTickets) AddTags(ctx context.Context, ticketID string, tags []string) error {
	if err := r.record("add_tags"); err != nil {
		return err
	}
	return r.TicketSystem.AddTags(ctx, ticketID, tags)
}

func (r *recordingTickets) RemoveTag(ctx context.Context, ticketID, tag string) error {
	if err := r.record("remove_tag"); err != nil {
		return err
	}
	return r.TicketSystem.RemoveTag(ctx, ticketID, tag)
}

func (r *recordingTickets) UpdateFields(ctx context.Context, ticketID string, fields domain.TicketFields) error {
	if err := r.record("update_fields"); err != nil {
		return err
	}
	return r.TicketSystem.UpdateFields(ctx, ticketID, fields)
}

// directoryFunc adapts a function to membership.Directory.
type directoryFunc func(ctx context.Context, handle string) membership.LookupResult

func (f directoryFunc) Lookup(ctx context.Context, handle string) membership.LookupResult {
	return f(ctx, handle)
}

func unrecognizedDirectory() membership.Directory {
	return directoryFunc(func(context.Context, string) membership.LookupResult {
		return membership.Unrecognized()
	})
}

// recordingAlerts keeps every alert.
type recordingAlerts struct {
	mu     sync.Mutex
	alerts []string
	levels []alert.Severity
}

func (r *recordingAlerts) Notify(_ context.Context, severity alert.Severity, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, message)
	r.levels = append(r.levels, severity)
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// fakeSource is an in-memory CollaboratorSource.
type fakeSource struct {
	mu         sync.Mutex
	orgs       []string
	collabs    map[string][]string
	listErr    map[string]error
	removeErr  map[string]error
	removals   []string
	listCalled []string
}

func newFakeSource(collabs map[string][]string, orgs ...string) *fakeSource {
	return &fakeSource{
		orgs:      orgs,
		collabs:   collabs,
		listErr:   map[string]error{},
		removeErr: map[string]error{},
	}
}

func (f *fakeSource) Orgs() []string { return f.orgs }

func (f *fakeSource) ListOutsideCollaborators(_ context.Context, org string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalled = append(f.listCalled, org)
	if err := f.listErr[org]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.collabs[org]...), nil
}

func (f *fakeSource) RemoveOutsideCollaborator(_ context.Context, org, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, org+"/"+handle)
	return f.removeErr[handle]
}

var errBoom = errors.New("boom")

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
