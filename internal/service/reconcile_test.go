package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/alert"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/membership"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage/memory"
)

type engineFixture struct {
	engine  *Engine
	tickets *recordingTickets
	store   *memory.Store
	alerts  *recordingAlerts
	acks    int
}

func newEngineFixture(t *testing.T, dir membership.Directory) *engineFixture {
	t.Helper()
	tickets, store := newRecordingTickets()
	f := &engineFixture{tickets: tickets, store: store, alerts: &recordingAlerts{}}
	f.engine = NewEngine(dir, tickets, f.alerts, EngineConfig{QueueID: testQueue, Tags: testVocabulary})
	return f
}

func (f *engineFixture) ack(context.Context) error {
	f.acks++
	return nil
}

func (f *engineFixture) seed(t *testing.T, handle, expiration string, tags ...string) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.store.CreateTicket(ctx, &domain.NewTicket{
		QueueID: testQueue,
		Title:   ticketTitle(handle),
		Body:    "seeded",
		Fields:  domain.TicketFields{GithubHandle: handle, ExpirationDate: expiration},
	})
	require.NoError(t, err)
	if len(tags) > 0 {
		require.NoError(t, f.store.AddTags(ctx, ticket.ID, tags))
	}
	return ticket
}

func (f *engineFixture) allTickets(t *testing.T) []*domain.Ticket {
	t.Helper()
	page, err := f.store.ListTickets(context.Background(), testQueue, domain.Page{Limit: 100})
	require.NoError(t, err)
	return page.Tickets
}

func addedEvent(subject string) *domain.CollaboratorEvent {
	return &domain.CollaboratorEvent{
		DeliveryID:   "delivery-1",
		Action:       domain.ActionAdded,
		Organization: "acme",
		Actor:        "admin-user",
		Subject:      subject,
		Repository:   "acme/widgets",
		Permission:   "write",
		Timestamp:    mustTime("2024-03-01T10:15:00Z"),
	}
}

func TestReconcile_InternalMemberSkipped(t *testing.T) {
	dir := directoryFunc(func(_ context.Context, handle string) membership.LookupResult {
		return membership.Found(membership.Record{GithubHandle: handle, Email: "e@acme.com"})
	})
	f := newEngineFixture(t, dir)

	res, err := f.engine.Reconcile(context.Background(), addedEvent("employee"), f.ack)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, 0, f.tickets.total(), "internal members must not touch the ticket system")
	assert.Equal(t, 1, f.acks)
}

func TestReconcile_CreatesTicket(t *testing.T) {
	tests := []struct {
		name    string
		action  domain.Action
		wantTag string
	}{
		{"added", domain.ActionAdded, granted},
		{"edited", domain.ActionEdited, granted},
		{"removed", domain.ActionRemoved, removed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, unrecognizedDirectory())
			ev := addedEvent("octocat")
			ev.Action = tt.action
			if tt.action != domain.ActionAdded {
				ev.Permission = ""
			}
			if tt.action == domain.ActionEdited {
				ev.PermissionChange = &domain.PermissionChange{From: "read", To: "write"}
			}

			var ticketsAtAck int
			ack := func(ctx context.Context) error {
				f.acks++
				ticketsAtAck = len(f.allTickets(t))
				return nil
			}

			res, err := f.engine.Reconcile(context.Background(), ev, ack)
			require.NoError(t, err)
			assert.Equal(t, OutcomeDone, res.Outcome)
			assert.True(t, res.Created)

			assert.Equal(t, 1, f.tickets.count("create"))
			assert.Equal(t, 1, f.acks)
			assert.Equal(t, 1, ticketsAtAck, "ack must follow ticket creation")

			all := f.allTickets(t)
			require.Len(t, all, 1)
			ticket := all[0]
			assert.Equal(t, "octocat Collaborator Access", ticket.Title)
			assert.Equal(t, "2025-03-01", ticket.Fields.ExpirationDate)
			assert.Equal(t, "octocat", ticket.Fields.GithubHandle)
			assert.Equal(t, "n/a", ticket.Fields.Email)
			assert.Equal(t, "admin-user", ticket.Owner)
			assert.Equal(t, []string{tt.wantTag}, ticket.Tags)
			assert.Equal(t, 1, f.tickets.count("add_tags"))
			assert.Equal(t, 0, f.tickets.count("remove_tag"))
		})
	}
}

func TestReconcile_ExistingTicketAlreadyTagged(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	seeded := f.seed(t, "octocat", "2024-12-01", granted)

	res, err := f.engine.Reconcile(context.Background(), addedEvent("octocat"), f.ack)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, seeded.ID, res.TicketID)
	assert.False(t, res.Created)
	assert.False(t, res.Renewed)
	assert.Equal(t, 0, f.tickets.count("create"))
	assert.Equal(t, 0, f.tickets.count("add_tags"), "tag already present")
	assert.Equal(t, 0, f.tickets.count("remove_tag"), "removed tag absent")
	assert.Equal(t, 1, f.tickets.count("post_message"))
	assert.Equal(t, 1, f.acks)

	msgs, err := f.store.ListMessages(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "'octocat' was added with write permissions to acme/widgets by 'admin-user' at UTC 2024-03-01 10:15:00", msgs[0].Body)
}

func TestReconcile_RemovedSwapsTags(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	seeded := f.seed(t, "octocat", "2024-12-01", granted)

	ev := addedEvent("octocat")
	ev.Action = domain.ActionRemoved
	ev.Permission = ""

	res, err := f.engine.Reconcile(context.Background(), ev, f.ack)
	require.NoError(t, err)
	assert.Equal(t, removed, res.Tags.Add)
	assert.Equal(t, granted, res.Tags.Remove)

	ticket, err := f.store.GetTicket(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{removed}, ticket.Tags)

	msgs, err := f.store.ListMessages(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].Body, "'octocat' was removed from acme/widgets by 'admin-user'"), msgs[0].Body)
}

func TestReconcile_RedeliveryConverges(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	ctx := context.Background()
	ev := addedEvent("octocat")

	_, err := f.engine.Reconcile(ctx, ev, f.ack)
	require.NoError(t, err)
	first := f.allTickets(t)

	res, err := f.engine.Reconcile(ctx, ev, f.ack)
	require.NoError(t, err)
	second := f.allTickets(t)

	require.Len(t, second, 1, "redelivery must not create a second ticket")
	assert.Equal(t, first[0].Tags, second[0].Tags)
	assert.Equal(t, first[0].Fields, second[0].Fields)
	assert.False(t, res.Renewed)
	assert.Equal(t, 1, f.tickets.count("add_tags"))
	assert.Equal(t, 2, f.acks)
}

func TestReconcile_Renewal(t *testing.T) {
	tests := []struct {
		name       string
		expiration string
		action     domain.Action
		wantRenew  bool
		wantExpiry string
	}{
		{"expires on event day", "2024-03-01", domain.ActionAdded, true, "2025-03-01"},
		{"already expired", "2024-01-10", domain.ActionAdded, true, "2025-03-01"},
		{"no expiration recorded", "", domain.ActionAdded, true, "2025-03-01"},
		{"still valid", "2024-03-02", domain.ActionAdded, false, "2024-03-02"},
		{"edited never renews", "2024-01-10", domain.ActionEdited, false, "2024-01-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, unrecognizedDirectory())
			seeded := f.seed(t, "octocat", tt.expiration, granted)

			ev := addedEvent("octocat")
			ev.Action = tt.action
			if tt.action == domain.ActionEdited {
				ev.Permission = ""
				ev.PermissionChange = &domain.PermissionChange{From: "read", To: "admin"}
			}

			res, err := f.engine.Reconcile(context.Background(), ev, f.ack)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRenew, res.Renewed)

			ticket, err := f.store.GetTicket(context.Background(), seeded.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExpiry, ticket.Fields.ExpirationDate)
		})
	}
}

func TestReconcile_SubstringMatchIsNotTrusted(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	f.seed(t, "octocat-bot", "2024-12-01", granted)

	res, err := f.engine.Reconcile(context.Background(), addedEvent("octocat"), f.ack)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, f.allTickets(t), 2)
}

func TestReconcile_MatchIgnoresHandleCase(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	seeded := f.seed(t, "OctoCat", "2024-12-01", granted)

	res, err := f.engine.Reconcile(context.Background(), addedEvent("octocat"), f.ack)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, res.TicketID)
	assert.False(t, res.Created)
}

func TestReconcile_Failures(t *testing.T) {
	tests := []struct {
		name          string
		dir           membership.Directory
		setup         func(*testing.T, *engineFixture)
		wantRetryable bool
		wantErr       error
		wantSeverity  alert.Severity
	}{
		{
			name: "identity lookup transient",
			dir: directoryFunc(func(context.Context, string) membership.LookupResult {
				return membership.Transient(errors.New("429 too many requests"))
			}),
			wantRetryable: true,
			wantErr:       domain.ErrTransient,
			wantSeverity:  alert.SeverityWarning,
		},
		{
			name: "identity lookup credentials rejected",
			dir: directoryFunc(func(context.Context, string) membership.LookupResult {
				return membership.Transient(domain.Configuration(errors.New("403 forbidden")))
			}),
			wantRetryable: true,
			wantErr:       domain.ErrTransient,
			wantSeverity:  alert.SeverityWarning,
		},
		{
			name: "identity record for another handle",
			dir: directoryFunc(func(context.Context, string) membership.LookupResult {
				return membership.Found(membership.Record{GithubHandle: "someone-else"})
			}),
			wantRetryable: false,
			wantErr:       domain.ErrDataIntegrity,
			wantSeverity:  alert.SeverityCritical,
		},
		{
			name: "create fails",
			dir:  unrecognizedDirectory(),
			setup: func(t *testing.T, f *engineFixture) {
				f.tickets.failOn("create", domain.Transient(errBoom))
			},
			wantRetryable: true,
			wantErr:       domain.ErrTransient,
			wantSeverity:  alert.SeverityWarning,
		},
		{
			name: "post message fails",
			dir:  unrecognizedDirectory(),
			setup: func(t *testing.T, f *engineFixture) {
				f.seed(t, "octocat", "2024-12-01", granted)
				f.tickets.failOn("post_message", errBoom)
			},
			wantRetryable: true,
			wantErr:       errBoom,
			wantSeverity:  alert.SeverityWarning,
		},
		{
			name: "ticket system credentials rejected",
			dir:  unrecognizedDirectory(),
			setup: func(t *testing.T, f *engineFixture) {
				f.tickets.failOn("search", domain.Configuration(errors.New("401 unauthorized")))
			},
			wantRetryable: false,
			wantErr:       domain.ErrConfiguration,
			wantSeverity:  alert.SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, tt.dir)
			if tt.setup != nil {
				tt.setup(t, f)
			}

			res, err := f.engine.Reconcile(context.Background(), addedEvent("octocat"), f.ack)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, tt.wantRetryable, res.Retryable)
			assert.Equal(t, 0, f.acks, "failed events must not be acknowledged")
			require.Equal(t, 1, f.alerts.count())
			assert.Equal(t, tt.wantSeverity, f.alerts.levels[0])
		})
	}
}

func TestReconcile_TagFailureIsBestEffort(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	f.seed(t, "octocat", "2024-12-01", removed)
	f.tickets.failOn("add_tags", domain.Transient(errBoom))
	f.tickets.failOn("remove_tag", domain.Transient(errBoom))

	res, err := f.engine.Reconcile(context.Background(), addedEvent("octocat"), f.ack)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, 1, f.acks)
	assert.Equal(t, 0, f.alerts.count())
}

func TestReconcile_AckFailureStillCompletes(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	ack := func(context.Context) error { return errBoom }

	res, err := f.engine.Reconcile(context.Background(), addedEvent("octocat"), ack)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, 1, f.alerts.count())
	assert.Equal(t, []string{granted}, f.allTickets(t)[0].Tags)
}

func TestReconcile_InvalidEvent(t *testing.T) {
	f := newEngineFixture(t, unrecognizedDirectory())
	ev := addedEvent("")

	res, err := f.engine.Reconcile(context.Background(), ev, f.ack)
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)
	assert.False(t, res.Retryable)
	assert.Equal(t, 0, f.tickets.total())
}
