package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/alert"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/datewindow"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/metrics"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/retry"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
)

// DefaultPageSize is the ticket listing page size used by the sweep.
const DefaultPageSize = 40

// CollaboratorSource is the source of truth for outside collaborators.
type CollaboratorSource interface {
	Orgs() []string
	ListOutsideCollaborators(ctx context.Context, org string) ([]string, error)
	RemoveOutsideCollaborator(ctx context.Context, org, handle string) error
}

// SweepConfig holds Sweeper settings.
type SweepConfig struct {
	QueueID  string
	PageSize int
	// RemovedTag marks tickets whose access was already revoked; they get
	// no expiration reminders.
	RemovedTag string
	Retry      retry.Policy
}

// Removal is the result of one expired handle found in one org.
type Removal struct {
	Org      string `json:"org"`
	Handle   string `json:"handle"`
	TicketID string `json:"ticket_id"`
	Removed  bool   `json:"removed"`
	Error    string `json:"error,omitempty"`
}

// Notice is one expiration reminder.
type Notice struct {
	TicketID       string `json:"ticket_id"`
	Handle         string `json:"handle"`
	ExpirationDate string `json:"expiration_date"`
	DaysRemaining  int    `json:"days_remaining"`
	Error          string `json:"error,omitempty"`
}

// OrgFailure records an organization whose collaborators could not be listed.
type OrgFailure struct {
	Org   string `json:"org"`
	Error string `json:"error"`
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Date           string       `json:"date"`
	TicketsScanned int          `json:"tickets_scanned"`
	Expired        []string     `json:"expired"`
	Removals       []Removal    `json:"removals"`
	Notices        []Notice     `json:"notices"`
	OrgFailures    []OrgFailure `json:"org_failures,omitempty"`
}

// Failed reports whether any part of the run failed.
func (r *SweepReport) Failed() bool {
	if len(r.OrgFailures) > 0 {
		return true
	}
	for _, rm := range r.Removals {
		if rm.Error != "" {
			return true
		}
	}
	for _, n := range r.Notices {
		if n.Error != "" {
			return true
		}
	}
	return false
}

// Sweeper removes outside collaborators whose tracked access expires today.
type Sweeper struct {
	tickets storage.TicketSystem
	source  CollaboratorSource
	alerts  alert.Notifier
	config  SweepConfig
	now     func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepClock sets the clock used to determine today.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a Sweeper.
func NewSweeper(tickets storage.TicketSystem, source CollaboratorSource, alerts alert.Notifier, config SweepConfig, opts ...SweeperOption) *Sweeper {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if alerts == nil {
		alerts = alert.LogNotifier{}
	}
	s := &Sweeper{
		tickets: tickets,
		source:  source,
		alerts:  alerts,
		config:  config,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sweep. Each removal and reminder is independent: a
// failure is recorded in the report and the run goes on. The returned
// error joins every individual failure and is nil when all succeeded.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	today := datewindow.Of(s.now())
	logger := log.FromContext(ctx).With("date", today)
	ctx = log.IntoContext(ctx, logger)
	report := &SweepReport{Date: today.String()}

	expired, err := s.scan(ctx, today, report)
	if err != nil {
		s.alerts.Notify(ctx, alert.SeverityCritical, fmt.Sprintf("Expiration sweep for %s could not scan tickets: %v", today, err))
		return report, err
	}

	var errs []error
	for _, n := range report.Notices {
		if n.Error != "" {
			errs = append(errs, fmt.Errorf("reminder for %s on ticket %s: %s", n.Handle, n.TicketID, n.Error))
		}
	}

	if len(expired) > 0 {
		errs = append(errs, s.removeExpired(ctx, today, expired, report)...)
	}

	logger.Info("expiration sweep finished",
		"tickets", report.TicketsScanned,
		"expired", len(report.Expired),
		"removals", len(report.Removals),
		"notices", len(report.Notices),
		"failures", len(errs))

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.alerts.Notify(ctx, alert.SeverityCritical, fmt.Sprintf("Expiration sweep for %s had %d failures:\n%v", today, len(errs), err))
		return report, err
	}
	return report, nil
}

// scan pages through the queue. It posts reminders as it goes and returns
// the tickets expiring today, keyed by lowercased handle.
func (s *Sweeper) scan(ctx context.Context, today datewindow.Date, report *SweepReport) (map[string][]*domain.Ticket, error) {
	logger := log.FromContext(ctx)
	expired := make(map[string][]*domain.Ticket)

	for offset := 0; ; {
		page, err := retry.Value(ctx, s.config.Retry, "tickets.list", func() (*domain.TicketPage, error) {
			return s.tickets.ListTickets(ctx, s.config.QueueID, domain.Page{Limit: s.config.PageSize, Offset: offset})
		})
		if err != nil {
			return nil, fmt.Errorf("listing tickets at offset %d: %w", offset, err)
		}

		for _, t := range page.Tickets {
			report.TicketsScanned++
			if t.Fields.GithubHandle == "" || t.Fields.ExpirationDate == "" {
				continue
			}
			exp, err := datewindow.Parse(t.Fields.ExpirationDate)
			if err != nil {
				logger.Warn("skipping ticket with invalid expiration date", "ticket_id", t.ID, "expiration_date", t.Fields.ExpirationDate)
				continue
			}

			switch {
			case exp.Equal(today):
				key := strings.ToLower(t.Fields.GithubHandle)
				if len(expired[key]) == 0 {
					report.Expired = append(report.Expired, t.Fields.GithubHandle)
				}
				expired[key] = append(expired[key], t)
			case datewindow.NotificationWindow(today, exp) && !t.HasTag(s.config.RemovedTag):
				report.Notices = append(report.Notices, s.remind(ctx, today, t, exp))
			}
		}

		offset += len(page.Tickets)
		if len(page.Tickets) == 0 || offset >= page.Total {
			break
		}
	}

	sort.Strings(report.Expired)
	return expired, nil
}

func (s *Sweeper) remind(ctx context.Context, today datewindow.Date, t *domain.Ticket, exp datewindow.Date) Notice {
	remaining := today.DaysUntil(exp)
	n := Notice{
		TicketID:       t.ID,
		Handle:         t.Fields.GithubHandle,
		ExpirationDate: exp.String(),
		DaysRemaining:  remaining,
	}
	_, err := retry.Value(ctx, s.config.Retry, "tickets.post_message", func() (*domain.TicketMessage, error) {
		return s.tickets.PostMessage(ctx, t.ID, expirationNotice(t.Fields.GithubHandle, exp, remaining))
	})
	metrics.ExpirationNotices.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		n.Error = err.Error()
		log.FromContext(ctx).Error("posting expiration reminder failed", "ticket_id", t.ID, "err", err)
	}
	return n
}

func (s *Sweeper) removeExpired(ctx context.Context, today datewindow.Date, expired map[string][]*domain.Ticket, report *SweepReport) []error {
	logger := log.FromContext(ctx)
	var errs []error

	for _, org := range s.source.Orgs() {
		live, err := s.source.ListOutsideCollaborators(ctx, org)
		if err != nil {
			logger.Error("listing outside collaborators failed", "org", org, "err", err)
			report.OrgFailures = append(report.OrgFailures, OrgFailure{Org: org, Error: err.Error()})
			errs = append(errs, fmt.Errorf("listing outside collaborators in %s: %w", org, err))
			continue
		}

		sort.Strings(live)
		for _, login := range live {
			tickets, ok := expired[strings.ToLower(login)]
			if !ok {
				continue
			}
			rm := Removal{Org: org, Handle: login, TicketID: tickets[0].ID}

			err := s.source.RemoveOutsideCollaborator(ctx, org, login)
			metrics.SweepRemovals.WithLabelValues(metrics.Status(err)).Inc()
			if err != nil {
				logger.Error("removing outside collaborator failed", "org", org, "handle", login, "err", err)
				rm.Error = err.Error()
				report.Removals = append(report.Removals, rm)
				errs = append(errs, fmt.Errorf("removing %s from %s: %w", login, org, err))
				continue
			}
			rm.Removed = true
			logger.Info("removed expired outside collaborator", "org", org, "handle", login)

			for _, t := range tickets {
				if err := s.recordRemoval(ctx, t, login, org, today); err != nil {
					rm.Error = err.Error()
					errs = append(errs, fmt.Errorf("recording removal of %s on ticket %s: %w", login, t.ID, err))
				}
			}
			report.Removals = append(report.Removals, rm)
		}
	}
	return errs
}

func (s *Sweeper) recordRemoval(ctx context.Context, t *domain.Ticket, handle, org string, today datewindow.Date) error {
	_, err := retry.Value(ctx, s.config.Retry, "tickets.post_message", func() (*domain.TicketMessage, error) {
		return s.tickets.PostMessage(ctx, t.ID, removalNote(handle, org, today))
	})
	metrics.TicketMutations.WithLabelValues("post_message", metrics.Status(err)).Inc()
	return err
}
