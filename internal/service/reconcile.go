// Package service holds the collaborator lifecycle logic: reconciling
// webhook events into tickets and sweeping expired access.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/alert"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/datewindow"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/membership"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/metrics"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/retry"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/tagging"
)

// Outcome is the terminal state of one reconciliation.
type Outcome int

const (
	OutcomeDone Outcome = iota + 1
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes what Reconcile did.
type Result struct {
	Outcome Outcome
	// Retryable is set for failures that redelivery may fix.
	Retryable bool
	TicketID  string
	Created   bool
	Renewed   bool
	Tags      tagging.Plan
}

// Acknowledger deletes the transport message an event came from.
type Acknowledger func(ctx context.Context) error

// EngineConfig holds Engine settings.
type EngineConfig struct {
	QueueID string
	Tags    tagging.Vocabulary
	Retry   retry.Policy
}

// Engine reconciles collaborator events into lifecycle tickets.
type Engine struct {
	directory membership.Directory
	tickets   storage.TicketSystem
	matcher   *Matcher
	alerts    alert.Notifier
	config    EngineConfig
}

// NewEngine creates a reconciliation Engine.
func NewEngine(directory membership.Directory, tickets storage.TicketSystem, alerts alert.Notifier, config EngineConfig) *Engine {
	if alerts == nil {
		alerts = alert.LogNotifier{}
	}
	return &Engine{
		directory: directory,
		tickets:   tickets,
		matcher:   NewMatcher(tickets, config.QueueID),
		alerts:    alerts,
		config:    config,
	}
}

// Reconcile applies ev to its lifecycle ticket and then acknowledges it.
//
// Internal members are skipped and acknowledged without any ticket call.
// For outside collaborators the ticket is created, or the existing one gets
// a narrative message; ack runs only after that write succeeded. Tag
// changes follow the acknowledgement and are best effort.
//
// On failure ack is never called. The error is alerted and returned along
// with a Result whose Retryable field says whether redelivery can help.
func (e *Engine) Reconcile(ctx context.Context, ev *domain.CollaboratorEvent, ack Acknowledger) (*Result, error) {
	start := time.Now()
	logger := log.FromContext(ctx).With(
		"delivery_id", ev.DeliveryID,
		"action", ev.Action,
		"subject", ev.Subject,
		"org", ev.Organization,
	)
	ctx = log.IntoContext(ctx, logger)

	res, err := e.reconcile(ctx, ev, ack)
	if err != nil {
		// Classification failures carry their own retry decision.
		if res == nil {
			res = &Result{Outcome: OutcomeFailed, Retryable: domain.IsRetryable(err)}
		}
		e.fail(ctx, ev, res, err)
	}

	metrics.EventsReconciled.WithLabelValues(string(ev.Action), res.Outcome.String()).Inc()
	metrics.EventProcessingDuration.Observe(float64(time.Since(start).Milliseconds()))
	logger.Info("event reconciled", "outcome", res.Outcome, "ticket_id", res.TicketID, "created", res.Created)
	return res, err
}

func (e *Engine) reconcile(ctx context.Context, ev *domain.CollaboratorEvent, ack Acknowledger) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, domain.DataIntegrity(err)
	}

	class := membership.Classify(ev.Subject, e.directory.Lookup(ctx, ev.Subject))
	switch class.Kind {
	case membership.KindInternal:
		log.FromContext(ctx).Debug("subject is an internal member, skipping")
		e.acknowledge(ctx, ack)
		return &Result{Outcome: OutcomeSkipped}, nil
	case membership.KindOutsideCollaborator:
	default:
		res := &Result{Outcome: OutcomeFailed, Retryable: class.Retryable}
		return res, fmt.Errorf("classifying %s: %w", ev.Subject, class.Err)
	}

	pair := e.config.Tags.PairFor(ev.Action)

	ticket, err := e.matcher.FindBySubject(ctx, ev.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return e.create(ctx, ev, pair, ack)
	}
	if err != nil {
		return nil, err
	}
	return e.update(ctx, ev, ticket, pair, ack)
}

func (e *Engine) create(ctx context.Context, ev *domain.CollaboratorEvent, pair tagging.TagPair, ack Acknowledger) (*Result, error) {
	expiration := datewindow.ExpirationDate(datewindow.Of(ev.Timestamp))
	req := &domain.NewTicket{
		QueueID: e.config.QueueID,
		Title:   ticketTitle(ev.Subject),
		Body:    narrative(ev),
		Owner:   ev.Actor,
		Fields: domain.TicketFields{
			ExpirationDate: expiration.String(),
			GithubHandle:   ev.Subject,
			Email:          notAnswered,
			FullName:       notAnswered,
		},
	}

	ticket, err := retry.Value(ctx, e.config.Retry, "tickets.create", func() (*domain.Ticket, error) {
		return e.tickets.CreateTicket(ctx, req)
	})
	metrics.TicketMutations.WithLabelValues("create", metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("creating ticket for %s: %w", ev.Subject, err)
	}
	log.FromContext(ctx).Info("created ticket", "ticket_id", ticket.ID, "expiration_date", expiration, "permalink", ticket.Permalink)

	e.acknowledge(ctx, ack)

	res := &Result{Outcome: OutcomeDone, TicketID: ticket.ID, Created: true}
	res.Tags = e.applyTags(ctx, ticket, tagging.TagPair{Add: pair.Add})
	return res, nil
}

func (e *Engine) update(ctx context.Context, ev *domain.CollaboratorEvent, ticket *domain.Ticket, pair tagging.TagPair, ack Acknowledger) (*Result, error) {
	logger := log.FromContext(ctx).With("ticket_id", ticket.ID)
	res := &Result{Outcome: OutcomeDone, TicketID: ticket.ID}

	message := narrative(ev)
	if renewed, ok := e.renewal(ctx, ev, ticket); ok {
		err := e.config.Retry.Do(ctx, "tickets.update_fields", func() error {
			return e.tickets.UpdateFields(ctx, ticket.ID, domain.TicketFields{ExpirationDate: renewed.String()})
		})
		metrics.TicketMutations.WithLabelValues("update_fields", metrics.Status(err)).Inc()
		if err != nil {
			return nil, fmt.Errorf("renewing ticket %s: %w", ticket.ID, err)
		}
		logger.Info("renewed expiration", "from", ticket.Fields.ExpirationDate, "to", renewed)
		message += "\n\n" + renewalNote(ticket.Fields.ExpirationDate, renewed)
		res.Renewed = true
	}

	_, err := retry.Value(ctx, e.config.Retry, "tickets.post_message", func() (*domain.TicketMessage, error) {
		return e.tickets.PostMessage(ctx, ticket.ID, message)
	})
	metrics.TicketMutations.WithLabelValues("post_message", metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("posting message to ticket %s: %w", ticket.ID, err)
	}
	logger.Info("posted narrative to ticket")

	e.acknowledge(ctx, ack)

	res.Tags = e.applyTags(ctx, ticket, pair)
	return res, nil
}

// renewal reports the new expiration date when an added event re-grants
// access whose recorded expiration is missing or not after the event day.
func (e *Engine) renewal(ctx context.Context, ev *domain.CollaboratorEvent, ticket *domain.Ticket) (datewindow.Date, bool) {
	if ev.Action != domain.ActionAdded {
		return datewindow.Date{}, false
	}
	eventDay := datewindow.Of(ev.Timestamp)
	if current := ticket.Fields.ExpirationDate; current != "" {
		exp, err := datewindow.Parse(current)
		if err != nil {
			log.FromContext(ctx).Warn("unparseable expiration date, renewing", "expiration_date", current, "err", err)
		} else if eventDay.Before(exp) {
			return datewindow.Date{}, false
		}
	}
	return datewindow.ExpirationDate(eventDay), true
}

// applyTags moves ticket's tags towards pair. Failures are logged only.
func (e *Engine) applyTags(ctx context.Context, ticket *domain.Ticket, pair tagging.TagPair) tagging.Plan {
	logger := log.FromContext(ctx).With("ticket_id", ticket.ID)
	plan := tagging.PlanTransition(ticket.Tags, pair)

	if plan.Add != "" {
		err := e.config.Retry.Do(ctx, "tickets.add_tags", func() error {
			return e.tickets.AddTags(ctx, ticket.ID, []string{plan.Add})
		})
		metrics.TicketMutations.WithLabelValues("add_tag", metrics.Status(err)).Inc()
		if err != nil {
			logger.Warn("adding tag failed", "tag", plan.Add, "err", err)
		}
	}
	if plan.Remove != "" {
		err := e.config.Retry.Do(ctx, "tickets.remove_tag", func() error {
			return e.tickets.RemoveTag(ctx, ticket.ID, plan.Remove)
		})
		if errors.Is(err, domain.ErrNotFound) {
			err = nil
		}
		metrics.TicketMutations.WithLabelValues("remove_tag", metrics.Status(err)).Inc()
		if err != nil {
			logger.Warn("removing tag failed", "tag", plan.Remove, "err", err)
		}
	}
	return plan
}

// acknowledge runs ack after the ticket write. A failed acknowledgement
// only means the event is redelivered and reconciled again.
func (e *Engine) acknowledge(ctx context.Context, ack Acknowledger) {
	if ack == nil {
		return
	}
	if err := ack(ctx); err != nil {
		log.FromContext(ctx).Error("acknowledging event failed", "err", err)
		e.alerts.Notify(ctx, alert.SeverityWarning, fmt.Sprintf("Acknowledging a processed collaborator event failed; it will be redelivered: %v", err))
	}
}

func (e *Engine) fail(ctx context.Context, ev *domain.CollaboratorEvent, res *Result, err error) {
	severity := alert.SeverityWarning
	if !res.Retryable {
		severity = alert.SeverityCritical
	}
	log.FromContext(ctx).Log(ctx, levelFor(severity), "reconciliation failed", "retryable", res.Retryable, "err", err)
	e.alerts.Notify(ctx, severity, fmt.Sprintf("Reconciling %s event for '%s' in %s (delivery %s) failed: %v",
		ev.Action, ev.Subject, ev.Organization, ev.DeliveryID, err))
}

func levelFor(severity alert.Severity) slog.Level {
	if severity == alert.SeverityCritical {
		return slog.LevelError
	}
	return slog.LevelWarn
}
