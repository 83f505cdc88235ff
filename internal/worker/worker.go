// Package worker consumes the event queue and runs each collaborator event
// through reconciliation.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/alert"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/metrics"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/service"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
)

// Reconciler applies one event. It is implemented by *service.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, ev *domain.CollaboratorEvent, ack service.Acknowledger) (*service.Result, error)
}

// Config holds worker settings.
type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	MaxReceives       int
}

// Worker polls the queue. Each loop handles one message to completion
// before receiving the next.
type Worker struct {
	queue  storage.EventQueue
	engine Reconciler
	alerts alert.Notifier
	config Config
}

// New creates a Worker.
func New(queue storage.EventQueue, engine Reconciler, alerts alert.Notifier, config Config) *Worker {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = time.Minute
	}
	if alerts == nil {
		alerts = alert.LogNotifier{}
	}
	return &Worker{queue: queue, engine: engine, alerts: alerts, config: config}
}

// Run starts Concurrency polling loops and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.config.Concurrency; i++ {
		logger := log.FromContext(ctx).With("worker", i)
		loopCtx := log.IntoContext(ctx, logger)
		g.Go(func() error {
			w.loop(loopCtx)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	logger := log.FromContext(ctx)
	logger.Info("worker started", "poll_interval", w.config.PollInterval)
	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			logger.Error("processing queue message failed", "err", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-time.After(w.config.PollInterval):
		}
	}
}

// ProcessNext receives and handles at most one message. It reports whether
// a message was received. A reconciliation failure that redelivery can fix
// leaves the message leased; it is received again once its visibility
// timeout elapses.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	msg, err := w.queue.Receive(ctx, w.config.VisibilityTimeout)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("receiving message: %w", err)
	}

	logger := log.FromContext(ctx).With("message_id", msg.ID, "delivery_id", msg.DeliveryID, "receive_count", msg.ReceiveCount)
	ctx = log.IntoContext(ctx, logger)

	if msg.ReceiveCount > w.config.MaxReceives && w.config.MaxReceives > 0 {
		return true, w.deadLetter(ctx, msg, fmt.Sprintf("received %d times without success", msg.ReceiveCount))
	}

	var ev domain.CollaboratorEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		return true, w.deadLetter(ctx, msg, fmt.Sprintf("undecodable payload: %v", err))
	}

	ack := func(ctx context.Context) error {
		return w.queue.Delete(ctx, msg.Receipt)
	}
	res, err := w.engine.Reconcile(ctx, &ev, ack)
	if err == nil {
		return true, nil
	}
	if res != nil && res.Retryable {
		logger.Warn("reconciliation failed, leaving message for redelivery", "err", err)
		return true, nil
	}
	return true, w.deadLetter(ctx, msg, err.Error())
}

func (w *Worker) deadLetter(ctx context.Context, msg *domain.QueueMessage, reason string) error {
	logger := log.FromContext(ctx)
	if err := w.queue.DeadLetter(ctx, msg.Receipt, reason); err != nil {
		return fmt.Errorf("dead-lettering message %s: %w", msg.ID, err)
	}
	metrics.QueueDeadLetters.Inc()
	logger.Error("message dead-lettered", "reason", reason)
	w.alerts.Notify(ctx, alert.SeverityCritical,
		fmt.Sprintf("Collaborator event %s was parked in the dead letter queue: %s", msg.DeliveryID, reason))
	return nil
}
