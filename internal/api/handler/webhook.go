package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/github"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/metrics"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/validation"
)

// WebhookHandler accepts GitHub webhook deliveries and enqueues
// collaborator events for the worker.
type WebhookHandler struct {
	queue  storage.EventQueue
	secret []byte
	now    func() time.Time
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(queue storage.EventQueue, secret []byte) *WebhookHandler {
	return &WebhookHandler{queue: queue, secret: secret, now: time.Now}
}

type webhookResponse struct {
	Status     string `json:"status"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// Receive handles POST /webhooks/github.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	delivery, err := github.ParseWebhook(r, h.secret, h.now().UTC())
	switch {
	case errors.Is(err, github.ErrBadSignature):
		metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
		logger.Warn("webhook signature rejected", "error", err)
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	case errors.Is(err, github.ErrIgnoredEvent):
		metrics.WebhooksReceived.WithLabelValues("ignored").Inc()
		if delivery != nil {
			logger.Debug("webhook ignored", "event", delivery.EventType, "delivery_id", delivery.ID)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
		logger.Warn("webhook rejected", "error", err)
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			respondValidationErrors(w, verrs)
			return
		}
		handleError(w, err)
		return
	}

	payload, err := json.Marshal(delivery.Event)
	if err != nil {
		handleError(w, err)
		return
	}

	err = h.queue.Enqueue(ctx, &domain.QueueMessage{
		DeliveryID: delivery.ID,
		Payload:    string(payload),
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		metrics.WebhooksReceived.WithLabelValues("duplicate").Inc()
		logger.Info("duplicate webhook delivery", "delivery_id", delivery.ID)
		respondJSON(w, http.StatusOK, webhookResponse{Status: "duplicate", DeliveryID: delivery.ID})
		return
	}
	if err != nil {
		logger.Error("failed to enqueue webhook", "delivery_id", delivery.ID, "error", err)
		handleError(w, err)
		return
	}

	metrics.WebhooksReceived.WithLabelValues("accepted").Inc()
	logger.Info("webhook queued",
		"delivery_id", delivery.ID,
		"action", delivery.Event.Action,
		"subject", delivery.Event.Subject,
		"organization", delivery.Event.Organization,
	)
	respondJSON(w, http.StatusAccepted, webhookResponse{Status: "queued", DeliveryID: delivery.ID})
}
