// Package alert delivers operator alerts. Delivery is best effort: a
// failed alert is logged and counted, never returned to the caller.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slack-go/slack"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/metrics"
)

// Severity grades an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier is a fire-and-forget alert sink.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string)
}

// Slack posts alerts to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	stackName  string
	logURL     string
	httpClient *http.Client
}

var _ Notifier = (*Slack)(nil)

// NewSlack creates a Slack notifier. stackName and logURL are included in
// every alert so operators can find the failing deployment.
func NewSlack(webhookURL, stackName, logURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		stackName:  stackName,
		logURL:     logURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Slack) Notify(ctx context.Context, severity Severity, message string) {
	logger := log.FromContext(ctx)

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("There has been a '%s' error.", s.stackName),
		Attachments: []slack.Attachment{{
			Color:  color(severity),
			Title:  string(severity),
			Text:   message,
			Footer: s.footer(),
			Ts:     slackTimestamp(time.Now()),
		}},
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg)
	metrics.AlertsSent.WithLabelValues(string(severity), metrics.Status(err)).Inc()
	if err != nil {
		logger.Error("sending slack alert", "severity", severity, "alert", message, "err", err)
		return
	}
	logger.Info("slack alert sent", "severity", severity)
}

func (s *Slack) footer() string {
	if s.logURL == "" {
		return s.stackName
	}
	return fmt.Sprintf("<%s|See logs> for details", s.logURL)
}

func color(severity Severity) string {
	if severity == SeverityCritical {
		return "danger"
	}
	return "warning"
}

func slackTimestamp(t time.Time) json.Number {
	return json.Number(strconv.FormatInt(t.Unix(), 10))
}

// LogNotifier writes alerts to the context logger. Used when no Slack
// webhook is configured.
type LogNotifier struct{}

var _ Notifier = LogNotifier{}

func (LogNotifier) Notify(ctx context.Context, severity Severity, message string) {
	log.FromContext(ctx).Error("alert", "severity", severity, "alert", message)
	metrics.AlertsSent.WithLabelValues(string(severity), "logged").Inc()
}
