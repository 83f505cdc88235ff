package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/validation"
)

// maxPayloadBytes is GitHub's documented webhook payload cap.
const maxPayloadBytes = 25 << 20

// memberEventType is the X-GitHub-Event value for repository collaborator changes.
const memberEventType = "member"

var (
	// ErrBadSignature means the payload was not signed with the webhook secret.
	ErrBadSignature = errors.New("webhook signature mismatch")
	// ErrIgnoredEvent means the delivery is valid but not a collaborator change.
	ErrIgnoredEvent = errors.New("event ignored")
)

// Delivery is a verified webhook delivery.
type Delivery struct {
	ID        string
	EventType string
	Event     *domain.CollaboratorEvent
}

// ParseWebhook verifies the signature of r against secret and decodes a
// collaborator event. The event timestamp is the time of receipt.
//
// It returns ErrBadSignature for unsigned or mis-signed deliveries,
// ErrIgnoredEvent for anything that is not a collaborator change, and a
// domain.ErrInvalidInput error for a malformed payload.
func ParseWebhook(r *http.Request, secret []byte, receivedAt time.Time) (*Delivery, error) {
	// An empty secret makes ValidatePayload skip the signature check.
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: no webhook secret configured", ErrBadSignature)
	}
	if r.Header.Get(gh.SHA256SignatureHeader) == "" && r.Header.Get(gh.SHA1SignatureHeader) == "" {
		return nil, ErrBadSignature
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxPayloadBytes)
	// Unsupported content types fail here too and are treated as unauthenticated.
	payload, err := gh.ValidatePayload(r, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	d := &Delivery{ID: gh.DeliveryID(r), EventType: gh.WebHookType(r)}
	if d.ID == "" {
		return nil, fmt.Errorf("%w: missing delivery id", domain.ErrInvalidInput)
	}
	if d.EventType != memberEventType {
		return d, ErrIgnoredEvent
	}

	parsed, err := gh.ParseWebHook(d.EventType, payload)
	if err != nil {
		return d, fmt.Errorf("%w: decoding member payload: %w", domain.ErrInvalidInput, err)
	}
	me, ok := parsed.(*gh.MemberEvent)
	if !ok {
		return d, fmt.Errorf("%w: unexpected payload type %T", domain.ErrInvalidInput, parsed)
	}

	ev, err := collaboratorEvent(me, receivedAt)
	if err != nil {
		return d, err
	}
	ev.DeliveryID = d.ID
	d.Event = ev
	return d, nil
}

func collaboratorEvent(me *gh.MemberEvent, receivedAt time.Time) (*domain.CollaboratorEvent, error) {
	action := domain.Action(me.GetAction())
	if !action.Valid() {
		return nil, ErrIgnoredEvent
	}
	if me.Member == nil || me.Org == nil || me.Repo == nil || me.Sender == nil {
		return nil, fmt.Errorf("%w: member payload is missing member, organization, repository or sender", domain.ErrInvalidInput)
	}

	ev := &domain.CollaboratorEvent{
		Action:       action,
		Organization: me.GetOrg().GetLogin(),
		Actor:        me.GetSender().GetLogin(),
		Subject:      me.GetMember().GetLogin(),
		Repository:   me.GetRepo().GetFullName(),
		Timestamp:    receivedAt.UTC(),
	}
	if perm := me.GetChanges().GetPermission(); perm != nil {
		switch action {
		case domain.ActionAdded:
			ev.Permission = perm.GetTo()
		case domain.ActionEdited:
			ev.PermissionChange = &domain.PermissionChange{From: perm.GetFrom(), To: perm.GetTo()}
		}
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if errs := validation.ValidateEvent(ev); errs.HasErrors() {
		return nil, errs
	}
	return ev, nil
}
