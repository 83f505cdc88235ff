package domain

import (
	"fmt"
	"time"
)

// Action is what happened to a repository collaborator.
type Action string

// Collaborator actions delivered by GitHub "member" webhooks.
const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
	ActionEdited  Action = "edited"
)

// Valid reports whether a is one of the known collaborator actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAdded, ActionRemoved, ActionEdited:
		return true
	}
	return false
}

// PermissionChange is the before/after permission level of an edited collaborator.
type PermissionChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CollaboratorEvent is one webhook delivery about a repository collaborator.
// It is built once at ingress and never mutated afterwards.
type CollaboratorEvent struct {
	DeliveryID   string `json:"delivery_id"`
	Action       Action `json:"action"`
	Organization string `json:"organization"`
	// Actor is the GitHub handle of the person who made the change.
	Actor string `json:"actor"`
	// Subject is the GitHub handle of the collaborator affected.
	Subject    string `json:"subject"`
	Repository string `json:"repository"`
	// Permission is the level granted by an added event, when GitHub reports it.
	Permission string `json:"permission,omitempty"`
	// PermissionChange is only present for edited events.
	PermissionChange *PermissionChange `json:"permission_change,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Validate checks the event is complete enough to reconcile.
func (e *CollaboratorEvent) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidInput, e.Action)
	}
	if e.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if e.Organization == "" {
		return fmt.Errorf("%w: organization is required", ErrInvalidInput)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	if e.PermissionChange != nil && e.Action != ActionEdited {
		return fmt.Errorf("%w: permission change is only valid for edited events", ErrInvalidInput)
	}
	return nil
}
