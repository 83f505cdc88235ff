package service

import (
	"fmt"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/datewindow"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

const (
	narrativeTimeLayout = "2006-01-02 15:04:05"
	// notAnswered fills ticket fields the event cannot answer.
	notAnswered = "n/a"
)

// ticketTitle is the title of the lifecycle ticket for handle.
func ticketTitle(handle string) string {
	return handle + " Collaborator Access"
}

// narrative describes one collaborator event for a ticket body or message.
func narrative(ev *domain.CollaboratorEvent) string {
	var phrase string
	switch ev.Action {
	case domain.ActionAdded:
		if ev.Permission != "" {
			phrase = fmt.Sprintf("with %s permissions to", ev.Permission)
		} else {
			phrase = "to"
		}
	case domain.ActionRemoved:
		phrase = "from"
	case domain.ActionEdited:
		if pc := ev.PermissionChange; pc != nil {
			phrase = fmt.Sprintf("from %s to %s permissions in", pc.From, pc.To)
		} else {
			phrase = "in"
		}
	}
	return fmt.Sprintf("'%s' was %s %s %s by '%s' at UTC %s",
		ev.Subject, ev.Action, phrase, ev.Repository, ev.Actor, ev.Timestamp.UTC().Format(narrativeTimeLayout))
}

func renewalNote(previous string, renewed datewindow.Date) string {
	if previous == "" {
		return fmt.Sprintf("Access expiration set to %s.", renewed)
	}
	return fmt.Sprintf("Access re-granted; expiration renewed from %s to %s.", previous, renewed)
}

func expirationNotice(handle string, expiration datewindow.Date, remaining int) string {
	return fmt.Sprintf("Outside collaborator access for '%s' expires on %s, %d days remaining. "+
		"Renew access by re-adding the collaborator or they will be removed automatically.",
		handle, expiration, remaining)
}

func removalNote(handle, org string, today datewindow.Date) string {
	return fmt.Sprintf("'%s' was removed as an outside collaborator from %s on %s because their access expired.",
		handle, org, today)
}
