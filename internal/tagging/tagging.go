// Package tagging computes the status tag changes implied by a
// collaborator event.
package tagging

import (
	"slices"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// Vocabulary is a team's pair of mutually exclusive access status tags.
type Vocabulary struct {
	Granted string
	Removed string
}

// TagPair is the tag to add and the tag to remove for one event.
type TagPair struct {
	Add    string
	Remove string
}

// PairFor returns the transition for action. Added and edited events
// mark access as granted; removed events swap the pair.
func (v Vocabulary) PairFor(action domain.Action) TagPair {
	if action == domain.ActionRemoved {
		return TagPair{Add: v.Removed, Remove: v.Granted}
	}
	return TagPair{Add: v.Granted, Remove: v.Removed}
}

// Plan is the set difference between a ticket's tags and a TagPair.
// Empty fields mean nothing to do on that side.
type Plan struct {
	Add    string
	Remove string
}

// Empty reports whether the plan needs no tag mutations.
func (p Plan) Empty() bool {
	return p.Add == "" && p.Remove == ""
}

// PlanTransition returns only the mutations current actually needs: add
// pair.Add when absent, remove pair.Remove when present.
func PlanTransition(current []string, pair TagPair) Plan {
	var p Plan
	if pair.Add != "" && !slices.Contains(current, pair.Add) {
		p.Add = pair.Add
	}
	if pair.Remove != "" && pair.Remove != pair.Add && slices.Contains(current, pair.Remove) {
		p.Remove = pair.Remove
	}
	return p
}

// Apply returns the tag set that results from applying pair to current.
// The input slice is not modified.
func Apply(current []string, pair TagPair) []string {
	plan := PlanTransition(current, pair)
	out := make([]string, 0, len(current)+1)
	for _, tag := range current {
		if plan.Remove != "" && tag == plan.Remove {
			continue
		}
		out = append(out, tag)
	}
	if plan.Add != "" {
		out = append(out, plan.Add)
	}
	return out
}
