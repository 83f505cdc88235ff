// Package membership decides whether a GitHub handle belongs to an
// internal member or an outside collaborator.
//
// Directory adapters report lookups as a LookupResult, a closed set of
// outcomes classified once at the adapter boundary. Classify turns that
// result into the three-way decision the reconciliation engine acts on.
package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// Status is the outcome of one directory lookup.
type Status int

const (
	// StatusFound means the directory returned an identity record.
	StatusFound Status = iota + 1
	// StatusUnrecognized means the directory does not know the handle.
	StatusUnrecognized
	// StatusTransient means the lookup could not be completed (auth,
	// rate limit, bad request, server or network error).
	StatusTransient
	// StatusMalformed means the directory answered with something that
	// could not be interpreted.
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusUnrecognized:
		return "unrecognized"
	case StatusTransient:
		return "transient"
	case StatusMalformed:
		return "malformed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Record is the identity directory's view of a person.
type Record struct {
	GithubHandle string `json:"github-handle"`
	Email        string `json:"email,omitempty"`
	FullName     string `json:"name,omitempty"`
}

// LookupResult is a tagged union: Record is set only for StatusFound, Err
// only for StatusTransient and StatusMalformed.
type LookupResult struct {
	Status Status
	Record *Record
	Err    error
}

// Found builds a successful lookup result.
func Found(r Record) LookupResult {
	return LookupResult{Status: StatusFound, Record: &r}
}

// Unrecognized builds a "not a known identity" result.
func Unrecognized() LookupResult {
	return LookupResult{Status: StatusUnrecognized}
}

// Transient builds a retryable failure result.
func Transient(err error) LookupResult {
	return LookupResult{Status: StatusTransient, Err: domain.Transient(err)}
}

// Malformed builds a data integrity failure result.
func Malformed(err error) LookupResult {
	return LookupResult{Status: StatusMalformed, Err: domain.DataIntegrity(err)}
}

// Directory looks up a GitHub handle in an organization identity source.
type Directory interface {
	Lookup(ctx context.Context, githubHandle string) LookupResult
}

// Kind is the membership decision.
type Kind int

const (
	KindInternal Kind = iota + 1
	KindOutsideCollaborator
	KindLookupFailed
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindOutsideCollaborator:
		return "outside_collaborator"
	case KindLookupFailed:
		return "lookup_failed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Classification is the decision for one handle. Retryable and Err are only
// meaningful for KindLookupFailed.
type Classification struct {
	Kind      Kind
	Retryable bool
	Err       error
}

// Classify maps a lookup result for handle to a membership decision.
//
// A found record must carry exactly the queried handle to count as
// internal. A record for some other handle means the directory answered a
// different question; that is a data integrity failure, not an internal
// member and not a retry candidate.
func Classify(handle string, res LookupResult) Classification {
	switch res.Status {
	case StatusFound:
		if res.Record == nil {
			return failed(false, domain.DataIntegrity(errors.New("identity lookup returned no record")))
		}
		if res.Record.GithubHandle != handle {
			return failed(false, domain.DataIntegrity(fmt.Errorf(
				"identity record handle %q does not match queried handle %q", res.Record.GithubHandle, handle)))
		}
		return Classification{Kind: KindInternal}
	case StatusUnrecognized:
		return Classification{Kind: KindOutsideCollaborator}
	case StatusTransient:
		return failed(true, domain.Transient(errOrDefault(res.Err, "identity lookup failed")))
	case StatusMalformed:
		return failed(false, domain.DataIntegrity(errOrDefault(res.Err, "malformed identity response")))
	}
	return failed(false, domain.DataIntegrity(fmt.Errorf("unknown lookup status %v", res.Status)))
}

func failed(retryable bool, err error) Classification {
	return Classification{Kind: KindLookupFailed, Retryable: retryable, Err: err}
}

func errOrDefault(err error, msg string) error {
	if err != nil {
		return err
	}
	return errors.New(msg)
}
