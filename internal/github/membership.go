package github

import (
	"context"
	"fmt"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/membership"
)

// MemberChecker reports whether a handle is an active member of an org.
type MemberChecker interface {
	Orgs() []string
	IsActiveMember(ctx context.Context, org, handle string) (bool, error)
}

// MembershipDirectory treats active membership in any tracked
// organization as the identity of record. It is the directory used when
// no separate identity service is deployed.
type MembershipDirectory struct {
	checker MemberChecker
}

var _ membership.Directory = (*MembershipDirectory)(nil)

// NewMembershipDirectory creates a directory over checker.
func NewMembershipDirectory(checker MemberChecker) *MembershipDirectory {
	return &MembershipDirectory{checker: checker}
}

func (d *MembershipDirectory) Lookup(ctx context.Context, githubHandle string) membership.LookupResult {
	for _, org := range d.checker.Orgs() {
		active, err := d.checker.IsActiveMember(ctx, org, githubHandle)
		if err != nil {
			// Rejected credentials, bad requests and rate limits are all
			// lookup failures worth redelivering. The error chain is cut
			// so the client's configuration or data integrity mark does
			// not override that.
			return membership.Transient(fmt.Errorf("checking membership of %s in %s: %s", githubHandle, org, err))
		}
		if active {
			return membership.Found(membership.Record{GithubHandle: githubHandle})
		}
	}
	return membership.Unrecognized()
}
