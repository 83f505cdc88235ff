// Package github talks to the GitHub REST API for the organizations this
// service tracks: listing and removing outside collaborators, checking org
// membership and parsing collaborator webhooks.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/retry"
)

// perPage is the GitHub maximum page size.
const perPage = 100

// OrgCredentials authenticates one organization. Exactly one of the App
// fields or Token must be set.
type OrgCredentials struct {
	Org string

	AppID          int64
	InstallationID int64
	PrivateKey     []byte

	Token string
}

// Config holds configuration for creating a Client.
type Config struct {
	Orgs []OrgCredentials
	// BaseURL overrides https://api.github.com/ (GitHub Enterprise, tests).
	BaseURL string
	// Transport is the base round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Retry     retry.Policy
}

// Client holds one authenticated go-github client per organization.
type Client struct {
	orgs  map[string]*gh.Client
	names []string
	retry retry.Policy
}

// NewClient builds per-organization clients.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if len(config.Orgs) == 0 {
		return nil, domain.Configuration(errors.New("github: no organizations configured"))
	}
	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &Client{orgs: make(map[string]*gh.Client), retry: config.Retry}
	for _, cred := range config.Orgs {
		httpClient, err := httpClientFor(ctx, cred, transport, config.BaseURL)
		if err != nil {
			return nil, err
		}
		client := gh.NewClient(httpClient)
		if config.BaseURL != "" {
			base, err := url.Parse(strings.TrimRight(config.BaseURL, "/") + "/")
			if err != nil {
				return nil, domain.Configuration(fmt.Errorf("github: invalid base URL: %w", err))
			}
			client.BaseURL = base
		}
		c.orgs[cred.Org] = client
		c.names = append(c.names, cred.Org)
	}
	sort.Strings(c.names)
	return c, nil
}

func httpClientFor(ctx context.Context, cred OrgCredentials, transport http.RoundTripper, baseURL string) (*http.Client, error) {
	hasApp := cred.AppID != 0 || cred.InstallationID != 0 || len(cred.PrivateKey) > 0
	hasToken := cred.Token != ""

	switch {
	case hasApp && hasToken:
		return nil, domain.Configuration(fmt.Errorf("github: org %s: cannot configure both App auth and token auth", cred.Org))
	case hasToken:
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: transport})
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token})), nil
	case hasApp:
		if cred.AppID == 0 || cred.InstallationID == 0 || len(cred.PrivateKey) == 0 {
			return nil, domain.Configuration(fmt.Errorf("github: org %s: App auth needs app_id, installation_id and a private key", cred.Org))
		}
		itr, err := ghinstallation.New(transport, cred.AppID, cred.InstallationID, cred.PrivateKey)
		if err != nil {
			return nil, domain.Configuration(fmt.Errorf("github: org %s: %w", cred.Org, err))
		}
		if baseURL != "" {
			itr.BaseURL = strings.TrimRight(baseURL, "/")
		}
		return &http.Client{Transport: itr}, nil
	}
	return nil, domain.Configuration(fmt.Errorf("github: org %s: no authentication configured", cred.Org))
}

// Orgs returns the configured organization names, sorted.
func (c *Client) Orgs() []string {
	return append([]string(nil), c.names...)
}

func (c *Client) client(org string) (*gh.Client, error) {
	client, ok := c.orgs[org]
	if !ok {
		return nil, domain.Configuration(fmt.Errorf("github: organization %q is not configured", org))
	}
	return client, nil
}

// ListOutsideCollaborators returns the login of every outside collaborator
// in org, following pagination to the last page.
func (c *Client) ListOutsideCollaborators(ctx context.Context, org string) ([]string, error) {
	client, err := c.client(org)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOutsideCollaboratorsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	var logins []string
	for {
		var users []*gh.User
		var resp *gh.Response
		err := c.retry.Do(ctx, "github.list_outside_collaborators", func() error {
			var callErr error
			users, resp, callErr = client.Organizations.ListOutsideCollaborators(ctx, org, opts)
			return classify("list outside collaborators", callErr)
		})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			logins = append(logins, u.GetLogin())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.FromContext(ctx).Debug("listed outside collaborators", "org", org, "count", len(logins))
	return logins, nil
}

// RemoveOutsideCollaborator removes handle from every repository in org.
// Pending invitations are not affected.
func (c *Client) RemoveOutsideCollaborator(ctx context.Context, org, handle string) error {
	client, err := c.client(org)
	if err != nil {
		return err
	}
	return c.retry.Do(ctx, "github.remove_outside_collaborator", func() error {
		_, err := client.Organizations.RemoveOutsideCollaborator(ctx, org, handle)
		return classify("remove outside collaborator", err)
	})
}

// IsActiveMember reports whether handle has an active membership in org.
func (c *Client) IsActiveMember(ctx context.Context, org, handle string) (bool, error) {
	client, err := c.client(org)
	if err != nil {
		return false, err
	}
	var m *gh.Membership
	err = c.retry.Do(ctx, "github.get_org_membership", func() error {
		var callErr error
		m, _, callErr = client.Organizations.GetOrgMembership(ctx, handle, org)
		return classify("get org membership", callErr)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.GetState() == "active", nil
}
