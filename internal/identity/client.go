// Package identity is an HTTP client for the organization identity
// service, which maps GitHub handles to employee records.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/membership"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/retry"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the root of the identity service API.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	// Retry bounds local retries of transient failures.
	Retry retry.Policy
}

// Client looks up GitHub handles in the identity service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      retry.Policy
}

var _ membership.Directory = (*Client)(nil)

// NewClient creates an identity service client.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		return nil, domain.Configuration(errors.New("identity: base URL is required"))
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, domain.Configuration(fmt.Errorf("identity: invalid base URL: %w", err))
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		retry:      config.Retry,
	}, nil
}

// Lookup asks the identity service who owns githubHandle. Transient
// failures are retried locally before being reported.
func (c *Client) Lookup(ctx context.Context, githubHandle string) membership.LookupResult {
	var result membership.LookupResult
	err := c.retry.Do(ctx, "identity.lookup", func() error {
		result = c.lookupOnce(ctx, githubHandle)
		if result.Status == membership.StatusTransient {
			return result.Err
		}
		return nil
	})
	if err != nil && result.Status != membership.StatusTransient {
		// Context ended between attempts.
		return membership.Transient(err)
	}
	log.FromContext(ctx).Debug("identity lookup", "handle", githubHandle, "status", result.Status)
	return result
}

func (c *Client) lookupOnce(ctx context.Context, githubHandle string) membership.LookupResult {
	endpoint := fmt.Sprintf("%s/identities/github-handle/%s", c.baseURL, url.PathEscape(githubHandle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return membership.Malformed(fmt.Errorf("building identity request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return membership.Transient(fmt.Errorf("identity request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return membership.Transient(fmt.Errorf("reading identity response: %w", err))
	}

	return classifyResponse(resp.StatusCode, body)
}

// classifyResponse maps an identity service response to a lookup result.
func classifyResponse(status int, body []byte) membership.LookupResult {
	switch {
	case status == http.StatusOK:
		var record membership.Record
		if err := json.Unmarshal(body, &record); err != nil {
			return membership.Malformed(fmt.Errorf("decoding identity record: %w", err))
		}
		if record.GithubHandle == "" {
			return membership.Malformed(errors.New("identity record has no github-handle"))
		}
		return membership.Found(record)
	case status == http.StatusNotFound, status == http.StatusUnprocessableEntity:
		return membership.Unrecognized()
	case status == http.StatusBadRequest,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusTooManyRequests,
		status >= 500:
		return membership.Transient(fmt.Errorf("identity service returned %d: %s", status, snippet(body)))
	}
	return membership.Malformed(fmt.Errorf("unexpected identity service status %d", status))
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
