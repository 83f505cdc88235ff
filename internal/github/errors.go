package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v66/github"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// classify maps a go-github error into the domain error taxonomy. A 404
// becomes domain.ErrNotFound so callers can branch on it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("github %s: %w", op, err)

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return domain.Transient(wrapped)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(wrapped)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch status := respErr.Response.StatusCode; {
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %w", domain.ErrNotFound, wrapped)
		case status == http.StatusUnauthorized, status == http.StatusForbidden:
			return domain.Configuration(wrapped)
		case status == http.StatusTooManyRequests, status >= 500:
			return domain.Transient(wrapped)
		default:
			return domain.DataIntegrity(wrapped)
		}
	}

	// Transport-level failures.
	return domain.Transient(wrapped)
}
