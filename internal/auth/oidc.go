// Package auth verifies bearer credentials presented to the admin API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ErrInvalidToken means a verifier did not accept the presented token.
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated caller.
type Principal struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	// Method is "oidc" or "api_key".
	Method string `json:"method"`
}

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

// OIDCClaims represents the claims from an ID token.
type OIDCClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// OIDCVerifier accepts ID tokens issued for the admin API's client ID.
type OIDCVerifier struct {
	verifier       *oidc.IDTokenVerifier
	allowedDomains []string
}

var _ TokenVerifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier creates a verifier with issuer discovery.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string, allowedDomains []string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier:       provider.Verifier(&oidc.Config{ClientID: clientID}),
		allowedDomains: allowedDomains,
	}, nil
}

// NewOIDCVerifierWithKeySet creates a verifier for a known issuer and key
// set without discovery.
func NewOIDCVerifierWithKeySet(issuerURL, clientID string, keySet oidc.KeySet, allowedDomains []string) *OIDCVerifier {
	return &OIDCVerifier{
		verifier:       oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}),
		allowedDomains: allowedDomains,
	}
}

// Verify validates the ID token signature, audience and expiry, then the claims.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %w", ErrInvalidToken, err)
	}
	if err := ValidateClaims(&claims, v.allowedDomains); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return &Principal{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Method:  "oidc",
	}, nil
}

// ValidateClaims checks if the claims meet requirements (e.g., domain restriction).
func ValidateClaims(claims *OIDCClaims, allowedDomains []string) error {
	if claims.Email == "" {
		return fmt.Errorf("email claim is required")
	}
	if !claims.EmailVerified {
		return fmt.Errorf("email %s is not verified", claims.Email)
	}

	// Check domain restriction if configured
	if len(allowedDomains) > 0 {
		emailParts := strings.Split(claims.Email, "@")
		if len(emailParts) != 2 {
			return fmt.Errorf("invalid email format")
		}
		domain := strings.ToLower(emailParts[1])

		allowed := false
		for _, d := range allowedDomains {
			if strings.ToLower(d) == domain {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("email domain %s is not allowed", domain)
		}
	}

	return nil
}

// APIKeyVerifier accepts one static key.
type APIKeyVerifier struct {
	key string
}

var _ TokenVerifier = (*APIKeyVerifier)(nil)

// NewAPIKeyVerifier creates a verifier for key.
func NewAPIKeyVerifier(key string) *APIKeyVerifier {
	return &APIKeyVerifier{key: key}
}

func (v *APIKeyVerifier) Verify(_ context.Context, rawToken string) (*Principal, error) {
	if v.key == "" || subtle.ConstantTimeCompare([]byte(rawToken), []byte(v.key)) != 1 {
		return nil, ErrInvalidToken
	}
	return &Principal{Subject: "admin-api-key", Method: "api_key"}, nil
}
