// Package secrets resolves credentials by name at startup. A secret that
// cannot be found is a configuration error.
package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// Provider returns the value stored under a secret name.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// Env reads secrets from environment variables named after the secret.
type Env struct {
	lookup func(string) (string, bool)
}

var _ Provider = (*Env)(nil)

// NewEnv creates a provider backed by the process environment.
func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

// NewEnvFromMap creates a provider backed by a fixed map.
func NewEnvFromMap(values map[string]string) *Env {
	return &Env{lookup: func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}}
}

func (e *Env) Get(ctx context.Context, name string) (string, error) {
	v, ok := e.lookup(name)
	if !ok || v == "" {
		return "", domain.Configuration(fmt.Errorf("secret %q is not set", name))
	}
	return v, nil
}

// PEM returns a private key stored either as PEM text or as base64 of PEM.
func PEM(ctx context.Context, p Provider, name string) ([]byte, error) {
	v, err := p.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "-----BEGIN") {
		return []byte(v), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, domain.Configuration(fmt.Errorf("secret %q is neither PEM nor base64: %w", name, err))
	}
	return decoded, nil
}
