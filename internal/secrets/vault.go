package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// defaultField is read when a secret name does not pick a field.
const defaultField = "value"

// Vault reads secrets from a KV v2 mount. A secret name is a path inside
// the mount, optionally followed by "#field".
type Vault struct {
	client    *vault.Client
	mountPath string
}

var _ Provider = (*Vault)(nil)

// VaultOpt configures a Vault provider.
type VaultOpt func(*Vault)

// WithMountPath sets the KV v2 mount. The default is "secret".
func WithMountPath(mountPath string) VaultOpt {
	return func(v *Vault) {
		v.mountPath = mountPath
	}
}

// WithAppRole logs in with AppRole credentials instead of a static token.
func WithAppRole(roleID, secretID string) VaultOpt {
	return func(v *Vault) {
		v.client.ClearToken()
		resp, err := v.client.Logical().Write("auth/approle/login", map[string]any{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err == nil && resp != nil && resp.Auth != nil {
			v.client.SetToken(resp.Auth.ClientToken)
		}
	}
}

// NewVault creates a Vault provider for address authenticated with token.
func NewVault(address, token string, opts ...VaultOpt) (*Vault, error) {
	if address == "" {
		return nil, domain.Configuration(errors.New("vault address cannot be empty"))
	}

	config := vault.DefaultConfig()
	config.Address = address

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, domain.Configuration(fmt.Errorf("creating vault client: %w", err))
	}
	if token != "" {
		client.SetToken(token)
	}

	v := &Vault{client: client, mountPath: "secret"}
	for _, opt := range opts {
		opt(v)
	}
	if v.client.Token() == "" {
		return nil, domain.Configuration(errors.New("vault: no token and AppRole login failed"))
	}
	return v, nil
}

func (v *Vault) Get(ctx context.Context, name string) (string, error) {
	path, field, ok := strings.Cut(name, "#")
	if !ok {
		field = defaultField
	}

	secret, err := v.client.KVv2(v.mountPath).Get(ctx, path)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return "", domain.Configuration(fmt.Errorf("secret %q not found in %s", path, v.mountPath))
	}
	if err != nil {
		var respErr *vault.ResponseError
		if errors.As(err, &respErr) && (respErr.StatusCode == 401 || respErr.StatusCode == 403) {
			return "", domain.Configuration(fmt.Errorf("reading secret %q: %w", path, err))
		}
		return "", domain.Transient(fmt.Errorf("reading secret %q: %w", path, err))
	}

	raw, ok := secret.Data[field]
	if !ok {
		return "", domain.Configuration(fmt.Errorf("secret %q has no field %q", path, field))
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", domain.Configuration(fmt.Errorf("secret %q field %q is not a non-empty string", path, field))
	}
	return value, nil
}
