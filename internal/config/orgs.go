package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/validation"
)

// Org is one tracked GitHub organization. Credentials are referenced by
// secret name; values are resolved through the secrets provider.
type Org struct {
	Name             string `yaml:"name"`
	AppID            int64  `yaml:"app_id"`
	InstallationID   int64  `yaml:"installation_id"`
	PrivateKeySecret string `yaml:"private_key_secret"`
	TokenSecret      string `yaml:"token_secret"`
}

// UsesApp reports whether the org authenticates as a GitHub App installation.
func (o Org) UsesApp() bool {
	return o.AppID != 0
}

// Validate checks that exactly one authentication method is configured.
func (o Org) Validate() error {
	if err := validation.ValidateOrgName(o.Name); err != nil {
		return fmt.Errorf("org %q: %w", o.Name, err)
	}
	if o.UsesApp() {
		if o.TokenSecret != "" {
			return fmt.Errorf("org %s: app_id and token_secret are mutually exclusive", o.Name)
		}
		if o.InstallationID == 0 || o.PrivateKeySecret == "" {
			return fmt.Errorf("org %s: installation_id and private_key_secret are required with app_id", o.Name)
		}
		return nil
	}
	if o.TokenSecret == "" {
		return fmt.Errorf("org %s: either app_id or token_secret is required", o.Name)
	}
	return nil
}

type orgsFile struct {
	Organizations []Org `yaml:"organizations"`
}

// LoadOrgs reads the tracked organizations from a YAML file:
//
//	organizations:
//	  - name: acme
//	    app_id: 12345
//	    installation_id: 67890
//	    private_key_secret: acme-app-key
//	  - name: acme-labs
//	    token_secret: acme-labs-token
func LoadOrgs(path string) ([]Org, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Configuration(fmt.Errorf("reading orgs file: %w", err))
	}
	var f orgsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.Configuration(fmt.Errorf("parsing orgs file %s: %w", path, err))
	}
	seen := make(map[string]bool, len(f.Organizations))
	for _, o := range f.Organizations {
		if seen[o.Name] {
			return nil, domain.Configuration(fmt.Errorf("orgs file %s: duplicate organization %q", path, o.Name))
		}
		seen[o.Name] = true
	}
	return f.Organizations, nil
}
