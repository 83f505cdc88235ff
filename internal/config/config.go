package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/validation"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Tickets  TicketsConfig
	Identity IdentityConfig
	GitHub   GitHubConfig
	Worker   WorkerConfig
	Sweep    SweepConfig
	Alert    AlertConfig
	Secrets  SecretsConfig
	Admin    AdminConfig
	Retry    RetryConfig

	// Orgs is loaded from GitHub.OrgsFile.
	Orgs []Org
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/collabsync.db"`
}

// TicketsConfig selects the team queue and its tag vocabulary.
type TicketsConfig struct {
	QueueID       string `env:"TICKET_QUEUE_ID"`
	GrantedTag    string `env:"TICKET_GRANTED_TAG"`
	RemovedTag    string `env:"TICKET_REMOVED_TAG"`
	PermalinkBase string `env:"TICKET_PERMALINK_BASE"`
	PageSize      int    `env:"TICKET_PAGE_SIZE" envDefault:"40"`
}

// IdentityConfig selects the directory used to classify subjects.
type IdentityConfig struct {
	// Provider is "http" for the identity service or "github" for org membership.
	Provider string `env:"IDENTITY_PROVIDER" envDefault:"github"`
	URL      string `env:"IDENTITY_URL"`
	// TokenSecret names the secret holding the identity service bearer token.
	TokenSecret string `env:"IDENTITY_TOKEN_SECRET"`
}

// GitHubConfig holds GitHub API and webhook configuration.
type GitHubConfig struct {
	OrgsFile          string `env:"ORGS_FILE" envDefault:"orgs.yaml"`
	WebhookSecretName string `env:"GITHUB_WEBHOOK_SECRET_NAME" envDefault:"github-webhook-secret"`
	BaseURL           string `env:"GITHUB_BASE_URL"`
	FileShim          string `env:"GITHUB_FILE_SHIM"` // Path to file for testing shim (disables real API)
}

// WorkerConfig controls queue consumption.
type WorkerConfig struct {
	Concurrency       int           `env:"WORKER_CONCURRENCY" envDefault:"1"`
	PollInterval      time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	VisibilityTimeout time.Duration `env:"WORKER_VISIBILITY_TIMEOUT" envDefault:"60s"`
	MaxReceives       int           `env:"WORKER_MAX_RECEIVES" envDefault:"5"`
}

// SweepConfig controls the daily expiration sweep.
type SweepConfig struct {
	Enabled bool `env:"SWEEP_ENABLED" envDefault:"true"`
	// Schedule is a five-field cron expression evaluated in UTC.
	Schedule string `env:"SWEEP_SCHEDULE" envDefault:"0 16 * * *"`
}

// AlertConfig holds operator alerting configuration.
type AlertConfig struct {
	// SlackWebhookSecret names the secret holding the Slack incoming webhook URL.
	// Alerts are only logged when it is empty.
	SlackWebhookSecret string `env:"ALERT_SLACK_WEBHOOK_SECRET"`
	StackName          string `env:"ALERT_STACK_NAME" envDefault:"collabsync"`
	LogURL             string `env:"ALERT_LOG_URL"`
}

// SecretsConfig selects where secret values are read from.
type SecretsConfig struct {
	Provider      string `env:"SECRETS_PROVIDER" envDefault:"env"`
	VaultAddr     string `env:"VAULT_ADDR"`
	VaultToken    string `env:"VAULT_TOKEN"`
	VaultMount    string `env:"VAULT_MOUNT" envDefault:"kv"`
	VaultRoleID   string `env:"VAULT_ROLE_ID"`
	VaultSecretID string `env:"VAULT_SECRET_ID"`
}

// AdminConfig holds authentication for the admin API.
type AdminConfig struct {
	APIKey             string   `env:"ADMIN_API_KEY"`
	OIDCIssuerURL      string   `env:"OIDC_ISSUER_URL"`
	OIDCClientID       string   `env:"OIDC_CLIENT_ID"`
	OIDCAllowedDomains []string `env:"OIDC_ALLOWED_DOMAINS" envSeparator:","`
}

// OIDCEnabled reports whether ID tokens are accepted on the admin API.
func (c *AdminConfig) OIDCEnabled() bool {
	return c.OIDCIssuerURL != ""
}

// RetryConfig bounds local retries of transient external calls.
type RetryConfig struct {
	Attempts uint          `env:"RETRY_ATTEMPTS" envDefault:"3"`
	Delay    time.Duration `env:"RETRY_DELAY" envDefault:"200ms"`
	MaxDelay time.Duration `env:"RETRY_MAX_DELAY" envDefault:"2s"`
}

// Load loads configuration from environment variables and the orgs file.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []struct {
		name string
		v    any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"tickets", &cfg.Tickets},
		{"identity", &cfg.Identity},
		{"github", &cfg.GitHub},
		{"worker", &cfg.Worker},
		{"sweep", &cfg.Sweep},
		{"alert", &cfg.Alert},
		{"secrets", &cfg.Secrets},
		{"admin", &cfg.Admin},
		{"retry", &cfg.Retry},
	}
	for _, s := range sections {
		if err := env.Parse(s.v); err != nil {
			return nil, domain.Configuration(fmt.Errorf("parsing %s config: %w", s.name, err))
		}
	}

	if cfg.GitHub.OrgsFile != "" {
		orgs, err := LoadOrgs(cfg.GitHub.OrgsFile)
		if err != nil {
			return nil, err
		}
		cfg.Orgs = orgs
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings.
func LoadDatabase() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, domain.Configuration(fmt.Errorf("parsing database config: %w", err))
	}
	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OrgNames returns the tracked organization names.
func (c *Config) OrgNames() []string {
	names := make([]string, 0, len(c.Orgs))
	for _, o := range c.Orgs {
		names = append(names, o.Name)
	}
	return names
}

// UseFileShim returns true if the file shim should be used instead of the real API.
func (c *Config) UseFileShim() bool {
	return c.GitHub.FileShim != ""
}

// Validate checks if the configuration is valid. Every problem is
// reported, each wrapped in domain.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require(c.Tickets.QueueID, "TICKET_QUEUE_ID")
	require(c.Tickets.GrantedTag, "TICKET_GRANTED_TAG")
	require(c.Tickets.RemovedTag, "TICKET_REMOVED_TAG")
	for name, tag := range map[string]string{"TICKET_GRANTED_TAG": c.Tickets.GrantedTag, "TICKET_REMOVED_TAG": c.Tickets.RemovedTag} {
		if tag == "" {
			continue
		}
		if err := validation.ValidateTag(tag); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Tickets.GrantedTag != "" && c.Tickets.GrantedTag == c.Tickets.RemovedTag {
		errs = append(errs, errors.New("TICKET_GRANTED_TAG and TICKET_REMOVED_TAG must differ"))
	}
	if c.Tickets.PageSize <= 0 {
		errs = append(errs, errors.New("TICKET_PAGE_SIZE must be positive"))
	}

	require(c.GitHub.WebhookSecretName, "GITHUB_WEBHOOK_SECRET_NAME")
	if len(c.Orgs) == 0 {
		errs = append(errs, fmt.Errorf("at least one organization is required in %s", c.GitHub.OrgsFile))
	}
	if !c.UseFileShim() {
		for _, o := range c.Orgs {
			if err := o.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	switch c.Identity.Provider {
	case "github":
	case "http":
		require(c.Identity.URL, "IDENTITY_URL")
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_PROVIDER must be http or github, got %q", c.Identity.Provider))
	}

	switch c.Secrets.Provider {
	case "env":
	case "vault":
		require(c.Secrets.VaultAddr, "VAULT_ADDR")
		if c.Secrets.VaultToken == "" && (c.Secrets.VaultRoleID == "" || c.Secrets.VaultSecretID == "") {
			errs = append(errs, errors.New("VAULT_TOKEN or VAULT_ROLE_ID and VAULT_SECRET_ID are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("SECRETS_PROVIDER must be env or vault, got %q", c.Secrets.Provider))
	}

	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if c.Worker.MaxReceives < 1 {
		errs = append(errs, errors.New("WORKER_MAX_RECEIVES must be at least 1"))
	}
	if c.Admin.OIDCIssuerURL != "" && c.Admin.OIDCClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set"))
	}

	if len(errs) == 0 {
		return nil
	}
	return domain.Configuration(errors.Join(errs...))
}
