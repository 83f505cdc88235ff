package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/alert"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/auth"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/config"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/github"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/identity"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/membership"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/retry"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/secrets"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/service"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage/sql"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/tagging"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/worker"
)

// orgClient is implemented by the GitHub API client and the file shim.
type orgClient interface {
	service.CollaboratorSource
	github.MemberChecker
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	secrets secrets.Provider
	store   *sql.Store
	alerts  alert.Notifier
	retry   retry.Policy
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		retry: retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.Retry.Delay,
			MaxDelay: cfg.Retry.MaxDelay,
		},
	}

	provider, err := newSecrets(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets: %w", err)
	}
	a.secrets = provider

	if cfg.Alert.SlackWebhookSecret != "" {
		url, err := provider.Get(ctx, cfg.Alert.SlackWebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to read Slack webhook: %w", err)
		}
		a.alerts = alert.NewSlack(url, cfg.Alert.StackName, cfg.Alert.LogURL)
	} else {
		logger.Warn("no Slack webhook configured, alerts are only logged")
		a.alerts = alert.LogNotifier{}
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN, sql.WithPermalinkBase(cfg.Tickets.PermalinkBase))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store

	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func newSecrets(cfg config.SecretsConfig) (secrets.Provider, error) {
	if cfg.Provider != "vault" {
		return secrets.NewEnv(), nil
	}
	opts := []secrets.VaultOpt{secrets.WithMountPath(cfg.VaultMount)}
	if cfg.VaultRoleID != "" {
		opts = append(opts, secrets.WithAppRole(cfg.VaultRoleID, cfg.VaultSecretID))
	}
	return secrets.NewVault(cfg.VaultAddr, cfg.VaultToken, opts...)
}

// orgClient builds the GitHub client, or the file shim when configured.
func (a *app) orgClient(ctx context.Context) (orgClient, error) {
	if a.cfg.UseFileShim() {
		a.logger.Info("using file shim for GitHub API", "path", a.cfg.GitHub.FileShim)
		return github.NewFileShim(a.cfg.GitHub.FileShim, a.cfg.OrgNames()), nil
	}

	creds := make([]github.OrgCredentials, 0, len(a.cfg.Orgs))
	for _, o := range a.cfg.Orgs {
		cred := github.OrgCredentials{Org: o.Name}
		if o.UsesApp() {
			key, err := secrets.PEM(ctx, a.secrets, o.PrivateKeySecret)
			if err != nil {
				return nil, fmt.Errorf("org %s: %w", o.Name, err)
			}
			cred.AppID = o.AppID
			cred.InstallationID = o.InstallationID
			cred.PrivateKey = key
		} else {
			token, err := a.secrets.Get(ctx, o.TokenSecret)
			if err != nil {
				return nil, fmt.Errorf("org %s: %w", o.Name, err)
			}
			cred.Token = token
		}
		creds = append(creds, cred)
	}

	return github.NewClient(ctx, github.Config{
		Orgs:    creds,
		BaseURL: a.cfg.GitHub.BaseURL,
		Retry:   a.retry,
	})
}

func (a *app) directory(ctx context.Context, orgs orgClient) (membership.Directory, error) {
	if a.cfg.Identity.Provider != "http" {
		return github.NewMembershipDirectory(orgs), nil
	}
	var token string
	if a.cfg.Identity.TokenSecret != "" {
		t, err := a.secrets.Get(ctx, a.cfg.Identity.TokenSecret)
		if err != nil {
			return nil, err
		}
		token = t
	}
	return identity.NewClient(identity.Config{
		BaseURL: a.cfg.Identity.URL,
		Token:   token,
		Retry:   a.retry,
	})
}

func (a *app) engine(ctx context.Context, orgs orgClient) (*service.Engine, error) {
	directory, err := a.directory(ctx, orgs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity directory: %w", err)
	}
	return service.NewEngine(directory, a.store, a.alerts, service.EngineConfig{
		QueueID: a.cfg.Tickets.QueueID,
		Tags: tagging.Vocabulary{
			Granted: a.cfg.Tickets.GrantedTag,
			Removed: a.cfg.Tickets.RemovedTag,
		},
		Retry: a.retry,
	}), nil
}

func (a *app) sweeper(orgs orgClient) *service.Sweeper {
	return service.NewSweeper(a.store, orgs, a.alerts, service.SweepConfig{
		QueueID:    a.cfg.Tickets.QueueID,
		PageSize:   a.cfg.Tickets.PageSize,
		RemovedTag: a.cfg.Tickets.RemovedTag,
		Retry:      a.retry,
	})
}

func (a *app) worker(engine *service.Engine) *worker.Worker {
	return worker.New(a.store, engine, a.alerts, worker.Config{
		Concurrency:       a.cfg.Worker.Concurrency,
		PollInterval:      a.cfg.Worker.PollInterval,
		VisibilityTimeout: a.cfg.Worker.VisibilityTimeout,
		MaxReceives:       a.cfg.Worker.MaxReceives,
	})
}

func (a *app) verifiers(ctx context.Context) ([]auth.TokenVerifier, error) {
	var verifiers []auth.TokenVerifier
	if a.cfg.Admin.APIKey != "" {
		verifiers = append(verifiers, auth.NewAPIKeyVerifier(a.cfg.Admin.APIKey))
	}
	if a.cfg.Admin.OIDCEnabled() {
		v, err := auth.NewOIDCVerifier(ctx, a.cfg.Admin.OIDCIssuerURL, a.cfg.Admin.OIDCClientID, a.cfg.Admin.OIDCAllowedDomains)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	if len(verifiers) == 0 {
		log.FromContext(ctx).Warn("no admin credentials configured, the admin API rejects every request")
	}
	return verifiers, nil
}
