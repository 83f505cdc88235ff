// Command collabsync keeps outside collaborator access in the tracked
// GitHub organizations in step with lifecycle tickets.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/api"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/config"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage/sql"
)

func main() {
	cmd := &cli.Command{
		Name:  "collabsync",
		Usage: "track GitHub outside collaborators in lifecycle tickets and remove expired access",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "minimum log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the webhook receiver, admin API, queue workers and scheduled sweep",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-worker",
						Usage: "do not consume the event queue in this process",
					},
				},
				Action: serve,
			},
			{
				Name:   "worker",
				Usage:  "consume the event queue",
				Action: runWorker,
			},
			{
				Name:   "sweep",
				Usage:  "run one expiration sweep and print the report",
				Action: sweep,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "collabsync:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the shared components.
func setup(ctx context.Context, cmd *cli.Command, name string) (context.Context, *app, error) {
	logger, err := log.NewWithLevel(name, cmd.String("log-level"))
	if err != nil {
		return ctx, nil, fmt.Errorf("invalid log level: %w", err)
	}
	ctx = log.IntoContext(ctx, logger)

	cfg, err := loadConfig()
	if err != nil {
		return ctx, nil, err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, a, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, a, err := setup(ctx, cmd, "collabsync")
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	orgs, err := a.orgClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub client: %w", err)
	}
	engine, err := a.engine(ctx, orgs)
	if err != nil {
		return err
	}
	sweeper := a.sweeper(orgs)

	webhookSecret, err := a.secrets.Get(ctx, cfg.GitHub.WebhookSecretName)
	if err != nil {
		return fmt.Errorf("failed to read webhook secret: %w", err)
	}
	verifiers, err := a.verifiers(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize admin authentication: %w", err)
	}

	router := api.NewRouter(api.Dependencies{
		Store:         a.store,
		Sweeper:       sweeper,
		QueueID:       cfg.Tickets.QueueID,
		WebhookSecret: []byte(webhookSecret),
		Verifiers:     verifiers,
		Logger:        log.SubLogger(a.logger, "http"),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting collabsync", "addr", cfg.Server.Addr(), "orgs", orgs.Orgs())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if !cmd.Bool("no-worker") {
		w := a.worker(engine)
		g.Go(func() error {
			return w.Run(log.IntoContext(gctx, log.SubLogger(a.logger, "worker")))
		})
	}

	if cfg.Sweep.Enabled {
		scheduler := cron.New(cron.WithLocation(time.UTC))
		sweepCtx := log.IntoContext(gctx, log.SubLogger(a.logger, "sweep"))
		_, err := scheduler.AddFunc(cfg.Sweep.Schedule, func() {
			report, err := sweeper.Run(sweepCtx)
			if err != nil {
				log.FromContext(sweepCtx).Error("scheduled sweep failed", "err", err)
				return
			}
			log.FromContext(sweepCtx).Info("scheduled sweep finished",
				"tickets", report.TicketsScanned,
				"removals", len(report.Removals),
				"notices", len(report.Notices),
			)
		})
		if err != nil {
			return fmt.Errorf("invalid SWEEP_SCHEDULE %q: %w", cfg.Sweep.Schedule, err)
		}
		scheduler.Start()
		a.logger.Info("sweep scheduled", "schedule", cfg.Sweep.Schedule, "timezone", "UTC")

		g.Go(func() error {
			<-gctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	err = g.Wait()
	a.logger.Info("server stopped")
	return err
}

func runWorker(ctx context.Context, cmd *cli.Command) error {
	ctx, a, err := setup(ctx, cmd, "worker")
	if err != nil {
		return err
	}
	defer a.Close()

	orgs, err := a.orgClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub client: %w", err)
	}
	engine, err := a.engine(ctx, orgs)
	if err != nil {
		return err
	}

	return a.worker(engine).Run(ctx)
}

func sweep(ctx context.Context, cmd *cli.Command) error {
	ctx, a, err := setup(ctx, cmd, "sweep")
	if err != nil {
		return err
	}
	defer a.Close()

	orgs, err := a.orgClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub client: %w", err)
	}

	report, runErr := a.sweeper(orgs).Run(ctx)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("sweep finished with failures: %v", runErr), 1)
	}
	return nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	logger, err := log.NewWithLevel("migrate", cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := sql.New(cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("database is up to date", "driver", cfg.Driver)
	return store.Close()
}
