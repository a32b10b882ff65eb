package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/resolveq/helpdesk/internal/adapter/agent"
	hdhttp "github.com/resolveq/helpdesk/internal/adapter/http"
	hdnats "github.com/resolveq/helpdesk/internal/adapter/nats"
	"github.com/resolveq/helpdesk/internal/adapter/natskv"
	"github.com/resolveq/helpdesk/internal/adapter/otel"
	"github.com/resolveq/helpdesk/internal/adapter/postgres"
	"github.com/resolveq/helpdesk/internal/adapter/ristretto"
	"github.com/resolveq/helpdesk/internal/adapter/ws"
	"github.com/resolveq/helpdesk/internal/config"
	"github.com/resolveq/helpdesk/internal/logger"
	"github.com/resolveq/helpdesk/internal/middleware"
	"github.com/resolveq/helpdesk/internal/port/notifier"
	"github.com/resolveq/helpdesk/internal/resilience"
	"github.com/resolveq/helpdesk/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	otelShutdown, err := otel.Init(ctx, cfg.Observability, cfg.Logging.Service, log)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := hdnats.Connect(ctx, cfg.NATS.URL, log)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	idempotencyCache, err := natskv.Bucket(ctx, queue.JetStream(), cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}

	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()

	// --- Notifiers ---
	notifiers := buildNotifiers(cfg.Notifiers)
	slog.Info("notifiers registered", "count", len(notifiers), "available", notifier.Available())

	// --- Services ---
	store := postgres.NewStore(pool)
	jobs := postgres.NewJobStore(pool)
	hub := ws.NewHub(log)

	scorer := agent.NewClient(cfg.Agent)
	scorer.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	notify := service.NewNotificationService(notifiers, nil)
	kbSvc := service.NewKnowledgeBaseService(store)
	policy := service.NewDecisionPolicy(cfg.Engine)

	executor := service.NewActionExecutor(store, jobs, notify, kbSvc, cfg.Engine.FollowupDelay)
	executor.SetMetrics(metrics)

	rollback := service.NewRollbackManager(store, jobs)
	rollback.SetMetrics(metrics)
	rollback.SetHub(hub)

	feedback := service.NewFeedbackTracker(store, notify, executor)
	feedback.SetMetrics(metrics)
	feedback.SetHub(hub)
	feedback.SetCache(l1, cfg.Cache.TTL)

	tickets := service.NewTicketService(store, queue, scorer, policy, executor, cfg.Agent)
	tickets.SetMetrics(metrics)
	tickets.SetHub(hub)

	// --- Queue consumers ---
	cancelSubs, err := tickets.SubscribeCreated(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		for _, cancel := range cancelSubs {
			cancel()
		}
	}()

	runner := service.NewFollowupRunner(jobs, feedback, cfg.Scheduler)

	// --- HTTP ---
	handlers := hdhttp.NewHandlers(tickets, rollback, feedback, hub,
		hdhttp.HealthCheck{Name: "postgres", Check: pool.Ping},
		hdhttp.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.Observability.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(hdhttp.Logger)
	r.Use(hdhttp.SecurityHeaders)
	r.Use(hdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Idempotency(idempotencyCache, cfg.Idempotency.TTL, log))

	hdhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := runner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("followup runner: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildNotifiers instantiates the configured notification providers from
// the registry. A provider with no primary setting is skipped.
func buildNotifiers(cfg config.Notifiers) []notifier.Notifier {
	var out []notifier.Notifier

	if cfg.SlackWebhookURL != "" {
		n, err := notifier.New("slack", map[string]string{
			"webhook_url": cfg.SlackWebhookURL,
		})
		if err != nil {
			slog.Error("slack notifier init failed", "error", err)
		} else {
			out = append(out, n)
		}
	}

	if cfg.EmailHost != "" {
		n, err := notifier.New("email", map[string]string{
			"host":     cfg.EmailHost,
			"port":     fmt.Sprintf("%d", cfg.EmailPort),
			"from":     cfg.EmailFrom,
			"password": cfg.EmailPassword,
		})
		if err != nil {
			slog.Error("email notifier init failed", "error", err)
		} else {
			out = append(out, n)
		}
	}

	return out
}
