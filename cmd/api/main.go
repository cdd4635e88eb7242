// Package main is the entry point for the ClauseLens API server.
//
// It loads configuration, connects to the database, wires the external
// provider clients and the entitlement engine into the HTTP chassis, and
// serves until interrupted. Graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
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
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"clauselens/internal/api/handlers"
	"clauselens/internal/config"
	"clauselens/internal/core"
	"clauselens/internal/db"
	"clauselens/internal/entitlement"
	"clauselens/internal/external"
)

// shutdownGrace is how long in-flight requests get to finish after a
// termination signal.
const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("clauselens API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Repositories.
	entitlementRepo := db.NewEntitlementRepo(pool)
	orderRepo := db.NewOrderRepo(pool)
	userRepo := db.NewUserRepo(pool)

	// Domain services.
	gate := entitlement.NewService(entitlementRepo, logger)

	// External provider clients, each behind its own circuit breaker.
	httpClient := &http.Client{Timeout: 30 * time.Second}
	identityClient := external.NewIdentityClient(
		external.NewBaseClient(httpClient, "identity", external.DefaultRetryPolicy(), "ClauseLens/1.0"),
		cfg.Identity.BaseURL,
		cfg.Identity.ServiceKey,
	)
	gatewayClient := external.NewGatewayClient(
		external.NewBaseClient(httpClient, "payment-gateway", external.DefaultRetryPolicy(), "ClauseLens/1.0"),
		cfg.Payment.BaseURL,
		cfg.Payment.KeyID,
		cfg.Payment.KeySecret,
	)

	var analyzer handlers.Analyzer
	if cfg.Analysis.APIKey.Unmask() != "" {
		analysisHTTP := &http.Client{Timeout: cfg.Analysis.Timeout}
		analyzer = external.NewAnalysisClient(
			external.NewBaseClient(analysisHTTP, "analysis", external.DefaultRetryPolicy(), "ClauseLens/1.0"),
			cfg.Analysis.BaseURL,
			cfg.Analysis.APIKey,
			cfg.Analysis.Model,
			logger,
		)
	} else {
		logger.Warn("no analysis API key configured, serving deterministic sample analyses")
		analyzer = external.FallbackProvider{}
	}

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = identityClient
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	analyzeHandler := handlers.NewAnalyzeHandler(gate, analyzer, srv.Validator, logger)
	downloadHandler := handlers.NewDownloadHandler(gate, srv.Validator, logger)
	paymentHandler := handlers.NewPaymentHandler(
		gatewayClient, orderRepo, entitlementRepo, gate, userRepo, srv.Validator, logger,
	)
	subscriptionHandler := handlers.NewSubscriptionHandler(gate, userRepo, srv.Validator, logger)

	srv.V1RouteRegistrars = []core.RouteRegistrar{
		func(r chi.Router) { analyzeHandler.RegisterRoutes(r) },
		func(r chi.Router) { downloadHandler.RegisterRoutes(r) },
		func(r chi.Router) { paymentHandler.RegisterRoutes(r) },
		func(r chi.Router) { subscriptionHandler.RegisterRoutes(r) },
	}
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the application-wide structured logger at the configured
// level, JSON-formatted for log aggregation.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// dbProbe reports database connectivity for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
