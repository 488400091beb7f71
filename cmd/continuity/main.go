// cmd/continuity/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/api"
	"github.com/FairForge/continuity/internal/auditor"
	"github.com/FairForge/continuity/internal/auth"
	"github.com/FairForge/continuity/internal/config"
	"github.com/FairForge/continuity/internal/executor"
	"github.com/FairForge/continuity/internal/heartbeat"
	"github.com/FairForge/continuity/internal/metrics"
	"github.com/FairForge/continuity/internal/notify"
	"github.com/FairForge/continuity/internal/planner"
	"github.com/FairForge/continuity/internal/simulator"
	"github.com/FairForge/continuity/internal/verifier"
)

func main() {
	configPath := flag.String("config", "continuity.yaml", "path to configuration file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	config.LoadFromEnv(cfg)

	cl := cfg.ToCluster()
	policy := cfg.ToPolicy()
	tlsConf := cfg.ToTLS()

	collector := metrics.NewCollector()

	prober := heartbeat.NewHTTPProber(tlsConf)
	monitor := heartbeat.NewMonitor(cl, prober, cfg.ToHeartbeat(), collector, logger)

	dispatcher := notify.NewDispatcher(
		notify.NewLogNotifier(logger),
		cfg.Notifications.RatePerMinute, cfg.Notifications.Burst, logger)
	notify.SubscribeMonitor(monitor, dispatcher)

	pl := planner.NewPlanner(planner.DefaultDurations(), logger)
	ex := executor.NewExecutor(executor.NewHTTPDriver(tlsConf), collector, logger)

	staleSLA := time.Duration(cfg.Verifier.StalenessSLAS) * time.Second
	vf := verifier.NewVerifier(cfg.ToWeights(), monitor, staleSLA, logger)

	sim := simulator.NewSimulator(&simulator.Config{
		Durations: planner.DefaultDurations(),
		Weights:   cfg.ToWeights(),
		StaleSLA:  staleSLA,
	}, logger)

	aud, cleanup, err := buildAuditor(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build audit trail", zap.Error(err))
	}
	defer cleanup()

	authSvc := auth.NewService([]byte(cfg.Auth.JWTSecret), logger)
	approvals := auth.NewApprovalRegistry(cfg.Auth.RequiredApprovals, cfg.Auth.Approvers)

	handler := api.NewHandler(monitor, pl, ex, vf, sim, aud, approvals, policy, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	handler.RegisterRoutes(r, authSvc)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           collector.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go monitor.Run(ctx)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		_ = metricsServer.Close()
	}()

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("continuity server started",
		zap.Int("port", cfg.Server.Port),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
		zap.String("cluster_id", cl.ID),
		zap.Int("nodes", len(cl.Nodes)),
		zap.String("strategy", string(policy.Strategy)))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildAuditor wires the audit trail: Postgres when a DSN is configured,
// in-memory otherwise, with manifest signing when a secret is present.
func buildAuditor(cfg *config.Config, logger *zap.Logger) (*auditor.Auditor, func(), error) {
	var store auditor.Store
	cleanup := func() {}

	if dsn := cfg.Audit.PostgresDSN; dsn != "" {
		pg, err := auditor.NewPostgresStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		store = pg
		cleanup = func() { _ = pg.Close() }
		logger.Info("audit trail backed by postgres")
	} else {
		store = auditor.NewMemoryStore()
		logger.Warn("audit trail is in-memory, records are lost on restart")
	}

	if cfg.Audit.SigningSecret != "" {
		key, err := auditor.DeriveSigningKey([]byte(cfg.Audit.SigningSecret))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return auditor.NewAuditor(store, key, logger), cleanup, nil
	}
	return auditor.NewAuditor(store, nil, logger), cleanup, nil
}
