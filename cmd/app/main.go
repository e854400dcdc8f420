// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transcription-quota/internal/config"
	pg "transcription-quota/internal/infra/db/postgres"
	"transcription-quota/internal/infra/logging"
	"transcription-quota/internal/infra/metrics"
	red "transcription-quota/internal/infra/redis"
	"transcription-quota/internal/infra/sched"
	"transcription-quota/internal/infra/web"
	"transcription-quota/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging, relaxed auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	txMgr := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL)
	subRepo := pg.NewSubscriptionRepo(pool)

	// ---- Use cases ----
	planUC := usecase.NewPlanUseCase(planRepo, txMgr, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, planRepo, txMgr, logger)
	recorder := usecase.NewUsageRecorder(subRepo, planRepo, txMgr, logger)

	mode, err := usecase.ParseEnforcementMode(cfg.Quota.Enforcement)
	if err != nil {
		logger.Fatal().Err(err).Msg("quota enforcement mode")
	}
	enforcer := usecase.NewQuotaEnforcer(mode, subRepo, recorder, logger)
	logger.Info().Str("mode", string(mode)).Msg("quota enforcement configured")

	// ---- Metrics ----
	metrics.MustRegister()
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info().Str("addr", metricsSrv.Addr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.Password, !cfg.Runtime.Dev, cfg.Admin.SessionTTL)
	srv := web.NewServer(planUC, subUC, recorder, enforcer, auth, rateLimiter, cfg.Admin.RateLimit, logger)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", apiSrv.Addr).Msg("api listening")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	// ---- Background jobs ----
	resetWorker := sched.NewCycleResetWorker(cfg.Jobs.CycleResetInterval, recorder, logger)
	go func() { _ = resetWorker.Run(ctx) }()

	consistencyWorker := sched.NewConsistencyWorker(cfg.Jobs.ConsistencyInterval, subUC, logger)
	go func() { _ = consistencyWorker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
