package main

import (
	"context"
	"flag"
	"log"
	"time"

	"transcription-quota/internal/config"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/infra/db/postgres"
	"transcription-quota/internal/infra/redis"
	"transcription-quota/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

// This script sets up a clean, predictable database state for manual
// end-to-end testing of the quota engine.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean the Redis cache to remove any stale plan entries.
	log.Println("[1/3] Wiping Redis cache...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	// 2. Clean the database completely.
	log.Println("[2/3] Wiping all existing database data...")
	if _, err := pool.Exec(ctx, `TRUNCATE subscriptions, plans RESTART IDENTITY CASCADE;`); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Seed a catalog plus a couple of subscriptions in known states.
	log.Println("[3/3] Seeding catalog and test subscriptions...")
	seedTestData(ctx, pool)

	log.Println("--- E2E Environment Setup Complete ---")
}

func seedTestData(ctx context.Context, pool *pgxpool.Pool) {
	logger := zerolog.Nop()
	txMgr := postgres.NewTxManager(pool)
	planRepo := postgres.NewPlanRepo(pool)
	subRepo := postgres.NewSubscriptionRepo(pool)
	planUC := usecase.NewPlanUseCase(planRepo, txMgr, &logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, planRepo, txMgr, &logger)

	free, err := planUC.Create(ctx, usecase.PlanSpec{
		Code: "FREE", Name: "Free", Type: model.PlanTypeFree,
		BillingCycle: model.BillingCycleMonthly,
		MonthlyMinutes: 30, MonthlyUsageLimit: 10, Default: true,
	})
	if err != nil {
		log.Fatalf("failed to create free plan: %v", err)
	}

	_, err = planUC.Create(ctx, usecase.PlanSpec{
		Code: "BASIC", Name: "Basic", Type: model.PlanTypeBasic,
		BillingCycle: model.BillingCycleMonthly, CostCents: 999,
		MonthlyMinutes: 180, MonthlyUsageLimit: 50,
	})
	if err != nil {
		log.Fatalf("failed to create basic plan: %v", err)
	}

	// A fresh subscriber on the default plan.
	if _, err := subUC.CreateSubscription(ctx, "e2e-user-fresh"); err != nil {
		log.Fatalf("failed to create fresh subscription: %v", err)
	}

	// A subscriber with a nearly exhausted usage allowance.
	nearly, err := subUC.CreateSubscription(ctx, "e2e-user-nearly-exhausted")
	if err != nil {
		log.Fatalf("failed to create subscription: %v", err)
	}
	nearly.UsageCount = free.MonthlyUsageLimit - 1
	nearly.UsedSeconds = (free.MonthlyMinutes - 1) * 60
	nearly.UpdatedAt = time.Now().UTC()
	if err := subRepo.Save(ctx, nil, nearly); err != nil {
		log.Fatalf("failed to age subscription: %v", err)
	}
}
