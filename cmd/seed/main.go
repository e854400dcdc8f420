// File: cmd/seed/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"transcription-quota/internal/config"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/infra/db/postgres"
	"transcription-quota/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "path to schema file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("schema applied")

	if err := seedPlans(ctx, pool); err != nil {
		log.Fatalf("seed plans: %v", err)
	}
}

// seedPlans installs the standard catalog. Existing codes are left alone so
// the command stays safe to re-run.
func seedPlans(ctx context.Context, pool *pgxpool.Pool) error {
	logger := zerolog.Nop()
	planUC := usecase.NewPlanUseCase(postgres.NewPlanRepo(pool), postgres.NewTxManager(pool), &logger)

	seed := []usecase.PlanSpec{
		{
			Code: "FREE", Name: "Free", Description: "Starter tier for trying out transcription",
			Type: model.PlanTypeFree, BillingCycle: model.BillingCycleMonthly,
			MonthlyMinutes: 30, MonthlyUsageLimit: 10, Default: true,
		},
		{
			Code: "BASIC", Name: "Basic", Description: "For occasional transcription work",
			Type: model.PlanTypeBasic, BillingCycle: model.BillingCycleMonthly,
			CostCents: 999, MonthlyMinutes: 180, MonthlyUsageLimit: 50,
		},
		{
			Code: "PREMIUM", Name: "Premium", Description: "For regular transcription work",
			Type: model.PlanTypePremium, BillingCycle: model.BillingCycleMonthly,
			CostCents: 2999, MonthlyMinutes: 600, MonthlyUsageLimit: 200,
		},
		{
			Code: "ENTERPRISE", Name: "Enterprise", Description: "High-volume transcription",
			Type: model.PlanTypeEnterprise, BillingCycle: model.BillingCycleLifetime,
			CostCents: 9999, MonthlyMinutes: 3000, MonthlyUsageLimit: 1000,
		},
	}

	for _, spec := range seed {
		if existing, err := planUC.GetByCode(ctx, spec.Code); err == nil && !existing.IsZero() {
			fmt.Printf("plan %s already present, skipping\n", spec.Code)
			continue
		}
		p, err := planUC.Create(ctx, spec)
		if err != nil {
			return fmt.Errorf("create plan %q: %w", spec.Code, err)
		}
		fmt.Printf("seeded: %s (id=%s, minutes=%d, uses=%d, default=%v)\n",
			p.Code, p.ID, p.MonthlyMinutes, p.MonthlyUsageLimit, p.Default)
	}

	fmt.Println("seeding complete")
	return nil
}
