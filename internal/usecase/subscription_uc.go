package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
	"transcription-quota/internal/infra/metrics"
)

// SubscriptionUseCase coordinates ledger lifecycle: initial creation at
// registration, plan changes, bulk migrations and the catalog consistency
// sweep. It never touches usage counters outside an explicit reset.
type SubscriptionUseCase struct {
	subs  repository.SubscriptionRepository
	plans repository.PlanRepository
	tx    repository.TransactionManager
	now   func() time.Time
	log   *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, plans repository.PlanRepository, tx repository.TransactionManager, logger *zerolog.Logger) *SubscriptionUseCase {
	l := logger.With().Str("component", "SubscriptionUseCase").Logger()
	return &SubscriptionUseCase{subs: subs, plans: plans, tx: tx, now: func() time.Time { return time.Now().UTC() }, log: &l}
}

// CreateSubscription opens the single ledger a user owns, on the catalog's
// default plan with a fresh MONTHLY window and zeroed counters. A second
// call for the same user fails; the unique user_id constraint backs this up
// under races.
func (uc *SubscriptionUseCase) CreateSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var sub *model.Subscription
	err := uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := uc.subs.FindByUser(ctx, tx, userID); err == nil {
			return domain.ErrAlreadyExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		plan, err := uc.plans.FindDefault(ctx, tx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoDefaultPlan
			}
			return err
		}
		sub, err = model.NewSubscription(userID, plan, uc.now())
		if err != nil {
			return err
		}
		return uc.subs.Save(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("user_id", userID).Str("plan_code", sub.Snapshot.PlanCode).Msg("subscription created")
	return sub, nil
}

// ChangePlan re-snapshots the user's ledger onto the target plan. With
// resetUsage both counters are zeroed and a fresh MONTHLY window opens now,
// regardless of the new plan's own billing cycle; without it the counters
// and cycle dates are preserved exactly, with no proration.
func (uc *SubscriptionUseCase) ChangePlan(ctx context.Context, userID, planCode string, resetUsage bool) (*model.Subscription, error) {
	plan, err := uc.resolveTarget(ctx, planCode)
	if err != nil {
		return nil, err
	}
	var sub *model.Subscription
	err = uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err = uc.subs.FindByUserForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoSubscription
			}
			return err
		}
		sub.ApplyPlanSnapshot(plan)
		if resetUsage {
			sub.ResetCounters()
			sub.CycleStart, sub.CycleEnd = model.CalculateCycle(model.BillingCycleMonthly, uc.now())
		}
		return uc.subs.Save(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("user_id", userID).Str("plan_code", plan.Code).Bool("reset_usage", resetUsage).Msg("plan changed")
	return sub, nil
}

// GetSubscription returns the user's ledger.
func (uc *SubscriptionUseCase) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := uc.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoSubscription
		}
		return nil, err
	}
	return sub, nil
}

// Usage returns the derived usage projection for the user.
func (uc *SubscriptionUseCase) Usage(ctx context.Context, userID string) (model.UsageView, error) {
	sub, err := uc.GetSubscription(ctx, userID)
	if err != nil {
		return model.UsageView{}, err
	}
	return sub.Usage(), nil
}

// MigrateFromPlan re-snapshots every ledger on plan fromID onto the target
// plan code. Counters and cycles are preserved; this is the same snapshot
// primitive as ChangePlan applied to a filtered set.
func (uc *SubscriptionUseCase) MigrateFromPlan(ctx context.Context, fromID, toCode string) (int, error) {
	target, err := uc.resolveTarget(ctx, toCode)
	if err != nil {
		return 0, err
	}
	subs, err := uc.subs.ListByPlan(ctx, repository.NoTX, fromID)
	if err != nil {
		return 0, err
	}
	migrated := 0
	for _, s := range subs {
		if err := uc.resnapshot(ctx, s.UserID, target); err != nil {
			return migrated, err
		}
		migrated++
	}
	if migrated > 0 {
		metrics.AddSubscriptionsMigrated(migrated)
		uc.log.Info().Int("count", migrated).Str("from_plan", fromID).Str("to_plan", target.Code).Msg("bulk migration complete")
	}
	return migrated, nil
}

// MigrateOrphans moves every ledger whose plan reference is gone or inactive
// onto the default plan. Running it again right after a successful run
// migrates nothing: migrated ledgers now reference the default plan, which
// is always resolvable.
func (uc *SubscriptionUseCase) MigrateOrphans(ctx context.Context) (int, error) {
	def, err := uc.plans.FindDefault(ctx, repository.NoTX)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrNoDefaultPlan
		}
		return 0, err
	}
	orphans, err := uc.subs.ListOrphaned(ctx, repository.NoTX)
	if err != nil {
		return 0, err
	}
	migrated := 0
	for _, s := range orphans {
		if err := uc.resnapshot(ctx, s.UserID, def); err != nil {
			uc.log.Error().Err(err).Str("user_id", s.UserID).Msg("orphan migration failed")
			continue
		}
		migrated++
	}
	if migrated > 0 {
		metrics.AddSubscriptionsMigrated(migrated)
		uc.log.Info().Int("count", migrated).Str("default_plan", def.Code).Msg("orphaned ledgers migrated to default plan")
	}
	return migrated, nil
}

// CountByPlanCode reports how many ledgers sit on each snapshot plan code.
func (uc *SubscriptionUseCase) CountByPlanCode(ctx context.Context) (map[string]int, error) {
	return uc.subs.CountByPlanCode(ctx, repository.NoTX)
}

func (uc *SubscriptionUseCase) resolveTarget(ctx context.Context, code string) (*model.Plan, error) {
	plan, err := uc.plans.FindByCode(ctx, repository.NoTX, model.NormalizePlanCode(code))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownPlan
		}
		return nil, err
	}
	if !plan.Resolvable() {
		return nil, domain.ErrUnknownPlan
	}
	return plan, nil
}

// resnapshot rewrites one ledger's snapshot under its row lock.
func (uc *SubscriptionUseCase) resnapshot(ctx context.Context, userID string, plan *model.Plan) error {
	return uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := uc.subs.FindByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		sub.ApplyPlanSnapshot(plan)
		return uc.subs.Save(ctx, tx, sub)
	})
}
