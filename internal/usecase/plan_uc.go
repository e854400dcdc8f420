package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
)

// PlanSpec carries the fields an operator supplies when creating a plan.
type PlanSpec struct {
	Code              string
	Name              string
	Description       string
	Type              model.PlanType
	BillingCycle      model.BillingCycle
	CostCents         int64
	DiscountCents     int64
	MonthlyMinutes    int
	MonthlyUsageLimit int
	Default           bool
}

// PlanUseCase is the plan catalog: CRUD plus the default/active invariants.
//
// Deactivation never deletes data; ledgers keep running off their stale
// snapshot until reset or migration, which is what decouples live billing
// from catalog edits.
type PlanUseCase struct {
	plans repository.PlanRepository
	tx    repository.TransactionManager
	log   *zerolog.Logger
}

func NewPlanUseCase(plans repository.PlanRepository, tx repository.TransactionManager, logger *zerolog.Logger) *PlanUseCase {
	l := logger.With().Str("component", "PlanUseCase").Logger()
	return &PlanUseCase{plans: plans, tx: tx, log: &l}
}

// Create validates and stores a new plan. Duplicate codes are rejected. When
// the spec asks for a default plan, every other default flag is cleared in
// the same transaction so the exactly-one-default invariant holds at commit.
func (uc *PlanUseCase) Create(ctx context.Context, spec PlanSpec) (*model.Plan, error) {
	plan, err := model.NewPlan(spec.Code, spec.Name, spec.Description, spec.Type, spec.BillingCycle,
		spec.CostCents, spec.DiscountCents, spec.MonthlyMinutes, spec.MonthlyUsageLimit)
	if err != nil {
		return nil, err
	}
	plan.Default = spec.Default

	err = uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if existing, err := uc.plans.FindByCode(ctx, tx, plan.Code); err == nil && !existing.IsZero() {
			return domain.ErrAlreadyExists
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if plan.Default {
			if err := uc.plans.ClearDefault(ctx, tx); err != nil {
				return err
			}
		}
		return uc.plans.Save(ctx, tx, plan)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("plan_id", plan.ID).Str("code", plan.Code).Bool("default", plan.Default).Msg("plan created")
	return plan, nil
}

// Update rewrites a plan's mutable fields. Undefaulting or deactivating the
// current default plan is refused.
func (uc *PlanUseCase) Update(ctx context.Context, plan *model.Plan) error {
	if plan.IsZero() {
		return domain.ErrInvalidArgument
	}
	return uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		current, err := uc.plans.FindByID(ctx, tx, plan.ID)
		if err != nil {
			return err
		}
		if current.Default && (!plan.Default || !plan.Active) {
			return domain.ErrInvariantViolation
		}
		if plan.Default && !current.Default {
			if err := uc.plans.ClearDefault(ctx, tx); err != nil {
				return err
			}
		}
		return uc.plans.Save(ctx, tx, plan)
	})
}

// Deactivate soft-disables a plan. The default plan can never be
// deactivated; that would strand new registrations.
func (uc *PlanUseCase) Deactivate(ctx context.Context, planID string) error {
	return uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		plan, err := uc.plans.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan.Default {
			return domain.ErrInvariantViolation
		}
		plan.Active = false
		return uc.plans.Save(ctx, tx, plan)
	})
}

// SetDefault atomically moves the default flag onto the given plan.
func (uc *PlanUseCase) SetDefault(ctx context.Context, planID string) error {
	return uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		plan, err := uc.plans.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if err := uc.plans.ClearDefault(ctx, tx); err != nil {
			return err
		}
		plan.Default = true
		return uc.plans.Save(ctx, tx, plan)
	})
}

// Delete hard-removes a plan. Ledger rows referencing it keep their snapshot
// and fall back to a nil plan reference. Deleting the default plan is
// refused.
func (uc *PlanUseCase) Delete(ctx context.Context, planID string) error {
	return uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		plan, err := uc.plans.FindByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan.Default {
			return domain.ErrInvariantViolation
		}
		return uc.plans.Delete(ctx, tx, planID)
	})
}

// GetByCode resolves a plan by its case-normalized code. Inactive plans are
// hidden unless they are the default, which must always stay resolvable.
func (uc *PlanUseCase) GetByCode(ctx context.Context, code string) (*model.Plan, error) {
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

// GetByID returns a plan regardless of its active flag. Admin surface only.
func (uc *PlanUseCase) GetByID(ctx context.Context, planID string) (*model.Plan, error) {
	return uc.plans.FindByID(ctx, repository.NoTX, planID)
}

// GetDefault returns the catalog's default plan. Its absence is a deployment
// defect, not a user error.
func (uc *PlanUseCase) GetDefault(ctx context.Context) (*model.Plan, error) {
	plan, err := uc.plans.FindDefault(ctx, repository.NoTX)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoDefaultPlan
		}
		return nil, err
	}
	return plan, nil
}

// ListActive returns subscribable plans ordered by cost ascending.
func (uc *PlanUseCase) ListActive(ctx context.Context) ([]*model.Plan, error) {
	return uc.plans.ListActive(ctx, repository.NoTX)
}

// List returns every plan, active or not, for the admin surface.
func (uc *PlanUseCase) List(ctx context.Context) ([]*model.Plan, error) {
	return uc.plans.ListAll(ctx, repository.NoTX)
}
