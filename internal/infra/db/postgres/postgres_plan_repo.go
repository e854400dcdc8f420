package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PlanRepository = (*planRepo)(nil)

type planRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

const planColumns = `id, code, name, description, plan_type, billing_cycle, cost_cents, discount_cents, monthly_minutes, monthly_usage_limit, is_active, is_default, created_at`

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	const q = `
INSERT INTO plans (id, code, name, description, plan_type, billing_cycle, cost_cents, discount_cents, monthly_minutes, monthly_usage_limit, is_active, is_default, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  code=$2, name=$3, description=$4, plan_type=$5, billing_cycle=$6,
  cost_cents=$7, discount_cents=$8, monthly_minutes=$9, monthly_usage_limit=$10,
  is_active=$11, is_default=$12;`

	ex, err := pick(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, q,
		p.ID, p.Code, p.Name, p.Description, string(p.Type), string(p.BillingCycle),
		p.CostCents, p.DiscountCents, p.MonthlyMinutes, p.MonthlyUsageLimit,
		p.Active, p.Default, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	return r.queryOne(ctx, tx, `SELECT `+planColumns+` FROM plans WHERE id=$1;`, id)
}

func (r *planRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	return r.queryOne(ctx, tx, `SELECT `+planColumns+` FROM plans WHERE code=$1;`, code)
}

func (r *planRepo) FindDefault(ctx context.Context, tx repository.Tx) (*model.Plan, error) {
	return r.queryOne(ctx, tx, `SELECT `+planColumns+` FROM plans WHERE is_default LIMIT 1;`)
}

func (r *planRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return r.queryMany(ctx, tx, `SELECT `+planColumns+` FROM plans ORDER BY cost_cents ASC;`)
}

func (r *planRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return r.queryMany(ctx, tx, `SELECT `+planColumns+` FROM plans WHERE is_active ORDER BY cost_cents ASC;`)
}

func (r *planRepo) ClearDefault(ctx context.Context, tx repository.Tx) error {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, `UPDATE plans SET is_default=false WHERE is_default;`); err != nil {
		return fmt.Errorf("clear default plan: %w", err)
	}
	return nil
}

func (r *planRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := ex.Exec(ctx, `DELETE FROM plans WHERE id=$1;`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *planRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Plan, error) {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(ex.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *planRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Plan, error) {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*model.Plan, error) {
	var p model.Plan
	var planType, billingCycle string
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &planType, &billingCycle,
		&p.CostCents, &p.DiscountCents, &p.MonthlyMinutes, &p.MonthlyUsageLimit,
		&p.Active, &p.Default, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Type = model.PlanType(planType)
	p.BillingCycle = model.BillingCycle(billingCycle)
	return &p, nil
}
