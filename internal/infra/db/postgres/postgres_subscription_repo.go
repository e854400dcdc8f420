package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `id, user_id, plan_id, plan_code_snapshot, plan_name_snapshot, monthly_minutes_snapshot, monthly_usage_limit_snapshot, cycle_start, cycle_end, usage_count, used_seconds, created_at, updated_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, plan_code_snapshot, plan_name_snapshot,
  monthly_minutes_snapshot, monthly_usage_limit_snapshot,
  cycle_start, cycle_end, usage_count, used_seconds, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
ON CONFLICT (id) DO UPDATE SET
  plan_id=$3, plan_code_snapshot=$4, plan_name_snapshot=$5,
  monthly_minutes_snapshot=$6, monthly_usage_limit_snapshot=$7,
  cycle_start=$8, cycle_end=$9, usage_count=$10, used_seconds=$11,
  updated_at=NOW();`

	ex, err := pick(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, q,
		s.ID, s.UserID, s.PlanID, s.Snapshot.PlanCode, s.Snapshot.PlanName,
		s.Snapshot.MonthlyMinutes, s.Snapshot.MonthlyUsageLimit,
		s.CycleStart, s.CycleEnd, s.UsageCount, s.UsedSeconds, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// unique user_id: one ledger per user
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	return r.queryOne(ctx, tx, `SELECT `+subColumns+` FROM subscriptions WHERE user_id=$1;`, userID)
}

func (r *subscriptionRepo) FindByUserForUpdate(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return r.queryOne(ctx, tx, `SELECT `+subColumns+` FROM subscriptions WHERE user_id=$1 FOR UPDATE;`, userID)
}

// IncrementUsage is a single statement: it either applies fully or, when the
// context is cancelled first, not at all.
func (r *subscriptionRepo) IncrementUsage(ctx context.Context, tx repository.Tx, userID string) error {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := ex.Exec(ctx, `UPDATE subscriptions SET usage_count = usage_count + 1, updated_at = NOW() WHERE user_id=$1;`, userID)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TryIncrementUsage only charges while the counter is under the snapshot
// limit; the row's own lock serializes concurrent attempts, so the counter
// can never pass the limit.
func (r *subscriptionRepo) TryIncrementUsage(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return false, err
	}
	const q = `
UPDATE subscriptions
   SET usage_count = usage_count + 1, updated_at = NOW()
 WHERE user_id=$1 AND usage_count < monthly_usage_limit_snapshot;`
	ct, err := ex.Exec(ctx, q, userID)
	if err != nil {
		return false, fmt.Errorf("conditional increment usage: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}
	// Distinguish "limit reached" from "no ledger".
	var one int
	if err := ex.QueryRow(ctx, `SELECT 1 FROM subscriptions WHERE user_id=$1;`, userID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, domain.ErrReadDatabaseRow
	}
	return false, nil
}

func (r *subscriptionRepo) AddUsedSeconds(ctx context.Context, tx repository.Tx, userID string, seconds int) error {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return err
	}
	ct, err := ex.Exec(ctx, `UPDATE subscriptions SET used_seconds = used_seconds + $2, updated_at = NOW() WHERE user_id=$1;`, userID, seconds)
	if err != nil {
		return fmt.Errorf("add used seconds: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) ListDueForReset(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	return r.queryMany(ctx, tx, `SELECT `+subColumns+` FROM subscriptions WHERE cycle_end <= $1 ORDER BY cycle_end ASC;`, now)
}

func (r *subscriptionRepo) ListOrphaned(ctx context.Context, tx repository.Tx) ([]*model.Subscription, error) {
	const q = `
SELECT s.id, s.user_id, s.plan_id, s.plan_code_snapshot, s.plan_name_snapshot,
       s.monthly_minutes_snapshot, s.monthly_usage_limit_snapshot,
       s.cycle_start, s.cycle_end, s.usage_count, s.used_seconds, s.created_at, s.updated_at
  FROM subscriptions s
  LEFT JOIN plans p ON p.id = s.plan_id
 WHERE s.plan_id IS NULL OR p.id IS NULL OR p.is_active = false
 ORDER BY s.created_at ASC;`
	return r.queryMany(ctx, tx, q)
}

func (r *subscriptionRepo) ListByPlan(ctx context.Context, tx repository.Tx, planID string) ([]*model.Subscription, error) {
	return r.queryMany(ctx, tx, `SELECT `+subColumns+` FROM subscriptions WHERE plan_id=$1 ORDER BY created_at ASC;`, planID)
}

func (r *subscriptionRepo) CountByPlanCode(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `SELECT plan_code_snapshot, COUNT(*) FROM subscriptions GROUP BY plan_code_snapshot;`)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	m := make(map[string]int)
	for rows.Next() {
		var code string
		var c int
		if err := rows.Scan(&code, &c); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		m[code] = c
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return m, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return nil, err
	}
	s, err := scanSub(ex.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	ex, err := pick(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSub(row rowScanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID,
		&s.Snapshot.PlanCode, &s.Snapshot.PlanName,
		&s.Snapshot.MonthlyMinutes, &s.Snapshot.MonthlyUsageLimit,
		&s.CycleStart, &s.CycleEnd, &s.UsageCount, &s.UsedSeconds,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}
