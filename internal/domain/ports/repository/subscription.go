package repository

import (
	"context"
	"time"

	"transcription-quota/internal/domain/model"
)

// SubscriptionRepository is the port for the per-user usage ledger.
//
// The counter mutations (IncrementUsage, TryIncrementUsage, AddUsedSeconds)
// are single all-or-nothing statements: a cancelled call never leaves a
// partial increment. Serialization is per user row; implementations must
// guarantee lost-update freedom on the two counters.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// FindByUserForUpdate locks the ledger row for the rest of the enclosing
	// transaction. Only valid with a non-nil tx.
	FindByUserForUpdate(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)

	// IncrementUsage adds one to usage_count unconditionally.
	IncrementUsage(ctx context.Context, tx Tx, userID string) error
	// TryIncrementUsage adds one to usage_count only while it is below the
	// snapshot limit. Returns false (and no mutation) when the limit is
	// already reached.
	TryIncrementUsage(ctx context.Context, tx Tx, userID string) (bool, error)
	// AddUsedSeconds adds seconds to used_seconds.
	AddUsedSeconds(ctx context.Context, tx Tx, userID string, seconds int) error

	// ListDueForReset returns ledgers whose cycle window has closed.
	ListDueForReset(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error)
	// ListOrphaned returns ledgers whose plan reference is gone or points at
	// an inactive plan.
	ListOrphaned(ctx context.Context, tx Tx) ([]*model.Subscription, error)
	// ListByPlan returns ledgers currently referencing the given plan.
	ListByPlan(ctx context.Context, tx Tx, planID string) ([]*model.Subscription, error)
	// CountByPlanCode groups ledgers by snapshot plan code.
	CountByPlanCode(ctx context.Context, tx Tx) (map[string]int, error)
}
