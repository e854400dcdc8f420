//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/ports/repository"
)

func newSubUC(plans *memPlanRepo, subs *memSubRepo) *SubscriptionUseCase {
	uc := NewSubscriptionUseCase(subs, plans, &mockTxManager{}, newLogger())
	uc.now = func() time.Time { return time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC) }
	return uc
}

func TestSubscriptionUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a ledger on the default plan", func(t *testing.T) {
		plans := newMemPlanRepo()
		subs := newMemSubRepo(plans)
		seedPlan(t, plans, "FREE", 30, 10, true)
		uc := newSubUC(plans, subs)

		sub, err := uc.CreateSubscription(ctx, "user-1")
		if err != nil {
			t.Fatalf("CreateSubscription failed: %v", err)
		}
		if sub.Snapshot.PlanCode != "FREE" {
			t.Errorf("wrong snapshot: %+v", sub.Snapshot)
		}
		if !sub.CycleStart.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)) ||
			!sub.CycleEnd.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("wrong window: [%v, %v)", sub.CycleStart, sub.CycleEnd)
		}
	})

	t.Run("second ledger for the same user is refused", func(t *testing.T) {
		plans := newMemPlanRepo()
		subs := newMemSubRepo(plans)
		seedPlan(t, plans, "FREE", 30, 10, true)
		uc := newSubUC(plans, subs)

		if _, err := uc.CreateSubscription(ctx, "user-1"); err != nil {
			t.Fatalf("CreateSubscription failed: %v", err)
		}
		if _, err := uc.CreateSubscription(ctx, "user-1"); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("want ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("missing default plan is a configuration error", func(t *testing.T) {
		plans := newMemPlanRepo()
		subs := newMemSubRepo(plans)
		seedPlan(t, plans, "FREE", 30, 10, false) // present but not default
		uc := newSubUC(plans, subs)

		if _, err := uc.CreateSubscription(ctx, "user-1"); !errors.Is(err, domain.ErrNoDefaultPlan) {
			t.Fatalf("want ErrNoDefaultPlan, got %v", err)
		}
	})
}

func TestSubscriptionUseCase_ChangePlan(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*SubscriptionUseCase, *memPlanRepo, *memSubRepo) {
		plans := newMemPlanRepo()
		subs := newMemSubRepo(plans)
		seedPlan(t, plans, "FREE", 30, 10, true)
		seedPlan(t, plans, "PREMIUM", 600, 200, false)
		uc := newSubUC(plans, subs)
		if _, err := uc.CreateSubscription(ctx, "user-1"); err != nil {
			t.Fatalf("CreateSubscription failed: %v", err)
		}
		// Burn some usage so preservation is observable.
		_ = subs.IncrementUsage(ctx, repository.NoTX, "user-1")
		_ = subs.AddUsedSeconds(ctx, repository.NoTX, "user-1", 300)
		return uc, plans, subs
	}

	t.Run("without reset the counters and window survive", func(t *testing.T) {
		uc, _, _ := setup(t)
		before, _ := uc.GetSubscription(ctx, "user-1")

		sub, err := uc.ChangePlan(ctx, "user-1", "premium", false)
		if err != nil {
			t.Fatalf("ChangePlan failed: %v", err)
		}
		if sub.Snapshot.PlanCode != "PREMIUM" || sub.Snapshot.MonthlyMinutes != 600 {
			t.Errorf("snapshot not rewritten: %+v", sub.Snapshot)
		}
		if sub.UsageCount != before.UsageCount || sub.UsedSeconds != before.UsedSeconds {
			t.Errorf("counters must be preserved: %+v", sub)
		}
		if !sub.CycleStart.Equal(before.CycleStart) || !sub.CycleEnd.Equal(before.CycleEnd) {
			t.Errorf("cycle window must be preserved exactly")
		}
	})

	t.Run("with reset the counters zero and a fresh window opens", func(t *testing.T) {
		uc, _, _ := setup(t)

		sub, err := uc.ChangePlan(ctx, "user-1", "PREMIUM", true)
		if err != nil {
			t.Fatalf("ChangePlan failed: %v", err)
		}
		if sub.UsageCount != 0 || sub.UsedSeconds != 0 {
			t.Errorf("counters must be zeroed: %+v", sub)
		}
		if !sub.CycleStart.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)) ||
			!sub.CycleEnd.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("want fresh monthly window, got [%v, %v)", sub.CycleStart, sub.CycleEnd)
		}
	})

	t.Run("unknown or inactive target maps to ErrUnknownPlan", func(t *testing.T) {
		uc, plans, _ := setup(t)

		if _, err := uc.ChangePlan(ctx, "user-1", "GOLD", false); !errors.Is(err, domain.ErrUnknownPlan) {
			t.Fatalf("want ErrUnknownPlan, got %v", err)
		}

		premium, _ := plans.FindByCode(ctx, repository.NoTX, "PREMIUM")
		premium.Active = false
		_ = plans.Save(ctx, repository.NoTX, premium)
		if _, err := uc.ChangePlan(ctx, "user-1", "PREMIUM", false); !errors.Is(err, domain.ErrUnknownPlan) {
			t.Fatalf("want ErrUnknownPlan for inactive target, got %v", err)
		}
	})

	t.Run("no ledger maps to ErrNoSubscription", func(t *testing.T) {
		uc, _, _ := setup(t)
		if _, err := uc.ChangePlan(ctx, "nobody", "PREMIUM", false); !errors.Is(err, domain.ErrNoSubscription) {
			t.Fatalf("want ErrNoSubscription, got %v", err)
		}
	})
}

func TestSubscriptionUseCase_MigrateOrphans(t *testing.T) {
	ctx := context.Background()

	t.Run("adopts deleted and deactivated plan references", func(t *testing.T) {
		plans := newMemPlanRepo()
		subs := newMemSubRepo(plans)
		seedPlan(t, plans, "FREE", 30, 10, true)
		legacy := seedPlan(t, plans, "LEGACY", 60, 20, false)
		uc := newSubUC(plans, subs)

		if _, err := uc.CreateSubscription(ctx, "user-kept"); err != nil {
			t.Fatalf("CreateSubscription failed: %v", err)
		}
		if _, err := uc.CreateSubscription(ctx, "user-orphan"); err != nil {
			t.Fatalf("CreateSubscription failed: %v", err)
		}
		if _, err := uc.ChangePlan(ctx, "user-orphan", "LEGACY", false); err != nil {
			t.Fatalf("ChangePlan failed: %v", err)
		}
		// Burn usage so we can check migration preserves it.
		_ = subs.IncrementUsage(ctx, repository.NoTX, "user-orphan")

		if err := plans.Delete(ctx, repository.NoTX, legacy.ID); err != nil {
			t.Fatalf("plan delete failed: %v", err)
		}

		n, err := uc.MigrateOrphans(ctx)
		if err != nil {
			t.Fatalf("MigrateOrphans failed: %v", err)
		}
		if n != 1 {
			t.Fatalf("want 1 migrated, got %d", n)
		}

		moved, _ := uc.GetSubscription(ctx, "user-orphan")
		if moved.Snapshot.PlanCode != "FREE" {
			t.Errorf("orphan not moved to default: %+v", moved.Snapshot)
		}
		if moved.UsageCount != 1 {
			t.Errorf("migration must preserve counters, got %d", moved.UsageCount)
		}

		// Idempotent: a second sweep finds nothing.
		n, err = uc.MigrateOrphans(ctx)
		if err != nil {
			t.Fatalf("second MigrateOrphans failed: %v", err)
		}
		if n != 0 {
			t.Errorf("second sweep must migrate nothing, got %d", n)
		}
	})

	t.Run("fails loudly without a default plan", func(t *testing.T) {
		plans := newMemPlanRepo()
		subs := newMemSubRepo(plans)
		uc := newSubUC(plans, subs)

		if _, err := uc.MigrateOrphans(ctx); !errors.Is(err, domain.ErrNoDefaultPlan) {
			t.Fatalf("want ErrNoDefaultPlan, got %v", err)
		}
	})
}

func TestSubscriptionUseCase_MigrateFromPlan(t *testing.T) {
	ctx := context.Background()
	plans := newMemPlanRepo()
	subs := newMemSubRepo(plans)
	seedPlan(t, plans, "FREE", 30, 10, true)
	legacy := seedPlan(t, plans, "LEGACY", 60, 20, false)
	seedPlan(t, plans, "PREMIUM", 600, 200, false)
	uc := newSubUC(plans, subs)

	for _, user := range []string{"a", "b", "c"} {
		if _, err := uc.CreateSubscription(ctx, user); err != nil {
			t.Fatalf("CreateSubscription failed: %v", err)
		}
	}
	for _, user := range []string{"a", "b"} {
		if _, err := uc.ChangePlan(ctx, user, "LEGACY", false); err != nil {
			t.Fatalf("ChangePlan failed: %v", err)
		}
	}

	n, err := uc.MigrateFromPlan(ctx, legacy.ID, "premium")
	if err != nil {
		t.Fatalf("MigrateFromPlan failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 migrated, got %d", n)
	}

	counts, _ := uc.CountByPlanCode(ctx)
	if counts["PREMIUM"] != 2 || counts["FREE"] != 1 {
		t.Errorf("unexpected distribution: %v", counts)
	}
}
