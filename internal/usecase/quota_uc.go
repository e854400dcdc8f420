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
	ucport "transcription-quota/internal/domain/ports/usecase"
	"transcription-quota/internal/infra/metrics"
)

// EnforcementMode selects how admission and the usage_count charge relate.
type EnforcementMode string

const (
	// EnforcementAdvisory checks then increments in two calls. Concurrent
	// requests from one user can transiently over-admit, bounded by the
	// number of in-flight requests minus one.
	EnforcementAdvisory EnforcementMode = "advisory"
	// EnforcementAtomic charges the count dimension with a conditional
	// increment that denies without mutating once the limit is reached.
	EnforcementAtomic EnforcementMode = "atomic"
)

// ParseEnforcementMode maps a config string onto a mode, rejecting unknown
// input.
func ParseEnforcementMode(s string) (EnforcementMode, error) {
	switch EnforcementMode(s) {
	case EnforcementAdvisory, "":
		return EnforcementAdvisory, nil
	case EnforcementAtomic:
		return EnforcementAtomic, nil
	default:
		return "", domain.ErrInvalidArgument
	}
}

// UsageRecorder is the write path of the ledger: it charges counters and
// rolls cycle windows. Callers must have gated via a QuotaEnforcer first;
// none of these methods re-check limits on their own.
type UsageRecorder struct {
	subs  repository.SubscriptionRepository
	plans repository.PlanRepository
	tx    repository.TransactionManager
	now   func() time.Time
	log   *zerolog.Logger
}

func NewUsageRecorder(subs repository.SubscriptionRepository, plans repository.PlanRepository, tx repository.TransactionManager, logger *zerolog.Logger) *UsageRecorder {
	l := logger.With().Str("component", "UsageRecorder").Logger()
	return &UsageRecorder{subs: subs, plans: plans, tx: tx, now: func() time.Time { return time.Now().UTC() }, log: &l}
}

// RecordStarted charges one count unit at admission time, before the
// expensive operation runs. A downstream failure still costs the unit;
// otherwise failed jobs would grant unlimited retries.
func (uc *UsageRecorder) RecordStarted(ctx context.Context, userID string) error {
	return uc.subs.IncrementUsage(ctx, repository.NoTX, userID)
}

// RecordDuration charges elapsed seconds on successful completion only.
func (uc *UsageRecorder) RecordDuration(ctx context.Context, userID string, seconds int) error {
	if seconds < 0 {
		return domain.ErrInvalidArgument
	}
	if seconds == 0 {
		return nil
	}
	if err := uc.subs.AddUsedSeconds(ctx, repository.NoTX, userID, seconds); err != nil {
		return err
	}
	metrics.AddUsageSeconds(seconds)
	return nil
}

// ResetCycle zeroes both counters and opens a fresh window computed from the
// referenced plan's billing cycle, falling back to MONTHLY when the plan
// reference is gone. LIFETIME ledgers are never reset.
func (uc *UsageRecorder) ResetCycle(ctx context.Context, userID string) error {
	return uc.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := uc.subs.FindByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		cycle := model.BillingCycleMonthly
		if sub.PlanID != nil {
			plan, err := uc.plans.FindByID(ctx, tx, *sub.PlanID)
			switch {
			case err == nil:
				cycle = plan.BillingCycle
			case errors.Is(err, domain.ErrNotFound):
				// plan hard-deleted; keep the MONTHLY fallback
			default:
				return err
			}
		}
		if cycle == model.BillingCycleLifetime {
			return nil
		}
		sub.ResetCounters()
		sub.CycleStart, sub.CycleEnd = model.CalculateCycle(cycle, uc.now())
		if err := uc.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		metrics.IncCycleResets()
		return nil
	})
}

// ResetDue sweeps every ledger whose window has closed. LIFETIME ledgers use
// a far-future sentinel end and never come due.
func (uc *UsageRecorder) ResetDue(ctx context.Context) (int, error) {
	due, err := uc.subs.ListDueForReset(ctx, repository.NoTX, uc.now())
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, sub := range due {
		if err := uc.ResetCycle(ctx, sub.UserID); err != nil {
			uc.log.Error().Err(err).Str("user_id", sub.UserID).Msg("cycle reset failed")
			continue
		}
		reset++
	}
	return reset, nil
}

// checker holds the shared read path of both enforcers.
type checker struct {
	subs repository.SubscriptionRepository
}

func (c checker) Check(ctx context.Context, userID string) (model.QuotaDecision, error) {
	sub, err := c.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.QuotaDenied(model.DenyNoSubscription, 0), nil
		}
		return model.QuotaDecision{}, err
	}
	return model.EvaluateQuota(sub), nil
}

// AdvisoryEnforcer admits with a plain check-then-charge sequence. The gap
// between the two calls is an accepted trade-off: over-admission is bounded
// by the user's in-flight concurrency.
type AdvisoryEnforcer struct {
	checker
	recorder *UsageRecorder
	log      *zerolog.Logger
}

func NewAdvisoryEnforcer(subs repository.SubscriptionRepository, recorder *UsageRecorder, logger *zerolog.Logger) *AdvisoryEnforcer {
	l := logger.With().Str("component", "AdvisoryEnforcer").Logger()
	return &AdvisoryEnforcer{checker: checker{subs: subs}, recorder: recorder, log: &l}
}

func (e *AdvisoryEnforcer) Check(ctx context.Context, userID string) (model.QuotaDecision, error) {
	d, err := e.checker.Check(ctx, userID)
	metrics.ObserveQuotaDecision(string(EnforcementAdvisory), d, err)
	return d, err
}

func (e *AdvisoryEnforcer) Admit(ctx context.Context, userID string) (model.QuotaDecision, error) {
	d, err := e.checker.Check(ctx, userID)
	if err != nil || !d.Allowed {
		metrics.ObserveQuotaDecision(string(EnforcementAdvisory), d, err)
		return d, err
	}
	if err := e.recorder.RecordStarted(ctx, userID); err != nil {
		return model.QuotaDecision{}, err
	}
	metrics.ObserveQuotaDecision(string(EnforcementAdvisory), d, nil)
	return d, nil
}

// AtomicEnforcer charges the count dimension with a conditional increment:
// the charge succeeds only while usage_count is below the snapshot limit, so
// concurrent admissions can never push the counter past it. The time
// dimension stays a read check; seconds are only known after completion.
type AtomicEnforcer struct {
	checker
	log *zerolog.Logger
}

func NewAtomicEnforcer(subs repository.SubscriptionRepository, logger *zerolog.Logger) *AtomicEnforcer {
	l := logger.With().Str("component", "AtomicEnforcer").Logger()
	return &AtomicEnforcer{checker: checker{subs: subs}, log: &l}
}

func (e *AtomicEnforcer) Check(ctx context.Context, userID string) (model.QuotaDecision, error) {
	d, err := e.checker.Check(ctx, userID)
	metrics.ObserveQuotaDecision(string(EnforcementAtomic), d, err)
	return d, err
}

func (e *AtomicEnforcer) Admit(ctx context.Context, userID string) (model.QuotaDecision, error) {
	sub, err := e.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			d := model.QuotaDenied(model.DenyNoSubscription, 0)
			metrics.ObserveQuotaDecision(string(EnforcementAtomic), d, nil)
			return d, nil
		}
		return model.QuotaDecision{}, err
	}
	if sub.UsedSeconds >= sub.MaxSeconds() {
		d := model.QuotaDenied(model.DenyTimeExceeded, sub.Snapshot.MonthlyMinutes)
		metrics.ObserveQuotaDecision(string(EnforcementAtomic), d, nil)
		return d, nil
	}
	ok, err := e.subs.TryIncrementUsage(ctx, repository.NoTX, userID)
	if err != nil {
		return model.QuotaDecision{}, err
	}
	var d model.QuotaDecision
	if ok {
		d = model.QuotaAllowed()
	} else {
		d = model.QuotaDenied(model.DenyUsageCountExceeded, sub.Snapshot.MonthlyUsageLimit)
	}
	metrics.ObserveQuotaDecision(string(EnforcementAtomic), d, nil)
	return d, nil
}

// NewQuotaEnforcer selects the enforcer implementation for the configured
// mode. Under EnforcementAtomic, Admit already performs the started-charge;
// callers must not call RecordStarted again.
func NewQuotaEnforcer(mode EnforcementMode, subs repository.SubscriptionRepository, recorder *UsageRecorder, logger *zerolog.Logger) ucport.QuotaEnforcer {
	if mode == EnforcementAtomic {
		return NewAtomicEnforcer(subs, logger)
	}
	return NewAdvisoryEnforcer(subs, recorder, logger)
}
