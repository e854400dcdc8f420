package model

import (
	"time"

	"github.com/oklog/ulid/v2"

	"transcription-quota/internal/domain"
)

// PlanSnapshot is the copy of a plan's allowance fields stored on a
// subscription at assignment time. Enforcement reads only these fields, so
// catalog edits never retroactively change a subscriber's entitlements.
type PlanSnapshot struct {
	PlanCode          string `json:"plan_code"`
	PlanName          string `json:"plan_name"`
	MonthlyMinutes    int    `json:"monthly_minutes"`
	MonthlyUsageLimit int    `json:"monthly_usage_limit"`
}

// Subscription is the per-user usage ledger: one row per user, mutated by
// the usage recorder (counters), the plan change coordinator (snapshot +
// cycle) and the cycle reset sweep.
//
// PlanID is a weak back-reference kept for display and migration only; it
// goes nil when the plan is hard-deleted and is never dereferenced on the
// enforcement path.
type Subscription struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	PlanID      *string      `json:"plan_id,omitempty"`
	Snapshot    PlanSnapshot `json:"plan_snapshot"`
	CycleStart  time.Time    `json:"cycle_start"`
	CycleEnd    time.Time    `json:"cycle_end"` // half-open: CycleEnd > CycleStart always
	UsageCount  int          `json:"usage_count"`
	UsedSeconds int          `json:"used_seconds"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewSubscription builds the initial ledger for a user on the given plan.
// New ledgers always open a MONTHLY window regardless of the plan's own
// billing cycle.
func NewSubscription(userID string, plan *Plan, now time.Time) (*Subscription, error) {
	if userID == "" || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	now = now.UTC()
	start, end := CalculateCycle(BillingCycleMonthly, now)
	s := &Subscription{
		ID:         ulid.Make().String(),
		UserID:     userID,
		CycleStart: start,
		CycleEnd:   end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.ApplyPlanSnapshot(plan)
	return s, nil
}

// ApplyPlanSnapshot copies the plan's allowance fields into the ledger and
// points the weak reference at the plan. This is the only path that changes
// entitlements.
func (s *Subscription) ApplyPlanSnapshot(plan *Plan) {
	id := plan.ID
	s.PlanID = &id
	s.Snapshot = PlanSnapshot{
		PlanCode:          plan.Code,
		PlanName:          plan.Name,
		MonthlyMinutes:    plan.MonthlyMinutes,
		MonthlyUsageLimit: plan.MonthlyUsageLimit,
	}
}

// ResetCounters zeroes both usage counters.
func (s *Subscription) ResetCounters() {
	s.UsageCount = 0
	s.UsedSeconds = 0
}

// MaxSeconds is the time allowance for the cycle, derived from the snapshot.
func (s *Subscription) MaxSeconds() int { return s.Snapshot.MonthlyMinutes * 60 }

// UsageView is the derived read projection over snapshot + counters.
type UsageView struct {
	UsageCount        int     `json:"usage_count"`
	MonthlyUsageLimit int     `json:"monthly_usage_limit"`
	RemainingCount    int     `json:"remaining_count"`
	UsedSeconds       int     `json:"used_seconds"`
	MonthlySeconds    int     `json:"monthly_seconds"`
	RemainingSeconds  int     `json:"remaining_seconds"`
	UsedMinutes       float64 `json:"used_minutes"`
	MonthlyMinutes    int     `json:"monthly_minutes"`
	RemainingMinutes  float64 `json:"remaining_minutes"`
}

// Usage computes the usage projection. Pure; no side effects.
func (s *Subscription) Usage() UsageView {
	monthlySeconds := s.MaxSeconds()
	remainingSeconds := monthlySeconds - s.UsedSeconds
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	remainingCount := s.Snapshot.MonthlyUsageLimit - s.UsageCount
	if remainingCount < 0 {
		remainingCount = 0
	}
	return UsageView{
		UsageCount:        s.UsageCount,
		MonthlyUsageLimit: s.Snapshot.MonthlyUsageLimit,
		RemainingCount:    remainingCount,
		UsedSeconds:       s.UsedSeconds,
		MonthlySeconds:    monthlySeconds,
		RemainingSeconds:  remainingSeconds,
		UsedMinutes:       float64(s.UsedSeconds) / 60,
		MonthlyMinutes:    s.Snapshot.MonthlyMinutes,
		RemainingMinutes:  float64(remainingSeconds) / 60,
	}
}

// Quota decision reasons.
const (
	DenyNoSubscription     = "no_subscription"
	DenyUsageCountExceeded = "usage_count_exceeded"
	DenyTimeExceeded       = "time_exceeded"
)

// QuotaDecision is the outcome of an admission check.
type QuotaDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func QuotaAllowed() QuotaDecision { return QuotaDecision{Allowed: true} }

func QuotaDenied(reason string, limit int) QuotaDecision {
	return QuotaDecision{Reason: reason, Limit: limit}
}

// EvaluateQuota decides whether one more operation may proceed, reading only
// the snapshot fields.
func EvaluateQuota(s *Subscription) QuotaDecision {
	if s == nil {
		return QuotaDenied(DenyNoSubscription, 0)
	}
	if s.UsageCount >= s.Snapshot.MonthlyUsageLimit {
		return QuotaDenied(DenyUsageCountExceeded, s.Snapshot.MonthlyUsageLimit)
	}
	if s.UsedSeconds >= s.MaxSeconds() {
		return QuotaDenied(DenyTimeExceeded, s.Snapshot.MonthlyMinutes)
	}
	return QuotaAllowed()
}
