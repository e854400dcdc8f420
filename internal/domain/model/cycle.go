package model

import "time"

// lifetimeYears is the "never resets" sentinel horizon for LIFETIME plans.
const lifetimeYears = 100

// CalculateCycle maps a billing cycle and an instant onto the half-open
// [start, end) window containing it. The instant is normalized to UTC; the
// caller injects it, so the function stays deterministic under test.
//
//	MONTHLY:  first instant of now's month  -> first instant of next month
//	YEARLY:   Jan 1 of now's year           -> Jan 1 of next year
//	LIFETIME: start of now's day            -> +100 years
func CalculateCycle(bc BillingCycle, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch bc {
	case BillingCycleYearly:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	case BillingCycleLifetime:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(lifetimeYears, 0, 0)
	default: // MONTHLY, also the fallback for unknown input
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}
