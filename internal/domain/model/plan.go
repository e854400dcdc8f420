package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"transcription-quota/internal/domain"
)

// PlanType classifies the tier of a plan.
type PlanType string

const (
	PlanTypeFree       PlanType = "FREE"
	PlanTypeBasic      PlanType = "BASIC"
	PlanTypePremium    PlanType = "PREMIUM"
	PlanTypeEnterprise PlanType = "ENTERPRISE"
)

// ParsePlanType maps a string onto a PlanType, rejecting unknown input.
func ParsePlanType(s string) (PlanType, error) {
	switch PlanType(strings.ToUpper(strings.TrimSpace(s))) {
	case PlanTypeFree:
		return PlanTypeFree, nil
	case PlanTypeBasic:
		return PlanTypeBasic, nil
	case PlanTypePremium:
		return PlanTypePremium, nil
	case PlanTypeEnterprise:
		return PlanTypeEnterprise, nil
	default:
		return "", domain.ErrInvalidArgument
	}
}

// BillingCycle is the recurring window over which allowances apply.
type BillingCycle string

const (
	BillingCycleMonthly  BillingCycle = "MONTHLY"
	BillingCycleYearly   BillingCycle = "YEARLY"
	BillingCycleLifetime BillingCycle = "LIFETIME"
)

// ParseBillingCycle maps a string onto a BillingCycle, rejecting unknown input.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch BillingCycle(strings.ToUpper(strings.TrimSpace(s))) {
	case BillingCycleMonthly:
		return BillingCycleMonthly, nil
	case BillingCycleYearly:
		return BillingCycleYearly, nil
	case BillingCycleLifetime:
		return BillingCycleLifetime, nil
	default:
		return "", domain.ErrInvalidArgument
	}
}

// NormalizePlanCode uppercases and trims a plan code for catalog lookups.
func NormalizePlanCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Plan is a catalog entry subscribers can be assigned to. Cost and discount
// are display-only (cents); no payment capture happens here.
//
// Invariants enforced by the catalog use case:
//   - exactly one plan has Default = true at all times
//   - the default plan can never be deactivated
type Plan struct {
	ID                string       `json:"id"`
	Code              string       `json:"code"` // unique, stored uppercase
	Name              string       `json:"name"`
	Description       string       `json:"description,omitempty"`
	Type              PlanType     `json:"type"`
	BillingCycle      BillingCycle `json:"billing_cycle"`
	CostCents         int64        `json:"cost_cents"`
	DiscountCents     int64        `json:"discount_cents"`
	MonthlyMinutes    int          `json:"monthly_minutes"`
	MonthlyUsageLimit int          `json:"monthly_usage_limit"`
	Active            bool         `json:"active"`
	Default           bool         `json:"default"`
	CreatedAt         time.Time    `json:"created_at"`
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// Resolvable reports whether the catalog may hand this plan out. A default
// plan stays resolvable even when flagged inactive so the catalog can never
// deadlock with no assignable plan.
func (p *Plan) Resolvable() bool { return p != nil && (p.Active || p.Default) }

// NewPlan validates and constructs a plan.
func NewPlan(code, name, description string, pt PlanType, bc BillingCycle, costCents, discountCents int64, monthlyMinutes, monthlyUsageLimit int) (*Plan, error) {
	code = NormalizePlanCode(code)
	if code == "" || name == "" || costCents < 0 || discountCents < 0 || monthlyMinutes <= 0 || monthlyUsageLimit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := ParsePlanType(string(pt)); err != nil {
		return nil, err
	}
	if _, err := ParseBillingCycle(string(bc)); err != nil {
		return nil, err
	}
	return &Plan{
		ID:                uuid.NewString(),
		Code:              code,
		Name:              name,
		Description:       description,
		Type:              pt,
		BillingCycle:      bc,
		CostCents:         costCents,
		DiscountCents:     discountCents,
		MonthlyMinutes:    monthlyMinutes,
		MonthlyUsageLimit: monthlyUsageLimit,
		Active:            true,
		CreatedAt:         time.Now().UTC(),
	}, nil
}
