package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/infra/metrics"
	"transcription-quota/internal/usecase"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain sentinels onto HTTP statuses. Unknown errors never
// leak their message to the caller.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnknownPlan),
		errors.Is(err, domain.ErrNoSubscription):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvariantViolation):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNoDefaultPlan):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// ===== auth =====

type loginRequest struct {
	Password string `json:"password"`
}

func loginHandler(auth *AuthManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if !auth.CheckPassword(req.Password) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := auth.Mint(w)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Token string `json:"token"`
		}{Token: token})
	}
}

func logoutHandler(auth *AuthManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ===== plans =====

type planRequest struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Type              string `json:"type"`
	BillingCycle      string `json:"billing_cycle"`
	CostCents         int64  `json:"cost_cents"`
	DiscountCents     int64  `json:"discount_cents"`
	MonthlyMinutes    int    `json:"monthly_minutes"`
	MonthlyUsageLimit int    `json:"monthly_usage_limit"`
	Default           bool   `json:"default"`
}

func (req *planRequest) toSpec() (usecase.PlanSpec, error) {
	pt, err := model.ParsePlanType(req.Type)
	if err != nil {
		return usecase.PlanSpec{}, err
	}
	bc, err := model.ParseBillingCycle(req.BillingCycle)
	if err != nil {
		return usecase.PlanSpec{}, err
	}
	return usecase.PlanSpec{
		Code:              req.Code,
		Name:              req.Name,
		Description:       req.Description,
		Type:              pt,
		BillingCycle:      bc,
		CostCents:         req.CostCents,
		DiscountCents:     req.DiscountCents,
		MonthlyMinutes:    req.MonthlyMinutes,
		MonthlyUsageLimit: req.MonthlyUsageLimit,
		Default:           req.Default,
	}, nil
}

func plansListHandler(planUC *usecase.PlanUseCase, includeInactive bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var (
			plans []*model.Plan
			err   error
		)
		if includeInactive {
			plans, err = planUC.List(ctx)
		} else {
			plans, err = planUC.ListActive(ctx)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Data []*model.Plan `json:"data"`
		}{Data: plans})
	}
}

func plansCreateHandler(planUC *usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req planRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		spec, err := req.toSpec()
		if err != nil {
			writeError(w, err)
			return
		}

		plan, err := planUC.Create(ctx, spec)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, plan)
	}
}

func planGetHandler(planUC *usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := planUC.GetByCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

// plansUpdateHandler does a partial update: absent fields keep their current
// value. Type and billing cycle stay immutable after creation.
func plansUpdateHandler(planUC *usecase.PlanUseCase) http.HandlerFunc {
	type updateRequest struct {
		Name              *string `json:"name"`
		Description       *string `json:"description"`
		CostCents         *int64  `json:"cost_cents"`
		DiscountCents     *int64  `json:"discount_cents"`
		MonthlyMinutes    *int    `json:"monthly_minutes"`
		MonthlyUsageLimit *int    `json:"monthly_usage_limit"`
		Active            *bool   `json:"active"`
		Default           *bool   `json:"default"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		plan, err := planUC.GetByID(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if req.Name != nil {
			plan.Name = *req.Name
		}
		if req.Description != nil {
			plan.Description = *req.Description
		}
		if req.CostCents != nil {
			plan.CostCents = *req.CostCents
		}
		if req.DiscountCents != nil {
			plan.DiscountCents = *req.DiscountCents
		}
		if req.MonthlyMinutes != nil {
			plan.MonthlyMinutes = *req.MonthlyMinutes
		}
		if req.MonthlyUsageLimit != nil {
			plan.MonthlyUsageLimit = *req.MonthlyUsageLimit
		}
		if req.Active != nil {
			plan.Active = *req.Active
		}
		if req.Default != nil {
			plan.Default = *req.Default
		}

		if err := planUC.Update(ctx, plan); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

func plansDeactivateHandler(planUC *usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := planUC.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func plansSetDefaultHandler(planUC *usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := planUC.SetDefault(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func plansDeleteHandler(planUC *usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := planUC.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type migrateRequest struct {
	FromPlanID string `json:"from_plan_id"`
	ToCode     string `json:"to_code"`
}

// plansMigrateHandler moves subscribers off a plan. With an empty from_plan_id
// it sweeps orphaned subscriptions onto the default plan instead.
func plansMigrateHandler(subUC *usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req migrateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		var (
			n   int
			err error
		)
		if req.FromPlanID == "" {
			n, err = subUC.MigrateOrphans(ctx)
		} else {
			n, err = subUC.MigrateFromPlan(ctx, req.FromPlanID, req.ToCode)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Migrated int `json:"migrated"`
		}{Migrated: n})
	}
}

// ===== subscriptions =====

type subscriptionCreateRequest struct {
	UserID string `json:"user_id"`
}

func subscriptionCreateHandler(subUC *usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req subscriptionCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		sub, err := subUC.CreateSubscription(r.Context(), req.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

func subscriptionGetHandler(subUC *usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := subUC.GetSubscription(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Subscription *model.Subscription `json:"subscription"`
			Usage        model.UsageView     `json:"usage"`
		}{Subscription: sub, Usage: sub.Usage()})
	}
}

func usageHandler(subUC *usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := subUC.Usage(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type changePlanRequest struct {
	PlanCode   string `json:"plan_code"`
	ResetUsage bool   `json:"reset_usage"`
}

func changePlanHandler(subUC *usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.PlanCode == "" {
			http.Error(w, "plan_code is required", http.StatusBadRequest)
			return
		}

		sub, err := subUC.ChangePlan(r.Context(), chi.URLParam(r, "userID"), req.PlanCode, req.ResetUsage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// ===== quota =====

type decisionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func writeDecision(w http.ResponseWriter, d model.QuotaDecision) {
	resp := decisionResponse{Allowed: d.Allowed, Reason: d.Reason, Limit: d.Limit}
	switch {
	case d.Allowed:
		writeJSON(w, http.StatusOK, resp)
	case d.Reason == model.DenyNoSubscription:
		writeJSON(w, http.StatusNotFound, resp)
	default:
		writeJSON(w, http.StatusTooManyRequests, resp)
	}
}

func quotaCheckHandler(enforcer ucQuotaEnforcer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision, err := enforcer.Check(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeDecision(w, decision)
	}
}

// usageStartHandler admits one transcription attempt. An allowed response has
// already charged the usage counter.
func usageStartHandler(enforcer ucQuotaEnforcer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision, err := enforcer.Admit(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeDecision(w, decision)
	}
}

type durationRequest struct {
	Seconds int `json:"seconds"`
}

func usageDurationHandler(recorder *usecase.UsageRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req durationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := recorder.RecordDuration(r.Context(), chi.URLParam(r, "userID"), req.Seconds); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ===== stats =====

func statsHandler(subUC *usecase.SubscriptionUseCase, planUC *usecase.PlanUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		byPlan, err := subUC.CountByPlanCode(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.SetSubscriptionsByPlan(byPlan)

		plans, err := planUC.List(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		active := 0
		for _, p := range plans {
			if p.Active {
				active++
			}
		}

		writeJSON(w, http.StatusOK, struct {
			SubscriptionsByPlan map[string]int `json:"subscriptions_by_plan"`
			TotalPlans          int            `json:"total_plans"`
			ActivePlans         int            `json:"active_plans"`
		}{
			SubscriptionsByPlan: byPlan,
			TotalPlans:          len(plans),
			ActivePlans:         active,
		})
	}
}
