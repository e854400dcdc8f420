package web

import (
	"net/http"

	ucport "transcription-quota/internal/domain/ports/usecase"
	red "transcription-quota/internal/infra/redis"
	"transcription-quota/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type ucQuotaEnforcer = ucport.QuotaEnforcer

// Server exposes the quota engine over HTTP: a service-facing subscription
// and admission surface plus a JWT-guarded admin surface for the catalog.
type Server struct {
	planUC   *usecase.PlanUseCase
	subUC    *usecase.SubscriptionUseCase
	recorder *usecase.UsageRecorder
	enforcer ucQuotaEnforcer
	auth     *AuthManager
	limiter  *red.RateLimiter
	perMin   int
	log      *zerolog.Logger
}

func NewServer(
	planUC *usecase.PlanUseCase,
	subUC *usecase.SubscriptionUseCase,
	recorder *usecase.UsageRecorder,
	enforcer ucQuotaEnforcer,
	auth *AuthManager,
	limiter *red.RateLimiter,
	rateLimitPerMinute int,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		planUC:   planUC,
		subUC:    subUC,
		recorder: recorder,
		enforcer: enforcer,
		auth:     auth,
		limiter:  limiter,
		perMin:   rateLimitPerMinute,
		log:      &l,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))
	r.Use(RateLimit(s.limiter, s.perMin, s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/admin/login", loginHandler(s.auth))
		r.Post("/admin/logout", logoutHandler(s.auth))

		r.Get("/plans", plansListHandler(s.planUC, false))
		r.Get("/plans/code/{code}", planGetHandler(s.planUC))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subscriptionCreateHandler(s.subUC))
			r.Get("/{userID}", subscriptionGetHandler(s.subUC))
			r.Get("/{userID}/usage", usageHandler(s.subUC))
			r.Get("/{userID}/quota", quotaCheckHandler(s.enforcer))
			r.Post("/{userID}/usage/start", usageStartHandler(s.enforcer))
			r.Post("/{userID}/usage/duration", usageDurationHandler(s.recorder))
			r.Post("/{userID}/change-plan", changePlanHandler(s.subUC))
		})

		// Admin surface. Everything below requires a valid session.
		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)

			r.Get("/stats", statsHandler(s.subUC, s.planUC))
			r.Get("/admin/plans", plansListHandler(s.planUC, true))
			r.Post("/plans", plansCreateHandler(s.planUC))
			r.Put("/plans/{id}", plansUpdateHandler(s.planUC))
			r.Delete("/plans/{id}", plansDeleteHandler(s.planUC))
			r.Post("/plans/{id}/deactivate", plansDeactivateHandler(s.planUC))
			r.Post("/plans/{id}/default", plansSetDefaultHandler(s.planUC))
			r.Post("/plans/migrate", plansMigrateHandler(s.subUC))
		})
	})

	return r
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
