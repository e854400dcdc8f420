//go:build !integration

package web

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
	"transcription-quota/internal/usecase"
)

// newTestLogger creates a silent logger for tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type fakeTx struct{}

type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, fakeTx{})
}

// ---------------- in-memory repositories ----------------

type fakePlanRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Plan
}

func newFakePlanRepo() *fakePlanRepo { return &fakePlanRepo{byID: map[string]*model.Plan{}} }

func (m *fakePlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.byID {
		if id != p.ID && other.Code == p.Code {
			return domain.ErrAlreadyExists
		}
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *fakePlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *fakePlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *fakePlanRepo) FindDefault(ctx context.Context, tx repository.Tx) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Default {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *fakePlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Plan, 0, len(m.byID))
	for _, p := range m.byID {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *fakePlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Plan, 0, len(m.byID))
	for _, p := range m.byID {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *fakePlanRepo) ClearDefault(ctx context.Context, tx repository.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		p.Default = false
	}
	return nil
}

func (m *fakePlanRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type fakeSubRepo struct {
	mu     sync.Mutex
	byUser map[string]*model.Subscription
	plans  *fakePlanRepo
}

func newFakeSubRepo(plans *fakePlanRepo) *fakeSubRepo {
	return &fakeSubRepo{byUser: map[string]*model.Subscription{}, plans: plans}
}

func copySub(s *model.Subscription) *model.Subscription {
	cp := *s
	if s.PlanID != nil {
		id := *s.PlanID
		cp.PlanID = &id
	}
	return &cp
}

func (m *fakeSubRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byUser[s.UserID]; ok && existing.ID != s.ID {
		return domain.ErrAlreadyExists
	}
	m.byUser[s.UserID] = copySub(s)
	return nil
}

func (m *fakeSubRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byUser[userID]; ok {
		return copySub(s), nil
	}
	return nil, domain.ErrNotFound
}

func (m *fakeSubRepo) FindByUserForUpdate(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return m.FindByUser(ctx, tx, userID)
}

func (m *fakeSubRepo) IncrementUsage(ctx context.Context, tx repository.Tx, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return domain.ErrNotFound
	}
	s.UsageCount++
	return nil
}

func (m *fakeSubRepo) TryIncrementUsage(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.UsageCount >= s.Snapshot.MonthlyUsageLimit {
		return false, nil
	}
	s.UsageCount++
	return true, nil
}

func (m *fakeSubRepo) AddUsedSeconds(ctx context.Context, tx repository.Tx, userID string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return domain.ErrNotFound
	}
	s.UsedSeconds += seconds
	return nil
}

func (m *fakeSubRepo) ListDueForReset(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.byUser {
		if !s.CycleEnd.After(now) {
			out = append(out, copySub(s))
		}
	}
	return out, nil
}

func (m *fakeSubRepo) ListOrphaned(ctx context.Context, tx repository.Tx) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.byUser {
		orphaned := s.PlanID == nil
		if !orphaned {
			m.plans.mu.Lock()
			p, ok := m.plans.byID[*s.PlanID]
			orphaned = !ok || !p.Active
			m.plans.mu.Unlock()
		}
		if orphaned {
			out = append(out, copySub(s))
		}
	}
	return out, nil
}

func (m *fakeSubRepo) ListByPlan(ctx context.Context, tx repository.Tx, planID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.byUser {
		if s.PlanID != nil && *s.PlanID == planID {
			out = append(out, copySub(s))
		}
	}
	return out, nil
}

func (m *fakeSubRepo) CountByPlanCode(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, s := range m.byUser {
		out[s.Snapshot.PlanCode]++
	}
	return out, nil
}

// ---------------- test server fixture ----------------

const testAdminPassword = "test-admin-password"

type testEnv struct {
	router   *chi.Mux
	auth     *AuthManager
	plans    *fakePlanRepo
	subs     *fakeSubRepo
	planUC   *usecase.PlanUseCase
	recorder *usecase.UsageRecorder
}

// newTestEnv wires the full router over in-memory repositories, with a FREE
// default plan (30 minutes, 3 uses) and an active BASIC plan seeded.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := newTestLogger()

	plans := newFakePlanRepo()
	subs := newFakeSubRepo(plans)
	txm := fakeTxManager{}

	planUC := usecase.NewPlanUseCase(plans, txm, logger)
	subUC := usecase.NewSubscriptionUseCase(subs, plans, txm, logger)
	recorder := usecase.NewUsageRecorder(subs, plans, txm, logger)
	enforcer := usecase.NewAdvisoryEnforcer(subs, recorder, logger)

	seed := []usecase.PlanSpec{
		{Code: "FREE", Name: "Free", Type: model.PlanTypeFree, BillingCycle: model.BillingCycleMonthly, MonthlyMinutes: 30, MonthlyUsageLimit: 3, Default: true},
		{Code: "BASIC", Name: "Basic", Type: model.PlanTypeBasic, BillingCycle: model.BillingCycleMonthly, CostCents: 999, MonthlyMinutes: 180, MonthlyUsageLimit: 50},
	}
	for _, spec := range seed {
		if _, err := planUC.Create(ctx, spec); err != nil {
			t.Fatalf("seed plan %s: %v", spec.Code, err)
		}
	}

	auth := NewAuthManager("test-admin-jwt-secret-please-change", testAdminPassword, false, time.Minute)
	server := NewServer(planUC, subUC, recorder, enforcer, auth, nil, 0, logger)

	return &testEnv{
		router:   server.Router(),
		auth:     auth,
		plans:    plans,
		subs:     subs,
		planUC:   planUC,
		recorder: recorder,
	}
}

// adminToken mints a session the way a successful login would.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	rr := noopResponseWriter{}
	token, err := e.auth.Mint(rr)
	if err != nil {
		t.Fatalf("mint admin token: %v", err)
	}
	return token
}

type noopResponseWriter struct{}

func (noopResponseWriter) Header() http.Header       { return http.Header{} }
func (noopResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (noopResponseWriter) WriteHeader(int)           {}
