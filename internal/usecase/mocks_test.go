//go:build !integration

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// ---------------- transaction manager ----------------

type noTx struct{}

type mockTxManager struct{}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, noTx{})
}

// ---------------- in-memory plan repository ----------------

type memPlanRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Plan
}

func newMemPlanRepo() *memPlanRepo { return &memPlanRepo{byID: map[string]*model.Plan{}} }

func (m *memPlanRepo) put(p *model.Plan) {
	cp := *p
	m.byID[p.ID] = &cp
}

func (m *memPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.byID {
		if id != p.ID && other.Code == p.Code {
			return domain.ErrAlreadyExists
		}
	}
	m.put(p)
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
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

func (m *memPlanRepo) FindDefault(ctx context.Context, tx repository.Tx) (*model.Plan, error) {
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

func (m *memPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Plan, 0, len(m.byID))
	for _, p := range m.byID {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
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

func (m *memPlanRepo) ClearDefault(ctx context.Context, tx repository.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		p.Default = false
	}
	return nil
}

func (m *memPlanRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// ---------------- in-memory subscription repository ----------------

// memSubRepo holds a reference to the plan repo so ListOrphaned can judge
// plan resolvability the way the SQL join does.
type memSubRepo struct {
	mu     sync.Mutex
	byUser map[string]*model.Subscription
	plans  *memPlanRepo
}

func newMemSubRepo(plans *memPlanRepo) *memSubRepo {
	return &memSubRepo{byUser: map[string]*model.Subscription{}, plans: plans}
}

func copySub(s *model.Subscription) *model.Subscription {
	cp := *s
	if s.PlanID != nil {
		id := *s.PlanID
		cp.PlanID = &id
	}
	return &cp
}

func (m *memSubRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byUser[s.UserID]; ok && existing.ID != s.ID {
		return domain.ErrAlreadyExists
	}
	m.byUser[s.UserID] = copySub(s)
	return nil
}

func (m *memSubRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byUser[userID]; ok {
		return copySub(s), nil
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) FindByUserForUpdate(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if tx == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return m.FindByUser(ctx, tx, userID)
}

func (m *memSubRepo) IncrementUsage(ctx context.Context, tx repository.Tx, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return domain.ErrNotFound
	}
	s.UsageCount++
	return nil
}

func (m *memSubRepo) TryIncrementUsage(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
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

func (m *memSubRepo) AddUsedSeconds(ctx context.Context, tx repository.Tx, userID string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return domain.ErrNotFound
	}
	s.UsedSeconds += seconds
	return nil
}

func (m *memSubRepo) ListDueForReset(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
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

func (m *memSubRepo) ListOrphaned(ctx context.Context, tx repository.Tx) ([]*model.Subscription, error) {
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

func (m *memSubRepo) ListByPlan(ctx context.Context, tx repository.Tx, planID string) ([]*model.Subscription, error) {
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

func (m *memSubRepo) CountByPlanCode(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, s := range m.byUser {
		out[s.Snapshot.PlanCode]++
	}
	return out, nil
}

// ---------------- fixtures ----------------

func seedPlan(t interface{ Fatalf(string, ...interface{}) }, repo *memPlanRepo, code string, minutes, uses int, def bool) *model.Plan {
	plan, err := model.NewPlan(code, code, "", model.PlanTypeFree, model.BillingCycleMonthly, 0, 0, minutes, uses)
	if err != nil {
		t.Fatalf("seed plan %s: %v", code, err)
	}
	plan.Default = def
	if err := repo.Save(context.Background(), repository.NoTX, plan); err != nil {
		t.Fatalf("seed plan %s: %v", code, err)
	}
	return plan
}
