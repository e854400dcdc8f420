//go:build !integration

package postgres

import (
	"context"
	"time"

	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
	red "transcription-quota/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerPlanRepo mocks the database repository that the plan decorator wraps.
type mockInnerPlanRepo struct {
	SaveFunc         func(ctx context.Context, tx repository.Tx, plan *model.Plan) error
	FindByIDFunc     func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error)
	FindByCodeFunc   func(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error)
	FindDefaultFunc  func(ctx context.Context, tx repository.Tx) (*model.Plan, error)
	ListAllFunc      func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
	ListActiveFunc   func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error)
	ClearDefaultFunc func(ctx context.Context, tx repository.Tx) error
	DeleteFunc       func(ctx context.Context, tx repository.Tx, id string) error
}

func (m *mockInnerPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	return m.SaveFunc(ctx, tx, plan)
}
func (m *mockInnerPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerPlanRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	return m.FindByCodeFunc(ctx, tx, code)
}
func (m *mockInnerPlanRepo) FindDefault(ctx context.Context, tx repository.Tx) (*model.Plan, error) {
	return m.FindDefaultFunc(ctx, tx)
}
func (m *mockInnerPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return m.ListAllFunc(ctx, tx)
}
func (m *mockInnerPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return m.ListActiveFunc(ctx, tx)
}
func (m *mockInnerPlanRepo) ClearDefault(ctx context.Context, tx repository.Tx) error {
	return m.ClearDefaultFunc(ctx, tx)
}
func (m *mockInnerPlanRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return m.DeleteFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc     func(ctx context.Context, key string) (string, error)
	SetFunc     func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc     func(ctx context.Context, keys ...string) error
	PingFunc    func(ctx context.Context) error
	IncrFunc    func(ctx context.Context, key string) (int64, error)
	ExpireFunc  func(ctx context.Context, key string, expiration time.Duration) error
	FlushDBFunc func(ctx context.Context) error
	CloseFunc   func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) FlushDB(ctx context.Context) error {
	if m.FlushDBFunc != nil {
		return m.FlushDBFunc(ctx)
	}
	return nil
}
func (m *mockRedisClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
