package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"transcription-quota/internal/domain/model"
	"transcription-quota/internal/domain/ports/repository"
	"transcription-quota/internal/infra/metrics"
	red "transcription-quota/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

// planRepoCacheDecorator serves plan reads from Redis. The catalog changes
// rarely and is read on every quota decision, so a short TTL plus write
// invalidation keeps the hot path off Postgres.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func planKey(id string) string       { return fmt.Sprintf("plan:id:%s", id) }
func planCodeKey(code string) string { return fmt.Sprintf("plan:code:%s", code) }

const (
	planDefaultKey = "plan:default"
	planListKey    = "plan:list:all"
	planActiveKey  = "plan:list:active"
)

func (d *planRepoCacheDecorator) getPlan(ctx context.Context, key string) (*model.Plan, bool) {
	val, err := d.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var plan model.Plan
	if json.Unmarshal([]byte(val), &plan) != nil {
		return nil, false
	}
	return &plan, true
}

func (d *planRepoCacheDecorator) putPlan(ctx context.Context, key string, plan *model.Plan) {
	if bytes, err := json.Marshal(plan); err == nil {
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
}

// invalidate drops every derived key. Plan writes are rare enough that
// wholesale invalidation beats tracking which keys a mutation touched.
func (d *planRepoCacheDecorator) invalidate(ctx context.Context, plan *model.Plan) {
	keys := []string{planDefaultKey, planListKey, planActiveKey}
	if plan != nil {
		keys = append(keys, planKey(plan.ID), planCodeKey(plan.Code))
	}
	d.cache.Del(ctx, keys...)
}

func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	d.invalidate(ctx, plan)
	return d.inner.Save(ctx, tx, plan)
}

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	key := planKey(id)
	if plan, ok := d.getPlan(ctx, key); ok {
		metrics.IncCacheRequest("plan", "hit")
		return plan, nil
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.putPlan(ctx, key, plan)
	return plan, nil
}

func (d *planRepoCacheDecorator) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	key := planCodeKey(code)
	if plan, ok := d.getPlan(ctx, key); ok {
		metrics.IncCacheRequest("plan", "hit")
		return plan, nil
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	d.putPlan(ctx, key, plan)
	return plan, nil
}

func (d *planRepoCacheDecorator) FindDefault(ctx context.Context, tx repository.Tx) (*model.Plan, error) {
	if plan, ok := d.getPlan(ctx, planDefaultKey); ok {
		metrics.IncCacheRequest("plan_default", "hit")
		return plan, nil
	}

	metrics.IncCacheRequest("plan_default", "miss")
	plan, err := d.inner.FindDefault(ctx, tx)
	if err != nil {
		return nil, err
	}
	d.putPlan(ctx, planDefaultKey, plan)
	return plan, nil
}

func (d *planRepoCacheDecorator) listCached(ctx context.Context, key, label string, load func() ([]*model.Plan, error)) ([]*model.Plan, error) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plans []*model.Plan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest(label, "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest(label, "miss")
	plans, err := load()
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(plans); err == nil {
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return plans, nil
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return d.listCached(ctx, planListKey, "plan_list", func() ([]*model.Plan, error) {
		return d.inner.ListAll(ctx, tx)
	})
}

func (d *planRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return d.listCached(ctx, planActiveKey, "plan_list", func() ([]*model.Plan, error) {
		return d.inner.ListActive(ctx, tx)
	})
}

func (d *planRepoCacheDecorator) ClearDefault(ctx context.Context, tx repository.Tx) error {
	// The previous default is unknown here, so flush the id and code keys
	// lazily by TTL and drop only the derived keys now.
	d.invalidate(ctx, nil)
	return d.inner.ClearDefault(ctx, tx)
}

func (d *planRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, id string) error {
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err == nil {
		d.invalidate(ctx, plan)
	}
	return d.inner.Delete(ctx, tx, id)
}
