package repository

import (
	"context"

	"transcription-quota/internal/domain/model"
)

// PlanRepository is the port for plan catalog persistence. Lookups here are
// raw; active/default resolution policy lives in the catalog use case.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Plan, error)
	FindDefault(ctx context.Context, tx Tx) (*model.Plan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
	// ListActive returns active plans ordered by cost ascending.
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
	// ClearDefault unsets the default flag on every plan. Callers must run it
	// in the same transaction that sets the new default.
	ClearDefault(ctx context.Context, tx Tx) error
	Delete(ctx context.Context, tx Tx, id string) error
}
