package usecase

import (
	"context"

	"transcription-quota/internal/domain/model"
)

// QuotaEnforcer gates admission to billable operations. Check is the pure
// read path; Admit is check-plus-charge and its atomicity depends on the
// configured enforcement mode.
type QuotaEnforcer interface {
	Check(ctx context.Context, userID string) (model.QuotaDecision, error)
	Admit(ctx context.Context, userID string) (model.QuotaDecision, error)
}
