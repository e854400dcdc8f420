package sched

import (
	"context"
	"errors"
	"time"

	"transcription-quota/internal/domain"
	"transcription-quota/internal/usecase"

	"github.com/rs/zerolog"
)

// ConsistencyWorker periodically migrates subscriptions whose plan reference
// is missing or inactive back onto the default plan.
type ConsistencyWorker struct {
	interval time.Duration
	subUC    *usecase.SubscriptionUseCase
	log      *zerolog.Logger
}

func NewConsistencyWorker(interval time.Duration, subUC *usecase.SubscriptionUseCase, logger *zerolog.Logger) *ConsistencyWorker {
	cwLog := logger.With().Str("component", "ConsistencyWorker").Logger()
	return &ConsistencyWorker{
		interval: interval,
		subUC:    subUC,
		log:      &cwLog,
	}
}

func (w *ConsistencyWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting consistency worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping consistency worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.subUC.MigrateOrphans(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrNoDefaultPlan) {
					w.log.Error().Msg("no default plan configured, orphaned subscriptions left untouched")
				} else {
					w.log.Error().Err(err).Msg("consistency worker error")
				}
				continue
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("orphaned subscriptions migrated to default plan")
			}
		}
	}
}
