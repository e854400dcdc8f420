package sched

import (
	"context"
	"time"

	"transcription-quota/internal/usecase"

	"github.com/rs/zerolog"
)

// CycleResetWorker rolls subscriptions whose billing window has elapsed into
// a fresh cycle with zeroed counters.
type CycleResetWorker struct {
	interval time.Duration
	recorder *usecase.UsageRecorder
	log      *zerolog.Logger
}

func NewCycleResetWorker(interval time.Duration, recorder *usecase.UsageRecorder, logger *zerolog.Logger) *CycleResetWorker {
	crLog := logger.With().Str("component", "CycleResetWorker").Logger()
	return &CycleResetWorker{
		interval: interval,
		recorder: recorder,
		log:      &crLog,
	}
}

func (w *CycleResetWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting cycle reset worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cycle reset worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.recorder.ResetDue(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("cycle reset worker error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("billing cycles reset")
			}
		}
	}
}
