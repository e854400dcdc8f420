package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"transcription-quota/internal/domain/model"
)

func init() {
	register(
		quotaDecisionsTotal,
		usageSecondsTotal,
	)
}

var (
	quotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_decisions_total",
			Help: "Admission decisions by enforcement mode and outcome.",
		},
		[]string{"mode", "outcome", "reason"},
	)

	usageSecondsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_seconds_recorded_total",
			Help: "Total transcription seconds charged to ledgers.",
		},
	)
)

// ObserveQuotaDecision records one admission decision.
func ObserveQuotaDecision(mode string, d model.QuotaDecision, err error) {
	switch {
	case err != nil:
		quotaDecisionsTotal.WithLabelValues(mode, "error", "").Inc()
	case d.Allowed:
		quotaDecisionsTotal.WithLabelValues(mode, "allowed", "").Inc()
	default:
		quotaDecisionsTotal.WithLabelValues(mode, "denied", d.Reason).Inc()
	}
}

func AddUsageSeconds(seconds int) {
	usageSecondsTotal.Add(float64(seconds))
}
