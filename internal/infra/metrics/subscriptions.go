package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsMigratedTotal,
		cycleResetsTotal,
		subscriptionsByPlan,
	)
}

var (
	subscriptionsMigratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_migrated_total",
			Help: "Ledgers re-snapshotted by migrations and the consistency sweep.",
		},
	)

	cycleResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_cycle_resets_total",
			Help: "Ledger cycle windows rolled over.",
		},
	)

	subscriptionsByPlan = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_by_plan",
			Help: "Current number of ledgers per snapshot plan code.",
		},
		[]string{"plan_code"},
	)
)

func AddSubscriptionsMigrated(count int) {
	subscriptionsMigratedTotal.Add(float64(count))
}

func IncCycleResets() {
	cycleResetsTotal.Inc()
}

func SetSubscriptionsByPlan(counts map[string]int) {
	for code, count := range counts {
		subscriptionsByPlan.WithLabelValues(code).Set(float64(count))
	}
}
