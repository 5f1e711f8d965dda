package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	tokenFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_fetch_failures_total",
		Help:      "Per-token balance or price lookups that degraded to zero.",
	}, []string{"symbol", "stage"})

	plansBuilt = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plans_built_total",
		Help:      "Rebalance plans computed.",
	})

	planActions = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "plan_actions",
		Help:      "Number of actions per computed plan.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
	})

	transactionsPrepared = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_prepared_total",
		Help:      "Transaction skeletons handed out by step requests.",
	}, []string{"symbol", "direction"})
)

func registerDomainCollectors(reg prometheus.Registerer) {
	reg.MustRegister(tokenFetchFailures, plansBuilt, planActions, transactionsPrepared)
}

// RecordTokenFetchFailure counts a holding that was zeroed. stage is
// "balance" or "price".
func RecordTokenFetchFailure(symbol, stage string) {
	tokenFetchFailures.WithLabelValues(symbol, stage).Inc()
}

// RecordPlan counts a computed plan and its size.
func RecordPlan(actions int) {
	plansBuilt.Inc()
	planActions.Observe(float64(actions))
}

// RecordTransaction counts a prepared transaction skeleton.
func RecordTransaction(symbol, direction string) {
	transactionsPrepared.WithLabelValues(symbol, direction).Inc()
}
