package subscription

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the reconciliation collectors.
type Metrics struct {
	Results  *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Actions  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubkit",
			Name:      "reconcile_results_total",
			Help:      "Reconciled subscription snapshots by trigger and outcome.",
		}, []string{"trigger", "action"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubkit",
			Name:      "reconcile_failures_total",
			Help:      "Subscriptions or businesses that could not be reconciled.",
		}, []string{"trigger"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubkit",
			Name:      "subscription_actions_total",
			Help:      "Pause, resume and cancel requests by outcome.",
		}, []string{"action", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Results, m.Failures, m.Actions)
	}
	return m
}
