package merchant

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors updated by the Service.
type Metrics struct {
	Transitions *prometheus.CounterVec
	SyncErrors  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubkit",
			Name:      "business_status_transitions_total",
			Help:      "Business status changes by previous and new status.",
		}, []string{"from", "to"}),
		SyncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubkit",
			Name:      "account_sync_errors_total",
			Help:      "Failed connected account syncs by trigger.",
		}, []string{"trigger"}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.SyncErrors)
	}
	return m
}
