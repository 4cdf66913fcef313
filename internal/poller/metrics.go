// Prometheus instrumentation for the polling pipeline.
//
// Label cardinality is kept deliberately small: outcome and source each have
// a handful of fixed values.
package poller

import "github.com/prometheus/client_golang/prometheus"

var (
	// cyclesTotal counts completed polling cycles by outcome.
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total polling cycles by outcome.",
		},
		[]string{"outcome"},
	)

	// referralsPersisted counts newly persisted referrals by extraction
	// source.
	referralsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referrals_persisted_total",
			Help: "Total newly persisted referral records by source.",
		},
		[]string{"source"},
	)

	// sessionInvalidations counts downstream-triggered session teardowns.
	sessionInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_invalidations_total",
			Help: "Total session invalidations triggered by rejected calls.",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal, referralsPersisted, sessionInvalidations)
}
