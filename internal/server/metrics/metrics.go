// Package metrics exposes Prometheus counters for the upload/delete
// protocols and the cleanup queue.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filedepot_uploads_total",
		Help: "Total number of successful uploads.",
	})
	DeletesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filedepot_deletes_total",
		Help: "Total number of successful deletes.",
	})
	CompensationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filedepot_compensations_total",
		Help: "Total number of compensating actions attempted.",
	})
	CriticalInconsistenciesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filedepot_critical_inconsistencies_total",
		Help: "Total number of failed compensations handed to the cleanup queue.",
	})
	CleanupResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filedepot_cleanup_resolved_total",
		Help: "Total number of cleanup queue entries driven back to a consistent state.",
	})
	CleanupUnresolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "filedepot_cleanup_unresolved_total",
		Help: "Total number of cleanup queue entries left for operator attention.",
	})
)

func init() {
	prometheus.MustRegister(
		UploadsTotal,
		DeletesTotal,
		CompensationsTotal,
		CriticalInconsistenciesTotal,
		CleanupResolvedTotal,
		CleanupUnresolvedTotal,
	)
}
