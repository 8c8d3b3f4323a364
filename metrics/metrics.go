// Package metrics exposes run outcomes as Prometheus collectors.
//
// Collectors live on a private registry so one-shot runs and the daemon can
// both use them without fighting over the default global registry. The
// daemon serves the registry on /metrics; a one-shot run just updates the
// in-process values before exiting.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trailops/camwatch/reconcile"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	rowsMatched    prometheus.Counter
	rowsOrphaned   prometheus.Counter
	reportsCreated prometheus.Counter
	versionUpdates prometheus.Counter
	writeFailures  prometheus.Counter

	deploymentsUnseen prometheus.Gauge
	lastRunTimestamp  prometheus.Gauge
	lastRunDuration   prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "camwatch_runs_total",
			Help: "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		rowsMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_rows_matched_total",
			Help: "Snapshot rows matched to an active deployment.",
		}),
		rowsOrphaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_rows_orphaned_total",
			Help: "Snapshot rows with no active deployment.",
		}),
		reportsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_status_reports_created_total",
			Help: "New status report rows written.",
		}),
		versionUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_device_version_updates_total",
			Help: "Registry version fields updated from snapshot drift.",
		}),
		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "camwatch_write_failures_total",
			Help: "Per-deployment persistence failures.",
		}),
		deploymentsUnseen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camwatch_deployments_unseen",
			Help: "Active deployments that did not report in the last run.",
		}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camwatch_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
		lastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camwatch_last_run_duration_seconds",
			Help: "Wall-clock duration of the last completed run.",
		}),
	}
}

// ObserveRun folds one run report into the collectors.
func (m *Metrics) ObserveRun(report *reconcile.RunReport) {
	outcome := "ok"
	if report.Failed() {
		outcome = "partial_failure"
	}
	m.runsTotal.WithLabelValues(outcome).Inc()

	m.rowsMatched.Add(float64(report.MatchedCount))
	m.rowsOrphaned.Add(float64(report.OrphanCount))
	m.reportsCreated.Add(float64(report.ReportsCreated))
	m.versionUpdates.Add(float64(report.VersionUpdates))
	m.writeFailures.Add(float64(len(report.WriteFailures)))

	m.deploymentsUnseen.Set(float64(report.UnseenCount))
	m.lastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	m.lastRunDuration.Set(report.FinishedAt.Sub(report.StartedAt).Seconds())
}

// ObserveFatal records a run that aborted before reconciliation.
func (m *Metrics) ObserveFatal() {
	m.runsTotal.WithLabelValues("fatal").Inc()
}

// Handler returns the /metrics handler for the daemon.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
