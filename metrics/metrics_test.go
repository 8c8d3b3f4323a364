package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/trailops/camwatch/reconcile"
)

// TestObserveRun verifies one report moves the counters and gauges.
func TestObserveRun(t *testing.T) {
	m := New()

	started := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	m.ObserveRun(&reconcile.RunReport{
		MatchedCount:   10,
		OrphanCount:    1,
		UnseenCount:    2,
		ReportsCreated: 9,
		VersionUpdates: 3,
		StartedAt:      started,
		FinishedAt:     started.Add(4 * time.Second),
	})

	if got := testutil.ToFloat64(m.rowsMatched); got != 10 {
		t.Errorf("rows matched = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.deploymentsUnseen); got != 2 {
		t.Errorf("deployments unseen = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.lastRunDuration); got != 4 {
		t.Errorf("last run duration = %v, want 4", got)
	}
}

// TestObserveRunOutcomes verifies outcome labeling for partial and fatal runs.
func TestObserveRunOutcomes(t *testing.T) {
	m := New()

	m.ObserveRun(&reconcile.RunReport{
		WriteFailures: []reconcile.WriteFailure{{DeploymentID: 1, Error: "disk full"}},
	})
	m.ObserveFatal()

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("partial_failure")); got != 1 {
		t.Errorf("partial_failure runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("fatal")); got != 1 {
		t.Errorf("fatal runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.writeFailures); got != 1 {
		t.Errorf("write failures = %v, want 1", got)
	}
}
