package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/reconcile"
)

// TestPrintRun verifies the summary carries the counts and failure detail.
func TestPrintRun(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary(true)
	s.SetWriter(&buf)

	started := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	s.PrintRun(&reconcile.RunReport{
		RunID:          "run_TEST",
		Source:         "file:/tmp/snapshot.json",
		EffectiveDate:  camwatch.Date{Year: 2026, Month: time.March, Day: 10},
		RowCount:       12,
		MatchedCount:   10,
		OrphanCount:    1,
		UnseenCount:    2,
		ReportsCreated: 10,
		StartedAt:      started,
		FinishedAt:     started.Add(3 * time.Second),
		WriteFailures: []reconcile.WriteFailure{
			{DeploymentID: 7, HardwareID: "cam-07", Error: "database is locked"},
		},
	})

	out := buf.String()
	for _, want := range []string{
		"run_TEST",
		"2026-03-10",
		"10 matched, 1 orphans, 2 unseen (of 12 rows)",
		"1 write failures",
		"cam-07",
		"database is locked",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

// TestPrintFatal verifies an aborted run never prints a success line.
func TestPrintFatal(t *testing.T) {
	var buf bytes.Buffer
	s := NewSummary(true)
	s.SetWriter(&buf)

	s.PrintFatal(errors.New("portal unreachable"))

	out := buf.String()
	if !strings.Contains(out, "Run aborted: portal unreachable") {
		t.Errorf("fatal summary missing abort line:\n%s", out)
	}
	if strings.Contains(out, "completed") {
		t.Errorf("fatal summary looks like success:\n%s", out)
	}
}
