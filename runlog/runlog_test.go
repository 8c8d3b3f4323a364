package runlog

import (
	"path/filepath"
	"testing"
	"time"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/reconcile"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// TestRecordAndGet round-trips a report through the log.
func TestRecordAndGet(t *testing.T) {
	l := testLog(t)

	report := &reconcile.RunReport{
		RunID:          camwatch.NewRunID(),
		Source:         "file:/tmp/snapshot.json",
		EffectiveDate:  camwatch.Date{Year: 2026, Month: time.March, Day: 10},
		RowCount:       12,
		MatchedCount:   10,
		OrphanCount:    1,
		UnseenCount:    2,
		ReportsCreated: 10,
	}
	if err := l.Record(report); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	got, err := l.Get(report.RunID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for recorded run")
	}
	if got.MatchedCount != 10 || got.EffectiveDate != report.EffectiveDate {
		t.Errorf("report did not round-trip: %+v", got)
	}

	if missing, err := l.Get("run_nope"); err != nil || missing != nil {
		t.Errorf("Get(unknown) = (%v, %v), want (nil, nil)", missing, err)
	}
}

// TestListNewestFirst verifies list order follows run-ID (ULID) order,
// newest first, and the limit is honored.
func TestListNewestFirst(t *testing.T) {
	l := testLog(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id := camwatch.NewRunID()
		ids = append(ids, id)
		if err := l.Record(&reconcile.RunReport{RunID: id, RowCount: i}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
		time.Sleep(2 * time.Millisecond) // distinct ULID timestamps
	}

	reports, err := l.List(0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	if reports[0].RunID != ids[2] || reports[2].RunID != ids[0] {
		t.Errorf("reports not newest-first: %v", []string{reports[0].RunID, reports[1].RunID, reports[2].RunID})
	}

	capped, err := l.List(2)
	if err != nil {
		t.Fatalf("List(2) error: %v", err)
	}
	if len(capped) != 2 || capped[0].RunID != ids[2] {
		t.Errorf("List(2) = %d reports starting %s", len(capped), capped[0].RunID)
	}
}
