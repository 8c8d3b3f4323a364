package reconcile

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/database"
)

// stubSource serves a fixed snapshot; swap Snap between runs to simulate
// successive extractions.
type stubSource struct {
	Snap *camwatch.Snapshot
}

func (s *stubSource) Describe() string { return "stub" }

func (s *stubSource) Acquire(ctx context.Context) (*camwatch.Snapshot, error) {
	return s.Snap, nil
}

type harness struct {
	db     *database.DB
	source *stubSource
	engine *Engine
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	dbCfg := database.DefaultConfig()
	dbCfg.Path = filepath.Join(t.TempDir(), "registry.db")
	db, err := database.New(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	src := &stubSource{}
	return &harness{
		db:     db,
		source: src,
		engine: New(cfg, Dependencies{DB: db, Source: src, Logger: logger}),
	}
}

func (h *harness) seed(t *testing.T, deviceID, location string) int64 {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.db.UpsertDevice(ctx, &database.Device{
		DeviceID: deviceID,
		Active:   true,
	}))
	id, err := h.db.InsertDeployment(ctx, &database.Deployment{
		HardwareID:   deviceID,
		LocationName: location,
		Active:       true,
	})
	require.NoError(t, err)
	return id
}

func snapshot(rows ...camwatch.RawSnapshotRow) *camwatch.Snapshot {
	return &camwatch.Snapshot{
		Rows:        rows,
		ExtractedAt: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
	}
}

func date(t *testing.T, s string) camwatch.Date {
	t.Helper()
	d, err := camwatch.ParseDate(s)
	require.NoError(t, err)
	return d
}

// TestRunMissingProgression covers a device that goes silent: day one counts
// but does not flag (threshold 2), day two counts and flips is_missing, and
// a later reappearance resets everything.
func TestRunMissingProgression(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MissingFlagThreshold = 2
	h := newHarness(t, cfg)
	ctx := context.Background()

	id := h.seed(t, "013", "North Ridge")
	h.source.Snap = snapshot() // no row for 013

	report, err := h.engine.Run(ctx, date(t, "2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UnseenCount)
	assert.Equal(t, 0, report.MissingFlagged)

	dep, err := h.db.GetDeploymentByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, dep.IsMissing)
	assert.Equal(t, 1, dep.ConsecutiveMissingDays)
	assert.Equal(t, date(t, "2026-03-10"), dep.MissingSinceDate)

	// Second silent day flips the flag.
	report, err = h.engine.Run(ctx, date(t, "2026-03-11"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.MissingFlagged)
	assert.Equal(t, 1, report.AlertCount)

	dep, err = h.db.GetDeploymentByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, dep.IsMissing)
	assert.Equal(t, 2, dep.ConsecutiveMissingDays)
	assert.Equal(t, date(t, "2026-03-10"), dep.MissingSinceDate)

	// Camera reports again: counter back to exactly zero.
	h.source.Snap = snapshot(camwatch.RawSnapshotRow{LocationID: "013", Battery: "Good"})
	_, err = h.engine.Run(ctx, date(t, "2026-03-12"))
	require.NoError(t, err)

	dep, err = h.db.GetDeploymentByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, dep.IsMissing)
	assert.Equal(t, 0, dep.ConsecutiveMissingDays)
	assert.True(t, dep.MissingSinceDate.IsZero())
	assert.Equal(t, date(t, "2026-03-12"), dep.LastSeenDate)
}

// TestRunLeadingZeroMatch verifies a row spelled "02" reconciles against a
// registry device spelled "002": seen date moves and a report is written.
func TestRunLeadingZeroMatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	id := h.seed(t, "002", "Creek Bend")
	h.source.Snap = snapshot(camwatch.RawSnapshotRow{
		LocationID: "02",
		Battery:    "Good",
		Level:      "85% (Good)",
	})

	report, err := h.engine.Run(ctx, date(t, "2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.MatchedCount)
	assert.Equal(t, 0, report.OrphanCount)
	assert.Equal(t, 1, report.ReportsCreated)

	dep, err := h.db.GetDeploymentByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2026-03-10"), dep.LastSeenDate)

	sr, err := h.db.GetStatusReport(ctx, id, date(t, "2026-03-10"))
	require.NoError(t, err)
	require.NotNil(t, sr)
	assert.Equal(t, camwatch.BatteryGood, sr.BatteryStatus)
	require.NotNil(t, sr.SignalLevel)
	assert.Equal(t, 85, *sr.SignalLevel)
}

// TestRunIdempotentReplay processes the same snapshot twice with the same
// effective date: the second run creates no rows and moves no counters.
func TestRunIdempotentReplay(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	seenID := h.seed(t, "cam-01", "Oak Stand")
	silentID := h.seed(t, "cam-02", "Pond Trail")
	h.source.Snap = snapshot(camwatch.RawSnapshotRow{LocationID: "cam-01", Battery: "Good"})

	effective := date(t, "2026-03-10")

	first, err := h.engine.Run(ctx, effective)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReportsCreated)
	assert.Equal(t, 0, first.ReportsReplayed)

	second, err := h.engine.Run(ctx, effective)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ReportsCreated)
	assert.Equal(t, 1, second.ReportsReplayed)

	seen, err := h.db.GetDeploymentByID(ctx, seenID)
	require.NoError(t, err)
	assert.Equal(t, effective, seen.LastSeenDate)

	// The silent deployment's counter moved once, not twice.
	silent, err := h.db.GetDeploymentByID(ctx, silentID)
	require.NoError(t, err)
	assert.Equal(t, 1, silent.ConsecutiveMissingDays)

	reports, err := h.db.ListReportsByDeployment(ctx, seenID, 0)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

// TestRunOrphanRow verifies an unknown identity lands in the orphan list and
// mutates nothing.
func TestRunOrphanRow(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	h.seed(t, "cam-01", "Oak Stand")
	h.source.Snap = snapshot(
		camwatch.RawSnapshotRow{LocationID: "cam-01", Battery: "Good"},
		camwatch.RawSnapshotRow{LocationID: "cam-99", CameraID: "Mystery Cam", Battery: "Good"},
	)

	report, err := h.engine.Run(ctx, date(t, "2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.MatchedCount)
	assert.Equal(t, 1, report.OrphanCount)
	require.Len(t, report.Orphans, 1)
	assert.Equal(t, "cam-99", report.Orphans[0].LocationID)
}

// TestRunAlertOnReport verifies a critical-battery row produces a flagged
// status report with the battery reason, not the signal reason.
func TestRunAlertOnReport(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	id := h.seed(t, "cam-01", "Oak Stand")
	h.source.Snap = snapshot(camwatch.RawSnapshotRow{
		LocationID: "cam-01",
		Battery:    "Critical",
		Level:      "0%",
	})

	report, err := h.engine.Run(ctx, date(t, "2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlertCount)

	sr, err := h.db.GetStatusReport(ctx, id, date(t, "2026-03-10"))
	require.NoError(t, err)
	require.NotNil(t, sr)
	assert.True(t, sr.NeedsAttention)
	assert.Equal(t, "critical battery level - immediate replacement required", sr.AlertReason)
}

// TestRunVersionWriteback verifies version drift is written back once and
// not rewritten on an identical later report.
func TestRunVersionWriteback(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, h.db.UpsertDevice(ctx, &database.Device{
		DeviceID:  "cam-01",
		FWVersion: "BTC-1.2",
		Active:    true,
	}))
	_, err := h.db.InsertDeployment(ctx, &database.Deployment{
		HardwareID: "cam-01",
		Active:     true,
	})
	require.NoError(t, err)

	h.source.Snap = snapshot(camwatch.RawSnapshotRow{
		LocationID: "cam-01",
		Battery:    "Good",
		FWVersion:  "BTC-1.3",
	})

	report, err := h.engine.Run(ctx, date(t, "2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.VersionUpdates)

	report, err = h.engine.Run(ctx, date(t, "2026-03-11"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.VersionUpdates)

	dev, err := h.db.GetDeviceByID(ctx, "cam-01")
	require.NoError(t, err)
	assert.Equal(t, "BTC-1.3", dev.FWVersion)
}

// TestNextMissingState exercises the transition math directly.
func TestNextMissingState(t *testing.T) {
	day1 := date(t, "2026-03-10")
	day2 := date(t, "2026-03-11")

	// First silent day.
	tr := nextMissingState(&database.Deployment{}, day1, 2)
	assert.True(t, tr.apply)
	assert.Equal(t, 1, tr.days)
	assert.Equal(t, day1, tr.missingSince)
	assert.False(t, tr.isMissing)

	dep := &database.Deployment{
		MissingSinceDate:       day1,
		LastMissingCountDate:   day1,
		ConsecutiveMissingDays: 1,
	}

	// Replay of the counted date is a no-op; so is an earlier date.
	assert.False(t, nextMissingState(dep, day1, 2).apply)
	assert.False(t, nextMissingState(dep, date(t, "2026-03-09"), 2).apply)

	// The next distinct date increments and flags.
	tr = nextMissingState(dep, day2, 2)
	assert.True(t, tr.apply)
	assert.Equal(t, 2, tr.days)
	assert.Equal(t, day1, tr.missingSince)
	assert.True(t, tr.isMissing)
}
