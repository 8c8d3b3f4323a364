// Package reconcile runs one snapshot against the registry.
//
// A run acquires a snapshot, normalizes its rows, partitions them against the
// active registry, applies the seen/missing state transitions, writes status
// reports, and returns a run report. Acquisition and store failures are fatal
// and abort the run before any state mutation; everything after the snapshot
// is fail-forward, so one deployment's write failure never stops the rest.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/alert"
	"github.com/trailops/camwatch/database"
	"github.com/trailops/camwatch/match"
	"github.com/trailops/camwatch/normalize"
	"github.com/trailops/camwatch/perf"
	"github.com/trailops/camwatch/safeguards"
	"github.com/trailops/camwatch/source"
)

// Config holds the engine's tunables.
type Config struct {
	// MissingFlagThreshold is the consecutive-missing-day count at which a
	// deployment's is_missing flag flips on.
	MissingFlagThreshold int

	// WriteConcurrency bounds concurrent persistence work. Writes are
	// serialized per deployment by construction: every deployment lands in
	// exactly one partition and gets exactly one worker task.
	WriteConcurrency int

	// Alert holds the alert evaluator thresholds.
	Alert alert.Config
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MissingFlagThreshold: 1,
		WriteConcurrency:     4,
		Alert:                alert.DefaultConfig(),
	}
}

// Dependencies are the engine's collaborators, supplied by the command layer.
type Dependencies struct {
	DB     *database.DB
	Source source.Acquirer
	Logger *logrus.Logger
}

// Engine reconciles snapshots against the registry.
type Engine struct {
	cfg  Config
	deps Dependencies
}

// New creates an engine.
func New(cfg Config, deps Dependencies) *Engine {
	if cfg.WriteConcurrency <= 0 {
		cfg.WriteConcurrency = DefaultConfig().WriteConcurrency
	}
	return &Engine{cfg: cfg, deps: deps}
}

// OrphanRecord is one snapshot row that resolved to no active deployment.
type OrphanRecord struct {
	LocationID string `json:"location_id"`
	CameraID   string `json:"camera_id"`
	Reason     string `json:"reason"`
}

// WriteFailure is one deployment whose persistence update failed.
type WriteFailure struct {
	DeploymentID int64  `json:"deployment_id"`
	HardwareID   string `json:"hardware_id"`
	Error        string `json:"error"`
}

// RunReport aggregates one run's outcome. It is operational output, not
// domain data: it is logged and recorded in the run log regardless of
// outcome, and losing it never affects registry state.
type RunReport struct {
	RunID         string        `json:"run_id"`
	Source        string        `json:"source"`
	EffectiveDate camwatch.Date `json:"effective_date"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`

	RowCount     int `json:"row_count"`
	MatchedCount int `json:"matched_count"`
	OrphanCount  int `json:"orphan_count"`
	UnseenCount  int `json:"unseen_count"`

	ReportsCreated  int `json:"reports_created"`
	ReportsReplayed int `json:"reports_replayed"`
	VersionUpdates  int `json:"version_updates"`
	MissingFlagged  int `json:"missing_flagged"`
	AlertCount      int `json:"alert_count"`

	Orphans       []OrphanRecord       `json:"orphans,omitempty"`
	ParseNotes    []camwatch.ParseNote `json:"parse_notes,omitempty"`
	WriteFailures []WriteFailure       `json:"write_failures,omitempty"`
}

// Failed reports whether any per-deployment write failed. A run with
// failures still exits zero; the report carries the detail.
func (r *RunReport) Failed() bool {
	return len(r.WriteFailures) > 0
}

// Run executes one reconciliation. overrideDate forces the effective date
// when the caller has a better signal than the vendor's report timestamp;
// pass the zero Date to derive it from the snapshot.
func (e *Engine) Run(ctx context.Context, overrideDate camwatch.Date) (*RunReport, error) {
	report := &RunReport{
		RunID:     camwatch.NewRunID(),
		Source:    e.deps.Source.Describe(),
		StartedAt: time.Now(),
	}
	log := e.deps.Logger.WithField("run_id", report.RunID)
	timings := perf.NewRunTimings()

	acquireTimer := perf.Start("acquire_snapshot", log)
	snap, err := e.deps.Source.Acquire(ctx)
	timings.Record("acquire", acquireTimer.StopWithThreshold(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("acquisition failed: %w", err)
	}

	report.EffectiveDate = overrideDate
	if report.EffectiveDate.IsZero() {
		report.EffectiveDate = camwatch.EffectiveDate(snap.ReportUpdatedAt, snap.ExtractedAt)
	}
	report.RowCount = len(snap.Rows)

	log.WithFields(logrus.Fields{
		"rows":           len(snap.Rows),
		"effective_date": report.EffectiveDate.String(),
		"source":         report.Source,
	}).Info("snapshot acquired")

	normalizeTimer := perf.Start("normalize_rows", log)
	rows, notes := normalize.Rows(snap.Rows)
	timings.Record("normalize", normalizeTimer.Stop())
	report.ParseNotes = notes

	devices, err := e.deps.DB.ListActiveDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: %w", err)
	}
	deployments, err := e.deps.DB.ListActiveDeployments(ctx)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: %w", err)
	}

	matchTimer := perf.Start("match_partition", log)
	result, err := match.Partition(rows, devices, deployments)
	timings.Record("match", matchTimer.Stop())
	if err != nil {
		return nil, fmt.Errorf("matching failed: %w", err)
	}

	report.MatchedCount = len(result.Matched)
	report.OrphanCount = len(result.Orphans)
	report.UnseenCount = len(result.Unseen)
	for _, o := range result.Orphans {
		report.Orphans = append(report.Orphans, OrphanRecord{
			LocationID: o.Row.LocationID,
			CameraID:   o.Row.CameraID,
			Reason:     o.Reason,
		})
		log.WithFields(logrus.Fields{
			"location_id": o.Row.LocationID,
			"reason":      o.Reason,
		}).Warn("orphan snapshot row")
	}

	persistTimer := perf.Start("persist", log)
	e.applyAll(ctx, log, report, snap, result)
	timings.Record("persist", persistTimer.Stop())

	report.FinishedAt = time.Now()
	timings.Record("total", report.FinishedAt.Sub(report.StartedAt))
	log.WithFields(timings.Fields()).Debug("run timings")

	log.WithFields(logrus.Fields{
		"matched":         report.MatchedCount,
		"orphans":         report.OrphanCount,
		"unseen":          report.UnseenCount,
		"reports_created": report.ReportsCreated,
		"version_updates": report.VersionUpdates,
		"missing_flagged": report.MissingFlagged,
		"write_failures":  len(report.WriteFailures),
	}).Info("run complete")

	return report, nil
}

// applyAll fans the per-deployment work out over a bounded worker group and
// folds the outcomes into the report under one mutex.
func (e *Engine) applyAll(ctx context.Context, log logrus.FieldLogger, report *RunReport, snap *camwatch.Snapshot, result *match.Result) {
	var mu sync.Mutex

	fail := func(deploymentID int64, hardwareID string, err error) {
		log.WithFields(logrus.Fields{
			"deployment_id": deploymentID,
			"hardware_id":   hardwareID,
		}).WithError(err).Error("deployment write failed")
		mu.Lock()
		report.WriteFailures = append(report.WriteFailures, WriteFailure{
			DeploymentID: deploymentID,
			HardwareID:   hardwareID,
			Error:        err.Error(),
		})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.WriteConcurrency)

	for _, m := range result.Matched {
		m := m
		g.Go(func() error {
			var out matchedOutcome
			err := safeguards.RecoverableOperation(log, "apply_matched", func() error {
				var err error
				out, err = e.applyMatched(gctx, snap, report.EffectiveDate, m)
				return err
			})
			if err != nil {
				fail(m.Deployment.ID, m.Deployment.HardwareID, err)
				return nil
			}
			mu.Lock()
			if out.created {
				report.ReportsCreated++
			} else {
				report.ReportsReplayed++
			}
			report.VersionUpdates += out.versionUpdates
			if out.alerted {
				report.AlertCount++
			}
			mu.Unlock()
			return nil
		})
	}

	for _, dep := range result.Unseen {
		dep := dep
		g.Go(func() error {
			var out unseenOutcome
			err := safeguards.RecoverableOperation(log, "apply_unseen", func() error {
				var err error
				out, err = e.applyUnseen(gctx, report.EffectiveDate, dep)
				return err
			})
			if err != nil {
				fail(dep.ID, dep.HardwareID, err)
				return nil
			}
			mu.Lock()
			if out.flagged {
				report.MissingFlagged++
			}
			if out.alerted {
				report.AlertCount++
			}
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors (fail-forward), so Wait only observes
	// context cancellation.
	g.Wait()
}

type matchedOutcome struct {
	created        bool
	versionUpdates int
	alerted        bool
}

// applyMatched handles one reporting deployment: seen transition, version
// write-back, alert evaluation, status-report insert.
func (e *Engine) applyMatched(ctx context.Context, snap *camwatch.Snapshot, effective camwatch.Date, m match.Match) (matchedOutcome, error) {
	var out matchedOutcome

	if err := e.deps.DB.MarkDeploymentSeen(ctx, m.Deployment.ID, effective); err != nil {
		return out, err
	}

	updates, err := e.deps.DB.UpdateDeviceVersions(ctx, m.Device.DeviceID, m.Row.FWVersion, m.Row.CLVersion, m.Row.HWVersion)
	if err != nil {
		return out, err
	}
	out.versionUpdates = len(updates)
	for _, u := range updates {
		e.deps.Logger.WithFields(logrus.Fields{
			"device_id": m.Device.DeviceID,
			"field":     u.Field,
			"old":       u.Old,
			"new":       u.New,
		}).Info("device version updated")
	}

	row := m.Row
	decision := alert.Evaluate(e.cfg.Alert, alert.Input{Row: &row})
	out.alerted = decision.NeedsAttention

	// Signal above 100 is vendor noise; store null rather than an
	// out-of-range reading.
	signal := row.SignalLevel
	if signal != nil && *signal > 100 {
		signal = nil
	}

	created, err := e.deps.DB.InsertStatusReport(ctx, &database.StatusReport{
		DeploymentID:          m.Deployment.ID,
		ReportDate:            effective,
		BatteryStatus:         camwatch.BatteryStatusFromRaw(row.Battery),
		SignalLevel:           signal,
		NetworkLinks:          row.NetworkLinks,
		SDImagesCount:         row.SDImages,
		SDFreeSpaceMB:         row.SDFreeSpaceMB,
		ImageQueue:            row.ImageQueue,
		NeedsAttention:        decision.NeedsAttention,
		AlertReason:           decision.Reason,
		ReportProcessingDate:  camwatch.DateOf(time.Now()),
		SourceReportTimestamp: snap.ReportUpdatedAt,
	})
	if err != nil {
		return out, err
	}
	out.created = created

	return out, nil
}

type unseenOutcome struct {
	flagged bool
	alerted bool
}

// missingTransition is the next missing state for an unseen deployment.
type missingTransition struct {
	apply        bool
	missingSince camwatch.Date
	lastCount    camwatch.Date
	days         int
	isMissing    bool
}

// nextMissingState computes the missing-state transition for a deployment
// that went unmatched this run. The counter increments at most once per
// distinct effective date: replaying a snapshot for an already-counted date
// is a no-op.
func nextMissingState(dep *database.Deployment, effective camwatch.Date, threshold int) missingTransition {
	if !dep.LastMissingCountDate.IsZero() && !effective.After(dep.LastMissingCountDate) {
		return missingTransition{}
	}

	t := missingTransition{
		apply:        true,
		missingSince: dep.MissingSinceDate,
		lastCount:    effective,
		days:         dep.ConsecutiveMissingDays + 1,
	}
	if t.missingSince.IsZero() {
		t.missingSince = effective
	}
	t.isMissing = t.days >= threshold
	return t
}

// applyUnseen handles one silent deployment: missing transition plus alert
// evaluation against the post-transition state.
func (e *Engine) applyUnseen(ctx context.Context, effective camwatch.Date, dep *database.Deployment) (unseenOutcome, error) {
	var out unseenOutcome

	t := nextMissingState(dep, effective, e.cfg.MissingFlagThreshold)
	days := dep.ConsecutiveMissingDays
	if t.apply {
		if err := e.deps.DB.MarkDeploymentMissing(ctx, dep.ID, t.missingSince, t.lastCount, t.days, t.isMissing); err != nil {
			return out, err
		}
		out.flagged = t.isMissing && !dep.IsMissing
		days = t.days
	}

	decision := alert.Evaluate(e.cfg.Alert, alert.Input{ConsecutiveMissingDays: days})
	out.alerted = decision.NeedsAttention
	if decision.NeedsAttention {
		e.deps.Logger.WithFields(logrus.Fields{
			"deployment_id": dep.ID,
			"hardware_id":   dep.HardwareID,
			"location":      dep.LocationName,
			"reason":        decision.Reason,
		}).Warn("deployment needs attention")
	}

	return out, nil
}
