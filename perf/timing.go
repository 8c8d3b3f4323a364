// Package perf provides timing instrumentation for the reconciliation run.
package perf

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Timer tracks one operation's duration.
type Timer struct {
	name      string
	startTime time.Time
	logger    logrus.FieldLogger
}

// Start begins timing an operation.
func Start(name string, logger logrus.FieldLogger) *Timer {
	return &Timer{
		name:      name,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Stop ends timing and logs the duration.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.startTime)
	if t.logger != nil {
		t.logger.WithFields(logrus.Fields{
			"operation":   t.name,
			"duration_ms": duration.Milliseconds(),
		}).Debug("operation completed")
	}
	return duration
}

// StopWithThreshold logs a warning if duration exceeds threshold. Used on
// the acquisition call, where a slow portal is worth noticing before it
// becomes a timeout.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	duration := time.Since(t.startTime)
	fields := logrus.Fields{
		"operation":   t.name,
		"duration_ms": duration.Milliseconds(),
	}
	if t.logger != nil {
		if duration > threshold {
			t.logger.WithFields(fields).Warn("operation exceeded threshold")
		} else {
			t.logger.WithFields(fields).Debug("operation completed")
		}
	}
	return duration
}

// RunTimings tracks phase durations for one reconciliation run.
type RunTimings struct {
	mu sync.Mutex

	AcquireDuration   time.Duration
	NormalizeDuration time.Duration
	MatchDuration     time.Duration
	PersistDuration   time.Duration
	TotalDuration     time.Duration
}

// NewRunTimings creates a timings tracker.
func NewRunTimings() *RunTimings {
	return &RunTimings{}
}

// Record adds a phase duration by name.
func (m *RunTimings) Record(phase string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch phase {
	case "acquire":
		m.AcquireDuration = d
	case "normalize":
		m.NormalizeDuration = d
	case "match":
		m.MatchDuration = d
	case "persist":
		m.PersistDuration = d
	case "total":
		m.TotalDuration = d
	}
}

// Fields returns the timings as structured log fields.
func (m *RunTimings) Fields() logrus.Fields {
	m.mu.Lock()
	defer m.mu.Unlock()
	return logrus.Fields{
		"acquire_ms":   m.AcquireDuration.Milliseconds(),
		"normalize_ms": m.NormalizeDuration.Milliseconds(),
		"match_ms":     m.MatchDuration.Milliseconds(),
		"persist_ms":   m.PersistDuration.Milliseconds(),
		"total_ms":     m.TotalDuration.Milliseconds(),
	}
}

// Summary returns a formatted summary of the timings.
func (m *RunTimings) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return fmt.Sprintf(`
=== Run Timings ===
Total:      %v
  Acquire:   %v
  Normalize: %v
  Match:     %v
  Persist:   %v
`,
		m.TotalDuration,
		m.AcquireDuration,
		m.NormalizeDuration,
		m.MatchDuration,
		m.PersistDuration,
	)
}
