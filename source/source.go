// Package source acquires fleet-report snapshots for the reconciliation run.
//
// An Acquirer is the single blocking external call of a run. Acquisition is
// all-or-nothing: either a complete snapshot is returned or the run aborts
// before any reconciliation happens. A partial snapshot is never reconciled.
package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	camwatch "github.com/trailops/camwatch"
)

// maxSnapshotSize bounds snapshot payloads. The fleet report is a few hundred
// rows of text; anything near this size is a broken upstream, not data.
const maxSnapshotSize = 32 * 1024 * 1024

// Acquirer produces one complete snapshot per call.
type Acquirer interface {
	Acquire(ctx context.Context) (*camwatch.Snapshot, error)

	// Describe names the acquirer's target for logs and error messages.
	Describe() string
}

// FileSource reads a snapshot JSON file dropped by the portal scraper.
type FileSource struct {
	path string
}

// NewFileSource returns an acquirer reading from the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Describe implements Acquirer.
func (f *FileSource) Describe() string {
	return "file:" + f.path
}

// Acquire implements Acquirer.
func (f *FileSource) Acquire(ctx context.Context) (*camwatch.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot file: %w", err)
	}
	if info.Size() > maxSnapshotSize {
		return nil, fmt.Errorf("snapshot file too large: %d bytes (max %d)", info.Size(), maxSnapshotSize)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap camwatch.Snapshot
	if err := snap.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", f.path, err)
	}
	if snap.ExtractedAt.IsZero() {
		snap.ExtractedAt = info.ModTime()
	}

	return &snap, nil
}

// RetryConfig bounds acquisition retries. Acquisition gets at most one retry;
// if that fails too, the run aborts.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64

	// Interval is the fixed wait between attempts.
	Interval time.Duration
}

// DefaultRetryConfig returns the default retry policy: one retry after a
// short constant interval.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 1,
		Interval:   5 * time.Second,
	}
}

// retrying decorates an Acquirer with the bounded retry policy.
type retrying struct {
	inner  Acquirer
	cfg    RetryConfig
	logger logrus.FieldLogger
}

// WithRetry wraps an acquirer so transient acquisition failures get one more
// chance before the run gives up.
func WithRetry(inner Acquirer, cfg RetryConfig, logger logrus.FieldLogger) Acquirer {
	return &retrying{inner: inner, cfg: cfg, logger: logger}
}

// Describe implements Acquirer.
func (r *retrying) Describe() string {
	return r.inner.Describe()
}

// Acquire implements Acquirer.
func (r *retrying) Acquire(ctx context.Context) (*camwatch.Snapshot, error) {
	var snap *camwatch.Snapshot
	attempt := 0

	operation := func() error {
		attempt++
		s, err := r.inner.Acquire(ctx)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"source":  r.inner.Describe(),
				"attempt": attempt,
			}).WithError(err).Warn("snapshot acquisition failed")
			return err
		}
		snap = s
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.Interval), r.cfg.MaxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("snapshot acquisition from %s failed after %d attempts: %w", r.inner.Describe(), attempt, err)
	}

	return snap, nil
}
