// Package runlog keeps an operational history of run reports.
//
// Reports land in a local bbolt file keyed by run ID. Run IDs are ULIDs, so
// bucket order is chronological. This is diagnostics, not domain data:
// losing the file loses history, never registry state, and a record failure
// must not fail the run that produced the report.
package runlog

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/trailops/camwatch/reconcile"
)

var runsBucket = []byte("runs")

// Log is a bbolt-backed run-report history.
type Log struct {
	db *bolt.DB
}

// Open opens (or creates) the run log file.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record stores one run report.
func (l *Log) Record(report *reconcile.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	err = l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(report.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}
	return nil
}

// Get retrieves one run report by ID. Returns nil if not found.
func (l *Log) Get(runID string) (*reconcile.RunReport, error) {
	var report *reconcile.RunReport

	err := l.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(runsBucket).Get([]byte(runID))
		if data == nil {
			return nil
		}
		report = &reconcile.RunReport{}
		return json.Unmarshal(data, report)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return report, nil
}

// List returns the most recent reports, newest first, capped at limit
// (0 means no cap).
func (l *Log) List(limit int) ([]*reconcile.RunReport, error) {
	var reports []*reconcile.RunReport

	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(reports) >= limit {
				break
			}
			var r reconcile.RunReport
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt run record %s: %w", k, err)
			}
			reports = append(reports, &r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return reports, nil
}
