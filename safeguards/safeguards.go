// Package safeguards keeps concurrent camwatch invocations off the same
// registry. Per-deployment write serialization inside a run is handled by
// the engine; this package handles the cross-process case, where a cron run
// overlapping a manual run could race on deployment state.
package safeguards

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// lockInfo is the metadata written to the run lock file.
type lockInfo struct {
	PID       int    `json:"pid"`
	Timestamp int64  `json:"timestamp"`
	Command   string `json:"command"`
}

// RunLock is a filesystem lock held for the duration of one run.
type RunLock struct {
	path   string
	logger logrus.FieldLogger
}

// NewRunLock creates a lock next to the given database path.
func NewRunLock(dbPath string, logger logrus.FieldLogger) *RunLock {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RunLock{
		path:   filepath.Join(filepath.Dir(dbPath), "camwatch.lock"),
		logger: logger.WithField("component", "run-lock"),
	}
}

// Acquire takes the lock. O_EXCL makes acquisition atomic: two overlapping
// invocations cannot both pass an existence check and proceed. A lock left
// behind by a dead process is removed and acquisition retried once.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	info := lockInfo{
		PID:       os.Getpid(),
		Timestamp: time.Now().Unix(),
		Command:   filepath.Base(os.Args[0]),
	}
	if len(os.Args) > 1 {
		info.Command = os.Args[1]
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		existing, readErr := os.ReadFile(l.path)
		if readErr != nil {
			return fmt.Errorf("another camwatch run holds the lock at %s", l.path)
		}
		var held lockInfo
		if json.Unmarshal(existing, &held) != nil {
			return fmt.Errorf("another camwatch run holds the lock at %s", l.path)
		}
		if isProcessRunning(held.PID) {
			return fmt.Errorf("another camwatch run is in progress (PID %d, command %s, started %s)",
				held.PID, held.Command, time.Unix(held.Timestamp, 0).Format(time.RFC3339))
		}

		l.logger.WithFields(logrus.Fields{
			"stale_pid": held.PID,
			"lock_path": l.path,
		}).Warn("removing stale lock from dead process")
		if err := os.Remove(l.path); err != nil {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}

		file, err = os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return fmt.Errorf("failed to create lock file: %w", err)
		}
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	return nil
}

// Release removes the lock file.
func (l *RunLock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.WithError(err).Warn("failed to remove lock file")
	}
}

// isProcessRunning reports whether a PID refers to a live process.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// RecoverableOperation wraps a function with panic recovery. Used around
// per-deployment workers so one bad row cannot take down the whole batch.
func RecoverableOperation(logger logrus.FieldLogger, opName string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.WithFields(logrus.Fields{
				"operation": opName,
				"panic":     r,
				"stack":     string(stack),
			}).Error("recovered from panic in operation")
			err = fmt.Errorf("panic in operation %s: %v", opName, r)
		}
	}()
	return fn()
}
