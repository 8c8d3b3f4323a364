package safeguards

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// TestRunLockExcludes verifies a held lock blocks a second acquisition and
// releasing it unblocks.
func TestRunLockExcludes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	first := NewRunLock(dbPath, testLogger())
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	second := NewRunLock(dbPath, testLogger())
	if err := second.Acquire(); err == nil {
		t.Fatal("second Acquire() succeeded while lock held")
	}

	first.Release()
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	second.Release()
}

// TestRunLockRemovesStale verifies a lock left by a dead process does not
// block forever.
func TestRunLockRemovesStale(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "registry.db")

	// A lock file naming a PID that cannot be running.
	stale, err := json.Marshal(lockInfo{PID: 1 << 30, Timestamp: time.Now().Unix(), Command: "run"})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "camwatch.lock"), stale, 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	l := NewRunLock(dbPath, testLogger())
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire() over stale lock error: %v", err)
	}
	l.Release()
}

// TestRecoverableOperation verifies a panic becomes an error instead of
// unwinding the batch.
func TestRecoverableOperation(t *testing.T) {
	err := RecoverableOperation(testLogger(), "boom", func() error {
		panic("bad row")
	})
	if err == nil {
		t.Fatal("expected error from panicking operation")
	}

	wantErr := errors.New("plain failure")
	if err := RecoverableOperation(testLogger(), "plain", func() error { return wantErr }); err != wantErr {
		t.Errorf("got %v, want the function's own error", err)
	}

	if err := RecoverableOperation(testLogger(), "ok", func() error { return nil }); err != nil {
		t.Errorf("got %v for clean operation, want nil", err)
	}
}
