package camwatch

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// NormalizeDeviceID canonicalizes a device identity for matching: trimmed
// whitespace, case-folded. This is the single source of truth for how the
// snapshot's location numbers and the registry's device IDs are compared.
func NormalizeDeviceID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NumericID parses an identity as a plain non-negative integer, ignoring
// leading zeros, so "2", "02" and "002" are all equivalent. The second return
// is false when the identity is empty or contains any non-digit rune.
func NumericID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// All-digit strings longer than an int64 are out of range, not IDs.
		return 0, false
	}
	return n, true
}

// SameDeviceID reports whether two identities refer to the same device:
// either their normalized forms are equal, or both are numeric and equal as
// integers. Symmetric by construction.
func SameDeviceID(a, b string) bool {
	na, nb := NormalizeDeviceID(a), NormalizeDeviceID(b)
	if na == nb {
		return true
	}
	ia, okA := NumericID(na)
	ib, okB := NumericID(nb)
	return okA && okB && ia == ib
}

// NewRunID returns a lexically sortable identifier for one reconciliation
// run. Run IDs key the operational run log and appear in every log line of a
// run so that a run's output can be grepped out of a shared journal.
func NewRunID() string {
	return "run_" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
