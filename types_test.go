package camwatch

import (
	"testing"
	"time"
)

// TestEffectiveDate_VendorTimestampWins verifies that a parseable vendor
// "last updated" value determines the effective date.
func TestEffectiveDate_VendorTimestampWins(t *testing.T) {
	extracted := time.Date(2026, time.March, 9, 6, 30, 0, 0, time.UTC)

	got := EffectiveDate("03/08/2026 11:42 PM", extracted)
	want := Date{Year: 2026, Month: time.March, Day: 8}
	if got != want {
		t.Errorf("EffectiveDate = %s, want %s", got, want)
	}
}

// TestEffectiveDate_FallsBackToExtraction verifies the extraction-date
// fallback for empty or unparseable vendor timestamps.
func TestEffectiveDate_FallsBackToExtraction(t *testing.T) {
	extracted := time.Date(2026, time.March, 9, 6, 30, 0, 0, time.UTC)
	want := Date{Year: 2026, Month: time.March, Day: 9}

	for _, raw := range []string{"", "   ", "a few minutes ago", "yesterday"} {
		if got := EffectiveDate(raw, extracted); got != want {
			t.Errorf("EffectiveDate(%q) = %s, want extraction date %s", raw, got, want)
		}
	}
}

// TestDate_Ordering covers the comparison helpers the missing-day math
// depends on.
func TestDate_Ordering(t *testing.T) {
	a := Date{Year: 2026, Month: time.March, Day: 8}
	b := a.AddDays(1)

	if !b.After(a) || !a.Before(b) {
		t.Error("AddDays(1) must produce a strictly later date")
	}
	if b.DaysSince(a) != 1 {
		t.Errorf("DaysSince = %d, want 1", b.DaysSince(a))
	}
	if a.After(a) || a.Before(a) {
		t.Error("a date is neither before nor after itself")
	}
}

// TestDate_StringRoundTrip verifies the ISO persistence format.
func TestDate_StringRoundTrip(t *testing.T) {
	d := Date{Year: 2026, Month: time.March, Day: 8}
	parsed, err := ParseDate(d.String())
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", d.String(), err)
	}
	if parsed != d {
		t.Errorf("round trip %s != %s", parsed, d)
	}
}

// TestBatteryStatusFromRaw verifies the persistence-boundary enum coercion,
// including the Unknown mapping for unrecognized values.
func TestBatteryStatusFromRaw(t *testing.T) {
	cases := map[string]BatteryStatus{
		"Good":     BatteryGood,
		" good ":   BatteryGood,
		"OK":       BatteryGood,
		"Low":      BatteryLow,
		"CRITICAL": BatteryCritical,
		"empty":    BatteryCritical,
		"":         BatteryUnknown,
		"76%":      BatteryUnknown,
		"n/a":      BatteryUnknown,
	}
	for raw, want := range cases {
		if got := BatteryStatusFromRaw(raw); got != want {
			t.Errorf("BatteryStatusFromRaw(%q) = %s, want %s", raw, got, want)
		}
	}
}
