package camwatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawSnapshotRow is one per-device row exactly as the fleet-report acquirer
// extracted it from the vendor portal. All cell values are kept as raw text;
// typing happens in the normalize package. Rows are ephemeral: they live for
// one run and are never persisted.
type RawSnapshotRow struct {
	// Sequence is the row's position in the vendor report.
	Sequence int `json:"sequence"`

	// LocationID is the vendor's per-camera location number. This is the
	// identity used to match against the device registry.
	LocationID string `json:"location_id"`

	// CameraID is the vendor's display name for the camera.
	CameraID string `json:"camera_id"`

	// Level is the raw signal text (e.g. "85% (Good)").
	Level string `json:"level"`

	// Links is the raw network-link count text.
	Links string `json:"links"`

	// Battery is the raw battery status text, passed through verbatim.
	Battery string `json:"battery"`

	// BatteryDays is the raw estimated-battery-days text.
	BatteryDays string `json:"battery_days"`

	// ImageQueue is the raw pending-upload count text.
	ImageQueue string `json:"image_queue"`

	// SDImages is the raw on-card image count text.
	SDImages string `json:"sd_images"`

	// SDFreeSpace is the raw free-space text, megabytes as given by the source.
	SDFreeSpace string `json:"sd_free_space"`

	// HWVersion, FWVersion and CLVersion are the vendor-reported hardware,
	// firmware and cellular-module versions.
	HWVersion string `json:"hw_version"`
	FWVersion string `json:"fw_version"`
	CLVersion string `json:"cl_version"`

	// ExtractedAt is the wall-clock time the acquirer extracted this row.
	ExtractedAt time.Time `json:"extracted_at"`
}

// Snapshot is one acquisition run's full set of rows plus the report-level
// "last updated" text the vendor shows for the whole fleet report.
type Snapshot struct {
	// Rows are the per-device report rows, in report order.
	Rows []RawSnapshotRow `json:"rows"`

	// ReportUpdatedAt is the vendor's free-text "report last updated" value.
	// It is treated as opaque and unreliable; see EffectiveDate.
	ReportUpdatedAt string `json:"report_updated_at"`

	// ExtractedAt is when the acquirer produced this snapshot.
	ExtractedAt time.Time `json:"extracted_at"`
}

// Marshal implements the wire codec for Snapshot.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal implements the wire codec for Snapshot.
func (s *Snapshot) Unmarshal(data []byte) error {
	return json.Unmarshal(data, s)
}

// ParseNote records a non-fatal, row-level parsing problem. Notes flow into
// the Run Report; they never fail a run.
type ParseNote struct {
	LocationID string `json:"location_id"`
	Field      string `json:"field"`
	Raw        string `json:"raw"`
	Message    string `json:"message"`
}

func (n ParseNote) String() string {
	return fmt.Sprintf("location %s field %s: %s (raw %q)", n.LocationID, n.Field, n.Message, n.Raw)
}

// NormalizedRow is a RawSnapshotRow with typed, nullable fields. Numeric
// fields are nil when the source cell was empty, a placeholder ("N/A", "-"),
// or unparseable. Battery is kept verbatim; enum coercion happens at the
// persistence boundary via BatteryStatusFromRaw.
type NormalizedRow struct {
	Sequence      int
	LocationID    string
	CameraID      string
	SignalLevel   *int
	NetworkLinks  *int
	Battery       string
	BatteryDays   *int
	ImageQueue    *int
	SDImages      *int
	SDFreeSpaceMB *int
	HWVersion     string
	FWVersion     string
	CLVersion     string
	ExtractedAt   time.Time
}

// BatteryStatus is the persisted battery enum. The vendor text is only
// coerced to this enum when a StatusReport row is written.
type BatteryStatus string

// BatteryStatus values.
const (
	BatteryGood     BatteryStatus = "Good"
	BatteryLow      BatteryStatus = "Low"
	BatteryCritical BatteryStatus = "Critical"
	BatteryUnknown  BatteryStatus = "Unknown"
)

// BatteryStatusFromRaw coerces the vendor's raw battery text to the persisted
// enum. Unrecognized values map to Unknown rather than failing.
func BatteryStatusFromRaw(raw string) BatteryStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "good", "ok", "full", "high":
		return BatteryGood
	case "low":
		return BatteryLow
	case "critical", "crit", "empty":
		return BatteryCritical
	default:
		return BatteryUnknown
	}
}

// Condition is the registry's device condition enum.
type Condition string

// Condition values.
const (
	ConditionGood         Condition = "good"
	ConditionQuestionable Condition = "questionable"
	ConditionPoor         Condition = "poor"
	ConditionRetired      Condition = "retired"
)

// Date is a calendar date with no time-of-day or zone component. All
// missing-day math is done on explicit Date values threaded through the
// engine, never on an implicit "today".
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO "2006-01-02" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// String formats the date as ISO "2006-01-02".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysSince returns the number of whole days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Time().Sub(other.Time()) / (24 * time.Hour))
}

// vendorTimestampLayouts are the "report last updated" formats observed in
// the vendor portal. The vendor has changed this format before, so parsing is
// best-effort and falls back to the extraction date.
var vendorTimestampLayouts = []string{
	"01/02/2006 3:04 PM",
	"01/02/2006 15:04",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"Jan 2, 2006 3:04 PM",
}

// EffectiveDate derives the run's effective date: the date of the vendor's
// "report last updated" value when it parses against a known layout, else the
// extraction date. Callers that have a more trustworthy upstream signal can
// override the result entirely (the vendor timestamp is known to often just
// reflect extraction time).
func EffectiveDate(reportUpdatedAt string, extractedAt time.Time) Date {
	s := strings.TrimSpace(reportUpdatedAt)
	if s != "" {
		for _, layout := range vendorTimestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return DateOf(t)
			}
		}
	}
	return DateOf(extractedAt)
}
