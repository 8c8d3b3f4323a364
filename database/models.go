package database

import (
	"time"

	camwatch "github.com/trailops/camwatch"
)

// Device is a registry entry for one physical camera. Mutated rarely: the
// engine writes back only version fields, and only when they change.
type Device struct {
	ID           int64
	DeviceID     string
	Brand        string
	Model        string
	SerialNumber string
	FWVersion    string
	CLVersion    string
	HWVersion    string
	Condition    camwatch.Condition
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Deployment is the active placement of a device at a location, carrying the
// engine's per-deployment seen/missing state. Long-lived; mutated every run.
type Deployment struct {
	ID           int64
	HardwareID   string
	LocationName string
	Latitude     *float64
	Longitude    *float64
	Active       bool

	// LastSeenDate is the effective date of the last run that matched this
	// deployment's device. Zero when the device has never reported.
	LastSeenDate camwatch.Date

	// MissingSinceDate is set on the first unmatched run after a seen state
	// and cleared when the device reports again.
	MissingSinceDate camwatch.Date

	// LastMissingCountDate is the effective date used for the most recent
	// missing-day increment. Replaying a snapshot with the same effective
	// date must not increment the counter again.
	LastMissingCountDate camwatch.Date

	IsMissing              bool
	ConsecutiveMissingDays int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// StatusReport is one deployment's reading for one calendar report date.
// Append-only: created once per (deployment, date), never updated.
type StatusReport struct {
	ID                    int64
	DeploymentID          int64
	ReportDate            camwatch.Date
	BatteryStatus         camwatch.BatteryStatus
	SignalLevel           *int
	NetworkLinks          *int
	SDImagesCount         *int
	SDFreeSpaceMB         *int
	ImageQueue            *int
	NeedsAttention        bool
	AlertReason           string
	ReportProcessingDate  camwatch.Date
	SourceReportTimestamp string
	CreatedAt             time.Time
}
