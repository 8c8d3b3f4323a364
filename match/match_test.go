package match

import (
	"testing"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/database"
)

func row(locationID string) camwatch.NormalizedRow {
	return camwatch.NormalizedRow{LocationID: locationID}
}

func device(id int64, deviceID string) *database.Device {
	return &database.Device{ID: id, DeviceID: deviceID, Active: true}
}

func deployment(id int64, hardwareID string) *database.Deployment {
	return &database.Deployment{ID: id, HardwareID: hardwareID, Active: true}
}

// TestPartitionExactMatch covers the normalized-identity path, including case
// folding and whitespace.
func TestPartitionExactMatch(t *testing.T) {
	devices := []*database.Device{device(1, "CAM-01")}
	deployments := []*database.Deployment{deployment(10, "CAM-01")}

	result, err := Partition([]camwatch.NormalizedRow{row("  cam-01 ")}, devices, deployments)
	if err != nil {
		t.Fatalf("Partition() error: %v", err)
	}

	if len(result.Matched) != 1 || len(result.Orphans) != 0 || len(result.Unseen) != 0 {
		t.Fatalf("partition = %d/%d/%d matched/orphans/unseen, want 1/0/0",
			len(result.Matched), len(result.Orphans), len(result.Unseen))
	}
	if result.Matched[0].Deployment.ID != 10 {
		t.Errorf("matched deployment ID = %d, want 10", result.Matched[0].Deployment.ID)
	}
}

// TestPartitionNumericEquivalence verifies that numeric identities match
// across leading-zero spellings.
func TestPartitionNumericEquivalence(t *testing.T) {
	devices := []*database.Device{device(1, "02")}
	deployments := []*database.Deployment{deployment(10, "02")}

	for _, identity := range []string{"2", "02", "002"} {
		result, err := Partition([]camwatch.NormalizedRow{row(identity)}, devices, deployments)
		if err != nil {
			t.Fatalf("Partition(%q) error: %v", identity, err)
		}
		if len(result.Matched) != 1 {
			t.Errorf("identity %q: got %d matches, want 1", identity, len(result.Matched))
		}
	}

	// Numeric equivalence never crosses into text identities.
	result, err := Partition([]camwatch.NormalizedRow{row("cam-2")}, devices, deployments)
	if err != nil {
		t.Fatalf("Partition() error: %v", err)
	}
	if len(result.Orphans) != 1 {
		t.Errorf("text identity against numeric device: got %d orphans, want 1", len(result.Orphans))
	}
}

// TestPartitionAmbiguousNumeric verifies that a numeric row identity matching
// more than one registry device is refused rather than resolved arbitrarily.
func TestPartitionAmbiguousNumeric(t *testing.T) {
	devices := []*database.Device{device(1, "02"), device(2, "002")}
	deployments := []*database.Deployment{deployment(10, "02"), deployment(11, "002")}

	result, err := Partition([]camwatch.NormalizedRow{row("2")}, devices, deployments)
	if err != nil {
		t.Fatalf("Partition() error: %v", err)
	}

	if len(result.Orphans) != 1 {
		t.Fatalf("got %d orphans, want 1", len(result.Orphans))
	}
	if result.Orphans[0].Reason != ReasonAmbiguousNumeric {
		t.Errorf("orphan reason = %q, want %q", result.Orphans[0].Reason, ReasonAmbiguousNumeric)
	}

	// An exact spelling still resolves cleanly.
	result, err = Partition([]camwatch.NormalizedRow{row("002")}, devices, deployments)
	if err != nil {
		t.Fatalf("Partition() error: %v", err)
	}
	if len(result.Matched) != 1 || result.Matched[0].Device.ID != 2 {
		t.Errorf("exact spelling did not resolve to device 2: %+v", result.Matched)
	}
}

// TestPartitionOrphansAndUnseen covers the two non-matching directions: rows
// with no registry device, rows whose device has no active deployment, and
// deployments no row reported for.
func TestPartitionOrphansAndUnseen(t *testing.T) {
	devices := []*database.Device{
		device(1, "cam-01"),
		device(2, "cam-02"), // registered but never deployed
	}
	deployments := []*database.Deployment{
		deployment(10, "cam-01"),
		deployment(11, "cam-03"), // deployed but silent this run
	}
	rows := []camwatch.NormalizedRow{
		row("cam-01"),
		row("cam-02"),
		row("cam-99"),
	}

	result, err := Partition(rows, devices, deployments)
	if err != nil {
		t.Fatalf("Partition() error: %v", err)
	}

	if len(result.Matched) != 1 {
		t.Errorf("got %d matches, want 1", len(result.Matched))
	}
	if len(result.Orphans) != 2 {
		t.Fatalf("got %d orphans, want 2", len(result.Orphans))
	}
	if result.Orphans[0].Reason != ReasonNoDeployment {
		t.Errorf("cam-02 orphan reason = %q, want %q", result.Orphans[0].Reason, ReasonNoDeployment)
	}
	if result.Orphans[1].Reason != ReasonUnknownDevice {
		t.Errorf("cam-99 orphan reason = %q, want %q", result.Orphans[1].Reason, ReasonUnknownDevice)
	}
	if len(result.Unseen) != 1 || result.Unseen[0].ID != 11 {
		t.Errorf("unseen = %+v, want deployment 11 only", result.Unseen)
	}
}
