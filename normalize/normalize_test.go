package normalize

import (
	"testing"
	"time"

	camwatch "github.com/trailops/camwatch"
)

// TestRow_NumericFieldsNullOrNonNegative is the core normalizer property:
// every numeric output is either nil or a non-negative integer, for any raw
// input, and normalization never panics or errors.
func TestRow_NumericFieldsNullOrNonNegative(t *testing.T) {
	raws := []camwatch.RawSnapshotRow{
		{LocationID: "1", Level: "85% (Good)", Links: "3", Battery: "Good", SDImages: "1,204", SDFreeSpace: "29,312 MB", ImageQueue: "0"},
		{LocationID: "2", Level: "", Links: "N/A", Battery: "", SDImages: "-", SDFreeSpace: "n/a", ImageQueue: "--"},
		{LocationID: "3", Level: "garbage", Links: "??", Battery: "76%", SDImages: "many", SDFreeSpace: "full", ImageQueue: "err"},
		{LocationID: "4", Level: "-12", Links: "-5", BatteryDays: "-3"},
		{LocationID: "5", Level: "999999999999999999999999", Links: "999999999999999999999999"},
	}

	for _, raw := range raws {
		row, _ := Row(raw)
		for name, p := range map[string]*int{
			"SignalLevel":   row.SignalLevel,
			"NetworkLinks":  row.NetworkLinks,
			"BatteryDays":   row.BatteryDays,
			"ImageQueue":    row.ImageQueue,
			"SDImages":      row.SDImages,
			"SDFreeSpaceMB": row.SDFreeSpaceMB,
		} {
			if p != nil && *p < 0 {
				t.Errorf("location %s: %s = %d, want nil or >= 0", raw.LocationID, name, *p)
			}
		}
	}
}

// TestRow_SignalExtraction verifies first-integer extraction from decorated
// signal text.
func TestRow_SignalExtraction(t *testing.T) {
	cases := []struct {
		raw  string
		want *int
	}{
		{"85% (Good)", intp(85)},
		{"Signal: 42", intp(42)},
		{"0", intp(0)},
		{"(Poor)", nil},
		{"", nil},
		{"N/A", nil},
	}
	for _, c := range cases {
		row, _ := Row(camwatch.RawSnapshotRow{Level: c.raw})
		if !eq(row.SignalLevel, c.want) {
			t.Errorf("signal %q = %v, want %v", c.raw, fmtp(row.SignalLevel), fmtp(c.want))
		}
	}
}

// TestRow_StripDigitsRule verifies the strip-non-digits parse for count
// fields, including thousands separators and units.
func TestRow_StripDigitsRule(t *testing.T) {
	row, _ := Row(camwatch.RawSnapshotRow{
		SDImages:    "1,204 images",
		SDFreeSpace: "29,312 MB",
		ImageQueue:  "queue: 17",
	})
	if row.SDImages == nil || *row.SDImages != 1204 {
		t.Errorf("SDImages = %v, want 1204", fmtp(row.SDImages))
	}
	if row.SDFreeSpaceMB == nil || *row.SDFreeSpaceMB != 29312 {
		t.Errorf("SDFreeSpaceMB = %v, want 29312", fmtp(row.SDFreeSpaceMB))
	}
	if row.ImageQueue == nil || *row.ImageQueue != 17 {
		t.Errorf("ImageQueue = %v, want 17", fmtp(row.ImageQueue))
	}
}

// TestRow_BatteryPassthrough verifies that battery text is not coerced at
// this layer.
func TestRow_BatteryPassthrough(t *testing.T) {
	for _, raw := range []string{"Good", "Critical", "76%", "weird value"} {
		row, _ := Row(camwatch.RawSnapshotRow{Battery: raw})
		if row.Battery != raw {
			t.Errorf("battery %q passed through as %q", raw, row.Battery)
		}
	}
}

// TestRow_ParseNotes verifies that unparseable data-bearing cells produce
// notes while placeholders stay silent.
func TestRow_ParseNotes(t *testing.T) {
	_, notes := Row(camwatch.RawSnapshotRow{LocationID: "7", Links: "N/A", SDImages: "lots"})
	if len(notes) != 1 {
		t.Fatalf("got %d notes, want 1: %v", len(notes), notes)
	}
	if notes[0].Field != FieldSDImages || notes[0].LocationID != "7" {
		t.Errorf("unexpected note %+v", notes[0])
	}
}

// TestRows_OrderAndAggregation verifies order preservation and note
// aggregation across a snapshot.
func TestRows_OrderAndAggregation(t *testing.T) {
	raws := []camwatch.RawSnapshotRow{
		{Sequence: 1, LocationID: "1", Level: "90%", ExtractedAt: time.Now()},
		{Sequence: 2, LocationID: "2", Level: "junk"},
	}
	rows, notes := Rows(raws)
	if len(rows) != 2 || rows[0].LocationID != "1" || rows[1].LocationID != "2" {
		t.Fatalf("row order not preserved: %+v", rows)
	}
	if len(notes) != 1 {
		t.Errorf("got %d notes, want 1", len(notes))
	}
}

// TestFieldKey verifies header folding to canonical keys.
func TestFieldKey(t *testing.T) {
	cases := map[string]string{
		"SD Images":     FieldSDImages,
		"sd_images":     FieldSDImages,
		"BatteryDays":   FieldBatteryDays,
		" Image Queue ": FieldImageQueue,
	}
	for in, want := range cases {
		if got := FieldKey(in); got != want {
			t.Errorf("FieldKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func intp(n int) *int { return &n }

func eq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtp(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
