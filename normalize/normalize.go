// Package normalize turns raw fleet-report cells into typed, nullable values.
//
// The vendor portal emits everything as loosely formatted text ("85% (Good)",
// "1,234", "N/A"). Rather than scattering ad-hoc string munging through the
// pipeline, this package declares a registry of named field parsers and
// applies it to each RawSnapshotRow. Normalization is pure and total: it
// never returns an error. Cells that cannot be parsed become nil and are
// recorded as low-severity parse notes for the Run Report.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"

	camwatch "github.com/trailops/camwatch"
)

// Canonical field keys, snake_case. Acquirer header text is folded to these
// via strcase so that minor vendor header drift ("SD Images" vs "SDImages")
// keeps resolving to the same parser.
const (
	FieldLevel       = "level"
	FieldLinks       = "links"
	FieldBattery     = "battery"
	FieldBatteryDays = "battery_days"
	FieldImageQueue  = "image_queue"
	FieldSDImages    = "sd_images"
	FieldSDFreeSpace = "sd_free_space"
)

// FieldKey folds a raw header or field name to its canonical snake_case key.
func FieldKey(name string) string {
	return strcase.ToSnake(strings.TrimSpace(name))
}

// parser converts one raw cell to a nullable integer. A nil result means the
// cell carried no parseable value; note is non-empty only when the cell held
// something that looked like data but didn't parse.
type parser func(raw string) (val *int, note string)

// registry maps canonical field keys to their parsers. Battery is absent on
// purpose: it passes through verbatim (enum coercion happens at the
// persistence boundary).
var registry = map[string]parser{
	FieldLevel:       parseSignalLevel,
	FieldLinks:       parseCount,
	FieldBatteryDays: parseCount,
	FieldImageQueue:  parseCount,
	FieldSDImages:    parseCount,
	FieldSDFreeSpace: parseCount,
}

// placeholders are cell values the vendor uses for "no data". They normalize
// to nil without a parse note.
var placeholders = map[string]bool{
	"":    true,
	"-":   true,
	"--":  true,
	"n/a": true,
	"na":  true,
}

var (
	digitsRE    = regexp.MustCompile(`[0-9]+`)
	nonDigitsRE = regexp.MustCompile(`[^0-9]`)
	hasLetterRE = regexp.MustCompile(`[a-zA-Z]`)
)

func isPlaceholder(raw string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(raw))]
}

// parseCount implements the strip-digits rule for plain numeric cells:
// remove every non-digit rune and parse what remains as a non-negative
// integer. "1,234" parses as 1234. Placeholders and digit-free cells are nil.
func parseCount(raw string) (*int, string) {
	if isPlaceholder(raw) {
		return nil, ""
	}
	stripped := nonDigitsRE.ReplaceAllString(raw, "")
	if stripped == "" {
		return nil, "no digits in cell"
	}
	n, err := strconv.Atoi(stripped)
	if err != nil {
		// Overflow on absurdly long digit runs; treat as unparseable.
		return nil, "digit run too long"
	}
	return &n, ""
}

// parseSignalLevel extracts the first integer found in the raw signal text,
// which handles values like "85% (Good)". Values outside 0-100 are kept (the
// store clamps nothing) but noted.
func parseSignalLevel(raw string) (*int, string) {
	if isPlaceholder(raw) {
		return nil, ""
	}
	m := digitsRE.FindString(raw)
	if m == "" {
		if hasLetterRE.MatchString(raw) {
			return nil, "no digits in signal text"
		}
		return nil, ""
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil, "digit run too long"
	}
	if n > 100 {
		return &n, "signal level outside 0-100"
	}
	return &n, ""
}

// Row normalizes one raw snapshot row. It never fails; every problem becomes
// a nil field plus a parse note.
func Row(raw camwatch.RawSnapshotRow) (camwatch.NormalizedRow, []camwatch.ParseNote) {
	var notes []camwatch.ParseNote

	apply := func(field, cell string) *int {
		p, ok := registry[field]
		if !ok {
			return nil
		}
		val, note := p(cell)
		if note != "" {
			notes = append(notes, camwatch.ParseNote{
				LocationID: raw.LocationID,
				Field:      field,
				Raw:        cell,
				Message:    note,
			})
		}
		return val
	}

	row := camwatch.NormalizedRow{
		Sequence:      raw.Sequence,
		LocationID:    strings.TrimSpace(raw.LocationID),
		CameraID:      strings.TrimSpace(raw.CameraID),
		SignalLevel:   apply(FieldLevel, raw.Level),
		NetworkLinks:  apply(FieldLinks, raw.Links),
		Battery:       strings.TrimSpace(raw.Battery),
		BatteryDays:   apply(FieldBatteryDays, raw.BatteryDays),
		ImageQueue:    apply(FieldImageQueue, raw.ImageQueue),
		SDImages:      apply(FieldSDImages, raw.SDImages),
		SDFreeSpaceMB: apply(FieldSDFreeSpace, raw.SDFreeSpace),
		HWVersion:     strings.TrimSpace(raw.HWVersion),
		FWVersion:     strings.TrimSpace(raw.FWVersion),
		CLVersion:     strings.TrimSpace(raw.CLVersion),
		ExtractedAt:   raw.ExtractedAt,
	}
	return row, notes
}

// Rows normalizes a whole snapshot, preserving row order, and returns the
// aggregated parse notes.
func Rows(raws []camwatch.RawSnapshotRow) ([]camwatch.NormalizedRow, []camwatch.ParseNote) {
	rows := make([]camwatch.NormalizedRow, 0, len(raws))
	var notes []camwatch.ParseNote
	for _, raw := range raws {
		row, rowNotes := Row(raw)
		rows = append(rows, row)
		notes = append(notes, rowNotes...)
	}
	return rows, notes
}

// Describe returns a human-readable one-liner for a normalized row, used in
// debug logging.
func Describe(row camwatch.NormalizedRow) string {
	fmtPtr := func(p *int) string {
		if p == nil {
			return "null"
		}
		return strconv.Itoa(*p)
	}
	return fmt.Sprintf("location=%s camera=%q signal=%s links=%s battery=%q queue=%s",
		row.LocationID, row.CameraID, fmtPtr(row.SignalLevel), fmtPtr(row.NetworkLinks),
		row.Battery, fmtPtr(row.ImageQueue))
}
