// Package match resolves snapshot rows against the device registry.
//
// The registry is loaded into an in-memory go-memdb snapshot indexed two
// ways: by normalized device identity and by canonical numeric identity.
// A row matches a device when the normalized forms are equal, or when both
// identities are numeric and equal as integers ("02" matches "002").
package match

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-memdb"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/database"
)

// Match pairs a snapshot row with the registry device and active deployment
// it resolved to.
type Match struct {
	Row        camwatch.NormalizedRow
	Device     *database.Device
	Deployment *database.Deployment
}

// Orphan is a snapshot row that resolved to no active deployment.
type Orphan struct {
	Row    camwatch.NormalizedRow
	Reason string
}

// Orphan reasons.
const (
	ReasonUnknownDevice    = "no registry device for identity"
	ReasonNoDeployment     = "device has no active deployment"
	ReasonAmbiguousNumeric = "numeric identity matches multiple devices"
)

// Result is one run's partition of snapshot rows and registry deployments.
// Every row lands in exactly one of Matched or Orphans; every active
// deployment lands in exactly one of Matched or Unseen.
type Result struct {
	Matched []Match
	Orphans []Orphan
	Unseen  []*database.Deployment
}

// record is the indexed registry view: one per active device, identity fields
// precomputed so plain string indexes can serve both match paths.
type record struct {
	NormalizedID string
	NumericID    string // canonical decimal form, "" when not numeric
	Device       *database.Device
	Deployment   *database.Deployment // nil when the device has no active deployment
}

func registrySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"devices": {
				Name: "devices",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "NormalizedID"},
					},
					"numeric": {
						Name:         "numeric",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "NumericID"},
					},
				},
			},
		},
	}
}

// buildIndex loads the registry into a fresh memdb instance.
func buildIndex(devices []*database.Device, deployments []*database.Deployment) (*memdb.MemDB, error) {
	db, err := memdb.NewMemDB(registrySchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create registry index: %w", err)
	}

	byDevice := make(map[string]*database.Deployment, len(deployments))
	for _, dep := range deployments {
		byDevice[camwatch.NormalizeDeviceID(dep.HardwareID)] = dep
	}

	txn := db.Txn(true)
	for _, dev := range devices {
		rec := &record{
			NormalizedID: camwatch.NormalizeDeviceID(dev.DeviceID),
			Device:       dev,
			Deployment:   byDevice[camwatch.NormalizeDeviceID(dev.DeviceID)],
		}
		if n, ok := camwatch.NumericID(rec.NormalizedID); ok {
			rec.NumericID = strconv.FormatInt(n, 10)
		}
		if err := txn.Insert("devices", rec); err != nil {
			txn.Abort()
			return nil, fmt.Errorf("failed to index device %s: %w", dev.DeviceID, err)
		}
	}
	txn.Commit()

	return db, nil
}

// lookup resolves one identity against the index. Exact normalized match
// wins; numeric equivalence is the fallback and must be unambiguous.
func lookup(txn *memdb.Txn, identity string) (*record, string, error) {
	norm := camwatch.NormalizeDeviceID(identity)

	raw, err := txn.First("devices", "id", norm)
	if err != nil {
		return nil, "", fmt.Errorf("registry index lookup failed: %w", err)
	}
	if raw != nil {
		return raw.(*record), "", nil
	}

	n, ok := camwatch.NumericID(norm)
	if !ok {
		return nil, ReasonUnknownDevice, nil
	}

	it, err := txn.Get("devices", "numeric", strconv.FormatInt(n, 10))
	if err != nil {
		return nil, "", fmt.Errorf("registry index lookup failed: %w", err)
	}

	var found *record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if found != nil {
			return nil, ReasonAmbiguousNumeric, nil
		}
		found = raw.(*record)
	}
	if found == nil {
		return nil, ReasonUnknownDevice, nil
	}
	return found, "", nil
}

// Partition resolves every snapshot row against the registry and splits the
// active deployments into matched and unseen. Rows keep their report order;
// unseen deployments keep the order the store returned them in.
func Partition(rows []camwatch.NormalizedRow, devices []*database.Device, deployments []*database.Deployment) (*Result, error) {
	db, err := buildIndex(devices, deployments)
	if err != nil {
		return nil, err
	}

	txn := db.Txn(false)
	defer txn.Abort()

	result := &Result{}
	seen := make(map[int64]bool, len(deployments))

	for _, row := range rows {
		rec, reason, err := lookup(txn, row.LocationID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			result.Orphans = append(result.Orphans, Orphan{Row: row, Reason: reason})
			continue
		}
		if rec.Deployment == nil {
			result.Orphans = append(result.Orphans, Orphan{Row: row, Reason: ReasonNoDeployment})
			continue
		}
		result.Matched = append(result.Matched, Match{
			Row:        row,
			Device:     rec.Device,
			Deployment: rec.Deployment,
		})
		seen[rec.Deployment.ID] = true
	}

	for _, dep := range deployments {
		if !seen[dep.ID] {
			result.Unseen = append(result.Unseen, dep)
		}
	}

	return result, nil
}
