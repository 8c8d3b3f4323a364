package database

import (
	"context"
	"database/sql"
	"fmt"

	camwatch "github.com/trailops/camwatch"
)

const deviceColumns = `id, device_id, brand, model, serial_number,
       fw_version, cl_version, hw_version, condition, active,
       created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (*Device, error) {
	var dev Device
	var condition string
	err := row.Scan(
		&dev.ID, &dev.DeviceID, &dev.Brand, &dev.Model, &dev.SerialNumber,
		&dev.FWVersion, &dev.CLVersion, &dev.HWVersion, &condition, &dev.Active,
		&dev.CreatedAt, &dev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	dev.Condition = camwatch.Condition(condition)
	return &dev, nil
}

// ListActiveDevices returns every active registry device, ordered by device_id.
func (d *DB) ListActiveDevices(ctx context.Context) ([]*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE active = 1
		ORDER BY device_id
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, dev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}

// GetDeviceByID retrieves a device by its registry device_id.
// Returns nil if not found.
func (d *DB) GetDeviceByID(ctx context.Context, deviceID string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE device_id = ?
	`

	dev, err := scanDevice(d.db.QueryRowContext(ctx, query, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	return dev, nil
}

// UpsertDevice inserts a registry device or updates its descriptive fields.
// Used by the import-registry command, not by the reconciliation run.
func (d *DB) UpsertDevice(ctx context.Context, dev *Device) error {
	query := `
		INSERT INTO devices (device_id, brand, model, serial_number, fw_version, cl_version, hw_version, condition, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			brand = excluded.brand,
			model = excluded.model,
			serial_number = excluded.serial_number,
			condition = excluded.condition,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
	`

	condition := dev.Condition
	if condition == "" {
		condition = camwatch.ConditionGood
	}

	_, err := d.db.ExecContext(ctx, query,
		dev.DeviceID, dev.Brand, dev.Model, dev.SerialNumber,
		dev.FWVersion, dev.CLVersion, dev.HWVersion, string(condition), dev.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", dev.DeviceID, err)
	}
	return nil
}

// VersionUpdate names a version field write for one device. Only fields that
// actually differ from the stored value are written (write-on-change), so
// updated_at on the registry row keeps meaning "something really changed".
type VersionUpdate struct {
	Field string // "fw_version", "cl_version" or "hw_version"
	Old   string
	New   string
}

// UpdateDeviceVersions compares the reported firmware, cellular and hardware
// versions against the stored registry entry and writes back only the fields
// that differ. Empty reported values are ignored (the vendor omits versions
// for some hardware generations). Returns the updates that were applied.
func (d *DB) UpdateDeviceVersions(ctx context.Context, deviceID, fw, cl, hw string) ([]VersionUpdate, error) {
	dev, err := d.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("device not found: %s", deviceID)
	}

	var updates []VersionUpdate
	if fw != "" && fw != dev.FWVersion {
		updates = append(updates, VersionUpdate{Field: "fw_version", Old: dev.FWVersion, New: fw})
	}
	if cl != "" && cl != dev.CLVersion {
		updates = append(updates, VersionUpdate{Field: "cl_version", Old: dev.CLVersion, New: cl})
	}
	if hw != "" && hw != dev.HWVersion {
		updates = append(updates, VersionUpdate{Field: "hw_version", Old: dev.HWVersion, New: hw})
	}
	if len(updates) == 0 {
		return nil, nil
	}

	query := `UPDATE devices SET `
	args := []any{}
	for i, u := range updates {
		if i > 0 {
			query += ", "
		}
		query += u.Field + " = ?"
		args = append(args, u.New)
	}
	query += ", updated_at = CURRENT_TIMESTAMP WHERE device_id = ?"
	args = append(args, deviceID)

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update device versions for %s: %w", deviceID, err)
	}

	return updates, nil
}
