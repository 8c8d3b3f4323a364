package database

import (
	"context"
	"database/sql"
	"fmt"

	camwatch "github.com/trailops/camwatch"
)

const deploymentColumns = `id, hardware_id, location_name, latitude, longitude, active,
       last_seen_date, missing_since_date, last_missing_count_date,
       is_missing, consecutive_missing_days, created_at, updated_at`

// nullDate converts a zero Date to SQL NULL and anything else to its ISO form.
func nullDate(d camwatch.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func scanNullDate(s sql.NullString) (camwatch.Date, error) {
	if !s.Valid || s.String == "" {
		return camwatch.Date{}, nil
	}
	return camwatch.ParseDate(s.String)
}

func scanDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var dep Deployment
	var lat, lon sql.NullFloat64
	var lastSeen, missingSince, lastCount sql.NullString

	err := row.Scan(
		&dep.ID, &dep.HardwareID, &dep.LocationName, &lat, &lon, &dep.Active,
		&lastSeen, &missingSince, &lastCount,
		&dep.IsMissing, &dep.ConsecutiveMissingDays, &dep.CreatedAt, &dep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid {
		dep.Latitude = &lat.Float64
	}
	if lon.Valid {
		dep.Longitude = &lon.Float64
	}
	if dep.LastSeenDate, err = scanNullDate(lastSeen); err != nil {
		return nil, fmt.Errorf("bad last_seen_date: %w", err)
	}
	if dep.MissingSinceDate, err = scanNullDate(missingSince); err != nil {
		return nil, fmt.Errorf("bad missing_since_date: %w", err)
	}
	if dep.LastMissingCountDate, err = scanNullDate(lastCount); err != nil {
		return nil, fmt.Errorf("bad last_missing_count_date: %w", err)
	}

	return &dep, nil
}

// ListActiveDeployments returns every active deployment, ordered by hardware_id.
func (d *DB) ListActiveDeployments(ctx context.Context) ([]*Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE active = 1
		ORDER BY hardware_id
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*Deployment
	for rows.Next() {
		dep, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, dep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}

// GetDeploymentByID retrieves a deployment by its primary key.
// Returns nil if not found.
func (d *DB) GetDeploymentByID(ctx context.Context, id int64) (*Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE id = ?
	`

	dep, err := scanDeployment(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment: %w", err)
	}
	return dep, nil
}

// InsertDeployment creates a deployment row. The one-active-per-device
// invariant is enforced by a partial unique index; inserting a second active
// deployment for the same hardware_id fails.
func (d *DB) InsertDeployment(ctx context.Context, dep *Deployment) (int64, error) {
	query := `
		INSERT INTO deployments (hardware_id, location_name, latitude, longitude, active)
		VALUES (?, ?, ?, ?, ?)
	`

	var lat, lon any
	if dep.Latitude != nil {
		lat = *dep.Latitude
	}
	if dep.Longitude != nil {
		lon = *dep.Longitude
	}

	res, err := d.db.ExecContext(ctx, query, dep.HardwareID, dep.LocationName, lat, lon, dep.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deployment for %s: %w", dep.HardwareID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get deployment id: %w", err)
	}
	return id, nil
}

// MarkDeploymentSeen records a matched run: last_seen_date moves to the
// effective date and all missing-state fields reset.
func (d *DB) MarkDeploymentSeen(ctx context.Context, id int64, effective camwatch.Date) error {
	query := `
		UPDATE deployments
		SET last_seen_date = ?,
		    missing_since_date = NULL,
		    last_missing_count_date = NULL,
		    is_missing = 0,
		    consecutive_missing_days = 0,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query, effective.String(), id)
	if err != nil {
		return fmt.Errorf("failed to mark deployment %d seen: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("deployment not found: %d", id)
	}

	return nil
}

// MarkDeploymentMissing records an unmatched run's missing-state transition.
// The caller (the reconciliation engine) owns the transition math; this is a
// plain field write.
func (d *DB) MarkDeploymentMissing(ctx context.Context, id int64, missingSince, lastCount camwatch.Date, days int, isMissing bool) error {
	query := `
		UPDATE deployments
		SET missing_since_date = ?,
		    last_missing_count_date = ?,
		    is_missing = ?,
		    consecutive_missing_days = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query, nullDate(missingSince), nullDate(lastCount), isMissing, days, id)
	if err != nil {
		return fmt.Errorf("failed to mark deployment %d missing: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("deployment not found: %d", id)
	}

	return nil
}

// ListMissingDeployments returns active deployments currently flagged missing,
// most days first.
func (d *DB) ListMissingDeployments(ctx context.Context) ([]*Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE active = 1 AND is_missing = 1
		ORDER BY consecutive_missing_days DESC, hardware_id
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*Deployment
	for rows.Next() {
		dep, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, dep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}
