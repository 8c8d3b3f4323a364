package database

import (
	"context"
	"database/sql"
	"fmt"

	camwatch "github.com/trailops/camwatch"
)

const reportColumns = `id, deployment_id, report_date, battery_status, signal_level,
       network_links, sd_images_count, sd_free_space_mb, image_queue,
       needs_attention, alert_reason, report_processing_date,
       source_report_timestamp, created_at`

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func scanReport(row interface{ Scan(...any) error }) (*StatusReport, error) {
	var r StatusReport
	var battery string
	var signal, links, images, free, queue sql.NullInt64
	var reason sql.NullString
	var reportDate, processingDate string

	err := row.Scan(
		&r.ID, &r.DeploymentID, &reportDate, &battery, &signal,
		&links, &images, &free, &queue,
		&r.NeedsAttention, &reason, &processingDate,
		&r.SourceReportTimestamp, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.BatteryStatus = camwatch.BatteryStatus(battery)
	r.AlertReason = reason.String
	if r.ReportDate, err = camwatch.ParseDate(reportDate); err != nil {
		return nil, fmt.Errorf("bad report_date: %w", err)
	}
	if r.ReportProcessingDate, err = camwatch.ParseDate(processingDate); err != nil {
		return nil, fmt.Errorf("bad report_processing_date: %w", err)
	}
	for p, n := range map[**int]sql.NullInt64{
		&r.SignalLevel:   signal,
		&r.NetworkLinks:  links,
		&r.SDImagesCount: images,
		&r.SDFreeSpaceMB: free,
		&r.ImageQueue:    queue,
	} {
		if n.Valid {
			v := int(n.Int64)
			*p = &v
		}
	}

	return &r, nil
}

// InsertStatusReport records one deployment's reading for one report date.
// The table is append-only with a (deployment_id, report_date) uniqueness
// constraint; replaying the same snapshot is a no-op. Returns whether a row
// was actually created.
func (d *DB) InsertStatusReport(ctx context.Context, r *StatusReport) (bool, error) {
	query := `
		INSERT INTO status_reports (
			deployment_id, report_date, battery_status, signal_level,
			network_links, sd_images_count, sd_free_space_mb, image_queue,
			needs_attention, alert_reason, report_processing_date, source_report_timestamp
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(deployment_id, report_date) DO NOTHING
	`

	var reason any
	if r.AlertReason != "" {
		reason = r.AlertReason
	}

	result, err := d.db.ExecContext(ctx, query,
		r.DeploymentID, r.ReportDate.String(), string(r.BatteryStatus), nullInt(r.SignalLevel),
		nullInt(r.NetworkLinks), nullInt(r.SDImagesCount), nullInt(r.SDFreeSpaceMB), nullInt(r.ImageQueue),
		r.NeedsAttention, reason, r.ReportProcessingDate.String(), r.SourceReportTimestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert status report for deployment %d: %w", r.DeploymentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// GetStatusReport retrieves one deployment's report for one date.
// Returns nil if the deployment has no report for that date.
func (d *DB) GetStatusReport(ctx context.Context, deploymentID int64, date camwatch.Date) (*StatusReport, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM status_reports
		WHERE deployment_id = ? AND report_date = ?
	`

	r, err := scanReport(d.db.QueryRowContext(ctx, query, deploymentID, date.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query status report: %w", err)
	}
	return r, nil
}

// LatestStatusReports returns each active deployment's most recent report.
// Deployments that have never reported are omitted.
func (d *DB) LatestStatusReports(ctx context.Context) ([]*StatusReport, error) {
	// report_date is ISO text, so MAX() gives the latest calendar date.
	query := `
		SELECT ` + reportColumns + `
		FROM status_reports
		WHERE id IN (
			SELECT id FROM status_reports sr
			WHERE sr.report_date = (
				SELECT MAX(report_date) FROM status_reports
				WHERE deployment_id = sr.deployment_id
			)
		)
		AND deployment_id IN (SELECT id FROM deployments WHERE active = 1)
		ORDER BY deployment_id
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest reports: %w", err)
	}
	defer rows.Close()

	var reports []*StatusReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status report: %w", err)
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status reports: %w", err)
	}

	return reports, nil
}

// ListReportsByDeployment returns a deployment's reports, newest first,
// capped at limit (0 means no cap).
func (d *DB) ListReportsByDeployment(ctx context.Context, deploymentID int64, limit int) ([]*StatusReport, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM status_reports
		WHERE deployment_id = ?
		ORDER BY report_date DESC
	`
	args := []any{deploymentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*StatusReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status report: %w", err)
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status reports: %w", err)
	}

	return reports, nil
}
