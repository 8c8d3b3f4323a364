package database

// schemaMigrationsTable creates the schema_migrations table for tracking database versions.
const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    description TEXT
);
`

// initialSchema contains the initial database schema (version 1).
//
// Dates are stored as ISO "YYYY-MM-DD" text. The engine works in calendar
// dates, never timestamps, so TEXT comparison order matches date order.
const initialSchema = `
-- devices table: the hardware registry, one row per physical camera
CREATE TABLE IF NOT EXISTS devices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT NOT NULL UNIQUE,
    brand TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    serial_number TEXT NOT NULL DEFAULT '',
    fw_version TEXT NOT NULL DEFAULT '',
    cl_version TEXT NOT NULL DEFAULT '',
    hw_version TEXT NOT NULL DEFAULT '',
    condition TEXT NOT NULL DEFAULT 'good',
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

    CHECK (condition IN ('good', 'questionable', 'poor', 'retired')),
    CHECK (active IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_devices_device_id ON devices(device_id);
CREATE INDEX IF NOT EXISTS idx_devices_active ON devices(active);

-- deployments table: active placement of a device at a location, plus the
-- reconciliation engine's per-deployment seen/missing state
CREATE TABLE IF NOT EXISTS deployments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hardware_id TEXT NOT NULL,
    location_name TEXT NOT NULL DEFAULT '',
    latitude REAL,
    longitude REAL,
    active BOOLEAN NOT NULL DEFAULT 1,
    last_seen_date TEXT,
    missing_since_date TEXT,
    last_missing_count_date TEXT,
    is_missing BOOLEAN NOT NULL DEFAULT 0,
    consecutive_missing_days INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (hardware_id) REFERENCES devices(device_id) ON DELETE CASCADE,
    CHECK (active IN (0, 1)),
    CHECK (is_missing IN (0, 1)),
    CHECK (consecutive_missing_days >= 0)
);

-- At most one active deployment per device.
CREATE UNIQUE INDEX IF NOT EXISTS idx_deployments_one_active
    ON deployments(hardware_id) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_deployments_hardware_id ON deployments(hardware_id);
CREATE INDEX IF NOT EXISTS idx_deployments_is_missing ON deployments(is_missing);

-- status_reports table: append-only, one row per deployment per report date
CREATE TABLE IF NOT EXISTS status_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deployment_id INTEGER NOT NULL,
    report_date TEXT NOT NULL,
    battery_status TEXT NOT NULL DEFAULT 'Unknown',
    signal_level INTEGER,
    network_links INTEGER,
    sd_images_count INTEGER,
    sd_free_space_mb INTEGER,
    image_queue INTEGER,
    needs_attention BOOLEAN NOT NULL DEFAULT 0,
    alert_reason TEXT,
    report_processing_date TEXT NOT NULL,
    source_report_timestamp TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (deployment_id) REFERENCES deployments(id) ON DELETE CASCADE,
    UNIQUE (deployment_id, report_date),
    CHECK (battery_status IN ('Good', 'Low', 'Critical', 'Unknown')),
    CHECK (signal_level IS NULL OR (signal_level >= 0 AND signal_level <= 100)),
    CHECK (network_links IS NULL OR network_links >= 0),
    CHECK (needs_attention IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_status_reports_deployment_id ON status_reports(deployment_id);
CREATE INDEX IF NOT EXISTS idx_status_reports_report_date ON status_reports(report_date);
CREATE INDEX IF NOT EXISTS idx_status_reports_needs_attention ON status_reports(needs_attention);
`
