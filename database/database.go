// Package database provides SQLite persistence for the camera registry.
//
// This package implements the store behind the reconciliation engine: the
// device registry, active deployments with their seen/missing state, and the
// append-only per-day status reports.
//
// The database uses SQLite with WAL (Write-Ahead Logging) mode for concurrent
// access and maintains referential integrity through foreign keys.
//
// # Usage Example
//
//	db, err := database.New(database.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	deployments, err := db.ListActiveDeployments(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Schema
//
// The database maintains three main tables:
//   - devices: the hardware registry (one row per physical camera)
//   - deployments: active placements of devices at locations
//   - status_reports: one row per deployment per report date, never updated
//
// See schema.go for complete table definitions and indexes.
//
// # Concurrency
//
// The database is configured for safe concurrent access:
//   - WAL mode allows concurrent reads while writes are in progress
//   - Connection pool (10 max open, 5 max idle)
//   - 5-second busy timeout for lock contention
//   - Foreign key constraints ensure referential integrity
//
// The engine serializes writes per deployment at a higher level; nothing in
// this package assumes a single writer.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB wraps the SQL database with helper methods for registry access.
type DB struct {
	db   *sql.DB
	path string // Path to the database file (for diagnostic logging)
}

// Config holds database configuration.
type Config struct {
	// Path to the SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() Config {
	return Config{
		Path:            "/var/lib/camwatch/registry.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}
}

// New creates a new database connection and initializes the schema.
//
// It configures SQLite with settings suited to a low-frequency batch writer:
// WAL journaling, foreign keys on, NORMAL synchronous mode, a 5-second busy
// timeout. Tables are created if missing and pending schema migrations are
// applied.
func New(cfg Config) (*DB, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Set SQLite pragmas for optimal performance and concurrency
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA foreign_keys = ON",    // Enable foreign key constraints
		"PRAGMA synchronous = NORMAL", // Balance durability and performance
		"PRAGMA cache_size = -10000",  // 10MB cache
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for locks
		"PRAGMA temp_store = MEMORY",  // Use memory for temp tables
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	d := &DB{
		db:   db,
		path: cfg.Path,
	}

	// Initialize schema
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping verifies the database connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// initSchema creates the database schema if it doesn't exist.
func (d *DB) initSchema() error {
	// Create schema_migrations table first
	if _, err := d.db.Exec(schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	// Run migrations
	migrations := []migration{
		{version: 1, description: "Initial schema", sql: initialSchema},
	}

	for _, m := range migrations {
		if err := d.runMigration(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
	}

	return nil
}

type migration struct {
	version     int
	description string
	sql         string
}

func (d *DB) runMigration(m migration) error {
	// Check if migration already applied
	var exists bool
	err := d.db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.version).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}

	if exists {
		return nil // Migration already applied
	}

	// Run migration in a transaction
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Execute migration SQL
	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	// Record migration
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, description) VALUES (?, ?)", m.version, m.description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}
