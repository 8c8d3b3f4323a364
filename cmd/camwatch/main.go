// Package main implements the camwatch command.
//
// camwatch reconciles trail-camera fleet snapshots against the club's device
// registry: it acquires the latest portal snapshot, matches rows to deployed
// cameras, tracks which cameras have gone silent, and records per-day status
// reports and alerts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/alert"
	"github.com/trailops/camwatch/database"
	"github.com/trailops/camwatch/metrics"
	"github.com/trailops/camwatch/reconcile"
	"github.com/trailops/camwatch/runlog"
	"github.com/trailops/camwatch/safeguards"
	"github.com/trailops/camwatch/source"
	"github.com/trailops/camwatch/tui"
)

// Config holds application configuration. Values come from the environment
// first (optionally via a .env file), then per-command flags override.
type Config struct {
	// Store
	DBPath     string
	RunLogPath string

	// Snapshot source
	SourceKind   string // "file" or "s3"
	SnapshotFile string
	S3Bucket     string
	S3Prefix     string
	S3Region     string

	// Engine
	MissingFlagThreshold int
	MissingAlertDays     int
	SignalFloor          int
	WriteConcurrency     int
	RunTimeout           time.Duration

	// Daemon
	Interval   time.Duration
	ListenAddr string

	// Command-specific
	EffectiveDate string // --effective-date override, ISO
	RegistryFile  string
	Limit         int

	// Output
	LogLevel string
	NoColor  bool
}

// DefaultConfig returns the default configuration with environment overrides
// applied.
func DefaultConfig() Config {
	cfg := Config{
		DBPath:               "/var/lib/camwatch/registry.db",
		RunLogPath:           "/var/lib/camwatch/runs.db",
		SourceKind:           "file",
		SnapshotFile:         "/var/lib/camwatch/snapshot.json",
		S3Prefix:             "snapshots/",
		S3Region:             "us-east-1",
		MissingFlagThreshold: 1,
		MissingAlertDays:     2,
		SignalFloor:          20,
		WriteConcurrency:     4,
		RunTimeout:           5 * time.Minute,
		Interval:             time.Hour,
		ListenAddr:           ":9477",
		Limit:                20,
		LogLevel:             "info",
	}

	envString(&cfg.DBPath, "CAMWATCH_DB")
	envString(&cfg.RunLogPath, "CAMWATCH_RUNLOG")
	envString(&cfg.SourceKind, "CAMWATCH_SOURCE")
	envString(&cfg.SnapshotFile, "CAMWATCH_SNAPSHOT_FILE")
	envString(&cfg.S3Bucket, "CAMWATCH_S3_BUCKET")
	envString(&cfg.S3Prefix, "CAMWATCH_S3_PREFIX")
	envString(&cfg.S3Region, "CAMWATCH_S3_REGION")
	envString(&cfg.LogLevel, "CAMWATCH_LOG_LEVEL")
	envInt(&cfg.MissingAlertDays, "CAMWATCH_MISSING_ALERT_DAYS")
	envInt(&cfg.SignalFloor, "CAMWATCH_SIGNAL_FLOOR")

	return cfg
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

var (
	// Global logger
	log = logrus.New()

	// Command flags
	runCmd      = flag.NewFlagSet("run", flag.ExitOnError)
	daemonCmd   = flag.NewFlagSet("daemon", flag.ExitOnError)
	listDepsCmd = flag.NewFlagSet("list-deployments", flag.ExitOnError)
	alertsCmd   = flag.NewFlagSet("list-alerts", flag.ExitOnError)
	listRunsCmd = flag.NewFlagSet("list-runs", flag.ExitOnError)
	importCmd   = flag.NewFlagSet("import-registry", flag.ExitOnError)
	monitorCmd  = flag.NewFlagSet("monitor", flag.ExitOnError)
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Optional .env next to the working directory; absence is fine.
	godotenv.Load()

	config := DefaultConfig()

	switch os.Args[1] {
	case "run":
		parseRunFlags(&config, runCmd, os.Args[2:])
		if err := runOnce(config); err != nil {
			log.WithError(err).Fatal("run failed")
		}
	case "daemon":
		parseDaemonFlags(&config, daemonCmd, os.Args[2:])
		if err := runDaemon(config); err != nil {
			log.WithError(err).Fatal("daemon failed")
		}
	case "list-deployments":
		parseListFlags(&config, listDepsCmd, os.Args[2:])
		if err := runListDeployments(config); err != nil {
			log.WithError(err).Fatal("failed to list deployments")
		}
	case "list-alerts":
		parseListFlags(&config, alertsCmd, os.Args[2:])
		if err := runListAlerts(config); err != nil {
			log.WithError(err).Fatal("failed to list alerts")
		}
	case "list-runs":
		parseListRunsFlags(&config, listRunsCmd, os.Args[2:])
		if err := runListRuns(config); err != nil {
			log.WithError(err).Fatal("failed to list runs")
		}
	case "import-registry":
		parseImportFlags(&config, importCmd, os.Args[2:])
		if err := runImportRegistry(config); err != nil {
			log.WithError(err).Fatal("registry import failed")
		}
	case "monitor":
		parseListFlags(&config, monitorCmd, os.Args[2:])
		if err := runMonitor(config); err != nil {
			log.WithError(err).Fatal("monitor failed")
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("camwatch - trail camera fleet reconciliation")
	fmt.Println()
	fmt.Println("Usage: camwatch <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run               Reconcile the latest snapshot against the registry")
	fmt.Println("  daemon            Run reconciliation on an interval with /metrics")
	fmt.Println("  list-deployments  List active deployments and their state")
	fmt.Println("  list-alerts       List deployments needing attention")
	fmt.Println("  list-runs         Show recent run reports")
	fmt.Println("  import-registry   Load devices and deployments from a JSON file")
	fmt.Println("  monitor           Interactive fleet dashboard")
	fmt.Println()
	fmt.Println("Run 'camwatch <command> --help' for more information on a command.")
}

// addSourceFlags registers the snapshot-source flags shared by run and daemon.
func addSourceFlags(cfg *Config, fs *flag.FlagSet) {
	fs.StringVar(&cfg.SourceKind, "source", cfg.SourceKind, "Snapshot source: file or s3")
	fs.StringVar(&cfg.SnapshotFile, "snapshot-file", cfg.SnapshotFile, "Snapshot JSON path (file source)")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "Snapshot bucket (s3 source)")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", cfg.S3Prefix, "Snapshot key prefix (s3 source)")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "AWS region (s3 source)")
}

// addEngineFlags registers the engine tunables shared by run and daemon.
func addEngineFlags(cfg *Config, fs *flag.FlagSet) {
	fs.IntVar(&cfg.MissingFlagThreshold, "missing-flag-days", cfg.MissingFlagThreshold, "Silent days before a deployment is flagged missing")
	fs.IntVar(&cfg.MissingAlertDays, "missing-alert-days", cfg.MissingAlertDays, "Silent days before a missing alert fires")
	fs.IntVar(&cfg.SignalFloor, "signal-floor", cfg.SignalFloor, "Signal level below which an alert fires")
	fs.IntVar(&cfg.WriteConcurrency, "write-concurrency", cfg.WriteConcurrency, "Concurrent deployment writers")
	fs.DurationVar(&cfg.RunTimeout, "timeout", cfg.RunTimeout, "Overall run timeout")
}

// parseRunFlags parses flags for the run command.
func parseRunFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Registry database path")
	fs.StringVar(&cfg.RunLogPath, "runlog", cfg.RunLogPath, "Run log path")
	fs.StringVar(&cfg.EffectiveDate, "effective-date", "", "Override the effective date (YYYY-MM-DD)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.NoColor, "no-color", false, "Plain-text summary output")
	addSourceFlags(cfg, fs)
	addEngineFlags(cfg, fs)
	fs.Parse(args)
}

// parseDaemonFlags parses flags for the daemon command.
func parseDaemonFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Registry database path")
	fs.StringVar(&cfg.RunLogPath, "runlog", cfg.RunLogPath, "Run log path")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Time between runs")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Metrics listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	addSourceFlags(cfg, fs)
	addEngineFlags(cfg, fs)
	fs.Parse(args)
}

// parseListFlags parses flags shared by the read-only listing commands.
func parseListFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Registry database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.Parse(args)
}

// parseListRunsFlags parses flags for the list-runs command.
func parseListRunsFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	fs.StringVar(&cfg.RunLogPath, "runlog", cfg.RunLogPath, "Run log path")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "Maximum runs to show")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.Parse(args)
}

// parseImportFlags parses flags for the import-registry command.
func parseImportFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Registry database path")
	fs.StringVar(&cfg.RegistryFile, "file", "", "Registry JSON file (required)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.Parse(args)

	if cfg.RegistryFile == "" {
		fmt.Println("Error: --file is required")
		fs.Usage()
		os.Exit(1)
	}
}

// setupLogger configures the global logger.
func setupLogger(level string) error {
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(lvl)

	return nil
}

// openDB opens the registry store.
func openDB(cfg Config) (*database.DB, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.Path = cfg.DBPath
	db, err := database.New(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry at %s: %w", cfg.DBPath, err)
	}
	return db, nil
}

// buildAcquirer wires the configured snapshot source with the retry policy.
func buildAcquirer(ctx context.Context, cfg Config) (source.Acquirer, error) {
	var acq source.Acquirer
	switch cfg.SourceKind {
	case "file":
		acq = source.NewFileSource(cfg.SnapshotFile)
	case "s3":
		s3src, err := source.NewS3Source(ctx, source.S3Config{
			Region: cfg.S3Region,
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		s3src.SetLogger(log)
		acq = s3src
	default:
		return nil, fmt.Errorf("unknown snapshot source %q (want file or s3)", cfg.SourceKind)
	}
	return source.WithRetry(acq, source.DefaultRetryConfig(), log), nil
}

// engineConfig maps the CLI configuration onto the engine's.
func engineConfig(cfg Config) reconcile.Config {
	return reconcile.Config{
		MissingFlagThreshold: cfg.MissingFlagThreshold,
		WriteConcurrency:     cfg.WriteConcurrency,
		Alert: alert.Config{
			MissingDays: cfg.MissingAlertDays,
			SignalFloor: cfg.SignalFloor,
		},
	}
}

// parseEffectiveDate validates the --effective-date override.
func parseEffectiveDate(cfg Config) (camwatch.Date, error) {
	if cfg.EffectiveDate == "" {
		return camwatch.Date{}, nil
	}
	d, err := camwatch.ParseDate(cfg.EffectiveDate)
	if err != nil {
		return camwatch.Date{}, fmt.Errorf("invalid --effective-date: %w", err)
	}
	return d, nil
}

// runOnce executes a single reconciliation run.
//
// Exit semantics: per-deployment write failures are part of a successful run
// (they are detailed in the summary); only acquisition, store, or
// configuration failures exit non-zero.
func runOnce(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	summary := tui.NewSummary(cfg.NoColor)

	override, err := parseEffectiveDate(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
	defer cancel()

	// One run per registry at a time, across processes.
	lock := safeguards.NewRunLock(cfg.DBPath, log)
	if err := lock.Acquire(); err != nil {
		summary.PrintFatal(err)
		return err
	}
	defer lock.Release()

	db, err := openDB(cfg)
	if err != nil {
		summary.PrintFatal(err)
		return err
	}
	defer db.Close()

	acq, err := buildAcquirer(ctx, cfg)
	if err != nil {
		summary.PrintFatal(err)
		return err
	}

	engine := reconcile.New(engineConfig(cfg), reconcile.Dependencies{
		DB:     db,
		Source: acq,
		Logger: log,
	})

	report, err := engine.Run(ctx, override)
	if err != nil {
		summary.PrintFatal(err)
		return err
	}

	recordRun(cfg, report)
	summary.PrintRun(report)
	return nil
}

// recordRun appends the report to the run log. Run-log failures are logged
// and swallowed: history is diagnostics, not an outcome.
func recordRun(cfg Config, report *reconcile.RunReport) {
	if cfg.RunLogPath == "" {
		return
	}
	l, err := runlog.Open(cfg.RunLogPath)
	if err != nil {
		log.WithError(err).Warn("failed to open run log")
		return
	}
	defer l.Close()
	if err := l.Record(report); err != nil {
		log.WithError(err).Warn("failed to record run")
	}
}

// runDaemon runs reconciliation on an interval and serves Prometheus metrics.
func runDaemon(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runAndObserve := func() {
		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()

		lock := safeguards.NewRunLock(cfg.DBPath, log)
		if err := lock.Acquire(); err != nil {
			log.WithError(err).Warn("skipping run, registry is locked")
			return
		}
		defer lock.Release()

		acq, err := buildAcquirer(runCtx, cfg)
		if err != nil {
			log.WithError(err).Error("failed to build snapshot source")
			m.ObserveFatal()
			return
		}

		engine := reconcile.New(engineConfig(cfg), reconcile.Dependencies{
			DB:     db,
			Source: acq,
			Logger: log,
		})
		report, err := engine.Run(runCtx, camwatch.Date{})
		if err != nil {
			log.WithError(err).Error("scheduled run failed")
			m.ObserveFatal()
			return
		}
		recordRun(cfg, report)
		m.ObserveRun(report)
	}

	log.WithField("interval", cfg.Interval.String()).Info("daemon started")
	runAndObserve()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runAndObserve()
		case <-ctx.Done():
			log.Info("daemon shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	}
}

// runListDeployments prints the active fleet.
func runListDeployments(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	deployments, err := db.ListActiveDeployments(context.Background())
	if err != nil {
		return err
	}

	fmt.Print(tui.RenderDeploymentsTable(deployments))
	return nil
}

// runListAlerts prints deployments needing attention: every missing
// deployment plus every latest status report flagged by the evaluator.
func runListAlerts(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	var alerts []tui.AlertRow
	covered := make(map[int64]bool)

	missing, err := db.ListMissingDeployments(ctx)
	if err != nil {
		return err
	}
	for _, dep := range missing {
		covered[dep.ID] = true
		alerts = append(alerts, tui.AlertRow{
			HardwareID: dep.HardwareID,
			Location:   dep.LocationName,
			Reason:     fmt.Sprintf("camera missing for %d consecutive days", dep.ConsecutiveMissingDays),
			Since:      dep.MissingSinceDate.String(),
		})
	}

	deployments, err := db.ListActiveDeployments(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]*database.Deployment, len(deployments))
	for _, dep := range deployments {
		byID[dep.ID] = dep
	}

	reports, err := db.LatestStatusReports(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		if !r.NeedsAttention || covered[r.DeploymentID] {
			continue
		}
		dep := byID[r.DeploymentID]
		if dep == nil {
			continue
		}
		alerts = append(alerts, tui.AlertRow{
			HardwareID: dep.HardwareID,
			Location:   dep.LocationName,
			Reason:     r.AlertReason,
			Since:      r.ReportDate.String(),
		})
	}

	fmt.Print(tui.RenderAlertsTable(alerts))
	return nil
}

// runListRuns prints recent run reports from the run log.
func runListRuns(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	l, err := runlog.Open(cfg.RunLogPath)
	if err != nil {
		return err
	}
	defer l.Close()

	reports, err := l.List(cfg.Limit)
	if err != nil {
		return err
	}

	rows := make([]tui.RunRow, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, tui.RunRow{
			RunID:         r.RunID,
			EffectiveDate: r.EffectiveDate.String(),
			Matched:       r.MatchedCount,
			Orphans:       r.OrphanCount,
			Unseen:        r.UnseenCount,
			Created:       r.ReportsCreated,
			Failures:      len(r.WriteFailures),
		})
	}

	fmt.Print(tui.RenderRunsTable(rows))
	return nil
}

// registryFile is the import-registry input format.
type registryFile struct {
	Devices []struct {
		DeviceID     string `json:"device_id"`
		Brand        string `json:"brand"`
		Model        string `json:"model"`
		SerialNumber string `json:"serial_number"`
		Condition    string `json:"condition"`
		Active       *bool  `json:"active"`
	} `json:"devices"`
	Deployments []struct {
		HardwareID   string   `json:"hardware_id"`
		LocationName string   `json:"location_name"`
		Latitude     *float64 `json:"latitude"`
		Longitude    *float64 `json:"longitude"`
	} `json:"deployments"`
}

// runImportRegistry loads devices and deployments from a JSON file. Device
// rows upsert; deployment rows insert and are skipped with a warning if the
// device already has an active deployment.
func runImportRegistry(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	data, err := os.ReadFile(cfg.RegistryFile)
	if err != nil {
		return fmt.Errorf("failed to read registry file: %w", err)
	}
	var reg registryFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return fmt.Errorf("failed to parse registry file: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	for _, d := range reg.Devices {
		active := true
		if d.Active != nil {
			active = *d.Active
		}
		err := db.UpsertDevice(ctx, &database.Device{
			DeviceID:     d.DeviceID,
			Brand:        d.Brand,
			Model:        d.Model,
			SerialNumber: d.SerialNumber,
			Condition:    camwatch.Condition(d.Condition),
			Active:       active,
		})
		if err != nil {
			return fmt.Errorf("failed to import device %s: %w", d.DeviceID, err)
		}
	}

	imported := 0
	for _, dep := range reg.Deployments {
		_, err := db.InsertDeployment(ctx, &database.Deployment{
			HardwareID:   dep.HardwareID,
			LocationName: dep.LocationName,
			Latitude:     dep.Latitude,
			Longitude:    dep.Longitude,
			Active:       true,
		})
		if err != nil {
			log.WithFields(logrus.Fields{
				"hardware_id": dep.HardwareID,
				"location":    dep.LocationName,
			}).WithError(err).Warn("skipping deployment")
			continue
		}
		imported++
	}

	log.WithFields(logrus.Fields{
		"devices":     len(reg.Devices),
		"deployments": imported,
	}).Info("registry imported")
	fmt.Printf("Imported %d devices and %d deployments.\n", len(reg.Devices), imported)
	return nil
}

// runMonitor starts the interactive fleet dashboard.
func runMonitor(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}
	// The dashboard owns the terminal; keep log lines out of it.
	log.SetOutput(os.Stderr)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return tui.RunMonitor(tui.MonitorConfig{DB: db})
}
