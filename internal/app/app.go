package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"clawsync/internal/config"
	"clawsync/internal/gateway"
	"clawsync/internal/statesync"
	"clawsync/internal/store"
	"clawsync/internal/supervise"
)

// App is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config and manages the log file
// lifecycle on Close. When backup is inactive (disabled or missing
// credentials) the transport-backed components are nil and every backup
// operation degrades to a logged no-op.
type App struct {
	cfg      *config.Config
	logger   *slogAdapter
	logFile  *os.File
	restorer *statesync.Restorer
	cycle    *statesync.Cycle
	marker   statesync.Transport
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "restore", "loop"); a short random run ID
// is attached to every log line. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	opID := operation + "/" + uuid.New().String()[:8]
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &App{cfg: cfg, logger: logger, logFile: logFile}

	if !cfg.BackupActive() {
		logger.Warn("backup inactive for this run", "reason", cfg.InactiveReason())
		return a, nil
	}

	client, err := store.NewS3Client(ctx, cfg.Endpoint, cfg.Region, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	transport := store.NewS3Transport(client, cfg.Bucket)

	a.marker = transport
	a.restorer = statesync.NewRestorer(transport, logger, cfg.StateDir, cfg.Prefix)
	a.cycle = statesync.NewCycle(transport, logger, statesync.RealClock{}, cfg.StateDir, cfg.StagingDir, cfg.Prefix)
	return a, nil
}

// Restore runs the restore decision once and exits: pull remote state when
// the local sentinel is absent, no-op otherwise.
func (a *App) Restore(ctx context.Context) error {
	if a.restorer == nil {
		a.logger.Info("restore skipped, backup inactive")
		return nil
	}
	return a.restorer.Run(ctx)
}

// Backup runs exactly one backup cycle.
func (a *App) Backup(ctx context.Context) error {
	if a.cycle == nil {
		a.logger.Info("backup skipped, backup inactive")
		return nil
	}
	return a.cycle.Run(ctx)
}

// Loop runs the lifecycle supervisor: restore once, inject the gateway
// config, launch the gateway from argv (none when argv is empty), and keep
// backing up every interval until ctx is canceled or the gateway exits.
// Returns the exit code to propagate to the container runtime.
func (a *App) Loop(ctx context.Context, argv []string) (int, error) {
	prelaunch := func(context.Context) error {
		return gateway.WriteConfig(a.cfg.StateDir)
	}

	sup := supervise.New(a.restorer, a.cycle, prelaunch, a.cfg.Interval(), a.cycle != nil, a.logger)
	return sup.Run(ctx, argv)
}

// StatusReport summarizes backup state for the status command.
type StatusReport struct {
	Active      bool
	Initialized bool
	MarkerFound bool
	LastBackup  string
	StateDir    string
}

// Status reports whether local state is initialized and what the remote
// marker records about the last successful backup.
func (a *App) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{
		Active:      a.marker != nil,
		Initialized: !statesync.ShouldRestore(a.cfg.StateDir),
	}

	if a.marker == nil {
		return report, nil
	}

	m, found, err := statesync.ReadMarker(ctx, a.marker, a.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("reading backup marker: %w", err)
	}
	if found {
		report.MarkerFound = true
		report.LastBackup = m.LastBackup
		report.StateDir = m.StateDir
	}
	return report, nil
}

// Close releases resources held by the App.
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
