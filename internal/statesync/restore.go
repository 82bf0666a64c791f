package statesync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SentinelName is the well-known file whose presence under the state
// directory means local state is already initialized. Restoring over it
// would risk clobbering newer local data with an older remote copy.
const SentinelName = "openclaw.json"

// ShouldRestore reports whether the state directory needs hydration from
// the remote namespace. Recomputed at every boot, never stored.
func ShouldRestore(stateDir string) bool {
	_, err := os.Stat(filepath.Join(stateDir, SentinelName))
	return err != nil
}

// Restorer hydrates a fresh state directory from the remote namespace.
type Restorer struct {
	transport Transport
	mirror    *Mirror
	logger    Logger
	stateDir  string
	prefix    string
}

// NewRestorer creates a Restorer for the given state directory and remote
// namespace prefix.
func NewRestorer(transport Transport, logger Logger, stateDir, prefix string) *Restorer {
	return &Restorer{
		transport: transport,
		mirror:    NewMirror(transport, logger),
		logger:    logger,
		stateDir:  stateDir,
		prefix:    prefix,
	}
}

// Run applies the restore decision. When the sentinel is present the restore
// is skipped; when the remote namespace is empty this is a fresh install and
// a no-op. Otherwise files/ is pulled into the state directory and, if the
// namespace has database snapshots, sqlite/ is pulled into the memory
// subfolder. Both pulls must complete; a failure in either surfaces as an
// incomplete restore.
func (r *Restorer) Run(ctx context.Context) error {
	if !ShouldRestore(r.stateDir) {
		r.logger.Info("local state already initialized, skipping restore", "state_dir", r.stateDir)
		return nil
	}

	objects, err := r.transport.List(ctx, strings.TrimSuffix(r.prefix, "/")+"/")
	if err != nil {
		return fmt.Errorf("listing remote namespace: %w", err)
	}
	if len(objects) == 0 {
		r.logger.Info("remote namespace is empty, nothing to restore", "prefix", r.prefix)
		return nil
	}

	if m, found, err := ReadMarker(ctx, r.transport, r.prefix); err == nil && found {
		r.logger.Info("restoring from backup", "last_backup", m.LastBackup, "state_dir", m.StateDir)
	}

	files, err := r.mirror.Pull(ctx, FilesPrefix(r.prefix), r.stateDir, RestoreRules())
	if err != nil {
		return fmt.Errorf("restore incomplete: pulling state files: %w", err)
	}

	snapshots, err := r.transport.List(ctx, SQLitePrefix(r.prefix)+"/")
	if err != nil {
		return fmt.Errorf("restore incomplete: listing database snapshots: %w", err)
	}

	var dbs Result
	if len(snapshots) > 0 {
		dbs, err = r.mirror.Pull(ctx, SQLitePrefix(r.prefix), filepath.Join(r.stateDir, memorySubdir), RestoreRules())
		if err != nil {
			return fmt.Errorf("restore incomplete: pulling database snapshots: %w", err)
		}
	}

	r.logger.Info("restore complete",
		"files", files.Downloaded, "databases", dbs.Downloaded, "state_dir", r.stateDir)
	return nil
}
