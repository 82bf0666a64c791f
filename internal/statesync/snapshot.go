package statesync

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// snapshotExt identifies the gateway's embedded database files.
const snapshotExt = ".sqlite"

// SnapshotProducer creates point-in-time-consistent copies of live SQLite
// databases into a staging directory. The copies are safe to upload even
// while the gateway holds the originals open for writes.
type SnapshotProducer struct {
	logger Logger
}

// NewSnapshotProducer creates a SnapshotProducer.
func NewSnapshotProducer(logger Logger) *SnapshotProducer {
	return &SnapshotProducer{logger: logger}
}

// Produce snapshots every *.sqlite file directly under sourceDir into
// stagingDir, preserving the original filename. A failure on one file (for
// example a transient lock) is logged and skipped; the previous cycle's
// staging copy, if any, is left in place so the remote keeps its last known
// good snapshot. Returns the number of files successfully snapshotted.
// A missing sourceDir yields zero snapshots, not an error.
func (p *SnapshotProducer) Produce(ctx context.Context, sourceDir, stagingDir string) (int, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", sourceDir, err)
	}

	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return 0, fmt.Errorf("creating staging directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}

		src := filepath.Join(sourceDir, entry.Name())
		dest := filepath.Join(stagingDir, entry.Name())
		if err := snapshotOne(ctx, src, dest); err != nil {
			p.logger.Warn("snapshot failed, skipping file", "file", entry.Name(), "error", err)
			continue
		}

		p.logger.Debug("database snapshotted", "file", entry.Name())
		count++
	}

	return count, nil
}

// snapshotOne produces a consistent copy of one database via VACUUM INTO.
// The copy lands in a temp file first and replaces the previous staging copy
// only on success, so a failed snapshot never clobbers the last good one.
func snapshotOne(ctx context.Context, src, dest string) error {
	tmp := dest + ".tmp"
	os.Remove(tmp) // VACUUM INTO refuses to overwrite

	db, err := sql.Open("sqlite3", "file:"+src+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vacuum into: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}
