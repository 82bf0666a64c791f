package statesync_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"clawsync/internal/statesync"
)

// createDatabase creates a small SQLite database at path.
func createDatabase(t *testing.T, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.Exec("INSERT INTO kv (k, v) VALUES ('greeting', 'hello')"); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
}

// queryGreeting reads back the test row from a database file.
func queryGreeting(t *testing.T, path string) string {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer db.Close()

	var v string
	if err := db.QueryRow("SELECT v FROM kv WHERE k = 'greeting'").Scan(&v); err != nil {
		t.Fatalf("querying snapshot: %v", err)
	}
	return v
}

func TestSnapshotProducer_Produce(t *testing.T) {
	t.Run("snapshots every database", func(t *testing.T) {
		source := t.TempDir()
		staging := t.TempDir()
		createDatabase(t, filepath.Join(source, "main.sqlite"))
		createDatabase(t, filepath.Join(source, "search.sqlite"))

		p := statesync.NewSnapshotProducer(statesync.NewNopLogger())
		count, err := p.Produce(context.Background(), source, staging)
		if err != nil {
			t.Fatalf("Produce() error = %v", err)
		}
		if count != 2 {
			t.Errorf("Produce() count = %d, want 2", count)
		}

		if got := queryGreeting(t, filepath.Join(staging, "main.sqlite")); got != "hello" {
			t.Errorf("snapshot row = %q, want hello", got)
		}
	})

	t.Run("skips a file that fails consistent copy", func(t *testing.T) {
		source := t.TempDir()
		staging := t.TempDir()
		createDatabase(t, filepath.Join(source, "good.sqlite"))
		if err := os.WriteFile(filepath.Join(source, "bad.sqlite"), []byte("not a database"), 0644); err != nil {
			t.Fatalf("writing bad file: %v", err)
		}

		p := statesync.NewSnapshotProducer(statesync.NewNopLogger())
		count, err := p.Produce(context.Background(), source, staging)
		if err != nil {
			t.Fatalf("Produce() error = %v, want per-file failure absorbed", err)
		}
		if count != 1 {
			t.Errorf("Produce() count = %d, want 1", count)
		}

		if _, err := os.Stat(filepath.Join(staging, "bad.sqlite")); err == nil {
			t.Error("bad.sqlite snapshot exists, want skipped")
		}
		if _, err := os.Stat(filepath.Join(staging, "bad.sqlite.tmp")); err == nil {
			t.Error("bad.sqlite.tmp left behind, want cleaned up")
		}
	})

	t.Run("keeps previous snapshot when refresh fails", func(t *testing.T) {
		source := t.TempDir()
		staging := t.TempDir()
		dbPath := filepath.Join(source, "main.sqlite")
		createDatabase(t, dbPath)

		p := statesync.NewSnapshotProducer(statesync.NewNopLogger())
		if _, err := p.Produce(context.Background(), source, staging); err != nil {
			t.Fatalf("first Produce() error = %v", err)
		}

		// Corrupt the source so the next snapshot attempt fails.
		if err := os.WriteFile(dbPath, []byte("corrupted"), 0644); err != nil {
			t.Fatalf("corrupting source: %v", err)
		}

		count, err := p.Produce(context.Background(), source, staging)
		if err != nil {
			t.Fatalf("second Produce() error = %v", err)
		}
		if count != 0 {
			t.Errorf("second Produce() count = %d, want 0", count)
		}

		// The last good staging copy survives for the next upload.
		if got := queryGreeting(t, filepath.Join(staging, "main.sqlite")); got != "hello" {
			t.Errorf("stale snapshot row = %q, want hello", got)
		}
	})

	t.Run("missing source dir yields zero", func(t *testing.T) {
		p := statesync.NewSnapshotProducer(statesync.NewNopLogger())
		count, err := p.Produce(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir())
		if err != nil {
			t.Fatalf("Produce() error = %v", err)
		}
		if count != 0 {
			t.Errorf("Produce() count = %d, want 0", count)
		}
	})

	t.Run("ignores non-database files", func(t *testing.T) {
		source := t.TempDir()
		staging := t.TempDir()
		if err := os.WriteFile(filepath.Join(source, "notes.txt"), []byte("x"), 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}

		p := statesync.NewSnapshotProducer(statesync.NewNopLogger())
		count, err := p.Produce(context.Background(), source, staging)
		if err != nil {
			t.Fatalf("Produce() error = %v", err)
		}
		if count != 0 {
			t.Errorf("Produce() count = %d, want 0", count)
		}
	})
}
