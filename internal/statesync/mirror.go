package statesync

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Result reports what a single mirror pass actually transferred.
type Result struct {
	Uploaded   int
	Downloaded int
	Deleted    int
	Skipped    int
}

// Mirror synchronizes a local directory tree with a remote prefix.
// It is incremental: files whose size and modification time indicate no
// change since the last pass are not transferred again.
type Mirror struct {
	transport Transport
	logger    Logger
}

// NewMirror creates a Mirror over the given transport.
func NewMirror(transport Transport, logger Logger) *Mirror {
	return &Mirror{transport: transport, logger: logger}
}

// Push uploads localDir to remotePrefix, skipping excluded paths.
// When deleteOrphans is true, remote objects with no corresponding local
// file are removed so the remote reflects exactly the current local set.
// A transport error aborts the pass; the partial Result is still returned.
func (m *Mirror) Push(ctx context.Context, localDir, remotePrefix string, rules *Ruleset, deleteOrphans bool) (Result, error) {
	var res Result

	local, err := listLocal(localDir, rules)
	if err != nil {
		return res, fmt.Errorf("scanning %s: %w", localDir, err)
	}

	remote, err := m.listRemote(ctx, remotePrefix)
	if err != nil {
		return res, fmt.Errorf("listing %s: %w", remotePrefix, err)
	}

	for rel, info := range local {
		obj, exists := remote[rel]
		if exists && obj.Size == info.Size() && !info.ModTime().After(obj.LastModified) {
			res.Skipped++
			continue
		}
		if err := m.putFile(ctx, filepath.Join(localDir, filepath.FromSlash(rel)), joinKey(remotePrefix, rel), info.Size()); err != nil {
			return res, fmt.Errorf("uploading %s: %w", rel, err)
		}
		res.Uploaded++
	}

	if deleteOrphans {
		var orphans []string
		for rel := range remote {
			if _, ok := local[rel]; !ok {
				orphans = append(orphans, joinKey(remotePrefix, rel))
			}
		}
		if len(orphans) > 0 {
			if err := m.transport.Delete(ctx, orphans); err != nil {
				return res, fmt.Errorf("deleting orphans: %w", err)
			}
			res.Deleted = len(orphans)
		}
	}

	m.logger.Debug("push complete", "prefix", remotePrefix,
		"uploaded", res.Uploaded, "deleted", res.Deleted, "skipped", res.Skipped)
	return res, nil
}

// Pull downloads remotePrefix into localDir, skipping excluded paths.
// Local files are overwritten when they differ but never deleted; a flaky
// restore must not destroy partial local state.
func (m *Mirror) Pull(ctx context.Context, remotePrefix, localDir string, rules *Ruleset) (Result, error) {
	var res Result

	remote, err := m.listRemote(ctx, remotePrefix)
	if err != nil {
		return res, fmt.Errorf("listing %s: %w", remotePrefix, err)
	}

	for rel, obj := range remote {
		if rules.Excluded(rel) {
			continue
		}

		dest := filepath.Join(localDir, filepath.FromSlash(rel))
		if info, err := os.Stat(dest); err == nil && info.Size() == obj.Size {
			res.Skipped++
			continue
		}

		if err := m.getFile(ctx, obj.Key, dest); err != nil {
			return res, fmt.Errorf("downloading %s: %w", rel, err)
		}
		res.Downloaded++
	}

	m.logger.Debug("pull complete", "prefix", remotePrefix,
		"downloaded", res.Downloaded, "skipped", res.Skipped)
	return res, nil
}

// listRemote returns remote objects under prefix keyed by their path
// relative to the prefix. Excluded paths are invisible to the mirror in
// both directions, so they are filtered here.
func (m *Mirror) listRemote(ctx context.Context, prefix string) (map[string]Object, error) {
	objects, err := m.transport.List(ctx, strings.TrimSuffix(prefix, "/")+"/")
	if err != nil {
		return nil, err
	}

	byRel := make(map[string]Object, len(objects))
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, strings.TrimSuffix(prefix, "/")+"/")
		byRel[rel] = obj
	}
	return byRel, nil
}

// listLocal walks localDir and returns non-excluded regular files keyed by
// their slash-separated relative path.
func listLocal(localDir string, rules *Ruleset) (map[string]fs.FileInfo, error) {
	files := make(map[string]fs.FileInfo)

	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		if rules.Excluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files[rel] = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// putFile streams a single local file to the transport.
func (m *Mirror) putFile(ctx context.Context, path, key string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return m.transport.Put(ctx, key, f, size)
}

// getFile streams a single remote object to disk, writing through a temp
// file in the destination directory so a failed download never leaves a
// truncated file in place.
func (m *Mirror) getFile(ctx context.Context, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".clawsync-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := m.transport.Get(ctx, key, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// joinKey joins a remote prefix and a slash-separated relative path.
func joinKey(prefix, rel string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + rel
}
