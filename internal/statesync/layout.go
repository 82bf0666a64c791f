package statesync

// Remote namespace layout. A namespace holds a mirror of the state
// directory under files/, one snapshot per embedded database under sqlite/,
// and the backup marker at its root.
const (
	filesArea  = "files"
	sqliteArea = "sqlite"
)

// memorySubdir is the state-directory subfolder holding the gateway's
// embedded databases.
const memorySubdir = "memory"

// FilesPrefix returns the remote prefix mirroring the state directory.
func FilesPrefix(prefix string) string { return joinKey(prefix, filesArea) }

// SQLitePrefix returns the remote prefix mirroring the snapshot staging area.
func SQLitePrefix(prefix string) string { return joinKey(prefix, sqliteArea) }
