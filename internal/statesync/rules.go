package statesync

import (
	"path"
	"strings"
)

// baseRules are applied on both backup and restore: lock files, temp files,
// and the ephemeral media cache are never synchronized.
var baseRules = []string{"*.lock", "*.tmp", "media/*"}

// liveDatabaseRules exclude the gateway's live SQLite files from direct sync.
// A database file mid-write cannot be copied safely; it reaches the remote
// only through the snapshot staging area.
var liveDatabaseRules = []string{
	"memory/*.sqlite",
	"memory/*.sqlite-wal",
	"memory/*.sqlite-shm",
}

// rule is a parsed exclusion pattern with its matching strategy.
type rule struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
	subtree   bool // pattern ended in "/*": match everything under the prefix
}

// Ruleset checks relative paths against a set of exclusion patterns.
// Patterns without '/' match against the file's basename only. Patterns with
// '/' match against the full slash-separated relative path; a trailing "/*"
// excludes the whole subtree.
type Ruleset struct {
	rules []rule
}

// NewRuleset creates a Ruleset from raw pattern strings.
// Blank patterns are skipped.
func NewRuleset(patterns []string) *Ruleset {
	var rules []rule
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		rules = append(rules, rule{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
			subtree:   strings.HasSuffix(raw, "/*"),
		})
	}
	return &Ruleset{rules: rules}
}

// RestoreRules returns the exclusion set applied when pulling state down.
func RestoreRules() *Ruleset {
	return NewRuleset(baseRules)
}

// BackupRules returns the exclusion set applied when pushing state up.
// It extends the restore set with the live database patterns.
func BackupRules() *Ruleset {
	return NewRuleset(append(append([]string{}, baseRules...), liveDatabaseRules...))
}

// Excluded reports whether the given relative path is excluded from sync.
// relPath must use forward slashes and be relative to the state root.
func (r *Ruleset) Excluded(relPath string) bool {
	if len(r.rules) == 0 {
		return false
	}

	basename := path.Base(relPath)

	for _, ru := range r.rules {
		if ru.subtree {
			if strings.HasPrefix(relPath, ru.pattern[:len(ru.pattern)-1]) {
				return true
			}
			continue
		}

		var matched bool
		var err error
		if ru.matchPath {
			matched, err = path.Match(ru.pattern, relPath)
		} else {
			matched, err = path.Match(ru.pattern, basename)
		}
		if err != nil {
			// Bad pattern — skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
