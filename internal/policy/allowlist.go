package policy

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Allowlist is the set of path prefixes and glob patterns a guarded commit
// may touch. Entries without glob metacharacters match as directory
// prefixes; entries with them match as doublestar patterns.
type Allowlist []string

// NewAllowlist normalizes entries: trims whitespace and leading "./", drops
// empties.
func NewAllowlist(entries []string) Allowlist {
	var out Allowlist
	for _, entry := range entries {
		normalized := normalizeAllowPath(entry)
		if normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

// Empty reports whether no entries survived normalization.
func (a Allowlist) Empty() bool {
	return len(a) == 0
}

// Matches reports whether path falls under any allowlist entry.
func (a Allowlist) Matches(path string) bool {
	p := normalizeAllowPath(path)
	if p == "" {
		return false
	}
	for _, entry := range a {
		if strings.ContainsAny(entry, "*?[{") {
			if ok, err := doublestar.Match(entry, p); err == nil && ok {
				return true
			}
			continue
		}
		if PathUnder(p, entry) {
			return true
		}
	}
	return false
}

// PathUnder reports whether path equals prefix or lies beneath it.
func PathUnder(path, prefix string) bool {
	p := normalizeAllowPath(path)
	root := strings.TrimSuffix(normalizeAllowPath(prefix), "/")
	if root == "" {
		return false
	}
	return p == root || strings.HasPrefix(p, root+"/")
}

// SuggestAllowPrefixes derives allowlist entries from changed paths: the
// containing directory for nested paths, the file itself at the root.
func SuggestAllowPrefixes(paths []string) []string {
	seen := map[string]bool{}
	var prefixes []string
	for _, raw := range paths {
		path := normalizeAllowPath(raw)
		if path == "" {
			continue
		}
		prefix := path
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			prefix = path[:idx]
		}
		if !seen[prefix] {
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)
	return prefixes
}

func normalizeAllowPath(value string) string {
	v := strings.TrimSpace(value)
	for strings.HasPrefix(v, "./") {
		v = v[2:]
	}
	return v
}
