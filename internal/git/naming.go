package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxBranchNameLength is the maximum allowed length for branch names.
const MaxBranchNameLength = 256

// ErrInvalidBranchName indicates a branch name failed validation.
var ErrInvalidBranchName = errors.New("invalid branch name")

// branchNamePattern validates branch names: alphanumeric, slash, hyphen,
// underscore, dot. Must start with alphanumeric.
var branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeSlug lowercases value and collapses runs of non-alphanumerics to
// single dashes. Empty input becomes "work" so branch names stay well formed.
func NormalizeSlug(value string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	raw = strings.ReplaceAll(raw, "_", "-")
	raw = strings.ReplaceAll(raw, " ", "-")
	raw = strings.Trim(slugPattern.ReplaceAllString(raw, "-"), "-")
	if raw == "" {
		return "work"
	}
	return raw
}

// TaskBranch builds the branch name for a task: <prefix>/<task-id>/<slug>.
func TaskBranch(prefix, taskID, slug string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, taskID, NormalizeSlug(slug))
}

// TaskBranchPattern returns the regexp matching task branches for a prefix.
// The capture group is the task id.
func TaskBranchPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `/(\d{12}-[0-9A-Z]{4,})/[^/]+$`)
}

// ParseTaskBranch extracts the task id from a task branch name.
// Returns ok=false for branches outside the <prefix>/<id>/<slug> shape.
func ParseTaskBranch(prefix, branch string) (taskID string, ok bool) {
	m := TaskBranchPattern(prefix).FindStringSubmatch(strings.TrimSpace(branch))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// WorktreeDirName returns the directory name for a task's worktree
// checkout: <task-id>-<slug>.
func WorktreeDirName(taskID, slug string) string {
	return taskID + "-" + NormalizeSlug(slug)
}

// ValidateBranchName validates a user-supplied branch name before it reaches
// a git subcommand.
//
// Validation rules:
//   - Must not be empty or exceed MaxBranchNameLength
//   - Must start with an alphanumeric character
//   - May only contain: a-z, A-Z, 0-9, /, -, _, .
//   - Must not contain "..", "@{", "//", or dot-adjacent path components
//   - Must not end with "/", ".", or ".lock"
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidBranchName)
	}
	if len(name) > MaxBranchNameLength {
		return fmt.Errorf("%w: exceeds maximum length of %d characters", ErrInvalidBranchName, MaxBranchNameLength)
	}
	if strings.EqualFold(name, "head") || name == "@" {
		return fmt.Errorf("%w: %q is reserved by git", ErrInvalidBranchName, name)
	}
	if strings.Contains(name, "@{") {
		return fmt.Errorf("%w: cannot contain '@{' (git revision syntax)", ErrInvalidBranchName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: cannot contain '..'", ErrInvalidBranchName)
	}
	if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: cannot end with '.lock', '.', or '/'", ErrInvalidBranchName)
	}
	if strings.Contains(name, "//") || strings.Contains(name, "/.") || strings.Contains(name, "./") {
		return fmt.Errorf("%w: path components cannot be empty or dot-adjacent", ErrInvalidBranchName)
	}
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("%w: contains invalid characters (allowed: a-z, A-Z, 0-9, /, -, _, .)", ErrInvalidBranchName)
	}
	return nil
}
