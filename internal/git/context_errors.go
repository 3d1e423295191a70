package git

import "errors"

// Git context operation errors.
var (
	// ErrNotGitRepo indicates the path is not inside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrWorktreeExists indicates a worktree already exists for the branch.
	ErrWorktreeExists = errors.New("worktree already exists for this branch")

	// ErrWorktreeNotFound indicates the worktree does not exist.
	ErrWorktreeNotFound = errors.New("worktree not found")

	// ErrBranchExists indicates the branch already exists.
	ErrBranchExists = errors.New("branch already exists")

	// ErrNothingToCommit indicates there are no staged changes to commit.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrMergeConflict indicates a merge stopped on conflicts and was
	// rolled back.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrHooksOutsideRepo indicates core.hooksPath points outside the
	// repository, where managed hooks refuse to write.
	ErrHooksOutsideRepo = errors.New("hooks directory resolves outside the repository")
)

// GitError wraps a git command error with the operation that failed.
// Named GitError (not Error) to avoid collision with the builtin interface.
type GitError struct {
	Op     string // operation that failed (e.g. "commit", "rebase")
	Output string // combined stdout/stderr when captured
	Err    error  // underlying error
}

func (e *GitError) Error() string {
	if e.Output != "" {
		return e.Op + ": " + e.Output
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *GitError) Unwrap() error {
	return e.Err
}
