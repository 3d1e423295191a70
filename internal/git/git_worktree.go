package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Worktree is one entry from `git worktree list --porcelain`.
type Worktree struct {
	Path     string // filesystem path to the checkout
	Head     string // HEAD commit SHA
	Branch   string // short branch name, empty when detached
	Detached bool
}

// ListWorktrees returns all worktrees registered for this repository.
func (g *Context) ListWorktrees() ([]Worktree, error) {
	out, err := g.runGit("worktree", "list", "--porcelain")
	if err != nil {
		return nil, &GitError{Op: "list worktrees", Err: err}
	}
	return parseWorktreePorcelain(out), nil
}

// parseWorktreePorcelain parses `git worktree list --porcelain` output.
// Entries are blank-line separated blocks of "key value" lines.
func parseWorktreePorcelain(text string) []Worktree {
	var (
		entries []Worktree
		current Worktree
		seen    bool
	)
	flush := func() {
		if seen {
			entries = append(entries, current)
			current = Worktree{}
			seen = false
		}
	}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			current.Path = strings.TrimSpace(value)
			seen = true
		case "HEAD":
			current.Head = strings.TrimSpace(value)
		case "branch":
			current.Branch = strings.TrimPrefix(strings.TrimSpace(value), "refs/heads/")
		case "detached":
			current.Detached = true
		}
	}
	flush()
	return entries
}

// AddWorktree checks out an existing branch into a new worktree at path.
func (g *Context) AddWorktree(path, branch string) error {
	if _, err := os.Stat(path); err == nil {
		return ErrWorktreeExists
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create worktrees dir: %w", err)
	}
	if _, err := g.runGit("worktree", "add", path, branch); err != nil {
		return &GitError{Op: "add worktree", Err: err}
	}
	return nil
}

// AddWorktreeNewBranch creates branch at base and checks it out into a new
// worktree at path in one step.
func (g *Context) AddWorktreeNewBranch(path, branch, base string) error {
	if _, err := os.Stat(path); err == nil {
		return ErrWorktreeExists
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create worktrees dir: %w", err)
	}
	if _, err := g.runGit("worktree", "add", "-b", branch, path, base); err != nil {
		return &GitError{Op: "add worktree with new branch", Err: err}
	}
	return nil
}

// RemoveWorktree unregisters and deletes a worktree checkout.
func (g *Context) RemoveWorktree(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, err := g.runGit(args...); err != nil {
		return &GitError{Op: "remove worktree", Err: err}
	}
	return nil
}

// PruneWorktrees drops stale worktree registrations.
func (g *Context) PruneWorktrees() error {
	if _, err := g.runGit("worktree", "prune"); err != nil {
		return &GitError{Op: "prune worktrees", Err: err}
	}
	return nil
}

// WorktreePathFor returns the checkout path holding the given branch.
func (g *Context) WorktreePathFor(branch string) (string, bool) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return "", false
	}
	entries, err := g.ListWorktrees()
	if err != nil {
		return "", false
	}
	for _, wt := range entries {
		if wt.Branch == branch {
			return wt.Path, true
		}
	}
	return "", false
}

// BranchForWorktree returns the branch checked out at path.
func (g *Context) BranchForWorktree(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	entries, err := g.ListWorktrees()
	if err != nil {
		return "", false
	}
	for _, wt := range entries {
		wtAbs, err := filepath.Abs(wt.Path)
		if err != nil {
			continue
		}
		if wtAbs == abs && wt.Branch != "" {
			return wt.Branch, true
		}
	}
	return "", false
}

// IsTaskWorktree reports whether this checkout's toplevel lies under the
// worktrees directory of the main repository. Task-store writes and
// integration refuse to run from such checkouts.
func (g *Context) IsTaskWorktree(worktreesDirname string) (bool, error) {
	mainRoot, err := g.MainRoot()
	if err != nil {
		return false, err
	}
	if mainRoot == g.repoPath {
		return false, nil
	}
	worktreesDir := filepath.Join(mainRoot, filepath.FromSlash(worktreesDirname))
	if resolved, err := filepath.EvalSymlinks(worktreesDir); err == nil {
		worktreesDir = resolved
	}
	repo := g.repoPath
	if resolved, err := filepath.EvalSymlinks(repo); err == nil {
		repo = resolved
	}
	return pathWithin(repo, worktreesDir), nil
}
