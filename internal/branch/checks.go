// Package branch manages the task branch and worktree lifecycle: creation
// with reuse semantics, status against the base branch, guarded removal, and
// cleanup of merged task branches.
package branch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
)

// CommandContext renders the context footer printed with every guarded
// operation: resolved root, relative cwd, branch, workflow mode.
func CommandContext(g *git.Context, cwd string, mode config.Mode) string {
	root := g.RepoPath()
	rel := "."
	if abs, err := filepath.Abs(cwd); err == nil && abs != root {
		if r, err := filepath.Rel(root, abs); err == nil {
			rel = r
		}
	}
	branch, err := g.CurrentBranch()
	if err != nil {
		branch = "?"
	}
	return fmt.Sprintf("repo_root=%s cwd=%s branch='%s' workflow_mode='%s'", root, rel, branch, mode)
}

// RequireNotTaskWorktree refuses to run from a task worktree checkout.
func RequireNotTaskWorktree(g *git.Context, worktreesRel, action string) error {
	inWorktree, err := g.IsTaskWorktree(worktreesRel)
	if err != nil {
		return err
	}
	if inWorktree {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeContextTaskWorktree,
			What: fmt.Sprintf("refusing %s: run from the repo root checkout, not from %s/*", action, worktreesRel),
			Fix:  "cd to the main checkout and re-run",
		}
	}
	return nil
}

// RequireClean refuses to run over a dirty working tree.
func RequireClean(g *git.Context, action string) error {
	dirty, err := g.DirtyPaths()
	if err != nil {
		return err
	}
	if len(dirty) > 0 {
		e := swarmerrors.ErrDirtyTree(action)
		e.Why = "dirty: " + strings.Join(dirty, ", ")
		return e
	}
	return nil
}

// RequireBranch refuses to run unless the checkout is on the named branch.
func RequireBranch(g *git.Context, name, action string) error {
	current, err := g.CurrentBranch()
	if err != nil {
		return err
	}
	if current != name {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeContextWrongBranch,
			What: fmt.Sprintf("refusing %s: must be on '%s' (current: '%s')", action, name, current),
			Fix:  fmt.Sprintf("`git checkout %s` with a clean tree, then re-run", name),
		}
	}
	return nil
}

// RequireRepoRoot refuses to run from anywhere but the checkout root.
func RequireRepoRoot(g *git.Context, cwd, action string) error {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	root := g.RepoPath()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if abs != root {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeContextNotRepoRoot,
			What: fmt.Sprintf("refusing %s: command must run from the repo root directory", action),
			Fix:  "cd " + g.RepoPath() + " and re-run",
		}
	}
	return nil
}

// RequireIgnored refuses to run while the target path is not gitignored, so
// worktree checkouts never become tracked content.
func RequireIgnored(g *git.Context, target string) error {
	if strings.TrimSpace(target) == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "missing ignore target")
	}
	if !g.IsIgnored(target) {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeConfigInvalid,
			What: fmt.Sprintf("refusing operation: %q is not ignored by git", target),
			Fix:  fmt.Sprintf("Add `%s` to .gitignore, then re-run", target),
		}
	}
	return nil
}
