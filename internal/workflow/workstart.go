package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codexswarm/agentctl/internal/branch"
	"github.com/codexswarm/agentctl/internal/config"
	"github.com/codexswarm/agentctl/internal/doc"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

// ScaffoldParams configure task doc scaffolding.
type ScaffoldParams struct {
	TaskID    string
	Title     string
	Overwrite bool
}

// Scaffold writes the task README skeleton, preserving an existing
// frontmatter block when overwriting.
func (e *Engine) Scaffold(p ScaffoldParams) error {
	path, _, err := e.scaffoldTaskReadme(p)
	if err != nil {
		return err
	}
	rel, relErr := filepath.Rel(e.Git.RepoPath(), path)
	if relErr != nil {
		rel = path
	}
	e.info("✅ scaffolded %s", rel)
	return nil
}

func (e *Engine) scaffoldTaskReadme(p ScaffoldParams) (path string, created bool, err error) {
	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		return "", false, swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		if t, getErr := e.Store.Get(taskID); getErr == nil {
			title = t.Title
		}
	}

	path = e.TaskReadmePath(taskID)
	existing, readErr := os.ReadFile(path)
	if readErr == nil && !p.Overwrite {
		return "", false, swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"task doc already exists: %s (use --overwrite to replace)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("create task dir: %w", err)
	}

	content := doc.ReadmeTemplate(taskID, title, e.Config.DocSections())
	if readErr == nil {
		if front, _ := doc.SplitFrontmatterBlock(string(existing)); front != "" {
			content = front + "\n" + content
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", false, fmt.Errorf("write task doc: %w", err)
	}
	return path, true, nil
}

// WorkStartParams configure work start.
type WorkStartParams struct {
	TaskID string
	// Agent signs the PR artifact and names the worktree (branch_pr mode).
	Agent     string
	Slug      string
	Base      string
	Overwrite bool
}

// WorkStart prepares everything an agent needs to begin a task. In direct
// mode it scaffolds the task README; in branch_pr mode it also creates (or
// reuses) the task branch and worktree and opens the PR artifact there.
func (e *Engine) WorkStart(p WorkStartParams) error {
	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}

	if e.Config.WorkflowMode.IsDirect() {
		path := e.TaskReadmePath(taskID)
		if _, err := os.Stat(path); os.IsNotExist(err) || p.Overwrite {
			if _, _, err := e.scaffoldTaskReadme(ScaffoldParams{TaskID: taskID, Overwrite: true}); err != nil {
				return err
			}
		}
		rel, err := filepath.Rel(e.Git.RepoPath(), path)
		if err != nil {
			rel = path
		}
		e.PrintBlock("CONTEXT", e.Context())
		e.PrintBlock("ACTION", "Prepare working context for "+taskID)
		e.PrintBlock("RESULT", "readme="+rel)
		e.PrintBlock("NEXT", "Edit the README, then `agentctl start "+taskID+" --author <AGENT> --body \"Start: ...\"`.")
		return nil
	}

	agent := strings.TrimSpace(p.Agent)
	if agent == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField,
			"--agent is required in workflow_mode='branch_pr' (e.g., --agent CODER)")
	}

	e.PrintBlock("CONTEXT", e.Context())
	e.PrintBlock("ACTION", "Prepare branch, worktree, and PR artifact for "+taskID)

	res, err := e.Branches.Create(branch.CreateParams{
		TaskID: taskID,
		Agent:  agent,
		Slug:   p.Slug,
		Base:   p.Base,
		Reuse:  true,
	})
	if err != nil {
		return e.withContext(err)
	}
	if _, err := os.Stat(res.Worktree); err != nil {
		return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "worktree missing after create: %s", res.Worktree)
	}

	wt, err := e.worktreeEngine(res.Worktree)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(wt.TaskReadmePath(taskID)); os.IsNotExist(statErr) || p.Overwrite {
		if _, _, err := wt.scaffoldTaskReadme(ScaffoldParams{TaskID: taskID, Overwrite: true}); err != nil {
			return err
		}
	}

	base := strings.TrimSpace(p.Base)
	if base == "" {
		base = e.Config.ResolveBaseBranch(e.Git)
	}
	prState := "opened"
	if wt.Artifacts(taskID).Exists() {
		prState = "updated"
		if err := wt.PRUpdate(PRUpdateParams{TaskID: taskID, Branch: res.Branch, Base: base}); err != nil {
			return err
		}
	} else {
		if err := wt.PROpen(PROpenParams{TaskID: taskID, Branch: res.Branch, Base: base, Author: agent}); err != nil {
			return err
		}
	}

	e.PrintBlock("RESULT", "branch="+res.Branch+" worktree="+res.Worktree+" pr="+prState)
	e.PrintBlock("NEXT", "cd "+res.Worktree+" and begin; every commit subject must mention "+taskID+".")
	return nil
}

// worktreeEngine binds a quiet engine to a task worktree checkout, sharing
// the root store (the snapshot has a single writer on the base branch).
func (e *Engine) worktreeEngine(worktreePath string) (*Engine, error) {
	cfg, err := config.Load(worktreePath)
	if err != nil {
		return nil, err
	}
	wt := New(e.Git.InWorktree(worktreePath), cfg, e.Store, e.Out)
	wt.Quiet = true
	wt.VerifyExec = e.VerifyExec
	return wt, nil
}

// CleanupMerged deletes task branches whose diff against base is empty and
// whose task is DONE, along with their worktrees. Without yes it only
// previews the candidates.
func (e *Engine) CleanupMerged(yes bool) error {
	if err := branch.RequireNotTaskWorktree(e.Git, e.Config.WorktreesDirRel(), "cleanup merged"); err != nil {
		return e.withContext(err)
	}
	if err := branch.RequireRepoRoot(e.Git, e.Cwd, "cleanup merged"); err != nil {
		return e.withContext(err)
	}
	base := e.Config.ResolveBaseBranch(e.Git)
	if err := branch.RequireBranch(e.Git, base, "cleanup merged"); err != nil {
		return e.withContext(err)
	}
	if err := branch.RequireClean(e.Git, "cleanup merged"); err != nil {
		return e.withContext(err)
	}
	if err := branch.RequireIgnored(e.Git, e.Config.WorktreesDirRel()); err != nil {
		return e.withContext(err)
	}

	candidates, err := e.Branches.MergedCandidates(base)
	if err != nil {
		return err
	}

	e.PrintBlock("CONTEXT", e.Context())
	e.PrintBlock("ACTION", "Delete fully merged task branches and their worktrees")
	if len(candidates) == 0 {
		e.PrintBlock("RESULT", "no candidates")
		return nil
	}
	for _, c := range candidates {
		e.info("- %s: branch=%s worktree=%s", c.TaskID, c.Branch, c.Worktree)
	}
	if !yes {
		e.PrintBlock("NEXT", "Re-run with --yes to delete the branches and worktrees above.")
		return nil
	}
	deleted, err := e.Branches.RemoveCandidates(candidates)
	if err != nil {
		return err
	}
	e.PrintBlock("RESULT", fmt.Sprintf("deleted=%d", deleted))
	return nil
}
