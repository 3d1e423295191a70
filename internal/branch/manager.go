package branch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/task"
)

// Manager runs the branch and worktree lifecycle against one checkout.
type Manager struct {
	Git    *git.Context
	Config *config.Config
	Store  *task.Store
}

// CreateParams configure Create.
type CreateParams struct {
	TaskID string
	Agent  string
	Slug   string
	Base   string // empty resolves the configured base branch
	Reuse  bool
}

// CreateResult describes the branch and worktree Create produced.
type CreateResult struct {
	Branch   string
	Worktree string
	Reused   bool
}

// Create makes the task branch and its worktree checkout. Only branch_pr
// mode may create branches; an existing branch or worktree is only picked up
// again with Reuse set, and never when it is registered elsewhere.
func (m *Manager) Create(p CreateParams) (CreateResult, error) {
	var zero CreateResult
	if err := RequireNotTaskWorktree(m.Git, m.Config.WorktreesDirRel(), "branch create"); err != nil {
		return zero, err
	}
	if err := RequireClean(m.Git, "branch create"); err != nil {
		return zero, err
	}
	if err := RequireIgnored(m.Git, m.Config.WorktreesDirRel()); err != nil {
		return zero, err
	}
	if m.Config.WorkflowMode.IsDirect() {
		return zero, &swarmerrors.Error{
			Code: swarmerrors.CodeContextWrongMode,
			What: "refusing branch/worktree creation in workflow_mode='direct'",
			Fix:  "Work directly in the current checkout, or switch the config to workflow_mode='branch_pr'",
		}
	}

	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		return zero, swarmerrors.New(swarmerrors.CodeInputEmptyField, "task id must be non-empty")
	}
	agent := strings.TrimSpace(p.Agent)
	if agent == "" {
		return zero, &swarmerrors.Error{
			Code: swarmerrors.CodeInputEmptyField,
			What: "--agent is required in workflow_mode='branch_pr'",
			Fix:  "Pass --agent, e.g. --agent CODER",
		}
	}

	slug := git.NormalizeSlug(firstNonEmpty(p.Slug, m.taskTitle(taskID), "work"))
	base := strings.TrimSpace(p.Base)
	if base == "" {
		base = m.Config.ResolveBaseBranch(m.Git)
	}
	if !m.Git.BranchExists(base) {
		return zero, swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "base branch does not exist: %s", base)
	}

	branch := git.TaskBranch(m.Config.TaskBranchPrefix(), taskID, slug)
	worktreePath := filepath.Join(m.Config.WorktreesDir(), git.WorktreeDirName(taskID, slug))

	if attached, ok := m.Git.WorktreePathFor(branch); ok {
		if !samePath(attached, worktreePath) {
			return zero, swarmerrors.Newf(swarmerrors.CodeContextWrongBranch,
				"branch is already checked out in another worktree: %s", attached)
		}
		if !p.Reuse {
			return zero, &swarmerrors.Error{
				Code: swarmerrors.CodeContextWrongBranch,
				What: "branch is already checked out in an existing worktree: " + attached,
				Fix:  "Pass --reuse to pick the worktree up again",
			}
		}
	}
	if m.Git.BranchExists(branch) && !p.Reuse {
		return zero, &swarmerrors.Error{
			Code: swarmerrors.CodeContextWrongBranch,
			What: "branch already exists: " + branch,
			Fix:  "Pass --reuse to reuse the existing worktree",
		}
	}

	if _, err := os.Stat(worktreePath); err == nil {
		if !p.Reuse {
			return zero, &swarmerrors.Error{
				Code: swarmerrors.CodeContextWrongBranch,
				What: "worktree path already exists: " + worktreePath,
				Fix:  "Pass --reuse if it is a registered worktree for this branch",
			}
		}
		registered, ok := m.Git.BranchForWorktree(worktreePath)
		if !ok || registered != branch {
			return zero, swarmerrors.Newf(swarmerrors.CodeContextWrongBranch,
				"worktree path exists but is not registered for '%s': %s (registered: '%s')",
				branch, worktreePath, registered)
		}
		return CreateResult{Branch: branch, Worktree: worktreePath, Reused: true}, nil
	}

	if err := os.MkdirAll(m.Config.WorktreesDir(), 0o755); err != nil {
		return zero, fmt.Errorf("create worktrees dir: %w", err)
	}
	if m.Git.BranchExists(branch) {
		if err := m.Git.AddWorktree(worktreePath, branch); err != nil {
			return zero, err
		}
	} else {
		if err := m.Git.AddWorktreeNewBranch(worktreePath, branch, base); err != nil {
			return zero, err
		}
	}
	return CreateResult{Branch: branch, Worktree: worktreePath}, nil
}

// StatusResult is the divergence report for one task branch.
type StatusResult struct {
	Branch   string
	Base     string
	Ahead    int
	Behind   int
	TaskID   string // empty when the branch is not a task branch
	Worktree string // empty when no worktree holds the branch
}

// Status reports ahead/behind counts of branch against base, plus the task
// id and worktree attached to it.
func (m *Manager) Status(branchName, base string) (StatusResult, error) {
	var zero StatusResult
	name := strings.TrimSpace(branchName)
	if name == "" {
		current, err := m.Git.CurrentBranch()
		if err != nil {
			return zero, err
		}
		name = current
	}
	baseName := strings.TrimSpace(base)
	if baseName == "" {
		baseName = m.Config.ResolveBaseBranch(m.Git)
	}
	if !m.Git.BranchExists(name) {
		return zero, swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown branch: %s", name)
	}
	if !m.Git.BranchExists(baseName) {
		return zero, swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown base branch: %s", baseName)
	}

	ahead, behind, err := m.Git.AheadBehind(name, baseName)
	if err != nil {
		return zero, err
	}
	result := StatusResult{Branch: name, Base: baseName, Ahead: ahead, Behind: behind}
	if taskID, ok := git.ParseTaskBranch(m.Config.TaskBranchPrefix(), name); ok {
		result.TaskID = taskID
	}
	if path, ok := m.Git.WorktreePathFor(name); ok {
		result.Worktree = path
	}
	return result, nil
}

// RemoveParams configure Remove. At least one of Branch and Worktree must be
// set.
type RemoveParams struct {
	Branch   string
	Worktree string
	Force    bool
}

// Remove deletes a task worktree and/or branch. Worktree paths outside the
// configured worktrees directory are refused.
func (m *Manager) Remove(p RemoveParams) error {
	if err := RequireNotTaskWorktree(m.Git, m.Config.WorktreesDirRel(), "branch remove"); err != nil {
		return err
	}
	branchName := strings.TrimSpace(p.Branch)
	worktree := strings.TrimSpace(p.Worktree)
	if branchName == "" && worktree == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "provide --branch and/or --worktree")
	}

	if worktree != "" {
		path := worktree
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.Git.RepoPath(), path)
		}
		path = filepath.Clean(path)
		root := filepath.Clean(m.Config.WorktreesDir())
		if !pathWithin(path, root) {
			return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch,
				"refusing to remove worktree outside %s: %s", root, path)
		}
		if err := m.Git.RemoveWorktree(path, p.Force); err != nil {
			return err
		}
	}

	if branchName != "" {
		if !m.Git.BranchExists(branchName) {
			return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown branch: %s", branchName)
		}
		if err := m.Git.DeleteBranch(branchName, p.Force); err != nil {
			return err
		}
	}
	return nil
}

// Candidate is one task branch eligible for cleanup: its task is DONE and
// the branch carries no changes against the base.
type Candidate struct {
	TaskID   string
	Branch   string
	Worktree string
}

// MergedCandidates scans the task branches for cleanup candidates. The
// per-branch diff checks run concurrently.
func (m *Manager) MergedCandidates(base string) ([]Candidate, error) {
	baseName := strings.TrimSpace(base)
	if baseName == "" {
		baseName = m.Config.ResolveBaseBranch(m.Git)
	}
	if !m.Git.BranchExists(baseName) {
		return nil, swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown base branch: %s", baseName)
	}

	view, err := m.Store.View()
	if err != nil {
		return nil, err
	}
	branches, err := m.Git.Branches(m.Config.TaskBranchPrefix())
	if err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
	)
	var group errgroup.Group
	group.SetLimit(4)
	for _, name := range branches {
		taskID, ok := git.ParseTaskBranch(m.Config.TaskBranchPrefix(), name)
		if !ok {
			continue
		}
		t, ok := view.ByID[taskID]
		if !ok || t.Status != task.StatusDone {
			continue
		}
		branchName := name
		group.Go(func() error {
			changed, err := m.Git.DiffNames(baseName, branchName)
			if err != nil {
				return err
			}
			if len(changed) > 0 {
				return nil
			}
			candidate := Candidate{TaskID: taskID, Branch: branchName}
			if path, ok := m.Git.WorktreePathFor(branchName); ok {
				candidate.Worktree = path
			}
			mu.Lock()
			candidates = append(candidates, candidate)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Branch < candidates[j].Branch })
	return candidates, nil
}

// RemoveCandidates force-removes the given cleanup candidates and returns
// how many were deleted.
func (m *Manager) RemoveCandidates(candidates []Candidate) (int, error) {
	deleted := 0
	for _, c := range candidates {
		if err := m.Remove(RemoveParams{Branch: c.Branch, Worktree: c.Worktree, Force: true}); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (m *Manager) taskTitle(taskID string) string {
	if m.Store == nil {
		return ""
	}
	t, err := m.Store.Get(taskID)
	if err != nil || t == nil {
		return ""
	}
	return strings.TrimSpace(t.Title)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func samePath(a, b string) bool {
	ar, err := filepath.EvalSymlinks(a)
	if err != nil {
		ar = filepath.Clean(a)
	}
	br, err := filepath.EvalSymlinks(b)
	if err != nil {
		br = filepath.Clean(b)
	}
	return ar == br
}

func pathWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
