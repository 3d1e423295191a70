package policy

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/task"
)

// Guard enforces the commit rules against one checkout.
type Guard struct {
	Git    *git.Context
	Config *config.Config
}

// CheckClean fails when the index already has staged files. Used before
// operations that stage their own allowlisted set.
func (gd *Guard) CheckClean() error {
	staged, err := gd.Git.StagedPaths()
	if err != nil {
		return err
	}
	if len(staged) > 0 {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeStateAllowlist,
			What: "index is not clean",
			Why:  "staged: " + strings.Join(staged, ", "),
			Fix:  "Commit or unstage the listed files (`git restore --staged <path>`), then re-run",
		}
	}
	return nil
}

// CommitCheckParams are the inputs to CommitCheck.
type CommitCheckParams struct {
	TaskID       string
	Message      string
	Allow        Allowlist
	AllowTasks   bool
	RequireClean bool
}

// CommitCheck enforces the full pre-commit gate: subject rules, branch and
// worktree constraints in branch_pr mode, and the staged-file allowlist.
// Returned warnings are advisory (printed unless quiet); a non-nil error
// means the commit must not happen.
func (gd *Guard) CommitCheck(p CommitCheckParams) (warnings []string, err error) {
	if !SubjectMentionsTask(p.TaskID, p.Message) {
		return nil, &swarmerrors.Error{
			Code: swarmerrors.CodeStateCommitSubject,
			What: MissingSubjectError([]string{p.TaskID}, p.Message),
			Fix:  "Include the task id suffix (segment after the last dash) in the commit subject",
		}
	}
	if !HasMeaningfulSummary(p.TaskID, p.Message, gd.Config.GenericCommitTokens()) {
		return nil, &swarmerrors.Error{
			Code: swarmerrors.CodeStateCommitSubject,
			What: "commit message is too generic",
			Fix:  `Include a short summary (and constraints when relevant), e.g. "✨ <task-id> Add X (no network)"`,
		}
	}

	staged, err := gd.Git.StagedPaths()
	if err != nil {
		return nil, err
	}
	if len(staged) == 0 {
		return nil, swarmerrors.New(swarmerrors.CodeStateAllowlist, "no staged files")
	}

	tasksRel := filepath.ToSlash(gd.Config.TasksFileRel())
	tasksStaged := containsPath(staged, tasksRel)

	if gd.Config.WorkflowMode.IsBranchPR() {
		currentBranch, err := gd.Git.CurrentBranch()
		if err != nil {
			return nil, err
		}
		baseBranch := gd.Config.ResolveBaseBranch(gd.Git)

		if !p.AllowTasks && currentBranch == baseBranch {
			return nil, &swarmerrors.Error{
				Code: swarmerrors.CodeContextWrongBranch,
				What: "refusing commit: code/docs commits are forbidden on base branch " +
					quote(baseBranch) + " in workflow_mode='branch_pr'",
				Fix: "Create a task branch + worktree with `agentctl work start " + p.TaskID +
					" --agent <AGENT> --slug <slug> --worktree`, then commit from `" +
					task.TaskBranchExample(gd.Config.TaskBranchPrefix(), p.TaskID, "<slug>") + "`",
			}
		}
		if tasksStaged && !p.AllowTasks {
			return nil, &swarmerrors.Error{
				Code: swarmerrors.CodeStateAllowlist,
				What: "refusing commit: " + tasksRel + " is forbidden in workflow_mode='branch_pr'",
				Fix: "Remove it from the index (`git restore --staged " + tasksRel + "`); " +
					"the snapshot only changes on " + baseBranch + " in closure commits",
			}
		}
		if tasksStaged && p.AllowTasks {
			inWorktree, err := gd.Git.IsTaskWorktree(gd.Config.WorktreesDirRel())
			if err != nil {
				return nil, err
			}
			if inWorktree {
				return nil, &swarmerrors.Error{
					Code: swarmerrors.CodeContextTaskWorktree,
					What: "refusing commit: " + tasksRel + " from a worktree checkout",
					Fix:  "Run snapshot-writing commits from the base checkout",
				}
			}
			if currentBranch != baseBranch {
				return nil, &swarmerrors.Error{
					Code: swarmerrors.CodeContextWrongBranch,
					What: "refusing commit: " + tasksRel + " allowed only on " +
						quote(baseBranch) + " in branch_pr mode",
				}
			}
		}
		if !p.AllowTasks {
			parsed, ok := git.ParseTaskBranch(gd.Config.TaskBranchPrefix(), currentBranch)
			if !ok || parsed != p.TaskID {
				return nil, &swarmerrors.Error{
					Code: swarmerrors.CodeContextWrongBranch,
					What: "refusing commit: branch " + quote(currentBranch) +
						" does not match task " + p.TaskID,
					Fix: "Switch to `" + task.TaskBranchExample(gd.Config.TaskBranchPrefix(), p.TaskID, "<slug>") + "`",
				}
			}
		}
	}

	if p.Allow.Empty() {
		return nil, &swarmerrors.Error{
			Code: swarmerrors.CodeStateAllowlist,
			What: "provide at least one --allow <path> prefix",
			Fix:  "Pass --allow entries, or use `agentctl guard suggest-allow` to derive them from the index",
		}
	}

	unstaged, err := gd.Git.UnstagedPaths()
	if err != nil {
		return nil, err
	}
	if len(unstaged) > 0 {
		if p.RequireClean {
			e := swarmerrors.ErrDirtyTree("commit with --require-clean")
			e.Why = "unstaged: " + strings.Join(unstaged, ", ")
			return nil, e
		}
		warnings = append(warnings,
			"working tree has unstaged files; ignoring (multi-agent workspace): "+strings.Join(unstaged, ", "))
	}

	for _, path := range staged {
		slashed := filepath.ToSlash(path)
		if slashed == tasksRel && !p.AllowTasks {
			return nil, &swarmerrors.Error{
				Code: swarmerrors.CodeStateAllowlist,
				What: "staged file is forbidden by default: " + path,
				Fix:  "Use --allow-tasks to override",
			}
		}
		if !p.Allow.Matches(slashed) {
			return nil, &swarmerrors.Error{
				Code: swarmerrors.CodeStateAllowlist,
				What: "staged file is outside allowlist: " + path,
				Fix:  "Broaden --allow, or unstage the file",
			}
		}
	}

	if err := gd.validateTaskReadmeMetadata(staged); err != nil {
		return nil, err
	}
	return warnings, nil
}

// StageAllowlist stages every changed path matching the allowlist and
// returns the staged set, sorted. The snapshot file is skipped unless
// allowTasks is set.
func (gd *Guard) StageAllowlist(allow Allowlist, allowTasks bool) ([]string, error) {
	changed, err := gd.Git.ChangedPaths()
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, swarmerrors.New(swarmerrors.CodeStateAllowlist, "no changes to stage")
	}
	tasksRel := filepath.ToSlash(gd.Config.TasksFileRel())
	seen := map[string]bool{}
	var matched []string
	for _, path := range changed {
		slashed := filepath.ToSlash(path)
		if slashed == tasksRel && !allowTasks {
			continue
		}
		if allow.Matches(slashed) && !seen[path] {
			seen[path] = true
			matched = append(matched, path)
		}
	}
	if len(matched) == 0 {
		return nil, &swarmerrors.Error{
			Code: swarmerrors.CodeStateAllowlist,
			What: "no changes matched the allowed prefixes",
			Fix:  "Use --commit-auto-allow or broaden --commit-allow",
		}
	}
	sort.Strings(matched)
	if err := gd.Git.Stage(matched...); err != nil {
		return nil, err
	}
	return matched, nil
}

// validateTaskReadmeMetadata rejects staged task READMEs whose frontmatter
// lacks the doc metadata stamp, so hand-edited docs go back through the doc
// commands.
func (gd *Guard) validateTaskReadmeMetadata(staged []string) error {
	tasksDirPrefix := config.SwarmDirName + "/tasks/"
	for _, path := range staged {
		slashed := filepath.ToSlash(path)
		if !strings.HasPrefix(slashed, tasksDirPrefix) || !strings.HasSuffix(slashed, "/README.md") {
			continue
		}
		target := filepath.Join(gd.Git.RepoPath(), filepath.FromSlash(slashed))
		data, err := os.ReadFile(target)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		parsed := task.ParseFrontmatter(string(data))
		if !docMetadataStamped(parsed.Frontmatter) {
			return &swarmerrors.Error{
				Code: swarmerrors.CodeStateDocIncomplete,
				What: "task README " + slashed + " is missing doc metadata",
				Fix:  "Update task docs with `agentctl task doc set`, then re-stage the README",
			}
		}
	}
	return nil
}

func docMetadataStamped(frontmatter map[string]any) bool {
	updatedBy, _ := frontmatter["doc_updated_by"].(string)
	updatedAt, _ := frontmatter["doc_updated_at"].(string)
	version, ok := frontmatter["doc_version"].(int)
	return strings.TrimSpace(updatedBy) == task.DocUpdatedBy &&
		strings.TrimSpace(updatedAt) != "" &&
		ok && version == task.DocVersion
}

func containsPath(paths []string, rel string) bool {
	for _, path := range paths {
		if filepath.ToSlash(path) == rel {
			return true
		}
	}
	return false
}

func quote(s string) string {
	return "'" + s + "'"
}
