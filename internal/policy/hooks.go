package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
)

// Hook protocol environment keys. Commits made through agentctl carry these
// so the managed hooks can tell them from raw `git commit`.
const (
	HookEnvTaskID     = "CODEX_SWARM_TASK_ID"
	HookEnvAllowTasks = "CODEX_SWARM_ALLOW_TASKS"
	HookEnvAllowBase  = "CODEX_SWARM_ALLOW_BASE"
)

// HookMarker identifies hook scripts owned by agentctl. Install refuses to
// overwrite scripts without it; uninstall leaves them alone.
const HookMarker = "codex-swarm: managed by agentctl"

// HookNames are the git hooks agentctl manages.
var HookNames = []string{"commit-msg", "pre-commit"}

// HookEnv builds the KEY=VALUE pairs for a guarded commit.
func HookEnv(taskID string, allowTasks, allowBase bool) []string {
	env := []string{
		HookEnvAllowTasks + "=" + boolFlag(allowTasks),
		HookEnvAllowBase + "=" + boolFlag(allowBase),
	}
	if taskID != "" {
		env = append(env, HookEnvTaskID+"="+taskID)
	}
	return env
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// HookEnvSet reads a hook protocol boolean from the process environment.
func HookEnvSet(key string) bool {
	return strings.TrimSpace(os.Getenv(key)) == "1"
}

// HookScript renders the shell script installed for a managed hook. The
// script delegates straight back to `agentctl hooks run <hook>`.
func HookScript(hook string) (string, error) {
	if !isKnownHook(hook) {
		return "", swarmerrors.Newf(swarmerrors.CodeHookFailed, "unknown hook: %s", hook)
	}
	lines := []string{
		"#!/bin/sh",
		"# " + HookMarker + " (do not edit)",
		"set -e",
		`if ! command -v agentctl >/dev/null 2>&1; then`,
		`  echo "codex-swarm hooks: agentctl not found in PATH" >&2`,
		"  exit 1",
		"fi",
		fmt.Sprintf(`exec agentctl hooks run %s "$@"`, hook),
		"",
	}
	return strings.Join(lines, "\n"), nil
}

func isKnownHook(hook string) bool {
	for _, name := range HookNames {
		if name == hook {
			return true
		}
	}
	return false
}

// IsManagedHook reports whether the script at path carries the marker.
func IsManagedHook(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), HookMarker)
}

// InstallHooks writes the managed hook scripts into hooksDir. An existing
// unmanaged hook aborts the install before anything is written.
func InstallHooks(hooksDir string) ([]string, error) {
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create hooks dir: %w", err)
	}
	for _, hook := range HookNames {
		path := filepath.Join(hooksDir, hook)
		if _, err := os.Stat(path); err == nil && !IsManagedHook(path) {
			return nil, &swarmerrors.Error{
				Code: swarmerrors.CodeHookUnmanaged,
				What: "refusing to overwrite existing hook: " + path,
				Fix:  "Move the existing hook aside, then re-run `agentctl hooks install`",
			}
		}
	}
	var installed []string
	for _, hook := range HookNames {
		path := filepath.Join(hooksDir, hook)
		script, err := HookScript(hook)
		if err != nil {
			return installed, err
		}
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			return installed, fmt.Errorf("write hook %s: %w", hook, err)
		}
		installed = append(installed, path)
	}
	return installed, nil
}

// UninstallHooks removes the managed hook scripts. Unmanaged scripts under
// the same names are skipped, not deleted.
func UninstallHooks(hooksDir string) (removed, skipped []string, err error) {
	for _, hook := range HookNames {
		path := filepath.Join(hooksDir, hook)
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		if !IsManagedHook(path) {
			skipped = append(skipped, path)
			continue
		}
		if rmErr := os.Remove(path); rmErr != nil {
			return removed, skipped, fmt.Errorf("remove hook %s: %w", hook, rmErr)
		}
		removed = append(removed, path)
	}
	return removed, skipped, nil
}

// ReadCommitSubject returns the first non-comment non-blank line of a commit
// message file.
func ReadCommitSubject(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", swarmerrors.Wrap(swarmerrors.CodeHookFailed, "missing commit message file: "+path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		return stripped, nil
	}
	return "", nil
}

// CommitMsgCheck is the commit-msg hook: the subject must mention the task
// carried in the hook env, or failing that any known task suffix.
func (gd *Guard) CommitMsgCheck(taskID, subject string, knownSuffixes []string) error {
	if subject == "" {
		return swarmerrors.New(swarmerrors.CodeHookFailed, "commit message subject is empty")
	}
	if taskID != "" {
		if !SubjectMentionsTask(taskID, subject) {
			return &swarmerrors.Error{
				Code: swarmerrors.CodeHookFailed,
				What: MissingSubjectError([]string{taskID}, subject),
			}
		}
		return nil
	}
	if len(knownSuffixes) == 0 {
		return swarmerrors.New(swarmerrors.CodeHookFailed,
			"no task ids available to validate commit subject; create a task or uninstall hooks")
	}
	if !MentionsAnySuffix(subject, knownSuffixes) {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeHookFailed,
			What: fmt.Sprintf("commit subject must mention a task id suffix: %q", subject),
			Why:  "Known suffixes (sample): " + formatSample(knownSuffixes, 3),
			Fix:  "Update the subject to include the task suffix, then re-run `git commit`",
		}
	}
	return nil
}

// PreCommitCheck is the pre-commit hook: it blocks raw commits that touch
// the snapshot or land on the wrong branch for the workflow mode.
func (gd *Guard) PreCommitCheck(allowTasks, allowBase bool) error {
	staged, err := gd.Git.StagedPaths()
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}
	tasksRel := filepath.ToSlash(gd.Config.TasksFileRel())
	tasksStaged := containsPath(staged, tasksRel)

	if tasksStaged && !allowTasks {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeHookFailed,
			What: "refusing commit: " + tasksRel + " is protected by managed hooks",
			Fix:  "Use `agentctl commit <task-id> ... --allow-tasks`, or `agentctl hooks uninstall`",
		}
	}
	if tasksStaged {
		inWorktree, err := gd.Git.IsTaskWorktree(gd.Config.WorktreesDirRel())
		if err != nil {
			return err
		}
		if inWorktree {
			return &swarmerrors.Error{
				Code: swarmerrors.CodeHookFailed,
				What: "refusing commit: " + tasksRel + " from a worktree checkout",
			}
		}
		if gd.Config.WorkflowMode.IsBranchPR() {
			currentBranch, err := gd.Git.CurrentBranch()
			if err != nil {
				return err
			}
			if base := gd.Config.ResolveBaseBranch(gd.Git); currentBranch != base {
				return &swarmerrors.Error{
					Code: swarmerrors.CodeHookFailed,
					What: "refusing commit: " + tasksRel + " allowed only on " + quote(base) +
						" in workflow_mode='branch_pr'",
				}
			}
		}
	}

	if !gd.Config.WorkflowMode.IsBranchPR() {
		return nil
	}
	nonTasks := 0
	for _, path := range staged {
		if filepath.ToSlash(path) != tasksRel {
			nonTasks++
		}
	}
	if nonTasks == 0 {
		return nil
	}
	currentBranch, err := gd.Git.CurrentBranch()
	if err != nil {
		return err
	}
	base := gd.Config.ResolveBaseBranch(gd.Git)
	if currentBranch == base && !allowBase {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeHookFailed,
			What: "refusing commit: code/docs commits are forbidden on the base branch " +
				quote(base) + " in workflow_mode='branch_pr'",
			Fix: "Create a task branch + worktree with `agentctl work start <task-id> --agent <AGENT> --slug <slug> --worktree`",
		}
	}
	if currentBranch != base {
		if _, ok := git.ParseTaskBranch(gd.Config.TaskBranchPrefix(), currentBranch); !ok {
			return &swarmerrors.Error{
				Code: swarmerrors.CodeHookFailed,
				What: "refusing commit: branch " + quote(currentBranch) + " is not a task branch in branch_pr mode",
				Fix:  "Switch to a `" + gd.Config.TaskBranchPrefix() + "/<task-id>/<slug>` branch",
			}
		}
	}
	return nil
}

func formatSample(items []string, max int) string {
	if len(items) <= max {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:max], ", ") + fmt.Sprintf(", +%d", len(items)-max)
}
