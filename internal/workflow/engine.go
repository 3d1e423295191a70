// Package workflow drives the task lifecycle verbs: start, block, finish,
// verify, the PR artifact operations, work start, and integration of task
// branches into the base branch. It composes the task store, the branch
// manager, and the commit policy guard into the operations agents invoke.
package workflow

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/codexswarm/agentctl/internal/branch"
	"github.com/codexswarm/agentctl/internal/config"
	"github.com/codexswarm/agentctl/internal/doc"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/policy"
	"github.com/codexswarm/agentctl/internal/task"
)

// Engine binds one checkout's workflow state: the git context, the resolved
// config, the task store, and the branch manager. Output lines (warnings,
// CONTEXT/ACTION/RESULT/NEXT blocks) go to Out; Quiet suppresses the
// informational ones.
type Engine struct {
	Git      *git.Context
	Config   *config.Config
	Store    *task.Store
	Branches *branch.Manager
	Guard    *policy.Guard
	Out      io.Writer
	Quiet    bool

	// VerifyExec overrides how verify commands run; nil uses the shell.
	VerifyExec VerifyRunner

	// Cwd is where the command was invoked, used for the context footer
	// and repo-root checks. Defaults to the repo root.
	Cwd string
}

// New wires an engine over an opened checkout.
func New(g *git.Context, cfg *config.Config, store *task.Store, out io.Writer) *Engine {
	return &Engine{
		Git:      g,
		Config:   cfg,
		Store:    store,
		Branches: &branch.Manager{Git: g, Config: cfg, Store: store},
		Guard:    &policy.Guard{Git: g, Config: cfg},
		Out:      out,
		Cwd:      g.RepoPath(),
	}
}

func (e *Engine) printf(format string, args ...any) {
	if e.Out != nil {
		fmt.Fprintf(e.Out, format+"\n", args...)
	}
}

func (e *Engine) info(format string, args ...any) {
	if !e.Quiet {
		e.printf(format, args...)
	}
}

func (e *Engine) warn(format string, args ...any) {
	e.printf("⚠️ "+format, args...)
}

// PrintBlock writes one labelled output block: "LABEL: text".
func (e *Engine) PrintBlock(label, text string) {
	if e.Quiet || e.Out == nil {
		return
	}
	fmt.Fprintf(e.Out, "%s: %s\n", label, text)
}

// Context renders the command context footer for this engine.
func (e *Engine) Context() string {
	return branch.CommandContext(e.Git, e.Cwd, e.Config.WorkflowMode)
}

func (e *Engine) withContext(err error) error {
	if err == nil {
		return nil
	}
	if se := swarmerrors.As(err); se != nil && se.Context == "" {
		return se.WithContext(e.Context())
	}
	return err
}

// RequireTasksWriteContext guards snapshot mutations: never from a task
// worktree, and in branch_pr mode only from the base branch. Force skips
// both checks.
func (e *Engine) RequireTasksWriteContext(force bool) error {
	if force {
		return nil
	}
	if err := branch.RequireNotTaskWorktree(e.Git, e.Config.WorktreesDirRel(), "tasks.json write"); err != nil {
		return e.withContext(err)
	}
	if e.Config.WorkflowMode.IsBranchPR() {
		base := e.Config.ResolveBaseBranch(e.Git)
		if err := branch.RequireBranch(e.Git, base, "tasks.json write"); err != nil {
			return e.withContext(err)
		}
	}
	return nil
}

// requireStructuredComment enforces the prefix + minimum length rule for one
// comment kind (start, blocked, verified).
func (e *Engine) requireStructuredComment(kind, body string) error {
	rule, err := e.Config.CommentRuleFor(kind)
	if err != nil {
		return err
	}
	normalized := strings.TrimSpace(body)
	if !strings.HasPrefix(strings.ToLower(normalized), strings.ToLower(rule.Prefix)) {
		return swarmerrors.Newf(swarmerrors.CodeStateCommentRule,
			"comment body must start with %q", rule.Prefix)
	}
	if utf8.RuneCountInString(normalized) < rule.MinChars {
		return swarmerrors.Newf(swarmerrors.CodeStateCommentRule,
			"comment body must be at least %d characters", rule.MinChars)
	}
	return nil
}

// readiness reports whether the task's dependencies are satisfied, with the
// warning lines a caller should surface.
func (e *Engine) readiness(taskID string) (bool, []string, error) {
	view, err := e.Store.View()
	if err != nil {
		return false, nil, err
	}
	if _, ok := view.ByID[taskID]; !ok {
		return false, []string{"Unknown task id: " + taskID}, nil
	}
	var warnings []string
	warnings = append(warnings, task.DetectCycles(view.Tasks)...)
	state := view.Deps[taskID]
	if len(state.Missing) > 0 {
		warnings = append(warnings, fmt.Sprintf("%s: missing deps: %s", taskID, strings.Join(state.Missing, ", ")))
	}
	if len(state.Incomplete) > 0 {
		warnings = append(warnings, fmt.Sprintf("%s: incomplete deps: %s", taskID, strings.Join(state.Incomplete, ", ")))
	}
	return state.Satisfied(), warnings, nil
}

// enforceStatusCommitPolicy gates status/comment-driven commits per the
// configured policy: allow passes, warn prints unless acknowledged, confirm
// requires explicit acknowledgement.
func (e *Engine) enforceStatusCommitPolicy(action string, confirmed bool) error {
	switch e.Config.StatusCommitPolicy {
	case "", "allow":
		return nil
	case "warn":
		if !e.Quiet && !confirmed {
			e.warn("%s: status/comment-driven commit requested; policy=warn (pass --confirm-status-commit to acknowledge)", action)
		}
		return nil
	case "confirm":
		if !confirmed {
			return swarmerrors.Newf(swarmerrors.CodeStateCommitSubject,
				"%s: status/comment-driven commit blocked by status_commit_policy='confirm' (pass --confirm-status-commit to proceed)", action)
		}
		return nil
	default:
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"invalid status_commit_policy: %q (expected allow, confirm, warn)", e.Config.StatusCommitPolicy)
	}
}

// taskLine formats one task for status output: "id [STATUS] title".
func taskLine(t *task.Task) string {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = "(untitled task)"
	}
	return fmt.Sprintf("%s [%s] %s", t.ID, t.Status, title)
}

// TaskDir returns the per-task documentation directory.
func (e *Engine) TaskDir(taskID string) string {
	return filepath.Join(e.Config.SwarmDir(), "tasks", taskID)
}

// TaskReadmePath returns the canonical per-task README path.
func (e *Engine) TaskReadmePath(taskID string) string {
	return filepath.Join(e.TaskDir(taskID), "README.md")
}

// Artifacts returns the PR artifact directory binding for a task.
func (e *Engine) Artifacts(taskID string) doc.Artifacts {
	return doc.NewArtifacts(e.TaskDir(taskID))
}

// mutateTask loads the store, applies fn to the task with the given id, and
// saves. fn runs against the full task list so it can inspect siblings.
func (e *Engine) mutateTask(taskID string, fn func(t *task.Task, all []*task.Task) error) (*task.Task, error) {
	tasks, err := e.Store.Load()
	if err != nil {
		return nil, err
	}
	byID, _ := task.IndexByID(tasks)
	target, ok := byID[taskID]
	if !ok {
		return nil, swarmerrors.ErrTaskNotFound(taskID)
	}
	if err := fn(target, tasks); err != nil {
		return nil, err
	}
	if err := e.Store.Save(tasks); err != nil {
		return nil, err
	}
	return target, nil
}
