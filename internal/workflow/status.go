package workflow

import (
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/policy"
	"github.com/codexswarm/agentctl/internal/task"
)

// StatusChangeParams configure start, block, and set-status.
type StatusChangeParams struct {
	TaskID string
	Author string
	Body   string
	Force  bool

	// CommitFromComment drives a guarded commit whose message derives
	// from the comment body.
	CommitFromComment   bool
	ConfirmStatusCommit bool
	CommitEmoji         string
	Commit              CommitOptions
}

// Start moves a task to DOING with a structured start comment, optionally
// committing from the comment.
func (e *Engine) Start(p StatusChangeParams) error {
	return e.changeStatus("start", task.StatusDoing, p)
}

// Block moves a task to BLOCKED with a structured blocked comment.
func (e *Engine) Block(p StatusChangeParams) error {
	return e.changeStatus("block", task.StatusBlocked, p)
}

var commentKindForAction = map[string]string{
	"start": "start",
	"block": "blocked",
}

func (e *Engine) changeStatus(action string, next task.Status, p StatusChangeParams) error {
	if strings.TrimSpace(p.Author) == "" || strings.TrimSpace(p.Body) == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--author and --body are required")
	}
	if p.CommitFromComment {
		if err := e.enforceStatusCommitPolicy(action, p.ConfirmStatusCommit); err != nil {
			return err
		}
	}
	if err := e.RequireTasksWriteContext(p.Force); err != nil {
		return err
	}
	if !p.Force {
		if err := e.requireStructuredComment(commentKindForAction[action], p.Body); err != nil {
			return err
		}
	}
	if action == "start" && !p.Force {
		ok, warnings, err := e.readiness(p.TaskID)
		if err != nil {
			return err
		}
		if !ok {
			for _, w := range warnings {
				e.warn("%s", w)
			}
			return swarmerrors.ErrUnready(p.TaskID, warnings)
		}
	}

	commentBody := p.Body
	formatted := ""
	if p.CommitFromComment {
		formatted = policy.FormatCommentForCommit(p.Body, policy.CommentPrefixes(e.Config))
		commentBody = formatted
	}

	target, err := e.mutateTask(p.TaskID, func(t *task.Task, _ []*task.Task) error {
		if !task.CanTransition(t.Status, next) && !p.Force {
			return swarmerrors.ErrBadTransition(t.ID, string(t.Status), string(next))
		}
		t.Status = next
		t.Comments = append(t.Comments, task.Comment{Author: p.Author, Body: commentBody, At: task.NowISO()})
		return nil
	})
	if err != nil {
		return err
	}

	var commitInfo *git.CommitInfo
	if p.CommitFromComment {
		emoji := p.CommitEmoji
		if emoji == "" {
			emoji = policy.EmojiForStatus(next, p.Body)
		}
		opts := p.Commit
		if len(opts.Allow) == 0 {
			opts.AutoAllow = true
		}
		info, err := e.CommitFromComment(p.TaskID, p.Body, formatted, emoji, opts)
		if err != nil {
			return err
		}
		commitInfo = &info
	}

	label := map[string]string{"start": "started", "block": "blocked"}[action]
	suffix := ""
	if commitInfo != nil {
		suffix = " (commit=" + shortSHA(commitInfo.SHA) + ")"
	}
	e.info("✅ %s: %s%s", label, taskLine(target), suffix)
	return nil
}

// SetStatusParams configure the generic status transition verb.
type SetStatusParams struct {
	StatusChangeParams
	Status task.Status
	// CommitRef records the given rev as the task's completion commit.
	CommitRef string
}

// SetStatus applies an arbitrary allowed status transition. DONE is reserved
// for finish unless forced.
func (e *Engine) SetStatus(p SetStatusParams) error {
	if !task.IsValidStatus(p.Status) {
		return swarmerrors.ErrBadStatus(string(p.Status))
	}
	if p.Status == task.StatusDone && !p.Force {
		return swarmerrors.New(swarmerrors.CodeStateBadTransition,
			"use `agentctl finish <task-id>` to mark DONE (use --force to override)")
	}
	hasAuthor := strings.TrimSpace(p.Author) != ""
	hasBody := strings.TrimSpace(p.Body) != ""
	if hasAuthor != hasBody {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--author and --body must be provided together")
	}
	if p.CommitFromComment {
		if !hasBody {
			return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--body is required when using --commit-from-comment")
		}
		if err := e.enforceStatusCommitPolicy("task set-status", p.ConfirmStatusCommit); err != nil {
			return err
		}
	}
	if err := e.RequireTasksWriteContext(p.Force); err != nil {
		return err
	}

	if (p.Status == task.StatusDoing || p.Status == task.StatusDone) && !p.Force {
		ok, warnings, err := e.readiness(p.TaskID)
		if err != nil {
			return err
		}
		if !ok {
			for _, w := range warnings {
				e.warn("%s", w)
			}
			return swarmerrors.ErrUnready(p.TaskID, warnings)
		}
	}

	commentBody := p.Body
	formatted := ""
	if p.CommitFromComment && hasBody {
		formatted = policy.FormatCommentForCommit(p.Body, policy.CommentPrefixes(e.Config))
		commentBody = formatted
	}

	var commitInfo git.CommitInfo
	if p.CommitRef != "" {
		info, err := e.Git.HeadCommit(p.CommitRef)
		if err != nil {
			return err
		}
		commitInfo = info
	}

	target, err := e.mutateTask(p.TaskID, func(t *task.Task, _ []*task.Task) error {
		if !task.CanTransition(t.Status, p.Status) && !p.Force {
			return swarmerrors.ErrBadTransition(t.ID, string(t.Status), string(p.Status))
		}
		t.Status = p.Status
		if hasAuthor && hasBody {
			t.Comments = append(t.Comments, task.Comment{Author: p.Author, Body: commentBody, At: task.NowISO()})
		}
		if p.CommitRef != "" {
			t.Commit = &task.Commit{Hash: commitInfo.SHA, Message: commitInfo.Subject}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if p.CommitFromComment {
		emoji := p.CommitEmoji
		if emoji == "" {
			emoji = policy.EmojiForStatus(p.Status, p.Body)
		}
		opts := p.Commit
		if len(opts.Allow) == 0 {
			opts.AutoAllow = true
		}
		if _, err := e.CommitFromComment(p.TaskID, p.Body, formatted, emoji, opts); err != nil {
			return err
		}
	}

	e.info("✅ status set: %s", taskLine(target))
	return nil
}

// Comment appends a plain comment to a task.
func (e *Engine) Comment(taskID, author, body string) error {
	if strings.TrimSpace(author) == "" || strings.TrimSpace(body) == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--author and --body are required")
	}
	if err := e.RequireTasksWriteContext(false); err != nil {
		return err
	}
	_, err := e.mutateTask(taskID, func(t *task.Task, _ []*task.Task) error {
		t.Comments = append(t.Comments, task.Comment{Author: author, Body: body, At: task.NowISO()})
		return nil
	})
	return err
}

// ReadyReport is the readiness summary for one task.
type ReadyReport struct {
	OK       bool
	Task     *task.Task
	State    task.DependencyState
	Warnings []string
}

// Ready reports whether a task's dependencies are complete.
func (e *Engine) Ready(taskID string) (ReadyReport, error) {
	view, err := e.Store.View()
	if err != nil {
		return ReadyReport{}, err
	}
	t, okTask := view.ByID[taskID]
	ok, warnings, err := e.readiness(taskID)
	if err != nil {
		return ReadyReport{}, err
	}
	report := ReadyReport{OK: ok && okTask, Warnings: warnings}
	if okTask {
		report.Task = t
		report.State = view.Deps[taskID]
	}
	for _, w := range warnings {
		e.warn("%s", w)
	}
	if okTask {
		e.info("Task: %s", taskLine(t))
		owner := strings.TrimSpace(t.Owner)
		if owner == "" {
			owner = "-"
		}
		e.info("Owner: %s", owner)
		deps := "-"
		if len(report.State.DependsOn) > 0 {
			deps = strings.Join(report.State.DependsOn, ", ")
		}
		e.info("Depends on: %s", deps)
	}
	if report.OK {
		e.info("✅ ready")
	} else {
		e.info("⛔ not ready")
	}
	return report, nil
}
