package workflow

import (
	"strings"

	"github.com/codexswarm/agentctl/internal/branch"
	"github.com/codexswarm/agentctl/internal/doc"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/policy"
	"github.com/codexswarm/agentctl/internal/task"
)

// FinishParams configure finish.
type FinishParams struct {
	TaskIDs   []string
	Author    string
	Body      string
	CommitRef string

	SkipVerify            bool
	Force                 bool
	RequireTaskIDInCommit bool

	// CommitFromComment creates the code commit from the comment before
	// marking DONE (single task id only).
	CommitFromComment bool
	CommitEmoji       string
	Commit            CommitOptions

	// StatusCommit commits the snapshot/doc updates after the status
	// change (single task id only).
	StatusCommit        bool
	StatusCommitEmoji   string
	StatusCommitOpts    CommitOptions
	ConfirmStatusCommit bool

	// skipPRGate is set by integrate, which already ran the PR gate before
	// merging; the branch-vs-base ranges it checks are empty once the merge
	// has landed.
	skipPRGate bool
}

// Finish marks one or more tasks DONE: dependency and doc gates, optional
// verify run, completion commit recording, PR closure, and handoff-note
// import in branch_pr mode.
func (e *Engine) Finish(p FinishParams) error {
	taskIDs, err := normalizeTaskIDs(p.TaskIDs)
	if err != nil {
		return err
	}
	primary := taskIDs[0]

	hasAuthor := strings.TrimSpace(p.Author) != ""
	hasBody := strings.TrimSpace(p.Body) != ""
	statusCommit := p.StatusCommit || p.CommitFromComment ||
		(e.Config.FinishAutoStatusCommit && hasBody)

	if hasAuthor != hasBody {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--author and --body must be provided together")
	}
	if p.CommitFromComment && len(taskIDs) != 1 {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--commit-from-comment supports exactly one task id")
	}
	if statusCommit && len(taskIDs) != 1 {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--status-commit/--commit-from-comment supports exactly one task id")
	}
	if (p.CommitFromComment || statusCommit) && !hasBody {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--body is required when building commit messages from comments")
	}
	if p.CommitFromComment || statusCommit {
		if err := e.enforceStatusCommitPolicy("finish", p.ConfirmStatusCommit); err != nil {
			return err
		}
	}
	if err := e.RequireTasksWriteContext(p.Force); err != nil {
		return err
	}

	branchPR := e.Config.WorkflowMode.IsBranchPR()
	if branchPR && !p.Force {
		if err := branch.RequireClean(e.Git, "finish"); err != nil {
			return e.withContext(err)
		}
		if !hasAuthor || !hasBody {
			return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--author and --body are required in workflow_mode='branch_pr'")
		}
		if strings.ToUpper(strings.TrimSpace(p.Author)) != "INTEGRATOR" {
			return swarmerrors.New(swarmerrors.CodeInputUnknownOwner, "--author must be INTEGRATOR in workflow_mode='branch_pr'")
		}
	}
	if hasAuthor && hasBody && !p.Force {
		if err := e.requireStructuredComment("verified", p.Body); err != nil {
			return err
		}
	}

	formatted := ""
	if hasBody && (p.CommitFromComment || statusCommit) {
		formatted = policy.FormatCommentForCommit(p.Body, policy.CommentPrefixes(e.Config))
	}

	tasks, err := e.Store.Load()
	if err != nil {
		return err
	}

	report := task.Lint(tasks, task.LintOptions{VerifyRequiredTags: e.Config.VerifyRequiredTags()})
	for _, w := range report.Warnings {
		e.warn("%s", w)
	}
	if len(report.Errors) > 0 && !p.Force {
		for _, msg := range report.Errors {
			e.printf("❌ %s", msg)
		}
		return swarmerrors.New(swarmerrors.CodeStateLintFailed, "tasks.json failed lint (use --force to override)")
	}

	byID, _ := task.IndexByID(tasks)
	assumeDone := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		assumeDone[id] = true
	}
	depStates := task.ComputeDependencyStates(tasks, assumeDone)

	if !p.Force {
		for _, id := range taskIDs {
			target, ok := byID[id]
			if !ok {
				return swarmerrors.ErrTaskNotFound(id)
			}
			state := depStates[id]
			if !state.Satisfied() {
				var problems []string
				if len(state.Missing) > 0 {
					msg := id + ": missing deps: " + strings.Join(state.Missing, ", ")
					e.warn("%s", msg)
					problems = append(problems, msg)
				}
				if len(state.Incomplete) > 0 {
					msg := id + ": incomplete deps: " + strings.Join(state.Incomplete, ", ")
					e.warn("%s", msg)
					problems = append(problems, msg)
				}
				return swarmerrors.ErrUnready(id, problems)
			}
			author := strings.ToUpper(strings.TrimSpace(p.Author))
			owner := strings.ToUpper(strings.TrimSpace(target.Owner))
			if author != "" && !branchPR && author != owner {
				label := owner
				if label == "" {
					label = "unknown"
				}
				return swarmerrors.Newf(swarmerrors.CodeInputUnknownOwner,
					"--author must match task owner (%s) in direct mode (use --force to override)", label)
			}
			if docText, ok := e.readTaskDoc(id, ""); ok {
				if err := e.validateDocComplete(id, docText); err != nil {
					return err
				}
			}
		}
	}

	commitRef := strings.TrimSpace(p.CommitRef)
	if p.CommitFromComment {
		emoji := p.CommitEmoji
		if emoji == "" {
			emoji = policy.InferCommitEmoji(p.Body)
		}
		opts := p.Commit
		if len(opts.Allow) == 0 {
			opts.AutoAllow = true
		}
		info, err := e.CommitFromComment(primary, p.Body, formatted, emoji, opts)
		if err != nil {
			return err
		}
		commitRef = info.SHA
	}
	if commitRef == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--commit is required (the completion commit rev)")
	}
	commitInfo, err := e.Git.HeadCommit(commitRef)
	if err != nil {
		return err
	}

	if p.RequireTaskIDInCommit && !p.Force {
		var missing []string
		for _, id := range taskIDs {
			if !policy.SubjectMentionsTask(id, commitInfo.Subject) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return swarmerrors.New(swarmerrors.CodeStateCommitSubject,
				policy.MissingSubjectError(missing, commitInfo.Subject)+" (use --force or --no-require-task-id-in-commit)")
		}
	}

	if branchPR && !p.Force {
		for _, id := range taskIDs {
			artifacts := e.Artifacts(id)
			if !artifacts.Exists() {
				return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
					"missing PR artifact dir: %s (required for finish in branch_pr mode)", artifacts.Dir)
			}
			if p.skipPRGate {
				continue
			}
			meta, err := artifacts.LoadMeta()
			if err != nil {
				return err
			}
			quiet := e.Quiet
			e.Quiet = true
			err = e.PRCheck(PRCheckParams{TaskID: id, Branch: meta.Branch, Base: meta.BaseBranch})
			e.Quiet = quiet
			if err != nil {
				return err
			}
		}
	}

	if !p.SkipVerify && !p.Force {
		headSHA, err := e.Git.Head()
		if err != nil {
			return err
		}
		for _, id := range taskIDs {
			commands, err := e.verifyCommands(id)
			if err != nil {
				return err
			}
			if len(commands) == 0 {
				continue
			}
			if _, err := e.runVerifyWithCapture(id, e.Git.RepoPath(), "", headSHA); err != nil {
				return err
			}
		}
	}

	now := task.NowISO()
	for _, id := range taskIDs {
		target, ok := byID[id]
		if !ok {
			return swarmerrors.ErrTaskNotFound(id)
		}
		target.Status = task.StatusDone
		target.Commit = &task.Commit{Hash: commitInfo.SHA, Message: commitInfo.Subject}

		if branchPR && !p.Force {
			if err := e.closePRArtifact(id, target, commitInfo, now); err != nil {
				return err
			}
		}

		if hasAuthor && hasBody {
			body := p.Body
			if formatted != "" {
				body = formatted
			}
			target.Comments = append(target.Comments, task.Comment{Author: p.Author, Body: body, At: now})
		}
	}

	if err := e.Store.Save(tasks); err != nil {
		return err
	}

	if statusCommit {
		emoji := p.StatusCommitEmoji
		if emoji == "" {
			emoji = policy.EmojiForStatus(task.StatusDone, p.Body)
		}
		opts := p.StatusCommitOpts
		opts.AllowTasks = true
		if len(opts.Allow) == 0 {
			opts.AutoAllow = true
		}
		if _, err := e.CommitFromComment(primary, p.Body, formatted, emoji, opts); err != nil {
			return err
		}
	}

	for _, id := range taskIDs {
		if t, ok := byID[id]; ok {
			e.info("✅ finished: %s", taskLine(t))
		}
	}
	return nil
}

// closePRArtifact stamps the PR meta CLOSED and imports unapplied handoff
// notes from review.md into the task's comments.
func (e *Engine) closePRArtifact(taskID string, target *task.Task, commitInfo git.CommitInfo, now string) error {
	artifacts := e.Artifacts(taskID)
	if !artifacts.Exists() {
		return nil
	}
	meta, err := artifacts.LoadMeta()
	if err != nil {
		return err
	}

	if reviewText, ok := e.readPRFile(taskID, "review.md", meta.Branch); ok {
		notes := doc.ParseHandoffNotes(reviewText)
		if len(notes) > 0 {
			digest := doc.HandoffDigest(notes)
			if digest != meta.HandoffAppliedDigest {
				for _, note := range notes {
					target.Comments = append(target.Comments, task.Comment{Author: note.Author, Body: note.Body, At: now})
				}
				meta.HandoffAppliedDigest = digest
				meta.HandoffAppliedAt = now
			}
		}
	}

	if meta.MergedAt == "" {
		meta.MergedAt = now
	}
	if meta.MergeCommit == "" {
		meta.MergeCommit = commitInfo.SHA
	}
	if meta.ClosedAt == "" {
		meta.ClosedAt = now
	}
	meta.CloseCommit = commitInfo.SHA
	meta.Status = doc.PRStatusClosed
	meta.UpdatedAt = now
	return artifacts.WriteMeta(meta)
}

func normalizeTaskIDs(values []string) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, v := range values {
		id := strings.TrimSpace(v)
		if id == "" {
			return nil, swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
		}
		if seen[id] {
			return nil, swarmerrors.Newf(swarmerrors.CodeInputDuplicateTaskID, "duplicate task id: %s", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}
	return ids, nil
}
