package workflow

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/codexswarm/agentctl/internal/branch"
	"github.com/codexswarm/agentctl/internal/config"
	"github.com/codexswarm/agentctl/internal/doc"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/policy"
	"github.com/codexswarm/agentctl/internal/task"
)

// taskDirRel returns the repo-relative per-task directory, slash-separated
// for git object lookups.
func taskDirRel(taskID string) string {
	return path.Join(config.SwarmDirName, "tasks", taskID)
}

func prFileRel(taskID, name string) string {
	return path.Join(taskDirRel(taskID), "pr", name)
}

// readPRFile reads a PR artifact file from the working tree, falling back to
// the file as committed on the given branch when the local artifact dir is
// absent (the integrator's checkout does not hold task-branch files).
func (e *Engine) readPRFile(taskID, name, branchRef string) (content string, ok bool) {
	local := filepath.Join(e.TaskDir(taskID), "pr", name)
	if data, err := os.ReadFile(local); err == nil {
		return string(data), true
	}
	if branchRef == "" {
		return "", false
	}
	return e.Git.ShowFileAtRev(branchRef, prFileRel(taskID, name))
}

// PROpenParams configure pr open.
type PROpenParams struct {
	TaskID string
	Branch string
	Base   string
	Author string
}

// PROpen creates the PR artifact directory for a task branch and runs the
// first update.
func (e *Engine) PROpen(p PROpenParams) error {
	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}
	author := strings.TrimSpace(p.Author)
	if author == "" {
		if e.Config.WorkflowMode.IsBranchPR() {
			return swarmerrors.New(swarmerrors.CodeInputEmptyField,
				"--author is required in workflow_mode='branch_pr' (e.g., --author CODER)")
		}
		author = "unknown"
	}

	branchName := strings.TrimSpace(p.Branch)
	if branchName == "" {
		current, err := e.Git.CurrentBranch()
		if err != nil {
			return err
		}
		branchName = current
	}
	base := strings.TrimSpace(p.Base)
	if base == "" {
		base = e.Config.ResolveBaseBranch(e.Git)
	}
	if branchName == base {
		return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "refusing to open PR on base branch %q", base)
	}
	if e.Config.WorkflowMode.IsBranchPR() {
		parsed, _ := git.ParseTaskBranch(e.Config.TaskBranchPrefix(), branchName)
		if parsed != taskID {
			return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch,
				"branch %q does not match task id %s (expected %s)",
				branchName, taskID, task.TaskBranchExample(e.Config.TaskBranchPrefix(), taskID, "<slug>"))
		}
	}
	if !e.Git.BranchExists(branchName) {
		return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown branch: %s", branchName)
	}

	artifacts := e.Artifacts(taskID)
	if artifacts.Exists() {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"PR artifact dir already exists: %s (use `pr update`)", artifacts.Dir)
	}

	headSHA, err := e.Git.RevParse(branchName)
	if err != nil {
		return err
	}
	title := ""
	if t, err := e.Store.Get(taskID); err == nil {
		title = t.Title
	}
	if err := artifacts.EnsureSkeleton(doc.SkeletonParams{
		TaskID:    taskID,
		TaskTitle: title,
		Branch:    branchName,
		Base:      base,
		Author:    author,
		HeadSHA:   headSHA,
		Now:       task.NowISO(),
	}); err != nil {
		return err
	}
	if err := e.PRUpdate(PRUpdateParams{TaskID: taskID, Branch: branchName, Base: base}); err != nil {
		return err
	}

	e.PrintBlock("CONTEXT", e.Context())
	e.PrintBlock("ACTION", "Open PR artifact for "+taskID)
	e.PrintBlock("RESULT", "dir="+artifacts.Dir+" branch="+branchName+" base="+base+" author="+author)
	e.PrintBlock("NEXT", "Fill out the task README, then run `agentctl pr check "+taskID+"`.")
	return nil
}

// PRUpdateParams configure pr update.
type PRUpdateParams struct {
	TaskID string
	Branch string
	Base   string
}

// PRUpdate refreshes the PR artifact: diffstat, head sha, and the README
// auto summary.
func (e *Engine) PRUpdate(p PRUpdateParams) error {
	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}
	artifacts := e.Artifacts(taskID)
	if !artifacts.Exists() {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete, "missing PR artifact dir: %s", artifacts.Dir)
	}

	meta, err := artifacts.LoadMeta()
	if err != nil {
		return err
	}
	branchName := strings.TrimSpace(p.Branch)
	if branchName == "" {
		branchName = strings.TrimSpace(meta.Branch)
	}
	if branchName == "" {
		current, err := e.Git.CurrentBranch()
		if err != nil {
			return err
		}
		branchName = current
	}
	base := strings.TrimSpace(p.Base)
	if base == "" {
		base = strings.TrimSpace(meta.BaseBranch)
	}
	if base == "" {
		base = e.Config.ResolveBaseBranch(e.Git)
	}
	if !e.Git.BranchExists(branchName) {
		return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown branch: %s", branchName)
	}

	diffstat, err := e.Git.DiffStat(base, branchName)
	if err != nil {
		return err
	}
	if err := artifacts.WriteDiffstat(diffstat); err != nil {
		return err
	}

	headSHA, err := e.Git.RevParse(branchName)
	if err != nil {
		return err
	}
	meta.UpdatedAt = task.NowISO()
	meta.HeadSHA = headSHA
	meta.Branch = branchName
	meta.BaseBranch = base
	if err := artifacts.WriteMeta(meta); err != nil {
		return err
	}

	changed, err := e.Git.DiffNames(base, branchName)
	if err != nil {
		return err
	}
	if err := e.updateAutoSummary(taskID, changed); err != nil {
		return err
	}

	e.PrintBlock("CONTEXT", e.Context())
	e.PrintBlock("ACTION", "Update PR artifact for "+taskID)
	e.PrintBlock("RESULT", "dir="+artifacts.Dir+" branch="+branchName+" base="+base)
	e.PrintBlock("NEXT", "Run `agentctl pr check "+taskID+" --branch "+branchName+" --base "+base+"`.")
	return nil
}

// updateAutoSummary rewrites the README auto-summary block and refreshes the
// task doc metadata when the file changed.
func (e *Engine) updateAutoSummary(taskID string, changed []string) error {
	readmePath := e.TaskReadmePath(taskID)
	if _, err := os.Stat(readmePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(readmePath), 0o755); err != nil {
			return err
		}
		title := ""
		if t, err := e.Store.Get(taskID); err == nil {
			title = t.Title
		}
		if err := os.WriteFile(readmePath, []byte(doc.ReadmeTemplate(taskID, title, e.Config.DocSections())), 0o644); err != nil {
			return err
		}
	}
	changedFile, err := doc.UpdateAutoSummary(readmePath, changed)
	if err != nil {
		return err
	}
	if changedFile {
		e.touchDocMetadata(taskID)
	}
	return nil
}

// touchDocMetadata refreshes the doc stamp through the backend when it
// supports doc writes; backends without the capability are skipped.
func (e *Engine) touchDocMetadata(taskID string) {
	if writer, ok := e.Store.Backend().(task.DocWriter); ok {
		_ = writer.TouchTaskDocMetadata(taskID, task.DocUpdatedBy)
	}
}

// PRCheckParams configure pr check.
type PRCheckParams struct {
	TaskID string
	Branch string
	Base   string
}

// PRCheck validates the PR artifact, the task doc, and the branch contents
// against the integration gate: required files, complete doc sections, a
// subject mentioning the task, and no snapshot changes on the branch.
func (e *Engine) PRCheck(p PRCheckParams) error {
	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}
	artifacts := e.Artifacts(taskID)

	metaText, ok := e.readPRFile(taskID, "meta.json", p.Branch)
	if !ok {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete, "missing PR artifact file: %s", prFileRel(taskID, "meta.json"))
	}
	meta, err := doc.ParseMeta(prFileRel(taskID, "meta.json"), []byte(metaText))
	if err != nil {
		return err
	}
	if meta.TaskID != "" && meta.TaskID != taskID {
		return swarmerrors.Newf(swarmerrors.CodeIntegrityChecksum,
			"PR meta.json task_id mismatch: expected %s, got %s", taskID, meta.TaskID)
	}

	base := strings.TrimSpace(p.Base)
	if base == "" {
		base = strings.TrimSpace(meta.BaseBranch)
	}
	if base == "" {
		base = e.Config.ResolveBaseBranch(e.Git)
	}
	branchName := strings.TrimSpace(p.Branch)
	if branchName != "" && meta.Branch != "" && meta.Branch != branchName {
		return swarmerrors.Newf(swarmerrors.CodeIntegrityChecksum,
			"PR meta.json branch mismatch: expected %s, got %s", branchName, meta.Branch)
	}
	if branchName == "" {
		branchName = strings.TrimSpace(meta.Branch)
	}
	if branchName == "" {
		current, err := e.Git.CurrentBranch()
		if err != nil {
			return err
		}
		branchName = current
	}

	if err := branch.RequireClean(e.Git, "pr check"); err != nil {
		return e.withContext(err)
	}
	if !e.Git.BranchExists(branchName) {
		return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown branch: %s", branchName)
	}
	if !e.Git.BranchExists(base) {
		return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch, "unknown base branch: %s", base)
	}
	if e.Config.WorkflowMode.IsBranchPR() {
		parsed, _ := git.ParseTaskBranch(e.Config.TaskBranchPrefix(), branchName)
		if parsed != taskID {
			return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch,
				"branch %q does not match task id %s (expected %s)",
				branchName, taskID, task.TaskBranchExample(e.Config.TaskBranchPrefix(), taskID, "<slug>"))
		}
	}

	// Required artifact files may live on the task branch when the local
	// checkout has no artifact dir.
	artifactBranch := ""
	if !artifacts.Exists() {
		artifactBranch = branchName
	}
	var missingFiles []string
	for _, name := range []string{"meta.json", "diffstat.txt", "verify.log"} {
		if _, ok := e.readPRFile(taskID, name, artifactBranch); !ok {
			missingFiles = append(missingFiles, name)
		}
	}
	if len(missingFiles) > 0 {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"missing PR artifact file(s): %s", strings.Join(missingFiles, ", "))
	}

	docText, ok := e.readTaskDoc(taskID, artifactBranch)
	if !ok {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"missing PR doc: %s", path.Join(taskDirRel(taskID), "README.md"))
	}
	if err := e.validateDocComplete(taskID, docText); err != nil {
		return err
	}

	subjects, err := e.Git.LogSubjects(base, branchName, 200)
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		return swarmerrors.Newf(swarmerrors.CodeStateCommitSubject,
			"no commits found on %q compared to %q", branchName, base)
	}
	mentioned := false
	for _, subject := range subjects {
		if policy.SubjectMentionsTask(taskID, subject) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		sample := subjects
		if len(sample) > 3 {
			sample = sample[:3]
		}
		return swarmerrors.New(swarmerrors.CodeStateCommitSubject,
			policy.MissingSubjectError([]string{taskID}, strings.Join(sample, "; ")))
	}

	changed, err := e.Git.DiffNames(base, branchName)
	if err != nil {
		return err
	}
	for _, name := range changed {
		if name == e.Config.TasksFileRel() {
			return swarmerrors.Newf(swarmerrors.CodeStateAllowlist,
				"branch %q modifies %s (single-writer violation)", branchName, e.Config.TasksFileRel())
		}
	}

	e.PrintBlock("CONTEXT", e.Context())
	e.PrintBlock("ACTION", "Validate PR for "+taskID)
	e.PrintBlock("RESULT", "dir="+artifacts.Dir+" branch="+branchName+" base="+base)
	e.PrintBlock("NEXT", "If green, INTEGRATOR can run `agentctl integrate "+taskID+"`.")
	return nil
}

// readTaskDoc reads the task README from the working tree or, when absent,
// from the given branch.
func (e *Engine) readTaskDoc(taskID, branchRef string) (string, bool) {
	local := e.TaskReadmePath(taskID)
	if data, err := os.ReadFile(local); err == nil {
		return string(data), true
	}
	if branchRef == "" {
		return "", false
	}
	return e.Git.ShowFileAtRev(branchRef, path.Join(taskDirRel(taskID), "README.md"))
}

// validateDocComplete rejects a task doc with missing or placeholder
// required sections. An absent doc passes; finish and pr check read it
// first and fail on absence themselves.
func (e *Engine) validateDocComplete(taskID, docText string) error {
	_, body := doc.SplitFrontmatterBlock(docText)
	missing, empty := doc.Validate(body, e.Config.DocRequiredSections())
	if len(missing) > 0 {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"%s: task doc missing required section(s): %s", taskID, strings.Join(missing, ", "))
	}
	if len(empty) > 0 {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"%s: task doc has placeholder/empty section(s): %s", taskID, strings.Join(empty, ", "))
	}
	return nil
}

// PRNote appends a handoff note to the PR review file.
func (e *Engine) PRNote(taskID, author, body string) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}
	if strings.TrimSpace(author) == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--author is required (e.g., --author CODER)")
	}
	if strings.TrimSpace(body) == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--body is required")
	}

	artifacts := e.Artifacts(taskID)
	reviewPath := artifacts.ReviewPath()
	data, err := os.ReadFile(reviewPath)
	if err != nil {
		return &swarmerrors.Error{
			Code: swarmerrors.CodeStateDocIncomplete,
			What: "missing PR artifact file: " + reviewPath,
			Fix:  "Run `agentctl pr open " + taskID + "` on the task branch, commit the artifact files, then re-run",
		}
	}
	updated, changed, err := doc.AppendHandoffNote(string(data), author, body)
	if err != nil {
		return err
	}
	if changed {
		if err := os.WriteFile(reviewPath, []byte(updated), 0o644); err != nil {
			return err
		}
	}
	e.PrintBlock("CONTEXT", e.Context())
	e.PrintBlock("ACTION", "Append handoff note for "+taskID)
	e.PrintBlock("RESULT", "path="+reviewPath+" author="+author)
	return nil
}
