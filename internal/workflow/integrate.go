package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codexswarm/agentctl/internal/branch"
	"github.com/codexswarm/agentctl/internal/doc"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/policy"
	"github.com/codexswarm/agentctl/internal/task"
)

// IntegrateParams configure integrate.
type IntegrateParams struct {
	TaskID string
	// Branch overrides the task branch; default comes from the PR meta.
	Branch string
	Base   string
	// Strategy is squash, merge, or rebase; default comes from the PR meta,
	// then squash.
	Strategy string
	// RunVerify forces the verify commands to run even when the branch head
	// was already verified.
	RunVerify bool
	DryRun    bool
}

// Integrate merges a validated task branch into the base branch and closes
// the task: PR gate, verify (skipped when the branch head is already
// verified), merge by strategy, finish as INTEGRATOR, and PR meta/diffstat
// refresh.
func (e *Engine) Integrate(p IntegrateParams) error {
	if err := branch.RequireNotTaskWorktree(e.Git, e.Config.WorktreesDirRel(), "integrate"); err != nil {
		return e.withContext(err)
	}
	if err := branch.RequireRepoRoot(e.Git, e.Cwd, "integrate"); err != nil {
		return e.withContext(err)
	}
	if err := branch.RequireBranch(e.Git, e.Config.ResolveBaseBranch(e.Git), "integrate"); err != nil {
		return e.withContext(err)
	}
	if err := branch.RequireClean(e.Git, "integrate"); err != nil {
		return e.withContext(err)
	}
	if err := branch.RequireIgnored(e.Git, e.Config.WorktreesDirRel()); err != nil {
		return e.withContext(err)
	}

	taskID := strings.TrimSpace(p.TaskID)
	if taskID == "" {
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "task_id must be non-empty")
	}

	ok, warnings, err := e.readiness(taskID)
	if err != nil {
		return err
	}
	if !ok {
		for _, w := range warnings {
			e.warn("%s", w)
		}
		return swarmerrors.ErrUnready(taskID, warnings)
	}

	branchName := strings.TrimSpace(p.Branch)
	if branchName == "" {
		if meta, err := e.Artifacts(taskID).LoadMeta(); err == nil {
			branchName = strings.TrimSpace(meta.Branch)
		}
	}
	if branchName == "" {
		return swarmerrors.New(swarmerrors.CodeStateDocIncomplete,
			"missing --branch (and PR meta.json is not available in this checkout)")
	}
	metaText, ok := e.readPRFile(taskID, "meta.json", branchName)
	if !ok {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"missing PR artifact file: %s", prFileRel(taskID, "meta.json"))
	}
	meta, err := doc.ParseMeta(prFileRel(taskID, "meta.json"), []byte(metaText))
	if err != nil {
		return err
	}

	base := strings.TrimSpace(p.Base)
	if base == "" {
		base = strings.TrimSpace(meta.BaseBranch)
	}
	if base == "" {
		base = e.Config.ResolveBaseBranch(e.Git)
	}
	strategy := strings.ToLower(strings.TrimSpace(p.Strategy))
	if strategy == "" {
		strategy = strings.TrimSpace(meta.MergeStrategy)
	}
	if strategy == "" {
		strategy = doc.MergeSquash
	}
	switch strategy {
	case doc.MergeSquash, doc.MergeMerge, doc.MergeRebase:
	default:
		return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--merge-strategy must be squash|merge|rebase")
	}

	e.PrintBlock("CONTEXT", e.Context())
	e.PrintBlock("ACTION", fmt.Sprintf("Integrate %s into %s for %s (strategy=%s)", branchName, base, taskID, strategy))

	quiet := e.Quiet
	e.Quiet = true
	err = e.PRCheck(PRCheckParams{TaskID: taskID, Branch: branchName, Base: base})
	e.Quiet = quiet
	if err != nil {
		return err
	}

	baseSHABefore, err := e.Git.RevParse(base)
	if err != nil {
		return err
	}
	branchHead, err := e.Git.RevParse(branchName)
	if err != nil {
		return err
	}

	commands, err := e.verifyCommands(taskID)
	if err != nil {
		return err
	}
	alreadyVerified := ""
	if len(commands) > 0 && !p.RunVerify {
		if v := strings.TrimSpace(meta.LastVerifiedSHA); v != "" && v == branchHead {
			alreadyVerified = branchHead
		} else if logText, ok := e.readPRFile(taskID, "verify.log", branchName); ok {
			if v := ExtractLastVerifiedSHA(logText); v != "" && v == branchHead {
				alreadyVerified = branchHead
			}
		}
	}
	shouldRunVerify := p.RunVerify || (len(commands) > 0 && alreadyVerified == "")

	worktreePath, haveWorktree := e.Git.WorktreePathFor(branchName)
	if strategy == doc.MergeRebase && !haveWorktree {
		return swarmerrors.New(swarmerrors.CodeContextWrongBranch,
			"rebase strategy requires an existing worktree for the task branch")
	}

	tempPath := filepath.Join(e.Config.WorktreesDir(), "_integrate_tmp_"+taskID)
	createdTemp := false
	if shouldRunVerify && !haveWorktree {
		if p.DryRun {
			e.PrintBlock("RESULT", "verify_worktree=(would create "+tempPath+")")
		} else {
			if _, err := os.Stat(tempPath); err == nil {
				if _, ok := e.Git.BranchForWorktree(tempPath); !ok {
					return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch,
						"temp worktree path exists but is not registered: %s", tempPath)
				}
			} else {
				if err := os.MkdirAll(filepath.Dir(tempPath), 0o755); err != nil {
					return err
				}
				if err := e.Git.AddWorktree(tempPath, branchName); err != nil {
					return err
				}
				createdTemp = true
			}
			worktreePath = tempPath
			haveWorktree = true
		}
	}
	if createdTemp {
		defer func() { _ = e.Git.RemoveWorktree(tempPath, true) }()
	}

	if p.DryRun {
		verifyLabel := "no"
		if shouldRunVerify {
			verifyLabel = "yes"
		} else if len(commands) > 0 && alreadyVerified != "" {
			verifyLabel = "no (already verified_sha=" + alreadyVerified + ")"
		}
		e.PrintBlock("RESULT", fmt.Sprintf("pr_check=OK base=%s branch=%s verify=%s", base, branchName, verifyLabel))
		e.PrintBlock("NEXT", "Re-run without --dry-run to perform merge+finish.")
		return nil
	}

	var verifyEntries []verifyEntry
	runVerify := func() error {
		if !haveWorktree {
			return swarmerrors.New(swarmerrors.CodeContextWrongBranch,
				"unable to locate/create a worktree for verify execution")
		}
		entries, err := e.runVerifyWithCapture(taskID, worktreePath, "", branchHead)
		verifyEntries = append(verifyEntries, entries...)
		return err
	}

	env := policy.HookEnv(taskID, false, true)
	headBefore, err := e.Git.Head()
	if err != nil {
		return err
	}
	switch strategy {
	case doc.MergeSquash:
		if shouldRunVerify {
			if err := runVerify(); err != nil {
				return err
			}
		}
		if err := e.Git.MergeSquash(branchName); err != nil {
			return err
		}
		staged, err := e.Git.StagedPaths()
		if err != nil {
			return err
		}
		if len(staged) == 0 {
			_ = e.Git.ResetHard(headBefore)
			return swarmerrors.Newf(swarmerrors.CodeStateUnready,
				"nothing to integrate: %q is already merged into %q", branchName, base)
		}
		subject, err := e.Git.LastSubject(branchName)
		if err != nil || !policy.SubjectMentionsTask(taskID, subject) {
			subject = fmt.Sprintf("🧩 %s integrate %s", taskID, branchName)
		}
		if err := e.Git.Commit(subject, env); err != nil {
			_ = e.Git.ResetHard(headBefore)
			return err
		}
	case doc.MergeMerge:
		if shouldRunVerify {
			if err := runVerify(); err != nil {
				return err
			}
		}
		msg := fmt.Sprintf("🔀 %s merge %s", taskID, branchName)
		if err := e.Git.MergeNoFF(branchName, msg, env); err != nil {
			return err
		}
	case doc.MergeRebase:
		wtGit := e.Git.InWorktree(worktreePath)
		if err := wtGit.Rebase(base); err != nil {
			return err
		}
		branchHead, err = e.Git.RevParse(branchName)
		if err != nil {
			return err
		}
		// Rebase rewrote the shas, so re-resolve the verified state.
		if len(commands) > 0 && !p.RunVerify {
			alreadyVerified = ""
			if v := strings.TrimSpace(meta.LastVerifiedSHA); v != "" && v == branchHead {
				alreadyVerified = branchHead
			} else if logText, ok := e.readPRFile(taskID, "verify.log", branchName); ok {
				if v := ExtractLastVerifiedSHA(logText); v != "" && v == branchHead {
					alreadyVerified = branchHead
				}
			}
			shouldRunVerify = alreadyVerified == ""
		}
		if shouldRunVerify {
			if err := runVerify(); err != nil {
				return err
			}
		}
		if err := e.Git.MergeFFOnly(branchName); err != nil {
			_ = e.Git.ResetHard(headBefore)
			return err
		}
	}
	mergeHash, err := e.Git.Head()
	if err != nil {
		return err
	}

	verifyDesc := "skipped"
	switch {
	case len(commands) == 0:
		verifyDesc = "skipped(no commands)"
	case shouldRunVerify:
		verifyDesc = "ran"
	case alreadyVerified != "":
		verifyDesc = "skipped(already verified_sha=" + alreadyVerified + ")"
	}

	artifacts := e.Artifacts(taskID)
	prRel, relErr := filepath.Rel(e.Git.RepoPath(), artifacts.Dir)
	if relErr != nil {
		prRel = artifacts.Dir
	}
	finishBody := fmt.Sprintf("Verified: Integrated via %s; verify=%s; pr=%s.", strategy, verifyDesc, prRel)
	if err := e.Finish(FinishParams{
		TaskIDs:               []string{taskID},
		Author:                task.OwnerIntegrator,
		Body:                  finishBody,
		CommitRef:             mergeHash,
		SkipVerify:            true,
		RequireTaskIDInCommit: true,
		skipPRGate:            true,
	}); err != nil {
		return err
	}

	if !artifacts.Exists() {
		return swarmerrors.Newf(swarmerrors.CodeStateDocIncomplete,
			"missing PR artifact dir after merge: %s", artifacts.Dir)
	}
	for _, entry := range verifyEntries {
		if err := appendVerifyLogFile(artifacts.VerifyLogPath(), entry.Header, entry.Content); err != nil {
			return err
		}
	}

	mergedMeta, err := artifacts.LoadMeta()
	if err != nil {
		return err
	}
	now := task.NowISO()
	mergedMeta.MergeStrategy = strategy
	mergedMeta.Status = doc.PRStatusMerged
	if mergedMeta.MergedAt == "" {
		mergedMeta.MergedAt = now
	}
	mergedMeta.MergeCommit = mergeHash
	mergedMeta.HeadSHA = branchHead
	mergedMeta.UpdatedAt = now
	if shouldRunVerify && len(verifyEntries) > 0 && branchHead != "" {
		mergedMeta.LastVerifiedSHA = branchHead
		mergedMeta.LastVerifiedAt = now
	}
	if err := artifacts.WriteMeta(mergedMeta); err != nil {
		return err
	}

	diffstat, err := e.Git.DiffStat(baseSHABefore, branchName)
	if err != nil {
		return err
	}
	if err := artifacts.WriteDiffstat(diffstat); err != nil {
		return err
	}
	changed, err := e.Git.DiffNames(baseSHABefore, branchName)
	if err != nil {
		return err
	}
	if err := e.updateAutoSummary(taskID, changed); err != nil {
		return err
	}

	e.PrintBlock("RESULT", "merge_commit="+mergeHash+" finish=OK")
	e.PrintBlock("NEXT", fmt.Sprintf(
		"Commit closure on base branch: stage `%s` + `%s` (and any docs), then commit `✅ %s close ...`.",
		e.Config.TasksFileRel(), prFileRel(taskID, "meta.json"), taskID))
	return nil
}
