package workflow

import (
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/policy"
)

// CommitOptions configure guarded commits.
type CommitOptions struct {
	Allow        []string
	AutoAllow    bool
	AllowTasks   bool
	RequireClean bool
}

// resolveAllow returns the allowlist prefixes for a commit, deriving them
// from the changed paths when auto-allow is on and none were given.
func (e *Engine) resolveAllow(opts CommitOptions) ([]string, error) {
	prefixes := make([]string, 0, len(opts.Allow))
	for _, a := range opts.Allow {
		if strings.TrimSpace(a) != "" {
			prefixes = append(prefixes, strings.TrimSpace(a))
		}
	}
	if opts.AutoAllow && len(prefixes) == 0 {
		changed, err := e.Git.ChangedPaths()
		if err != nil {
			return nil, err
		}
		prefixes = policy.SuggestAllowPrefixes(changed)
	}
	if len(prefixes) == 0 {
		return nil, swarmerrors.New(swarmerrors.CodeStateAllowlist,
			"provide at least one --allow prefix or enable auto-allow")
	}
	return prefixes, nil
}

// Commit runs the guard checks against the given message and staged files,
// then commits with the hook protocol environment.
func (e *Engine) Commit(taskID, message string, opts CommitOptions) (git.CommitInfo, error) {
	var zero git.CommitInfo
	allow := opts.Allow
	if opts.AutoAllow {
		staged, err := e.Git.StagedPaths()
		if err != nil {
			return zero, err
		}
		if len(staged) == 0 {
			return zero, swarmerrors.New(swarmerrors.CodeStateAllowlist, "no staged files")
		}
		allow = policy.SuggestAllowPrefixes(staged)
	}

	warnings, err := e.Guard.CommitCheck(policy.CommitCheckParams{
		TaskID:       taskID,
		Message:      message,
		Allow:        policy.NewAllowlist(allow),
		AllowTasks:   opts.AllowTasks,
		RequireClean: opts.RequireClean,
	})
	for _, w := range warnings {
		e.warn("%s", w)
	}
	if err != nil {
		return zero, e.withContext(err)
	}

	env := policy.HookEnv(taskID, opts.AllowTasks, opts.AllowTasks)
	if err := e.Git.Commit(message, env); err != nil {
		return zero, err
	}
	info, err := e.Git.HeadCommit("HEAD")
	if err != nil {
		return zero, err
	}
	e.info("✅ committed %s %s", shortSHA(info.SHA), info.Subject)
	return info, nil
}

// CommitFromComment stages the allowlisted paths and commits with a message
// derived from a structured comment: "<emoji> <suffix> <summary>".
func (e *Engine) CommitFromComment(taskID, body, formatted, emoji string, opts CommitOptions) (git.CommitInfo, error) {
	var zero git.CommitInfo
	prefixes, err := e.resolveAllow(opts)
	if err != nil {
		return zero, err
	}
	allow := policy.NewAllowlist(prefixes)

	staged, err := e.Guard.StageAllowlist(allow, opts.AllowTasks)
	if err != nil {
		return zero, e.withContext(err)
	}

	summary := formatted
	if summary == "" {
		summary = policy.FormatCommentForCommit(body, policy.CommentPrefixes(e.Config))
	}
	message, err := policy.CommitMessageFromComment(taskID, summary, emoji)
	if err != nil {
		return zero, err
	}

	warnings, err := e.Guard.CommitCheck(policy.CommitCheckParams{
		TaskID:       taskID,
		Message:      message,
		Allow:        allow,
		AllowTasks:   opts.AllowTasks,
		RequireClean: opts.RequireClean,
	})
	for _, w := range warnings {
		e.warn("%s", w)
	}
	if err != nil {
		return zero, e.withContext(err)
	}

	env := policy.HookEnv(taskID, opts.AllowTasks, opts.AllowTasks)
	if err := e.Git.Commit(message, env); err != nil {
		return zero, err
	}
	info, err := e.Git.HeadCommit("HEAD")
	if err != nil {
		return zero, err
	}
	e.info("✅ committed %s %s (staged: %s)", shortSHA(info.SHA), info.Subject, strings.Join(staged, ", "))
	return info, nil
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
