// Package git wraps the git CLI with the repository operations agentctl
// needs: branch and worktree lifecycle, diff and log inspection, guarded
// commits, and config-backed base-branch pinning.
package git

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Context manages git operations for one checkout. Commands run with the
// checkout root as working directory unless InWorktree narrows it.
type Context struct {
	repoPath string        // toplevel of this checkout
	workDir  string        // working directory for commands (defaults to repoPath)
	runner   CommandRunner // command runner (defaults to ExecRunner)
}

// ContextOption configures Context.
type ContextOption func(*Context)

// WithRunner sets a custom command runner. Used by tests to script git.
func WithRunner(runner CommandRunner) ContextOption {
	return func(g *Context) {
		g.runner = runner
	}
}

// NewContext resolves the git toplevel for dir and returns a Context rooted
// there. Fails with ErrNotGitRepo when dir is not inside a repository.
func NewContext(dir string, opts ...ContextOption) (*Context, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	g := &Context{workDir: abs, runner: NewExecRunner()}
	for _, opt := range opts {
		opt(g)
	}

	top, err := g.runGit("rev-parse", "--show-toplevel")
	if err != nil || top == "" {
		return nil, ErrNotGitRepo
	}
	g.repoPath = top
	g.workDir = top
	return g, nil
}

// RepoPath returns the toplevel of this checkout.
func (g *Context) RepoPath() string {
	return g.repoPath
}

// WorkDir returns the directory commands run in.
func (g *Context) WorkDir() string {
	return g.workDir
}

// InWorktree returns a Context whose commands run inside the given worktree
// checkout.
func (g *Context) InWorktree(worktreePath string) *Context {
	return &Context{
		repoPath: worktreePath,
		workDir:  worktreePath,
		runner:   g.runner,
	}
}

// CommonDir returns the shared .git directory. For a worktree checkout this
// points into the main repository, which is how the main root is recovered.
func (g *Context) CommonDir() (string, error) {
	raw, err := g.runGit("rev-parse", "--git-common-dir")
	if err != nil {
		return "", &GitError{Op: "resolve git common dir", Err: err}
	}
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(g.repoPath, raw)
	}
	return filepath.Clean(raw), nil
}

// MainRoot returns the primary checkout root even when called from a linked
// worktree.
func (g *Context) MainRoot() (string, error) {
	common, err := g.CommonDir()
	if err != nil {
		return "", err
	}
	if filepath.Base(common) == ".git" {
		return filepath.Dir(common), nil
	}
	return g.repoPath, nil
}

// CurrentBranch returns the current branch name, or "HEAD" when detached.
func (g *Context) CurrentBranch() (string, error) {
	branch, err := g.runGit("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", &GitError{Op: "get current branch", Err: err}
	}
	return branch, nil
}

// Checkout switches to the specified ref.
func (g *Context) Checkout(ref string) error {
	if _, err := g.runGit("checkout", ref); err != nil {
		return &GitError{Op: "checkout " + ref, Err: err}
	}
	return nil
}

// CreateBranch creates a branch at HEAD without switching to it.
func (g *Context) CreateBranch(name string) error {
	if _, err := g.runGit("branch", name); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return &GitError{Op: "create branch", Err: err}
	}
	return nil
}

// DeleteBranch deletes a branch. force switches -d to -D.
func (g *Context) DeleteBranch(name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := g.runGit("branch", flag, name); err != nil {
		return &GitError{Op: "delete branch", Err: err}
	}
	return nil
}

// BranchExists reports whether refs/heads/<name> exists.
func (g *Context) BranchExists(name string) bool {
	_, err := g.runGit("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// Branches lists local branches under the given ref prefix, short names.
func (g *Context) Branches(prefix string) ([]string, error) {
	ref := "refs/heads/"
	if prefix != "" {
		ref += strings.TrimSuffix(prefix, "/")
	}
	out, err := g.runGit("for-each-ref", "--format=%(refname:short)", ref)
	if err != nil {
		return nil, &GitError{Op: "list branches", Err: err}
	}
	return splitLines(out), nil
}

// Status returns the porcelain status, trimmed.
func (g *Context) Status() (string, error) {
	status, err := g.runGit("status", "--porcelain")
	if err != nil {
		return "", &GitError{Op: "status", Err: err}
	}
	return status, nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (g *Context) IsClean() (bool, error) {
	status, err := g.Status()
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// DirtyPaths returns the porcelain status lines, one per changed path.
func (g *Context) DirtyPaths() ([]string, error) {
	status, err := g.Status()
	if err != nil {
		return nil, err
	}
	return splitLines(status), nil
}

// ChangedPaths returns every path the porcelain status reports as changed,
// staged or not. Untracked files are listed individually, renames yield the
// destination path.
func (g *Context) ChangedPaths() ([]string, error) {
	status, err := g.runGit("status", "--porcelain", "-uall")
	if err != nil {
		return nil, &GitError{Op: "status", Err: err}
	}
	var paths []string
	for _, line := range strings.Split(status, "\n") {
		// The runner trims the block, so column offsets are unreliable:
		// split on the first space after the status token instead.
		_, entry, found := strings.Cut(strings.TrimSpace(line), " ")
		if !found {
			continue
		}
		if _, dest, renamed := strings.Cut(entry, " -> "); renamed {
			entry = dest
		}
		entry = strings.TrimSpace(entry)
		if entry != "" {
			paths = append(paths, entry)
		}
	}
	return paths, nil
}

// StagedPaths returns paths with staged changes.
func (g *Context) StagedPaths() ([]string, error) {
	out, err := g.runGit("diff", "--cached", "--name-only")
	if err != nil {
		return nil, &GitError{Op: "list staged files", Err: err}
	}
	return splitLines(out), nil
}

// UnstagedPaths returns tracked paths with unstaged modifications.
func (g *Context) UnstagedPaths() ([]string, error) {
	out, err := g.runGit("diff", "--name-only")
	if err != nil {
		return nil, &GitError{Op: "list unstaged files", Err: err}
	}
	return splitLines(out), nil
}

// Stage adds the given paths to the index.
func (g *Context) Stage(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.runGit(args...); err != nil {
		return &GitError{Op: "stage files", Err: err}
	}
	return nil
}

// RevParse resolves a revision to a SHA.
func (g *Context) RevParse(rev string) (string, error) {
	sha, err := g.runGit("rev-parse", rev)
	if err != nil {
		return "", &GitError{Op: "resolve rev " + rev, Err: err}
	}
	return sha, nil
}

// Head returns the SHA of HEAD.
func (g *Context) Head() (string, error) {
	return g.RevParse("HEAD")
}

// ShowFileAtRev returns the content of relpath at rev. ok is false when the
// path does not exist at that revision.
func (g *Context) ShowFileAtRev(rev, relpath string) (content string, ok bool) {
	rel := strings.TrimPrefix(strings.TrimSpace(relpath), "/")
	if rel == "" {
		return "", false
	}
	out, err := g.runGit("show", rev+":"+rel)
	if err != nil {
		return "", false
	}
	return out, true
}

// DiffNames returns the paths changed between base...head.
func (g *Context) DiffNames(base, head string) ([]string, error) {
	out, err := g.runGit("diff", "--name-only", base+"..."+head)
	if err != nil {
		return nil, &GitError{Op: "diff names", Err: err}
	}
	return splitLines(out), nil
}

// DiffStat returns the diffstat for base...head with a trailing newline.
func (g *Context) DiffStat(base, head string) (string, error) {
	out, err := g.runGit("diff", "--stat", base+"..."+head)
	if err != nil {
		return "", &GitError{Op: "diff stat", Err: err}
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}

// LogSubjects returns up to limit commit subjects in base..head, newest
// first.
func (g *Context) LogSubjects(base, head string, limit int) ([]string, error) {
	out, err := g.runGit("log", fmt.Sprintf("--max-count=%d", limit), "--pretty=format:%s", base+".."+head)
	if err != nil {
		return nil, &GitError{Op: "read log", Err: err}
	}
	return splitLines(out), nil
}

// LastSubject returns the subject of the last commit on ref.
func (g *Context) LastSubject(ref string) (string, error) {
	out, err := g.runGit("log", "-1", "--pretty=format:%s", ref)
	if err != nil {
		return "", &GitError{Op: "read last subject", Err: err}
	}
	return out, nil
}

// CommitInfo holds the identity of a single commit.
type CommitInfo struct {
	SHA     string
	Subject string
}

// HeadCommit returns the SHA and subject of the commit at ref.
func (g *Context) HeadCommit(ref string) (CommitInfo, error) {
	out, err := g.runGit("log", "-1", "--pretty=format:%H%x1f%s", ref)
	if err != nil {
		return CommitInfo{}, &GitError{Op: "read commit info", Err: err}
	}
	sha, subject, _ := strings.Cut(out, "\x1f")
	return CommitInfo{SHA: sha, Subject: subject}, nil
}

// FindCommitBySubject searches the current branch history for the newest
// commit whose message mentions needle.
func (g *Context) FindCommitBySubject(needle string) (CommitInfo, bool) {
	out, err := g.runGit("log", "--grep", needle, "-n", "1", "--pretty=format:%H%x1f%s")
	if err != nil || out == "" {
		return CommitInfo{}, false
	}
	sha, subject, found := strings.Cut(out, "\x1f")
	if !found {
		return CommitInfo{}, false
	}
	return CommitInfo{SHA: sha, Subject: subject}, true
}

// Commit records staged changes. extraEnv carries the hook protocol
// variables so managed hooks can distinguish agentctl commits from raw git.
// Returns ErrNothingToCommit when the index is empty.
func (g *Context) Commit(message string, extraEnv []string) error {
	out, err := g.runner.RunEnv(g.workDir, extraEnv, "git", "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") || strings.Contains(err.Error(), "nothing to commit") {
			return ErrNothingToCommit
		}
		return &GitError{Op: "commit", Output: out, Err: err}
	}
	return nil
}

// MergeSquash stages the squashed result of merging branch. The index is
// left for the caller to commit; a conflict aborts with ErrMergeConflict
// after resetting the tree.
func (g *Context) MergeSquash(branch string) error {
	if _, err := g.runGit("merge", "--squash", branch); err != nil {
		_, _ = g.runGit("reset", "--merge")
		if strings.Contains(err.Error(), "CONFLICT") || strings.Contains(err.Error(), "conflict") {
			return ErrMergeConflict
		}
		return &GitError{Op: "squash merge", Err: err}
	}
	return nil
}

// MergeNoFF merges branch with an explicit merge commit.
func (g *Context) MergeNoFF(branch, message string, extraEnv []string) error {
	out, err := g.runner.RunEnv(g.workDir, extraEnv, "git", "merge", "--no-ff", "-m", message, branch)
	if err != nil {
		_, _ = g.runGit("merge", "--abort")
		if strings.Contains(out, "CONFLICT") || strings.Contains(err.Error(), "CONFLICT") {
			return ErrMergeConflict
		}
		return &GitError{Op: "merge --no-ff", Output: out, Err: err}
	}
	return nil
}

// MergeFFOnly fast-forwards to branch, failing when history diverged.
func (g *Context) MergeFFOnly(branch string) error {
	if _, err := g.runGit("merge", "--ff-only", branch); err != nil {
		return &GitError{Op: "merge --ff-only", Err: err}
	}
	return nil
}

// Rebase replays the current branch onto the given ref. A failed rebase is
// aborted before returning so the checkout is never left mid-rebase.
func (g *Context) Rebase(onto string) error {
	if _, err := g.runGit("rebase", onto); err != nil {
		_, _ = g.runGit("rebase", "--abort")
		return &GitError{Op: "rebase onto " + onto, Err: err}
	}
	return nil
}

// ResetHard discards the index and working tree to ref.
func (g *Context) ResetHard(ref string) error {
	if _, err := g.runGit("reset", "--hard", ref); err != nil {
		return &GitError{Op: "reset --hard", Err: err}
	}
	return nil
}

// ConfigGet reads a local git config value, empty when unset.
func (g *Context) ConfigGet(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	out, err := g.runGit("config", "--get", key)
	if err != nil {
		return ""
	}
	return out
}

// ConfigSet writes a local git config value.
func (g *Context) ConfigSet(key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return fmt.Errorf("git config requires key and value")
	}
	if _, err := g.runGit("config", "--local", key, value); err != nil {
		return &GitError{Op: "set config " + key, Err: err}
	}
	return nil
}

// HooksDir resolves the active hooks directory and refuses locations outside
// the repository or its common dir, so managed hooks never write elsewhere.
func (g *Context) HooksDir() (string, error) {
	common, err := g.CommonDir()
	if err != nil {
		return "", err
	}
	raw, err := g.runGit("rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", &GitError{Op: "resolve hooks path", Err: err}
	}
	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.repoPath, path)
	}
	path = filepath.Clean(path)

	if !pathWithin(path, g.repoPath) && !pathWithin(path, common) {
		return "", ErrHooksOutsideRepo
	}
	return path, nil
}

// IsIgnored reports whether git ignores the given path.
func (g *Context) IsIgnored(path string) bool {
	_, err := g.runGit("check-ignore", "-q", path)
	return err == nil
}

// RemoteURL returns the URL of the named remote.
func (g *Context) RemoteURL(remote string) (string, error) {
	url, err := g.runGit("remote", "get-url", remote)
	if err != nil {
		return "", &GitError{Op: "get remote URL", Err: err}
	}
	return url, nil
}

// AheadBehind counts commits branch has over base and base has over branch.
func (g *Context) AheadBehind(branch, base string) (ahead, behind int, err error) {
	out, err := g.runGit("rev-list", "--left-right", "--count", base+"..."+branch)
	if err != nil {
		return 0, 0, &GitError{Op: "count ahead/behind", Err: err}
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	behind, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse behind count: %w", err)
	}
	ahead, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse ahead count: %w", err)
	}
	return ahead, behind, nil
}

// RunGit executes a raw git command in this checkout and returns stdout.
func (g *Context) RunGit(args ...string) (string, error) {
	return g.runGit(args...)
}

func (g *Context) runGit(args ...string) (string, error) {
	return g.runner.Run(g.workDir, "git", args...)
}

// splitLines returns the non-empty trimmed lines of s.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// pathWithin reports whether path equals root or lies beneath it.
func pathWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
