package config

import "strings"

// GitConfigurer is the slice of the git context that base-branch pinning
// needs. *git.Context satisfies it.
type GitConfigurer interface {
	ConfigGet(key string) string
	ConfigSet(key, value string) error
	CurrentBranch() (string, error)
}

// ResolveBaseBranch returns the integration branch: config value first, then
// the pinned git-config value, then the default.
func (c *Config) ResolveBaseBranch(g GitConfigurer) string {
	if branch := strings.TrimSpace(c.BaseBranch); branch != "" {
		return branch
	}
	if pinned := g.ConfigGet(GitConfigBaseBranchKey); pinned != "" {
		return pinned
	}
	return DefaultBaseBranch
}

// MaybePinBaseBranch records the current branch as the base branch in local
// git config when nothing has decided it yet. Detached HEADs and task
// branches are never pinned. Returns the effective base branch and whether
// this call pinned it.
func (c *Config) MaybePinBaseBranch(g GitConfigurer) (string, bool) {
	if branch := strings.TrimSpace(c.BaseBranch); branch != "" {
		return branch, false
	}
	if pinned := g.ConfigGet(GitConfigBaseBranchKey); pinned != "" {
		return pinned, false
	}
	branch, err := g.CurrentBranch()
	if err != nil || branch == "" || branch == "HEAD" {
		return "", false
	}
	if strings.HasPrefix(branch, c.TaskBranchPrefix()+"/") {
		return "", false
	}
	if err := g.ConfigSet(GitConfigBaseBranchKey, branch); err != nil {
		return "", false
	}
	return branch, true
}
