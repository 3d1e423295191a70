// Package config loads and validates the workflow configuration stored at
// .codex-swarm/config.json. All paths in the file are repo-relative and are
// resolved (and contained) against the checkout root at load time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

const (
	// SwarmDirName is the control directory at the repo root.
	SwarmDirName = ".codex-swarm"
	// ConfigFileName is the workflow config inside SwarmDirName.
	ConfigFileName = "config.json"
	// SchemaVersion is the only supported config schema.
	SchemaVersion = 1

	// DefaultTaskIDSuffixLength is the generated id suffix length when the
	// config does not override it.
	DefaultTaskIDSuffixLength = 6
	// DefaultTaskBranchPrefix namespaces task branches.
	DefaultTaskBranchPrefix = "task"
	// DefaultBaseBranch is the integration branch fallback.
	DefaultBaseBranch = "main"
	// GitConfigBaseBranchKey pins the detected base branch in local git
	// config so later runs agree even after branch switches.
	GitConfigBaseBranchKey = "codexswarm.baseBranch"
)

// DefaultWorktreesDir is where task worktrees are created, relative to the
// repo root.
var DefaultWorktreesDir = filepath.Join(SwarmDirName, "worktrees")

// Default doc template sections, in render order.
var DefaultDocSections = []string{
	"Summary",
	"Context",
	"Scope",
	"Risks",
	"Verify Steps",
	"Rollback Plan",
	"Notes",
}

// Default sections that must carry real content before a task may finish.
var DefaultDocRequiredSections = []string{
	"Summary",
	"Scope",
	"Risks",
	"Verify Steps",
	"Rollback Plan",
}

// DefaultVerifyRequiredTags marks the task tags whose finish requires a
// recorded verify run.
var DefaultVerifyRequiredTags = []string{"code", "backend", "frontend"}

// DefaultGenericCommitTokens are subject words too generic to count as a
// meaningful commit message on their own.
var DefaultGenericCommitTokens = []string{
	"start", "status", "mark", "done", "wip", "update", "tasks", "task",
}

// defaultCommentRules are the structured-comment gates per transition kind.
var defaultCommentRules = map[string]CommentRule{
	"start":    {Prefix: "Start:", MinChars: 40},
	"blocked":  {Prefix: "Blocked:", MinChars: 40},
	"verified": {Prefix: "Verified:", MinChars: 60},
}

// Config is the parsed workflow configuration.
type Config struct {
	SchemaVersion          int                `json:"schema_version" yaml:"schema_version"`
	WorkflowMode           Mode               `json:"workflow_mode,omitempty" yaml:"workflow_mode,omitempty"`
	BaseBranch             string             `json:"base_branch,omitempty" yaml:"base_branch,omitempty"`
	StatusCommitPolicy     StatusCommitPolicy `json:"status_commit_policy,omitempty" yaml:"status_commit_policy,omitempty"`
	FinishAutoStatusCommit bool               `json:"finish_auto_status_commit,omitempty" yaml:"finish_auto_status_commit,omitempty"`
	Paths                  Paths              `json:"paths" yaml:"paths"`
	Tasks                  TasksConfig        `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Branch                 BranchConfig       `json:"branch,omitempty" yaml:"branch,omitempty"`
	Commit                 CommitConfig       `json:"commit,omitempty" yaml:"commit,omitempty"`
	TasksBackend           BackendRef         `json:"tasks_backend,omitempty" yaml:"tasks_backend,omitempty"`

	root string // checkout root the paths resolve against
}

// Paths holds the repo-relative locations the engine reads and writes.
type Paths struct {
	TasksPath    string `json:"tasks_path" yaml:"tasks_path"`
	AgentsDir    string `json:"agents_dir" yaml:"agents_dir"`
	DocsPath     string `json:"agentctl_docs_path" yaml:"agentctl_docs_path"`
	WorkflowDir  string `json:"workflow_dir" yaml:"workflow_dir"`
	WorktreesDir string `json:"worktrees_dir,omitempty" yaml:"worktrees_dir,omitempty"`
}

// TasksConfig tunes task ids, verify gates, doc templates, and comments.
type TasksConfig struct {
	IDSuffixLengthDefault int                    `json:"id_suffix_length_default,omitempty" yaml:"id_suffix_length_default,omitempty"`
	Verify                VerifyConfig           `json:"verify,omitempty" yaml:"verify,omitempty"`
	Doc                   DocConfig              `json:"doc,omitempty" yaml:"doc,omitempty"`
	Comments              map[string]CommentRule `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// VerifyConfig controls which task tags require a verify run before finish.
type VerifyConfig struct {
	RequiredTags []string `json:"required_tags,omitempty" yaml:"required_tags,omitempty"`
}

// DocConfig overrides the task doc section template.
type DocConfig struct {
	Sections         []string `json:"sections,omitempty" yaml:"sections,omitempty"`
	RequiredSections []string `json:"required_sections,omitempty" yaml:"required_sections,omitempty"`
}

// CommentRule is a prefix + minimum-length gate for structured comments.
type CommentRule struct {
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	MinChars int    `json:"min_chars,omitempty" yaml:"min_chars,omitempty"`
}

// BranchConfig tunes branch naming.
type BranchConfig struct {
	TaskPrefix string `json:"task_prefix,omitempty" yaml:"task_prefix,omitempty"`
}

// CommitConfig tunes commit subject policy.
type CommitConfig struct {
	GenericTokens []string `json:"generic_tokens,omitempty" yaml:"generic_tokens,omitempty"`
}

// BackendRef points at an optional task-backend config file.
type BackendRef struct {
	ConfigPath string `json:"config_path,omitempty" yaml:"config_path,omitempty"`
}

// ConfigPath returns the absolute path of the workflow config under root.
func ConfigPath(root string) string {
	return filepath.Join(root, SwarmDirName, ConfigFileName)
}

// Load reads and validates the workflow config for the checkout at root.
func Load(root string) (*Config, error) {
	path := ConfigPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &swarmerrors.Error{
				Code: swarmerrors.CodeConfigMissing,
				What: fmt.Sprintf("missing workflow config: %s", path),
				Fix:  fmt.Sprintf("Create %s with at least schema_version and paths", filepath.Join(SwarmDirName, ConfigFileName)),
			}
		}
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "read workflow config", err)
	}

	cfg := &Config{root: root}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &swarmerrors.Error{
			Code:  swarmerrors.CodeConfigInvalid,
			What:  fmt.Sprintf("invalid JSON in %s", path),
			Cause: err,
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate applies defaults and rejects out-of-range values eagerly so later
// code never re-checks.
func (c *Config) validate() error {
	path := ConfigPath(c.root)

	if c.SchemaVersion != SchemaVersion {
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"unsupported schema_version in %s: %d (expected %d)", path, c.SchemaVersion, SchemaVersion)
	}

	if c.WorkflowMode == "" {
		c.WorkflowMode = ModeDirect
	}
	if !c.WorkflowMode.IsValid() {
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"invalid workflow_mode in %s: %q (allowed: %s, %s)", path, c.WorkflowMode, ModeDirect, ModeBranchPR)
	}

	if c.StatusCommitPolicy == "" {
		c.StatusCommitPolicy = PolicyAllow
	}
	if !c.StatusCommitPolicy.IsValid() {
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"invalid status_commit_policy in %s: %q (expected one of allow, confirm, warn)", path, c.StatusCommitPolicy)
	}

	for _, required := range []struct{ label, value string }{
		{"paths.tasks_path", c.Paths.TasksPath},
		{"paths.agents_dir", c.Paths.AgentsDir},
		{"paths.agentctl_docs_path", c.Paths.DocsPath},
		{"paths.workflow_dir", c.Paths.WorkflowDir},
	} {
		if strings.TrimSpace(required.value) == "" {
			return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
				"%s missing required %s", path, required.label)
		}
	}
	if strings.TrimSpace(c.Paths.WorktreesDir) == "" {
		c.Paths.WorktreesDir = filepath.ToSlash(DefaultWorktreesDir)
	}

	for _, p := range []struct{ label, value string }{
		{"paths.tasks_path", c.Paths.TasksPath},
		{"paths.agents_dir", c.Paths.AgentsDir},
		{"paths.agentctl_docs_path", c.Paths.DocsPath},
		{"paths.workflow_dir", c.Paths.WorkflowDir},
		{"paths.worktrees_dir", c.Paths.WorktreesDir},
	} {
		if _, err := resolveRepoRelative(c.root, p.value, p.label); err != nil {
			return err
		}
	}

	if n := c.Tasks.IDSuffixLengthDefault; n != 0 && (n < 4 || n > 12) {
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"%s tasks.id_suffix_length_default must be between 4 and 12 (got: %d)", path, n)
	}

	if len(c.Tasks.Doc.Sections) > 0 {
		sections := dedupe(c.Tasks.Doc.Sections)
		if len(sections) == 0 {
			return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
				"%s tasks.doc.sections must include at least one entry", path)
		}
		c.Tasks.Doc.Sections = sections
	}
	if len(c.Tasks.Doc.RequiredSections) > 0 {
		known := make(map[string]bool, len(c.DocSections()))
		for _, s := range c.DocSections() {
			known[s] = true
		}
		var missing []string
		for _, s := range dedupe(c.Tasks.Doc.RequiredSections) {
			if !known[s] {
				missing = append(missing, s)
			}
		}
		if len(missing) > 0 {
			return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
				"%s tasks.doc.required_sections contains unknown section(s): %s", path, strings.Join(missing, ", "))
		}
	}

	for kind, rule := range c.Tasks.Comments {
		if _, ok := defaultCommentRules[kind]; !ok {
			return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
				"%s tasks.comments.%s is not a known comment kind", path, kind)
		}
		if rule.MinChars < 0 {
			return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
				"%s tasks.comments.%s.min_chars must be an integer >= 1", path, kind)
		}
	}

	if prefix := c.Branch.TaskPrefix; prefix != "" && strings.Contains(prefix, "/") {
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"%s branch.task_prefix must not contain '/'", path)
	}

	if raw := c.TasksBackend.ConfigPath; strings.TrimSpace(raw) != "" {
		if _, err := resolveRepoRelative(c.root, raw, "tasks_backend.config_path"); err != nil {
			return err
		}
	}

	return nil
}

// Root returns the checkout root this config was loaded for.
func (c *Config) Root() string {
	return c.root
}

// SwarmDir returns the absolute control directory.
func (c *Config) SwarmDir() string {
	return filepath.Join(c.root, SwarmDirName)
}

// TasksFile returns the absolute tasks snapshot path.
func (c *Config) TasksFile() string {
	return c.mustResolve(c.Paths.TasksPath)
}

// TasksFileRel returns the repo-relative snapshot path with forward slashes,
// as it appears in diffs and hook messages.
func (c *Config) TasksFileRel() string {
	return filepath.ToSlash(filepath.Clean(c.Paths.TasksPath))
}

// AgentsDir returns the absolute agent-descriptor directory.
func (c *Config) AgentsDir() string {
	return c.mustResolve(c.Paths.AgentsDir)
}

// DocsFile returns the absolute quickstart docs path.
func (c *Config) DocsFile() string {
	return c.mustResolve(c.Paths.DocsPath)
}

// WorkflowDir returns the absolute directory holding per-task docs and PR
// artifacts.
func (c *Config) WorkflowDir() string {
	return c.mustResolve(c.Paths.WorkflowDir)
}

// WorktreesDir returns the absolute worktrees directory.
func (c *Config) WorktreesDir() string {
	return c.mustResolve(c.Paths.WorktreesDir)
}

// WorktreesDirRel returns the repo-relative worktrees dir with forward
// slashes, used in refusal messages and .gitignore checks.
func (c *Config) WorktreesDirRel() string {
	return filepath.ToSlash(filepath.Clean(c.Paths.WorktreesDir))
}

// IDSuffixLength returns the configured id suffix length.
func (c *Config) IDSuffixLength() int {
	if c.Tasks.IDSuffixLengthDefault == 0 {
		return DefaultTaskIDSuffixLength
	}
	return c.Tasks.IDSuffixLengthDefault
}

// VerifyRequiredTags returns the tag set gating finish on a verify run.
func (c *Config) VerifyRequiredTags() map[string]bool {
	tags := c.Tasks.Verify.RequiredTags
	if tags == nil {
		tags = DefaultVerifyRequiredTags
	}
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			set[tag] = true
		}
	}
	return set
}

// DocSections returns the doc template sections in render order.
func (c *Config) DocSections() []string {
	if len(c.Tasks.Doc.Sections) == 0 {
		return DefaultDocSections
	}
	return c.Tasks.Doc.Sections
}

// DocRequiredSections returns the sections that must be filled in before
// finish.
func (c *Config) DocRequiredSections() []string {
	if c.Tasks.Doc.RequiredSections == nil {
		return DefaultDocRequiredSections
	}
	return c.Tasks.Doc.RequiredSections
}

// CommentRuleFor returns the prefix and minimum length for a comment kind,
// merging config overrides onto the defaults.
func (c *Config) CommentRuleFor(kind string) (CommentRule, error) {
	base, ok := defaultCommentRules[kind]
	if !ok {
		return CommentRule{}, swarmerrors.Newf(swarmerrors.CodeConfigInvalid, "unknown comment kind: %q", kind)
	}
	override, ok := c.Tasks.Comments[kind]
	if !ok {
		return base, nil
	}
	rule := base
	if p := strings.TrimSpace(override.Prefix); p != "" {
		rule.Prefix = p
	}
	if override.MinChars > 0 {
		rule.MinChars = override.MinChars
	}
	return rule, nil
}

// TaskBranchPrefix returns the branch namespace for task branches.
func (c *Config) TaskBranchPrefix() string {
	if strings.TrimSpace(c.Branch.TaskPrefix) == "" {
		return DefaultTaskBranchPrefix
	}
	return strings.TrimSpace(c.Branch.TaskPrefix)
}

// GenericCommitTokens returns lowercased subject words rejected as the only
// content of a commit subject.
func (c *Config) GenericCommitTokens() map[string]bool {
	tokens := c.Commit.GenericTokens
	if tokens == nil {
		tokens = DefaultGenericCommitTokens
	}
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

// mustResolve resolves a validated repo-relative config path. validate has
// already rejected escapes, so errors cannot occur here.
func (c *Config) mustResolve(rel string) string {
	abs, err := resolveRepoRelative(c.root, rel, rel)
	if err != nil {
		panic(err)
	}
	return abs
}

// resolveRepoRelative joins value onto root and rejects absolute paths and
// traversal outside the checkout.
func resolveRepoRelative(root, value, label string) (string, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", swarmerrors.Newf(swarmerrors.CodeConfigInvalid, "missing config path for %q", label)
	}
	if filepath.IsAbs(raw) || strings.HasPrefix(filepath.ToSlash(raw), "/") {
		return "", &swarmerrors.Error{
			Code: swarmerrors.CodeConfigPathEscape,
			What: fmt.Sprintf("config path for %q must be repo-relative (got absolute path: %s)", label, raw),
		}
	}
	resolved := filepath.Clean(filepath.Join(root, filepath.FromSlash(raw)))
	rootClean := filepath.Clean(root)
	rel, err := filepath.Rel(rootClean, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &swarmerrors.Error{
			Code: swarmerrors.CodeConfigPathEscape,
			What: fmt.Sprintf("config path for %q must stay under repo root (got: %s)", label, raw),
		}
	}
	return resolved, nil
}

// dedupe trims entries and drops blanks and repeats, preserving order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
