package doc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/util"
)

// PR artifact status values.
const (
	PRStatusOpen   = "OPEN"
	PRStatusMerged = "MERGED"
	PRStatusClosed = "CLOSED"
)

// Merge strategies recorded in PR meta.
const (
	MergeSquash = "squash"
	MergeMerge  = "merge"
	MergeRebase = "rebase"
)

// PRMeta is the meta.json of a PR artifact directory. Empty fields are
// omitted so closed/merged stamps only appear once set.
type PRMeta struct {
	TaskID          string `json:"task_id"`
	TaskTitle       string `json:"task_title,omitempty"`
	Branch          string `json:"branch"`
	BaseBranch      string `json:"base_branch"`
	Author          string `json:"author"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	HeadSHA         string `json:"head_sha,omitempty"`
	MergeStrategy   string `json:"merge_strategy,omitempty"`
	Status          string `json:"status,omitempty"`
	MergedAt        string `json:"merged_at,omitempty"`
	MergeCommit     string `json:"merge_commit,omitempty"`
	ClosedAt        string `json:"closed_at,omitempty"`
	CloseCommit     string `json:"close_commit,omitempty"`
	LastVerifiedSHA string `json:"last_verified_sha,omitempty"`
	LastVerifiedAt  string `json:"last_verified_at,omitempty"`

	// Handoff stamps dedupe review.md note imports into task comments.
	HandoffAppliedDigest string `json:"handoff_applied_digest,omitempty"`
	HandoffAppliedAt     string `json:"handoff_applied_at,omitempty"`
}

// Artifacts is the PR artifact directory of one task:
// .codex-swarm/tasks/<id>/pr with meta.json, diffstat.txt, verify.log, and
// review.md.
type Artifacts struct {
	Dir string
}

// NewArtifacts binds to a task's PR directory under its task dir.
func NewArtifacts(taskDir string) Artifacts {
	return Artifacts{Dir: filepath.Join(taskDir, "pr")}
}

func (a Artifacts) MetaPath() string      { return filepath.Join(a.Dir, "meta.json") }
func (a Artifacts) DiffstatPath() string  { return filepath.Join(a.Dir, "diffstat.txt") }
func (a Artifacts) VerifyLogPath() string { return filepath.Join(a.Dir, "verify.log") }
func (a Artifacts) ReviewPath() string    { return filepath.Join(a.Dir, "review.md") }

// Exists reports whether the artifact directory is present.
func (a Artifacts) Exists() bool {
	info, err := os.Stat(a.Dir)
	return err == nil && info.IsDir()
}

// LoadMeta reads meta.json, returning the zero meta when the file does not
// exist.
func (a Artifacts) LoadMeta() (PRMeta, error) {
	return ParseMeta(a.MetaPath(), nil)
}

// ParseMeta decodes PR meta JSON from a file, or from raw bytes when data
// is non-nil (used when the meta was read from another branch).
func ParseMeta(source string, data []byte) (PRMeta, error) {
	if data == nil {
		raw, err := os.ReadFile(source)
		if err != nil {
			if os.IsNotExist(err) {
				return PRMeta{}, nil
			}
			return PRMeta{}, fmt.Errorf("read %s: %w", source, err)
		}
		data = raw
	}
	var meta PRMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return PRMeta{}, swarmerrors.Wrap(swarmerrors.CodeIntegrityChecksum, "invalid JSON in "+source, err)
	}
	return meta, nil
}

// WriteMeta persists meta.json atomically.
func (a Artifacts) WriteMeta(meta PRMeta) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("create pr dir: %w", err)
	}
	return util.AtomicWriteJSON(a.MetaPath(), meta, 0o644)
}

// SkeletonParams configure EnsureSkeleton.
type SkeletonParams struct {
	TaskID    string
	TaskTitle string
	Branch    string
	Base      string
	Author    string
	HeadSHA   string
	Now       string
}

// EnsureSkeleton creates or refreshes the PR artifact directory: meta.json
// (created_at preserved), an empty diffstat, the verify log header, and the
// review template. Existing files other than meta.json are left alone.
func (a Artifacts) EnsureSkeleton(p SkeletonParams) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("create pr dir: %w", err)
	}

	meta, err := a.LoadMeta()
	if err != nil {
		return err
	}
	createdAt := meta.CreatedAt
	if createdAt == "" {
		createdAt = p.Now
	}
	strategy := meta.MergeStrategy
	if strategy == "" {
		strategy = MergeSquash
	}
	status := meta.Status
	if status == "" {
		status = PRStatusOpen
	}
	meta = PRMeta{
		TaskID:          p.TaskID,
		TaskTitle:       p.TaskTitle,
		Branch:          p.Branch,
		BaseBranch:      p.Base,
		Author:          p.Author,
		CreatedAt:       createdAt,
		UpdatedAt:       p.Now,
		HeadSHA:         p.HeadSHA,
		MergeStrategy:   strategy,
		Status:          status,
		MergedAt:        meta.MergedAt,
		MergeCommit:     meta.MergeCommit,
		ClosedAt:        meta.ClosedAt,
		CloseCommit:     meta.CloseCommit,
		LastVerifiedSHA: meta.LastVerifiedSHA,
		LastVerifiedAt:  meta.LastVerifiedAt,

		HandoffAppliedDigest: meta.HandoffAppliedDigest,
		HandoffAppliedAt:     meta.HandoffAppliedAt,
	}
	if err := a.WriteMeta(meta); err != nil {
		return err
	}

	if _, err := os.Stat(a.DiffstatPath()); os.IsNotExist(err) {
		if err := os.WriteFile(a.DiffstatPath(), []byte(""), 0o644); err != nil {
			return fmt.Errorf("write diffstat: %w", err)
		}
	}
	if _, err := os.Stat(a.VerifyLogPath()); os.IsNotExist(err) {
		if err := os.WriteFile(a.VerifyLogPath(), []byte("# Verify log\n\n"), 0o644); err != nil {
			return fmt.Errorf("write verify log: %w", err)
		}
	}
	if _, err := os.Stat(a.ReviewPath()); os.IsNotExist(err) {
		if err := os.WriteFile(a.ReviewPath(), []byte(ReviewTemplate(p.TaskID)), 0o644); err != nil {
			return fmt.Errorf("write review: %w", err)
		}
	}
	return nil
}

// WriteDiffstat replaces diffstat.txt.
func (a Artifacts) WriteDiffstat(diffstat string) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("create pr dir: %w", err)
	}
	return util.AtomicWriteFile(a.DiffstatPath(), []byte(diffstat), 0o644)
}

// AppendVerifyLog appends one header + captured-output entry to verify.log.
func (a Artifacts) AppendVerifyLog(header, content string) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("create pr dir: %w", err)
	}
	f, err := os.OpenFile(a.VerifyLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open verify log: %w", err)
	}
	defer f.Close()
	entry := strings.TrimRight(header, " \t\n") + "\n"
	if content != "" {
		entry += strings.TrimRight(content, " \t\n") + "\n"
	}
	entry += "\n"
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append verify log: %w", err)
	}
	return nil
}

// UpdateAutoSummary rewrites the file list between the auto summary markers
// of a task README. The list is capped at 20 paths; no changes renders the
// placeholder. Returns whether the file content changed.
func UpdateAutoSummary(readmePath string, changed []string) (bool, error) {
	data, err := os.ReadFile(readmePath)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", readmePath, err)
	}
	text := string(data)
	lines := strings.Split(text, "\n")

	begin := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == AutoSummaryBegin {
			begin = i
		}
	}
	if begin < 0 {
		return false, nil
	}
	end := -1
	for i := begin + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == AutoSummaryEnd {
			end = i
			break
		}
	}
	if end < 0 {
		return false, nil
	}

	summary := make([]string, 0, 21)
	for i, name := range changed {
		if i == 20 {
			break
		}
		summary = append(summary, "- `"+name+"`")
	}
	if len(summary) == 0 {
		summary = append(summary, NoChangesLine)
	}

	updated := make([]string, 0, len(lines))
	updated = append(updated, lines[:begin+1]...)
	updated = append(updated, summary...)
	updated = append(updated, lines[end:]...)
	newText := strings.Join(updated, "\n")
	if newText == text {
		return false, nil
	}
	if err := util.AtomicWriteFile(readmePath, []byte(newText), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", readmePath, err)
	}
	return true, nil
}
