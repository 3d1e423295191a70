package tracker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codexswarm/agentctl/internal/task"
)

// Issue-tracker providers without custom fields (GitHub, GitLab, Jira) carry
// the full task record in a fenced metadata block inside the issue body. The
// prose above the fence is a human-readable mirror; the JSON is the source
// of truth on read-back.
const (
	taskMetaOpen  = "```json agentctl-task"
	taskMetaClose = "```"
)

// issueTitle renders the issue title with the task id prefix.
func issueTitle(t *task.Task) string {
	if t.Title == "" {
		return t.ID
	}
	return t.ID + ": " + t.Title
}

// encodeTaskBody renders the issue body: description prose followed by the
// fenced metadata block.
func encodeTaskBody(t *task.Task) (string, error) {
	clean := t.Clone()
	clean.Dirty = false
	data, err := json.MarshalIndent(clean.ToMap(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	var b strings.Builder
	if desc := strings.TrimSpace(t.Description); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	b.WriteString(taskMetaOpen)
	b.WriteString("\n")
	b.Write(data)
	b.WriteString("\n")
	b.WriteString(taskMetaClose)
	b.WriteString("\n")
	return b.String(), nil
}

// decodeTaskBody extracts the task record from an issue body. Returns
// (nil, nil) when the body carries no metadata block, so foreign issues are
// skipped rather than rejected.
func decodeTaskBody(body string) (*task.Task, error) {
	lines := strings.Split(body, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == taskMetaOpen {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, nil
	}
	end := -1
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == taskMetaClose {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.Join(lines[start:end], "\n")), &m); err != nil {
		return nil, fmt.Errorf("parse task metadata block: %w", err)
	}
	return task.FromMap(m)
}

// statusLabel is the tracker label mirroring the task status, for browsing
// and filtering on the tracker side.
func statusLabel(t *task.Task) string {
	return "status:" + strings.ToLower(string(t.Status))
}

// newComments returns the comments desired appends beyond existing, or nil
// when the histories diverge.
func newComments(existing, desired []task.Comment) []task.Comment {
	if len(desired) < len(existing) {
		return nil
	}
	for i, c := range existing {
		if desired[i].Author != c.Author || desired[i].Body != c.Body {
			return nil
		}
	}
	return desired[len(existing):]
}

// formatCommentNote renders one task comment as a tracker comment body.
func formatCommentNote(c task.Comment) string {
	author := c.Author
	if author == "" {
		author = "unknown"
	}
	return strings.TrimSpace(fmt.Sprintf("**%s**: %s", author, c.Body))
}
