package doc

import (
	"fmt"
	"strings"

	"github.com/codexswarm/agentctl/internal/task"
)

// boardSection pairs a status with its board heading and empty text.
type boardSection struct {
	status  task.Status
	heading string
	empty   string
}

var boardSections = []boardSection{
	{task.StatusTodo, "📋 Backlog", "_No open tasks._"},
	{task.StatusDoing, "🚧 In Progress", "_No active tasks._"},
	{task.StatusBlocked, "⛔ Blocked", "_No blocked tasks._"},
	{task.StatusDone, "✅ Done", "_No completed tasks yet._"},
}

var boardStatusSymbols = map[task.Status]string{
	task.StatusTodo:    "📝",
	task.StatusDoing:   "⚙️",
	task.StatusBlocked: "🛑",
	task.StatusDone:    "✅",
}

var boardSummaryIcons = map[task.Status]string{
	task.StatusTodo:    "📋",
	task.StatusDoing:   "🚧",
	task.StatusBlocked: "⛔",
	task.StatusDone:    "✅",
}

var boardStatusLabels = map[task.Status]string{
	task.StatusTodo:    "Backlog",
	task.StatusDoing:   "In Progress",
	task.StatusBlocked: "Blocked",
	task.StatusDone:    "Done",
}

var agentIcons = map[string]string{
	"CODEX":    "🤖",
	"DOCS":     "📚",
	"CODER":    "🛠️",
	"REVIEWER": "👀",
	"UPDATER":  "🔍",
	"PLANNER":  "🗺️",
	"CREATOR":  "🏗️",
}

const defaultAgentIcon = "🧠"

// NormalizeRemoteURL converts a git remote URL to an https browse base, or
// "" when it cannot be linked (local paths, unknown schemes).
func NormalizeRemoteURL(url string) string {
	raw := strings.TrimSpace(url)
	if raw == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(raw, "git@"):
		raw = strings.Replace(raw, ":", "/", 1)
		raw = strings.Replace(raw, "git@", "https://", 1)
	case strings.HasPrefix(raw, "ssh://"):
		raw = strings.TrimPrefix(raw, "ssh://")
		if strings.HasPrefix(raw, "git@") {
			raw = strings.Replace(raw, "git@", "https://", 1)
		} else {
			raw = "https://" + raw
		}
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
	default:
		return ""
	}
	return strings.TrimSuffix(raw, ".git")
}

// RenderBoard renders the Markdown kanban board from the task list:
// summary table plus one section per status. remoteBase (from
// NormalizeRemoteURL) turns commit hashes into links; updatedAt is the
// human timestamp for the header.
func RenderBoard(tasks []*task.Task, remoteBase, updatedAt string) string {
	sorted := append([]*task.Task(nil), tasks...)
	task.SortByID(sorted)

	counts := map[task.Status]int{}
	for _, t := range sorted {
		counts[t.Status]++
	}

	lines := []string{
		"# ✨ Project Tasks Board",
		"",
		fmt.Sprintf("_Last updated: %s_", updatedAt),
		"",
		"## **⭐ Summary**",
		"",
		"| Icon | Metric | Count |",
		"| --- | --- | --- |",
		fmt.Sprintf("| 🧮 | **Total** | %d |", len(sorted)),
	}
	for _, section := range boardSections {
		lines = append(lines, fmt.Sprintf("| %s | **%s** | %d |",
			boardSummaryIcons[section.status], boardStatusLabels[section.status], counts[section.status]))
	}
	lines = append(lines, "")

	for _, section := range boardSections {
		lines = append(lines, renderBoardSection(sorted, section, remoteBase)...)
		lines = append(lines, "")
	}

	return strings.TrimRight(strings.Join(lines, "\n"), " \t\n") + "\n"
}

func renderBoardSection(tasks []*task.Task, section boardSection, remoteBase string) []string {
	block := []string{fmt.Sprintf("## **%s**", section.heading)}
	found := false
	for _, t := range tasks {
		if t.Status != section.status {
			continue
		}
		found = true
		title := t.Title
		if title == "" {
			title = "(untitled task)"
		}
		block = append(block, fmt.Sprintf("- %s **[%s] %s**", boardStatusSymbols[section.status], t.ID, title))
		block = append(block, fmt.Sprintf("  - **_Status:_** *%s*", boardStatusLabels[section.status]))
		block = append(block, "  - "+formatBoardMetadata(t))
		block = append(block, "  - **Description:** "+formatBoardDescription(t))
		if line := formatBoardCommit(t, remoteBase); line != "" {
			block = append(block, line)
		}
		block = append(block, "  - 💬 **Comments:**")
		block = append(block, formatBoardComments(t)...)
		block = append(block, "")
	}
	if !found {
		return append(block, section.empty)
	}
	if block[len(block)-1] == "" {
		block = block[:len(block)-1]
	}
	return block
}

func formatBoardMetadata(t *task.Task) string {
	priority := t.Priority
	if priority == "" {
		priority = "-"
	}
	owner := "`-`"
	if trimmed := strings.TrimSpace(t.Owner); trimmed != "" {
		upper := strings.ToUpper(trimmed)
		icon, ok := agentIcons[upper]
		if !ok {
			icon = defaultAgentIcon
		}
		owner = fmt.Sprintf("`%s %s`", icon, upper)
	}
	tags := "`-`"
	if len(t.Tags) > 0 {
		quoted := make([]string, len(t.Tags))
		for i, tag := range t.Tags {
			quoted[i] = "`" + tag + "`"
		}
		tags = strings.Join(quoted, ", ")
	}
	return fmt.Sprintf("**Priority:** `%s` • **Owner:** %s • **Tags:** %s", priority, owner, tags)
}

func formatBoardDescription(t *task.Task) string {
	if desc := strings.TrimSpace(t.Description); desc != "" {
		return desc
	}
	return "No description provided."
}

func formatBoardCommit(t *task.Task, remoteBase string) string {
	if t.Commit == nil || strings.TrimSpace(t.Commit.Hash) == "" {
		return ""
	}
	hash := strings.TrimSpace(t.Commit.Hash)
	short := hash
	if len(short) > 7 {
		short = short[:7]
	}
	display := "`" + short + "`"
	if remoteBase != "" {
		display = fmt.Sprintf("[`%s`](%s/commit/%s)", short, remoteBase, hash)
	}
	if msg := strings.TrimSpace(t.Commit.Message); msg != "" {
		return fmt.Sprintf("  - **_Commit:_** %s — %s", display, msg)
	}
	return fmt.Sprintf("  - **_Commit:_** %s", display)
}

func formatBoardComments(t *task.Task) []string {
	var lines []string
	for _, c := range t.Comments {
		author := c.Author
		if author == "" {
			author = "unknown"
		}
		body := strings.TrimSpace(c.Body)
		if body == "" {
			body = "(no additional details)"
		}
		lines = append(lines, fmt.Sprintf("    - **%s:** _%s_", author, body))
	}
	if len(lines) == 0 {
		lines = append(lines, "    - _No comments yet._")
	}
	return lines
}
