package task

import "strings"

const (
	// DocSectionHeader opens the curated doc inside a task README.
	DocSectionHeader = "## Summary"
	// AutoSummaryHeader opens the generated changes block; everything from
	// here on belongs to tooling, not to the doc.
	AutoSummaryHeader = "## Changes Summary (auto)"
	// DocVersion is the current doc schema version stamped into
	// frontmatter.
	DocVersion = 2
	// DocUpdatedBy is the default author for doc metadata updates.
	DocUpdatedBy = "agentctl"
)

// ExtractDoc returns the curated doc portion of a README body: from the
// Summary header up to (not including) the auto summary header.
func ExtractDoc(body string) string {
	if body == "" {
		return ""
	}
	lines := strings.Split(body, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == DocSectionHeader {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == AutoSummaryHeader {
			end = i
			break
		}
	}
	return strings.TrimRight(strings.Join(lines[start:end], "\n"), " \t\n")
}

// MergeDoc splices a doc into a README body, preserving any prefix before
// the Summary header and the auto summary block after it.
func MergeDoc(body, doc string) string {
	docText := strings.Trim(doc, "\n")
	if docText == "" {
		return body
	}
	var lines []string
	if body != "" {
		lines = strings.Split(body, "\n")
	}
	prefix := ""
	for i, line := range lines {
		if strings.TrimSpace(line) == DocSectionHeader {
			prefix = strings.TrimRight(strings.Join(lines[:i], "\n"), " \t\n")
			break
		}
	}
	autoBlock := ""
	for i, line := range lines {
		if strings.TrimSpace(line) == AutoSummaryHeader {
			autoBlock = strings.TrimRight(strings.Join(lines[i:], "\n"), " \t\n")
			break
		}
	}
	var parts []string
	if prefix != "" {
		parts = append(parts, prefix, "")
	}
	parts = append(parts, strings.TrimRight(docText, " \t\n"))
	if autoBlock != "" {
		parts = append(parts, "", autoBlock)
	}
	return strings.TrimRight(strings.Join(parts, "\n"), " \t\n") + "\n"
}

// NormalizeDoc strips trailing whitespace per line plus outer blank space,
// the equivalence used to decide whether a doc actually changed.
func NormalizeDoc(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// DocChanged reports whether two doc texts differ after normalization.
func DocChanged(existing, updated string) bool {
	return NormalizeDoc(existing) != NormalizeDoc(updated)
}

// ApplyDocMetadata stamps the doc version, update time, and updater.
func ApplyDocMetadata(t *Task, updatedBy string) {
	if updatedBy == "" {
		updatedBy = DocUpdatedBy
	}
	t.DocVersion = DocVersion
	t.DocUpdatedAt = NowISO()
	t.DocUpdatedBy = updatedBy
}
