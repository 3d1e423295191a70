package doc

import (
	"fmt"
	"strings"
)

const (
	// AutoSummaryBegin and AutoSummaryEnd bracket the generated file list
	// inside the auto summary block.
	AutoSummaryBegin = "<!-- BEGIN AUTO SUMMARY -->"
	AutoSummaryEnd   = "<!-- END AUTO SUMMARY -->"
	// AutoSummaryHeader opens the generated block in a task README.
	AutoSummaryHeader = "## Changes Summary (auto)"
	// NoChangesLine is the auto summary placeholder before any diff exists.
	NoChangesLine = "- (no file changes)"
)

// ReadmeTemplate renders a fresh task README: title header, one empty
// section per configured doc section, and the auto summary block.
func ReadmeTemplate(taskID, title string, sections []string) string {
	header := "# " + taskID
	if strings.TrimSpace(title) != "" {
		header = fmt.Sprintf("# %s: %s", taskID, title)
	}
	lines := []string{header, ""}
	for _, section := range sections {
		lines = append(lines, "## "+section, "", "- ...", "")
	}
	lines = append(lines,
		AutoSummaryHeader,
		"",
		AutoSummaryBegin,
		NoChangesLine,
		AutoSummaryEnd,
		"",
	)
	return strings.Join(lines, "\n")
}

// HandoffSectionHeader is where review handoff notes accumulate.
const HandoffSectionHeader = "## Handoff Notes"

// ReviewTemplate renders the review.md skeleton for a PR artifact dir.
func ReviewTemplate(taskID string) string {
	return strings.Join([]string{
		"# Review: " + taskID,
		"",
		"## Checklist",
		"",
		"- [ ] PR artifact complete (README/diffstat/verify.log)",
		"- [ ] No `tasks.json` changes in the task branch",
		"- [ ] Verify commands ran (or justified)",
		"- [ ] Scope matches task goal; risks understood",
		"",
		"## Handoff Notes",
		"",
		"Add short handoff notes here as list items so INTEGRATOR can append them to tasks.json on close.",
		"",
		"- CODER: ...",
		"- TESTER: ...",
		"- DOCS: ...",
		"- REVIEWER: ...",
		"",
		"## Notes",
		"",
		"- ...",
		"",
	}, "\n")
}
