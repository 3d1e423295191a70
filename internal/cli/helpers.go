package cli

import (
	"fmt"
	"sort"
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

// taskFilters are the repeatable --status/--owner/--tag list filters.
type taskFilters struct {
	statuses []string
	owners   []string
	tags     []string
}

// apply keeps the tasks matching every given filter, sorted by id.
func (f taskFilters) apply(tasks []*task.Task) []*task.Task {
	out := append([]*task.Task(nil), tasks...)
	task.SortByID(out)
	if len(f.statuses) > 0 {
		want := upperSet(f.statuses)
		out = keep(out, func(t *task.Task) bool { return want[strings.ToUpper(string(t.Status))] })
	}
	if len(f.owners) > 0 {
		want := upperSet(f.owners)
		out = keep(out, func(t *task.Task) bool { return want[strings.ToUpper(strings.TrimSpace(t.Owner))] })
	}
	if len(f.tags) > 0 {
		want := map[string]bool{}
		for _, tag := range f.tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				want[tag] = true
			}
		}
		out = keep(out, func(t *task.Task) bool {
			for _, tag := range t.Tags {
				if want[tag] {
					return true
				}
			}
			return false
		})
	}
	return out
}

func keep(tasks []*task.Task, pred func(*task.Task) bool) []*task.Task {
	var out []*task.Task
	for _, t := range tasks {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

func upperSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}

// formatTaskLine renders one task for listings:
// "id [STATUS] title (owner=..., prio=..., deps=..., tags=..., verify=N)".
func formatTaskLine(t *task.Task, deps map[string]task.DependencyState) string {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = "(untitled task)"
	}
	line := fmt.Sprintf("%s [%s] %s", t.ID, t.Status, title)
	var extras []string
	if owner := strings.TrimSpace(t.Owner); owner != "" {
		extras = append(extras, "owner="+owner)
	}
	if prio := strings.TrimSpace(t.Priority); prio != "" {
		extras = append(extras, "prio="+prio)
	}
	if summary := formatDepsSummary(t.ID, deps); summary != "" {
		extras = append(extras, summary)
	}
	if len(t.Tags) > 0 {
		extras = append(extras, "tags="+strings.Join(t.Tags, ","))
	}
	if len(t.Verify) > 0 {
		extras = append(extras, fmt.Sprintf("verify=%d", len(t.Verify)))
	}
	if len(extras) > 0 {
		line += " (" + strings.Join(extras, ", ") + ")"
	}
	return line
}

func formatDepsSummary(id string, deps map[string]task.DependencyState) string {
	if deps == nil {
		return ""
	}
	state, ok := deps[id]
	if !ok || len(state.DependsOn) == 0 {
		return "deps=none"
	}
	if state.Satisfied() {
		return "deps=ready"
	}
	var parts []string
	if len(state.Missing) > 0 {
		parts = append(parts, "missing:"+shortList(state.Missing))
	}
	if len(state.Incomplete) > 0 {
		parts = append(parts, "wait:"+shortList(state.Incomplete))
	}
	return "deps=" + strings.Join(parts, ",")
}

// shortList shows up to two ids and a count of the rest.
func shortList(ids []string) string {
	if len(ids) <= 2 {
		return strings.Join(ids, "|")
	}
	return strings.Join(ids[:2], "|") + fmt.Sprintf("+%d", len(ids)-2)
}

// printWarnings prints lint warnings unless quiet.
func printWarnings(warnings []string) {
	if globalQuiet {
		return
	}
	for _, w := range warnings {
		fmt.Printf("⚠️ %s\n", w)
	}
}

// statusCounts summarizes filtered tasks: "Total: N (DOING=1, TODO=2)".
func statusCounts(tasks []*task.Task) string {
	counts := map[string]int{}
	for _, t := range tasks {
		counts[string(t.Status)]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return fmt.Sprintf("Total: %d (%s)", len(tasks), strings.Join(parts, ", "))
}

// dedupeStrings trims entries and drops blanks and repeats, keeping order.
func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || v == "[]" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// requireVerifyCoverage enforces verify commands on tasks whose tags demand
// them.
func requireVerifyCoverage(t *task.Task, requiredTags map[string]bool) error {
	if len(t.Verify) > 0 {
		return nil
	}
	for _, tag := range t.Tags {
		if requiredTags[strings.ToLower(strings.TrimSpace(tag))] {
			return swarmerrors.Newf(swarmerrors.CodeStateLintFailed,
				"verify commands are required for tasks tagged %q", tag)
		}
	}
	return nil
}
