package cli

import (
	"reflect"
	"strings"
	"testing"

	"github.com/codexswarm/agentctl/internal/task"
)

func sampleTasks() []*task.Task {
	return []*task.Task{
		{ID: "202501010101-AAA111", Title: "Parser", Status: task.StatusDone, Owner: "CODER", Tags: []string{"core"}},
		{ID: "202501010102-BBB222", Title: "Server", Status: task.StatusTodo, Owner: "HUMAN",
			DependsOn: []string{"202501010101-AAA111"}, Verify: []string{"go test ./..."}},
		{ID: "202501010103-CCC333", Title: "Docs", Status: task.StatusDoing, Owner: "CODER", Tags: []string{"docs"}},
	}
}

func TestFiltersApply(t *testing.T) {
	tasks := sampleTasks()

	got := taskFilters{statuses: []string{"todo"}}.apply(tasks)
	if len(got) != 1 || got[0].ID != "202501010102-BBB222" {
		t.Fatalf("status filter = %v", got)
	}

	got = taskFilters{owners: []string{"coder"}}.apply(tasks)
	if len(got) != 2 {
		t.Fatalf("owner filter kept %d tasks", len(got))
	}

	got = taskFilters{tags: []string{"docs"}}.apply(tasks)
	if len(got) != 1 || got[0].Title != "Docs" {
		t.Fatalf("tag filter = %v", got)
	}

	if got := (taskFilters{}).apply(tasks); len(got) != 3 {
		t.Fatalf("empty filter kept %d tasks", len(got))
	}
}

func TestFormatTaskLine(t *testing.T) {
	tasks := sampleTasks()
	deps := task.ComputeDependencyStates(tasks, nil)

	line := formatTaskLine(tasks[1], deps)
	if !strings.HasPrefix(line, "202501010102-BBB222 [TODO] Server") {
		t.Errorf("line prefix = %q", line)
	}
	for _, want := range []string{"owner=HUMAN", "deps=ready", "verify=1"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	noDeps := formatTaskLine(tasks[0], deps)
	if !strings.Contains(noDeps, "deps=none") {
		t.Errorf("line %q missing deps=none", noDeps)
	}
}

func TestFormatDepsSummaryBlocked(t *testing.T) {
	tasks := []*task.Task{
		{ID: "A", Status: task.StatusTodo},
		{ID: "B", Status: task.StatusTodo, DependsOn: []string{"A", "GONE"}},
	}
	deps := task.ComputeDependencyStates(tasks, nil)
	summary := formatDepsSummary("B", deps)
	if !strings.Contains(summary, "missing:GONE") || !strings.Contains(summary, "wait:A") {
		t.Errorf("summary = %q", summary)
	}
}

func TestShortList(t *testing.T) {
	if got := shortList([]string{"a", "b"}); got != "a|b" {
		t.Errorf("shortList = %q", got)
	}
	if got := shortList([]string{"a", "b", "c", "d"}); got != "a|b+2" {
		t.Errorf("shortList = %q", got)
	}
}

func TestStatusCounts(t *testing.T) {
	got := statusCounts(sampleTasks())
	if got != "Total: 3 (DOING=1, DONE=1, TODO=1)" {
		t.Errorf("statusCounts = %q", got)
	}
}

func TestDedupeStrings(t *testing.T) {
	got := dedupeStrings([]string{" a ", "b", "a", "", "[]", "b"})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("dedupeStrings = %v", got)
	}
}

func TestRequireVerifyCoverage(t *testing.T) {
	required := map[string]bool{"code": true}

	err := requireVerifyCoverage(&task.Task{Tags: []string{"Code"}}, required)
	if err == nil {
		t.Fatal("expected error for tagged task without verify commands")
	}
	if err := requireVerifyCoverage(&task.Task{Tags: []string{"docs"}}, required); err != nil {
		t.Fatalf("untagged task: %v", err)
	}
	if err := requireVerifyCoverage(&task.Task{Tags: []string{"code"}, Verify: []string{"true"}}, required); err != nil {
		t.Fatalf("covered task: %v", err)
	}
}

func TestScrubTask(t *testing.T) {
	tk := &task.Task{
		Title:       "Fix secret handling",
		Description: "remove the secret token",
		Tags:        []string{"secret"},
		Comments:    []task.Comment{{Author: "CODER", Body: "secret is gone"}},
		Commit:      &task.Commit{Message: "✅ drop secret"},
	}
	if !scrubTask(tk, "secret", "credential") {
		t.Fatal("scrubTask reported no change")
	}
	if tk.Title != "Fix credential handling" || tk.Tags[0] != "credential" {
		t.Errorf("scrub missed fields: %+v", tk)
	}
	if tk.Comments[0].Body != "credential is gone" || tk.Commit.Message != "✅ drop credential" {
		t.Errorf("scrub missed comment/commit: %+v", tk)
	}
	if scrubTask(tk, "absent", "x") {
		t.Error("scrubTask changed on missing needle")
	}
}

func TestTaskTextBlob(t *testing.T) {
	blob := taskTextBlob(sampleTasks()[0])
	for _, want := range []string{"202501010101-AAA111", "Parser", "DONE", "CODER", "core"} {
		if !strings.Contains(blob, want) {
			t.Errorf("blob missing %q: %q", want, blob)
		}
	}
}

func TestCommandPath(t *testing.T) {
	root := newTaskCmd()
	root.Use = "agentctl"
	sub, _, err := root.Find([]string{"list"})
	if err != nil {
		t.Fatal(err)
	}
	if got := commandPath(sub); got != "list" {
		t.Errorf("commandPath = %q", got)
	}
	if got := commandPath(root); got != "agentctl" {
		t.Errorf("commandPath(root) = %q", got)
	}
}
