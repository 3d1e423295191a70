package task

import (
	"strings"
	"testing"
)

func lintOpts() LintOptions {
	return LintOptions{
		KnownAgents:        map[string]bool{"CODER": true, "TESTER": true},
		VerifyRequiredTags: map[string]bool{"code": true, "backend": true, "frontend": true},
	}
}

func findMessage(messages []string, fragment string) bool {
	for _, m := range messages {
		if strings.Contains(m, fragment) {
			return true
		}
	}
	return false
}

func TestLintCleanStore(t *testing.T) {
	tasks := []*Task{
		{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo, Owner: "CODER"},
		{
			ID: "202501020304-BBBB22", Title: "b", Status: StatusDone, Owner: OwnerHuman,
			Tags: []string{"code"}, Verify: []string{"go test ./..."},
			Commit: &Commit{Hash: "abc1234", Message: "✅ BBBB22 done"},
		},
	}
	report := Lint(tasks, lintOpts())
	if !report.OK() {
		t.Errorf("lint errors on clean store: %v", report.Errors)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings = %v", report.Warnings)
	}
}

func TestLintErrors(t *testing.T) {
	tests := []struct {
		name     string
		task     *Task
		fragment string
	}{
		{"empty title", &Task{ID: "202501020304-AAAA11", Status: StatusTodo}, "title must be non-empty"},
		{"unknown owner", &Task{ID: "202501020304-AAAA11", Title: "x", Status: StatusTodo, Owner: "GHOST"}, "unknown owner"},
		{"verify required", &Task{ID: "202501020304-AAAA11", Title: "x", Status: StatusTodo, Tags: []string{"backend"}}, "verify commands are required"},
		{"done without commit", &Task{ID: "202501020304-AAAA11", Title: "x", Status: StatusDone}, "DONE requires a commit"},
		{"short hash", &Task{ID: "202501020304-AAAA11", Title: "x", Status: StatusDone, Commit: &Commit{Hash: "abc", Message: "m"}}, "at least 7 characters"},
		{"empty commit message", &Task{ID: "202501020304-AAAA11", Title: "x", Status: StatusDone, Commit: &Commit{Hash: "abc1234"}}, "commit.message"},
		{"bad id", &Task{ID: "nope", Title: "x", Status: StatusTodo}, "invalid task id"},
		{"bad comment", &Task{ID: "202501020304-AAAA11", Title: "x", Status: StatusTodo, Comments: []Comment{{Author: "", Body: "hi"}}}, "comments[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Lint([]*Task{tt.task}, lintOpts())
			if !findMessage(report.Errors, tt.fragment) {
				t.Errorf("errors = %v, want one containing %q", report.Errors, tt.fragment)
			}
		})
	}
}

func TestLintUnsatisfiedDependencies(t *testing.T) {
	dep := &Task{ID: "202501020304-AAAA11", Title: "dep", Status: StatusDoing, Owner: "CODER"}
	doing := &Task{
		ID: "202501020304-BBBB22", Title: "b", Status: StatusDoing, Owner: "CODER",
		DependsOn: []string{dep.ID},
	}
	report := Lint([]*Task{dep, doing}, lintOpts())
	if !findMessage(report.Errors, "requires satisfied dependencies") {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestLintDuplicateIDs(t *testing.T) {
	a := &Task{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}
	b := &Task{ID: "202501020304-AAAA11", Title: "b", Status: StatusTodo}
	report := Lint([]*Task{a, b}, lintOpts())
	if !findMessage(report.Errors, "duplicate task id") {
		t.Errorf("errors = %v", report.Errors)
	}
}

func TestLintCycleIsWarning(t *testing.T) {
	a := &Task{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo, DependsOn: []string{"202501020304-BBBB22"}}
	b := &Task{ID: "202501020304-BBBB22", Title: "b", Status: StatusTodo, DependsOn: []string{"202501020304-AAAA11"}}
	report := Lint([]*Task{a, b}, lintOpts())
	if !report.OK() {
		t.Errorf("cycle should not be a hard error: %v", report.Errors)
	}
	if !findMessage(report.Warnings, "Dependency cycle detected") {
		t.Errorf("warnings = %v", report.Warnings)
	}
}

func TestLintSnapshotMeta(t *testing.T) {
	tasks := []*Task{{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}}
	checksum, err := Checksum(tasks)
	if err != nil {
		t.Fatal(err)
	}

	opts := lintOpts()
	opts.Meta = &SnapshotMeta{
		SchemaVersion: SnapshotSchemaVersion,
		ManagedBy:     SnapshotManagedBy,
		ChecksumAlgo:  SnapshotChecksumAlgo,
		Checksum:      checksum,
	}
	if report := Lint(tasks, opts); !report.OK() {
		t.Errorf("valid meta flagged: %v", report.Errors)
	}

	opts.Meta.Checksum = "deadbeef"
	if report := Lint(tasks, opts); !findMessage(report.Errors, "checksum mismatch") {
		t.Errorf("stale checksum not flagged: %v", report.Errors)
	}

	opts.Meta.ChecksumAlgo = "md5"
	if report := Lint(tasks, opts); !findMessage(report.Errors, "unsupported checksum_algo") {
		t.Errorf("bad algo not flagged: %v", report.Errors)
	}
}
