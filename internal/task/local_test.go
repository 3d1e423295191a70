package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	return NewLocalBackend(filepath.Join(t.TempDir(), "tasks"))
}

func TestLocalBackendWriteAndGet(t *testing.T) {
	b := newTestBackend(t)
	in := &Task{
		ID:     "202501020304-ABCD12",
		Title:  "Add cache",
		Status: StatusTodo,
		Owner:  "CODER",
		Tags:   []string{"code"},
		Verify: []string{"go test ./..."},
		Doc:    "## Summary\n\nCache layer for hot paths.",
	}
	if err := b.WriteTask(in); err != nil {
		t.Fatalf("WriteTask() failed: %v", err)
	}

	out, err := b.GetTask(in.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if out == nil {
		t.Fatal("GetTask() returned nil for written task")
	}
	if out.Title != in.Title || out.Owner != in.Owner {
		t.Errorf("round trip lost fields: %+v", out)
	}
	if !strings.Contains(out.Doc, "Cache layer for hot paths.") {
		t.Errorf("doc = %q", out.Doc)
	}
	if out.DocVersion != DocVersion {
		t.Errorf("DocVersion = %d", out.DocVersion)
	}
	if out.DocUpdatedAt == "" || out.DocUpdatedBy == "" {
		t.Error("doc metadata not stamped")
	}
}

func TestLocalBackendGetMissing(t *testing.T) {
	b := newTestBackend(t)
	task, err := b.GetTask("202501020304-ZZZZ99")
	if err != nil || task != nil {
		t.Errorf("GetTask(missing) = %v, %v; want nil, nil", task, err)
	}
}

func TestLocalBackendWriteRejectsBadID(t *testing.T) {
	b := newTestBackend(t)
	if err := b.WriteTask(&Task{ID: "not-an-id", Title: "x", Status: StatusTodo}); err == nil {
		t.Error("WriteTask accepted a malformed id")
	}
	if err := b.WriteTask(&Task{Title: "x", Status: StatusTodo}); err == nil {
		t.Error("WriteTask accepted an empty id")
	}
}

func TestLocalBackendListSortedAndDuplicates(t *testing.T) {
	b := newTestBackend(t)
	for _, id := range []string{"202501020304-BBBB22", "202501020304-AAAA11"} {
		if err := b.WriteTask(&Task{ID: id, Title: id, Status: StatusTodo}); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := b.ListTasks()
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "202501020304-AAAA11" {
		t.Errorf("tasks not sorted by directory: %v, %v", tasks[0].ID, tasks[1].ID)
	}

	// A second directory claiming an existing id is a hard error.
	dir := filepath.Join(b.Root(), "imposter")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	readme := "---\nid: \"202501020304-AAAA11\"\ntitle: \"dup\"\nstatus: \"TODO\"\n---\n"
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = b.ListTasks()
	e := swarmerrors.As(err)
	if e == nil || e.Code != swarmerrors.CodeInputDuplicateTaskID {
		t.Errorf("ListTasks() with duplicate id = %v", err)
	}
}

func TestLocalBackendDocMergePreservesBody(t *testing.T) {
	b := newTestBackend(t)
	id := "202501020304-ABCD12"
	if err := b.WriteTask(&Task{ID: id, Title: "x", Status: StatusTodo}); err != nil {
		t.Fatal(err)
	}

	// Seed a README body with prefix and auto block around the doc.
	body := "# heading\n\n## Summary\n\nOld doc.\n\n## Changes Summary (auto)\n\n- `a.go`\n"
	data, err := os.ReadFile(b.ReadmePath(id))
	if err != nil {
		t.Fatal(err)
	}
	front := ParseFrontmatter(string(data))
	content := FormatFrontmatter(front.Frontmatter) + "\n" + body
	if err := os.WriteFile(b.ReadmePath(id), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := b.SetTaskDoc(id, "## Summary\n\nNew doc."); err != nil {
		t.Fatalf("SetTaskDoc() failed: %v", err)
	}
	text, err := os.ReadFile(b.ReadmePath(id))
	if err != nil {
		t.Fatal(err)
	}
	got := string(text)
	if !strings.Contains(got, "# heading") {
		t.Error("prefix lost")
	}
	if !strings.Contains(got, "New doc.") || strings.Contains(got, "Old doc.") {
		t.Errorf("doc not replaced:\n%s", got)
	}
	if !strings.Contains(got, "## Changes Summary (auto)") {
		t.Error("auto block lost")
	}

	doc, err := b.GetTaskDoc(id)
	if err != nil {
		t.Fatalf("GetTaskDoc() failed: %v", err)
	}
	if !strings.Contains(doc, "New doc.") {
		t.Errorf("GetTaskDoc() = %q", doc)
	}
}

func TestLocalBackendTouchDocMetadata(t *testing.T) {
	b := newTestBackend(t)
	id := "202501020304-ABCD12"
	if err := b.WriteTask(&Task{ID: id, Title: "x", Status: StatusTodo}); err != nil {
		t.Fatal(err)
	}
	if err := b.TouchTaskDocMetadata(id, "REVIEWER"); err != nil {
		t.Fatalf("TouchTaskDocMetadata() failed: %v", err)
	}
	out, err := b.GetTask(id)
	if err != nil {
		t.Fatal(err)
	}
	if out.DocUpdatedBy != "REVIEWER" {
		t.Errorf("DocUpdatedBy = %q", out.DocUpdatedBy)
	}
}

func TestLocalBackendExportAndNormalize(t *testing.T) {
	b := newTestBackend(t)
	id := "202501020304-ABCD12"
	if err := b.WriteTask(&Task{ID: id, Title: "x", Status: StatusTodo}); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "tasks.json")
	if err := b.ExportTasksJSON(out); err != nil {
		t.Fatalf("ExportTasksJSON() failed: %v", err)
	}
	snap, err := ReadSnapshot(out)
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}
	if err := snap.Verify(out); err != nil {
		t.Errorf("snapshot failed verification: %v", err)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != id {
		t.Errorf("snapshot tasks = %v", snap.Tasks)
	}

	n, err := b.NormalizeTasks()
	if err != nil || n != 1 {
		t.Errorf("NormalizeTasks() = %d, %v", n, err)
	}
}

func TestLocalBackendGenerateTaskID(t *testing.T) {
	b := newTestBackend(t)
	id, err := b.GenerateTaskID(6)
	if err != nil {
		t.Fatalf("GenerateTaskID() failed: %v", err)
	}
	if err := ValidateID(id); err != nil {
		t.Errorf("generated id invalid: %v", err)
	}
}
