package task

import (
	"path/filepath"
	"testing"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

// countingBackend wraps a LocalBackend and counts writes, to observe the
// store's changed-only save behavior.
type countingBackend struct {
	*LocalBackend
	writes int
}

func (b *countingBackend) WriteTask(t *Task) error {
	b.writes++
	return b.LocalBackend.WriteTask(t)
}

func newTestStore(t *testing.T) (*Store, *countingBackend) {
	t.Helper()
	dir := t.TempDir()
	backend := &countingBackend{LocalBackend: NewLocalBackend(filepath.Join(dir, "tasks"))}
	store, err := NewStore(backend, filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatal(err)
	}
	return store, backend
}

func TestStoreLoadMemoized(t *testing.T) {
	store, backend := newTestStore(t)
	if err := backend.LocalBackend.WriteTask(&Task{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}); err != nil {
		t.Fatal(err)
	}

	first, err := store.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	second, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if &first[0] != &second[0] {
		t.Error("Load() did not memoize")
	}
}

func TestStoreSaveWritesOnlyChanged(t *testing.T) {
	store, backend := newTestStore(t)
	a := &Task{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}
	b := &Task{ID: "202501020304-BBBB22", Title: "b", Status: StatusTodo}
	for _, task := range []*Task{a, b} {
		if err := backend.LocalBackend.WriteTask(task); err != nil {
			t.Fatal(err)
		}
	}

	tasks, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	byID, _ := IndexByID(tasks)
	byID["202501020304-AAAA11"].Status = StatusDoing

	backend.writes = 0
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if backend.writes != 1 {
		t.Errorf("Save() wrote %d tasks, want 1", backend.writes)
	}

	// The snapshot is exported on every save.
	snap, err := ReadSnapshot(store.SnapshotPath())
	if err != nil {
		t.Fatalf("snapshot missing after save: %v", err)
	}
	if err := snap.Verify(store.SnapshotPath()); err != nil {
		t.Errorf("snapshot invalid: %v", err)
	}
}

func TestStoreSaveWritesNewTasks(t *testing.T) {
	store, backend := newTestStore(t)
	tasks, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	tasks = append(tasks, &Task{ID: "202501020304-AAAA11", Title: "new", Status: StatusTodo})

	backend.writes = 0
	if err := store.Save(tasks); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if backend.writes != 1 {
		t.Errorf("Save() wrote %d tasks, want 1", backend.writes)
	}
}

func TestStoreGet(t *testing.T) {
	store, backend := newTestStore(t)
	if err := backend.LocalBackend.WriteTask(&Task{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get("202501020304-AAAA11"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
	_, err := store.Get("202501020304-ZZZZ99")
	e := swarmerrors.As(err)
	if e == nil || e.Code != swarmerrors.CodeInputInvalidTaskID {
		t.Errorf("Get(missing) = %v", err)
	}
}

func TestStoreViewCached(t *testing.T) {
	store, backend := newTestStore(t)
	if err := backend.LocalBackend.WriteTask(&Task{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}); err != nil {
		t.Fatal(err)
	}

	v1, err := store.View()
	if err != nil {
		t.Fatalf("View() failed: %v", err)
	}
	v2, err := store.View()
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Error("View() rebuilt an unchanged view")
	}
	if v1.ByID["202501020304-AAAA11"] == nil {
		t.Error("view missing task")
	}
	if !v1.Ready("202501020304-AAAA11") {
		t.Error("dependency-free task not ready")
	}
}

func TestStoreGenerateID(t *testing.T) {
	store, _ := newTestStore(t)
	id, err := store.GenerateID(6)
	if err != nil {
		t.Fatalf("GenerateID() failed: %v", err)
	}
	if err := ValidateID(id); err != nil {
		t.Errorf("generated id invalid: %v", err)
	}
}
