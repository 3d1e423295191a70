package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

func TestChecksumStableUnderOrder(t *testing.T) {
	a := &Task{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}
	b := &Task{ID: "202501020304-BBBB22", Title: "b", Status: StatusTodo}

	sum1, err := Checksum([]*Task{a, b})
	if err != nil {
		t.Fatal(err)
	}
	sum2, err := Checksum([]*Task{b, a})
	if err != nil {
		t.Fatal(err)
	}
	if sum1 != sum2 {
		t.Error("checksum depends on input order")
	}

	b.Title = "changed"
	sum3, err := Checksum([]*Task{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if sum3 == sum1 {
		t.Error("checksum ignored a content change")
	}
}

func TestWriteAndReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	tasks := []*Task{
		{ID: "202501020304-BBBB22", Title: "b", Status: StatusDone, Commit: &Commit{Hash: "abc1234", Message: "m"}},
		{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo},
	}
	if err := WriteSnapshot(path, tasks); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("snapshot missing trailing newline")
	}

	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}
	if snap.Meta.SchemaVersion != SnapshotSchemaVersion || snap.Meta.ManagedBy != SnapshotManagedBy {
		t.Errorf("meta = %+v", snap.Meta)
	}
	if len(snap.Tasks) != 2 || snap.Tasks[0].ID != "202501020304-AAAA11" {
		t.Errorf("tasks not sorted in snapshot: %v", snap.Tasks[0].ID)
	}
	if err := snap.Verify(path); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
}

func TestSnapshotVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := WriteSnapshot(path, []*Task{{ID: "202501020304-AAAA11", Title: "a", Status: StatusTodo}}); err != nil {
		t.Fatal(err)
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	snap.Tasks[0].Title = "edited"
	err = snap.Verify(path)
	e := swarmerrors.As(err)
	if e == nil || e.Code != swarmerrors.CodeIntegrityChecksum {
		t.Errorf("Verify() on tampered snapshot = %v", err)
	}
}

func TestSnapshotVerifyRejectsForeignMeta(t *testing.T) {
	snap := &Snapshot{Meta: SnapshotMeta{ManagedBy: "someone-else", ChecksumAlgo: SnapshotChecksumAlgo}}
	if err := snap.Verify("tasks.json"); err == nil {
		t.Error("Verify() accepted foreign managed_by")
	}
	snap = &Snapshot{Meta: SnapshotMeta{ManagedBy: SnapshotManagedBy, ChecksumAlgo: "md5"}}
	if err := snap.Verify("tasks.json"); err == nil {
		t.Error("Verify() accepted unsupported checksum algo")
	}
}
