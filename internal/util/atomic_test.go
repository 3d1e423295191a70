package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	content := []byte("hello world")

	err := AtomicWriteFile(path, content, 0644)
	if err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	// Verify file exists and has correct content
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", data, content)
	}

	// Verify permissions
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("permissions mismatch: got %o, want %o", info.Mode().Perm(), 0644)
	}
}

func TestAtomicWriteFile_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "nested", "test.txt")
	content := []byte("nested content")

	err := AtomicWriteFile(path, content, 0644)
	if err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", data, content)
	}
}

func TestAtomicWriteFile_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	// Write initial content
	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	// Overwrite
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "updated" {
		t.Errorf("content mismatch: got %q, want %q", data, "updated")
	}
}

func TestAtomicWriteFile_NoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	if err := AtomicWriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	// Check no temp files remain
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "test.txt" {
			t.Errorf("unexpected file in directory: %s", entry.Name())
		}
	}
}

func TestAtomicWriteJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	payload := map[string]any{"b": 1, "a": "two"}
	if err := AtomicWriteJSON(path, payload, 0644); err != nil {
		t.Fatalf("AtomicWriteJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "{\n  \"a\": \"two\",\n  \"b\": 1\n}\n"
	if string(data) != want {
		t.Errorf("content mismatch: got %q, want %q", data, want)
	}

	// Rewriting the same payload must be byte-identical.
	if err := AtomicWriteJSON(path, payload, 0644); err != nil {
		t.Fatalf("second AtomicWriteJSON failed: %v", err)
	}
	again, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(again) != want {
		t.Errorf("rewrite not stable: got %q", again)
	}
}

func TestCanonicalJSON_SortsKeysAtEveryLevel(t *testing.T) {
	type inner struct {
		Zeta  string `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	type outer struct {
		Tasks []inner `json:"tasks"`
		Beta  int     `json:"beta"`
	}

	got, err := CanonicalJSON(outer{
		Tasks: []inner{{Zeta: "z", Alpha: "a"}},
		Beta:  2,
	})
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}
	want := `{"beta":2,"tasks":[{"alpha":"a","zeta":"z"}]}`
	if string(got) != want {
		t.Errorf("canonical form mismatch: got %s, want %s", got, want)
	}
}

func TestCanonicalJSON_StableAcrossEquivalentInputs(t *testing.T) {
	a, err := CanonicalJSON(map[string]any{"x": []any{1, 2}, "a": "v"})
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}
	b, err := CanonicalJSON(struct {
		X []int  `json:"x"`
		A string `json:"a"`
	}{X: []int{1, 2}, A: "v"})
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("equivalent inputs produced different canonical forms: %s vs %s", a, b)
	}
}
