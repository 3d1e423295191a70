package doc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

func testArtifacts(t *testing.T) Artifacts {
	t.Helper()
	return NewArtifacts(t.TempDir())
}

func skeletonParams(now string) SkeletonParams {
	return SkeletonParams{
		TaskID:    "202501020304-ABCD",
		TaskTitle: "Add cache",
		Branch:    "task/202501020304-ABCD/add-cache",
		Base:      "main",
		Author:    "CODER",
		HeadSHA:   "abc1234",
		Now:       now,
	}
}

func TestEnsureSkeletonCreatesFiles(t *testing.T) {
	a := testArtifacts(t)
	if a.Exists() {
		t.Fatal("artifacts dir should not exist yet")
	}
	if err := a.EnsureSkeleton(skeletonParams("2025-01-02T03:04:05Z")); err != nil {
		t.Fatalf("EnsureSkeleton: %v", err)
	}
	if !a.Exists() {
		t.Fatal("artifacts dir missing")
	}

	meta, err := a.LoadMeta()
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if meta.TaskID != "202501020304-ABCD" || meta.Branch != "task/202501020304-ABCD/add-cache" {
		t.Errorf("meta = %+v", meta)
	}
	if meta.MergeStrategy != MergeSquash || meta.Status != PRStatusOpen {
		t.Errorf("defaults: strategy=%q status=%q", meta.MergeStrategy, meta.Status)
	}
	if meta.CreatedAt != "2025-01-02T03:04:05Z" || meta.UpdatedAt != meta.CreatedAt {
		t.Errorf("timestamps: %+v", meta)
	}

	log, err := os.ReadFile(a.VerifyLogPath())
	if err != nil {
		t.Fatalf("read verify log: %v", err)
	}
	if string(log) != "# Verify log\n\n" {
		t.Errorf("verify log = %q", log)
	}
	review, err := os.ReadFile(a.ReviewPath())
	if err != nil {
		t.Fatalf("read review: %v", err)
	}
	if !strings.Contains(string(review), "# Review: 202501020304-ABCD") {
		t.Errorf("review = %q", review)
	}
	if _, err := os.Stat(a.DiffstatPath()); err != nil {
		t.Errorf("diffstat: %v", err)
	}
}

func TestEnsureSkeletonPreservesState(t *testing.T) {
	a := testArtifacts(t)
	if err := a.EnsureSkeleton(skeletonParams("2025-01-02T03:04:05Z")); err != nil {
		t.Fatalf("EnsureSkeleton: %v", err)
	}

	meta, _ := a.LoadMeta()
	meta.MergeStrategy = MergeRebase
	meta.LastVerifiedSHA = "abc1234"
	if err := a.WriteMeta(meta); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	if err := a.AppendVerifyLog("[ts] $ go test ./...", "ok"); err != nil {
		t.Fatalf("AppendVerifyLog: %v", err)
	}

	if err := a.EnsureSkeleton(skeletonParams("2025-01-03T00:00:00Z")); err != nil {
		t.Fatalf("EnsureSkeleton refresh: %v", err)
	}
	meta, _ = a.LoadMeta()
	if meta.CreatedAt != "2025-01-02T03:04:05Z" {
		t.Errorf("created_at not preserved: %q", meta.CreatedAt)
	}
	if meta.UpdatedAt != "2025-01-03T00:00:00Z" {
		t.Errorf("updated_at = %q", meta.UpdatedAt)
	}
	if meta.MergeStrategy != MergeRebase || meta.LastVerifiedSHA != "abc1234" {
		t.Errorf("state not preserved: %+v", meta)
	}

	log, _ := os.ReadFile(a.VerifyLogPath())
	if !strings.Contains(string(log), "go test ./...") {
		t.Errorf("verify log reset: %q", log)
	}
}

func TestParseMetaBadJSON(t *testing.T) {
	a := testArtifacts(t)
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(a.MetaPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := a.LoadMeta()
	e := swarmerrors.As(err)
	if e == nil || e.Code != swarmerrors.CodeIntegrityChecksum {
		t.Errorf("err = %v", err)
	}
}

func TestAppendVerifyLogFormat(t *testing.T) {
	a := testArtifacts(t)
	if err := a.AppendVerifyLog("[ts] [sha=abc1234] $ make check", "line one\nline two\n"); err != nil {
		t.Fatalf("AppendVerifyLog: %v", err)
	}
	if err := a.AppendVerifyLog("[ts] ✅ verified_sha=abc1234", ""); err != nil {
		t.Fatalf("AppendVerifyLog: %v", err)
	}
	log, _ := os.ReadFile(a.VerifyLogPath())
	want := "[ts] [sha=abc1234] $ make check\nline one\nline two\n\n[ts] ✅ verified_sha=abc1234\n\n"
	if string(log) != want {
		t.Errorf("verify log = %q, want %q", log, want)
	}
}

func TestUpdateAutoSummary(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	text := ReadmeTemplate("202501020304-ABCD", "Add cache", []string{"Summary"})
	if err := os.WriteFile(readme, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	changed, err := UpdateAutoSummary(readme, []string{"internal/cache/cache.go", "go.mod"})
	if err != nil {
		t.Fatalf("UpdateAutoSummary: %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}
	data, _ := os.ReadFile(readme)
	if !strings.Contains(string(data), "- `internal/cache/cache.go`") {
		t.Errorf("README = %q", data)
	}
	if strings.Contains(string(data), NoChangesLine) {
		t.Error("placeholder survived")
	}

	// Same list again is a no-op.
	changed, err = UpdateAutoSummary(readme, []string{"internal/cache/cache.go", "go.mod"})
	if err != nil {
		t.Fatalf("UpdateAutoSummary repeat: %v", err)
	}
	if changed {
		t.Error("unchanged list reported a change")
	}

	// Empty list restores the placeholder.
	changed, err = UpdateAutoSummary(readme, nil)
	if err != nil {
		t.Fatalf("UpdateAutoSummary empty: %v", err)
	}
	if !changed {
		t.Error("expected change back to placeholder")
	}
	data, _ = os.ReadFile(readme)
	if !strings.Contains(string(data), NoChangesLine) {
		t.Errorf("README = %q", data)
	}
}

func TestUpdateAutoSummaryCapsAtTwenty(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	text := ReadmeTemplate("202501020304-ABCD", "", nil)
	if err := os.WriteFile(readme, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	var changedFiles []string
	for i := 0; i < 30; i++ {
		changedFiles = append(changedFiles, filepath.Join("pkg", "file"+strings.Repeat("x", i)+".go"))
	}
	if _, err := UpdateAutoSummary(readme, changedFiles); err != nil {
		t.Fatalf("UpdateAutoSummary: %v", err)
	}
	data, _ := os.ReadFile(readme)
	if got := strings.Count(string(data), "- `pkg/"); got != 20 {
		t.Errorf("listed %d files, want 20", got)
	}
}

func TestUpdateAutoSummaryNoMarkers(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# Plain doc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err := UpdateAutoSummary(readme, []string{"a.go"})
	if err != nil {
		t.Fatalf("UpdateAutoSummary: %v", err)
	}
	if changed {
		t.Error("doc without markers should be untouched")
	}
}
