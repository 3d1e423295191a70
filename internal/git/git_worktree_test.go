package git

import (
	"path/filepath"
	"testing"
)

func TestParseWorktreePorcelain(t *testing.T) {
	text := "worktree /repo\n" +
		"HEAD 1111111111111111111111111111111111111111\n" +
		"branch refs/heads/main\n" +
		"\n" +
		"worktree /repo/.codex-swarm/worktrees/202601010101-ABCDEF-demo\n" +
		"HEAD 2222222222222222222222222222222222222222\n" +
		"branch refs/heads/task/202601010101-ABCDEF/demo\n" +
		"\n" +
		"worktree /repo/detached-checkout\n" +
		"HEAD 3333333333333333333333333333333333333333\n" +
		"detached\n"

	entries := parseWorktreePorcelain(text)
	if len(entries) != 3 {
		t.Fatalf("parsed %d entries, want 3", len(entries))
	}

	if entries[0].Path != "/repo" || entries[0].Branch != "main" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Branch != "task/202601010101-ABCDEF/demo" {
		t.Errorf("entry 1 branch = %q", entries[1].Branch)
	}
	if !entries[2].Detached || entries[2].Branch != "" {
		t.Errorf("entry 2 = %+v", entries[2])
	}
}

func TestParseWorktreePorcelainEmpty(t *testing.T) {
	if entries := parseWorktreePorcelain(""); len(entries) != 0 {
		t.Errorf("parsed %d entries from empty input", len(entries))
	}
}

func TestWorktreeLifecycle(t *testing.T) {
	tmpDir := setupTestRepo(t)
	g, err := NewContext(tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	branch := "task/202601010101-ABCDEF/demo"
	if err := g.CreateBranch(branch); err != nil {
		t.Fatal(err)
	}

	wtPath := filepath.Join(tmpDir, ".codex-swarm", "worktrees", "202601010101-ABCDEF-demo")
	if err := g.AddWorktree(wtPath, branch); err != nil {
		t.Fatalf("AddWorktree() failed: %v", err)
	}
	if err := g.AddWorktree(wtPath, branch); err != ErrWorktreeExists {
		t.Errorf("AddWorktree() twice = %v, want ErrWorktreeExists", err)
	}

	got, ok := g.WorktreePathFor(branch)
	if !ok {
		t.Fatal("WorktreePathFor() ok = false")
	}
	gotResolved, _ := filepath.EvalSymlinks(got)
	wantResolved, _ := filepath.EvalSymlinks(wtPath)
	if gotResolved != wantResolved {
		t.Errorf("WorktreePathFor() = %s, want %s", gotResolved, wantResolved)
	}

	if branchGot, ok := g.BranchForWorktree(got); !ok || branchGot != branch {
		t.Errorf("BranchForWorktree() = %q, %v", branchGot, ok)
	}

	inWt := g.InWorktree(got)
	isTask, err := inWt.IsTaskWorktree(filepath.Join(".codex-swarm", "worktrees"))
	if err != nil {
		t.Fatalf("IsTaskWorktree() failed: %v", err)
	}
	if !isTask {
		t.Error("IsTaskWorktree() = false inside a task worktree")
	}

	isTask, err = g.IsTaskWorktree(filepath.Join(".codex-swarm", "worktrees"))
	if err != nil {
		t.Fatal(err)
	}
	if isTask {
		t.Error("IsTaskWorktree() = true for the main checkout")
	}

	if err := g.RemoveWorktree(got, false); err != nil {
		t.Fatalf("RemoveWorktree() failed: %v", err)
	}
	if _, ok := g.WorktreePathFor(branch); ok {
		t.Error("WorktreePathFor() found a removed worktree")
	}
}
