package policy

import (
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
)

const guardTaskID = "202501020304-ABCDEF"

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupGuard(t *testing.T, mode string) (*Guard, string) {
	t.Helper()
	root := t.TempDir()

	runGitCmd(t, root, "init")
	runGitCmd(t, root, "symbolic-ref", "HEAD", "refs/heads/main")
	runGitCmd(t, root, "config", "user.email", "test@test.com")
	runGitCmd(t, root, "config", "user.name", "Test User")
	runGitCmd(t, root, "config", "commit.gpgsign", "false")

	writeFile(t, filepath.Join(root, ".codex-swarm", "config.json"), `{
  "schema_version": 1,
  "workflow_mode": "`+mode+`",
  "base_branch": "main",
  "paths": {
    "tasks_path": ".codex-swarm/tasks.json",
    "agents_dir": ".codex-swarm/agents",
    "agentctl_docs_path": ".codex-swarm/AGENTCTL.md",
    "workflow_dir": ".codex-swarm/workflow"
  }
}`)
	writeFile(t, filepath.Join(root, ".codex-swarm", "tasks.json"), "{}\n")
	writeFile(t, filepath.Join(root, "README.md"), "# repo\n")
	runGitCmd(t, root, "add", ".")
	runGitCmd(t, root, "commit", "-m", "initial")

	cfg, err := config.Load(root)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	g, err := git.NewContext(root)
	if err != nil {
		t.Fatalf("git.NewContext: %v", err)
	}
	return &Guard{Git: g, Config: cfg}, root
}

func errCode(t *testing.T, err error, want swarmerrors.Code) {
	t.Helper()
	e := swarmerrors.As(err)
	if e == nil || e.Code != want {
		t.Fatalf("error = %v, want code %s", err, want)
	}
}

func TestCheckClean(t *testing.T) {
	gd, root := setupGuard(t, "direct")
	if err := gd.CheckClean(); err != nil {
		t.Fatalf("CheckClean on clean index: %v", err)
	}

	writeFile(t, filepath.Join(root, "new.go"), "package main\n")
	runGitCmd(t, root, "add", "new.go")
	errCode(t, gd.CheckClean(), swarmerrors.CodeStateAllowlist)
}

func TestCommitCheckSubjectGates(t *testing.T) {
	gd, _ := setupGuard(t, "direct")

	_, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "fix the parser",
		Allow:   NewAllowlist([]string{"."}),
	})
	errCode(t, err, swarmerrors.CodeStateCommitSubject)

	_, err = gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF update",
		Allow:   NewAllowlist([]string{"."}),
	})
	errCode(t, err, swarmerrors.CodeStateCommitSubject)
}

func TestCommitCheckDirectMode(t *testing.T) {
	gd, root := setupGuard(t, "direct")

	writeFile(t, filepath.Join(root, "pkg", "thing.go"), "package pkg\n")
	runGitCmd(t, root, "add", "pkg/thing.go")

	warnings, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF add thing module",
		Allow:   NewAllowlist([]string{"pkg"}),
	})
	if err != nil {
		t.Fatalf("CommitCheck: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}

	_, err = gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF add thing module",
		Allow:   NewAllowlist([]string{"docs"}),
	})
	errCode(t, err, swarmerrors.CodeStateAllowlist)
}

func TestCommitCheckNoStagedFiles(t *testing.T) {
	gd, _ := setupGuard(t, "direct")
	_, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF add thing",
		Allow:   NewAllowlist([]string{"."}),
	})
	errCode(t, err, swarmerrors.CodeStateAllowlist)
}

func TestCommitCheckBranchPRBaseBranch(t *testing.T) {
	gd, root := setupGuard(t, "branch_pr")

	writeFile(t, filepath.Join(root, "pkg", "thing.go"), "package pkg\n")
	runGitCmd(t, root, "add", "pkg/thing.go")

	_, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF add thing module",
		Allow:   NewAllowlist([]string{"pkg"}),
	})
	errCode(t, err, swarmerrors.CodeContextWrongBranch)
}

func TestCommitCheckBranchPRTaskBranch(t *testing.T) {
	gd, root := setupGuard(t, "branch_pr")
	runGitCmd(t, root, "checkout", "-b", "task/"+guardTaskID+"/demo")

	writeFile(t, filepath.Join(root, "pkg", "thing.go"), "package pkg\n")
	runGitCmd(t, root, "add", "pkg/thing.go")

	if _, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF add thing module",
		Allow:   NewAllowlist([]string{"pkg"}),
	}); err != nil {
		t.Fatalf("CommitCheck on task branch: %v", err)
	}

	// Another task's branch does not match.
	_, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  "202501020304-XYZW12",
		Message: "🚧 XYZW12 add thing module",
		Allow:   NewAllowlist([]string{"pkg"}),
	})
	errCode(t, err, swarmerrors.CodeContextWrongBranch)
}

func TestCommitCheckSnapshotForbiddenOnTaskBranch(t *testing.T) {
	gd, root := setupGuard(t, "branch_pr")
	runGitCmd(t, root, "checkout", "-b", "task/"+guardTaskID+"/demo")

	writeFile(t, filepath.Join(root, ".codex-swarm", "tasks.json"), "{\"changed\":true}\n")
	runGitCmd(t, root, "add", ".codex-swarm/tasks.json")

	_, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF update snapshot somehow",
		Allow:   NewAllowlist([]string{".codex-swarm"}),
	})
	errCode(t, err, swarmerrors.CodeStateAllowlist)
}

func TestCommitCheckRequireClean(t *testing.T) {
	gd, root := setupGuard(t, "direct")

	writeFile(t, filepath.Join(root, "pkg", "thing.go"), "package pkg\n")
	runGitCmd(t, root, "add", "pkg/thing.go")
	writeFile(t, filepath.Join(root, "README.md"), "# repo changed\n")

	_, err := gd.CommitCheck(CommitCheckParams{
		TaskID:       guardTaskID,
		Message:      "🚧 ABCDEF add thing module",
		Allow:        NewAllowlist([]string{"pkg"}),
		RequireClean: true,
	})
	errCode(t, err, swarmerrors.CodeContextDirtyTree)

	warnings, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF add thing module",
		Allow:   NewAllowlist([]string{"pkg"}),
	})
	if err != nil {
		t.Fatalf("CommitCheck without require-clean: %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestCommitCheckReadmeMetadata(t *testing.T) {
	gd, root := setupGuard(t, "direct")

	readme := filepath.Join(root, ".codex-swarm", "tasks", guardTaskID, "README.md")
	writeFile(t, readme, "---\nid: \""+guardTaskID+"\"\n---\n\n## Summary\n\nhand edited\n")
	runGitCmd(t, root, "add", ".")

	_, err := gd.CommitCheck(CommitCheckParams{
		TaskID:  guardTaskID,
		Message: "🚧 ABCDEF update docs content",
		Allow:   NewAllowlist([]string{".codex-swarm/tasks"}),
	})
	errCode(t, err, swarmerrors.CodeStateDocIncomplete)
}

func TestStageAllowlist(t *testing.T) {
	gd, root := setupGuard(t, "direct")

	writeFile(t, filepath.Join(root, "pkg", "a.go"), "package pkg\n")
	writeFile(t, filepath.Join(root, "docs", "guide.md"), "# guide\n")
	writeFile(t, filepath.Join(root, ".codex-swarm", "tasks.json"), "{\"changed\":true}\n")

	staged, err := gd.StageAllowlist(NewAllowlist([]string{"pkg", "docs", ".codex-swarm"}), false)
	if err != nil {
		t.Fatalf("StageAllowlist: %v", err)
	}
	want := []string{"docs/guide.md", "pkg/a.go"}
	if !reflect.DeepEqual(staged, want) {
		t.Errorf("staged = %v, want %v", staged, want)
	}

	actual, err := gd.Git.StagedPaths()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(actual, want) {
		t.Errorf("index = %v, want %v", actual, want)
	}
}

func TestStageAllowlistNoMatches(t *testing.T) {
	gd, root := setupGuard(t, "direct")
	writeFile(t, filepath.Join(root, "pkg", "a.go"), "package pkg\n")

	_, err := gd.StageAllowlist(NewAllowlist([]string{"docs"}), false)
	errCode(t, err, swarmerrors.CodeStateAllowlist)
}

func TestPreCommitCheck(t *testing.T) {
	gd, root := setupGuard(t, "branch_pr")

	// Empty index passes.
	if err := gd.PreCommitCheck(false, false); err != nil {
		t.Fatalf("PreCommitCheck empty: %v", err)
	}

	// Snapshot staged without the protocol env is blocked.
	writeFile(t, filepath.Join(root, ".codex-swarm", "tasks.json"), "{\"changed\":true}\n")
	runGitCmd(t, root, "add", ".codex-swarm/tasks.json")
	errCode(t, gd.PreCommitCheck(false, false), swarmerrors.CodeHookFailed)

	// Allowed on the base branch with allow-tasks.
	if err := gd.PreCommitCheck(true, false); err != nil {
		t.Fatalf("PreCommitCheck allow-tasks: %v", err)
	}
	runGitCmd(t, root, "reset")

	// Code on the base branch is blocked without allow-base.
	writeFile(t, filepath.Join(root, "pkg", "a.go"), "package pkg\n")
	runGitCmd(t, root, "add", "pkg/a.go")
	errCode(t, gd.PreCommitCheck(false, false), swarmerrors.CodeHookFailed)
	if err := gd.PreCommitCheck(false, true); err != nil {
		t.Fatalf("PreCommitCheck allow-base: %v", err)
	}

	// Code on a task branch passes.
	runGitCmd(t, root, "checkout", "-b", "task/"+guardTaskID+"/demo")
	if err := gd.PreCommitCheck(false, false); err != nil {
		t.Fatalf("PreCommitCheck task branch: %v", err)
	}

	// A non-task side branch is blocked.
	runGitCmd(t, root, "checkout", "-b", "feature/misc")
	errCode(t, gd.PreCommitCheck(false, false), swarmerrors.CodeHookFailed)
}

func TestCommitMsgCheck(t *testing.T) {
	gd, _ := setupGuard(t, "branch_pr")

	if err := gd.CommitMsgCheck(guardTaskID, "🚧 ABCDEF wire cache", nil); err != nil {
		t.Fatalf("CommitMsgCheck with task: %v", err)
	}
	errCode(t, gd.CommitMsgCheck(guardTaskID, "unrelated", nil), swarmerrors.CodeHookFailed)
	errCode(t, gd.CommitMsgCheck("", "", nil), swarmerrors.CodeHookFailed)
	errCode(t, gd.CommitMsgCheck("", "whatever", nil), swarmerrors.CodeHookFailed)

	if err := gd.CommitMsgCheck("", "🐛 abcdef fix crash", []string{"ABCDEF"}); err != nil {
		t.Fatalf("CommitMsgCheck with suffixes: %v", err)
	}
	errCode(t, gd.CommitMsgCheck("", "no mention", []string{"ABCDEF"}), swarmerrors.CodeHookFailed)
}
