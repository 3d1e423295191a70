package policy

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

func TestHookEnv(t *testing.T) {
	got := HookEnv("202501020304-ABCDEF", true, false)
	want := []string{
		"CODEX_SWARM_ALLOW_TASKS=1",
		"CODEX_SWARM_ALLOW_BASE=0",
		"CODEX_SWARM_TASK_ID=202501020304-ABCDEF",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HookEnv = %v, want %v", got, want)
	}

	got = HookEnv("", false, true)
	for _, pair := range got {
		if strings.HasPrefix(pair, HookEnvTaskID) {
			t.Errorf("task id set without a task: %v", got)
		}
	}
}

func TestHookScript(t *testing.T) {
	script, err := HookScript("pre-commit")
	if err != nil {
		t.Fatalf("HookScript: %v", err)
	}
	if !strings.HasPrefix(script, "#!/bin/sh\n") {
		t.Errorf("script = %q", script)
	}
	if !strings.Contains(script, HookMarker) {
		t.Error("script missing marker")
	}
	if !strings.Contains(script, "agentctl hooks run pre-commit") {
		t.Error("script does not delegate to agentctl")
	}

	if _, err := HookScript("post-merge"); err == nil {
		t.Error("unknown hook accepted")
	}
}

func TestInstallAndUninstallHooks(t *testing.T) {
	dir := t.TempDir()

	installed, err := InstallHooks(dir)
	if err != nil {
		t.Fatalf("InstallHooks: %v", err)
	}
	if len(installed) != len(HookNames) {
		t.Fatalf("installed = %v", installed)
	}
	for _, path := range installed {
		if !IsManagedHook(path) {
			t.Errorf("installed hook not managed: %s", path)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode()&0o100 == 0 {
			t.Errorf("hook not executable: %s", path)
		}
	}

	// Reinstall over managed hooks is fine.
	if _, err := InstallHooks(dir); err != nil {
		t.Fatalf("reinstall: %v", err)
	}

	removed, skipped, err := UninstallHooks(dir)
	if err != nil {
		t.Fatalf("UninstallHooks: %v", err)
	}
	if len(removed) != len(HookNames) || len(skipped) != 0 {
		t.Errorf("removed = %v, skipped = %v", removed, skipped)
	}
}

func TestInstallHooksRefusesUnmanaged(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "pre-commit")
	if err := os.WriteFile(foreign, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := InstallHooks(dir)
	e := swarmerrors.As(err)
	if e == nil || e.Code != swarmerrors.CodeHookUnmanaged {
		t.Fatalf("InstallHooks error = %v, want hook_unmanaged", err)
	}
	// Nothing may be written once a foreign hook is found.
	if _, err := os.Stat(filepath.Join(dir, "commit-msg")); !os.IsNotExist(err) {
		t.Error("commit-msg was written despite the refusal")
	}

	removed, skipped, err := UninstallHooks(dir)
	if err != nil {
		t.Fatalf("UninstallHooks: %v", err)
	}
	if len(removed) != 0 || len(skipped) != 1 {
		t.Errorf("removed = %v, skipped = %v", removed, skipped)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("foreign hook was deleted")
	}
}

func TestReadCommitSubject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "COMMIT_EDITMSG")
	content := "# comment line\n\n🚧 ABCDEF wire the cache\n\nbody text\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	subject, err := ReadCommitSubject(path)
	if err != nil {
		t.Fatalf("ReadCommitSubject: %v", err)
	}
	if subject != "🚧 ABCDEF wire the cache" {
		t.Errorf("subject = %q", subject)
	}

	if _, err := ReadCommitSubject(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file accepted")
	}
}
