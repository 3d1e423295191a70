package git

import (
	"errors"
	"testing"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Add Login Flow", "add-login-flow"},
		{"fix_parser", "fix-parser"},
		{"  UPPER  case  ", "upper-case"},
		{"already-good", "already-good"},
		{"--weird!!chars##", "weird-chars"},
		{"", "work"},
		{"???", "work"},
	}
	for _, tt := range tests {
		if got := NormalizeSlug(tt.in); got != tt.want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTaskBranch(t *testing.T) {
	got := TaskBranch("task", "202601010101-ABCDEF", "Add Login")
	want := "task/202601010101-ABCDEF/add-login"
	if got != want {
		t.Errorf("TaskBranch() = %q, want %q", got, want)
	}
}

func TestParseTaskBranch(t *testing.T) {
	tests := []struct {
		branch string
		wantID string
		wantOK bool
	}{
		{"task/202601010101-ABCDEF/add-login", "202601010101-ABCDEF", true},
		{"task/202601010101-ABCD/x", "202601010101-ABCD", true},
		{"task/202601010101-abc/x", "", false},   // lowercase suffix
		{"task/202601010101-ABC/x", "", false},   // suffix too short
		{"other/202601010101-ABCDEF/x", "", false},
		{"task/202601010101-ABCDEF", "", false},  // missing slug segment
		{"main", "", false},
	}
	for _, tt := range tests {
		id, ok := ParseTaskBranch("task", tt.branch)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseTaskBranch(%q) = %q, %v; want %q, %v", tt.branch, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestWorktreeDirName(t *testing.T) {
	got := WorktreeDirName("202601010101-ABCDEF", "Add Login")
	if got != "202601010101-ABCDEF-add-login" {
		t.Errorf("WorktreeDirName() = %q", got)
	}
}

func TestValidateBranchName(t *testing.T) {
	valid := []string{
		"main",
		"task/202601010101-ABCDEF/add-login",
		"feature/my_branch.v2",
	}
	for _, name := range valid {
		if err := ValidateBranchName(name); err != nil {
			t.Errorf("ValidateBranchName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"-starts-with-dash",
		"has space",
		"has..dots",
		"ends.lock",
		"ends/",
		"a//b",
		"a/.hidden",
		"HEAD",
		"@",
		"rev@{1}",
		"back\\slash",
	}
	for _, name := range invalid {
		if err := ValidateBranchName(name); !errors.Is(err, ErrInvalidBranchName) {
			t.Errorf("ValidateBranchName(%q) = %v, want ErrInvalidBranchName", name, err)
		}
	}
}
