package config

import "testing"

// fakeGit is a scripted GitConfigurer.
type fakeGit struct {
	values  map[string]string
	branch  string
	setKeys []string
}

func (f *fakeGit) ConfigGet(key string) string { return f.values[key] }

func (f *fakeGit) ConfigSet(key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	f.setKeys = append(f.setKeys, key)
	return nil
}

func (f *fakeGit) CurrentBranch() (string, error) { return f.branch, nil }

func TestResolveBaseBranch(t *testing.T) {
	tests := []struct {
		name   string
		config string
		pinned string
		want   string
	}{
		{"config wins", "develop", "main", "develop"},
		{"pinned second", "", "release", "release"},
		{"fallback", "", "", "main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{BaseBranch: tt.config}
			g := &fakeGit{values: map[string]string{}}
			if tt.pinned != "" {
				g.values[GitConfigBaseBranchKey] = tt.pinned
			}
			if got := cfg.ResolveBaseBranch(g); got != tt.want {
				t.Errorf("ResolveBaseBranch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaybePinBaseBranch(t *testing.T) {
	cfg := &Config{}
	g := &fakeGit{branch: "trunk"}

	branch, pinned := cfg.MaybePinBaseBranch(g)
	if !pinned || branch != "trunk" {
		t.Fatalf("MaybePinBaseBranch() = %q, %v; want trunk pinned", branch, pinned)
	}
	if g.values[GitConfigBaseBranchKey] != "trunk" {
		t.Error("pin did not reach git config")
	}

	// Second call sees the pin and does nothing.
	branch, pinned = cfg.MaybePinBaseBranch(g)
	if pinned || branch != "trunk" {
		t.Errorf("second MaybePinBaseBranch() = %q, %v; want trunk unpinned", branch, pinned)
	}
}

func TestMaybePinBaseBranchSkipsTaskBranch(t *testing.T) {
	cfg := &Config{}
	g := &fakeGit{branch: "task/202501020304-ABCD12/add-cache"}

	if branch, pinned := cfg.MaybePinBaseBranch(g); pinned || branch != "" {
		t.Errorf("MaybePinBaseBranch() = %q, %v; want no pin on a task branch", branch, pinned)
	}
	if len(g.setKeys) != 0 {
		t.Error("task branch was pinned as base")
	}
}

func TestMaybePinBaseBranchSkipsDetachedHead(t *testing.T) {
	cfg := &Config{}
	g := &fakeGit{branch: "HEAD"}

	if _, pinned := cfg.MaybePinBaseBranch(g); pinned {
		t.Error("detached HEAD was pinned as base")
	}
}
