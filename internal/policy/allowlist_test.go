package policy

import (
	"reflect"
	"testing"
)

func TestAllowlistMatchesPrefixes(t *testing.T) {
	allow := NewAllowlist([]string{"internal/cache", "./docs/", "", "  "})
	if len(allow) != 2 {
		t.Fatalf("allowlist = %v", allow)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"internal/cache/cache.go", true},
		{"internal/cache", true},
		{"./internal/cache/sub/deep.go", true},
		{"internal/cachemiss/x.go", false},
		{"docs/guide.md", true},
		{"internal/other/x.go", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := allow.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAllowlistMatchesGlobs(t *testing.T) {
	allow := NewAllowlist([]string{"**/*.md", "cmd/*/main.go"})

	tests := []struct {
		path string
		want bool
	}{
		{"README.md", true},
		{"docs/deep/guide.md", true},
		{"cmd/agentctl/main.go", true},
		{"cmd/agentctl/root.go", false},
		{"internal/task/task.go", false},
	}
	for _, tt := range tests {
		if got := allow.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestPathUnder(t *testing.T) {
	if !PathUnder("a/b/c.go", "a/b") {
		t.Error("nested path not under prefix")
	}
	if !PathUnder("a/b", "a/b/") {
		t.Error("exact path not under trailing-slash prefix")
	}
	if PathUnder("a/bc/d.go", "a/b") {
		t.Error("sibling prefix matched")
	}
	if PathUnder("a/b", "") {
		t.Error("empty prefix matched")
	}
}

func TestSuggestAllowPrefixes(t *testing.T) {
	got := SuggestAllowPrefixes([]string{
		"internal/cache/cache.go",
		"internal/cache/cache_test.go",
		"./docs/guide.md",
		"README.md",
		"",
	})
	want := []string{"README.md", "docs", "internal/cache"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SuggestAllowPrefixes = %v, want %v", got, want)
	}
}
