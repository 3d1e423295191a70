package task

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseFrontmatter(t *testing.T) {
	text := strings.Join([]string{
		"---",
		`id: "202501020304-ABCD12"`,
		`title: "Add cache layer"`,
		"status: DOING",
		"doc_version: 2",
		"active: true",
		"parent: null",
		"tags: [\"code\", \"backend\"]",
		"commit: { hash: \"abc1234\", message: \"done\" }",
		"comments:",
		"  - { author: \"CODER\", body: \"Start: working\" }",
		"  - { author: \"TESTER\", body: \"Verified: green\" }",
		"---",
		"",
		"## Summary",
		"",
		"Body text.",
	}, "\n")

	doc := ParseFrontmatter(text)
	fm := doc.Frontmatter

	if fm["id"] != "202501020304-ABCD12" {
		t.Errorf("id = %v", fm["id"])
	}
	if fm["status"] != "DOING" {
		t.Errorf("status = %v", fm["status"])
	}
	if fm["doc_version"] != 2 {
		t.Errorf("doc_version = %v (%T)", fm["doc_version"], fm["doc_version"])
	}
	if fm["active"] != true {
		t.Errorf("active = %v", fm["active"])
	}
	if v, ok := fm["parent"]; !ok || v != nil {
		t.Errorf("parent = %v", v)
	}
	if tags, ok := fm["tags"].([]any); !ok || !reflect.DeepEqual(tags, []any{"code", "backend"}) {
		t.Errorf("tags = %v", fm["tags"])
	}
	commit, ok := fm["commit"].(map[string]any)
	if !ok || commit["hash"] != "abc1234" || commit["message"] != "done" {
		t.Errorf("commit = %v", fm["commit"])
	}
	comments, ok := fm["comments"].([]any)
	if !ok || len(comments) != 2 {
		t.Fatalf("comments = %v", fm["comments"])
	}
	first := comments[0].(map[string]any)
	if first["author"] != "CODER" || first["body"] != "Start: working" {
		t.Errorf("comments[0] = %v", first)
	}
	if !strings.HasPrefix(doc.Body, "## Summary") {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParseFrontmatterWithoutBoundary(t *testing.T) {
	doc := ParseFrontmatter("just a body\n")
	if len(doc.Frontmatter) != 0 {
		t.Errorf("frontmatter = %v", doc.Frontmatter)
	}
	if doc.Body != "just a body\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestFormatFrontmatterRoundTrip(t *testing.T) {
	fm := map[string]any{
		"id":       "202501020304-ABCD12",
		"title":    "Add cache \"fast\" layer",
		"status":   "TODO",
		"tags":     []any{"code"},
		"verify":   []any{"go test ./..."},
		"commit":   map[string]any{"hash": "abc1234", "message": "msg"},
		"comments": []any{map[string]any{"author": "CODER", "body": "Start: x"}},
		"zcustom":  "kept",
	}
	text := FormatFrontmatter(fm)
	parsed := ParseFrontmatter(text + "\n")
	if !reflect.DeepEqual(parsed.Frontmatter, fm) {
		t.Errorf("round trip mismatch:\n got  %v\n want %v", parsed.Frontmatter, fm)
	}
}

func TestFormatFrontmatterKeyOrder(t *testing.T) {
	fm := map[string]any{
		"zeta":   "last",
		"status": "TODO",
		"id":     "202501020304-ABCD12",
		"alpha":  "after-canonical",
		"title":  "x",
	}
	text := FormatFrontmatter(fm)
	lines := strings.Split(text, "\n")
	want := []string{"---", `id: "202501020304-ABCD12"`, `title: "x"`, `status: "TODO"`, `alpha: "after-canonical"`, `zeta: "last"`, "---"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("key order:\n got  %v\n want %v", lines, want)
	}
}

func TestFormatFrontmatterDictListAsBlock(t *testing.T) {
	fm := map[string]any{
		"id":     "202501020304-ABCD12",
		"title":  "x",
		"status": "TODO",
		"comments": []any{
			map[string]any{"author": "CODER", "body": "one"},
			map[string]any{"author": "TESTER", "body": "two"},
		},
	}
	text := FormatFrontmatter(fm)
	if !strings.Contains(text, "comments:\n  - { author: \"CODER\", body: \"one\" }") {
		t.Errorf("dict list not rendered as block:\n%s", text)
	}
}

func TestFormatFrontmatterRoundTripEscapedQuotes(t *testing.T) {
	fm := map[string]any{
		"id":     "202501020304-ABCD12",
		"title":  `Windows path C:\temp support`,
		"status": "DOING",
		"comments": []any{
			map[string]any{
				"author": "CODER",
				"body":   `Start: reviewer said "wait, not yet" so the rollout is paused until sign-off.`,
				"at":     "2025-01-02T03:04:05Z",
			},
			map[string]any{
				"author": "TESTER",
				"body":   `Verified: trailing backslash \`,
			},
		},
	}
	text := FormatFrontmatter(fm)
	parsed := ParseFrontmatter(text + "\n")
	if !reflect.DeepEqual(parsed.Frontmatter, fm) {
		t.Errorf("round trip mismatch:\n got  %v\n want %v", parsed.Frontmatter, fm)
	}
}

func TestSplitTopLevelSkipsEscapedQuotes(t *testing.T) {
	parts := splitTopLevel(`{ body: "said \"wait, not yet\" today" }, { body: "x" }`, ',')
	want := []string{`{ body: "said \"wait, not yet\" today" }`, `{ body: "x" }`}
	if !reflect.DeepEqual(parts, want) {
		t.Errorf("splitTopLevel = %v, want %v", parts, want)
	}
}

func TestSplitTopLevelRespectsNesting(t *testing.T) {
	parts := splitTopLevel(`a, [b, c], { d: "e,f" }, "g,h"`, ',')
	want := []string{"a", "[b, c]", `{ d: "e,f" }`, `"g,h"`}
	if !reflect.DeepEqual(parts, want) {
		t.Errorf("splitTopLevel = %v, want %v", parts, want)
	}
}
