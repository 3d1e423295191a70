package doc

import (
	"reflect"
	"strings"
	"testing"
)

const reviewDoc = `# Review: 202501020304-ABCD12

## Checklist

- [ ] done

## Handoff Notes

- CODER: implemented the cache
- TESTER: ...
- not a note
- REVIEWER: looks good

## Notes

- ...
`

func TestParseSectionsOrder(t *testing.T) {
	s := ParseSections(reviewDoc)
	want := []string{"Checklist", "Handoff Notes", "Notes"}
	if !reflect.DeepEqual(s.Order, want) {
		t.Errorf("Order = %v, want %v", s.Order, want)
	}
	if len(s.Content["Handoff Notes"]) == 0 {
		t.Error("Handoff Notes content missing")
	}
}

func TestInsertSectionCanonicalPosition(t *testing.T) {
	canonical := []string{"Summary", "Scope", "Risks", "Verify Steps"}
	s := ParseSections("## Summary\n\ntext\n\n## Verify Steps\n\n- go test\n")

	s.InsertSection("Risks", canonical)
	want := []string{"Summary", "Risks", "Verify Steps"}
	if !reflect.DeepEqual(s.Order, want) {
		t.Errorf("Order = %v, want %v", s.Order, want)
	}

	// Non-canonical names append.
	s.InsertSection("Extra", canonical)
	if s.Order[len(s.Order)-1] != "Extra" {
		t.Errorf("Order = %v", s.Order)
	}
}

func TestEnsureRequiredAddsPlaceholders(t *testing.T) {
	canonical := []string{"Summary", "Risks"}
	s := ParseSections("## Summary\n\ntext\n")
	s.EnsureRequired([]string{"Summary", "Risks"}, canonical)
	if !reflect.DeepEqual(s.Content["Risks"], []string{"- ..."}) {
		t.Errorf("Risks = %v", s.Content["Risks"])
	}
}

func TestRenderTrimsAndPlaceholds(t *testing.T) {
	canonical := []string{"Summary"}
	s := Sections{
		Content: map[string][]string{"Summary": {"", "", ""}},
		Order:   []string{"Summary"},
	}
	out := s.Render(canonical)
	if !strings.Contains(out, "## Summary\n\n- ...") {
		t.Errorf("Render() = %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Render() missing trailing newline")
	}
}

func TestNormalizeSectionName(t *testing.T) {
	canonical := []string{"Summary", "Verify Steps"}
	if got := NormalizeSectionName("verify steps", canonical); got != "Verify Steps" {
		t.Errorf("NormalizeSectionName = %q", got)
	}
	if got := NormalizeSectionName(" Custom ", canonical); got != "Custom" {
		t.Errorf("NormalizeSectionName = %q", got)
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"...", true},
		{"- ...", true},
		{"* ...", true},
		{"TBD", true},
		{"todo", true},
		{"....", true},
		{"", true},
		{"real content", false},
		{"- did the thing", false},
	}
	for _, tt := range tests {
		if got := IsPlaceholder(tt.line); got != tt.want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	text := "## Summary\n\nreal\n\n## Risks\n\n- ...\n"
	missing, empty := Validate(text, []string{"Summary", "Risks", "Verify Steps"})
	if !reflect.DeepEqual(missing, []string{"Verify Steps"}) {
		t.Errorf("missing = %v", missing)
	}
	if !reflect.DeepEqual(empty, []string{"Risks"}) {
		t.Errorf("empty = %v", empty)
	}
}

func TestSplitFrontmatterBlock(t *testing.T) {
	text := "---\nid: \"x\"\n---\n\nbody text\n"
	front, body := SplitFrontmatterBlock(text)
	if !strings.HasPrefix(front, "---\n") || !strings.HasSuffix(front, "---\n") {
		t.Errorf("front = %q", front)
	}
	if body != "body text\n" {
		t.Errorf("body = %q", body)
	}

	front, body = SplitFrontmatterBlock("no frontmatter")
	if front != "" || body != "no frontmatter" {
		t.Errorf("SplitFrontmatterBlock = %q, %q", front, body)
	}
}
