// Package doc manages task documentation artifacts: README markdown
// sections, PR artifact files, handoff notes, and the rendered task board.
package doc

import (
	"regexp"
	"strings"
)

// Sections is a parsed markdown document: section name to content lines,
// plus the order headers appeared in.
type Sections struct {
	Content map[string][]string
	Order   []string
}

// ExtractSections collects `## ` sections into a name-to-lines map. Lines
// before the first header are dropped.
func ExtractSections(text string) map[string][]string {
	sections := map[string][]string{}
	current := ""
	seen := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t")
		if strings.HasPrefix(line, "## ") {
			current = strings.TrimSpace(line[3:])
			seen = true
			if _, ok := sections[current]; !ok {
				sections[current] = []string{}
			}
			continue
		}
		if seen {
			sections[current] = append(sections[current], line)
		}
	}
	return sections
}

// ParseSections is ExtractSections plus the header order, for rewrites that
// must preserve document layout.
func ParseSections(text string) Sections {
	s := Sections{Content: map[string][]string{}}
	current := ""
	seen := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t")
		if strings.HasPrefix(line, "## ") {
			current = strings.TrimSpace(line[3:])
			seen = true
			if _, ok := s.Content[current]; !ok {
				s.Content[current] = []string{}
				s.Order = append(s.Order, current)
			}
			continue
		}
		if seen {
			s.Content[current] = append(s.Content[current], line)
		}
	}
	return s
}

// InsertSection places a new section into the order: before the next
// canonical section that already exists, or at the end.
func (s *Sections) InsertSection(name string, canonical []string) {
	for _, existing := range s.Order {
		if existing == name {
			return
		}
	}
	for i, c := range canonical {
		if c != name {
			continue
		}
		for _, next := range canonical[i+1:] {
			for j, existing := range s.Order {
				if existing == next {
					s.Order = append(s.Order[:j], append([]string{name}, s.Order[j:]...)...)
					return
				}
			}
		}
		break
	}
	s.Order = append(s.Order, name)
}

// EnsureRequired adds placeholder content for any required section that is
// absent.
func (s *Sections) EnsureRequired(required, canonical []string) {
	for _, name := range required {
		if _, ok := s.Content[name]; !ok {
			s.Content[name] = []string{"- ..."}
			s.InsertSection(name, canonical)
		}
	}
}

// Render writes the sections back out in order. Empty canonical sections
// get a placeholder so the header never dangles.
func (s *Sections) Render(canonical []string) string {
	canonicalSet := map[string]bool{}
	for _, name := range canonical {
		canonicalSet[name] = true
	}
	var lines []string
	for _, name := range s.Order {
		content := TrimBlankLines(s.Content[name])
		if len(content) == 0 && canonicalSet[name] {
			content = []string{"- ..."}
		}
		lines = append(lines, "## "+name, "")
		lines = append(lines, content...)
		lines = append(lines, "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\n") + "\n"
}

// NormalizeSectionName maps a user-given name onto the canonical section it
// matches case-insensitively, or returns it trimmed.
func NormalizeSectionName(name string, canonical []string) string {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return raw
	}
	lowered := strings.ToLower(raw)
	for _, section := range canonical {
		if strings.ToLower(section) == lowered {
			return section
		}
	}
	return raw
}

// TrimBlankLines strips leading and trailing blank lines.
func TrimBlankLines(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

var (
	placeholderDashes = regexp.MustCompile(`^[-*]\s*\.\.\.\s*$`)
	placeholderDots   = regexp.MustCompile(`^\.+$`)
)

// IsPlaceholder reports whether a line is scaffold filler rather than real
// content.
func IsPlaceholder(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return true
	}
	switch strings.ToLower(stripped) {
	case "...", "tbd", "todo", "- ...", "* ...":
		return true
	}
	return placeholderDashes.MatchString(stripped) || placeholderDots.MatchString(stripped)
}

// Validate checks the doc text against the required sections. It returns
// the sections that are missing entirely and those present but holding only
// placeholders.
func Validate(text string, required []string) (missing, empty []string) {
	sections := ExtractSections(text)
	for _, section := range required {
		lines, ok := sections[section]
		if !ok {
			missing = append(missing, section)
			continue
		}
		meaningful := false
		for _, line := range lines {
			if strings.TrimSpace(line) != "" && !IsPlaceholder(line) {
				meaningful = true
				break
			}
		}
		if !meaningful {
			empty = append(empty, section)
		}
	}
	return missing, empty
}

// SplitFrontmatterBlock separates a leading frontmatter block from the
// markdown body, returning both. Text without frontmatter is all body.
func SplitFrontmatterBlock(text string) (front, body string) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", text
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			front = strings.TrimRight(strings.Join(lines[:i+1], "\n"), " \t\n") + "\n"
			body = strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
			return front, body
		}
	}
	return "", text
}
