package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

// HandoffNote is one reviewer-to-integrator note parsed from review.md.
type HandoffNote struct {
	Author string
	Body   string
}

// ParseHandoffNotes extracts the non-placeholder `- AUTHOR: body` items
// from the Handoff Notes section of a review document.
func ParseHandoffNotes(text string) []HandoffNote {
	lines := ExtractSections(text)["Handoff Notes"]
	var notes []HandoffNote
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimLeft(line, "-"))
		if payload == "" || IsPlaceholder(payload) {
			continue
		}
		author, body, found := strings.Cut(payload, ":")
		if !found {
			continue
		}
		author = strings.TrimSpace(author)
		body = strings.TrimSpace(body)
		if author == "" || body == "" || IsPlaceholder(body) {
			continue
		}
		notes = append(notes, HandoffNote{Author: author, Body: body})
	}
	return notes
}

// HandoffDigest hashes a note list so finish can tell whether the notes
// were already appended to the task journal.
func HandoffDigest(notes []HandoffNote) string {
	var parts []string
	for _, note := range notes {
		parts = append(parts, note.Author+":"+note.Body)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

// AppendHandoffNote inserts `- author: body` at the end of the Handoff
// Notes section, skipping exact duplicates. It returns the updated text and
// whether anything changed.
func AppendHandoffNote(text, author, body string) (string, bool, error) {
	author = strings.TrimSpace(author)
	body = strings.TrimSpace(body)
	if author == "" {
		return "", false, swarmerrors.New(swarmerrors.CodeInputEmptyField, "handoff note author must be non-empty")
	}
	if body == "" {
		return "", false, swarmerrors.New(swarmerrors.CodeInputEmptyField, "handoff note body must be non-empty")
	}

	noteLine := "- " + author + ": " + body
	lines := strings.Split(text, "\n")

	headerIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == HandoffSectionHeader {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return "", false, swarmerrors.Newf(swarmerrors.CodeInputEmptyField, "missing section %q in review document", "Handoff Notes")
	}

	sectionEnd := len(lines)
	for i := headerIdx + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "## ") {
			sectionEnd = i
			break
		}
	}
	for _, line := range lines[headerIdx+1 : sectionEnd] {
		if strings.TrimRight(line, " \t") == noteLine {
			return text, false, nil
		}
	}

	insertAt := sectionEnd
	for insertAt > headerIdx+1 && strings.TrimSpace(lines[insertAt-1]) == "" {
		insertAt--
	}

	updated := make([]string, 0, len(lines)+1)
	updated = append(updated, lines[:insertAt]...)
	updated = append(updated, noteLine)
	updated = append(updated, lines[insertAt:]...)
	return strings.TrimRight(strings.Join(updated, "\n"), " \t\n") + "\n", true, nil
}
