package policy

import (
	"strings"
	"testing"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

var testPrefixes = []CommentPrefix{
	{Prefix: "Start:", Label: "start"},
	{Prefix: "Blocked:", Label: "blocked"},
	{Prefix: "Verified:", Label: "verified"},
}

func TestFormatCommentForCommit(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"prefix with pipe details",
			"Start: wire the cache | needs redis | no network",
			"start: wire the cache | details: needs redis; no network",
		},
		{
			"multiline becomes details",
			"Verified: ran the suite\nall green",
			"verified: ran the suite | details: all green",
		},
		{
			"sentences split",
			"Fixed the crash. Root cause was a nil map.",
			"Fixed the crash. | details: Root cause was a nil map.",
		},
		{
			"no prefix no details",
			"plain summary",
			"plain summary",
		},
		{
			"empty",
			"   ",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCommentForCommit(tt.body, testPrefixes); got != tt.want {
				t.Errorf("FormatCommentForCommit(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestCommitMessageFromComment(t *testing.T) {
	msg, err := CommitMessageFromComment("202501020304-ABCDEF", "start: wire the cache", "🚧")
	if err != nil {
		t.Fatalf("CommitMessageFromComment: %v", err)
	}
	if msg != "🚧 ABCDEF start: wire the cache" {
		t.Errorf("message = %q", msg)
	}

	if _, err := CommitMessageFromComment("202501020304-ABCDEF", "  ", "🚧"); err == nil {
		t.Error("empty summary accepted")
	}
	if _, err := CommitMessageFromComment("202501020304-ABCDEF", "summary", ""); err == nil {
		t.Error("empty emoji accepted")
	}
	_, err = CommitMessageFromComment("", "summary", "🚧")
	e := swarmerrors.As(err)
	if e == nil || e.Code != swarmerrors.CodeInputInvalidTaskID {
		t.Errorf("bad id error = %v", err)
	}
}

func TestCommitMessageCollapsesWhitespace(t *testing.T) {
	msg, err := CommitMessageFromComment("202501020304-ABCDEF", "  spaced   out\tsummary ", "✅")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(msg, "  ") {
		t.Errorf("message has uncollapsed whitespace: %q", msg)
	}
}
