// Package policy enforces the commit rules of the workflow: subject gates,
// staged-file allowlists, emoji inference, commit messages derived from
// structured comments, and the managed git hooks that back them.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codexswarm/agentctl/internal/task"
)

// Commit emoji for the status transitions and the keyword fallback.
const (
	StartCommitEmoji    = "🚧"
	FinishCommitEmoji   = "✅"
	FallbackCommitEmoji = "🛠️"
)

type emojiRule struct {
	emoji    string
	keywords []string
}

// Ordered: the first rule with a keyword hit wins, so "hotfix" outranks "fix".
var commitEmojiKeywords = []emojiRule{
	{"⛔", []string{"blocked", "blocker", "blocking", "stuck", "waiting", "hold"}},
	{"🚑", []string{"hotfix", "urgent", "emergency"}},
	{"🐛", []string{"fix", "bug", "bugs", "defect", "defects", "error", "errors", "crash", "regression", "issue"}},
	{"🔒", []string{"security", "vuln", "vulnerability", "auth", "encrypt", "encryption"}},
	{"⚡", []string{"perf", "performance", "optimize", "optimization", "speed", "latency"}},
	{"🧪", []string{"test", "tests", "testing", "spec", "specs", "coverage", "verify", "verified", "validation"}},
	{"📝", []string{"doc", "docs", "docstring", "readme", "documentation", "guide", "changelog"}},
	{"♻️", []string{"refactor", "refactoring", "cleanup", "simplify", "restructure", "rename"}},
	{"🏗️", []string{"build", "ci", "pipeline", "release", "packaging"}},
	{"🔧", []string{"config", "configuration", "settings", "flag", "env", "toggle"}},
	{"📦", []string{"deps", "dependency", "dependencies", "upgrade", "bump", "vendor"}},
	{"🎨", []string{"ui", "ux", "style", "css", "theme", "layout"}},
	{"🧹", []string{"lint", "format", "formatting", "typo", "spelling"}},
}

var (
	subjectTokenRe = regexp.MustCompile(`[0-9A-Za-z]+(?:-[0-9A-Za-z]+)*`)
	wordRe         = regexp.MustCompile(`[a-z0-9]+`)
)

// SubjectMentionsTask reports whether the commit subject contains the task's
// id suffix (the segment after the last dash).
func SubjectMentionsTask(taskID, subject string) bool {
	suffix := task.SuffixOf(taskID)
	if suffix == "" {
		return false
	}
	return strings.Contains(subject, suffix)
}

// MissingSubjectError builds the rejection message for subjects that omit
// the task suffix.
func MissingSubjectError(taskIDs []string, subject string) string {
	return fmt.Sprintf("Commit subject does not mention task suffix(es) for %s: %q",
		strings.Join(taskIDs, ", "), subject)
}

// SubjectTokens returns the lowercase word tokens of a subject, plus the
// last-dash suffix of every dashed token so suffix mentions inside composed
// tokens still count.
func SubjectTokens(subject string) map[string]bool {
	tokens := map[string]bool{}
	for _, tok := range subjectTokenRe.FindAllString(subject, -1) {
		lowered := strings.ToLower(tok)
		tokens[lowered] = true
		if idx := strings.LastIndex(lowered, "-"); idx >= 0 {
			tokens[lowered[idx+1:]] = true
		}
	}
	return tokens
}

// MentionsAnySuffix reports whether the subject tokens include at least one
// of the known task id suffixes.
func MentionsAnySuffix(subject string, suffixes []string) bool {
	tokens := SubjectTokens(subject)
	for _, suffix := range suffixes {
		if tokens[strings.ToLower(suffix)] {
			return true
		}
	}
	return false
}

// HasMeaningfulSummary reports whether the message carries at least one token
// beyond the task id, its suffix, and the configured generic words.
func HasMeaningfulSummary(taskID, message string, generic map[string]bool) bool {
	taskToken := strings.ToLower(strings.TrimSpace(taskID))
	if taskToken == "" {
		return true
	}
	suffix := taskToken
	if idx := strings.LastIndex(taskToken, "-"); idx >= 0 {
		suffix = taskToken[idx+1:]
	}
	for _, tok := range subjectTokenRe.FindAllString(strings.ToLower(message), -1) {
		if tok == taskToken || tok == suffix || generic[tok] {
			continue
		}
		return true
	}
	return false
}

// InferCommitEmoji picks a commit emoji from the keywords present in text.
func InferCommitEmoji(text string) string {
	words := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		words[w] = true
	}
	if len(words) == 0 {
		return FallbackCommitEmoji
	}
	for _, rule := range commitEmojiKeywords {
		for _, keyword := range rule.keywords {
			if words[keyword] {
				return rule.emoji
			}
		}
	}
	return FallbackCommitEmoji
}

// EmojiForStatus returns the commit emoji for a status transition: DOING and
// DONE have fixed emoji, everything else is inferred from the comment body.
func EmojiForStatus(status task.Status, commentBody string) string {
	switch status {
	case task.StatusDoing:
		return StartCommitEmoji
	case task.StatusDone:
		return FinishCommitEmoji
	}
	return InferCommitEmoji(commentBody)
}
