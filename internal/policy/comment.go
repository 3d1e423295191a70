package policy

import (
	"regexp"
	"strings"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

// CommentPrefix is one structured-comment prefix and its lowercase label for
// commit summaries ("Start:" → "start").
type CommentPrefix struct {
	Prefix string
	Label  string
}

// CommentPrefixes collects the configured structured-comment prefixes in the
// order they are stripped from commit summaries.
func CommentPrefixes(cfg *config.Config) []CommentPrefix {
	var prefixes []CommentPrefix
	for _, kind := range []string{"start", "blocked", "verified"} {
		rule, err := cfg.CommentRuleFor(kind)
		if err != nil || strings.TrimSpace(rule.Prefix) == "" {
			continue
		}
		label := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rule.Prefix), ":"))
		if label == "" {
			continue
		}
		prefixes = append(prefixes, CommentPrefix{Prefix: rule.Prefix, Label: strings.ToLower(label)})
	}
	return prefixes
}

var (
	newlineRunRe    = regexp.MustCompile(`\n+`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
	detailSplitRes  = []*regexp.Regexp{
		regexp.MustCompile(`\s*\|\s*`),
		regexp.MustCompile(`\s*;\s*`),
		regexp.MustCompile(`\s+--\s+`),
		regexp.MustCompile(`\s+-\s+`),
	}
)

// normalizeCommentBody collapses a multi-line comment into one line with
// " | " between the original lines.
func normalizeCommentBody(body string) string {
	raw := strings.ReplaceAll(body, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	raw = newlineRunRe.ReplaceAllString(raw, " | ")
	raw = whitespaceRunRe.ReplaceAllString(raw, " ")
	return strings.TrimSpace(raw)
}

// splitCommentPrefix strips a known structured prefix and returns its label.
func splitCommentPrefix(text string, prefixes []CommentPrefix) (label, remainder string) {
	lowered := strings.ToLower(text)
	for _, p := range prefixes {
		prefix := strings.TrimSpace(p.Prefix)
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(lowered, strings.ToLower(prefix)) {
			return p.Label, strings.TrimSpace(text[len(prefix):])
		}
	}
	return "", text
}

// splitSummaryAndDetails breaks a one-line comment into a leading summary and
// trailing detail fragments: explicit separators first, then sentences.
func splitSummaryAndDetails(text string) (string, []string) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return "", nil
	}
	for _, re := range detailSplitRes {
		if !re.MatchString(cleaned) {
			continue
		}
		var parts []string
		for _, part := range re.Split(cleaned, -1) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts[0], parts[1:]
		}
	}
	sentences := splitSentences(cleaned)
	if len(sentences) > 1 {
		return sentences[0], sentences[1:]
	}
	return cleaned, nil
}

// splitSentences splits after sentence-ending punctuation followed by space.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\t' {
				if part := strings.TrimSpace(text[start : i+1]); part != "" {
					out = append(out, part)
				}
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(text[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

// FormatCommentForCommit turns a structured comment body into the commit
// summary text: "label: summary | details: a; b".
func FormatCommentForCommit(body string, prefixes []CommentPrefix) string {
	compact := normalizeCommentBody(body)
	if compact == "" {
		return ""
	}
	label, remainder := splitCommentPrefix(compact, prefixes)
	summary, details := splitSummaryAndDetails(remainder)
	if summary == "" {
		summary = remainder
		if summary == "" {
			summary = compact
		}
		if summary == compact {
			label = ""
		}
	}
	if label != "" {
		summary = label + ": " + summary
	}
	if len(details) > 0 {
		return summary + " | details: " + strings.Join(details, "; ")
	}
	return summary
}

// CommitMessageFromComment builds the commit message for a status or comment
// driven commit: "<emoji> <task-suffix> <summary>".
func CommitMessageFromComment(taskID, summary, emoji string) (string, error) {
	summary = strings.Join(strings.Fields(summary), " ")
	if summary == "" {
		return "", swarmerrors.New(swarmerrors.CodeInputEmptyField,
			"comment body is required to build a commit message")
	}
	prefix := strings.TrimSpace(emoji)
	if prefix == "" {
		return "", swarmerrors.New(swarmerrors.CodeInputEmptyField,
			"emoji prefix is required when deriving commit messages from comments")
	}
	suffix := task.SuffixOf(taskID)
	if suffix == "" {
		return "", swarmerrors.ErrInvalidTaskID(taskID)
	}
	return prefix + " " + suffix + " " + summary, nil
}
