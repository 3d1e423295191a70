package task

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// FrontmatterBoundary delimits the metadata block at the top of a task
// README.
const FrontmatterBoundary = "---"

// frontmatterKeyOrder is the stable write order; keys outside this list are
// appended sorted.
var frontmatterKeyOrder = []string{
	"id",
	"title",
	"status",
	"priority",
	"owner",
	"depends_on",
	"tags",
	"verify",
	"commit",
	"comments",
	"doc_version",
	"doc_updated_at",
	"doc_updated_by",
	"created_at",
}

// FrontmatterDoc is a parsed task README: the metadata mapping plus the
// markdown body below it.
type FrontmatterDoc struct {
	Frontmatter map[string]any
	Body        string
}

// ParseFrontmatter splits a README into its frontmatter mapping and body.
// Text without a leading boundary is all body.
func ParseFrontmatter(text string) FrontmatterDoc {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != FrontmatterBoundary {
		return FrontmatterDoc{Frontmatter: map[string]any{}, Body: text}
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == FrontmatterBoundary {
			end = i
			break
		}
	}
	if end < 0 {
		return FrontmatterDoc{Frontmatter: map[string]any{}, Body: text}
	}
	body := strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
	return FrontmatterDoc{Frontmatter: parseFrontmatterLines(lines[1:end]), Body: body}
}

func parseFrontmatterLines(lines []string) map[string]any {
	data := map[string]any{}
	listKey := ""
	for _, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimLeft(raw, " \t"), "#") {
			continue
		}
		if strings.HasPrefix(raw, "  - ") && listKey != "" {
			itemText := strings.TrimSpace(strings.TrimSpace(raw)[1:])
			var item any
			if strings.HasPrefix(itemText, "{") && strings.HasSuffix(itemText, "}") {
				item = parseInlineDict(itemText)
			} else {
				item = parseValue(itemText)
			}
			if current, ok := data[listKey].([]any); ok {
				data[listKey] = append(current, item)
			} else {
				data[listKey] = []any{item}
			}
			continue
		}
		listKey = ""
		key, rawVal, found := strings.Cut(raw, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value := strings.TrimSpace(rawVal)
		if value == "" {
			data[key] = []any{}
			listKey = key
			continue
		}
		data[key] = parseValue(value)
	}
	return data
}

// FormatFrontmatter renders a metadata mapping as a frontmatter block,
// boundaries included.
func FormatFrontmatter(frontmatter map[string]any) string {
	var lines []string
	lines = append(lines, FrontmatterBoundary)
	for _, key := range orderedFrontmatterKeys(frontmatter) {
		value := frontmatter[key]
		switch v := value.(type) {
		case []any:
			if len(v) > 0 && allDicts(v) {
				lines = append(lines, key+":")
				for _, item := range v {
					lines = append(lines, "  - "+formatInlineDict(item.(map[string]any)))
				}
				continue
			}
			lines = append(lines, key+": "+formatInlineList(v))
		case map[string]any:
			lines = append(lines, key+": "+formatInlineDict(v))
		default:
			lines = append(lines, key+": "+formatScalar(value))
		}
	}
	lines = append(lines, FrontmatterBoundary)
	return strings.Join(lines, "\n")
}

func orderedFrontmatterKeys(frontmatter map[string]any) []string {
	known := map[string]bool{}
	var keys []string
	for _, key := range frontmatterKeyOrder {
		known[key] = true
		if _, ok := frontmatter[key]; ok {
			keys = append(keys, key)
		}
	}
	var remaining []string
	for key := range frontmatter {
		if !known[key] {
			remaining = append(remaining, key)
		}
	}
	sort.Strings(remaining)
	return append(keys, remaining...)
}

func allDicts(items []any) bool {
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func parseValue(value string) any {
	raw := strings.TrimSpace(value)
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return parseInlineList(raw)
	}
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return parseInlineDict(raw)
	}
	return parseScalar(raw)
}

func parseScalar(value string) any {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if isQuoted(raw) {
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal([]byte(raw), &s); err == nil {
				return s
			}
		}
		return raw[1 : len(raw)-1]
	}
	if isDigits(raw) {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return raw
}

func parseInlineList(value string) []any {
	trimmed := strings.TrimSpace(value)
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return []any{}
	}
	items := splitTopLevel(inner, ',')
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, parseScalar(item))
	}
	return out
}

func parseInlineDict(value string) map[string]any {
	trimmed := strings.TrimSpace(value)
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	result := map[string]any{}
	if inner == "" {
		return result
	}
	for _, entry := range splitTopLevel(inner, ',') {
		key, rawVal, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		result[stripQuotes(strings.TrimSpace(key))] = parseValue(strings.TrimSpace(rawVal))
	}
	return result
}

// splitTopLevel splits on sep outside quotes and brackets.
func splitTopLevel(value string, sep byte) []string {
	var parts []string
	var buf strings.Builder
	depth := 0
	var quote byte
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if quote != 0 {
			buf.WriteByte(ch)
			if quote == '"' && ch == '\\' && i+1 < len(value) {
				// JSON escape: the next byte cannot terminate the string.
				i++
				buf.WriteByte(value[i])
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch {
		case ch == '"' || ch == '\'':
			buf.WriteByte(ch)
			quote = ch
		case ch == '[' || ch == '{' || ch == '(':
			depth++
			buf.WriteByte(ch)
		case ch == ']' || ch == '}' || ch == ')':
			if depth > 0 {
				depth--
			}
			buf.WriteByte(ch)
		case ch == sep && depth == 0:
			if trimmed := strings.TrimSpace(buf.String()); trimmed != "" {
				parts = append(parts, trimmed)
			}
			buf.Reset()
		default:
			buf.WriteByte(ch)
		}
	}
	if trimmed := strings.TrimSpace(buf.String()); trimmed != "" {
		parts = append(parts, trimmed)
	}
	return parts
}

func stripQuotes(value string) string {
	if isQuoted(value) {
		if value[0] == '"' {
			var s string
			if err := json.Unmarshal([]byte(value), &s); err == nil {
				return s
			}
		}
		return value[1 : len(value)-1]
	}
	return value
}

// isQuoted reports whether value is wrapped in matching quotes. For double
// quotes the closing quote must not itself be backslash-escaped.
func isQuoted(value string) bool {
	if len(value) < 2 {
		return false
	}
	q := value[0]
	if (q != '"' && q != '\'') || value[len(value)-1] != q {
		return false
	}
	if q != '"' {
		return true
	}
	backslashes := 0
	for i := len(value) - 2; i > 0 && value[i] == '\\'; i-- {
		backslashes++
	}
	return backslashes%2 == 0
}

func formatScalar(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	data, err := json.Marshal(asString(value))
	if err != nil {
		return `""`
	}
	return string(data)
}

func formatInlineList(values []any) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, formatScalar(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatInlineDict(values map[string]any) string {
	var parts []string
	for _, key := range orderedFrontmatterKeys(values) {
		parts = append(parts, key+": "+formatScalar(values[key]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func isDigits(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return s != ""
}
