// Package task provides the task store for agentctl: the task model, the
// README frontmatter codec, storage backends, and the checksummed tasks.json
// snapshot derived from them.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codexswarm/agentctl/internal/util"
)

// Status represents the workflow state of a task.
type Status string

const (
	StatusTodo    Status = "TODO"
	StatusDoing   Status = "DOING"
	StatusBlocked Status = "BLOCKED"
	StatusDone    Status = "DONE"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{StatusTodo, StatusDoing, StatusBlocked, StatusDone}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusDoing, StatusBlocked, StatusDone:
		return true
	default:
		return false
	}
}

// ParseStatus normalizes a raw status string. The empty string parses to
// TODO; anything else must be a known status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if s == "" {
		return StatusTodo, nil
	}
	if !IsValidStatus(s) {
		return "", fmt.Errorf("invalid status: %q", raw)
	}
	return s, nil
}

// transitions is the allowed status graph. Same-state writes are always
// allowed; DONE is terminal.
var transitions = map[Status][]Status{
	StatusTodo:    {StatusDoing, StatusBlocked},
	StatusDoing:   {StatusDone, StatusBlocked},
	StatusBlocked: {StatusTodo, StatusDoing},
	StatusDone:    {},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Comment is one append-only journal entry on a task.
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	At     string `json:"at,omitempty"`
}

// Commit records the commit that completed a task.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// Task is one unit of work. Unknown frontmatter keys survive round-trips
// through Extra.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	Priority    string
	Owner       string
	DependsOn   []string
	Tags        []string
	Verify      []string
	Commit      *Commit
	Comments    []Comment

	// Doc is the curated documentation body: the README text from the
	// Summary header up to the auto summary block. Empty when the task
	// has no doc.
	Doc string

	DocVersion   int
	DocUpdatedAt string
	DocUpdatedBy string
	CreatedAt    string

	// Dirty marks a cached task with local edits not yet pushed to a
	// remote tracker.
	Dirty bool

	// Extra holds frontmatter keys this version does not model.
	Extra map[string]any
}

// Now returns the current time. Tests override it for deterministic ids and
// timestamps.
var Now = time.Now

// NowISO returns the current UTC time at second precision, ISO 8601.
func NowISO() string {
	return Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.DependsOn = append([]string(nil), t.DependsOn...)
	out.Tags = append([]string(nil), t.Tags...)
	out.Verify = append([]string(nil), t.Verify...)
	out.Comments = append([]Comment(nil), t.Comments...)
	if t.Commit != nil {
		c := *t.Commit
		out.Commit = &c
	}
	if t.Extra != nil {
		out.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// ToMap renders the task as the frontmatter/JSON mapping. Only set fields
// appear; Extra keys are merged in last and never shadow modeled fields.
func (t *Task) ToMap() map[string]any {
	m := map[string]any{
		"id":     t.ID,
		"title":  t.Title,
		"status": string(t.Status),
	}
	if t.Description != "" {
		m["description"] = t.Description
	}
	if t.Priority != "" {
		m["priority"] = t.Priority
	}
	if t.Owner != "" {
		m["owner"] = t.Owner
	}
	if t.DependsOn != nil {
		m["depends_on"] = stringsToAny(t.DependsOn)
	}
	if t.Tags != nil {
		m["tags"] = stringsToAny(t.Tags)
	}
	if t.Verify != nil {
		m["verify"] = stringsToAny(t.Verify)
	}
	if t.Commit != nil {
		m["commit"] = map[string]any{"hash": t.Commit.Hash, "message": t.Commit.Message}
	}
	if len(t.Comments) > 0 {
		items := make([]any, 0, len(t.Comments))
		for _, c := range t.Comments {
			item := map[string]any{"author": c.Author, "body": c.Body}
			if c.At != "" {
				item["at"] = c.At
			}
			items = append(items, item)
		}
		m["comments"] = items
	}
	if t.Doc != "" {
		m["doc"] = t.Doc
	}
	if t.DocVersion != 0 {
		m["doc_version"] = t.DocVersion
	}
	if t.DocUpdatedAt != "" {
		m["doc_updated_at"] = t.DocUpdatedAt
	}
	if t.DocUpdatedBy != "" {
		m["doc_updated_by"] = t.DocUpdatedBy
	}
	if t.CreatedAt != "" {
		m["created_at"] = t.CreatedAt
	}
	if t.Dirty {
		m["dirty"] = true
	}
	for k, v := range t.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

// FromMap builds a Task from a frontmatter/JSON mapping. Malformed modeled
// fields are an error; unknown keys land in Extra.
func FromMap(m map[string]any) (*Task, error) {
	t := &Task{}
	t.ID = strings.TrimSpace(asString(m["id"]))
	t.Title = asString(m["title"])
	t.Description = asString(m["description"])
	t.Priority = asString(m["priority"])
	t.Owner = strings.TrimSpace(asString(m["owner"]))
	t.DocUpdatedAt = asString(m["doc_updated_at"])
	t.DocUpdatedBy = asString(m["doc_updated_by"])
	t.CreatedAt = asString(m["created_at"])
	t.Doc = asString(m["doc"])

	status, err := ParseStatus(asString(m["status"]))
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = status

	if v, ok := m["doc_version"]; ok {
		t.DocVersion = asInt(v)
	}
	if v, ok := m["dirty"]; ok {
		b, _ := v.(bool)
		t.Dirty = b
	}
	if v, ok := m["depends_on"]; ok {
		if t.DependsOn, err = asStringList(v, "depends_on"); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	if v, ok := m["tags"]; ok {
		if t.Tags, err = asStringList(v, "tags"); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	if v, ok := m["verify"]; ok {
		if t.Verify, err = asStringList(v, "verify"); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	if v, ok := m["commit"]; ok && v != nil {
		cm, isMap := v.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("task %s: commit must be an object", t.ID)
		}
		t.Commit = &Commit{
			Hash:    strings.TrimSpace(asString(cm["hash"])),
			Message: strings.TrimSpace(asString(cm["message"])),
		}
	}
	if v, ok := m["comments"]; ok && v != nil {
		items, isList := v.([]any)
		if !isList {
			return nil, fmt.Errorf("task %s: comments must be a list", t.ID)
		}
		for i, item := range items {
			cm, isMap := item.(map[string]any)
			if !isMap {
				return nil, fmt.Errorf("task %s: comments[%d] must be an object", t.ID, i)
			}
			t.Comments = append(t.Comments, Comment{
				Author: strings.TrimSpace(asString(cm["author"])),
				Body:   strings.TrimSpace(asString(cm["body"])),
				At:     asString(cm["at"]),
			})
		}
	}

	for k, v := range m {
		if !modeledKeys[k] {
			if t.Extra == nil {
				t.Extra = map[string]any{}
			}
			t.Extra[k] = v
		}
	}
	return t, nil
}

var modeledKeys = map[string]bool{
	"id": true, "title": true, "description": true, "status": true,
	"priority": true, "owner": true, "depends_on": true, "tags": true,
	"verify": true, "commit": true, "comments": true, "doc": true,
	"doc_version": true, "doc_updated_at": true, "doc_updated_by": true,
	"created_at": true, "dirty": true,
}

// Digest returns a content hash of the task, used to detect which tasks
// changed between load and save.
func (t *Task) Digest() string {
	data, err := util.CanonicalJSON(t.ToMap())
	if err != nil {
		// ToMap only emits JSON-safe values.
		panic(fmt.Sprintf("task digest: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SortByID orders tasks by id in place.
func SortByID(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
}

// IndexByID returns a map from id to task plus the sorted duplicate ids.
func IndexByID(tasks []*Task) (map[string]*Task, []string) {
	byID := make(map[string]*Task, len(tasks))
	dupSet := map[string]bool{}
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if _, seen := byID[t.ID]; seen {
			dupSet[t.ID] = true
			continue
		}
		byID[t.ID] = t
	}
	duplicates := make([]string, 0, len(dupSet))
	for id := range dupSet {
		duplicates = append(duplicates, id)
	}
	sort.Strings(duplicates)
	return byID, duplicates
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &parsed); err == nil {
			return parsed
		}
	}
	return 0
}

func asStringList(v any, field string) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of strings", field)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", field, i)
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}
