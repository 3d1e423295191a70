package task

import (
	"reflect"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusTodo, StatusDoing, true},
		{StatusTodo, StatusBlocked, true},
		{StatusTodo, StatusDone, false},
		{StatusDoing, StatusDone, true},
		{StatusDoing, StatusBlocked, true},
		{StatusDoing, StatusTodo, false},
		{StatusBlocked, StatusTodo, true},
		{StatusBlocked, StatusDoing, true},
		{StatusBlocked, StatusDone, false},
		{StatusDone, StatusTodo, false},
		{StatusDone, StatusDoing, false},
		{StatusDone, StatusDone, true},
		{StatusTodo, StatusTodo, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" doing "); err != nil || s != StatusDoing {
		t.Errorf("ParseStatus(doing) = %v, %v", s, err)
	}
	if s, err := ParseStatus(""); err != nil || s != StatusTodo {
		t.Errorf("ParseStatus(empty) = %v, %v", s, err)
	}
	if _, err := ParseStatus("SHIPPED"); err == nil {
		t.Error("ParseStatus accepted SHIPPED")
	}
}

func TestFromMapRoundTrip(t *testing.T) {
	m := map[string]any{
		"id":         "202501020304-ABCD12",
		"title":      "Add cache",
		"status":     "DOING",
		"owner":      "CODER",
		"depends_on": []any{"202501020304-EFGH34"},
		"tags":       []any{"code"},
		"verify":     []any{"go test ./..."},
		"commit":     map[string]any{"hash": "abc1234", "message": "msg"},
		"comments":   []any{map[string]any{"author": "CODER", "body": "Start: x"}},
		"custom_key": "survives",
	}
	task, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap() failed: %v", err)
	}
	if task.Status != StatusDoing || task.Owner != "CODER" {
		t.Errorf("parsed task = %+v", task)
	}
	if task.Commit == nil || task.Commit.Hash != "abc1234" {
		t.Errorf("commit = %+v", task.Commit)
	}
	if task.Extra["custom_key"] != "survives" {
		t.Errorf("Extra = %v", task.Extra)
	}

	out := task.ToMap()
	if out["custom_key"] != "survives" {
		t.Errorf("ToMap dropped extra key: %v", out)
	}
	if !reflect.DeepEqual(out["depends_on"], []any{"202501020304-EFGH34"}) {
		t.Errorf("depends_on = %v", out["depends_on"])
	}
}

func TestFromMapRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]any
	}{
		{"bad status", map[string]any{"id": "x", "status": "NOPE"}},
		{"commit scalar", map[string]any{"id": "x", "commit": "abc"}},
		{"comments scalar", map[string]any{"id": "x", "comments": "hi"}},
		{"tags mixed", map[string]any{"id": "x", "tags": []any{"a", 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromMap(tt.m); err == nil {
				t.Error("FromMap accepted malformed input")
			}
		})
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	a := &Task{ID: "202501020304-ABCD12", Title: "one", Status: StatusTodo}
	b := a.Clone()
	if a.Digest() != b.Digest() {
		t.Fatal("clone digest differs")
	}
	b.Status = StatusDoing
	if a.Digest() == b.Digest() {
		t.Error("digest ignored a status change")
	}
}

func TestIndexByID(t *testing.T) {
	tasks := []*Task{
		{ID: "202501020304-AAAA11"},
		{ID: "202501020304-BBBB22"},
		{ID: "202501020304-AAAA11"},
	}
	byID, dups := IndexByID(tasks)
	if len(byID) != 2 {
		t.Errorf("byID has %d entries", len(byID))
	}
	if !reflect.DeepEqual(dups, []string{"202501020304-AAAA11"}) {
		t.Errorf("duplicates = %v", dups)
	}
}
