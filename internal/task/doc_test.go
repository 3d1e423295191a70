package task

import (
	"strings"
	"testing"
)

const sampleBody = `# 202501020304-ABCD12: Add cache

Intro prose kept above the doc.

## Summary

What this task does.

## Risks

- cache invalidation

## Changes Summary (auto)

<!-- BEGIN AUTO SUMMARY -->
- ` + "`internal/cache/cache.go`" + `
<!-- END AUTO SUMMARY -->
`

func TestExtractDoc(t *testing.T) {
	doc := ExtractDoc(sampleBody)
	if !strings.HasPrefix(doc, "## Summary") {
		t.Errorf("doc does not start at the Summary header: %q", doc)
	}
	if strings.Contains(doc, "AUTO SUMMARY") {
		t.Error("doc includes the auto summary block")
	}
	if !strings.Contains(doc, "cache invalidation") {
		t.Error("doc dropped a later section")
	}
	if ExtractDoc("no headers here") != "" {
		t.Error("ExtractDoc invented a doc")
	}
}

func TestMergeDocPreservesPrefixAndAutoBlock(t *testing.T) {
	newDoc := "## Summary\n\nRewritten summary.\n\n## Risks\n\n- none"
	merged := MergeDoc(sampleBody, newDoc)

	if !strings.Contains(merged, "Intro prose kept above the doc.") {
		t.Error("merge dropped the prefix")
	}
	if !strings.Contains(merged, "Rewritten summary.") {
		t.Error("merge dropped the new doc")
	}
	if strings.Contains(merged, "What this task does.") {
		t.Error("merge kept the old doc")
	}
	if !strings.Contains(merged, "<!-- BEGIN AUTO SUMMARY -->") {
		t.Error("merge dropped the auto block")
	}
	if !strings.HasSuffix(merged, "\n") {
		t.Error("merged body missing trailing newline")
	}
}

func TestMergeDocEmptyDocKeepsBody(t *testing.T) {
	if got := MergeDoc(sampleBody, "\n\n"); got != sampleBody {
		t.Errorf("empty doc rewrote the body")
	}
}

func TestDocChanged(t *testing.T) {
	if DocChanged("## Summary\n\nText.  \n", "## Summary\n\nText.\n") {
		t.Error("trailing whitespace counted as a change")
	}
	if !DocChanged("## Summary\n\nText.", "## Summary\n\nOther.") {
		t.Error("real change not detected")
	}
}

func TestApplyDocMetadata(t *testing.T) {
	task := &Task{ID: "202501020304-ABCD12"}
	ApplyDocMetadata(task, "")
	if task.DocVersion != DocVersion {
		t.Errorf("DocVersion = %d", task.DocVersion)
	}
	if task.DocUpdatedBy != DocUpdatedBy {
		t.Errorf("DocUpdatedBy = %q", task.DocUpdatedBy)
	}
	if task.DocUpdatedAt == "" {
		t.Error("DocUpdatedAt empty")
	}

	ApplyDocMetadata(task, "REVIEWER")
	if task.DocUpdatedBy != "REVIEWER" {
		t.Errorf("DocUpdatedBy = %q after explicit updater", task.DocUpdatedBy)
	}
}
