package task

import (
	"fmt"
	"sort"
	"strings"
)

// Reserved owners are always accepted alongside the configured agents.
const (
	OwnerHuman        = "HUMAN"
	OwnerOrchestrator = "ORCHESTRATOR"
	OwnerIntegrator   = "INTEGRATOR"
)

// LintOptions configure a lint run.
type LintOptions struct {
	// KnownAgents is the set of agent ids allowed as owners, in addition
	// to HUMAN and ORCHESTRATOR.
	KnownAgents map[string]bool
	// VerifyRequiredTags makes verify commands mandatory for tasks
	// carrying any of these tags.
	VerifyRequiredTags map[string]bool
	// Meta, when set, is checked against the task payload.
	Meta *SnapshotMeta
	// SnapshotPath names the file the meta came from, for messages.
	SnapshotPath string
}

// LintReport is the outcome of a lint run: hard errors and advisory
// warnings, each sorted and deduplicated.
type LintReport struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the store passed lint.
func (r LintReport) OK() bool { return len(r.Errors) == 0 }

// Lint validates the whole task store: snapshot integrity, id uniqueness,
// field shapes, ownership, verify coverage, dependency readiness, and
// completion records.
func Lint(tasks []*Task, opts LintOptions) LintReport {
	var errors, warnings []string
	errorf := func(format string, args ...any) {
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	if opts.Meta != nil {
		path := opts.SnapshotPath
		if path == "" {
			path = "tasks.json"
		}
		if opts.Meta.ManagedBy != SnapshotManagedBy {
			errorf("%s: meta.managed_by must be %q", path, SnapshotManagedBy)
		}
		if opts.Meta.ChecksumAlgo != SnapshotChecksumAlgo {
			errorf("%s: unsupported checksum_algo %q", path, opts.Meta.ChecksumAlgo)
		} else if want, err := Checksum(tasks); err != nil {
			errorf("%s: %v", path, err)
		} else if opts.Meta.Checksum != want {
			errorf("%s: checksum mismatch (file is stale or hand-edited)", path)
		}
	}

	_, duplicates := IndexByID(tasks)
	for _, id := range duplicates {
		errorf("duplicate task id: %s", id)
	}

	states := ComputeDependencyStates(tasks, nil)
	for _, t := range tasks {
		id := t.ID
		if id == "" {
			errorf("task with empty id (title=%q)", t.Title)
			continue
		}
		if err := ValidateID(id); err != nil {
			errorf("%s: invalid task id", id)
		}
		if !IsValidStatus(t.Status) {
			errorf("%s: invalid status %q", id, t.Status)
		}
		if strings.TrimSpace(t.Title) == "" {
			errorf("%s: title must be non-empty", id)
		}
		if t.Description != "" && strings.TrimSpace(t.Description) == "" {
			errorf("%s: description must be non-empty when present", id)
		}
		if t.Owner != "" && !opts.KnownAgents[t.Owner] && t.Owner != OwnerHuman && t.Owner != OwnerOrchestrator {
			errorf("%s: unknown owner %q", id, t.Owner)
		}
		if requiresVerify(t, opts.VerifyRequiredTags) && len(t.Verify) == 0 {
			errorf("%s: verify commands are required for tags %s", id, strings.Join(t.Tags, ","))
		}
		for i, c := range t.Comments {
			if c.Author == "" || c.Body == "" {
				errorf("%s: comments[%d] must have author and body", id, i)
			}
		}
		if t.Status == StatusDoing || t.Status == StatusDone {
			if state, ok := states[id]; ok && !state.Satisfied() {
				blocked := append(append([]string(nil), state.Missing...), state.Incomplete...)
				errorf("%s: status %s requires satisfied dependencies (blocking: %s)", id, t.Status, strings.Join(blocked, ", "))
			}
		}
		if t.Status == StatusDone {
			switch {
			case t.Commit == nil:
				errorf("%s: DONE requires a commit record", id)
			case len(t.Commit.Hash) < 7:
				errorf("%s: commit.hash must be at least 7 characters", id)
			case strings.TrimSpace(t.Commit.Message) == "":
				errorf("%s: commit.message must be non-empty", id)
			}
		}
	}

	warnings = append(warnings, DetectCycles(tasks)...)

	return LintReport{
		Errors:   sortUnique(errors),
		Warnings: sortUnique(warnings),
	}
}

func requiresVerify(t *Task, requiredTags map[string]bool) bool {
	for _, tag := range t.Tags {
		if requiredTags[strings.ToLower(strings.TrimSpace(tag))] {
			return true
		}
	}
	return false
}

func sortUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	sort.Strings(values)
	out := values[:0]
	last := ""
	for i, v := range values {
		if i == 0 || v != last {
			out = append(out, v)
		}
		last = v
	}
	return out
}
