package task

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyState summarizes a task's dependencies: what it declares, what
// is missing from the store, and what exists but is not finished.
type DependencyState struct {
	DependsOn []string
	// Missing holds declared ids with no task, sorted.
	Missing []string
	// Incomplete holds dependencies that are not DONE, or DONE without a
	// valid completion commit, sorted.
	Incomplete []string
}

// Satisfied reports whether every dependency exists and is complete.
func (s DependencyState) Satisfied() bool {
	return len(s.Missing) == 0 && len(s.Incomplete) == 0
}

// NormalizeDependsOn trims and dedupes a dependency list, preserving order.
func NormalizeDependsOn(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return out
}

// dependencyComplete reports whether a dependency counts as finished: DONE
// with a commit carrying a hash and message.
func dependencyComplete(t *Task) bool {
	if t.Status != StatusDone {
		return false
	}
	return t.Commit != nil && t.Commit.Hash != "" && t.Commit.Message != ""
}

// ComputeDependencyStates builds the per-task dependency state, optionally
// treating the given ids as already DONE (used when finishing a batch).
func ComputeDependencyStates(tasks []*Task, assumeDone map[string]bool) map[string]DependencyState {
	byID, _ := IndexByID(tasks)
	states := make(map[string]DependencyState, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		deps := NormalizeDependsOn(t.DependsOn)
		missing := map[string]bool{}
		incomplete := map[string]bool{}
		for _, dep := range deps {
			other, ok := byID[dep]
			if !ok {
				missing[dep] = true
				continue
			}
			if assumeDone[dep] {
				continue
			}
			if !dependencyComplete(other) {
				incomplete[dep] = true
			}
		}
		states[t.ID] = DependencyState{
			DependsOn:  deps,
			Missing:    sortedKeys(missing),
			Incomplete: sortedKeys(incomplete),
		}
	}
	return states
}

// DetectCycles walks the dependency graph and returns one warning per cycle
// found, each naming the cycle path.
func DetectCycles(tasks []*Task) []string {
	byID, _ := IndexByID(tasks)
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[string]int{}
	var warnings []string
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		state[id] = visiting
		stack = append(stack, id)
		t := byID[id]
		if t != nil {
			for _, dep := range NormalizeDependsOn(t.DependsOn) {
				if _, exists := byID[dep]; !exists {
					continue
				}
				switch state[dep] {
				case unvisited:
					visit(dep)
				case visiting:
					cycle := extractCycle(stack, dep)
					warnings = append(warnings, fmt.Sprintf("Dependency cycle detected: %s", strings.Join(cycle, " -> ")))
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return warnings
}

func extractCycle(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			cycle := append([]string(nil), stack[i:]...)
			return append(cycle, start)
		}
	}
	return []string{start, start}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
