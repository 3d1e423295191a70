package task

import (
	"reflect"
	"strings"
	"testing"
)

func TestComputeDependencyStates(t *testing.T) {
	done := &Task{
		ID: "202501020304-DONE11", Status: StatusDone,
		Commit: &Commit{Hash: "abc1234", Message: "m"},
	}
	doneNoCommit := &Task{ID: "202501020304-DONE22", Status: StatusDone}
	doing := &Task{ID: "202501020304-WORK33", Status: StatusDoing}
	leaf := &Task{
		ID:        "202501020304-LEAF44",
		Status:    StatusTodo,
		DependsOn: []string{"202501020304-DONE11", "202501020304-DONE22", "202501020304-WORK33", "202501020304-GONE55", "202501020304-DONE11"},
	}

	states := ComputeDependencyStates([]*Task{done, doneNoCommit, doing, leaf}, nil)
	state := states[leaf.ID]

	if !reflect.DeepEqual(state.Missing, []string{"202501020304-GONE55"}) {
		t.Errorf("Missing = %v", state.Missing)
	}
	if !reflect.DeepEqual(state.Incomplete, []string{"202501020304-DONE22", "202501020304-WORK33"}) {
		t.Errorf("Incomplete = %v", state.Incomplete)
	}
	// The duplicate dependency dedupes.
	if len(state.DependsOn) != 4 {
		t.Errorf("DependsOn = %v", state.DependsOn)
	}
	if state.Satisfied() {
		t.Error("state with missing deps reported satisfied")
	}
	if !states[done.ID].Satisfied() {
		t.Error("dependency-free task not satisfied")
	}
}

func TestComputeDependencyStatesAssumeDone(t *testing.T) {
	dep := &Task{ID: "202501020304-WORK33", Status: StatusDoing}
	leaf := &Task{ID: "202501020304-LEAF44", Status: StatusDoing, DependsOn: []string{dep.ID}}

	states := ComputeDependencyStates([]*Task{dep, leaf}, map[string]bool{dep.ID: true})
	if !states[leaf.ID].Satisfied() {
		t.Error("assumed-done dependency still counted incomplete")
	}
}

func TestDetectCycles(t *testing.T) {
	a := &Task{ID: "202501020304-AAAA11", Status: StatusTodo, DependsOn: []string{"202501020304-BBBB22"}}
	b := &Task{ID: "202501020304-BBBB22", Status: StatusTodo, DependsOn: []string{"202501020304-AAAA11"}}
	c := &Task{ID: "202501020304-CCCC33", Status: StatusTodo}

	warnings := DetectCycles([]*Task{a, b, c})
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
	if !strings.HasPrefix(warnings[0], "Dependency cycle detected: ") {
		t.Errorf("warning = %q", warnings[0])
	}
	if !strings.Contains(warnings[0], a.ID) || !strings.Contains(warnings[0], b.ID) {
		t.Errorf("cycle path incomplete: %q", warnings[0])
	}
}

func TestDetectCyclesSelfLoop(t *testing.T) {
	a := &Task{ID: "202501020304-AAAA11", Status: StatusTodo, DependsOn: []string{"202501020304-AAAA11"}}
	warnings := DetectCycles([]*Task{a})
	if len(warnings) != 1 {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestDetectCyclesNone(t *testing.T) {
	a := &Task{ID: "202501020304-AAAA11", Status: StatusTodo, DependsOn: []string{"202501020304-BBBB22"}}
	b := &Task{ID: "202501020304-BBBB22", Status: StatusTodo}
	if warnings := DetectCycles([]*Task{a, b}); len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
}
