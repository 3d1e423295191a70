package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantErr  string
		wantUser string
	}{
		{
			name:     "what only",
			err:      &Error{What: "something broke"},
			wantErr:  "something broke",
			wantUser: "❌ something broke",
		},
		{
			name:     "what and why",
			err:      &Error{What: "something broke", Why: "bad input"},
			wantErr:  "something broke: bad input",
			wantUser: "❌ something broke\nWhy: bad input",
		},
		{
			name: "full error",
			err: &Error{
				What:    "something broke",
				Why:     "bad input",
				Fix:     "try again",
				Context: "root=/repo branch=main",
			},
			wantErr:  "something broke: bad input",
			wantUser: "❌ something broke\nWhy: bad input\nFix: try again\nContext: root=/repo branch=main",
		},
		{
			name: "with cause",
			err: &Error{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr:  "something broke: underlying error",
			wantUser: "❌ something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
			if got := tt.err.UserMessage(); got != tt.wantUser {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestErrorJSON(t *testing.T) {
	err := &Error{
		Code:  CodeInputInvalidTaskID,
		What:  "unknown task id: 202601010101-XYZW",
		Why:   "No task with this id exists",
		Fix:   "Run `agentctl task list`",
		Cause: errors.New("file not found"),
	}

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("MarshalJSON failed: %v", marshalErr)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["code"] != string(CodeInputInvalidTaskID) {
		t.Errorf("code = %v, want %v", result["code"], CodeInputInvalidTaskID)
	}
	if result["what"] != "unknown task id: 202601010101-XYZW" {
		t.Errorf("what = %v", result["what"])
	}
	if result["cause"] != "file not found" {
		t.Errorf("cause = %v, want %v", result["cause"], "file not found")
	}
}

func TestExitCode(t *testing.T) {
	if got := New(CodeStateBadTransition, "bad transition").ExitCode(); got != ExitPolicy {
		t.Errorf("default ExitCode() = %d, want %d", got, ExitPolicy)
	}
	if got := New(CodeGitCommand, "merge failed").WithExit(128).ExitCode(); got != 128 {
		t.Errorf("WithExit ExitCode() = %d, want 128", got)
	}
}

func TestWithContextCopies(t *testing.T) {
	base := New(CodeContextDirtyTree, "dirty tree")
	withCtx := base.WithContext("root=/repo")

	if base.Context != "" {
		t.Error("WithContext mutated the original error")
	}
	if withCtx.Context != "root=/repo" {
		t.Errorf("Context = %q, want %q", withCtx.Context, "root=/repo")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := ErrInvalidTaskID("garbage")
	if !errors.Is(err, New(CodeInputInvalidTaskID, "")) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, New(CodeStateBadTransition, "")) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestAsUnwrapsChain(t *testing.T) {
	inner := ErrDirtyTree("integrate")
	wrapped := errors.Join(errors.New("outer"), inner)

	if got := As(wrapped); got == nil || got.Code != CodeContextDirtyTree {
		t.Errorf("As() = %v, want inner error with %s", got, CodeContextDirtyTree)
	}
	if As(errors.New("plain")) != nil {
		t.Error("As() on a plain error should return nil")
	}
}

func TestErrTaskNotFound(t *testing.T) {
	err := ErrTaskNotFound("202601010101-XYZW")

	if err.Code != CodeInputInvalidTaskID {
		t.Errorf("Code = %v, want %v", err.Code, CodeInputInvalidTaskID)
	}
	if err.What != "unknown task id: 202601010101-XYZW" {
		t.Errorf("What = %v", err.What)
	}
	if err.Fix == "" {
		t.Error("Fix should not be empty")
	}
}

func TestErrBadTransition(t *testing.T) {
	err := ErrBadTransition("202601010101-XYZW", "DONE", "DOING")

	if err.Code != CodeStateBadTransition {
		t.Errorf("Code = %v, want %v", err.Code, CodeStateBadTransition)
	}
	if err.What != "202601010101-XYZW: invalid transition DONE → DOING" {
		t.Errorf("What = %v", err.What)
	}
}

func TestErrUnready(t *testing.T) {
	err := ErrUnready("202601010101-AAAA", []string{"202601010101-BBBB", "202601010101-CCCC"})

	if err.Code != CodeStateUnready {
		t.Errorf("Code = %v, want %v", err.Code, CodeStateUnready)
	}
	if err.Why != "Unmet dependencies: 202601010101-BBBB, 202601010101-CCCC" {
		t.Errorf("Why = %v", err.Why)
	}
}

func TestErrChecksumMismatch(t *testing.T) {
	err := ErrChecksumMismatch(".codex-swarm/tasks.json")

	if err.Code != CodeIntegrityChecksum {
		t.Errorf("Code = %v, want %v", err.Code, CodeIntegrityChecksum)
	}
	if err.Fix == "" {
		t.Error("Fix should not be empty")
	}
}

func TestErrBackendUnsupported(t *testing.T) {
	err := ErrBackendUnsupported("tracker", "doc storage")

	if err.Code != CodeInputUnsupportedBackend {
		t.Errorf("Code = %v, want %v", err.Code, CodeInputUnsupportedBackend)
	}
}
