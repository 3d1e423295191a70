// Package errors provides structured error types for agentctl.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code. The prefix groups codes into the
// operational kinds the CLI maps to exit codes and remediation text.
type Code string

// Error codes for agentctl.
const (
	// Configuration errors
	CodeConfigInvalid        Code = "config_invalid"
	CodeConfigMissing        Code = "config_missing"
	CodeConfigPathEscape     Code = "config_path_escape"
	CodeConfigUnknownBackend Code = "config_unknown_backend"

	// Input errors
	CodeInputInvalidTaskID      Code = "input_invalid_task_id"
	CodeInputBadStatus          Code = "input_bad_status"
	CodeInputDuplicateTaskID    Code = "input_duplicate_task_id"
	CodeInputEmptyField         Code = "input_empty_field"
	CodeInputUnknownOwner       Code = "input_unknown_owner"
	CodeInputUnsupportedBackend Code = "input_backend_unsupported"

	// State errors
	CodeStateBadTransition Code = "state_bad_transition"
	CodeStateUnready       Code = "state_unready"
	CodeStateLintFailed    Code = "state_lint_failed"
	CodeStateDocIncomplete Code = "state_doc_incomplete"
	CodeStateCommentRule   Code = "state_comment_rule"
	CodeStateCommitSubject Code = "state_commit_subject"
	CodeStateAllowlist     Code = "state_allowlist"
	CodeStateLocked        Code = "state_locked"

	// Context errors
	CodeContextTaskWorktree Code = "context_task_worktree"
	CodeContextWrongBranch  Code = "context_wrong_branch"
	CodeContextDirtyTree    Code = "context_dirty_tree"
	CodeContextNotRepoRoot  Code = "context_not_repo_root"
	CodeContextWrongMode    Code = "context_wrong_mode"

	// Git errors
	CodeGitCommand Code = "git_command"

	// Integrity errors
	CodeIntegrityChecksum    Code = "integrity_checksum_mismatch"
	CodeIntegrityDuplicateID Code = "integrity_duplicate_task_id"
	CodeIntegrityCycle       Code = "integrity_dependency_cycle"

	// Remote errors
	CodeRemoteHTTP        Code = "remote_http"
	CodeRemoteUnavailable Code = "remote_unavailable"
	CodeRemoteConflict    Code = "remote_conflict"

	// Hook errors
	CodeHookFailed    Code = "hook_failed"
	CodeHookUnmanaged Code = "hook_unmanaged"
)

// ExitPolicy is the exit code for policy and validation failures. Mutating
// verbs return it for every configuration, input, state, context, and
// integrity error; git subprocess failures pass their own code through.
const ExitPolicy = 2

// Error is the structured error type for agentctl. What states the failure,
// Why explains it, Fix tells the operator what to run, and Context carries
// the resolved repo root, relative cwd, branch, and workflow mode footer.
type Error struct {
	Code    Code   `json:"code"`
	What    string `json:"what"`
	Why     string `json:"why,omitempty"`
	Fix     string `json:"fix,omitempty"`
	Context string `json:"context,omitempty"`
	Exit    int    `json:"exit,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns the multi-line message printed at the CLI boundary.
func (e *Error) UserMessage() string {
	var b strings.Builder
	b.WriteString("❌ ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\nFix: ")
		b.WriteString(e.Fix)
	}
	if e.Context != "" {
		b.WriteString("\nContext: ")
		b.WriteString(e.Context)
	}
	return b.String()
}

// ExitCode returns the process exit code for this error. Unset means the
// standard policy/validation code.
func (e *Error) ExitCode() int {
	if e.Exit != 0 {
		return e.Exit
	}
	return ExitPolicy
}

// MarshalJSON implements json.Marshaler, flattening the cause to its message.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext returns a copy of the error carrying the command context
// footer (resolved root, relative cwd, branch, workflow mode).
func (e *Error) WithContext(context string) *Error {
	out := *e
	out.Context = context
	return &out
}

// WithExit returns a copy of the error carrying an explicit exit code,
// typically the return code of a failed subprocess.
func (e *Error) WithExit(code int) *Error {
	out := *e
	out.Exit = code
	return &out
}

// New constructs an error with a code and a what line.
func New(code Code, what string) *Error {
	return &Error{Code: code, What: what}
}

// Newf constructs an error with a formatted what line.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, What: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error.
func Wrap(code Code, what string, cause error) *Error {
	return &Error{Code: code, What: what, Cause: cause}
}

// As attempts to convert an error to an *Error. Returns nil when the chain
// contains none.
func As(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return nil
}

// --- Common constructors ---

// ErrTaskNotFound reports an unknown task id.
func ErrTaskNotFound(id string) *Error {
	return &Error{
		Code: CodeInputInvalidTaskID,
		What: fmt.Sprintf("unknown task id: %s", id),
		Fix:  "Run `agentctl task list` to see known ids, or `agentctl task new` to create one",
	}
}

// ErrInvalidTaskID reports an id that fails the task-id regex.
func ErrInvalidTaskID(id string) *Error {
	return &Error{
		Code: CodeInputInvalidTaskID,
		What: fmt.Sprintf("invalid task id: %q", id),
		Why:  "Task ids are a 12-digit timestamp, a dash, and a 4+ character suffix (alphabet 0-9A-HJKMNPQRSTVWXYZ)",
		Fix:  "Generate ids with `agentctl task new` instead of writing them by hand",
	}
}

// ErrBadStatus reports a status outside the enum.
func ErrBadStatus(status string) *Error {
	return &Error{
		Code: CodeInputBadStatus,
		What: fmt.Sprintf("invalid status: %q", status),
		Why:  "Status must be one of TODO, DOING, BLOCKED, DONE",
	}
}

// ErrBadTransition reports a disallowed status transition.
func ErrBadTransition(id, from, to string) *Error {
	return &Error{
		Code: CodeStateBadTransition,
		What: fmt.Sprintf("%s: invalid transition %s → %s", id, from, to),
		Fix:  "Pass --force to override, or move through an allowed intermediate status",
	}
}

// ErrUnready reports unmet dependencies for a transition.
func ErrUnready(id string, blocking []string) *Error {
	return &Error{
		Code: CodeStateUnready,
		What: fmt.Sprintf("task is not ready: %s", id),
		Why:  fmt.Sprintf("Unmet dependencies: %s", strings.Join(blocking, ", ")),
		Fix:  "Finish the listed dependencies first, or pass --force to override",
	}
}

// ErrChecksumMismatch reports a snapshot whose stored checksum no longer
// matches the recomputed value.
func ErrChecksumMismatch(path string) *Error {
	return &Error{
		Code: CodeIntegrityChecksum,
		What: fmt.Sprintf("checksum mismatch in %s", path),
		Why:  "The snapshot was edited outside agentctl",
		Fix:  "Re-export with `agentctl task export`, or revert the manual edit",
	}
}

// ErrDirtyTree reports a dirty working tree where a clean one is required.
func ErrDirtyTree(action string) *Error {
	return &Error{
		Code: CodeContextDirtyTree,
		What: fmt.Sprintf("working tree is dirty (%s requires clean state)", action),
		Fix:  "Commit or stash your changes, then re-run",
	}
}

// ErrTasksWriteContext reports a snapshot mutation attempted outside the
// base checkout.
func ErrTasksWriteContext(detail string) *Error {
	return &Error{
		Code: CodeContextWrongBranch,
		What: "Refusing tasks.json write",
		Why:  detail,
		Fix:  "Run task mutations from the base checkout on the base branch, or pass --force when you know what you are doing",
	}
}

// ErrBackendUnsupported reports a backend lacking a requested capability.
func ErrBackendUnsupported(backend, capability string) *Error {
	return &Error{
		Code: CodeInputUnsupportedBackend,
		What: fmt.Sprintf("backend %q does not support %s", backend, capability),
		Fix:  "Switch tasks_backend in the workflow config to a backend that implements this operation",
	}
}
