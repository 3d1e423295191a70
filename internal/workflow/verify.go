package workflow

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

// verifiedSHARe matches the success suffix line appended after a verify run.
var verifiedSHARe = regexp.MustCompile(`verified_sha=([0-9a-f]{7,40})`)

// ExtractLastVerifiedSHA scans a verify log from the tail for the most
// recent verified sha. Empty when none was recorded.
func ExtractLastVerifiedSHA(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if m := verifiedSHARe.FindStringSubmatch(lines[i]); m != nil {
			return m[1]
		}
	}
	return ""
}

// VerifyRunner executes one verify shell command and returns its combined
// output and exit code.
type VerifyRunner interface {
	Run(dir, command string) (output string, exitCode int, err error)
}

// shellVerifyRunner runs verify commands through the shell, matching how
// operators write them in the task's verify list.
type shellVerifyRunner struct{}

func (shellVerifyRunner) Run(dir, command string) (string, int, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, err
	}
	return string(out), 0, nil
}

func (e *Engine) verifyRunner() VerifyRunner {
	if e.VerifyExec != nil {
		return e.VerifyExec
	}
	return shellVerifyRunner{}
}

// verifyEntry is one captured verify-log record.
type verifyEntry struct {
	Header  string
	Content string
}

// verifyCommands returns the task's verify command list.
func (e *Engine) verifyCommands(taskID string) ([]string, error) {
	t, err := e.Store.Get(taskID)
	if err != nil {
		return nil, err
	}
	var commands []string
	for _, cmd := range t.Verify {
		if strings.TrimSpace(cmd) != "" {
			commands = append(commands, strings.TrimSpace(cmd))
		}
	}
	return commands, nil
}

// runVerifyWithCapture executes the task's verify commands in dir, appending
// each header + output to the log when logPath is set. A failing command
// stops the run and returns a hook_failed error carrying its exit code. On
// success a verified_sha suffix line is recorded.
func (e *Engine) runVerifyWithCapture(taskID, dir, logPath, currentSHA string) ([]verifyEntry, error) {
	commands, err := e.verifyCommands(taskID)
	if err != nil {
		return nil, err
	}
	var entries []verifyEntry
	appendEntry := func(header, content string) error {
		entries = append(entries, verifyEntry{Header: header, Content: content})
		if logPath == "" {
			return nil
		}
		return appendVerifyLogFile(logPath, header, content)
	}

	if len(commands) == 0 {
		header := fmt.Sprintf("[%s] ℹ️ no verify commands configured", task.NowISO())
		if err := appendEntry(header, ""); err != nil {
			return entries, err
		}
		e.info("ℹ️ %s: no verify commands configured", taskID)
		return entries, nil
	}

	runner := e.verifyRunner()
	for _, command := range commands {
		e.info("$ %s", command)
		timestamp := task.NowISO()
		output, exitCode, err := runner.Run(dir, command)
		if err != nil {
			return entries, fmt.Errorf("run verify command %q: %w", command, err)
		}
		shaPrefix := ""
		if currentSHA != "" {
			shaPrefix = "sha=" + currentSHA + " "
		}
		header := strings.TrimRight(fmt.Sprintf("[%s] %s$ %s", timestamp, shaPrefix, command), " ")
		if err := appendEntry(header, output); err != nil {
			return entries, err
		}
		if exitCode != 0 {
			return entries, swarmerrors.Newf(swarmerrors.CodeHookFailed,
				"%s: verify command failed: %s", taskID, command).WithExit(exitCode)
		}
	}
	if currentSHA != "" {
		header := fmt.Sprintf("[%s] ✅ verified_sha=%s", task.NowISO(), currentSHA)
		if err := appendEntry(header, ""); err != nil {
			return entries, err
		}
	}
	e.info("✅ verify passed for %s", taskID)
	return entries, nil
}

func appendVerifyLogFile(path, header, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open verify log: %w", err)
	}
	defer f.Close()
	entry := strings.TrimRight(header, " \t\n") + "\n"
	if content != "" {
		entry += strings.TrimRight(content, " \t\n") + "\n"
	}
	entry += "\n"
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append verify log: %w", err)
	}
	return nil
}

// VerifyParams configure the standalone verify verb.
type VerifyParams struct {
	TaskID string
	// Dir runs the commands in this directory (must stay under the repo
	// root). Empty runs at the root.
	Dir string
	// Log appends output to this file; empty falls back to the task's PR
	// verify.log when the artifact exists.
	Log             string
	SkipIfUnchanged bool
	Require         bool
}

// Verify runs a task's verify commands with log capture, honoring
// skip-if-unchanged against the last verified sha from the PR meta or the
// log tail.
func (e *Engine) Verify(p VerifyParams) error {
	taskID := strings.TrimSpace(p.TaskID)
	commands, err := e.verifyCommands(taskID)
	if err != nil {
		return err
	}
	if len(commands) == 0 {
		if p.Require {
			return swarmerrors.Newf(swarmerrors.CodeStateUnready, "%s: no verify commands configured", taskID)
		}
		e.info("ℹ️ %s: no verify commands configured", taskID)
		return nil
	}

	dir := p.Dir
	if dir == "" {
		dir = e.Git.RepoPath()
	}
	if !pathWithinRoot(dir, e.Git.RepoPath()) {
		return swarmerrors.Newf(swarmerrors.CodeContextNotRepoRoot, "--cwd must stay under repo root: %s", dir)
	}

	artifacts := e.Artifacts(taskID)
	logPath := strings.TrimSpace(p.Log)
	if logPath == "" && artifacts.Exists() {
		logPath = artifacts.VerifyLogPath()
	}
	if logPath != "" && !pathWithinRoot(logPath, e.Git.RepoPath()) {
		return swarmerrors.Newf(swarmerrors.CodeContextNotRepoRoot, "--log must stay under repo root: %s", logPath)
	}

	meta, err := artifacts.LoadMeta()
	if err != nil {
		return err
	}

	gitDir := e.Git
	if dir != e.Git.RepoPath() {
		gitDir = e.Git.InWorktree(dir)
	}
	headSHA, err := gitDir.Head()
	if err != nil {
		return err
	}
	currentSHA := headSHA
	if logPath == artifacts.VerifyLogPath() && meta.HeadSHA != "" {
		currentSHA = meta.HeadSHA
		if meta.HeadSHA != headSHA {
			e.warn("%s: PR meta head_sha differs from HEAD; run `agentctl pr update %s` if needed", taskID, taskID)
		}
	}

	if p.SkipIfUnchanged {
		clean, err := gitDir.IsClean()
		if err != nil {
			return err
		}
		if !clean {
			e.warn("%s: working tree is dirty; ignoring --skip-if-unchanged", taskID)
		} else {
			lastVerified := meta.LastVerifiedSHA
			if lastVerified == "" && logPath != "" {
				if data, err := os.ReadFile(logPath); err == nil {
					lastVerified = ExtractLastVerifiedSHA(string(data))
				}
			}
			if lastVerified != "" && lastVerified == currentSHA {
				header := fmt.Sprintf("[%s] ℹ️ skipped (unchanged verified_sha=%s)", task.NowISO(), currentSHA)
				if logPath != "" {
					if err := appendVerifyLogFile(logPath, header, ""); err != nil {
						return err
					}
				}
				e.info("ℹ️ %s: verify skipped (unchanged sha %s)", taskID, shortSHA(currentSHA))
				return nil
			}
		}
	}

	if _, err := e.runVerifyWithCapture(taskID, dir, logPath, currentSHA); err != nil {
		return err
	}

	if artifacts.Exists() {
		meta, err := artifacts.LoadMeta()
		if err != nil {
			return err
		}
		meta.LastVerifiedSHA = currentSHA
		meta.LastVerifiedAt = task.NowISO()
		if err := artifacts.WriteMeta(meta); err != nil {
			return err
		}
	}
	return nil
}

func pathWithinRoot(path, root string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
