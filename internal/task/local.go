package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/util"
)

// DefaultTasksDirName is the per-task README tree under the control
// directory.
const DefaultTasksDirName = "tasks"

// LocalBackend stores each task as .codex-swarm/tasks/<id>/README.md with
// frontmatter metadata and the doc in the body. It is the default backend
// and also serves as the offline cache for remote tracker backends.
type LocalBackend struct {
	root string
}

func init() {
	RegisterBackend("local", func(root string, settings Settings) (Backend, error) {
		if dir, ok := settings["dir"].(string); ok && dir != "" {
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(root, dir)
			}
			return NewLocalBackend(dir), nil
		}
		return NewLocalBackend(filepath.Join(root, ".codex-swarm", DefaultTasksDirName)), nil
	})
}

// NewLocalBackend returns a backend rooted at the given tasks directory.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{root: dir}
}

func (b *LocalBackend) Name() string { return "local" }

// Root returns the tasks directory.
func (b *LocalBackend) Root() string { return b.root }

// TaskDir returns the directory holding one task's README and PR artifacts.
func (b *LocalBackend) TaskDir(id string) string {
	return filepath.Join(b.root, id)
}

// ReadmePath returns the canonical README path for a task.
func (b *LocalBackend) ReadmePath(id string) string {
	return filepath.Join(b.TaskDir(id), "README.md")
}

// ListTasks reads every task README under the root, sorted by directory
// name. Duplicate ids across directories are an error.
func (b *LocalBackend) ListTasks() ([]*Task, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}

	var tasks []*Task
	seen := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		readme := filepath.Join(b.root, entry.Name(), "README.md")
		data, err := os.ReadFile(readme)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", readme, err)
		}
		parsed := ParseFrontmatter(string(data))
		if len(parsed.Frontmatter) == 0 {
			continue
		}
		t, err := FromMap(parsed.Frontmatter)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", readme, err)
		}
		if t.ID != "" {
			if err := ValidateID(t.ID); err != nil {
				return nil, swarmerrors.As(err).WithContext("source=" + readme)
			}
			if seen[t.ID] {
				return nil, swarmerrors.Newf(swarmerrors.CodeInputDuplicateTaskID, "duplicate task id in local backend: %s", t.ID)
			}
			seen[t.ID] = true
		}
		if doc := ExtractDoc(parsed.Body); doc != "" {
			t.Doc = doc
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask reads one task, or (nil, nil) when it does not exist.
func (b *LocalBackend) GetTask(id string) (*Task, error) {
	data, err := os.ReadFile(b.ReadmePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read task %s: %w", id, err)
	}
	parsed := ParseFrontmatter(string(data))
	t, err := FromMap(parsed.Frontmatter)
	if err != nil {
		return nil, err
	}
	if doc := ExtractDoc(parsed.Body); doc != "" {
		t.Doc = doc
	}
	return t, nil
}

// GetTaskDoc returns the curated doc for a task. A missing README is an
// error, an empty doc is not.
func (b *LocalBackend) GetTaskDoc(id string) (string, error) {
	data, err := os.ReadFile(b.ReadmePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", swarmerrors.ErrTaskNotFound(id)
		}
		return "", fmt.Errorf("read task %s: %w", id, err)
	}
	return ExtractDoc(ParseFrontmatter(string(data)).Body), nil
}

// WriteTask persists one task. The existing README body is preserved; the
// doc (when set) is merged into it, and doc metadata is inherited from the
// existing frontmatter unless the doc changed.
func (b *LocalBackend) WriteTask(t *Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return swarmerrors.New(swarmerrors.CodeInputInvalidTaskID, "task id is required")
	}
	if err := ValidateID(t.ID); err != nil {
		return err
	}

	out := t.Clone()
	doc := out.Doc
	out.Doc = ""

	body := ""
	existingDoc := ""
	var existing *Task
	if data, err := os.ReadFile(b.ReadmePath(t.ID)); err == nil {
		parsed := ParseFrontmatter(string(data))
		body = parsed.Body
		existingDoc = ExtractDoc(parsed.Body)
		existing, _ = FromMap(parsed.Frontmatter)
	}

	if existing != nil {
		if out.DocVersion == 0 {
			out.DocVersion = existing.DocVersion
		}
		if out.DocUpdatedAt == "" {
			out.DocUpdatedAt = existing.DocUpdatedAt
		}
		if out.DocUpdatedBy == "" {
			out.DocUpdatedBy = existing.DocUpdatedBy
		}
	}
	if doc != "" {
		body = MergeDoc(body, doc)
		if DocChanged(existingDoc, doc) {
			ApplyDocMetadata(out, "")
		}
	}
	if out.DocVersion != DocVersion {
		out.DocVersion = DocVersion
	}
	if out.DocUpdatedAt == "" || out.DocUpdatedBy == "" {
		ApplyDocMetadata(out, "")
	}

	return b.writeReadme(t.ID, out.ToMap(), body)
}

// SetTaskDoc replaces the curated doc of an existing task.
func (b *LocalBackend) SetTaskDoc(id, doc string) error {
	data, err := os.ReadFile(b.ReadmePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return swarmerrors.ErrTaskNotFound(id)
		}
		return fmt.Errorf("read task %s: %w", id, err)
	}
	parsed := ParseFrontmatter(string(data))
	t, err := FromMap(parsed.Frontmatter)
	if err != nil {
		return err
	}
	body := MergeDoc(parsed.Body, doc)
	if DocChanged(ExtractDoc(parsed.Body), doc) || t.DocUpdatedAt == "" {
		ApplyDocMetadata(t, "")
	}
	if t.DocVersion != DocVersion {
		t.DocVersion = DocVersion
	}
	t.Doc = ""
	return b.writeReadme(id, t.ToMap(), body)
}

// TouchTaskDocMetadata refreshes the doc metadata without changing the doc.
func (b *LocalBackend) TouchTaskDocMetadata(id, updatedBy string) error {
	data, err := os.ReadFile(b.ReadmePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return swarmerrors.ErrTaskNotFound(id)
		}
		return fmt.Errorf("read task %s: %w", id, err)
	}
	parsed := ParseFrontmatter(string(data))
	t, err := FromMap(parsed.Frontmatter)
	if err != nil {
		return err
	}
	ApplyDocMetadata(t, updatedBy)
	t.Doc = ""
	return b.writeReadme(id, t.ToMap(), parsed.Body)
}

// WriteTasks persists tasks in order.
func (b *LocalBackend) WriteTasks(tasks []*Task) error {
	for _, t := range tasks {
		if err := b.WriteTask(t); err != nil {
			return err
		}
	}
	return nil
}

// ExportTasksJSON writes the checksummed snapshot from the current task
// set.
func (b *LocalBackend) ExportTasksJSON(path string) error {
	tasks, err := b.ListTasks()
	if err != nil {
		return err
	}
	return WriteSnapshot(path, tasks)
}

// NormalizeTasks rewrites every task through the canonical serializer.
func (b *LocalBackend) NormalizeTasks() (int, error) {
	tasks, err := b.ListTasks()
	if err != nil {
		return 0, err
	}
	if err := b.WriteTasks(tasks); err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// GenerateTaskID mints an id that has no task directory yet.
func (b *LocalBackend) GenerateTaskID(length int) (string, error) {
	return GenerateID(length, func(id string) bool {
		_, err := os.Stat(b.TaskDir(id))
		return err == nil
	})
}

func (b *LocalBackend) writeReadme(id string, frontmatter map[string]any, body string) error {
	delete(frontmatter, "doc")
	if err := os.MkdirAll(b.TaskDir(id), 0o755); err != nil {
		return fmt.Errorf("create task dir: %w", err)
	}
	content := FormatFrontmatter(frontmatter) + "\n"
	if body != "" {
		content += strings.TrimLeft(body, "\n") + "\n"
	}
	if err := util.AtomicWriteFile(b.ReadmePath(id), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write task %s: %w", id, err)
	}
	return nil
}
