// Package tracker mirrors the task store onto a remote issue tracker. Each
// provider (the generic Redmine-wire tracker, Jira, GitHub, GitLab) supplies
// the Remote seam; the shared core owns the offline cache, the dirty model,
// write batching, and the sync push/pull reconciliation.
package tracker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
	"github.com/codexswarm/agentctl/internal/util"
)

// Remote is the provider seam: list, look up, and write tasks on the remote
// tracker. Implementations return errors carrying CodeRemoteUnavailable when
// the tracker cannot be reached, so the core can fall back to the cache.
type Remote interface {
	Name() string
	ListRemote() ([]*task.Task, error)
	// FindRemote returns (nil, nil) for an unknown id.
	FindRemote(id string) (*task.Task, error)
	WriteRemote(t *task.Task) error
}

// Backend adapts a Remote into a full task backend. Reads fall back to the
// local cache when the remote is unreachable; writes land in the cache with
// the dirty flag set, to be pushed later via Sync.
type Backend struct {
	remote Remote
	cache  *task.LocalBackend

	batchSize  int
	batchPause time.Duration

	out   io.Writer
	sleep func(time.Duration)
}

// Options tune the shared core.
type Options struct {
	// Cache is the offline mirror. Nil disables caching, which also
	// disables Sync.
	Cache *task.LocalBackend
	// BatchSize is how many writes go through before pausing. Default 20.
	BatchSize int
	// BatchPause is the pause between write batches. Default 500ms.
	BatchPause time.Duration
	Out        io.Writer
}

// NewBackend wraps a Remote with the shared cache/dirty/sync core.
func NewBackend(remote Remote, opts Options) *Backend {
	b := &Backend{
		remote:     remote,
		cache:      opts.Cache,
		batchSize:  opts.BatchSize,
		batchPause: opts.BatchPause,
		out:        opts.Out,
		sleep:      time.Sleep,
	}
	if b.batchSize == 0 {
		b.batchSize = 20
	}
	if b.batchPause == 0 {
		b.batchPause = 500 * time.Millisecond
	}
	if b.out == nil {
		b.out = os.Stdout
	}
	return b
}

// optionsFromSettings reads the shared settings block every tracker backend
// accepts: cache_dir, batch_size, batch_pause (seconds).
func optionsFromSettings(root string, settings task.Settings) Options {
	opts := Options{}
	if dir := stringSetting(settings, "cache_dir"); dir != "" {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		opts.Cache = task.NewLocalBackend(dir)
	}
	opts.BatchSize = intSetting(settings, "batch_size", 20)
	if pause := floatSetting(settings, "batch_pause", 0.5); pause > 0 {
		opts.BatchPause = time.Duration(pause * float64(time.Second))
	}
	return opts
}

func (b *Backend) Name() string { return b.remote.Name() }

// ListTasks lists from the remote, mirroring results into the cache. When
// the remote is unreachable the cached tasks are served instead.
func (b *Backend) ListTasks() ([]*task.Task, error) {
	tasks, err := b.remote.ListRemote()
	if err != nil {
		if b.unavailable(err) && b.cache != nil {
			return b.cache.ListTasks()
		}
		return nil, err
	}
	if err := checkDuplicateIDs(b.remote.Name(), tasks); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		b.cacheTask(t, false)
	}
	return tasks, nil
}

// GetTask fetches one task, falling back to the cache when the remote is
// unreachable.
func (b *Backend) GetTask(id string) (*task.Task, error) {
	t, err := b.remote.FindRemote(id)
	if err != nil {
		if b.unavailable(err) && b.cache != nil {
			return b.cache.GetTask(id)
		}
		return nil, err
	}
	if t != nil {
		b.cacheTask(t, false)
	}
	return t, nil
}

// WriteTask writes through to the remote. An unreachable remote degrades to
// a dirty cache write, reported as success and reconciled later by Sync.
func (b *Backend) WriteTask(t *task.Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return swarmerrors.New(swarmerrors.CodeInputInvalidTaskID, "task id is required")
	}
	if err := task.ValidateID(t.ID); err != nil {
		return err
	}
	return b.writeThrough(t)
}

// WriteTasks writes tasks in order, pausing between batches so bulk edits do
// not hammer the tracker API.
func (b *Backend) WriteTasks(tasks []*task.Task) error {
	for i, t := range tasks {
		if err := b.WriteTask(t); err != nil {
			return err
		}
		b.throttle(i + 1)
	}
	return nil
}

// GetTaskDoc returns the curated doc of a task.
func (b *Backend) GetTaskDoc(id string) (string, error) {
	t, err := b.GetTask(id)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", swarmerrors.ErrTaskNotFound(id)
	}
	return t.Doc, nil
}

// SetTaskDoc replaces the curated doc and refreshes its metadata.
func (b *Backend) SetTaskDoc(id, doc string) error {
	return b.updateTask(id, func(t *task.Task) {
		t.Doc = doc
		task.ApplyDocMetadata(t, "")
	})
}

// TouchTaskDocMetadata refreshes the doc metadata without changing the doc.
func (b *Backend) TouchTaskDocMetadata(id, updatedBy string) error {
	return b.updateTask(id, func(t *task.Task) {
		task.ApplyDocMetadata(t, updatedBy)
	})
}

func (b *Backend) updateTask(id string, mutate func(*task.Task)) error {
	t, err := b.remote.FindRemote(id)
	if err != nil {
		if !b.unavailable(err) || b.cache == nil {
			return err
		}
		cached, cerr := b.cache.GetTask(id)
		if cerr != nil {
			return cerr
		}
		if cached == nil {
			return swarmerrors.ErrTaskNotFound(id)
		}
		mutate(cached)
		b.cacheTask(cached, true)
		return nil
	}
	if t == nil {
		return swarmerrors.ErrTaskNotFound(id)
	}
	mutate(t)
	return b.writeThrough(t)
}

// ExportTasksJSON snapshots the remote task set. Export never falls back to
// the cache: a snapshot of stale data would carry a valid checksum.
func (b *Backend) ExportTasksJSON(path string) error {
	tasks, err := b.remote.ListRemote()
	if err != nil {
		return err
	}
	if err := checkDuplicateIDs(b.remote.Name(), tasks); err != nil {
		return err
	}
	return task.WriteSnapshot(path, tasks)
}

// GenerateTaskID mints an id unused on the remote (or, offline, in the
// cache).
func (b *Backend) GenerateTaskID(length int) (string, error) {
	tasks, err := b.remote.ListRemote()
	if err != nil {
		if !b.unavailable(err) || b.cache == nil {
			return "", err
		}
		tasks, err = b.cache.ListTasks()
		if err != nil {
			return "", err
		}
	}
	existing := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		existing[t.ID] = true
	}
	return task.GenerateID(length, func(id string) bool { return existing[id] })
}

// Sync reconciles the cache with the remote. Push uploads dirty cached
// tasks (preview unless confirmed); pull downloads the remote set, applying
// the conflict strategy where a dirty local task diverged.
func (b *Backend) Sync(opts task.SyncOptions) error {
	if b.cache == nil {
		return swarmerrors.New(swarmerrors.CodeConfigInvalid,
			"sync requires settings.cache_dir on the "+b.remote.Name()+" backend")
	}
	switch opts.Direction {
	case "push":
		return b.syncPush(opts)
	case "pull":
		return b.syncPull(opts)
	default:
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid, "sync direction must be push or pull, got %q", opts.Direction)
	}
}

func (b *Backend) syncPush(opts task.SyncOptions) error {
	tasks, err := b.cache.ListTasks()
	if err != nil {
		return err
	}
	var dirty []*task.Task
	for _, t := range tasks {
		if t.Dirty {
			dirty = append(dirty, t)
		}
	}
	if len(dirty) == 0 {
		if !opts.Quiet {
			fmt.Fprintln(b.out, "ℹ️ no dirty tasks to push")
		}
		return nil
	}
	if !opts.Confirm {
		for _, t := range dirty {
			fmt.Fprintf(b.out, "- pending push: %s\n", t.ID)
		}
		return swarmerrors.New(swarmerrors.CodeStateUnready, "refusing to push without --yes (preview above)")
	}
	for i, t := range dirty {
		if err := b.remote.WriteRemote(t); err != nil {
			return err
		}
		b.cacheTask(t, false)
		b.throttle(i + 1)
	}
	if !opts.Quiet {
		fmt.Fprintf(b.out, "✅ pushed %d dirty task(s)\n", len(dirty))
	}
	return nil
}

func (b *Backend) syncPull(opts task.SyncOptions) error {
	remoteTasks, err := b.remote.ListRemote()
	if err != nil {
		return err
	}
	if err := checkDuplicateIDs(b.remote.Name(), remoteTasks); err != nil {
		return err
	}
	cached, err := b.cache.ListTasks()
	if err != nil {
		return err
	}
	local := make(map[string]*task.Task, len(cached))
	for _, t := range cached {
		local[t.ID] = t
	}

	for _, remote := range remoteTasks {
		loc := local[remote.ID]
		if loc != nil && loc.Dirty {
			differ, err := tasksDiffer(loc, remote)
			if err != nil {
				return err
			}
			if differ {
				if err := b.resolveConflict(loc, remote, opts.Conflict); err != nil {
					return err
				}
				continue
			}
			b.cacheTask(loc, false)
			continue
		}
		b.cacheTask(remote, false)
	}
	if !opts.Quiet {
		fmt.Fprintf(b.out, "✅ pulled %d task(s)\n", len(remoteTasks))
	}
	return nil
}

func (b *Backend) resolveConflict(local, remote *task.Task, strategy string) error {
	switch strategy {
	case "prefer-local":
		if err := b.remote.WriteRemote(local); err != nil {
			return err
		}
		b.cacheTask(local, false)
		return nil
	case "prefer-remote":
		b.cacheTask(remote, false)
		return nil
	case "", "diff":
		diff, err := ConflictDiff(local, remote)
		if err != nil {
			return err
		}
		fmt.Fprintln(b.out, diff)
		return swarmerrors.Newf(swarmerrors.CodeRemoteConflict, "conflict detected for %s", local.ID)
	case "fail":
		return swarmerrors.Newf(swarmerrors.CodeRemoteConflict, "conflict detected for %s", local.ID)
	default:
		return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"conflict strategy must be diff, prefer-local, prefer-remote, or fail, got %q", strategy)
	}
}

// ConflictDiff renders a line diff of remote vs local over the canonical
// task JSON, remote lines prefixed - and local lines prefixed +.
func ConflictDiff(local, remote *task.Task) (string, error) {
	localText, err := prettyTaskJSON(local)
	if err != nil {
		return "", err
	}
	remoteText, err := prettyTaskJSON(remote)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(remoteText, localText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)

	var out strings.Builder
	out.WriteString("--- remote\n+++ local\n")
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			out.WriteString(prefix)
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

func prettyTaskJSON(t *task.Task) (string, error) {
	clean := t.Clone()
	clean.Dirty = false
	data, err := util.CanonicalJSON(clean.ToMap())
	if err != nil {
		return "", fmt.Errorf("canonicalize task %s: %w", t.ID, err)
	}
	// One key per line so the diff stays readable.
	return strings.ReplaceAll(string(data), ",\"", ",\n\""), nil
}

func tasksDiffer(local, remote *task.Task) (bool, error) {
	a := local.Clone()
	a.Dirty = false
	b := remote.Clone()
	b.Dirty = false
	aj, err := util.CanonicalJSON(a.ToMap())
	if err != nil {
		return false, err
	}
	bj, err := util.CanonicalJSON(b.ToMap())
	if err != nil {
		return false, err
	}
	return string(aj) != string(bj), nil
}

func (b *Backend) writeThrough(t *task.Task) error {
	if err := b.remote.WriteRemote(t); err != nil {
		if b.unavailable(err) && b.cache != nil {
			b.cacheTask(t, true)
			return nil
		}
		return err
	}
	t.Dirty = false
	b.cacheTask(t, false)
	return nil
}

func (b *Backend) cacheTask(t *task.Task, dirty bool) {
	if b.cache == nil {
		return
	}
	mirror := t.Clone()
	mirror.Dirty = dirty
	// A failed cache write must not fail the remote operation it mirrors.
	_ = b.cache.WriteTask(mirror)
}

func (b *Backend) throttle(written int) {
	if b.batchPause > 0 && b.batchSize > 0 && written%b.batchSize == 0 {
		b.sleep(b.batchPause)
	}
}

func (b *Backend) unavailable(err error) bool {
	e := swarmerrors.As(err)
	return e != nil && e.Code == swarmerrors.CodeRemoteUnavailable
}

func checkDuplicateIDs(backend string, tasks []*task.Task) error {
	seen := map[string]bool{}
	var dups []string
	for _, t := range tasks {
		if seen[t.ID] {
			dups = append(dups, t.ID)
		}
		seen[t.ID] = true
	}
	if len(dups) == 0 {
		return nil
	}
	if len(dups) > 5 {
		dups = dups[:5]
	}
	return swarmerrors.Newf(swarmerrors.CodeIntegrityDuplicateID,
		"duplicate task ids on %s: %s", backend, strings.Join(dups, ", "))
}

func stringSetting(settings task.Settings, key string) string {
	if v, ok := settings[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intSetting(settings task.Settings, key string, fallback int) int {
	switch v := settings[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := parseInt(v); err == nil {
			return n
		}
	}
	return fallback
}

func floatSetting(settings task.Settings, key string, fallback float64) float64 {
	switch v := settings[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func parseInt(raw string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(raw), "%d", &n)
	return n, err
}
