package task

import (
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/lock"
)

// Store couples a backend with the tasks.json snapshot. It memoizes loads
// within one process, tracks per-task digests so saves only write what
// changed, and re-exports the snapshot after every save.
type Store struct {
	backend      Backend
	snapshotPath string

	loaded  []*Task
	digests map[string]string
	views   *ViewCache
	guard   lock.Guard
}

// NewStore builds a store over a backend. snapshotPath is the tasks.json
// export target.
func NewStore(backend Backend, snapshotPath string) (*Store, error) {
	views, err := NewViewCache(DefaultViewCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		backend:      backend,
		snapshotPath: snapshotPath,
		views:        views,
	}, nil
}

// Backend exposes the underlying backend for capability checks.
func (s *Store) Backend() Backend { return s.backend }

// SetWriteGuard installs the writer lease taken around Save. Nil (the
// default) means unguarded writes.
func (s *Store) SetWriteGuard(g lock.Guard) { s.guard = g }

// SnapshotPath returns the tasks.json export target.
func (s *Store) SnapshotPath() string { return s.snapshotPath }

// Load returns the current task list, reading from the backend on first
// call and returning the memoized list afterwards.
func (s *Store) Load() ([]*Task, error) {
	if s.loaded != nil {
		return s.loaded, nil
	}
	tasks, err := s.backend.ListTasks()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	s.loaded = tasks
	s.digests = digestMap(tasks)
	return tasks, nil
}

// Reload drops the memoized state and reads fresh from the backend.
func (s *Store) Reload() ([]*Task, error) {
	s.loaded = nil
	s.digests = nil
	return s.Load()
}

// Get returns the task with the given id, or a task-not-found error.
func (s *Store) Get(id string) (*Task, error) {
	tasks, err := s.Load()
	if err != nil {
		return nil, err
	}
	byID, _ := IndexByID(tasks)
	t, ok := byID[id]
	if !ok {
		return nil, swarmerrors.ErrTaskNotFound(id)
	}
	return t, nil
}

// View returns the cached index over the current task list.
func (s *Store) View() (*View, error) {
	tasks, err := s.Load()
	if err != nil {
		return nil, err
	}
	return s.views.Get(tasks)
}

// Save persists the task list: tasks whose digest changed since load are
// written to the backend, then the snapshot is re-exported. The memoized
// state is updated to the saved list.
func (s *Store) Save(tasks []*Task) error {
	if s.guard != nil {
		if err := s.guard.Acquire(); err != nil {
			return err
		}
		defer func() { _ = s.guard.Release() }()
	}
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if prev, known := s.digests[t.ID]; known && prev == t.Digest() {
			continue
		}
		if err := s.backend.WriteTask(t); err != nil {
			return err
		}
	}
	if err := s.Export(); err != nil {
		return err
	}
	s.loaded = tasks
	s.digests = digestMap(tasks)
	return nil
}

// Export rewrites the tasks.json snapshot from the backend's current state.
func (s *Store) Export() error {
	if s.snapshotPath == "" {
		return nil
	}
	if exporter, ok := s.backend.(Exporter); ok {
		return exporter.ExportTasksJSON(s.snapshotPath)
	}
	tasks, err := s.backend.ListTasks()
	if err != nil {
		return err
	}
	return WriteSnapshot(s.snapshotPath, tasks)
}

// GenerateID mints a new task id, preferring the backend's generator.
func (s *Store) GenerateID(length int) (string, error) {
	if gen, ok := s.backend.(IDGenerator); ok {
		return gen.GenerateTaskID(length)
	}
	tasks, err := s.Load()
	if err != nil {
		return "", err
	}
	byID, _ := IndexByID(tasks)
	return GenerateID(length, func(id string) bool {
		_, exists := byID[id]
		return exists
	})
}

func digestMap(tasks []*Task) map[string]string {
	digests := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if t.ID != "" {
			digests[t.ID] = t.Digest()
		}
	}
	return digests
}
