package task

import (
	"sort"
	"sync"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

// Backend is the storage surface every task backend provides. GetTask
// returns (nil, nil) for an unknown id.
type Backend interface {
	Name() string
	ListTasks() ([]*Task, error)
	GetTask(id string) (*Task, error)
	WriteTask(t *Task) error
	WriteTasks(tasks []*Task) error
}

// DocReader reads curated task docs. Optional.
type DocReader interface {
	GetTaskDoc(id string) (string, error)
}

// DocWriter updates curated task docs and their metadata. Optional.
type DocWriter interface {
	SetTaskDoc(id, doc string) error
	TouchTaskDocMetadata(id, updatedBy string) error
}

// Exporter writes the checksummed tasks.json snapshot. Optional.
type Exporter interface {
	ExportTasksJSON(path string) error
}

// Normalizer rewrites every task through the canonical serializer and
// returns how many it touched. Optional.
type Normalizer interface {
	NormalizeTasks() (int, error)
}

// IDGenerator mints collision-free task ids against the backend's view of
// existing tasks. Optional.
type IDGenerator interface {
	GenerateTaskID(length int) (string, error)
}

// SyncOptions control a remote sync run.
type SyncOptions struct {
	// Direction is "push" or "pull".
	Direction string
	// Conflict is "diff", "prefer-local", or "prefer-remote".
	Conflict string
	Quiet    bool
	Confirm  bool
}

// Syncer reconciles a local cache with a remote tracker. Optional.
type Syncer interface {
	Sync(opts SyncOptions) error
}

// Capability helpers: callers ask for an optional interface and get a
// uniform unsupported error when the backend lacks it.

func RequireDocReader(b Backend) (DocReader, error) {
	if r, ok := b.(DocReader); ok {
		return r, nil
	}
	return nil, swarmerrors.ErrBackendUnsupported(b.Name(), "task docs")
}

func RequireDocWriter(b Backend) (DocWriter, error) {
	if w, ok := b.(DocWriter); ok {
		return w, nil
	}
	return nil, swarmerrors.ErrBackendUnsupported(b.Name(), "task doc updates")
}

func RequireExporter(b Backend) (Exporter, error) {
	if e, ok := b.(Exporter); ok {
		return e, nil
	}
	return nil, swarmerrors.ErrBackendUnsupported(b.Name(), "tasks.json export")
}

func RequireNormalizer(b Backend) (Normalizer, error) {
	if n, ok := b.(Normalizer); ok {
		return n, nil
	}
	return nil, swarmerrors.ErrBackendUnsupported(b.Name(), "task normalization")
}

func RequireIDGenerator(b Backend) (IDGenerator, error) {
	if g, ok := b.(IDGenerator); ok {
		return g, nil
	}
	return nil, swarmerrors.ErrBackendUnsupported(b.Name(), "id generation")
}

func RequireSyncer(b Backend) (Syncer, error) {
	if s, ok := b.(Syncer); ok {
		return s, nil
	}
	return nil, swarmerrors.ErrBackendUnsupported(b.Name(), "remote sync")
}

// Settings is the backend configuration block from config.json, passed
// through untyped so each backend can pick what it needs.
type Settings map[string]any

// Factory builds a backend from its settings. root is the repository root.
type Factory func(root string, settings Settings) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterBackend makes a backend type available to NewBackend. Backends
// register themselves from init.
func RegisterBackend(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewBackend builds the named backend. Unknown names list the registered
// types in the error.
func NewBackend(name, root string, settings Settings) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, &swarmerrors.Error{
			Code: swarmerrors.CodeConfigUnknownBackend,
			What: "unknown backend type: " + name,
			Fix:  "use one of: " + joinRegistered(),
		}
	}
	return factory(root, settings)
}

func joinRegistered() string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}
