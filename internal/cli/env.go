package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/git"
	"github.com/codexswarm/agentctl/internal/lock"
	"github.com/codexswarm/agentctl/internal/task"
	_ "github.com/codexswarm/agentctl/internal/tracker" // registers the tracker backends
	"github.com/codexswarm/agentctl/internal/workflow"
)

// Env is one opened checkout: git context, resolved config, task store, and
// the workflow engine bound over them. Every verb starts by opening it.
type Env struct {
	Git    *git.Context
	Config *config.Config
	Store  *task.Store
	Engine *workflow.Engine

	// Cwd is where the command was invoked, before resolving the repo root.
	Cwd string
}

// openEnv resolves the enclosing repo, loads .codex-swarm/config.json, opens
// the configured task backend, and wires the workflow engine. The base
// branch is pinned on first contact, matching every later run.
func openEnv() (*Env, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "resolve working directory", err)
	}
	g, err := git.NewContext(cwd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(g.RepoPath())
	if err != nil {
		return nil, err
	}
	cfg.MaybePinBaseBranch(g)

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	store, err := task.NewStore(backend, cfg.TasksFile())
	if err != nil {
		return nil, err
	}
	store.SetWriteGuard(lock.NewFileGuard(filepath.Join(cfg.SwarmDir(), "tasks.lock"), lock.DefaultOwner()))

	engine := workflow.New(g, cfg, store, os.Stdout)
	engine.Quiet = globalQuiet
	engine.Cwd = cwd
	return &Env{Git: g, Config: cfg, Store: store, Engine: engine, Cwd: cwd}, nil
}

// backendRef is the on-disk backend descriptor the config points at.
type backendRef struct {
	ID       string        `json:"id"`
	Version  any           `json:"version"`
	Settings task.Settings `json:"settings"`
}

// openBackend builds the task backend: the descriptor named by
// tasks_backend.config_path, or the default local backend under the control
// directory when none is configured.
func openBackend(cfg *config.Config) (task.Backend, error) {
	raw := strings.TrimSpace(cfg.TasksBackend.ConfigPath)
	if raw == "" {
		return task.NewLocalBackend(filepath.Join(cfg.SwarmDir(), "tasks")), nil
	}
	path := filepath.Join(cfg.Root(), filepath.FromSlash(raw))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &swarmerrors.Error{
			Code:  swarmerrors.CodeConfigMissing,
			What:  fmt.Sprintf("missing backend config: %s", path),
			Fix:   "Fix tasks_backend.config_path in .codex-swarm/config.json or create the file",
			Cause: err,
		}
	}
	var ref backendRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, &swarmerrors.Error{
			Code:  swarmerrors.CodeConfigInvalid,
			What:  fmt.Sprintf("invalid JSON in %s", path),
			Cause: err,
		}
	}
	id := strings.TrimSpace(ref.ID)
	if id == "" {
		return nil, swarmerrors.Newf(swarmerrors.CodeConfigInvalid, "%s is missing required field 'id'", path)
	}
	if ref.Version == nil {
		return nil, swarmerrors.Newf(swarmerrors.CodeConfigInvalid, "%s is missing required field 'version'", path)
	}
	if ref.Settings == nil {
		ref.Settings = task.Settings{}
	}
	return task.NewBackend(id, cfg.Root(), ref.Settings)
}

// lintOptions builds the lint configuration: known agent ids from the
// descriptors directory plus the configured verify tag gates.
func (env *Env) lintOptions() task.LintOptions {
	opts := task.LintOptions{
		VerifyRequiredTags: env.Config.VerifyRequiredTags(),
		SnapshotPath:       env.Config.TasksFileRel(),
	}
	if agents, err := config.LoadAgents(env.Config.AgentsDir()); err == nil {
		opts.KnownAgents = config.AgentIDs(agents)
	}
	if snap, err := task.ReadSnapshot(env.Store.SnapshotPath()); err == nil {
		opts.Meta = &snap.Meta
	}
	return opts
}

// validateOwner accepts the reserved owners and any registered agent id.
func (env *Env) validateOwner(owner string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" || owner == task.OwnerHuman || owner == task.OwnerOrchestrator {
		return nil
	}
	agents, err := config.LoadAgents(env.Config.AgentsDir())
	if err != nil {
		return err
	}
	if !config.AgentIDs(agents)[owner] {
		return swarmerrors.Newf(swarmerrors.CodeInputUnknownOwner,
			"unknown owner: %q (register an agent descriptor under %s)", owner, env.Config.AgentsDir())
	}
	return nil
}
