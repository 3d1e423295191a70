package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

// Agent is one descriptor from the agents directory. Descriptors are small
// JSON or YAML files naming the agents that may author comments and own
// tasks.
type Agent struct {
	ID   string `json:"id" yaml:"id"`
	Role string `json:"role,omitempty" yaml:"role,omitempty"`

	// File is the descriptor's basename, kept for listings.
	File string `json:"-" yaml:"-"`
}

// LoadAgents reads all agent descriptors under dir, sorted by filename.
// Duplicate agent ids across files are an error.
func LoadAgents(dir string) ([]Agent, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, swarmerrors.Newf(swarmerrors.CodeConfigMissing, "missing directory: %s", dir)
		}
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "read agents dir", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "read agents dir", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var (
		agents     []Agent
		seen       = map[string]string{}
		duplicates []string
	)
	for _, name := range names {
		agent, err := loadAgentFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		agent.File = name
		if agent.ID != "" {
			if _, dup := seen[agent.ID]; dup {
				duplicates = append(duplicates, agent.ID)
			} else {
				seen[agent.ID] = name
			}
		}
		agents = append(agents, agent)
	}

	if len(agents) == 0 {
		return nil, swarmerrors.Newf(swarmerrors.CodeConfigMissing, "no agents found under %s", dir)
	}
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return agents, swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
			"duplicate agent ids: %s", strings.Join(dedupe(duplicates), ", "))
	}
	return agents, nil
}

// AgentIDs returns the set of known agent ids.
func AgentIDs(agents []Agent) map[string]bool {
	set := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a.ID != "" {
			set[a.ID] = true
		}
	}
	return set
}

func loadAgentFile(path string) (Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Agent{}, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, fmt.Sprintf("read agent descriptor %s", path), err)
	}

	var agent Agent
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &agent)
	default:
		err = yaml.Unmarshal(data, &agent)
	}
	if err != nil {
		return Agent{}, &swarmerrors.Error{
			Code:  swarmerrors.CodeConfigInvalid,
			What:  fmt.Sprintf("invalid agent descriptor: %s", path),
			Cause: err,
		}
	}
	agent.ID = strings.TrimSpace(agent.ID)
	agent.Role = strings.TrimSpace(agent.Role)
	return agent, nil
}
