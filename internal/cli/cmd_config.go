package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codexswarm/agentctl/internal/config"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/util"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the workflow config",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the config file as indented JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			data, err := readConfigRaw(config.ConfigPath(env.Config.Root()))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one config value by dotted key path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := parseConfigKeyPath(args[0])
			if len(path) == 0 {
				return swarmerrors.New(swarmerrors.CodeInputEmptyField,
					"config key path must be non-empty (example: tasks.verify.required_tags)")
			}
			var value any = args[1]
			if asJSON {
				if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
					return swarmerrors.Wrap(swarmerrors.CodeInputEmptyField, "invalid JSON for --json value", err)
				}
			}
			env, err := openEnv()
			if err != nil {
				return err
			}
			configPath := config.ConfigPath(env.Config.Root())
			data, err := readConfigRaw(configPath)
			if err != nil {
				return err
			}
			if err := setConfigValue(data, path, value); err != nil {
				return err
			}
			if err := util.AtomicWriteJSON(configPath, data, 0o644); err != nil {
				return err
			}
			if !globalQuiet {
				fmt.Printf("✅ updated %s (%s)\n", configPath, strings.Join(path, "."))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "parse value as JSON instead of a string")
	return cmd
}

func readConfigRaw(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigMissing, "read config file", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, swarmerrors.Wrap(swarmerrors.CodeConfigInvalid, "parse config file", err)
	}
	return data, nil
}

func parseConfigKeyPath(raw string) []string {
	var parts []string
	for _, part := range strings.Split(raw, ".") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// setConfigValue walks the dotted path, creating intermediate objects, and
// sets the leaf. A non-object segment along the way is an error.
func setConfigValue(data map[string]any, path []string, value any) error {
	target := data
	for _, key := range path[:len(path)-1] {
		existing, ok := target[key]
		if !ok || existing == nil {
			next := map[string]any{}
			target[key] = next
			target = next
			continue
		}
		next, ok := existing.(map[string]any)
		if !ok {
			return swarmerrors.Newf(swarmerrors.CodeConfigInvalid,
				"config path conflict: %s (segment %q is not an object)", strings.Join(path, "."), key)
		}
		target = next
	}
	target[path[len(path)-1]] = value
	return nil
}

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the agent descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			agents, loadErr := config.LoadAgents(env.Config.AgentsDir())
			if len(agents) == 0 {
				if loadErr != nil {
					return loadErr
				}
				return swarmerrors.Newf(swarmerrors.CodeConfigMissing,
					"no agents found under %s", env.Config.AgentsDir())
			}
			printAgentTable(agents)
			// Duplicate ids surface after the table so the listing stays useful.
			return loadErr
		},
	}
}

func printAgentTable(agents []config.Agent) {
	widthID, widthFile := len("ID"), len("FILE")
	for _, a := range agents {
		if len(a.ID) > widthID {
			widthID = len(a.ID)
		}
		if len(a.File) > widthFile {
			widthFile = len(a.File)
		}
	}
	fmt.Printf("%-*s  %-*s  ROLE\n", widthID, "ID", widthFile, "FILE")
	fmt.Printf("%s  %s  %s\n", strings.Repeat("-", widthID), strings.Repeat("-", widthFile), strings.Repeat("-", 4))
	for _, a := range agents {
		role := a.Role
		if role == "" {
			role = "-"
		}
		fmt.Printf("%-*s  %-*s  %s\n", widthID, a.ID, widthFile, a.File, role)
	}
}
