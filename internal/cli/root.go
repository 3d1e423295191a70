// Package cli implements the agentctl command-line interface: the verb tree,
// global flags, env binding, and the exit-code mapping for workflow errors.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

var (
	globalQuiet   bool
	globalVerbose bool
	globalJSON    bool
	globalLint    bool
)

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Multi-agent task and commit workflow helper",
	Long: `agentctl coordinates agents working a shared task store on one git repo.

It owns the checksummed tasks.json snapshot, gates status transitions behind
structured comments, guards commits with path allowlists and subject checks,
and manages task branches, worktrees, and local PR artifacts.

Quick start:
  agentctl task list                 List tasks with dependency state
  agentctl start <task-id> \
      --author CODER --body "Start: ..."   Mark a task DOING
  agentctl finish <task-id>          Mark DONE and attach the commit`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalVerbose {
			globalQuiet = false
		}
		if globalLint {
			return lintGate()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if suppressed() {
			return
		}
		fmt.Printf("✅ %s OK\n", commandPath(cmd))
	},
}

// Execute runs the verb tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		PrintError(err)
		if e := swarmerrors.As(err); e != nil {
			return e.ExitCode()
		}
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initEnvBinding)

	rootCmd.PersistentFlags().BoolVar(&globalQuiet, "quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&globalVerbose, "verbose", false, "verbose error output")
	rootCmd.PersistentFlags().BoolVar(&globalJSON, "json", false, "machine-readable errors, no OK footer")
	rootCmd.PersistentFlags().BoolVar(&globalLint, "lint", false, "lint the tasks snapshot before running the verb")

	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newWorkCmd())
	rootCmd.AddCommand(newBranchCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newPRCmd())
	rootCmd.AddCommand(newIntegrateCmd())
	rootCmd.AddCommand(newReadyCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newBlockCmd())
	rootCmd.AddCommand(newFinishCmd())
	rootCmd.AddCommand(newCommitCmd())
	rootCmd.AddCommand(newGuardCmd())
	rootCmd.AddCommand(newHooksCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newAgentsCmd())
}

// initEnvBinding wires CODEX_SWARM_* environment variables into viper so
// backends and prompts can read overrides uniformly.
func initEnvBinding() {
	viper.SetEnvPrefix("CODEX_SWARM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func suppressed() bool {
	return globalQuiet || globalJSON
}

// commandPath is the verb path without the binary name, e.g. "task list".
func commandPath(cmd *cobra.Command) string {
	path := cmd.CommandPath()
	if idx := strings.IndexByte(path, ' '); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// lintGate runs snapshot lint before the verb and aborts on hard errors.
func lintGate() error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	tasks, err := env.Store.Load()
	if err != nil {
		return err
	}
	report := task.Lint(tasks, env.lintOptions())
	if !report.OK() {
		for _, msg := range report.Errors {
			fmt.Fprintf(os.Stderr, "❌ %s\n", msg)
		}
		return swarmerrors.Newf(swarmerrors.CodeStateLintFailed,
			"tasks snapshot failed lint with %d error(s)", len(report.Errors))
	}
	return nil
}
