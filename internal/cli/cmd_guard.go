package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/policy"
	"github.com/codexswarm/agentctl/internal/task"
)

func newGuardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Guardrails for git staging/commit hygiene",
	}
	cmd.AddCommand(newGuardCleanCmd())
	cmd.AddCommand(newGuardSuggestAllowCmd())
	cmd.AddCommand(newGuardCommitCmd())
	return cmd
}

func newGuardCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Fail if there are staged files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if err := env.Engine.Guard.CheckClean(); err != nil {
				return err
			}
			if !globalQuiet {
				fmt.Println("✅ index clean (no staged files)")
			}
			return nil
		},
	}
}

func newGuardSuggestAllowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "suggest-allow",
		Short: "Suggest minimal --allow prefixes for staged files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			staged, err := env.Git.StagedPaths()
			if err != nil {
				return err
			}
			if len(staged) == 0 {
				return swarmerrors.New(swarmerrors.CodeStateAllowlist, "no staged files")
			}
			prefixes := policy.SuggestAllowPrefixes(staged)
			switch format {
			case "args":
				parts := make([]string, 0, len(prefixes))
				for _, p := range prefixes {
					parts = append(parts, "--allow "+p)
				}
				fmt.Println(strings.Join(parts, " "))
			case "lines":
				for _, p := range prefixes {
					fmt.Println(p)
				}
			default:
				return swarmerrors.Newf(swarmerrors.CodeInputEmptyField, "--format must be lines|args, got %q", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "lines", "output format: lines|args")
	return cmd
}

func newGuardCommitCmd() *cobra.Command {
	var (
		message      string
		allow        []string
		autoAllow    bool
		allowTasks   bool
		requireClean bool
	)
	cmd := &cobra.Command{
		Use:   "commit <task-id>",
		Short: "Validate staged files and planned commit message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			entries := allow
			if autoAllow && len(entries) == 0 {
				staged, err := env.Git.StagedPaths()
				if err != nil {
					return err
				}
				if len(staged) == 0 {
					return swarmerrors.New(swarmerrors.CodeStateAllowlist, "no staged files")
				}
				entries = policy.SuggestAllowPrefixes(staged)
			}
			warnings, err := env.Engine.Guard.CommitCheck(policy.CommitCheckParams{
				TaskID:       args[0],
				Message:      message,
				Allow:        policy.NewAllowlist(entries),
				AllowTasks:   allowTasks,
				RequireClean: requireClean,
			})
			if err != nil {
				return err
			}
			printWarnings(warnings)
			if !globalQuiet {
				fmt.Println("✅ guard passed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "planned commit message")
	cmd.Flags().StringArrayVar(&allow, "allow", nil, "allowed path prefix (repeatable)")
	cmd.Flags().BoolVar(&autoAllow, "auto-allow", false, "derive allowed prefixes from staged files")
	cmd.Flags().BoolVar(&allowTasks, "allow-tasks", false, "allow staging the tasks snapshot")
	cmd.Flags().BoolVar(&requireClean, "require-clean", false, "fail if there are unstaged changes")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Install or remove the managed git hooks",
	}
	cmd.AddCommand(newHooksInstallCmd())
	cmd.AddCommand(newHooksUninstallCmd())
	cmd.AddCommand(newHooksRunCmd())
	return cmd
}

func newHooksInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the commit-msg and pre-commit hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			dir, err := env.Git.HooksDir()
			if err != nil {
				return err
			}
			installed, err := policy.InstallHooks(dir)
			if err != nil {
				return err
			}
			if !globalQuiet {
				for _, path := range installed {
					fmt.Printf("✅ installed %s\n", path)
				}
			}
			return nil
		},
	}
}

func newHooksUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the managed hooks (unmanaged scripts are left alone)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			dir, err := env.Git.HooksDir()
			if err != nil {
				return err
			}
			removed, skipped, err := policy.UninstallHooks(dir)
			if err != nil {
				return err
			}
			if !globalQuiet {
				for _, path := range removed {
					fmt.Printf("✅ removed %s\n", path)
				}
				for _, path := range skipped {
					fmt.Printf("⚠️ skipped unmanaged hook: %s\n", path)
				}
			}
			return nil
		},
	}
}

// newHooksRunCmd is the entrypoint the installed hook scripts call back
// into. Hidden because humans never run it directly.
func newHooksRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "run <hook> [hook-args...]",
		Short:  "Run a managed hook check (called by the installed scripts)",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			switch args[0] {
			case "commit-msg":
				if len(args) < 2 {
					return swarmerrors.New(swarmerrors.CodeHookFailed, "commit-msg hook needs the message file path")
				}
				subject, err := policy.ReadCommitSubject(args[1])
				if err != nil {
					return err
				}
				taskID := strings.TrimSpace(os.Getenv(policy.HookEnvTaskID))
				var suffixes []string
				if taskID == "" {
					tasks, err := env.Store.Load()
					if err != nil {
						return err
					}
					for _, t := range tasks {
						if s := task.SuffixOf(t.ID); s != "" {
							suffixes = append(suffixes, s)
						}
					}
				}
				return env.Engine.Guard.CommitMsgCheck(taskID, subject, suffixes)
			case "pre-commit":
				return env.Engine.Guard.PreCommitCheck(
					policy.HookEnvSet(policy.HookEnvAllowTasks),
					policy.HookEnvSet(policy.HookEnvAllowBase),
				)
			default:
				return swarmerrors.Newf(swarmerrors.CodeHookFailed, "unknown hook: %s", args[0])
			}
		},
	}
}
