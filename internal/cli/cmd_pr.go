package cli

import (
	"github.com/spf13/cobra"

	"github.com/codexswarm/agentctl/internal/workflow"
)

func newPRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pr",
		Short: "Manage in-repo PR artifacts",
	}
	cmd.AddCommand(newPROpenCmd())
	cmd.AddCommand(newPRUpdateCmd())
	cmd.AddCommand(newPRCheckCmd())
	cmd.AddCommand(newPRNoteCmd())
	return cmd
}

func newPROpenCmd() *cobra.Command {
	var branch, base, author string
	cmd := &cobra.Command{
		Use:   "open <task-id>",
		Short: "Create the PR artifact directory for a task branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.PROpen(workflow.PROpenParams{
				TaskID: args[0],
				Branch: branch,
				Base:   base,
				Author: author,
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "task branch (default: current)")
	cmd.Flags().StringVar(&base, "base", "", "base branch (default: configured base)")
	cmd.Flags().StringVar(&author, "author", "", "agent signing the artifact")
	return cmd
}

func newPRUpdateCmd() *cobra.Command {
	var branch, base string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Refresh the PR artifact (diffstat, head sha, auto summary)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.PRUpdate(workflow.PRUpdateParams{
				TaskID: args[0],
				Branch: branch,
				Base:   base,
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "task branch (default: current)")
	cmd.Flags().StringVar(&base, "base", "", "base branch (default: configured base)")
	return cmd
}

func newPRCheckCmd() *cobra.Command {
	var branch, base string
	cmd := &cobra.Command{
		Use:   "check <task-id>",
		Short: "Run the integration gate against the PR artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.PRCheck(workflow.PRCheckParams{
				TaskID: args[0],
				Branch: branch,
				Base:   base,
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "task branch (default: current)")
	cmd.Flags().StringVar(&base, "base", "", "base branch (default: configured base)")
	return cmd
}

func newPRNoteCmd() *cobra.Command {
	var author, body string
	cmd := &cobra.Command{
		Use:   "note <task-id>",
		Short: "Append a review note to the PR artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.PRNote(args[0], author, body)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "note author (e.g., REVIEWER)")
	cmd.Flags().StringVar(&body, "body", "", "note body")
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func newIntegrateCmd() *cobra.Command {
	var branch, base, strategy string
	var runVerify, dryRun bool
	cmd := &cobra.Command{
		Use:   "integrate <task-id>",
		Short: "Merge a validated task branch into base and finish the task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.Integrate(workflow.IntegrateParams{
				TaskID:    args[0],
				Branch:    branch,
				Base:      base,
				Strategy:  strategy,
				RunVerify: runVerify,
				DryRun:    dryRun,
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "task branch (default: from the PR meta)")
	cmd.Flags().StringVar(&base, "base", "", "base branch (default: from the PR meta, then configured base)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "merge strategy: squash|merge|rebase (default: from the PR meta, then squash)")
	cmd.Flags().BoolVar(&runVerify, "run-verify", false, "run verify even when the branch head was already verified")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would happen without merging")
	return cmd
}
