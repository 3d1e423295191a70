package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codexswarm/agentctl/internal/branch"
	"github.com/codexswarm/agentctl/internal/workflow"
)

func newWorkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Prepare working context for a task",
	}
	cmd.AddCommand(newWorkStartCmd())
	return cmd
}

func newWorkStartCmd() *cobra.Command {
	var agent, slug, base string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Scaffold the README and, in branch_pr mode, the branch/worktree/PR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.WorkStart(workflow.WorkStartParams{
				TaskID:    args[0],
				Agent:     agent,
				Slug:      slug,
				Base:      base,
				Overwrite: overwrite,
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id (required in branch_pr mode)")
	cmd.Flags().StringVar(&slug, "slug", "", "branch slug (default: derived from the task title)")
	cmd.Flags().StringVar(&base, "base", "", "base branch (default: configured base)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "re-scaffold the README if it exists")
	return cmd
}

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage task branches and worktrees",
	}
	cmd.AddCommand(newBranchCreateCmd())
	cmd.AddCommand(newBranchStatusCmd())
	cmd.AddCommand(newBranchRemoveCmd())
	return cmd
}

func newBranchCreateCmd() *cobra.Command {
	var agent, slug, base string
	var reuse bool
	cmd := &cobra.Command{
		Use:   "create <task-id>",
		Short: "Create the task branch and its worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			res, err := env.Engine.Branches.Create(branch.CreateParams{
				TaskID: args[0],
				Agent:  agent,
				Slug:   slug,
				Base:   base,
				Reuse:  reuse,
			})
			if err != nil {
				return err
			}
			if !globalQuiet {
				verb := "created"
				if res.Reused {
					verb = "reusing"
				}
				fmt.Printf("✅ %s branch %s (worktree: %s)\n", verb, res.Branch, res.Worktree)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id (required)")
	cmd.Flags().StringVar(&slug, "slug", "", "branch slug (default: derived from the task title)")
	cmd.Flags().StringVar(&base, "base", "", "base branch (default: configured base)")
	cmd.Flags().BoolVar(&reuse, "reuse", false, "reuse an existing branch/worktree")
	return cmd
}

func newBranchStatusCmd() *cobra.Command {
	var branchName, base string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report ahead/behind of a task branch against its base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			res, err := env.Engine.Branches.Status(branchName, base)
			if err != nil {
				return err
			}
			fmt.Printf("branch=%s base=%s ahead=%d behind=%d\n", res.Branch, res.Base, res.Ahead, res.Behind)
			if res.TaskID != "" {
				fmt.Printf("task=%s\n", res.TaskID)
			}
			if res.Worktree != "" {
				fmt.Printf("worktree=%s\n", res.Worktree)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&branchName, "branch", "", "branch to inspect (default: current)")
	cmd.Flags().StringVar(&base, "base", "", "base branch (default: configured base)")
	return cmd
}

func newBranchRemoveCmd() *cobra.Command {
	var branchName, worktree string
	var force bool
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a task branch and/or worktree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.Branches.Remove(branch.RemoveParams{
				Branch:   branchName,
				Worktree: worktree,
				Force:    force,
			})
		},
	}
	cmd.Flags().StringVar(&branchName, "branch", "", "branch to delete")
	cmd.Flags().StringVar(&worktree, "worktree", "", "worktree path to remove (must live under the worktrees dir)")
	cmd.Flags().BoolVar(&force, "force", false, "force removal even with local changes")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Housekeeping for finished work",
	}
	cmd.AddCommand(newCleanupMergedCmd())
	return cmd
}

func newCleanupMergedCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "merged",
		Short: "Delete task branches with no diff against base whose task is DONE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.CleanupMerged(yes)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "actually delete (default: preview only)")
	return cmd
}
