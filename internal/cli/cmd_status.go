package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/workflow"
)

func newStatusChangeCmd(use, short string, run func(*Env, workflow.StatusChangeParams) error) *cobra.Command {
	var author, body string
	var force bool
	var commit statusCommitFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			confirmed, err := resolveStatusCommitConfirm(env.Config, commit.confirm, commit.fromComment)
			if err != nil {
				return err
			}
			return run(env, workflow.StatusChangeParams{
				TaskID:              args[0],
				Author:              author,
				Body:                body,
				Force:               force,
				CommitFromComment:   commit.fromComment,
				ConfirmStatusCommit: confirmed,
				CommitEmoji:         commit.emoji,
				Commit:              commit.commitOptions(),
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "comment author (e.g., CODER)")
	cmd.Flags().StringVar(&body, "body", "", "structured comment body")
	cmd.Flags().BoolVar(&force, "force", false, "bypass readiness/transition checks")
	registerStatusCommitFlags(cmd, &commit, true)
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func newStartCmd() *cobra.Command {
	return newStatusChangeCmd("start <task-id>", "Mark a task DOING with a mandatory comment",
		func(env *Env, p workflow.StatusChangeParams) error { return env.Engine.Start(p) })
}

func newBlockCmd() *cobra.Command {
	return newStatusChangeCmd("block <task-id>", "Mark a task BLOCKED with a mandatory comment",
		func(env *Env, p workflow.StatusChangeParams) error { return env.Engine.Block(p) })
}

func newReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready <task-id>",
		Short: "Check whether a task's dependencies are DONE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			report, err := env.Engine.Ready(args[0])
			if err != nil {
				return err
			}
			printWarnings(report.Warnings)
			if !report.OK {
				var blocking []string
				if len(report.State.Missing) > 0 {
					blocking = append(blocking, "missing: "+strings.Join(report.State.Missing, ", "))
				}
				if len(report.State.Incomplete) > 0 {
					blocking = append(blocking, "incomplete: "+strings.Join(report.State.Incomplete, ", "))
				}
				return swarmerrors.Newf(swarmerrors.CodeStateUnready,
					"task %s is not ready (%s)", args[0], strings.Join(blocking, "; "))
			}
			if !globalQuiet {
				fmt.Printf("✅ %s is ready\n", args[0])
			}
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	var dir, log string
	var skipIfUnchanged, require bool
	cmd := &cobra.Command{
		Use:   "verify <task-id>",
		Short: "Run the verify commands declared on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.Verify(workflow.VerifyParams{
				TaskID:          args[0],
				Dir:             dir,
				Log:             log,
				SkipIfUnchanged: skipIfUnchanged,
				Require:         require,
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "run commands in this directory (must stay under the repo root)")
	cmd.Flags().StringVar(&log, "log", "", "append output to this file")
	cmd.Flags().BoolVar(&skipIfUnchanged, "skip-if-unchanged", false, "skip when the head was already verified")
	cmd.Flags().BoolVar(&require, "require", false, "fail if no verify commands exist")
	return cmd
}

func newFinishCmd() *cobra.Command {
	var (
		author, body, commitRef string
		skipVerify, force       bool
		requireTaskID           bool
		commit                  statusCommitFlags
		statusCommit            bool
		statusCommitEmoji       string
		statusAllow             []string
		statusAutoAllow         bool
		statusRequireClean      bool
	)
	cmd := &cobra.Command{
		Use:   "finish <task-id>...",
		Short: "Mark task(s) DONE and attach commit metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			wantsCommit := commit.fromComment || statusCommit || env.Config.FinishAutoStatusCommit
			confirmed, err := resolveStatusCommitConfirm(env.Config, commit.confirm, wantsCommit)
			if err != nil {
				return err
			}
			return env.Engine.Finish(workflow.FinishParams{
				TaskIDs:               args,
				Author:                author,
				Body:                  body,
				CommitRef:             commitRef,
				SkipVerify:            skipVerify,
				Force:                 force,
				RequireTaskIDInCommit: requireTaskID,
				CommitFromComment:     commit.fromComment,
				CommitEmoji:           commit.emoji,
				Commit:                commit.commitOptions(),
				StatusCommit:          statusCommit,
				StatusCommitEmoji:     statusCommitEmoji,
				StatusCommitOpts: workflow.CommitOptions{
					Allow:        statusAllow,
					AutoAllow:    statusAutoAllow,
					AllowTasks:   true,
					RequireClean: statusRequireClean,
				},
				ConfirmStatusCommit: confirmed,
			})
		},
	}
	cmd.Flags().StringVar(&commitRef, "commit", "HEAD", "git rev to attach as the completion commit")
	cmd.Flags().StringVar(&author, "author", "", "optional comment author (requires --body)")
	cmd.Flags().StringVar(&body, "body", "", "optional comment body (requires --author)")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "do not run verify even if configured")
	cmd.Flags().BoolVar(&force, "force", false, "bypass readiness and commit-subject checks")
	cmd.Flags().BoolVar(&requireTaskID, "require-task-id-in-commit", true, "require the commit subject to mention the task id")
	registerStatusCommitFlags(cmd, &commit, false)
	cmd.Flags().BoolVar(&statusCommit, "status-commit", false, "commit task/doc changes after finishing, using the comment body")
	cmd.Flags().StringVar(&statusCommitEmoji, "status-commit-emoji", "", "emoji prefix for the status commit (default: ✅)")
	cmd.Flags().StringArrayVar(&statusAllow, "status-commit-allow", nil, "allowed path prefix for the status commit (repeatable)")
	cmd.Flags().BoolVar(&statusAutoAllow, "status-commit-auto-allow", false, "derive status-commit prefixes from changed files")
	cmd.Flags().BoolVar(&statusRequireClean, "status-commit-require-clean", false, "require a clean tree for the status commit")
	return cmd
}

func newCommitCmd() *cobra.Command {
	var (
		message      string
		allow        []string
		autoAllow    bool
		allowTasks   bool
		requireClean bool
	)
	cmd := &cobra.Command{
		Use:   "commit <task-id>",
		Short: "Run the guard checks, then git commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			_, err = env.Engine.Commit(args[0], message, workflow.CommitOptions{
				Allow:        allow,
				AutoAllow:    autoAllow,
				AllowTasks:   allowTasks,
				RequireClean: requireClean,
			})
			return err
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message (must mention the task id)")
	cmd.Flags().StringArrayVar(&allow, "allow", nil, "allowed path prefix (repeatable)")
	cmd.Flags().BoolVar(&autoAllow, "auto-allow", false, "derive allowed prefixes from staged files")
	cmd.Flags().BoolVar(&allowTasks, "allow-tasks", false, "allow staging the tasks snapshot")
	cmd.Flags().BoolVar(&requireClean, "require-clean", false, "fail if there are unstaged changes")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
