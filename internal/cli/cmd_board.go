package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexswarm/agentctl/internal/doc"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
	"github.com/codexswarm/agentctl/internal/util"
)

func newTaskBoardCmd() *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Render the Markdown kanban board from the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			base := env.Config.ResolveBaseBranch(env.Git)
			branch, err := env.Git.CurrentBranch()
			if err != nil {
				return err
			}
			if branch != base && !force {
				return swarmerrors.Newf(swarmerrors.CodeContextWrongBranch,
					"refusing to render the board on %q (base branch is %q)", branch, base)
			}

			tasks, err := env.Store.Load()
			if err != nil {
				return err
			}
			if backfillCommitMetadata(env, tasks) {
				if err := env.Store.Save(tasks); err != nil {
					return err
				}
				if !globalQuiet {
					fmt.Println("Updated snapshot with commit metadata.")
				}
			}

			remoteBase := ""
			if url, err := env.Git.RemoteURL("origin"); err == nil {
				remoteBase = doc.NormalizeRemoteURL(url)
			}
			updatedAt := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
			board := doc.RenderBoard(tasks, remoteBase, updatedAt)

			target := filepath.Join(env.Config.Root(), "tasks.md")
			if strings.TrimSpace(out) != "" {
				target = filepath.Join(env.Config.Root(), filepath.FromSlash(out))
			}
			if err := util.AtomicWriteFile(target, []byte(board), 0o644); err != nil {
				return err
			}
			if !globalQuiet {
				fmt.Printf("Wrote %s with %d tasks.\n", target, len(tasks))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (repo-relative, default: tasks.md)")
	cmd.Flags().BoolVar(&force, "force", false, "render even on a non-base branch")
	return cmd
}

// backfillCommitMetadata attaches completion commits to DONE tasks that
// miss them, found by grepping the log for the task id.
func backfillCommitMetadata(env *Env, tasks []*task.Task) bool {
	updated := false
	for _, t := range tasks {
		if t.Status != task.StatusDone || t.Commit != nil || t.ID == "" {
			continue
		}
		info, ok := env.Git.FindCommitBySubject(t.ID)
		if !ok {
			continue
		}
		t.Commit = &task.Commit{Hash: info.SHA, Message: info.Subject}
		updated = true
	}
	return updated
}
