package cli

import (
	"strings"

	"github.com/spf13/cobra"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

func newSyncCmd() *cobra.Command {
	var direction, conflict string
	var yes bool
	cmd := &cobra.Command{
		Use:   "sync [backend]",
		Short: "Reconcile the local task cache with the remote tracker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch direction {
			case "push", "pull":
			default:
				return swarmerrors.Newf(swarmerrors.CodeInputEmptyField,
					"--direction must be push|pull, got %q", direction)
			}
			switch conflict {
			case "diff", "prefer-local", "prefer-remote", "fail":
			default:
				return swarmerrors.Newf(swarmerrors.CodeInputEmptyField,
					"--conflict must be diff|prefer-local|prefer-remote|fail, got %q", conflict)
			}
			env, err := openEnv()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				want := strings.TrimSpace(args[0])
				if got := env.Store.Backend().Name(); want != "" && want != got {
					return swarmerrors.Newf(swarmerrors.CodeConfigUnknownBackend,
						"configured backend is %q, not %q", got, want)
				}
			}
			syncer, err := task.RequireSyncer(env.Store.Backend())
			if err != nil {
				return err
			}
			if err := syncer.Sync(task.SyncOptions{
				Direction: direction,
				Conflict:  conflict,
				Quiet:     globalQuiet,
				Confirm:   yes,
			}); err != nil {
				return err
			}
			_, err = env.Store.Reload()
			return err
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "push", "sync direction: push|pull")
	cmd.Flags().StringVar(&conflict, "conflict", "diff", "conflict strategy: diff|prefer-local|prefer-remote|fail")
	cmd.Flags().BoolVar(&yes, "yes", false, "apply changes without confirmation")
	return cmd
}
