package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
	"github.com/codexswarm/agentctl/internal/workflow"
)

// taskFieldFlags are the shared authoring flags for task new/add.
type taskFieldFlags struct {
	title         string
	description   string
	status        string
	priority      string
	owner         string
	tags          []string
	dependsOn     []string
	verify        []string
	commentAuthor string
	commentBody   string
}

func registerTaskFieldFlags(cmd *cobra.Command, f *taskFieldFlags) {
	cmd.Flags().StringVar(&f.title, "title", "", "task title")
	cmd.Flags().StringVar(&f.description, "description", "", "task description")
	cmd.Flags().StringVar(&f.status, "status", "TODO", "initial status (default: TODO)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "task priority")
	cmd.Flags().StringVar(&f.owner, "owner", "", "task owner (agent id, HUMAN, or ORCHESTRATOR)")
	cmd.Flags().StringArrayVar(&f.tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringArrayVar(&f.dependsOn, "depends-on", nil, "dependency task id (repeatable)")
	cmd.Flags().StringArrayVar(&f.verify, "verify", nil, "verify shell command (repeatable)")
	cmd.Flags().StringVar(&f.commentAuthor, "comment-author", "", "author of an initial comment")
	cmd.Flags().StringVar(&f.commentBody, "comment-body", "", "body of an initial comment")
	for _, required := range []string{"title", "description", "priority", "owner"} {
		_ = cmd.MarkFlagRequired(required)
	}
}

// buildTask assembles a task from the authoring flags.
func (f taskFieldFlags) buildTask(id string) (*task.Task, error) {
	status, err := task.ParseStatus(f.status)
	if err != nil {
		return nil, err
	}
	t := &task.Task{
		ID:          id,
		Title:       f.title,
		Description: f.description,
		Status:      status,
		Priority:    f.priority,
		Owner:       f.owner,
		Tags:        dedupeStrings(f.tags),
		DependsOn:   dedupeStrings(f.dependsOn),
		Verify:      dedupeStrings(f.verify),
		CreatedAt:   task.NowISO(),
	}
	if f.commentAuthor != "" && f.commentBody != "" {
		t.Comments = []task.Comment{{Author: f.commentAuthor, Body: f.commentBody, At: task.NowISO()}}
	}
	return t, nil
}

func newTaskNewCmd() *cobra.Command {
	var fields taskFieldFlags
	var idLength int
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a task with an auto-generated id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if err := env.Engine.RequireTasksWriteContext(false); err != nil {
				return err
			}
			if err := env.validateOwner(fields.owner); err != nil {
				return err
			}
			if idLength == 0 {
				idLength = env.Config.IDSuffixLength()
			}
			id, err := env.Store.GenerateID(idLength)
			if err != nil {
				return err
			}
			t, err := fields.buildTask(id)
			if err != nil {
				return err
			}
			if err := requireVerifyCoverage(t, env.Config.VerifyRequiredTags()); err != nil {
				return err
			}
			tasks, err := env.Store.Load()
			if err != nil {
				return err
			}
			if err := env.Store.Save(append(tasks, t)); err != nil {
				return err
			}
			if globalQuiet {
				fmt.Println(id)
			} else {
				fmt.Printf("✅ created %s\n", id)
			}
			return nil
		},
	}
	registerTaskFieldFlags(cmd, &fields)
	cmd.Flags().IntVar(&idLength, "id-length", 0, "id suffix length (default: from config)")
	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var fields taskFieldFlags
	cmd := &cobra.Command{
		Use:   "add <task-id>...",
		Short: "Add new task(s) with explicit ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if err := env.Engine.RequireTasksWriteContext(false); err != nil {
				return err
			}
			if err := env.validateOwner(fields.owner); err != nil {
				return err
			}
			tasks, err := env.Store.Load()
			if err != nil {
				return err
			}
			existing, _ := task.IndexByID(tasks)
			updated := append([]*task.Task(nil), tasks...)
			for _, raw := range dedupeStrings(args) {
				if err := task.ValidateID(raw); err != nil {
					return err
				}
				if _, dup := existing[raw]; dup {
					return swarmerrors.Newf(swarmerrors.CodeInputDuplicateTaskID, "task already exists: %s", raw)
				}
				t, err := fields.buildTask(raw)
				if err != nil {
					return err
				}
				updated = append(updated, t)
				existing[raw] = t
			}
			return env.Store.Save(updated)
		},
	}
	registerTaskFieldFlags(cmd, &fields)
	return cmd
}

func newTaskUpdateCmd() *cobra.Command {
	var (
		tags, dependsOn, verify                    []string
		replaceTags, replaceDependsOn, replaceVerify bool
	)
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task fields (no manual snapshot edits)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if err := env.Engine.RequireTasksWriteContext(false); err != nil {
				return err
			}
			tasks, err := env.Store.Load()
			if err != nil {
				return err
			}
			byID, _ := task.IndexByID(tasks)
			t, ok := byID[args[0]]
			if !ok {
				return swarmerrors.ErrTaskNotFound(args[0])
			}
			flags := cmd.Flags()
			if flags.Changed("title") {
				t.Title, _ = flags.GetString("title")
			}
			if flags.Changed("description") {
				t.Description, _ = flags.GetString("description")
			}
			if flags.Changed("priority") {
				t.Priority, _ = flags.GetString("priority")
			}
			if flags.Changed("owner") {
				owner, _ := flags.GetString("owner")
				if err := env.validateOwner(owner); err != nil {
					return err
				}
				t.Owner = owner
			}
			if replaceTags {
				t.Tags = nil
			}
			if len(tags) > 0 {
				t.Tags = dedupeStrings(append(t.Tags, tags...))
			}
			if replaceDependsOn {
				t.DependsOn = nil
			}
			if len(dependsOn) > 0 {
				t.DependsOn = dedupeStrings(append(t.DependsOn, dependsOn...))
			}
			if replaceVerify {
				t.Verify = nil
			}
			if len(verify) > 0 {
				t.Verify = dedupeStrings(append(t.Verify, verify...))
			}
			if err := requireVerifyCoverage(t, env.Config.VerifyRequiredTags()); err != nil {
				return err
			}
			return env.Store.Save(tasks)
		},
	}
	cmd.Flags().String("title", "", "new title")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().String("priority", "", "new priority")
	cmd.Flags().String("owner", "", "new owner")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag to append (repeatable)")
	cmd.Flags().BoolVar(&replaceTags, "replace-tags", false, "drop existing tags first")
	cmd.Flags().StringArrayVar(&dependsOn, "depends-on", nil, "dependency to append (repeatable)")
	cmd.Flags().BoolVar(&replaceDependsOn, "replace-depends-on", false, "drop existing dependencies first")
	cmd.Flags().StringArrayVar(&verify, "verify", nil, "verify command to append (repeatable)")
	cmd.Flags().BoolVar(&replaceVerify, "replace-verify", false, "drop existing verify commands first")
	return cmd
}

func newTaskCommentCmd() *cobra.Command {
	var author, body string
	cmd := &cobra.Command{
		Use:   "comment <task-id>",
		Short: "Append a comment to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			return env.Engine.Comment(args[0], author, body)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "comment author")
	cmd.Flags().StringVar(&body, "body", "", "comment body")
	_ = cmd.MarkFlagRequired("author")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

// statusCommitFlags are the commit-from-comment knobs shared by the status
// verbs.
type statusCommitFlags struct {
	fromComment  bool
	emoji        string
	allow        []string
	autoAllow    bool
	allowTasks   bool
	requireClean bool
	confirm      bool
}

func registerStatusCommitFlags(cmd *cobra.Command, f *statusCommitFlags, allowTasksDefault bool) {
	cmd.Flags().BoolVar(&f.fromComment, "commit-from-comment", false, "stage and commit using the comment body as the message")
	cmd.Flags().StringVar(&f.emoji, "commit-emoji", "", "emoji prefix for the comment-driven commit")
	cmd.Flags().StringArrayVar(&f.allow, "commit-allow", nil, "allowed path prefix (repeatable)")
	cmd.Flags().BoolVar(&f.autoAllow, "commit-auto-allow", false, "derive allowed prefixes from changed files")
	cmd.Flags().BoolVar(&f.allowTasks, "commit-allow-tasks", allowTasksDefault, "allow staging the tasks snapshot")
	cmd.Flags().BoolVar(&f.requireClean, "commit-require-clean", false, "require a clean working tree when committing")
	cmd.Flags().BoolVar(&f.confirm, "confirm-status-commit", false, "acknowledge the status commit when policy is warn/confirm")
}

func (f statusCommitFlags) commitOptions() workflow.CommitOptions {
	return workflow.CommitOptions{
		Allow:        f.allow,
		AutoAllow:    f.autoAllow,
		AllowTasks:   f.allowTasks,
		RequireClean: f.requireClean,
	}
}

func newTaskSetStatusCmd() *cobra.Command {
	var (
		author, body, commitRef string
		force                   bool
		commit                  statusCommitFlags
	)
	cmd := &cobra.Command{
		Use:   "set-status <task-id> <status>",
		Short: "Update task status with readiness checks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			status, err := task.ParseStatus(args[1])
			if err != nil {
				return err
			}
			confirmed, err := resolveStatusCommitConfirm(env.Config, commit.confirm, commit.fromComment)
			if err != nil {
				return err
			}
			return env.Engine.SetStatus(workflow.SetStatusParams{
				StatusChangeParams: workflow.StatusChangeParams{
					TaskID:              args[0],
					Author:              author,
					Body:                body,
					Force:               force,
					CommitFromComment:   commit.fromComment,
					ConfirmStatusCommit: confirmed,
					CommitEmoji:         commit.emoji,
					Commit:              commit.commitOptions(),
				},
				Status:    status,
				CommitRef: commitRef,
			})
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "optional comment author (requires --body)")
	cmd.Flags().StringVar(&body, "body", "", "optional comment body (requires --author)")
	cmd.Flags().StringVar(&commitRef, "commit", "", "attach commit metadata from a git rev (e.g., HEAD)")
	cmd.Flags().BoolVar(&force, "force", false, "bypass transition and readiness checks")
	registerStatusCommitFlags(cmd, &commit, true)
	return cmd
}

func newTaskScrubCmd() *cobra.Command {
	var find, replace string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scrub",
		Short: "Replace text across task fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if find == "" {
				return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--find must be non-empty")
			}
			env, err := openEnv()
			if err != nil {
				return err
			}
			if err := env.Engine.RequireTasksWriteContext(false); err != nil {
				return err
			}
			tasks, err := env.Store.Load()
			if err != nil {
				return err
			}
			var changed []string
			for _, t := range tasks {
				if scrubTask(t, find, replace) {
					changed = append(changed, t.ID)
				}
			}
			if dryRun {
				if !globalQuiet {
					fmt.Printf("Would update %d task(s).\n", len(changed))
					for _, id := range changed {
						fmt.Println(id)
					}
				}
				return nil
			}
			if err := env.Store.Save(tasks); err != nil {
				return err
			}
			if !globalQuiet {
				fmt.Printf("Updated %d task(s).\n", len(changed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&find, "find", "", "substring to replace")
	cmd.Flags().StringVar(&replace, "replace", "", "replacement text")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print affected task ids without writing")
	_ = cmd.MarkFlagRequired("find")
	return cmd
}

// scrubTask replaces find with replace across the task's text fields and
// reports whether anything changed.
func scrubTask(t *task.Task, find, replace string) bool {
	changed := false
	sub := func(s *string) {
		if strings.Contains(*s, find) {
			*s = strings.ReplaceAll(*s, find, replace)
			changed = true
		}
	}
	sub(&t.Title)
	sub(&t.Description)
	sub(&t.Priority)
	sub(&t.Doc)
	for i := range t.Tags {
		sub(&t.Tags[i])
	}
	for i := range t.Verify {
		sub(&t.Verify[i])
	}
	for i := range t.Comments {
		sub(&t.Comments[i].Author)
		sub(&t.Comments[i].Body)
	}
	if t.Commit != nil {
		sub(&t.Commit.Message)
	}
	return changed
}
