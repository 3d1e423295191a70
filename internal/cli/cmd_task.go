package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Operate on the task store",
	}
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskNextCmd())
	cmd.AddCommand(newTaskSearchCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskLintCmd())
	cmd.AddCommand(newTaskNewCmd())
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskUpdateCmd())
	cmd.AddCommand(newTaskCommentCmd())
	cmd.AddCommand(newTaskSetStatusCmd())
	cmd.AddCommand(newTaskScrubCmd())
	cmd.AddCommand(newTaskScaffoldCmd())
	cmd.AddCommand(newTaskDocCmd())
	cmd.AddCommand(newTaskExportCmd())
	cmd.AddCommand(newTaskNormalizeCmd())
	cmd.AddCommand(newTaskMigrateCmd())
	cmd.AddCommand(newTaskBoardCmd())
	return cmd
}

func registerFilterFlags(cmd *cobra.Command, f *taskFilters) {
	cmd.Flags().StringArrayVar(&f.statuses, "status", nil, "filter by status (repeatable)")
	cmd.Flags().StringArrayVar(&f.owners, "owner", nil, "filter by owner (repeatable)")
	cmd.Flags().StringArrayVar(&f.tags, "tag", nil, "filter by tag (repeatable)")
}

// loadFiltered loads the store, prints lint warnings, and returns the
// filtered tasks plus the dependency state map.
func loadFiltered(env *Env, f taskFilters) ([]*task.Task, map[string]task.DependencyState, error) {
	tasks, err := env.Store.Load()
	if err != nil {
		return nil, nil, err
	}
	printWarnings(task.Lint(tasks, env.lintOptions()).Warnings)
	return f.apply(tasks), task.ComputeDependencyStates(tasks, nil), nil
}

func newTaskListCmd() *cobra.Command {
	var filters taskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with dependency state",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			tasks, deps, err := loadFiltered(env, filters)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Println(formatTaskLine(t, deps))
			}
			if !globalQuiet {
				fmt.Println(statusCounts(tasks))
			}
			return nil
		},
	}
	registerFilterFlags(cmd, &filters)
	return cmd
}

func newTaskNextCmd() *cobra.Command {
	var filters taskFilters
	var limit int
	cmd := &cobra.Command{
		Use:   "next",
		Short: "List tasks ready to start (dependencies DONE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if len(filters.statuses) == 0 {
				filters.statuses = []string{string(task.StatusTodo)}
			}
			tasks, deps, err := loadFiltered(env, filters)
			if err != nil {
				return err
			}
			var ready []*task.Task
			for _, t := range tasks {
				if deps[t.ID].Satisfied() {
					ready = append(ready, t)
				}
			}
			if limit >= 0 && limit < len(ready) {
				ready = ready[:limit]
			}
			for _, t := range ready {
				fmt.Println(formatTaskLine(t, deps))
			}
			if !globalQuiet {
				fmt.Printf("Ready: %d / %d\n", len(ready), len(tasks))
			}
			return nil
		},
	}
	registerFilterFlags(cmd, &filters)
	cmd.Flags().IntVar(&limit, "limit", -1, "limit number of results")
	return cmd
}

// taskTextBlob joins the searchable text of a task.
func taskTextBlob(t *task.Task) string {
	parts := []string{t.ID, t.Title, t.Description, string(t.Status), t.Priority, t.Owner}
	parts = append(parts, t.Tags...)
	for _, c := range t.Comments {
		parts = append(parts, c.Author, c.Body)
	}
	if t.Commit != nil {
		parts = append(parts, t.Commit.Hash, t.Commit.Message)
	}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

func newTaskSearchCmd() *cobra.Command {
	var filters taskFilters
	var useRegex bool
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search tasks by text (title/description/tags/comments)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(args[0])
			if query == "" {
				return swarmerrors.New(swarmerrors.CodeInputEmptyField, "query must be non-empty")
			}
			env, err := openEnv()
			if err != nil {
				return err
			}
			tasks, deps, err := loadFiltered(env, filters)
			if err != nil {
				return err
			}
			var match func(*task.Task) bool
			if useRegex {
				pattern, err := regexp.Compile("(?i)" + query)
				if err != nil {
					return swarmerrors.Wrap(swarmerrors.CodeInputEmptyField, "invalid regex", err)
				}
				match = func(t *task.Task) bool { return pattern.MatchString(taskTextBlob(t)) }
			} else {
				needle := strings.ToLower(query)
				match = func(t *task.Task) bool {
					return strings.Contains(strings.ToLower(taskTextBlob(t)), needle)
				}
			}
			var matches []*task.Task
			for _, t := range tasks {
				if match(t) {
					matches = append(matches, t)
				}
			}
			if limit >= 0 && limit < len(matches) {
				matches = matches[:limit]
			}
			for _, t := range matches {
				fmt.Println(formatTaskLine(t, deps))
			}
			return nil
		},
	}
	registerFilterFlags(cmd, &filters)
	cmd.Flags().BoolVar(&useRegex, "regex", false, "treat query as a case-insensitive regex")
	cmd.Flags().IntVar(&limit, "limit", -1, "limit number of results")
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	var lastComments int
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			tasks, err := env.Store.Load()
			if err != nil {
				return err
			}
			printWarnings(task.Lint(tasks, env.lintOptions()).Warnings)
			deps := task.ComputeDependencyStates(tasks, nil)
			t, err := env.Store.Get(args[0])
			if err != nil {
				return err
			}
			printTaskDetail(env, t, deps[t.ID], lastComments)
			return nil
		},
	}
	cmd.Flags().IntVar(&lastComments, "last-comments", 5, "how many latest comments to print")
	return cmd
}

func printTaskDetail(env *Env, t *task.Task, state task.DependencyState, lastComments int) {
	orDash := func(s string) string {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return "-"
	}
	fmt.Printf("ID: %s\n", t.ID)
	fmt.Printf("Title: %s\n", strings.TrimSpace(t.Title))
	fmt.Printf("Status: %s\n", t.Status)
	fmt.Printf("Priority: %s\n", orDash(t.Priority))
	fmt.Printf("Owner: %s\n", orDash(t.Owner))
	fmt.Printf("Depends on: %s\n", orDash(strings.Join(t.DependsOn, ", ")))
	if state.Satisfied() {
		fmt.Println("Ready: yes")
	} else {
		fmt.Println("Ready: no")
		if len(state.Missing) > 0 {
			fmt.Printf("Missing deps: %s\n", strings.Join(state.Missing, ", "))
		}
		if len(state.Incomplete) > 0 {
			fmt.Printf("Incomplete deps: %s\n", strings.Join(state.Incomplete, ", "))
		}
	}
	fmt.Printf("Tags: %s\n", orDash(strings.Join(t.Tags, ", ")))
	if t.DocVersion != 0 || t.DocUpdatedAt != "" || t.DocUpdatedBy != "" {
		var parts []string
		if t.DocVersion != 0 {
			parts = append(parts, fmt.Sprintf("v%d", t.DocVersion))
		}
		if t.DocUpdatedAt != "" {
			parts = append(parts, "updated_at="+t.DocUpdatedAt)
		}
		if t.DocUpdatedBy != "" {
			parts = append(parts, "updated_by="+t.DocUpdatedBy)
		}
		fmt.Printf("Doc: %s\n", strings.Join(parts, ", "))
	}
	if desc := strings.TrimSpace(t.Description); desc != "" {
		fmt.Printf("\nDescription:\n%s\n", desc)
	}
	if t.Verify != nil {
		fmt.Printf("\nVerify (%d):\n", len(t.Verify))
		if len(t.Verify) == 0 {
			fmt.Println("- (none)")
		}
		for _, c := range t.Verify {
			fmt.Printf("- %s\n", c)
		}
	}
	if t.Commit != nil && t.Commit.Hash != "" {
		fmt.Printf("\nCommit:\n%s\n", strings.TrimSpace(t.Commit.Hash+" "+t.Commit.Message))
	}
	if len(t.Comments) > 0 {
		fmt.Printf("\nComments (total %d, showing last %d):\n", len(t.Comments), lastComments)
		start := len(t.Comments) - lastComments
		if start < 0 {
			start = 0
		}
		for _, c := range t.Comments[start:] {
			author := c.Author
			if author == "" {
				author = "unknown"
			}
			fmt.Printf("- %s: %s\n", author, strings.TrimSpace(c.Body))
		}
	}
}

func newTaskLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate the task store (schema, deps, checksum)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			tasks, err := env.Store.Load()
			if err != nil {
				return err
			}
			report := task.Lint(tasks, env.lintOptions())
			printWarnings(report.Warnings)
			if !report.OK() {
				for _, msg := range report.Errors {
					fmt.Printf("❌ %s\n", msg)
				}
				return swarmerrors.Newf(swarmerrors.CodeStateLintFailed,
					"lint failed with %d error(s)", len(report.Errors))
			}
			if !globalQuiet {
				fmt.Printf("✅ %d task(s) passed lint\n", len(tasks))
			}
			return nil
		},
	}
}
