package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codexswarm/agentctl/internal/doc"
	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/task"
	"github.com/codexswarm/agentctl/internal/workflow"
)

func newTaskScaffoldCmd() *cobra.Command {
	var title string
	var overwrite, force bool
	cmd := &cobra.Command{
		Use:   "scaffold <task-id>",
		Short: "Write the per-task README skeleton",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if title == "" && !force {
				t, err := env.Store.Get(args[0])
				if err != nil {
					return err
				}
				title = t.Title
			}
			return env.Engine.Scaffold(workflow.ScaffoldParams{
				TaskID:    args[0],
				Title:     title,
				Overwrite: overwrite,
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "optional title override")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite if the file exists")
	cmd.Flags().BoolVar(&force, "force", false, "allow scaffolding an unknown task id")
	return cmd
}

func newTaskDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Read or update curated task docs",
	}
	cmd.AddCommand(newTaskDocShowCmd())
	cmd.AddCommand(newTaskDocSetCmd())
	return cmd
}

func newTaskDocShowCmd() *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the task doc (or one section)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			reader, err := task.RequireDocReader(env.Store.Backend())
			if err != nil {
				return err
			}
			text, err := reader.GetTaskDoc(args[0])
			if err != nil {
				return err
			}
			if section != "" {
				name := doc.NormalizeSectionName(section, env.Config.DocSections())
				content := doc.TrimBlankLines(doc.ExtractSections(text)[name])
				if len(content) > 0 {
					fmt.Println(strings.TrimRight(strings.Join(content, "\n"), " \t\n"))
				} else if !globalQuiet {
					fmt.Printf("ℹ️ no content for section: %s\n", name)
				}
				return nil
			}
			if strings.TrimSpace(text) != "" {
				fmt.Println(strings.TrimRight(text, " \t\n"))
			} else if !globalQuiet {
				fmt.Println("ℹ️ no task doc metadata")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "show a single section by name (e.g., 'Summary')")
	return cmd
}

func newTaskDocSetCmd() *cobra.Command {
	var section, text, file string
	cmd := &cobra.Command{
		Use:   "set <task-id>",
		Short: "Update the task doc (or one section)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			writer, err := task.RequireDocWriter(env.Store.Backend())
			if err != nil {
				return err
			}
			body, err := docSetBody(env, text, file)
			if err != nil {
				return err
			}
			if section != "" {
				reader, err := task.RequireDocReader(env.Store.Backend())
				if err != nil {
					return err
				}
				existing, err := reader.GetTaskDoc(args[0])
				if err != nil {
					return err
				}
				canonical := env.Config.DocSections()
				sections := doc.ParseSections(existing)
				sections.EnsureRequired(env.Config.DocRequiredSections(), canonical)
				name := doc.NormalizeSectionName(section, canonical)
				if name == "" {
					return swarmerrors.New(swarmerrors.CodeInputEmptyField, "--section must be non-empty")
				}
				var lines []string
				for _, line := range strings.Split(body, "\n") {
					lines = append(lines, strings.TrimRight(line, " \t"))
				}
				sections.Content[name] = lines
				sections.InsertSection(name, canonical)
				body = sections.Render(canonical)
			}
			if err := writer.SetTaskDoc(args[0], body); err != nil {
				return err
			}
			if !globalQuiet {
				fmt.Printf("✅ updated task doc for %s\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "update a single section by name (e.g., 'Summary')")
	cmd.Flags().StringVar(&text, "text", "", "doc body text")
	cmd.Flags().StringVar(&file, "file", "", "read doc body from file ('-' for stdin)")
	return cmd
}

// docSetBody resolves the doc source: --text, a repo-relative file, or
// stdin.
func docSetBody(env *Env, text, file string) (string, error) {
	switch {
	case text != "" && file != "":
		return "", swarmerrors.New(swarmerrors.CodeInputEmptyField, "use only one of --text or --file")
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", swarmerrors.Wrap(swarmerrors.CodeInputEmptyField, "read doc body from stdin", err)
		}
		return string(data), nil
	case file != "":
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(env.Config.Root(), filepath.FromSlash(file))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", swarmerrors.Wrap(swarmerrors.CodeInputEmptyField, "read doc body file", err)
		}
		return string(data), nil
	default:
		return "", swarmerrors.New(swarmerrors.CodeInputEmptyField, "provide --text or --file to set task docs")
	}
}

func newTaskExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the checksummed tasks snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f := strings.ToLower(strings.TrimSpace(format)); f != "json" {
				return swarmerrors.Newf(swarmerrors.CodeInputEmptyField, "unsupported export format: %s", f)
			}
			env, err := openEnv()
			if err != nil {
				return err
			}
			target := env.Store.SnapshotPath()
			if strings.TrimSpace(out) != "" {
				target = filepath.Join(env.Config.Root(), filepath.FromSlash(out))
			}
			if exporter, err := task.RequireExporter(env.Store.Backend()); err == nil {
				if err := exporter.ExportTasksJSON(target); err != nil {
					return err
				}
			} else {
				tasks, err := env.Store.Load()
				if err != nil {
					return err
				}
				if err := task.WriteSnapshot(target, tasks); err != nil {
					return err
				}
			}
			if !globalQuiet {
				fmt.Printf("✅ exported tasks to %s\n", target)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "export format")
	cmd.Flags().StringVar(&out, "out", "", "output path (repo-relative, default: tasks snapshot)")
	return cmd
}

func newTaskNormalizeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite every task through the canonical serializer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if err := env.Engine.RequireTasksWriteContext(force); err != nil {
				return err
			}
			var count int
			if normalizer, err := task.RequireNormalizer(env.Store.Backend()); err == nil {
				count, err = normalizer.NormalizeTasks()
				if err != nil {
					return err
				}
			} else {
				tasks, err := env.Store.Backend().ListTasks()
				if err != nil {
					return err
				}
				if err := env.Store.Backend().WriteTasks(tasks); err != nil {
					return err
				}
				count = len(tasks)
			}
			if _, err := env.Store.Reload(); err != nil {
				return err
			}
			if !globalQuiet {
				fmt.Printf("✅ normalized %d task(s)\n", count)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass base-branch checks")
	return cmd
}

func newTaskMigrateCmd() *cobra.Command {
	var source string
	var force bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a tasks snapshot into the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			if err := env.Engine.RequireTasksWriteContext(force); err != nil {
				return err
			}
			path := env.Store.SnapshotPath()
			if strings.TrimSpace(source) != "" {
				path = filepath.Join(env.Config.Root(), filepath.FromSlash(source))
			}
			snap, err := task.ReadSnapshot(path)
			if err != nil {
				return err
			}
			if err := env.Store.Backend().WriteTasks(snap.Tasks); err != nil {
				return err
			}
			if !globalQuiet {
				fmt.Printf("✅ migrated %d task(s) into backend %s\n", len(snap.Tasks), env.Store.Backend().Name())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source snapshot path (repo-relative, default: tasks snapshot)")
	cmd.Flags().BoolVar(&force, "force", false, "bypass base-branch checks")
	return cmd
}
