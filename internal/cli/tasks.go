package cli

import (
	"strings"

	"dcj-cli/internal/flow"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"

	"github.com/spf13/cobra"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Active task commands",
	}

	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksCreateCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksUpdateCmd(app))
	cmd.AddCommand(newTasksCompleteCmd(app))
	cmd.AddCommand(newTasksFocusCmd(app))

	return cmd
}

func newTasksListCmd(app *App) *cobra.Command {
	var status string
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := model.TaskStatus(strings.TrimSpace(status))
			switch st {
			case "", model.TaskStatusActive, model.TaskStatusCompleted, model.TaskStatusArchived:
			default:
				return writeErr(cmd, errUsage("invalid --status %q (want active|completed|archived)", status))
			}
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			needle := strings.ToLower(strings.TrimSpace(search))
			out := []model.Task{}
			for _, t := range sess.Tasks.Tasks() {
				if st != "" && t.Status != st {
					continue
				}
				if needle != "" && !strings.Contains(strings.ToLower(t.TaskName), needle) {
					continue
				}
				out = append(out, t)
			}
			meta := map[string]any{
				"count":       len(out),
				"focusTaskId": sess.Tasks.FocusTaskID(),
			}
			return writeOut(cmd, app, map[string]any{
				"data":   out,
				"meta":   meta,
				"_hints": []string{"dcj tasks focus <task-id>", "dcj row show"},
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active|completed|archived)")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive substring of the task name")
	return cmd
}

func newTasksCreateCmd(app *App) *cobra.Command {
	var double bool
	var description string
	var tf tagFlags
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a task and make it the focus task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			typ := model.TaskTypeSingleRow
			if double {
				typ = model.TaskTypeDoubleRow
			}
			h, err := sess.CreateTask(cmd.Context(), remote.CreateTaskRequest{
				TaskType:    typ,
				TaskName:    args[0],
				Description: strings.TrimSpace(description),
				Tags:        tf.tags(),
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return emitTask(cmd, app, sess, h.ID, "dcj row submit a --text <first step>")
		},
	}
	cmd.Flags().BoolVar(&double, "double", false, "Two edit rows (A advances, B supplements)")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	tf.register(cmd)
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task (default: the focus task) with its records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			id := sess.Tasks.FocusTaskID()
			if len(args) == 1 {
				id = args[0]
			}
			if id == "" {
				return writeErr(cmd, errMissingFocus)
			}
			return emitTask(cmd, app, sess, id)
		},
	}
}

func emitTask(cmd *cobra.Command, app *App, sess *flow.Session, id string, hints ...string) error {
	t, ok := sess.Tasks.Task(id)
	if !ok {
		return writeErr(cmd, errNotFound("task", id))
	}
	recs := sess.Tasks.Records.ForTask(id)
	if recs == nil {
		recs = []model.TaskRecord{}
	}
	data := map[string]any{
		"task":    t,
		"focus":   sess.Tasks.FocusTaskID() == id,
		"records": recs,
	}
	if st, ok := sess.Tasks.Machine.State(); ok && st.TaskID == id {
		data["editRow"] = st
	}
	return emit(cmd, app, data, hints...)
}

func newTasksUpdateCmd(app *App) *cobra.Command {
	var name string
	var priority int
	var tf tagFlags
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			e := flow.Edit{
				Text:     changedString(cmd, "name", &name),
				Priority: changedInt(cmd, "priority", &priority),
			}
			e.PrimaryTag, e.SecondaryTag, e.BusinessType = tf.patch(cmd)
			if err := sess.Update(cmd.Context(), flow.TaskHandle(args[0]), e); err != nil {
				return writeErr(cmd, err)
			}
			return emitTask(cmd, app, sess, args[0])
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New task name")
	cmd.Flags().IntVar(&priority, "priority", 0, "New priority")
	tf.register(cmd)
	return cmd
}

func newTasksCompleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a task (its edit row is removed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := sess.Complete(cmd.Context(), flow.TaskHandle(args[0])); err != nil {
				return writeErr(cmd, err)
			}
			return emitTask(cmd, app, sess, args[0], "dcj warehouse extract <id>")
		},
	}
}

func newTasksFocusCmd(app *App) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "focus [task-id]",
		Short: "Make a task the focus task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clear && len(args) == 0 {
				return writeErr(cmd, errUsage("pass a task id or --clear"))
			}
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			id := ""
			if !clear {
				id = args[0]
			}
			if err := sess.Tasks.SetFocusTask(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}
			if id == "" {
				return emit(cmd, app, map[string]any{"focusTaskId": ""})
			}
			return emitTask(cmd, app, sess, id, "dcj row show")
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the focus task")
	return cmd
}
