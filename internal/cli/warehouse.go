package cli

import (
	"strings"

	"dcj-cli/internal/flow"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/warehouse"

	"github.com/spf13/cobra"
)

func newWarehouseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "warehouse",
		Aliases: []string{"wh"},
		Short:   "Backlog (warehouse) commands",
	}

	cmd.AddCommand(newWarehouseListCmd(app))
	cmd.AddCommand(newWarehouseTreeCmd(app))
	cmd.AddCommand(newWarehouseAddCmd(app))
	cmd.AddCommand(newWarehouseUpdateCmd(app))
	cmd.AddCommand(newWarehouseDeleteCmd(app))
	cmd.AddCommand(newWarehouseCompleteCmd(app))
	cmd.AddCommand(newWarehouseReorderCmd(app))
	cmd.AddCommand(newWarehouseReparentCmd(app))
	cmd.AddCommand(newWarehouseExtractCmd(app))
	cmd.AddCommand(newWarehouseStatsCmd(app))
	cmd.AddCommand(newWarehouseExpandCmd(app, true))
	cmd.AddCommand(newWarehouseExpandCmd(app, false))
	cmd.AddCommand(newWarehouseSelectCmd(app))

	return cmd
}

func newWarehouseListCmd(app *App) *cobra.Command {
	var parentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List warehouse tasks (top level, or the children of --parent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			wh := sess.Warehouse
			var out []model.WarehouseTask
			if pid := strings.TrimSpace(parentID); pid != "" {
				if _, ok := wh.Get(pid); !ok {
					return writeErr(cmd, errNotFound("warehouse task", pid))
				}
				out = wh.Children(pid)
			} else {
				out = wh.TopLevel()
			}
			if out == nil {
				out = []model.WarehouseTask{}
			}
			return emit(cmd, app, out, "dcj warehouse tree", "dcj warehouse extract <id>")
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "List the children of this task")
	return cmd
}

func newWarehouseTreeCmd(app *App) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the visible rows of the warehouse forest in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			f := sess.Warehouse.Snapshot()
			if all {
				f.ExpandAll()
			}
			rows := f.Flatten()
			if rows == nil {
				rows = []warehouse.Row{}
			}
			return emit(cmd, app, rows, "dcj warehouse expand <id>", "dcj warehouse reorder <id> <index>")
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show every node regardless of expansion")
	return cmd
}

func newWarehouseAddCmd(app *App) *cobra.Command {
	var parentID string
	var priority int
	var tf tagFlags
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Park a task in the warehouse",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			text := ""
			if len(args) == 1 {
				text = args[0]
			}
			// Without a parent the edit row's buffered text is a valid source.
			if strings.TrimSpace(parentID) == "" && !cmd.Flags().Changed("priority") {
				h, err := sess.SaveToWarehouse(cmd.Context(), text, tf.tags())
				if err != nil {
					return writeErr(cmd, err)
				}
				t, _ := sess.Warehouse.Get(h.ID)
				return emit(cmd, app, t, "dcj warehouse tree")
			}
			t, err := sess.Warehouse.Create(cmd.Context(), remote.CreateWarehouseTaskRequest{
				TaskText:     text,
				Priority:     priority,
				ParentTaskID: model.StrPtr(strings.TrimSpace(parentID)),
				Tags:         tf.tags(),
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return emit(cmd, app, t, "dcj warehouse tree")
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent task id (default: top level)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Explicit priority among siblings (default: last)")
	tf.register(cmd)
	return cmd
}

func newWarehouseUpdateCmd(app *App) *cobra.Command {
	var text string
	var priority int
	var status string
	var tf tagFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a warehouse task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			p := remote.WarehousePatch{
				TaskText: changedString(cmd, "text", &text),
				Priority: changedInt(cmd, "priority", &priority),
			}
			p.PrimaryTag, p.SecondaryTag, p.BusinessType = tf.patch(cmd)
			if cmd.Flags().Changed("status") {
				ds := model.DisplayStatus(strings.TrimSpace(status))
				switch ds {
				case model.DisplayNormal, model.DisplayHighlighted, model.DisplayDimmed:
				default:
					return writeErr(cmd, errUsage("invalid --status %q (want normal|highlighted|dimmed)", status))
				}
				p.DisplayStatus = &ds
			}
			t, err := sess.Warehouse.Update(cmd.Context(), args[0], p)
			if err != nil {
				return writeErr(cmd, err)
			}
			return emit(cmd, app, t)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "New text")
	cmd.Flags().IntVar(&priority, "priority", 0, "New priority")
	cmd.Flags().StringVar(&status, "status", "", "Display status (normal|highlighted|dimmed)")
	tf.register(cmd)
	return cmd
}

func newWarehouseDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a warehouse task and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := sess.Warehouse.Delete(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return emit(cmd, app, map[string]any{"deleted": args[0]})
		},
	}
}

func newWarehouseCompleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a warehouse task done (it stays in the forest, dimmed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := sess.Complete(cmd.Context(), flow.WarehouseHandle(args[0])); err != nil {
				return writeErr(cmd, err)
			}
			t, _ := sess.Warehouse.Get(args[0])
			return emit(cmd, app, t)
		},
	}
}

func newWarehouseReorderCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id> <drop-index>",
		Short: "Move a task among its siblings",
		Long: `Move a task among its siblings.

The drop index is a slot in the sibling list as it looks before the move:
0 puts the task first, the sibling count puts it last.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := sess.Warehouse.Reorder(cmd.Context(), args[0], idx); err != nil {
				return writeErr(cmd, err)
			}
			return emitSiblings(cmd, app, sess, args[0])
		},
	}
}

func newWarehouseReparentCmd(app *App) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "reparent <id> [new-parent-id]",
		Short: "Move a task (with its subtree) under another parent; omit the parent for top level",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := ""
			if len(args) == 2 {
				parent = args[1]
			}
			if index < 0 {
				return writeErr(cmd, errUsage("--index must be non-negative"))
			}
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if !cmd.Flags().Changed("index") {
				// Append as the last child by default.
				if parent == "" {
					index = len(sess.Warehouse.TopLevel())
				} else {
					index = len(sess.Warehouse.Children(parent))
				}
			}
			if err := sess.Warehouse.Reparent(cmd.Context(), args[0], parent, index); err != nil {
				return writeErr(cmd, err)
			}
			return emitSiblings(cmd, app, sess, args[0])
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Drop index among the new siblings (default: last)")
	return cmd
}

func emitSiblings(cmd *cobra.Command, app *App, sess *flow.Session, id string) error {
	t, ok := sess.Warehouse.Get(id)
	if !ok {
		return writeErr(cmd, errNotFound("warehouse task", id))
	}
	var sibs []model.WarehouseTask
	if pid := t.ParentID(); pid != "" {
		sibs = sess.Warehouse.Children(pid)
	} else {
		sibs = sess.Warehouse.TopLevel()
	}
	return emit(cmd, app, map[string]any{"task": t, "siblings": sibs}, "dcj warehouse tree")
}

func newWarehouseExtractCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [id]",
		Short: "Activate a warehouse task as the focus task (default: the selected one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			var h flow.Handle
			if len(args) == 1 {
				h, err = sess.Extract(cmd.Context(), args[0])
			} else {
				h, err = sess.ExtractSelected(cmd.Context())
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			t, _ := sess.Tasks.Task(h.ID)
			st, _ := sess.Tasks.Machine.State()
			return emit(cmd, app, map[string]any{"task": t, "editRow": st},
				"dcj row submit a --text <first step>")
		},
	}
}

func newWarehouseStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the warehouse by status, depth and tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return emit(cmd, app, sess.Warehouse.Stats())
		},
	}
}

func newWarehouseExpandCmd(app *App, expand bool) *cobra.Command {
	var all bool
	use, short := "expand", "Expand nodes in the tree view"
	if !expand {
		use, short = "collapse", "Collapse nodes in the tree view"
	}
	cmd := &cobra.Command{
		Use:   use + " [id...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return writeErr(cmd, errUsage("pass task ids or --all"))
			}
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			wh := sess.Warehouse
			switch {
			case all && expand:
				wh.ExpandAll()
			case all:
				wh.CollapseAll()
			default:
				for _, id := range args {
					if _, ok := wh.Get(id); !ok {
						return writeErr(cmd, errNotFound("warehouse task", id))
					}
					wh.SetExpanded(id, expand)
				}
			}
			return emit(cmd, app, map[string]any{"expanded": wh.ExpandedIDs()}, "dcj warehouse tree")
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Apply to every node")
	return cmd
}

func newWarehouseSelectCmd(app *App) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "select [id]",
		Short: "Select the warehouse task `warehouse extract` uses by default",
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
			if err := sess.Warehouse.Select(id); err != nil {
				return writeErr(cmd, err)
			}
			sel, ok := sess.Warehouse.Selected()
			if !ok {
				return emit(cmd, app, nil)
			}
			return emit(cmd, app, sel, "dcj warehouse extract")
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the selection")
	return cmd
}
