package cli

import (
	"strings"

	"dcj-cli/internal/editrow"
	"dcj-cli/internal/flow"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"

	"github.com/spf13/cobra"
)

func newRowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "row",
		Short: "Edit row of the focus task",
	}

	cmd.AddCommand(newRowShowCmd(app))
	cmd.AddCommand(newRowTypeCmd(app))
	cmd.AddCommand(newRowSubmitCmd(app))
	cmd.AddCommand(newRowCloseCmd(app, remote.OpArchive))
	cmd.AddCommand(newRowCloseCmd(app, remote.OpTerminate))
	cmd.AddCommand(newRowCancelCmd(app))

	return cmd
}

// rowView is the edit row as a client sees it: the authority's state plus
// the controls currently usable and what each row would submit.
type rowView struct {
	TaskID     string               `json:"taskId" yaml:"taskId"`
	State      model.EditState      `json:"state" yaml:"state"`
	PrefixText string               `json:"prefixText" yaml:"prefixText"`
	Draft      string               `json:"draft" yaml:"draft"`
	Components model.Components     `json:"components" yaml:"components"`
	RowA       remote.OperationKind `json:"rowA,omitempty" yaml:"rowA,omitempty"`
	RowB       remote.OperationKind `json:"rowB,omitempty" yaml:"rowB,omitempty"`
	Reason     string               `json:"lastChangeReason,omitempty" yaml:"lastChangeReason,omitempty"`
}

func currentRow(sess *flow.Session) (rowView, error) {
	st, ok := sess.Tasks.Machine.State()
	if !ok {
		return rowView{}, errMissingFocus
	}
	v := rowView{
		TaskID:     st.TaskID,
		State:      st.CurrentState,
		PrefixText: st.PrefixText,
		Draft:      st.CachedText,
		Components: sess.Tasks.Machine.Effective(),
		RowA:       editrow.DefaultPolicy(st.CurrentState, remote.RowA),
		RowB:       editrow.DefaultPolicy(st.CurrentState, remote.RowB),
		Reason:     st.LastChangeReason,
	}
	if t, ok := sess.Tasks.Task(st.TaskID); ok && t.TaskType != model.TaskTypeDoubleRow {
		switch st.CurrentState {
		case model.StateArchive, model.StateTerminate:
		default:
			v.RowB = ""
		}
	}
	return v, nil
}

func newRowShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the focus task's edit row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			v, err := currentRow(sess)
			if err != nil {
				return writeErr(cmd, err)
			}
			return emit(cmd, app, v, "dcj row submit a")
		},
	}
}

func newRowTypeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "type <text>",
		Short: "Buffer draft text in the edit row (kept until the next submit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if _, ok := sess.Tasks.Machine.State(); !ok {
				return writeErr(cmd, errMissingFocus)
			}
			if !sess.Tasks.TypeText(args[0]) {
				return writeErr(cmd, errUsage("text editing is disabled in state %s", sess.Tasks.CurrentEditState()))
			}
			v, _ := currentRow(sess)
			return emit(cmd, app, v, "dcj row submit a")
		},
	}
}

func newRowSubmitCmd(app *App) *cobra.Command {
	var kind string
	var text string
	var tf tagFlags
	cmd := &cobra.Command{
		Use:   "submit [a|b]",
		Short: "Operate edit row A (default) or B",
		Long: `Operate an edit row.

Without --kind the row decides: in a start state either row starts the task,
while running row A records progress and row B a supplement, and in a
pending archive or terminate row A confirms and row B cancels.
Without --text the buffered draft is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row := remote.RowA
			if len(args) == 1 {
				switch strings.ToLower(args[0]) {
				case "a":
				case "b":
					row = remote.RowB
				default:
					return writeErr(cmd, errUsage("unknown row %q (want a|b)", args[0]))
				}
			}
			k := remote.OperationKind(strings.TrimSpace(kind))
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			res, err := sess.Tasks.Submit(cmd.Context(), row, k, text, tf.tags())
			if err != nil {
				return writeErr(cmd, err)
			}
			return emitResult(cmd, app, sess, res)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Operation (start|progress|supplement|complete|archive|terminate|cancel)")
	cmd.Flags().StringVar(&text, "text", "", "Record text (default: the buffered draft)")
	tf.register(cmd)
	return cmd
}

func emitResult(cmd *cobra.Command, app *App, sess *flow.Session, res remote.OperationResult) error {
	data := map[string]any{"result": res}
	if v, err := currentRow(sess); err == nil {
		data["editRow"] = v
	}
	var hints []string
	switch {
	case res.Cleared:
		hints = append(hints, "dcj warehouse extract <id>", "dcj tasks create <name>")
	case res.NewState == model.StateArchive || res.NewState == model.StateTerminate:
		hints = append(hints, "dcj row submit a (confirm)", "dcj row cancel")
	}
	return emit(cmd, app, data, hints...)
}

func newRowCloseCmd(app *App, kind remote.OperationKind) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   string(kind),
		Short: strings.ToUpper(string(kind[:1])) + string(kind[1:]) + " the focus task (enters the pending state; --confirm finishes)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			step := sess.ArchiveFocus
			if kind == remote.OpTerminate {
				step = sess.TerminateFocus
			}
			res, err := step(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if confirm && !res.Cleared {
				if res, err = step(cmd.Context()); err != nil {
					return writeErr(cmd, err)
				}
			}
			return emitResult(cmd, app, sess, res)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Enter and confirm in one go")
	return cmd
}

func newRowCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Back out of a pending archive or terminate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			res, err := sess.Cancel(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return emitResult(cmd, app, sess, res)
		},
	}
}
