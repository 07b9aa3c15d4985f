package cli

import (
	"strings"

	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"

	"github.com/spf13/cobra"
)

func newSpecialCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "special",
		Short: "Special rows (flow, interrupt, error)",
	}

	cmd.AddCommand(newSpecialListCmd(app))
	cmd.AddCommand(newSpecialRaiseCmd(app))
	cmd.AddCommand(newSpecialInvokeCmd(app))

	return cmd
}

func newSpecialListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List visible special rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			rows := sess.Tasks.Special.Visible()
			if rows == nil {
				rows = []model.SpecialEditRow{}
			}
			return emit(cmd, app, rows, "dcj special invoke <row-id>")
		},
	}
}

func newSpecialRaiseCmd(app *App) *cobra.Command {
	var taskID string
	var text string
	cmd := &cobra.Command{
		Use:   "raise <flow|interrupt|error>",
		Short: "Raise a special row for the focus task (or --task)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := model.SpecialRowType(strings.ToLower(strings.TrimSpace(args[0])))
			switch typ {
			case model.SpecialFlow, model.SpecialInterrupt, model.SpecialError:
			default:
				return writeErr(cmd, errUsage("unknown special row type %q (want flow|interrupt|error)", args[0]))
			}
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			row, err := sess.Tasks.RaiseSpecialRow(cmd.Context(), remote.SpecialRowRequest{
				TaskID:        strings.TrimSpace(taskID),
				Type:          typ,
				OperationText: strings.TrimSpace(text),
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return emit(cmd, app, row, "dcj special invoke "+row.ID)
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "Task id (default: the focus task)")
	cmd.Flags().StringVar(&text, "text", "", "Operation text")
	return cmd
}

func newSpecialInvokeCmd(app *App) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "invoke <row-id>",
		Short: "Operate a special row",
		Long: `Operate a special row.

Flow rows commit at once. Interrupt and error rows take two invocations: the
first starts their timer, the second commits with the elapsed duration. The
pending phase lives only in this process, so from the command line pass
--confirm to run both phases.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			out, err := sess.Tasks.InvokeSpecialRow(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if !out.Committed && confirm {
				if out, err = sess.Tasks.InvokeSpecialRow(cmd.Context(), args[0]); err != nil {
					return writeErr(cmd, err)
				}
			}
			var hints []string
			if !out.Committed {
				hints = append(hints, "dcj special invoke "+args[0]+" --confirm")
			}
			return emit(cmd, app, map[string]any{
				"committed": out.Committed,
				"row":       out.Row,
				"record":    out.Record,
			}, hints...)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Run both phases of a two-phase row")
	return cmd
}
