package cli

import (
	"context"
	"errors"
	"strings"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/records"

	"github.com/spf13/cobra"
)

func newRecordsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Record log commands",
	}

	cmd.AddCommand(newRecordsListCmd(app))
	cmd.AddCommand(newRecordsCloseCmd(app, "archive"))
	cmd.AddCommand(newRecordsCloseCmd(app, "terminate"))

	return cmd
}

func newRecordsListCmd(app *App) *cobra.Command {
	var taskID string
	var focusOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest records in log order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			meta := map[string]any{}
			var (
				log   *records.Log
				focus string
			)
			sess, err := app.session(ctx)
			switch {
			case err == nil:
				log, focus = sess.Tasks.Records, sess.Tasks.FocusTaskID()
			case offline(err):
				var ok bool
				if log, focus, ok = app.cachedRecords(ctx); !ok {
					return writeErr(cmd, err)
				}
				app.log.Warn("authority unreachable; listing cached records", "err", err)
				meta["cached"] = true
			default:
				return writeErr(cmd, err)
			}

			var recs []model.TaskRecord
			switch {
			case focusOnly:
				recs = log.FocusRecords(focus)
			case strings.TrimSpace(taskID) != "":
				recs = log.ForTask(strings.TrimSpace(taskID))
			default:
				recs = log.All()
			}
			if recs == nil {
				recs = []model.TaskRecord{}
			}
			meta["count"] = len(recs)
			meta["focusTaskId"] = focus
			return writeOut(cmd, app, map[string]any{
				"data": recs,
				"meta": meta,
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "Only records of this task")
	cmd.Flags().BoolVar(&focusOnly, "focus", false, "Only records of the focus task")
	return cmd
}

// newRecordsCloseCmd archives or terminates the task a record belongs to.
func newRecordsCloseCmd(app *App, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <record-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " the task a record belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			call := sess.Tasks.ArchiveRecord
			if verb == "terminate" {
				call = sess.Tasks.TerminateRecord
			}
			if err := call(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return emit(cmd, app, map[string]any{
				"recordId":    args[0],
				"focusTaskId": sess.Tasks.FocusTaskID(),
			}, "dcj records list")
		},
	}
}

// offline reports a transport failure other than a rejected token.
func offline(err error) bool {
	var te *apperr.TransportError
	return errors.As(err, &te) && !te.Unauthorized
}

// cachedRecords rebuilds the record log from the tail saved by the last
// successful invocation.
func (app *App) cachedRecords(ctx context.Context) (*records.Log, string, bool) {
	c := app.openCache(ctx)
	if c == nil {
		return nil, "", false
	}
	tail, err := c.RecordTail(ctx)
	if err != nil {
		app.log.Warn("reading cached records failed", "err", err)
		return nil, "", false
	}
	focus, _ := c.Selection(ctx, selFocus)
	log := records.NewLog()
	log.Replace(tail)
	return log, focus, true
}
