package cli

import (
	"dcj-cli/internal/tui"

	"github.com/spf13/cobra"
)

func newTUICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive flow view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, app)
		},
	}
}

func runTUI(cmd *cobra.Command, app *App) error {
	sess, err := app.session(cmd.Context())
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := tui.Run(cmd.Context(), sess, tui.WithLogger(app.log)); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
