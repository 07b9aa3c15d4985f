package cli

import (
	"fmt"
	"strings"

	"dcj-cli/internal/keys"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func newKeysCmd(app *App) *cobra.Command {
	var markdown bool
	var style string
	var width int
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Show the keyboard shortcuts of the TUI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			groups := keys.Default().Help()
			if !markdown {
				return emit(cmd, app, groups, "dcj keys --markdown")
			}
			r, err := glamour.NewTermRenderer(
				glamour.WithStandardStyle(style),
				glamour.WithWordWrap(width),
			)
			if err != nil {
				return writeErr(cmd, err)
			}
			out, err := r.Render(helpMarkdown(groups))
			if err != nil {
				return writeErr(cmd, err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render a table instead of structured output")
	cmd.Flags().StringVar(&style, "style", "notty", "glamour style (dark|light|notty|ascii)")
	cmd.Flags().IntVar(&width, "width", 80, "Wrap width")
	return cmd
}

func helpMarkdown(groups []keys.HelpGroup) string {
	var b strings.Builder
	b.WriteString("# Keyboard shortcuts\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "\n## %s\n\n| Keys | Action |\n| --- | --- |\n", g.Category)
		for _, e := range g.Entries {
			fmt.Fprintf(&b, "| `%s` | %s |\n", e.Keys, e.Description)
		}
	}
	return b.String()
}
