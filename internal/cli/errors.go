package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"

	"github.com/spf13/cobra"
)

var errMissingFocus = apperr.Validation("no focus task (use `dcj tasks focus <task-id>` or `dcj warehouse extract <id>`)")

func errNotFound(kind, id string) error {
	return apperr.NotFound(kind, id)
}

func errUsage(format string, args ...any) error {
	return &apperr.ValidationError{Code: "usage", Message: fmt.Sprintf(format, args...)}
}

// errorHint points at the command most likely to help with err.
func errorHint(err error) string {
	switch {
	case errors.Is(err, apperr.ErrBusy):
		return "retry once the running operation finishes"
	case apperr.IsConflict(err):
		return "dcj row show"
	case apperr.IsNotFound(err):
		return "dcj tasks list"
	case apperr.IsTransport(err):
		return "dcj doctor"
	}
	return ""
}

// tagFlags is the --primary/--secondary/--business trio shared by every
// command that tags something.
type tagFlags struct {
	primary   string
	secondary string
	business  string
}

func (f *tagFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.primary, "primary", "", "Primary tag")
	cmd.Flags().StringVar(&f.secondary, "secondary", "", "Secondary tag")
	cmd.Flags().StringVar(&f.business, "business", "", "Business type")
}

func (f *tagFlags) tags() model.Tags {
	return model.Tags{
		PrimaryTag:   strings.TrimSpace(f.primary),
		SecondaryTag: strings.TrimSpace(f.secondary),
		BusinessType: strings.TrimSpace(f.business),
	}
}

// patch returns pointers only for the flags the user actually set.
func (f *tagFlags) patch(cmd *cobra.Command) (primary, secondary, business *string) {
	if cmd.Flags().Changed("primary") {
		primary = &f.primary
	}
	if cmd.Flags().Changed("secondary") {
		secondary = &f.secondary
	}
	if cmd.Flags().Changed("business") {
		business = &f.business
	}
	return primary, secondary, business
}

func changedString(cmd *cobra.Command, name string, v *string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return v
}

func changedInt(cmd *cobra.Command, name string, v *int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return v
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, errUsage("invalid index %q (want a non-negative integer)", s)
	}
	return n, nil
}
