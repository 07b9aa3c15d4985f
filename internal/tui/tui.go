// Package tui is the interactive flow view: the focus task's records and
// edit rows, the special rows and the warehouse panel.
package tui

import (
	"context"
	"errors"
	"log/slog"

	"dcj-cli/internal/flow"

	tea "github.com/charmbracelet/bubbletea"
)

type options struct {
	log *slog.Logger
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, sess *flow.Session, opts ...Option) error {
	o := options{log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	applyThemePreference()
	applyColorProfilePreference()
	applyGlyphPreference()

	m := newAppModel(ctx, sess, o.log)
	_, err := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
