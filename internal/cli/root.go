package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dcj-cli/internal/config"
	"dcj-cli/internal/flow"
	"dcj-cli/internal/format"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/remote/httpapi"
	"dcj-cli/internal/store"
	"dcj-cli/internal/warehouse"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	selFocus     = "focus"
	selWarehouse = "warehouse"
)

type App struct {
	PrettyJSON bool
	Format     string

	cfg config.Config
	log *slog.Logger

	// authority replaces the HTTP client when set (tests, devserver fixtures).
	authority remote.Authority
	cache     *store.Cache
	sess      *flow.Session
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dcj",
		Short:        "dcj flow client (CLI + TUI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  dcj

  # Park an idea in the warehouse, then pull it into the flow
  dcj warehouse add "draft the quarterly plan"
  dcj warehouse extract <id>

  # Operate the edit row of the focus task
  dcj row submit a --text "outline done"
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.setup(cmd)
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		app.teardown(cmd.Context())
		return nil
	}

	pf := cmd.PersistentFlags()
	pf.String("api-url", "", "Task service base URL (config api.url)")
	pf.String("token", "", "Bearer token (config api.token, env DCJ_TOKEN)")
	pf.Duration("timeout", 0, "Per-request timeout (config api.timeout)")
	pf.String("data-dir", "", "Directory of the local view-state cache (config data.dir)")
	pf.String("log-level", "", "debug|info|warn|error (config log.level)")
	pf.StringVar(&app.Format, "format", "", "Output format (json|yaml)")
	pf.BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newWarehouseCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newRowCmd(app))
	cmd.AddCommand(newSpecialCmd(app))
	cmd.AddCommand(newRecordsCmd(app))
	cmd.AddCommand(newKeysCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDoctorCmd(app))
	cmd.AddCommand(newDevserverCmd(app))
	cmd.AddCommand(newTUICmd(app))

	return cmd
}

var flagKeys = map[string]string{
	"api-url":   config.KeyAPIURL,
	"token":     config.KeyAPIToken,
	"timeout":   config.KeyAPITimeout,
	"data-dir":  config.KeyDataDir,
	"log-level": config.KeyLogLevel,
	"format":    config.KeyOutputFormat,
}

func (app *App) setup(cmd *cobra.Command) error {
	v, err := config.New()
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := bindFlags(v, cmd); err != nil {
		return writeErr(cmd, err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg
	app.Format = cfg.OutputFormat
	app.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.Root().PersistentFlags().Lookup(name)
		}
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func (app *App) remote() (remote.Authority, error) {
	if app.authority != nil {
		return app.authority, nil
	}
	c, err := httpapi.New(app.cfg.API.URL, app.cfg.API.Token, app.cfg.API.Timeout,
		httpapi.WithLogger(app.log),
		httpapi.OnUnauthorized(func() {
			app.log.Warn("the task service rejected the token; set api.token or DCJ_TOKEN")
		}),
	)
	if err != nil {
		return nil, err
	}
	app.authority = c
	return c, nil
}

// openCache is best-effort: a broken cache only costs remembered view state.
func (app *App) openCache(ctx context.Context) *store.Cache {
	if app.cache != nil {
		return app.cache
	}
	c, err := store.Open(ctx, app.cfg.DataDir)
	if err != nil {
		app.log.Warn("view-state cache unavailable", "dir", app.cfg.DataDir, "err", err)
		return nil
	}
	app.cache = c
	return c
}

// session loads a fresh session and reapplies the remembered view state.
func (app *App) session(ctx context.Context) (*flow.Session, error) {
	if app.sess != nil {
		return app.sess, nil
	}
	auth, err := app.remote()
	if err != nil {
		return nil, err
	}
	tasks := flow.NewStore(auth, flow.WithPageSize(app.cfg.PageSize), flow.WithLogger(app.log))
	sess := flow.NewSession(tasks, warehouse.NewStore(auth, app.log))
	if err := sess.Load(ctx); err != nil {
		return nil, err
	}
	sess.Resume(ctx, app.loadViewState(ctx, sess))
	app.sess = sess
	return sess, nil
}

func (app *App) loadViewState(ctx context.Context, sess *flow.Session) flow.ViewState {
	var v flow.ViewState
	c := app.openCache(ctx)
	if c == nil {
		return v
	}
	v.FocusTaskID, _ = c.Selection(ctx, selFocus)
	v.SelectedWarehouse, _ = c.Selection(ctx, selWarehouse)
	v.Expanded, _ = c.Expanded(ctx)
	focus := sess.Tasks.FocusTaskID()
	if focus == "" {
		focus = v.FocusTaskID
	} else {
		v.FocusTaskID = focus
	}
	if focus != "" {
		v.Draft, _, _ = c.Draft(ctx, focus)
	}
	return v
}

func (app *App) saveViewState(ctx context.Context) {
	if app.sess == nil {
		return
	}
	c := app.openCache(ctx)
	if c == nil {
		return
	}
	v := app.sess.ViewState()
	steps := []func() error{
		func() error { return c.SaveSelection(ctx, selFocus, v.FocusTaskID) },
		func() error { return c.SaveSelection(ctx, selWarehouse, v.SelectedWarehouse) },
		func() error { return c.SaveExpanded(ctx, v.Expanded) },
		func() error { return c.SaveRecordTail(ctx, app.sess.Tasks.Records.All()) },
	}
	if v.FocusTaskID != "" {
		steps = append(steps, func() error { return c.SaveDraft(ctx, v.FocusTaskID, v.Draft) })
	}
	for _, step := range steps {
		if err := step(); err != nil {
			app.log.Warn("saving view state failed", "err", err)
			return
		}
	}
}

func (app *App) teardown(ctx context.Context) {
	app.saveViewState(ctx)
	if app.cache != nil {
		_ = app.cache.Close()
		app.cache = nil
	}
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

// emit writes the {data, _hints} envelope every command uses.
func emit(cmd *cobra.Command, app *App, data any, hints ...string) error {
	out := map[string]any{"data": data}
	if len(hints) > 0 {
		out["_hints"] = hints
	}
	return writeOut(cmd, app, out)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
