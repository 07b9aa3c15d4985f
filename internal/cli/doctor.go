package cli

import (
	"errors"
	"time"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/store"

	"github.com/spf13/cobra"
)

var errDoctorIssuesFound = errors.New("doctor: issues found")

type doctorIssue struct {
	Check   string `json:"check" yaml:"check"`
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

type apiCheck struct {
	URL           string `json:"url" yaml:"url"`
	Authenticated bool   `json:"authenticated" yaml:"authenticated"`
	Reachable     bool   `json:"reachable" yaml:"reachable"`
	Tasks         int    `json:"tasks" yaml:"tasks"`
	LatencyMS     int64  `json:"latencyMs" yaml:"latencyMs"`
}

type doctorReport struct {
	ConfigFile string        `json:"configFile" yaml:"configFile"`
	API        apiCheck      `json:"api" yaml:"api"`
	Cache      *store.Report `json:"cache,omitempty" yaml:"cache,omitempty"`
	Issues     []doctorIssue `json:"issues" yaml:"issues"`
}

func (r doctorReport) HasErrors() bool { return len(r.Issues) > 0 }

func newDoctorCmd(app *App) *cobra.Command {
	var fail bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, the local cache and the task service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			report := doctorReport{
				ConfigFile: app.cfg.File,
				API: apiCheck{
					URL:           app.cfg.API.URL,
					Authenticated: app.cfg.API.Token != "",
				},
				Issues: []doctorIssue{},
			}

			if c := app.openCache(ctx); c == nil {
				report.Issues = append(report.Issues, doctorIssue{Check: "cache", Kind: "unavailable", Message: "cannot open the cache in " + app.cfg.DataDir})
			} else if r, err := c.Check(ctx); err != nil {
				report.Issues = append(report.Issues, doctorIssue{Check: "cache", Kind: apperr.Kind(err), Message: err.Error()})
			} else {
				report.Cache = &r
				if r.Integrity != "ok" {
					report.Issues = append(report.Issues, doctorIssue{Check: "cache", Kind: "integrity", Message: r.Integrity})
				}
			}

			auth, err := app.remote()
			if err != nil {
				report.Issues = append(report.Issues, doctorIssue{Check: "api", Kind: apperr.Kind(err), Message: err.Error()})
			} else {
				start := time.Now()
				page, err := auth.ListTasks(ctx, remote.TaskQuery{Limit: 1})
				report.API.LatencyMS = time.Since(start).Milliseconds()
				if err != nil {
					report.Issues = append(report.Issues, doctorIssue{Check: "api", Kind: apperr.Kind(err), Message: err.Error()})
				} else {
					report.API.Reachable = true
					report.API.Tasks = page.Total
				}
			}

			meta := map[string]any{
				"issues":    len(report.Issues),
				"hasErrors": report.HasErrors(),
			}
			hints := []string{"dcj config show"}
			if err := writeOut(cmd, app, map[string]any{
				"data":   report,
				"meta":   meta,
				"_hints": hints,
			}); err != nil {
				return err
			}

			if fail && report.HasErrors() {
				return errDoctorIssuesFound
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Exit with non-zero status if issues are found")
	return cmd
}
