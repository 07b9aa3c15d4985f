package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dcj-cli/internal/devserver"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/remote/memauth"

	"github.com/spf13/cobra"
)

func newDevserverCmd(app *App) *cobra.Command {
	var addr string
	var token string
	var seed bool

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory task service for local development",
		Long: strings.TrimSpace(`
Run an in-memory task service that speaks the same HTTP API as the real one.

State lives in memory and is gone when the process exits. Point a client at it
with --api-url http://<addr>/api/v1.
`),
		Example: strings.TrimSpace(`
# Serve on localhost with a sample warehouse
dcj devserver --addr 127.0.0.1:8787 --seed

# In another terminal
dcj --api-url http://127.0.0.1:8787/api/v1 warehouse tree --all
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				return writeErr(cmd, errUsage("devserver: missing --addr"))
			}

			auth := memauth.New()
			if seed {
				if err := seedAuthority(cmd.Context(), auth); err != nil {
					return writeErr(cmd, err)
				}
			}
			srv := devserver.New(auth, devserver.WithToken(token), devserver.WithLogger(app.log))

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return writeErr(cmd, err)
			}
			actualAddr := ln.Addr().String()
			apiURL := "http://" + actualAddr + devserver.BasePath

			_ = writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"addr":      actualAddr,
					"url":       apiURL,
					"auth":      strings.TrimSpace(token) != "",
					"seeded":    seed,
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
				"_hints": []string{"dcj --api-url " + apiURL + " warehouse tree"},
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "dcj devserver running at %s\n", apiURL)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Serve(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "Bind address (host:port or :port)")
	cmd.Flags().StringVar(&token, "require-token", "", "Require this bearer token on every request")
	cmd.Flags().BoolVar(&seed, "seed", false, "Start with a small sample warehouse")
	return cmd
}

// seedAuthority plants a two-level backlog so a fresh client has something
// to drag around.
func seedAuthority(ctx context.Context, auth *memauth.Authority) error {
	plan := []struct {
		text     string
		tag      string
		children []string
	}{
		{"Quarterly plan", "work", []string{"Collect last quarter's numbers", "Draft goals"}},
		{"Tax return", "home", []string{"Gather receipts"}},
		{"Read the paper on edit-row state machines", "", nil},
	}
	for _, p := range plan {
		parent, err := auth.CreateWarehouseTask(ctx, remote.CreateWarehouseTaskRequest{
			TaskText: p.text,
			Tags:     model.Tags{PrimaryTag: p.tag},
		})
		if err != nil {
			return err
		}
		for _, c := range p.children {
			if _, err := auth.CreateWarehouseTask(ctx, remote.CreateWarehouseTaskRequest{
				TaskText:     c,
				ParentTaskID: &parent.ID,
				Tags:         model.Tags{PrimaryTag: p.tag},
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
