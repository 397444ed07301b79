package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/sqlgate/internal/server"
	"github.com/koustreak/sqlgate/internal/tools"
)

func newServeCommand(r *runner) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				r.cfg.Server.Addr = addr
			}
			return r.serve(cmd)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address. (Env: SQLGATE_ADDR)")
	return cmd
}

// serve runs the HTTP server until SIGINT or SIGTERM, then shuts the server
// down before the registry.
func (r *runner) serve(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := r.build(ctx, true)
	if err != nil {
		return err
	}

	a.registry.Initialize(ctx)

	srv := server.New(a.gateway, server.Options{
		Addr:            r.cfg.Server.Addr,
		ShutdownTimeout: r.cfg.Server.ShutdownTimeout,
		Logger:          r.log,
	})
	runErr := srv.Run(ctx)

	if err := a.close(); err != nil {
		r.log.ErrorWith("shutdown failed", err, nil)
		if runErr == nil {
			runErr = err
		}
	}
	r.log.Info("sqlgate stopped")
	return runErr
}

func newCheckCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect to every configured database and report its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.callTool(cmd, tools.ToolCheckConnections, nil)
		},
	}
}

func newQueryCommand(r *runner) *cobra.Command {
	var (
		db     string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run one statement under the safety policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]any{"query": args[0]}
			if db != "" {
				toolArgs["database_name"] = db
			}
			if len(params) > 0 {
				list := make([]any, len(params))
				for i, p := range params {
					list[i] = p
				}
				toolArgs["params"] = list
			}
			return r.callTool(cmd, tools.ToolExecuteQuery, toolArgs)
		},
	}
	cmd.Flags().StringVarP(&db, "database", "d", "", "Logical database name. Defaults to the default database.")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Positional parameter; repeat for each placeholder.")
	return cmd
}

func newToolsCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()
			return printJSON(cmd.OutOrStdout(), a.gateway.Catalog())
		},
	}
}

// callTool runs a single tool and prints its response.
func (r *runner) callTool(cmd *cobra.Command, name string, args map[string]any) error {
	a, err := r.build(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.gateway.Call(cmd.Context(), name, args)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
