package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/filesense/internal/httpapi"
	"github.com/dshills/filesense/internal/mcp"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the catalog to AI assistants over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.StartMaintenance(); err != nil {
			return err
		}

		err = mcp.NewServer(a).Serve(ctx)
		if ctx.Err() != nil {
			logger.Info().Msg("shutting down")
			return nil
		}
		return err
	},
}

var (
	httpHost string
	httpPort int
)

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Serve the JSON HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if httpHost != "" {
			cfg.Server.Host = httpHost
		}
		if httpPort != 0 {
			cfg.Server.Port = httpPort
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.StartMaintenance(); err != nil {
			return err
		}
		return httpapi.NewServer(a, cfg.Server.Addr()).ListenAndServe(ctx)
	},
}

func init() {
	serveHTTPCmd.Flags().StringVar(&httpHost, "host", "", "listen host (overrides config)")
	serveHTTPCmd.Flags().IntVarP(&httpPort, "port", "p", 0, "listen port (overrides config)")
}
