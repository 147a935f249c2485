package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/practicedesk/internal/health"
	"github.com/felixgeelhaar/practicedesk/internal/server"
	"github.com/felixgeelhaar/practicedesk/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local session proxy",
	Long: `Run a local HTTP proxy that holds the session and relays requests to the
platform, refreshing the access token as needed.

Endpoints:
  GET  /healthz               liveness with the session phase
  GET  /health/live           liveness probe
  GET  /health/ready          readiness probe (session store and platform API)
  GET  /metrics               Prometheus metrics
  GET  /session               current session state
  POST /session/login         sign in ({"email", "password"})
  POST /session/logout        sign out
  POST /session/refresh       mint a new access token
  POST /session/profile       re-fetch the profile
  *    /api/...               forwarded to the platform API

Examples:
  practicedesk serve
  practicedesk serve --address 127.0.0.1:9000`,
	RunE: withApp(runServe),
}

var serveAddress string

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (overrides server.address)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, a *app, _ []string) error {
	addr := a.cfg.Server.Address
	if serveAddress != "" {
		addr = serveAddress
	}

	if err := a.controller.Start(ctx); err != nil {
		a.logger.WithError(err).Warn("session not restored at startup")
	}

	hm := health.NewManager(version.Version)
	hm.AddChecker(health.NewStoreChecker(a.store))
	hm.AddChecker(health.NewUpstreamChecker(a.cfg.API.BaseURL, &http.Client{Timeout: 5 * time.Second}))

	srv := server.New(server.Config{
		Address:         addr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Controller: a.controller,
		Client:     a.client,
		Health:     hm,
		Gatherer:   a.registry,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})

	if a.out.format == formatText {
		if _, err := fmt.Fprintln(a.out.w, a.out.styles.Muted.Render(fmt.Sprintf("Session proxy listening on http://%s (Ctrl+C to stop)", addr))); err != nil {
			return err
		}
	}
	return srv.Run(ctx)
}
