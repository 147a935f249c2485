package cmd

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/practicedesk/internal/audit"
	"github.com/felixgeelhaar/practicedesk/internal/auth"
	"github.com/felixgeelhaar/practicedesk/internal/config"
	"github.com/felixgeelhaar/practicedesk/internal/errors"
	"github.com/felixgeelhaar/practicedesk/internal/log"
	"github.com/felixgeelhaar/practicedesk/internal/metrics"
	"github.com/felixgeelhaar/practicedesk/internal/platform"
	"github.com/felixgeelhaar/practicedesk/internal/refresh"
	"github.com/felixgeelhaar/practicedesk/internal/session"
	"github.com/felixgeelhaar/practicedesk/internal/telemetry"
	"github.com/felixgeelhaar/practicedesk/internal/version"
)

// app is the component graph shared by every command that talks to the
// platform.
type app struct {
	cfg         *config.Config
	logger      *log.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	store       session.Store
	signal      *session.Signal
	client      *platform.Client
	coordinator *refresh.Coordinator
	controller  *auth.Controller
	audit       *audit.Logger
	out         *printer
	in          io.Reader

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	out, err := newPrinter(cmd.OutOrStdout(), outputFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, ConfigLoadError(cfgFile, err)
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := log.New(log.Config{
		Level:       log.ParseLevel(cfg.Log.Level),
		Format:      log.ParseFormat(cfg.Log.Format),
		Output:      log.NewOutput(cmd.ErrOrStderr()),
		ServiceName: "practicedesk",
	})
	log.SetDefaultLogger(logger)

	shutdownTracing, err := telemetry.InitProvider(ctx, telemetry.Config{
		ServiceName:    "practicedesk",
		ServiceVersion: version.Version,
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	store, err := session.Open(ctx, session.Options{
		Backend:     session.Backend(cfg.Session.Backend),
		BaseURL:     cfg.API.BaseURL,
		File:        cfg.Session.File,
		Passphrase:  cfg.Session.Passphrase,
		RedisURL:    cfg.Session.RedisURL,
		RedisPrefix: cfg.Session.RedisPrefix,
		RedisTTL:    cfg.Session.RedisTTL,
	})
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	registry, m := metrics.NewRegistry()
	signal := session.NewSignal()

	client := platform.NewClient(cfg.API.BaseURL, store,
		platform.WithTimeout(cfg.API.Timeout),
		platform.WithLogger(logger),
		platform.WithMetrics(m),
	)
	coordinator := refresh.NewCoordinator(store, client, signal,
		refresh.WithLogger(logger),
		refresh.WithMetrics(m),
	)
	client.SetRefresher(coordinator)

	controller := auth.New(client, coordinator, store, signal,
		auth.WithLogger(logger),
		auth.WithMetrics(m),
	)

	var trail *audit.Logger
	if dir := cfg.Audit.Dir; dir != "" {
		source := "cli"
		if cmd.Name() == "serve" {
			source = "proxy"
		}
		if trail, err = audit.NewLogger(dir, source); err != nil {
			controller.Close()
			_ = session.Close(store)
			_ = shutdownTracing(ctx)
			return nil, err
		}
		controller.Subscribe(trail.Observer(controller.State(), logger))
	}

	logger.Debug("session stack ready",
		"api", cfg.API.BaseURL,
		"backend", cfg.Session.Backend,
	)

	return &app{
		cfg:             cfg,
		logger:          logger,
		registry:        registry,
		metrics:         m,
		store:           store,
		signal:          signal,
		client:          client,
		coordinator:     coordinator,
		controller:      controller,
		audit:           trail,
		out:             out,
		in:              cmd.InOrStdin(),
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases the store and flushes spans and logs.
func (a *app) Close() {
	a.controller.Close()

	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.LogError("failed to close audit log", err)
		}
	}

	if err := session.Close(a.store); err != nil {
		a.logger.LogError("failed to close session store", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.LogError("failed to flush traces", err)
	}

	_ = a.logger.Sync()
}

// requireSession restores the stored session and fails unless it is
// authenticated.
func (a *app) requireSession(ctx context.Context) error {
	if err := a.controller.Start(ctx); err != nil {
		return err
	}
	if !a.controller.State().IsAuthenticated {
		return errNotSignedIn()
	}
	return nil
}

// restoreForAudit loads the stored session before a sign-in or sign-out so
// the audit trail sees the transition from the real prior state.
func (a *app) restoreForAudit(ctx context.Context) {
	if a.audit == nil {
		return
	}
	if err := a.controller.Start(ctx); err != nil {
		a.logger.WithError(err).Debug("stored session not restored")
	}
}

func errNotSignedIn() error {
	return errors.New(errors.ErrCodeNoRefreshToken, "not signed in").
		WithSuggestion("Run 'practicedesk auth login' to sign in")
}

type runFunc func(ctx context.Context, a *app, args []string) error

// withApp builds the component graph around run, traces the command and
// counts its failure by error code.
func withApp(run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, span := telemetry.StartCommandSpan(ctx, cmd.CommandPath())
		defer span.End()

		if err := run(ctx, a, args); err != nil {
			telemetry.RecordError(span, err)
			a.metrics.Errors.WithLabelValues(errorCode(err), "cli").Inc()
			a.logger.WithError(err).Debug("command failed", "command", cmd.CommandPath())
			return err
		}

		telemetry.RecordSuccess(span)
		return nil
	}
}

func errorCode(err error) string {
	if de, ok := errors.As(err); ok {
		return string(de.Code)
	}
	return "unknown"
}
