package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/config"
	"github.com/zero-day-ai/crucible/internal/database"
	"github.com/zero-day-ai/crucible/internal/llm"
	"github.com/zero-day-ai/crucible/internal/llm/providers"
	"github.com/zero-day-ai/crucible/internal/memory"
	"github.com/zero-day-ai/crucible/internal/memory/embedder"
	"github.com/zero-day-ai/crucible/internal/observability"
	"github.com/zero-day-ai/crucible/internal/score"
	"github.com/zero-day-ai/crucible/internal/target"
	"github.com/zero-day-ai/crucible/internal/transform"
)

// app holds everything a command builds from the configuration. Targets
// are built on first use and shared, so a chat target that is both the
// attacker and a scorer keeps one client.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	in  io.Reader
	out io.Writer
	err io.Writer

	db        *database.DB
	store     *memory.SQLiteStore
	providers *llm.Registry
	health    *observability.HealthMonitor

	tracing    *observability.Tracing
	metrics    *observability.Metrics
	metricsSrv *http.Server
	logCloser  io.Closer

	mu      sync.Mutex
	targets map[string]target.Target
}

type appOptions struct {
	// models builds the configured LLM providers and embedder. Commands
	// that only read memory skip them so missing credentials do not matter.
	models bool
}

func newApp(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts appOptions) (a *app, err error) {
	a = &app{
		cfg:       cfg,
		in:        cmd.InOrStdin(),
		out:       cmd.OutOrStdout(),
		err:       cmd.ErrOrStderr(),
		providers: llm.NewRegistry(),
		targets:   make(map[string]target.Target),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.logger, a.logCloser, err = observability.NewLogger(cfg.Logging, a.err)
	if err != nil {
		return a, internal.WrapError(internal.ExitConfigError, "failed to set up logging", err)
	}
	slog.SetDefault(a.logger)

	a.tracing, err = observability.InitTracing(ctx, cfg.Tracing, a.err)
	if err != nil {
		return a, err
	}
	a.metrics, err = observability.InitMetrics(ctx, cfg.Metrics)
	if err != nil {
		return a, err
	}
	if cfg.Metrics.Enabled && a.metrics.Handler != nil {
		a.serveMetrics(cfg.Metrics.Port)
	}
	a.health = observability.NewHealthMonitor(a.logger, a.metrics.Meter("crucible/health"))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return a, internal.WrapError(internal.ExitError, "failed to create data directory", err)
	}
	a.db, err = database.Open(cfg.Database.Path,
		database.WithBusyTimeout(cfg.Database.BusyTimeout),
		database.WithMaxConns(cfg.Database.MaxConnections),
	)
	if err != nil {
		return a, err
	}
	if err := a.db.InitSchema(ctx); err != nil {
		return a, err
	}
	a.health.Register("database", a.db)

	storeOpts := []memory.StoreOption{
		memory.WithLogger(a.logger),
		memory.WithTracer(a.tracer("crucible/memory")),
	}

	if opts.models {
		if cfg.Embedding != nil {
			emb, err := embedder.CreateEmbedder(*cfg.Embedding)
			if err != nil {
				return a, err
			}
			storeOpts = append(storeOpts, memory.WithEmbedder(emb))
			a.health.Register("embedder", emb)
		}

		names := make([]string, 0, len(cfg.LLM.Providers))
		for name := range cfg.LLM.Providers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			provider, err := providers.NewProvider(cfg.LLM.Providers[name])
			if err != nil {
				return a, fmt.Errorf("provider %s: %w", name, err)
			}
			if err := a.providers.Register(name, provider); err != nil {
				return a, err
			}
		}
		if len(names) > 0 {
			a.health.Register("llm", a.providers)
		}
	}

	a.store = memory.NewSQLiteStore(a.db, storeOpts...)
	return a, nil
}

func (a *app) serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler)
	a.metricsSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint stopped", "port", port, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.metricsSrv.Addr)
}

func (a *app) tracer(name string) trace.Tracer {
	return a.tracing.Tracer(name)
}

// target returns the named target, building it on first use.
func (a *app) target(name string) (target.Target, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.targets[name]; ok {
		return t, nil
	}
	spec, ok := a.cfg.Targets[name]
	if !ok {
		return nil, internal.NewCLIError(internal.ExitConfigError, fmt.Sprintf("unknown target %q", name))
	}

	t, err := target.Build(spec, target.Deps{
		Providers: a.providers,
		History:   a.store.GetConversation,
		Output:    a.out,
		Logger:    a.logger.With("target", name),
	})
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", name, err)
	}
	a.targets[name] = t
	if checker, ok := t.(observability.HealthChecker); ok {
		a.health.Register("target."+name, checker)
	}
	return t, nil
}

// scorer builds the named scorer on top of its chat target.
func (a *app) scorer(ctx context.Context, name string) (score.Scorer, error) {
	sc, ok := a.cfg.Scorers[name]
	if !ok {
		return nil, internal.NewCLIError(internal.ExitConfigError, fmt.Sprintf("unknown scorer %q", name))
	}
	chat, err := a.target(sc.Target)
	if err != nil {
		return nil, err
	}
	s, err := score.Build(ctx, sc.Spec, chat,
		score.WithLogger(a.logger.With("scorer", name)),
		score.WithTracer(a.tracer("crucible/score")),
		score.WithMeter(a.metrics.Meter("crucible/score")),
	)
	if err != nil {
		return nil, fmt.Errorf("scorer %s: %w", name, err)
	}
	return s, nil
}

// pipeline builds the configured transformers. The human gate reads from
// the command's stdin and is only available when interactive is set.
func (a *app) pipeline(interactive bool) (*transform.Pipeline, error) {
	deps := transform.Deps{
		Retry:  a.cfg.Attack.Retry,
		Logger: a.logger,
	}
	if interactive {
		deps.Operator = transform.NewConsoleOperator(a.in, a.err, globalFlags.NoColor || !internal.IsTerminal(a.err))
	}
	if a.cfg.LLM.Transformer != "" {
		provider, err := a.providers.Get(a.cfg.LLM.Transformer)
		if err != nil {
			return nil, err
		}
		deps.Provider = provider
	}

	if !interactive {
		for _, spec := range a.cfg.Transformers {
			if strings.EqualFold(spec.Type, transform.TypeHumanGate) {
				return nil, internal.NewCLIError(internal.ExitConfigError,
					"the human_gate transformer needs an interactive terminal (or --interactive)")
			}
		}
	}

	ts, err := transform.BuildAll(a.cfg.Transformers, deps)
	if err != nil {
		return nil, err
	}
	return transform.NewPipeline(ts,
		transform.WithLogger(a.logger),
		transform.WithTracer(a.tracer("crucible/transform")),
		transform.WithMeter(a.metrics.Meter("crucible/transform")),
	), nil
}

// Close releases targets, the database and the telemetry exporters.
func (a *app) Close(ctx context.Context) error {
	var errs []error

	a.mu.Lock()
	for name, t := range a.targets {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close target %s: %w", name, err))
		}
	}
	a.targets = map[string]target.Target{}
	a.mu.Unlock()

	if a.db != nil {
		errs = append(errs, a.db.Close())
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if a.metricsSrv != nil {
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
	}
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
