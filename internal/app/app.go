// Package app wires configuration into a runnable changelog monitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/changelog-watch/internal/api"
	"github.com/JakeFAU/changelog-watch/internal/clock/system"
	"github.com/JakeFAU/changelog-watch/internal/config"
	pgstore "github.com/JakeFAU/changelog-watch/internal/history/postgres"
	"github.com/JakeFAU/changelog-watch/internal/id/uuid"
	"github.com/JakeFAU/changelog-watch/internal/metrics"
	pubsubnotifier "github.com/JakeFAU/changelog-watch/internal/notifier/pubsub"
	"github.com/JakeFAU/changelog-watch/internal/orchestrator"
	"github.com/JakeFAU/changelog-watch/internal/output"
	"github.com/JakeFAU/changelog-watch/internal/policy/ratelimit"
	"github.com/JakeFAU/changelog-watch/internal/retrieval"
	redisstore "github.com/JakeFAU/changelog-watch/internal/seen/redis"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	strategies   []retrieval.Strategy
	orchestrator *orchestrator.Orchestrator
	seen         *redisstore.Store
	pubsub       *pubsubnotifier.Publisher
	storage      *storage.Client
	history      *pgstore.RunStore
}

// Build creates the application's dependencies. outputPath is the file every
// run overwrites.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, outputPath string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, metrics: metrics.New()}
	app.logger.Info("building application dependencies",
		zap.Int("documents", len(cfg.Docs)),
		zap.Strings("strategies", cfg.Retrieval.Strategies),
		zap.String("summarizer", cfg.Summarizer.Provider),
	)

	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure()
		}
	}()

	out, err := output.NewFile(outputPath)
	if err != nil {
		return nil, err
	}

	var limiter *ratelimit.Limiter
	if cfg.Retrieval.DomainQPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Retrieval.DomainQPS,
			DefaultBurst: 1,
			OnDelay:      app.metrics.ObserveRateLimitDelay,
		})
	}
	app.strategies, err = newRegistry(cfg.Retrieval, limiter).Build(cfg.Retrieval.Strategies)
	if err != nil {
		return nil, fmt.Errorf("retrieval strategies: %w", err)
	}
	chain := retrieval.NewChain(app.strategies, app.metrics, logger.Named("retrieval"))

	sum, err := setupSummarizer(ctx, cfg.Summarizer)
	if err != nil {
		return nil, err
	}
	notify, err := setupNotifier(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupSeen(ctx, app); err != nil {
		return nil, err
	}
	archiver, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupHistory(ctx, app); err != nil {
		return nil, err
	}
	clock, err := system.Load(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clock init failed: %w", err)
	}

	deps := orchestrator.Deps{
		Loader:     chain,
		Summarizer: sum,
		Notifier:   notify,
		Output:     out,
		Metrics:    app.metrics,
		Clock:      clock,
		IDs:        uuid.New(),
		Logger:     logger,
	}
	if app.seen != nil {
		deps.Seen = app.seen
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	if app.history != nil {
		deps.History = app.history
	}
	app.orchestrator, err = orchestrator.New(deps, orchestrator.Config{
		NumDays:     cfg.NumDays,
		TrimLen:     cfg.TrimLen,
		Prompt:      cfg.Prompt,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	ok = true
	return app, nil
}

// RunOnce processes every configured document and exports metrics when a
// textfile is configured.
func (a *App) RunOnce(ctx context.Context) (orchestrator.Report, error) {
	report, err := a.orchestrator.Run(ctx, a.cfg.Docs)
	if path := a.cfg.Metrics.Textfile; path != "" {
		if werr := a.metrics.WriteTextfile(path); werr != nil {
			a.logger.Warn("metrics textfile export failed", zap.Error(werr))
		}
	}
	return report, err
}

// Serve exposes the HTTP API and runs on the configured schedule until the
// context is canceled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.metrics.RegisterRuntime()
	runner := orchestrator.NewRunner(ctx, a.RunOnce, a.logger)
	server := api.NewServer(runner, a.cfg.Auth, api.Options{
		Metrics:    a.metrics.Handler(),
		Middleware: []func(http.Handler) http.Handler{a.metrics.Middleware},
		Checks:     a.readinessChecks(),
	}, a.logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	if interval := a.cfg.Schedule.Interval; interval > 0 {
		go a.schedule(ctx, runner, interval)
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	runner.Wait()
	return nil
}

// schedule triggers a run immediately and then on every tick.
func (a *App) schedule(ctx context.Context, runner *orchestrator.Runner, interval time.Duration) {
	a.logger.Info("scheduler started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := runner.Start(); err != nil {
			a.logger.Warn("scheduled run skipped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) readinessChecks() map[string]api.ReadinessCheck {
	checks := map[string]api.ReadinessCheck{}
	if a.seen != nil {
		checks["redis"] = a.seen.Ping
	}
	return checks
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if err := retrieval.CloseAll(a.strategies); err != nil {
		a.logger.Warn("strategy close failed", zap.Error(err))
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.seen != nil {
		if err := a.seen.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.history != nil {
		a.history.Close()
	}
}
