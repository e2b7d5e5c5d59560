package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/formwizard/internal/adapters/archive"
	"github.com/okian/formwizard/internal/adapters/http/api"
	"github.com/okian/formwizard/internal/adapters/http/site"
	"github.com/okian/formwizard/internal/adapters/http/swagger"
	"github.com/okian/formwizard/internal/adapters/mq/natsingest"
	service "github.com/okian/formwizard/internal/app"
	"github.com/okian/formwizard/internal/config"
	"github.com/okian/formwizard/internal/domain/model"
	"github.com/okian/formwizard/pkg/logger"
	"github.com/okian/formwizard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// The logger format comes from config, so report on stderr
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service and its transports and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithStoreCapacity(cfg.StoreCapacity),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithThresholds(cfg.Thresholds()),
	}

	if cfg.ArchivePath != "" {
		arc, err := archive.Open(ctx, cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer func() {
			if err := arc.Close(); err != nil {
				log.Warn(ctx, "archive close failed", logger.Error(err))
			}
		}()
		opts = append(opts, service.WithArchive(arc, cfg.ArchiveReplay))
		log.Info(ctx, "event archive enabled",
			logger.String("path", cfg.ArchivePath),
			logger.Bool("replay", cfg.ArchiveReplay),
		)
	}

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if cfg.NATSURL != "" {
		sub, err := natsingest.NewSubscriber(cfg.NATSURL, cfg.NATSSubject, ingestHandler(svc),
			natsingest.WithQueueGroup(cfg.NATSQueueGroup),
			natsingest.WithLogger(log.Named("nats")),
		)
		if err != nil {
			return err
		}
		if err := sub.Start(ctx); err != nil {
			return err
		}
		// Close drains in-flight messages before the service stops.
		defer func() {
			if err := sub.Close(); err != nil {
				log.Warn(ctx, "nats close failed", logger.Error(err))
			}
		}()
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newHandler registers every route and applies CORS and panic recovery.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	apiServer := api.NewServer(svc,
		api.WithIngestRateLimit(cfg.IngestRateLimit, cfg.IngestBurst),
		api.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		api.WithLogger(log.Named("api")),
	)
	apiServer.Register(ctx, mux)
	return apiServer.Handler(mux)
}

// ingestHandler adapts Service.Ingest to the NATS subscriber. Duplicates are
// acknowledged like accepted events.
func ingestHandler(svc *service.Service) natsingest.Handler {
	return func(ctx context.Context, ev model.Event) error {
		_, err := svc.Ingest(ctx, ev)
		return err
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes gauges that are only sampled, not pushed.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if storedEvents, ok := stats["storedEvents"].(int); ok {
		metrics.UpdateStoreSize(storedEvents)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
