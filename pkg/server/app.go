package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/usecase"
	"SignalHub/pkg/cache"
	"SignalHub/pkg/config"
	xhttp "SignalHub/pkg/http"
	applogger "SignalHub/pkg/logger"
)

// App encapsulates the application lifecycle: the coordinator competing for
// leadership in the background and the HTTP gateway serving every replica.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	coordinator *usecase.Coordinator
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	redis       *cache.RedisCache
	sink        drepo.SnapshotSink
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	coordinator *usecase.Coordinator,
	handler xhttp.Handler,
	redis *cache.RedisCache,
	sink drepo.SnapshotSink,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		coordinator: coordinator,
		httpHandler: handler,
		redis:       redis,
		sink:        sink,
	}
}

// Run starts the application and blocks until interrupted. Every replica
// serves HTTP; at most one holds the lease and produces.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		a.coordinator.Run(ctx)
	}()
	a.log.Info("coordinator started",
		applogger.String("lease_key", a.cfg.Leader.Key),
		applogger.Duration("ttl", a.cfg.Leader.TTL))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown(coordDone)
}

// shutdown stops production first so the lease is released before the
// process dies, then drains HTTP and closes infrastructure clients.
func (a *App) shutdown(coordDone <-chan struct{}) error {
	<-coordDone
	a.log.Info("coordinator stopped, lease released")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("snapshot sink close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
