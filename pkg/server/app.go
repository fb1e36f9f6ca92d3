package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	icache "FinResolve/internal/service/cache"
	"FinResolve/pkg/config"
	xhttp "FinResolve/pkg/http"
	pkgkafka "FinResolve/pkg/kafka"
	applogger "FinResolve/pkg/logger"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	caches     *icache.Manager
	consumer   *pkgkafka.Consumer
	closers    []closer
}

// New creates a new App. consumer may be nil when job consumption is off.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	caches *icache.Manager,
	consumer *pkgkafka.Consumer,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		caches:     caches,
		consumer:   consumer,
	}
}

// AddCloser registers infrastructure to release after every service has
// stopped. Closers run in reverse registration order.
func (a *App) AddCloser(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, closer{name: name, fn: fn})
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done, then
// shuts everything down.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.close()
		return fmt.Errorf("start http server: %w", err)
	}

	bg, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.caches.RunJanitor(bg, a.cfg.Cache.JanitorInterval)
	}()

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			cancel()
			wg.Wait()
			return errors.Join(fmt.Errorf("start kafka consumer: %w", err), a.shutdown())
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Jobs.Topic))
	}

	a.log.Info("finresolve started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	cancel()
	wg.Wait()
	return a.shutdown()
}

// shutdown stops the HTTP server and the consumer within the shutdown
// timeout, flushes the log digest and closes infrastructure clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	// the digest publishes through the producer, which is closed below
	a.log.DetachDigest()

	errs = append(errs, a.close())
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
