package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/scheduler"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/usecase"
	pkgch "CoinPulse/pkg/clickhouse"
	"CoinPulse/pkg/config"
	xhttp "CoinPulse/pkg/http"
	pkgkafka "CoinPulse/pkg/kafka"
	applogger "CoinPulse/pkg/logger"
	pkgqueue "CoinPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// Handlers groups several route registrars behind the single xhttp.Handler
// the server accepts.
type Handlers []xhttp.Handler

// RegisterRoutes registers every grouped handler on the Echo instance.
func (hs Handlers) RegisterRoutes(e *echo.Echo) {
	for _, h := range hs {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	store    domrepo.SampleStore
	cache    *svccache.Gateway
	pipeline *usecase.IngestionPipeline

	// optional components, nil when disabled in config
	collector *usecase.StreamCollector
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	queue     *pkgqueue.RedisQueue
	publisher domrepo.Publisher

	sched      *scheduler.Scheduler
	chClient   *pkgch.Client
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	store domrepo.SampleStore,
	cache *svccache.Gateway,
	pipeline *usecase.IngestionPipeline,
	collector *usecase.StreamCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	queue *pkgqueue.RedisQueue,
	sched *scheduler.Scheduler,
	publisher domrepo.Publisher,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:       cfg,
		logger:    l,
		store:     store,
		cache:     cache,
		pipeline:  pipeline,
		collector: collector,
		consumer:  consumer,
		kh:        kh,
		queue:     queue,
		sched:     sched,
		publisher: publisher,
		chClient:  chClient,
		handler:   handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger

	// Schema first; nothing downstream works without the store.
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	err := a.store.Init(initCtx)
	initCancel()
	if err != nil {
		l.Error("store init failed", applogger.Error(err))
		return err
	}

	// Warm the store and cache so the API has data before the first tick.
	go func() {
		if ok := a.pipeline.RunOnce(ctx); !ok {
			l.Warn("initial collection failed, scheduler will retry")
		}
	}()

	// Start backfill queue workers
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			l.Error("backfill queue start failed", applogger.Error(err))
		} else {
			a.queue.StartRetryProcessor()
		}
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start stream collector; polling covers the feed when it cannot connect
	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("stream collector start failed", applogger.Error(err))
		} else {
			l.Info("stream collector started", applogger.Strings("symbols", a.cfg.Source.Symbols))
		}
	}

	a.sched.Start(ctx)

	a.httpServer = xhttp.NewServer(a.handler, l,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout),
		xhttp.WithRequestMetrics(time.Second),
	)
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services, producers before sinks.
func (a *App) shutdown() error {
	l := a.logger
	l.Info("shutting down...")

	// Stop dispatching jobs and wait for in-flight runs
	schedCtx, schedCancel := context.WithTimeout(context.Background(), a.cfg.Scheduler.StopTimeout)
	if err := a.sched.Stop(schedCtx); err != nil {
		l.Warn("scheduler stop error", applogger.Error(err))
	}
	schedCancel()

	// Stop collector (pipeline + stream)
	if a.collector != nil {
		if err := a.collector.Shutdown(context.Background()); err != nil {
			l.Warn("stream collector stop error", applogger.Error(err))
		}
	}

	// Stop consumer
	if a.consumer != nil {
		consumerCtx, consumerCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(consumerCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
		consumerCancel()
	}

	// Stop backfill queue workers
	if a.queue != nil {
		queueCtx, queueCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		if err := a.queue.Stop(queueCtx); err != nil {
			l.Warn("backfill queue stop error", applogger.Error(err))
		}
		queueCancel()
	}

	// Shutdown HTTP server
	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		if err := a.httpServer.Stop(httpCtx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
		httpCancel()
	}

	// Flush mirrored logs while the producer is still alive, then close
	// infrastructure clients
	l.RemoveCollector()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("kafka publisher close error", applogger.Error(err))
		}
	}

	if err := a.cache.Close(); err != nil {
		l.Warn("cache close error", applogger.Error(err))
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
