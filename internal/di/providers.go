package di

import (
	"context"
	"fmt"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/handler/api"
	mid "CoinPulse/internal/middleware"
	internalrepo "CoinPulse/internal/repository"
	"CoinPulse/internal/scheduler"
	svccache "CoinPulse/internal/service/cache"
	"CoinPulse/internal/service/marketdata"
	"CoinPulse/internal/service/quality"
	"CoinPulse/internal/service/ratelimit"
	"CoinPulse/internal/service/stream"
	"CoinPulse/internal/services/analytics"
	"CoinPulse/internal/usecase"
	pkgcache "CoinPulse/pkg/cache"
	pkgch "CoinPulse/pkg/clickhouse"
	"CoinPulse/pkg/config"
	xhttp "CoinPulse/pkg/http"
	pkgkafka "CoinPulse/pkg/kafka"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/metrics"
	pkgqueue "CoinPulse/pkg/queue"
	"CoinPulse/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client. Schema is owned by
// the store's Init, not the client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideMarketStore creates the ClickHouse sample store.
func ProvideMarketStore(chClient *pkgch.Client, cfg *config.Config, l *logger.Logger) repository.SampleStore {
	return internalrepo.NewMarketStore(chClient, cfg.ClickHouse.Database, l)
}

// ProvideCacheBackend builds the configured cache backend. A redis backend
// that cannot be reached at boot yields nil, which the gateway treats as
// permanently degraded; the process still serves from the store.
func ProvideCacheBackend(cfg *config.Config, l *logger.Logger) pkgcache.Service {
	switch cfg.Cache.Backend {
	case "memory":
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxEntries),
		)
	case "layered":
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisAddr(cfg.Redis.Addr),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
			pkgcache.WithRedisPool(cfg.Redis.PoolSize, 5, 0),
			pkgcache.WithRedisPrefix(cfg.Redis.KeyPrefix),
		)
		if err != nil {
			l.Warn("redis unavailable for layered cache", logger.Error(models.ErrCacheUnavailable), logger.String("cause", err.Error()))
			return nil
		}
		return pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MemoryMaxEntries),
			pkgcache.WithLayeredL1TTL(cfg.Cache.L1TTL),
		)
	default: // redis
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisAddr(cfg.Redis.Addr),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
			pkgcache.WithRedisPool(cfg.Redis.PoolSize, 5, 0),
			pkgcache.WithRedisPrefix(cfg.Redis.KeyPrefix),
		)
		if err != nil {
			l.Warn("redis cache unavailable", logger.Error(models.ErrCacheUnavailable), logger.String("cause", err.Error()))
			return nil
		}
		return rc
	}
}

// ProvideCacheGateway creates the typed cache-aside gateway.
func ProvideCacheGateway(svc pkgcache.Service, cfg *config.Config, m repository.Metrics, l *logger.Logger) *svccache.Gateway {
	return svccache.NewGateway(svc, svccache.Config{
		Backend:       cfg.Cache.Backend,
		LatestTTL:     cfg.Cache.LatestTTL,
		SymbolTTL:     cfg.Cache.SymbolTTL,
		ChartTTL:      cfg.Cache.ChartTTL,
		ReportTTL:     cfg.Cache.ReportTTL,
		ProbeCooldown: cfg.Cache.ProbeCooldown,
	}, m, l)
}

// ProvideQualityGate creates the sample admission gate.
func ProvideQualityGate(cfg *config.Config, m repository.Metrics, l *logger.Logger) *quality.Gate {
	return quality.NewGate(cfg.Quality.Threshold, cfg.Quality.RejectMultiple, m, l)
}

// ProvideMarketSource creates the upstream index API client.
func ProvideMarketSource(cfg *config.Config, l *logger.Logger) repository.MarketSource {
	return marketdata.NewClient(marketdata.Config{
		BaseURL:      cfg.Source.BaseURL,
		APIKey:       cfg.Source.APIKey,
		Quote:        cfg.Source.QuoteCurrency,
		Symbols:      cfg.Source.Symbols,
		Timeout:      cfg.Source.Timeout,
		HistoryLimit: cfg.Source.HistoryLimit,
		RateCapacity: cfg.Source.RateLimit.Capacity,
		RateRefill:   cfg.Source.RateLimit.RefillPerSec,
	}, ratelimit.New(), l)
}

// ProvideMarketStream creates the trade-feed WebSocket stream, nil when
// the push source is disabled.
func ProvideMarketStream(cfg *config.Config, l *logger.Logger) repository.MarketStream {
	if !cfg.Stream.Enabled {
		return nil
	}
	return stream.New(stream.Config{
		URL:            cfg.Stream.URL,
		APIKey:         cfg.Stream.APIKey,
		Symbols:        cfg.Source.Symbols,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		PingInterval:   cfg.Stream.PingInterval,
	}, l)
}

// ProvideKafkaProducer creates a Kafka producer, nil when kafka is disabled.
// When a log topic is configured the logger starts mirroring warn and error
// lines through this producer.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Kafka.LogTopic != "" {
		l.AddCollector(&logger.CollectionConfig{
			Topic:     cfg.Kafka.LogTopic,
			Publisher: producer,
		})
	}
	return producer, nil
}

// ProvidePublisher creates the sample publisher over the Kafka producer.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewSamplePublisher(producer, cfg.Kafka.Topic)
}

// ProvideIngestionPipeline creates the shared ingestion use case.
func ProvideIngestionPipeline(
	source repository.MarketSource,
	store repository.SampleStore,
	gate *quality.Gate,
	cache *svccache.Gateway,
	publisher repository.Publisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.IngestionPipeline {
	return usecase.NewIngestionPipeline(source, store, gate, cache, publisher, m, l)
}

// ProvideStreamCollector creates the push-source collector, nil when the
// stream is disabled. Polling remains the only sample source then.
func ProvideStreamCollector(
	ms repository.MarketStream,
	pipeline *usecase.IngestionPipeline,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.StreamCollector {
	if ms == nil {
		return nil
	}
	pipe := mid.NewStreamPipeline(pipeline, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewStreamCollector(ms, pipe, m, l)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, nil
// when consumption is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consume {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaSamplesHandler registers the handler for the samples topic.
func ProvideKafkaSamplesHandler(cfg *config.Config, pipeline *usecase.IngestionPipeline, m repository.Metrics, l *logger.Logger) pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consume {
		return nil
	}
	return usecase.NewKafkaSamplesHandler(cfg.Kafka.Topic, pipeline, m, l)
}

// ProvideBackfillQueue creates the Redis-backed backfill queue with its job
// registered, nil when the queue is disabled.
func ProvideBackfillQueue(
	cfg *config.Config,
	source repository.MarketSource,
	store repository.SampleStore,
	cache *svccache.Gateway,
	l *logger.Logger,
) *pkgqueue.RedisQueue {
	if !cfg.Queue.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	q := pkgqueue.NewRedisQueue(l, &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, pkgqueue.ModeProducerConsumer,
		pkgqueue.WithKeyPrefix(cfg.Redis.KeyPrefix+":queue"),
	)
	q.RegisterJob(usecase.NewBackfillJob(source, store, cache, l))
	return q
}

// ProvideFreshnessRecalculator creates the change-window recalculator.
func ProvideFreshnessRecalculator(store repository.SampleStore, cfg *config.Config, l *logger.Logger) *usecase.FreshnessRecalculator {
	return usecase.NewFreshnessRecalculator(store, cfg.Freshness.ChangeWindow, l)
}

// ProvidePricesUseCase creates the latest-price read path.
func ProvidePricesUseCase(store repository.SampleStore, cache *svccache.Gateway, recalc *usecase.FreshnessRecalculator, l *logger.Logger) *usecase.PricesUseCase {
	return usecase.NewPricesUseCase(store, cache, recalc, l)
}

// ProvideChartsUseCase creates the chart read path.
func ProvideChartsUseCase(store repository.SampleStore, cache *svccache.Gateway, cfg *config.Config, l *logger.Logger) *usecase.ChartsUseCase {
	return usecase.NewChartsUseCase(store, cache,
		cfg.Chart.DefaultLimit,
		cfg.Chart.MaxPoints,
		cfg.Chart.VolatilityWindow,
		l,
	)
}

// ProvideQualityMonitor creates the per-symbol quality monitor.
func ProvideQualityMonitor(store repository.SampleStore, gate *quality.Gate, l *logger.Logger) *analytics.Monitor {
	return analytics.NewMonitor(store, gate, l)
}

// ProvideReportsUseCase creates the quality report read path.
func ProvideReportsUseCase(monitor *analytics.Monitor, cache *svccache.Gateway, cfg *config.Config) *usecase.ReportsUseCase {
	return usecase.NewReportsUseCase(monitor, cache, cfg.Source.Symbols)
}

// ProvideScheduler creates the job scheduler with the standing jobs
// registered.
func ProvideScheduler(
	cfg *config.Config,
	m repository.Metrics,
	l *logger.Logger,
	pipeline *usecase.IngestionPipeline,
	charts *usecase.ChartsUseCase,
	reports *usecase.ReportsUseCase,
) (*scheduler.Scheduler, error) {
	s := scheduler.New(cfg.Scheduler.Tick, scheduler.NewRealClock(), m, l)

	s.Every("realtime_refresh", cfg.Scheduler.RealtimeInterval, func(ctx context.Context) error {
		if !pipeline.RunRealtime(ctx) {
			return models.ErrAcquisition
		}
		return nil
	})

	s.Every("market_collection", cfg.Scheduler.CollectInterval, func(ctx context.Context) error {
		if !pipeline.RunOnce(ctx) {
			return models.ErrAcquisition
		}
		return nil
	})

	s.Every("analytics_refresh", cfg.Scheduler.AnalyticsInterval, func(ctx context.Context) error {
		reports.Rebuild(ctx)
		return charts.RebuildCharts(ctx, cfg.Source.Symbols)
	})

	hour, minute, err := config.ParseDailyAt(cfg.Scheduler.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler daily_at: %w", err)
	}
	s.Daily("daily_reprocess", hour, minute, func(ctx context.Context) error {
		if !pipeline.RunOnce(ctx) {
			return models.ErrAcquisition
		}
		reports.Rebuild(ctx)
		return charts.RebuildCharts(ctx, cfg.Source.Symbols)
	})

	return s, nil
}

// ProvideMarketHandler creates the public market API handler.
func ProvideMarketHandler(
	l *logger.Logger,
	prices *usecase.PricesUseCase,
	charts *usecase.ChartsUseCase,
	reports *usecase.ReportsUseCase,
) *api.MarketHandler {
	return api.NewMarketHandler(l, prices, charts, reports)
}

// ProvideOpsHandler creates the operational API handler.
func ProvideOpsHandler(
	l *logger.Logger,
	cfg *config.Config,
	cache *svccache.Gateway,
	store repository.SampleStore,
	sched *scheduler.Scheduler,
	q *pkgqueue.RedisQueue,
	collector *usecase.StreamCollector,
) *api.OpsHandler {
	// a nil *RedisQueue must stay a nil interface
	var qs pkgqueue.QueueService
	if q != nil {
		qs = q
	}
	return api.NewOpsHandler(l, cfg.Environment, cache, store, sched, qs, collector)
}

// ProvideHTTPHandler groups the route registrars for the server.
func ProvideHTTPHandler(market *api.MarketHandler, ops *api.OpsHandler) xhttp.Handler {
	return server.Handlers{market, ops}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	store repository.SampleStore,
	cache *svccache.Gateway,
	pipeline *usecase.IngestionPipeline,
	collector *usecase.StreamCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	q *pkgqueue.RedisQueue,
	sched *scheduler.Scheduler,
	publisher repository.Publisher,
	chClient *pkgch.Client,
	handler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NewHookChain(
			pkgkafka.TraceHook{},
			pkgkafka.NewLoggingHook(l),
		))
	}
	return server.New(cfg, l, store, cache, pipeline, collector, consumer, kh, q, sched, publisher, chClient, handler)
}
