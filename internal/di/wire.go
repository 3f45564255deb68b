//go:build wireinject
// +build wireinject

package di

import (
	"CoinPulse/pkg/config"
	"CoinPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCacheBackend,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideMarketStore,
		ProvidePublisher,
		ProvideMarketSource,
		ProvideMarketStream,

		// Services
		ProvideCacheGateway,
		ProvideQualityGate,
		ProvideQualityMonitor,

		// Use cases
		ProvideFreshnessRecalculator,
		ProvideIngestionPipeline,
		ProvideStreamCollector,
		ProvideKafkaSamplesHandler,
		ProvideBackfillQueue,
		ProvidePricesUseCase,
		ProvideChartsUseCase,
		ProvideReportsUseCase,
		ProvideScheduler,

		// HTTP handlers
		ProvideMarketHandler,
		ProvideOpsHandler,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
