//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinResolve/pkg/config"
	"FinResolve/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisStore,
		ProvideClickHouseClient,

		// Caches and repositories
		ProvideCacheManager,
		ProvideResolutionStore,
		ProvideResolutionSinks,

		// Sources
		ProvideTextOracle,
		ProvideSourceAdapters,

		// Use cases
		ProvideResolver,
		ProvideFundAnalyzer,
		ProvidePortfolioAnalyzer,

		// Transport
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideJobConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeToolkit wires the resolution stack for command line use.
func InitializeToolkit(cfg *config.Config) (*Toolkit, error) {
	wire.Build(
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisStore,
		ProvideClickHouseClient,
		ProvideCacheManager,
		ProvideResolutionStore,
		ProvideResolutionSinks,
		ProvideTextOracle,
		ProvideSourceAdapters,
		ProvideResolver,
		ProvideFundAnalyzer,
		ProvidePortfolioAnalyzer,
		ProvideToolkit,
	)
	return &Toolkit{}, nil
}
