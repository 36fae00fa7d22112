//go:build wireinject
// +build wireinject

package di

import (
	"github.com/rishigupta87/open-ta/pkg/config"
	"github.com/rishigupta87/open-ta/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Domain core
		ProvideCalendar,
		ProvideThresholds,
		ProvideWindowAggregator,
		ProvideClassifier,
		ProvideAnalyticsAggregator,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideDirectory,
		ProvideSelector,
		ProvideFeed,
		ProvideSignalSink,
		ProvideAnalyticsSink,
		ProvideSignalCache,

		// Pipeline
		ProvideEmitQueue,
		ProvideIngest,
		ProvideController,

		// HTTP
		ProvideHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
