// Package di provides dependency injection configuration for the Harmonia server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
	"github.com/harmoniaapp/harmonia-server/internal/cache"
	"github.com/harmoniaapp/harmonia-server/internal/config"
	"github.com/harmoniaapp/harmonia-server/internal/di/providers"
	"github.com/harmoniaapp/harmonia-server/internal/extractor"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	sources "github.com/harmoniaapp/harmonia-server/internal/providers"
	"github.com/harmoniaapp/harmonia-server/internal/transcode"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Media services
	do.Provide(injector, providers.ProvideCache)
	do.Provide(injector, providers.ProvideFetcher)
	do.Provide(injector, providers.ProvideTranscoder)
	do.Provide(injector, providers.ProvideAnalyzer)
	do.Provide(injector, providers.ProvideExtractor)

	// Workers
	do.Provide(injector, providers.ProvideTaskRunner)

	// Provider registry
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideLoader)
	do.Provide(injector, providers.ProvideManifestWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once the server is
// running. This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)

	// Media services
	_ = do.MustInvoke[*cache.Cache](injector)
	_ = do.MustInvoke[*cache.Fetcher](injector)
	_ = do.MustInvoke[*transcode.Transcoder](injector)
	_ = do.MustInvoke[*analysis.Analyzer](injector)
	_ = do.MustInvoke[*extractor.Extractor](injector)

	// Workers
	_ = do.MustInvoke[*providers.TaskRunnerHandle](injector)

	// Provider registry
	_ = do.MustInvoke[*provider.Registry](injector)
	_ = do.MustInvoke[*sources.Loader](injector)
	_ = do.MustInvoke[*providers.ManifestWatcherHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
