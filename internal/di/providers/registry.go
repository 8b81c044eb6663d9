package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
	"github.com/harmoniaapp/harmonia-server/internal/cache"
	"github.com/harmoniaapp/harmonia-server/internal/config"
	"github.com/harmoniaapp/harmonia-server/internal/extractor"
	"github.com/harmoniaapp/harmonia-server/internal/logger"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	sources "github.com/harmoniaapp/harmonia-server/internal/providers"
	"github.com/harmoniaapp/harmonia-server/internal/transcode"
)

// ProvideRegistry provides the provider registry.
func ProvideRegistry(i do.Injector) (*provider.Registry, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return provider.NewRegistry(log.Logger), nil
}

// ProvideLoader provides the manifest loader and performs the initial
// registry load.
func ProvideLoader(i do.Injector) (*sources.Loader, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*provider.Registry](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tasksHandle := do.MustInvoke[*TaskRunnerHandle](i)

	deps := provider.Deps{
		Fetcher:    do.MustInvoke[*cache.Fetcher](i),
		Extractor:  do.MustInvoke[*extractor.Extractor](i),
		Transcoder: do.MustInvoke[*transcode.Transcoder](i),
		Analyzer:   do.MustInvoke[*analysis.Analyzer](i),
		Tracks:     storeHandle.Store,
		Tasks:      tasksHandle.Runner,
		Log:        log.Logger,
	}

	buildCfg := sources.BuildConfig{
		FFmpegPath:      ffmpegBinary(cfg),
		LocalMusicPath:  cfg.Providers.LocalMusicPath,
		SpotifyPipePath: cfg.Providers.SpotifyPipePath,
	}

	loader := sources.NewLoader(cfg.Providers.ManifestDir, buildCfg, deps, registry, storeHandle.Store, log.Logger)
	loader.Reload()

	log.Info("Providers loaded",
		"manifest_dir", cfg.Providers.ManifestDir,
		"count", len(registry.All()),
	)

	return loader, nil
}

// ManifestWatcherHandle wraps the manifest watcher with Shutdownable.
type ManifestWatcherHandle struct {
	*provider.Watcher
}

// Shutdown implements do.Shutdownable.
func (h *ManifestWatcherHandle) Shutdown() error {
	return h.Close()
}

// ProvideManifestWatcher provides the watcher that reloads providers
// when manifest files change.
func ProvideManifestWatcher(i do.Injector) (*ManifestWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	loader := do.MustInvoke[*sources.Loader](i)

	if err := os.MkdirAll(cfg.Providers.ManifestDir, 0o755); err != nil {
		return nil, err
	}

	w, err := provider.NewWatcher(cfg.Providers.ManifestDir, loader.Reload, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Watching provider manifests", "dir", cfg.Providers.ManifestDir)

	return &ManifestWatcherHandle{Watcher: w}, nil
}
