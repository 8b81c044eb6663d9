package providers

import (
	"context"
	"log/slog"

	"github.com/harmoniaapp/harmonia-server/internal/provider"
	"github.com/harmoniaapp/harmonia-server/internal/store"
)

// Loader keeps the registry in sync with the manifest directory.
type Loader struct {
	dir      string
	cfg      BuildConfig
	deps     provider.Deps
	registry *provider.Registry
	configs  store.ProviderStore
	log      *slog.Logger
}

// NewLoader creates a loader over the given manifest directory. A nil
// configs store disables the stored-configuration overlay.
func NewLoader(dir string, cfg BuildConfig, deps provider.Deps, registry *provider.Registry, configs store.ProviderStore, log *slog.Logger) *Loader {
	return &Loader{dir: dir, cfg: cfg, deps: deps, registry: registry, configs: configs, log: log}
}

// Reload reconciles the registry against the manifests on disk:
// enabled manifests are (re)registered with any stored admin
// configuration overlaid, everything else is removed. A broken
// manifest set leaves the current registry untouched.
func (l *Loader) Reload() {
	manifests, err := provider.LoadManifests(l.dir)
	if err != nil {
		l.log.Error("manifest reload failed, keeping current providers", "error", err)
		return
	}

	seen := make(map[string]bool, len(manifests))
	for _, m := range manifests {
		if !m.IsEnabled() {
			continue
		}
		if l.configs != nil {
			if stored, err := l.configs.GetProvider(context.Background(), m.ID); err == nil {
				m = m.WithConfig(stored.Config)
			}
		}
		p, err := Build(m, l.cfg, l.deps)
		if err != nil {
			l.log.Error("skipping provider", "id", m.ID, "error", err)
			continue
		}
		l.registry.Register(p)
		seen[m.ID] = true
	}

	for _, p := range l.registry.All() {
		if !seen[p.ID()] {
			l.registry.Deregister(p.ID())
		}
	}
}
