// Package providers builds concrete provider instances from manifests.
package providers

import (
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	"github.com/harmoniaapp/harmonia-server/internal/providers/bandcamp"
	"github.com/harmoniaapp/harmonia-server/internal/providers/local"
	"github.com/harmoniaapp/harmonia-server/internal/providers/soundcloud"
	"github.com/harmoniaapp/harmonia-server/internal/providers/spotify"
	"github.com/harmoniaapp/harmonia-server/internal/providers/youtube"
)

// BuildConfig carries server-level defaults a manifest may override.
type BuildConfig struct {
	FFmpegPath      string
	LocalMusicPath  string
	SpotifyPipePath string
}

// restricted narrows a provider's advertised capabilities to what its
// manifest declares. The registry builds its lookup tables from these,
// so an undeclared feature is unreachable even though the underlying
// implementation has it.
type restricted struct {
	provider.Provider
	caps provider.Capabilities
}

func (r restricted) Capabilities() provider.Capabilities { return r.caps }

// Build constructs the provider a manifest describes.
func Build(m provider.Manifest, cfg BuildConfig, deps provider.Deps) (provider.Provider, error) {
	p, err := build(m, cfg, deps)
	if err != nil {
		return nil, err
	}
	if len(m.Features) > 0 || len(m.SearchTypes) > 0 || len(m.ImportTypes) > 0 {
		p = restricted{Provider: p, caps: m.Restrict(p.Capabilities())}
	}
	return p, nil
}

func build(m provider.Manifest, cfg BuildConfig, deps provider.Deps) (provider.Provider, error) {
	// A provider with its own cookie jar gets a derived gateway, so one
	// storefront's credentials never leak into another's listings.
	if cookie := m.Credential("cookieFile"); cookie != "" {
		deps.Extractor = deps.Extractor.WithCookieFile(cookie)
	}

	switch m.Type {
	case "local":
		root := m.Credential("musicPath")
		if root == "" {
			root = cfg.LocalMusicPath
		}
		if root == "" {
			return nil, apperrors.Validationf("provider %s: no music path configured", m.ID)
		}
		return local.New(m.ID, root, deps), nil

	case "youtube":
		return youtube.New(m.ID, cfg.FFmpegPath, deps), nil

	case "soundcloud":
		return soundcloud.New(m.ID, deps), nil

	case "bandcamp":
		return bandcamp.New(m.ID, deps), nil

	case "spotify":
		pipe := m.Credential("pipePath")
		if pipe == "" {
			pipe = cfg.SpotifyPipePath
		}
		if pipe == "" {
			return nil, apperrors.Validationf("provider %s: no pipe path configured", m.ID)
		}
		return spotify.New(m.ID, pipe, deps), nil

	default:
		return nil, apperrors.Validationf("unknown provider type %q", m.Type)
	}
}
