// Package spotify streams audio delivered by a companion playback
// daemon. The daemon decrypts and decodes on its side and writes raw
// PCM into a named pipe; this provider encodes that into a streamable
// format per request.
package spotify

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
)

// defaultFormat is used when the client does not request one; raw PCM
// is not playable in a browser.
const defaultFormat = "mp3"

// Provider encodes PCM from the companion daemon's pipe.
type Provider struct {
	id       string
	pipePath string
	deps     provider.Deps
}

// New creates a provider reading from pipePath.
func New(providerID, pipePath string, deps provider.Deps) *Provider {
	return &Provider{id: providerID, pipePath: pipePath, deps: deps}
}

func (p *Provider) ID() string   { return p.id }
func (p *Provider) Type() string { return "spotify" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Stream: true}
}

func (p *Provider) MatchesURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "spotify:") ||
		strings.Contains(rawURL, "open.spotify.com")
}

// Stream encodes whatever the daemon is currently playing. Only one
// listener at a time makes sense; the pipe has a single reader.
func (p *Provider) Stream(w http.ResponseWriter, r *http.Request, req provider.StreamRequest) error {
	if _, err := os.Stat(p.pipePath); err != nil {
		return apperrors.ProviderUnavailable("playback daemon pipe is not present")
	}

	format := req.Format
	if format == "" {
		format = defaultFormat
	}

	proc, preset, err := p.deps.Transcoder.FromPipe(r.Context(), p.pipePath, format)
	if err != nil {
		return err
	}
	return provider.PipeProcess(w, r, proc, preset.ContentType, p.deps.Log)
}

// Import is handled by the daemon's own library sync, not the server.
func (p *Provider) Import(context.Context, provider.ImportRequest) ([]domain.Track, error) {
	return nil, apperrors.Validation("spotify tracks are imported by the playback daemon")
}

// Search is not available without the daemon's session credentials.
func (p *Provider) Search(context.Context, string, domain.SearchType, int) ([]domain.SearchResult, error) {
	return nil, nil
}
