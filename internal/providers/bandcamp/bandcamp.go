// Package bandcamp streams and imports album pages via the extraction
// gateway. A track inside an album is addressed with a composite
// source URL, bandcamp://<albumURL>/<trackName>, because individual
// track pages are not always linkable.
package bandcamp

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/id"
	"github.com/harmoniaapp/harmonia-server/internal/provider"

	"github.com/google/uuid"
)

const compositeScheme = "bandcamp://"

// Provider streams bandcamp album tracks.
type Provider struct {
	id    string
	deps  provider.Deps
	proxy *http.Client
}

// New creates a provider instance.
func New(providerID string, deps provider.Deps) *Provider {
	return &Provider{
		id:   providerID,
		deps: deps,
		proxy: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second},
		},
	}
}

func (p *Provider) ID() string   { return p.id }
func (p *Provider) Type() string { return "bandcamp" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Stream: true,
		Import: true,
		Search: false,
	}
}

func (p *Provider) MatchesURL(rawURL string) bool {
	if strings.HasPrefix(rawURL, compositeScheme) {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "bandcamp.com" || strings.HasSuffix(host, ".bandcamp.com")
}

// splitComposite takes bandcamp://<albumURL>/<trackName> apart. The
// album URL itself contains slashes, so the track name is everything
// after the last one.
func splitComposite(src string) (albumURL, trackName string, err error) {
	rest := strings.TrimPrefix(src, compositeScheme)
	idx := strings.LastIndex(rest, "/")
	if !strings.HasPrefix(src, compositeScheme) || idx <= 0 || idx == len(rest)-1 {
		return "", "", apperrors.Validationf("malformed composite source %q", src)
	}
	return rest[:idx], rest[idx+1:], nil
}

// resolveTrackPage finds the album entry whose title matches trackName.
func (p *Provider) resolveTrackPage(ctx context.Context, albumURL, trackName string) (string, error) {
	items, err := p.deps.Extractor.Playlist(ctx, albumURL)
	if err != nil {
		return "", err
	}

	want := analysis.NormalizeTitle(trackName)
	for _, item := range items {
		if analysis.NormalizeTitle(item.Title) == want && item.URL != "" {
			return item.URL, nil
		}
	}
	return "", apperrors.NotFoundf("track %q not found on album %s", trackName, albumURL)
}

// Stream resolves the track's page, then proxies its media URL.
func (p *Provider) Stream(w http.ResponseWriter, r *http.Request, req provider.StreamRequest) error {
	track := req.Track
	key := track.CacheKey()

	if path, ok := p.deps.Fetcher.Cache().Get(key); ok {
		if req.Format != "" {
			proc, preset, err := p.deps.Transcoder.FromFile(r.Context(), path, req.Format, 0, 0)
			if err != nil {
				return err
			}
			return provider.PipeProcess(w, r, proc, preset.ContentType, p.deps.Log)
		}
		return provider.ServeCachedFile(w, r, path, "audio/mpeg")
	}

	pageURL := track.SourceURL
	if strings.HasPrefix(pageURL, compositeScheme) {
		albumURL, trackName, err := splitComposite(pageURL)
		if err != nil {
			return err
		}
		pageURL, err = p.resolveTrackPage(r.Context(), albumURL, trackName)
		if err != nil {
			return err
		}
	}

	streamURL, err := p.deps.Extractor.StreamURL(r.Context(), pageURL)
	if err != nil {
		return err
	}

	if req.Format != "" {
		proc, preset, err := p.deps.Transcoder.FromURL(r.Context(), streamURL, req.Format, 0, 0)
		if err != nil {
			return err
		}
		return provider.PipeProcess(w, r, proc, preset.ContentType, p.deps.Log)
	}

	if !p.deps.Fetcher.Cache().InProgress(key) {
		if err := p.deps.Tasks.Go("warm:"+track.ID, func(ctx context.Context) error {
			_, err := p.deps.Fetcher.Download(ctx, key, streamURL)
			return err
		}); err != nil {
			p.deps.Log.Debug("skipping background warm", "track", track.ID, "reason", err)
		}
	}
	return provider.ProxyStream(w, r, p.proxy, streamURL)
}

// Import persists every track of an album page. Entries without their
// own page URL get a composite source pointing back at the album.
func (p *Provider) Import(ctx context.Context, req provider.ImportRequest) ([]domain.Track, error) {
	items, err := p.deps.Extractor.Playlist(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.NotFoundf("no tracks found at %s", req.URL)
	}

	albumID := uuid.NewString()
	var tracks []domain.Track
	for _, item := range items {
		sourceURL := item.URL
		if sourceURL == "" {
			sourceURL = compositeScheme + req.URL + "/" + item.Title
		}

		artist := req.Artist
		if artist == "" {
			artist = item.Uploader
		}
		track := domain.Track{
			ID:         id.MustGenerate("trk"),
			Title:      item.Title,
			Artist:     artist,
			Album:      req.AlbumTitle,
			AlbumID:    albumID,
			Duration:   item.Duration,
			ProviderID: p.id,
			SourceURL:  sourceURL,
			CoverURL:   item.Thumbnail,
		}
		if err := p.deps.Tracks.SaveTrack(ctx, &track); err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// Search is not supported upstream; the catalog has no public search
// the extraction gateway can use.
func (p *Provider) Search(context.Context, string, domain.SearchType, int) ([]domain.SearchResult, error) {
	return nil, nil
}
