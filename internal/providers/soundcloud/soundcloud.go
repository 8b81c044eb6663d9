// Package soundcloud streams and imports tracks via the extraction
// gateway. Tracks are always whole files; the service has no long-form
// album uploads worth windowing.
package soundcloud

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/id"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
)

// Provider streams from the extraction gateway.
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
func (p *Provider) Type() string { return "soundcloud" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Stream: true,
		Import: true,
		Search: true,
		SearchTypes: []domain.SearchType{
			domain.SearchTypeTrack,
			domain.SearchTypePlaylist,
		},
	}
}

func (p *Provider) MatchesURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "soundcloud.com" || strings.HasSuffix(host, ".soundcloud.com")
}

// Stream proxies the resolved upstream URL, warming the cache behind
// the response. A stale memoized URL is retried once.
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

	streamURL, err := p.deps.Extractor.StreamURL(r.Context(), track.SourceURL)
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

	if err := provider.ProxyStream(w, r, p.proxy, streamURL); err != nil {
		// the memoized URL may have expired upstream
		p.deps.Extractor.InvalidateStreamURL(track.SourceURL)
		return err
	}
	return nil
}

// Import persists a single track, or every entry of a set/playlist URL.
func (p *Provider) Import(ctx context.Context, req provider.ImportRequest) ([]domain.Track, error) {
	if strings.Contains(req.URL, "/sets/") {
		return p.importSet(ctx, req)
	}

	info, err := p.deps.Extractor.TrackInfo(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	artist := req.Artist
	if artist == "" {
		artist = info.Uploader
	}
	track := domain.Track{
		ID:         id.MustGenerate("trk"),
		Title:      info.Title,
		Artist:     artist,
		Album:      req.AlbumTitle,
		Duration:   info.Duration,
		ProviderID: p.id,
		SourceURL:  req.URL,
		CoverURL:   info.Thumbnail,
	}
	if err := p.deps.Tracks.SaveTrack(ctx, &track); err != nil {
		return nil, err
	}
	return []domain.Track{track}, nil
}

func (p *Provider) importSet(ctx context.Context, req provider.ImportRequest) ([]domain.Track, error) {
	items, err := p.deps.Extractor.Playlist(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	var tracks []domain.Track
	for _, item := range items {
		artist := req.Artist
		if artist == "" {
			artist = item.Uploader
		}
		track := domain.Track{
			ID:         id.MustGenerate("trk"),
			Title:      item.Title,
			Artist:     artist,
			Album:      req.AlbumTitle,
			Duration:   item.Duration,
			ProviderID: p.id,
			SourceURL:  item.URL,
			CoverURL:   item.Thumbnail,
		}
		if err := p.deps.Tracks.SaveTrack(ctx, &track); err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// Search queries the upstream catalog.
func (p *Provider) Search(ctx context.Context, query string, searchType domain.SearchType, limit int) ([]domain.SearchResult, error) {
	items, err := p.deps.Extractor.Search(ctx, "scsearch", query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(items))
	for _, item := range items {
		results = append(results, domain.SearchResult{
			Title:     item.Title,
			Artist:    item.Uploader,
			Duration:  item.Duration,
			SourceURL: item.URL,
			CoverURL:  item.Thumbnail,
			Type:      searchType,
		})
	}
	return results, nil
}
