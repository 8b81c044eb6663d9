// Package youtube streams and imports media through the extraction
// gateway. Tracks may be whole uploads or time windows cut out of a
// full-album upload.
package youtube

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/ffmpeg"
	"github.com/harmoniaapp/harmonia-server/internal/id"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
)

const (
	// windowed clips are served as fragmented mp4 so the client can
	// start playback before the copy finishes
	windowedContentType = "audio/mp4"

	probeTimeout = 10 * time.Second
)

var hosts = []string{"youtube.com", "youtu.be", "music.youtube.com"}

// Provider streams from and imports via the extraction gateway.
type Provider struct {
	id        string
	ffmpegBin string
	deps      provider.Deps
	probe     *http.Client
	proxy     *http.Client
}

// New creates a provider instance.
func New(providerID, ffmpegBin string, deps provider.Deps) *Provider {
	return &Provider{
		id:        providerID,
		ffmpegBin: ffmpegBin,
		deps:      deps,
		probe:     &http.Client{Timeout: probeTimeout},
		proxy: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second},
		},
	}
}

func (p *Provider) ID() string   { return p.id }
func (p *Provider) Type() string { return "youtube" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Stream: true,
		Import: true,
		Search: true,
		SearchTypes: []domain.SearchType{
			domain.SearchTypeTrack,
			domain.SearchTypeAlbum,
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
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Stream serves a track. Cached files get byte-range responses; live
// paths pipe with ranges disabled.
func (p *Provider) Stream(w http.ResponseWriter, r *http.Request, req provider.StreamRequest) error {
	track := req.Track

	if req.Format != "" {
		return p.streamTranscoded(w, r, track, req.Format)
	}
	if track.Window != nil {
		return p.streamWindowed(w, r, track)
	}
	return p.streamWhole(w, r, track)
}

func (p *Provider) streamTranscoded(w http.ResponseWriter, r *http.Request, track domain.Track, format string) error {
	// Prefer the cached clip as the transcode input. The clip is
	// already cut to the track's window, so no further bounding.
	if path, ok := p.deps.Fetcher.Cache().Get(track.CacheKey()); ok {
		proc, preset, err := p.deps.Transcoder.FromFile(r.Context(), path, format, 0, 0)
		if err != nil {
			return err
		}
		return provider.PipeProcess(w, r, proc, preset.ContentType, p.deps.Log)
	}

	// The upstream URL carries the whole upload; a windowed track must
	// bound the transcode to its own slice of it.
	var start, end float64
	if track.Window != nil {
		start, end = track.Window.StartTime, track.Window.EndTime
	}

	streamURL, err := p.deps.Extractor.StreamURL(r.Context(), track.SourceURL)
	if err != nil {
		return err
	}
	proc, preset, err := p.deps.Transcoder.FromURL(r.Context(), streamURL, format, start, end)
	if err != nil {
		return err
	}
	return provider.PipeProcess(w, r, proc, preset.ContentType, p.deps.Log)
}

// streamWindowed serves a time window of a longer upload. On a cache
// miss the clip is extracted in the background for next time while
// this request gets a live copy.
func (p *Provider) streamWindowed(w http.ResponseWriter, r *http.Request, track domain.Track) error {
	key := track.CacheKey()
	window := *track.Window

	if path, ok := p.deps.Fetcher.Cache().Get(key); ok {
		return provider.ServeCachedFile(w, r, path, windowedContentType)
	}

	streamURL, err := p.deps.Extractor.StreamURL(r.Context(), track.SourceURL)
	if err != nil {
		return err
	}

	if !p.deps.Fetcher.Cache().InProgress(key) {
		if err := p.deps.Tasks.Go("extract:"+track.ID, func(ctx context.Context) error {
			_, err := p.deps.Fetcher.Extract(ctx, key, streamURL, window)
			return err
		}); err != nil {
			p.deps.Log.Debug("skipping background extract", "track", track.ID, "reason", err)
		}
	}

	cmd := ffmpeg.New(p.ffmpegBin).
		SeekInput(window.StartTime).
		Input(streamURL).
		Duration(window.Duration()).
		WithCodec(ffmpeg.Copy{}).
		Args("-movflags", "frag_keyframe+empty_moov").
		Format("mp4").
		Output("-")

	proc, err := cmd.Start(r.Context())
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeExtractionFailed, "start windowed stream")
	}
	return provider.PipeProcess(w, r, proc, windowedContentType, p.deps.Log)
}

// streamWhole proxies the upstream file, warming the cache in the
// background so the next play is local.
func (p *Provider) streamWhole(w http.ResponseWriter, r *http.Request, track domain.Track) error {
	key := track.CacheKey()

	if path, ok := p.deps.Fetcher.Cache().Get(key); ok {
		return provider.ServeCachedFile(w, r, path, windowedContentType)
	}

	streamURL, err := p.resolveLiveURL(r.Context(), track.SourceURL)
	if err != nil {
		return err
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

// resolveLiveURL returns a stream URL verified to still answer.
// Memoized URLs outlive their upstream signatures sometimes; a dead
// one is dropped and resolved fresh once.
func (p *Provider) resolveLiveURL(ctx context.Context, sourceURL string) (string, error) {
	streamURL, err := p.deps.Extractor.StreamURL(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	if p.probeOK(ctx, streamURL) {
		return streamURL, nil
	}

	p.deps.Log.Info("cached stream URL is dead, re-resolving", "source", sourceURL)
	p.deps.Extractor.InvalidateStreamURL(sourceURL)

	streamURL, err = p.deps.Extractor.StreamURL(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	return streamURL, nil
}

func (p *Provider) probeOK(ctx context.Context, streamURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// Import turns an upload into library tracks. Uploads with a chapter
// list become an album of windowed tracks sharing one source; plain
// uploads become a single track.
func (p *Provider) Import(ctx context.Context, req provider.ImportRequest) ([]domain.Track, error) {
	info, err := p.deps.Extractor.TrackInfo(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	artist := req.Artist
	if artist == "" {
		artist = info.Uploader
	}

	if len(info.Chapters) < 2 {
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

	if info.ChaptersIncomplete {
		p.deps.Log.Warn("chapter list looks truncated, importing anyway",
			"source", req.URL, "chapters", len(info.Chapters))
	}

	albumTitle := req.AlbumTitle
	if albumTitle == "" {
		albumTitle = info.Title
	}
	albumID := uuid.NewString()

	tracks := make([]domain.Track, 0, len(info.Chapters))
	for _, ch := range info.Chapters {
		track := domain.Track{
			ID:         id.MustGenerate("trk"),
			Title:      ch.Title,
			Artist:     artist,
			Album:      albumTitle,
			AlbumID:    albumID,
			Duration:   ch.EndTime - ch.StartTime,
			ProviderID: p.id,
			SourceURL:  req.URL,
			CoverURL:   info.Thumbnail,
			Window:     &domain.TimeWindow{StartTime: ch.StartTime, EndTime: ch.EndTime},
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
	items, err := p.deps.Extractor.Search(ctx, "ytsearch", query, limit)
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
