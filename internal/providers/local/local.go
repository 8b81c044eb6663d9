// Package local serves and imports audio files from a directory on the
// server's own filesystem.
package local

import (
	"context"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/simonhull/audiometa"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/ffmpeg"
	"github.com/harmoniaapp/harmonia-server/internal/id"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".aac":  true,
}

// Provider serves files under a configured music root.
type Provider struct {
	id     string
	root   string
	deps   provider.Deps
	prober *ffmpeg.Prober
}

// New creates a local provider rooted at root.
func New(providerID, root string, deps provider.Deps) *Provider {
	return &Provider{
		id:     providerID,
		root:   root,
		deps:   deps,
		prober: ffmpeg.NewProber(""),
	}
}

func (p *Provider) ID() string   { return p.id }
func (p *Provider) Type() string { return "local" }

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Stream: true,
		Import: true,
		Search: true,
		SearchTypes: []domain.SearchType{
			domain.SearchTypeTrack,
			domain.SearchTypeAlbum,
			domain.SearchTypeArtist,
		},
	}
}

// MatchesURL claims plain filesystem paths inside the music root.
func (p *Provider) MatchesURL(rawURL string) bool {
	path := strings.TrimPrefix(rawURL, "file://")
	if !filepath.IsAbs(path) {
		return false
	}
	resolved, err := p.resolve(path)
	return err == nil && resolved != ""
}

// resolve confirms a source path stays inside the music root.
func (p *Provider) resolve(sourceURL string) (string, error) {
	path := strings.TrimPrefix(sourceURL, "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Validationf("path %s is outside the music library", path)
	}
	return abs, nil
}

// Stream serves the file directly, or pipes a transcode of it.
func (p *Provider) Stream(w http.ResponseWriter, r *http.Request, req provider.StreamRequest) error {
	path, err := p.resolve(req.Track.SourceURL)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return apperrors.NotFoundf("file for track %s no longer exists", req.Track.ID)
	}

	if req.Format != "" {
		proc, preset, err := p.deps.Transcoder.FromFile(r.Context(), path, req.Format, 0, 0)
		if err != nil {
			return err
		}
		return provider.PipeProcess(w, r, proc, preset.ContentType, p.deps.Log)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	return provider.ServeCachedFile(w, r, path, contentType)
}

// Import walks a directory (or takes a single file) under the music
// root and persists a track per audio file, reading tags where the
// format supports them.
func (p *Provider) Import(ctx context.Context, req provider.ImportRequest) ([]domain.Track, error) {
	root, err := p.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.NotFoundf("import path %s does not exist", req.URL)
	}

	var paths []string
	if info.IsDir() {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audioExtensions[strings.ToLower(filepath.Ext(path))] {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		paths = []string{root}
	}

	var tracks []domain.Track
	for _, path := range paths {
		track := p.trackFromFile(ctx, path, req)
		if err := p.deps.Tracks.SaveTrack(ctx, &track); err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func (p *Provider) trackFromFile(ctx context.Context, path string, req provider.ImportRequest) domain.Track {
	track := domain.Track{
		ID:         id.MustGenerate("trk"),
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Artist:     req.Artist,
		Album:      req.AlbumTitle,
		ProviderID: p.id,
		SourceURL:  path,
	}

	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		p.deps.Log.Warn("could not read tags, using filename", "path", path, "error", err)
	} else {
		if file.Tags.Title != "" {
			track.Title = file.Tags.Title
		}
		if file.Tags.Artist != "" {
			track.Artist = file.Tags.Artist
		}
		if file.Tags.Album != "" {
			track.Album = file.Tags.Album
		}
		track.Duration = file.Audio.Duration.Seconds()
		file.Close()
	}

	// Some containers carry no duration in their tags.
	if track.Duration == 0 {
		if seconds, err := p.prober.Duration(ctx, path); err == nil {
			track.Duration = seconds
		}
	}
	return track
}

// Search matches against the persisted library, not the filesystem.
func (p *Provider) Search(ctx context.Context, query string, _ domain.SearchType, limit int) ([]domain.SearchResult, error) {
	tracks, err := p.deps.Tracks.ListTracks(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var results []domain.SearchResult
	for _, t := range tracks {
		if t.ProviderID != p.id {
			continue
		}
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Artist), needle) &&
			!strings.Contains(strings.ToLower(t.Album), needle) {
			continue
		}
		results = append(results, domain.SearchResult{
			Title:     t.Title,
			Artist:    t.Artist,
			Album:     t.Album,
			Duration:  t.Duration,
			SourceURL: t.SourceURL,
			Type:      domain.SearchTypeTrack,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
