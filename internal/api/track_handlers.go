package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/http/response"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	"github.com/harmoniaapp/harmonia-server/internal/transcode"
)

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.ListTracks(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, tracks, s.logger)
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	track, err := s.store.GetTrack(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, track, s.logger)
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	track, err := s.store.GetTrack(r.Context(), id)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.cache.Invalidate(track.CacheKey())
	if err := s.store.DeleteTrack(r.Context(), id); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleAlbumTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.TracksByAlbum(r.Context(), chi.URLParam(r, "albumID"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, tracks, s.logger)
}

// handleStreamTrack serves a track's audio. The transcode parameter is
// validated before any provider work so a typo fails fast with a 400.
func (s *Server) handleStreamTrack(w http.ResponseWriter, r *http.Request) {
	track, err := s.store.GetTrack(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	format := r.URL.Query().Get("transcode")
	if format != "" {
		if _, err := transcode.Lookup(format); err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
	}

	prov, ok := s.registry.Streamer(track.ProviderID)
	if !ok {
		response.HandleError(w, apperrors.ProviderUnavailable(
			"provider "+track.ProviderID+" cannot stream right now"), s.logger)
		return
	}

	tw := &trackedWriter{ResponseWriter: w}
	err = prov.Stream(tw, r, provider.StreamRequest{Track: *track, Format: format})
	if err == nil {
		return
	}

	s.logger.Error("stream failed", "track", track.ID, "provider", track.ProviderID, "error", err)
	if tw.wrote {
		// headers are already on the wire; nothing coherent to send
		return
	}
	response.HandleError(w, err, s.logger)
}

// trackedWriter notices whether a handler already started the response.
type trackedWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackedWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(p)
}

// Flush keeps streaming handlers working through the wrapper.
func (t *trackedWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// handleSyncChapters re-derives the track windows of an album from the
// audio itself and persists the corrected boundaries. Cached clips cut
// with the old boundaries are invalidated.
func (s *Server) handleSyncChapters(w http.ResponseWriter, r *http.Request) {
	albumID := chi.URLParam(r, "albumID")

	tracks, err := s.store.TracksByAlbum(r.Context(), albumID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if len(tracks) == 0 {
		response.NotFound(w, "album has no tracks", s.logger)
		return
	}

	source, declared, err := s.analysisInputs(r, tracks)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	result, err := s.analyzer.SyncAlbumWindows(r.Context(), source, tracks, declared)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	byID := make(map[string]int, len(tracks))
	for i := range tracks {
		byID[tracks[i].ID] = i
	}
	for _, adj := range result.Adjusted {
		track := tracks[byID[adj.TrackID]]
		track.Window = &adj.After
		track.Duration = adj.After.Duration()
		if err := s.store.SaveTrack(r.Context(), &track); err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		s.cache.Invalidate(track.CacheKey())
	}

	s.logger.Info("album chapters synced", "album", albumID,
		"adjusted", len(result.Adjusted), "unchanged", len(result.Unchanged))
	response.Success(w, result, s.logger)
}

// analysisInputs picks a URL the scanner can read directly (the local
// file when the source is on disk, otherwise a freshly resolved stream
// URL for the shared upload behind the album) and, for remote sources,
// the upload's current chapter markers.
func (s *Server) analysisInputs(r *http.Request, tracks []domain.Track) (string, []domain.Chapter, error) {
	var pageURL string
	for _, t := range tracks {
		if t.Window != nil {
			pageURL = t.SourceURL
			break
		}
	}
	if pageURL == "" {
		return "", nil, apperrors.Validation("album has no windowed tracks to sync")
	}

	if _, err := os.Stat(pageURL); err == nil {
		return pageURL, nil, nil
	}

	source, err := s.extractor.StreamURL(r.Context(), pageURL)
	if err != nil {
		return "", nil, err
	}

	var declared []domain.Chapter
	if info, err := s.extractor.TrackInfo(r.Context(), pageURL); err != nil {
		s.logger.Warn("chapter listing unavailable, syncing from stored windows",
			"source", pageURL, "error", err)
	} else {
		declared = info.Chapters
	}
	return source, declared, nil
}
