package api

import (
	"encoding/json/v2"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/http/response"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
)

type importRequest struct {
	URL        string `json:"url"`
	ProviderID string `json:"providerId,omitempty"`
	AlbumTitle string `json:"albumTitle,omitempty"`
	Artist     string `json:"artist,omitempty"`
}

// handleImport resolves a source URL into library tracks. The provider
// may be named explicitly; otherwise the URL decides.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}
	if req.URL == "" {
		response.BadRequest(w, "url is required", s.logger)
		return
	}

	var prov provider.Provider
	if req.ProviderID != "" {
		p, ok := s.registry.Importer(req.ProviderID)
		if !ok {
			response.NotFound(w, "provider "+req.ProviderID+" cannot import", s.logger)
			return
		}
		prov = p
	} else {
		p, err := s.registry.ForURL(req.URL)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		if !p.Capabilities().Import {
			response.HandleError(w, apperrors.Validationf(
				"provider %s does not import", p.ID()), s.logger)
			return
		}
		prov = p
	}

	tracks, err := prov.Import(r.Context(), provider.ImportRequest{
		URL:        req.URL,
		AlbumTitle: req.AlbumTitle,
		Artist:     req.Artist,
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.logger.Info("import complete", "provider", prov.ID(), "url", req.URL, "tracks", len(tracks))
	response.Created(w, tracks, s.logger)
}

// handleSearch fans a query out to every provider that accepts the
// search type. One provider failing does not sink the whole search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		response.BadRequest(w, "q is required", s.logger)
		return
	}

	searchType := domain.SearchType(r.URL.Query().Get("type"))
	if searchType == "" {
		searchType = domain.SearchTypeTrack
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			response.BadRequest(w, "limit must be between 1 and 50", s.logger)
			return
		}
		limit = parsed
	}

	type providerResults struct {
		ProviderID string                `json:"providerId"`
		Results    []domain.SearchResult `json:"results"`
	}
	var out []providerResults

	for _, prov := range s.registry.Searchable(searchType) {
		results, err := prov.Search(r.Context(), query, searchType, limit)
		if err != nil {
			s.logger.Warn("provider search failed", "provider", prov.ID(), "error", err)
			continue
		}
		if len(results) > 0 {
			out = append(out, providerResults{ProviderID: prov.ID(), Results: results})
		}
	}
	response.Success(w, out, s.logger)
}

type providerInfo struct {
	ID           string                `json:"id"`
	Type         string                `json:"type"`
	Capabilities provider.Capabilities `json:"capabilities"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	infos := make([]providerInfo, 0, len(all))
	for _, p := range all {
		infos = append(infos, providerInfo{
			ID:           p.ID(),
			Type:         p.Type(),
			Capabilities: p.Capabilities(),
		})
	}
	response.Success(w, infos, s.logger)
}

// handleConfigureProvider stores admin-entered configuration values
// for a provider (cookie jars, oauth tokens, library paths) and
// rebuilds the providers so they take effect. Values are write-only:
// the response echoes the configured key names, never the values.
func (s *Server) handleConfigureProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	prov, err := s.registry.Get(id)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	var values map[string]string
	if err := json.UnmarshalRead(r.Body, &values); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}
	if len(values) == 0 {
		response.BadRequest(w, "no config values given", s.logger)
		return
	}

	cfg, err := s.store.GetProvider(r.Context(), id)
	if errors.Is(err, apperrors.ErrNotFound) {
		now := time.Now()
		cfg = &domain.ProviderConfig{
			ID: id, Type: prov.Type(), Name: id, CreatedAt: now,
		}
	} else if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if cfg.Config == nil {
		cfg.Config = make(map[string]string, len(values))
	}
	// an empty value clears the key
	for k, v := range values {
		if v == "" {
			delete(cfg.Config, k)
			continue
		}
		cfg.Config[k] = v
	}
	cfg.UpdatedAt = time.Now()

	if err := s.store.SaveProvider(r.Context(), cfg); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if s.reloader != nil {
		s.reloader.Reload()
	}

	keys := make([]string, 0, len(cfg.Config))
	for k := range cfg.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.logger.Info("provider configured", "provider", id, "keys", len(keys))
	response.Success(w, map[string]any{"id": id, "configKeys": keys}, s.logger)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]any{
		"status":      "ok",
		"providers":   len(s.registry.All()),
		"cachedFiles": s.cache.Len(),
		"cachedBytes": s.cache.Bytes(),
	}, s.logger)
}
