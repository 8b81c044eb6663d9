// Package provider defines the pluggable media source abstraction and
// the registry that routes requests to concrete sources.
package provider

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
	"github.com/harmoniaapp/harmonia-server/internal/cache"
	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/extractor"
	"github.com/harmoniaapp/harmonia-server/internal/store"
	"github.com/harmoniaapp/harmonia-server/internal/task"
	"github.com/harmoniaapp/harmonia-server/internal/transcode"
)

// Capabilities declares what a provider can do. Nil SearchTypes and
// ImportTypes lists mean the provider does not constrain those types.
type Capabilities struct {
	Stream      bool                `json:"stream"`
	Import      bool                `json:"import"`
	Search      bool                `json:"search"`
	SearchTypes []domain.SearchType `json:"searchTypes,omitempty"`
	ImportTypes []domain.SearchType `json:"importTypes,omitempty"`
}

// StreamRequest carries what a provider needs to serve one track.
type StreamRequest struct {
	Track domain.Track
	// Format is empty for the native stream, otherwise a transcode
	// preset name.
	Format string
}

// ImportRequest asks a provider to turn a source URL into tracks.
type ImportRequest struct {
	URL        string
	AlbumTitle string
	Artist     string
}

// Provider is one media source.
type Provider interface {
	ID() string
	Type() string
	Capabilities() Capabilities

	// Stream writes the track's audio to the response. Implementations
	// own the response headers and status.
	Stream(w http.ResponseWriter, r *http.Request, req StreamRequest) error

	// Import resolves a source URL into persisted tracks.
	Import(ctx context.Context, req ImportRequest) ([]domain.Track, error)

	// Search queries the upstream catalog.
	Search(ctx context.Context, query string, searchType domain.SearchType, limit int) ([]domain.SearchResult, error)

	// MatchesURL reports whether this provider can handle a source URL.
	MatchesURL(rawURL string) bool
}

// Deps bundles the shared services concrete providers are built from.
type Deps struct {
	Fetcher    *cache.Fetcher
	Extractor  *extractor.Extractor
	Transcoder *transcode.Transcoder
	Analyzer   *analysis.Analyzer
	Tracks     store.TrackStore
	Tasks      *task.Runner
	Log        *slog.Logger
}
