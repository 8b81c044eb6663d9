package domain

import "time"

// SearchType enumerates the kinds of search/import a provider may support.
type SearchType string

// Search types understood by the registry.
const (
	SearchTypeTrack    SearchType = "track"
	SearchTypeAlbum    SearchType = "album"
	SearchTypeArtist   SearchType = "artist"
	SearchTypePlaylist SearchType = "playlist"
)

// ProviderConfig is an admin-configured provider instance: which plugin
// backs it plus the config values the plugin's manifest schema declares
// (cookies, oauth tokens, library paths).
type ProviderConfig struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"` // plugin id: local, youtube, soundcloud, bandcamp, spotify
	Name      string            `json:"name"`
	Config    map[string]string `json:"config,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Credential returns a named config value, "" when unset.
func (p *ProviderConfig) Credential(name string) string {
	if p == nil || p.Config == nil {
		return ""
	}
	return p.Config[name]
}

// SearchResult is one hit returned by a provider's search capability.
type SearchResult struct {
	Title     string     `json:"title"`
	Artist    string     `json:"artist,omitempty"`
	Album     string     `json:"album,omitempty"`
	Duration  float64    `json:"duration,omitempty"`
	SourceURL string     `json:"sourceUrl"`
	CoverURL  string     `json:"coverUrl,omitempty"`
	Type      SearchType `json:"type"`
}

// ImportTrack is track data returned by a provider for import.
// The server persists these as Track records.
type ImportTrack struct {
	Title     string      `json:"title"`
	Artist    string      `json:"artist"`
	Album     string      `json:"album"`
	Duration  float64     `json:"duration"`
	SourceURL string      `json:"sourceUrl"`
	CoverURL  string      `json:"coverUrl,omitempty"`
	Window    *TimeWindow `json:"window,omitempty"`
}
