// Package domain defines the core record types shared across services.
package domain

import "time"

// TimeWindow marks a track as a sub-range of a larger remote asset,
// e.g. one chapter of a full-album upload. Times are in seconds from
// the start of the asset.
type TimeWindow struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// Duration returns the window length in seconds.
func (w TimeWindow) Duration() float64 {
	return w.EndTime - w.StartTime
}

// Track is a playable library entry. SourceURL is the canonical
// location understood by the owning provider; it is not necessarily a
// directly fetchable URL.
type Track struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Artist     string      `json:"artist"`
	Album      string      `json:"album"`
	AlbumID    string      `json:"albumId,omitempty"`
	Duration   float64     `json:"duration"`
	ProviderID string      `json:"providerId"`
	SourceURL  string      `json:"sourceUrl"`
	CoverURL   string      `json:"coverUrl,omitempty"`
	Window     *TimeWindow `json:"window,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// CacheKey returns the cache key for this track's local clip.
// Time-windowed tracks are keyed by track id since many tracks share
// one source asset; whole-asset tracks key by source URL so concurrent
// requests for the same remote file deduplicate.
func (t *Track) CacheKey() string {
	if t.Window != nil {
		return "track-" + t.ID
	}
	return t.SourceURL
}

// Chapter is a titled sub-range of an audio asset, normalized to a
// monotonically increasing, gap-free sequence.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}
