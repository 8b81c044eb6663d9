package analysis

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
)

// TrackAdjustment records one track's window before and after sync.
type TrackAdjustment struct {
	TrackID    string            `json:"trackId"`
	Title      string            `json:"title"`
	Before     domain.TimeWindow `json:"before"`
	After      domain.TimeWindow `json:"after"`
	StartDelta float64           `json:"startDelta"`
	EndDelta   float64           `json:"endDelta"`
}

// SyncResult summarizes a sync pass over an album.
type SyncResult struct {
	Adjusted  []TrackAdjustment `json:"adjusted"`
	Unchanged []string          `json:"unchanged"`
	Unmatched []string          `json:"unmatched,omitempty"`
	Silences  int               `json:"silences"`
}

// SyncAlbumWindows re-derives track windows for an album whose tracks
// were cut from one long source upload. The source is scanned for
// silences once and every interior boundary is snapped to the nearest
// musical pause. Declared chapters, when given, seed the boundaries for
// tracks they match by title; everything else starts from the stored
// window. Tracks without a window are skipped.
func (a *Analyzer) SyncAlbumWindows(ctx context.Context, sourceURL string, tracks []domain.Track, declared []domain.Chapter) (*SyncResult, error) {
	windowed := make([]domain.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Window != nil {
			windowed = append(windowed, t)
		}
	}
	if len(windowed) < 2 {
		return nil, apperrors.Validation("album needs at least two windowed tracks to sync")
	}

	sort.Slice(windowed, func(i, j int) bool {
		return windowed[i].Window.StartTime < windowed[j].Window.StartTime
	})

	silences, err := a.DetectSilences(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	var matched map[string]domain.Chapter
	var unmatched []string
	if len(declared) >= 2 {
		matched, unmatched = MatchChapters(windowed, declared)
	}

	chapters := make([]domain.Chapter, len(windowed))
	for i, t := range windowed {
		chapters[i] = domain.Chapter{
			Title:     t.Title,
			StartTime: t.Window.StartTime,
			EndTime:   t.Window.EndTime,
		}
		if ch, ok := matched[t.ID]; ok {
			chapters[i].StartTime = ch.StartTime
			chapters[i].EndTime = ch.EndTime
		}
	}

	corrected := CorrectBoundaries(chapters, silences)

	result := &SyncResult{Silences: len(silences), Unmatched: unmatched}
	for i, t := range windowed {
		before := *t.Window
		after := domain.TimeWindow{
			StartTime: corrected[i].StartTime,
			EndTime:   corrected[i].EndTime,
		}
		if after == before {
			result.Unchanged = append(result.Unchanged, t.ID)
			continue
		}
		result.Adjusted = append(result.Adjusted, TrackAdjustment{
			TrackID:    t.ID,
			Title:      t.Title,
			Before:     before,
			After:      after,
			StartDelta: after.StartTime - before.StartTime,
			EndDelta:   after.EndTime - before.EndTime,
		})
	}
	return result, nil
}

var titleStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeTitle folds a track or chapter title for fuzzy matching:
// diacritics removed, lowercased, punctuation collapsed to spaces.
func NormalizeTitle(s string) string {
	folded, _, err := transform.String(titleStripper, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// MatchChapters pairs mined chapters with album tracks by normalized
// title. Returns the chapter for each matched track ID plus the titles
// of chapters that matched nothing.
func MatchChapters(tracks []domain.Track, chapters []domain.Chapter) (map[string]domain.Chapter, []string) {
	byTitle := make(map[string]domain.Track, len(tracks))
	for _, t := range tracks {
		byTitle[NormalizeTitle(t.Title)] = t
	}

	matched := make(map[string]domain.Chapter)
	var unmatched []string
	for _, ch := range chapters {
		key := NormalizeTitle(ch.Title)
		if t, ok := byTitle[key]; ok {
			matched[t.ID] = ch
			continue
		}
		// Chapter titles often embed the artist ("Artist - Song");
		// fall back to a containment check.
		found := false
		for title, t := range byTitle {
			if title != "" && strings.Contains(key, title) {
				matched[t.ID] = ch
				found = true
				break
			}
		}
		if !found {
			unmatched = append(unmatched, ch.Title)
		}
	}
	return matched, unmatched
}
