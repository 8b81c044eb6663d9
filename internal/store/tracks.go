package store

import (
	"context"
	"encoding/json/v2"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

// TrackStore is the persistence surface the rest of the application
// depends on for tracks.
type TrackStore interface {
	SaveTrack(ctx context.Context, track *domain.Track) error
	GetTrack(ctx context.Context, id string) (*domain.Track, error)
	ListTracks(ctx context.Context) ([]domain.Track, error)
	TracksByAlbum(ctx context.Context, albumID string) ([]domain.Track, error)
	DeleteTrack(ctx context.Context, id string) error
}

// SaveTrack inserts or updates a track and maintains the album index.
func (s *Store) SaveTrack(_ context.Context, track *domain.Track) error {
	now := time.Now().UTC()
	if track.CreatedAt.IsZero() {
		track.CreatedAt = now
	}
	track.UpdatedAt = now

	data, err := json.Marshal(track)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(trackKey(track.ID), data); err != nil {
			return err
		}
		if track.AlbumID != "" {
			return txn.Set(albumIndexKey(track.AlbumID, track.ID), []byte(track.ID))
		}
		return nil
	})
}

// GetTrack loads one track by ID.
func (s *Store) GetTrack(_ context.Context, id string) (*domain.Track, error) {
	var track domain.Track
	if err := s.getJSON(trackKey(id), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// ListTracks returns every track, ordered by creation time.
func (s *Store) ListTracks(_ context.Context) ([]domain.Track, error) {
	var tracks []domain.Track
	err := s.scanJSON([]byte(prefixTrack), func(val []byte) error {
		var t domain.Track
		if err := json.Unmarshal(val, &t); err != nil {
			return err
		}
		tracks = append(tracks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].CreatedAt.Before(tracks[j].CreatedAt)
	})
	return tracks, nil
}

// TracksByAlbum returns an album's tracks ordered by window start, so
// tracks cut from one long upload come back in playing order.
func (s *Store) TracksByAlbum(ctx context.Context, albumID string) ([]domain.Track, error) {
	var ids []string
	err := s.scanJSON(albumIndexPrefix(albumID), func(val []byte) error {
		ids = append(ids, string(val))
		return nil
	})
	if err != nil {
		return nil, err
	}

	tracks := make([]domain.Track, 0, len(ids))
	for _, id := range ids {
		track, err := s.GetTrack(ctx, id)
		if err != nil {
			// index entry outlived its track; skip it
			s.log.Warn("dangling album index entry", "album", albumID, "track", id)
			continue
		}
		tracks = append(tracks, *track)
	}

	sort.Slice(tracks, func(i, j int) bool {
		wi, wj := tracks[i].Window, tracks[j].Window
		switch {
		case wi == nil && wj == nil:
			return tracks[i].CreatedAt.Before(tracks[j].CreatedAt)
		case wi == nil:
			return false
		case wj == nil:
			return true
		default:
			return wi.StartTime < wj.StartTime
		}
	})
	return tracks, nil
}

// DeleteTrack removes a track and its album index entry.
func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	track, err := s.GetTrack(ctx, id)
	if err != nil {
		return err
	}

	keys := [][]byte{trackKey(id)}
	if track.AlbumID != "" {
		keys = append(keys, albumIndexKey(track.AlbumID, id))
	}
	return s.delete(keys...)
}
