package store

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetTrack(t *testing.T) {
	s := openTestStore(t)

	track := &domain.Track{
		ID:         "trk-1",
		Title:      "First",
		Artist:     "Artist",
		ProviderID: "youtube",
		SourceURL:  "https://example.com/watch?v=1",
		Duration:   180,
	}
	require.NoError(t, s.SaveTrack(t.Context(), track))
	assert.False(t, track.CreatedAt.IsZero())

	got, err := s.GetTrack(t.Context(), "trk-1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, track.SourceURL, got.SourceURL)
}

func TestGetTrackNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetTrack(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSaveTrackPreservesCreatedAt(t *testing.T) {
	s := openTestStore(t)

	track := &domain.Track{ID: "trk-1", Title: "v1"}
	require.NoError(t, s.SaveTrack(t.Context(), track))
	created := track.CreatedAt

	track.Title = "v2"
	require.NoError(t, s.SaveTrack(t.Context(), track))

	got, err := s.GetTrack(t.Context(), "trk-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, created.Unix(), got.CreatedAt.Unix())
	assert.False(t, got.UpdatedAt.Before(created))
}

func TestTracksByAlbumOrderedByWindow(t *testing.T) {
	s := openTestStore(t)

	tracks := []*domain.Track{
		{ID: "t-late", AlbumID: "alb-1", Title: "Late",
			Window: &domain.TimeWindow{StartTime: 600, EndTime: 900}},
		{ID: "t-early", AlbumID: "alb-1", Title: "Early",
			Window: &domain.TimeWindow{StartTime: 0, EndTime: 300}},
		{ID: "t-mid", AlbumID: "alb-1", Title: "Mid",
			Window: &domain.TimeWindow{StartTime: 300, EndTime: 600}},
		{ID: "t-other", AlbumID: "alb-2", Title: "Other"},
	}
	for _, tr := range tracks {
		require.NoError(t, s.SaveTrack(t.Context(), tr))
	}

	got, err := s.TracksByAlbum(t.Context(), "alb-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Early", got[0].Title)
	assert.Equal(t, "Mid", got[1].Title)
	assert.Equal(t, "Late", got[2].Title)
}

func TestDeleteTrackRemovesAlbumIndex(t *testing.T) {
	s := openTestStore(t)

	track := &domain.Track{ID: "trk-1", AlbumID: "alb-1"}
	require.NoError(t, s.SaveTrack(t.Context(), track))
	require.NoError(t, s.DeleteTrack(t.Context(), "trk-1"))

	_, err := s.GetTrack(t.Context(), "trk-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	got, err := s.TracksByAlbum(t.Context(), "alb-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListTracks(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveTrack(t.Context(), &domain.Track{ID: id}))
	}

	got, err := s.ListTracks(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestProviderRoundTrip(t *testing.T) {
	s := openTestStore(t)

	cfg := &domain.ProviderConfig{
		ID:   "youtube",
		Type: "youtube",
		Name: "YouTube",
		Config: map[string]string{
			"cookieFile": "/data/cookies.txt",
		},
	}
	require.NoError(t, s.SaveProvider(t.Context(), cfg))

	got, err := s.GetProvider(t.Context(), "youtube")
	require.NoError(t, err)
	assert.Equal(t, "YouTube", got.Name)
	assert.Equal(t, "/data/cookies.txt", got.Config["cookieFile"])

	list, err := s.ListProviders(t.Context())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteProvider(t.Context(), "youtube"))
	_, err = s.GetProvider(t.Context(), "youtube")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
