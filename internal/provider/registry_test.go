package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

type fakeProvider struct {
	id    string
	typ   string
	caps  Capabilities
	hosts []string
}

func (f *fakeProvider) ID() string                 { return f.id }
func (f *fakeProvider) Type() string               { return f.typ }
func (f *fakeProvider) Capabilities() Capabilities { return f.caps }

func (f *fakeProvider) Stream(http.ResponseWriter, *http.Request, StreamRequest) error {
	return nil
}

func (f *fakeProvider) Import(context.Context, ImportRequest) ([]domain.Track, error) {
	return nil, nil
}

func (f *fakeProvider) Search(context.Context, string, domain.SearchType, int) ([]domain.SearchResult, error) {
	return nil, nil
}

func (f *fakeProvider) MatchesURL(rawURL string) bool {
	for _, h := range f.hosts {
		if strings.Contains(rawURL, h) {
			return true
		}
	}
	return false
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(testLogger())
	p := &fakeProvider{id: "yt", typ: "youtube"}
	r.Register(p)

	got, err := r.Get("yt")
	require.NoError(t, err)
	assert.Same(t, p, got.(*fakeProvider))

	_, err = r.Get("missing")
	assert.Error(t, err)
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeProvider{id: "yt", typ: "youtube"})

	replacement := &fakeProvider{id: "yt", typ: "youtube"}
	r.Register(replacement)

	assert.Len(t, r.All(), 1)
	assert.Len(t, r.ByType("youtube"), 1)

	got, err := r.Get("yt")
	require.NoError(t, err)
	assert.Same(t, replacement, got.(*fakeProvider))
}

func TestRegistryDeregister(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeProvider{id: "yt", typ: "youtube"})
	r.Register(&fakeProvider{id: "sc", typ: "soundcloud"})

	r.Deregister("yt")

	assert.Len(t, r.All(), 1)
	assert.Empty(t, r.ByType("youtube"))
	_, err := r.Get("yt")
	assert.Error(t, err)

	r.Deregister("never-registered")
	assert.Len(t, r.All(), 1)
}

func TestRegistryForURL(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeProvider{id: "yt", typ: "youtube", hosts: []string{"youtube.com", "youtu.be"}})
	r.Register(&fakeProvider{id: "sc", typ: "soundcloud", hosts: []string{"soundcloud.com"}})

	p, err := r.ForURL("https://soundcloud.com/artist/track")
	require.NoError(t, err)
	assert.Equal(t, "sc", p.ID())

	_, err = r.ForURL("https://example.com/nothing")
	assert.Error(t, err)
}

func TestSearchableRequiresSearchCapability(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeProvider{id: "tracks-only", typ: "youtube", caps: Capabilities{
		Search:      true,
		SearchTypes: []domain.SearchType{domain.SearchTypeTrack},
	}})
	r.Register(&fakeProvider{id: "everything", typ: "soundcloud", caps: Capabilities{
		Search: true,
	}})
	r.Register(&fakeProvider{id: "stream-only", typ: "spotify", caps: Capabilities{
		Stream: true,
	}})

	forAlbums := r.Searchable(domain.SearchTypeAlbum)
	ids := make([]string, 0, len(forAlbums))
	for _, p := range forAlbums {
		ids = append(ids, p.ID())
	}
	// undeclared types pass through, but no search capability means no query
	assert.ElementsMatch(t, []string{"everything"}, ids)

	forTracks := r.Searchable(domain.SearchTypeTrack)
	ids = ids[:0]
	for _, p := range forTracks {
		ids = append(ids, p.ID())
	}
	assert.ElementsMatch(t, []string{"everything", "tracks-only"}, ids)
}

func TestCapabilityLookups(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeProvider{id: "full", typ: "youtube", caps: Capabilities{
		Stream: true, Import: true, Search: true,
	}})
	r.Register(&fakeProvider{id: "stream-only", typ: "spotify", caps: Capabilities{
		Stream: true,
	}})

	if p, ok := r.Streamer("full"); assert.True(t, ok) {
		assert.Equal(t, "full", p.ID())
	}
	_, ok := r.Importer("stream-only")
	assert.False(t, ok)
	_, ok = r.Searcher("stream-only")
	assert.False(t, ok)
	_, ok = r.Streamer("missing")
	assert.False(t, ok)
}
