package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/analysis"
	"github.com/harmoniaapp/harmonia-server/internal/cache"
	"github.com/harmoniaapp/harmonia-server/internal/domain"
	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/extractor"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	"github.com/harmoniaapp/harmonia-server/internal/store"
	"github.com/harmoniaapp/harmonia-server/internal/transcode"
)

type stubProvider struct {
	id      string
	typ     string
	caps    provider.Capabilities
	body    []byte
	results []domain.SearchResult
	imports []domain.Track

	streamErr error
	lastReq   provider.StreamRequest
}

func (f *stubProvider) ID() string                          { return f.id }
func (f *stubProvider) Type() string                        { return f.typ }
func (f *stubProvider) Capabilities() provider.Capabilities { return f.caps }
func (f *stubProvider) MatchesURL(rawURL string) bool {
	return strings.Contains(rawURL, f.typ)
}

func (f *stubProvider) Stream(w http.ResponseWriter, r *http.Request, req provider.StreamRequest) error {
	f.lastReq = req
	if f.streamErr != nil {
		return f.streamErr
	}
	http.ServeContent(w, r, "track.mp3", time.Now(), bytes.NewReader(f.body))
	return nil
}

func (f *stubProvider) Import(context.Context, provider.ImportRequest) ([]domain.Track, error) {
	return f.imports, nil
}

func (f *stubProvider) Search(context.Context, string, domain.SearchType, int) ([]domain.SearchResult, error) {
	return f.results, nil
}

type stubReloader struct {
	calls atomic.Int32
}

func (s *stubReloader) Reload() { s.calls.Add(1) }

type testEnv struct {
	server   *Server
	store    *store.Store
	reg      *provider.Registry
	reloader *stubReloader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mediaCache, err := cache.New(cache.Config{
		Dir: t.TempDir(), MaxFiles: 10, MaxBytes: 1 << 20, TTL: time.Hour,
	}, log)
	require.NoError(t, err)

	reg := provider.NewRegistry(log)
	analyzer := analysis.New("ffmpeg", log)
	ext := extractor.New(extractor.Config{
		StreamURLTTL: time.Hour, TrackInfoTTL: time.Minute,
	}, log)

	reloader := &stubReloader{}
	return &testEnv{
		server:   NewServer(st, reg, analyzer, ext, mediaCache, reloader, log),
		store:    st,
		reg:      reg,
		reloader: reloader,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestStreamUnknownTrack(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/api/v1/tracks/stream/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamInvalidTranscodeFormatFailsFast(t *testing.T) {
	env := newTestEnv(t)
	prov := &stubProvider{id: "yt", typ: "youtube", body: []byte("audio"),
		caps: provider.Capabilities{Stream: true}}
	env.reg.Register(prov)

	track := &domain.Track{ID: "trk-1", ProviderID: "yt", SourceURL: "https://youtube/x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec := env.do(t, "GET", "/api/v1/tracks/stream/trk-1?transcode=ogg", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, prov.lastReq.Track.ID, "provider must not be reached")
}

func TestStreamPassesFormatToProvider(t *testing.T) {
	env := newTestEnv(t)
	prov := &stubProvider{id: "yt", typ: "youtube", body: []byte("audio"),
		caps: provider.Capabilities{Stream: true}}
	env.reg.Register(prov)

	track := &domain.Track{ID: "trk-1", ProviderID: "yt", SourceURL: "https://youtube/x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec := env.do(t, "GET", "/api/v1/tracks/stream/trk-1?transcode=mp3", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp3", prov.lastReq.Format)
}

func TestStreamRangeRequest(t *testing.T) {
	env := newTestEnv(t)
	body := make([]byte, 1000)
	for i := range body {
		body[i] = byte(i)
	}
	env.reg.Register(&stubProvider{id: "yt", typ: "youtube", body: body,
		caps: provider.Capabilities{Stream: true}})

	track := &domain.Track{ID: "trk-1", ProviderID: "yt", SourceURL: "https://youtube/x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec := env.do(t, "GET", "/api/v1/tracks/stream/trk-1", "",
		map[string]string{"Range": "bytes=0-99"})

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, body[:100], rec.Body.Bytes())
}

func TestStreamInactiveProvider(t *testing.T) {
	env := newTestEnv(t)
	track := &domain.Track{ID: "trk-1", ProviderID: "gone", SourceURL: "x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec := env.do(t, "GET", "/api/v1/tracks/stream/trk-1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamProviderErrorBeforeBody(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(&stubProvider{
		id: "yt", typ: "youtube",
		caps:      provider.Capabilities{Stream: true},
		streamErr: apperrors.ContentUnavailable("media removed"),
	})
	track := &domain.Track{ID: "trk-1", ProviderID: "yt", SourceURL: "x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec := env.do(t, "GET", "/api/v1/tracks/stream/trk-1", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestImportDispatchesByURL(t *testing.T) {
	env := newTestEnv(t)
	want := []domain.Track{{ID: "trk-1", Title: "Imported"}}
	env.reg.Register(&stubProvider{id: "yt", typ: "youtube", imports: want,
		caps: provider.Capabilities{Import: true}})
	env.reg.Register(&stubProvider{id: "sc", typ: "soundcloud"})

	rec := env.do(t, "POST", "/api/v1/import",
		`{"url": "https://youtube.example/watch"}`, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Imported")
}

func TestImportExplicitProvider(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(&stubProvider{id: "sc", typ: "soundcloud",
		caps:    provider.Capabilities{Import: true},
		imports: []domain.Track{{ID: "trk-9", Title: "From SC"}}})

	rec := env.do(t, "POST", "/api/v1/import",
		`{"url": "https://whatever.example/x", "providerId": "sc"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "From SC")
}

func TestImportValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/import", `{"url": ""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/import", `{broken`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/import", `{"url": "https://nobody.example/x"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchAggregatesProviders(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(&stubProvider{
		id: "yt", typ: "youtube",
		caps:    provider.Capabilities{Search: true},
		results: []domain.SearchResult{{Title: "Hit", SourceURL: "https://y/x"}},
	})
	env.reg.Register(&stubProvider{id: "quiet", typ: "bandcamp"})

	rec := env.do(t, "GET", "/api/v1/search?q=hit", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"providerId":"yt"`)
	assert.NotContains(t, rec.Body.String(), "quiet")
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/v1/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "GET", "/api/v1/search?q=x&limit=999", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProviders(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(&stubProvider{id: "yt", typ: "youtube",
		caps: provider.Capabilities{Stream: true, Search: true}})

	rec := env.do(t, "GET", "/api/v1/providers", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"yt"`)
	assert.Contains(t, rec.Body.String(), `"stream":true`)
}

func TestDeleteTrack(t *testing.T) {
	env := newTestEnv(t)
	track := &domain.Track{ID: "trk-1", ProviderID: "yt", SourceURL: "https://y/x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec := env.do(t, "DELETE", "/api/v1/tracks/trk-1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, "GET", "/api/v1/tracks/trk-1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlbumTracksAndSyncChaptersValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/albums/none/sync-chapters", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// one unwindowed track: present but nothing to sync
	track := &domain.Track{ID: "trk-1", AlbumID: "alb-1", ProviderID: "yt", SourceURL: "x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec = env.do(t, "POST", "/api/v1/albums/alb-1/sync-chapters", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "GET", "/api/v1/albums/alb-1/tracks", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trk-1")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestConfigureProvider(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(&stubProvider{id: "yt", typ: "youtube",
		caps: provider.Capabilities{Stream: true}})

	rec := env.do(t, "PUT", "/api/v1/providers/nope/config",
		`{"cookieFile": "/data/jar.txt"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "PUT", "/api/v1/providers/yt/config", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "PUT", "/api/v1/providers/yt/config",
		`{"cookieFile": "/data/jar.txt"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cookieFile"`)
	assert.NotContains(t, rec.Body.String(), "/data/jar.txt", "values are write-only")
	assert.EqualValues(t, 1, env.reloader.calls.Load())

	cfg, err := env.store.GetProvider(t.Context(), "yt")
	require.NoError(t, err)
	assert.Equal(t, "/data/jar.txt", cfg.Config["cookieFile"])

	// an empty value clears the stored key
	rec = env.do(t, "PUT", "/api/v1/providers/yt/config", `{"cookieFile": ""}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	cfg, err = env.store.GetProvider(t.Context(), "yt")
	require.NoError(t, err)
	assert.Empty(t, cfg.Config["cookieFile"])
}

// transcodingProvider pipes its stream through an encoder process the
// way the real providers do.
type transcodingProvider struct {
	stubProvider
	tr     *transcode.Transcoder
	source string
	log    *slog.Logger
}

func (f *transcodingProvider) Stream(w http.ResponseWriter, r *http.Request, req provider.StreamRequest) error {
	f.lastReq = req
	if req.Format == "" {
		return f.stubProvider.Stream(w, r, req)
	}
	proc, preset, err := f.tr.FromFile(r.Context(), f.source, req.Format, 0, 0)
	if err != nil {
		return err
	}
	return provider.PipeProcess(w, r, proc, preset.ContentType, f.log)
}

func TestStreamTranscodeDeliversMP3(t *testing.T) {
	env := newTestEnv(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	// emits an MPEG audio frame sync so the payload parses as MP3
	encoder := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(encoder,
		[]byte("#!/bin/sh\nprintf '\\377\\373\\220D'\nprintf 'framedata'\n"), 0o755))
	source := filepath.Join(dir, "source.m4a")
	require.NoError(t, os.WriteFile(source, []byte("rawaudio"), 0o644))

	env.reg.Register(&transcodingProvider{
		stubProvider: stubProvider{id: "yt", typ: "youtube",
			caps: provider.Capabilities{Stream: true}},
		tr:     transcode.New(encoder, log),
		source: source,
		log:    log,
	})

	track := &domain.Track{ID: "trk-1", ProviderID: "yt", SourceURL: "https://youtube/x"}
	require.NoError(t, env.store.SaveTrack(t.Context(), track))

	rec := env.do(t, "GET", "/api/v1/tracks/stream/trk-1?transcode=mp3", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "none", rec.Header().Get("Accept-Ranges"))

	body := rec.Body.Bytes()
	require.GreaterOrEqual(t, len(body), 2)
	assert.Equal(t, byte(0xFF), body[0])
	assert.Equal(t, byte(0xE0), body[1]&0xE0, "MPEG frame sync")
}

func TestResponsesAreCompressed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/health", "",
		map[string]string{"Accept-Encoding": "gzip"})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"ok"`)
}
