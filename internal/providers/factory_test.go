package providers

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	"github.com/harmoniaapp/harmonia-server/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildDispatchesOnType(t *testing.T) {
	cfg := BuildConfig{
		FFmpegPath:      "ffmpeg",
		LocalMusicPath:  t.TempDir(),
		SpotifyPipePath: "/run/playback.pipe",
	}

	tests := []struct {
		manifestType string
		wantType     string
	}{
		{"local", "local"},
		{"youtube", "youtube"},
		{"soundcloud", "soundcloud"},
		{"bandcamp", "bandcamp"},
		{"spotify", "spotify"},
	}
	for _, tt := range tests {
		t.Run(tt.manifestType, func(t *testing.T) {
			p, err := Build(provider.Manifest{
				ID:   "inst-" + tt.manifestType,
				Type: tt.manifestType,
				Name: "Test",
			}, cfg, provider.Deps{Log: testLogger()})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, p.Type())
			assert.Equal(t, "inst-"+tt.manifestType, p.ID())
		})
	}
}

func TestBuildUnknownType(t *testing.T) {
	_, err := Build(provider.Manifest{ID: "x", Type: "cassette", Name: "X"},
		BuildConfig{}, provider.Deps{})
	assert.Error(t, err)
}

func TestBuildLocalRequiresPath(t *testing.T) {
	_, err := Build(provider.Manifest{ID: "fs", Type: "local", Name: "FS"},
		BuildConfig{}, provider.Deps{})
	assert.Error(t, err)
}

func TestBuildManifestConfigOverridesDefaults(t *testing.T) {
	override := t.TempDir()
	p, err := Build(provider.Manifest{
		ID:     "fs",
		Type:   "local",
		Name:   "FS",
		Config: map[string]string{"musicPath": override},
	}, BuildConfig{LocalMusicPath: "/ignored"}, provider.Deps{Log: testLogger()})
	require.NoError(t, err)

	inside := filepath.Join(override, "song.mp3")
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0o644))
	assert.True(t, p.MatchesURL(inside))
	assert.False(t, p.MatchesURL("/elsewhere/song.mp3"))
}

func TestLoaderReloadReconcilesRegistry(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("yt.json", `{"id": "yt", "type": "youtube", "name": "YouTube"}`)
	write("sc.json", `{"id": "sc", "type": "soundcloud", "name": "SoundCloud"}`)
	write("off.json", `{"id": "off", "type": "bandcamp", "name": "Off", "enabled": false}`)

	registry := provider.NewRegistry(testLogger())
	loader := NewLoader(dir, BuildConfig{FFmpegPath: "ffmpeg"},
		provider.Deps{Log: testLogger()}, registry, nil, testLogger())

	loader.Reload()
	assert.Len(t, registry.All(), 2)
	_, err := registry.Get("off")
	assert.Error(t, err, "disabled manifests stay unregistered")

	// remove one manifest and reload
	require.NoError(t, os.Remove(filepath.Join(dir, "sc.json")))
	loader.Reload()
	assert.Len(t, registry.All(), 1)
	_, err = registry.Get("yt")
	assert.NoError(t, err)
}

func TestLoaderKeepsRegistryOnBrokenManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yt.json"),
		[]byte(`{"id": "yt", "type": "youtube", "name": "YouTube"}`), 0o644))

	registry := provider.NewRegistry(testLogger())
	loader := NewLoader(dir, BuildConfig{}, provider.Deps{Log: testLogger()}, registry, nil, testLogger())
	loader.Reload()
	require.Len(t, registry.All(), 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{broken`), 0o644))
	loader.Reload()
	assert.Len(t, registry.All(), 1, "registry survives a broken manifest set")
}

func TestLoaderOverlaysStoredConfig(t *testing.T) {
	log := testLogger()
	dir := t.TempDir()
	// no musicPath anywhere: the manifest alone cannot build
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fs.json"),
		[]byte(`{"id": "fs", "type": "local", "name": "Local Files"}`), 0o644))

	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := provider.NewRegistry(log)
	loader := NewLoader(dir, BuildConfig{}, provider.Deps{Log: log}, registry, st, log)

	loader.Reload()
	assert.Empty(t, registry.All(), "unconfigured provider is skipped")

	require.NoError(t, st.SaveProvider(t.Context(), &domain.ProviderConfig{
		ID:     "fs",
		Type:   "local",
		Name:   "Local Files",
		Config: map[string]string{"musicPath": t.TempDir()},
	}))

	loader.Reload()
	_, err = registry.Get("fs")
	assert.NoError(t, err, "stored admin config completes the manifest")
}
