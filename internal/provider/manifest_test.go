package provider

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"id": "yt-main",
		"type": "youtube",
		"name": "YouTube",
		"config": {"cookieFile": "/data/cookies.txt"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "yt-main", m.ID)
	assert.True(t, m.IsEnabled(), "enabled defaults to true")
	assert.Equal(t, "/data/cookies.txt", m.Credential("cookieFile"))
	assert.Empty(t, m.Credential("missing"))
}

func TestParseManifestRejectsUnknownType(t *testing.T) {
	_, err := ParseManifest([]byte(`{"id": "x1", "type": "napster", "name": "X"}`))
	assert.Error(t, err)
}

func TestParseManifestRejectsMissingFields(t *testing.T) {
	_, err := ParseManifest([]byte(`{"type": "youtube"}`))
	assert.Error(t, err)

	_, err = ParseManifest([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseManifestExplicitDisable(t *testing.T) {
	m, err := ParseManifest([]byte(`{"id": "yt", "type": "youtube", "name": "YT", "enabled": false}`))
	require.NoError(t, err)
	assert.False(t, m.IsEnabled())
}

func TestLoadManifests(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("youtube.json", `{"id": "yt", "type": "youtube", "name": "YouTube"}`)
	write("local.json", `{"id": "fs", "type": "local", "name": "Local Files"}`)
	write("notes.txt", `not a manifest`)

	manifests, err := LoadManifests(dir)
	require.NoError(t, err)
	assert.Len(t, manifests, 2)
}

func TestLoadManifestsMissingDir(t *testing.T) {
	manifests, err := LoadManifests(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestLoadManifestsPropagatesValidationError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"id": "x"}`), 0o644))

	_, err := LoadManifests(dir)
	assert.Error(t, err)
}

func TestWatcherFiresOnManifestChange(t *testing.T) {
	dir := t.TempDir()

	var reloads atomic.Int32
	w, err := NewWatcher(dir, func() { reloads.Add(1) }, testLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "yt.json"),
		[]byte(`{"id": "yt", "type": "youtube", "name": "YT"}`), 0o644))

	assert.Eventually(t, func() bool { return reloads.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresNonManifestFiles(t *testing.T) {
	dir := t.TempDir()

	var reloads atomic.Int32
	w, err := NewWatcher(dir, func() { reloads.Add(1) }, testLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))

	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, reloads.Load())
}

func TestParseManifestConfigSchema(t *testing.T) {
	doc := `{
		"id": "sc-main",
		"type": "soundcloud",
		"name": "SoundCloud",
		"configSchema": [
			{"name": "oauthToken", "type": "secret", "label": "OAuth token", "required": true}
		],
		"config": {"oauthToken": "abc"}
	}`
	m, err := ParseManifest([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "secret", m.ConfigSchema[0].Type)

	// required field missing from config
	_, err = ParseManifest([]byte(`{
		"id": "sc-main",
		"type": "soundcloud",
		"name": "SoundCloud",
		"configSchema": [
			{"name": "oauthToken", "type": "secret", "label": "OAuth token", "required": true}
		]
	}`))
	assert.Error(t, err)

	// unknown schema field type
	_, err = ParseManifest([]byte(`{
		"id": "sc-main",
		"type": "soundcloud",
		"name": "SoundCloud",
		"configSchema": [{"name": "x", "type": "blob", "label": "X"}]
	}`))
	assert.Error(t, err)
}

func TestManifestRestrictsCapabilities(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"id": "yt-limited",
		"type": "youtube",
		"name": "YouTube (no import)",
		"features": ["stream", "search"],
		"searchTypes": ["track"]
	}`))
	require.NoError(t, err)

	caps := m.Restrict(Capabilities{Stream: true, Import: true, Search: true})
	assert.True(t, caps.Stream)
	assert.False(t, caps.Import)
	assert.True(t, caps.Search)
	assert.Equal(t, []domain.SearchType{domain.SearchTypeTrack}, caps.SearchTypes)

	// empty features list restricts nothing
	open, err := ParseManifest([]byte(`{"id": "yt", "type": "youtube", "name": "YT"}`))
	require.NoError(t, err)
	assert.Equal(t,
		Capabilities{Stream: true, Import: true},
		open.Restrict(Capabilities{Stream: true, Import: true}))
}

func TestManifestImportTypesExposed(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"id": "yt-albums",
		"type": "youtube",
		"name": "YouTube (albums only)",
		"importTypes": ["album", "playlist"]
	}`))
	require.NoError(t, err)

	caps := m.Restrict(Capabilities{Stream: true, Import: true})
	assert.Equal(t,
		[]domain.SearchType{domain.SearchTypeAlbum, domain.SearchTypePlaylist},
		caps.ImportTypes)

	plain, err := ParseManifest([]byte(`{"id": "yt", "type": "youtube", "name": "YT"}`))
	require.NoError(t, err)
	assert.Nil(t, plain.Restrict(Capabilities{Import: true}).ImportTypes)
}

func TestManifestWithConfigOverlay(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"id": "yt",
		"type": "youtube",
		"name": "YT",
		"config": {"cookieFile": "/data/old.txt", "region": "de"}
	}`))
	require.NoError(t, err)

	merged := m.WithConfig(map[string]string{"cookieFile": "/data/new.txt"})
	assert.Equal(t, "/data/new.txt", merged.Credential("cookieFile"))
	assert.Equal(t, "de", merged.Credential("region"))
	// original manifest is untouched
	assert.Equal(t, "/data/old.txt", m.Credential("cookieFile"))
}
