package youtube

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniaapp/harmonia-server/internal/cache"
	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/extractor"
	"github.com/harmoniaapp/harmonia-server/internal/provider"
	"github.com/harmoniaapp/harmonia-server/internal/transcode"
)

func writeFakeTool(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// recordedArgs reads back the argument list a fake tool wrote, one
// argument per line.
func recordedArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func newTestProvider(t *testing.T, ffmpegBin string) *Provider {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := cache.New(cache.Config{Dir: t.TempDir(), MaxFiles: 10, MaxBytes: 1 << 20}, log)
	require.NoError(t, err)

	resolver := writeFakeTool(t, "resolver", "#!/bin/sh\necho http://media.invalid/full-upload.m4a\n")
	deps := provider.Deps{
		Fetcher: cache.NewFetcher(c, ffmpegBin, log),
		Extractor: extractor.New(extractor.Config{
			YtDlpPath:    resolver,
			StreamURLTTL: time.Hour,
			TrackInfoTTL: time.Hour,
		}, log),
		Transcoder: transcode.New(ffmpegBin, log),
		Log:        log,
	}
	return New("yt", ffmpegBin, deps)
}

func TestMatchesURLHosts(t *testing.T) {
	p := &Provider{}
	assert.True(t, p.MatchesURL("https://www.youtube.com/watch?v=abc"))
	assert.True(t, p.MatchesURL("https://youtu.be/abc"))
	assert.True(t, p.MatchesURL("https://music.youtube.com/watch?v=abc"))
	assert.False(t, p.MatchesURL("https://example.com/watch?v=abc"))
}

func TestTranscodeBoundsWindowedTrack(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	ffmpegBin := writeFakeTool(t, "ffmpeg",
		"#!/bin/sh\nprintf '%s\\n' \"$@\" > "+argsFile+"\nprintf data\n")
	p := newTestProvider(t, ffmpegBin)

	track := domain.Track{
		ID:        "t1",
		SourceURL: "https://www.youtube.com/watch?v=abc",
		Window:    &domain.TimeWindow{StartTime: 120, EndTime: 180},
	}

	r := httptest.NewRequest("GET", "/stream", nil)
	w := httptest.NewRecorder()
	err := p.Stream(w, r, provider.StreamRequest{Track: track, Format: "mp3"})
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))

	args := strings.Join(recordedArgs(t, argsFile), " ")
	assert.Contains(t, args, "-ss 120")
	assert.Contains(t, args, "-i http://media.invalid/full-upload.m4a")
	assert.Contains(t, args, "-t 60")
}

func TestTranscodeWholeUploadKeepsFullRange(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	ffmpegBin := writeFakeTool(t, "ffmpeg",
		"#!/bin/sh\nprintf '%s\\n' \"$@\" > "+argsFile+"\nprintf data\n")
	p := newTestProvider(t, ffmpegBin)

	track := domain.Track{
		ID:        "t2",
		SourceURL: "https://www.youtube.com/watch?v=whole",
	}

	r := httptest.NewRequest("GET", "/stream", nil)
	w := httptest.NewRecorder()
	err := p.Stream(w, r, provider.StreamRequest{Track: track, Format: "mp3"})
	require.NoError(t, err)

	args := strings.Join(recordedArgs(t, argsFile), " ")
	assert.NotContains(t, args, "-ss")
	assert.NotContains(t, args, "-t ")
	assert.Contains(t, args, "-i http://media.invalid/full-upload.m4a")
}
