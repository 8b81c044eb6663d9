// Package analysis derives better track boundaries from audio content.
// Long uploads split by timestamps rarely cut exactly between songs;
// silence detection finds where the music actually pauses.
package analysis

import (
	"bufio"
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/ffmpeg"
)

// Detection thresholds. Anything quieter than NoiseFloorDB for at
// least MinSilenceSeconds counts as a gap between songs.
const (
	NoiseFloorDB      = -55.0
	MinSilenceSeconds = 0.1
)

// Silence is one detected quiet span.
type Silence struct {
	Start    float64
	End      float64
	Duration float64
}

// Analyzer runs audio inspection passes.
type Analyzer struct {
	ffmpegBin string
	log       *slog.Logger
}

// New creates an analyzer using the given ffmpeg path.
func New(ffmpegBin string, log *slog.Logger) *Analyzer {
	return &Analyzer{ffmpegBin: ffmpegBin, log: log}
}

// DetectSilences scans source and returns its quiet spans in order.
// The scan decodes the whole stream, so callers should bound ctx.
func (a *Analyzer) DetectSilences(ctx context.Context, source string) ([]Silence, error) {
	var stderr strings.Builder

	cmd := ffmpeg.New(a.ffmpegBin).
		Input(source).
		WithFilter(ffmpeg.SilenceDetect{NoiseDB: NoiseFloorDB, MinDuration: MinSilenceSeconds}).
		Format("null").
		Output("-")

	if err := cmd.Run(ctx, ffmpeg.RunOptions{Stderr: &stderr}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExtractionFailed, "silence scan")
	}

	silences := parseSilences(stderr.String())
	a.log.Debug("silence scan complete", "source", source, "silences", len(silences))
	return silences, nil
}

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?\d+(?:\.\d+)?)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?\d+(?:\.\d+)?)\s*\|\s*silence_duration:\s*(-?\d+(?:\.\d+)?)`)
)

// parseSilences reads silencedetect log lines. Start and end lines
// arrive separately; an end without a preceding start is ignored.
func parseSilences(stderr string) []Silence {
	var silences []Silence
	var pendingStart *float64

	scanner := bufio.NewScanner(strings.NewReader(stderr))
	for scanner.Scan() {
		line := scanner.Text()

		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				pendingStart = &v
			}
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil && pendingStart != nil {
			end, err1 := strconv.ParseFloat(m[1], 64)
			dur, err2 := strconv.ParseFloat(m[2], 64)
			if err1 == nil && err2 == nil {
				silences = append(silences, Silence{Start: *pendingStart, End: end, Duration: dur})
			}
			pendingStart = nil
		}
	}
	return silences
}
