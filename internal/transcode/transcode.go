// Package transcode maps output format names onto concrete encoder
// invocations and starts streaming conversions whose stdout is piped
// straight to the consumer.
package transcode

import (
	"context"
	"log/slog"
	"strconv"

	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
	"github.com/harmoniaapp/harmonia-server/internal/ffmpeg"
)

// Preset describes one supported output format.
type Preset struct {
	// Format is the container passed to -f. Stdout output cannot seek,
	// so containers requiring a rewrite pass (m4a) are expressed via a
	// streamable variant (adts).
	Format      string
	ContentType string
	Codec       ffmpeg.Codec
	// ExtraArgs are appended before the output target.
	ExtraArgs []string
	// SampleRate of 0 keeps the source rate.
	SampleRate int
	// Channels of 0 keeps the source layout.
	Channels int
}

var presets = map[string]Preset{
	"mp3": {
		Format:      "mp3",
		ContentType: "audio/mpeg",
		Codec:       ffmpeg.Audio{Name: "libmp3lame", Bitrate: "320k"},
		SampleRate:  44100,
		Channels:    2,
	},
	"wav": {
		Format:      "wav",
		ContentType: "audio/wav",
		Codec:       ffmpeg.Audio{Name: "pcm_s16le"},
	},
	"flac": {
		Format:      "flac",
		ContentType: "audio/flac",
		Codec:       ffmpeg.Audio{Name: "flac"},
		ExtraArgs:   []string{"-compression_level", "5"},
	},
	"aac": {
		Format:      "adts",
		ContentType: "audio/aac",
		Codec:       ffmpeg.Audio{Name: "aac", Bitrate: "256k"},
	},
}

// Lookup resolves a format name to its preset.
func Lookup(format string) (Preset, error) {
	p, ok := presets[format]
	if !ok {
		return Preset{}, apperrors.UnsupportedFormat("unsupported transcode format: " + format)
	}
	return p, nil
}

// Formats lists the supported output format names.
func Formats() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// Transcoder starts ffmpeg conversions writing to stdout.
type Transcoder struct {
	binary string
	log    *slog.Logger
}

// New creates a transcoder using the given ffmpeg path.
func New(binary string, log *slog.Logger) *Transcoder {
	return &Transcoder{binary: binary, log: log}
}

// FromFile transcodes a local file to the named format, streaming the
// result on the returned process stdout. A start/end pair bounds the
// output to that window of the source; end at or below start means the
// whole file.
func (t *Transcoder) FromFile(ctx context.Context, path, format string, start, end float64) (*ffmpeg.Process, Preset, error) {
	return t.start(ctx, format, func(cmd ffmpeg.Command) ffmpeg.Command {
		return windowed(cmd, start, end).Input(path)
	})
}

// FromURL transcodes a remote source, letting ffmpeg handle the fetch.
// The start/end window works as in FromFile.
func (t *Transcoder) FromURL(ctx context.Context, url, format string, start, end float64) (*ffmpeg.Process, Preset, error) {
	return t.start(ctx, format, func(cmd ffmpeg.Command) ffmpeg.Command {
		return windowed(cmd, start, end).Input(url)
	})
}

// FromPipe transcodes raw signed 16-bit little-endian stereo PCM read
// from a named pipe.
func (t *Transcoder) FromPipe(ctx context.Context, pipePath, format string) (*ffmpeg.Process, Preset, error) {
	return t.start(ctx, format, func(cmd ffmpeg.Command) ffmpeg.Command {
		return cmd.Input(pipePath, "-f", "s16le", "-ar", "44100", "-ac", "2")
	})
}

// windowed seeks the input to start and caps the output duration so a
// windowed track never plays past its own boundary.
func windowed(cmd ffmpeg.Command, start, end float64) ffmpeg.Command {
	if end <= start {
		return cmd
	}
	if start > 0 {
		cmd = cmd.SeekInput(start)
	}
	return cmd.Duration(end - start)
}

func (t *Transcoder) start(ctx context.Context, format string, bind func(ffmpeg.Command) ffmpeg.Command) (*ffmpeg.Process, Preset, error) {
	preset, err := Lookup(format)
	if err != nil {
		return nil, Preset{}, err
	}

	cmd := bind(ffmpeg.New(t.binary)).
		WithCodec(preset.Codec).
		Format(preset.Format)

	if preset.SampleRate > 0 {
		cmd = cmd.Args("-ar", strconv.Itoa(preset.SampleRate))
	}
	if preset.Channels > 0 {
		cmd = cmd.Args("-ac", strconv.Itoa(preset.Channels))
	}
	cmd = cmd.Args(preset.ExtraArgs...).Output("-")

	t.log.Debug("starting transcode", "format", format, "command", cmd.String())

	proc, err := cmd.Start(ctx)
	if err != nil {
		return nil, Preset{}, apperrors.Wrap(err, apperrors.CodeInternal, "start transcode")
	}
	return proc, preset, nil
}
