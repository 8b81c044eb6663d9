package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is one audio filter from the closed set the builder accepts.
// Each filter serializes to its own ffmpeg parameter syntax.
type Filter interface {
	filterString() string
}

// Adaptive is the aap (affine projection) adaptive filter.
type Adaptive struct {
	Order      int
	Projection string // mono, stereo
	Mu         float64
	Delta      float64
	OutMode    string // i, d, o, n, e
	Precision  string // auto, float, double
}

func (f Adaptive) filterString() string {
	return fmt.Sprintf("aap=order=%d:projection=%s:mu=%s:delta=%s:out_mode=%s:precision=%s",
		f.Order, f.Projection, formatFloat(f.Mu), formatFloat(f.Delta), f.OutMode, f.Precision)
}

// SilenceDetect reports low-amplitude intervals on stderr.
type SilenceDetect struct {
	// NoiseDB is the noise floor in dB; anything quieter counts as silence.
	NoiseDB float64
	// MinDuration is the shortest interval reported, in seconds.
	MinDuration float64
}

func (f SilenceDetect) filterString() string {
	return fmt.Sprintf("silencedetect=n=%sdB:d=%s", formatFloat(f.NoiseDB), formatFloat(f.MinDuration))
}

// Volume scales the audio level.
type Volume struct {
	Gain      float64
	Precision string // auto, fixed, float, double
	Eval      string // once, frame
}

func (f Volume) filterString() string {
	s := "volume=" + formatFloat(f.Gain)
	if f.Precision != "" {
		s += ":precision=" + f.Precision
	}
	if f.Eval != "" {
		s += ":eval=" + f.Eval
	}
	return s
}

// Stats is the astats measurement filter.
type Stats struct {
	WindowLength float64
	Metadata     bool
	Reset        int
}

func (f Stats) filterString() string {
	var params []string
	if f.WindowLength > 0 {
		params = append(params, "length="+formatFloat(f.WindowLength))
	}
	if f.Metadata {
		params = append(params, "metadata=1")
	}
	if f.Reset > 0 {
		params = append(params, "reset="+strconv.Itoa(f.Reset))
	}
	if len(params) == 0 {
		return "astats"
	}
	return "astats=" + strings.Join(params, ":")
}

// Loudnorm applies EBU R128 loudness normalization.
// Zero-valued fields are omitted from the parameter string.
type Loudnorm struct {
	IntegratedLUFS float64
	TruePeak       float64
	Range          float64
	PrintFormat    string // none, json, summary
	Linear         bool
}

func (f Loudnorm) filterString() string {
	var params []string
	if f.IntegratedLUFS != 0 {
		params = append(params, "I="+formatFloat(f.IntegratedLUFS))
	}
	if f.TruePeak != 0 {
		params = append(params, "TP="+formatFloat(f.TruePeak))
	}
	if f.Range != 0 {
		params = append(params, "LRA="+formatFloat(f.Range))
	}
	if f.PrintFormat != "" {
		params = append(params, "print_format="+f.PrintFormat)
	}
	if f.Linear {
		params = append(params, "linear=true")
	}
	if len(params) == 0 {
		return "loudnorm"
	}
	return "loudnorm=" + strings.Join(params, ":")
}

// Resample changes the sample rate.
type Resample struct {
	SampleRate int
}

func (f Resample) filterString() string {
	return "aresample=" + strconv.Itoa(f.SampleRate)
}

// formatFloat renders a float without trailing zeros, matching how
// ffmpeg expects bare numeric parameters.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
