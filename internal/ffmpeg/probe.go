package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultProbeBinary is used when no explicit ffprobe path is configured.
const DefaultProbeBinary = "ffprobe"

// Prober reports media durations via ffprobe.
type Prober struct {
	binary string
}

// NewProber creates a prober for the given ffprobe path.
func NewProber(binary string) *Prober {
	if binary == "" {
		binary = DefaultProbeBinary
	}
	return &Prober{binary: binary}
}

// Duration returns the container duration in seconds for a local file
// or URL.
func (p *Prober) Duration(ctx context.Context, input string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	) //#nosec G204 -- binary path is validated at service init

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", input, err, lastLine(stderr.String()))
	}

	raw := strings.TrimSpace(stdout.String())
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned non-numeric duration %q for %s", raw, input)
	}
	return seconds, nil
}
