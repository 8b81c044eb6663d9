// Package ffmpeg builds and runs external audio-tool invocations as
// immutable command values. Every mutator returns a new Command, so a
// partially built command can be shared and extended from several call
// sites without interference.
package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"context"
)

// DefaultBinary is used when no explicit ffmpeg path is configured.
const DefaultBinary = "ffmpeg"

type seekWindow struct {
	start *float64
	end   *float64
}

type options struct {
	input      string
	inputArgs  []string
	output     string
	inputSeek  seekWindow
	outputSeek seekWindow
	duration   *float64
	filter     Filter
	codec      Codec
	format     string
	metadata   map[string]string
	maps       []string
	overwrite  bool
	extraArgs  []string
}

// clone deep-copies the slices and map so mutators never alias state
// with the command they were derived from.
func (o options) clone() options {
	c := o
	c.inputArgs = append([]string(nil), o.inputArgs...)
	c.maps = append([]string(nil), o.maps...)
	c.extraArgs = append([]string(nil), o.extraArgs...)
	if o.metadata != nil {
		c.metadata = make(map[string]string, len(o.metadata))
		for k, v := range o.metadata {
			c.metadata[k] = v
		}
	}
	return c
}

// Command is an immutable description of one external-tool invocation.
type Command struct {
	binary string
	opts   options
}

// New creates an empty command for the given binary path.
// An empty path falls back to DefaultBinary.
func New(binary string) Command {
	if binary == "" {
		binary = DefaultBinary
	}
	return Command{binary: binary}
}

// Input sets the input source (file path, URL, or pipe) with optional
// input-side arguments placed before -i.
func (c Command) Input(input string, inputArgs ...string) Command {
	opts := c.opts.clone()
	opts.input = input
	opts.inputArgs = append([]string(nil), inputArgs...)
	return Command{binary: c.binary, opts: opts}
}

// Output sets the output target ("-" for stdout).
func (c Command) Output(output string) Command {
	opts := c.opts.clone()
	opts.output = output
	return Command{binary: c.binary, opts: opts}
}

// SeekInput seeks the input to start seconds before decoding.
func (c Command) SeekInput(start float64) Command {
	opts := c.opts.clone()
	opts.inputSeek.start = &start
	return Command{binary: c.binary, opts: opts}
}

// SeekInputUntil stops input reading at end seconds.
func (c Command) SeekInputUntil(end float64) Command {
	opts := c.opts.clone()
	opts.inputSeek.end = &end
	return Command{binary: c.binary, opts: opts}
}

// SeekOutput seeks on the output side (after decode, frame accurate).
func (c Command) SeekOutput(start float64) Command {
	opts := c.opts.clone()
	opts.outputSeek.start = &start
	return Command{binary: c.binary, opts: opts}
}

// SeekOutputUntil stops output at end seconds.
func (c Command) SeekOutputUntil(end float64) Command {
	opts := c.opts.clone()
	opts.outputSeek.end = &end
	return Command{binary: c.binary, opts: opts}
}

// Duration caps the output length in seconds.
func (c Command) Duration(seconds float64) Command {
	opts := c.opts.clone()
	opts.duration = &seconds
	return Command{binary: c.binary, opts: opts}
}

// WithFilter attaches an audio filter.
func (c Command) WithFilter(f Filter) Command {
	opts := c.opts.clone()
	opts.filter = f
	return Command{binary: c.binary, opts: opts}
}

// WithCodec attaches a codec directive.
func (c Command) WithCodec(codec Codec) Command {
	opts := c.opts.clone()
	opts.codec = codec
	return Command{binary: c.binary, opts: opts}
}

// Format sets the output container format (-f).
func (c Command) Format(format string) Command {
	opts := c.opts.clone()
	opts.format = format
	return Command{binary: c.binary, opts: opts}
}

// Metadata adds output metadata tags.
func (c Command) Metadata(tags map[string]string) Command {
	opts := c.opts.clone()
	if opts.metadata == nil {
		opts.metadata = make(map[string]string, len(tags))
	}
	for k, v := range tags {
		opts.metadata[k] = v
	}
	return Command{binary: c.binary, opts: opts}
}

// Map appends stream map selectors.
func (c Command) Map(streams ...string) Command {
	opts := c.opts.clone()
	opts.maps = append(opts.maps, streams...)
	return Command{binary: c.binary, opts: opts}
}

// Overwrite allows replacing an existing output file (-y).
func (c Command) Overwrite() Command {
	opts := c.opts.clone()
	opts.overwrite = true
	return Command{binary: c.binary, opts: opts}
}

// Args appends raw arguments placed just before the output target.
func (c Command) Args(args ...string) Command {
	opts := c.opts.clone()
	opts.extraArgs = append(opts.extraArgs, args...)
	return Command{binary: c.binary, opts: opts}
}

// BuildArgs serializes the command to an argument list. Building the
// same chain of calls always yields the same list.
func (c Command) BuildArgs() []string {
	var args []string

	if c.opts.overwrite {
		args = append(args, "-y")
	}

	if c.opts.inputSeek.start != nil {
		args = append(args, "-ss", formatFloat(*c.opts.inputSeek.start))
	}
	if c.opts.inputSeek.end != nil {
		args = append(args, "-to", formatFloat(*c.opts.inputSeek.end))
	}

	args = append(args, c.opts.inputArgs...)

	if c.opts.input != "" {
		args = append(args, "-i", c.opts.input)
	}

	if c.opts.outputSeek.start != nil {
		args = append(args, "-ss", formatFloat(*c.opts.outputSeek.start))
	}
	if c.opts.outputSeek.end != nil {
		args = append(args, "-to", formatFloat(*c.opts.outputSeek.end))
	}

	if c.opts.duration != nil {
		args = append(args, "-t", formatFloat(*c.opts.duration))
	}

	for _, m := range c.opts.maps {
		args = append(args, "-map", m)
	}

	if c.opts.filter != nil {
		args = append(args, "-af", c.opts.filter.filterString())
	}

	if c.opts.codec != nil {
		args = append(args, c.opts.codec.codecArgs()...)
	}

	if len(c.opts.metadata) > 0 {
		keys := make([]string, 0, len(c.opts.metadata))
		for k := range c.opts.metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, "-metadata", k+"="+c.opts.metadata[k])
		}
	}

	if c.opts.format != "" {
		args = append(args, "-f", c.opts.format)
	}

	args = append(args, c.opts.extraArgs...)

	if c.opts.output != "" {
		args = append(args, c.opts.output)
	}

	return args
}

// String renders the full invocation for logging.
func (c Command) String() string {
	return c.binary + " " + strings.Join(c.BuildArgs(), " ")
}

// RunOptions configures sinks for a Run call.
type RunOptions struct {
	// Stdout receives the process stdout; nil discards it.
	Stdout io.Writer
	// Stderr receives the process stderr; nil discards it. The tail of
	// stderr is retained for error reporting either way.
	Stderr io.Writer
}

// Run spawns the process and waits for it to exit. Exit code 1 is
// tolerated alongside 0: diagnostic-only invocations (null-muxed filter
// passes) exit 1 without writing an output file.
func (c Command) Run(ctx context.Context, opts RunOptions) error {
	if c.opts.input == "" {
		return errors.New("ffmpeg: command has no input")
	}

	cmd := exec.CommandContext(ctx, c.binary, c.BuildArgs()...) //#nosec G204 -- binary path is validated at service init

	var stderrTail strings.Builder
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = io.MultiWriter(opts.Stderr, capWriter{&stderrTail})
	} else {
		cmd.Stderr = capWriter{&stderrTail}
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg exited: %w: %s", err, lastLine(stderrTail.String()))
	}
	return nil
}

// Process is a started invocation whose stdout is consumed as a stream.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr strings.Builder
	// closed once the stderr scanner drains; stderr must not be read
	// before then
	stderrDone chan struct{}
}

// Start spawns the process and returns a handle exposing stdout.
// The caller must call Wait (or Kill) to reap the process.
func (c Command) Start(ctx context.Context) (*Process, error) {
	if c.opts.input == "" {
		return nil, errors.New("ffmpeg: command has no input")
	}

	cmd := exec.CommandContext(ctx, c.binary, c.BuildArgs()...) //#nosec G204 -- binary path is validated at service init

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	p := &Process{cmd: cmd, stdout: stdout, stderrDone: make(chan struct{})}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	go func() {
		defer close(p.stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if p.stderr.Len() < 8192 {
				p.stderr.WriteString(line)
				p.stderr.WriteByte('\n')
			}
		}
	}()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	return p, nil
}

// Stdout returns the process stdout stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Wait blocks until the process exits; only exit code 0 is success.
// The stderr scanner is joined first so the retained tail is complete
// and never written concurrently.
func (p *Process) Wait() error {
	<-p.stderrDone
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg exited: %w: %s", err, lastLine(p.stderr.String()))
	}
	return nil
}

// Kill terminates the process; used when the consumer disconnects.
func (p *Process) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.stderrDone
	_ = p.cmd.Wait()
}

// capWriter bounds retained stderr so a chatty process cannot grow the
// error tail without limit.
type capWriter struct {
	b *strings.Builder
}

func (w capWriter) Write(p []byte) (int, error) {
	if w.b.Len() < 8192 {
		w.b.Write(p)
	}
	return len(p), nil
}

// lastLine returns the last non-warning stderr line for error messages.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.Contains(line, "WARNING") {
			return line
		}
	}
	return ""
}
