package ffmpeg

// Codec is a codec directive: stream copy or an audio/video re-encode.
type Codec interface {
	codecArgs() []string
}

// Copy passes streams through without re-encoding.
type Copy struct{}

func (Copy) codecArgs() []string {
	return []string{"-c", "copy"}
}

// Audio re-encodes the audio stream.
type Audio struct {
	Name    string // aac, libmp3lame, flac, ...
	Bitrate string // e.g. "320k"; empty leaves the encoder default
}

func (c Audio) codecArgs() []string {
	args := []string{"-c:a", c.Name}
	if c.Bitrate != "" {
		args = append(args, "-b:a", c.Bitrate)
	}
	return args
}

// Video re-encodes the video stream.
type Video struct {
	Name    string
	Bitrate string
	Preset  string // ultrafast..veryslow for x264/x265, realtime/good/best for vpx
}

func (c Video) codecArgs() []string {
	args := []string{"-c:v", c.Name}
	if c.Bitrate != "" {
		args = append(args, "-b:v", c.Bitrate)
	}
	if c.Preset != "" {
		args = append(args, "-preset", c.Preset)
	}
	return args
}
