package transcode

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"stemforge/internal/services"
)

// Codec is the audio codec used for normalized container tracks.
type Codec string

const (
	CodecALAC Codec = "alac"
	CodecAAC  Codec = "aac"
)

// ParseCodec validates a codec name.
func ParseCodec(value string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(value))); c {
	case CodecALAC, CodecAAC:
		return c, nil
	case "":
		return CodecALAC, nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "parse codec", fmt.Sprintf("unsupported codec %q (want alac or aac)", value), nil)
	}
}

// Action is what Normalize does with an input file.
type Action int

const (
	ActionPassthrough Action = iota
	ActionConvert
)

// Classify decides how an input is normalized from its extension.
func Classify(path string) (Action, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a", ".mp4", ".m4p":
		return ActionPassthrough, nil
	case ".wav", ".wave", ".aif", ".aiff", ".flac":
		return ActionConvert, nil
	default:
		return 0, services.Wrap(services.ErrUnsupportedFormat, services.StageNormalize, "classify input", filepath.Base(path), nil)
	}
}

// NormalizedPath returns the path a converted input is written to: the input
// root with an .m4a extension, beside the input.
func NormalizedPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".m4a"
}

// DecodeRequest selects one stream of a container for PCM decoding.
type DecodeRequest struct {
	Path       string
	Stream     int
	SampleRate int
	Format     PCMFormat
	// Start and Duration are optional; zero Duration reads to the end.
	Start    time.Duration
	Duration time.Duration
}

// EncodeRequest writes interleaved float32 frames to Output. The container
// is chosen by Output's extension.
type EncodeRequest struct {
	Output     string
	Frames     [][]float32
	SampleRate int
	Channels   int
}

// Transcoder converts inputs for muxing and moves PCM in and out of files.
type Transcoder interface {
	// Normalize returns a path the muxer can consume: the input itself for
	// MP4-family files, otherwise a freshly written <root>.m4a.
	Normalize(ctx context.Context, input string, codec Codec) (string, error)
	// DecodePCM returns raw interleaved PCM of one stream in req.Format.
	DecodePCM(ctx context.Context, req DecodeRequest) ([]byte, error)
	// EncodePCM writes frames to req.Output.
	EncodePCM(ctx context.Context, req EncodeRequest) error
}
