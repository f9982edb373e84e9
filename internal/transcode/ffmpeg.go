package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"stemforge/internal/config"
	"stemforge/internal/deps"
	"stemforge/internal/fileutil"
	"stemforge/internal/logging"
	"stemforge/internal/services"
)

const defaultAACBitrate = "256k"

// FFmpeg implements Transcoder by running the ffmpeg binary.
type FFmpeg struct {
	binary  string
	bitrate string
	logger  *slog.Logger
	run     services.Runner

	encoderOnce sync.Once
	aacEncoder  string
}

// Option customizes an FFmpeg transcoder.
type Option func(*FFmpeg)

// WithRunner injects the process runner, mainly for tests.
func WithRunner(r services.Runner) Option {
	return func(f *FFmpeg) {
		if r != nil {
			f.run = r
		}
	}
}

// WithAACEncoder pins the AAC encoder instead of probing ffmpeg for it.
func WithAACEncoder(name string) Option {
	return func(f *FFmpeg) {
		if name = strings.TrimSpace(name); name != "" {
			f.encoderOnce.Do(func() { f.aacEncoder = name })
		}
	}
}

// NewFFmpeg builds a transcoder from the [tools] and [encoding] config sections.
func NewFFmpeg(cfg *config.Config, logger *slog.Logger, opts ...Option) *FFmpeg {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	f := &FFmpeg{
		binary:  cfg.Tools.FFmpeg,
		bitrate: cfg.Encoding.AACBitrate,
		logger:  logging.NewComponentLogger(logger, "transcoder"),
		run:     services.ExecRunner{Timeout: cfg.ToolTimeout()},
	}
	if f.binary == "" {
		f.binary = "ffmpeg"
	}
	if f.bitrate == "" {
		f.bitrate = defaultAACBitrate
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Normalize implements Transcoder.
func (f *FFmpeg) Normalize(ctx context.Context, input string, codec Codec) (string, error) {
	action, err := Classify(input)
	if err != nil {
		return "", err
	}
	if action == ActionPassthrough {
		f.logger.Debug("input already mp4 family",
			logging.String("path", input),
			logging.String(logging.FieldEventType, "normalize_passthrough"),
		)
		return input, nil
	}

	output := NormalizedPath(input)
	if err := fileutil.RemoveIfExists(output); err != nil {
		return "", services.Wrap(services.ErrExternalTool, services.StageNormalize, "remove stale output", output, err)
	}

	args := f.convertArgs(ctx, input, output, codec)
	start := time.Now()
	if _, err := f.run.Run(ctx, services.Command{Tool: "ffmpeg", Binary: f.binary, Args: args}); err != nil {
		_ = fileutil.RemoveIfExists(output)
		logging.ToolFailure(logging.WithContext(ctx, f.logger), "input conversion failed", err, logging.String("input", input))
		return "", services.Wrap(services.ErrExternalTool, services.StageNormalize, "convert input", filepath.Base(input), err)
	}

	f.logger.Info("input normalized",
		logging.String(logging.FieldEventType, "normalize_complete"),
		logging.String("path", input),
		logging.String("output", output),
		logging.String("codec", string(codec)),
		logging.Duration("duration", time.Since(start)),
	)
	return output, nil
}

func (f *FFmpeg) convertArgs(ctx context.Context, input, output string, codec Codec) []string {
	args := []string{"-y", "-v", "error", "-i", input}
	if codec == CodecAAC {
		args = append(args, "-c:a", f.AACEncoder(ctx), "-b:a", f.bitrate)
	} else {
		args = append(args, "-c:a", "alac")
	}
	return append(args, output)
}

// AACEncoder returns libfdk_aac when the local ffmpeg lists it among its AAC
// encoders, otherwise the native encoder. The probe runs once per transcoder.
func (f *FFmpeg) AACEncoder(ctx context.Context) string {
	f.encoderOnce.Do(func() {
		out, err := f.run.Run(ctx, services.Command{Tool: "ffmpeg", Binary: f.binary, Args: []string{"-v", "error", "-codecs"}})
		if err != nil {
			logging.WarnWithContext(f.logger, "aac encoder probe failed", "aac_probe_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "using the native aac encoder"),
				logging.String(logging.FieldErrorHint, "check that ffmpeg runs with -codecs"),
			)
			f.aacEncoder = deps.NativeAACEncoder
			return
		}
		f.aacEncoder = deps.PreferredAACEncoder(string(out))
		f.logger.Debug("aac encoder selected", logging.String("encoder", f.aacEncoder))
	})
	return f.aacEncoder
}

// DecodeArgs builds the ffmpeg invocation that writes one stream as raw PCM to stdout.
func DecodeArgs(req DecodeRequest) []string {
	format := req.Format
	if format == "" {
		format = FormatF32LE
	}
	args := []string{"-v", "error", "-i", req.Path, "-map", "0:" + strconv.Itoa(req.Stream)}
	if req.Start > 0 {
		args = append(args, "-ss", seconds(req.Start))
	}
	if req.Duration > 0 {
		args = append(args, "-t", seconds(req.Duration))
	}
	args = append(args, "-f", string(format))
	if req.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(req.SampleRate))
	}
	return append(args, "pipe:")
}

// DecodePCM implements Transcoder.
func (f *FFmpeg) DecodePCM(ctx context.Context, req DecodeRequest) ([]byte, error) {
	out, err := f.run.Run(ctx, services.Command{Tool: "ffmpeg", Binary: f.binary, Args: DecodeArgs(req)})
	if err != nil {
		logging.ToolFailure(logging.WithContext(ctx, f.logger), "stream decode failed", err,
			logging.String("input", req.Path),
			logging.Int("stream", req.Stream),
		)
		return nil, services.Wrap(services.ErrExternalTool, services.StageExtract, "decode stream", fmt.Sprintf("%s stream %d", filepath.Base(req.Path), req.Stream), err)
	}
	return out, nil
}

// EncodeArgs builds the ffmpeg invocation that reads f32le PCM from stdin.
func EncodeArgs(req EncodeRequest) ([]string, error) {
	codec, err := outputCodec(req.Output)
	if err != nil {
		return nil, err
	}
	return []string{
		"-y", "-v", "error",
		"-f", string(FormatF32LE),
		"-ar", strconv.Itoa(req.SampleRate),
		"-ac", strconv.Itoa(req.Channels),
		"-i", "pipe:",
		"-c:a", codec,
		req.Output,
	}, nil
}

func outputCodec(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return "pcm_s16le", nil
	case ".aif", ".aiff":
		return "pcm_s16be", nil
	case ".flac":
		return "flac", nil
	case ".m4a":
		return "alac", nil
	default:
		return "", services.Wrap(services.ErrUnsupportedFormat, services.StageExtract, "choose output codec", filepath.Base(path), nil)
	}
}

// EncodePCM implements Transcoder.
func (f *FFmpeg) EncodePCM(ctx context.Context, req EncodeRequest) error {
	if req.Channels <= 0 || req.SampleRate <= 0 {
		return services.Wrap(services.ErrValidation, services.StageExtract, "encode pcm", "sample rate and channels must be positive", nil)
	}
	args, err := EncodeArgs(req)
	if err != nil {
		return err
	}
	cmd := services.Command{Tool: "ffmpeg", Binary: f.binary, Args: args, Stdin: bytes.NewReader(F32LE(req.Frames))}
	if _, err := f.run.Run(ctx, cmd); err != nil {
		_ = fileutil.RemoveIfExists(req.Output)
		logging.ToolFailure(logging.WithContext(ctx, f.logger), "stream write failed", err, logging.String("output", req.Output))
		return services.Wrap(services.ErrExternalTool, services.StageExtract, "encode pcm", filepath.Base(req.Output), err)
	}
	f.logger.Debug("stream written",
		logging.String("output", req.Output),
		logging.Int("frames", len(req.Frames)),
	)
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
