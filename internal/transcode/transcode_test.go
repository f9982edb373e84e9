package transcode

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stemforge/internal/config"
	"stemforge/internal/logging"
	"stemforge/internal/services"
)

const codecsOutput = " DEA.L. aac  AAC (Advanced Audio Coding) (decoders: aac aac_fixed ) (encoders: aac libfdk_aac )\n"

type recorder struct {
	calls  atomic.Int32
	probes atomic.Int32
	last   []string
	stdin  []byte
	fail   error
	codecs string
}

func (r *recorder) Run(_ context.Context, cmd services.Command) ([]byte, error) {
	if slices.Contains(cmd.Args, "-codecs") {
		r.probes.Add(1)
		return []byte(r.codecs), nil
	}
	r.calls.Add(1)
	r.last = cmd.Args
	if cmd.Stdin != nil {
		r.stdin, _ = io.ReadAll(cmd.Stdin)
	}
	if r.fail != nil {
		return nil, r.fail
	}
	out := cmd.Args[len(cmd.Args)-1]
	if out != "pipe:" {
		if err := os.WriteFile(out, []byte("converted"), 0o644); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return []byte{0, 0, 0x80, 0x3f}, nil
}

func newTestFFmpeg(r *recorder) *FFmpeg {
	cfg := config.Default()
	return NewFFmpeg(&cfg, logging.NewNop(), WithRunner(r))
}

func TestClassify(t *testing.T) {
	for _, p := range []string{"a.m4a", "a.MP4", "a.m4p"} {
		action, err := Classify(p)
		require.NoError(t, err)
		assert.Equal(t, ActionPassthrough, action, p)
	}
	for _, p := range []string{"a.wav", "a.wave", "a.aif", "a.AIFF", "a.flac"} {
		action, err := Classify(p)
		require.NoError(t, err)
		assert.Equal(t, ActionConvert, action, p)
	}
	_, err := Classify("a.mp3")
	assert.ErrorIs(t, err, services.ErrUnsupportedFormat)
	assert.Equal(t, services.StageNormalize, services.StageOf(err))
}

func TestNormalizePassthroughRunsNothing(t *testing.T) {
	r := &recorder{}
	got, err := newTestFFmpeg(r).Normalize(context.Background(), "/music/mix.m4a", CodecALAC)
	require.NoError(t, err)
	assert.Equal(t, "/music/mix.m4a", got)
	assert.Zero(t, r.calls.Load())
}

func TestNormalizeConvertsToALACAndRemovesStaleTarget(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "drums.wav")
	require.NoError(t, os.WriteFile(input, []byte("RIFF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drums.m4a"), []byte("stale"), 0o644))

	r := &recorder{}
	got, err := newTestFFmpeg(r).Normalize(context.Background(), input, CodecALAC)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "drums.m4a"), got)
	assert.Equal(t, []string{"-y", "-v", "error", "-i", input, "-c:a", "alac", got}, r.last)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "converted", string(data))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "bass.flac")
	require.NoError(t, os.WriteFile(input, []byte("fLaC"), 0o644))
	f := newTestFFmpeg(&recorder{})
	first, err := f.Normalize(context.Background(), input, CodecALAC)
	require.NoError(t, err)
	second, err := f.Normalize(context.Background(), input, CodecALAC)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeAACPrefersFDKAndProbesOnce(t *testing.T) {
	dir := t.TempDir()
	r := &recorder{codecs: codecsOutput}
	f := newTestFFmpeg(r)
	for _, name := range []string{"a.aiff", "b.aif"} {
		input := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(input, []byte("FORM"), 0o644))
		out, err := f.Normalize(context.Background(), input, CodecAAC)
		require.NoError(t, err)
		assert.Equal(t, []string{"-y", "-v", "error", "-i", input, "-c:a", "libfdk_aac", "-b:a", "256k", out}, r.last)
	}
	assert.Equal(t, int32(1), r.probes.Load())
}

func TestAACEncoderFallsBackToNative(t *testing.T) {
	r := &recorder{codecs: " DEA.L. aac  AAC (Advanced Audio Coding) (encoders: aac )\n"}
	assert.Equal(t, "aac", newTestFFmpeg(r).AACEncoder(context.Background()))

	pinned := NewFFmpeg(nil, nil, WithRunner(r), WithAACEncoder("aac_at"))
	assert.Equal(t, "aac_at", pinned.AACEncoder(context.Background()))
}

func TestNormalizeToolFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "vox.wav")
	require.NoError(t, os.WriteFile(input, []byte("RIFF"), 0o644))
	r := &recorder{fail: &services.ProcessError{Tool: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found"}}

	_, err := newTestFFmpeg(r).Normalize(context.Background(), input, CodecALAC)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrExternalTool)
	assert.Equal(t, services.StageNormalize, services.StageOf(err))
	var perr *services.ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.ExitCode)
	_, statErr := os.Stat(filepath.Join(dir, "vox.m4a"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNormalizeUnsupported(t *testing.T) {
	_, err := newTestFFmpeg(&recorder{}).Normalize(context.Background(), "song.ogg", CodecALAC)
	assert.ErrorIs(t, err, services.ErrUnsupportedFormat)
}

func TestDecodeArgs(t *testing.T) {
	got := DecodeArgs(DecodeRequest{Path: "in.stem.m4a", Stream: 2, SampleRate: 44100})
	assert.Equal(t, []string{"-v", "error", "-i", "in.stem.m4a", "-map", "0:2", "-f", "f32le", "-ar", "44100", "pipe:"}, got)

	got = DecodeArgs(DecodeRequest{Path: "in.stem.m4a", Stream: 0, SampleRate: 48000, Format: FormatS16LE, Start: 1500 * time.Millisecond, Duration: 10 * time.Second})
	assert.Equal(t, []string{"-v", "error", "-i", "in.stem.m4a", "-map", "0:0", "-ss", "1.5", "-t", "10", "-f", "s16le", "-ar", "48000", "pipe:"}, got)
}

func TestDecodePCM(t *testing.T) {
	raw, err := newTestFFmpeg(&recorder{}).DecodePCM(context.Background(), DecodeRequest{Path: "x.m4a", SampleRate: 44100})
	require.NoError(t, err)
	frames, err := Frames(raw, FormatF32LE, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}}, frames)
}

func TestEncodePCMPipesFrames(t *testing.T) {
	dir := t.TempDir()
	r := &recorder{}
	out := filepath.Join(dir, "Song {Drums}.wav")
	frames := [][]float32{{0.5, -0.5}, {0.25, 0}}
	require.NoError(t, newTestFFmpeg(r).EncodePCM(context.Background(), EncodeRequest{Output: out, Frames: frames, SampleRate: 44100, Channels: 2}))
	assert.Equal(t, []string{"-y", "-v", "error", "-f", "f32le", "-ar", "44100", "-ac", "2", "-i", "pipe:", "-c:a", "pcm_s16le", out}, r.last)
	assert.Equal(t, F32LE(frames), r.stdin)

	err := newTestFFmpeg(r).EncodePCM(context.Background(), EncodeRequest{Output: filepath.Join(dir, "x.ogg"), SampleRate: 44100, Channels: 2})
	assert.ErrorIs(t, err, services.ErrUnsupportedFormat)
	err = newTestFFmpeg(r).EncodePCM(context.Background(), EncodeRequest{Output: out})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("AAC")
	require.NoError(t, err)
	assert.Equal(t, CodecAAC, c)
	c, err = ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecALAC, c)
	_, err = ParseCodec("mp3")
	assert.ErrorIs(t, err, services.ErrValidation)
}
