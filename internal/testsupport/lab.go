package testsupport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"stemforge/internal/media/ffprobe"
	"stemforge/internal/mp4"
	"stemforge/internal/mux"
	"stemforge/internal/services"
	"stemforge/internal/stemmeta"
	"stemforge/internal/transcode"
)

// Track is the in-memory audio of one source file or container stream.
type Track struct {
	SampleRate int
	// Frames holds interleaved samples: Frames[i][channel].
	Frames [][]float32
}

// Channels returns the per-frame sample count.
func (t Track) Channels() int {
	if len(t.Frames) == 0 {
		return 0
	}
	return len(t.Frames[0])
}

// Lab is a deterministic in-memory stand-in for ffmpeg, ffprobe and MP4Box.
// It satisfies transcode.Transcoder, mux.Muxer and the demux prober and
// decoder interfaces. Containers it writes are real minimal MP4 files, so
// the native box reader and tag writer operate on them unchanged.
type Lab struct {
	mu         sync.Mutex
	sources    map[string]Track
	containers map[string][]Track
	failures   map[string]error
	calls      []string
}

// NewLab returns an empty lab.
func NewLab() *Lab {
	return &Lab{
		sources:    map[string]Track{},
		containers: map[string][]Track{},
		failures:   map[string]error{},
	}
}

// AddSource writes a placeholder file at path and records its audio.
func (l *Lab) AddSource(t testing.TB, path string, track Track) {
	t.Helper()
	WriteFile(t, path, 64)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[path] = track
}

// AddContainer writes a minimal stem-style MP4 at path whose first track is
// enabled and the rest disabled. A nil meta writes no stem box.
func (l *Lab) AddContainer(t testing.TB, path string, tracks []Track, meta *stemmeta.Metadata) {
	t.Helper()
	var box []byte
	if meta != nil {
		raw, err := stemmeta.Marshal(*meta)
		if err != nil {
			t.Fatalf("marshal stem metadata: %v", err)
		}
		box = raw
	}
	l.AddContainerBox(t, path, tracks, box)
}

// AddContainerBox is AddContainer with a raw stem box payload.
func (l *Lab) AddContainerBox(t testing.TB, path string, tracks []Track, box []byte) {
	t.Helper()
	if err := l.writeContainer(path, tracks, box); err != nil {
		t.Fatalf("write container %s: %v", path, err)
	}
}

// Fail makes the next operation named op ("normalize", "mux", "decode",
// "probe", "encode") on path return err. An empty path matches any path.
func (l *Lab) Fail(op, path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op+"|"+path] = err
}

// Container returns the streams recorded for a container path.
func (l *Lab) Container(path string) ([]Track, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tracks, ok := l.containers[path]
	return tracks, ok
}

// Source returns the audio recorded for a source or decoded output path.
func (l *Lab) Source(path string) (Track, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	track, ok := l.sources[path]
	return track, ok
}

// Calls returns the operations performed so far, as "op path".
func (l *Lab) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *Lab) record(op, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, op+" "+path)
	for _, key := range []string{op + "|" + path, op + "|"} {
		if err, ok := l.failures[key]; ok {
			delete(l.failures, key)
			return err
		}
	}
	return nil
}

// Normalize implements transcode.Transcoder.
func (l *Lab) Normalize(ctx context.Context, input string, codec transcode.Codec) (string, error) {
	if err := l.record("normalize", input); err != nil {
		return "", err
	}
	action, err := transcode.Classify(input)
	if err != nil {
		return "", err
	}
	if action == transcode.ActionPassthrough {
		return input, nil
	}
	l.mu.Lock()
	track, ok := l.sources[input]
	l.mu.Unlock()
	if !ok {
		return "", services.Wrap(services.ErrNotFound, services.StageNormalize, "normalize", input, nil)
	}
	output := transcode.NormalizedPath(input)
	if err := os.WriteFile(output, []byte(codec), 0o644); err != nil {
		return "", err
	}
	l.mu.Lock()
	l.sources[output] = track
	l.mu.Unlock()
	return output, nil
}

// Mux implements mux.Muxer.
func (l *Lab) Mux(ctx context.Context, req mux.MuxRequest) error {
	if err := l.record("mux", req.Output); err != nil {
		return err
	}
	inputs := append([]string{req.Mixdown}, req.Components...)
	tracks := make([]Track, 0, len(inputs))
	l.mu.Lock()
	for _, in := range inputs {
		track, ok := l.sources[in]
		if !ok {
			l.mu.Unlock()
			return services.Wrap(services.ErrExternalTool, services.StageMux, "mux", "unknown input "+in, nil)
		}
		tracks = append(tracks, track)
	}
	l.mu.Unlock()
	box, err := base64.StdEncoding.DecodeString(req.Metadata)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, services.StageMux, "mux", "metadata is not base64", err)
	}
	return l.writeContainer(req.Output, tracks, box)
}

func (l *Lab) writeContainer(path string, tracks []Track, box []byte) error {
	layout := mp4.MinimalLayout{Brand: "M4A "}
	for i, track := range tracks {
		payload := transcode.F32LE(track.Frames)
		if len(payload) > 64 {
			payload = payload[:64]
		}
		layout.Tracks = append(layout.Tracks, mp4.MinimalTrack{Name: "SoundHandler", Disabled: i > 0, Payload: payload})
	}
	if box != nil {
		layout.UserData = map[string][]byte{"stem": box}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := mp4.WriteMinimal(path, layout); err != nil {
		return err
	}
	l.mu.Lock()
	l.containers[path] = append([]Track(nil), tracks...)
	l.mu.Unlock()
	return nil
}

// Inspect synthesizes ffprobe output for a container or source written by the lab.
func (l *Lab) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	if err := l.record("probe", path); err != nil {
		return ffprobe.Result{}, err
	}
	l.mu.Lock()
	tracks, ok := l.containers[path]
	if !ok {
		if src, isSource := l.sources[path]; isSource {
			tracks, ok = []Track{src}, true
		}
	}
	l.mu.Unlock()
	if !ok {
		return ffprobe.Result{}, fmt.Errorf("ffprobe inspect: %s: no such file", path)
	}

	result := ffprobe.Result{Format: ffprobe.Format{Filename: path, NBStreams: len(tracks), FormatName: "mov,mp4,m4a,3gp,3g2,mj2"}}
	var longest float64
	for i, track := range tracks {
		seconds := float64(len(track.Frames)) / float64(track.SampleRate)
		longest = max(longest, seconds)
		disposition := map[string]int{"default": 0}
		if i == 0 {
			disposition["default"] = 1
		}
		result.Streams = append(result.Streams, ffprobe.Stream{
			Index:       i,
			CodecName:   "alac",
			CodecType:   "audio",
			SampleRate:  strconv.Itoa(track.SampleRate),
			Channels:    track.Channels(),
			Duration:    strconv.FormatFloat(seconds, 'f', 6, 64),
			DurationTS:  int64(len(track.Frames)),
			TimeBase:    "1/" + strconv.Itoa(track.SampleRate),
			Disposition: disposition,
			Tags:        map[string]string{"handler_name": "SoundHandler"},
		})
	}
	result.Format.Duration = strconv.FormatFloat(longest, 'f', 6, 64)
	if info, err := os.Stat(path); err == nil {
		result.Format.Size = strconv.FormatInt(info.Size(), 10)
		if longest > 0 {
			result.Format.BitRate = strconv.FormatInt(int64(float64(info.Size()*8)/longest), 10)
		}
	}
	return result, nil
}

// DecodePCM implements the demux decoder by slicing the recorded stream.
func (l *Lab) DecodePCM(ctx context.Context, req transcode.DecodeRequest) ([]byte, error) {
	if err := l.record("decode", req.Path); err != nil {
		return nil, err
	}
	l.mu.Lock()
	tracks, ok := l.containers[req.Path]
	l.mu.Unlock()
	if !ok || req.Stream < 0 || req.Stream >= len(tracks) {
		return nil, services.Wrap(services.ErrExternalTool, services.StageExtract, "decode", fmt.Sprintf("%s stream %d", req.Path, req.Stream), nil)
	}
	track := tracks[req.Stream]
	rate := track.SampleRate
	if req.SampleRate > 0 {
		rate = req.SampleRate
	}
	from := min(int(req.Start.Seconds()*float64(rate)), len(track.Frames))
	to := len(track.Frames)
	if req.Duration > 0 {
		to = min(from+int(req.Duration.Seconds()*float64(rate)), to)
	}
	format := req.Format
	if format == "" {
		format = transcode.FormatF32LE
	}
	return transcode.Encode(track.Frames[from:to], format), nil
}

// EncodePCM implements transcode.Transcoder by recording the frames.
func (l *Lab) EncodePCM(ctx context.Context, req transcode.EncodeRequest) error {
	if err := l.record("encode", req.Output); err != nil {
		return err
	}
	if err := os.WriteFile(req.Output, transcode.F32LE(req.Frames), 0o644); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[req.Output] = Track{SampleRate: req.SampleRate, Frames: req.Frames}
	return nil
}

// StemBox returns the decoded stem box of a container written by the lab.
func StemBox(t testing.TB, path string) map[string]any {
	t.Helper()
	f, err := mp4.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	raw, ok := f.UserData("stem")
	if !ok {
		t.Fatalf("%s has no stem box", path)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode stem box: %v", err)
	}
	return doc
}
