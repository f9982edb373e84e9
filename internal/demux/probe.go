package demux

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"stemforge/internal/config"
	"stemforge/internal/logging"
	"stemforge/internal/media/ffprobe"
	"stemforge/internal/mp4"
	"stemforge/internal/services"
	"stemforge/internal/stemmeta"
	"stemforge/internal/transcode"
)

// Prober lists the streams of a media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Decoder returns raw PCM for one stream of a container.
type Decoder interface {
	DecodePCM(ctx context.Context, req transcode.DecodeRequest) ([]byte, error)
}

// FFprobe implements Prober with the ffprobe binary.
type FFprobe struct {
	Binary string
	Runner services.Runner
}

// NewFFprobe builds a prober from the [tools] config section.
func NewFFprobe(cfg *config.Config) *FFprobe {
	p := &FFprobe{Binary: "ffprobe"}
	var timeout time.Duration
	if cfg != nil {
		if b := strings.TrimSpace(cfg.Tools.FFprobe); b != "" {
			p.Binary = b
		}
		timeout = cfg.ToolTimeout()
	}
	p.Runner = services.ExecRunner{Timeout: timeout}
	return p
}

// Inspect implements Prober.
func (p *FFprobe) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, p.Runner, p.Binary, path)
}

// BoxReader returns the payload of a container's stem box. found is false
// when the container has none.
type BoxReader interface {
	ReadStemBox(ctx context.Context, path string) (payload []byte, found bool, err error)
}

// NativeBoxReader reads moov/udta/stem directly from the file.
type NativeBoxReader struct{}

// ReadStemBox implements BoxReader.
func (NativeBoxReader) ReadStemBox(ctx context.Context, path string) ([]byte, bool, error) {
	f, err := mp4.Open(path)
	if err != nil {
		return nil, false, err
	}
	payload, ok := f.UserData("stem")
	return payload, ok, nil
}

// MP4BoxDumpReader reads the stem box with `MP4Box -dump-udta 0:stem`, which
// writes <root>_stem.udta beside the container.
type MP4BoxDumpReader struct {
	Binary string
	Runner services.Runner
}

// ReadStemBox implements BoxReader. The dump file is removed afterwards.
func (r MP4BoxDumpReader) ReadStemBox(ctx context.Context, path string) ([]byte, bool, error) {
	binary := r.Binary
	if binary == "" {
		binary = "MP4Box"
	}
	runner := r.Runner
	if runner == nil {
		runner = services.ExecRunner{}
	}
	if _, err := runner.Run(ctx, services.Command{Tool: "MP4Box", Binary: binary, Args: []string{"-dump-udta", "0:stem", path, "-quiet"}}); err != nil {
		return nil, false, err
	}
	dump := UdtaDumpPath(path)
	data, err := os.ReadFile(dump)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	_ = os.Remove(dump)
	payload, err := stemmeta.UdtaDumpPayload(data)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// UdtaDumpPath returns the file MP4Box -dump-udta writes for path.
func UdtaDumpPath(path string) string {
	ext := ""
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, os.PathSeparator) {
		ext = path[i:]
	}
	return strings.TrimSuffix(path, ext) + "_stem.udta"
}

// Demuxer opens stem containers and decodes their streams.
type Demuxer struct {
	prober   Prober
	decoder  Decoder
	boxes    BoxReader
	fallback BoxReader
	logger   *slog.Logger
	workers  int
	format   transcode.PCMFormat
}

// Option customizes a Demuxer.
type Option func(*Demuxer)

// WithBoxFallback sets a reader used when the native box reader fails.
func WithBoxFallback(r BoxReader) Option {
	return func(d *Demuxer) { d.fallback = r }
}

// WithBoxReader replaces the native box reader.
func WithBoxReader(r BoxReader) Option {
	return func(d *Demuxer) {
		if r != nil {
			d.boxes = r
		}
	}
}

// NewDemuxer wires a demuxer from the [decoding] config section.
func NewDemuxer(cfg *config.Config, prober Prober, decoder Decoder, logger *slog.Logger, opts ...Option) *Demuxer {
	d := &Demuxer{
		prober:  prober,
		decoder: decoder,
		boxes:   NativeBoxReader{},
		logger:  logging.NewComponentLogger(logger, "demuxer"),
		workers: 4,
		format:  transcode.FormatF32LE,
	}
	if cfg != nil {
		if cfg.Decoding.Workers > 0 {
			d.workers = cfg.Decoding.Workers
		}
		if f, err := transcode.ParsePCMFormat(cfg.Decoding.PCMFormat); err == nil {
			d.format = f
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Probe reads the stream table and stem box of path. A container without a
// stem box is valid and yields empty metadata; a box that does not decode
// fails with services.ErrMetadataBoxCorrupt.
func (d *Demuxer) Probe(ctx context.Context, path string) (*Handle, error) {
	ctx = services.WithStage(ctx, services.StageProbe)
	logger := logging.WithContext(ctx, d.logger)

	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrNotFound, services.StageProbe, "open container", path, err)
	}
	result, err := d.prober.Inspect(ctx, path)
	if err != nil {
		logging.ToolFailure(logger, "container inspection failed", err, logging.String("path", path))
		return nil, services.Wrap(services.ErrExternalTool, services.StageProbe, "inspect streams", path, err)
	}
	if result.AudioStreamCount() == 0 {
		return nil, services.Wrap(services.ErrUnsupportedFormat, services.StageProbe, "inspect streams", "no audio stream found", nil)
	}

	meta, hasMeta, err := d.readMetadata(ctx, logger, path)
	if err != nil {
		return nil, err
	}
	audio := result.AudioStreams()
	enabled := d.enabledFlags(logger, path, audio)

	track := TrackName(path)
	h := &Handle{
		Path:        path,
		Metadata:    meta,
		HasMetadata: hasMeta,
		SizeBytes:   result.SizeBytes(),
		BitRate:     result.BitRate(),
	}
	for i, s := range audio {
		h.Streams = append(h.Streams, StreamInfo{
			Index:      s.Index,
			Codec:      s.CodecName,
			SampleRate: s.SampleRateHz(),
			Channels:   s.Channels,
			Duration:   s.DurationSeconds(),
			Samples:    s.Samples(),
			Title:      streamTitle(track, i, meta, hasMeta, s.HandlerName()),
			Enabled:    enabled[i],
		})
	}

	logger.Debug("container probed",
		logging.String(logging.FieldEventType, "probe_complete"),
		logging.String("path", path),
		logging.Int("streams", len(h.Streams)),
		logging.Bool("stem_box", hasMeta),
	)
	return h, nil
}

func (d *Demuxer) readMetadata(ctx context.Context, logger *slog.Logger, path string) (stemmeta.Metadata, bool, error) {
	payload, found, err := d.boxes.ReadStemBox(ctx, path)
	if err != nil && d.fallback != nil {
		logger.Debug("native box read failed, using fallback", logging.Error(err))
		payload, found, err = d.fallback.ReadStemBox(ctx, path)
	}
	if err != nil {
		return stemmeta.Metadata{}, false, services.Wrap(services.ErrMetadataBoxCorrupt, services.StageProbe, "read stem box", path, err)
	}
	if !found {
		return stemmeta.Metadata{Stems: []stemmeta.Entry{}}, false, nil
	}
	meta, err := stemmeta.Decode(payload)
	if err != nil {
		return stemmeta.Metadata{}, false, err
	}
	return meta, true, nil
}

// enabledFlags prefers tkhd flags and falls back to the default disposition.
func (d *Demuxer) enabledFlags(logger *slog.Logger, path string, audio []ffprobe.Stream) []bool {
	flags := make([]bool, len(audio))
	for i, s := range audio {
		flags[i] = s.Default()
	}
	f, err := mp4.Open(path)
	if err != nil {
		logger.Debug("track flags unavailable", logging.Error(err))
		return flags
	}
	tracks, err := f.AudioTracks()
	if err != nil || len(tracks) != len(audio) {
		return flags
	}
	for i, t := range tracks {
		flags[i] = t.Enabled()
	}
	return flags
}
