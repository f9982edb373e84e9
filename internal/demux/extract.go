package demux

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"stemforge/internal/logging"
	"stemforge/internal/services"
	"stemforge/internal/transcode"
)

// Reader selects how logical stems map onto physical streams.
type Reader interface {
	reader()
}

// StreamReader maps every audio stream to one stem. It is the default.
type StreamReader struct{}

// ChannelReader treats a single physical stream as consecutive groups of
// ChannelsPerStem channels, one group per stem.
type ChannelReader struct {
	ChannelsPerStem int
}

func (StreamReader) reader()  {}
func (ChannelReader) reader() {}

// ExtractOptions restricts and shapes a decode.
type ExtractOptions struct {
	// Streams lists stem indices to decode; nil decodes all of them.
	Streams []int
	// Start and Duration bound the decoded window. Zero means unbounded.
	Start    time.Duration
	Duration time.Duration
	Format   transcode.PCMFormat
	// SampleRate resamples every stream; zero keeps the first stream's rate.
	SampleRate int
	Reader     Reader
	// Check turns a length mismatch into ErrIntegrityViolation.
	Check   bool
	Workers int
}

// Buffers holds decoded stems shaped (stems, samples, channels).
type Buffers struct {
	Data       [][][]float32
	SampleRate int
	// Streams are the stem indices in Data order.
	Streams  []int
	Titles   []string
	Warnings []string
}

// Samples returns the common per-stem sample count.
func (b *Buffers) Samples() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Channels returns the per-stem channel count.
func (b *Buffers) Channels() int {
	if b.Samples() == 0 {
		return 0
	}
	return len(b.Data[0][0])
}

// Extract decodes the selected stems of h. Streams are decoded concurrently
// and placed in the result by index.
func (d *Demuxer) Extract(ctx context.Context, h *Handle, opts ExtractOptions) (*Buffers, error) {
	ctx = services.WithStage(ctx, services.StageExtract)
	if h == nil || len(h.Streams) == 0 {
		return nil, services.Wrap(services.ErrValidation, services.StageExtract, "extract", "container has no audio streams", nil)
	}
	if err := uniformChannels(h); err != nil {
		return nil, err
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = h.Streams[0].SampleRate
	}
	if rate <= 0 {
		return nil, services.Wrap(services.ErrValidation, services.StageExtract, "extract", "sample rate unknown", nil)
	}
	format := opts.Format
	if format == "" {
		format = d.format
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = d.workers
	}

	var (
		out *Buffers
		err error
	)
	switch r := opts.Reader.(type) {
	case ChannelReader:
		out, err = d.readPacked(ctx, h, opts, r.ChannelsPerStem, rate, format)
	case *ChannelReader:
		out, err = d.readPacked(ctx, h, opts, r.ChannelsPerStem, rate, format)
	default:
		out, err = d.readStreams(ctx, h, opts, rate, format, workers)
	}
	if err != nil {
		return nil, err
	}
	if err := d.equalize(ctx, out, opts.Check); err != nil {
		return nil, err
	}
	return out, nil
}

func uniformChannels(h *Handle) error {
	want := h.Streams[0].Channels
	for _, s := range h.Streams[1:] {
		if s.Channels != want {
			return services.Wrap(services.ErrChannelMismatch, services.StageExtract, "check channels",
				fmt.Sprintf("stream %d has %d channels, stream 0 has %d", s.Index, s.Channels, want), nil)
		}
	}
	return nil
}

func selectStems(requested []int, count int) ([]int, error) {
	if requested == nil {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if len(requested) == 0 {
		return nil, services.Wrap(services.ErrValidation, services.StageExtract, "select streams", "empty stream list", nil)
	}
	for _, i := range requested {
		if i < 0 || i >= count {
			return nil, services.Wrap(services.ErrValidation, services.StageExtract, "select streams",
				fmt.Sprintf("stream %d out of range [0,%d)", i, count), nil)
		}
	}
	return append([]int(nil), requested...), nil
}

func (d *Demuxer) readStreams(ctx context.Context, h *Handle, opts ExtractOptions, rate int, format transcode.PCMFormat, workers int) (*Buffers, error) {
	selected, err := selectStems(opts.Streams, len(h.Streams))
	if err != nil {
		return nil, err
	}
	data := make([][][]float32, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for slot, idx := range selected {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frames, err := d.decode(gctx, h, h.Streams[idx], opts, rate, format)
			if err != nil {
				return err
			}
			data[slot] = frames
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	titles := make([]string, len(selected))
	for i, idx := range selected {
		titles[i] = h.Streams[idx].Title
	}
	return &Buffers{Data: data, SampleRate: rate, Streams: selected, Titles: titles}, nil
}

func (d *Demuxer) readPacked(ctx context.Context, h *Handle, opts ExtractOptions, width, rate int, format transcode.PCMFormat) (*Buffers, error) {
	if width <= 0 {
		return nil, services.Wrap(services.ErrValidation, services.StageExtract, "channel reader", "channels per stem must be positive", nil)
	}
	if len(h.Streams) != 1 {
		return nil, services.Wrap(services.ErrNotChannelPacked, services.StageExtract, "channel reader",
			fmt.Sprintf("%d audio streams, channel packing needs exactly one", len(h.Streams)), nil)
	}
	stream := h.Streams[0]
	if stream.Channels%width != 0 {
		return nil, services.Wrap(services.ErrNotChannelPacked, services.StageExtract, "channel reader",
			fmt.Sprintf("%d channels do not divide into stems of %d", stream.Channels, width), nil)
	}
	count := stream.Channels / width
	selected, err := selectStems(opts.Streams, count)
	if err != nil {
		return nil, err
	}
	frames, err := d.decode(ctx, h, stream, opts, rate, format)
	if err != nil {
		return nil, err
	}

	track := TrackName(h.Path)
	out := &Buffers{SampleRate: rate, Streams: selected}
	for _, k := range selected {
		stem := make([][]float32, len(frames))
		for i, frame := range frames {
			stem[i] = frame[k*width : (k+1)*width : (k+1)*width]
		}
		out.Data = append(out.Data, stem)
		name := strconv.Itoa(k)
		if h.HasMetadata && k < len(h.Metadata.Stems) {
			name = h.Metadata.Stems[k].Name
		}
		out.Titles = append(out.Titles, track+" {"+name+"}")
	}
	return out, nil
}

func (d *Demuxer) decode(ctx context.Context, h *Handle, s StreamInfo, opts ExtractOptions, rate int, format transcode.PCMFormat) ([][]float32, error) {
	raw, err := d.decoder.DecodePCM(ctx, transcode.DecodeRequest{
		Path:       h.Path,
		Stream:     s.Index,
		SampleRate: rate,
		Format:     format,
		Start:      opts.Start,
		Duration:   opts.Duration,
	})
	if err != nil {
		return nil, err
	}
	frames, err := transcode.Frames(raw, format, s.Channels)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, services.StageExtract, "decode stream", fmt.Sprintf("stream %d", s.Index), err)
	}
	return frames, nil
}

// equalize enforces equal stem lengths: a hard failure under check,
// otherwise every stem is cut to the shortest and a warning is recorded.
func (d *Demuxer) equalize(ctx context.Context, b *Buffers, check bool) error {
	if len(b.Data) < 2 {
		return nil
	}
	shortest, longest := len(b.Data[0]), len(b.Data[0])
	for _, stem := range b.Data[1:] {
		shortest = min(shortest, len(stem))
		longest = max(longest, len(stem))
	}
	if shortest == longest {
		return nil
	}
	if check {
		return services.Wrap(services.ErrIntegrityViolation, services.StageExtract, "check lengths",
			fmt.Sprintf("stream lengths differ: %d to %d samples", shortest, longest), nil)
	}
	for i := range b.Data {
		b.Data[i] = b.Data[i][:shortest]
	}
	msg := fmt.Sprintf("stream lengths differ, truncated %d samples to %d", longest, shortest)
	b.Warnings = append(b.Warnings, msg)
	logging.WarnWithContext(logging.WithContext(ctx, d.logger), "stream lengths differ", "length_mismatch_truncated",
		logging.Int("shortest", shortest),
		logging.Int("longest", longest),
		logging.Int("sample_rate", b.SampleRate),
		logging.String(logging.FieldImpact, "decoded stems were truncated to the shortest stream"),
	)
	return nil
}
