// Package integrity validates stem containers without writing anything.
package integrity

import (
	"context"
	"log/slog"
	"time"

	"stemforge/internal/demux"
	"stemforge/internal/logging"
	"stemforge/internal/services"
)

// Box states reported by Verify.
const (
	BoxPresent = "present"
	BoxAbsent  = "absent"
)

// Report summarizes a container that passed verification.
type Report struct {
	Path       string    `json:"path"`
	Streams    int       `json:"streams"`
	Channels   int       `json:"channels"`
	SampleRate int       `json:"sample_rate"`
	Samples    int       `json:"samples"`
	Durations  []float64 `json:"durations"`
	Titles     []string  `json:"titles"`
	StemBox    string    `json:"stem_box"`
}

// Checker runs the probe and decode pipeline in strict mode and discards
// the samples.
type Checker struct {
	demuxer *demux.Demuxer
	logger  *slog.Logger
}

// NewChecker wraps a demuxer. The demuxer should read the stem box natively
// so verification leaves the filesystem untouched.
func NewChecker(d *demux.Demuxer, logger *slog.Logger) *Checker {
	return &Checker{demuxer: d, logger: logging.NewComponentLogger(logger, "integrity")}
}

// Verify succeeds only when every stream decodes with the same channel count
// and length and the stem box, if present, parses.
func (c *Checker) Verify(ctx context.Context, path string) (Report, error) {
	ctx = services.WithStage(ctx, services.StageVerify)
	logger := logging.WithContext(ctx, c.logger)
	start := time.Now()

	h, err := c.demuxer.Probe(ctx, path)
	if err != nil {
		return Report{}, fail(path, err)
	}
	buf, err := c.demuxer.Extract(ctx, h, demux.ExtractOptions{Check: true})
	if err != nil {
		return Report{}, fail(path, err)
	}

	report := Report{
		Path:       path,
		Streams:    len(h.Streams),
		Channels:   h.Streams[0].Channels,
		SampleRate: buf.SampleRate,
		Samples:    buf.Samples(),
		Titles:     h.Titles(),
		StemBox:    BoxAbsent,
	}
	if h.HasMetadata {
		report.StemBox = BoxPresent
	}
	for _, s := range h.Streams {
		report.Durations = append(report.Durations, s.Duration)
	}

	logger.Info("container verified",
		logging.String(logging.FieldEventType, "verify_complete"),
		logging.String("path", path),
		logging.Int("streams", report.Streams),
		logging.Int("samples", report.Samples),
		logging.String("stem_box", report.StemBox),
		logging.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func fail(path string, err error) error {
	return services.Wrap(services.Marker(err), services.StageVerify, "verify container", path, err)
}
