package mux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"stemforge/internal/config"
	"stemforge/internal/fileutil"
	"stemforge/internal/logging"
	"stemforge/internal/services"
)

// MuxRequest describes the inputs of one container build. Tracks must
// already be MP4-family files.
type MuxRequest struct {
	Output     string   // Final container path
	Mixdown    string   // Normalized mixdown, stream 0
	Components []string // Normalized components, streams 1..n
	Metadata   string   // Base64 stem box document
}

// Muxer combines normalized tracks into one stem container.
type Muxer interface {
	Mux(ctx context.Context, req MuxRequest) error
}

// MP4Box builds stem containers with the GPAC MP4Box tool.
type MP4Box struct {
	binary string
	logger *slog.Logger
	run    services.Runner
}

// NewMP4Box constructs an MP4Box muxer from the [tools] config section.
func NewMP4Box(cfg *config.Config, logger *slog.Logger) *MP4Box {
	m := &MP4Box{binary: "MP4Box", logger: logging.NewComponentLogger(logger, "muxer")}
	var timeout time.Duration
	if cfg != nil {
		if b := strings.TrimSpace(cfg.Tools.MP4Box); b != "" {
			m.binary = b
		}
		timeout = cfg.ToolTimeout()
	}
	m.run = services.ExecRunner{Timeout: timeout}
	return m
}

// WithRunner allows injecting a custom command runner for tests.
func (m *MP4Box) WithRunner(r services.Runner) {
	if m != nil && r != nil {
		m.run = r
	}
}

// Mux implements Muxer. MP4Box writes a hidden sibling of the output that is
// renamed into place on success; a failed run leaves neither file behind.
func (m *MP4Box) Mux(ctx context.Context, req MuxRequest) error {
	if strings.TrimSpace(req.Output) == "" {
		return services.Wrap(services.ErrValidation, services.StageMux, "mux", "output path is required", nil)
	}
	tmpPath := fileutil.TempSibling(req.Output, "mux")
	if err := fileutil.RemoveIfExists(tmpPath); err != nil {
		return services.Wrap(services.ErrExternalTool, services.StageMux, "remove stale temp", tmpPath, err)
	}
	if err := fileutil.RemoveIfExists(req.Output); err != nil {
		return services.Wrap(services.ErrExternalTool, services.StageMux, "remove existing output", req.Output, err)
	}

	args := BuildArgs(req, tmpPath)
	m.logger.Debug("executing MP4Box",
		logging.String("output", req.Output),
		logging.Int("streams", len(req.Components)+1),
	)
	start := time.Now()
	if _, err := m.run.Run(ctx, services.Command{Tool: "MP4Box", Binary: m.binary, Args: args}); err != nil {
		_ = os.Remove(tmpPath)
		logging.ToolFailure(logging.WithContext(ctx, m.logger), "MP4Box mux failed", err, logging.String("output", req.Output))
		return services.Wrap(services.ErrExternalTool, services.StageMux, "run MP4Box", req.Output, err)
	}
	if _, err := os.Stat(tmpPath); err != nil {
		return services.Wrap(services.ErrExternalTool, services.StageMux, "run MP4Box", "MP4Box did not produce an output file", err)
	}
	if err := fileutil.Commit(tmpPath, req.Output); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrExternalTool, services.StageMux, "commit output", req.Output, err)
	}

	m.logger.Info("stem container muxed",
		logging.String(logging.FieldEventType, "mux_complete"),
		logging.String("output", req.Output),
		logging.Int("streams", len(req.Components)+1),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}

// BuildArgs constructs the MP4Box command line writing to output. The
// mixdown is the enabled first track; every component is added disabled.
func BuildArgs(req MuxRequest, output string) []string {
	args := []string{"-add", req.Mixdown + "#ID=Z", output}
	for _, c := range req.Components {
		args = append(args, "-add", c+"#ID=Z:disable")
	}
	args = append(args,
		"-brand", "M4A:0",
		"-rb", "isom",
		"-rb", "iso2",
		"-udta", fmt.Sprintf("0:type=stem:src=base64,%s", req.Metadata),
		"-quiet",
	)
	return args
}
