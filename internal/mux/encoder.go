package mux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"stemforge/internal/config"
	"stemforge/internal/fileutil"
	"stemforge/internal/logging"
	"stemforge/internal/services"
	"stemforge/internal/stemmeta"
	"stemforge/internal/tags"
	"stemforge/internal/transcode"
)

const defaultWorkers = 4

// Tagger writes descriptive tags into a finished container.
type Tagger interface {
	Apply(ctx context.Context, set tags.TagSet, path string) error
}

// Progress reports encode steps: one per normalized input, then mux, then tag.
type Progress struct {
	Step  string
	Done  int
	Total int
}

// Encoder builds stem containers from a mixdown and its components.
type Encoder struct {
	transcoder transcode.Transcoder
	muxer      Muxer
	tagger     Tagger
	logger     *slog.Logger
	workers    int
	lockOutput bool
	progress   func(Progress)
}

// Option customizes an Encoder.
type Option func(*Encoder)

// WithProgress registers a callback invoked after every completed step.
// Calls are serialized.
func WithProgress(fn func(Progress)) Option {
	return func(e *Encoder) { e.progress = fn }
}

// WithWorkers overrides the normalize concurrency limit.
func WithWorkers(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEncoder wires an encoder from the [encoding] config section.
func NewEncoder(cfg *config.Config, t transcode.Transcoder, m Muxer, tagger Tagger, logger *slog.Logger, opts ...Option) *Encoder {
	e := &Encoder{
		transcoder: t,
		muxer:      m,
		tagger:     tagger,
		logger:     logging.NewComponentLogger(logger, "encoder"),
		workers:    defaultWorkers,
		lockOutput: true,
	}
	if cfg != nil {
		if cfg.Encoding.Workers > 0 {
			e.workers = cfg.Encoding.Workers
		}
		e.lockOutput = cfg.Encoding.LockOutput
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode builds the container described by job and returns its path.
// Inputs are normalized concurrently; muxing and tagging run once all of
// them are ready. A failed encode leaves no output file.
func (e *Encoder) Encode(ctx context.Context, job EncodeJob) (string, error) {
	n, err := job.StemCount()
	if err != nil {
		return "", err
	}
	inputs := append([]string{job.Mixdown}, job.Components...)
	if err := checkIntermediates(inputs); err != nil {
		return "", err
	}
	output := job.OutputPath()
	codec := job.Codec
	if codec == "" {
		codec = transcode.CodecALAC
	}

	ctx = services.WithJobID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, e.logger)
	start := time.Now()

	if e.lockOutput {
		unlock, err := lockOutput(output)
		if err != nil {
			return "", err
		}
		defer unlock()
	}

	logger.Info("stem encode started",
		logging.String(logging.FieldEventType, "encode_started"),
		logging.String("output", output),
		logging.Int("streams", n+1),
		logging.String("codec", string(codec)),
		logging.Strings("components", job.Components),
	)

	total := n + 3
	var (
		mu   sync.Mutex
		done int
	)
	step := func(name string) {
		if e.progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		e.progress(Progress{Step: name, Done: done, Total: total})
	}

	normalized, err := e.normalizeAll(ctx, inputs, codec, step)
	defer removeIntermediates(logger, inputs, normalized)
	if err != nil {
		return "", err
	}

	payload, err := stemmeta.EncodeBase64(job.StemMetadata())
	if err != nil {
		return "", services.Wrap(services.ErrValidation, services.StageMux, "encode stem metadata", "", err)
	}
	req := MuxRequest{Output: output, Mixdown: normalized[0], Components: normalized[1:], Metadata: payload}
	if err := e.muxer.Mux(services.WithStage(ctx, services.StageMux), req); err != nil {
		return "", err
	}
	step(services.StageMux)

	if e.tagger != nil {
		if err := e.tagger.Apply(services.WithStage(ctx, services.StageTag), job.Tags, output); err != nil {
			_ = fileutil.RemoveIfExists(output)
			logging.ErrorWithContext(logger, "tagging failed, container removed", "tag_failed",
				logging.String("output", output),
				logging.Error(err),
				logging.String(logging.FieldImpact, "no stem file was produced"),
			)
			return "", err
		}
	}
	step(services.StageTag)

	logger.Info("stem file created",
		logging.String(logging.FieldEventType, "encode_complete"),
		logging.String("output", output),
		logging.Int("streams", n+1),
		logging.Duration("duration", time.Since(start)),
	)
	return output, nil
}

func (e *Encoder) normalizeAll(ctx context.Context, inputs []string, codec transcode.Codec, step func(string)) ([]string, error) {
	ctx = services.WithStage(ctx, services.StageNormalize)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	normalized := make([]string, len(inputs))
	for i, input := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := e.transcoder.Normalize(gctx, input, codec)
			if err != nil {
				return err
			}
			normalized[i] = path
			step(services.StageNormalize)
			return nil
		})
	}
	err := g.Wait()
	return normalized, err
}

// checkIntermediates rejects jobs where a converted input would be written
// over another input, or two converted inputs would share one target.
func checkIntermediates(inputs []string) error {
	owner := make(map[string]string, len(inputs))
	for _, input := range inputs {
		action, err := transcode.Classify(input)
		if err != nil {
			return err
		}
		if action == transcode.ActionPassthrough {
			owner[filepath.Clean(input)] = input
		}
	}
	for _, input := range inputs {
		if action, _ := transcode.Classify(input); action != transcode.ActionConvert {
			continue
		}
		target := filepath.Clean(transcode.NormalizedPath(input))
		if other, taken := owner[target]; taken {
			return services.Wrap(services.ErrValidation, services.StageNormalize, "plan intermediates",
				fmt.Sprintf("converting %s would overwrite %s", input, other), nil)
		}
		owner[target] = input
	}
	return nil
}

// removeIntermediates deletes converted copies of inputs.
func removeIntermediates(logger *slog.Logger, inputs, normalized []string) {
	for i, path := range normalized {
		if path == "" || path == inputs[i] {
			continue
		}
		if err := fileutil.RemoveIfExists(path); err != nil {
			logging.WarnWithContext(logger, "intermediate file not removed", "intermediate_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "a converted copy remains beside the input"),
			)
		}
	}
}

// lockOutput takes an exclusive advisory lock on <output>.lock. A second
// encode to the same path fails instead of waiting.
func lockOutput(output string) (func(), error) {
	lockPath := output + ".lock"
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, services.StageMux, "lock output", lockPath, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, services.StageMux, "lock output",
			fmt.Sprintf("%s is being written by another encode", output), nil)
	}
	return func() {
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
	}, nil
}
